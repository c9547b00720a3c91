package guest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/myupstage/visitationbook-backend/auth"
	"github.com/myupstage/visitationbook-backend/document"
	"github.com/myupstage/visitationbook-backend/guest"
	"github.com/myupstage/visitationbook-backend/purchase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRouter(t *testing.T, f *fixture) (http.Handler, *auth.Auth) {
	logger := zap.NewNop()
	a, err := auth.New(auth.Options{
		Logger:        logger,
		JWTSigningKey: "0123456789abcdef0123",
	})
	require.NoError(t, err)

	guests, err := guest.NewService(guest.ServiceOptions{
		Auth:    a,
		Handler: f.handler,
		Logger:  logger,
	})
	require.NoError(t, err)
	purchases, err := purchase.NewService(purchase.ServiceOptions{
		Auth:        a,
		Machine:     f.machine,
		Blobs:       f.blobs,
		Logger:      logger,
		GuestRouter: guests.PurchaseRouter(),
	})
	require.NoError(t, err)
	return purchases.Router(), a
}

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func TestPictureUploadRoute(t *testing.T) {
	f := newFixture(t)
	router, _ := newRouter(t, f)
	p := f.purchaseWith(t, false, "", withPictures())

	upload := func(filename string, data []byte) *httptest.ResponseRecorder {
		body, contentType := multipartBody(t, "picture", filename, data)
		r := httptest.NewRequest(http.MethodPost, "/"+p.ID+"/guests/pictures", body)
		r.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)
		return w
	}

	w := upload("me.png", pngBytes(t))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Result struct {
			Picture string `json:"picture"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	ok, err := document.Exists(context.Background(), f.blobs, created.Result.Picture)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, http.StatusBadRequest, upload("me.exe", pngBytes(t)).Code)
	assert.Equal(t, http.StatusBadRequest, upload("me.png", []byte("GIF89a")).Code)
}

func TestPurchaseImageRoute(t *testing.T) {
	f := newFixture(t)
	router, a := newRouter(t, f)
	p := f.purchase(t, false, "")

	upload := func(accountID, filename string) *httptest.ResponseRecorder {
		token, err := a.CreateTokenFromClaims(auth.Claims{AccountID: accountID})
		require.NoError(t, err)
		body, contentType := multipartBody(t, "image", filename, pngBytes(t))
		r := httptest.NewRequest(http.MethodPost, "/"+p.ID+"/images/cover", body)
		r.Header.Set("Content-Type", contentType)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)
		return w
	}

	w := upload(ownerID, "cover.png")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	stored := f.document(t, p.ID)
	assert.Empty(t, stored, "incomplete purchase is not rendered")
	updated, err := f.machine.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, updated.CustomCover)

	assert.Equal(t, http.StatusBadRequest, upload(ownerID, "cover.bmp").Code)
	assert.Equal(t, http.StatusForbidden, upload("intruder", "cover.png").Code)
}
