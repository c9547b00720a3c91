package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	WriteError(w, r, ErrForbidden().AddMessages("Guest field not allowed: email"))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body Error
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "Forbidden", body.Message)
	assert.Equal(t, []string{"Guest field not allowed: email"}, body.Messages)
}

func TestWriteErrorNil(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	WriteError(w, r, nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestWriteResponse(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	WriteResponseWithStatus(w, r, http.StatusCreated, map[string]int64{"visitCount": 3})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"result":{"visitCount":3}}`, w.Body.String())
}

func TestErrValidation(t *testing.T) {
	e := ErrValidation(errors.New("Key: 'Email' failed"))
	assert.Equal(t, 400, e.StatusCode)
	assert.Len(t, e.Messages, 2)
	assert.Equal(t, "HTTP 400: Bad request", e.Error())
}

func TestErrFieldNotAllowed(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", nil)

	WriteError(w, r, ErrFieldNotAllowed("special_notes"))

	assert.Equal(t, http.StatusForbidden, w.Code)
	var body struct {
		Result FieldResult `json:"result"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "special_notes", body.Result.Field)
}
