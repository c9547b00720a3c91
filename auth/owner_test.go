package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsOwner(t *testing.T) {
	ctx := context.WithValue(context.Background(), Context, &Claims{AccountID: "acct-1"})
	assert.True(t, IsOwner(ctx, "acct-1"))
	assert.False(t, IsOwner(ctx, "acct-2"))
	assert.False(t, IsOwner(context.Background(), ""))
}

func TestRequireOwner(t *testing.T) {
	a := testAuth()
	token, err := a.CreateTokenFromClaims(Claims{AccountID: "acct-1"})
	require.NoError(t, err)

	owners := map[string]string{"mine": "acct-1", "theirs": "acct-2"}
	lookup := func(r *http.Request) (string, bool, error) {
		id := r.URL.Query().Get("id")
		if id == "broken" {
			return "", false, errors.New("database is down")
		}
		owner, ok := owners[id]
		return owner, ok, nil
	}
	h := a.Middleware()(a.RequireOwner(lookup)(echoAccount()))

	tests := []struct {
		id     string
		status int
	}{
		{"mine", http.StatusOK},
		{"theirs", http.StatusForbidden},
		{"missing", http.StatusNotFound},
		{"broken", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/?id="+tt.id, nil)
		r.Header.Set("Authorization", "Bearer "+token)
		h.ServeHTTP(w, r)
		assert.Equal(t, tt.status, w.Code, tt.id)
	}
}
