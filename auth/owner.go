package auth

import (
	"context"
	"net/http"

	resp "github.com/myupstage/visitationbook-backend/response"

	"go.uber.org/zap"
)

// IsOwner reports whether the request is authenticated as accountID
func IsOwner(ctx context.Context, accountID string) bool {
	id := AccountID(ctx)
	return id != "" && id == accountID
}

// OwnerLookup returns the account owning the resource a request addresses. found is false when there is no such resource.
type OwnerLookup func(r *http.Request) (accountID string, found bool, err error)

// RequireOwner returns a http middleware that lets only the owner of the addressed resource through.
// It must run after Middleware.
func (a *Auth) RequireOwner(lookup OwnerLookup) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner, found, err := lookup(r)
			if err != nil {
				a.Logger.Error("Cannot look up resource owner",
					zap.String("Path", r.URL.Path),
					zap.Error(err),
				)
				resp.WriteError(w, r, resp.ErrUnexpected())
				return
			}
			if !found {
				resp.WriteError(w, r, resp.ErrNotFound())
				return
			}
			if !IsOwner(r.Context(), owner) {
				resp.WriteError(w, r, resp.ErrForbidden())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
