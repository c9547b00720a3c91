package auth

import (
	"context"
	"net/http"
	"time"

	resp "github.com/myupstage/visitationbook-backend/response"

	"github.com/dgrijalva/jwt-go"
	"go.uber.org/zap"
)

var bearerPrefix = "Bearer "
var jwtSigningMethod = jwt.SigningMethodHS256

// RefreshClaim is the payload of a refresh token, which only identifies the account
type RefreshClaim struct {
	jwt.StandardClaims
	AccountID string `json:"accountId"`
}

// CreateTokenFromClaims will create a signed jwt token that contains the given Claims
func (a *Auth) CreateTokenFromClaims(claims Claims) (string, error) {
	claims.StandardClaims = jwt.StandardClaims{
		ExpiresAt: time.Now().Add(a.TokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwtSigningMethod, claims)
	return token.SignedString(a.jwtKey)
}

// CreateRefreshTokenFromClaims will create a longer lived token that can only be exchanged for a new session
func (a *Auth) CreateRefreshTokenFromClaims(claims Claims) (string, error) {
	refresh := RefreshClaim{
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(a.RefreshTTL).Unix(),
			Subject:   "refresh",
		},
		AccountID: claims.AccountID,
	}
	token := jwt.NewWithClaims(jwtSigningMethod, refresh)
	return token.SignedString(a.jwtKey)
}

// parse returns false without error when the token is invalid in any way
func (a *Auth) parse(token string, claims jwt.Claims) (bool, error) {
	jwtToken, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		return a.jwtKey, nil
	})
	if err != nil {
		if err == jwt.ErrSignatureInvalid {
			return false, nil
		}
		if _, ok := err.(*jwt.ValidationError); ok {
			return false, nil
		}
		return false, err
	}
	if jwtToken.Method != jwtSigningMethod {
		return false, nil
	}
	return jwtToken.Valid, nil
}

// VerifyRefreshToken returns the refresh claims, or nil if the token is not a valid refresh token
func (a *Auth) VerifyRefreshToken(token string) (*RefreshClaim, error) {
	claims := &RefreshClaim{}
	valid, err := a.parse(token, claims)
	if err != nil || !valid || claims.Subject != "refresh" {
		return nil, err
	}
	return claims, nil
}

func (a *Auth) verifyToken(token string) (*Claims, error) {
	claims := &Claims{}
	valid, err := a.parse(token, claims)
	if err != nil || !valid || claims.AccountID == "" || claims.Subject == "refresh" {
		return nil, err
	}
	return claims, nil
}

func (a *Auth) claimsFromRequest(r *http.Request) (*Claims, bool, error) {
	header := r.Header.Get("Authorization")
	n := len(bearerPrefix)
	if len(header) < n || header[:n] != bearerPrefix {
		return nil, false, nil
	}
	claims, err := a.verifyToken(header[n:])
	return claims, true, err
}

// Middleware returns a http middleware to verify Bearer in the header
func (a *Auth) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, _, err := a.claimsFromRequest(r)
			if err != nil {
				a.Logger.Error("Cannot verify JWT token",
					zap.Error(err),
				)
				resp.WriteError(w, r, resp.ErrUnexpected())
				return
			}
			if claims == nil {
				resp.WriteError(w, r, resp.ErrNoBearer())
				return
			}

			ctx := context.WithValue(r.Context(), Context, claims)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalMiddleware attaches Claims when a valid Bearer is present, and lets anonymous requests through.
// A Bearer that is present but invalid is still rejected.
func (a *Auth) OptionalMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, present, err := a.claimsFromRequest(r)
			if err != nil {
				a.Logger.Error("Cannot verify JWT token",
					zap.Error(err),
				)
				resp.WriteError(w, r, resp.ErrUnexpected())
				return
			}
			if !present {
				next.ServeHTTP(w, r)
				return
			}
			if claims == nil {
				resp.WriteError(w, r, resp.ErrNoBearer())
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), Context, claims)))
		})
	}
}

// ClaimCheck returns a http middlware to authenticated route to ensure that Claims exists in the context
func (a *Auth) ClaimCheck() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := FromContext(r.Context()); !ok {
				a.Logger.Error("Context has no Claims")
				resp.WriteError(w, r, resp.ErrUnexpected())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// FromContext returns the Claims attached by Middleware or OptionalMiddleware
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(Context).(*Claims)
	return claims, ok && claims != nil
}

// AccountID returns the authenticated account id, or an empty string for anonymous requests
func AccountID(ctx context.Context) string {
	if claims, ok := FromContext(ctx); ok {
		return claims.AccountID
	}
	return ""
}
