package account

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/myupstage/visitationbook-backend/auth"
	"github.com/myupstage/visitationbook-backend/notify"
	resp "github.com/myupstage/visitationbook-backend/response"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	Auth           *auth.Auth
	AccountManager *Manager
	Notifier       notify.Notifier
	Logger         *zap.Logger
	SiteName       string
	LoginURL       string
}

// Service is the account API router
type Service struct {
	ServiceOptions
}

// LoginRequest is the model of user request for login token
type LoginRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// RefreshRequest exchanges a refresh token for a new session
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// ProfileRequest updates the account profile
type ProfileRequest struct {
	FullName        *string `json:"fullName" validate:"omitempty,max=200"`
	FuneralHomeName *string `json:"funeralHomeName" validate:"omitempty,max=200"`
}

// TokenResponse is returned on successful sign in
type TokenResponse struct {
	Token        string   `json:"token"`
	RefreshToken string   `json:"refreshToken"`
	Account      *Account `json:"account"`
}

// NewService will create an instance of the account API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.Auth == nil {
		return nil, fmt.Errorf("nil Auth is invalid")
	}
	if option.AccountManager == nil {
		return nil, fmt.Errorf("nil AccountManager is invalid")
	}
	if option.Notifier == nil {
		return nil, fmt.Errorf("nil Notifier is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

func (s *Service) requestLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	logger := s.Logger.With(zap.String("Email", req.Email))

	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrValidation(err))
		return
	}

	if err := s.Auth.Request(r.Context(), req.Email); err != nil {
		logger.Error("Unable to send login token",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to send login token"))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) issueTokens(w http.ResponseWriter, r *http.Request, logger *zap.Logger, acct *Account) {
	claims := auth.Claims{
		AccountID: acct.ID,
		Email:     acct.Email,
	}
	token, err := s.Auth.CreateTokenFromClaims(claims)
	if err != nil {
		logger.Error("Unable to generate token",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	refresh, err := s.Auth.CreateRefreshTokenFromClaims(claims)
	if err != nil {
		logger.Error("Unable to generate refresh token",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	resp.WriteResponse(w, r, TokenResponse{
		Token:        token,
		RefreshToken: refresh,
		Account:      acct,
	})
}

func (s *Service) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	email := chi.URLParam(r, "uid")
	token := chi.URLParam(r, "token")

	logger := s.Logger.With(zap.String("Email", email))

	valid, err := s.Auth.Verify(ctx, email, token)
	if err != nil {
		logger.Error("Unable to verify login token",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrVerifyToken())
		return
	}

	if !valid {
		resp.WriteError(w, r, resp.ErrUnauthorized().AddMessages("Invalid or expired login token"))
		return
	}

	// "upsert" an account
	acct, err := s.AccountManager.GetByEmail(ctx, email)
	if err != nil {
		logger.Error("Unable to find Account",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}

	if acct == nil {
		acct, err = s.AccountManager.NewAccount(ctx, NewAccountOptions{
			Email: email,
		})
		if err != nil {
			logger.Error("Unable to create Account",
				zap.Error(err),
			)
			resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to create account"))
			return
		}
		notify.Dispatch(ctx, logger, s.Notifier, notify.Welcome(notify.WelcomeOptions{
			To:       acct.Email,
			Name:     acct.DisplayName(),
			SiteName: s.SiteName,
			LoginURL: s.LoginURL,
		}))
	}

	s.issueTokens(w, r, logger, acct)
}

func (s *Service) refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrValidation(err))
		return
	}
	claims, err := s.Auth.VerifyRefreshToken(req.RefreshToken)
	if err != nil {
		s.Logger.Error("Cannot verify refresh token",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if claims == nil {
		resp.WriteError(w, r, resp.ErrUnauthorized().AddMessages("Invalid refresh token"))
		return
	}
	logger := s.Logger.With(zap.String("AccountID", claims.AccountID))

	acct, err := s.AccountManager.GetByID(r.Context(), claims.AccountID)
	if err != nil {
		logger.Error("Unable to find Account",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if acct == nil {
		resp.WriteError(w, r, resp.ErrUnauthorized())
		return
	}
	s.issueTokens(w, r, logger, acct)
}

func (s *Service) getMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := auth.AccountID(ctx)

	acct, err := s.AccountManager.GetByID(ctx, accountID)
	if err != nil {
		s.Logger.Error("Unable to get Account",
			zap.String("AccountID", accountID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if acct == nil {
		resp.WriteError(w, r, resp.ErrNotFound())
		return
	}
	resp.WriteResponse(w, r, acct)
}

func (s *Service) updateMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := auth.AccountID(ctx)
	logger := s.Logger.With(zap.String("AccountID", accountID))

	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrValidation(err))
		return
	}

	acct, err := s.AccountManager.UpdateProfile(ctx, accountID, Profile{
		FullName:        req.FullName,
		FuneralHomeName: req.FuneralHomeName,
	})
	if err != nil {
		logger.Error("Unable to update Account",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if acct == nil {
		resp.WriteError(w, r, resp.ErrNotFound())
		return
	}
	resp.WriteResponse(w, r, acct)
}

// Router will return the routes under account API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/login", s.requestLogin)
	r.Get("/login/{uid}/{token}", s.handleLogin)
	r.Post("/refresh", s.refresh)

	r.Group(func(r chi.Router) {
		r.Use(s.Auth.Middleware())
		r.Use(s.Auth.ClaimCheck())
		r.Get("/me", s.getMe)
		r.Patch("/me", s.updateMe)
	})

	return r
}
