package obituary

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/myupstage/visitationbook-backend/auth"
	resp "github.com/myupstage/visitationbook-backend/response"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	Auth            *auth.Auth
	ObituaryManager *Manager
	Logger          *zap.Logger
}

// Service is the obituary API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the obituary API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.Auth == nil {
		return nil, fmt.Errorf("nil Auth is invalid")
	}
	if option.ObituaryManager == nil {
		return nil, fmt.Errorf("nil ObituaryManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

// CreateRequest is the model of a new obituary
type CreateRequest struct {
	DeceasedName string     `json:"deceasedName" validate:"required,max=200"`
	Portrait     string     `json:"portrait"`
	DateOfBirth  *time.Time `json:"dateOfBirth"`
	DateOfDeath  *time.Time `json:"dateOfDeath"`
	Body         string     `json:"body"`
}

func (s *Service) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := auth.AccountID(ctx)
	logger := s.Logger.With(zap.String("AccountID", accountID))

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrValidation(err))
		return
	}

	o := &Obituary{
		AccountID:    accountID,
		DeceasedName: req.DeceasedName,
		Portrait:     req.Portrait,
		DateOfBirth:  req.DateOfBirth,
		DateOfDeath:  req.DateOfDeath,
		Body:         req.Body,
	}
	if err := s.ObituaryManager.Create(ctx, o); err != nil {
		logger.Error("Unable to create obituary",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to create obituary"))
		return
	}
	resp.WriteResponseWithStatus(w, r, http.StatusCreated, o)
}

func (s *Service) get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	o, err := s.ObituaryManager.GetByID(r.Context(), id)
	if err != nil {
		s.Logger.Error("Unable to get obituary",
			zap.String("ObituaryID", id),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if o == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find obituary with specific ID"))
		return
	}
	resp.WriteResponse(w, r, o)
}

func (s *Service) visit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	count, err := s.ObituaryManager.IncrementVisit(ctx, id, auth.AccountID(ctx))
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if count == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find obituary with specific ID"))
		return
	}
	resp.WriteResponse(w, r, struct {
		VisitCount int64 `json:"visitCount"`
	}{
		VisitCount: *count,
	})
}

// UpdateRequest is a partial edit of an obituary. A zero date clears it.
type UpdateRequest struct {
	DeceasedName *string    `json:"deceasedName" validate:"omitempty,min=1,max=200"`
	Portrait     *string    `json:"portrait"`
	DateOfBirth  *time.Time `json:"dateOfBirth"`
	DateOfDeath  *time.Time `json:"dateOfDeath"`
	Body         *string    `json:"body"`
}

func (s *Service) update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := auth.AccountID(ctx)
	id := chi.URLParam(r, "id")
	logger := s.Logger.With(
		zap.String("AccountID", accountID),
		zap.String("ObituaryID", id),
	)

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrValidation(err))
		return
	}

	o, err := s.ObituaryManager.Update(ctx, id, accountID, Fields{
		DeceasedName: req.DeceasedName,
		Portrait:     req.Portrait,
		DateOfBirth:  req.DateOfBirth,
		DateOfDeath:  req.DateOfDeath,
		Body:         req.Body,
	})
	if errors.Is(err, ErrForbidden) {
		resp.WriteError(w, r, resp.ErrForbidden())
		return
	}
	if err != nil {
		logger.Error("Unable to update obituary",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if o == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find obituary with specific ID"))
		return
	}
	resp.WriteResponse(w, r, o)
}

func (s *Service) delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	deleted, err := s.ObituaryManager.Delete(ctx, id, auth.AccountID(ctx))
	if errors.Is(err, ErrForbidden) {
		resp.WriteError(w, r, resp.ErrForbidden())
		return
	}
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if !deleted {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find obituary with specific ID"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) owner(r *http.Request) (string, bool, error) {
	o, err := s.ObituaryManager.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil || o == nil {
		return "", false, err
	}
	return o.AccountID, true, nil
}

// Router will return the routes under obituary API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.Auth.OptionalMiddleware())
		r.Get("/{id}", s.get)
		r.Post("/{id}/visit", s.visit)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.Auth.Middleware())
		r.Use(s.Auth.ClaimCheck())
		r.Post("/", s.create)

		owned := r.With(s.Auth.RequireOwner(s.owner))
		owned.Patch("/{id}", s.update)
		owned.Delete("/{id}", s.delete)
	})

	return r
}
