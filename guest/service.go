package guest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/myupstage/visitationbook-backend/auth"
	"github.com/myupstage/visitationbook-backend/document"
	"github.com/myupstage/visitationbook-backend/purchase"
	resp "github.com/myupstage/visitationbook-backend/response"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	Auth    *auth.Auth
	Handler *Handler
	Logger  *zap.Logger
}

// Service is the guest entry API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the guest API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.Auth == nil {
		return nil, fmt.Errorf("nil Auth is invalid")
	}
	if option.Handler == nil {
		return nil, fmt.Errorf("nil Handler is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

// EntryRequest is what a guest submits
type EntryRequest struct {
	Picture string `json:"picture"`
	Name    string `json:"name" validate:"max=200"`
	Address string `json:"address" validate:"max=500"`
	Email   string `json:"email" validate:"omitempty,email"`
	Notes   string `json:"notes" validate:"max=5000"`
}

func (r EntryRequest) values() Values {
	return Values{
		Picture: r.Picture,
		Name:    r.Name,
		Address: r.Address,
		Email:   r.Email,
		Notes:   r.Notes,
	}
}

func (s *Service) writeHandlerError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var denied *CapabilityDeniedError
	switch {
	case errors.As(err, &denied):
		resp.WriteError(w, r, resp.ErrFieldNotAllowed(denied.Field))
	case errors.Is(err, purchase.ErrNotFound):
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find purchase with specific ID"))
	case errors.Is(err, ErrNotFound):
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find guest entry with specific ID"))
	case errors.Is(err, ErrUnknownPicture), document.IsUploadError(err):
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(err.Error()))
	default:
		logger.Error("Unable to process guest entry",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
	}
}

func (s *Service) decode(w http.ResponseWriter, r *http.Request) (*EntryRequest, bool) {
	var req EntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return nil, false
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrValidation(err))
		return nil, false
	}
	return &req, true
}

func (s *Service) submit(w http.ResponseWriter, r *http.Request) {
	purchaseID := chi.URLParam(r, "id")
	logger := s.Logger.With(zap.String("PurchaseID", purchaseID))

	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	e, err := s.Handler.Submit(r.Context(), purchaseID, req.values())
	if err != nil {
		s.writeHandlerError(w, r, logger, err)
		return
	}
	resp.WriteResponseWithStatus(w, r, http.StatusCreated, e)
}

func (s *Service) update(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "id")
	logger := s.Logger.With(zap.String("EntryID", entryID))

	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	e, err := s.Handler.Update(r.Context(), entryID, req.values())
	if err != nil {
		s.writeHandlerError(w, r, logger, err)
		return
	}
	resp.WriteResponse(w, r, e)
}

func (s *Service) uploadPicture(w http.ResponseWriter, r *http.Request) {
	purchaseID := chi.URLParam(r, "id")
	logger := s.Logger.With(zap.String("PurchaseID", purchaseID))

	file, filename, err := document.FormImage(w, r, "picture")
	if err != nil {
		s.writeHandlerError(w, r, logger, err)
		return
	}
	defer file.Close()

	ref, err := s.Handler.UploadPicture(r.Context(), purchaseID, filename, file)
	if err != nil {
		s.writeHandlerError(w, r, logger, err)
		return
	}
	resp.WriteResponseWithStatus(w, r, http.StatusCreated, struct {
		Picture string `json:"picture"`
	}{
		Picture: ref,
	})
}

func (s *Service) list(w http.ResponseWriter, r *http.Request) {
	purchaseID := chi.URLParam(r, "id")
	logger := s.Logger.With(zap.String("PurchaseID", purchaseID))

	entries, err := s.Handler.List(r.Context(), purchaseID)
	if err != nil {
		s.writeHandlerError(w, r, logger, err)
		return
	}
	resp.WriteResponse(w, r, entries)
}

func (s *Service) purchaseOwner(r *http.Request) (string, bool, error) {
	p, err := s.Handler.Purchases.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, purchase.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return p.AccountID, true, nil
}

// PurchaseRouter will return the routes nested under a purchase
func (s *Service) PurchaseRouter() http.Handler {
	r := chi.NewRouter()

	r.Post("/", s.submit)
	r.Post("/pictures", s.uploadPicture)

	r.Group(func(r chi.Router) {
		r.Use(s.Auth.Middleware())
		r.Use(s.Auth.ClaimCheck())
		r.Use(s.Auth.RequireOwner(s.purchaseOwner))
		r.Get("/", s.list)
	})

	return r
}

// Router will return the routes under guest API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Put("/{id}", s.update)

	return r
}
