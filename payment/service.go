package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/myupstage/visitationbook-backend/account"
	"github.com/myupstage/visitationbook-backend/auth"
	resp "github.com/myupstage/visitationbook-backend/response"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// AccountGetter resolves the Stripe customer of an account
type AccountGetter interface {
	GetByID(ctx context.Context, id string) (*account.Account, error)
}

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	Auth           *auth.Auth
	PaymentManager *Manager
	Accounts       AccountGetter
	Logger         *zap.Logger
}

// Service is the payment API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the payment API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.Auth == nil {
		return nil, fmt.Errorf("nil Auth is invalid")
	}
	if option.PaymentManager == nil {
		return nil, fmt.Errorf("nil PaymentManager is invalid")
	}
	if option.Accounts == nil {
		return nil, fmt.Errorf("nil Accounts is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

// PaymentSetupRequest attaches a payment method collected by the frontend
type PaymentSetupRequest struct {
	PaymentMethodID string `json:"paymentMethodId" validate:"required"`
}

func (s *Service) setupPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := auth.AccountID(ctx)
	logger := s.Logger.With(zap.String("AccountID", accountID))

	var req PaymentSetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrValidation(err))
		return
	}

	logger = logger.With(zap.String("PaymentMethodID", req.PaymentMethodID))

	acct, err := s.Accounts.GetByID(ctx, accountID)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	if acct == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find account"))
		return
	}

	if err := s.PaymentManager.AttachPaymentMethod(ctx, acct.StripeCustomerID, req.PaymentMethodID); err != nil {
		logger.Error("Unable to update payment method in Stripe",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to setup payment"))
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Service) customer(w http.ResponseWriter, r *http.Request) (*account.Account, bool) {
	acct, err := s.Accounts.GetByID(r.Context(), auth.AccountID(r.Context()))
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected())
		return nil, false
	}
	if acct == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find account"))
		return nil, false
	}
	if acct.StripeCustomerID == "" {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Account has no payment profile"))
		return nil, false
	}
	return acct, true
}

func (s *Service) listMethods(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.customer(w, r)
	if !ok {
		return
	}
	methods, err := s.PaymentManager.ListMethods(r.Context(), acct.StripeCustomerID)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to list payment methods"))
		return
	}
	resp.WriteResponse(w, r, methods)
}

func (s *Service) detachMethod(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.customer(w, r)
	if !ok {
		return
	}
	err := s.PaymentManager.DetachMethod(r.Context(), acct.StripeCustomerID, chi.URLParam(r, "id"))
	if errors.Is(err, ErrMethodNotFound) {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages(err.Error()))
		return
	}
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to remove payment method"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) listTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txns, err := s.PaymentManager.List(ctx, auth.AccountID(ctx))
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	resp.WriteResponse(w, r, txns)
}

// Router will return the routes under payment API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(s.Auth.Middleware())
	r.Use(s.Auth.ClaimCheck())

	r.Post("/methods", s.setupPayment)
	r.Get("/methods", s.listMethods)
	r.Delete("/methods/{id}", s.detachMethod)
	r.Get("/transactions", s.listTransactions)

	return r
}
