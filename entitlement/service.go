package entitlement

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/myupstage/visitationbook-backend/auth"
	"github.com/myupstage/visitationbook-backend/payment"
	resp "github.com/myupstage/visitationbook-backend/response"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	Auth               *auth.Auth
	EntitlementManager *Manager
	Logger             *zap.Logger
}

// Service is the plans and entitlements API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the entitlement API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.Auth == nil {
		return nil, fmt.Errorf("nil Auth is invalid")
	}
	if option.EntitlementManager == nil {
		return nil, fmt.Errorf("nil EntitlementManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

// SubscriptionSetupRequest purchases a plan
type SubscriptionSetupRequest struct {
	PlanID          string `json:"planId" validate:"required"`
	PaymentMethodID string `json:"paymentMethodId"`
	AutoRenew       bool   `json:"autoRenew"`
}

// SubscriptionResponse is returned after a subscription attempt
type SubscriptionResponse struct {
	Entitlement *Entitlement         `json:"entitlement"`
	Transaction *payment.Transaction `json:"transaction"`
}

func (s *Service) listPlans(w http.ResponseWriter, r *http.Request) {
	resp.WriteResponse(w, r, s.EntitlementManager.ListDefinedPlans())
}

func (s *Service) listEntitlements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := s.EntitlementManager.List(ctx, auth.AccountID(ctx))
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	resp.WriteResponse(w, r, list)
}

func (s *Service) subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := auth.AccountID(ctx)
	logger := s.Logger.With(zap.String("AccountID", accountID))

	var req SubscriptionSetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrValidation(err))
		return
	}

	e, txn, err := s.EntitlementManager.Subscribe(ctx, SubscribeOptions{
		AccountID:       accountID,
		PlanID:          req.PlanID,
		PaymentMethodID: req.PaymentMethodID,
		AutoRenew:       req.AutoRenew,
	})
	switch {
	case errors.Is(err, ErrUnknownPlan):
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find plan with specific ID"))
		return
	case errors.Is(err, ErrAlreadySubscribed):
		resp.WriteError(w, r, resp.ErrConflict().AddMessages(err.Error()))
		return
	case errors.Is(err, payment.ErrCardDeclined):
		resp.WriteError(w, r, resp.ErrPaymentDeclined(txn))
		return
	case err != nil:
		logger.Error("Unable to setup subscription",
			zap.String("PlanID", req.PlanID),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to setup subscription"))
		return
	}

	status := http.StatusCreated
	if e == nil {
		// payment still pending
		status = http.StatusAccepted
	}
	resp.WriteResponseWithStatus(w, r, status, SubscriptionResponse{
		Entitlement: e,
		Transaction: txn,
	})
}

// Router will return the routes under entitlement API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/plans", s.listPlans)

	r.Group(func(r chi.Router) {
		r.Use(s.Auth.Middleware())
		r.Use(s.Auth.ClaimCheck())
		r.Get("/entitlements", s.listEntitlements)
		r.Post("/entitlements", s.subscribe)
	})

	return r
}
