package payment

import (
	"context"
	"errors"
	"fmt"

	extErrors "github.com/pkg/errors"
	"github.com/stripe/stripe-go/v72"
	"go.uber.org/zap"
)

// ErrMethodNotFound is returned when the payment method does not exist or belongs to another customer
var ErrMethodNotFound = errors.New("Payment method not found")

// Method is a card stored on the Stripe customer of an account
type Method struct {
	ID       string `json:"id"`
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth uint64 `json:"expMonth"`
	ExpYear  uint64 `json:"expYear"`
	Default  bool   `json:"default"`
}

func methodFrom(pm *stripe.PaymentMethod, defaultID string) Method {
	method := Method{
		ID:      pm.ID,
		Default: pm.ID == defaultID,
	}
	if pm.Card != nil {
		method.Brand = string(pm.Card.Brand)
		method.Last4 = pm.Card.Last4
		method.ExpMonth = pm.Card.ExpMonth
		method.ExpYear = pm.Card.ExpYear
	}
	return method
}

func isMissing(err error) bool {
	var stripeErr *stripe.Error
	return errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing
}

func (m *Manager) defaultMethod(ctx context.Context, customerID string) (string, error) {
	c, err := m.StripeClient.Customers.Get(customerID, &stripe.CustomerParams{
		Params: stripe.Params{
			Context: ctx,
		},
	})
	if err != nil {
		return "", err
	}
	if c.InvoiceSettings == nil || c.InvoiceSettings.DefaultPaymentMethod == nil {
		return "", nil
	}
	return c.InvoiceSettings.DefaultPaymentMethod.ID, nil
}

// ListMethods returns the cards attached to the customer, with the invoice default flagged
func (m *Manager) ListMethods(ctx context.Context, customerID string) ([]Method, error) {
	if customerID == "" {
		return nil, fmt.Errorf("customerID is required")
	}
	logger := m.Logger.With(zap.String("CustomerID", customerID))

	defaultID, err := m.defaultMethod(ctx, customerID)
	if err != nil {
		logger.Error("Unable to get customer from Stripe",
			zap.Error(err),
		)
		return nil, extErrors.Wrap(err, "Cannot get customer")
	}

	results := make([]Method, 0, 1)
	iter := m.StripeClient.PaymentMethods.List(&stripe.PaymentMethodListParams{
		ListParams: stripe.ListParams{
			Context: ctx,
		},
		Customer: stripe.String(customerID),
		Type:     stripe.String(string(stripe.PaymentMethodTypeCard)),
	})
	for iter.Next() {
		results = append(results, methodFrom(iter.PaymentMethod(), defaultID))
	}
	if err := iter.Err(); err != nil {
		logger.Error("Unable to list payment methods from Stripe",
			zap.Error(err),
		)
		return nil, extErrors.Wrap(err, "Cannot list payment methods")
	}
	return results, nil
}

// DetachMethod removes a card from the customer. Cards of other customers are reported as ErrMethodNotFound.
func (m *Manager) DetachMethod(ctx context.Context, customerID, paymentMethodID string) error {
	if customerID == "" {
		return fmt.Errorf("customerID is required")
	}
	logger := m.Logger.With(
		zap.String("CustomerID", customerID),
		zap.String("PaymentMethodID", paymentMethodID),
	)

	pm, err := m.StripeClient.PaymentMethods.Get(paymentMethodID, &stripe.PaymentMethodParams{
		Params: stripe.Params{
			Context: ctx,
		},
	})
	if isMissing(err) {
		return ErrMethodNotFound
	}
	if err != nil {
		logger.Error("Unable to get payment method from Stripe",
			zap.Error(err),
		)
		return extErrors.Wrap(err, "Cannot get payment method")
	}
	if pm.Customer == nil || pm.Customer.ID != customerID {
		return ErrMethodNotFound
	}

	if _, err := m.StripeClient.PaymentMethods.Detach(paymentMethodID, &stripe.PaymentMethodDetachParams{
		Params: stripe.Params{
			Context: ctx,
		},
	}); err != nil {
		logger.Error("Unable to detach payment method in Stripe",
			zap.Error(err),
		)
		return extErrors.Wrap(err, "Cannot detach payment method")
	}
	return nil
}
