package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/myupstage/visitationbook-backend/metrics"

	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrCardDeclined is returned together with the failed Transaction when the processor refuses the card
var ErrCardDeclined = errors.New("Card was declined")

// DefaultTaxRate is applied on top of every charged amount
var DefaultTaxRate = decimal.RequireFromString("0.15")

// ManagerOptions contains the dependencies of the payment Manager
type ManagerOptions struct {
	StripeClient *client.API
	DB           *gorm.DB
	Logger       *zap.Logger
	TaxRate      decimal.Decimal
	Currency     string
}

// Manager charges accounts through Stripe and keeps a record of every attempt
type Manager struct {
	ManagerOptions
}

// NewManager returns a new Manager for payments
func NewManager(option ManagerOptions) (*Manager, error) {
	if option.StripeClient == nil {
		return nil, fmt.Errorf("nil StripeClient is invalid")
	}
	if option.DB == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if option.TaxRate.IsZero() {
		option.TaxRate = DefaultTaxRate
	}
	if option.TaxRate.IsNegative() {
		return nil, fmt.Errorf("negative TaxRate is invalid")
	}
	if option.Currency == "" {
		option.Currency = string(stripe.CurrencyUSD)
	}
	if err := option.DB.AutoMigrate(&Transaction{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initilize payment.Manager")
	}
	return &Manager{
		ManagerOptions: option,
	}, nil
}

// ChargeOptions describes a one-off charge
type ChargeOptions struct {
	AccountID       string
	CustomerID      string // Stripe customer
	PaymentMethodID string // Stripe payment method
	Amount          decimal.Decimal
	Description     string
}

func (o ChargeOptions) validate() error {
	if o.AccountID == "" {
		return fmt.Errorf("ChargeOptions.AccountID is required")
	}
	if o.CustomerID == "" {
		return fmt.Errorf("ChargeOptions.CustomerID is required")
	}
	if o.PaymentMethodID == "" {
		return fmt.Errorf("ChargeOptions.PaymentMethodID is required")
	}
	if !o.Amount.IsPositive() {
		return fmt.Errorf("ChargeOptions.Amount must be positive")
	}
	return nil
}

// Charge confirms an off-session PaymentIntent for Amount plus tax.
// The returned Transaction is always persisted; a declined card returns it with ErrCardDeclined.
func (m *Manager) Charge(ctx context.Context, opt ChargeOptions) (*Transaction, error) {
	if err := opt.validate(); err != nil {
		return nil, err
	}
	logger := m.Logger.With(
		zap.String("AccountID", opt.AccountID),
		zap.String("PaymentMethodID", opt.PaymentMethodID),
	)

	tax, total := Quote(opt.Amount, m.TaxRate)
	txn := &Transaction{
		ID:              uuid.New().String(),
		AccountID:       opt.AccountID,
		PaymentMethodID: opt.PaymentMethodID,
		Description:     opt.Description,
		Amount:          opt.Amount,
		Tax:             tax,
		Total:           total,
		Currency:        m.Currency,
		Status:          StatusPending,
	}

	params := &stripe.PaymentIntentParams{
		Params: stripe.Params{
			Context: ctx,
		},
		Amount:        stripe.Int64(ToCents(total)),
		Currency:      stripe.String(m.Currency),
		Customer:      stripe.String(opt.CustomerID),
		PaymentMethod: stripe.String(opt.PaymentMethodID),
		OffSession:    stripe.Bool(true),
		Confirm:       stripe.Bool(true),
	}
	if opt.Description != "" {
		params.Description = stripe.String(opt.Description)
	}
	params.AddMetadata("transaction_id", txn.ID)

	var chargeErr error
	pi, err := m.StripeClient.PaymentIntents.New(params)
	if err != nil {
		stripeErr, ok := err.(*stripe.Error)
		if !ok || stripeErr.Type != stripe.ErrorTypeCard {
			logger.Error("Stripe returned error",
				zap.Error(err),
			)
			return nil, extErrors.Wrap(err, "Cannot create PaymentIntent")
		}
		txn.Status = StatusFailed
		txn.FailureReason = stripeErr.Msg
		chargeErr = ErrCardDeclined
	} else {
		txn.StripePaymentIntentID = pi.ID
		txn.Status = statusFromIntent(pi.Status)
	}

	result := m.DB.WithContext(ctx).Create(txn)
	if result.Error != nil {
		logger.Error("Database returned error",
			zap.String("TransactionID", txn.ID),
			zap.String("PaymentIntentID", txn.StripePaymentIntentID),
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot record transaction")
	}
	metrics.PaymentsTotal.WithLabelValues(string(txn.Status)).Inc()

	return txn, chargeErr
}

// AttachPaymentMethod attaches the payment method to the customer and makes it the default one
func (m *Manager) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	if customerID == "" {
		return fmt.Errorf("customerID is required")
	}
	if paymentMethodID == "" {
		return fmt.Errorf("paymentMethodID is required")
	}
	params := &stripe.PaymentMethodAttachParams{
		Params: stripe.Params{
			Context: ctx,
		},
		Customer: stripe.String(customerID),
	}
	pm, err := m.StripeClient.PaymentMethods.Attach(
		paymentMethodID,
		params,
	)
	if err != nil {
		return extErrors.Wrap(err, "Cannot attach payment method")
	}

	customerParams := &stripe.CustomerParams{
		Params: stripe.Params{
			Context: ctx,
		},
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(pm.ID),
		},
	}
	if _, err := m.StripeClient.Customers.Update(
		customerID,
		customerParams,
	); err != nil {
		return extErrors.Wrap(err, "Cannot set default payment method")
	}

	return nil
}

// GetByID returns the transaction or nil
func (m *Manager) GetByID(ctx context.Context, id string) (*Transaction, error) {
	var txn Transaction
	result := m.DB.WithContext(ctx).First(&txn, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get transaction by id")
	}
	return &txn, nil
}

// List returns the transactions of an account, newest first
func (m *Manager) List(ctx context.Context, accountID string) ([]Transaction, error) {
	results := make([]Transaction, 0, 1)
	result := m.DB.WithContext(ctx).
		Order("created_at desc").
		Find(&results, "account_id = ?", accountID)
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return results, nil
}
