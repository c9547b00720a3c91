package payment

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v72"
)

// Status is the outcome of a charge attempt
type Status string

// Defining the transaction statuses
const (
	StatusCompleted Status = "completed"
	StatusPending   Status = "pending"
	StatusFailed    Status = "failed"
)

// Transaction records one charge attempt
type Transaction struct {
	ID                    string          `json:"id" gorm:"primaryKey"`
	AccountID             string          `json:"accountId" gorm:"index;not null"`
	PaymentMethodID       string          `json:"paymentMethodId"`
	StripePaymentIntentID string          `json:"-" gorm:"index"`
	Description           string          `json:"description"`
	Amount                decimal.Decimal `json:"amount" gorm:"type:numeric(10,2);not null"`
	Tax                   decimal.Decimal `json:"tax" gorm:"type:numeric(10,2);not null"`
	Total                 decimal.Decimal `json:"total" gorm:"type:numeric(10,2);not null"`
	Currency              string          `json:"currency" gorm:"not null"`
	Status                Status          `json:"status" gorm:"index;not null"`
	FailureReason         string          `json:"failureReason,omitempty"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

// Succeeded is true once the processor confirmed the funds
func (t *Transaction) Succeeded() bool {
	return t != nil && t.Status == StatusCompleted
}

var hundred = decimal.NewFromInt(100)

// Quote returns the tax and the total for amount, rounded to cents
func Quote(amount, taxRate decimal.Decimal) (tax decimal.Decimal, total decimal.Decimal) {
	tax = amount.Mul(taxRate).Round(2)
	total = amount.Add(tax).Round(2)
	return
}

// ToCents converts a decimal amount to the smallest currency unit
func ToCents(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

func statusFromIntent(s stripe.PaymentIntentStatus) Status {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusCompleted
	case stripe.PaymentIntentStatusProcessing,
		stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresCapture:
		return StatusPending
	}
	return StatusFailed
}
