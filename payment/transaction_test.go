package payment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v72"
)

func TestQuote(t *testing.T) {
	tests := []struct {
		amount string
		rate   string
		tax    string
		total  string
	}{
		{"100.00", "0.15", "15", "115"},
		{"49.99", "0.15", "7.5", "57.49"},
		{"10", "0", "0", "10"},
		{"0.01", "0.15", "0", "0.01"},
	}
	for _, tt := range tests {
		tax, total := Quote(decimal.RequireFromString(tt.amount), decimal.RequireFromString(tt.rate))
		assert.True(t, decimal.RequireFromString(tt.tax).Equal(tax), "tax of %s: %s", tt.amount, tax)
		assert.True(t, decimal.RequireFromString(tt.total).Equal(total), "total of %s: %s", tt.amount, total)
	}
}

func TestToCents(t *testing.T) {
	assert.Equal(t, int64(5749), ToCents(decimal.RequireFromString("57.49")))
	assert.Equal(t, int64(100), ToCents(decimal.NewFromInt(1)))
	assert.Equal(t, int64(13), ToCents(decimal.RequireFromString("0.125")))
}

func TestStatusFromIntent(t *testing.T) {
	assert.Equal(t, StatusCompleted, statusFromIntent(stripe.PaymentIntentStatusSucceeded))
	assert.Equal(t, StatusPending, statusFromIntent(stripe.PaymentIntentStatusProcessing))
	assert.Equal(t, StatusPending, statusFromIntent(stripe.PaymentIntentStatusRequiresAction))
	assert.Equal(t, StatusFailed, statusFromIntent(stripe.PaymentIntentStatusRequiresPaymentMethod))
	assert.Equal(t, StatusFailed, statusFromIntent(stripe.PaymentIntentStatusCanceled))
}

func TestSucceeded(t *testing.T) {
	var nilTxn *Transaction
	assert.False(t, nilTxn.Succeeded())
	assert.True(t, (&Transaction{Status: StatusCompleted}).Succeeded())
	assert.False(t, (&Transaction{Status: StatusPending}).Succeeded())
}

func TestChargeOptionsValidate(t *testing.T) {
	opt := ChargeOptions{
		AccountID:       "acct",
		CustomerID:      "cus_1",
		PaymentMethodID: "pm_1",
		Amount:          decimal.NewFromInt(10),
	}
	require.NoError(t, opt.validate())

	zero := opt
	zero.Amount = decimal.Zero
	assert.Error(t, zero.validate())

	noMethod := opt
	noMethod.PaymentMethodID = ""
	assert.Error(t, noMethod.validate())
}
