package purchase

import "errors"

// Defining the errors callers of the Machine may see
var (
	ErrNotFound             = errors.New("Purchase not found")
	ErrBookNotFound         = errors.New("Book not found")
	ErrForbidden            = errors.New("Purchase belongs to another account")
	ErrEntitlementExhausted = errors.New("Entitlement cannot authorize another book")
	ErrAlreadyPaid          = errors.New("Purchase is already paid")
	ErrPaymentFailed        = errors.New("Payment did not go through")
	ErrIncomplete           = errors.New("Purchase is not complete")
	ErrNoAttendingNote      = errors.New("Purchase has no attending note")
	ErrInvalidObituary      = errors.New("Invalid obituary ID")
	ErrNoRecipients         = errors.New("At least one recipient is required")
)
