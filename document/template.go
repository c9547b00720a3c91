package document

import "strings"

// DefaultGuestName replaces [guest_name] when the guest did not give one
const DefaultGuestName = "Guest"

// Variables is the context for placeholder substitution in attending notes
type Variables struct {
	GuestName     string
	GuestAddress  string
	GuestEmail    string
	DeceasedName  string
	PurchaserName string
}

// Substitute replaces every literal occurrence of the known bracketed placeholders.
// Unknown placeholders are left as is. Replacement happens in a single pass, so values
// that themselves look like placeholders are not expanded again.
func Substitute(text string, v Variables) string {
	guestName := v.GuestName
	if guestName == "" {
		guestName = DefaultGuestName
	}
	return strings.NewReplacer(
		"[guest_name]", guestName,
		"[guest_address]", v.GuestAddress,
		"[guest_email]", v.GuestEmail,
		"[deceased_name]", v.DeceasedName,
		"[book_purchaser_name]", v.PurchaserName,
		"[your_name]", v.PurchaserName,
	).Replace(text)
}
