package guest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/myupstage/visitationbook-backend/document"
	"github.com/myupstage/visitationbook-backend/purchase"
)

// Defining the errors of guest submissions
var (
	ErrNotFound         = errors.New("Guest entry not found")
	ErrCapabilityDenied = errors.New("Field is not allowed on this book")
	ErrUnknownPicture   = errors.New("Picture has not been uploaded")
)

// Entry is one condolence submission
type Entry struct {
	ID               string    `json:"id" gorm:"primaryKey"`
	PurchaseID       string    `json:"purchaseId" gorm:"index;not null"`
	Picture          string    `json:"picture"` // blob reference
	Name             string    `json:"name"`
	Address          string    `json:"address"`
	Email            string    `json:"email"`
	Notes            string    `json:"notes"`
	ThankYouDocument string    `json:"thankYouDocument"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Values are the fields a guest fills in
type Values struct {
	Picture string
	Name    string
	Address string
	Email   string
	Notes   string
}

func (v Values) trimmed() Values {
	return Values{
		Picture: strings.TrimSpace(v.Picture),
		Name:    strings.TrimSpace(v.Name),
		Address: strings.TrimSpace(v.Address),
		Email:   strings.TrimSpace(v.Email),
		Notes:   strings.TrimSpace(v.Notes),
	}
}

func (e *Entry) apply(v Values) {
	e.Picture = v.Picture
	e.Name = v.Name
	e.Address = v.Address
	e.Email = v.Email
	e.Notes = v.Notes
}

// Card is the entry as shown on the main document
func (e *Entry) Card() document.Guest {
	return document.Guest{
		Picture: e.Picture,
		Name:    e.Name,
		Address: e.Address,
		Email:   e.Email,
		Notes:   e.Notes,
	}
}

// CapabilityDeniedError names the first field the purchase does not allow
type CapabilityDeniedError struct {
	Field string
}

func (e *CapabilityDeniedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCapabilityDenied.Error(), e.Field)
}

// Is makes errors.Is(err, ErrCapabilityDenied) hold
func (e *CapabilityDeniedError) Is(target error) bool {
	return target == ErrCapabilityDenied
}

// Check rejects every supplied value whose capability is off.
// Fields are checked in the order picture, name, address, email, special_notes.
func Check(caps purchase.Capabilities, v Values) error {
	checks := []struct {
		field   string
		value   string
		allowed bool
	}{
		{"picture", v.Picture, caps.Picture},
		{"name", v.Name, caps.Name},
		{"address", v.Address, caps.Address},
		{"email", v.Email, caps.Email},
		{"special_notes", v.Notes, caps.SpecialNotes},
	}
	for _, c := range checks {
		if c.value != "" && !c.allowed {
			return &CapabilityDeniedError{Field: c.field}
		}
	}
	return nil
}
