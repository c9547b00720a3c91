package account

import "time"

// Account is a funeral home or individual buying books
type Account struct {
	ID               string    `json:"id" gorm:"primaryKey"`
	Email            string    `json:"email" gorm:"uniqueIndex;not null"`
	FullName         string    `json:"fullName"`
	FuneralHomeName  string    `json:"funeralHomeName"`
	StripeCustomerID string    `json:"-" gorm:"index"` // Corresponds to Stripe's customer ID
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// DisplayName is how the account signs notes: the full name, or the email when no name was given
func (a *Account) DisplayName() string {
	if a == nil {
		return ""
	}
	if a.FullName != "" {
		return a.FullName
	}
	return a.Email
}
