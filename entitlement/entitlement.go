package entitlement

import (
	"errors"
	"time"

	"github.com/myupstage/visitationbook-backend/catalog"

	"gorm.io/gorm"
)

// Defining the errors of the ledger
var (
	ErrNotFound          = errors.New("Entitlement not found")
	ErrAlreadySubscribed = errors.New("Account already holds a valid entitlement for this category")
	ErrUnknownPlan       = errors.New("Plan not found")
)

// Days per billed month of a grant
const daysPerMonth = 30

// Entitlement is a time-boxed grant to create purchases without paying for each one.
// MaxBooks and Category are copied from the Plan when granted.
type Entitlement struct {
	ID            string           `json:"id" gorm:"primaryKey"`
	AccountID     string           `json:"accountId" gorm:"index;not null"`
	PlanID        string           `json:"planId" gorm:"not null"`
	Category      catalog.Category `json:"category" gorm:"not null"`
	MaxBooks      int              `json:"maxBooks" gorm:"not null"`
	BooksCreated  int              `json:"booksCreated" gorm:"not null;default:0"`
	StartsAt      time.Time        `json:"startsAt" gorm:"not null"`
	EndsAt        time.Time        `json:"endsAt" gorm:"index;not null"`
	Active        bool             `json:"active" gorm:"not null"`
	AutoRenew     bool             `json:"autoRenew"`
	TransactionID *string          `json:"transactionId"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// IsValid is true when the grant is active, not expired and has quota left
func IsValid(e *Entitlement, now time.Time) bool {
	if e == nil {
		return false
	}
	return e.Active && now.Before(e.EndsAt) && e.BooksCreated < e.MaxBooks
}

// CanCreate reports whether one more book may be created under e
func CanCreate(e *Entitlement, now time.Time) bool {
	return IsValid(e, now) && e.BooksCreated < e.MaxBooks
}

// Remaining returns how many books can still be created, ignoring expiry
func (e *Entitlement) Remaining() int {
	if e.BooksCreated >= e.MaxBooks {
		return 0
	}
	return e.MaxBooks - e.BooksCreated
}

// endFor returns the expiry of a grant of plan p starting at start
func endFor(p Plan, start time.Time) time.Time {
	return start.AddDate(0, 0, daysPerMonth*p.DurationMonths)
}

// Consume counts one book of category against entitlement id of accountID inside tx.
// The check and the increment are one conditional statement, so concurrent callers cannot overshoot MaxBooks.
// Returns ErrNotFound when the account holds no such entitlement, and false when it cannot authorize
// another book of that category. An empty category is not filtered.
func Consume(tx *gorm.DB, id, accountID string, category catalog.Category, now time.Time) (bool, error) {
	stmt := tx.Model(&Entitlement{}).
		Where("id = ? AND account_id = ?", id, accountID).
		Where("active = ? AND ends_at > ? AND books_created < max_books", true, now)
	if category != "" {
		stmt = stmt.Where("category = ? OR category = ?", category, catalog.CategoryBoth)
	}
	result := stmt.UpdateColumn("books_created", gorm.Expr("books_created + ?", 1))
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 1 {
		return true, nil
	}

	var count int64
	if err := tx.Model(&Entitlement{}).
		Where("id = ? AND account_id = ?", id, accountID).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count == 0 {
		return false, ErrNotFound
	}
	return false, nil
}
