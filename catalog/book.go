package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category restricts what kind of product a plan or book covers
type Category string

// Defining the book categories
const (
	CategoryVisitation Category = "visitation"
	CategoryObituary   Category = "obituary"
	CategoryBoth       Category = "both"
)

// Valid returns true for the known categories
func (c Category) Valid() bool {
	switch c {
	case CategoryVisitation, CategoryObituary, CategoryBoth:
		return true
	}
	return false
}

// Covers reports whether a grant of category c may fund a product of category want.
// An empty want matches everything.
func (c Category) Covers(want Category) bool {
	if want == "" || c == want {
		return true
	}
	return c == CategoryBoth
}

// Book is a purchasable memorial book product
type Book struct {
	ID        string          `json:"id" gorm:"primaryKey"`
	Title     string          `json:"title" gorm:"not null"`
	Cover     string          `json:"cover"` // blob reference
	Price     decimal.Decimal `json:"price" gorm:"type:numeric(10,2);not null"`
	Category  Category        `json:"category" gorm:"not null;default:'visitation'"`
	TextColor string          `json:"textColor"`
	Active    bool            `json:"active" gorm:"not null;default:true"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
