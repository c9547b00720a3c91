package obituary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrForbidden is returned when an account edits an obituary it does not own
var ErrForbidden = errors.New("Obituary belongs to another account")

// Obituary is a published notice that a purchase may link to
type Obituary struct {
	ID           string     `json:"id" gorm:"primaryKey"`
	AccountID    string     `json:"accountId" gorm:"index;not null"`
	DeceasedName string     `json:"deceasedName" gorm:"not null"`
	Portrait     string     `json:"portrait"`
	DateOfBirth  *time.Time `json:"dateOfBirth"`
	DateOfDeath  *time.Time `json:"dateOfDeath"`
	Body         string     `json:"body"`
	VisitCount   int64      `json:"visitCount" gorm:"not null;default:0"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Manager handles the database operations relating to Obituaries
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager returns a new Manager for obituaries
func NewManager(logger *zap.Logger, db *gorm.DB) (*Manager, error) {
	if err := db.AutoMigrate(&Obituary{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initilize obituary.Manager")
	}
	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

// Create persists a new obituary
func (m *Manager) Create(ctx context.Context, o *Obituary) error {
	if o.AccountID == "" {
		return fmt.Errorf("Obituary.AccountID is required")
	}
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	o.VisitCount = 0
	result := m.db.WithContext(ctx).Create(o)
	if result.Error != nil {
		m.logger.Error("Unable to create new obituary in database",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot create obituary")
	}
	return nil
}

// GetByID returns the obituary or nil if it does not exist
func (m *Manager) GetByID(ctx context.Context, id string) (*Obituary, error) {
	var o Obituary

	result := m.db.WithContext(ctx).First(&o, "id = ?", id)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get obituary by id")
	}

	return &o, nil
}

// IncrementVisit counts a visit by requesterID. Visits by the owner are not counted.
// Returns nil when the obituary does not exist.
func (m *Manager) IncrementVisit(ctx context.Context, id, requesterID string) (*int64, error) {
	var count int64
	found := true
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o Obituary
		lookup := tx.Select("id", "account_id", "visit_count").First(&o, "id = ?", id)
		if errors.Is(lookup.Error, gorm.ErrRecordNotFound) {
			found = false
			return nil
		}
		if lookup.Error != nil {
			return lookup.Error
		}
		if requesterID != "" && requesterID == o.AccountID {
			count = o.VisitCount
			return nil
		}
		result := tx.Model(&Obituary{}).
			Where("id = ?", id).
			UpdateColumn("visit_count", gorm.Expr("visit_count + ?", 1))
		if result.Error != nil {
			return result.Error
		}
		return tx.Model(&Obituary{}).Select("visit_count").Where("id = ?", id).Scan(&count).Error
	})
	if err != nil {
		m.logger.Error("Database returned error",
			zap.String("ObituaryID", id),
			zap.Error(err),
		)
		return nil, extErrors.Wrap(err, "Cannot increment obituary visit count")
	}
	if !found {
		return nil, nil
	}
	return &count, nil
}

// Fields is a partial edit. Nil fields are left untouched; a non-nil zero time clears a date.
type Fields struct {
	DeceasedName *string
	Portrait     *string
	DateOfBirth  *time.Time
	DateOfDeath  *time.Time
	Body         *string
}

func clearable(t *time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	v := *t
	return &v
}

// Apply writes the set fields onto o
func (f Fields) Apply(o *Obituary) {
	if f.DeceasedName != nil {
		o.DeceasedName = *f.DeceasedName
	}
	if f.Portrait != nil {
		o.Portrait = *f.Portrait
	}
	if f.DateOfBirth != nil {
		o.DateOfBirth = clearable(f.DateOfBirth)
	}
	if f.DateOfDeath != nil {
		o.DateOfDeath = clearable(f.DateOfDeath)
	}
	if f.Body != nil {
		o.Body = *f.Body
	}
}

// Update applies f to the obituary of accountID under a row lock.
// Returns nil when the obituary does not exist, and ErrForbidden when another account owns it.
func (m *Manager) Update(ctx context.Context, id, accountID string, f Fields) (*Obituary, error) {
	var o Obituary
	found := true
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lookup := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&o, "id = ?", id)
		if errors.Is(lookup.Error, gorm.ErrRecordNotFound) {
			found = false
			return nil
		}
		if lookup.Error != nil {
			return lookup.Error
		}
		if o.AccountID != accountID {
			return ErrForbidden
		}
		f.Apply(&o)
		return tx.Save(&o).Error
	})
	if errors.Is(err, ErrForbidden) {
		return nil, err
	}
	if err != nil {
		m.logger.Error("Database returned error",
			zap.String("ObituaryID", id),
			zap.Error(err),
		)
		return nil, extErrors.Wrap(err, "Cannot update obituary")
	}
	if !found {
		return nil, nil
	}
	return &o, nil
}

// Delete removes the obituary of accountID. Purchases linking to it are unlinked by the foreign key.
// Returns false when the obituary does not exist, and ErrForbidden when another account owns it.
func (m *Manager) Delete(ctx context.Context, id, accountID string) (bool, error) {
	result := m.db.WithContext(ctx).Where("id = ? AND account_id = ?", id, accountID).Delete(&Obituary{})
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.String("ObituaryID", id),
			zap.Error(result.Error),
		)
		return false, extErrors.Wrap(result.Error, "Cannot delete obituary")
	}
	if result.RowsAffected == 1 {
		return true, nil
	}
	o, err := m.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if o != nil {
		return false, ErrForbidden
	}
	return false, nil
}
