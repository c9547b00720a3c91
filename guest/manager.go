package guest

import (
	"context"
	"errors"

	"github.com/myupstage/visitationbook-backend/document"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Repository is the storage of guest entries
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	Get(ctx context.Context, id string) (*Entry, error)
	Save(ctx context.Context, e *Entry) error
	SetThankYou(ctx context.Context, id, ref string) error
	ListByPurchase(ctx context.Context, purchaseID string) ([]Entry, error)
}

// CardSource lists the guest cards of a purchase for its main document
type CardSource struct {
	Repository Repository
}

// ListEntries returns the cards in submission order
func (c CardSource) ListEntries(ctx context.Context, purchaseID string) ([]document.Guest, error) {
	entries, err := c.Repository.ListByPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	cards := make([]document.Guest, 0, len(entries))
	for i := range entries {
		cards = append(cards, entries[i].Card())
	}
	return cards, nil
}

// Manager handles the database operations relating to guest entries
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ Repository = &Manager{}

// NewManager returns a new Manager for guest entries
func NewManager(logger *zap.Logger, db *gorm.DB) (*Manager, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initilize guest.Manager")
	}
	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

// Create persists a new entry
func (m *Manager) Create(ctx context.Context, e *Entry) error {
	result := m.db.WithContext(ctx).Create(e)
	if result.Error != nil {
		m.logger.Error("Unable to create new guest entry in database",
			zap.String("PurchaseID", e.PurchaseID),
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot create guest entry")
	}
	return nil
}

// Get returns the entry or nil if it does not exist
func (m *Manager) Get(ctx context.Context, id string) (*Entry, error) {
	var e Entry
	result := m.db.WithContext(ctx).First(&e, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get guest entry by id")
	}
	return &e, nil
}

// Save writes every field of an existing entry
func (m *Manager) Save(ctx context.Context, e *Entry) error {
	result := m.db.WithContext(ctx).Save(e)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.String("EntryID", e.ID),
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot save guest entry")
	}
	return nil
}

// SetThankYou stores the reference of the entry's personalized note
func (m *Manager) SetThankYou(ctx context.Context, id, ref string) error {
	result := m.db.WithContext(ctx).Model(&Entry{}).
		Where("id = ?", id).
		UpdateColumn("thank_you_document", ref)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.String("EntryID", id),
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot set thank you document")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByPurchase returns the entries of a purchase, oldest first
func (m *Manager) ListByPurchase(ctx context.Context, purchaseID string) ([]Entry, error) {
	results := make([]Entry, 0, 4)
	result := m.db.WithContext(ctx).
		Order("created_at asc").
		Find(&results, "purchase_id = ?", purchaseID)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.String("PurchaseID", purchaseID),
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return results, nil
}
