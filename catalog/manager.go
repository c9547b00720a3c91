package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Manager handles the database operations relating to Books
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager returns a new Manager for books
func NewManager(logger *zap.Logger, db *gorm.DB) (*Manager, error) {
	if err := db.AutoMigrate(&Book{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initilize catalog.Manager")
	}
	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

// Create adds a book to the catalog
func (m *Manager) Create(ctx context.Context, b *Book) error {
	if !b.Category.Valid() {
		return fmt.Errorf("Invalid category \"%s\"", b.Category)
	}
	if b.Price.IsNegative() {
		return fmt.Errorf("Price cannot be negative")
	}
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	result := m.db.WithContext(ctx).Create(b)
	if result.Error != nil {
		m.logger.Error("Unable to create new book in database",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot create book")
	}
	return nil
}

// GetBook returns the book by id or nil if it does not exist
func (m *Manager) GetBook(ctx context.Context, id string) (*Book, error) {
	var b Book

	result := m.db.WithContext(ctx).First(&b, "id = ?", id)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get book by id")
	}

	return &b, nil
}

// List returns the catalog ordered by title
func (m *Manager) List(ctx context.Context, activeOnly bool) ([]Book, error) {
	results := make([]Book, 0, 4)
	baseQuery := m.db.WithContext(ctx).Order("title asc")
	if activeOnly {
		baseQuery = baseQuery.Where("active = ?", true)
	}
	result := baseQuery.Find(&results)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return results, nil
}
