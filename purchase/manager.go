package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/myupstage/visitationbook-backend/catalog"
	"github.com/myupstage/visitationbook-backend/document"
	"github.com/myupstage/visitationbook-backend/entitlement"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LambdaUpdateFunc is used when transaction is required for update. Return value determines if the Repository should commit the changes.
// Note that current and desired may be nil if no Purchase with given id was found, and must return false if that is the case.
// A non-nil error aborts the transaction and is returned by LambdaUpdate.
type LambdaUpdateFunc func(current *Purchase, desired *Purchase) (shouldSave bool, err error)

// Repository is the storage the Machine needs
type Repository interface {
	Create(ctx context.Context, p *Purchase) error
	// CreateFunded consumes one book of category from p.Funding.EntitlementID and creates p in the same transaction
	CreateFunded(ctx context.Context, p *Purchase, category catalog.Category, now time.Time) error
	Get(ctx context.Context, id string) (*Purchase, error)
	List(ctx context.Context, accountID string) ([]Purchase, error)
	LambdaUpdate(ctx context.Context, id string, lambda LambdaUpdateFunc) (*Purchase, error)
	SetDocument(ctx context.Context, id string, kind document.Kind, ref string) error
	IncrementVisit(ctx context.Context, id string) (int64, error)
}

// Manager handles the database operations relating to Purchases
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ Repository = &Manager{}

// NewManager returns a new Manager for purchases
func NewManager(logger *zap.Logger, db *gorm.DB) (*Manager, error) {
	if err := db.AutoMigrate(&Purchase{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initilize purchase.Manager")
	}
	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

// Create persists an unfunded or directly paid purchase
func (m *Manager) Create(ctx context.Context, p *Purchase) error {
	if p.Funding.Kind == FundingEntitlement {
		return fmt.Errorf("entitlement funded purchase must be created with CreateFunded")
	}
	result := m.db.WithContext(ctx).Create(p)
	if result.Error != nil {
		m.logger.Error("Unable to create new purchase in database",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot create purchase")
	}
	return nil
}

// CreateFunded creates p only if its entitlement can authorize one more book of category.
// Returns ErrEntitlementExhausted or ErrNotFound and persists nothing otherwise.
func (m *Manager) CreateFunded(ctx context.Context, p *Purchase, category catalog.Category, now time.Time) error {
	if p.Funding.Kind != FundingEntitlement || p.Funding.EntitlementID == nil {
		return fmt.Errorf("purchase is not entitlement funded")
	}
	logger := m.logger.With(
		zap.String("AccountID", p.AccountID),
		zap.String("EntitlementID", *p.Funding.EntitlementID),
	)
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := entitlement.Consume(tx, *p.Funding.EntitlementID, p.AccountID, category, now)
		if errors.Is(err, entitlement.ErrNotFound) {
			return extErrors.Wrap(ErrNotFound, "Cannot find entitlement")
		}
		if err != nil {
			logger.Error("Database returned error",
				zap.Error(err),
			)
			return extErrors.Wrap(err, "Cannot consume entitlement")
		}
		if !ok {
			return ErrEntitlementExhausted
		}
		if result := tx.Create(p); result.Error != nil {
			logger.Error("Unable to create new purchase in database",
				zap.Error(result.Error),
			)
			return extErrors.Wrap(result.Error, "Cannot create purchase")
		}
		return nil
	})
}

// Get returns the purchase or nil if it does not exist
func (m *Manager) Get(ctx context.Context, id string) (*Purchase, error) {
	var p Purchase

	result := m.db.WithContext(ctx).First(&p, "id = ?", id)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get purchase by id")
	}

	return &p, nil
}

// List returns the purchases of an account, newest first
func (m *Manager) List(ctx context.Context, accountID string) ([]Purchase, error) {
	results := make([]Purchase, 0, 1)
	result := m.db.WithContext(ctx).
		Order("created_at desc").
		Find(&results, "account_id = ?", accountID)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return results, nil
}

// LambdaUpdate will perform a transactional update based on the lambda function. If the lambda signals shouldSave AND update was successful, it will return the new state.
// The selected Purchase will be locked with FOR UPDATE
func (m *Manager) LambdaUpdate(ctx context.Context, id string, lambda LambdaUpdateFunc) (*Purchase, error) {
	var desired Purchase
	var shouldReturn bool
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current Purchase
		lookupRes := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&current, "id = ?", id)
		if lookupRes.Error == nil {
			desired = current
			save, err := lambda(&current, &desired)
			if err != nil {
				return err
			}
			if save {
				if saveRes := tx.Save(&desired); saveRes.Error != nil {
					return saveRes.Error
				}
				shouldReturn = true
			}
			return nil
		} else if errors.Is(lookupRes.Error, gorm.ErrRecordNotFound) {
			_, err := lambda(nil, nil)
			return err
		}
		return lookupRes.Error
	})
	if err != nil {
		// transaction failed, return nil new state
		return nil, err
	}
	if !shouldReturn {
		// shouldSave == false, return nil new state
		return nil, nil
	}
	// transaction succeed and shouldSave == true, return new state
	return &desired, nil
}

func documentColumn(kind document.Kind) (string, error) {
	switch kind {
	case document.KindMain:
		return "document", nil
	case document.KindNote:
		return "note_document", nil
	}
	return "", fmt.Errorf("unknown document kind %s", kind)
}

// SetDocument stores ref as the current document of the given kind. An empty ref clears it.
func (m *Manager) SetDocument(ctx context.Context, id string, kind document.Kind, ref string) error {
	column, err := documentColumn(kind)
	if err != nil {
		return err
	}
	result := m.db.WithContext(ctx).Model(&Purchase{}).
		Where("id = ?", id).
		UpdateColumn(column, ref)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.String("PurchaseID", id),
			zap.String("Kind", string(kind)),
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot set purchase document")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementVisit adds one to the visit counter without touching any other column
func (m *Manager) IncrementVisit(ctx context.Context, id string) (int64, error) {
	var count int64
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Purchase{}).
			Where("id = ?", id).
			UpdateColumn("visit_count", gorm.Expr("visit_count + ?", 1))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Model(&Purchase{}).Select("visit_count").Where("id = ?", id).Scan(&count).Error
	})
	if errors.Is(err, ErrNotFound) {
		return 0, err
	}
	if err != nil {
		m.logger.Error("Database returned error",
			zap.String("PurchaseID", id),
			zap.Error(err),
		)
		return 0, extErrors.Wrap(err, "Cannot increment purchase visit count")
	}
	return count, nil
}
