package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/myupstage/visitationbook-backend/account"
	"github.com/myupstage/visitationbook-backend/catalog"
	"github.com/myupstage/visitationbook-backend/payment"

	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Charger takes a one-off payment
type Charger interface {
	Charge(ctx context.Context, opt payment.ChargeOptions) (*payment.Transaction, error)
}

// AccountGetter returns an account or nil
type AccountGetter interface {
	GetByID(ctx context.Context, id string) (*account.Account, error)
}

// ManagerOptions contains the dependencies of the entitlement Manager
type ManagerOptions struct {
	DB             *gorm.DB
	Logger         *zap.Logger
	Payments       Charger
	Accounts       AccountGetter
	PathToPlanJSON string
	Clock          func() time.Time
}

// Manager is the entitlement ledger
type Manager struct {
	ManagerOptions
	planArray      []Plan
	planIDIndexMap map[string]int
}

// NewManager returns a new ledger with the plans defined in PathToPlanJSON
func NewManager(option ManagerOptions) (*Manager, error) {
	if option.DB == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if option.Payments == nil {
		return nil, fmt.Errorf("nil Payments is invalid")
	}
	if option.Accounts == nil {
		return nil, fmt.Errorf("nil Accounts is invalid")
	}
	if len(option.PathToPlanJSON) == 0 {
		return nil, fmt.Errorf("empty PathToPlanJSON is invalid")
	}
	if option.Clock == nil {
		option.Clock = time.Now
	}
	if err := option.DB.AutoMigrate(&Entitlement{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initilize entitlement.Manager")
	}

	plans, err := loadPlansFromFile(option.PathToPlanJSON)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot populate defined Plans")
	}
	planMap := make(map[string]int)
	for index, p := range plans {
		planMap[p.ID] = index + 1
	}

	return &Manager{
		ManagerOptions: option,
		planIDIndexMap: planMap,
		planArray:      plans,
	}, nil
}

// ListDefinedPlans returns the plans that are still sold
func (m *Manager) ListDefinedPlans() []Plan {
	plans := make([]Plan, 0, len(m.planArray))
	for _, p := range m.planArray {
		if !p.Retired {
			plans = append(plans, p)
		}
	}
	return plans
}

// GetDefinedPlanByID returns the plan, retired or not
func (m *Manager) GetDefinedPlanByID(planID string) (Plan, bool) {
	index := m.planIDIndexMap[planID]
	if index == 0 {
		return Plan{}, false
	}
	return m.planArray[index-1], true
}

// Get returns the entitlement or nil
func (m *Manager) Get(ctx context.Context, id string) (*Entitlement, error) {
	var e Entitlement
	result := m.DB.WithContext(ctx).First(&e, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get entitlement by id")
	}
	return &e, nil
}

// List returns every entitlement of the account, newest first
func (m *Manager) List(ctx context.Context, accountID string) ([]Entitlement, error) {
	results := make([]Entitlement, 0, 1)
	result := m.DB.WithContext(ctx).
		Order("created_at desc").
		Find(&results, "account_id = ?", accountID)
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return results, nil
}

// Increment counts one book against the entitlement if it can authorize one.
// Returns false without any change otherwise.
func (m *Manager) Increment(ctx context.Context, id string) (bool, error) {
	result := m.DB.WithContext(ctx).Model(&Entitlement{}).
		Where("id = ?", id).
		Where("active = ? AND ends_at > ? AND books_created < max_books", true, m.Clock()).
		UpdateColumn("books_created", gorm.Expr("books_created + ?", 1))
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.String("EntitlementID", id),
			zap.Error(result.Error),
		)
		return false, extErrors.Wrap(result.Error, "Cannot increment entitlement")
	}
	return result.RowsAffected == 1, nil
}

// ActiveFor returns the valid entitlement of the account expiring first that covers category, or nil
func (m *Manager) ActiveFor(ctx context.Context, accountID string, category catalog.Category) (*Entitlement, error) {
	now := m.Clock()
	candidates := make([]Entitlement, 0, 1)
	result := m.DB.WithContext(ctx).
		Where("account_id = ?", accountID).
		Where("active = ? AND ends_at > ? AND books_created < max_books", true, now).
		Order("ends_at asc").
		Find(&candidates)
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.String("AccountID", accountID),
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot look up active entitlement")
	}
	for i := range candidates {
		e := &candidates[i]
		if CanCreate(e, now) && e.Category.Covers(category) {
			return e, nil
		}
	}
	return nil, nil
}

// GrantOptions describes a new entitlement
type GrantOptions struct {
	AccountID     string
	PlanID        string
	TransactionID *string
	AutoRenew     bool
}

// Grant creates an active entitlement starting now
func (m *Manager) Grant(ctx context.Context, opt GrantOptions) (*Entitlement, error) {
	if opt.AccountID == "" {
		return nil, fmt.Errorf("GrantOptions.AccountID is required")
	}
	plan, ok := m.GetDefinedPlanByID(opt.PlanID)
	if !ok {
		return nil, ErrUnknownPlan
	}
	now := m.Clock()
	e := &Entitlement{
		ID:            uuid.New().String(),
		AccountID:     opt.AccountID,
		PlanID:        plan.ID,
		Category:      plan.Category,
		MaxBooks:      plan.MaxBooks,
		StartsAt:      now,
		EndsAt:        endFor(plan, now),
		Active:        true,
		AutoRenew:     opt.AutoRenew,
		TransactionID: opt.TransactionID,
	}
	result := m.DB.WithContext(ctx).Create(e)
	if result.Error != nil {
		m.Logger.Error("Unable to create new entitlement in database",
			zap.String("AccountID", opt.AccountID),
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot create entitlement")
	}
	return e, nil
}

// SubscribeOptions describes a paid subscription request
type SubscribeOptions struct {
	AccountID       string
	PlanID          string
	PaymentMethodID string
	AutoRenew       bool
}

// Subscribe charges the plan price and grants the entitlement once the payment completed.
// The transaction is returned even when the charge did not complete.
func (m *Manager) Subscribe(ctx context.Context, opt SubscribeOptions) (*Entitlement, *payment.Transaction, error) {
	logger := m.Logger.With(
		zap.String("AccountID", opt.AccountID),
		zap.String("PlanID", opt.PlanID),
	)

	plan, ok := m.GetDefinedPlanByID(opt.PlanID)
	if !ok || plan.Retired {
		return nil, nil, ErrUnknownPlan
	}

	existing, err := m.ActiveFor(ctx, opt.AccountID, plan.Category)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil && existing.Category.Covers(plan.Category) {
		return nil, nil, ErrAlreadySubscribed
	}

	acct, err := m.Accounts.GetByID(ctx, opt.AccountID)
	if err != nil {
		return nil, nil, err
	}
	if acct == nil {
		return nil, nil, fmt.Errorf("Account %s does not exist", opt.AccountID)
	}

	if plan.Price.IsZero() {
		e, err := m.Grant(ctx, GrantOptions{
			AccountID: acct.ID,
			PlanID:    plan.ID,
			AutoRenew: opt.AutoRenew,
		})
		return e, nil, err
	}

	txn, err := m.Payments.Charge(ctx, payment.ChargeOptions{
		AccountID:       acct.ID,
		CustomerID:      acct.StripeCustomerID,
		PaymentMethodID: opt.PaymentMethodID,
		Amount:          plan.Price,
		Description:     plan.Name,
	})
	if err != nil {
		logger.Info("Subscription payment did not go through",
			zap.Error(err),
		)
		return nil, txn, err
	}
	if !txn.Succeeded() {
		return nil, txn, nil
	}

	e, err := m.Grant(ctx, GrantOptions{
		AccountID:     acct.ID,
		PlanID:        plan.ID,
		TransactionID: &txn.ID,
		AutoRenew:     opt.AutoRenew,
	})
	if err != nil {
		logger.Error("Payment completed but entitlement could not be granted",
			zap.String("TransactionID", txn.ID),
			zap.Error(err),
		)
		return nil, txn, err
	}
	return e, txn, nil
}
