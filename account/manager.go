package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ManagerOptions contains the dependencies of the account Manager
type ManagerOptions struct {
	StripeClient *client.API
	DB           *gorm.DB
	Logger       *zap.Logger
}

// Manager handles the database operations relating to Accounts
type Manager struct {
	ManagerOptions
}

// NewManager returns a new Manager for accounts
func NewManager(option ManagerOptions) (*Manager, error) {
	if option.StripeClient == nil {
		return nil, fmt.Errorf("nil StripeClient is invalid")
	}
	if option.DB == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if err := option.DB.AutoMigrate(&Account{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initilize account.Manager")
	}
	return &Manager{
		ManagerOptions: option,
	}, nil
}

// NewAccountOptions describes a new account
type NewAccountOptions struct {
	Email    string
	FullName string
}

// NewAccount will create a new customer profile in Stripe and the account in the database
func (m *Manager) NewAccount(ctx context.Context, opt NewAccountOptions) (*Account, error) {
	if opt.Email == "" {
		return nil, fmt.Errorf("NewAccountOptions.Email is required")
	}
	params := &stripe.CustomerParams{
		Params: stripe.Params{
			Context: ctx,
		},
		Email: stripe.String(opt.Email),
	}
	if opt.FullName != "" {
		params.Name = stripe.String(opt.FullName)
	}

	c, err := m.StripeClient.Customers.New(params)
	if err != nil {
		m.Logger.Error("Stripe returned error",
			zap.Error(err),
		)
		return nil, extErrors.Wrap(err, "Cannot create a new Stripe customer")
	}

	acct := &Account{
		ID:               uuid.New().String(),
		Email:            opt.Email,
		FullName:         opt.FullName,
		StripeCustomerID: c.ID,
	}

	result := m.DB.WithContext(ctx).Create(acct)
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot create a new Account")
	}

	return acct, nil
}

// GetByID will try to return the account in the database by id
func (m *Manager) GetByID(ctx context.Context, id string) (*Account, error) {
	var acct Account

	result := m.DB.WithContext(ctx).First(&acct, "id = ?", id)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get account by id")
	}

	return &acct, nil
}

// GetByEmail will try to return the account in the database by email address
func (m *Manager) GetByEmail(ctx context.Context, email string) (*Account, error) {
	var acct Account

	result := m.DB.WithContext(ctx).First(&acct, "email = ?", email)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get account by email")
	}

	return &acct, nil
}

// Profile holds the editable fields of an Account. Nil fields are left untouched.
type Profile struct {
	FullName        *string
	FuneralHomeName *string
}

// UpdateProfile changes the display fields of an account and returns the new state
func (m *Manager) UpdateProfile(ctx context.Context, id string, p Profile) (*Account, error) {
	updates := make(map[string]interface{})
	if p.FullName != nil {
		updates["full_name"] = *p.FullName
	}
	if p.FuneralHomeName != nil {
		updates["funeral_home_name"] = *p.FuneralHomeName
	}
	if len(updates) > 0 {
		result := m.DB.WithContext(ctx).Model(&Account{}).Where("id = ?", id).Updates(updates)
		if result.Error != nil {
			m.Logger.Error("Database returned error",
				zap.Error(result.Error),
			)
			return nil, extErrors.Wrap(result.Error, "Cannot update account profile")
		}
	}
	return m.GetByID(ctx, id)
}
