package entitlement

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"regexp"
	"strconv"
	"strings"

	"github.com/myupstage/visitationbook-backend/catalog"
	"github.com/myupstage/visitationbook-backend/payment"

	extErrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"go.uber.org/zap"
)

// loadPlansFromFile will read from the plan JSON file to define what plans are available for purchase.
// StripePriceID will be populated via EnsurePrice().
// Note, if you change any of these:
// Plan.Name
// Plan.Category
// Plan.MaxBooks
// Plan.DurationMonths
// Plan.Price
// Plan.Currency
// Then a new Product and its Price will be created on Stripe.
// Entitlements already granted keep the quota they were granted with.
// If you want to stop selling a Plan, mark it as Retired instead of removing it
func loadPlansFromFile(filename string) ([]Plan, error) {
	jsonBytes, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot open plans JSON file")
	}
	plans := make([]Plan, 0, 1)
	if err := json.Unmarshal(jsonBytes, &plans); err != nil {
		return nil, extErrors.Wrap(err, "Invalid plan JSON file")
	}
	seen := make(map[string]bool)
	for i := range plans {
		p := &plans[i]
		if err := p.validate(); err != nil {
			return nil, extErrors.Wrapf(err, "Invalid plan \"%s\"", p.ID)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("Duplicated plan ID \"%s\"", p.ID)
		}
		seen[p.ID] = true
	}
	return plans, nil
}

// LoadPlans reads and validates the plans defined in filename, retired plans included
func LoadPlans(filename string) ([]Plan, error) {
	return loadPlansFromFile(filename)
}

var lookupKeyRegex = regexp.MustCompile("[^a-zA-Z0-9]+")

// Plan describes a subscription plan for funeral homes. This corresponds to Stripe's "Product" with a single "Price"
type Plan struct {
	ID             string           `json:"id"`             // Stable identifier referenced by Entitlement.PlanID
	Name           string           `json:"name"`           // Represent the name shown to the customer and on Stripe
	Description    string           `json:"description"`    // Shown to the customer
	Category       catalog.Category `json:"category"`       // Which books the plan covers
	MaxBooks       int              `json:"maxBooks"`       // How many purchases may be created under one grant
	DurationMonths int              `json:"durationMonths"` // How long a grant lasts
	Price          decimal.Decimal  `json:"price"`          // Before tax
	Currency       string           `json:"currency"`       // The ISO currency code (e.g. usd)
	StripePriceID  string           `json:"stripePriceId"`  // Populated by EnsurePrice
	Retired        bool             `json:"retired"`        // Flag if the Plan is no longer sold (Archived on Stripe)
}

func (p *Plan) validate() error {
	if p.ID == "" {
		return fmt.Errorf("Plan.ID is required")
	}
	if p.Name == "" {
		return fmt.Errorf("Plan.Name is required")
	}
	if !p.Category.Valid() {
		return fmt.Errorf("Plan.Category \"%s\" is invalid", p.Category)
	}
	if p.MaxBooks <= 0 {
		return fmt.Errorf("Plan.MaxBooks must be positive")
	}
	if p.DurationMonths <= 0 {
		return fmt.Errorf("Plan.DurationMonths must be positive")
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("Plan.Price cannot be negative")
	}
	if p.Currency == "" {
		p.Currency = string(stripe.CurrencyUSD)
	}
	return nil
}

// LookupKey will generate a unique LookupKey on stripe to identify the Price of the Plan
func (p *Plan) LookupKey() string {
	planName := lookupKeyRegex.ReplaceAllString(p.Name, "-")
	return strings.ToLower(fmt.Sprintf("%s_%s_%d_%dmo_%s_%s",
		planName, p.Category, p.MaxBooks, p.DurationMonths, p.Price.StringFixed(2), p.Currency))
}

// EnsurePrice will ensure that the corresponding Product and Price exist on Stripe, and it will populate StripePriceID.
func (p *Plan) EnsurePrice(ctx context.Context, s *client.API, logger *zap.Logger) error {
	logger = logger.With(zap.String("PlanID", p.ID))

	lookupParams := &stripe.PriceListParams{
		ListParams: stripe.ListParams{
			Context: ctx,
		},
		LookupKeys: []*string{stripe.String(p.LookupKey())},
	}
	pricesIter := s.Prices.List(lookupParams)
	for pricesIter.Next() {
		price := pricesIter.Price()
		p.StripePriceID = price.ID

		logger.Info("Found Price, synchronizing Retired status",
			zap.String("PriceID", price.ID),
		)
		// synchronize retired/archived status on Stripe
		if _, err := s.Products.Update(price.Product.ID, &stripe.ProductParams{
			Params: stripe.Params{
				Context: ctx,
			},
			Active: stripe.Bool(!p.Retired),
		}); err != nil {
			return extErrors.Wrap(err, "Cannot synchronize Plan Retired/Product Archived status on Stripe")
		}
		return nil
	}
	if pricesIter.Err() != nil {
		return extErrors.Wrap(pricesIter.Err(), "Cannot ensure Plan existence on Stripe")
	}

	logger.Info("Plan does not exist, creating...")
	prodParams := &stripe.ProductParams{
		Params: stripe.Params{
			Context: ctx,
			Metadata: map[string]string{
				"PlanID":         p.ID,
				"Category":       string(p.Category),
				"MaxBooks":       strconv.Itoa(p.MaxBooks),
				"DurationMonths": strconv.Itoa(p.DurationMonths),
			},
		},
		Active:      stripe.Bool(!p.Retired),
		Name:        stripe.String(p.Name),
		Description: stripe.String(p.Description),
	}
	stripeProduct, err := s.Products.New(prodParams)
	if err != nil {
		return extErrors.Wrap(err, "Cannot create Plan as Product on Stripe")
	}

	priceParams := &stripe.PriceParams{
		Params: stripe.Params{
			Context: ctx,
		},
		Active:     stripe.Bool(true),
		Nickname:   stripe.String(p.Name),
		Currency:   stripe.String(p.Currency),
		UnitAmount: stripe.Int64(payment.ToCents(p.Price)),
		Product:    stripe.String(stripeProduct.ID),
		LookupKey:  stripe.String(p.LookupKey()),
	}
	price, err := s.Prices.New(priceParams)
	if err != nil {
		return extErrors.Wrap(err, "Cannot create Plan as Price on Stripe")
	}
	p.StripePriceID = price.ID
	return nil
}
