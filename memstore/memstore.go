// Package memstore keeps purchases, entitlements and guest entries in memory.
// It mirrors the semantics of the gorm managers and backs tests and local runs without PostgreSQL.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/myupstage/visitationbook-backend/catalog"
	"github.com/myupstage/visitationbook-backend/document"
	"github.com/myupstage/visitationbook-backend/entitlement"
	"github.com/myupstage/visitationbook-backend/guest"
	"github.com/myupstage/visitationbook-backend/purchase"
)

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func clonePurchase(p *purchase.Purchase) *purchase.Purchase {
	c := *p
	c.ObituaryID = cloneString(p.ObituaryID)
	c.DateOfBirth = cloneTime(p.DateOfBirth)
	c.DateOfDeath = cloneTime(p.DateOfDeath)
	c.Funding.EntitlementID = cloneString(p.Funding.EntitlementID)
	c.Funding.TransactionID = cloneString(p.Funding.TransactionID)
	return &c
}

// Entitlements is an in-memory entitlement ledger
type Entitlements struct {
	mu    sync.Mutex
	items map[string]*entitlement.Entitlement
	clock func() time.Time
}

// NewEntitlements returns an empty ledger using clock, or time.Now when nil
func NewEntitlements(clock func() time.Time) *Entitlements {
	if clock == nil {
		clock = time.Now
	}
	return &Entitlements{
		items: make(map[string]*entitlement.Entitlement),
		clock: clock,
	}
}

// Put stores a copy of e
func (l *Entitlements) Put(e entitlement.Entitlement) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.TransactionID = cloneString(e.TransactionID)
	l.items[e.ID] = &e
}

// Get returns a copy of the entitlement or nil
func (l *Entitlements) Get(ctx context.Context, id string) (*entitlement.Entitlement, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.items[id]
	if !ok {
		return nil, nil
	}
	c := *e
	return &c, nil
}

// ActiveFor returns the valid entitlement of the account expiring first that covers category, or nil
func (l *Entitlements) ActiveFor(ctx context.Context, accountID string, category catalog.Category) (*entitlement.Entitlement, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	var found *entitlement.Entitlement
	for _, e := range l.items {
		if e.AccountID != accountID || !entitlement.CanCreate(e, now) || !e.Category.Covers(category) {
			continue
		}
		if found == nil || e.EndsAt.Before(found.EndsAt) {
			found = e
		}
	}
	if found == nil {
		return nil, nil
	}
	c := *found
	return &c, nil
}

func (l *Entitlements) consume(id, accountID string, category catalog.Category, now time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.items[id]
	if !ok || e.AccountID != accountID {
		return false, entitlement.ErrNotFound
	}
	if !entitlement.CanCreate(e, now) || !e.Category.Covers(category) {
		return false, nil
	}
	e.BooksCreated++
	return true, nil
}

// Purchases is an in-memory purchase.Repository
type Purchases struct {
	mu     sync.Mutex
	items  map[string]*purchase.Purchase
	ledger *Entitlements
	now    func() time.Time
}

var _ purchase.Repository = &Purchases{}

// NewPurchases returns an empty repository consuming entitlements from ledger
func NewPurchases(ledger *Entitlements) *Purchases {
	return &Purchases{
		items:  make(map[string]*purchase.Purchase),
		ledger: ledger,
		now:    time.Now,
	}
}

func (s *Purchases) insert(p *purchase.Purchase) error {
	if _, ok := s.items[p.ID]; ok {
		return fmt.Errorf("purchase %s already exists", p.ID)
	}
	p.Recompute()
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.items[p.ID] = clonePurchase(p)
	return nil
}

// Create stores an unfunded or directly paid purchase
func (s *Purchases) Create(ctx context.Context, p *purchase.Purchase) error {
	if p.Funding.Kind == purchase.FundingEntitlement {
		return fmt.Errorf("entitlement funded purchase must be created with CreateFunded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(p)
}

// CreateFunded consumes the entitlement for a book of category and stores p, or stores nothing
func (s *Purchases) CreateFunded(ctx context.Context, p *purchase.Purchase, category catalog.Category, now time.Time) error {
	if p.Funding.Kind != purchase.FundingEntitlement || p.Funding.EntitlementID == nil {
		return fmt.Errorf("purchase is not entitlement funded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[p.ID]; ok {
		return fmt.Errorf("purchase %s already exists", p.ID)
	}
	ok, err := s.ledger.consume(*p.Funding.EntitlementID, p.AccountID, category, now)
	if err == entitlement.ErrNotFound {
		return purchase.ErrNotFound
	}
	if err != nil {
		return err
	}
	if !ok {
		return purchase.ErrEntitlementExhausted
	}
	return s.insert(p)
}

// Get returns a copy of the purchase or nil
func (s *Purchases) Get(ctx context.Context, id string) (*purchase.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	return clonePurchase(p), nil
}

// List returns the purchases of an account, newest first
func (s *Purchases) List(ctx context.Context, accountID string) ([]purchase.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]purchase.Purchase, 0, 1)
	for _, p := range s.items {
		if p.AccountID == accountID {
			results = append(results, *clonePurchase(p))
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	return results, nil
}

// LambdaUpdate runs lambda while holding the repository lock, as a row lock would
func (s *Purchases) LambdaUpdate(ctx context.Context, id string, lambda purchase.LambdaUpdateFunc) (*purchase.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.items[id]
	if !ok {
		_, err := lambda(nil, nil)
		return nil, err
	}
	current, desired := clonePurchase(stored), clonePurchase(stored)
	save, err := lambda(current, desired)
	if err != nil {
		return nil, err
	}
	if !save {
		return nil, nil
	}
	desired.Recompute()
	desired.UpdatedAt = s.now()
	s.items[id] = clonePurchase(desired)
	return desired, nil
}

// SetDocument stores the reference of the given kind
func (s *Purchases) SetDocument(ctx context.Context, id string, kind document.Kind, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.items[id]
	if !ok {
		return purchase.ErrNotFound
	}
	switch kind {
	case document.KindMain:
		p.Document = ref
	case document.KindNote:
		p.NoteDocument = ref
	default:
		return fmt.Errorf("unknown document kind %s", kind)
	}
	return nil
}

// IncrementVisit adds one to the visit counter
func (s *Purchases) IncrementVisit(ctx context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.items[id]
	if !ok {
		return 0, purchase.ErrNotFound
	}
	p.VisitCount++
	return p.VisitCount, nil
}

// Guests is an in-memory guest.Repository
type Guests struct {
	mu    sync.Mutex
	items map[string]*guest.Entry
	order []string
}

var _ guest.Repository = &Guests{}

// NewGuests returns an empty guest repository
func NewGuests() *Guests {
	return &Guests{
		items: make(map[string]*guest.Entry),
	}
}

// Create stores a copy of e
func (g *Guests) Create(ctx context.Context, e *guest.Entry) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.items[e.ID]; ok {
		return fmt.Errorf("guest entry %s already exists", e.ID)
	}
	now := time.Now()
	e.CreatedAt, e.UpdatedAt = now, now
	c := *e
	g.items[e.ID] = &c
	g.order = append(g.order, e.ID)
	return nil
}

// Get returns a copy of the entry or nil
func (g *Guests) Get(ctx context.Context, id string) (*guest.Entry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.items[id]
	if !ok {
		return nil, nil
	}
	c := *e
	return &c, nil
}

// Save replaces a stored entry
func (g *Guests) Save(ctx context.Context, e *guest.Entry) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.items[e.ID]; !ok {
		return guest.ErrNotFound
	}
	e.UpdatedAt = time.Now()
	c := *e
	g.items[e.ID] = &c
	return nil
}

// SetThankYou stores the note reference of an entry
func (g *Guests) SetThankYou(ctx context.Context, id, ref string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.items[id]
	if !ok {
		return guest.ErrNotFound
	}
	e.ThankYouDocument = ref
	return nil
}

// ListByPurchase returns the entries of a purchase in submission order
func (g *Guests) ListByPurchase(ctx context.Context, purchaseID string) ([]guest.Entry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	results := make([]guest.Entry, 0, 4)
	for _, id := range g.order {
		if e := g.items[id]; e.PurchaseID == purchaseID {
			results = append(results, *e)
		}
	}
	return results, nil
}

// Len is the number of stored entries
func (g *Guests) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.items)
}
