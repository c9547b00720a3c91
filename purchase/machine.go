package purchase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/myupstage/visitationbook-backend/account"
	"github.com/myupstage/visitationbook-backend/catalog"
	"github.com/myupstage/visitationbook-backend/document"
	"github.com/myupstage/visitationbook-backend/entitlement"
	"github.com/myupstage/visitationbook-backend/metrics"
	"github.com/myupstage/visitationbook-backend/notify"
	"github.com/myupstage/visitationbook-backend/obituary"
	"github.com/myupstage/visitationbook-backend/payment"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ledger finds the entitlement that should fund a new purchase
type Ledger interface {
	ActiveFor(ctx context.Context, accountID string, category catalog.Category) (*entitlement.Entitlement, error)
}

// BookGetter returns a book of the catalog or nil
type BookGetter interface {
	GetBook(ctx context.Context, id string) (*catalog.Book, error)
}

// AccountGetter returns an account or nil
type AccountGetter interface {
	GetByID(ctx context.Context, id string) (*account.Account, error)
}

// ObituaryGetter returns an obituary or nil
type ObituaryGetter interface {
	GetByID(ctx context.Context, id string) (*obituary.Obituary, error)
}

// GuestLister returns the guest cards of a purchase for its main document
type GuestLister interface {
	ListEntries(ctx context.Context, purchaseID string) ([]document.Guest, error)
}

// Generator renders and stores documents
type Generator interface {
	Main(ctx context.Context, m document.MainModel) (string, error)
	Note(ctx context.Context, m document.NoteModel) (string, []byte, error)
	Discard(ctx context.Context, ref string) error
}

// Charger takes a one-off payment
type Charger interface {
	Charge(ctx context.Context, opt payment.ChargeOptions) (*payment.Transaction, error)
}

// MachineOptions contains the collaborators of the purchase state machine
type MachineOptions struct {
	Repository Repository
	Ledger     Ledger
	Books      BookGetter
	Accounts   AccountGetter
	Obituaries ObituaryGetter
	Guests     GuestLister
	Documents  Generator
	Blobs      document.BlobStore // uploaded images and stored notes
	Payments   Charger
	Notifier   notify.Notifier
	Logger     *zap.Logger
	Clock      func() time.Time
	SiteName   string
}

// Machine owns the completion, payment and document lifecycle of purchases
type Machine struct {
	MachineOptions
	locks *keyedMutex
}

// NewMachine returns a purchase state machine
func NewMachine(option MachineOptions) (*Machine, error) {
	if option.Repository == nil {
		return nil, fmt.Errorf("nil Repository is invalid")
	}
	if option.Ledger == nil {
		return nil, fmt.Errorf("nil Ledger is invalid")
	}
	if option.Books == nil {
		return nil, fmt.Errorf("nil Books is invalid")
	}
	if option.Accounts == nil {
		return nil, fmt.Errorf("nil Accounts is invalid")
	}
	if option.Obituaries == nil {
		return nil, fmt.Errorf("nil Obituaries is invalid")
	}
	if option.Guests == nil {
		return nil, fmt.Errorf("nil Guests is invalid")
	}
	if option.Documents == nil {
		return nil, fmt.Errorf("nil Documents is invalid")
	}
	if option.Blobs == nil {
		return nil, fmt.Errorf("nil Blobs is invalid")
	}
	if option.Payments == nil {
		return nil, fmt.Errorf("nil Payments is invalid")
	}
	if option.Notifier == nil {
		return nil, fmt.Errorf("nil Notifier is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if option.Clock == nil {
		option.Clock = time.Now
	}
	return &Machine{
		MachineOptions: option,
		locks:          newKeyedMutex(),
	}, nil
}

// Get returns the purchase or ErrNotFound
func (m *Machine) Get(ctx context.Context, id string) (*Purchase, error) {
	p, err := m.Repository.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

// List returns the purchases of an account
func (m *Machine) List(ctx context.Context, accountID string) ([]Purchase, error) {
	return m.Repository.List(ctx, accountID)
}

// PurchaserName is the display name of the owning account, empty when unknown
func (m *Machine) PurchaserName(ctx context.Context, p *Purchase) string {
	acct, err := m.Accounts.GetByID(ctx, p.AccountID)
	if err != nil {
		m.Logger.Warn("Unable to look up purchaser",
			zap.String("PurchaseID", p.ID),
			zap.Error(err),
		)
		return ""
	}
	return acct.DisplayName()
}

// checkObituary fails with ErrInvalidObituary unless id names an obituary of accountID. A nil id passes.
func (m *Machine) checkObituary(ctx context.Context, accountID string, id *string) error {
	if id == nil {
		return nil
	}
	o, err := m.Obituaries.GetByID(ctx, *id)
	if err != nil {
		return err
	}
	if o == nil || o.AccountID != accountID {
		return ErrInvalidObituary
	}
	return nil
}

// CreateOptions describes a new purchase
type CreateOptions struct {
	AccountID     string
	BookID        string
	EntitlementID string // optional, consumed when set
	ObituaryID    *string
	Capabilities  *Capabilities
	Fields        Fields
}

// Create persists a new purchase. An explicit entitlement must authorize one more book or nothing is created.
// Without one, a valid entitlement of the account covering the book is used when there is one.
// No document is rendered here; generation waits for the first completing update.
func (m *Machine) Create(ctx context.Context, opt CreateOptions) (*Purchase, error) {
	if opt.AccountID == "" {
		return nil, fmt.Errorf("CreateOptions.AccountID is required")
	}
	if opt.BookID == "" {
		return nil, fmt.Errorf("CreateOptions.BookID is required")
	}
	logger := m.Logger.With(
		zap.String("AccountID", opt.AccountID),
		zap.String("BookID", opt.BookID),
	)

	book, err := m.Books.GetBook(ctx, opt.BookID)
	if err != nil {
		return nil, err
	}
	if book == nil || !book.Active {
		return nil, ErrBookNotFound
	}

	p := &Purchase{
		ID:           uuid.New().String(),
		AccountID:    opt.AccountID,
		BookID:       book.ID,
		ObituaryID:   opt.ObituaryID,
		TextColor:    book.TextColor,
		Capabilities: DefaultCapabilities(),
		Funding:      Unpaid(),
	}
	if opt.Capabilities != nil {
		p.Capabilities = *opt.Capabilities
	}
	opt.Fields.Apply(p)
	if err := m.checkObituary(ctx, opt.AccountID, p.ObituaryID); err != nil {
		return nil, err
	}

	now := m.Clock()
	if opt.EntitlementID != "" {
		p.Funding = EntitlementFunded(opt.EntitlementID)
		p.Recompute()
		if err := m.Repository.CreateFunded(ctx, p, book.Category, now); err != nil {
			if errors.Is(err, ErrEntitlementExhausted) {
				metrics.EntitlementExhaustedTotal.Inc()
			}
			return nil, err
		}
		metrics.PurchasesCreatedTotal.WithLabelValues(string(p.Funding.Kind)).Inc()
		return p, nil
	}

	e, err := m.Ledger.ActiveFor(ctx, opt.AccountID, book.Category)
	if err != nil {
		return nil, err
	}
	if e != nil {
		p.Funding = EntitlementFunded(e.ID)
		p.Recompute()
		err := m.Repository.CreateFunded(ctx, p, book.Category, now)
		switch {
		case err == nil:
			metrics.PurchasesCreatedTotal.WithLabelValues(string(p.Funding.Kind)).Inc()
			return p, nil
		case errors.Is(err, ErrEntitlementExhausted):
			logger.Info("Entitlement was exhausted concurrently, creating unpaid purchase",
				zap.String("EntitlementID", e.ID),
			)
			p.Funding = Unpaid()
			p.Recompute()
		default:
			return nil, err
		}
	}

	if err := m.Repository.Create(ctx, p); err != nil {
		return nil, err
	}
	metrics.PurchasesCreatedTotal.WithLabelValues(string(p.Funding.Kind)).Inc()
	return p, nil
}

// UpdateOptions describes an edit by the owner
type UpdateOptions struct {
	PurchaseID         string
	AccountID          string
	Fields             Fields
	RegenerateDocument bool
	RegenerateNote     bool
}

// noteChanged is a value comparison against the previously stored note
func noteChanged(previous, next string) bool {
	return next != "" && next != previous
}

// Update persists the edit and then regenerates documents when warranted.
// Regeneration failures are logged; the edit itself is kept.
func (m *Machine) Update(ctx context.Context, opt UpdateOptions) (*Purchase, error) {
	logger := m.Logger.With(
		zap.String("AccountID", opt.AccountID),
		zap.String("PurchaseID", opt.PurchaseID),
	)

	var previousNote string
	updated, err := m.Repository.LambdaUpdate(ctx, opt.PurchaseID, func(current, desired *Purchase) (bool, error) {
		if current == nil {
			return false, nil
		}
		if current.AccountID != opt.AccountID {
			return false, ErrForbidden
		}
		previousNote = current.AttendingNote
		opt.Fields.Apply(desired)
		if opt.Fields.ObituaryID != nil {
			if err := m.checkObituary(ctx, opt.AccountID, desired.ObituaryID); err != nil {
				return false, err
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrNotFound
	}

	if opt.RegenerateDocument && Evaluate(updated) == StateComplete {
		if ref, err := m.RegenerateMain(ctx, updated.ID); err == nil {
			updated.Document = ref
		} else {
			logger.Warn("Purchase updated without a new document",
				zap.Error(err),
			)
		}
	}
	if opt.RegenerateNote && noteChanged(previousNote, updated.AttendingNote) {
		if ref, err := m.RegenerateNote(ctx, updated.ID); err == nil {
			updated.NoteDocument = ref
		} else {
			logger.Warn("Purchase updated without a new note",
				zap.Error(err),
			)
		}
	}
	return updated, nil
}

// discard deletes the stored artifact of kind and clears the reference
func (m *Machine) discard(ctx context.Context, p *Purchase, kind document.Kind) error {
	ref := p.DocumentRef(kind)
	if ref == "" {
		return nil
	}
	if err := m.Documents.Discard(ctx, ref); err != nil {
		// the reference is cleared anyway, the blob is at worst orphaned
		m.Logger.Warn("Unable to delete previous document",
			zap.String("PurchaseID", p.ID),
			zap.String("Ref", ref),
			zap.Error(err),
		)
	}
	if err := m.Repository.SetDocument(ctx, p.ID, kind, ""); err != nil {
		return err
	}
	p.setDocumentRef(kind, "")
	return nil
}

// DiscardDocument removes the main or note document of a purchase owned by accountID
func (m *Machine) DiscardDocument(ctx context.Context, id, accountID string, kind document.Kind) error {
	if kind != document.KindMain && kind != document.KindNote {
		return fmt.Errorf("unknown document kind %s", kind)
	}
	unlock := m.locks.Lock(id)
	defer unlock()

	p, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if p.AccountID != accountID {
		return ErrForbidden
	}
	return m.discard(ctx, p, kind)
}

func (m *Machine) mainModel(ctx context.Context, p *Purchase) (document.MainModel, error) {
	model := document.MainModel{
		PurchaseID:   p.ID,
		DeceasedName: p.DeceasedName,
		Portrait:     p.DeceasedImage,
		BornOn:       p.DateOfBirth,
		PassedOn:     p.DateOfDeath,
		Cover:        p.CustomCover,
		TextColor:    p.TextColor,
	}
	if model.Cover == "" || model.TextColor == "" {
		book, err := m.Books.GetBook(ctx, p.BookID)
		if err != nil {
			return model, err
		}
		if book != nil {
			if model.Cover == "" {
				model.Cover = book.Cover
			}
			if model.TextColor == "" {
				model.TextColor = book.TextColor
			}
		}
	}

	guests, err := m.Guests.ListEntries(ctx, p.ID)
	if err != nil {
		return model, err
	}
	caps := p.Capabilities
	for _, g := range guests {
		if !caps.Picture {
			g.Picture = ""
		}
		if !caps.Name {
			g.Name = ""
		}
		if !caps.Address {
			g.Address = ""
		}
		if !caps.Email {
			g.Email = ""
		}
		if !caps.SpecialNotes {
			g.Notes = ""
		}
		model.Guests = append(model.Guests, g)
	}
	return model, nil
}

// RegenerateMain discards the current main document, renders a new one and stores its reference.
// Regenerations of the same purchase run one at a time.
func (m *Machine) RegenerateMain(ctx context.Context, id string) (string, error) {
	logger := m.Logger.With(zap.String("PurchaseID", id))

	unlock := m.locks.Lock(id)
	defer unlock()

	p, err := m.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if Evaluate(p) != StateComplete {
		return "", ErrIncomplete
	}

	model, err := m.mainModel(ctx, p)
	if err != nil {
		logger.Error("Unable to collect document contents",
			zap.Error(err),
		)
		return "", err
	}

	if err := m.discard(ctx, p, document.KindMain); err != nil {
		return "", err
	}
	ref, err := m.Documents.Main(ctx, model)
	if err != nil {
		logger.Error("Unable to generate document",
			zap.Error(err),
		)
		return "", err
	}
	if err := m.store(ctx, logger, id, document.KindMain, ref); err != nil {
		return "", err
	}
	return ref, nil
}

// store sets ref as the document of kind under the purchase row lock. A reference stored meanwhile by
// another process is discarded; if ref cannot be stored it is discarded instead.
func (m *Machine) store(ctx context.Context, logger *zap.Logger, id string, kind document.Kind, ref string) error {
	var replaced string
	_, err := m.Repository.LambdaUpdate(ctx, id, func(current, desired *Purchase) (bool, error) {
		if current == nil {
			return false, ErrNotFound
		}
		replaced = current.DocumentRef(kind)
		desired.setDocumentRef(kind, ref)
		return true, nil
	})
	if err != nil {
		m.discardUnreferenced(ctx, logger, ref)
		return err
	}
	if replaced != "" && replaced != ref {
		m.discardUnreferenced(ctx, logger, replaced)
	}
	return nil
}

func (m *Machine) discardUnreferenced(ctx context.Context, logger *zap.Logger, ref string) {
	if err := m.Documents.Discard(ctx, ref); err != nil {
		logger.Warn("Unable to delete unreferenced document",
			zap.String("Ref", ref),
			zap.Error(err),
		)
	}
}

// RegenerateNote renders the purchase-level thank-you note from the attending note
func (m *Machine) RegenerateNote(ctx context.Context, id string) (string, error) {
	logger := m.Logger.With(zap.String("PurchaseID", id))

	unlock := m.locks.Lock(id)
	defer unlock()

	p, err := m.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if p.AttendingNote == "" {
		return "", ErrNoAttendingNote
	}

	model := document.NoteModel{
		PurchaseID:   p.ID,
		DeceasedName: p.DeceasedName,
		Title:        notify.ThankYouSubject(p.DeceasedName),
		Body: document.Substitute(p.AttendingNote, document.Variables{
			DeceasedName:  p.DeceasedName,
			PurchaserName: m.PurchaserName(ctx, p),
		}),
	}

	if err := m.discard(ctx, p, document.KindNote); err != nil {
		return "", err
	}
	ref, _, err := m.Documents.Note(ctx, model)
	if err != nil {
		logger.Error("Unable to generate note",
			zap.Error(err),
		)
		return "", err
	}
	if err := m.store(ctx, logger, id, document.KindNote, ref); err != nil {
		return "", err
	}
	return ref, nil
}

// IncrementVisit counts a visit. The owner's own visits are not counted.
func (m *Machine) IncrementVisit(ctx context.Context, id, requesterID string) (int64, error) {
	p, err := m.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if requesterID != "" && requesterID == p.AccountID {
		return p.VisitCount, nil
	}
	return m.Repository.IncrementVisit(ctx, id)
}

// PayOptions describes a direct payment of a purchase
type PayOptions struct {
	PurchaseID      string
	AccountID       string
	PaymentMethodID string
}

// Pay charges the book price. The purchase becomes paid only once the transaction completed.
func (m *Machine) Pay(ctx context.Context, opt PayOptions) (*Purchase, *payment.Transaction, error) {
	logger := m.Logger.With(
		zap.String("AccountID", opt.AccountID),
		zap.String("PurchaseID", opt.PurchaseID),
	)

	p, err := m.Get(ctx, opt.PurchaseID)
	if err != nil {
		return nil, nil, err
	}
	if p.AccountID != opt.AccountID {
		return nil, nil, ErrForbidden
	}
	if p.Funding.IsPaid() {
		return nil, nil, ErrAlreadyPaid
	}

	book, err := m.Books.GetBook(ctx, p.BookID)
	if err != nil {
		return nil, nil, err
	}
	if book == nil {
		return nil, nil, ErrBookNotFound
	}
	acct, err := m.Accounts.GetByID(ctx, p.AccountID)
	if err != nil {
		return nil, nil, err
	}
	if acct == nil {
		return nil, nil, fmt.Errorf("Account %s does not exist", p.AccountID)
	}

	txn, err := m.Payments.Charge(ctx, payment.ChargeOptions{
		AccountID:       acct.ID,
		CustomerID:      acct.StripeCustomerID,
		PaymentMethodID: opt.PaymentMethodID,
		Amount:          book.Price,
		Description:     book.Title,
	})
	if errors.Is(err, payment.ErrCardDeclined) {
		return p, txn, ErrPaymentFailed
	}
	if err != nil {
		return nil, nil, err
	}
	if !txn.Succeeded() {
		logger.Info("Payment is pending",
			zap.String("TransactionID", txn.ID),
		)
		return p, txn, nil
	}

	updated, err := m.Repository.LambdaUpdate(ctx, p.ID, func(current, desired *Purchase) (bool, error) {
		if current == nil {
			return false, nil
		}
		if current.Funding.IsPaid() {
			return false, ErrAlreadyPaid
		}
		desired.Funding = DirectPayment(txn.ID)
		return true, nil
	})
	if err != nil {
		logger.Error("Charge completed but purchase could not be marked paid",
			zap.String("TransactionID", txn.ID),
			zap.Error(err),
		)
		return nil, txn, err
	}
	if updated == nil {
		return nil, txn, ErrNotFound
	}

	notify.Dispatch(ctx, logger, m.Notifier, notify.PaymentConfirmation(notify.PaymentOptions{
		To:            acct.Email,
		Name:          acct.DisplayName(),
		SiteName:      m.SiteName,
		BookTitle:     book.Title,
		TransactionID: txn.ID,
		PaidAt:        m.Clock(),
		Amount:        txn.Amount.StringFixed(2),
		Tax:           txn.Tax.StringFixed(2),
		Total:         txn.Total.StringFixed(2),
		Currency:      txn.Currency,
	}))
	return updated, txn, nil
}

// ImageSlot names an uploadable image of a purchase
type ImageSlot string

// Defining the image slots
const (
	ImagePortrait ImageSlot = "portrait"
	ImageCover    ImageSlot = "cover"
)

// Valid returns true for the known slots
func (s ImageSlot) Valid() bool {
	return s == ImagePortrait || s == ImageCover
}

// UploadOptions describes an image upload by the owner
type UploadOptions struct {
	PurchaseID string
	AccountID  string
	Slot       ImageSlot
	Filename   string
	Body       io.Reader
}

// UploadImage stores a png or jpeg image as the portrait or custom cover and applies it like an Update.
// The image it replaces is deleted.
func (m *Machine) UploadImage(ctx context.Context, opt UploadOptions) (*Purchase, error) {
	if !opt.Slot.Valid() {
		return nil, fmt.Errorf("unknown image slot %s", opt.Slot)
	}
	logger := m.Logger.With(
		zap.String("AccountID", opt.AccountID),
		zap.String("PurchaseID", opt.PurchaseID),
		zap.String("Slot", string(opt.Slot)),
	)

	p, err := m.Get(ctx, opt.PurchaseID)
	if err != nil {
		return nil, err
	}
	if p.AccountID != opt.AccountID {
		return nil, ErrForbidden
	}
	ref, err := document.SaveImage(ctx, m.Blobs, fmt.Sprintf("%s_%s", opt.Slot, p.ID), opt.Filename, opt.Body)
	if err != nil {
		return nil, err
	}

	fields := Fields{}
	previous := p.DeceasedImage
	if opt.Slot == ImagePortrait {
		fields.DeceasedImage = &ref
	} else {
		previous = p.CustomCover
		fields.CustomCover = &ref
	}
	updated, err := m.Update(ctx, UpdateOptions{
		PurchaseID:         p.ID,
		AccountID:          opt.AccountID,
		Fields:             fields,
		RegenerateDocument: true,
	})
	if err != nil {
		if dErr := m.Blobs.Delete(ctx, ref); dErr != nil {
			logger.Warn("Unable to delete unused upload",
				zap.String("Ref", ref),
				zap.Error(dErr),
			)
		}
		return nil, err
	}
	if previous != "" && previous != ref {
		if err := m.Blobs.Delete(ctx, previous); err != nil {
			logger.Warn("Unable to delete previous image",
				zap.String("Ref", previous),
				zap.Error(err),
			)
		}
	}
	return updated, nil
}

// SendNoteOptions describes the owner mailing the thank-you note
type SendNoteOptions struct {
	PurchaseID string
	AccountID  string
	Recipients []string
	Message    string // replaces the attending note as the email text when set
}

// SendNote emails the purchase thank-you note to every recipient, rendering it first when needed.
// Delivery failures are logged per recipient and do not fail the call.
func (m *Machine) SendNote(ctx context.Context, opt SendNoteOptions) error {
	if len(opt.Recipients) == 0 {
		return ErrNoRecipients
	}
	logger := m.Logger.With(
		zap.String("AccountID", opt.AccountID),
		zap.String("PurchaseID", opt.PurchaseID),
	)

	p, err := m.Get(ctx, opt.PurchaseID)
	if err != nil {
		return err
	}
	if p.AccountID != opt.AccountID {
		return ErrForbidden
	}
	if p.AttendingNote == "" {
		return ErrNoAttendingNote
	}

	ref := p.NoteDocument
	if ref == "" {
		if ref, err = m.RegenerateNote(ctx, p.ID); err != nil {
			return err
		}
	}
	data, err := document.ReadAll(ctx, m.Blobs, ref)
	if err != nil {
		logger.Error("Unable to read note",
			zap.String("Ref", ref),
			zap.Error(err),
		)
		return err
	}

	text := p.AttendingNote
	if opt.Message != "" {
		text = opt.Message
	}
	body := document.Substitute(text, document.Variables{
		DeceasedName:  p.DeceasedName,
		PurchaserName: m.PurchaserName(ctx, p),
	})
	for _, to := range opt.Recipients {
		notify.Dispatch(ctx, logger, m.Notifier, notify.ThankYou(notify.ThankYouOptions{
			To:           to,
			DeceasedName: p.DeceasedName,
			Body:         body,
			Filename:     "thank_you_note.pdf",
			Document:     data,
		}))
	}
	logger.Info("Thank you note sent",
		zap.Int("Recipients", len(opt.Recipients)),
	)
	return nil
}
