package guest

import (
	"context"
	"fmt"
	"io"

	"github.com/myupstage/visitationbook-backend/document"
	"github.com/myupstage/visitationbook-backend/metrics"
	"github.com/myupstage/visitationbook-backend/notify"
	"github.com/myupstage/visitationbook-backend/purchase"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PurchaseMachine is the part of the purchase state machine guest submissions drive
type PurchaseMachine interface {
	Get(ctx context.Context, id string) (*purchase.Purchase, error)
	RegenerateMain(ctx context.Context, id string) (string, error)
	PurchaserName(ctx context.Context, p *purchase.Purchase) string
}

// NoteGenerator renders and stores personalized notes
type NoteGenerator interface {
	Note(ctx context.Context, m document.NoteModel) (string, []byte, error)
	Discard(ctx context.Context, ref string) error
}

// HandlerOptions contains the collaborators of the guest submission Handler
type HandlerOptions struct {
	Repository Repository
	Purchases  PurchaseMachine
	Documents  NoteGenerator
	Blobs      document.BlobStore // guest pictures
	Notifier   notify.Notifier
	Logger     *zap.Logger
}

// Handler validates guest entries and runs their side effects
type Handler struct {
	HandlerOptions
}

// NewHandler returns a guest submission Handler
func NewHandler(option HandlerOptions) (*Handler, error) {
	if option.Repository == nil {
		return nil, fmt.Errorf("nil Repository is invalid")
	}
	if option.Purchases == nil {
		return nil, fmt.Errorf("nil Purchases is invalid")
	}
	if option.Documents == nil {
		return nil, fmt.Errorf("nil Documents is invalid")
	}
	if option.Blobs == nil {
		return nil, fmt.Errorf("nil Blobs is invalid")
	}
	if option.Notifier == nil {
		return nil, fmt.Errorf("nil Notifier is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Handler{
		HandlerOptions: option,
	}, nil
}

// Submit validates v against the purchase capabilities and persists the entry.
// Document regeneration and the thank-you note are best effort and never fail the submission.
func (h *Handler) Submit(ctx context.Context, purchaseID string, v Values) (*Entry, error) {
	logger := h.Logger.With(zap.String("PurchaseID", purchaseID))

	p, err := h.Purchases.Get(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	v = v.trimmed()
	if err := Check(p.Capabilities, v); err != nil {
		return nil, err
	}
	if err := h.checkPicture(ctx, "", v.Picture); err != nil {
		return nil, err
	}

	e := &Entry{
		ID:         uuid.New().String(),
		PurchaseID: p.ID,
	}
	e.apply(v)
	if err := h.Repository.Create(ctx, e); err != nil {
		return nil, err
	}
	metrics.GuestEntriesTotal.Inc()
	logger = logger.With(zap.String("EntryID", e.ID))

	h.regenerate(ctx, logger, p)

	if p.AttendingNote != "" && e.Email != "" {
		h.sendThankYou(ctx, logger, p, e)
	}
	return e, nil
}

// Update replaces the values of an entry and regenerates the main document
func (h *Handler) Update(ctx context.Context, entryID string, v Values) (*Entry, error) {
	e, err := h.Repository.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrNotFound
	}
	logger := h.Logger.With(
		zap.String("PurchaseID", e.PurchaseID),
		zap.String("EntryID", e.ID),
	)

	p, err := h.Purchases.Get(ctx, e.PurchaseID)
	if err != nil {
		return nil, err
	}
	v = v.trimmed()
	if err := Check(p.Capabilities, v); err != nil {
		return nil, err
	}
	if err := h.checkPicture(ctx, e.Picture, v.Picture); err != nil {
		return nil, err
	}
	e.apply(v)
	if err := h.Repository.Save(ctx, e); err != nil {
		return nil, err
	}

	h.regenerate(ctx, logger, p)
	return e, nil
}

// checkPicture fails with ErrUnknownPicture when a newly given picture reference does not resolve
func (h *Handler) checkPicture(ctx context.Context, current, next string) error {
	if next == "" || next == current {
		return nil
	}
	ok, err := document.Exists(ctx, h.Blobs, next)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownPicture
	}
	return nil
}

// UploadPicture stores a guest picture for a purchase that allows pictures and returns its reference
func (h *Handler) UploadPicture(ctx context.Context, purchaseID, filename string, body io.Reader) (string, error) {
	p, err := h.Purchases.Get(ctx, purchaseID)
	if err != nil {
		return "", err
	}
	if !p.Capabilities.Picture {
		return "", &CapabilityDeniedError{Field: "picture"}
	}
	return document.SaveImage(ctx, h.Blobs, "guest_"+p.ID, filename, body)
}

// List returns the entries of a purchase
func (h *Handler) List(ctx context.Context, purchaseID string) ([]Entry, error) {
	return h.Repository.ListByPurchase(ctx, purchaseID)
}

func (h *Handler) regenerate(ctx context.Context, logger *zap.Logger, p *purchase.Purchase) {
	if purchase.Evaluate(p) != purchase.StateComplete {
		return
	}
	if _, err := h.Purchases.RegenerateMain(ctx, p.ID); err != nil {
		logger.Warn("Guest entry saved without a new document",
			zap.Error(err),
		)
	}
}

func (h *Handler) sendThankYou(ctx context.Context, logger *zap.Logger, p *purchase.Purchase, e *Entry) {
	body := document.Substitute(p.AttendingNote, document.Variables{
		GuestName:     e.Name,
		GuestAddress:  e.Address,
		GuestEmail:    e.Email,
		DeceasedName:  p.DeceasedName,
		PurchaserName: h.Purchases.PurchaserName(ctx, p),
	})
	title := notify.ThankYouSubject(p.DeceasedName)

	ref, data, err := h.Documents.Note(ctx, document.NoteModel{
		PurchaseID:   p.ID,
		EntryID:      e.ID,
		DeceasedName: p.DeceasedName,
		Title:        title,
		Body:         body,
	})
	if err != nil {
		logger.Error("Unable to generate thank you note",
			zap.Error(err),
		)
		return
	}

	previous := e.ThankYouDocument
	if err := h.Repository.SetThankYou(ctx, e.ID, ref); err != nil {
		logger.Error("Unable to store thank you note",
			zap.Error(err),
		)
		if dErr := h.Documents.Discard(ctx, ref); dErr != nil {
			logger.Warn("Unable to delete unreferenced note",
				zap.String("Ref", ref),
				zap.Error(dErr),
			)
		}
		return
	}
	e.ThankYouDocument = ref
	if previous != "" {
		if err := h.Documents.Discard(ctx, previous); err != nil {
			logger.Warn("Unable to delete previous thank you note",
				zap.String("Ref", previous),
				zap.Error(err),
			)
		}
	}

	notify.Dispatch(ctx, logger, h.Notifier, notify.ThankYou(notify.ThankYouOptions{
		To:           e.Email,
		DeceasedName: p.DeceasedName,
		Body:         body,
		Filename:     "thank_you_note.pdf",
		Document:     data,
	}))
}
