package purchase

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/myupstage/visitationbook-backend/auth"
	"github.com/myupstage/visitationbook-backend/document"
	resp "github.com/myupstage/visitationbook-backend/response"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	Auth    *auth.Auth
	Machine *Machine
	Blobs   document.BlobStore
	Logger  *zap.Logger
	// GuestRouter is mounted under /{id}/guests when set
	GuestRouter http.Handler
}

// Service is the purchase API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the purchase API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.Auth == nil {
		return nil, fmt.Errorf("nil Auth is invalid")
	}
	if option.Machine == nil {
		return nil, fmt.Errorf("nil Machine is invalid")
	}
	if option.Blobs == nil {
		return nil, fmt.Errorf("nil Blobs is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

// FieldsRequest carries the editable fields of a purchase. Dates are RFC3339 or YYYY-MM-DD; an empty date clears it.
type FieldsRequest struct {
	DeceasedName  *string       `json:"deceasedName" validate:"omitempty,max=200"`
	DeceasedImage *string       `json:"deceasedImage"`
	CustomCover   *string       `json:"customCover"`
	TextColor     *string       `json:"textColor" validate:"omitempty,hexcolor"`
	DateOfBirth   *string       `json:"dateOfBirth"`
	DateOfDeath   *string       `json:"dateOfDeath"`
	AttendingNote *string       `json:"attendingNote" validate:"omitempty,max=5000"`
	ObituaryID    *string       `json:"obituaryId"`
	Capabilities  *Capabilities `json:"capabilities"`
}

func parseDate(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	if *s == "" {
		return &time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, *s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("Invalid date \"%s\"", *s)
}

func (f FieldsRequest) toFields() (Fields, error) {
	born, err := parseDate(f.DateOfBirth)
	if err != nil {
		return Fields{}, err
	}
	passed, err := parseDate(f.DateOfDeath)
	if err != nil {
		return Fields{}, err
	}
	return Fields{
		DeceasedName:  f.DeceasedName,
		DeceasedImage: f.DeceasedImage,
		CustomCover:   f.CustomCover,
		TextColor:     f.TextColor,
		DateOfBirth:   born,
		DateOfDeath:   passed,
		AttendingNote: f.AttendingNote,
		ObituaryID:    f.ObituaryID,
		Capabilities:  f.Capabilities,
	}, nil
}

// CreateRequest is the model of a new purchase
type CreateRequest struct {
	FieldsRequest
	BookID        string `json:"bookId" validate:"required"`
	EntitlementID string `json:"entitlementId"`
}

// UpdateRequest is the model of an edit. Both regenerate flags default to true.
type UpdateRequest struct {
	FieldsRequest
	RegenerateDocument *bool `json:"regenerateDocument"`
	RegenerateNote     *bool `json:"regenerateNote"`
}

// PayRequest pays a purchase with a payment method
type PayRequest struct {
	PaymentMethodID string `json:"paymentMethodId" validate:"required"`
}

func boolOrTrue(b *bool) bool {
	return b == nil || *b
}

func (s *Service) writeMachineError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages(err.Error()))
	case errors.Is(err, ErrBookNotFound):
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages(err.Error()))
	case errors.Is(err, ErrForbidden):
		resp.WriteError(w, r, resp.ErrForbidden())
	case errors.Is(err, ErrEntitlementExhausted), errors.Is(err, ErrAlreadyPaid):
		resp.WriteError(w, r, resp.ErrConflict().AddMessages(err.Error()))
	case errors.Is(err, ErrIncomplete), errors.Is(err, ErrNoAttendingNote),
		errors.Is(err, ErrInvalidObituary), errors.Is(err, ErrNoRecipients), document.IsUploadError(err):
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(err.Error()))
	default:
		logger.Error("Unable to process purchase request",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
	}
}

func (s *Service) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := auth.AccountID(ctx)
	logger := s.Logger.With(zap.String("AccountID", accountID))

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrValidation(err))
		return
	}
	fields, err := req.toFields()
	if err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(err.Error()))
		return
	}

	p, err := s.Machine.Create(ctx, CreateOptions{
		AccountID:     accountID,
		BookID:        req.BookID,
		EntitlementID: req.EntitlementID,
		ObituaryID:    req.ObituaryID,
		Capabilities:  req.Capabilities,
		Fields:        fields,
	})
	if err != nil {
		s.writeMachineError(w, r, logger, err)
		return
	}
	resp.WriteResponseWithStatus(w, r, http.StatusCreated, p)
}

func (s *Service) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	purchases, err := s.Machine.List(ctx, auth.AccountID(ctx))
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	resp.WriteResponse(w, r, purchases)
}

func (s *Service) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	logger := s.Logger.With(zap.String("PurchaseID", id))

	p, err := s.Machine.Get(ctx, id)
	if err != nil {
		s.writeMachineError(w, r, logger, err)
		return
	}
	if auth.IsOwner(ctx, p.AccountID) {
		resp.WriteResponse(w, r, p)
		return
	}
	resp.WriteResponse(w, r, p.Public())
}

func (s *Service) update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := auth.AccountID(ctx)
	id := chi.URLParam(r, "id")
	logger := s.Logger.With(
		zap.String("AccountID", accountID),
		zap.String("PurchaseID", id),
	)

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrValidation(err))
		return
	}
	fields, err := req.toFields()
	if err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(err.Error()))
		return
	}

	p, err := s.Machine.Update(ctx, UpdateOptions{
		PurchaseID:         id,
		AccountID:          accountID,
		Fields:             fields,
		RegenerateDocument: boolOrTrue(req.RegenerateDocument),
		RegenerateNote:     boolOrTrue(req.RegenerateNote),
	})
	if err != nil {
		s.writeMachineError(w, r, logger, err)
		return
	}
	resp.WriteResponse(w, r, p)
}

func (s *Service) pay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := auth.AccountID(ctx)
	id := chi.URLParam(r, "id")
	logger := s.Logger.With(
		zap.String("AccountID", accountID),
		zap.String("PurchaseID", id),
	)

	var req PayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrValidation(err))
		return
	}

	p, txn, err := s.Machine.Pay(ctx, PayOptions{
		PurchaseID:      id,
		AccountID:       accountID,
		PaymentMethodID: req.PaymentMethodID,
	})
	if errors.Is(err, ErrPaymentFailed) {
		resp.WriteError(w, r, resp.ErrPaymentDeclined(txn))
		return
	}
	if err != nil {
		s.writeMachineError(w, r, logger, err)
		return
	}

	status := http.StatusOK
	if !p.Funding.IsPaid() {
		status = http.StatusAccepted
	}
	resp.WriteResponseWithStatus(w, r, status, struct {
		Purchase    *Purchase   `json:"purchase"`
		Transaction interface{} `json:"transaction"`
	}{
		Purchase:    p,
		Transaction: txn,
	})
}

func (s *Service) visit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	logger := s.Logger.With(zap.String("PurchaseID", id))

	count, err := s.Machine.IncrementVisit(ctx, id, auth.AccountID(ctx))
	if err != nil {
		s.writeMachineError(w, r, logger, err)
		return
	}
	resp.WriteResponse(w, r, struct {
		VisitCount int64 `json:"visitCount"`
	}{
		VisitCount: count,
	})
}

func (s *Service) uploadImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := auth.AccountID(ctx)
	id := chi.URLParam(r, "id")
	slot := ImageSlot(chi.URLParam(r, "slot"))
	logger := s.Logger.With(
		zap.String("AccountID", accountID),
		zap.String("PurchaseID", id),
	)

	if !slot.Valid() {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Unknown image slot"))
		return
	}
	file, filename, err := document.FormImage(w, r, "image")
	if err != nil {
		s.writeMachineError(w, r, logger, err)
		return
	}
	defer file.Close()

	p, err := s.Machine.UploadImage(ctx, UploadOptions{
		PurchaseID: id,
		AccountID:  accountID,
		Slot:       slot,
		Filename:   filename,
		Body:       file,
	})
	if err != nil {
		s.writeMachineError(w, r, logger, err)
		return
	}
	resp.WriteResponse(w, r, p)
}

// EmailRequest mails the thank-you note to a list of addresses
type EmailRequest struct {
	Recipients []string `json:"recipients" validate:"required,min=1,max=50,dive,email"`
	Message    string   `json:"message" validate:"max=5000"`
}

func (s *Service) sendNote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := auth.AccountID(ctx)
	id := chi.URLParam(r, "id")
	logger := s.Logger.With(
		zap.String("AccountID", accountID),
		zap.String("PurchaseID", id),
	)

	var req EmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrValidation(err))
		return
	}

	err := s.Machine.SendNote(ctx, SendNoteOptions{
		PurchaseID: id,
		AccountID:  accountID,
		Recipients: req.Recipients,
		Message:    req.Message,
	})
	var renderErr *document.RenderError
	if errors.As(err, &renderErr) {
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to generate document"))
		return
	}
	if err != nil {
		s.writeMachineError(w, r, logger, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func documentKind(r *http.Request) (document.Kind, bool) {
	kind := document.Kind(chi.URLParam(r, "kind"))
	return kind, kind == document.KindMain || kind == document.KindNote
}

func (s *Service) download(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	logger := s.Logger.With(zap.String("PurchaseID", id))

	kind, ok := documentKind(r)
	if !ok {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Unknown document kind"))
		return
	}
	p, err := s.Machine.Get(ctx, id)
	if err != nil {
		s.writeMachineError(w, r, logger, err)
		return
	}
	if kind == document.KindNote && !auth.IsOwner(ctx, p.AccountID) {
		resp.WriteError(w, r, resp.ErrForbidden())
		return
	}
	ref := p.DocumentRef(kind)
	if ref == "" {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Document has not been generated"))
		return
	}
	rc, err := s.Blobs.Open(ctx, ref)
	if errors.Is(err, document.ErrBlobNotFound) {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Document has not been generated"))
		return
	}
	if err != nil {
		logger.Error("Unable to open document",
			zap.String("Ref", ref),
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=\"%s\"", ref))
	if _, err := io.Copy(w, rc); err != nil {
		logger.Warn("Document download interrupted",
			zap.Error(err),
		)
	}
}

func (s *Service) regenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := auth.AccountID(ctx)
	id := chi.URLParam(r, "id")
	logger := s.Logger.With(
		zap.String("AccountID", accountID),
		zap.String("PurchaseID", id),
	)

	kind, ok := documentKind(r)
	if !ok {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Unknown document kind"))
		return
	}

	var ref string
	var err error
	if kind == document.KindMain {
		ref, err = s.Machine.RegenerateMain(ctx, id)
	} else {
		ref, err = s.Machine.RegenerateNote(ctx, id)
	}
	var renderErr *document.RenderError
	if errors.As(err, &renderErr) {
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to generate document"))
		return
	}
	if err != nil {
		s.writeMachineError(w, r, logger, err)
		return
	}
	resp.WriteResponse(w, r, struct {
		Document string `json:"document"`
	}{
		Document: ref,
	})
}

func (s *Service) discard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := auth.AccountID(ctx)
	id := chi.URLParam(r, "id")
	logger := s.Logger.With(
		zap.String("AccountID", accountID),
		zap.String("PurchaseID", id),
	)

	kind, ok := documentKind(r)
	if !ok {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Unknown document kind"))
		return
	}
	if err := s.Machine.DiscardDocument(ctx, id, accountID, kind); err != nil {
		s.writeMachineError(w, r, logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) owner(r *http.Request) (string, bool, error) {
	p, err := s.Machine.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return p.AccountID, true, nil
}

// Router will return the routes under purchase API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	if s.GuestRouter != nil {
		r.Mount("/{id}/guests", s.GuestRouter)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.Auth.OptionalMiddleware())
		r.Get("/{id}", s.get)
		r.Post("/{id}/visit", s.visit)
		r.Get("/{id}/documents/{kind}", s.download)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.Auth.Middleware())
		r.Use(s.Auth.ClaimCheck())
		r.Post("/", s.create)
		r.Get("/", s.list)
		r.Patch("/{id}", s.update)
		r.Post("/{id}/payment", s.pay)
		r.Delete("/{id}/documents/{kind}", s.discard)

		owned := r.With(s.Auth.RequireOwner(s.owner))
		owned.Post("/{id}/documents/{kind}", s.regenerate)
		owned.Post("/{id}/images/{slot}", s.uploadImage)
		owned.Post("/{id}/emails", s.sendNote)
	})

	return r
}
