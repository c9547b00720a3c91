package purchase

import (
	"strings"
	"time"

	"github.com/myupstage/visitationbook-backend/document"
	"github.com/myupstage/visitationbook-backend/obituary"

	"gorm.io/gorm"
)

// State is the derived completeness of a purchase
type State string

// Defining the purchase states
const (
	StateIncomplete State = "incomplete"
	StateComplete   State = "complete"
)

// FundingKind tells how a purchase was paid for
type FundingKind string

// Defining the funding sources
const (
	FundingUnpaid        FundingKind = "unpaid"
	FundingEntitlement   FundingKind = "entitlement"
	FundingDirectPayment FundingKind = "direct_payment"
)

// Funding is the source of payment of a purchase. Exactly one of the IDs is set for a paid purchase.
type Funding struct {
	Kind          FundingKind `json:"kind" gorm:"not null"`
	EntitlementID *string     `json:"entitlementId" gorm:"index"`
	TransactionID *string     `json:"transactionId"`
}

// Unpaid is the funding of a purchase awaiting payment
func Unpaid() Funding {
	return Funding{Kind: FundingUnpaid}
}

// EntitlementFunded is the funding of a purchase created under a subscription grant
func EntitlementFunded(entitlementID string) Funding {
	return Funding{Kind: FundingEntitlement, EntitlementID: &entitlementID}
}

// DirectPayment is the funding of a purchase paid by a completed transaction
func DirectPayment(transactionID string) Funding {
	return Funding{Kind: FundingDirectPayment, TransactionID: &transactionID}
}

// IsPaid is true for entitlement funded and directly paid purchases
func (f Funding) IsPaid() bool {
	switch f.Kind {
	case FundingEntitlement:
		return f.EntitlementID != nil
	case FundingDirectPayment:
		return f.TransactionID != nil
	}
	return false
}

// Capabilities controls which fields guests may fill in
type Capabilities struct {
	Picture      bool `json:"allowPicture" gorm:"not null"`
	Name         bool `json:"allowName" gorm:"not null"`
	Address      bool `json:"allowAddress" gorm:"not null"`
	Email        bool `json:"allowEmail" gorm:"not null"`
	SpecialNotes bool `json:"allowSpecialNotes" gorm:"not null"`
}

// DefaultCapabilities lets guests leave their name, address and email
func DefaultCapabilities() Capabilities {
	return Capabilities{
		Name:    true,
		Address: true,
		Email:   true,
	}
}

// Purchase is one ordered memorial book
type Purchase struct {
	ID            string             `json:"id" gorm:"primaryKey"`
	AccountID     string             `json:"accountId" gorm:"index;not null"`
	BookID        string             `json:"bookId" gorm:"index;not null"`
	ObituaryID    *string            `json:"obituaryId" gorm:"index"`
	Obituary      *obituary.Obituary `json:"-" gorm:"foreignKey:ObituaryID;constraint:OnDelete:SET NULL"`
	DeceasedName  string             `json:"deceasedName"`
	DeceasedImage string             `json:"deceasedImage"` // blob reference of the portrait
	CustomCover   string             `json:"customCover"`   // blob reference, overrides the book cover
	TextColor     string             `json:"textColor"`
	DateOfBirth   *time.Time         `json:"dateOfBirth"`
	DateOfDeath   *time.Time         `json:"dateOfDeath"`
	AttendingNote string             `json:"attendingNote"`
	Capabilities  Capabilities       `json:"capabilities" gorm:"embedded;embeddedPrefix:allow_"`
	Funding       Funding            `json:"funding" gorm:"embedded;embeddedPrefix:funding_"`
	IsPaid        bool               `json:"isPaid" gorm:"not null"`     // derived from Funding
	IsComplete    bool               `json:"isComplete" gorm:"not null"` // derived, see Evaluate
	Document      string             `json:"document"`                   // blob reference of the main document
	NoteDocument  string             `json:"noteDocument"`               // blob reference of the thank-you note template
	VisitCount    int64              `json:"visitCount" gorm:"not null;default:0"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// Evaluate returns Complete iff the deceased name, the portrait and the date of death are all present
func Evaluate(p *Purchase) State {
	if p == nil {
		return StateIncomplete
	}
	if strings.TrimSpace(p.DeceasedName) == "" {
		return StateIncomplete
	}
	if p.DeceasedImage == "" {
		return StateIncomplete
	}
	if p.DateOfDeath == nil || p.DateOfDeath.IsZero() {
		return StateIncomplete
	}
	return StateComplete
}

// Recompute refreshes the derived flags from the current field values
func (p *Purchase) Recompute() {
	p.IsComplete = Evaluate(p) == StateComplete
	p.IsPaid = p.Funding.IsPaid()
}

// BeforeSave keeps the derived flags in sync on every persistence
func (p *Purchase) BeforeSave(tx *gorm.DB) error {
	p.Recompute()
	return nil
}

// DocumentRef returns the stored reference of the given kind
func (p *Purchase) DocumentRef(kind document.Kind) string {
	if kind == document.KindNote {
		return p.NoteDocument
	}
	return p.Document
}

func (p *Purchase) setDocumentRef(kind document.Kind, ref string) {
	if kind == document.KindNote {
		p.NoteDocument = ref
		return
	}
	p.Document = ref
}

// Fields is a partial update. Nil fields are left untouched; a non-nil zero time clears a date.
type Fields struct {
	DeceasedName  *string
	DeceasedImage *string
	CustomCover   *string
	TextColor     *string
	DateOfBirth   *time.Time
	DateOfDeath   *time.Time
	AttendingNote *string
	ObituaryID    *string // empty string unlinks
	Capabilities  *Capabilities
}

func clearable(t *time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	v := *t
	return &v
}

// Apply writes the set fields onto p and recomputes the derived flags
func (f Fields) Apply(p *Purchase) {
	if f.DeceasedName != nil {
		p.DeceasedName = strings.TrimSpace(*f.DeceasedName)
	}
	if f.DeceasedImage != nil {
		p.DeceasedImage = *f.DeceasedImage
	}
	if f.CustomCover != nil {
		p.CustomCover = *f.CustomCover
	}
	if f.TextColor != nil {
		p.TextColor = *f.TextColor
	}
	if f.DateOfBirth != nil {
		p.DateOfBirth = clearable(f.DateOfBirth)
	}
	if f.DateOfDeath != nil {
		p.DateOfDeath = clearable(f.DateOfDeath)
	}
	if f.AttendingNote != nil {
		p.AttendingNote = *f.AttendingNote
	}
	if f.ObituaryID != nil {
		if *f.ObituaryID == "" {
			p.ObituaryID = nil
		} else {
			id := *f.ObituaryID
			p.ObituaryID = &id
		}
	}
	if f.Capabilities != nil {
		p.Capabilities = *f.Capabilities
	}
	p.Recompute()
}

// PublicView is what visitors who do not own the purchase may see
type PublicView struct {
	ID            string       `json:"id"`
	BookID        string       `json:"bookId"`
	ObituaryID    *string      `json:"obituaryId"`
	DeceasedName  string       `json:"deceasedName"`
	DeceasedImage string       `json:"deceasedImage"`
	CustomCover   string       `json:"customCover"`
	TextColor     string       `json:"textColor"`
	DateOfBirth   *time.Time   `json:"dateOfBirth"`
	DateOfDeath   *time.Time   `json:"dateOfDeath"`
	Capabilities  Capabilities `json:"capabilities"`
	IsComplete    bool         `json:"isComplete"`
	Document      string       `json:"document"`
	VisitCount    int64        `json:"visitCount"`
}

// Public strips account, payment and note fields
func (p *Purchase) Public() PublicView {
	return PublicView{
		ID:            p.ID,
		BookID:        p.BookID,
		ObituaryID:    p.ObituaryID,
		DeceasedName:  p.DeceasedName,
		DeceasedImage: p.DeceasedImage,
		CustomCover:   p.CustomCover,
		TextColor:     p.TextColor,
		DateOfBirth:   p.DateOfBirth,
		DateOfDeath:   p.DateOfDeath,
		Capabilities:  p.Capabilities,
		IsComplete:    p.IsComplete,
		Document:      p.Document,
		VisitCount:    p.VisitCount,
	}
}
