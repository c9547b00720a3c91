package document

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind identifies which artifact of a purchase a document is
type Kind string

// Defining the known document kinds
const (
	KindMain     Kind = "main"
	KindNote     Kind = "note"
	KindThankYou Kind = "thank_you"
)

// Guest is one condolence card on the main document. Fields the purchase disallows are left empty by the caller.
type Guest struct {
	Picture string // blob reference
	Name    string
	Address string
	Email   string
	Notes   string
}

// MainModel is everything needed to lay out the keepsake book
type MainModel struct {
	PurchaseID   string
	DeceasedName string
	Portrait     string // blob reference
	BornOn       *time.Time
	PassedOn     *time.Time
	Cover        string // blob reference
	TextColor    string // #RRGGBB
	Guests       []Guest
}

// NoteModel is a thank-you note. EntryID is empty for the purchase-level template.
type NoteModel struct {
	PurchaseID   string
	EntryID      string
	DeceasedName string
	Title        string
	Body         string
}

// Renderer turns a document model into PDF bytes. Implementations return *RenderError on failure.
type Renderer interface {
	RenderMain(ctx context.Context, m MainModel) ([]byte, error)
	RenderNote(ctx context.Context, m NoteModel) ([]byte, error)
}

// RenderError carries the human-readable cause of a failed document generation
type RenderError struct {
	Kind  Kind
	Cause error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("Cannot render %s document: %v", e.Kind, e.Cause)
}

func (e *RenderError) Unwrap() error {
	return e.Cause
}

func asRenderError(kind Kind, err error) *RenderError {
	var rErr *RenderError
	if errors.As(err, &rErr) {
		return rErr
	}
	return &RenderError{
		Kind:  kind,
		Cause: err,
	}
}
