package document

import (
	"context"
	"fmt"
	"time"

	"github.com/myupstage/visitationbook-backend/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GeneratorOptions contains the collaborators of a Generator
type GeneratorOptions struct {
	Renderer Renderer
	Blobs    BlobStore
	Logger   *zap.Logger
}

// Generator renders documents and stores them under a fresh name every time,
// so a regenerated document never reuses the reference of the one it replaces.
type Generator struct {
	GeneratorOptions
}

// NewGenerator returns a Generator
func NewGenerator(option GeneratorOptions) (*Generator, error) {
	if option.Renderer == nil {
		return nil, fmt.Errorf("nil Renderer is invalid")
	}
	if option.Blobs == nil {
		return nil, fmt.Errorf("nil Blobs is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Generator{
		GeneratorOptions: option,
	}, nil
}

func blobName(kind Kind, owner string) string {
	prefix := "book_purchase"
	switch kind {
	case KindNote:
		prefix = "note"
	case KindThankYou:
		prefix = "thank_you"
	}
	return fmt.Sprintf("%s_%s_%s.pdf", prefix, owner, uuid.New().String())
}

// Main renders and stores the keepsake book, returning the new reference
func (g *Generator) Main(ctx context.Context, m MainModel) (string, error) {
	start := time.Now()
	data, err := g.Renderer.RenderMain(ctx, m)
	metrics.DocumentRenderLatency.WithLabelValues(string(KindMain)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DocumentRenderFailuresTotal.WithLabelValues(string(KindMain)).Inc()
		return "", asRenderError(KindMain, err)
	}
	ref, err := g.Blobs.Save(ctx, blobName(KindMain, m.PurchaseID), data)
	if err != nil {
		metrics.DocumentRenderFailuresTotal.WithLabelValues(string(KindMain)).Inc()
		return "", asRenderError(KindMain, err)
	}
	metrics.DocumentsRenderedTotal.WithLabelValues(string(KindMain)).Inc()
	return ref, nil
}

// Note renders and stores a thank-you note. The rendered bytes are returned as well so they can be attached to an email.
func (g *Generator) Note(ctx context.Context, m NoteModel) (string, []byte, error) {
	kind, owner := KindNote, m.PurchaseID
	if m.EntryID != "" {
		kind, owner = KindThankYou, m.EntryID
	}
	start := time.Now()
	data, err := g.Renderer.RenderNote(ctx, m)
	metrics.DocumentRenderLatency.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DocumentRenderFailuresTotal.WithLabelValues(string(kind)).Inc()
		return "", nil, asRenderError(kind, err)
	}
	ref, err := g.Blobs.Save(ctx, blobName(kind, owner), data)
	if err != nil {
		metrics.DocumentRenderFailuresTotal.WithLabelValues(string(kind)).Inc()
		return "", nil, asRenderError(kind, err)
	}
	metrics.DocumentsRenderedTotal.WithLabelValues(string(kind)).Inc()
	return ref, data, nil
}

// Discard deletes the artifact behind ref. An empty ref is a no-op.
func (g *Generator) Discard(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	return g.Blobs.Delete(ctx, ref)
}
