package document

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubRenderer struct {
	err error
}

func (s *stubRenderer) RenderMain(ctx context.Context, m MainModel) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []byte("%PDF main " + m.DeceasedName), nil
}

func (s *stubRenderer) RenderNote(ctx context.Context, m NoteModel) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []byte("%PDF note " + m.Body), nil
}

func TestGeneratorFreshReferences(t *testing.T) {
	ctx := context.Background()
	blobs := NewMemoryStore()
	g, err := NewGenerator(GeneratorOptions{Renderer: &stubRenderer{}, Blobs: blobs, Logger: zap.NewNop()})
	require.NoError(t, err)

	first, err := g.Main(ctx, MainModel{PurchaseID: "p1", DeceasedName: "Pat"})
	require.NoError(t, err)
	second, err := g.Main(ctx, MainModel{PurchaseID: "p1", DeceasedName: "Pat"})
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasPrefix(first, "book_purchase_p1_"))

	require.NoError(t, g.Discard(ctx, first))
	_, err = blobs.Open(ctx, first)
	assert.ErrorIs(t, err, ErrBlobNotFound)
	assert.NoError(t, g.Discard(ctx, ""))
}

func TestGeneratorNoteKinds(t *testing.T) {
	ctx := context.Background()
	g, err := NewGenerator(GeneratorOptions{Renderer: &stubRenderer{}, Blobs: NewMemoryStore(), Logger: zap.NewNop()})
	require.NoError(t, err)

	ref, data, err := g.Note(ctx, NoteModel{PurchaseID: "p1", Body: "hello"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "note_p1_"))
	assert.Equal(t, "%PDF note hello", string(data))

	ref, _, err = g.Note(ctx, NoteModel{PurchaseID: "p1", EntryID: "e9", Body: "hello"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "thank_you_e9_"))
}

func TestGeneratorWrapsRenderFailure(t *testing.T) {
	g, err := NewGenerator(GeneratorOptions{Renderer: &stubRenderer{err: errors.New("boom")}, Blobs: NewMemoryStore(), Logger: zap.NewNop()})
	require.NoError(t, err)

	_, err = g.Main(context.Background(), MainModel{PurchaseID: "p1"})
	var rErr *RenderError
	require.True(t, errors.As(err, &rErr))
	assert.Equal(t, KindMain, rErr.Kind)
	assert.EqualError(t, rErr.Cause, "boom")
}

func TestNewGeneratorValidation(t *testing.T) {
	_, err := NewGenerator(GeneratorOptions{Blobs: NewMemoryStore(), Logger: zap.NewNop()})
	assert.Error(t, err)
	_, err = NewGenerator(GeneratorOptions{Renderer: &stubRenderer{}, Logger: zap.NewNop()})
	assert.Error(t, err)
	_, err = NewGenerator(GeneratorOptions{Renderer: &stubRenderer{}, Blobs: NewMemoryStore()})
	assert.Error(t, err)
}
