package document

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBlobStore(t *testing.T, store BlobStore) {
	ctx := context.Background()

	ref, err := store.Save(ctx, "book_purchase_1.pdf", []byte("%PDF-1.3"))
	require.NoError(t, err)
	assert.NotEmpty(t, ref)

	data, err := ReadAll(ctx, store, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.3"), data)

	require.NoError(t, store.Delete(ctx, ref))
	_, err = store.Open(ctx, ref)
	assert.ErrorIs(t, err, ErrBlobNotFound)

	// deleting again is a no-op
	assert.NoError(t, store.Delete(ctx, ref))

	_, err = store.Save(ctx, "../escape.pdf", []byte("x"))
	assert.Error(t, err)
}

func TestDiskStore(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	testBlobStore(t, store)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	testBlobStore(t, store)
	assert.Equal(t, 0, store.Len())
}

func TestNewDiskStoreEmptyRoot(t *testing.T) {
	_, err := NewDiskStore("")
	assert.Error(t, err)
}
