package document

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveImage(t *testing.T) {
	ctx := context.Background()
	blobs := NewMemoryStore()

	ref, err := SaveImage(ctx, blobs, "portrait_p1", "Mom.PNG", bytes.NewReader(pngBytes(t)))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "portrait_p1_"))
	assert.True(t, strings.HasSuffix(ref, ".png"))

	ok, err := Exists(ctx, blobs, ref)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSaveImageRejects(t *testing.T) {
	ctx := context.Background()
	blobs := NewMemoryStore()

	_, err := SaveImage(ctx, blobs, "cover_p1", "cover.gif", bytes.NewReader(pngBytes(t)))
	assert.ErrorIs(t, err, ErrUnsupportedImage)

	// a png named .jpg does not pass the content check
	_, err = SaveImage(ctx, blobs, "cover_p1", "cover.jpg", bytes.NewReader(pngBytes(t)))
	assert.ErrorIs(t, err, ErrUnsupportedImage)

	_, err = SaveImage(ctx, blobs, "cover_p1", "cover.png", strings.NewReader("#!/bin/sh"))
	assert.ErrorIs(t, err, ErrUnsupportedImage)

	big := append(pngBytes(t), make([]byte, MaxImageSize)...)
	_, err = SaveImage(ctx, blobs, "cover_p1", "cover.png", bytes.NewReader(big))
	assert.ErrorIs(t, err, ErrImageTooLarge)

	assert.Equal(t, 0, blobs.Len())
}

func TestExists(t *testing.T) {
	ok, err := Exists(context.Background(), NewMemoryStore(), "missing.png")
	require.NoError(t, err)
	assert.False(t, ok)
}
