package document

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		img.SetGray(x, x, color.Gray{Y: 200})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestRenderMain(t *testing.T) {
	ctx := context.Background()
	blobs := NewMemoryStore()
	portrait, err := blobs.Save(ctx, "portrait.png", pngBytes(t))
	require.NoError(t, err)

	r, err := NewPDFRenderer(PDFRendererOptions{Blobs: blobs, SiteName: "Visitation Book"})
	require.NoError(t, err)

	born := time.Date(1940, time.March, 4, 0, 0, 0, 0, time.UTC)
	passed := time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC)
	guests := make([]Guest, 0, 6)
	for i := 0; i < 6; i++ {
		guests = append(guests, Guest{Name: "Guest", Address: "1 Main St", Notes: "With love, from the Müller family"})
	}

	data, err := r.RenderMain(ctx, MainModel{
		PurchaseID:   "p1",
		DeceasedName: "Pat Doe",
		Portrait:     portrait,
		BornOn:       &born,
		PassedOn:     &passed,
		TextColor:    "#333366",
		Guests:       guests,
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestRenderMainMissingImage(t *testing.T) {
	r, err := NewPDFRenderer(PDFRendererOptions{Blobs: NewMemoryStore()})
	require.NoError(t, err)

	_, err = r.RenderMain(context.Background(), MainModel{
		PurchaseID:   "p1",
		DeceasedName: "Pat Doe",
		Portrait:     "missing.jpg",
	})
	require.Error(t, err)

	var rErr *RenderError
	require.True(t, errors.As(err, &rErr))
	assert.Equal(t, KindMain, rErr.Kind)
	assert.True(t, errors.Is(err, ErrBlobNotFound))
}

func TestRenderMainLeavesOutBadGuestPicture(t *testing.T) {
	ctx := context.Background()
	blobs := NewMemoryStore()
	portrait, err := blobs.Save(ctx, "portrait.png", pngBytes(t))
	require.NoError(t, err)
	corrupt, err := blobs.Save(ctx, "corrupt.png", []byte("not an image"))
	require.NoError(t, err)

	r, err := NewPDFRenderer(PDFRendererOptions{Blobs: blobs})
	require.NoError(t, err)

	data, err := r.RenderMain(ctx, MainModel{
		PurchaseID:   "p1",
		DeceasedName: "Pat Doe",
		Portrait:     portrait,
		Guests: []Guest{
			{Name: "Alex", Picture: portrait},
			{Name: "Sam", Picture: "nope.jpg"},
			{Name: "Kim", Picture: corrupt},
			{Name: "Lou", Picture: portrait},
		},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestRenderNote(t *testing.T) {
	r, err := NewPDFRenderer(PDFRendererOptions{Blobs: NewMemoryStore()})
	require.NoError(t, err)

	data, err := r.RenderNote(context.Background(), NoteModel{
		PurchaseID:   "p1",
		EntryID:      "e1",
		DeceasedName: "Pat",
		Title:        "Thank you for attending note for Pat",
		Body:         "Dear Alex, thank you for honoring Pat.",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestParseColor(t *testing.T) {
	r, g, b := parseColor("#336699")
	assert.Equal(t, []int{0x33, 0x66, 0x99}, []int{r, g, b})

	r, g, b = parseColor("not a color")
	assert.Equal(t, []int{0, 0, 0}, []int{r, g, b})
}
