package guest

import (
	"errors"
	"testing"

	"github.com/myupstage/visitationbook-backend/purchase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	caps := purchase.DefaultCapabilities()
	assert.NoError(t, Check(caps, Values{Name: "Alex", Address: "1 Main St", Email: "alex@example.com"}))
	assert.NoError(t, Check(purchase.Capabilities{}, Values{}))

	err := Check(caps, Values{Name: "Alex", Notes: "So sorry"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCapabilityDenied))
	var denied *CapabilityDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, "special_notes", denied.Field)
}

func TestCheckReportsFirstDeniedField(t *testing.T) {
	err := Check(purchase.Capabilities{}, Values{Picture: "me.png", Email: "alex@example.com", Notes: "hi"})
	var denied *CapabilityDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, "picture", denied.Field)

	err = Check(purchase.Capabilities{Picture: true, Name: true, Address: true}, Values{Email: "alex@example.com", Notes: "hi"})
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, "email", denied.Field)
}

func TestValuesTrimmed(t *testing.T) {
	v := Values{Name: "  Alex ", Notes: "\n"}.trimmed()
	assert.Equal(t, "Alex", v.Name)
	assert.Empty(t, v.Notes)
}

func TestCard(t *testing.T) {
	e := &Entry{Name: "Alex", Email: "alex@example.com", ThankYouDocument: "note.pdf"}
	card := e.Card()
	assert.Equal(t, "Alex", card.Name)
	assert.Equal(t, "alex@example.com", card.Email)
}
