package purchase

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/myupstage/visitationbook-backend/document"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string {
	return &s
}

func completePurchase() *Purchase {
	died := time.Date(2021, 1, 2, 0, 0, 0, 0, time.UTC)
	return &Purchase{
		DeceasedName:  "Pat Doe",
		DeceasedImage: "portrait.png",
		DateOfDeath:   &died,
	}
}

func TestEvaluateToggles(t *testing.T) {
	p := completePurchase()
	assert.Equal(t, StateComplete, Evaluate(p))

	Fields{DeceasedName: strPtr("  ")}.Apply(p)
	assert.Equal(t, StateIncomplete, Evaluate(p))
	assert.False(t, p.IsComplete)
	Fields{DeceasedName: strPtr("Pat Doe")}.Apply(p)
	assert.True(t, p.IsComplete)

	Fields{DeceasedImage: strPtr("")}.Apply(p)
	assert.False(t, p.IsComplete)
	Fields{DeceasedImage: strPtr("portrait.png")}.Apply(p)
	assert.True(t, p.IsComplete)

	Fields{DateOfDeath: &time.Time{}}.Apply(p)
	assert.Nil(t, p.DateOfDeath)
	assert.False(t, p.IsComplete)
	died := time.Date(2021, 1, 2, 0, 0, 0, 0, time.UTC)
	Fields{DateOfDeath: &died}.Apply(p)
	assert.True(t, p.IsComplete)

	assert.Equal(t, StateIncomplete, Evaluate(nil))
}

func TestRecomputeIgnoresStoredFlags(t *testing.T) {
	p := &Purchase{IsComplete: true, IsPaid: true, Funding: Unpaid()}
	p.Recompute()
	assert.False(t, p.IsComplete)
	assert.False(t, p.IsPaid)

	require.NoError(t, completePurchase().BeforeSave(nil))
}

func TestFundingIsPaid(t *testing.T) {
	assert.False(t, Unpaid().IsPaid())
	assert.True(t, EntitlementFunded("e1").IsPaid())
	assert.True(t, DirectPayment("t1").IsPaid())
	assert.False(t, Funding{Kind: FundingDirectPayment}.IsPaid())
}

func TestFieldsApplyLeavesNilFieldsUntouched(t *testing.T) {
	p := completePurchase()
	p.AttendingNote = "Thank you"
	p.ObituaryID = strPtr("o1")

	Fields{TextColor: strPtr("#102030")}.Apply(p)
	assert.Equal(t, "Pat Doe", p.DeceasedName)
	assert.Equal(t, "Thank you", p.AttendingNote)
	assert.Equal(t, "#102030", p.TextColor)

	Fields{ObituaryID: strPtr("")}.Apply(p)
	assert.Nil(t, p.ObituaryID)
}

func TestDefaultCapabilities(t *testing.T) {
	caps := DefaultCapabilities()
	assert.False(t, caps.Picture)
	assert.True(t, caps.Name)
	assert.True(t, caps.Address)
	assert.True(t, caps.Email)
	assert.False(t, caps.SpecialNotes)
}

func TestPublicHidesPaymentFields(t *testing.T) {
	p := completePurchase()
	p.ID = "p1"
	p.AccountID = "a1"
	p.Funding = DirectPayment("t1")
	p.AttendingNote = "secret"
	p.Recompute()

	view := p.Public()
	assert.Equal(t, "p1", view.ID)
	assert.True(t, view.IsComplete)

	body, err := json.Marshal(view)
	require.NoError(t, err)
	for _, hidden := range []string{"accountId", "funding", "isPaid", "attendingNote", "noteDocument"} {
		assert.NotContains(t, string(body), hidden)
	}
}

func TestDocumentRef(t *testing.T) {
	p := &Purchase{}
	p.setDocumentRef(document.KindMain, "main.pdf")
	p.setDocumentRef(document.KindNote, "note.pdf")
	assert.Equal(t, "main.pdf", p.DocumentRef(document.KindMain))
	assert.Equal(t, "note.pdf", p.DocumentRef(document.KindNote))
}

func TestNoteChanged(t *testing.T) {
	assert.True(t, noteChanged("", "Thanks"))
	assert.True(t, noteChanged("Thanks", "Thanks!"))
	assert.False(t, noteChanged("Thanks", "Thanks"))
	assert.False(t, noteChanged("Thanks", ""))
}

func TestParseDate(t *testing.T) {
	d, err := parseDate(strPtr("2021-01-02"))
	require.NoError(t, err)
	assert.Equal(t, 2021, d.Year())

	d, err = parseDate(strPtr("2021-01-02T15:04:05Z"))
	require.NoError(t, err)
	assert.Equal(t, 15, d.Hour())

	d, err = parseDate(strPtr(""))
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	d, err = parseDate(nil)
	require.NoError(t, err)
	assert.Nil(t, d)

	_, err = parseDate(strPtr("yesterday"))
	assert.Error(t, err)
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()
	var wg sync.WaitGroup
	var mu sync.Mutex
	inside := 0
	maxInside := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("p1")
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxInside)
	assert.Equal(t, 0, k.size())
}
