package entitlement

import (
	"testing"
	"time"

	"github.com/myupstage/visitationbook-backend/catalog"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)

func grant(created, max int) *Entitlement {
	return &Entitlement{
		ID:           "e1",
		AccountID:    "a1",
		Category:     catalog.CategoryVisitation,
		MaxBooks:     max,
		BooksCreated: created,
		StartsAt:     now.Add(-time.Hour),
		EndsAt:       now.Add(time.Hour),
		Active:       true,
	}
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid(grant(0, 1), now))
	assert.True(t, IsValid(grant(9, 10), now))
	assert.False(t, IsValid(grant(10, 10), now))
	assert.False(t, IsValid(grant(11, 10), now))
	assert.False(t, IsValid(nil, now))

	inactive := grant(0, 10)
	inactive.Active = false
	assert.False(t, IsValid(inactive, now))

	expired := grant(0, 10)
	expired.EndsAt = now
	assert.False(t, IsValid(expired, now), "end timestamp is exclusive")
	assert.True(t, IsValid(expired, now.Add(-time.Nanosecond)))
}

func TestCanCreateMatchesQuota(t *testing.T) {
	for created := 0; created <= 4; created++ {
		assert.Equal(t, created < 3, CanCreate(grant(created, 3), now), "created=%d", created)
	}
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, 3, grant(2, 5).Remaining())
	assert.Equal(t, 0, grant(5, 5).Remaining())
	assert.Equal(t, 0, grant(7, 5).Remaining())
}

func TestEndFor(t *testing.T) {
	end := endFor(Plan{DurationMonths: 12}, now)
	assert.Equal(t, now.AddDate(0, 0, 360), end)
}

func TestLoadPlansFromFile(t *testing.T) {
	plans, err := loadPlansFromFile("testdata/plans.json")
	require.NoError(t, err)
	require.Len(t, plans, 3)

	assert.Equal(t, "home-basic", plans[0].ID)
	assert.Equal(t, catalog.CategoryVisitation, plans[0].Category)
	assert.True(t, decimal.RequireFromString("99").Equal(plans[0].Price))
	assert.Equal(t, "usd", plans[1].Currency, "currency defaults to usd")
	assert.True(t, plans[2].Retired)
}

func TestLoadPlansFromFileRejectsInvalid(t *testing.T) {
	_, err := loadPlansFromFile("testdata/invalid_plans.json")
	assert.Error(t, err)

	_, err = loadPlansFromFile("testdata/missing.json")
	assert.Error(t, err)
}

func TestLookupKeyChangesWithPrice(t *testing.T) {
	a := Plan{Name: "Funeral Home Basic", Category: catalog.CategoryVisitation, MaxBooks: 10, DurationMonths: 1, Price: decimal.NewFromInt(99), Currency: "usd"}
	b := a
	b.Price = decimal.NewFromInt(109)

	assert.Equal(t, "funeral-home-basic_visitation_10_1mo_99.00_usd", a.LookupKey())
	assert.NotEqual(t, a.LookupKey(), b.LookupKey())
}
