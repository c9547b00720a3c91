package obituary

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/myupstage/visitationbook-backend/db"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func getTestManager(t *testing.T) *Manager {
	uri := os.Getenv("POSTGRES_TEST_URI")
	if uri == "" {
		t.Skip("POSTGRES_TEST_URI is not set")
	}
	logger := zap.NewNop()
	gormDB, err := db.New(db.Options{
		URI:    uri,
		Logger: logger,
	})
	require.NoError(t, err)

	m, err := NewManager(logger, gormDB)
	require.NoError(t, err)
	return m
}

func TestCreateRequiresAccount(t *testing.T) {
	m := &Manager{logger: zap.NewNop()}
	err := m.Create(context.Background(), &Obituary{DeceasedName: "Pat Doe"})
	assert.Error(t, err)
}

func TestIncrementVisit(t *testing.T) {
	m := getTestManager(t)
	ctx := context.Background()

	died := time.Date(2021, 1, 2, 0, 0, 0, 0, time.UTC)
	o := &Obituary{
		AccountID:    uuid.New().String(),
		DeceasedName: "Pat Doe",
		DateOfDeath:  &died,
		VisitCount:   42,
	}
	require.NoError(t, m.Create(ctx, o))
	require.NotEmpty(t, o.ID)

	stored, err := m.GetByID(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, int64(0), stored.VisitCount)

	count, err := m.IncrementVisit(ctx, o.ID, "")
	require.NoError(t, err)
	require.NotNil(t, count)
	assert.Equal(t, int64(1), *count)

	count, err = m.IncrementVisit(ctx, o.ID, "someone-else")
	require.NoError(t, err)
	assert.Equal(t, int64(2), *count)

	// owner visits are not counted
	count, err = m.IncrementVisit(ctx, o.ID, o.AccountID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), *count)

	count, err = m.IncrementVisit(ctx, uuid.New().String(), "")
	require.NoError(t, err)
	assert.Nil(t, count)

	missing, err := m.GetByID(ctx, uuid.New().String())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFieldsApply(t *testing.T) {
	born := time.Date(1950, 3, 4, 0, 0, 0, 0, time.UTC)
	died := time.Date(2021, 1, 2, 0, 0, 0, 0, time.UTC)
	o := &Obituary{
		DeceasedName: "Pat Doe",
		Portrait:     "pat.png",
		DateOfBirth:  &born,
		DateOfDeath:  &died,
		Body:         "Loved by all",
	}

	name := "Patricia Doe"
	Fields{DeceasedName: &name, DateOfBirth: &time.Time{}}.Apply(o)

	assert.Equal(t, "Patricia Doe", o.DeceasedName)
	assert.Equal(t, "pat.png", o.Portrait)
	assert.Nil(t, o.DateOfBirth)
	require.NotNil(t, o.DateOfDeath)
	assert.True(t, died.Equal(*o.DateOfDeath))
	assert.Equal(t, "Loved by all", o.Body)
}

func TestUpdateAndDelete(t *testing.T) {
	m := getTestManager(t)
	ctx := context.Background()

	o := &Obituary{
		AccountID:    uuid.New().String(),
		DeceasedName: "Pat Doe",
	}
	require.NoError(t, m.Create(ctx, o))

	name := "Patricia Doe"
	_, err := m.Update(ctx, o.ID, "someone-else", Fields{DeceasedName: &name})
	assert.ErrorIs(t, err, ErrForbidden)

	updated, err := m.Update(ctx, o.ID, o.AccountID, Fields{DeceasedName: &name})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "Patricia Doe", updated.DeceasedName)

	missing, err := m.Update(ctx, uuid.New().String(), o.AccountID, Fields{DeceasedName: &name})
	require.NoError(t, err)
	assert.Nil(t, missing)

	deleted, err := m.Delete(ctx, o.ID, "someone-else")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.False(t, deleted)

	deleted, err = m.Delete(ctx, o.ID, o.AccountID)
	require.NoError(t, err)
	assert.True(t, deleted)

	gone, err := m.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	deleted, err = m.Delete(ctx, o.ID, o.AccountID)
	require.NoError(t, err)
	assert.False(t, deleted)
}
