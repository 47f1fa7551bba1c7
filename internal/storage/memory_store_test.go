package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mohamedkhairy/stock-watchlist/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMonitor(owner, code string) *models.Monitor {
	return &models.Monitor{
		OwnerID:  owner,
		Code:     code,
		Name:     "Test " + code,
		IsActive: true,
		Rules: []models.Rule{
			{ID: "r1", Kind: models.RuleKindPrice, Direction: models.DirectionAbove, TargetPrice: models.Float(1.5), IsActive: true},
		},
	}
}

func TestInMemoryMonitorStore_Insert(t *testing.T) {
	store := NewInMemoryMonitorStore()
	ctx := context.Background()

	inserted, err := store.Insert(ctx, newMonitor("alice", "159509"))
	require.NoError(t, err)

	assert.NotEmpty(t, inserted.ID)
	assert.Equal(t, "sz159509", inserted.Code)
	assert.False(t, inserted.CreatedAt.IsZero())
	assert.Equal(t, inserted.CreatedAt, inserted.UpdatedAt)

	// Inserting the same ID again fails
	_, err = store.Insert(ctx, inserted)
	assert.Error(t, err)
}

func TestInMemoryMonitorStore_InsertRejectsInvalid(t *testing.T) {
	store := NewInMemoryMonitorStore()

	m := newMonitor("alice", "sz159509")
	m.Rules = nil

	_, err := store.Insert(context.Background(), m)
	assert.True(t, errors.Is(err, models.ErrNoRules), "got %v", err)
	assert.Equal(t, 0, store.Count())

	_, err = store.Insert(context.Background(), nil)
	assert.Error(t, err)
}

func TestInMemoryMonitorStore_ReturnsCopies(t *testing.T) {
	store := NewInMemoryMonitorStore()
	ctx := context.Background()

	inserted, err := store.Insert(ctx, newMonitor("alice", "sz159509"))
	require.NoError(t, err)

	inserted.Rules[0].HasFired = true
	got, err := store.Get(ctx, inserted.ID)
	require.NoError(t, err)
	assert.False(t, got.Rules[0].HasFired, "mutating a returned monitor must not change the store")
}

func TestInMemoryMonitorStore_Replace(t *testing.T) {
	store := NewInMemoryMonitorStore()
	ctx := context.Background()
	clock := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	inserted, err := store.Insert(ctx, newMonitor("alice", "sz159509"))
	require.NoError(t, err)

	clock = clock.Add(time.Minute)
	updated, err := store.Replace(ctx, inserted.ID, models.MonitorPatch{Name: models.StringPtr("Renamed")})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, clock, updated.UpdatedAt)
	assert.Equal(t, inserted.CreatedAt, updated.CreatedAt)

	t.Run("unknown id is not found", func(t *testing.T) {
		_, err := store.Replace(ctx, "missing", models.MonitorPatch{})
		assert.True(t, errors.Is(err, models.ErrMonitorNotFound))
	})

	t.Run("invalid patch is not applied", func(t *testing.T) {
		_, err := store.Replace(ctx, inserted.ID, models.MonitorPatch{
			Name:  models.StringPtr("Half applied"),
			Rules: []models.Rule{},
		})
		assert.True(t, errors.Is(err, models.ErrNoRules))

		got, err := store.Get(ctx, inserted.ID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Name)
		assert.Len(t, got.Rules, 1)
	})
}

func TestInMemoryMonitorStore_LoadAllAndOwners(t *testing.T) {
	store := NewInMemoryMonitorStore()
	ctx := context.Background()

	for _, m := range []*models.Monitor{
		newMonitor("bob", "sh600000"),
		newMonitor("alice", "sz159509"),
		newMonitor("alice", "sz000001"),
	} {
		_, err := store.Insert(ctx, m)
		require.NoError(t, err)
	}

	alice, err := store.LoadAll(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, alice, 2)

	nobody, err := store.LoadAll(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, nobody)

	owners, err := store.ListOwners(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, owners)
}

func TestInMemoryMonitorStore_Delete(t *testing.T) {
	store := NewInMemoryMonitorStore()
	ctx := context.Background()

	inserted, err := store.Insert(ctx, newMonitor("alice", "sz159509"))
	require.NoError(t, err)

	deleted, err := store.Delete(ctx, inserted.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.Delete(ctx, inserted.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = store.Get(ctx, inserted.ID)
	assert.True(t, errors.Is(err, models.ErrMonitorNotFound))
}
