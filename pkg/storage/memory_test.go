package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/kennel/pkg/auth"
)

func TestMemoryIdentityStore_UpsertAndFind(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdentityStore()
	store.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	admin := &auth.Identity{Name: "admin", PasswordHash: "h1", Role: auth.RoleAdmin, Active: true}
	require.NoError(t, store.Upsert(ctx, admin))
	assert.Equal(t, int64(1), admin.ID)
	assert.False(t, admin.CreatedAt.IsZero())

	guest := &auth.Identity{Name: "guest", PasswordHash: "h2", Role: auth.RoleGuest, Active: true}
	require.NoError(t, store.Upsert(ctx, guest))
	assert.Equal(t, int64(2), guest.ID)

	found, err := store.FindByName(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "h1", found.PasswordHash)
	assert.Equal(t, auth.RoleAdmin, found.Role)

	// Returned values are copies
	found.Active = false
	again, err := store.FindByName(ctx, "admin")
	require.NoError(t, err)
	assert.True(t, again.Active)
}

func TestMemoryIdentityStore_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdentityStore()

	require.NoError(t, store.Upsert(ctx, &auth.Identity{Name: "guest", Role: auth.RoleGuest, Active: true}))
	update := &auth.Identity{Name: "guest", Role: auth.RoleGuest, Active: false}
	require.NoError(t, store.Upsert(ctx, update))
	assert.Equal(t, int64(1), update.ID)

	found, err := store.FindByName(ctx, "guest")
	require.NoError(t, err)
	assert.False(t, found.Active)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMemoryIdentityStore_Errors(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdentityStore()

	_, err := store.FindByName(ctx, "missing")
	assert.ErrorIs(t, err, auth.ErrIdentityNotFound)

	assert.Error(t, store.Upsert(ctx, &auth.Identity{Role: auth.RoleGuest}))
	assert.Error(t, store.Upsert(ctx, &auth.Identity{Name: "x", Role: "OWNER"}))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = store.FindByName(cancelled, "missing")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryIdentityStore_ListOrdered(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdentityStore()
	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, store.Upsert(ctx, &auth.Identity{Name: name, Role: auth.RoleGuest}))
	}

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{all[0].Name, all[1].Name, all[2].Name})
}
