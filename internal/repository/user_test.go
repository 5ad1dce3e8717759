package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/storage"
)

func TestSeedIfEmptyOnlyOnce(t *testing.T) {
	r := newRepos(t)
	seeded, err := r.users.SeedIfEmpty(context.Background(), DefaultSeed())
	require.NoError(t, err)
	require.False(t, seeded)

	users, err := r.users.List(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 3)
}

func TestCreateAndGetByEmail(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)

	u, err := r.users.Create(ctx, "  Dave  ", "Dave@Example.com")
	require.NoError(t, err)
	require.Equal(t, "Dave", u.Name)
	require.Equal(t, "dave@example.com", u.Email)
	require.Equal(t, model.StatusOnline, u.Status)
	require.Equal(t, model.UserAvatar, u.Avatar)
	require.Contains(t, u.ID, "user-")

	got, err := r.users.GetByEmail(ctx, "DAVE@example.com ")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	_, err = r.users.Create(ctx, "Other Dave", "dave@EXAMPLE.com")
	require.ErrorIs(t, err, ErrEmailTaken)

	_, err = r.users.GetByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSetStatusStampsLastSeen(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r.users.now = func() time.Time { return now }

	require.NoError(t, r.users.SetStatus(ctx, "user-2", model.StatusBusy))

	u, err := r.users.GetByID(ctx, "user-2")
	require.NoError(t, err)
	require.Equal(t, model.StatusBusy, u.Status)
	require.NotNil(t, u.LastSeen)
	require.True(t, now.Equal(*u.LastSeen))

	other, err := r.users.GetByID(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, model.StatusOnline, other.Status)
	require.Nil(t, other.LastSeen)
}

func TestSetStatusUnknownUserIsNoop(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	before := r.store.Blob(storage.Users)

	require.NoError(t, r.users.SetStatus(ctx, "ghost", model.StatusOnline))
	require.Equal(t, before, r.store.Blob(storage.Users))
}

func TestSetStatusInvalid(t *testing.T) {
	r := newRepos(t)
	err := r.users.SetStatus(context.Background(), "user-1", "sleeping")
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestSetStatusStoreDown(t *testing.T) {
	r := newRepos(t)
	r.store.FailNext(1)
	err := r.users.SetStatus(context.Background(), "user-1", model.StatusAway)
	require.ErrorIs(t, err, storage.ErrStoreUnavailable)
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)

	u, err := r.users.UpdateProfile(ctx, "user-2", "Robert Smith", "")
	require.NoError(t, err)
	require.Equal(t, "Robert Smith", u.Name)
	require.Equal(t, model.UserAvatar, u.Avatar)

	u, err = r.users.UpdateProfile(ctx, "user-2", "", "/bob.png")
	require.NoError(t, err)
	require.Equal(t, "Robert Smith", u.Name)
	require.Equal(t, "/bob.png", u.Avatar)

	_, err = r.users.UpdateProfile(ctx, "ghost", "x", "")
	require.ErrorIs(t, err, ErrNotFound)
}
