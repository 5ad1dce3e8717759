package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chatsync/internal/storage"
	"github.com/chatsync/internal/storage/storagetest"
)

func TestCollectionStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.CollectionStore {
		return New()
	})
}

func TestFailNext(t *testing.T) {
	ctx := context.Background()
	c := New()
	c.FailNext(2)

	_, err := c.ReadCollection(ctx, storage.Users)
	require.ErrorIs(t, err, storage.ErrStoreUnavailable)
	err = c.WriteCollection(ctx, storage.Users, nil)
	require.ErrorIs(t, err, storage.ErrStoreUnavailable)

	_, err = c.ReadCollection(ctx, storage.Users)
	require.NoError(t, err)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().ReadCollection(ctx, storage.Users)
	require.ErrorIs(t, err, storage.ErrStoreUnavailable)
	require.ErrorIs(t, err, context.Canceled)
}

func TestBlobIsCopy(t *testing.T) {
	c := New()
	require.Nil(t, c.Blob(storage.Users))
	require.NoError(t, storage.Save(context.Background(), c, storage.Users, []map[string]string{{"id": "u1"}}))

	b := c.Blob(storage.Users)
	require.JSONEq(t, `[{"id":"u1"}]`, string(b))
	b[0] = 'x'
	require.JSONEq(t, `[{"id":"u1"}]`, string(c.Blob(storage.Users)))
}
