package storage_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chatsync/internal/storage"
	"github.com/chatsync/internal/storage/memory"
)

type record struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

func TestValidate(t *testing.T) {
	for _, name := range []storage.Collection{storage.Users, storage.Conversations, storage.Messages} {
		require.NoError(t, storage.Validate(name))
	}
	err := storage.Validate("sessions")
	require.ErrorIs(t, err, storage.ErrUnknownCollection)
}

func TestDecodeBlobEmpty(t *testing.T) {
	records, err := storage.DecodeBlob(nil)
	require.NoError(t, err)
	require.NotNil(t, records)
	require.Empty(t, records)

	records, err = storage.DecodeBlob([]byte("null"))
	require.NoError(t, err)
	require.NotNil(t, records)
	require.Empty(t, records)
}

func TestDecodeBlobCorrupt(t *testing.T) {
	_, err := storage.DecodeBlob([]byte("{not json"))
	require.Error(t, err)
}

func TestEncodeBlobNil(t *testing.T) {
	data, err := storage.EncodeBlob(nil)
	require.NoError(t, err)
	require.JSONEq(t, "[]", string(data))
}

func TestUnavailableKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := storage.Unavailable("redis.ReadCollection", cause)
	require.ErrorIs(t, err, storage.ErrStoreUnavailable)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "redis.ReadCollection")
}

func TestLoadSaveRoundTripPreservesOrder(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	in := []record{{ID: "b", Value: 2}, {ID: "a", Value: 1}, {ID: "c", Value: 3}}
	require.NoError(t, storage.Save(ctx, s, storage.Messages, in))

	out, err := storage.Load[record](ctx, s, storage.Messages)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestLoadUnwrittenCollectionIsEmpty(t *testing.T) {
	out, err := storage.Load[record](context.Background(), memory.New(), storage.Users)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestLoadBadRecord(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.WriteCollection(ctx, storage.Users, []json.RawMessage{
		json.RawMessage(`{"id":"ok","value":1}`),
		json.RawMessage(`{"id":"bad","value":"x"}`),
	}))
	_, err := storage.Load[record](ctx, s, storage.Users)
	require.Error(t, err)
	require.Contains(t, err.Error(), "users[1]")
}

// slowStore — хранилище без UpdateCollection и с задержкой, как у сетевого бэкенда.
type slowStore struct {
	storage.CollectionStore
	delay time.Duration
}

func (s slowStore) ReadCollection(ctx context.Context, name storage.Collection) ([]json.RawMessage, error) {
	time.Sleep(s.delay)
	return s.CollectionStore.ReadCollection(ctx, name)
}

func (s slowStore) WriteCollection(ctx context.Context, name storage.Collection, records []json.RawMessage) error {
	time.Sleep(s.delay)
	return s.CollectionStore.WriteCollection(ctx, name, records)
}

func TestUpdateSerializesWritersWithoutUpdater(t *testing.T) {
	ctx := context.Background()
	s := slowStore{CollectionStore: memory.New(), delay: 2 * time.Millisecond}
	_, isUpdater := storage.CollectionStore(s).(storage.Updater)
	require.False(t, isUpdater)

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- storage.Update(ctx, s, storage.Messages, func(items []record) ([]record, error) {
				return append(items, record{ID: fmt.Sprintf("m%d", i), Value: i}), nil
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	out, err := storage.Load[record](ctx, s, storage.Messages)
	require.NoError(t, err)
	require.Len(t, out, writers)
}

func TestUpdateUnknownCollection(t *testing.T) {
	err := storage.Update(context.Background(), memory.New(), "sessions", func(items []record) ([]record, error) {
		return items, nil
	})
	require.ErrorIs(t, err, storage.ErrUnknownCollection)
}

func TestUpdateFallbackStoreFailure(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	s := slowStore{CollectionStore: mem}
	mem.FailNext(1)
	err := storage.Update(ctx, s, storage.Users, func(items []record) ([]record, error) {
		return append(items, record{ID: "u1"}), nil
	})
	require.ErrorIs(t, err, storage.ErrStoreUnavailable)
}
