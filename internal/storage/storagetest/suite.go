// Package storagetest — общий набор проверок для реализаций storage.CollectionStore.
package storagetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chatsync/internal/storage"
)

// Run прогоняет проверки на свежем хранилище для каждого подтеста.
func Run(t *testing.T, newStore func(t *testing.T) storage.CollectionStore) {
	t.Run("EmptyCollection", func(t *testing.T) {
		s := newStore(t)
		records, err := s.ReadCollection(context.Background(), storage.Users)
		require.NoError(t, err)
		require.NotNil(t, records)
		require.Empty(t, records)
	})

	t.Run("WriteReplacesWholeCollection", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.WriteCollection(ctx, storage.Messages, raw(`{"id":"m1"}`, `{"id":"m2"}`)))
		require.NoError(t, s.WriteCollection(ctx, storage.Messages, raw(`{"id":"m3"}`)))

		records, err := s.ReadCollection(ctx, storage.Messages)
		require.NoError(t, err)
		require.Len(t, records, 1)
		require.JSONEq(t, `{"id":"m3"}`, string(records[0]))
	})

	t.Run("OrderPreserved", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.WriteCollection(ctx, storage.Users, raw(`{"id":"c"}`, `{"id":"a"}`, `{"id":"b"}`)))

		records, err := s.ReadCollection(ctx, storage.Users)
		require.NoError(t, err)
		require.Len(t, records, 3)
		for i, want := range []string{`{"id":"c"}`, `{"id":"a"}`, `{"id":"b"}`} {
			require.JSONEq(t, want, string(records[i]))
		}
	})

	t.Run("CollectionsIndependent", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.WriteCollection(ctx, storage.Users, raw(`{"id":"u1"}`)))
		require.NoError(t, s.WriteCollection(ctx, storage.Conversations, raw(`{"id":"c1"}`, `{"id":"c2"}`)))

		users, err := s.ReadCollection(ctx, storage.Users)
		require.NoError(t, err)
		require.Len(t, users, 1)
		messages, err := s.ReadCollection(ctx, storage.Messages)
		require.NoError(t, err)
		require.Empty(t, messages)
	})

	t.Run("WriteEmpty", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.WriteCollection(ctx, storage.Users, raw(`{"id":"u1"}`)))
		require.NoError(t, s.WriteCollection(ctx, storage.Users, nil))

		records, err := s.ReadCollection(ctx, storage.Users)
		require.NoError(t, err)
		require.Empty(t, records)
	})

	t.Run("UnknownCollection", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		_, err := s.ReadCollection(ctx, "sessions")
		require.ErrorIs(t, err, storage.ErrUnknownCollection)
		err = s.WriteCollection(ctx, "sessions", raw(`{}`))
		require.ErrorIs(t, err, storage.ErrUnknownCollection)
	})

	// Прямые вызовы UpdateCollection минуют блокировку процесса в storage.Update:
	// атомарность должен дать сам бэкенд.
	t.Run("UpdateCollectionConcurrentWriters", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		u, ok := s.(storage.Updater)
		if !ok {
			t.Skip("backend has no UpdateCollection")
		}
		const writers = 20
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- u.UpdateCollection(ctx, storage.Messages, func(records []json.RawMessage) ([]json.RawMessage, error) {
					return append(records, json.RawMessage(fmt.Sprintf(`{"id":"m%d"}`, i))), nil
				})
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		records, err := s.ReadCollection(ctx, storage.Messages)
		require.NoError(t, err)
		require.Len(t, records, writers)
	})

	t.Run("UpdateNoChangeSkipsWrite", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.WriteCollection(ctx, storage.Users, raw(`{"id":"u1"}`)))
		err := storage.Update(ctx, s, storage.Users, func(items []map[string]string) ([]map[string]string, error) {
			return nil, storage.ErrNoChange
		})
		require.NoError(t, err)
		records, err := s.ReadCollection(ctx, storage.Users)
		require.NoError(t, err)
		require.Len(t, records, 1)
	})

	t.Run("UpdateMutatorErrorReturned", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		boom := fmt.Errorf("rejected")
		err := storage.Update(ctx, s, storage.Users, func(items []map[string]string) ([]map[string]string, error) {
			return nil, boom
		})
		require.ErrorIs(t, err, boom)
		require.NotErrorIs(t, err, storage.ErrStoreUnavailable)
		records, err := s.ReadCollection(ctx, storage.Users)
		require.NoError(t, err)
		require.Empty(t, records)
	})
}

func raw(items ...string) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(items))
	for _, s := range items {
		out = append(out, json.RawMessage(s))
	}
	return out
}
