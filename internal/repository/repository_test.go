package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chatsync/internal/storage"
	"github.com/chatsync/internal/storage/memory"
)

type repos struct {
	store *memory.Client
	users *UserRepository
	convs *ConversationRepository
	msgs  *MessageRepository
}

func newRepos(t *testing.T) *repos {
	t.Helper()
	store := memory.New()
	r := &repos{
		store: store,
		users: NewUserRepository(store),
		convs: NewConversationRepository(store),
	}
	r.msgs = NewMessageRepository(store, r.convs)
	seeded, err := r.users.SeedIfEmpty(context.Background(), DefaultSeed())
	require.NoError(t, err)
	require.True(t, seeded)
	return r
}

// writeFailStore отказывает в записи одной коллекции, остальное пропускает.
type writeFailStore struct {
	storage.CollectionStore
	fail storage.Collection
}

func (s writeFailStore) WriteCollection(ctx context.Context, name storage.Collection, records []json.RawMessage) error {
	if name == s.fail {
		return storage.Unavailable("test.WriteCollection", errors.New("disk full"))
	}
	return s.CollectionStore.WriteCollection(ctx, name, records)
}

// slowStore добавляет задержку каждому обращению и не умеет UpdateCollection,
// так что записи сериализует только storage.Update.
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
