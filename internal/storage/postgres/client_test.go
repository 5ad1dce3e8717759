package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/chatsync/internal/storage"
	"github.com/chatsync/internal/storage/storagetest"
)

// Нужен живой Postgres: CHATSYNC_TEST_DATABASE_URL=postgres://... go test ./internal/storage/postgres
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("CHATSYNC_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CHATSYNC_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))
	return pool
}

func TestCollectionStore(t *testing.T) {
	pool := testPool(t)
	storagetest.Run(t, func(t *testing.T) storage.CollectionStore {
		c := New(pool)
		require.NoError(t, c.Truncate(context.Background()))
		return c
	})
}

func TestMigrateIdempotent(t *testing.T) {
	pool := testPool(t)
	require.NoError(t, Migrate(context.Background(), pool))
}
