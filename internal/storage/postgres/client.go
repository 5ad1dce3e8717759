package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/storage"
)

// Client хранит каждую коллекцию одной строкой таблицы collections (data JSONB).
// Запись — upsert всей строки: транзакций поверх нескольких коллекций нет.
type Client struct {
	pool *pgxpool.Pool
}

var (
	_ storage.CollectionStore = (*Client)(nil)
	_ storage.Updater         = (*Client)(nil)
)

func New(pool *pgxpool.Pool) *Client {
	return &Client{pool: pool}
}

// Close не закрывает пул: им владеет вызывающий (main).
func (c *Client) Close() error { return nil }

func (c *Client) ReadCollection(ctx context.Context, name storage.Collection) ([]json.RawMessage, error) {
	defer logger.DeferLogDuration("pg.ReadCollection."+string(name), time.Now())()
	if err := storage.Validate(name); err != nil {
		return nil, err
	}
	var data []byte
	err := c.pool.QueryRow(ctx,
		`SELECT data FROM collections WHERE name = $1`, string(name),
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return []json.RawMessage{}, nil
	}
	if err != nil {
		return nil, storage.Unavailable("pg.ReadCollection", err)
	}
	return storage.DecodeBlob(data)
}

func (c *Client) WriteCollection(ctx context.Context, name storage.Collection, records []json.RawMessage) error {
	defer logger.DeferLogDuration("pg.WriteCollection."+string(name), time.Now())()
	if err := storage.Validate(name); err != nil {
		return err
	}
	data, err := storage.EncodeBlob(records)
	if err != nil {
		return err
	}
	_, err = c.pool.Exec(ctx,
		`INSERT INTO collections (name, data, updated_at)
		 VALUES ($1, $2::jsonb, $3)
		 ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		string(name), string(data), time.Now().UTC(),
	)
	if err != nil {
		return storage.Unavailable("pg.WriteCollection", err)
	}
	return nil
}

// UpdateCollection блокирует строку коллекции (SELECT ... FOR UPDATE) до конца транзакции,
// так что писатели из других процессов ждут друг друга. Строка создаётся пустой, если её ещё нет.
func (c *Client) UpdateCollection(ctx context.Context, name storage.Collection, fn storage.Mutator) (err error) {
	defer logger.DeferLogDuration("pg.UpdateCollection."+string(name), time.Now())()
	if err := storage.Validate(name); err != nil {
		return err
	}
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return storage.Unavailable("pg.UpdateCollection begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err := tx.Exec(ctx,
		`INSERT INTO collections (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, string(name),
	); err != nil {
		return storage.Unavailable("pg.UpdateCollection ensure", err)
	}
	var data []byte
	if err := tx.QueryRow(ctx,
		`SELECT data FROM collections WHERE name = $1 FOR UPDATE`, string(name),
	).Scan(&data); err != nil {
		return storage.Unavailable("pg.UpdateCollection lock", err)
	}
	records, err := storage.DecodeBlob(data)
	if err != nil {
		return err
	}
	out, err := fn(records)
	if err != nil {
		return err
	}
	blob, err := storage.EncodeBlob(out)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE collections SET data = $2::jsonb, updated_at = $3 WHERE name = $1`,
		string(name), string(blob), time.Now().UTC(),
	); err != nil {
		return storage.Unavailable("pg.UpdateCollection write", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return storage.Unavailable("pg.UpdateCollection commit", err)
	}
	return nil
}

// Truncate удаляет все коллекции (для тестов).
func (c *Client) Truncate(ctx context.Context) error {
	if _, err := c.pool.Exec(ctx, `TRUNCATE collections`); err != nil {
		return fmt.Errorf("pg.Truncate: %w", err)
	}
	return nil
}
