package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/chatsync/internal/storage"
)

// Коллекция целиком лежит в одном строковом ключе chatsync:{name} в виде JSON-массива.
const keyPrefix = "chatsync:"

// updateRetries — сколько раз UpdateCollection повторяет транзакцию, если ключ изменил другой процесс.
const updateRetries = 16

type Client struct {
	cli *redis.Client
}

var (
	_ storage.CollectionStore = (*Client)(nil)
	_ storage.Updater         = (*Client)(nil)
)

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func key(name storage.Collection) string {
	return keyPrefix + string(name)
}

// ReadCollection читает блоб коллекции. Отсутствующий ключ — пустая коллекция.
func (c *Client) ReadCollection(ctx context.Context, name storage.Collection) ([]json.RawMessage, error) {
	if err := storage.Validate(name); err != nil {
		return nil, err
	}
	data, err := c.cli.Get(ctx, key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []json.RawMessage{}, nil
	}
	if err != nil {
		return nil, storage.Unavailable("redis.ReadCollection", err)
	}
	return storage.DecodeBlob(data)
}

// WriteCollection перезаписывает ключ коллекции целиком (SET без TTL, без WATCH).
func (c *Client) WriteCollection(ctx context.Context, name storage.Collection, records []json.RawMessage) error {
	if err := storage.Validate(name); err != nil {
		return err
	}
	data, err := storage.EncodeBlob(records)
	if err != nil {
		return err
	}
	if err := c.cli.Set(ctx, key(name), data, 0).Err(); err != nil {
		return storage.Unavailable("redis.WriteCollection", err)
	}
	return nil
}

// UpdateCollection — оптимистичная транзакция: WATCH ключа, GET, fn, MULTI/SET/EXEC.
// Если ключ изменился между GET и EXEC, всё повторяется с новым содержимым.
func (c *Client) UpdateCollection(ctx context.Context, name storage.Collection, fn storage.Mutator) error {
	if err := storage.Validate(name); err != nil {
		return err
	}
	k := key(name)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, k).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		records, err := storage.DecodeBlob(data)
		if err != nil {
			return mutateError{err}
		}
		out, err := fn(records)
		if err != nil {
			return mutateError{err}
		}
		blob, err := storage.EncodeBlob(out)
		if err != nil {
			return mutateError{err}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, blob, 0)
			return nil
		})
		return err
	}
	for i := 0; i < updateRetries; i++ {
		err := c.cli.Watch(ctx, txf, k)
		var me mutateError
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.As(err, &me):
			return me.err
		default:
			return storage.Unavailable("redis.UpdateCollection", err)
		}
	}
	return storage.Unavailable("redis.UpdateCollection", fmt.Errorf("key %s: too many concurrent writers", k))
}

// mutateError отделяет ошибки fn и разбора блоба от сбоев Redis.
type mutateError struct{ err error }

func (e mutateError) Error() string { return e.err.Error() }

// FlushDB очищает текущую БД Redis (сброс всех коллекций при тестах/перезапуске).
func (c *Client) FlushDB(ctx context.Context) error {
	return c.cli.FlushDB(ctx).Err()
}
