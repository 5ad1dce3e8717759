package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/chatsync/internal/storage"
)

// Client — CollectionStore в памяти процесса (для -dev и тестов).
// Коллекции хранятся как сериализованные блобы, чтобы читатели не делили срезы с писателями.
type Client struct {
	mu    sync.RWMutex
	blobs map[storage.Collection][]byte

	// failNext — число следующих операций, которые вернут ErrStoreUnavailable (только для тестов).
	failNext int
}

var (
	_ storage.CollectionStore = (*Client)(nil)
	_ storage.Updater         = (*Client)(nil)
)

func New() *Client {
	return &Client{blobs: make(map[storage.Collection][]byte)}
}

func (c *Client) Close() error { return nil }

func (c *Client) ReadCollection(ctx context.Context, name storage.Collection) ([]json.RawMessage, error) {
	if err := storage.Validate(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, storage.Unavailable("memory.ReadCollection", err)
	}
	c.mu.Lock()
	if c.failNext > 0 {
		c.failNext--
		c.mu.Unlock()
		return nil, storage.Unavailable("memory.ReadCollection", errInjected)
	}
	blob := c.blobs[name]
	c.mu.Unlock()
	return storage.DecodeBlob(blob)
}

func (c *Client) WriteCollection(ctx context.Context, name storage.Collection, records []json.RawMessage) error {
	if err := storage.Validate(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return storage.Unavailable("memory.WriteCollection", err)
	}
	blob, err := storage.EncodeBlob(records)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext > 0 {
		c.failNext--
		return storage.Unavailable("memory.WriteCollection", errInjected)
	}
	c.blobs[name] = blob
	return nil
}

// UpdateCollection держит блокировку клиента от чтения до записи.
func (c *Client) UpdateCollection(ctx context.Context, name storage.Collection, fn storage.Mutator) error {
	if err := storage.Validate(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return storage.Unavailable("memory.UpdateCollection", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext > 0 {
		c.failNext--
		return storage.Unavailable("memory.UpdateCollection", errInjected)
	}
	records, err := storage.DecodeBlob(c.blobs[name])
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
	c.blobs[name] = blob
	return nil
}

// Blob возвращает копию сохранённого блоба коллекции (nil, если не писали).
func (c *Client) Blob(name storage.Collection) []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.blobs[name]
	if !ok {
		return nil
	}
	return append([]byte(nil), b...)
}

// FailNext заставляет следующие n операций завершиться ошибкой.
func (c *Client) FailNext(n int) {
	c.mu.Lock()
	c.failNext = n
	c.mu.Unlock()
}

type injectedError struct{}

func (injectedError) Error() string { return "injected failure" }

var errInjected = injectedError{}
