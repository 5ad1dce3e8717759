package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Collection — имя коллекции в хранилище.
type Collection string

const (
	Users         Collection = "users"
	Conversations Collection = "conversations"
	Messages      Collection = "messages"
)

var (
	// ErrStoreUnavailable — сбой чтения/записи бэкенда. Ошибки реализаций оборачиваются в неё.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrUnknownCollection — имя коллекции не из списка Users, Conversations, Messages.
	ErrUnknownCollection = errors.New("unknown collection")
)

// CollectionStore — хранилище коллекций целиком (users, conversations, messages).
// Реализации: memory.Client, redis.Client, postgres.Client.
//
// WriteCollection заменяет коллекцию полностью. Ни compare-and-swap, ни атомарности
// между коллекциями нет: писатель с устаревшим снимком молча затирает чужую запись.
type CollectionStore interface {
	// ReadCollection возвращает записи коллекции; пустой срез, если коллекцию ещё не писали.
	ReadCollection(ctx context.Context, name Collection) ([]json.RawMessage, error)
	WriteCollection(ctx context.Context, name Collection, records []json.RawMessage) error
	Close() error
}

// Validate проверяет имя коллекции.
func Validate(name Collection) error {
	switch name {
	case Users, Conversations, Messages:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownCollection, name)
}

// Unavailable оборачивает ошибку бэкенда в ErrStoreUnavailable, сохраняя исходную причину.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// DecodeBlob разбирает сохранённый блоб коллекции. Пустой блоб — пустая коллекция.
func DecodeBlob(data []byte) ([]json.RawMessage, error) {
	if len(data) == 0 {
		return []json.RawMessage{}, nil
	}
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode collection: %w", err)
	}
	if records == nil {
		records = []json.RawMessage{}
	}
	return records, nil
}

// EncodeBlob сериализует коллекцию в один JSON-массив.
func EncodeBlob(records []json.RawMessage) ([]byte, error) {
	if records == nil {
		records = []json.RawMessage{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode collection: %w", err)
	}
	return data, nil
}

// Load читает коллекцию и разбирает записи в T.
func Load[T any](ctx context.Context, s CollectionStore, name Collection) ([]T, error) {
	raw, err := s.ReadCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](name, raw)
}

// Save сериализует записи и заменяет ими коллекцию целиком, не глядя на текущее содержимое.
// Изменения существующей коллекции делаются через Update.
func Save[T any](ctx context.Context, s CollectionStore, name Collection, items []T) error {
	raw, err := encodeAll(name, items)
	if err != nil {
		return err
	}
	return s.WriteCollection(ctx, name, raw)
}
