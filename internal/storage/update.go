package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrNoChange возвращается функцией изменения, когда коллекцию переписывать не нужно.
// Update в этом случае возвращает nil.
var ErrNoChange = errors.New("no change")

// Mutator — функция изменения коллекции для Updater.
type Mutator func(records []json.RawMessage) ([]json.RawMessage, error)

// Updater — бэкенд, умеющий атомарно прочитать, изменить и записать коллекцию
// относительно других процессов (redis WATCH/MULTI, postgres SELECT ... FOR UPDATE).
// fn может вызываться повторно при конфликте и не должна обращаться к хранилищу.
type Updater interface {
	UpdateCollection(ctx context.Context, name Collection, fn Mutator) error
}

// Внутри процесса read-modify-write одной коллекции выполняется строго по очереди.
var collectionLocks = map[Collection]*sync.Mutex{
	Users:         {},
	Conversations: {},
	Messages:      {},
}

// Update читает коллекцию, применяет fn и записывает результат целиком.
// Все записи репозиториев идут через Update: внутри процесса изменения одной коллекции
// сериализуются, между процессами — через Updater, если бэкенд его реализует.
func Update[T any](ctx context.Context, s CollectionStore, name Collection, fn func(items []T) ([]T, error)) error {
	if err := Validate(name); err != nil {
		return err
	}
	mu := collectionLocks[name]
	mu.Lock()
	defer mu.Unlock()

	mutate := func(raw []json.RawMessage) ([]json.RawMessage, error) {
		items, err := decodeAll[T](name, raw)
		if err != nil {
			return nil, err
		}
		items, err = fn(items)
		if err != nil {
			return nil, err
		}
		return encodeAll(name, items)
	}

	if u, ok := s.(Updater); ok {
		err := u.UpdateCollection(ctx, name, mutate)
		if errors.Is(err, ErrNoChange) {
			return nil
		}
		return err
	}

	raw, err := s.ReadCollection(ctx, name)
	if err != nil {
		return err
	}
	out, err := mutate(raw)
	if errors.Is(err, ErrNoChange) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.WriteCollection(ctx, name, out)
}

func decodeAll[T any](name Collection, raw []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(raw))
	for i, r := range raw {
		var v T
		if err := json.Unmarshal(r, &v); err != nil {
			return nil, fmt.Errorf("load %s[%d]: %w", name, i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func encodeAll[T any](name Collection, items []T) ([]json.RawMessage, error) {
	raw := make([]json.RawMessage, 0, len(items))
	for i := range items {
		b, err := json.Marshal(items[i])
		if err != nil {
			return nil, fmt.Errorf("save %s[%d]: %w", name, i, err)
		}
		raw = append(raw, b)
	}
	return raw, nil
}
