package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/chatsync/internal/config"
	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/repository"
	"github.com/chatsync/internal/service"
	"github.com/chatsync/internal/startup"
)

// errMemoryBackend — разовая команда на memory-бэкенде ничего не сохранила бы до следующего запуска.
var errMemoryBackend = errors.New("memory backend keeps nothing between runs: use --backend redis or --backend postgres")

// openEngine поднимает движок в процессе клиента поверх общего хранилища.
// Несколько клиентов на одном redis/postgres видят записи друг друга через опрос.
// allowMemory разрешает memory-бэкенд: только для watch, который живёт, пока открыт.
func openEngine(ctx context.Context, allowMemory bool) (*service.Engine, func(), error) {
	cfg := config.Load()
	if os.Getenv("LOG_LEVEL") == "" {
		logger.SetLevel("warn")
	}
	if flagBackend != "" {
		cfg.StoreBackend = flagBackend
	}
	if flagRedisURL != "" {
		cfg.RedisURL = flagRedisURL
	}
	if flagDatabaseURL != "" {
		cfg.Database.URL = flagDatabaseURL
	}
	if cfg.StoreBackend == config.BackendMemory {
		if !allowMemory {
			return nil, nil, errMemoryBackend
		}
		logger.Warnf("memory backend: data is private to this process")
	}

	store, closeStore, err := startup.OpenStore(ctx, cfg, 10*time.Second)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	users := repository.NewUserRepository(store)
	convs := repository.NewConversationRepository(store)
	msgs := repository.NewMessageRepository(store, convs)
	if cfg.SeedUsers {
		if _, err := users.SeedIfEmpty(ctx, repository.DefaultSeed()); err != nil {
			logger.Warnf("seed users: %v", err)
		}
	}

	engine := service.NewEngine(users, convs, msgs, service.Options{
		PollInterval: cfg.PollInterval,
		StoreTimeout: cfg.StoreTimeout,
	})
	return engine, func() {
		engine.Shutdown(context.Background())
		closeStore()
	}, nil
}

// withEngine выполняет fn с движком и закрывает его после.
func withEngine(timeout time.Duration, fn func(ctx context.Context, e *service.Engine) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	engine, closeFn, err := openEngine(ctx, false)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, engine)
}
