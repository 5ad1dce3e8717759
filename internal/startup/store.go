package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatsync/internal/config"
	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/storage"
	"github.com/chatsync/internal/storage/memory"
	"github.com/chatsync/internal/storage/postgres"
	redisstorage "github.com/chatsync/internal/storage/redis"
)

// OpenStore поднимает бэкенд коллекций из cfg.StoreBackend. closeFn освобождает
// соединения (пул Postgres, клиент Redis) и вызывается при остановке.
func OpenStore(ctx context.Context, cfg *config.Config, maxWait time.Duration) (store storage.CollectionStore, closeFn func(), err error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		logger.Info("store: memory (данные не переживут перезапуск)")
		m := memory.New()
		return m, func() { _ = m.Close() }, nil

	case config.BackendRedis:
		cli, err := withRetry(ctx, "redis connect", maxWait, func(ctx context.Context) (*redisstorage.Client, error) {
			return redisstorage.New(ctx, cfg.RedisURL)
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("store: redis connected")
		return cli, func() {
			if err := cli.Close(); err != nil {
				logger.Errorf("redis close: %v", err)
			}
		}, nil

	case config.BackendPostgres:
		pool, err := ConnectDB(ctx, cfg, maxWait)
		if err != nil {
			return nil, nil, err
		}
		migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := postgres.Migrate(migrateCtx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("store: postgres connected, migrations applied")
		return postgres.New(pool), pool.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// ConnectDB открывает пул pgx и проверяет соединение, с повторами до maxWait.
func ConnectDB(ctx context.Context, cfg *config.Config, maxWait time.Duration) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 1

	return withRetry(ctx, "db connect", maxWait, func(ctx context.Context) (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return pool, nil
	})
}
