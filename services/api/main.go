package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"

	"github.com/chatsync/internal/config"
	"github.com/chatsync/internal/handler"
	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/repository"
	"github.com/chatsync/internal/service"
	"github.com/chatsync/internal/startup"
	"github.com/chatsync/internal/ws"
)

func main() {
	logger.SetPrefix("api")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (store_backend=postgres, no external DB required)")
	flag.Parse()

	logger.Info("starting chatsync API")
	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)

	if *dev {
		cfg.StoreBackend = config.BackendPostgres
		embeddedDB, err := startEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			logger.Flush(time.Second)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 90*time.Second)
	store, closeStore, err := startup.OpenStore(startCtx, cfg, 60*time.Second)
	startCancel()
	if err != nil {
		logger.Errorf("open store: %v", err)
		logger.Flush(time.Second)
		os.Exit(1)
	}
	defer closeStore()

	userRepo := repository.NewUserRepository(store)
	convRepo := repository.NewConversationRepository(store)
	msgRepo := repository.NewMessageRepository(store, convRepo)

	if cfg.SeedUsers {
		seedCtx, seedCancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
		seeded, err := userRepo.SeedIfEmpty(seedCtx, repository.DefaultSeed())
		seedCancel()
		if err != nil {
			logger.Errorf("seed users: %v", err)
		} else if seeded {
			logger.Info("users collection was empty, default users seeded")
		}
	}

	engine := service.NewEngine(userRepo, convRepo, msgRepo, service.Options{
		PollInterval: cfg.PollInterval,
		StoreTimeout: cfg.StoreTimeout,
	})

	hubCtx, hubCancel := context.WithCancel(context.Background())
	hub := ws.NewHub(engine, cfg.MaxWSConnections)
	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	router := handler.NewRouter(engine, hub, handler.RouterConfig{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		WSLimits: ws.Limits{
			WriteWait:      cfg.WSWriteTimeout,
			PongWait:       cfg.WSPongTimeout,
			MaxMessageSize: cfg.WSMaxMessageSize,
			SendBufSize:    cfg.WSSendBufferSize,
		},
		RateLimitPerIP:   cfg.RateLimitPerIP,
		RateLimitPerUser: cfg.RateLimitPerUser,
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s (store=%s, poll=%v)", cfg.ServerAddr, cfg.StoreBackend, cfg.PollInterval)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")
	// Все циклы останавливаются, пользователи уходят в offline.
	engine.Shutdown(shutdownCtx)
	logger.Info("sessions closed")
	srvWg.Wait()
	logger.Flush(2 * time.Second)
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "chatsync"
		password = "chatsync_secret"
		database = "chatsync"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
