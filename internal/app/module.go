// Package app composes the client: configuration, cache, backend access,
// the change feed and the background workers, wired through fx so startup
// order and shutdown order stay correct as the graph grows.
package app

import (
	"context"
	"fmt"

	"github.com/pveiga/skillswap/internal/backend"
	"github.com/pveiga/skillswap/internal/bus"
	"github.com/pveiga/skillswap/internal/calls"
	"github.com/pveiga/skillswap/internal/config"
	"github.com/pveiga/skillswap/internal/lock"
	"github.com/pveiga/skillswap/internal/logging"
	"github.com/pveiga/skillswap/internal/outbox"
	"github.com/pveiga/skillswap/internal/profiles"
	"github.com/pveiga/skillswap/internal/session"
	"github.com/pveiga/skillswap/internal/store"
	intsync "github.com/pveiga/skillswap/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	ConfigPath  string // optional override for testing; empty = use default
	FileOnlyLog bool   // true when a terminal UI owns stderr
}

// Module returns the fx module composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("app",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideAuth,
			provideClient,
			provideStorage,
			provideRealtimeFeed,
			provideSyncEngine,
			provideSender,
			provideCallService,
			provideProfileService,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = session.ConfigPath()
	}
	cfg := config.LoadOrDefault(path)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func provideLogger(p Params) (*zap.Logger, error) {
	if p.FileOnlyLog {
		return logging.NewFileOnly(session.LogPath(p.SessionName), p.SessionName)
	}
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.CacheDBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideAuth(p Params, cfg *config.Config) *backend.Auth {
	return backend.NewAuth(cfg.Backend.URL, cfg.Backend.APIKey, session.TokenPath(p.SessionName))
}

func provideClient(cfg *config.Config, auth *backend.Auth) *backend.Client {
	return backend.NewClient(cfg.Backend.URL, cfg.Backend.APIKey, auth)
}

func provideStorage(client *backend.Client) *backend.Storage {
	return backend.NewStorage(client)
}

func provideRealtimeFeed(cfg *config.Config, auth *backend.Auth, b *bus.Bus, logger *zap.Logger) *backend.Feed {
	return backend.NewFeed(cfg.Backend.URL, cfg.Backend.APIKey, auth, b, logger)
}

func provideSyncEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, b, logger)
}

func provideSender(db *store.DB, client *backend.Client, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, b, outbox.BackendSend(client), logger)
}

func provideCallService(client *backend.Client, logger *zap.Logger) *calls.Service {
	return calls.NewService(client, logger)
}

func provideProfileService(client *backend.Client, storage *backend.Storage, db *store.DB, logger *zap.Logger) *profiles.Service {
	return profiles.NewService(client, storage, db, logger)
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, db *store.DB, auth *backend.Auth, rt *backend.Feed, engine *intsync.Engine, sender *outbox.Sender, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Ingestion attaches before the feed dials so no event slips
			// between connect and subscribe.
			engine.Start(context.Background())
			sender.Start(context.Background())

			if auth.SignedIn() {
				rt.Start(context.Background())
				logger.Info("session restored", zap.String("user_id", auth.UserID()))
			} else {
				logger.Info("no credentials found, sign-in required")
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			rt.Stop()
			sender.Stop()
			engine.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing cache", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			return nil
		},
	})
}
