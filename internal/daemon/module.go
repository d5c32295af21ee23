// Package daemon composes the session daemon: one process owning the
// data directory, the pooled client connections, and the HTTP admin
// surface.
package daemon

import (
	"context"

	"github.com/rkudryashov/tgmux/internal/api"
	"github.com/rkudryashov/tgmux/internal/broadcast"
	"github.com/rkudryashov/tgmux/internal/bulkjoin"
	"github.com/rkudryashov/tgmux/internal/bus"
	"github.com/rkudryashov/tgmux/internal/config"
	"github.com/rkudryashov/tgmux/internal/credstore"
	"github.com/rkudryashov/tgmux/internal/directory"
	"github.com/rkudryashov/tgmux/internal/lock"
	"github.com/rkudryashov/tgmux/internal/logging"
	"github.com/rkudryashov/tgmux/internal/login"
	"github.com/rkudryashov/tgmux/internal/pool"
	"github.com/rkudryashov/tgmux/internal/session"
	"github.com/rkudryashov/tgmux/internal/store"
	"github.com/rkudryashov/tgmux/internal/tg"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved configuration passed to the fx module.
type Params struct {
	Config *config.Config
}

// Module returns the fx module for the daemon, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideCredStore,
			provideDialer,
			providePool,
			provideFlow,
			provideDirectory,
			provideBroadcast,
			provideDrafts,
			provideBulkJoin,
			provideHandlers,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	dataDir := p.Config.DataDir
	if err := session.EnsureDirs(dataDir); err != nil {
		return nil, err
	}
	return logging.New(session.LogDir(dataDir), dataDir)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring data directory lock", zap.String("data_dir", p.Config.DataDir))
	l, err := lock.Acquire(p.Config.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.HistoryDBPath(p.Config.DataDir)
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
	logger.Info("history store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideCredStore(p Params, logger *zap.Logger) *credstore.Store {
	return credstore.New(session.CredentialsPath(p.Config.DataDir), logger)
}

func provideDialer() tg.Dialer {
	return tg.Dial
}

func providePool(creds *credstore.Store, dial tg.Dialer, logger *zap.Logger) *pool.Pool {
	return pool.New(creds, dial, logger)
}

func provideFlow(p Params, creds *credstore.Store, pl *pool.Pool, dial tg.Dialer, b *bus.Bus, logger *zap.Logger) *login.Flow {
	return login.New(p.Config.DataDir, creds, pl, dial, b, logger)
}

func provideDirectory(p Params, pl *pool.Pool, logger *zap.Logger) *directory.Directory {
	return directory.New(pl, p.Config.DialogLimit, logger)
}

func provideBroadcast(pl *pool.Pool, db *store.DB, b *bus.Bus, logger *zap.Logger) *broadcast.Engine {
	return broadcast.New(pl, db, b, logger)
}

func provideDrafts() *broadcast.DraftRegistry {
	return broadcast.NewDraftRegistry()
}

func provideBulkJoin(pl *pool.Pool, db *store.DB, b *bus.Bus, logger *zap.Logger) *bulkjoin.Engine {
	return bulkjoin.New(pl, db, b, logger)
}

func provideHandlers(
	p Params,
	creds *credstore.Store,
	flow *login.Flow,
	dir *directory.Directory,
	bcast *broadcast.Engine,
	drafts *broadcast.DraftRegistry,
	joins *bulkjoin.Engine,
	db *store.DB,
	logger *zap.Logger,
) *api.Handlers {
	return api.New(p.Config, creds, flow, dir, bcast, drafts, joins, db, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, pl *pool.Pool, db *store.DB, b *bus.Bus, logger *zap.Logger) {
	// Mirror bus traffic into the log so every login, broadcast, and
	// join run leaves a trace even with no subscriber attached.
	events, cancel := b.Subscribe("", 64)
	go func() {
		for evt := range events {
			logger.Info("event", zap.String("kind", evt.Kind), zap.Any("payload", evt.Payload))
		}
	}()

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			pl.DisconnectAll()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			cancel()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
