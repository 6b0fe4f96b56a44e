package daemon

import (
	"context"
	"fmt"

	"github.com/matheus3301/wpprelay/internal/api"
	"github.com/matheus3301/wpprelay/internal/bus"
	"github.com/matheus3301/wpprelay/internal/changefeed"
	"github.com/matheus3301/wpprelay/internal/config"
	"github.com/matheus3301/wpprelay/internal/delivery"
	"github.com/matheus3301/wpprelay/internal/httpapi"
	"github.com/matheus3301/wpprelay/internal/ingest"
	"github.com/matheus3301/wpprelay/internal/instance"
	"github.com/matheus3301/wpprelay/internal/lock"
	"github.com/matheus3301/wpprelay/internal/logging"
	"github.com/matheus3301/wpprelay/internal/notify"
	"github.com/matheus3301/wpprelay/internal/registry"
	"github.com/matheus3301/wpprelay/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved instance configuration passed to the fx module.
type Params struct {
	InstanceName string
	SocketPath   string // optional override for testing; empty = use default
	Config       *config.Config
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	if p.Config == nil {
		p.Config = config.Default()
	}
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			bus.NewCounter,
			provideLock,
			provideDB,
			changefeed.New,
			provideStore,
			provideNotifier,
			provideRegistry,
			providePipeline,
			provideDeliveryOptions,
			provideHTTPHandler,
			provideService,
			NewHTTPServer,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(instance.LogPath(p.InstanceName), p.InstanceName, p.Config.Log.Level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := instance.EnsureDir(p.InstanceName); err != nil {
		return nil, err
	}
	logger.Info("acquiring instance lock", zap.String("instance", p.InstanceName))
	l, err := lock.Acquire(instance.Dir(p.InstanceName))
	if err != nil {
		return nil, err
	}
	logger.Info("instance lock acquired")
	return l, nil
}

// provideDB takes the lock as a dependency so a second daemon never touches
// the database.
func provideDB(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	driver, dsn := p.Config.Store.Driver, p.Config.Store.DSN
	if dsn == "" && (driver == "" || driver == store.DriverSQLite) {
		dsn = instance.DBPath(p.InstanceName)
	}
	db, err := store.OpenDriver(driver, dsn)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", db.Driver(), err)
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("driver", db.Driver()))
	return db, nil
}

func provideStore(db *store.DB, feed *changefeed.Feed, logger *zap.Logger) *store.Store {
	return store.New(db, feed, logger)
}

func provideNotifier(feed *changefeed.Feed, logger *zap.Logger) *notify.Notifier {
	return notify.New(feed, logger)
}

func provideRegistry(n *notify.Notifier, logger *zap.Logger) *registry.Registry {
	return registry.New(n, logger)
}

func providePipeline(p Params, st *store.Store, b *bus.Bus, logger *zap.Logger) *ingest.Pipeline {
	return ingest.New(st, b, ingest.Retry{
		Attempts:  p.Config.Store.RetryAttempts,
		BaseDelay: p.Config.Store.RetryBaseDelay,
	}, logger)
}

func provideDeliveryOptions(p Params) delivery.Options {
	d := p.Config.Delivery
	return delivery.Options{
		Keepalive:    d.Keepalive,
		QueueSize:    d.QueueSize,
		WriteTimeout: d.WriteTimeout,
	}
}

func provideHTTPHandler(p Params, pl *ingest.Pipeline, st *store.Store, reg *registry.Registry, b *bus.Bus, opts delivery.Options, logger *zap.Logger) *httpapi.Server {
	return httpapi.New(pl, st, reg, b, httpapi.Config{
		MaxBodyBytes:   p.Config.HTTP.MaxBodyBytes,
		OriginPatterns: p.Config.HTTP.AllowedOrigins,
		Delivery:       opts,
	}, logger)
}

func provideService(p Params, db *store.DB, pl *ingest.Pipeline, st *store.Store, reg *registry.Registry, b *bus.Bus, counter *bus.Counter, opts delivery.Options, logger *zap.Logger) *api.Service {
	return api.NewService(api.ServiceDeps{
		Instance:    p.InstanceName,
		StoreDriver: db.Driver(),
		Ingester:    pl,
		Reader:      st,
		Registry:    reg,
		Bus:         b,
		Counter:     counter,
		Delivery:    opts,
		Logger:      logger,
	})
}

func registerLifecycle(
	lc fx.Lifecycle,
	srv *Server,
	hs *HTTPServer,
	handler *httpapi.Server,
	svc *api.Service,
	reg *registry.Registry,
	db *store.DB,
	lk *lock.Lock,
	b *bus.Bus,
	counter *bus.Counter,
	logger *zap.Logger,
) {
	counterCtx, stopCounter := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go counter.Run(counterCtx, b)

			if err := lk.Annotate("http", hs.Addr()); err != nil {
				logger.Warn("error annotating lock", zap.Error(err))
			}

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			go func() {
				if err := hs.Start(); err != nil {
					logger.Error("HTTP server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			// Long-lived streams first, so both graceful stops can finish.
			svc.Close()
			handler.Close()
			hs.Stop(ctx)
			srv.Stop(ctx)
			reg.Close()
			stopCounter()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
