// Package daemon wires dmserverd's components with fx.
package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/matheus3301/dmserver/internal/api"
	"github.com/matheus3301/dmserver/internal/auth"
	"github.com/matheus3301/dmserver/internal/bus"
	"github.com/matheus3301/dmserver/internal/chat"
	"github.com/matheus3301/dmserver/internal/config"
	"github.com/matheus3301/dmserver/internal/lock"
	"github.com/matheus3301/dmserver/internal/logging"
	"github.com/matheus3301/dmserver/internal/message"
	"github.com/matheus3301/dmserver/internal/metrics"
	"github.com/matheus3301/dmserver/internal/presence"
	"github.com/matheus3301/dmserver/internal/router"
	"github.com/matheus3301/dmserver/internal/stats"
	"github.com/matheus3301/dmserver/internal/status"
	"github.com/matheus3301/dmserver/internal/store"
	"github.com/matheus3301/dmserver/internal/ws"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(cfg *config.Config) fx.Option {
	return fx.Module("daemon",
		fx.Supply(cfg),
		fx.Provide(
			provideLogger,
			provideLock,
			provideStore,
			provideBus,
			provideRegistry,
			provideRouter,
			provideResolver,
			provideMessageService,
			provideStatusMachine,
			provideVerifier,
			provideLiveHandler,
			provideAPIServer,
			provideCollector,
			NewAdminServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	return logging.New(cfg.LogPath(), cfg.LogLevel)
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	l, err := lock.Acquire(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired", zap.String("path", l.Path()))
	return l, nil
}

// The lock parameter orders store creation after the lock is held.
func provideStore(cfg *config.Config, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := cfg.DBPath()
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	logger.Info("store opened", zap.String("path", dbPath))
	return db, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideRegistry() *presence.Registry {
	return presence.NewRegistry()
}

func provideRouter(r *presence.Registry, b *bus.Bus, logger *zap.Logger) *router.Router {
	return router.New(r, b, logger)
}

func provideResolver(db *store.DB, logger *zap.Logger) *chat.Resolver {
	return chat.NewResolver(db, logger)
}

func provideMessageService(db *store.DB, chats *chat.Resolver, r *router.Router, logger *zap.Logger) *message.Service {
	return message.NewService(db, chats, r, logger)
}

func provideStatusMachine(cfg *config.Config, db *store.DB, r *router.Router, logger *zap.Logger) *status.Machine {
	return status.NewMachine(db, r, cfg.StatusRetries, logger)
}

func provideVerifier(cfg *config.Config) (*auth.JWT, error) {
	return auth.NewJWT(cfg.JWTSecret)
}

func provideLiveHandler(cfg *config.Config, v *auth.JWT, msgs *message.Service, m *status.Machine, r *router.Router, logger *zap.Logger) *ws.Handler {
	return ws.NewHandler(ws.Options{
		SessionBuffer:  cfg.SessionBuffer,
		RequestTimeout: cfg.RequestTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		PingInterval:   cfg.PingInterval,
		OriginPatterns: cfg.AllowedOrigins,
	}, v, msgs, m, r, logger)
}

func provideAPIServer(
	cfg *config.Config,
	db *store.DB,
	chats *chat.Resolver,
	msgs *message.Service,
	m *status.Machine,
	v *auth.JWT,
	live *ws.Handler,
	reg *presence.Registry,
	logger *zap.Logger,
) *api.Server {
	return api.NewServer(api.Config{
		ListenAddr:     cfg.ListenAddr,
		MetricsAddr:    cfg.MetricsAddr,
		AllowedOrigins: cfg.AllowedOrigins,
		RequestTimeout: cfg.RequestTimeout,
	}, api.Deps{
		Chats:    chats,
		Messages: msgs,
		Status:   m,
		Verifier: v,
		Store:    db,
		Live:     live,
		Online:   func() int { return len(reg.Online()) },
	}, logger)
}

func provideCollector(b *bus.Bus, logger *zap.Logger) *stats.Collector {
	return stats.NewCollector(b, logger)
}

type lifecycleParams struct {
	fx.In

	Lock      *lock.Lock
	DB        *store.DB
	Bus       *bus.Bus
	Collector *stats.Collector
	API       *api.Server
	Live      *ws.Handler
	Admin     *AdminServer
	Logger    *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, p lifecycleParams) {
	logger := p.Logger
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			result, err := p.DB.Migrate()
			if err != nil {
				return err
			}
			if result.Changed {
				logger.Info("migrations applied", zap.Uint("version", result.Version))
			} else {
				logger.Info("migrations up to date", zap.Uint("version", result.Version))
			}

			if err := metrics.RegisterBusDrops(p.Bus.Dropped); err != nil {
				logger.Warn("bus drop metric not registered", zap.Error(err))
			}
			p.Collector.Start(context.Background())

			if err := p.API.Start(); err != nil {
				p.Collector.Stop()
				return err
			}
			p.Admin.Start()
			p.Admin.SetServing(true)
			logger.Info("daemon started", zap.String("addr", p.API.Addr().String()))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.Admin.SetServing(false)

			// Close live sessions before draining HTTP so that hijacked
			// connections do not hold up the shutdown.
			liveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			liveErr := p.Live.Shutdown(liveCtx)
			cancel()
			apiErr := p.API.Shutdown(ctx)

			p.Collector.Stop()
			p.Admin.Stop(ctx)
			dbErr := p.DB.Close()
			if err := p.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return errors.Join(liveErr, apiErr, dbErr)
		},
	})
}
