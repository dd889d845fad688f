package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"liquidity-hunter/config"
	"liquidity-hunter/internal/analysis"
	"liquidity-hunter/internal/api"
	"liquidity-hunter/internal/auth"
	"liquidity-hunter/internal/cache"
	"liquidity-hunter/internal/database"
	"liquidity-hunter/internal/engine"
	"liquidity-hunter/internal/events"
	"liquidity-hunter/internal/journal"
	"liquidity-hunter/internal/liquidity"
	"liquidity-hunter/internal/logging"
	"liquidity-hunter/internal/marketdata"
	"liquidity-hunter/internal/monitor"
	"liquidity-hunter/internal/notification"
)

// app holds every long-lived component built from the configuration. Optional
// components stay nil when their section is disabled.
type app struct {
	cfg      *config.Config
	bus      *events.EventBus
	registry *engine.Registry
	cache    *cache.SnapshotCache
	db       *database.DB
	repo     *database.SignalRepository
	journal  *journal.SQLiteJournal
	monitor  *monitor.Service
	closers  []func() error
}

// newApp connects the configured backends and subscribes them to the bus
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, bus: events.NewEventBus()}

	registry, err := engine.NewRegistry(cfg.LiquidityConfig, engine.WithEventBus(a.bus))
	if err != nil {
		return nil, err
	}
	a.registry = registry

	if cfg.NotificationConfig.Enabled {
		if err := a.attachNotifications(ctx); err != nil {
			return nil, a.fail(err)
		}
	}

	if cfg.RedisConfig.Enabled {
		c, err := cache.NewSnapshotCache(cfg.RedisConfig)
		if err != nil {
			return nil, a.fail(fmt.Errorf("redis: %w", err))
		}
		a.cache = c
		a.closers = append(a.closers, c.Close)
		err = a.background(ctx, func(ctx context.Context, e events.Event) {
			signal, ok := e.Data["signal"].(liquidity.TradingSignal)
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := c.PublishSignal(ctx, signal); err != nil {
				logging.CacheContext("publish", e.Symbol).WithError(err).Debug("Signal not published")
			}
		}, events.EventSignalAdded)
		if err != nil {
			return nil, a.fail(err)
		}
	}

	if cfg.DatabaseConfig.Enabled {
		db, err := database.NewDB(ctx, cfg.DatabaseConfig)
		if err != nil {
			return nil, a.fail(fmt.Errorf("database: %w", err))
		}
		a.db = db
		a.closers = append(a.closers, func() error { db.Close(); return nil })
		if err := db.RunMigrations(ctx); err != nil {
			return nil, a.fail(err)
		}
		a.repo = database.NewSignalRepository(db)
		if err := a.persistSweeps(ctx); err != nil {
			return nil, a.fail(err)
		}
	}

	if cfg.JournalConfig.Enabled {
		j, err := journal.NewSQLite(cfg.JournalConfig.Path)
		if err != nil {
			return nil, a.fail(fmt.Errorf("journal: %w", err))
		}
		a.journal = j
		a.closers = append(a.closers, j.Close)
	}

	return a, nil
}

func (a *app) attachNotifications(ctx context.Context) error {
	nc := a.cfg.NotificationConfig
	m := notification.NewManager()
	m.SetMinScore(nc.MinScore)
	if nc.Telegram.Enabled {
		m.AddNotifier(notification.NewTelegramNotifier(nc.Telegram))
	}
	if nc.Discord.Enabled {
		m.AddNotifier(notification.NewDiscordNotifier(nc.Discord))
	}
	detach := m.Attach(a.bus, func(err error) {
		logging.NotificationContext("manager", "").WithError(err).Warn("Notification failed")
	})
	// workers outlive the command context so Close can flush the queue
	if err := m.Start(context.WithoutCancel(ctx)); err != nil {
		detach()
		return err
	}
	a.closers = append(a.closers, func() error {
		detach()
		return m.Stop()
	})
	return nil
}

// persistSweeps writes every recorded sweep to PostgreSQL
func (a *app) persistSweeps(ctx context.Context) error {
	repo := a.repo
	return a.background(ctx, func(ctx context.Context, e events.Event) {
		sweep, ok := e.Data["sweep"].(liquidity.Sweep)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := repo.SaveSweep(ctx, e.Symbol, sweep); err != nil {
			logging.DatabaseContext("save_sweep", "liquidity_sweeps").WithError(err).Warn("Sweep not saved")
		}
	}, events.EventSweepAdded)
}

// background handles the given bus events on a queue worker, keeping network
// calls out of the engine's synchronous store events
func (a *app) background(ctx context.Context, handle events.Handler, types ...events.EventType) error {
	q := events.NewQueue(0, handle)
	if err := q.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	unsub := q.Subscribe(a.bus, types...)
	a.closers = append(a.closers, func() error {
		unsub()
		if n := q.Dropped(); n > 0 {
			logging.Warn("Background queue dropped events", "dropped", n)
		}
		return q.Stop()
	})
	return nil
}

// buildMonitor creates the polling service over the market data directory
func (a *app) buildMonitor() (*monitor.Service, error) {
	mc := a.cfg.MonitorConfig
	md := a.cfg.MarketDataConfig

	var htf analysis.Timeframe
	if md.HTF != "" {
		tf, err := analysis.ParseTimeframe(md.HTF)
		if err != nil {
			return nil, fmt.Errorf("market_data.htf: %w", err)
		}
		htf = tf
	}

	var opts []monitor.Option
	if a.repo != nil {
		opts = append(opts, monitor.WithSignalSaver(a.repo))
	}
	if a.journal != nil {
		opts = append(opts, monitor.WithJournal(a.journal))
	}
	var ttl time.Duration
	if a.cache != nil {
		opts = append(opts, monitor.WithSnapshots(a.cache))
		tf, _ := analysis.ParseTimeframe(md.Timeframe)
		ttl = cache.TTLFor(a.cfg.RedisConfig.TTL, tf)
	}

	svc, err := monitor.NewService(monitor.Config{
		Symbols:      mc.Symbols,
		Interval:     mc.Interval,
		MaxRetries:   mc.MaxRetries,
		MaxFailures:  mc.MaxFailures,
		Cooldown:     mc.Cooldown,
		CleanupEvery: mc.CleanupEvery,
		HTF:          htf,
		SnapshotTTL:  ttl,
	}, marketdata.DirectorySource{Dir: md.Directory}, a.registry, a.bus, opts...)
	if err != nil {
		return nil, err
	}
	a.monitor = svc
	return svc, nil
}

// buildServer creates the API server with every configured backend exposed
func (a *app) buildServer() *api.Server {
	var opts []api.Option
	if a.cfg.AuthConfig.Enabled {
		opts = append(opts, api.WithAuth(auth.NewJWTManager(a.cfg.AuthConfig.JWTSecret, a.cfg.AuthConfig.Issuer)))
	}
	if a.repo != nil {
		opts = append(opts,
			api.WithSignalHistory(a.repo),
			api.WithHealthCheck("postgres", a.repo.HealthCheck),
		)
	} else if a.journal != nil {
		opts = append(opts, api.WithSignalHistory(api.HistoryFunc(a.journal.ListSignals)))
	}
	if a.journal != nil {
		opts = append(opts, api.WithRunHistory(a.journal))
	}
	if a.cache != nil {
		opts = append(opts, api.WithHealthCheck("redis", a.cache.Ping))
	}
	if a.monitor != nil {
		opts = append(opts, api.WithMonitor(a.monitor))
	}
	return api.NewServer(a.cfg.ServerConfig, a.registry, a.bus, opts...)
}

func (a *app) fail(err error) error {
	if cerr := a.Close(); cerr != nil {
		return multierror.Append(err, cerr)
	}
	return err
}

// Close releases the components in reverse order of creation
func (a *app) Close() error {
	var result *multierror.Error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	a.closers = nil
	return result.ErrorOrNil()
}
