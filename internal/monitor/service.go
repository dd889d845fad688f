// Package monitor polls a candle source on an interval and runs the engine of
// every configured symbol, forwarding results to the optional sinks.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"liquidity-hunter/internal/analysis"
	"liquidity-hunter/internal/circuit"
	"liquidity-hunter/internal/engine"
	"liquidity-hunter/internal/events"
	"liquidity-hunter/internal/journal"
	"liquidity-hunter/internal/liquidity"
	"liquidity-hunter/internal/logging"
	"liquidity-hunter/internal/marketdata"
	"liquidity-hunter/internal/store"
)

// ErrSymbolPaused is returned for a symbol whose breaker is open
var ErrSymbolPaused = errors.New("symbol paused")

// SignalSaver persists signals durably
type SignalSaver interface {
	SaveSignal(ctx context.Context, signal liquidity.TradingSignal) error
}

// RunJournal records every analysis run and the signals it produced
type RunJournal interface {
	RecordSignal(ctx context.Context, signal liquidity.TradingSignal) error
	RecordRun(ctx context.Context, run journal.RunRecord) (int64, error)
}

// SnapshotStore keeps store snapshots across restarts
type SnapshotStore interface {
	SaveStore(ctx context.Context, st *store.Store, ttl time.Duration) error
	RestoreStore(ctx context.Context, st *store.Store) error
}

// Config controls the polling loop
type Config struct {
	Symbols      []string
	Interval     time.Duration
	MaxRetries   int                // fetch retries per poll
	MaxFailures  int                // consecutive failed polls before a symbol is paused
	Cooldown     time.Duration      // how long a paused symbol is skipped
	CleanupEvery time.Duration      // zero disables store cleanup
	HTF          analysis.Timeframe // empty disables HTF pools
	SnapshotTTL  time.Duration
	Concurrency  int
}

// Service runs the engines of Config.Symbols on every tick
type Service struct {
	config     Config
	source     marketdata.CandleSource
	registry   *engine.Registry
	bus        *events.EventBus
	signals    SignalSaver
	journal    RunJournal
	snapshots  SnapshotStore
	newBackOff func() backoff.BackOff
	now        func() time.Time
	logger     *logging.Logger

	mu          sync.Mutex
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	breakers    map[string]*circuit.Breaker
	lastCleanup map[string]time.Time
	runs        int
}

// Option configures a Service
type Option func(*Service)

func WithSignalSaver(s SignalSaver) Option {
	return func(svc *Service) { svc.signals = s }
}

func WithJournal(j RunJournal) Option {
	return func(svc *Service) { svc.journal = j }
}

func WithSnapshots(s SnapshotStore) Option {
	return func(svc *Service) { svc.snapshots = s }
}

// WithBackOff replaces the exponential fetch backoff
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(svc *Service) { svc.newBackOff = fn }
}

func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

func WithLogger(l *logging.Logger) Option {
	return func(svc *Service) { svc.logger = l }
}

// NewService creates a stopped service. The registry's engines should publish
// on bus so that subscribers see store events and monitor events together.
func NewService(cfg Config, source marketdata.CandleSource, registry *engine.Registry, bus *events.EventBus, opts ...Option) (*Service, error) {
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("monitor: no symbols configured")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("monitor: interval must be positive")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if bus == nil {
		bus = events.NewEventBus()
	}

	svc := &Service{
		config:   cfg,
		source:   source,
		registry: registry,
		bus:      bus,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxElapsedTime = cfg.Interval
			return b
		},
		now:         time.Now,
		logger:      logging.Default(),
		breakers:    make(map[string]*circuit.Breaker),
		lastCleanup: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.logger = svc.logger.WithComponent("monitor")

	for _, symbol := range cfg.Symbols {
		b := circuit.New(circuit.Config{
			Enabled:                cfg.MaxFailures > 0,
			MaxConsecutiveFailures: cfg.MaxFailures,
			Cooldown:               cfg.Cooldown,
		})
		b.SetClock(svc.now)
		symbol := symbol
		b.OnTrip(func(reason string) {
			svc.logger.Warn("Symbol paused", "symbol", symbol, "reason", reason)
		})
		b.OnReset(func() {
			svc.logger.Info("Symbol resumed", "symbol", symbol)
		})
		svc.breakers[symbol] = b
	}
	return svc, nil
}

// Bus returns the bus the service and its engines publish on
func (s *Service) Bus() *events.EventBus {
	return s.bus
}

// Registry returns the per-symbol engines
func (s *Service) Registry() *engine.Registry {
	return s.registry
}

// Restore loads the cached snapshot of every symbol, if any
func (s *Service) Restore(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}
	var result *multierror.Error
	for _, symbol := range s.config.Symbols {
		err := s.registry.With(symbol, func(e *engine.Engine) error {
			return s.snapshots.RestoreStore(ctx, e.Store())
		})
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", symbol, err))
			continue
		}
		s.logger.Info("Restored snapshot", "symbol", symbol)
	}
	return result.ErrorOrNil()
}

// Start launches the polling loop; the first poll runs immediately
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("monitor already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	logging.MonitorContext("all", s.config.Interval).Info("Starting monitor", "symbols", len(s.config.Symbols))
	s.bus.Publish(events.Event{
		Type: events.EventMonitorStarted,
		Data: map[string]interface{}{
			"symbols":  s.config.Symbols,
			"interval": s.config.Interval.String(),
		},
	})

	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop cancels the loop and waits for the running poll to finish
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("monitor not running")
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	s.bus.Publish(events.Event{
		Type: events.EventMonitorStopped,
		Data: map[string]interface{}{"runs": s.Runs()},
	})
	s.logger.Info("Monitor stopped")
	return nil
}

// IsRunning returns whether the loop is running
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Runs returns how many polls have completed
func (s *Service) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// BreakerStats reports the breaker of every symbol
func (s *Service) BreakerStats() map[string]circuit.Stats {
	out := make(map[string]circuit.Stats, len(s.breakers))
	for symbol, b := range s.breakers {
		out[symbol] = b.Stats()
	}
	return out
}

func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.WithError(err).Warn("Poll finished with errors")
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce polls every symbol once. Symbol failures are published on the bus
// and returned together; one failing symbol never stops the others.
func (s *Service) RunOnce(ctx context.Context) error {
	var (
		mu     sync.Mutex
		result *multierror.Error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for _, symbol := range s.config.Symbols {
		symbol := symbol
		g.Go(func() error {
			if err := s.runSymbol(gctx, symbol); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				mu.Lock()
				result = multierror.Append(result, fmt.Errorf("%s: %w", symbol, err))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	s.runs++
	s.mu.Unlock()
	return result.ErrorOrNil()
}

func (s *Service) runSymbol(ctx context.Context, symbol string) error {
	breaker := s.breakers[symbol]
	if ok, reason := breaker.Allow(); !ok {
		return fmt.Errorf("%w: %s", ErrSymbolPaused, reason)
	}

	candles, err := s.fetch(ctx, symbol)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		breaker.RecordFailure(err)
		s.bus.PublishError(symbol, "monitor", err)
		return err
	}
	breaker.RecordSuccess()

	now := s.now()
	var result liquidity.AnalysisResult
	err = s.registry.With(symbol, func(e *engine.Engine) error {
		if s.config.HTF != "" {
			e.SetHTFPools(analysis.HTFPools(candles, s.config.HTF, e.Config()))
		}
		result = e.Analyze(candles, nil)

		if s.cleanupDue(symbol, now) {
			if removed := e.Store().Cleanup(now); removed > 0 {
				s.logger.Debug("Store cleanup", "symbol", symbol, "removed", removed)
			}
		}
		if s.snapshots != nil {
			if err := s.snapshots.SaveStore(ctx, e.Store(), s.config.SnapshotTTL); err != nil {
				s.sinkError(symbol, "cache", err)
			}
		}
		return nil
	})
	if err != nil {
		s.bus.PublishError(symbol, "monitor", err)
		return err
	}

	s.record(ctx, result, len(candles), now)
	return nil
}

func (s *Service) fetch(ctx context.Context, symbol string) ([]liquidity.Candle, error) {
	var candles []liquidity.Candle
	op := func() error {
		c, err := s.source.Candles(ctx, symbol)
		if err != nil {
			if errors.Is(err, marketdata.ErrUnknownSymbol) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		candles = c
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), uint64(s.config.MaxRetries)), ctx)
	err := backoff.RetryNotify(op, bo, func(err error, wait time.Duration) {
		s.logger.Warn("Candle fetch failed, retrying", "symbol", symbol, "wait", wait.String(), "error", err.Error())
	})
	return candles, err
}

func (s *Service) record(ctx context.Context, result liquidity.AnalysisResult, candles int, at time.Time) {
	if s.journal != nil {
		if _, err := s.journal.RecordRun(ctx, journal.NewRunRecord(result, candles, at)); err != nil {
			s.sinkError(result.Symbol, "journal", err)
		}
	}
	if result.Signal == nil {
		return
	}

	logging.SignalContext(result.Symbol, string(result.Signal.Direction), result.Signal.Score.Total).
		Info("Signal generated", "entry", result.Signal.Entry, "stop_loss", result.Signal.StopLoss)

	if s.signals != nil {
		if err := s.signals.SaveSignal(ctx, *result.Signal); err != nil {
			s.sinkError(result.Symbol, "database", err)
		}
	}
	if s.journal != nil {
		if err := s.journal.RecordSignal(ctx, *result.Signal); err != nil {
			s.sinkError(result.Symbol, "journal", err)
		}
	}
}

func (s *Service) sinkError(symbol, sink string, err error) {
	s.logger.WithError(err).Warn("Sink failed", "symbol", symbol, "sink", sink)
	s.bus.PublishError(symbol, sink, err)
}

// cleanupDue reports, once per CleanupEvery, that the store of symbol should
// be pruned
func (s *Service) cleanupDue(symbol string, now time.Time) bool {
	if s.config.CleanupEvery <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastCleanup[symbol]
	if ok && now.Sub(last) < s.config.CleanupEvery {
		return false
	}
	s.lastCleanup[symbol] = now
	return ok
}
