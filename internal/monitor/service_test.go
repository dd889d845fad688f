package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidity-hunter/internal/circuit"
	"liquidity-hunter/internal/engine"
	"liquidity-hunter/internal/events"
	"liquidity-hunter/internal/journal"
	"liquidity-hunter/internal/liquidity"
	"liquidity-hunter/internal/liquidity/liquiditytest"
	"liquidity-hunter/internal/logging"
	"liquidity-hunter/internal/marketdata"
	"liquidity-hunter/internal/store"
)

type fakeJournal struct {
	mu      sync.Mutex
	runs    []journal.RunRecord
	signals []liquidity.TradingSignal
}

func (f *fakeJournal) RecordSignal(_ context.Context, s liquidity.TradingSignal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, s)
	return nil
}

func (f *fakeJournal) RecordRun(_ context.Context, r journal.RunRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, r)
	return int64(len(f.runs)), nil
}

type failingSaver struct{ calls int }

func (f *failingSaver) SaveSignal(context.Context, liquidity.TradingSignal) error {
	f.calls++
	return errors.New("db down")
}

type fakeSnapshots struct {
	mu       sync.Mutex
	saved    map[string][]byte
	restored []string
}

func (f *fakeSnapshots) SaveStore(_ context.Context, st *store.Store, _ time.Duration) error {
	data, err := st.ExportJSON()
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[st.Symbol()] = data
	return nil
}

func (f *fakeSnapshots) RestoreStore(_ context.Context, st *store.Store) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restored = append(f.restored, st.Symbol())
	data, ok := f.saved[st.Symbol()]
	if !ok {
		return errors.New("cache miss")
	}
	return st.ImportJSON(data)
}

// countingSource fails the first failures calls for every symbol
type countingSource struct {
	mu       sync.Mutex
	inner    marketdata.CandleSource
	failures int
	calls    map[string]int
}

func (c *countingSource) Candles(ctx context.Context, symbol string) ([]liquidity.Candle, error) {
	c.mu.Lock()
	c.calls[symbol]++
	n := c.calls[symbol]
	c.mu.Unlock()
	if n <= c.failures {
		return nil, errors.New("feed timeout")
	}
	return c.inner.Candles(ctx, symbol)
}

func (c *countingSource) count(symbol string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[symbol]
}

func newTestService(t *testing.T, cfg Config, source marketdata.CandleSource, opts ...Option) *Service {
	t.Helper()
	bus := events.NewEventBus()
	clock := liquiditytest.ClockAt(14)
	reg, err := engine.NewRegistry(liquidity.DefaultConfig(), engine.WithClock(clock), engine.WithEventBus(bus))
	require.NoError(t, err)

	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	opts = append([]Option{
		WithClock(clock),
		WithLogger(logging.Nop()),
		WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
	}, opts...)
	svc, err := NewService(cfg, source, reg, bus, opts...)
	require.NoError(t, err)
	return svc
}

func TestNewService_Validates(t *testing.T) {
	reg, err := engine.NewRegistry(liquidity.DefaultConfig())
	require.NoError(t, err)

	_, err = NewService(Config{Interval: time.Minute}, marketdata.NewStaticSource(), reg, nil)
	assert.Error(t, err)
	_, err = NewService(Config{Symbols: []string{"X"}}, marketdata.NewStaticSource(), reg, nil)
	assert.Error(t, err)
}

func TestRunOnce_RecordsRunsAndSignals(t *testing.T) {
	src := marketdata.NewStaticSource()
	src.Set("BTCUSDT", liquiditytest.ReversalWithSweep())
	src.Set("ETHUSDT", liquiditytest.FlatCandles(60))

	j := &fakeJournal{}
	snaps := &fakeSnapshots{saved: map[string][]byte{}}
	svc := newTestService(t, Config{Symbols: []string{"BTCUSDT", "ETHUSDT"}}, src,
		WithJournal(j), WithSnapshots(snaps))

	var signals []liquidity.TradingSignal
	svc.Bus().Subscribe(events.EventSignalAdded, func(e events.Event) {
		signals = append(signals, e.Data["signal"].(liquidity.TradingSignal))
	})

	require.NoError(t, svc.RunOnce(context.Background()))
	assert.Equal(t, 1, svc.Runs())

	require.Len(t, j.runs, 2)
	require.Len(t, j.signals, 1)
	assert.Equal(t, "BTCUSDT", j.signals[0].Symbol)
	assert.Equal(t, liquidity.Bearish, j.signals[0].Direction)
	require.Len(t, signals, 1)

	byRun := map[string]journal.RunRecord{}
	for _, r := range j.runs {
		byRun[r.Symbol] = r
	}
	assert.True(t, byRun["BTCUSDT"].HasValidSetup)
	assert.False(t, byRun["ETHUSDT"].HasValidSetup)
	assert.Equal(t, 60, byRun["ETHUSDT"].Candles)

	assert.Contains(t, snaps.saved, "BTCUSDT")
	assert.Contains(t, snaps.saved, "ETHUSDT")

	// the same candles again produce no second signal
	require.NoError(t, svc.RunOnce(context.Background()))
	assert.Len(t, j.signals, 1)
}

func TestRunOnce_SinkFailuresArePublished(t *testing.T) {
	src := marketdata.NewStaticSource()
	src.Set("BTCUSDT", liquiditytest.ReversalWithSweep())
	saver := &failingSaver{}
	svc := newTestService(t, Config{Symbols: []string{"BTCUSDT"}}, src, WithSignalSaver(saver))

	var sources []string
	svc.Bus().Subscribe(events.EventError, func(e events.Event) {
		sources = append(sources, e.Data["source"].(string))
	})

	require.NoError(t, svc.RunOnce(context.Background()))
	assert.Equal(t, 1, saver.calls)
	assert.Equal(t, []string{"database"}, sources)
}

func TestRunOnce_RetriesFetch(t *testing.T) {
	static := marketdata.NewStaticSource()
	static.Set("BTCUSDT", liquiditytest.FlatCandles(60))
	src := &countingSource{inner: static, failures: 2, calls: map[string]int{}}

	svc := newTestService(t, Config{Symbols: []string{"BTCUSDT"}, MaxRetries: 3}, src)
	require.NoError(t, svc.RunOnce(context.Background()))
	assert.Equal(t, 3, src.count("BTCUSDT"))
}

func TestRunOnce_UnknownSymbolIsNotRetried(t *testing.T) {
	static := marketdata.NewStaticSource()
	src := &countingSource{inner: static, calls: map[string]int{}}
	svc := newTestService(t, Config{Symbols: []string{"NOPE"}, MaxRetries: 5}, src)

	var errs int
	svc.Bus().Subscribe(events.EventError, func(events.Event) { errs++ })

	err := svc.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, marketdata.ErrUnknownSymbol)
	assert.Equal(t, 1, src.count("NOPE"))
	assert.Equal(t, 1, errs)
}

func TestRunOnce_PausesFailingSymbol(t *testing.T) {
	static := marketdata.NewStaticSource()
	static.Set("BTCUSDT", liquiditytest.FlatCandles(60))
	src := &countingSource{inner: static, failures: 100, calls: map[string]int{}}

	svc := newTestService(t, Config{
		Symbols:     []string{"BTCUSDT"},
		MaxFailures: 2,
		Cooldown:    time.Hour,
	}, src)

	for i := 0; i < 2; i++ {
		err := svc.RunOnce(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "feed timeout")
	}
	assert.Equal(t, circuit.StateOpen, svc.BreakerStats()["BTCUSDT"].State)

	calls := src.count("BTCUSDT")
	err := svc.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrSymbolPaused)
	assert.Equal(t, calls, src.count("BTCUSDT"))
}

func TestRestore(t *testing.T) {
	src := marketdata.NewStaticSource()
	src.Set("BTCUSDT", liquiditytest.ReversalWithSweep())
	snaps := &fakeSnapshots{saved: map[string][]byte{}}

	first := newTestService(t, Config{Symbols: []string{"BTCUSDT"}}, src, WithSnapshots(snaps))
	require.NoError(t, first.RunOnce(context.Background()))

	second := newTestService(t, Config{Symbols: []string{"BTCUSDT"}}, src, WithSnapshots(snaps))
	require.NoError(t, second.Restore(context.Background()))
	require.NoError(t, second.Registry().With("BTCUSDT", func(e *engine.Engine) error {
		assert.Len(t, e.Store().GetRecentSignals(0), 1)
		return nil
	}))
}

func TestStartStop(t *testing.T) {
	src := marketdata.NewStaticSource()
	src.Set("BTCUSDT", liquiditytest.FlatCandles(60))
	svc := newTestService(t, Config{Symbols: []string{"BTCUSDT"}, Interval: time.Hour}, src)

	var (
		mu    sync.Mutex
		types []events.EventType
	)
	polled := make(chan struct{}, 1)
	svc.Bus().SubscribeAll(func(e events.Event) {
		switch e.Type {
		case events.EventMonitorStarted, events.EventMonitorStopped:
			mu.Lock()
			types = append(types, e.Type)
			mu.Unlock()
		case events.EventAnalysisCompleted:
			select {
			case polled <- struct{}{}:
			default:
			}
		}
	})

	require.NoError(t, svc.Start(context.Background()))
	assert.True(t, svc.IsRunning())
	assert.Error(t, svc.Start(context.Background()))

	select {
	case <-polled:
	case <-time.After(5 * time.Second):
		t.Fatal("first poll did not run")
	}

	require.NoError(t, svc.Stop())
	assert.False(t, svc.IsRunning())
	assert.Error(t, svc.Stop())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []events.EventType{events.EventMonitorStarted, events.EventMonitorStopped}, types)
}
