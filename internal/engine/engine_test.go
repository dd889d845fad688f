package engine

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidity-hunter/internal/events"
	"liquidity-hunter/internal/liquidity"
	"liquidity-hunter/internal/liquidity/liquiditytest"
	"liquidity-hunter/internal/store"
)

var (
	reversalWithSweep = liquiditytest.ReversalWithSweep
	flatCandles       = liquiditytest.FlatCandles
	clockAt           = liquiditytest.ClockAt
)

func newEngine(t *testing.T, hour int, opts ...Option) *Engine {
	t.Helper()
	seq := 0
	opts = append([]Option{
		WithClock(clockAt(hour)),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("signal-%d", seq)
		}),
	}, opts...)
	e, err := New("BTCUSDT", liquidity.DefaultConfig(), opts...)
	require.NoError(t, err)
	return e
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := liquidity.DefaultConfig()
	cfg.MinWickRatio = 2
	cfg.MaxCandles = 5

	_, err := New("BTCUSDT", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_wick_ratio")
	assert.Contains(t, err.Error(), "max_candles")

	_, err = New("", liquidity.DefaultConfig())
	assert.Error(t, err)
}

func TestAnalyze_InsufficientData(t *testing.T) {
	e := newEngine(t, 3)

	result := e.Analyze(flatCandles(30), nil)

	assert.False(t, result.HasValidSetup)
	require.Len(t, result.BlockingReasons, 1)
	assert.Contains(t, result.BlockingReasons[0], "insufficient data")
	assert.Empty(t, result.Pools)
	assert.Empty(t, result.Sweeps)
	assert.Empty(t, result.Structures)

	stats := e.Store().Statistics()
	assert.Zero(t, stats.TotalPools)
	assert.Zero(t, stats.TotalSweeps)
	assert.Zero(t, stats.TotalStructures)
	assert.Zero(t, stats.CandleCount)
}

func TestAnalyze_NoSweep(t *testing.T) {
	e := newEngine(t, 10)

	result := e.Analyze(flatCandles(60), nil)

	assert.False(t, result.HasValidSetup)
	assert.Equal(t, []string{"no liquidity sweep detected"}, result.BlockingReasons)
	assert.NotEmpty(t, result.Pools)
	assert.Len(t, e.Store().Candles(), 60)
}

func TestAnalyze_ScoreBelowSessionThreshold(t *testing.T) {
	e := newEngine(t, 3) // Asian session

	result := e.Analyze(reversalWithSweep(), nil)

	require.Len(t, result.Sweeps, 1)
	assert.Equal(t, liquidity.DirectionUp, result.Sweeps[0].Direction)
	assert.InDelta(t, 115.5, result.Sweeps[0].PoolPrice, 1e-9)

	var choch int
	for _, s := range result.Structures {
		if s.Kind == liquidity.CHOCH {
			choch++
			assert.Equal(t, liquidity.DirectionDown, s.Direction)
		}
	}
	assert.Equal(t, 1, choch)

	assert.False(t, result.HasValidSetup)
	assert.Nil(t, result.Signal)
	assert.Equal(t, liquidity.SessionAsian, result.Session)
	require.Len(t, result.BlockingReasons, 1)
	assert.Contains(t, result.BlockingReasons[0], "score")
	assert.Contains(t, result.BlockingReasons[0], "threshold 65")

	// the sweep and structure stay recorded
	pool, ok := e.Store().GetPool(result.Sweeps[0].PoolID)
	require.True(t, ok)
	assert.Equal(t, liquidity.PoolSwept, pool.Status)
	assert.Empty(t, e.Store().GetRecentSignals(0))
}

func TestAnalyze_SignalInOverlapSession(t *testing.T) {
	bus := events.NewEventBus()
	var completed []events.Event
	bus.Subscribe(events.EventAnalysisCompleted, func(ev events.Event) { completed = append(completed, ev) })

	e := newEngine(t, 14, WithEventBus(bus)) // London/New York overlap
	candles := reversalWithSweep()

	result := e.Analyze(candles, nil)

	require.True(t, result.HasValidSetup, "blocked: %v", result.BlockingReasons)
	require.NotNil(t, result.Signal)
	sig := result.Signal

	assert.Equal(t, "signal-1", sig.ID)
	assert.Equal(t, liquidity.Bearish, sig.Direction)
	assert.Equal(t, 115.2, sig.Entry)
	assert.Less(t, sig.TakeProfit, sig.Entry)
	assert.Greater(t, sig.StopLoss, sig.Entry)
	assert.InDelta(t, 2*(sig.StopLoss-sig.Entry), sig.Entry-sig.TakeProfit, 1e-9)
	assert.Equal(t, 2.0, sig.RiskReward)
	assert.Equal(t, liquidity.SessionOverlap, sig.Session)
	assert.GreaterOrEqual(t, sig.Score.Total, 45.0)
	assert.Greater(t, sig.Score.Breakdown.Session, 0.0)
	assert.Contains(t, sig.Reasoning, "Change of character")
	assert.Equal(t, candles[60].Time, sig.CandleTime)

	require.Len(t, completed, 1)
	assert.Equal(t, true, completed[0].Data["has_valid_setup"])

	// re-analysing the same history does not duplicate the signal
	again := e.Analyze(candles, nil)
	assert.False(t, again.HasValidSetup)
	assert.Contains(t, again.BlockingReasons[0], "already generated")
	assert.Len(t, e.Store().GetRecentSignals(0), 1)
	assert.Len(t, again.Sweeps, 1)
}

func TestAnalyze_ExplicitRSIIsAligned(t *testing.T) {
	e := newEngine(t, 14)
	candles := reversalWithSweep()

	rsi := make([]float64, len(candles)+10)
	for i := range rsi {
		rsi[i] = 50
	}
	result := e.Analyze(candles, rsi)
	require.NotNil(t, result.Signal)
	assert.Zero(t, result.Signal.Score.Breakdown.Divergence)
}

func TestAnalyze_Deterministic(t *testing.T) {
	a := newEngine(t, 14)
	b := newEngine(t, 14)

	ra := a.Analyze(reversalWithSweep(), nil)
	rb := b.Analyze(reversalWithSweep(), nil)

	assert.Equal(t, ra.Pools, rb.Pools)
	assert.Equal(t, ra.Sweeps, rb.Sweeps)
	assert.Equal(t, ra.Structures, rb.Structures)
	assert.Equal(t, ra.Signal, rb.Signal)
}

// seedSweep registers pool and a sweep of it on the candle at sweptAt
func seedSweep(t *testing.T, e *Engine, pool liquidity.Pool, dir liquidity.Direction, sweptAt int) liquidity.Sweep {
	t.Helper()
	candles := flatCandles(60)
	e.Store().AddPools([]liquidity.Pool{pool})
	sweep := liquidity.Sweep{
		ID:          fmt.Sprintf("sweep-%d", sweptAt),
		PoolID:      pool.ID,
		PoolType:    pool.Type,
		PoolPrice:   pool.Price,
		Price:       pool.Price,
		Time:        candles[sweptAt].Time,
		CandleIndex: sweptAt,
		WickRatio:   0.6,
		Direction:   dir,
	}
	require.NoError(t, e.Store().AddSweep(sweep))
	return sweep
}

func structureAt(index int, kind liquidity.StructureKind, dir liquidity.Direction) liquidity.StructureChange {
	return liquidity.StructureChange{
		ID:           fmt.Sprintf("structure-%d", index),
		Kind:         kind,
		Direction:    dir,
		Price:        100,
		Time:         flatCandles(60)[index].Time,
		CandleIndex:  index,
		Significance: 0.5,
	}
}

func seededPool(t liquidity.PoolType, price float64) liquidity.Pool {
	formed := flatCandles(60)[10].Time
	return liquidity.Pool{
		ID:            liquidity.PoolID(t, formed, price),
		Type:          t,
		Price:         price,
		FormedAt:      formed,
		Status:        liquidity.PoolActive,
		CandleIndices: []int{10, 20},
		Strength:      2,
	}
}

func TestAnalyze_NoStructureChange(t *testing.T) {
	e := newEngine(t, 14)
	seedSweep(t, e, seededPool(liquidity.PoolEqualLows, 98), liquidity.DirectionDown, 58)

	result := e.Analyze(flatCandles(60), nil)

	assert.False(t, result.HasValidSetup)
	assert.Equal(t, []string{"no structure change detected"}, result.BlockingReasons)
}

func TestAnalyze_SweepAndStructureDisagree(t *testing.T) {
	e := newEngine(t, 14)
	seedSweep(t, e, seededPool(liquidity.PoolEqualLows, 98), liquidity.DirectionDown, 58)
	e.Store().AddStructures([]liquidity.StructureChange{structureAt(58, liquidity.CHOCH, liquidity.DirectionDown)})

	result := e.Analyze(flatCandles(60), nil)

	assert.False(t, result.HasValidSetup)
	require.Len(t, result.BlockingReasons, 1)
	assert.Contains(t, result.BlockingReasons[0], "does not corroborate")
	assert.Nil(t, result.Signal)
}

func TestAnalyze_AcceptedBreakoutVetoesSweep(t *testing.T) {
	e := newEngine(t, 14)
	seedSweep(t, e, seededPool(liquidity.PoolEqualHighs, 102), liquidity.DirectionUp, 58)
	e.Store().AddStructures([]liquidity.StructureChange{structureAt(58, liquidity.CHOCH, liquidity.DirectionDown)})

	// the newest candle closes above the swept level on heavy volume
	candles := flatCandles(60)
	last := &candles[59]
	last.Open, last.High, last.Low, last.Close, last.Volume = 100, 103, 99.9, 102.9, 1000

	result := e.Analyze(candles, nil)

	assert.False(t, result.HasValidSetup)
	require.Len(t, result.BlockingReasons, 1)
	assert.Contains(t, result.BlockingReasons[0], "breakout accepted beyond equal_highs")
	assert.Len(t, result.Sweeps, 1)
}

func TestAnalyze_ImportedUnknownPoolTypeBlocks(t *testing.T) {
	candles := flatCandles(60)
	pool := liquidity.Pool{
		ID:       "imported-pool",
		Type:     "order_block",
		Price:    98,
		FormedAt: candles[10].Time,
		Status:   liquidity.PoolSwept,
	}
	raw, err := json.Marshal(store.State{
		Symbol: "BTCUSDT",
		Pools:  []liquidity.Pool{pool},
		Sweeps: []liquidity.Sweep{{
			ID: "imported-sweep", PoolID: pool.ID, PoolType: pool.Type, PoolPrice: 98,
			Time: candles[58].Time, CandleIndex: 58, Direction: liquidity.DirectionDown,
		}},
		Structures: []liquidity.StructureChange{structureAt(58, liquidity.CHOCH, liquidity.DirectionUp)},
	})
	require.NoError(t, err)

	e := newEngine(t, 14)
	require.NoError(t, e.Store().ImportJSON(raw))

	var result liquidity.AnalysisResult
	require.NotPanics(t, func() { result = e.Analyze(candles, nil) })

	assert.False(t, result.HasValidSetup)
	require.Len(t, result.BlockingReasons, 1)
	assert.Contains(t, result.BlockingReasons[0], `unknown pool type "order_block"`)
}
