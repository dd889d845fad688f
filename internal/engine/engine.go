package engine

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"liquidity-hunter/internal/analysis"
	"liquidity-hunter/internal/confluence"
	"liquidity-hunter/internal/events"
	"liquidity-hunter/internal/liquidity"
	"liquidity-hunter/internal/logging"
	"liquidity-hunter/internal/patterns"
	"liquidity-hunter/internal/store"
)

// Engine runs the analysis pipeline for one instrument and owns its store.
// An Engine is not safe for concurrent use; see Registry.
type Engine struct {
	symbol string
	cfg    liquidity.LiquidityConfig

	store    *store.Store
	pools    *liquidity.PoolDetector
	sweeps   *liquidity.SweepDetector
	trend    *analysis.TrendAnalyzer
	breakout *analysis.BreakoutValidator
	patterns *patterns.PatternDetector
	scorer   *confluence.ConfluenceScorer
	htfPools []liquidity.Pool
	now      func() time.Time
	newID    func() string
	logger   *logging.Logger
	bus      *events.EventBus
}

// Option configures an Engine
type Option func(*Engine)

// WithClock sets the wall clock used for session selection and timestamps
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithStore makes the engine record into an existing store
func WithStore(s *store.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithEventBus makes the engine's own store publish on bus
func WithEventBus(bus *events.EventBus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithHTFPools supplies higher-timeframe reference pools for scoring
func WithHTFPools(pools []liquidity.Pool) Option {
	return func(e *Engine) { e.htfPools = append([]liquidity.Pool(nil), pools...) }
}

// WithLogger sets the logger; the default is silent
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithIDGenerator replaces the signal id generator
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// New validates cfg and builds an engine for symbol
func New(symbol string, cfg liquidity.LiquidityConfig, opts ...Option) (*Engine, error) {
	if symbol == "" {
		return nil, fmt.Errorf("engine: symbol is required")
	}
	if res := liquidity.ValidateConfig(cfg); !res.IsValid {
		return nil, fmt.Errorf("engine: invalid configuration: %w", res.Err())
	}
	cfg = liquidity.LoadConfig(&cfg)

	e := &Engine{
		symbol:   symbol,
		cfg:      cfg,
		pools:    liquidity.NewPoolDetector(cfg),
		sweeps:   liquidity.NewSweepDetector(cfg),
		trend:    analysis.NewTrendAnalyzer(cfg),
		breakout: analysis.NewBreakoutValidator(cfg),
		patterns: patterns.NewPatternDetector(cfg),
		scorer:   confluence.NewConfluenceScorer(cfg),
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.store == nil {
		storeOpts := []store.Option{store.WithClock(e.now)}
		if e.bus != nil {
			storeOpts = append(storeOpts, store.WithEventBus(e.bus))
		}
		e.store = store.New(symbol, cfg, storeOpts...)
	}
	e.logger = e.logger.WithComponent("engine").WithField("symbol", symbol)
	return e, nil
}

// Symbol returns the instrument this engine analyzes
func (e *Engine) Symbol() string {
	return e.symbol
}

// Config returns the resolved configuration
func (e *Engine) Config() liquidity.LiquidityConfig {
	return e.cfg
}

// Store returns the engine's store
func (e *Engine) Store() *store.Store {
	return e.store
}

// SetHTFPools replaces the higher-timeframe reference pools
func (e *Engine) SetHTFPools(pools []liquidity.Pool) {
	e.htfPools = append([]liquidity.Pool(nil), pools...)
}

// Analyze runs the full pipeline over candles. rsi, when given, is aligned to
// the end of candles; when nil it is computed from closes. Pools, sweeps and
// structure changes found along the way stay recorded even when no signal
// forms. Insufficient data leaves the store untouched.
func (e *Engine) Analyze(candles []liquidity.Candle, rsi []float64) liquidity.AnalysisResult {
	began := time.Now()
	session := liquidity.SessionAt(e.now())
	result := liquidity.AnalysisResult{
		Symbol:          e.symbol,
		Pools:           []liquidity.Pool{},
		Sweeps:          []liquidity.Sweep{},
		Structures:      []liquidity.StructureChange{},
		BlockingReasons: []string{},
		Session:         session,
		Threshold:       e.cfg.SessionThresholds.For(session),
	}

	if len(candles) < e.cfg.MinCandles {
		result.BlockingReasons = append(result.BlockingReasons,
			fmt.Sprintf("insufficient data: %d candles, need %d", len(candles), e.cfg.MinCandles))
		e.logger.Debug("analysis skipped", "candles", len(candles))
		return result
	}

	// 1. candle window
	e.store.SetCandles(candles)
	window := e.store.Candles()
	if rsi == nil {
		rsi = analysis.RSISeries(window, e.cfg.RSIPeriod)
	} else {
		rsi = analysis.AlignSeries(rsi, len(window))
	}
	last := len(window) - 1
	current := window[last]

	// 2. pools
	detected := e.pools.Detect(window)
	triangle, hasTriangle := e.patterns.LatestTriangle(window)
	if hasTriangle {
		detected = append(detected, triangle.Pools()...)
	}
	fresh := liquidity.DedupePools(e.store.Pools(), detected, e.cfg.EqualLevelTolerance)
	e.store.AddPools(fresh)

	// 3. at most one sweep, on the newest candle
	if !e.store.HasSweepAt(current.Time) {
		var candidates []liquidity.Pool
		for _, p := range e.store.GetActivePools() {
			if p.FormedAt.Before(current.Time) {
				candidates = append(candidates, p)
			}
		}
		if sweep, ok := e.sweeps.Detect(current, last, candidates); ok {
			if err := e.store.AddSweep(*sweep); err != nil {
				e.logger.WithError(err).Debug("sweep not recorded")
			}
		}
	}

	// 4. structure
	e.store.AddStructures(e.trend.Analyze(window))

	state := e.store.GetState()
	result.Pools = state.Pools
	result.Sweeps = state.Sweeps
	result.Structures = state.Structures

	var resolution *patterns.TriangleResolution
	if hasTriangle {
		resolution = triangle.Resolution
	}

	signal, reason := e.decide(window, rsi, session, result.Threshold, resolution)
	if signal != nil {
		result.Signal = signal
		result.HasValidSetup = true
	} else {
		result.BlockingReasons = append(result.BlockingReasons, reason)
	}

	e.publishCompleted(result, time.Since(began))
	return result
}

// decide applies the ordered gate. It returns the recorded signal, or the
// reason of the first failing check.
func (e *Engine) decide(
	window []liquidity.Candle,
	rsi []float64,
	session liquidity.Session,
	threshold float64,
	triangle *patterns.TriangleResolution,
) (*liquidity.TradingSignal, string) {
	last := len(window) - 1
	current := window[last]

	sweep, ok := e.store.LatestSweep()
	if !ok {
		return nil, "no liquidity sweep detected"
	}
	structure, ok := e.store.LatestStructure()
	if !ok {
		return nil, "no structure change detected"
	}

	var direction liquidity.SignalDirection
	switch {
	case sweep.Direction == liquidity.DirectionDown && structure.Direction == liquidity.DirectionUp:
		direction = liquidity.Bullish
	case sweep.Direction == liquidity.DirectionUp && structure.Direction == liquidity.DirectionDown:
		direction = liquidity.Bearish
	default:
		return nil, fmt.Sprintf("sweep direction %s does not corroborate %s %s", sweep.Direction, structure.Kind, structure.Direction)
	}

	if e.store.HasSignalFor(sweep.ID, structure.ID) {
		return nil, "signal already generated for this sweep and structure change"
	}

	// imported snapshots are not deep-validated
	if !sweep.PoolType.Valid() {
		return nil, fmt.Sprintf("sweep references unknown pool type %q", string(sweep.PoolType))
	}
	// the breakout check judges the newest candle: acceptance beyond the swept
	// level after the sweep invalidates it
	if pool, ok := e.store.GetPool(sweep.PoolID); ok {
		if !pool.Type.Valid() {
			return nil, fmt.Sprintf("sweep references unknown pool type %q", string(pool.Type))
		}
		if v := e.breakout.Validate(current, pool, window[:last], rsi); v.IsValid {
			return nil, fmt.Sprintf("breakout accepted beyond %s %.4f, sweep invalidated", pool.Type, pool.Price)
		}
	}

	conf := e.scorer.Calculate(confluence.ScoreInput{
		Sweep:     &sweep,
		Structure: &structure,
		Candle:    current,
		History:   window[:last],
		RSI:       rsi,
		HTFPools:  e.htfPools,
		Direction: direction,
		Triangle:  triangle,
		Session:   session,
	})
	if conf.Score.Total < threshold {
		return nil, fmt.Sprintf("score %.1f below %s session threshold %.0f", conf.Score.Total, session, threshold)
	}

	entry := current.Close
	stop, target, ok := e.levels(window, direction, entry)
	if !ok {
		return nil, "cannot size stop: no measurable volatility"
	}

	reasoning := append([]string(nil), conf.Reasoning...)
	for i := last; i >= 0; i-- {
		if !window[i].Time.Equal(sweep.Time) {
			continue
		}
		for _, p := range e.patterns.DetectRejection(window, i) {
			if p.Direction == direction {
				reasoning = append(reasoning, fmt.Sprintf("%s on sweep candle (confidence %.2f)", p.Type, p.Confidence))
			}
		}
		break
	}

	signal := liquidity.TradingSignal{
		ID:          e.newID(),
		Symbol:      e.symbol,
		Direction:   direction,
		Score:       conf.Score,
		CreatedAt:   e.now(),
		CandleTime:  current.Time,
		SweepID:     sweep.ID,
		StructureID: structure.ID,
		Entry:       entry,
		StopLoss:    stop,
		TakeProfit:  target,
		RiskReward:  e.cfg.RewardRiskRatio,
		Session:     session,
		Reasoning:   strings.Join(reasoning, "; "),
	}
	if err := e.store.AddSignal(signal); err != nil {
		return nil, fmt.Sprintf("signal not recorded: %v", err)
	}

	e.logger.WithFields(map[string]interface{}{
		"direction": direction,
		"score":     signal.Score.Total,
	}).Debug("signal generated", "entry", entry, "stop", stop, "target", target)
	return &signal, ""
}

// levels places the stop a multiple of ATR away from entry, falling back to
// the average candle range when the history is too short for ATR, and the
// target at the configured reward:risk multiple.
func (e *Engine) levels(window []liquidity.Candle, direction liquidity.SignalDirection, entry float64) (stop, target float64, ok bool) {
	volatility, err := analysis.ATR(window, e.cfg.ATRPeriod)
	if err != nil || volatility <= 0 || math.IsNaN(volatility) {
		volatility = analysis.AverageRange(window, e.cfg.FallbackRangeWindow)
	}
	risk := e.cfg.ATRStopMultiplier * volatility
	if risk <= 0 || math.IsNaN(risk) || math.IsInf(risk, 0) {
		return 0, 0, false
	}

	if direction == liquidity.Bullish {
		return entry - risk, entry + e.cfg.RewardRiskRatio*risk, true
	}
	return entry + risk, entry - e.cfg.RewardRiskRatio*risk, true
}

func (e *Engine) publishCompleted(result liquidity.AnalysisResult, took time.Duration) {
	data := map[string]interface{}{
		"has_valid_setup":  result.HasValidSetup,
		"blocking_reasons": result.BlockingReasons,
		"session":          result.Session,
		"threshold":        result.Threshold,
	}
	if result.Signal != nil {
		data["signal"] = *result.Signal
	}
	e.store.Bus().Publish(events.Event{
		Type:      events.EventAnalysisCompleted,
		Symbol:    e.symbol,
		Timestamp: e.now(),
		Data:      data,
	})

	e.logger.WithDuration(took).Debug("analysis completed",
		"pools", len(result.Pools),
		"sweeps", len(result.Sweeps),
		"structures", len(result.Structures),
		"valid", result.HasValidSetup,
	)
}
