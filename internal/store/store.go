package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"liquidity-hunter/internal/events"
	"liquidity-hunter/internal/liquidity"
)

var (
	ErrPoolNotFound     = errors.New("pool not found")
	ErrPoolAlreadySwept = errors.New("pool already swept")
	ErrDuplicateSweep   = errors.New("duplicate sweep")
	ErrDuplicateSignal  = errors.New("duplicate signal")
)

// State is a snapshot of everything the store holds for one symbol
type State struct {
	Symbol     string                      `json:"symbol"`
	Pools      []liquidity.Pool            `json:"pools"`
	Sweeps     []liquidity.Sweep           `json:"sweeps"`
	Structures []liquidity.StructureChange `json:"structures"`
	Signals    []liquidity.TradingSignal   `json:"signals"`
	Candles    []liquidity.Candle          `json:"candles"`
	UpdatedAt  time.Time                   `json:"updated_at"`
}

// Statistics aggregates the store contents
type Statistics struct {
	Symbol          string                     `json:"symbol"`
	TotalPools      int                        `json:"total_pools"`
	ActivePools     int                        `json:"active_pools"`
	SweptPools      int                        `json:"swept_pools"`
	PoolsByType     map[liquidity.PoolType]int `json:"pools_by_type"`
	TotalSweeps     int                        `json:"total_sweeps"`
	SweepsUp        int                        `json:"sweeps_up"`
	SweepsDown      int                        `json:"sweeps_down"`
	TotalStructures int                        `json:"total_structures"`
	CHOCHCount      int                        `json:"choch_count"`
	BOSCount        int                        `json:"bos_count"`
	TotalSignals    int                        `json:"total_signals"`
	BullishSignals  int                        `json:"bullish_signals"`
	BearishSignals  int                        `json:"bearish_signals"`
	AverageScore    float64                    `json:"average_score"`
	CandleCount     int                        `json:"candle_count"`
	LastUpdated     time.Time                  `json:"last_updated"`
}

// Store is the in-memory aggregate of pools, sweeps, structures, signals and
// the current candle window of one symbol. Every mutation notifies subscribers
// synchronously before returning. A Store has exactly one writer; callers
// sharing one across goroutines must serialize access themselves.
type Store struct {
	symbol     string
	maxAge     time.Duration
	maxCandles int
	now        func() time.Time
	bus        *events.EventBus
	state      State
}

// Option configures a Store
type Option func(*Store)

// WithClock sets the time source used for UpdatedAt and event timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithEventBus publishes store events on a shared bus instead of a private one
func WithEventBus(bus *events.EventBus) Option {
	return func(s *Store) { s.bus = bus }
}

// New creates an empty store for symbol
func New(symbol string, cfg liquidity.LiquidityConfig, opts ...Option) *Store {
	cfg = liquidity.LoadConfig(&cfg)
	s := &Store{
		symbol:     symbol,
		maxAge:     cfg.MaxAge,
		maxCandles: cfg.MaxCandles,
		now:        time.Now,
		state:      State{Symbol: symbol},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.bus == nil {
		s.bus = events.NewEventBus()
	}
	return s
}

// Symbol returns the instrument this store belongs to
func (s *Store) Symbol() string {
	return s.symbol
}

// Subscribe registers a listener for every mutation and returns its cancel func
func (s *Store) Subscribe(fn events.Subscriber) func() {
	return s.bus.SubscribeAll(fn)
}

// Bus returns the bus the store publishes on
func (s *Store) Bus() *events.EventBus {
	return s.bus
}

func (s *Store) publish(t events.EventType, data map[string]interface{}) {
	s.bus.Publish(events.Event{
		Type:      t,
		Symbol:    s.symbol,
		Timestamp: s.now(),
		Data:      data,
	})
}

func (s *Store) touch() {
	s.state.UpdatedAt = s.now()
}

// SetCandles replaces the candle window, keeping at most the newest maxCandles
func (s *Store) SetCandles(candles []liquidity.Candle) {
	start := 0
	if len(candles) > s.maxCandles {
		start = len(candles) - s.maxCandles
	}
	s.state.Candles = append([]liquidity.Candle(nil), candles[start:]...)
	s.touch()
	s.publish(events.EventCandlesUpdated, map[string]interface{}{"count": len(s.state.Candles)})
}

// AddPools appends pools whose IDs are not yet known and returns those added
func (s *Store) AddPools(pools []liquidity.Pool) []liquidity.Pool {
	known := make(map[string]bool, len(s.state.Pools))
	for _, p := range s.state.Pools {
		known[p.ID] = true
	}

	var added []liquidity.Pool
	for _, p := range pools {
		if known[p.ID] {
			continue
		}
		known[p.ID] = true
		p = clonePool(p)
		s.state.Pools = append(s.state.Pools, p)
		added = append(added, clonePool(p))
	}
	if len(added) == 0 {
		return nil
	}

	s.touch()
	s.publish(events.EventPoolsAdded, map[string]interface{}{"pools": added})
	return added
}

// AddSweep records a sweep and flips the referenced pool to swept. This is the
// only place a pool's status changes, and it never reverts.
func (s *Store) AddSweep(sweep liquidity.Sweep) error {
	for _, existing := range s.state.Sweeps {
		if existing.ID == sweep.ID || (existing.PoolID == sweep.PoolID && existing.Time.Equal(sweep.Time)) {
			return fmt.Errorf("%w: %s", ErrDuplicateSweep, sweep.ID)
		}
	}

	idx := -1
	for i := range s.state.Pools {
		if s.state.Pools[i].ID == sweep.PoolID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrPoolNotFound, sweep.PoolID)
	}
	pool := &s.state.Pools[idx]
	if !pool.IsActive() {
		return fmt.Errorf("%w: %s", ErrPoolAlreadySwept, pool.ID)
	}

	sweptAt := sweep.Time
	pool.Status = liquidity.PoolSwept
	pool.SweptAt = &sweptAt
	s.state.Sweeps = append(s.state.Sweeps, sweep)
	s.touch()

	s.publish(events.EventSweepAdded, map[string]interface{}{"sweep": sweep})
	s.publish(events.EventPoolSwept, map[string]interface{}{"pool": clonePool(*pool)})
	return nil
}

// AddStructures appends structure changes whose IDs are not yet known
func (s *Store) AddStructures(changes []liquidity.StructureChange) []liquidity.StructureChange {
	known := make(map[string]bool, len(s.state.Structures))
	for _, c := range s.state.Structures {
		known[c.ID] = true
	}

	var added []liquidity.StructureChange
	for _, c := range changes {
		if known[c.ID] {
			continue
		}
		known[c.ID] = true
		s.state.Structures = append(s.state.Structures, c)
		added = append(added, c)
	}
	if len(added) == 0 {
		return nil
	}

	s.touch()
	s.publish(events.EventStructuresAdded, map[string]interface{}{"structures": added})
	return added
}

// AddSignal appends a trading signal; signals are never modified afterwards
func (s *Store) AddSignal(signal liquidity.TradingSignal) error {
	for _, existing := range s.state.Signals {
		if existing.ID == signal.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateSignal, signal.ID)
		}
	}
	s.state.Signals = append(s.state.Signals, signal)
	s.touch()
	s.publish(events.EventSignalAdded, map[string]interface{}{"signal": signal})
	return nil
}

// GetState returns a deep copy of the current state
func (s *Store) GetState() State {
	st := State{
		Symbol:     s.state.Symbol,
		Pools:      make([]liquidity.Pool, len(s.state.Pools)),
		Sweeps:     append([]liquidity.Sweep(nil), s.state.Sweeps...),
		Structures: append([]liquidity.StructureChange(nil), s.state.Structures...),
		Signals:    append([]liquidity.TradingSignal(nil), s.state.Signals...),
		Candles:    append([]liquidity.Candle(nil), s.state.Candles...),
		UpdatedAt:  s.state.UpdatedAt,
	}
	for i, p := range s.state.Pools {
		st.Pools[i] = clonePool(p)
	}
	return st
}

// Pools returns a copy of every pool in insertion order
func (s *Store) Pools() []liquidity.Pool {
	out := make([]liquidity.Pool, len(s.state.Pools))
	for i, p := range s.state.Pools {
		out[i] = clonePool(p)
	}
	return out
}

// GetPool looks a pool up by id
func (s *Store) GetPool(id string) (liquidity.Pool, bool) {
	for _, p := range s.state.Pools {
		if p.ID == id {
			return clonePool(p), true
		}
	}
	return liquidity.Pool{}, false
}

// GetActivePools returns the pools that have not been swept
func (s *Store) GetActivePools() []liquidity.Pool {
	var out []liquidity.Pool
	for _, p := range s.state.Pools {
		if p.IsActive() {
			out = append(out, clonePool(p))
		}
	}
	return out
}

// Sweeps returns a copy of every sweep in insertion order
func (s *Store) Sweeps() []liquidity.Sweep {
	return append([]liquidity.Sweep(nil), s.state.Sweeps...)
}

// Structures returns a copy of every structure change in insertion order
func (s *Store) Structures() []liquidity.StructureChange {
	return append([]liquidity.StructureChange(nil), s.state.Structures...)
}

// Candles returns a copy of the candle window
func (s *Store) Candles() []liquidity.Candle {
	return append([]liquidity.Candle(nil), s.state.Candles...)
}

// LatestSweep returns the sweep with the latest candle time
func (s *Store) LatestSweep() (liquidity.Sweep, bool) {
	var (
		latest liquidity.Sweep
		found  bool
	)
	for _, sw := range s.state.Sweeps {
		if !found || !sw.Time.Before(latest.Time) {
			latest, found = sw, true
		}
	}
	return latest, found
}

// LatestStructure returns the structure change with the latest candle time
func (s *Store) LatestStructure() (liquidity.StructureChange, bool) {
	var (
		latest liquidity.StructureChange
		found  bool
	)
	for _, c := range s.state.Structures {
		if !found || !c.Time.Before(latest.Time) {
			latest, found = c, true
		}
	}
	return latest, found
}

// HasSweepAt reports whether a sweep was already recorded for the candle at t
func (s *Store) HasSweepAt(t time.Time) bool {
	for _, sw := range s.state.Sweeps {
		if sw.Time.Equal(t) {
			return true
		}
	}
	return false
}

// HasSignalFor reports whether a signal already links this sweep and structure
func (s *Store) HasSignalFor(sweepID, structureID string) bool {
	for _, sig := range s.state.Signals {
		if sig.SweepID == sweepID && sig.StructureID == structureID {
			return true
		}
	}
	return false
}

// GetRecentSignals returns up to n signals, newest first. n <= 0 returns all.
func (s *Store) GetRecentSignals(n int) []liquidity.TradingSignal {
	signals := append([]liquidity.TradingSignal(nil), s.state.Signals...)
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].CreatedAt.After(signals[j].CreatedAt)
	})
	if n > 0 && len(signals) > n {
		signals = signals[:n]
	}
	return signals
}

// PoolsBetween returns pools formed in [from, to]
func (s *Store) PoolsBetween(from, to time.Time) []liquidity.Pool {
	var out []liquidity.Pool
	for _, p := range s.state.Pools {
		if within(p.FormedAt, from, to) {
			out = append(out, clonePool(p))
		}
	}
	return out
}

// SweepsBetween returns sweeps whose candle falls in [from, to]
func (s *Store) SweepsBetween(from, to time.Time) []liquidity.Sweep {
	var out []liquidity.Sweep
	for _, sw := range s.state.Sweeps {
		if within(sw.Time, from, to) {
			out = append(out, sw)
		}
	}
	return out
}

// StructuresBetween returns structure changes whose candle falls in [from, to]
func (s *Store) StructuresBetween(from, to time.Time) []liquidity.StructureChange {
	var out []liquidity.StructureChange
	for _, c := range s.state.Structures {
		if within(c.Time, from, to) {
			out = append(out, c)
		}
	}
	return out
}

// SignalsBetween returns signals created in [from, to]
func (s *Store) SignalsBetween(from, to time.Time) []liquidity.TradingSignal {
	var out []liquidity.TradingSignal
	for _, sig := range s.state.Signals {
		if within(sig.CreatedAt, from, to) {
			out = append(out, sig)
		}
	}
	return out
}

// Cleanup drops everything older than the configured max age relative to now
// and returns how many entries were removed.
func (s *Store) Cleanup(now time.Time) int {
	cutoff := now.Add(-s.maxAge)
	removed := 0

	pools := s.state.Pools[:0]
	for _, p := range s.state.Pools {
		if p.FormedAt.Before(cutoff) {
			removed++
			continue
		}
		pools = append(pools, p)
	}
	s.state.Pools = pools

	sweeps := s.state.Sweeps[:0]
	for _, sw := range s.state.Sweeps {
		if sw.Time.Before(cutoff) {
			removed++
			continue
		}
		sweeps = append(sweeps, sw)
	}
	s.state.Sweeps = sweeps

	structures := s.state.Structures[:0]
	for _, c := range s.state.Structures {
		if c.Time.Before(cutoff) {
			removed++
			continue
		}
		structures = append(structures, c)
	}
	s.state.Structures = structures

	signals := s.state.Signals[:0]
	for _, sig := range s.state.Signals {
		if sig.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		signals = append(signals, sig)
	}
	s.state.Signals = signals

	candles := s.state.Candles[:0]
	for _, c := range s.state.Candles {
		if c.Time.Before(cutoff) {
			continue
		}
		candles = append(candles, c)
	}
	s.state.Candles = candles

	s.touch()
	s.publish(events.EventCleanup, map[string]interface{}{"removed": removed, "cutoff": cutoff})
	return removed
}

// ExportJSON serializes the full state
func (s *Store) ExportJSON() ([]byte, error) {
	data, err := json.Marshal(s.GetState())
	if err != nil {
		return nil, fmt.Errorf("failed to export state: %w", err)
	}
	return data, nil
}

// ImportJSON replaces the state with a previously exported one. Only the JSON
// shape is checked; the content is trusted as exported.
func (s *Store) ImportJSON(data []byte) error {
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("failed to import state: %w", err)
	}
	if st.Symbol == "" {
		st.Symbol = s.symbol
	}
	s.state = st
	s.publish(events.EventImported, map[string]interface{}{
		"pools":   len(st.Pools),
		"sweeps":  len(st.Sweeps),
		"signals": len(st.Signals),
	})
	return nil
}

// Reset drops all state
func (s *Store) Reset() {
	s.state = State{Symbol: s.symbol}
	s.touch()
	s.publish(events.EventCleanup, map[string]interface{}{"reset": true})
}

// Statistics aggregates the current contents
func (s *Store) Statistics() Statistics {
	stats := Statistics{
		Symbol:      s.symbol,
		TotalPools:  len(s.state.Pools),
		PoolsByType: make(map[liquidity.PoolType]int),
		TotalSweeps: len(s.state.Sweeps),
		CandleCount: len(s.state.Candles),
		LastUpdated: s.state.UpdatedAt,
	}

	for _, p := range s.state.Pools {
		stats.PoolsByType[p.Type]++
		if p.IsActive() {
			stats.ActivePools++
		} else {
			stats.SweptPools++
		}
	}
	for _, sw := range s.state.Sweeps {
		if sw.Direction == liquidity.DirectionUp {
			stats.SweepsUp++
		} else {
			stats.SweepsDown++
		}
	}

	stats.TotalStructures = len(s.state.Structures)
	for _, c := range s.state.Structures {
		if c.Kind == liquidity.CHOCH {
			stats.CHOCHCount++
		} else {
			stats.BOSCount++
		}
	}

	stats.TotalSignals = len(s.state.Signals)
	total := 0.0
	for _, sig := range s.state.Signals {
		total += sig.Score.Total
		if sig.Direction == liquidity.Bullish {
			stats.BullishSignals++
		} else {
			stats.BearishSignals++
		}
	}
	if stats.TotalSignals > 0 {
		stats.AverageScore = total / float64(stats.TotalSignals)
	}

	return stats
}

func within(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

func clonePool(p liquidity.Pool) liquidity.Pool {
	p.CandleIndices = append([]int(nil), p.CandleIndices...)
	if p.SweptAt != nil {
		at := *p.SweptAt
		p.SweptAt = &at
	}
	return p
}
