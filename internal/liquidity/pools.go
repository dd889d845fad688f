package liquidity

import (
	"math"
	"sort"
	"time"
)

// PoolDetector finds liquidity zones in raw candles
type PoolDetector struct {
	tolerance       float64
	rangeMinTouches int
	swingLookback   int
	trendlineWindow int
}

// NewPoolDetector creates a pool detector from the engine configuration
func NewPoolDetector(cfg LiquidityConfig) *PoolDetector {
	cfg = LoadConfig(&cfg)
	return &PoolDetector{
		tolerance:       cfg.EqualLevelTolerance,
		rangeMinTouches: cfg.RangeMinTouches,
		swingLookback:   cfg.TrendlineSwingLookback,
		trendlineWindow: cfg.TrendlineWindow,
	}
}

// Detect runs every detection method independently and returns their union.
// The result is deterministic for a given candle sequence.
func (pd *PoolDetector) Detect(candles []Candle) []Pool {
	if len(candles) < 2 {
		return nil
	}

	var pools []Pool
	pools = append(pools, pd.DetectEqualHighs(candles)...)
	pools = append(pools, pd.DetectEqualLows(candles)...)
	pools = append(pools, pd.DetectPreviousDay(candles)...)
	pools = append(pools, pd.DetectAsianSession(candles)...)
	pools = append(pools, pd.DetectRange(candles)...)
	pools = append(pools, pd.DetectTrendline(candles)...)
	return pools
}

// DetectEqualHighs groups candles whose highs sit within tolerance of each other
func (pd *PoolDetector) DetectEqualHighs(candles []Candle) []Pool {
	return pd.clusterPools(candles, SideHigh, 2, PoolEqualHighs)
}

// DetectEqualLows groups candles whose lows sit within tolerance of each other
func (pd *PoolDetector) DetectEqualLows(candles []Candle) []Pool {
	return pd.clusterPools(candles, SideLow, 2, PoolEqualLows)
}

// DetectRange is equal-level clustering that needs at least rangeMinTouches touches
func (pd *PoolDetector) DetectRange(candles []Candle) []Pool {
	highs := pd.clusterPools(candles, SideHigh, pd.rangeMinTouches, PoolRangeHigh)
	lows := pd.clusterPools(candles, SideLow, pd.rangeMinTouches, PoolRangeLow)
	return append(highs, lows...)
}

// clusterPools is a greedy single pass: every unvisited candle gathers all other
// unvisited candles within tolerance; enough members form a pool at the mean
// price and are excluded from further grouping.
func (pd *PoolDetector) clusterPools(candles []Candle, side Side, minTouches int, poolType PoolType) []Pool {
	if len(candles) < 2 {
		return nil
	}
	if minTouches < 2 {
		minTouches = 2
	}

	visited := make([]bool, len(candles))
	var pools []Pool

	for i := range candles {
		if visited[i] || !candles[i].IsFinite() {
			continue
		}
		ref := levelOf(candles[i], side)
		members := []int{i}

		for j := range candles {
			if j == i || visited[j] || !candles[j].IsFinite() {
				continue
			}
			if withinTolerance(levelOf(candles[j], side), ref, pd.tolerance) {
				members = append(members, j)
			}
		}

		if len(members) < minTouches {
			continue
		}

		sort.Ints(members)
		sum := 0.0
		for _, m := range members {
			visited[m] = true
			sum += levelOf(candles[m], side)
		}
		price := sum / float64(len(members))
		formedAt := candles[members[len(members)-1]].Time

		pools = append(pools, newPool(poolType, price, formedAt, members))
	}

	return pools
}

// DetectPreviousDay emits the high and low of every completed UTC day,
// effective from the first candle of the following day.
func (pd *PoolDetector) DetectPreviousDay(candles []Candle) []Pool {
	days := groupByDay(candles, func(Candle) bool { return true })

	var pools []Pool
	for d := 0; d+1 < len(days); d++ {
		hi, lo, ok := extremes(candles, days[d].indices)
		if !ok {
			continue
		}
		effective := candles[days[d+1].indices[0]].Time
		pools = append(pools,
			newPool(PoolPrevDayHigh, candles[hi].High, effective, []int{hi}),
			newPool(PoolPrevDayLow, candles[lo].Low, effective, []int{lo}),
		)
	}
	return pools
}

// DetectAsianSession emits the extremes of each completed 00:00-08:00 UTC session
func (pd *PoolDetector) DetectAsianSession(candles []Candle) []Pool {
	sessions := groupByDay(candles, func(c Candle) bool { return IsAsianHour(c.Time) })
	if len(sessions) == 0 {
		return nil
	}

	last := candles[len(candles)-1]
	var pools []Pool
	for _, s := range sessions {
		// a session still printing candles has no settled extremes yet
		lastIdx := s.indices[len(s.indices)-1]
		if lastIdx == len(candles)-1 && IsAsianHour(last.Time) {
			continue
		}
		hi, lo, ok := extremes(candles, s.indices)
		if !ok {
			continue
		}
		formedAt := candles[lastIdx].Time
		pools = append(pools,
			newPool(PoolAsianHigh, candles[hi].High, formedAt, []int{hi}),
			newPool(PoolAsianLow, candles[lo].Low, formedAt, []int{lo}),
		)
	}
	return pools
}

// DetectTrendline takes the most extreme swing high and swing low inside the
// trendline lookback window.
func (pd *PoolDetector) DetectTrendline(candles []Candle) []Pool {
	start := 0
	if len(candles) > pd.trendlineWindow {
		start = len(candles) - pd.trendlineWindow
	}

	var pools []Pool

	highs := FindSwingHighs(candles, pd.swingLookback)
	best := -1
	for k, s := range highs {
		if s.CandleIndex < start {
			continue
		}
		if best < 0 || s.Price > highs[best].Price {
			best = k
		}
	}
	if best >= 0 {
		s := highs[best]
		pools = append(pools, newPool(PoolTrendlineHigh, s.Price, candles[s.CandleIndex].Time, []int{s.CandleIndex}))
	}

	lows := FindSwingLows(candles, pd.swingLookback)
	best = -1
	for k, s := range lows {
		if s.CandleIndex < start {
			continue
		}
		if best < 0 || s.Price < lows[best].Price {
			best = k
		}
	}
	if best >= 0 {
		s := lows[best]
		pools = append(pools, newPool(PoolTrendlineLow, s.Price, candles[s.CandleIndex].Time, []int{s.CandleIndex}))
	}

	return pools
}

// DedupePools returns the candidates that do not duplicate an existing pool of
// the same type within tolerance, regardless of the existing pool's status.
// Swept pools are therefore never resurrected by re-detection.
func DedupePools(existing, candidates []Pool, tolerance float64) []Pool {
	var fresh []Pool
	for _, c := range candidates {
		duplicate := false
		for _, e := range existing {
			if e.ID == c.ID || (e.Type == c.Type && withinTolerance(c.Price, e.Price, tolerance)) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			for _, f := range fresh {
				if f.Type == c.Type && withinTolerance(c.Price, f.Price, tolerance) {
					duplicate = true
					break
				}
			}
		}
		if !duplicate {
			fresh = append(fresh, c)
		}
	}
	return fresh
}

func newPool(t PoolType, price float64, formedAt time.Time, indices []int) Pool {
	return Pool{
		ID:            PoolID(t, formedAt, price),
		Type:          t,
		Price:         price,
		FormedAt:      formedAt,
		Status:        PoolActive,
		CandleIndices: indices,
		Strength:      len(indices),
	}
}

func withinTolerance(value, ref, tolerance float64) bool {
	if !isFinite(value) || !isFinite(ref) {
		return false
	}
	return math.Abs(value-ref) <= tolerance*math.Abs(ref)
}

type dayGroup struct {
	date    time.Time
	indices []int
}

// groupByDay partitions the candles accepted by keep by UTC calendar date,
// preserving chronological order.
func groupByDay(candles []Candle, keep func(Candle) bool) []dayGroup {
	var groups []dayGroup
	for i, c := range candles {
		if !keep(c) {
			continue
		}
		t := c.Time.UTC()
		date := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		if n := len(groups); n > 0 && groups[n-1].date.Equal(date) {
			groups[n-1].indices = append(groups[n-1].indices, i)
			continue
		}
		groups = append(groups, dayGroup{date: date, indices: []int{i}})
	}
	return groups
}

// extremes returns the indices of the highest high and lowest low among the
// finite candles in indices.
func extremes(candles []Candle, indices []int) (hi, lo int, ok bool) {
	hi, lo = -1, -1
	for _, i := range indices {
		c := candles[i]
		if !c.IsFinite() {
			continue
		}
		if hi < 0 || c.High > candles[hi].High {
			hi = i
		}
		if lo < 0 || c.Low < candles[lo].Low {
			lo = i
		}
	}
	return hi, lo, hi >= 0
}
