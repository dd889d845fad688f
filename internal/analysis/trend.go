package analysis

import (
	"math"

	"liquidity-hunter/internal/liquidity"
)

// MarketStructure is the replayed state of the trend state machine
type MarketStructure struct {
	Trend      liquidity.Trend             `json:"trend"`
	SwingHighs []liquidity.SwingPoint      `json:"swing_highs"`
	SwingLows  []liquidity.SwingPoint      `json:"swing_lows"`
	Changes    []liquidity.StructureChange `json:"changes"`
}

// TrendAnalyzer classifies trend changes from swing points
type TrendAnalyzer struct {
	swingLookback     int // Candles on each side of a swing point
	minCandles        int
	significanceScale float64
}

// NewTrendAnalyzer creates a new trend analyzer from the engine configuration
func NewTrendAnalyzer(cfg liquidity.LiquidityConfig) *TrendAnalyzer {
	cfg = liquidity.LoadConfig(&cfg)
	return &TrendAnalyzer{
		swingLookback:     cfg.StructureSwingLookback,
		minCandles:        cfg.StructureLookback,
		significanceScale: cfg.SignificanceScale,
	}
}

// Analyze replays the swing points of candles in chronological order and
// returns every structure change. Once two swing highs and two swing lows are
// known the trend is recomputed at each swing: both higher is an uptrend, both
// lower a downtrend, anything else a range. Entering a range emits nothing.
// Entering a directional trend emits a CHOCH when the last directional trend
// was the opposite one and a BOS otherwise.
func (ta *TrendAnalyzer) Analyze(candles []liquidity.Candle) []liquidity.StructureChange {
	return ta.AnalyzeStructure(candles).Changes
}

// CurrentTrend returns the trend the state machine ends in
func (ta *TrendAnalyzer) CurrentTrend(candles []liquidity.Candle) liquidity.Trend {
	return ta.AnalyzeStructure(candles).Trend
}

// AnalyzeStructure performs the full replay and keeps the swing points
func (ta *TrendAnalyzer) AnalyzeStructure(candles []liquidity.Candle) MarketStructure {
	structure := MarketStructure{Trend: liquidity.TrendRange}
	if len(candles) < ta.minCandles {
		return structure
	}

	swings := liquidity.FindSwingPoints(candles, ta.swingLookback)
	if len(swings) < 4 {
		return structure
	}

	var lastDirectional liquidity.Trend

	for _, swing := range swings {
		if swing.Side == liquidity.SideHigh {
			structure.SwingHighs = append(structure.SwingHighs, swing)
		} else {
			structure.SwingLows = append(structure.SwingLows, swing)
		}

		highs, lows := structure.SwingHighs, structure.SwingLows
		if len(highs) < 2 || len(lows) < 2 {
			continue
		}
		h1, h2 := highs[len(highs)-2], highs[len(highs)-1]
		l1, l2 := lows[len(lows)-2], lows[len(lows)-1]

		trend := DetermineTrend(h1.Price, h2.Price, l1.Price, l2.Price)
		if trend == structure.Trend {
			continue
		}
		previous := structure.Trend
		structure.Trend = trend
		if trend == liquidity.TrendRange {
			continue
		}

		kind := liquidity.BOS
		if lastDirectional != "" && lastDirectional != trend {
			kind = liquidity.CHOCH
		}
		lastDirectional = trend

		direction := liquidity.DirectionUp
		if trend == liquidity.TrendDown {
			direction = liquidity.DirectionDown
		}

		at := candles[swing.CandleIndex].Time
		structure.Changes = append(structure.Changes, liquidity.StructureChange{
			ID:            liquidity.ContentID("structure|", string(kind), "|", string(direction), "|", at.UnixNano()),
			Kind:          kind,
			Direction:     direction,
			Price:         swing.Price,
			Time:          at,
			CandleIndex:   swing.CandleIndex,
			PreviousTrend: previous,
			NewTrend:      trend,
			Significance:  ta.significance(h1.Price, h2.Price, l1.Price, l2.Price),
		})
	}

	return structure
}

// DetermineTrend classifies the last two swing highs and lows
func DetermineTrend(prevHigh, lastHigh, prevLow, lastLow float64) liquidity.Trend {
	// Bullish: Higher highs AND higher lows
	if lastHigh > prevHigh && lastLow > prevLow {
		return liquidity.TrendUp
	}
	// Bearish: Lower highs AND lower lows
	if lastHigh < prevHigh && lastLow < prevLow {
		return liquidity.TrendDown
	}
	return liquidity.TrendRange
}

// significance is the spread of the four swing prices relative to their mean,
// scaled so that a spread of significanceScale counts as fully significant.
func (ta *TrendAnalyzer) significance(prices ...float64) float64 {
	lo, hi, sum := math.Inf(1), math.Inf(-1), 0.0
	for _, p := range prices {
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
		sum += p
	}
	mean := sum / float64(len(prices))
	if mean == 0 || !isFinite(mean) {
		return 0
	}
	return clamp01((hi - lo) / math.Abs(mean) / ta.significanceScale)
}
