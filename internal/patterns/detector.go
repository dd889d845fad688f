package patterns

import (
	"time"

	"liquidity-hunter/internal/liquidity"
)

// PatternType represents different chart patterns
type PatternType string

const (
	// Rejection candles, used to describe the sweep candle
	ShootingStar     PatternType = "shooting_star"
	Hammer           PatternType = "hammer"
	BullishEngulfing PatternType = "bullish_engulfing"
	BearishEngulfing PatternType = "bearish_engulfing"
	DragonflyDoji    PatternType = "dragonfly_doji"
	GravestoneDoji   PatternType = "gravestone_doji"

	// Converging trendline consolidations
	AscendingTriangle   PatternType = "ascending_triangle"
	DescendingTriangle  PatternType = "descending_triangle"
	SymmetricalTriangle PatternType = "symmetrical_triangle"
)

// DetectedPattern represents a detected candle pattern
type DetectedPattern struct {
	Type        PatternType               `json:"type"`
	DetectedAt  time.Time                 `json:"detected_at"`
	CandleIndex int                       `json:"candle_index"`
	Confidence  float64                   `json:"confidence"` // 0.0 to 1.0
	Direction   liquidity.SignalDirection `json:"direction"`
}

// PatternDetector detects chart patterns in candlestick data
type PatternDetector struct {
	triangle liquidity.TriangleConfig
}

// NewPatternDetector creates a new pattern detector from the engine configuration
func NewPatternDetector(cfg liquidity.LiquidityConfig) *PatternDetector {
	cfg = liquidity.LoadConfig(&cfg)
	return &PatternDetector{
		triangle: cfg.Triangle,
	}
}

// DetectRejection returns the rejection candle patterns formed by the candle at
// index. It is used to describe sweep candles; the scorer does not use it.
func (pd *PatternDetector) DetectRejection(candles []liquidity.Candle, index int) []DetectedPattern {
	if index < 0 || index >= len(candles) || !candles[index].IsFinite() {
		return nil
	}

	candle := candles[index]
	var prev *liquidity.Candle
	if index > 0 && candles[index-1].IsFinite() {
		prev = &candles[index-1]
	}

	var patterns []DetectedPattern
	add := func(t PatternType, dir liquidity.SignalDirection, confidence float64) {
		patterns = append(patterns, DetectedPattern{
			Type:        t,
			DetectedAt:  candle.Time,
			CandleIndex: index,
			Confidence:  confidence,
			Direction:   dir,
		})
	}

	if pd.isShootingStar(candle, prev) {
		add(ShootingStar, liquidity.Bearish, pd.calculateSingleCandleConfidence(candle))
	}
	if pd.isHammer(candle, prev) {
		add(Hammer, liquidity.Bullish, pd.calculateSingleCandleConfidence(candle))
	}
	if pd.isGravestoneDoji(candle) {
		add(GravestoneDoji, liquidity.Bearish, pd.calculateSingleCandleConfidence(candle))
	}
	if pd.isDragonflyDoji(candle) {
		add(DragonflyDoji, liquidity.Bullish, pd.calculateSingleCandleConfidence(candle))
	}
	if prev != nil {
		if pd.isBullishEngulfing(*prev, candle) {
			add(BullishEngulfing, liquidity.Bullish, pd.calculateConfidence(*prev, candle))
		}
		if pd.isBearishEngulfing(*prev, candle) {
			add(BearishEngulfing, liquidity.Bearish, pd.calculateConfidence(*prev, candle))
		}
	}

	return patterns
}

// isShootingStar checks for Shooting Star pattern (bearish reversal)
func (pd *PatternDetector) isShootingStar(candle liquidity.Candle, prevCandle *liquidity.Candle) bool {
	body := candle.Body()
	if candle.Range() <= 0 {
		return false
	}

	// Long upper wick (at least 2x body)
	if candle.UpperWick() < body*2 {
		return false
	}

	// Small or no lower wick
	if candle.LowerWick() > body*0.3 {
		return false
	}

	// Should appear after an up candle (if previous candle available)
	if prevCandle != nil && prevCandle.Close <= prevCandle.Open {
		return false
	}

	return true
}

// isHammer checks for Hammer pattern (bullish reversal)
func (pd *PatternDetector) isHammer(candle liquidity.Candle, prevCandle *liquidity.Candle) bool {
	body := candle.Body()
	if candle.Range() <= 0 {
		return false
	}

	// Long lower wick (at least 2x body)
	if candle.LowerWick() < body*2 {
		return false
	}

	// Small or no upper wick
	if candle.UpperWick() > body*0.3 {
		return false
	}

	// Should appear after a down candle (if previous candle available)
	if prevCandle != nil && prevCandle.Close >= prevCandle.Open {
		return false
	}

	return true
}

// calculateConfidence calculates two-candle pattern confidence
func (pd *PatternDetector) calculateConfidence(c1, c2 liquidity.Candle) float64 {
	confidence := 0.7

	// Stronger candles = higher confidence
	if c2.Body() > c1.Body()*1.2 {
		confidence += 0.1
	}

	return min(confidence, 1.0)
}

// calculateSingleCandleConfidence scales with how much of the range is wick
func (pd *PatternDetector) calculateSingleCandleConfidence(candle liquidity.Candle) float64 {
	rng := candle.Range()
	if rng <= 0 {
		return 0
	}
	wick := max(candle.UpperWick(), candle.LowerWick())
	return min(0.5+0.5*wick/rng, 1.0)
}

// Helper functions
func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
