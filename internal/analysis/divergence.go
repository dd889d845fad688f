package analysis

import (
	"math"

	"liquidity-hunter/internal/liquidity"
)

// DivergenceType tells which way price and momentum disagree
type DivergenceType string

const (
	DivergenceNone DivergenceType = "none"
	// DivergenceBearish: price makes higher closes while RSI makes lower values
	DivergenceBearish DivergenceType = "bearish"
	// DivergenceBullish: price makes lower closes while RSI makes higher values
	DivergenceBullish DivergenceType = "bullish"
)

// Divergence is the result of a price/RSI divergence check
type Divergence struct {
	Type      DivergenceType `json:"type"`
	Magnitude float64        `json:"magnitude"` // 0-1, RSI travel over the window
}

// Present reports whether any divergence was found
func (d Divergence) Present() bool {
	return d.Type == DivergenceBullish || d.Type == DivergenceBearish
}

// DivergenceDetector compares the most recent closes against the matching RSI values
type DivergenceDetector struct {
	lookback int
	scale    float64
}

// NewDivergenceDetector creates a detector over the last lookback observations.
// scale is the RSI travel that counts as a full-strength divergence.
func NewDivergenceDetector(lookback int, scale float64) *DivergenceDetector {
	if lookback < 3 {
		lookback = 3
	}
	if scale <= 0 {
		scale = 10
	}
	return &DivergenceDetector{lookback: lookback, scale: scale}
}

// Detect checks the last lookback closes against the last lookback RSI values.
// rsi is aligned to the end of candles. Prices must move strictly one way and
// RSI strictly the other; any missing or non-finite value means no divergence.
func (dd *DivergenceDetector) Detect(candles []liquidity.Candle, rsi []float64) Divergence {
	none := Divergence{Type: DivergenceNone}
	n := dd.lookback
	if len(candles) < n || len(rsi) < n {
		return none
	}

	prices := make([]float64, n)
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		prices[i] = candles[len(candles)-n+i].Close
		values[i] = rsi[len(rsi)-n+i]
		if !isFinite(prices[i]) || !isFinite(values[i]) {
			return none
		}
	}

	magnitude := clamp01(math.Abs(values[n-1]-values[0]) / dd.scale)

	switch {
	case strictlyRising(prices) && strictlyFalling(values):
		return Divergence{Type: DivergenceBearish, Magnitude: magnitude}
	case strictlyFalling(prices) && strictlyRising(values):
		return Divergence{Type: DivergenceBullish, Magnitude: magnitude}
	default:
		return none
	}
}

func strictlyRising(values []float64) bool {
	for i := 1; i < len(values); i++ {
		if values[i] <= values[i-1] {
			return false
		}
	}
	return true
}

func strictlyFalling(values []float64) bool {
	for i := 1; i < len(values); i++ {
		if values[i] >= values[i-1] {
			return false
		}
	}
	return true
}
