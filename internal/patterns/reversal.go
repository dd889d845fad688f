package patterns

import (
	"liquidity-hunter/internal/liquidity"
)

// isBullishEngulfing checks for Bullish Engulfing pattern
func (pd *PatternDetector) isBullishEngulfing(c1, c2 liquidity.Candle) bool {
	// C1: Bearish (red) candle
	if c1.Close >= c1.Open {
		return false
	}

	// C2: Bullish (green) candle
	if c2.Close <= c2.Open {
		return false
	}

	// C2 opens at or below C1 close and closes at or above C1 open
	return c2.Open <= c1.Close && c2.Close >= c1.Open
}

// isBearishEngulfing checks for Bearish Engulfing pattern
func (pd *PatternDetector) isBearishEngulfing(c1, c2 liquidity.Candle) bool {
	// C1: Bullish (green) candle
	if c1.Close <= c1.Open {
		return false
	}

	// C2: Bearish (red) candle
	if c2.Close >= c2.Open {
		return false
	}

	return c2.Open >= c1.Close && c2.Close <= c1.Open
}

// isDoji checks for Doji pattern (indecision)
func (pd *PatternDetector) isDoji(candle liquidity.Candle) bool {
	rng := candle.Range()
	if rng <= 0 {
		return false
	}

	// Doji: body is very small relative to range (< 10%)
	return candle.Body()/rng < 0.10
}

// isDragonflyDoji checks for Dragonfly Doji (bullish)
func (pd *PatternDetector) isDragonflyDoji(candle liquidity.Candle) bool {
	if !pd.isDoji(candle) {
		return false
	}

	// Long lower wick, little to no upper wick
	rng := candle.Range()
	return candle.LowerWick() > rng*0.6 && candle.UpperWick() < rng*0.1
}

// isGravestoneDoji checks for Gravestone Doji (bearish)
func (pd *PatternDetector) isGravestoneDoji(candle liquidity.Candle) bool {
	if !pd.isDoji(candle) {
		return false
	}

	// Long upper wick, little to no lower wick
	rng := candle.Range()
	return candle.UpperWick() > rng*0.6 && candle.LowerWick() < rng*0.1
}
