package liquidity

import "math"

// SwingPoint represents a local extreme candle
type SwingPoint struct {
	Price       float64 `json:"price"`
	CandleIndex int     `json:"candle_index"`
	Side        Side    `json:"side"`
}

// FindSwingHighs returns candles whose high strictly exceeds the highs of
// lookback candles on each side. Candles with non-finite values never qualify
// and never disqualify a neighbour.
func FindSwingHighs(candles []Candle, lookback int) []SwingPoint {
	return findSwings(candles, lookback, SideHigh)
}

// FindSwingLows is the mirror of FindSwingHighs
func FindSwingLows(candles []Candle, lookback int) []SwingPoint {
	return findSwings(candles, lookback, SideLow)
}

// FindSwingPoints returns swing highs and lows merged in chronological order.
// When one candle is both, the high is listed first.
func FindSwingPoints(candles []Candle, lookback int) []SwingPoint {
	highs := FindSwingHighs(candles, lookback)
	lows := FindSwingLows(candles, lookback)

	merged := make([]SwingPoint, 0, len(highs)+len(lows))
	i, j := 0, 0
	for i < len(highs) || j < len(lows) {
		switch {
		case j >= len(lows):
			merged = append(merged, highs[i])
			i++
		case i >= len(highs):
			merged = append(merged, lows[j])
			j++
		case highs[i].CandleIndex <= lows[j].CandleIndex:
			merged = append(merged, highs[i])
			i++
		default:
			merged = append(merged, lows[j])
			j++
		}
	}
	return merged
}

func findSwings(candles []Candle, lookback int, side Side) []SwingPoint {
	if lookback <= 0 {
		lookback = 2
	}

	var swings []SwingPoint
	for i := lookback; i < len(candles)-lookback; i++ {
		current := levelOf(candles[i], side)
		if !isFinite(current) {
			continue
		}

		isSwing := true
		for j := i - lookback; j <= i+lookback; j++ {
			if j == i {
				continue
			}
			other := levelOf(candles[j], side)
			if !isFinite(other) {
				continue
			}
			if (side == SideHigh && other >= current) || (side == SideLow && other <= current) {
				isSwing = false
				break
			}
		}

		if isSwing {
			swings = append(swings, SwingPoint{Price: current, CandleIndex: i, Side: side})
		}
	}
	return swings
}

func levelOf(c Candle, side Side) float64 {
	if side == SideHigh {
		return c.High
	}
	return c.Low
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
