package analysis

import (
	"fmt"
	"math"

	"liquidity-hunter/internal/liquidity"
)

// ATR calculates the Average True Range over the whole series: the first value
// is the simple mean of the first period true ranges, the rest are smoothed
// with Wilder's method. Returns an error if there aren't enough candles.
func ATR(candles []liquidity.Candle, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(candles) < period+1 {
		return 0, fmt.Errorf("not enough candles: need %d, got %d", period+1, len(candles))
	}

	trueRanges := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		tr := trueRange(candles[i], candles[i-1])
		if !isFinite(tr) {
			continue
		}
		trueRanges = append(trueRanges, tr)
	}
	if len(trueRanges) < period {
		return 0, fmt.Errorf("not enough finite candles: need %d true ranges, got %d", period, len(trueRanges))
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += trueRanges[i]
	}
	atr := sum / float64(period)

	for i := period; i < len(trueRanges); i++ {
		atr = (atr*float64(period-1) + trueRanges[i]) / float64(period)
	}

	return atr, nil
}

func trueRange(current, prev liquidity.Candle) float64 {
	return math.Max(
		current.High-current.Low,
		math.Max(
			math.Abs(current.High-prev.Close),
			math.Abs(current.Low-prev.Close),
		),
	)
}

// AverageRange returns the mean high-low range of the last n finite candles
func AverageRange(candles []liquidity.Candle, n int) float64 {
	if n <= 0 || len(candles) == 0 {
		return 0
	}
	start := len(candles) - n
	if start < 0 {
		start = 0
	}

	sum, count := 0.0, 0
	for _, c := range candles[start:] {
		if !c.IsFinite() {
			continue
		}
		sum += c.Range()
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// RSISeries returns Wilder's RSI aligned one-to-one with candles. The first
// period values have no RSI yet and are NaN.
func RSISeries(candles []liquidity.Candle, period int) []float64 {
	if period <= 0 {
		period = 14
	}
	out := make([]float64, len(candles))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(candles) < period+1 {
		return out
	}

	gains, losses := 0.0, 0.0
	for i := 1; i <= period; i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}

	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if math.IsNaN(avgGain) || math.IsNaN(avgLoss) {
		return math.NaN()
	}
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50.0 // Neutral RSI
		}
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// AlignSeries returns the last n values of series so that they line up with
// the last n candles, padding the front with NaN when series is shorter.
func AlignSeries(series []float64, n int) []float64 {
	out := make([]float64, n)
	offset := n - len(series)
	for i := range out {
		j := i - offset
		if j < 0 || j >= len(series) {
			out[i] = math.NaN()
			continue
		}
		out[i] = series[j]
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
