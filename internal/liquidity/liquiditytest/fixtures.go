// Package liquiditytest builds synthetic candle series shared by tests.
package liquiditytest

import (
	"time"

	"liquidity-hunter/internal/liquidity"
)

// Start is the time of the first candle of every fixture
var Start = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

// Pivot is a turning point of a piecewise linear price path
type Pivot struct {
	Index int
	Price float64
}

// PivotCandles draws hourly candles along the straight lines between pivots
func PivotCandles(pivots []Pivot) []liquidity.Candle {
	n := pivots[len(pivots)-1].Index + 1
	prices := make([]float64, n)
	for k := 0; k+1 < len(pivots); k++ {
		a, b := pivots[k], pivots[k+1]
		for i := a.Index; i <= b.Index; i++ {
			frac := float64(i-a.Index) / float64(b.Index-a.Index)
			prices[i] = a.Price + frac*(b.Price-a.Price)
		}
	}

	candles := make([]liquidity.Candle, n)
	for i, p := range prices {
		candles[i] = liquidity.Candle{
			Time:   Start.Add(time.Duration(i) * time.Hour),
			Open:   p - 0.1,
			High:   p + 0.5,
			Low:    p - 0.5,
			Close:  p + 0.1,
			Volume: 100,
		}
	}
	return candles
}

// ReversalWithSweep is an uptrend that turns down (a CHOCH down at candle 54)
// followed by a candle that wicks through the equal highs at 115.5 and closes
// back below them.
func ReversalWithSweep() []liquidity.Candle {
	pivots := []Pivot{{0, 100}, {3, 97}}
	for k := 1; k <= 8; k++ {
		pivots = append(pivots, Pivot{6 * k, 100 + 3*float64(k)})
		if k < 8 {
			pivots = append(pivots, Pivot{6*k + 3, 97 + 3*float64(k)})
		}
	}
	pivots = append(pivots, Pivot{51, 117}, Pivot{54, 121}, Pivot{57, 113}, Pivot{58, 114}, Pivot{59, 115})
	candles := PivotCandles(pivots)

	return append(candles, liquidity.Candle{
		Time:   Start.Add(60 * time.Hour),
		Open:   115,
		High:   120,
		Low:    114.8,
		Close:  115.2,
		Volume: 100,
	})
}

// FlatCandles is n identical hourly candles around 100
func FlatCandles(n int) []liquidity.Candle {
	out := make([]liquidity.Candle, n)
	for i := range out {
		out[i] = liquidity.Candle{
			Time:   Start.Add(time.Duration(i) * time.Hour),
			Open:   100,
			High:   101,
			Low:    99,
			Close:  100,
			Volume: 100,
		}
	}
	return out
}

// ClockAt is a fixed clock at hour:00 UTC on 2026-01-08
func ClockAt(hour int) func() time.Time {
	t := time.Date(2026, 1, 8, hour, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}
