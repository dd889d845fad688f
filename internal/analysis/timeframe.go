package analysis

import (
	"fmt"
	"time"

	"liquidity-hunter/internal/liquidity"
)

// Timeframe represents different chart timeframes
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// ParseTimeframe validates a timeframe string
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if tf.Duration() == 0 {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

// Duration returns the bar length of the timeframe, or zero when unknown
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1m:
		return time.Minute
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF1h:
		return time.Hour
	case TF4h:
		return 4 * time.Hour
	case TF1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// CacheTTL returns how long a snapshot built on this timeframe stays fresh
func (tf Timeframe) CacheTTL() time.Duration {
	switch tf {
	case TF1m:
		return 30 * time.Second
	case TF5m:
		return 2 * time.Minute
	case TF15m:
		return 5 * time.Minute
	case TF1h:
		return 30 * time.Minute
	case TF4h:
		return 2 * time.Hour
	case TF1d:
		return 12 * time.Hour
	default:
		return 1 * time.Minute
	}
}

// Resample aggregates candles into bars of the given timeframe, aligned to
// UTC bucket boundaries. Non-finite candles are skipped.
func Resample(candles []liquidity.Candle, tf Timeframe) []liquidity.Candle {
	size := tf.Duration()
	if size == 0 || len(candles) == 0 {
		return nil
	}

	var out []liquidity.Candle
	var bucket time.Time
	for _, c := range candles {
		if !c.IsFinite() {
			continue
		}
		start := c.Time.UTC().Truncate(size)
		n := len(out)
		if n == 0 || !start.Equal(bucket) {
			bucket = start
			out = append(out, liquidity.Candle{
				Time:   start,
				Open:   c.Open,
				High:   c.High,
				Low:    c.Low,
				Close:  c.Close,
				Volume: c.Volume,
			})
			continue
		}
		agg := &out[n-1]
		if c.High > agg.High {
			agg.High = c.High
		}
		if c.Low < agg.Low {
			agg.Low = c.Low
		}
		agg.Close = c.Close
		agg.Volume += c.Volume
	}
	return out
}

// HTFPools resamples candles to tf and runs the pool detector on the result.
// The pools serve as higher-timeframe reference levels for scoring.
func HTFPools(candles []liquidity.Candle, tf Timeframe, cfg liquidity.LiquidityConfig) []liquidity.Pool {
	htf := Resample(candles, tf)
	if len(htf) < 2 {
		return nil
	}
	return liquidity.NewPoolDetector(cfg).Detect(htf)
}
