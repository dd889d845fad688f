package analysis

import (
	"fmt"

	"liquidity-hunter/internal/liquidity"
)

// BreakoutValidation is the verdict on whether a level breach is a genuine breakout
type BreakoutValidation struct {
	IsValid     bool       `json:"is_valid"`
	Reasons     []string   `json:"reasons"`
	VolumeRatio float64    `json:"volume_ratio"`
	Divergence  Divergence `json:"divergence"`
}

// BreakoutValidator judges breaches independently of the sweep detector.
// A sweep whose candle also passes as a genuine breakout is not a stop hunt.
type BreakoutValidator struct {
	volume       *VolumeAnalyzer
	divergence   *DivergenceDetector
	maxWickRatio float64
}

// NewBreakoutValidator creates a breakout validator from the engine configuration
func NewBreakoutValidator(cfg liquidity.LiquidityConfig) *BreakoutValidator {
	cfg = liquidity.LoadConfig(&cfg)
	return &BreakoutValidator{
		volume:       NewVolumeAnalyzer(cfg.VolumeAverageWindow, cfg.VolumeSpikeMultiplier, cfg.VolumeMaxMultiplier),
		divergence:   NewDivergenceDetector(cfg.DivergenceLookback, cfg.DivergenceScale),
		maxWickRatio: cfg.MaxBreakoutWickRatio,
	}
}

// Validate runs four checks on candle against pool and reports every failure:
// volume at least the spike multiple of the trailing average of history,
// close beyond the level, breakout-side wick no larger than the allowed share
// of the range, and no price/RSI divergence over the latest observations.
// history holds the candles before candle; rsi is aligned to the end of
// history followed by candle.
func (bv *BreakoutValidator) Validate(candle liquidity.Candle, pool liquidity.Pool, history []liquidity.Candle, rsi []float64) BreakoutValidation {
	var reasons []string

	profile := bv.volume.Profile(candle, history)
	if !profile.IsSpike {
		reasons = append(reasons, fmt.Sprintf("volume %.2fx average, need %.2fx", profile.VolumeRatio, bv.volume.spikeMultiple))
	}

	switch {
	case !pool.Type.Valid():
		reasons = append(reasons, fmt.Sprintf("unknown pool type %q", string(pool.Type)))
	case !candle.IsFinite():
		reasons = append(reasons, "candle has non-finite values")
	default:
		side := pool.Type.Side()
		switch side {
		case liquidity.SideHigh:
			if candle.Close <= pool.Price {
				reasons = append(reasons, fmt.Sprintf("close %.4f not above level %.4f", candle.Close, pool.Price))
			}
		case liquidity.SideLow:
			if candle.Close >= pool.Price {
				reasons = append(reasons, fmt.Sprintf("close %.4f not below level %.4f", candle.Close, pool.Price))
			}
		}

		rng := candle.Range()
		wick := candle.UpperWick()
		if side == liquidity.SideLow {
			wick = candle.LowerWick()
		}
		if rng <= 0 {
			reasons = append(reasons, "candle has zero range")
		} else if ratio := wick / rng; ratio > bv.maxWickRatio {
			reasons = append(reasons, fmt.Sprintf("breakout wick %.0f%% of range exceeds %.0f%%", ratio*100, bv.maxWickRatio*100))
		}
	}

	series := make([]liquidity.Candle, 0, len(history)+1)
	series = append(series, history...)
	series = append(series, candle)
	div := bv.divergence.Detect(series, rsi)
	if div.Present() {
		reasons = append(reasons, fmt.Sprintf("%s RSI divergence (magnitude %.2f)", div.Type, div.Magnitude))
	}

	return BreakoutValidation{
		IsValid:     len(reasons) == 0,
		Reasons:     reasons,
		VolumeRatio: profile.VolumeRatio,
		Divergence:  div,
	}
}
