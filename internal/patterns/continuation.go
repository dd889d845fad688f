package patterns

import (
	"errors"
	"fmt"
	"math"

	"liquidity-hunter/internal/liquidity"
)

// ResolutionKind tells how price left a triangle
type ResolutionKind string

const (
	// BreakoutRetest: a close beyond a line, then a smaller candle that retests
	// the line and holds
	BreakoutRetest ResolutionKind = "breakout_retest"
	// FalseBreakout: a wick beyond a line with the close back inside
	FalseBreakout ResolutionKind = "false_breakout"
)

var (
	// ErrRewardRisk is wrapped when a triangle signal pays too little for its risk
	ErrRewardRisk = errors.New("reward:risk below minimum")
	// ErrStopDistance is wrapped when the stop sits too close to or too far from entry
	ErrStopDistance = errors.New("stop distance out of bounds")
)

// TriangleResolution is the trade a resolved triangle suggests
type TriangleResolution struct {
	Kind          ResolutionKind            `json:"kind"`
	Direction     liquidity.SignalDirection `json:"direction"`
	BreakoutIndex int                       `json:"breakout_index"`
	SignalIndex   int                       `json:"signal_index"`
	Entry         float64                   `json:"entry"`
	StopLoss      float64                   `json:"stop_loss"`
	TakeProfit    float64                   `json:"take_profit"`
}

// RiskReward returns reward divided by risk, or zero when risk is not positive
func (r TriangleResolution) RiskReward() float64 {
	risk := math.Abs(r.Entry - r.StopLoss)
	if risk <= 0 {
		return 0
	}
	return math.Abs(r.TakeProfit-r.Entry) / risk
}

// resolve scans forward from the end of the triangle for its first resolution.
// The scan stops once the extended lines cross.
func (pd *PatternDetector) resolve(candles []liquidity.Candle, tp TrianglePattern) *TriangleResolution {
	cfg := pd.triangle

	for i := tp.EndIndex + 1; i < len(candles); i++ {
		upper, lower := tp.Upper.At(i), tp.Lower.At(i)
		if upper <= lower {
			return nil
		}
		c := candles[i]
		if !c.IsFinite() {
			continue
		}

		switch {
		case c.Close > upper:
			return pd.retest(candles, tp, i, liquidity.DirectionUp)
		case c.Close < lower:
			return pd.retest(candles, tp, i, liquidity.DirectionDown)
		case c.High > upper:
			// wick above, close inside: trapped buyers
			return &TriangleResolution{
				Kind:          FalseBreakout,
				Direction:     liquidity.Bearish,
				BreakoutIndex: i,
				SignalIndex:   i,
				Entry:         c.Close,
				StopLoss:      c.High * (1 + cfg.StopBuffer),
				TakeProfit:    lower,
			}
		case c.Low < lower:
			return &TriangleResolution{
				Kind:          FalseBreakout,
				Direction:     liquidity.Bullish,
				BreakoutIndex: i,
				SignalIndex:   i,
				Entry:         c.Close,
				StopLoss:      c.Low * (1 - cfg.StopBuffer),
				TakeProfit:    upper,
			}
		}
	}
	return nil
}

// retest looks for a candle within the retest window that touches the broken
// line, closes beyond it and is smaller than the breakout candle. A breakout
// without a qualifying retest resolves nothing.
func (pd *PatternDetector) retest(candles []liquidity.Candle, tp TrianglePattern, breakout int, dir liquidity.Direction) *TriangleResolution {
	cfg := pd.triangle
	breakoutRange := candles[breakout].Range()

	last := breakout + cfg.RetestWindow
	if last > len(candles)-1 {
		last = len(candles) - 1
	}

	for j := breakout + 1; j <= last; j++ {
		c := candles[j]
		if !c.IsFinite() || c.Range() >= breakoutRange {
			continue
		}

		if dir == liquidity.DirectionUp {
			line := tp.Upper.At(j)
			if c.Low <= line*(1+cfg.RetestTolerance) && c.Close > line {
				return &TriangleResolution{
					Kind:          BreakoutRetest,
					Direction:     liquidity.Bullish,
					BreakoutIndex: breakout,
					SignalIndex:   j,
					Entry:         c.Close,
					StopLoss:      line * (1 - cfg.StopBuffer),
					TakeProfit:    c.Close + tp.Height,
				}
			}
			continue
		}

		line := tp.Lower.At(j)
		if c.High >= line*(1-cfg.RetestTolerance) && c.Close < line {
			return &TriangleResolution{
				Kind:          BreakoutRetest,
				Direction:     liquidity.Bearish,
				BreakoutIndex: breakout,
				SignalIndex:   j,
				Entry:         c.Close,
				StopLoss:      line * (1 + cfg.StopBuffer),
				TakeProfit:    c.Close - tp.Height,
			}
		}
	}
	return nil
}

// CheckRiskReward rejects triangle signals whose reward:risk is below the
// configured minimum or whose stop distance falls outside the allowed band.
func (pd *PatternDetector) CheckRiskReward(r TriangleResolution) error {
	cfg := pd.triangle

	if r.Entry <= 0 || !isFinite(r.Entry) || !isFinite(r.StopLoss) || !isFinite(r.TakeProfit) {
		return fmt.Errorf("%w: invalid levels entry=%g stop=%g target=%g", ErrStopDistance, r.Entry, r.StopLoss, r.TakeProfit)
	}

	stopPct := math.Abs(r.Entry-r.StopLoss) / r.Entry
	if stopPct < cfg.MinStopPct || stopPct > cfg.MaxStopPct {
		return fmt.Errorf("%w: %.2f%% not in [%.2f%%, %.2f%%]", ErrStopDistance, stopPct*100, cfg.MinStopPct*100, cfg.MaxStopPct*100)
	}

	if rr := r.RiskReward(); rr < cfg.MinRewardRisk {
		return fmt.Errorf("%w: %.2f < %.2f", ErrRewardRisk, rr, cfg.MinRewardRisk)
	}

	return nil
}

// Helper functions for continuation patterns

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
