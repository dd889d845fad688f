package patterns

import (
	"time"

	"liquidity-hunter/internal/liquidity"
)

// Trendline is a least-squares line through swing points, indexed by candle position
type Trendline struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
}

// At returns the line value at candle index i
func (l Trendline) At(i int) float64 {
	return l.Intercept + l.Slope*float64(i)
}

// TrianglePattern represents a triangle formation and, once price leaves it, its resolution
type TrianglePattern struct {
	Type       PatternType         `json:"type"`
	StartIndex int                 `json:"start_index"`
	EndIndex   int                 `json:"end_index"`
	StartTime  time.Time           `json:"start_time"`
	EndTime    time.Time           `json:"end_time"`
	Upper      Trendline           `json:"upper"`
	Lower      Trendline           `json:"lower"`
	Height     float64             `json:"height"`  // gap between the lines at the start
	EndGap     float64             `json:"end_gap"` // gap between the lines at the end
	HighSwings []int               `json:"high_swings"`
	LowSwings  []int               `json:"low_swings"`
	Resolution *TriangleResolution `json:"resolution,omitempty"`
}

// Pools returns the triangle boundaries at the end of the formation as liquidity pools
func (tp TrianglePattern) Pools() []liquidity.Pool {
	upper := tp.Upper.At(tp.EndIndex)
	lower := tp.Lower.At(tp.EndIndex)
	return []liquidity.Pool{
		{
			ID:            liquidity.PoolID(liquidity.PoolTriangleUpper, tp.EndTime, upper),
			Type:          liquidity.PoolTriangleUpper,
			Price:         upper,
			FormedAt:      tp.EndTime,
			Status:        liquidity.PoolActive,
			CandleIndices: append([]int(nil), tp.HighSwings...),
			Strength:      len(tp.HighSwings),
		},
		{
			ID:            liquidity.PoolID(liquidity.PoolTriangleLower, tp.EndTime, lower),
			Type:          liquidity.PoolTriangleLower,
			Price:         lower,
			FormedAt:      tp.EndTime,
			Status:        liquidity.PoolActive,
			CandleIndices: append([]int(nil), tp.LowSwings...),
			Strength:      len(tp.LowSwings),
		},
	}
}

// DetectTriangles slides a fixed window over candles and reports every window
// whose swing-high and swing-low regression lines converge while candle ranges
// compress. After a detection the scan resumes past the end of that window.
// Each triangle is then scanned forward for its first resolution.
func (pd *PatternDetector) DetectTriangles(candles []liquidity.Candle) []TrianglePattern {
	cfg := pd.triangle
	if len(candles) < cfg.Window {
		return nil
	}

	highs := liquidity.FindSwingHighs(candles, cfg.SwingLookback)
	lows := liquidity.FindSwingLows(candles, cfg.SwingLookback)

	var triangles []TrianglePattern
	for start := 0; start+cfg.Window <= len(candles); {
		end := start + cfg.Window - 1
		tp, ok := pd.fitTriangle(candles, highs, lows, start, end)
		if !ok {
			start++
			continue
		}
		tp.Resolution = pd.resolve(candles, tp)
		triangles = append(triangles, tp)
		start = end + 1
	}
	return triangles
}

// LatestTriangle returns the most recent triangle, if any
func (pd *PatternDetector) LatestTriangle(candles []liquidity.Candle) (TrianglePattern, bool) {
	triangles := pd.DetectTriangles(candles)
	if len(triangles) == 0 {
		return TrianglePattern{}, false
	}
	return triangles[len(triangles)-1], true
}

func (pd *PatternDetector) fitTriangle(candles []liquidity.Candle, highs, lows []liquidity.SwingPoint, start, end int) (TrianglePattern, bool) {
	cfg := pd.triangle

	hs := swingsBetween(highs, start, end)
	ls := swingsBetween(lows, start, end)
	if len(hs) < cfg.MinSwings || len(ls) < cfg.MinSwings {
		return TrianglePattern{}, false
	}

	upper, ok := fitLine(hs)
	if !ok {
		return TrianglePattern{}, false
	}
	lower, ok := fitLine(ls)
	if !ok {
		return TrianglePattern{}, false
	}

	// Convergence: lines stay apart but the gap narrows
	startGap := upper.At(start) - lower.At(start)
	endGap := upper.At(end) - lower.At(end)
	if !isFinite(startGap) || !isFinite(endGap) || startGap <= 0 || endGap <= 0 {
		return TrianglePattern{}, false
	}
	if endGap >= cfg.ConvergenceRatio*startGap {
		return TrianglePattern{}, false
	}

	// Compression: candles shrink in the second half of the window
	mid := start + (end-start+1)/2
	firstHalf := averageRange(candles[start:mid])
	secondHalf := averageRange(candles[mid : end+1])
	if firstHalf <= 0 || secondHalf >= cfg.CompressionRatio*firstHalf {
		return TrianglePattern{}, false
	}

	return TrianglePattern{
		Type:       classifyTriangle(upper, lower, startGap, cfg.Window),
		StartIndex: start,
		EndIndex:   end,
		StartTime:  candles[start].Time,
		EndTime:    candles[end].Time,
		Upper:      upper,
		Lower:      lower,
		Height:     startGap,
		EndGap:     endGap,
		HighSwings: swingIndices(hs),
		LowSwings:  swingIndices(ls),
	}, true
}

// classifyTriangle calls a line flat when it moves less than a quarter of the
// starting height across the window.
func classifyTriangle(upper, lower Trendline, height float64, window int) PatternType {
	flat := func(l Trendline) bool {
		return abs(l.Slope*float64(window)) <= 0.25*height
	}
	switch {
	case flat(upper) && lower.Slope > 0:
		return AscendingTriangle
	case flat(lower) && upper.Slope < 0:
		return DescendingTriangle
	default:
		return SymmetricalTriangle
	}
}

// fitLine is an ordinary least-squares fit of swing price against candle index
func fitLine(points []liquidity.SwingPoint) (Trendline, bool) {
	n := float64(len(points))
	if n < 2 {
		return Trendline{}, false
	}

	var sumX, sumY, sumXY, sumXX float64
	for _, p := range points {
		x := float64(p.CandleIndex)
		sumX += x
		sumY += p.Price
		sumXY += x * p.Price
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return Trendline{}, false
	}
	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n
	if !isFinite(slope) || !isFinite(intercept) {
		return Trendline{}, false
	}
	return Trendline{Slope: slope, Intercept: intercept}, true
}

func swingsBetween(swings []liquidity.SwingPoint, start, end int) []liquidity.SwingPoint {
	var out []liquidity.SwingPoint
	for _, s := range swings {
		if s.CandleIndex >= start && s.CandleIndex <= end {
			out = append(out, s)
		}
	}
	return out
}

func swingIndices(swings []liquidity.SwingPoint) []int {
	out := make([]int, len(swings))
	for i, s := range swings {
		out[i] = s.CandleIndex
	}
	return out
}

func averageRange(candles []liquidity.Candle) float64 {
	var ranges []float64
	for _, c := range candles {
		if c.IsFinite() {
			ranges = append(ranges, c.Range())
		}
	}
	return average(ranges)
}
