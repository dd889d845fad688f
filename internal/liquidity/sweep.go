package liquidity

import "math"

// SweepDetector recognises stop hunts against known pools
type SweepDetector struct {
	minWickRatio float64
}

// NewSweepDetector creates a sweep detector from the engine configuration
func NewSweepDetector(cfg LiquidityConfig) *SweepDetector {
	cfg = LoadConfig(&cfg)
	return &SweepDetector{minWickRatio: cfg.MinWickRatio}
}

// Detect checks one candle against the pools in order and returns the sweep of
// the first pool it qualifies for. A high-side pool is swept when the wick
// trades above it and the close settles back below; low-side pools mirror that.
// Swept pools, zero-range candles and non-finite candles never produce a sweep.
func (sd *SweepDetector) Detect(c Candle, index int, pools []Pool) (*Sweep, bool) {
	if !c.IsFinite() {
		return nil, false
	}
	rng := c.Range()
	if rng <= 0 {
		return nil, false
	}

	for _, pool := range pools {
		if !pool.IsActive() || !pool.Type.Valid() || !isFinite(pool.Price) {
			continue
		}

		var (
			wick      float64
			extreme   float64
			direction Direction
		)
		switch pool.Type.Side() {
		case SideHigh:
			if c.High <= pool.Price || c.Close >= pool.Price {
				continue
			}
			wick, extreme, direction = c.UpperWick(), c.High, DirectionUp
		case SideLow:
			if c.Low >= pool.Price || c.Close <= pool.Price {
				continue
			}
			wick, extreme, direction = c.LowerWick(), c.Low, DirectionDown
		}

		wickRatio := wick / rng
		if wickRatio < sd.minWickRatio {
			continue
		}

		return &Sweep{
			ID:                ContentID("sweep|", pool.ID, "|", c.Time.UnixNano()),
			PoolID:            pool.ID,
			PoolType:          pool.Type,
			PoolPrice:         pool.Price,
			Price:             extreme,
			Time:              c.Time,
			CandleIndex:       index,
			WickRatio:         wickRatio,
			Direction:         direction,
			RejectionStrength: clamp01(c.Body() / rng),
		}, true
	}

	return nil, false
}

// DetectAll scans every candle against the pools, marking a pool as used once
// swept so it cannot be swept a second time within the same pass.
func (sd *SweepDetector) DetectAll(candles []Candle, pools []Pool) []Sweep {
	working := make([]Pool, len(pools))
	copy(working, pools)

	var sweeps []Sweep
	for i, c := range candles {
		sweep, ok := sd.Detect(c, i, working)
		if !ok {
			continue
		}
		for k := range working {
			if working[k].ID == sweep.PoolID {
				working[k].Status = PoolSwept
			}
		}
		sweeps = append(sweeps, *sweep)
	}
	return sweeps
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
