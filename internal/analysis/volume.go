package analysis

import (
	"liquidity-hunter/internal/liquidity"
)

// VolumeAnalyzer provides volume-based confirmation for sweeps and breakouts
type VolumeAnalyzer struct {
	avgPeriod     int     // Period for average volume calculation
	spikeMultiple float64 // Ratio that counts as a spike
	maxMultiple   float64 // Ratio that earns the full volume score
}

// VolumeProfile represents volume analysis results for one candle
type VolumeProfile struct {
	CurrentVolume float64 `json:"current_volume"`
	AverageVolume float64 `json:"average_volume"`
	VolumeRatio   float64 `json:"volume_ratio"` // Current / Average
	IsSpike       bool    `json:"is_spike"`
	VolumeType    string  `json:"volume_type"` // "buying", "selling", "neutral"
}

// NewVolumeAnalyzer creates a new volume analyzer
func NewVolumeAnalyzer(avgPeriod int, spikeMultiple, maxMultiple float64) *VolumeAnalyzer {
	if avgPeriod <= 0 {
		avgPeriod = 20 // Default 20-period average
	}
	if spikeMultiple <= 0 {
		spikeMultiple = 1.5
	}
	if maxMultiple <= spikeMultiple {
		maxMultiple = 2 * spikeMultiple
	}
	return &VolumeAnalyzer{
		avgPeriod:     avgPeriod,
		spikeMultiple: spikeMultiple,
		maxMultiple:   maxMultiple,
	}
}

// Profile compares the candle's volume against the trailing average of history.
// history must not include the candle itself.
func (va *VolumeAnalyzer) Profile(candle liquidity.Candle, history []liquidity.Candle) VolumeProfile {
	avg := va.CalculateAverageVolume(history)

	var ratio float64
	if avg > 0 && isFinite(candle.Volume) {
		ratio = candle.Volume / avg
	}

	return VolumeProfile{
		CurrentVolume: candle.Volume,
		AverageVolume: avg,
		VolumeRatio:   ratio,
		IsSpike:       ratio >= va.spikeMultiple,
		VolumeType:    DetermineVolumeType(candle),
	}
}

// CalculateAverageVolume averages the finite volumes of the last avgPeriod candles
func (va *VolumeAnalyzer) CalculateAverageVolume(candles []liquidity.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}

	period := va.avgPeriod
	if len(candles) < period {
		period = len(candles)
	}

	sum, n := 0.0, 0
	for i := len(candles) - period; i < len(candles); i++ {
		if v := candles[i].Volume; isFinite(v) && v >= 0 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}

	return sum / float64(n)
}

// Strength maps a volume ratio onto [0,1]: zero below the spike multiple,
// rising linearly to one at the max multiple.
func (va *VolumeAnalyzer) Strength(ratio float64) float64 {
	if !isFinite(ratio) || ratio < va.spikeMultiple {
		return 0
	}
	return clamp01(ratio / va.maxMultiple)
}

// DetermineVolumeType identifies if volume is buying or selling pressure
func DetermineVolumeType(candle liquidity.Candle) string {
	bodySize := candle.Body()

	// If candle closed higher, it's buying volume
	if candle.Close > candle.Open {
		// Strong buying if small upper wick
		if candle.UpperWick() < bodySize*0.2 {
			return "buying"
		}
		return "neutral"
	} else if candle.Close < candle.Open {
		if candle.LowerWick() < bodySize*0.2 {
			return "selling"
		}
		return "neutral"
	}

	return "neutral"
}
