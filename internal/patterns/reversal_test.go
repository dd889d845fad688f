package patterns

import (
	"testing"

	"liquidity-hunter/internal/liquidity"
)

// TestBullishEngulfing tests Bullish Engulfing pattern detection
func TestBullishEngulfing(t *testing.T) {
	detector := NewPatternDetector(liquidity.DefaultConfig())

	c1 := liquidity.Candle{Open: 100, High: 102, Low: 98, Close: 99} // Bearish
	c2 := liquidity.Candle{Open: 98, High: 105, Low: 97, Close: 104} // Bullish engulfing

	if !detector.isBullishEngulfing(c1, c2) {
		t.Error("Should detect valid Bullish Engulfing pattern")
	}

	// Invalid - C1 not bearish
	c1Invalid := liquidity.Candle{Open: 99, High: 102, Low: 98, Close: 100}
	if detector.isBullishEngulfing(c1Invalid, c2) {
		t.Error("Should NOT detect pattern when C1 is not bearish")
	}

	// Invalid - C2 closes inside C1 body
	c2Invalid := liquidity.Candle{Open: 98.5, High: 100, Low: 98, Close: 99.5}
	if detector.isBullishEngulfing(c1, c2Invalid) {
		t.Error("Should NOT detect pattern when C2 doesn't engulf C1")
	}
}

// TestBearishEngulfing tests Bearish Engulfing pattern detection
func TestBearishEngulfing(t *testing.T) {
	detector := NewPatternDetector(liquidity.DefaultConfig())

	c1 := liquidity.Candle{Open: 99, High: 102, Low: 98, Close: 100} // Bullish
	c2 := liquidity.Candle{Open: 101, High: 103, Low: 95, Close: 96} // Bearish engulfing

	if !detector.isBearishEngulfing(c1, c2) {
		t.Error("Should detect valid Bearish Engulfing pattern")
	}
}

// TestGravestoneDoji tests the bearish doji a high sweep often prints
func TestGravestoneDoji(t *testing.T) {
	detector := NewPatternDetector(liquidity.DefaultConfig())

	candle := liquidity.Candle{Open: 100, High: 105, Low: 99.95, Close: 100.1}
	if !detector.isGravestoneDoji(candle) {
		t.Error("Should detect Gravestone Doji")
	}
	if detector.isDragonflyDoji(candle) {
		t.Error("Gravestone Doji is not a Dragonfly Doji")
	}

	flat := liquidity.Candle{Open: 100, High: 100, Low: 100, Close: 100}
	if detector.isDoji(flat) {
		t.Error("Zero-range candle should not be a Doji")
	}
}

// TestDetectRejection tests the description of a sweep candle
func TestDetectRejection(t *testing.T) {
	detector := NewPatternDetector(liquidity.DefaultConfig())

	candles := []liquidity.Candle{
		{Open: 99, High: 100, Low: 98.8, Close: 99.8},
		{Open: 99.5, High: 101.5, Low: 99.45, Close: 99.7},
	}

	found := detector.DetectRejection(candles, 1)
	var star bool
	for _, p := range found {
		if p.Type == ShootingStar {
			star = true
			if p.Direction != liquidity.Bearish {
				t.Errorf("Shooting star should be bearish, got %s", p.Direction)
			}
			if p.Confidence <= 0.5 || p.Confidence > 1 {
				t.Errorf("Unexpected confidence %f", p.Confidence)
			}
		}
	}
	if !star {
		t.Errorf("Should detect Shooting Star, got %v", found)
	}

	if got := detector.DetectRejection(candles, 5); got != nil {
		t.Errorf("Out of range index should detect nothing, got %v", got)
	}
}
