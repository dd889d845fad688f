package liquidity

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateConfig_Defaults(t *testing.T) {
	result := ValidateConfig(LoadConfig(nil))
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Errors)
	assert.NoError(t, result.Err())
}

func TestLoadConfig_Idempotent(t *testing.T) {
	partial := &LiquidityConfig{
		EqualLevelTolerance: 0.002,
		Weights:             ScoreWeights{Sweep: 20},
		MaxAge:              time.Hour,
	}
	once := LoadConfig(partial)
	twice := LoadConfig(&once)
	assert.Equal(t, once, twice)
	assert.Equal(t, LoadConfig(nil), DefaultConfig())
}

func TestLoadConfig_OverlaysPartial(t *testing.T) {
	cfg := LoadConfig(&LiquidityConfig{
		RangeMinTouches:   4,
		SessionThresholds: SessionThresholds{Asian: 70},
		Triangle:          TriangleConfig{Window: 30},
	})

	assert.Equal(t, 4, cfg.RangeMinTouches)
	assert.Equal(t, 70.0, cfg.SessionThresholds.Asian)
	assert.Equal(t, 50.0, cfg.SessionThresholds.London)
	assert.Equal(t, 30, cfg.Triangle.Window)
	assert.Equal(t, 0.7, cfg.Triangle.ConvergenceRatio)
	assert.Equal(t, 0.001, cfg.EqualLevelTolerance)
}

func TestLoadConfig_ZeroKeepsDefault(t *testing.T) {
	cfg := LoadConfig(&LiquidityConfig{
		Weights:      ScoreWeights{Sweep: 40, HTF: 0},
		MinWickRatio: 0,
	})

	assert.Equal(t, 40.0, cfg.Weights.Sweep)
	assert.Equal(t, DefaultConfig().Weights.HTF, cfg.Weights.HTF)
	assert.Equal(t, DefaultConfig().MinWickRatio, cfg.MinWickRatio)

	small := LoadConfig(&LiquidityConfig{Weights: ScoreWeights{HTF: 0.001}})
	assert.Equal(t, 0.001, small.Weights.HTF)
}

func TestValidateConfig_AccumulatesErrors(t *testing.T) {
	result := ValidateConfig(LiquidityConfig{
		EqualLevelTolerance: -0.1,
		MinWickRatio:        1.5,
		RangeMinTouches:     1,
		Weights:             ScoreWeights{Sweep: 60, Structure: 60},
		SessionThresholds:   SessionThresholds{London: 120},
	})

	require.False(t, result.IsValid)

	fields := make(map[string]bool)
	for _, fe := range result.Errors {
		fields[fe.Field] = true
	}
	for _, want := range []string{
		"equal_level_tolerance",
		"min_wick_ratio",
		"range_min_touches",
		"weights",
		"session_thresholds.london",
	} {
		assert.True(t, fields[want], "missing error for %s", want)
	}

	err := result.Err()
	require.Error(t, err)
	var fe FieldError
	assert.True(t, errors.As(err, &fe))
}

func TestValidateConfig_NonFinite(t *testing.T) {
	result := ValidateConfig(LiquidityConfig{MinWickRatio: math.NaN()})
	require.False(t, result.IsValid)
	assert.Equal(t, "config", result.Errors[0].Field)
}

func TestValidateConfig_StoreLimits(t *testing.T) {
	result := ValidateConfig(LiquidityConfig{MaxAge: -time.Minute, MaxCandles: 20})
	require.False(t, result.IsValid)

	fields := make(map[string]bool)
	for _, fe := range result.Errors {
		fields[fe.Field] = true
	}
	assert.True(t, fields["max_age"])
	assert.True(t, fields["max_candles"])
}

func TestSessionAt(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		hour int
		want Session
	}{
		{0, SessionAsian},
		{7, SessionAsian},
		{8, SessionLondon},
		{12, SessionLondon},
		{13, SessionOverlap},
		{15, SessionOverlap},
		{16, SessionNewYork},
		{20, SessionNewYork},
		{21, SessionOffHours},
		{23, SessionOffHours},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SessionAt(day.Add(time.Duration(tt.hour)*time.Hour)), "hour %d", tt.hour)
	}

	thresholds := DefaultConfig().SessionThresholds
	assert.Equal(t, 65.0, thresholds.For(SessionAsian))
	assert.Equal(t, 45.0, thresholds.For(SessionOverlap))
}
