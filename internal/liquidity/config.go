package liquidity

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/hashicorp/go-multierror"
)

// ScoreWeights caps each evidence category of the signal score
type ScoreWeights struct {
	Sweep      float64 `json:"sweep,omitempty" yaml:"sweep,omitempty"`
	Structure  float64 `json:"structure,omitempty" yaml:"structure,omitempty"`
	Divergence float64 `json:"divergence,omitempty" yaml:"divergence,omitempty"`
	Volume     float64 `json:"volume,omitempty" yaml:"volume,omitempty"`
	HTF        float64 `json:"htf,omitempty" yaml:"htf,omitempty"`
	Triangle   float64 `json:"triangle,omitempty" yaml:"triangle,omitempty"` // add-on
	Session    float64 `json:"session,omitempty" yaml:"session,omitempty"`   // add-on
}

// Core returns the sum of the five core categories
func (w ScoreWeights) Core() float64 {
	return w.Sweep + w.Structure + w.Divergence + w.Volume + w.HTF
}

// SessionThresholds is the minimum score a signal needs per trading session
type SessionThresholds struct {
	Asian    float64 `json:"asian,omitempty" yaml:"asian,omitempty"`
	London   float64 `json:"london,omitempty" yaml:"london,omitempty"`
	NewYork  float64 `json:"new_york,omitempty" yaml:"new_york,omitempty"`
	Overlap  float64 `json:"overlap,omitempty" yaml:"overlap,omitempty"`
	OffHours float64 `json:"off_hours,omitempty" yaml:"off_hours,omitempty"`
}

// For returns the threshold of session s
func (st SessionThresholds) For(s Session) float64 {
	switch s {
	case SessionAsian:
		return st.Asian
	case SessionLondon:
		return st.London
	case SessionNewYork:
		return st.NewYork
	case SessionOverlap:
		return st.Overlap
	default:
		return st.OffHours
	}
}

// TriangleConfig tunes the converging-trendline detector
type TriangleConfig struct {
	Window           int     `json:"window,omitempty" yaml:"window,omitempty"`
	SwingLookback    int     `json:"swing_lookback,omitempty" yaml:"swing_lookback,omitempty"`
	MinSwings        int     `json:"min_swings,omitempty" yaml:"min_swings,omitempty"`
	ConvergenceRatio float64 `json:"convergence_ratio,omitempty" yaml:"convergence_ratio,omitempty"`
	CompressionRatio float64 `json:"compression_ratio,omitempty" yaml:"compression_ratio,omitempty"`
	RetestWindow     int     `json:"retest_window,omitempty" yaml:"retest_window,omitempty"`
	RetestTolerance  float64 `json:"retest_tolerance,omitempty" yaml:"retest_tolerance,omitempty"`
	StopBuffer       float64 `json:"stop_buffer,omitempty" yaml:"stop_buffer,omitempty"`
	MinRewardRisk    float64 `json:"min_reward_risk,omitempty" yaml:"min_reward_risk,omitempty"`
	MinStopPct       float64 `json:"min_stop_pct,omitempty" yaml:"min_stop_pct,omitempty"`
	MaxStopPct       float64 `json:"max_stop_pct,omitempty" yaml:"max_stop_pct,omitempty"`
}

// LiquidityConfig holds every tunable threshold of the analysis engine.
// Zero-valued fields mean "use the default" when passed through LoadConfig,
// so a threshold cannot be set to 0 and a score category cannot be switched
// off with a zero weight. Use a small positive value instead.
type LiquidityConfig struct {
	EqualLevelTolerance    float64 `json:"equal_level_tolerance,omitempty" yaml:"equal_level_tolerance,omitempty"`
	MinWickRatio           float64 `json:"min_wick_ratio,omitempty" yaml:"min_wick_ratio,omitempty"`
	RangeMinTouches        int     `json:"range_min_touches,omitempty" yaml:"range_min_touches,omitempty"`
	TrendlineSwingLookback int     `json:"trendline_swing_lookback,omitempty" yaml:"trendline_swing_lookback,omitempty"`
	TrendlineWindow        int     `json:"trendline_window,omitempty" yaml:"trendline_window,omitempty"`

	StructureSwingLookback int     `json:"structure_swing_lookback,omitempty" yaml:"structure_swing_lookback,omitempty"`
	StructureLookback      int     `json:"structure_lookback,omitempty" yaml:"structure_lookback,omitempty"`
	SignificanceScale      float64 `json:"significance_scale,omitempty" yaml:"significance_scale,omitempty"`

	MinCandles            int     `json:"min_candles,omitempty" yaml:"min_candles,omitempty"`
	VolumeAverageWindow   int     `json:"volume_average_window,omitempty" yaml:"volume_average_window,omitempty"`
	VolumeSpikeMultiplier float64 `json:"volume_spike_multiplier,omitempty" yaml:"volume_spike_multiplier,omitempty"`
	VolumeMaxMultiplier   float64 `json:"volume_max_multiplier,omitempty" yaml:"volume_max_multiplier,omitempty"`
	MaxBreakoutWickRatio  float64 `json:"max_breakout_wick_ratio,omitempty" yaml:"max_breakout_wick_ratio,omitempty"`
	DivergenceLookback    int     `json:"divergence_lookback,omitempty" yaml:"divergence_lookback,omitempty"`
	DivergenceScale       float64 `json:"divergence_scale,omitempty" yaml:"divergence_scale,omitempty"`
	HTFProximity          float64 `json:"htf_proximity,omitempty" yaml:"htf_proximity,omitempty"`
	RSIPeriod             int     `json:"rsi_period,omitempty" yaml:"rsi_period,omitempty"`

	ATRPeriod           int     `json:"atr_period,omitempty" yaml:"atr_period,omitempty"`
	ATRStopMultiplier   float64 `json:"atr_stop_multiplier,omitempty" yaml:"atr_stop_multiplier,omitempty"`
	RewardRiskRatio     float64 `json:"reward_risk_ratio,omitempty" yaml:"reward_risk_ratio,omitempty"`
	FallbackRangeWindow int     `json:"fallback_range_window,omitempty" yaml:"fallback_range_window,omitempty"`

	Weights           ScoreWeights      `json:"weights" yaml:"weights"`
	SessionThresholds SessionThresholds `json:"session_thresholds" yaml:"session_thresholds"`
	Triangle          TriangleConfig    `json:"triangle" yaml:"triangle"`

	MaxAge     time.Duration `json:"max_age,omitempty" yaml:"max_age,omitempty"`
	MaxCandles int           `json:"max_candles,omitempty" yaml:"max_candles,omitempty"`
}

// DefaultConfig returns the engine defaults
func DefaultConfig() LiquidityConfig {
	return LiquidityConfig{
		EqualLevelTolerance:    0.001,
		MinWickRatio:           0.5,
		RangeMinTouches:        3,
		TrendlineSwingLookback: 2,
		TrendlineWindow:        50,

		StructureSwingLookback: 2,
		StructureLookback:      20,
		SignificanceScale:      0.02,

		MinCandles:            50,
		VolumeAverageWindow:   20,
		VolumeSpikeMultiplier: 1.5,
		VolumeMaxMultiplier:   3.0,
		MaxBreakoutWickRatio:  0.5,
		DivergenceLookback:    3,
		DivergenceScale:       10,
		HTFProximity:          0.01,
		RSIPeriod:             14,

		ATRPeriod:           14,
		ATRStopMultiplier:   1.5,
		RewardRiskRatio:     2.0,
		FallbackRangeWindow: 20,

		Weights: ScoreWeights{
			Sweep:      25,
			Structure:  30,
			Divergence: 15,
			Volume:     10,
			HTF:        20,
			Triangle:   10,
			Session:    5,
		},
		SessionThresholds: SessionThresholds{
			Asian:    65,
			London:   50,
			NewYork:  50,
			Overlap:  45,
			OffHours: 65,
		},
		Triangle: TriangleConfig{
			Window:           50,
			SwingLookback:    2,
			MinSwings:        2,
			ConvergenceRatio: 0.7,
			CompressionRatio: 0.7,
			RetestWindow:     10,
			RetestTolerance:  0.001,
			StopBuffer:       0.002,
			MinRewardRisk:    1.5,
			MinStopPct:       0.005,
			MaxStopPct:       0.03,
		},

		MaxAge:     7 * 24 * time.Hour,
		MaxCandles: 500,
	}
}

// LoadConfig overlays the non-zero fields of partial on top of the defaults.
// An explicit zero is indistinguishable from an unset field and keeps the
// default.
// LoadConfig(&cfg) is idempotent for any cfg returned by LoadConfig.
func LoadConfig(partial *LiquidityConfig) LiquidityConfig {
	cfg := DefaultConfig()
	if partial == nil {
		return cfg
	}

	// omitempty drops every zero field, so unmarshalling the partial over the
	// defaults only replaces what the caller actually set.
	data, err := json.Marshal(partial)
	if err != nil {
		return cfg
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig()
	}
	return cfg
}

// FieldError is a single violated configuration constraint
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationResult lists every violated constraint of a configuration
type ValidationResult struct {
	IsValid bool         `json:"is_valid"`
	Errors  []FieldError `json:"errors"`
}

// Err folds the accumulated errors into a single error, or nil when valid
func (r ValidationResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	var result *multierror.Error
	for _, fe := range r.Errors {
		result = multierror.Append(result, fe)
	}
	return result
}

type validator struct {
	errors []FieldError
}

func (v *validator) fail(field, format string, args ...interface{}) {
	v.errors = append(v.errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) between(field string, value, lo, hi float64) {
	if math.IsNaN(value) || value <= lo || value > hi {
		v.fail(field, "must be in (%g, %g], got %g", lo, hi, value)
	}
}

func (v *validator) atLeast(field string, value, min int) {
	if value < min {
		v.fail(field, "must be at least %d, got %d", min, value)
	}
}

func (v *validator) positive(field string, value float64) {
	if math.IsNaN(value) || value <= 0 {
		v.fail(field, "must be positive, got %g", value)
	}
}

func (v *validator) nonNegative(field string, value float64) {
	if math.IsNaN(value) || value < 0 {
		v.fail(field, "must not be negative, got %g", value)
	}
}

// ValidateConfig resolves partial against the defaults and checks every
// constraint, accumulating all violations instead of stopping at the first.
func ValidateConfig(partial LiquidityConfig) ValidationResult {
	cfg := LoadConfig(&partial)
	v := &validator{}

	if _, err := json.Marshal(partial); err != nil {
		v.fail("config", "contains non-finite values: %v", err)
	}

	v.between("equal_level_tolerance", cfg.EqualLevelTolerance, 0, 0.05)
	v.between("min_wick_ratio", cfg.MinWickRatio, 0, 1)
	v.atLeast("range_min_touches", cfg.RangeMinTouches, 2)
	v.atLeast("trendline_swing_lookback", cfg.TrendlineSwingLookback, 1)
	v.atLeast("trendline_window", cfg.TrendlineWindow, 5)

	v.atLeast("structure_swing_lookback", cfg.StructureSwingLookback, 1)
	v.atLeast("structure_lookback", cfg.StructureLookback, 5)
	v.positive("significance_scale", cfg.SignificanceScale)

	v.atLeast("min_candles", cfg.MinCandles, 10)
	v.atLeast("volume_average_window", cfg.VolumeAverageWindow, 1)
	if cfg.VolumeSpikeMultiplier < 1 {
		v.fail("volume_spike_multiplier", "must be at least 1, got %g", cfg.VolumeSpikeMultiplier)
	}
	if cfg.VolumeMaxMultiplier <= cfg.VolumeSpikeMultiplier {
		v.fail("volume_max_multiplier", "must exceed volume_spike_multiplier (%g), got %g",
			cfg.VolumeSpikeMultiplier, cfg.VolumeMaxMultiplier)
	}
	v.between("max_breakout_wick_ratio", cfg.MaxBreakoutWickRatio, 0, 1)
	v.atLeast("divergence_lookback", cfg.DivergenceLookback, 3)
	v.positive("divergence_scale", cfg.DivergenceScale)
	v.between("htf_proximity", cfg.HTFProximity, 0, 0.1)
	v.atLeast("rsi_period", cfg.RSIPeriod, 2)

	v.atLeast("atr_period", cfg.ATRPeriod, 1)
	v.positive("atr_stop_multiplier", cfg.ATRStopMultiplier)
	v.positive("reward_risk_ratio", cfg.RewardRiskRatio)
	v.atLeast("fallback_range_window", cfg.FallbackRangeWindow, 1)

	w := cfg.Weights
	v.nonNegative("weights.sweep", w.Sweep)
	v.nonNegative("weights.structure", w.Structure)
	v.nonNegative("weights.divergence", w.Divergence)
	v.nonNegative("weights.volume", w.Volume)
	v.nonNegative("weights.htf", w.HTF)
	v.nonNegative("weights.triangle", w.Triangle)
	v.nonNegative("weights.session", w.Session)
	if core := w.Core(); core > 100+1e-9 {
		v.fail("weights", "core weights must sum to at most 100, got %g", core)
	}

	st := cfg.SessionThresholds
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"session_thresholds.asian", st.Asian},
		{"session_thresholds.london", st.London},
		{"session_thresholds.new_york", st.NewYork},
		{"session_thresholds.overlap", st.Overlap},
		{"session_thresholds.off_hours", st.OffHours},
	} {
		if math.IsNaN(f.value) || f.value < 0 || f.value > 100 {
			v.fail(f.name, "must be in [0, 100], got %g", f.value)
		}
	}

	tc := cfg.Triangle
	v.atLeast("triangle.window", tc.Window, 10)
	v.atLeast("triangle.swing_lookback", tc.SwingLookback, 1)
	v.atLeast("triangle.min_swings", tc.MinSwings, 2)
	v.between("triangle.convergence_ratio", tc.ConvergenceRatio, 0, 1)
	v.between("triangle.compression_ratio", tc.CompressionRatio, 0, 1)
	v.atLeast("triangle.retest_window", tc.RetestWindow, 1)
	v.between("triangle.retest_tolerance", tc.RetestTolerance, 0, 0.05)
	v.between("triangle.stop_buffer", tc.StopBuffer, 0, 0.05)
	v.positive("triangle.min_reward_risk", tc.MinRewardRisk)
	v.between("triangle.min_stop_pct", tc.MinStopPct, 0, 1)
	v.between("triangle.max_stop_pct", tc.MaxStopPct, 0, 1)
	if tc.MinStopPct >= tc.MaxStopPct {
		v.fail("triangle.max_stop_pct", "must exceed min_stop_pct (%g), got %g", tc.MinStopPct, tc.MaxStopPct)
	}

	if cfg.MaxAge <= 0 {
		v.fail("max_age", "must be positive, got %s", cfg.MaxAge)
	}
	if cfg.MaxCandles < cfg.MinCandles {
		v.fail("max_candles", "must be at least min_candles (%d), got %d", cfg.MinCandles, cfg.MaxCandles)
	}

	return ValidationResult{
		IsValid: len(v.errors) == 0,
		Errors:  v.errors,
	}
}
