package confluence

import (
	"fmt"
	"math"

	"liquidity-hunter/internal/analysis"
	"liquidity-hunter/internal/liquidity"
	"liquidity-hunter/internal/patterns"
)

// ScoreInput is the evidence gathered for one candidate setup
type ScoreInput struct {
	Sweep     *liquidity.Sweep
	Structure *liquidity.StructureChange
	Candle    liquidity.Candle
	History   []liquidity.Candle // candles before Candle, for the volume average
	RSI       []float64          // aligned to the end of History followed by Candle
	HTFPools  []liquidity.Pool

	// Add-ons
	Direction liquidity.SignalDirection
	Triangle  *patterns.TriangleResolution
	Session   liquidity.Session
}

// SignalConfluence represents the strength of multiple aligned signals
type SignalConfluence struct {
	Score      liquidity.SignalScore `json:"score"`
	Reasoning  []string              `json:"reasoning"`
	Confidence string                `json:"confidence"` // "Very High", "High", "Medium", "Low"
}

// ConfluenceScorer combines sweep, structure, divergence, volume and
// higher-timeframe evidence into a 0-100 score. Each category is capped at its
// weight; the triangle and session add-ons only fill the headroom under 100.
type ConfluenceScorer struct {
	weights      liquidity.ScoreWeights
	volume       *analysis.VolumeAnalyzer
	divergence   *analysis.DivergenceDetector
	patterns     *patterns.PatternDetector
	htfProximity float64
}

// NewConfluenceScorer creates a new confluence scorer from the engine configuration
func NewConfluenceScorer(cfg liquidity.LiquidityConfig) *ConfluenceScorer {
	cfg = liquidity.LoadConfig(&cfg)
	return &ConfluenceScorer{
		weights:      cfg.Weights,
		volume:       analysis.NewVolumeAnalyzer(cfg.VolumeAverageWindow, cfg.VolumeSpikeMultiplier, cfg.VolumeMaxMultiplier),
		divergence:   analysis.NewDivergenceDetector(cfg.DivergenceLookback, cfg.DivergenceScale),
		patterns:     patterns.NewPatternDetector(cfg),
		htfProximity: cfg.HTFProximity,
	}
}

// CalculateScore scores the five core categories only
func (cs *ConfluenceScorer) CalculateScore(
	sweep *liquidity.Sweep,
	structure *liquidity.StructureChange,
	candle liquidity.Candle,
	history []liquidity.Candle,
	rsi []float64,
	htfPools []liquidity.Pool,
) liquidity.SignalScore {
	return cs.Calculate(ScoreInput{
		Sweep:     sweep,
		Structure: structure,
		Candle:    candle,
		History:   history,
		RSI:       rsi,
		HTFPools:  htfPools,
	}).Score
}

// Calculate scores every category and explains what contributed
func (cs *ConfluenceScorer) Calculate(in ScoreInput) SignalConfluence {
	w := cs.weights
	var (
		b         liquidity.ScoreBreakdown
		reasoning []string
	)

	// 1. Sweep: presence, wick size, rejection strength
	if s := in.Sweep; s != nil {
		b.Sweep = capAt(w.Sweep*(0.4+0.3*unit(s.WickRatio)+0.3*unit(s.RejectionStrength)), w.Sweep)
		reasoning = append(reasoning, fmt.Sprintf("Swept %s at %.4f (wick %.0f%%, rejection %.0f%%)",
			s.PoolType, s.PoolPrice, s.WickRatio*100, s.RejectionStrength*100))
	}

	// 2. Structure: reversals outrank continuations
	if st := in.Structure; st != nil {
		base := 0.5
		label := "Break of structure"
		if st.Kind == liquidity.CHOCH {
			base = 0.7
			label = "Change of character"
		}
		b.Structure = capAt(w.Structure*(base+0.3*unit(st.Significance)), w.Structure)
		reasoning = append(reasoning, fmt.Sprintf("%s %s (significance %.2f)", label, st.Direction, st.Significance))
	}

	// 3. Divergence
	series := make([]liquidity.Candle, 0, len(in.History)+1)
	series = append(series, in.History...)
	series = append(series, in.Candle)
	if div := cs.divergence.Detect(series, in.RSI); div.Present() {
		b.Divergence = capAt(w.Divergence*unit(div.Magnitude), w.Divergence)
		reasoning = append(reasoning, fmt.Sprintf("%s RSI divergence (magnitude %.2f)", div.Type, div.Magnitude))
	}

	// 4. Volume
	profile := cs.volume.Profile(in.Candle, in.History)
	if strength := cs.volume.Strength(profile.VolumeRatio); strength > 0 {
		b.Volume = capAt(w.Volume*strength, w.Volume)
		reasoning = append(reasoning, fmt.Sprintf("High volume confirmation (%.1fx average)", profile.VolumeRatio))
	}

	// 5. Higher timeframe proximity
	if pool, dist, ok := cs.nearestHTFPool(in.Candle.Close, in.HTFPools); ok && dist <= cs.htfProximity {
		b.HTF = capAt(w.HTF*(1-dist/cs.htfProximity), w.HTF)
		reasoning = append(reasoning, fmt.Sprintf("Price %.2f%% from HTF %s at %.4f", dist*100, pool.Type, pool.Price))
	}

	// Add-ons share whatever headroom the core leaves under 100
	headroom := math.Max(0, 100-b.Sum())

	if tri := in.Triangle; tri != nil && in.Direction != "" && tri.Direction == in.Direction {
		bonus := w.Triangle
		if err := cs.patterns.CheckRiskReward(*tri); err != nil {
			bonus *= 0.5
		}
		b.Triangle = math.Min(bonus, headroom)
		headroom -= b.Triangle
		if b.Triangle > 0 {
			reasoning = append(reasoning, fmt.Sprintf("Triangle %s agrees (%s)", tri.Kind, tri.Direction))
		}
	}

	if in.Session == liquidity.SessionOverlap {
		b.Session = math.Min(w.Session, headroom)
		if b.Session > 0 {
			reasoning = append(reasoning, "London/New York overlap session")
		}
	}

	total := b.Sum()
	return SignalConfluence{
		Score: liquidity.SignalScore{
			Total:     total,
			Breakdown: b,
			Grade:     cs.scoreToGrade(total / 100),
		},
		Reasoning:  reasoning,
		Confidence: cs.scoreToConfidence(total / 100),
	}
}

// nearestHTFPool returns the active HTF pool closest to price and its relative distance
func (cs *ConfluenceScorer) nearestHTFPool(price float64, pools []liquidity.Pool) (liquidity.Pool, float64, bool) {
	if !isFinite(price) || price == 0 {
		return liquidity.Pool{}, 0, false
	}

	var (
		best     liquidity.Pool
		bestDist = math.Inf(1)
	)
	for _, p := range pools {
		if !p.IsActive() || !isFinite(p.Price) || p.Price == 0 {
			continue
		}
		if d := math.Abs(price-p.Price) / math.Abs(p.Price); d < bestDist {
			best, bestDist = p, d
		}
	}
	return best, bestDist, !math.IsInf(bestDist, 1)
}

// scoreToGrade converts a 0-1 score to letter grade
func (cs *ConfluenceScorer) scoreToGrade(score float64) string {
	if score >= 0.90 {
		return "A+"
	} else if score >= 0.85 {
		return "A"
	} else if score >= 0.75 {
		return "B+"
	} else if score >= 0.70 {
		return "B"
	} else if score >= 0.60 {
		return "C"
	} else if score >= 0.50 {
		return "D"
	}
	return "F"
}

// scoreToConfidence converts a 0-1 score to confidence level
func (cs *ConfluenceScorer) scoreToConfidence(score float64) string {
	if score >= 0.85 {
		return "Very High"
	} else if score >= 0.75 {
		return "High"
	} else if score >= 0.60 {
		return "Medium"
	} else if score >= 0.45 {
		return "Low"
	}
	return "Very Low"
}

// Weights returns the active category caps
func (cs *ConfluenceScorer) Weights() liquidity.ScoreWeights {
	return cs.weights
}

// SetWeights allows custom weight configuration
func (cs *ConfluenceScorer) SetWeights(w liquidity.ScoreWeights) error {
	for _, v := range []float64{w.Sweep, w.Structure, w.Divergence, w.Volume, w.HTF, w.Triangle, w.Session} {
		if v < 0 || !isFinite(v) {
			return fmt.Errorf("weights must be finite and non-negative, got %+v", w)
		}
	}
	// Validate core weights fit in the 0-100 scale
	if total := w.Core(); total > 100 {
		return fmt.Errorf("core weights must sum to at most 100, got %.2f", total)
	}

	cs.weights = w
	return nil
}

func capAt(v, limit float64) float64 {
	if !isFinite(v) || v < 0 {
		return 0
	}
	return math.Min(v, limit)
}

func unit(v float64) float64 {
	if !isFinite(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
