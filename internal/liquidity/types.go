package liquidity

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Candle is a single OHLCV bar. Candles are supplied in chronological order.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Range returns high minus low
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// Body returns the absolute open/close distance
func (c Candle) Body() float64 {
	return math.Abs(c.Close - c.Open)
}

// UpperWick returns the distance from the body top to the high
func (c Candle) UpperWick() float64 {
	return c.High - math.Max(c.Open, c.Close)
}

// LowerWick returns the distance from the body bottom to the low
func (c Candle) LowerWick() float64 {
	return math.Min(c.Open, c.Close) - c.Low
}

// IsFinite reports whether every OHLCV value is a finite number
func (c Candle) IsFinite() bool {
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Side tells whether a level sits above price (stops of shorts) or below (stops of longs)
type Side string

const (
	SideHigh Side = "high"
	SideLow  Side = "low"
)

// PoolType represents the kind of liquidity zone
type PoolType string

const (
	PoolEqualHighs    PoolType = "equal_highs"
	PoolEqualLows     PoolType = "equal_lows"
	PoolPrevDayHigh   PoolType = "pdh"
	PoolPrevDayLow    PoolType = "pdl"
	PoolAsianHigh     PoolType = "asian_high"
	PoolAsianLow      PoolType = "asian_low"
	PoolRangeHigh     PoolType = "range_high"
	PoolRangeLow      PoolType = "range_low"
	PoolTrendlineHigh PoolType = "trendline_high"
	PoolTrendlineLow  PoolType = "trendline_low"
	PoolTriangleUpper PoolType = "triangle_upper"
	PoolTriangleLower PoolType = "triangle_lower"
)

// AllPoolTypes lists every pool type in a stable order
var AllPoolTypes = []PoolType{
	PoolEqualHighs, PoolEqualLows,
	PoolPrevDayHigh, PoolPrevDayLow,
	PoolAsianHigh, PoolAsianLow,
	PoolRangeHigh, PoolRangeLow,
	PoolTrendlineHigh, PoolTrendlineLow,
	PoolTriangleUpper, PoolTriangleLower,
}

// Side returns which side of price the pool guards
func (t PoolType) Side() Side {
	switch t {
	case PoolEqualHighs, PoolPrevDayHigh, PoolAsianHigh, PoolRangeHigh, PoolTrendlineHigh, PoolTriangleUpper:
		return SideHigh
	case PoolEqualLows, PoolPrevDayLow, PoolAsianLow, PoolRangeLow, PoolTrendlineLow, PoolTriangleLower:
		return SideLow
	default:
		panic(fmt.Sprintf("liquidity: unknown pool type %q", string(t)))
	}
}

// Valid reports whether t is one of the known pool types
func (t PoolType) Valid() bool {
	for _, known := range AllPoolTypes {
		if t == known {
			return true
		}
	}
	return false
}

// PoolStatus is the lifecycle state of a pool. active -> swept is one-way.
type PoolStatus string

const (
	PoolActive PoolStatus = "active"
	PoolSwept  PoolStatus = "swept"
)

// Pool is a price level where stop-losses are inferred to cluster
type Pool struct {
	ID            string     `json:"id"`
	Type          PoolType   `json:"type"`
	Price         float64    `json:"price"`
	FormedAt      time.Time  `json:"formed_at"`
	Status        PoolStatus `json:"status"`
	CandleIndices []int      `json:"candle_indices"`
	Strength      int        `json:"strength"` // touch count
	SweptAt       *time.Time `json:"swept_at,omitempty"`
}

// IsActive reports whether the pool has not been swept yet
func (p Pool) IsActive() bool {
	return p.Status == PoolActive
}

// Direction is the direction of a price excursion or a structural move
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Opposite returns the reverse direction
func (d Direction) Opposite() Direction {
	if d == DirectionUp {
		return DirectionDown
	}
	return DirectionUp
}

// SignalDirection is the side of a trading signal
type SignalDirection string

const (
	Bullish SignalDirection = "bullish"
	Bearish SignalDirection = "bearish"
)

// SignalDirectionOf maps a structural direction to the trade side that follows it
func SignalDirectionOf(d Direction) SignalDirection {
	if d == DirectionUp {
		return Bullish
	}
	return Bearish
}

// Sweep is a stop hunt: a wick through a pool that closes back on the original side
type Sweep struct {
	ID                string    `json:"id"`
	PoolID            string    `json:"pool_id"`
	PoolType          PoolType  `json:"pool_type"`
	PoolPrice         float64   `json:"pool_price"`
	Price             float64   `json:"price"`
	Time              time.Time `json:"time"`
	CandleIndex       int       `json:"candle_index"`
	WickRatio         float64   `json:"wick_ratio"`
	Direction         Direction `json:"direction"`
	RejectionStrength float64   `json:"rejection_strength"`
}

// Trend is the state of the market structure state machine
type Trend string

const (
	TrendUp    Trend = "uptrend"
	TrendDown  Trend = "downtrend"
	TrendRange Trend = "range"
)

// StructureKind classifies a structural event
type StructureKind string

const (
	// CHOCH marks a reversal of the prevailing trend
	CHOCH StructureKind = "choch"
	// BOS marks a continuation of the prevailing trend
	BOS StructureKind = "bos"
)

// StructureChange is a change of character or break of structure
type StructureChange struct {
	ID            string        `json:"id"`
	Kind          StructureKind `json:"kind"`
	Direction     Direction     `json:"direction"`
	Price         float64       `json:"price"`
	Time          time.Time     `json:"time"`
	CandleIndex   int           `json:"candle_index"`
	PreviousTrend Trend         `json:"previous_trend"`
	NewTrend      Trend         `json:"new_trend"`
	Significance  float64       `json:"significance"`
}

// ScoreBreakdown holds the per-category contributions to a signal score
type ScoreBreakdown struct {
	Sweep      float64 `json:"sweep"`
	Structure  float64 `json:"structure"`
	Divergence float64 `json:"divergence"`
	Volume     float64 `json:"volume"`
	HTF        float64 `json:"htf"`
	Triangle   float64 `json:"triangle"`
	Session    float64 `json:"session"`
}

// Sum adds up every component
func (b ScoreBreakdown) Sum() float64 {
	return b.Sweep + b.Structure + b.Divergence + b.Volume + b.HTF + b.Triangle + b.Session
}

// SignalScore is the 0-100 evidence score of a setup
type SignalScore struct {
	Total     float64        `json:"total"`
	Breakdown ScoreBreakdown `json:"breakdown"`
	Grade     string         `json:"grade"`
}

// TradingSignal is an actionable setup produced when every gate check passes
type TradingSignal struct {
	ID          string          `json:"id"`
	Symbol      string          `json:"symbol"`
	Direction   SignalDirection `json:"direction"`
	Score       SignalScore     `json:"score"`
	CreatedAt   time.Time       `json:"created_at"`
	CandleTime  time.Time       `json:"candle_time"`
	SweepID     string          `json:"sweep_id,omitempty"`
	StructureID string          `json:"structure_id,omitempty"`
	Entry       float64         `json:"entry"`
	StopLoss    float64         `json:"stop_loss"`
	TakeProfit  float64         `json:"take_profit"`
	RiskReward  float64         `json:"risk_reward"`
	Session     Session         `json:"session"`
	Reasoning   string          `json:"reasoning"`
}

// AnalysisResult is what the engine returns for one analyze call
type AnalysisResult struct {
	Symbol          string            `json:"symbol"`
	Pools           []Pool            `json:"pools"`
	Sweeps          []Sweep           `json:"sweeps"`
	Structures      []StructureChange `json:"structures"`
	Signal          *TradingSignal    `json:"signal,omitempty"`
	HasValidSetup   bool              `json:"has_valid_setup"`
	BlockingReasons []string          `json:"blocking_reasons"`
	Session         Session           `json:"session,omitempty"`
	Threshold       float64           `json:"threshold,omitempty"`
}

// idNamespace scopes the content-derived identifiers of this package
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("liquidity-hunter/liquidity"))

// ContentID derives a stable identifier from the given parts so that
// identical candle histories always produce identical ids.
func ContentID(parts ...interface{}) string {
	return uuid.NewSHA1(idNamespace, []byte(fmt.Sprint(parts...))).String()
}

// PoolID returns the deterministic id of a pool
func PoolID(t PoolType, formedAt time.Time, price float64) string {
	return ContentID("pool|", string(t), "|", formedAt.UnixNano(), "|", fmt.Sprintf("%.8f", price))
}
