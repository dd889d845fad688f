package database

import (
	"encoding/json"
	"time"

	"liquidity-hunter/internal/liquidity"
)

// SignalRecord is a row of liquidity_signals
type SignalRecord struct {
	ID          string          `json:"id"`
	Symbol      string          `json:"symbol"`
	Direction   string          `json:"direction"`
	Score       float64         `json:"score"`
	Grade       string          `json:"grade"`
	Breakdown   json.RawMessage `json:"breakdown"`
	EntryPrice  float64         `json:"entry_price"`
	StopLoss    float64         `json:"stop_loss"`
	TakeProfit  float64         `json:"take_profit"`
	RiskReward  float64         `json:"risk_reward"`
	Session     string          `json:"session"`
	SweepID     *string         `json:"sweep_id,omitempty"`
	StructureID *string         `json:"structure_id,omitempty"`
	Reasoning   string          `json:"reasoning"`
	CandleTime  time.Time       `json:"candle_time"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SweepRecord is a row of liquidity_sweeps
type SweepRecord struct {
	ID                string    `json:"id"`
	Symbol            string    `json:"symbol"`
	PoolID            string    `json:"pool_id"`
	PoolType          string    `json:"pool_type"`
	PoolPrice         float64   `json:"pool_price"`
	Price             float64   `json:"price"`
	Direction         string    `json:"direction"`
	WickRatio         float64   `json:"wick_ratio"`
	RejectionStrength float64   `json:"rejection_strength"`
	SweptAt           time.Time `json:"swept_at"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// NewSignalRecord flattens a signal into its row
func NewSignalRecord(s liquidity.TradingSignal) (SignalRecord, error) {
	breakdown, err := json.Marshal(s.Score.Breakdown)
	if err != nil {
		return SignalRecord{}, err
	}
	return SignalRecord{
		ID:          s.ID,
		Symbol:      s.Symbol,
		Direction:   string(s.Direction),
		Score:       s.Score.Total,
		Grade:       s.Score.Grade,
		Breakdown:   breakdown,
		EntryPrice:  s.Entry,
		StopLoss:    s.StopLoss,
		TakeProfit:  s.TakeProfit,
		RiskReward:  s.RiskReward,
		Session:     string(s.Session),
		SweepID:     optional(s.SweepID),
		StructureID: optional(s.StructureID),
		Reasoning:   s.Reasoning,
		CandleTime:  s.CandleTime.UTC(),
		CreatedAt:   s.CreatedAt.UTC(),
	}, nil
}

// Signal rebuilds the signal a row was made from
func (r SignalRecord) Signal() (liquidity.TradingSignal, error) {
	var breakdown liquidity.ScoreBreakdown
	if len(r.Breakdown) > 0 {
		if err := json.Unmarshal(r.Breakdown, &breakdown); err != nil {
			return liquidity.TradingSignal{}, err
		}
	}
	return liquidity.TradingSignal{
		ID:          r.ID,
		Symbol:      r.Symbol,
		Direction:   liquidity.SignalDirection(r.Direction),
		Score:       liquidity.SignalScore{Total: r.Score, Breakdown: breakdown, Grade: r.Grade},
		CreatedAt:   r.CreatedAt,
		CandleTime:  r.CandleTime,
		SweepID:     deref(r.SweepID),
		StructureID: deref(r.StructureID),
		Entry:       r.EntryPrice,
		StopLoss:    r.StopLoss,
		TakeProfit:  r.TakeProfit,
		RiskReward:  r.RiskReward,
		Session:     liquidity.Session(r.Session),
		Reasoning:   r.Reasoning,
	}, nil
}

// NewSweepRecord flattens a sweep of symbol into its row
func NewSweepRecord(symbol string, s liquidity.Sweep) SweepRecord {
	return SweepRecord{
		ID:                s.ID,
		Symbol:            symbol,
		PoolID:            s.PoolID,
		PoolType:          string(s.PoolType),
		PoolPrice:         s.PoolPrice,
		Price:             s.Price,
		Direction:         string(s.Direction),
		WickRatio:         s.WickRatio,
		RejectionStrength: s.RejectionStrength,
		SweptAt:           s.Time.UTC(),
	}
}
