package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"liquidity-hunter/internal/liquidity"
)

// SignalRepository stores signals and sweeps in PostgreSQL
type SignalRepository struct {
	db *DB
}

// NewSignalRepository creates a new repository
func NewSignalRepository(db *DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// HealthCheck performs a database health check
func (r *SignalRepository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// SIGNALS
// ============================================================================

const signalColumns = `id, symbol, direction, score, grade, breakdown, entry_price, stop_loss,
	take_profit, risk_reward, session, sweep_id, structure_id, reasoning, candle_time, created_at`

// SaveSignal inserts a signal; saving the same signal twice is a no-op
func (r *SignalRepository) SaveSignal(ctx context.Context, signal liquidity.TradingSignal) error {
	rec, err := NewSignalRecord(signal)
	if err != nil {
		return fmt.Errorf("failed to encode signal %s: %w", signal.ID, err)
	}

	query := `
		INSERT INTO liquidity_signals (` + signalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = r.db.Pool.Exec(
		ctx, query,
		rec.ID, rec.Symbol, rec.Direction, rec.Score, rec.Grade, rec.Breakdown,
		rec.EntryPrice, rec.StopLoss, rec.TakeProfit, rec.RiskReward, rec.Session,
		rec.SweepID, rec.StructureID, rec.Reasoning, rec.CandleTime, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert signal %s: %w", signal.ID, err)
	}
	return nil
}

// RecentSignals returns the newest signals first; an empty symbol means all
func (r *SignalRepository) RecentSignals(ctx context.Context, symbol string, limit int) ([]liquidity.TradingSignal, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + signalColumns + `
		FROM liquidity_signals
		WHERE ($1 = '' OR symbol = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	return collectSignals(rows)
}

// SignalsBetween returns the signals of symbol created in [from, to], oldest first
func (r *SignalRepository) SignalsBetween(ctx context.Context, symbol string, from, to time.Time) ([]liquidity.TradingSignal, error) {
	query := `
		SELECT ` + signalColumns + `
		FROM liquidity_signals
		WHERE symbol = $1 AND created_at BETWEEN $2 AND $3
		ORDER BY created_at ASC
	`
	rows, err := r.db.Pool.Query(ctx, query, symbol, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	return collectSignals(rows)
}

func collectSignals(rows pgx.Rows) ([]liquidity.TradingSignal, error) {
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SignalRecord, error) {
		var rec SignalRecord
		err := row.Scan(
			&rec.ID, &rec.Symbol, &rec.Direction, &rec.Score, &rec.Grade, &rec.Breakdown,
			&rec.EntryPrice, &rec.StopLoss, &rec.TakeProfit, &rec.RiskReward, &rec.Session,
			&rec.SweepID, &rec.StructureID, &rec.Reasoning, &rec.CandleTime, &rec.CreatedAt,
		)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan signals: %w", err)
	}

	signals := make([]liquidity.TradingSignal, 0, len(records))
	for _, rec := range records {
		s, err := rec.Signal()
		if err != nil {
			return nil, fmt.Errorf("failed to decode signal %s: %w", rec.ID, err)
		}
		signals = append(signals, s)
	}
	return signals, nil
}

// ============================================================================
// SWEEPS
// ============================================================================

// SaveSweep inserts a sweep of symbol; saving the same sweep twice is a no-op
func (r *SignalRepository) SaveSweep(ctx context.Context, symbol string, sweep liquidity.Sweep) error {
	rec := NewSweepRecord(symbol, sweep)
	query := `
		INSERT INTO liquidity_sweeps (id, symbol, pool_id, pool_type, pool_price, price, direction,
			wick_ratio, rejection_strength, swept_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.db.Pool.Exec(
		ctx, query,
		rec.ID, rec.Symbol, rec.PoolID, rec.PoolType, rec.PoolPrice, rec.Price, rec.Direction,
		rec.WickRatio, rec.RejectionStrength, rec.SweptAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sweep %s: %w", sweep.ID, err)
	}
	return nil
}

// CountSweeps returns how many sweeps of symbol are stored
func (r *SignalRepository) CountSweeps(ctx context.Context, symbol string) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM liquidity_sweeps WHERE symbol = $1`, symbol).Scan(&n)
	return n, err
}
