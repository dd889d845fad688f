// Package journal keeps a local SQLite record of signals and analysis runs.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"liquidity-hunter/internal/liquidity"
)

// Schema is applied on open; every statement is idempotent
const Schema = `
CREATE TABLE IF NOT EXISTS signals (
	id           TEXT PRIMARY KEY,
	symbol       TEXT NOT NULL,
	direction    TEXT NOT NULL,
	score        REAL NOT NULL,
	grade        TEXT,
	entry_price  REAL NOT NULL,
	stop_loss    REAL NOT NULL,
	take_profit  REAL NOT NULL,
	risk_reward  REAL NOT NULL,
	session      TEXT,
	sweep_id     TEXT,
	structure_id TEXT,
	reasoning    TEXT,
	candle_time  TIMESTAMP NOT NULL,
	created_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol, created_at);

CREATE TABLE IF NOT EXISTS runs (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol           TEXT NOT NULL,
	ran_at           TIMESTAMP NOT NULL,
	candles          INTEGER NOT NULL,
	pools            INTEGER NOT NULL,
	sweeps           INTEGER NOT NULL,
	structures       INTEGER NOT NULL,
	has_valid_setup  INTEGER NOT NULL,
	signal_id        TEXT,
	session          TEXT,
	threshold        REAL,
	blocking_reasons TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_symbol ON runs(symbol, ran_at);
`

// RunRecord summarises one analysis call
type RunRecord struct {
	ID              int64     `json:"id"`
	Symbol          string    `json:"symbol"`
	RanAt           time.Time `json:"ran_at"`
	Candles         int       `json:"candles"`
	Pools           int       `json:"pools"`
	Sweeps          int       `json:"sweeps"`
	Structures      int       `json:"structures"`
	HasValidSetup   bool      `json:"has_valid_setup"`
	SignalID        string    `json:"signal_id,omitempty"`
	Session         string    `json:"session"`
	Threshold       float64   `json:"threshold"`
	BlockingReasons []string  `json:"blocking_reasons"`
}

// NewRunRecord summarises result, produced at ranAt from candles candles
func NewRunRecord(result liquidity.AnalysisResult, candles int, ranAt time.Time) RunRecord {
	rec := RunRecord{
		Symbol:          result.Symbol,
		RanAt:           ranAt.UTC(),
		Candles:         candles,
		Pools:           len(result.Pools),
		Sweeps:          len(result.Sweeps),
		Structures:      len(result.Structures),
		HasValidSetup:   result.HasValidSetup,
		Session:         string(result.Session),
		Threshold:       result.Threshold,
		BlockingReasons: result.BlockingReasons,
	}
	if result.Signal != nil {
		rec.SignalID = result.Signal.ID
	}
	return rec
}

// reasonSeparator never occurs in a blocking reason
const reasonSeparator = "\n"

type SQLiteJournal struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// single writer
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: apply schema: %w", err)
	}

	return &SQLiteJournal{db: db}, nil
}

// RecordSignal stores a signal; recording it again is a no-op
func (j *SQLiteJournal) RecordSignal(ctx context.Context, s liquidity.TradingSignal) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO signals
		(id, symbol, direction, score, grade, entry_price, stop_loss, take_profit, risk_reward,
		 session, sweep_id, structure_id, reasoning, candle_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Symbol, string(s.Direction), s.Score.Total, s.Score.Grade,
		s.Entry, s.StopLoss, s.TakeProfit, s.RiskReward,
		string(s.Session), s.SweepID, s.StructureID, s.Reasoning,
		s.CandleTime.UTC(), s.CreatedAt.UTC(),
	)
	return err
}

// RecordRun appends a run summary and returns its id
func (j *SQLiteJournal) RecordRun(ctx context.Context, r RunRecord) (int64, error) {
	res, err := j.db.ExecContext(ctx, `
		INSERT INTO runs
		(symbol, ran_at, candles, pools, sweeps, structures, has_valid_setup, signal_id,
		 session, threshold, blocking_reasons)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Symbol, r.RanAt.UTC(), r.Candles, r.Pools, r.Sweeps, r.Structures, r.HasValidSetup,
		r.SignalID, r.Session, r.Threshold, strings.Join(r.BlockingReasons, reasonSeparator),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListSignals returns the newest signals of symbol first; empty symbol means all
func (j *SQLiteJournal) ListSignals(ctx context.Context, symbol string, limit int) ([]liquidity.TradingSignal, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, symbol, direction, score, grade, entry_price, stop_loss, take_profit, risk_reward,
		       session, sweep_id, structure_id, reasoning, candle_time, created_at
		FROM signals
		WHERE (? = '' OR symbol = ?)
		ORDER BY created_at DESC
		LIMIT ?`, symbol, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []liquidity.TradingSignal
	for rows.Next() {
		var (
			s                       liquidity.TradingSignal
			direction, session      string
			grade, sweep, structure sql.NullString
		)
		if err := rows.Scan(
			&s.ID, &s.Symbol, &direction, &s.Score.Total, &grade, &s.Entry, &s.StopLoss,
			&s.TakeProfit, &s.RiskReward, &session, &sweep, &structure, &s.Reasoning,
			&s.CandleTime, &s.CreatedAt,
		); err != nil {
			return nil, err
		}
		s.Direction = liquidity.SignalDirection(direction)
		s.Session = liquidity.Session(session)
		s.Score.Grade = grade.String
		s.SweepID = sweep.String
		s.StructureID = structure.String
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListRuns returns the newest runs of symbol first
func (j *SQLiteJournal) ListRuns(ctx context.Context, symbol string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, symbol, ran_at, candles, pools, sweeps, structures, has_valid_setup,
		       signal_id, session, threshold, blocking_reasons
		FROM runs
		WHERE symbol = ?
		ORDER BY ran_at DESC, id DESC
		LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			r       RunRecord
			reasons string
		)
		if err := rows.Scan(
			&r.ID, &r.Symbol, &r.RanAt, &r.Candles, &r.Pools, &r.Sweeps, &r.Structures,
			&r.HasValidSetup, &r.SignalID, &r.Session, &r.Threshold, &reasons,
		); err != nil {
			return nil, err
		}
		if reasons != "" {
			r.BlockingReasons = strings.Split(reasons, reasonSeparator)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
