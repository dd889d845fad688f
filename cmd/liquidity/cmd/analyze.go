package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"liquidity-hunter/internal/analysis"
	"liquidity-hunter/internal/engine"
	"liquidity-hunter/internal/journal"
	"liquidity-hunter/internal/liquidity"
	"liquidity-hunter/internal/logging"
	"liquidity-hunter/internal/marketdata"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a CSV file of candles",
	Long: `Analyze runs the engine over a CSV of candles (time,open,high,low,close,volume).

By default the whole file is analyzed once with the clock set to the last
candle. With --replay the candles are fed one at a time, the way a live feed
would deliver them, and every signal along the way is reported.

Examples:
  liquidity analyze -f data/BTCUSDT.csv
  liquidity analyze -f data/BTCUSDT.csv --htf 4h --replay --journal replay.db`,
	RunE: runAnalyze,
}

var (
	anFile    string
	anSymbol  string
	anHTF     string
	anAt      string
	anReplay  bool
	anJSON    bool
	anJournal string
)

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVarP(&anFile, "file", "f", "", "path to candle CSV (required)")
	analyzeCmd.Flags().StringVarP(&anSymbol, "symbol", "s", "", "symbol name (default: file name)")
	analyzeCmd.Flags().StringVar(&anHTF, "htf", "", "resample to this timeframe for HTF pools (e.g. 4h)")
	analyzeCmd.Flags().StringVar(&anAt, "at", "", "analysis time, RFC3339 or unix (default: last candle)")
	analyzeCmd.Flags().BoolVar(&anReplay, "replay", false, "feed candles one at a time")
	analyzeCmd.Flags().BoolVar(&anJSON, "json", false, "print results as JSON")
	analyzeCmd.Flags().StringVar(&anJournal, "journal", "", "record runs and signals to this SQLite file")

	analyzeCmd.MarkFlagRequired("file")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	candles, err := marketdata.LoadCSV(anFile)
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		return fmt.Errorf("%s: no candles", anFile)
	}

	symbol := anSymbol
	if symbol == "" {
		symbol = strings.TrimSuffix(filepath.Base(anFile), filepath.Ext(anFile))
	}
	symbol = strings.ToUpper(symbol)

	var j *journal.SQLiteJournal
	if anJournal != "" {
		if j, err = journal.NewSQLite(anJournal); err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer j.Close()
	}

	var htf analysis.Timeframe
	if anHTF != "" {
		if htf, err = analysis.ParseTimeframe(anHTF); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if anReplay {
		return replay(cmd.Context(), out, symbol, candles, htf, j)
	}

	at := candles[len(candles)-1].Time
	if anAt != "" {
		if at, err = marketdata.ParseTime(anAt); err != nil {
			return fmt.Errorf("--at: %w", err)
		}
	}

	eng, err := engine.New(symbol, cfg.LiquidityConfig,
		engine.WithClock(func() time.Time { return at }),
		engine.WithLogger(logging.AnalysisContext(symbol, len(candles))),
	)
	if err != nil {
		return err
	}
	if htf != "" {
		eng.SetHTFPools(analysis.HTFPools(candles, htf, eng.Config()))
	}

	result := eng.Analyze(candles, nil)
	if err := recordRun(cmd.Context(), j, result, len(candles), at); err != nil {
		return err
	}

	if anJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	printResult(out, result)
	return nil
}

// replay feeds a growing window of candles, with the clock on the newest one
func replay(ctx context.Context, out io.Writer, symbol string, candles []liquidity.Candle, htf analysis.Timeframe, j *journal.SQLiteJournal) error {
	var now time.Time
	eng, err := engine.New(symbol, cfg.LiquidityConfig, engine.WithClock(func() time.Time { return now }))
	if err != nil {
		return err
	}

	var signals []liquidity.TradingSignal
	for i := eng.Config().MinCandles; i <= len(candles); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		window := candles[:i]
		now = window[len(window)-1].Time
		if htf != "" {
			eng.SetHTFPools(analysis.HTFPools(window, htf, eng.Config()))
		}

		result := eng.Analyze(window, nil)
		if err := recordRun(ctx, j, result, len(window), now); err != nil {
			return err
		}
		if result.Signal != nil {
			signals = append(signals, *result.Signal)
		}
	}

	if anJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(signals)
	}

	stats := eng.Store().Statistics()
	fmt.Fprintf(out, "Replay of %s complete\n", symbol)
	fmt.Fprintf(out, "  Candles:    %d\n", len(candles))
	fmt.Fprintf(out, "  Pools:      %d (%d swept)\n", stats.TotalPools, stats.SweptPools)
	fmt.Fprintf(out, "  Sweeps:     %d\n", stats.TotalSweeps)
	fmt.Fprintf(out, "  Structures: %d (%d CHOCH, %d BOS)\n", stats.TotalStructures, stats.CHOCHCount, stats.BOSCount)
	fmt.Fprintf(out, "  Signals:    %d\n", len(signals))
	for _, s := range signals {
		printSignal(out, s)
	}
	return nil
}

func recordRun(ctx context.Context, j *journal.SQLiteJournal, result liquidity.AnalysisResult, candles int, at time.Time) error {
	if j == nil {
		return nil
	}
	if _, err := j.RecordRun(ctx, journal.NewRunRecord(result, candles, at)); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	if result.Signal != nil {
		if err := j.RecordSignal(ctx, *result.Signal); err != nil {
			return fmt.Errorf("journal: %w", err)
		}
	}
	return nil
}

func printResult(out io.Writer, r liquidity.AnalysisResult) {
	fmt.Fprintf(out, "%s  session=%s  threshold=%.1f\n", r.Symbol, r.Session, r.Threshold)
	fmt.Fprintf(out, "  Pools:      %d\n", len(r.Pools))
	fmt.Fprintf(out, "  Sweeps:     %d\n", len(r.Sweeps))
	fmt.Fprintf(out, "  Structures: %d\n", len(r.Structures))
	if r.Signal != nil {
		printSignal(out, *r.Signal)
		return
	}
	fmt.Fprintln(out, "  No valid setup:")
	for _, reason := range r.BlockingReasons {
		fmt.Fprintf(out, "    - %s\n", reason)
	}
}

func printSignal(out io.Writer, s liquidity.TradingSignal) {
	fmt.Fprintf(out, "  %s %s  score=%.1f (%s)  entry=%.4f  sl=%.4f  tp=%.4f  rr=%.2f\n",
		s.CandleTime.Format(time.RFC3339), strings.ToUpper(string(s.Direction)),
		s.Score.Total, s.Score.Grade, s.Entry, s.StopLoss, s.TakeProfit, s.RiskReward)
}

// writeJSONFile is shared by the commands that dump state to disk
func writeJSONFile(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
