package marketdata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"liquidity-hunter/internal/liquidity"
)

// ErrUnknownSymbol is returned by a source that has no data for a symbol
var ErrUnknownSymbol = errors.New("unknown symbol")

// CandleSource supplies the candle history of an instrument, oldest first
type CandleSource interface {
	Candles(ctx context.Context, symbol string) ([]liquidity.Candle, error)
}

// DirectorySource reads <Dir>/<SYMBOL>.csv on every call, so an external
// feeder can keep appending to the files between polls
type DirectorySource struct {
	Dir   string
	Limit int // keep only the newest Limit candles, zero keeps all
}

func (s DirectorySource) Path(symbol string) string {
	return filepath.Join(s.Dir, strings.ToUpper(symbol)+".csv")
}

func (s DirectorySource) Candles(ctx context.Context, symbol string) ([]liquidity.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	candles, err := LoadCSV(s.Path(symbol))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
		}
		return nil, err
	}
	if s.Limit > 0 && len(candles) > s.Limit {
		candles = candles[len(candles)-s.Limit:]
	}
	return candles, nil
}

// Symbols lists the instruments that have a file in Dir
func (s DirectorySource) Symbols() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.Dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(matches))
	for _, m := range matches {
		symbols = append(symbols, strings.TrimSuffix(filepath.Base(m), ".csv"))
	}
	return symbols, nil
}

// StaticSource serves candles held in memory
type StaticSource struct {
	mu      sync.RWMutex
	candles map[string][]liquidity.Candle
}

func NewStaticSource() *StaticSource {
	return &StaticSource{candles: make(map[string][]liquidity.Candle)}
}

// Set replaces the history of symbol
func (s *StaticSource) Set(symbol string, candles []liquidity.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candles[symbol] = append([]liquidity.Candle(nil), candles...)
}

// Append adds candles to the history of symbol
func (s *StaticSource) Append(symbol string, candles ...liquidity.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candles[symbol] = append(s.candles[symbol], candles...)
}

func (s *StaticSource) Candles(ctx context.Context, symbol string) ([]liquidity.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	candles, ok := s.candles[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return append([]liquidity.Candle(nil), candles...), nil
}
