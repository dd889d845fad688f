package engine

import (
	"fmt"
	"sort"
	"sync"

	"liquidity-hunter/internal/liquidity"
)

// Registry holds one Engine per symbol and serializes every call per symbol,
// so callers on different goroutines never share a writer. Different symbols
// proceed in parallel.
type Registry struct {
	mu      sync.Mutex
	cfg     liquidity.LiquidityConfig
	opts    []Option
	entries map[string]*entry
}

type entry struct {
	mu     sync.Mutex
	engine *Engine
}

// NewRegistry validates cfg once; opts are applied to every engine it creates
func NewRegistry(cfg liquidity.LiquidityConfig, opts ...Option) (*Registry, error) {
	if res := liquidity.ValidateConfig(cfg); !res.IsValid {
		return nil, fmt.Errorf("engine: invalid configuration: %w", res.Err())
	}
	return &Registry{
		cfg:     liquidity.LoadConfig(&cfg),
		opts:    opts,
		entries: make(map[string]*entry),
	}, nil
}

func (r *Registry) entry(symbol string) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if en, ok := r.entries[symbol]; ok {
		return en, nil
	}
	e, err := New(symbol, r.cfg, r.opts...)
	if err != nil {
		return nil, err
	}
	en := &entry{engine: e}
	r.entries[symbol] = en
	return en, nil
}

// Analyze runs the engine of symbol, creating it on first use
func (r *Registry) Analyze(symbol string, candles []liquidity.Candle, rsi []float64) (liquidity.AnalysisResult, error) {
	var result liquidity.AnalysisResult
	err := r.With(symbol, func(e *Engine) error {
		result = e.Analyze(candles, rsi)
		return nil
	})
	return result, err
}

// With runs fn with exclusive access to the engine of symbol
func (r *Registry) With(symbol string, fn func(*Engine) error) error {
	en, err := r.entry(symbol)
	if err != nil {
		return err
	}
	en.mu.Lock()
	defer en.mu.Unlock()
	return fn(en.engine)
}

// Has reports whether an engine exists for symbol
func (r *Registry) Has(symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[symbol]
	return ok
}

// Symbols lists the symbols with an engine, sorted
func (r *Registry) Symbols() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	symbols := make([]string, 0, len(r.entries))
	for s := range r.entries {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// Remove drops the engine of symbol and its state
func (r *Registry) Remove(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, symbol)
}
