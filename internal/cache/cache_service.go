// Package cache keeps store snapshots in Redis so a restarted process can
// resume from the last analysed state.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"liquidity-hunter/config"
	"liquidity-hunter/internal/analysis"
	"liquidity-hunter/internal/circuit"
	"liquidity-hunter/internal/liquidity"
	"liquidity-hunter/internal/logging"
	"liquidity-hunter/internal/store"
)

var (
	// ErrCacheUnavailable is returned while the circuit breaker is open
	ErrCacheUnavailable = errors.New("redis unavailable (circuit breaker open)")
	// ErrCacheMiss is returned when no snapshot exists for a symbol
	ErrCacheMiss = errors.New("cache miss")
)

// Key prefixes for different cache types
const (
	PrefixState   = "liquidity:%s:state"
	ChannelSignal = "liquidity:signals"
)

// DefaultStateTTL applies when neither the config nor a timeframe gives one
const DefaultStateTTL = 24 * time.Hour

// SnapshotCache provides Redis-based snapshot storage with graceful degradation.
// When Redis is unavailable, operations return ErrCacheUnavailable and callers
// carry on with the in-memory store.
type SnapshotCache struct {
	client  *redis.Client
	config  config.RedisConfig
	breaker *circuit.Breaker
}

// Option customises a SnapshotCache
type Option func(*SnapshotCache)

// WithBreaker replaces the default breaker (3 failures, 30s cooldown)
func WithBreaker(b *circuit.Breaker) Option {
	return func(cs *SnapshotCache) { cs.breaker = b }
}

// WithClient uses an existing client instead of dialing cfg.Address
func WithClient(client *redis.Client) Option {
	return func(cs *SnapshotCache) { cs.client = client }
}

// NewSnapshotCache creates a SnapshotCache with the provided configuration.
// A failed initial ping is not an error: the service starts degraded and
// retries after the breaker cooldown.
func NewSnapshotCache(cfg config.RedisConfig, opts ...Option) (*SnapshotCache, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}

	cs := &SnapshotCache{
		config: cfg,
		breaker: circuit.New(circuit.Config{
			Enabled:                true,
			MaxConsecutiveFailures: 3,
			Cooldown:               30 * time.Second,
		}),
	}
	for _, opt := range opts {
		opt(cs)
	}
	if cs.client == nil {
		cs.client = redis.NewClient(&redis.Options{
			Addr:         cfg.Address,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: 2,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
	}

	cs.breaker.OnTrip(func(reason string) {
		logging.CacheContext("breaker", cfg.Address).Warn("Circuit breaker OPEN: Redis marked unhealthy", "reason", reason)
	})
	cs.breaker.OnReset(func() {
		logging.CacheContext("breaker", cfg.Address).Info("Circuit breaker CLOSED: Redis recovered")
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cs.client.Ping(ctx).Err(); err != nil {
		cs.breaker.ForceOpen(fmt.Sprintf("initial connection failed: %v", err))
		return cs, nil
	}

	logging.CacheContext("connect", cfg.Address).Info("Redis connected")
	return cs, nil
}

// StateKey generates the cache key of a symbol's store snapshot
func StateKey(symbol string) string {
	return fmt.Sprintf(PrefixState, symbol)
}

// TTLFor picks the snapshot TTL: the configured one, else one derived from
// the candle timeframe, else DefaultStateTTL
func TTLFor(configured time.Duration, tf analysis.Timeframe) time.Duration {
	if configured > 0 {
		return configured
	}
	if tf.Duration() == 0 {
		return DefaultStateTTL
	}
	return tf.CacheTTL()
}

// IsHealthy returns whether Redis is currently considered available
func (cs *SnapshotCache) IsHealthy() bool {
	return cs.breaker.State() == circuit.StateClosed
}

func (cs *SnapshotCache) allow() error {
	if ok, _ := cs.breaker.Allow(); !ok {
		return ErrCacheUnavailable
	}
	return nil
}

// Save stores raw snapshot bytes for symbol
func (cs *SnapshotCache) Save(ctx context.Context, symbol string, data []byte, ttl time.Duration) error {
	if err := cs.allow(); err != nil {
		return err
	}

	key := StateKey(symbol)
	if err := cs.client.Set(ctx, key, data, ttl).Err(); err != nil {
		cs.breaker.RecordFailure(err)
		return fmt.Errorf("redis set failed: %w", err)
	}

	cs.breaker.RecordSuccess()
	logging.CacheContext("set", key).Debug("Snapshot saved", "bytes", len(data), "ttl", ttl.String())
	return nil
}

// Load returns the snapshot bytes of symbol, or ErrCacheMiss
func (cs *SnapshotCache) Load(ctx context.Context, symbol string) ([]byte, error) {
	if err := cs.allow(); err != nil {
		return nil, err
	}

	key := StateKey(symbol)
	data, err := cs.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			cs.breaker.RecordSuccess()
			return nil, ErrCacheMiss
		}
		cs.breaker.RecordFailure(err)
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	cs.breaker.RecordSuccess()
	return data, nil
}

// Delete removes the snapshot of symbol
func (cs *SnapshotCache) Delete(ctx context.Context, symbol string) error {
	if err := cs.allow(); err != nil {
		return err
	}

	if err := cs.client.Del(ctx, StateKey(symbol)).Err(); err != nil {
		cs.breaker.RecordFailure(err)
		return fmt.Errorf("redis delete failed: %w", err)
	}

	cs.breaker.RecordSuccess()
	return nil
}

// SaveStore exports st and stores it under its symbol
func (cs *SnapshotCache) SaveStore(ctx context.Context, st *store.Store, ttl time.Duration) error {
	data, err := st.ExportJSON()
	if err != nil {
		return fmt.Errorf("failed to export store: %w", err)
	}
	return cs.Save(ctx, st.Symbol(), data, ttl)
}

// RestoreStore replaces the contents of st with its cached snapshot
func (cs *SnapshotCache) RestoreStore(ctx context.Context, st *store.Store) error {
	data, err := cs.Load(ctx, st.Symbol())
	if err != nil {
		return err
	}
	if err := st.ImportJSON(data); err != nil {
		return fmt.Errorf("failed to import cached snapshot: %w", err)
	}
	return nil
}

// PublishSignal announces a new signal on ChannelSignal
func (cs *SnapshotCache) PublishSignal(ctx context.Context, signal liquidity.TradingSignal) error {
	if err := cs.allow(); err != nil {
		return err
	}

	payload, err := json.Marshal(signal)
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}
	if err := cs.client.Publish(ctx, ChannelSignal, payload).Err(); err != nil {
		cs.breaker.RecordFailure(err)
		return fmt.Errorf("redis publish failed: %w", err)
	}

	cs.breaker.RecordSuccess()
	return nil
}

// Ping checks Redis connectivity
func (cs *SnapshotCache) Ping(ctx context.Context) error {
	if err := cs.client.Ping(ctx).Err(); err != nil {
		cs.breaker.RecordFailure(err)
		return err
	}
	cs.breaker.RecordSuccess()
	return nil
}

// Close closes the Redis connection
func (cs *SnapshotCache) Close() error {
	if cs.client != nil {
		return cs.client.Close()
	}
	return nil
}

// Stats returns cache statistics for monitoring.
type Stats struct {
	Healthy bool          `json:"healthy"`
	Breaker circuit.Stats `json:"breaker"`
	Address string        `json:"address"`
}

// GetStats returns current cache statistics.
func (cs *SnapshotCache) GetStats() Stats {
	return Stats{
		Healthy: cs.IsHealthy(),
		Breaker: cs.breaker.Stats(),
		Address: cs.config.Address,
	}
}
