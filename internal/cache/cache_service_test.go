package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidity-hunter/config"
	"liquidity-hunter/internal/analysis"
	"liquidity-hunter/internal/liquidity"
	"liquidity-hunter/internal/store"
)

func unreachableClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
}

func TestNewSnapshotCache_RequiresEnabled(t *testing.T) {
	_, err := NewSnapshotCache(config.RedisConfig{Enabled: false})
	assert.Error(t, err)
}

func TestSnapshotCache_DegradesWhenRedisIsDown(t *testing.T) {
	cs, err := NewSnapshotCache(config.RedisConfig{Enabled: true, Address: "127.0.0.1:1"}, WithClient(unreachableClient()))
	require.NoError(t, err)
	defer cs.Close()

	assert.False(t, cs.IsHealthy())
	ctx := context.Background()
	assert.ErrorIs(t, cs.Save(ctx, "BTCUSDT", []byte("{}"), time.Minute), ErrCacheUnavailable)
	_, err = cs.Load(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, ErrCacheUnavailable)

	stats := cs.GetStats()
	assert.False(t, stats.Healthy)
	assert.Contains(t, stats.Breaker.TripReason, "initial connection failed")
}

func TestTTLFor(t *testing.T) {
	assert.Equal(t, time.Hour, TTLFor(time.Hour, analysis.TF15m))
	assert.Equal(t, 5*time.Minute, TTLFor(0, analysis.TF15m))
	assert.Equal(t, DefaultStateTTL, TTLFor(0, analysis.Timeframe("7m")))
	assert.Equal(t, "liquidity:BTCUSDT:state", StateKey("BTCUSDT"))
}

// Runs against a real server when REDIS_TEST_ADDR is set.
func TestSnapshotCache_StoreRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	cs, err := NewSnapshotCache(config.RedisConfig{Enabled: true, Address: addr, PoolSize: 2})
	require.NoError(t, err)
	defer cs.Close()
	require.True(t, cs.IsHealthy())

	ctx := context.Background()
	symbol := "TEST" + time.Now().Format("150405.000")
	defer cs.Delete(ctx, symbol)

	_, err = cs.Load(ctx, symbol)
	assert.ErrorIs(t, err, ErrCacheMiss)

	now := time.Date(2026, 1, 8, 12, 0, 0, 0, time.UTC)
	src := store.New(symbol, liquidity.DefaultConfig(), store.WithClock(func() time.Time { return now }))
	src.AddPools([]liquidity.Pool{{
		ID: "p1", Type: liquidity.PoolEqualHighs, Price: 100, FormedAt: now, Status: liquidity.PoolActive,
	}})
	require.NoError(t, cs.SaveStore(ctx, src, time.Minute))

	dst := store.New(symbol, liquidity.DefaultConfig())
	require.NoError(t, cs.RestoreStore(ctx, dst))
	require.Len(t, dst.Pools(), 1)
	assert.Equal(t, "p1", dst.Pools()[0].ID)
}
