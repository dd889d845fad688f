package circuit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newBreaker(t *testing.T) (*Breaker, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 1, 8, 12, 0, 0, 0, time.UTC)}
	cb := New(Config{Enabled: true, MaxConsecutiveFailures: 3, Cooldown: time.Minute})
	cb.SetClock(clock.now)
	return cb, clock
}

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newBreaker(t)
	var tripped string
	cb.OnTrip(func(reason string) { tripped = reason })

	boom := errors.New("boom")
	cb.RecordFailure(boom)
	cb.RecordFailure(boom)
	ok, _ := cb.Allow()
	assert.True(t, ok)

	cb.RecordFailure(boom)
	assert.Equal(t, StateOpen, cb.State())
	assert.Contains(t, tripped, "consecutive failures: 3")

	ok, reason := cb.Allow()
	assert.False(t, ok)
	assert.Contains(t, reason, "cooldown remaining")
}

func TestBreaker_SuccessResetsCounter(t *testing.T) {
	cb, _ := newBreaker(t)
	boom := errors.New("boom")
	cb.RecordFailure(boom)
	cb.RecordFailure(boom)
	cb.RecordSuccess()
	cb.RecordFailure(boom)

	assert.Equal(t, StateClosed, cb.State())
	stats := cb.Stats()
	assert.Equal(t, 1, stats.ConsecutiveFailures)
	assert.Equal(t, 3, stats.TotalFailures)
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	cb, clock := newBreaker(t)
	resets := 0
	cb.OnReset(func() { resets++ })

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		cb.RecordFailure(boom)
	}
	require.Equal(t, StateOpen, cb.State())

	clock.advance(61 * time.Second)
	ok, _ := cb.Allow()
	require.True(t, ok)
	assert.Equal(t, StateHalfOpen, cb.State())

	// a failed trial reopens immediately
	cb.RecordFailure(boom)
	assert.Equal(t, StateOpen, cb.State())

	clock.advance(61 * time.Second)
	ok, _ = cb.Allow()
	require.True(t, ok)
	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 1, resets)
}

func TestBreaker_Disabled(t *testing.T) {
	cb := New(Config{Enabled: false, MaxConsecutiveFailures: 1})
	cb.RecordFailure(errors.New("boom"))
	ok, _ := cb.Allow()
	assert.True(t, ok)
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_HalfOpenAllowsSingleTrial(t *testing.T) {
	cb, clock := newBreaker(t)
	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		cb.RecordFailure(boom)
	}
	clock.advance(61 * time.Second)

	ok, _ := cb.Allow()
	require.True(t, ok)

	ok, reason := cb.Allow()
	assert.False(t, ok)
	assert.Contains(t, reason, "trial call in progress")
	assert.Equal(t, StateHalfOpen, cb.State())

	cb.RecordSuccess()
	ok, _ = cb.Allow()
	assert.True(t, ok)
	ok, _ = cb.Allow()
	assert.True(t, ok)
}
