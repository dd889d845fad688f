package circuit

import (
	"fmt"
	"sync"
	"time"
)

// BreakerState represents the circuit breaker state
type BreakerState string

const (
	StateClosed   BreakerState = "closed"    // Normal operation
	StateOpen     BreakerState = "open"      // Calls rejected
	StateHalfOpen BreakerState = "half_open" // Testing recovery
)

// Config holds circuit breaker configuration
type Config struct {
	Enabled                bool          `json:"enabled"`
	MaxConsecutiveFailures int           `json:"max_consecutive_failures"` // Failures in a row before tripping
	Cooldown               time.Duration `json:"cooldown"`                 // Time the breaker stays open
}

// DefaultConfig returns safe defaults
func DefaultConfig() Config {
	return Config{
		Enabled:                true,
		MaxConsecutiveFailures: 5,
		Cooldown:               5 * time.Minute,
	}
}

// Stats is a snapshot of a breaker for monitoring
type Stats struct {
	State               BreakerState `json:"state"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	TotalFailures       int          `json:"total_failures"`
	TripReason          string       `json:"trip_reason,omitempty"`
	LastTripTime        time.Time    `json:"last_trip_time,omitempty"`
}

// Breaker stops calling a failing dependency for a cooldown period. After the
// cooldown one trial call is let through; its outcome closes or reopens the
// breaker.
type Breaker struct {
	config              Config
	state               BreakerState
	consecutiveFailures int
	totalFailures       int
	lastTripTime        time.Time
	tripReason          string
	trialInFlight       bool
	mu                  sync.Mutex
	onTrip              func(reason string)
	onReset             func()
	now                 func() time.Time
}

// New creates a closed breaker. A zero MaxConsecutiveFailures or Cooldown
// takes the default.
func New(config Config) *Breaker {
	defaults := DefaultConfig()
	if config.MaxConsecutiveFailures <= 0 {
		config.MaxConsecutiveFailures = defaults.MaxConsecutiveFailures
	}
	if config.Cooldown <= 0 {
		config.Cooldown = defaults.Cooldown
	}
	return &Breaker{
		config: config,
		state:  StateClosed,
		now:    time.Now,
	}
}

// SetClock replaces the time source
func (cb *Breaker) SetClock(now func() time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.now = now
}

// OnTrip sets callback for when breaker trips
func (cb *Breaker) OnTrip(handler func(reason string)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onTrip = handler
}

// OnReset sets callback for when breaker closes again
func (cb *Breaker) OnReset(handler func()) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onReset = handler
}

// Allow reports whether a call may proceed and, when not, why
func (cb *Breaker) Allow() (bool, string) {
	if !cb.config.Enabled {
		return true, ""
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true, ""
	case StateHalfOpen:
		if cb.trialInFlight {
			return false, "circuit breaker half-open, trial call in progress"
		}
		cb.trialInFlight = true
		return true, ""
	}

	elapsed := cb.now().Sub(cb.lastTripTime)
	if elapsed < cb.config.Cooldown {
		remaining := cb.config.Cooldown - elapsed
		return false, fmt.Sprintf("circuit breaker open, cooldown remaining: %v (reason: %s)",
			remaining.Round(time.Second), cb.tripReason)
	}

	// Cooldown passed, let one trial call through
	cb.state = StateHalfOpen
	cb.trialInFlight = true
	return true, ""
}

// RecordSuccess resets the failure counter and closes a half-open breaker
func (cb *Breaker) RecordSuccess() {
	cb.mu.Lock()
	recovered := cb.state != StateClosed
	cb.state = StateClosed
	cb.trialInFlight = false
	cb.consecutiveFailures = 0
	cb.tripReason = ""
	onReset := cb.onReset
	cb.mu.Unlock()

	if recovered && onReset != nil {
		onReset()
	}
}

// RecordFailure counts a failed call and trips the breaker when the limit is
// reached or when the trial call of a half-open breaker failed
func (cb *Breaker) RecordFailure(err error) {
	if !cb.config.Enabled {
		return
	}

	cb.mu.Lock()
	cb.consecutiveFailures++
	cb.totalFailures++

	var reason string
	switch {
	case cb.state == StateHalfOpen:
		reason = fmt.Sprintf("trial call failed: %v", err)
	case cb.state == StateClosed && cb.consecutiveFailures >= cb.config.MaxConsecutiveFailures:
		reason = fmt.Sprintf("consecutive failures: %d, last: %v", cb.consecutiveFailures, err)
	}

	var onTrip func(string)
	if reason != "" {
		cb.trip(reason)
		onTrip = cb.onTrip
	}
	cb.mu.Unlock()

	if onTrip != nil {
		onTrip(reason)
	}
}

// trip opens the circuit breaker
func (cb *Breaker) trip(reason string) {
	cb.state = StateOpen
	cb.trialInFlight = false
	cb.lastTripTime = cb.now()
	cb.tripReason = reason
}

// ForceOpen trips the breaker regardless of the failure count
func (cb *Breaker) ForceOpen(reason string) {
	cb.mu.Lock()
	cb.trip(reason)
	onTrip := cb.onTrip
	cb.mu.Unlock()

	if onTrip != nil {
		onTrip(reason)
	}
}

// ForceReset manually closes the circuit breaker
func (cb *Breaker) ForceReset() {
	cb.RecordSuccess()
}

// State returns current breaker state
func (cb *Breaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns current statistics
func (cb *Breaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Stats{
		State:               cb.state,
		ConsecutiveFailures: cb.consecutiveFailures,
		TotalFailures:       cb.totalFailures,
		TripReason:          cb.tripReason,
		LastTripTime:        cb.lastTripTime,
	}
}

// IsEnabled returns if circuit breaker is enabled
func (cb *Breaker) IsEnabled() bool {
	return cb.config.Enabled
}
