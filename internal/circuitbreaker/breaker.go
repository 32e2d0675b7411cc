// Package circuitbreaker stops the aggregator from calling providers that keep failing,
// so a dead upstream costs one timeout per cooldown period instead of one per request.
package circuitbreaker

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrOpen is returned by Allow while the circuit is open.
var ErrOpen = errors.New("circuit breaker open")

// State represents the current state of the circuit breaker
type State int

// Circuit breaker states
const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Tripped, calls are skipped
	StateHalfOpen              // Testing if the provider has recovered
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Thresholds defines the limits that will trigger the circuit breaker
type Thresholds struct {
	// Consecutive failures that open the circuit
	FailureThreshold int `json:"failure_threshold"`
}

// CircuitBreaker tracks the health of a single provider.
type CircuitBreaker struct {
	name       string
	thresholds Thresholds

	state    State
	lastTrip time.Time

	// Duration before a half-open probe is allowed
	resetDelay time.Duration

	mu sync.RWMutex

	failures     int
	lastFailure  string
	successCount int

	// Successful calls in HalfOpen needed to close the circuit
	successThreshold int

	onTripCallback func(name, reason string)
}

// New creates a new CircuitBreaker with the provided thresholds
func New(name string, t Thresholds) *CircuitBreaker {
	if t.FailureThreshold <= 0 {
		t.FailureThreshold = 5
	}
	return &CircuitBreaker{
		name:             name,
		thresholds:       t,
		state:            StateClosed,
		resetDelay:       30 * time.Second,
		successThreshold: 1,
	}
}

// WithResetDelay sets a custom reset delay and returns the circuit breaker
func (cb *CircuitBreaker) WithResetDelay(delay time.Duration) *CircuitBreaker {
	cb.resetDelay = delay
	return cb
}

// WithSuccessThreshold sets the number of successful calls needed to close the circuit
func (cb *CircuitBreaker) WithSuccessThreshold(threshold int) *CircuitBreaker {
	if threshold > 0 {
		cb.successThreshold = threshold
	}
	return cb
}

// WithTripCallback sets a callback function that is called when the circuit trips
func (cb *CircuitBreaker) WithTripCallback(callback func(name, reason string)) *CircuitBreaker {
	cb.onTripCallback = callback
	return cb
}

// Name returns the provider this breaker guards.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Allow reports whether a call may proceed. An open circuit moves to half-open once
// the reset delay has elapsed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.RLock()
	state := cb.state
	lastTripTime := cb.lastTrip
	cb.mu.RUnlock()

	if state != StateOpen {
		return nil
	}
	if time.Since(lastTripTime) > cb.resetDelay {
		cb.transitionToHalfOpen()
		return nil
	}
	return ErrOpen
}

// RecordSuccess resets the failure streak and may close a half-open circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = StateClosed
			cb.successCount = 0
			logrus.WithField("provider", cb.name).Info("Circuit breaker closed: provider has recovered")
		}
	}
}

// RecordFailure counts a failed call. A failure while half-open re-opens immediately.
func (cb *CircuitBreaker) RecordFailure(reason string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = reason

	switch cb.state {
	case StateHalfOpen:
		cb.trip(fmt.Sprintf("probe failed: %s", reason))
	case StateClosed:
		if cb.failures >= cb.thresholds.FailureThreshold {
			cb.trip(fmt.Sprintf("%d consecutive failures, last: %s", cb.failures, reason))
		}
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset forcibly resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.successCount = 0
	logrus.WithField("provider", cb.name).Info("Circuit breaker manually reset to closed state")
}

// Snapshot is a point-in-time view for status endpoints.
type Snapshot struct {
	Provider            string    `json:"provider"`
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailure         string    `json:"last_failure,omitempty"`
	LastTrip            time.Time `json:"last_trip,omitempty"`
}

// Snapshot returns the breaker's current counters.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return Snapshot{
		Provider:            cb.name,
		State:               cb.state,
		ConsecutiveFailures: cb.failures,
		LastFailure:         cb.lastFailure,
		LastTrip:            cb.lastTrip,
	}
}

func (cb *CircuitBreaker) transitionToHalfOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen {
		cb.state = StateHalfOpen
		cb.successCount = 0
		logrus.WithField("provider", cb.name).Info("Circuit breaker half-open: probing provider")
	}
}

// trip must be called with mu held.
func (cb *CircuitBreaker) trip(reason string) {
	cb.state = StateOpen
	cb.lastTrip = time.Now()
	cb.successCount = 0
	logrus.WithField("provider", cb.name).Warnf("Circuit breaker tripped: %s", reason)

	if cb.onTripCallback != nil {
		go cb.onTripCallback(cb.name, reason)
	}
}

// Set holds one breaker per provider. The map is built once and never mutated;
// each breaker synchronizes itself.
type Set struct {
	breakers map[string]*CircuitBreaker
}

// NewSet builds a breaker for every provider name using newBreaker.
func NewSet(names []string, newBreaker func(name string) *CircuitBreaker) *Set {
	m := make(map[string]*CircuitBreaker, len(names))
	for _, n := range names {
		m[n] = newBreaker(n)
	}
	return &Set{breakers: m}
}

// Get returns the breaker for name, or nil when the provider is not guarded.
func (s *Set) Get(name string) *CircuitBreaker {
	if s == nil {
		return nil
	}
	return s.breakers[name]
}

// Snapshots returns every breaker's state ordered by provider name.
func (s *Set) Snapshots() []Snapshot {
	if s == nil {
		return nil
	}
	out := make([]Snapshot, 0, len(s.breakers))
	for _, cb := range s.breakers {
		out = append(out, cb.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// ResetAll closes every circuit.
func (s *Set) ResetAll() {
	if s == nil {
		return
	}
	for _, cb := range s.breakers {
		cb.Reset()
	}
}
