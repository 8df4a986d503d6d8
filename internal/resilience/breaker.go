// Package resilience provides reliability patterns for external service calls.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is open and rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Settings configures a breaker. Zero values are replaced with defaults.
type Settings struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	HalfOpenMaxTests int
}

// DefaultSettings returns the stock breaker configuration.
func DefaultSettings() Settings {
	return Settings{FailureThreshold: 5, ResetTimeout: 60 * time.Second, HalfOpenMaxTests: 1}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.FailureThreshold < 1 {
		s.FailureThreshold = d.FailureThreshold
	}
	if s.ResetTimeout <= 0 {
		s.ResetTimeout = d.ResetTimeout
	}
	if s.HalfOpenMaxTests < 1 {
		s.HalfOpenMaxTests = d.HalfOpenMaxTests
	}
	return s
}

// Snapshot is the serializable view of one breaker.
type Snapshot struct {
	ConnectorID      string     `json:"connector_id"`
	State            State      `json:"state"`
	FailureCount     int        `json:"failure_count"`
	SuccessCount     int        `json:"success_count"`
	FailureThreshold int        `json:"failure_threshold"`
	ResetTimeoutMs   int64      `json:"reset_timeout_ms"`
	HalfOpenMaxTests int        `json:"half_open_max_tests"`
	LastFailureAt    *time.Time `json:"last_failure_at,omitempty"`
	LastSuccessAt    *time.Time `json:"last_success_at,omitempty"`
	OpenedAt         *time.Time `json:"opened_at,omitempty"`
	NextRetryAt      *time.Time `json:"next_retry_at,omitempty"`
}

// Breaker is a per-connector circuit breaker.
//
// Open breakers move to half-open lazily, on the first Allow call at or
// after NextRetryAt; there is no background timer. Every call permitted by
// Allow must be followed by RecordSuccess or RecordFailure.
type Breaker struct {
	mu        sync.Mutex
	id        string
	settings  Settings
	state     State
	failures  int
	successes int
	probes    int // calls admitted in the current half-open window

	lastFailureAt time.Time
	lastSuccessAt time.Time
	openedAt      time.Time
	nextRetryAt   time.Time

	now          func() time.Time // for testing
	onTransition func(Snapshot)
}

// NewBreaker creates a closed breaker for the given connector id.
func NewBreaker(id string, s Settings) *Breaker {
	return &Breaker{
		id:       id,
		settings: s.withDefaults(),
		state:    StateClosed,
		now:      time.Now,
	}
}

// ID returns the connector id the breaker guards.
func (b *Breaker) ID() string { return b.id }

// Allow reports whether a call may proceed, transitioning open to half-open
// once the reset timeout has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	allowed, changed := b.allowLocked()
	snap := b.snapshotLocked()
	b.mu.Unlock()

	if changed {
		b.notify(snap)
	}
	return allowed
}

func (b *Breaker) allowLocked() (allowed, changed bool) {
	switch b.state {
	case StateClosed:
		return true, false
	case StateOpen:
		if b.now().Before(b.nextRetryAt) {
			return false, false
		}
		b.state = StateHalfOpen
		b.successes = 0
		b.probes = 1
		return true, true
	case StateHalfOpen:
		if b.probes < b.settings.HalfOpenMaxTests {
			b.probes++
			return true, false
		}
		return false, false
	}
	return false, false
}

// Available reports whether Allow would currently admit a call, without
// changing state or consuming a half-open probe.
func (b *Breaker) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		return !b.now().Before(b.nextRetryAt)
	case StateHalfOpen:
		return b.probes < b.settings.HalfOpenMaxTests
	}
	return true
}

// RecordSuccess reports a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	b.lastSuccessAt = b.now()
	changed := false
	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.settings.HalfOpenMaxTests {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
			b.probes = 0
			b.openedAt = time.Time{}
			b.nextRetryAt = time.Time{}
			changed = true
		}
	case StateOpen:
		// Late report from a call admitted before the breaker tripped.
	}
	snap := b.snapshotLocked()
	b.mu.Unlock()

	if changed {
		b.notify(snap)
	}
}

// RecordFailure reports a failed call. A failure while half-open re-opens
// the breaker immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	now := b.now()
	b.lastFailureAt = now
	b.failures++
	changed := false
	switch b.state {
	case StateClosed:
		if b.failures >= b.settings.FailureThreshold {
			b.tripLocked(now)
			changed = true
		}
	case StateHalfOpen:
		b.tripLocked(now)
		changed = true
	case StateOpen:
	}
	snap := b.snapshotLocked()
	b.mu.Unlock()

	if changed {
		b.notify(snap)
	}
}

// Release returns a permitted call that ended without an outcome, such as
// one abandoned by its caller. It frees the half-open probe slot and leaves
// counters untouched.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen && b.probes > 0 {
		b.probes--
	}
}

// RecordTimeout reports a permitted call that hit its deadline. While
// closed it counts toward the failure threshold but never trips the
// breaker on its own; the next RecordFailure at or past the threshold
// does. While half-open it frees the probe slot like Release.
func (b *Breaker) RecordTimeout() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFailureAt = b.now()
	switch b.state {
	case StateClosed:
		b.failures++
	case StateHalfOpen:
		if b.probes > 0 {
			b.probes--
		}
	case StateOpen:
	}
}

// tripLocked must be called with b.mu held.
func (b *Breaker) tripLocked(now time.Time) {
	b.state = StateOpen
	b.successes = 0
	b.probes = 0
	b.openedAt = now
	b.nextRetryAt = now.Add(b.settings.ResetTimeout)
}

// Execute runs fn if the breaker allows it and records the outcome.
// Returns ErrCircuitOpen if the call was rejected.
func (b *Breaker) Execute(fn func() error) error {
	if !b.Allow() {
		return ErrCircuitOpen
	}
	if err := fn(); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// Snapshot returns the current breaker state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Breaker) snapshotLocked() Snapshot {
	return Snapshot{
		ConnectorID:      b.id,
		State:            b.state,
		FailureCount:     b.failures,
		SuccessCount:     b.successes,
		FailureThreshold: b.settings.FailureThreshold,
		ResetTimeoutMs:   b.settings.ResetTimeout.Milliseconds(),
		HalfOpenMaxTests: b.settings.HalfOpenMaxTests,
		LastFailureAt:    timePtr(b.lastFailureAt),
		LastSuccessAt:    timePtr(b.lastSuccessAt),
		OpenedAt:         timePtr(b.openedAt),
		NextRetryAt:      timePtr(b.nextRetryAt),
	}
}

// restore overwrites the breaker with a persisted snapshot.
func (b *Breaker) restore(s Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.settings = Settings{
		FailureThreshold: s.FailureThreshold,
		ResetTimeout:     time.Duration(s.ResetTimeoutMs) * time.Millisecond,
		HalfOpenMaxTests: s.HalfOpenMaxTests,
	}.withDefaults()
	b.state = s.State
	b.failures = s.FailureCount
	b.successes = s.SuccessCount
	b.probes = 0
	b.lastFailureAt = timeVal(s.LastFailureAt)
	b.lastSuccessAt = timeVal(s.LastSuccessAt)
	b.openedAt = timeVal(s.OpenedAt)
	b.nextRetryAt = timeVal(s.NextRetryAt)
	// A half-open window does not survive a restart; re-arm it as open.
	if b.state == StateHalfOpen {
		b.state = StateOpen
	}
	if b.state != StateOpen && b.state != StateClosed {
		b.state = StateClosed
	}
}

func (b *Breaker) notify(s Snapshot) {
	if b.onTransition != nil {
		b.onTransition(s)
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeVal(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
