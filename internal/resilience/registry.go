package resilience

import (
	"sort"
	"sync"
	"time"
)

// Registry owns one breaker per connector id, creating closed breakers on
// first reference. Safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	breakers     map[string]*Breaker
	settings     Settings
	now          func() time.Time
	onTransition func(Snapshot)
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source for every breaker in the registry.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithTransitionHook registers fn to be called after every state change.
// fn runs outside the breaker lock.
func WithTransitionHook(fn func(Snapshot)) Option {
	return func(r *Registry) { r.onTransition = fn }
}

// NewRegistry creates an empty registry applying s to new breakers.
func NewRegistry(s Settings, opts ...Option) *Registry {
	r := &Registry{
		breakers: make(map[string]*Breaker),
		settings: s.withDefaults(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Get returns the breaker for id, creating it if needed.
func (r *Registry) Get(id string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[id]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[id]; ok {
		return b
	}
	b = NewBreaker(id, r.settings)
	b.now = r.now
	b.onTransition = r.onTransition
	r.breakers[id] = b
	return b
}

// Check reports whether a call to the connector may proceed.
func (r *Registry) Check(id string) bool { return r.Get(id).Allow() }

// Available reports whether a call would be admitted, without side effects.
func (r *Registry) Available(id string) bool { return r.Get(id).Available() }

// RecordSuccess reports a successful call to the connector.
func (r *Registry) RecordSuccess(id string) { r.Get(id).RecordSuccess() }

// RecordFailure reports a failed call to the connector.
func (r *Registry) RecordFailure(id string) { r.Get(id).RecordFailure() }

// Release returns a permitted call that produced no outcome.
func (r *Registry) Release(id string) { r.Get(id).Release() }

// RecordTimeout reports a call that hit its deadline.
func (r *Registry) RecordTimeout(id string) { r.Get(id).RecordTimeout() }

// Status returns the snapshot for id, creating a closed breaker if unknown.
func (r *Registry) Status(id string) Snapshot { return r.Get(id).Snapshot() }

// Reset replaces the breaker for id with a fresh closed one.
func (r *Registry) Reset(id string) Snapshot {
	b := NewBreaker(id, r.settings)
	b.now = r.now
	b.onTransition = r.onTransition

	r.mu.Lock()
	r.breakers[id] = b
	r.mu.Unlock()

	snap := b.Snapshot()
	b.notify(snap)
	return snap
}

// Snapshots returns every known breaker ordered by connector id.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	out := make([]Snapshot, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ConnectorID < out[j].ConnectorID })
	return out
}

// Restore loads persisted snapshots, replacing any in-memory state for the
// same connector ids. Restoring does not fire the transition hook.
func (r *Registry) Restore(snaps []Snapshot) {
	for _, s := range snaps {
		if s.ConnectorID == "" {
			continue
		}
		r.Get(s.ConnectorID).restore(s)
	}
}
