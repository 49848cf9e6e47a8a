package resilience

import (
	"slices"
	"sort"
	"sync"
	"time"
)

// RetryState is the recovery bookkeeping of one request.
type RetryState struct {
	RequestID        string        `json:"request_id"`
	Attempt          int           `json:"attempt"`
	LastErrorKind    string        `json:"last_error_kind,omitempty"`
	LastError        string        `json:"last_error,omitempty"`
	NextBackoff      time.Duration `json:"next_backoff,omitempty"`
	RemediationsUsed int           `json:"remediations_used,omitempty"`
	SafePayloadUsed  bool          `json:"safe_payload_used,omitempty"`
	ProvidersTried   []string      `json:"providers_tried,omitempty"`
	Status           Status        `json:"status,omitempty"` // empty while in flight
}

func (s RetryState) clone() RetryState {
	s.ProvidersTried = slices.Clone(s.ProvidersTried)
	return s
}

// Tracker keeps the latest RetryState of every request in a run.
// It is thread-safe and can be used concurrently.
type Tracker struct {
	mu     sync.RWMutex
	states map[string]RetryState
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		states: make(map[string]RetryState),
	}
}

// Record stores a copy of state, replacing any earlier state for the request.
func (t *Tracker) Record(state RetryState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[state.RequestID] = state.clone()
}

// State returns the state recorded for a request.
func (t *Tracker) State(requestID string) (RetryState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.states[requestID]
	return s.clone(), ok
}

// ByStatus returns the sorted IDs of requests that finished with status.
func (t *Tracker) ByStatus(status Status) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var ids []string
	for id, s := range t.states {
		if s.Status == status {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// InFlight returns the sorted IDs of requests without a terminal status.
func (t *Tracker) InFlight() []string {
	return t.ByStatus("")
}

// States returns a copy of every recorded state.
// This is useful for serialization/persistence.
func (t *Tracker) States() map[string]RetryState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]RetryState, len(t.states))
	for k, v := range t.states {
		out[k] = v.clone()
	}
	return out
}

// Load replaces the tracked states, e.g. when restoring a persisted run.
func (t *Tracker) Load(states map[string]RetryState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.states = make(map[string]RetryState, len(states))
	for k, v := range states {
		t.states[k] = v.clone()
	}
}

// Reset forgets every state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states = make(map[string]RetryState)
}
