package ledger

import (
	"sync"
	"time"

	"github.com/Iron-Ham/montage/internal/event"
	"github.com/Iron-Ham/montage/internal/logging"
)

// View is the read-only face of a Ledger handed to downstream collaborators.
type View interface {
	// Latest returns the most recent decision for a topic.
	Latest(topicID string) (Decision, bool)
	// All returns every decision in append order.
	All() []Decision
	// History returns every decision for one topic in append order.
	History(topicID string) []Decision
	// Len returns the number of decisions.
	Len() int
}

type entryKey struct {
	topic string
	nanos int64
}

// Ledger is an ordered, append-only record of decisions. Appends are
// serialized internally; any number of readers may run concurrently.
// ledger.appended events reach subscribers in append order. Subscribers may
// read the ledger but must not append to it.
type Ledger struct {
	mu      sync.RWMutex
	entries []Decision
	latest  map[string]int // topic -> index into entries
	keys    map[entryKey]struct{}

	// pubMu is taken before mu is released so events leave in index order.
	pubMu sync.Mutex

	lastStamp time.Time
	clock     func() time.Time
	bus       *event.Bus
	logger    *logging.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the clock used to stamp decisions without a timestamp.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithBus publishes a ledger.appended event for every new decision.
func WithBus(bus *event.Bus) Option {
	return func(l *Ledger) {
		l.bus = bus
	}
}

// WithLogger sets the ledger's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates an empty Ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		latest: make(map[string]int),
		keys:   make(map[entryKey]struct{}),
		clock:  time.Now,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records d. It returns false without error when a decision with the
// same topic and timestamp is already recorded, so retried appends are safe.
// A zero timestamp is stamped from the ledger clock; stamps are strictly
// increasing so that two stamped appends never collide.
func (l *Ledger) Append(d Decision) (bool, error) {
	if err := d.Validate(); err != nil {
		return false, err
	}

	l.mu.Lock()
	if d.Timestamp.IsZero() {
		ts := l.clock().Round(0)
		if !ts.After(l.lastStamp) {
			ts = l.lastStamp.Add(time.Nanosecond)
		}
		l.lastStamp = ts
		d.Timestamp = ts
	}

	key := entryKey{topic: d.TopicID, nanos: d.Timestamp.UnixNano()}
	if _, dup := l.keys[key]; dup {
		l.mu.Unlock()
		l.logger.Debug("duplicate decision ignored", "topic", d.TopicID, "timestamp", d.Timestamp)
		return false, nil
	}

	index := len(l.entries)
	l.entries = append(l.entries, d)
	l.keys[key] = struct{}{}
	if cur, ok := l.latest[d.TopicID]; !ok || !d.Timestamp.Before(l.entries[cur].Timestamp) {
		l.latest[d.TopicID] = index
	}
	l.pubMu.Lock()
	l.mu.Unlock()
	defer l.pubMu.Unlock()

	l.logger.Info("decision recorded",
		"topic", d.TopicID,
		"value", d.Value,
		"source", string(d.Source),
		"confidence", d.Confidence)
	event.Publish(l.bus, event.NewLedgerAppendedEvent(d.TopicID, d.Value, string(d.Source), d.Confidence, index))
	return true, nil
}

// Latest returns the decision with the latest timestamp for a topic; among
// equal timestamps the later append wins.
func (l *Ledger) Latest(topicID string) (Decision, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i, ok := l.latest[topicID]
	if !ok {
		return Decision{}, false
	}
	return l.entries[i], true
}

// All returns a copy of every decision in append order.
func (l *Ledger) All() []Decision {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Decision, len(l.entries))
	copy(out, l.entries)
	return out
}

// History returns the decisions recorded for one topic in append order.
func (l *Ledger) History(topicID string) []Decision {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Decision
	for _, d := range l.entries {
		if d.TopicID == topicID {
			out = append(out, d)
		}
	}
	return out
}

// Len returns the number of decisions.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// View returns a read-only handle on the ledger. The handle observes later
// appends; use Snapshot for a frozen copy.
func (l *Ledger) View() View {
	return readOnly{l: l}
}

// Snapshot returns a frozen read-only copy of the current entries.
func (l *Ledger) Snapshot() View {
	return FromDecisions(l.All())
}

// FromDecisions rebuilds a read-only view from persisted decisions.
// Decisions are taken as-is, without validation.
func FromDecisions(decisions []Decision) View {
	l := New()
	l.entries = make([]Decision, len(decisions))
	copy(l.entries, decisions)
	for i, d := range l.entries {
		l.keys[entryKey{topic: d.TopicID, nanos: d.Timestamp.UnixNano()}] = struct{}{}
		if cur, ok := l.latest[d.TopicID]; !ok || !d.Timestamp.Before(l.entries[cur].Timestamp) {
			l.latest[d.TopicID] = i
		}
	}
	return readOnly{l: l}
}

type readOnly struct {
	l *Ledger
}

func (r readOnly) Latest(topicID string) (Decision, bool) { return r.l.Latest(topicID) }
func (r readOnly) All() []Decision                        { return r.l.All() }
func (r readOnly) History(topicID string) []Decision      { return r.l.History(topicID) }
func (r readOnly) Len() int                               { return r.l.Len() }
