package event

import (
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/montage/internal/logging"
)

// Handler is a function that handles an event.
type Handler func(Event)

// subscription represents a registered event handler.
type subscription struct {
	id      string
	pattern string
	handler Handler
}

// Bus is a synchronous pub-sub event bus.
// Components publish run progress without knowing who consumes it.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string][]subscription // pattern -> subscriptions
	nextID        atomic.Uint64
	logger        *logging.Logger
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the logger used to report handler panics.
func WithLogger(l *logging.Logger) BusOption {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBus creates a new event bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		subscriptions: make(map[string][]subscription),
		logger:        logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for an event type. The pattern is either an
// exact type ("ledger.appended"), a category ("generation.*") or "*".
// Returns a subscription ID that can be used to unsubscribe.
func (b *Bus) Subscribe(pattern string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := fmt.Sprintf("sub-%d", b.nextID.Add(1))
	b.subscriptions[pattern] = append(b.subscriptions[pattern], subscription{
		id:      id,
		pattern: pattern,
		handler: handler,
	})
	return id
}

// SubscribeAll registers a handler for all event types.
func (b *Bus) SubscribeAll(handler Handler) string {
	return b.Subscribe("*", handler)
}

// Unsubscribe removes a subscription by ID.
// Returns true if the subscription was found and removed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for pattern, subs := range b.subscriptions {
		for i, sub := range subs {
			if sub.id == id {
				b.subscriptions[pattern] = append(subs[:i:i], subs[i+1:]...)
				if len(b.subscriptions[pattern]) == 0 {
					delete(b.subscriptions, pattern)
				}
				return true
			}
		}
	}
	return false
}

// Publish dispatches an event to all matching handlers: exact subscribers
// first, then category subscribers, then wildcard subscribers. Within each
// group handlers run in registration order. A panicking handler is logged and
// does not stop delivery.
//
// Publish may be called from many goroutines; handlers must be safe for that.
func (b *Bus) Publish(e Event) {
	eventType := e.EventType()
	category := ""
	if i := strings.IndexByte(eventType, '.'); i > 0 {
		category = eventType[:i] + ".*"
	}

	b.mu.RLock()
	var targets []subscription
	targets = append(targets, b.subscriptions[eventType]...)
	if category != "" && category != eventType {
		targets = append(targets, b.subscriptions[category]...)
	}
	targets = append(targets, b.subscriptions["*"]...)
	b.mu.RUnlock()

	for _, sub := range targets {
		b.safeCall(sub.handler, e)
	}
}

func (b *Bus) safeCall(handler Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", e.EventType(),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()
	handler(e)
}

// Clear removes all subscriptions.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions = make(map[string][]subscription)
}

// SubscriptionCount returns the total number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, subs := range b.subscriptions {
		count += len(subs)
	}
	return count
}

// Publish is a nil-safe helper for components whose bus is optional.
func Publish(b *Bus, e Event) {
	if b != nil {
		b.Publish(e)
	}
}
