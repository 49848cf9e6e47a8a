package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns "category.action", e.g. "ledger.appended".
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event types published by montage.
const (
	TypeRunStarted          = "run.started"
	TypeRunCompleted        = "run.completed"
	TypeNegotiationRound    = "negotiation.round"
	TypeNegotiationResolved = "negotiation.resolved"
	TypeLedgerAppended      = "ledger.appended"
	TypeGenerationAttempt   = "generation.attempt"
	TypeGenerationCompleted = "generation.completed"
	TypeConfigReloaded      = "config.reloaded"
)

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Run Lifecycle Events
// -----------------------------------------------------------------------------

// RunStartedEvent is emitted once a mission has been analyzed.
type RunStartedEvent struct {
	baseEvent
	RunID    string
	Mission  string
	Topics   int // topics that need negotiation
	FastPath int // decisions resolved by rule
}

// NewRunStartedEvent creates a RunStartedEvent.
func NewRunStartedEvent(runID, mission string, topics, fastPath int) RunStartedEvent {
	return RunStartedEvent{
		baseEvent: newBaseEvent(TypeRunStarted),
		RunID:     runID,
		Mission:   mission,
		Topics:    topics,
		FastPath:  fastPath,
	}
}

// RunCompletedEvent is emitted when a run finishes, successfully or not.
type RunCompletedEvent struct {
	baseEvent
	RunID    string
	Success  bool
	Degraded int
	Failed   int
	Duration time.Duration
}

// NewRunCompletedEvent creates a RunCompletedEvent.
func NewRunCompletedEvent(runID string, success bool, degraded, failed int, d time.Duration) RunCompletedEvent {
	return RunCompletedEvent{
		baseEvent: newBaseEvent(TypeRunCompleted),
		RunID:     runID,
		Success:   success,
		Degraded:  degraded,
		Failed:    failed,
		Duration:  d,
	}
}

// -----------------------------------------------------------------------------
// Negotiation Events
// -----------------------------------------------------------------------------

// NegotiationRoundEvent is emitted after every discussion round.
type NegotiationRoundEvent struct {
	baseEvent
	TopicID    string
	Round      int
	Leading    string
	Score      float64
	Responders int
	Eligible   int
}

// NewNegotiationRoundEvent creates a NegotiationRoundEvent.
func NewNegotiationRoundEvent(topicID string, round int, leading string, score float64, responders, eligible int) NegotiationRoundEvent {
	return NegotiationRoundEvent{
		baseEvent:  newBaseEvent(TypeNegotiationRound),
		TopicID:    topicID,
		Round:      round,
		Leading:    leading,
		Score:      score,
		Responders: responders,
		Eligible:   eligible,
	}
}

// NegotiationResolvedEvent is emitted when a topic has a consensus result.
type NegotiationResolvedEvent struct {
	baseEvent
	TopicID   string
	Payload   string
	Score     float64
	Rounds    int
	Converged bool
}

// NewNegotiationResolvedEvent creates a NegotiationResolvedEvent.
func NewNegotiationResolvedEvent(topicID, payload string, score float64, rounds int, converged bool) NegotiationResolvedEvent {
	return NegotiationResolvedEvent{
		baseEvent: newBaseEvent(TypeNegotiationResolved),
		TopicID:   topicID,
		Payload:   payload,
		Score:     score,
		Rounds:    rounds,
		Converged: converged,
	}
}

// -----------------------------------------------------------------------------
// Ledger Events
// -----------------------------------------------------------------------------

// LedgerAppendedEvent is emitted when a decision is recorded.
type LedgerAppendedEvent struct {
	baseEvent
	TopicID    string
	Value      string
	Source     string
	Confidence float64
	Index      int // position in the ledger
}

// NewLedgerAppendedEvent creates a LedgerAppendedEvent.
func NewLedgerAppendedEvent(topicID, value, source string, confidence float64, index int) LedgerAppendedEvent {
	return LedgerAppendedEvent{
		baseEvent:  newBaseEvent(TypeLedgerAppended),
		TopicID:    topicID,
		Value:      value,
		Source:     source,
		Confidence: confidence,
		Index:      index,
	}
}

// -----------------------------------------------------------------------------
// Generation Events
// -----------------------------------------------------------------------------

// GenerationAttemptEvent is emitted after every provider call.
type GenerationAttemptEvent struct {
	baseEvent
	RequestID  string
	ProviderID string
	Attempt    int    // overall attempt number for the request
	Outcome    string // "success" or the provider error kind
	Backoff    time.Duration
}

// NewGenerationAttemptEvent creates a GenerationAttemptEvent.
func NewGenerationAttemptEvent(requestID, providerID string, attempt int, outcome string, backoff time.Duration) GenerationAttemptEvent {
	return GenerationAttemptEvent{
		baseEvent:  newBaseEvent(TypeGenerationAttempt),
		RequestID:  requestID,
		ProviderID: providerID,
		Attempt:    attempt,
		Outcome:    outcome,
		Backoff:    backoff,
	}
}

// GenerationCompletedEvent is emitted once per request with its terminal status.
type GenerationCompletedEvent struct {
	baseEvent
	RequestID  string
	ProviderID string
	Status     string
	Attempts   int
}

// NewGenerationCompletedEvent creates a GenerationCompletedEvent.
func NewGenerationCompletedEvent(requestID, providerID, status string, attempts int) GenerationCompletedEvent {
	return GenerationCompletedEvent{
		baseEvent:  newBaseEvent(TypeGenerationCompleted),
		RequestID:  requestID,
		ProviderID: providerID,
		Status:     status,
		Attempts:   attempts,
	}
}

// -----------------------------------------------------------------------------
// Config Events
// -----------------------------------------------------------------------------

// ConfigReloadedEvent is emitted when the server picks up a config change.
type ConfigReloadedEvent struct {
	baseEvent
	Path  string
	Valid bool
}

// NewConfigReloadedEvent creates a ConfigReloadedEvent.
func NewConfigReloadedEvent(path string, valid bool) ConfigReloadedEvent {
	return ConfigReloadedEvent{
		baseEvent: newBaseEvent(TypeConfigReloaded),
		Path:      path,
		Valid:     valid,
	}
}
