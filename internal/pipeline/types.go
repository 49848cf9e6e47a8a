package pipeline

import (
	"time"

	"github.com/Iron-Ham/montage/internal/dispatch"
	"github.com/Iron-Ham/montage/internal/ledger"
	"github.com/Iron-Ham/montage/internal/mission"
	"github.com/Iron-Ham/montage/internal/negotiation"
	"github.com/Iron-Ham/montage/internal/resilience"
)

// Phase is the stage a run has reached.
type Phase string

const (
	// PhaseAnalyzing indicates the mission is being validated and split into topics.
	PhaseAnalyzing Phase = "analyzing"

	// PhaseNegotiating indicates persona panels are resolving topics.
	PhaseNegotiating Phase = "negotiating"

	// PhasePlanning indicates decisions are being turned into requests.
	PhasePlanning Phase = "planning"

	// PhaseDispatching indicates generation requests are executing.
	PhaseDispatching Phase = "dispatching"

	// PhaseDone indicates every request reached a terminal result.
	PhaseDone Phase = "done"

	// PhaseFailed indicates the run stopped early: invalid intent,
	// configuration error or cancellation.
	PhaseFailed Phase = "failed"
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// IsTerminal returns true if this phase represents a final state.
func (p Phase) IsTerminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// TopicOutcome summarizes how one topic was negotiated.
type TopicOutcome struct {
	TopicID    string              `json:"topic_id"`
	Payload    string              `json:"payload"`
	Score      float64             `json:"score"`
	Rounds     int                 `json:"rounds"`
	BestRound  int                 `json:"best_round"`
	Converged  bool                `json:"converged"`
	Confidence float64             `json:"confidence"`
	Personas   int                 `json:"personas"`
	History    []negotiation.Round `json:"history,omitempty"`
}

func outcome(topic mission.Topic, r negotiation.ConsensusResult) TopicOutcome {
	return TopicOutcome{
		TopicID:    r.TopicID,
		Payload:    r.Payload,
		Score:      r.Score,
		Rounds:     r.Rounds,
		BestRound:  r.BestRound,
		Converged:  r.Converged,
		Confidence: r.Confidence,
		Personas:   len(topic.Personas),
		History:    r.History,
	}
}

// Report is everything a finished (or aborted) run produced. It is the
// record handed to the session collaborator: stores persist it, the API and
// the CLI render it.
type Report struct {
	RunID      string          `json:"run_id"`
	Request    mission.Request `json:"request"`
	Phase      Phase           `json:"phase"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`

	Decisions    []ledger.Decision `json:"decisions"`
	Negotiations []TopicOutcome    `json:"negotiations,omitempty"`

	Requests    []dispatch.Request               `json:"requests,omitempty"`
	Results     []resilience.Result              `json:"results,omitempty"`
	RetryStates map[string]resilience.RetryState `json:"retry_states,omitempty"`

	// Error is the reason a failed run stopped.
	Error string `json:"error,omitempty"`
}

// Ledger returns a read-only view of the run's decisions.
func (r *Report) Ledger() ledger.View {
	return ledger.FromDecisions(r.Decisions)
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Counts tallies results by status.
func (r *Report) Counts() map[resilience.Status]int {
	out := make(map[resilience.Status]int)
	for _, res := range r.Results {
		out[res.Status]++
	}
	return out
}

// Succeeded reports whether the run finished with every request producing
// an artifact, degraded or not.
func (r *Report) Succeeded() bool {
	if r.Phase != PhaseDone {
		return false
	}
	for _, res := range r.Results {
		if !res.OK() {
			return false
		}
	}
	return true
}
