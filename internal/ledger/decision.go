package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/Iron-Ham/montage/internal/errors"
)

// Source records how a decision was reached.
type Source string

const (
	// SourceRule marks decisions made by a deterministic rule or an explicit
	// user override.
	SourceRule Source = "RULE"
	// SourceNegotiation marks decisions produced by persona negotiation.
	SourceNegotiation Source = "NEGOTIATION"
	// SourceDefault marks decisions that fell back to the topic default.
	SourceDefault Source = "DEFAULT"
)

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	switch s {
	case SourceRule, SourceNegotiation, SourceDefault:
		return true
	}
	return false
}

// Decision is one resolved topic. Decisions are values; once appended to a
// Ledger they are never changed.
type Decision struct {
	TopicID    string    `json:"topic_id"`
	Value      string    `json:"value"`
	Source     Source    `json:"source"`
	Confidence float64   `json:"confidence"`
	Rationale  string    `json:"rationale"`
	Timestamp  time.Time `json:"timestamp"`

	// Negotiation details; zero for RULE and DEFAULT decisions.
	Rounds    int     `json:"rounds,omitempty"`
	Agreement float64 `json:"agreement,omitempty"`
	Converged bool    `json:"converged,omitempty"`
}

// Validate checks the invariants every ledger entry must satisfy.
func (d Decision) Validate() error {
	switch {
	case strings.TrimSpace(d.TopicID) == "":
		return errors.NewValidationError("decision topic is required").
			WithField("topic_id").WithCause(errors.ErrInvalidDecision)
	case strings.TrimSpace(d.Rationale) == "":
		return errors.NewValidationError("decision rationale is required").
			WithField("rationale").WithCause(errors.ErrInvalidDecision)
	case !d.Source.Valid():
		return errors.NewValidationError("unknown decision source").
			WithField("source").WithValue(string(d.Source)).WithCause(errors.ErrInvalidDecision)
	case d.Confidence < 0 || d.Confidence > 1:
		return errors.NewValidationError("confidence must be in [0, 1]").
			WithField("confidence").WithValue(d.Confidence).WithCause(errors.ErrInvalidDecision)
	case d.Agreement < 0 || d.Agreement > 1:
		return errors.NewValidationError("agreement must be in [0, 1]").
			WithField("agreement").WithValue(d.Agreement).WithCause(errors.ErrInvalidDecision)
	}
	return nil
}

func (d Decision) String() string {
	return fmt.Sprintf("%s=%q (%s, confidence %.2f)", d.TopicID, d.Value, d.Source, d.Confidence)
}

// Rule builds a RULE decision with full confidence.
func Rule(topicID, value, rationale string) Decision {
	return Decision{
		TopicID:    topicID,
		Value:      value,
		Source:     SourceRule,
		Confidence: 1,
		Rationale:  rationale,
	}
}
