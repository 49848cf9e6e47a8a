package negotiation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Iron-Ham/montage/internal/ledger"
	"github.com/Iron-Ham/montage/internal/mission"
	"github.com/Iron-Ham/montage/internal/persona"
)

// Stance is a persona's position on the round's anchor.
type Stance string

const (
	// StanceAgree backs the payload it carries.
	StanceAgree Stance = "agree"
	// StanceDisagree rejects the anchor without offering an alternative.
	StanceDisagree Stance = "disagree"
	// StancePropose offers the payload it carries instead of the anchor.
	StancePropose Stance = "propose"
	// StanceAbstain is the neutral stance recorded for failed or silent
	// personas. Abstainers never count towards agreement or the quorum.
	StanceAbstain Stance = "abstain"
)

// ParseStance maps free-form stance words onto a Stance.
func ParseStance(s string) (Stance, bool) {
	switch strings.ToLower(strings.Trim(strings.TrimSpace(s), ".!*\"'")) {
	case "agree", "agrees", "support", "supports", "accept", "yes":
		return StanceAgree, true
	case "disagree", "disagrees", "oppose", "reject", "no":
		return StanceDisagree, true
	case "propose", "proposes", "counter", "suggest", "alternative":
		return StancePropose, true
	case "abstain", "neutral", "pass":
		return StanceAbstain, true
	}
	return "", false
}

// Message is one persona's contribution to one round.
type Message struct {
	PersonaID  string  `json:"persona_id"`
	Stance     Stance  `json:"stance"`
	Payload    string  `json:"payload,omitempty"`
	Confidence float64 `json:"confidence"`
	// Err records why an abstention was forced.
	Err string `json:"error,omitempty"`
}

// Responded reports whether the message counts as a response.
func (m Message) Responded() bool { return m.Stance != StanceAbstain }

func abstain(personaID string, err error) Message {
	m := Message{PersonaID: personaID, Stance: StanceAbstain}
	if err != nil {
		m.Err = err.Error()
	}
	return m
}

// Round is one completed discussion round.
type Round struct {
	Number   int           `json:"number"`
	Messages []Message     `json:"messages"`
	Elapsed  time.Duration `json:"elapsed"`
	// Anchor is the payload carried in from the previous round, if any.
	Anchor     string  `json:"anchor,omitempty"`
	Leading    string  `json:"leading"`
	Score      float64 `json:"score"`
	Responders int     `json:"responders"`
	Converged  bool    `json:"converged"`
}

// ConsensusResult is the outcome of negotiating one topic.
type ConsensusResult struct {
	TopicID string  `json:"topic_id"`
	Payload string  `json:"payload"`
	Score   float64 `json:"score"`
	// Rounds is the number of rounds run; BestRound the one the result is
	// taken from.
	Rounds     int     `json:"rounds"`
	BestRound  int     `json:"best_round"`
	Converged  bool    `json:"converged"`
	Confidence float64 `json:"confidence"`
	Threshold  float64 `json:"threshold"`
	History    []Round `json:"history"`
}

// Decision turns the result into a ledger entry. A negotiation in which
// nobody ever backed a payload falls back to the topic default.
func (r ConsensusResult) Decision(topic mission.Topic) ledger.Decision {
	if r.Payload == "" {
		return ledger.Decision{
			TopicID:   r.TopicID,
			Value:     topic.Default,
			Source:    ledger.SourceDefault,
			Rationale: fmt.Sprintf("no persona backed a payload in %d round(s); using the topic default", r.Rounds),
			Rounds:    r.Rounds,
		}
	}

	var rationale string
	if r.Converged {
		rationale = fmt.Sprintf("converged in round %d with %.2f weighted agreement (threshold %.2f)",
			r.BestRound, r.Score, r.Threshold)
	} else {
		rationale = fmt.Sprintf("no convergence after %d round(s); best round %d reached %.2f weighted agreement (threshold %.2f)",
			r.Rounds, r.BestRound, r.Score, r.Threshold)
	}
	return ledger.Decision{
		TopicID:    r.TopicID,
		Value:      r.Payload,
		Source:     ledger.SourceNegotiation,
		Confidence: r.Confidence,
		Rationale:  rationale,
		Rounds:     r.Rounds,
		Agreement:  r.Score,
		Converged:  r.Converged,
	}
}

// Turn is everything a persona sees when asked for its message.
type Turn struct {
	Topic   mission.Topic
	Persona persona.Persona
	Intent  *mission.Intent
	Round   int
	// Anchor is the payload under debate; empty in the first round.
	Anchor string
	// History holds the most recent rounds, oldest first.
	History []Round
	// Prior holds decisions already made for other topics.
	Prior []ledger.Decision
}

// MessageGenerator produces one persona's message for a turn.
// Implementations must be safe for concurrent use.
type MessageGenerator interface {
	Generate(ctx context.Context, turn Turn) (Message, error)
}

// GeneratorFunc adapts a function to MessageGenerator.
type GeneratorFunc func(ctx context.Context, turn Turn) (Message, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, turn Turn) (Message, error) {
	return f(ctx, turn)
}
