package negotiation

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/Iron-Ham/montage/internal/config"
	"github.com/Iron-Ham/montage/internal/errors"
	"github.com/Iron-Ham/montage/internal/event"
	"github.com/Iron-Ham/montage/internal/ledger"
	"github.com/Iron-Ham/montage/internal/logging"
	"github.com/Iron-Ham/montage/internal/mission"
	"github.com/Iron-Ham/montage/internal/persona"
)

// Coordinator runs bounded-round negotiations. A Coordinator holds no
// per-topic state and may resolve several topics concurrently.
type Coordinator struct {
	gen    MessageGenerator
	cfg    config.NegotiationConfig
	bus    *event.Bus
	logger *logging.Logger
	clock  func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithConfig sets round limits, the history window and the persona timeout.
func WithConfig(cfg config.NegotiationConfig) Option {
	return func(c *Coordinator) {
		c.cfg = cfg
	}
}

// WithBus publishes round and resolution events.
func WithBus(bus *event.Bus) Option {
	return func(c *Coordinator) {
		c.bus = bus
	}
}

// WithLogger sets the coordinator's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock sets the clock used to time rounds.
func WithClock(clock func() time.Time) Option {
	return func(c *Coordinator) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewCoordinator creates a Coordinator that asks gen for persona messages.
func NewCoordinator(gen MessageGenerator, opts ...Option) *Coordinator {
	c := &Coordinator{
		gen:    gen,
		cfg:    config.Default().Negotiation,
		logger: logging.NopLogger(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve negotiates one topic. It always returns within the configured
// number of rounds; failing personas abstain rather than abort the topic.
// The only error is cancellation of ctx.
func (c *Coordinator) Resolve(ctx context.Context, topic mission.Topic, intent *mission.Intent, prior []ledger.Decision) (ConsensusResult, error) {
	maxRounds := max(c.cfg.MaxRounds, 1)
	logger := c.logger.WithTopic(topic.ID)

	result := ConsensusResult{TopicID: topic.ID, Threshold: topic.Threshold}
	if len(topic.Personas) == 0 {
		logger.Warn("topic has no eligible personas")
		return result, nil
	}

	weights := make(map[string]float64, len(topic.Personas))
	for _, p := range topic.Personas {
		weights[p.ID] = p.Weight
	}

	anchor := ""
	best := -1
	for n := 1; n <= maxRounds; n++ {
		if err := ctx.Err(); err != nil {
			return result, canceled(topic.ID, err)
		}

		start := c.clock()
		messages := c.collect(ctx, Turn{
			Topic:   topic,
			Intent:  intent,
			Round:   n,
			Anchor:  anchor,
			History: window(result.History, c.cfg.HistoryWindow),
			Prior:   prior,
		})
		if err := ctx.Err(); err != nil {
			return result, canceled(topic.ID, err)
		}

		round := score(n, anchor, messages, topic.Personas, weights)
		round.Elapsed = c.clock().Sub(start)
		round.Converged = round.Score >= topic.Threshold && quorum(round.Responders, len(topic.Personas))

		result.History = append(result.History, round)
		result.Rounds = n

		logger.Debug("negotiation round",
			"round", n,
			"leading", round.Leading,
			"score", round.Score,
			"responders", round.Responders)
		event.Publish(c.bus, event.NewNegotiationRoundEvent(topic.ID, n, round.Leading, round.Score, round.Responders, len(topic.Personas)))

		// A converged round always wins; otherwise the highest score does,
		// with ties going to the later round.
		if round.Converged {
			best = len(result.History) - 1
			break
		}
		if best < 0 || round.Score >= result.History[best].Score {
			best = len(result.History) - 1
		}
		if next := nextAnchor(messages, weights); next != "" {
			anchor = next
		}
	}

	winner := result.History[best]
	result.BestRound = winner.Number
	result.Payload = winner.Leading
	result.Score = winner.Score
	result.Converged = winner.Converged
	result.Confidence = supportConfidence(winner, weights)

	logger.Info("topic negotiated",
		"payload", result.Payload,
		"score", result.Score,
		"rounds", result.Rounds,
		"converged", result.Converged)
	event.Publish(c.bus, event.NewNegotiationResolvedEvent(topic.ID, result.Payload, result.Score, result.Rounds, result.Converged))
	return result, nil
}

// collect asks every persona for its message concurrently. Each call runs
// under its own timeout; errors, timeouts and panics become abstentions.
func (c *Coordinator) collect(ctx context.Context, base Turn) []Message {
	personas := base.Topic.Personas
	messages := make([]Message, len(personas))

	var wg conc.WaitGroup
	for i, p := range personas {
		i := i
		turn := base
		turn.Persona = p
		wg.Go(func() {
			messages[i] = c.ask(ctx, turn)
		})
	}
	wg.Wait()
	return messages
}

func (c *Coordinator) ask(ctx context.Context, turn Turn) Message {
	personaID := turn.Persona.ID
	timeout := c.cfg.PersonaTimeout()
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type reply struct {
		msg       Message
		err       error
		recovered *panics.Recovered
	}
	// Buffered so a generator that ignores callCtx can finish late without
	// blocking forever.
	replies := make(chan reply, 1)
	go func() {
		var (
			r  reply
			pc panics.Catcher
		)
		pc.Try(func() {
			r.msg, r.err = c.gen.Generate(callCtx, turn)
		})
		r.recovered = pc.Recovered()
		replies <- r
	}()

	logger := c.logger.WithTopic(turn.Topic.ID).With("persona", personaID, "round", turn.Round)

	var r reply
	select {
	case r = <-replies:
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return abstain(personaID, ctx.Err())
		}
		logger.Debug("persona timed out")
		return abstain(personaID, errors.NewTimeoutError("persona "+personaID, timeout))
	}

	msg, err := r.msg, r.err
	switch {
	case r.recovered != nil:
		logger.Warn("persona generator panicked", "panic", r.recovered.String())
		return abstain(personaID, fmt.Errorf("generator panic: %v", r.recovered.Value))
	case err != nil:
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = errors.NewTimeoutError("persona "+personaID, timeout).WithCause(err)
		}
		logger.Debug("persona abstained", "error", err.Error())
		return abstain(personaID, err)
	case callCtx.Err() != nil && ctx.Err() == nil:
		// A reply that arrives after the deadline is not accepted.
		return abstain(personaID, errors.NewTimeoutError("persona "+personaID, timeout))
	}
	return normalize(msg, personaID, turn.Anchor, turn.Topic.Options)
}

// normalize pins the message to its persona, clamps confidence and maps the
// payload onto a topic option when one matches case-insensitively.
func normalize(m Message, personaID, anchor string, options []string) Message {
	m.PersonaID = personaID
	m.Payload = canonical(m.Payload, options)
	m.Confidence = clamp(m.Confidence)

	switch m.Stance {
	case StanceAgree:
		if m.Payload == "" {
			m.Payload = anchor
		}
		if m.Payload == "" {
			return abstain(personaID, errors.New("agreement without a payload"))
		}
	case StancePropose:
		if m.Payload == "" {
			return abstain(personaID, errors.New("proposal without a payload"))
		}
	case StanceDisagree:
	case StanceAbstain:
		m.Confidence = 0
	default:
		return abstain(personaID, fmt.Errorf("unknown stance %q", m.Stance))
	}
	return m
}

func canonical(payload string, options []string) string {
	payload = strings.Trim(strings.TrimSpace(payload), ".\"'`*")
	for _, o := range options {
		if strings.EqualFold(payload, o) {
			return o
		}
	}
	return payload
}

// score evaluates a finished round. The leading payload is the anchor when
// there is one, otherwise the payload of the heaviest responding persona.
// Only explicit agreement with the leading payload is credited, weighted and
// normalised by the weight of the personas that responded.
func score(n int, anchor string, messages []Message, personas []persona.Persona, weights map[string]float64) Round {
	round := Round{Number: n, Messages: messages, Anchor: anchor, Leading: anchor}

	if round.Leading == "" {
		var lead *persona.Persona
		for i, p := range personas {
			m := messages[i]
			if !m.Responded() || m.Payload == "" {
				continue
			}
			if lead == nil || p.Weight > lead.Weight || (p.Weight == lead.Weight && p.ID < lead.ID) {
				lead = &personas[i]
				round.Leading = m.Payload
			}
		}
	}

	var responding, agreeing float64
	for _, m := range messages {
		if !m.Responded() {
			continue
		}
		round.Responders++
		responding += weights[m.PersonaID]
		if m.Stance == StanceAgree && m.Payload == round.Leading {
			agreeing += weights[m.PersonaID]
		}
	}
	if responding > 0 && round.Leading != "" {
		round.Score = clamp(agreeing / responding)
	}
	return round
}

// quorum requires a strict majority of the eligible personas to respond.
func quorum(responders, eligible int) bool {
	return responders*2 > eligible
}

type support struct {
	weight   float64
	heaviest float64
	lowestID string
}

// nextAnchor picks the payload with the most weighted support (agree or
// propose). Ties go to the payload with the heaviest single supporter, then
// to the one whose supporter has the lowest id.
func nextAnchor(messages []Message, weights map[string]float64) string {
	tally := make(map[string]*support)
	var order []string
	for _, m := range messages {
		if m.Payload == "" || (m.Stance != StanceAgree && m.Stance != StancePropose) {
			continue
		}
		w := weights[m.PersonaID]
		s, ok := tally[m.Payload]
		if !ok {
			s = &support{heaviest: w, lowestID: m.PersonaID}
			tally[m.Payload] = s
			order = append(order, m.Payload)
		}
		s.weight += w
		if w > s.heaviest || (w == s.heaviest && m.PersonaID < s.lowestID) {
			s.heaviest = w
			s.lowestID = m.PersonaID
		}
	}

	var winner string
	for _, payload := range order {
		if winner == "" || beats(tally[payload], tally[winner]) {
			winner = payload
		}
	}
	return winner
}

func beats(a, b *support) bool {
	if a.weight != b.weight {
		return a.weight > b.weight
	}
	if a.heaviest != b.heaviest {
		return a.heaviest > b.heaviest
	}
	return a.lowestID < b.lowestID
}

// supportConfidence is the weighted mean confidence of the personas that
// backed the round's leading payload.
func supportConfidence(r Round, weights map[string]float64) float64 {
	var total, sum float64
	for _, m := range r.Messages {
		if m.Payload != r.Leading || (m.Stance != StanceAgree && m.Stance != StancePropose) {
			continue
		}
		w := weights[m.PersonaID]
		total += w
		sum += w * m.Confidence
	}
	if total == 0 {
		return 0
	}
	return clamp(sum / total)
}

func window(history []Round, n int) []Round {
	if n <= 0 || len(history) == 0 {
		return nil
	}
	start := max(len(history)-n, 0)
	out := make([]Round, len(history)-start)
	copy(out, history[start:])
	return out
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}

func canceled(topicID string, cause error) error {
	return errors.Wrapf(errors.Join(errors.ErrCanceled, cause), "negotiation of %s", topicID)
}
