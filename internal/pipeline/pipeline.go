package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/montage/internal/config"
	"github.com/Iron-Ham/montage/internal/dispatch"
	"github.com/Iron-Ham/montage/internal/errors"
	"github.com/Iron-Ham/montage/internal/event"
	"github.com/Iron-Ham/montage/internal/ledger"
	"github.com/Iron-Ham/montage/internal/logging"
	"github.com/Iron-Ham/montage/internal/mission"
	"github.com/Iron-Ham/montage/internal/negotiation"
	"github.com/Iron-Ham/montage/internal/persona"
	"github.com/Iron-Ham/montage/internal/provider"
	"github.com/Iron-Ham/montage/internal/resilience"
)

// Pipeline runs missions end to end:
// analyze → negotiate → record → plan → dispatch → report.
//
// A Pipeline holds no per-run state and may serve concurrent runs. Each run
// gets its own ledger and retry tracker.
type Pipeline struct {
	cfg         *config.Config
	analyzer    *mission.Analyzer
	coordinator *negotiation.Coordinator
	registry    *provider.Registry
	gen         negotiation.MessageGenerator
	remediator  resilience.Remediator
	sleeper     resilience.Sleeper
	bus         *event.Bus
	logger      *logging.Logger
	clock       func() time.Time
	newID       func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBus sets the event bus shared by every stage.
func WithBus(b *event.Bus) Option {
	return func(p *Pipeline) {
		p.bus = b
	}
}

// WithLogger sets the pipeline's logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithClock replaces time.Now for run timestamps and ledger stamps.
func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) {
		p.clock = clock
	}
}

// WithRegistry supplies a prepared provider registry instead of building one
// from the providers section.
func WithRegistry(r *provider.Registry) Option {
	return func(p *Pipeline) {
		p.registry = r
	}
}

// WithGenerator overrides the persona message generator.
func WithGenerator(g negotiation.MessageGenerator) Option {
	return func(p *Pipeline) {
		p.gen = g
	}
}

// WithRemediator overrides the payload remediator.
func WithRemediator(r resilience.Remediator) Option {
	return func(p *Pipeline) {
		p.remediator = r
	}
}

// WithSleeper replaces the backoff timer.
func WithSleeper(s resilience.Sleeper) Option {
	return func(p *Pipeline) {
		p.sleeper = s
	}
}

// WithIDGenerator replaces the run ID generator.
func WithIDGenerator(f func() string) Option {
	return func(p *Pipeline) {
		p.newID = f
	}
}

// New creates a Pipeline from configuration. Catalogs, the provider registry,
// the message generator and the remediator are derived from cfg unless
// supplied as options.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	p := &Pipeline{
		cfg:    cfg,
		logger: logging.NopLogger(),
		clock:  time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}

	personas, err := persona.FromConfig(cfg.Personas)
	if err != nil {
		return nil, err
	}
	topics, err := mission.TopicsFromConfig(cfg.Topics)
	if err != nil {
		return nil, err
	}
	p.analyzer = mission.NewAnalyzer(topics, personas,
		mission.WithNegotiationConfig(cfg.Negotiation),
		mission.WithSegmentSeconds(cfg.Dispatch.SegmentSeconds),
		mission.WithLogger(p.logger.WithComponent("analyzer")),
	)

	if p.registry == nil {
		if p.registry, err = BuildRegistry(cfg, p.logger.WithComponent("providers")); err != nil {
			return nil, err
		}
	}

	if p.gen == nil {
		if p.gen, err = p.generator(); err != nil {
			return nil, err
		}
	}
	if p.remediator == nil && cfg.Providers.Remediator != "" {
		a, ok := p.registry.Adapter(cfg.Providers.Remediator)
		if !ok {
			return nil, errors.NewConfigurationError(fmt.Sprintf("remediator adapter %q is not registered", cfg.Providers.Remediator), nil).
				WithKey("providers.remediator")
		}
		p.remediator = resilience.NewTextRemediator(a)
	}

	p.coordinator = negotiation.NewCoordinator(p.gen,
		negotiation.WithConfig(cfg.Negotiation),
		negotiation.WithBus(p.bus),
		negotiation.WithLogger(p.logger.WithComponent("negotiation")),
		negotiation.WithClock(p.clock),
	)
	return p, nil
}

func (p *Pipeline) generator() (negotiation.MessageGenerator, error) {
	name := p.cfg.Providers.Negotiator
	if name == "" {
		return negotiation.NewDeliberativeGenerator(p.cfg.Negotiation.TopK), nil
	}
	a, ok := p.registry.Adapter(name)
	if !ok {
		return nil, errors.NewConfigurationError(fmt.Sprintf("negotiator adapter %q is not registered", name), nil).
			WithKey("providers.negotiator")
	}
	return negotiation.NewProviderGenerator(a), nil
}

// Registry returns the provider registry runs execute against.
func (p *Pipeline) Registry() *provider.Registry {
	return p.registry
}

// Run executes one mission. It always returns a Report, including when the
// run stops early; the error explains why it stopped. Invalid intents yield
// a ValidationError, missing provider chains a ConfigurationError, and
// cancellation an error wrapping errors.ErrCanceled.
func (p *Pipeline) Run(ctx context.Context, req mission.Request) (*Report, error) {
	runID := p.newID()
	logger := p.logger.WithRun(runID)
	rep := &Report{
		RunID:     runID,
		Request:   req,
		Phase:     PhaseAnalyzing,
		StartedAt: p.clock(),
	}
	l := ledger.New(ledger.WithBus(p.bus), ledger.WithLogger(logger), ledger.WithClock(p.clock))

	fail := func(err error) (*Report, error) {
		logger.Error("run failed", "phase", rep.Phase.String(), "error", err.Error())
		rep.Error = err.Error()
		rep.Phase = PhaseFailed
		rep.Decisions = l.All()
		rep.FinishedAt = p.clock()
		counts := rep.Counts()
		event.Publish(p.bus, event.NewRunCompletedEvent(runID, false,
			counts[resilience.StatusDegraded], counts[resilience.StatusFailedTerminal], rep.Duration()))
		return rep, err
	}

	in := mission.NewIntent(req)
	analysis, err := p.analyzer.Analyze(in)
	if err != nil {
		return fail(err)
	}
	logger.Info("run started", "topics", len(analysis.Topics), "fast_path", len(analysis.FastPath))
	event.Publish(p.bus, event.NewRunStartedEvent(runID, in.Mission(), len(analysis.Topics), len(analysis.FastPath)))

	for _, d := range analysis.FastPath {
		if _, err := l.Append(d); err != nil {
			return fail(err)
		}
	}

	rep.Phase = PhaseNegotiating
	outcomes, err := p.negotiate(ctx, analysis, in, l)
	rep.Negotiations = outcomes
	if err != nil {
		return fail(err)
	}

	rep.Phase = PhasePlanning
	planner := dispatch.NewPlanner(runID, dispatch.WithSegmentSeconds(p.cfg.Dispatch.SegmentSeconds))
	requests, err := planner.Plan(l.View(), in)
	if err != nil {
		return fail(err)
	}
	rep.Requests = requests

	rep.Phase = PhaseDispatching
	tracker := resilience.NewTracker()
	dispatched, err := p.dispatcher(logger, tracker).Execute(ctx, requests)
	if dispatched != nil {
		rep.Results = dispatched.Results
	}
	rep.RetryStates = tracker.States()
	if err != nil {
		return fail(err)
	}

	rep.Phase = PhaseDone
	rep.Decisions = l.All()
	rep.FinishedAt = p.clock()
	counts := rep.Counts()
	logger.Info("run completed",
		"requests", len(rep.Results),
		"success", counts[resilience.StatusSuccess],
		"degraded", counts[resilience.StatusDegraded],
		"duration", rep.Duration())
	event.Publish(p.bus, event.NewRunCompletedEvent(runID, true,
		counts[resilience.StatusDegraded], counts[resilience.StatusFailedTerminal], rep.Duration()))
	return rep, nil
}

// negotiate resolves topics level by level. Topics of one level run
// concurrently, bounded by negotiation.parallel_topics, and see the decisions
// of earlier levels only. Their decisions are appended in topic order so the
// ledger is deterministic.
func (p *Pipeline) negotiate(ctx context.Context, analysis *mission.Analysis, in *mission.Intent, l *ledger.Ledger) ([]TopicOutcome, error) {
	var outcomes []TopicOutcome
	for _, level := range analysis.Levels {
		prior := l.All()
		results := make([]negotiation.ConsensusResult, len(level))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(max(1, p.cfg.Negotiation.ParallelTopics))
		for i, topic := range level {
			i, topic := i, topic
			g.Go(func() error {
				res, err := p.coordinator.Resolve(gctx, topic, in, prior)
				if err != nil {
					return err
				}
				results[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return outcomes, err
		}

		for i, topic := range level {
			if _, err := l.Append(results[i].Decision(topic)); err != nil {
				return outcomes, errors.Wrapf(err, "recording decision for %s", topic.ID)
			}
			outcomes = append(outcomes, outcome(topic, results[i]))
		}
	}
	return outcomes, nil
}

func (p *Pipeline) dispatcher(logger *logging.Logger, tracker *resilience.Tracker) *dispatch.Dispatcher {
	opts := []resilience.Option{
		resilience.WithConfig(p.cfg.Resilience),
		resilience.WithTracker(tracker),
		resilience.WithBus(p.bus),
		resilience.WithLogger(logger.WithComponent("resilience")),
	}
	if p.remediator != nil {
		opts = append(opts, resilience.WithRemediator(p.remediator))
	}
	if p.sleeper != nil {
		opts = append(opts, resilience.WithSleeper(p.sleeper))
	}
	wrapper := resilience.NewWrapper(p.registry, opts...)

	return dispatch.NewDispatcher(wrapper, p.registry,
		dispatch.WithConcurrency(p.cfg.Dispatch.Concurrency),
		dispatch.WithLogger(logger.WithComponent("dispatch")),
	)
}
