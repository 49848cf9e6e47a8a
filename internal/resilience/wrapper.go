package resilience

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/Iron-Ham/montage/internal/config"
	"github.com/Iron-Ham/montage/internal/errors"
	"github.com/Iron-Ham/montage/internal/event"
	"github.com/Iron-Ham/montage/internal/logging"
	"github.com/Iron-Ham/montage/internal/provider"
	"github.com/Iron-Ham/montage/internal/provider/synthetic"
)

// Sleeper waits between retries. Sleep must return early with the context's
// error when ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Wrapper executes requests against a provider registry, recovering from
// failures by retry, remediation, chain fallback and, last, a placeholder.
type Wrapper struct {
	registry   *provider.Registry
	fallback   provider.Adapter
	remediator Remediator
	cfg        config.ResilienceConfig
	sleeper    Sleeper
	tracker    *Tracker
	bus        *event.Bus
	logger     *logging.Logger
}

// Option configures a Wrapper.
type Option func(*Wrapper)

// WithConfig sets retry, backoff and remediation limits.
func WithConfig(cfg config.ResilienceConfig) Option {
	return func(w *Wrapper) {
		w.cfg = cfg
	}
}

// WithRemediator sets the payload rewriter used on policy rejections.
// Without one, policy rejections go straight to the safe payload.
func WithRemediator(r Remediator) Option {
	return func(w *Wrapper) {
		w.remediator = r
	}
}

// WithFallback replaces the placeholder generator used when a chain is
// exhausted.
func WithFallback(a provider.Adapter) Option {
	return func(w *Wrapper) {
		w.fallback = a
	}
}

// WithSleeper replaces the timer used for backoff waits.
func WithSleeper(s Sleeper) Option {
	return func(w *Wrapper) {
		w.sleeper = s
	}
}

// WithTracker sets the tracker that receives per-request retry state.
func WithTracker(t *Tracker) Option {
	return func(w *Wrapper) {
		w.tracker = t
	}
}

// WithBus sets the event bus for attempt and completion events.
func WithBus(b *event.Bus) Option {
	return func(w *Wrapper) {
		w.bus = b
	}
}

// WithLogger sets the wrapper's logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Wrapper) {
		w.logger = l
	}
}

// NewWrapper creates a Wrapper over registry.
func NewWrapper(registry *provider.Registry, opts ...Option) *Wrapper {
	w := &Wrapper{
		registry: registry,
		fallback: synthetic.New(),
		cfg:      config.Default().Resilience,
		sleeper:  timerSleeper{},
		tracker:  NewTracker(),
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Tracker returns the tracker holding per-request retry state.
func (w *Wrapper) Tracker() *Tracker {
	return w.tracker
}

// execution is the mutable state of one Execute call.
type execution struct {
	req     Request
	state   RetryState
	prompt  string // original or latest remediated payload
	onSafe  bool
	waits   []time.Duration
	logger  *logging.Logger
	started time.Time
}

// Execute runs req to exactly one terminal Result. It never returns an
// error: failures are reported in Result.Status and Result.Err.
func (w *Wrapper) Execute(ctx context.Context, req Request) Result {
	ex := &execution{
		req:     req,
		state:   RetryState{RequestID: req.ID},
		prompt:  req.Call.Prompt,
		logger:  w.logger.WithRequest(req.ID).With("capability", string(req.Call.Capability)),
		started: time.Now(),
	}
	w.tracker.Record(ex.state)

	chain, err := w.registry.Chain(req.Call.Capability)
	if err != nil {
		return w.finish(ex, StatusFailedTerminal, nil, "", err)
	}

	for _, adapter := range chain {
		if ctx.Err() != nil {
			return w.canceled(ctx, ex)
		}
		res, done := w.tryAdapter(ctx, ex, adapter)
		if done {
			return res
		}
		ex.logger.Info("advancing fallback chain",
			"from", adapter.ID(),
			"last_error_kind", ex.state.LastErrorKind)
	}

	if ctx.Err() != nil {
		return w.canceled(ctx, ex)
	}
	return w.placeholder(ctx, ex)
}

// tryAdapter drives one chain entry. It reports done when a terminal result
// was produced, or false to advance the chain.
func (w *Wrapper) tryAdapter(ctx context.Context, ex *execution, adapter provider.Adapter) (Result, bool) {
	ex.state.ProvidersTried = append(ex.state.ProvidersTried, adapter.ID())
	retries := 0
	// Safe-payload retries do not carry over to the next provider.
	defer func() { ex.onSafe = false }()

	for {
		art, err := w.call(ctx, ex, adapter)
		ex.state.Attempt++

		if err == nil {
			event.Publish(w.bus, event.NewGenerationAttemptEvent(ex.req.ID, adapter.ID(), ex.state.Attempt, "success", 0))
			status := StatusSuccess
			if ex.onSafe || art.Placeholder {
				status = StatusDegraded
			}
			return w.finish(ex, status, art, adapter.ID(), nil), true
		}
		if ctx.Err() != nil {
			return w.canceled(ctx, ex), true
		}

		kind := errors.ClassifyProvider(err)
		ex.state.LastErrorKind = kind.String()
		ex.state.LastError = err.Error()
		ex.state.NextBackoff = 0

		switch kind {
		case errors.KindRetryable:
			retries++
			if retries >= w.maxAttempts() {
				w.attempted(ex, adapter)
				return Result{}, false
			}
			d := Backoff(retries, w.cfg.BaseDelay(), w.cfg.MaxDelay())
			ex.state.NextBackoff = d
			w.attempted(ex, adapter)
			ex.logger.Debug("retrying after backoff", "provider", adapter.ID(), "attempt", ex.state.Attempt, "backoff", d)
			if err := w.sleeper.Sleep(ctx, d); err != nil {
				return w.canceled(ctx, ex), true
			}
			ex.waits = append(ex.waits, d)

		case errors.KindPolicy:
			w.attempted(ex, adapter)
			if ex.onSafe || ex.state.SafePayloadUsed {
				return Result{}, false
			}
			if rewritten, ok := w.remediate(ctx, ex, err); ok {
				ex.prompt = rewritten
				continue
			}
			if ctx.Err() != nil {
				return w.canceled(ctx, ex), true
			}
			ex.logger.Warn("remediation exhausted, switching to safe payload", "provider", adapter.ID())
			ex.onSafe = true
			ex.state.SafePayloadUsed = true

		default:
			w.attempted(ex, adapter)
			return Result{}, false
		}
	}
}

func (w *Wrapper) call(ctx context.Context, ex *execution, adapter provider.Adapter) (*provider.Artifact, error) {
	call := ex.req.Call
	call.Prompt = ex.prompt
	if ex.onSafe {
		call.Prompt = SafePayload(call.Capability)
	}

	timeout := w.cfg.CallTimeout()
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type reply struct {
		art *provider.Artifact
		err error
	}
	// Buffered so an adapter that ignores callCtx can return late without
	// leaking its goroutine.
	replies := make(chan reply, 1)
	var pc panics.Catcher
	go func() {
		var r reply
		pc.Try(func() {
			r.art, r.err = provider.Invoke(callCtx, adapter, call)
		})
		replies <- r
	}()

	var r reply
	select {
	case r = <-replies:
		pc.Repanic()
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, errors.NewTimeoutError("provider "+adapter.ID(), timeout).WithCause(callCtx.Err())
	}

	art, err := r.art, r.err
	if err == nil && art == nil {
		err = errors.NewProviderError(errors.KindRetryable, "provider returned no artifact", nil).
			WithProvider(adapter.ID()).WithCapability(string(call.Capability))
	}
	return art, err
}

// remediate spends the request's remediation budget until a rewrite succeeds.
// A failed rewrite still consumes budget.
func (w *Wrapper) remediate(ctx context.Context, ex *execution, cause error) (string, bool) {
	if w.remediator == nil {
		return "", false
	}
	for ex.state.RemediationsUsed < w.cfg.MaxRemediations {
		if ctx.Err() != nil {
			return "", false
		}
		ex.state.RemediationsUsed++
		rewritten, err := w.remediator.Rewrite(ctx, ex.prompt, cause.Error())
		w.tracker.Record(ex.state)
		if err != nil {
			ex.logger.Debug("remediation failed", "used", ex.state.RemediationsUsed, "error", err.Error())
			continue
		}
		if rewritten == "" || rewritten == ex.prompt {
			ex.logger.Debug("remediation made no change", "used", ex.state.RemediationsUsed)
			continue
		}
		ex.logger.Info("payload remediated", "used", ex.state.RemediationsUsed)
		return rewritten, true
	}
	return "", false
}

// placeholder produces the DEGRADED floor result once every chain provider
// has been tried.
func (w *Wrapper) placeholder(ctx context.Context, ex *execution) Result {
	call := ex.req.Call
	call.Prompt = ex.prompt
	art, err := provider.Invoke(ctx, w.fallback, call)
	providerID := w.fallback.ID()
	if err != nil || art == nil {
		ex.logger.Warn("fallback generator failed, using built-in placeholder", "error", errors.Wrap(err, "fallback"))
		floor := synthetic.New()
		art, err = provider.Invoke(ctx, floor, call)
		providerID = floor.ID()
		if art == nil {
			return w.finish(ex, StatusFailedTerminal, nil, "", errors.NewConfigurationError("no placeholder for capability", err).
				WithCapability(string(call.Capability)))
		}
	}
	art.Placeholder = true
	ex.logger.Warn("fallback chain exhausted, returning placeholder",
		"providers_tried", ex.state.ProvidersTried,
		"last_error_kind", ex.state.LastErrorKind)
	return w.finish(ex, StatusDegraded, art, providerID, nil)
}

func (w *Wrapper) canceled(ctx context.Context, ex *execution) Result {
	err := errors.Wrapf(errors.Join(errors.ErrCanceled, context.Cause(ctx)), "request %s", ex.req.ID)
	return w.finish(ex, StatusCanceled, nil, "", err)
}

func (w *Wrapper) attempted(ex *execution, adapter provider.Adapter) {
	w.tracker.Record(ex.state)
	event.Publish(w.bus, event.NewGenerationAttemptEvent(ex.req.ID, adapter.ID(), ex.state.Attempt, ex.state.LastErrorKind, ex.state.NextBackoff))
}

func (w *Wrapper) finish(ex *execution, status Status, art *provider.Artifact, providerID string, err error) Result {
	ex.state.Status = status
	ex.state.NextBackoff = 0
	w.tracker.Record(ex.state)

	res := Result{
		RequestID:      ex.req.ID,
		IdempotencyKey: ex.req.IdempotencyKey,
		Capability:     ex.req.Call.Capability,
		Status:         status,
		Artifact:       art,
		Provider:       providerID,
		Attempts:       ex.state.Attempt,
		Waits:          ex.waits,
		Remediations:   ex.state.RemediationsUsed,
		Err:            err,
	}

	args := []any{"status", string(status), "provider", providerID, "attempts", res.Attempts, "elapsed", time.Since(ex.started)}
	switch status {
	case StatusSuccess:
		ex.logger.Info("request completed", args...)
	case StatusCanceled:
		ex.logger.Info("request canceled", args...)
	default:
		if err != nil {
			args = append(args, "error", err.Error())
		}
		ex.logger.Warn("request completed without its intent", args...)
	}
	event.Publish(w.bus, event.NewGenerationCompletedEvent(ex.req.ID, providerID, string(status), res.Attempts))
	return res
}

func (w *Wrapper) maxAttempts() int {
	if w.cfg.MaxAttempts < 1 {
		return 1
	}
	return w.cfg.MaxAttempts
}
