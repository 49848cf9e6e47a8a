package dispatch

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/montage/internal/errors"
	"github.com/Iron-Ham/montage/internal/logging"
	"github.com/Iron-Ham/montage/internal/provider"
	"github.com/Iron-Ham/montage/internal/resilience"
)

// Executor runs one request to a terminal result. *resilience.Wrapper
// implements it.
type Executor interface {
	Execute(ctx context.Context, req resilience.Request) resilience.Result
}

// ChainLookup reports the fallback chain of a capability. *provider.Registry
// implements it.
type ChainLookup interface {
	Chain(c provider.Capability) ([]provider.Adapter, error)
}

var (
	_ Executor    = (*resilience.Wrapper)(nil)
	_ ChainLookup = (*provider.Registry)(nil)
)

// Dispatcher fans requests out to an Executor in dependency order. It never
// retries on its own; recovery belongs to the Executor.
type Dispatcher struct {
	exec        Executor
	chains      ChainLookup
	concurrency int
	logger      *logging.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithConcurrency bounds how many requests run at once.
func WithConcurrency(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithLogger sets the dispatcher's logger.
func WithLogger(l *logging.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(exec Executor, chains ChainLookup, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		exec:        exec,
		chains:      chains,
		concurrency: 4,
		logger:      logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Execute runs every request and returns a report with one terminal result
// per request.
//
// A capability without a fallback chain is caught before any provider is
// called: the first such request is executed to produce its FAILED_TERMINAL
// result, every other request is marked CANCELED, and the configuration
// error is returned alongside the report. Invalid request graphs return a
// ValidationError and no report.
func (d *Dispatcher) Execute(ctx context.Context, requests []Request) (*Report, error) {
	levels, err := Validate(requests)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Request, len(requests))
	for _, r := range requests {
		byID[r.ID] = r
	}

	if rep, err := d.preflight(ctx, requests); err != nil {
		return rep, err
	}

	var mu sync.Mutex
	results := make(map[string]resilience.Result, len(requests))
	lookup := func(id string) (resilience.Result, bool) {
		mu.Lock()
		defer mu.Unlock()
		r, ok := results[id]
		return r, ok
	}

	for n, level := range levels {
		d.logger.Debug("dispatching level", "level", n, "requests", len(level))

		var g errgroup.Group
		g.SetLimit(d.concurrency)
		for _, id := range level {
			req := byID[id]
			g.Go(func() error {
				res := d.run(ctx, req, lookup)
				mu.Lock()
				results[req.ID] = res
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait() // goroutines report through results
	}

	rep := newReport(requests, results)
	if ctx.Err() != nil {
		return rep, errors.Wrap(errors.Join(errors.ErrCanceled, context.Cause(ctx)), "dispatch")
	}
	return rep, nil
}

func (d *Dispatcher) preflight(ctx context.Context, requests []Request) (*Report, error) {
	for i, r := range requests {
		if _, err := d.chains.Chain(r.Capability); err == nil {
			continue
		}

		d.logger.Error("capability has no provider chain, aborting run",
			"request_id", r.ID, "capability", string(r.Capability))
		results := make(map[string]resilience.Result, len(requests))
		failed := d.exec.Execute(ctx, r.resilient())
		results[r.ID] = failed
		for j, other := range requests {
			if j != i {
				results[other.ID] = canceled(other, errors.Wrapf(errors.ErrCanceled, "run aborted: capability %s has no provider", r.Capability))
			}
		}
		return newReport(requests, results), failed.Err
	}
	return nil, nil
}

// run executes one request once its dependencies have results.
func (d *Dispatcher) run(ctx context.Context, req Request, lookup func(string) (resilience.Result, bool)) resilience.Result {
	if ctx.Err() != nil {
		return canceled(req, errors.Join(errors.ErrCanceled, context.Cause(ctx)))
	}

	rr := req.resilient()
	if rr.Call.Params == nil {
		rr.Call.Params = make(map[string]string)
	}
	for _, dep := range req.DependsOn {
		res, ok := lookup(dep)
		if !ok || !res.OK() || res.Artifact == nil {
			return canceled(req, errors.Wrapf(errors.ErrCanceled, "dependency %s did not complete", dep))
		}
		inject(&rr, dep, res.Artifact)
	}
	return d.exec.Execute(ctx, rr)
}

// inject passes a dependency's artifact to its dependent: the URI as a
// ref.<id> parameter, text content in place of {{id}} prompt tokens, and a
// keyframe image as the reference of a video request.
func inject(rr *resilience.Request, dep string, art *provider.Artifact) {
	rr.Call.Params[provider.ParamRefPrefix+dep] = art.URI
	if art.Content != "" {
		rr.Call.Prompt = strings.ReplaceAll(rr.Call.Prompt, "{{"+dep+"}}", art.Content)
	}
	if rr.Call.Capability == provider.Video && art.Capability == provider.Image && rr.Call.Params[provider.ParamReference] == "" {
		rr.Call.Params[provider.ParamReference] = art.URI
	}
}

func canceled(req Request, err error) resilience.Result {
	return resilience.Result{
		RequestID:      req.ID,
		IdempotencyKey: req.IdempotencyKey,
		Capability:     req.Capability,
		Status:         resilience.StatusCanceled,
		Err:            err,
	}
}
