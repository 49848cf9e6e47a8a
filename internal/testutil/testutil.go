// Package testutil provides scripted fakes shared by montage tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Iron-Ham/montage/internal/errors"
	"github.com/Iron-Ham/montage/internal/provider"
)

// Step is one scripted outcome of an adapter call.
type Step struct {
	Err      error
	Artifact *provider.Artifact
	// Delay blocks the call (honouring ctx) before the outcome is returned.
	Delay time.Duration
}

// OK is a successful step.
func OK() Step { return Step{} }

// Fail is a step failing with a provider error of the given kind.
func Fail(kind errors.ProviderKind) Step {
	return Step{Err: errors.NewProviderError(kind, "scripted "+kind.String()+" failure", nil)}
}

// Hang is a step that blocks until ctx is done.
func Hang() Step { return Step{Delay: time.Hour} }

// ScriptedAdapter is a provider.Adapter whose outcomes follow a per-capability
// script. Once a script is exhausted its last step repeats; a capability
// without a script succeeds.
type ScriptedAdapter struct {
	id string

	mu      sync.Mutex
	scripts map[provider.Capability][]Step
	next    map[provider.Capability]int
	calls   []provider.Call
	respond func(provider.Call) string
}

// NewScriptedAdapter creates an adapter that succeeds until scripted otherwise.
func NewScriptedAdapter(id string) *ScriptedAdapter {
	return &ScriptedAdapter{
		id:      id,
		scripts: make(map[provider.Capability][]Step),
		next:    make(map[provider.Capability]int),
	}
}

// On sets the script for a capability.
func (s *ScriptedAdapter) On(c provider.Capability, steps ...Step) *ScriptedAdapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[c] = steps
	s.next[c] = 0
	return s
}

// Respond sets the text content returned by successful calls.
func (s *ScriptedAdapter) Respond(fn func(provider.Call) string) *ScriptedAdapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.respond = fn
	return s
}

// Calls returns every call received, in order.
func (s *ScriptedAdapter) Calls() []provider.Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]provider.Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many calls a capability received.
func (s *ScriptedAdapter) CallCount(c provider.Capability) int {
	n := 0
	for _, call := range s.Calls() {
		if call.Capability == c {
			n++
		}
	}
	return n
}

func (s *ScriptedAdapter) ID() string { return s.id }

func (s *ScriptedAdapter) GenerateText(ctx context.Context, req provider.TextRequest) (*provider.Artifact, error) {
	return s.do(ctx, provider.Call{Capability: provider.Text, Prompt: req.Prompt, Params: req.Params})
}

func (s *ScriptedAdapter) GenerateImage(ctx context.Context, req provider.ImageRequest) (*provider.Artifact, error) {
	return s.do(ctx, provider.Call{Capability: provider.Image, Prompt: req.Prompt, Params: req.Params})
}

func (s *ScriptedAdapter) GenerateVideo(ctx context.Context, req provider.VideoRequest) (*provider.Artifact, error) {
	return s.do(ctx, provider.Call{Capability: provider.Video, Prompt: req.Prompt, Params: req.Params})
}

func (s *ScriptedAdapter) SynthesizeSpeech(ctx context.Context, req provider.SpeechRequest) (*provider.Artifact, error) {
	return s.do(ctx, provider.Call{Capability: provider.Speech, Prompt: req.Text, Params: req.Params})
}

func (s *ScriptedAdapter) do(ctx context.Context, call provider.Call) (*provider.Artifact, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	step := OK()
	if script := s.scripts[call.Capability]; len(script) > 0 {
		i := s.next[call.Capability]
		if i >= len(script) {
			i = len(script) - 1
		} else {
			s.next[call.Capability] = i + 1
		}
		step = script[i]
	}
	respond := s.respond
	n := len(s.calls)
	s.mu.Unlock()

	if step.Delay > 0 {
		timer := time.NewTimer(step.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if step.Err != nil {
		if pe, ok := step.Err.(*errors.ProviderError); ok {
			clone := *pe
			return nil, clone.WithProvider(s.id).WithCapability(string(call.Capability))
		}
		return nil, step.Err
	}
	if step.Artifact != nil {
		a := *step.Artifact
		return &a, nil
	}

	a := &provider.Artifact{
		Capability: call.Capability,
		ProviderID: s.id,
		URI:        fmt.Sprintf("test://%s/%s/%d", s.id, call.Capability, n),
	}
	if respond != nil {
		a.Content = respond(call)
	} else if call.Capability == provider.Text {
		a.Content = "text for: " + call.Prompt
	}
	return a, nil
}

// Sleeper records backoff waits instead of sleeping.
type Sleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

// Sleep records d and returns ctx.Err() without blocking.
func (s *Sleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return nil
}

// Waits returns the recorded waits in order.
func (s *Sleeper) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.waits))
	copy(out, s.waits)
	return out
}

// Clock returns a deterministic clock that advances one second per reading.
func Clock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := now
		now = now.Add(time.Second)
		return t
	}
}
