package provider_test

import (
	"context"
	"testing"

	"github.com/Iron-Ham/montage/internal/errors"
	"github.com/Iron-Ham/montage/internal/provider"
	"github.com/Iron-Ham/montage/internal/testutil"
)

type textOnly struct {
	provider.Unsupported
}

func (textOnly) ID() string { return "text-only" }

func (textOnly) GenerateText(_ context.Context, req provider.TextRequest) (*provider.Artifact, error) {
	return &provider.Artifact{Capability: provider.Text, ProviderID: "text-only", Content: req.Prompt}, nil
}

func TestUnsupported(t *testing.T) {
	a := textOnly{Unsupported: provider.Unsupported{Name: "text-only"}}

	if _, err := a.GenerateText(context.Background(), provider.TextRequest{Prompt: "hi"}); err != nil {
		t.Fatalf("GenerateText() error = %v", err)
	}

	_, err := a.GenerateVideo(context.Background(), provider.VideoRequest{})
	if got := errors.ClassifyProvider(err); got != errors.KindUnavailable {
		t.Errorf("ClassifyProvider() = %v, want unavailable", got)
	}
	if !errors.Is(err, errors.ErrUnsupportedCapability) {
		t.Errorf("error %v does not wrap ErrUnsupportedCapability", err)
	}
	var pe *errors.ProviderError
	if !errors.As(err, &pe) || pe.ProviderID != "text-only" || pe.Capability != "video" {
		t.Errorf("provider error context = %+v", pe)
	}
}

func TestInvoke_RoutesByCapability(t *testing.T) {
	a := testutil.NewScriptedAdapter("scripted")
	ctx := context.Background()

	for _, c := range provider.Capabilities() {
		t.Run(string(c), func(t *testing.T) {
			art, err := provider.Invoke(ctx, a, provider.Call{
				Capability: c,
				Prompt:     "prompt-" + string(c),
				Params:     map[string]string{provider.ParamDuration: "10"},
			})
			if err != nil {
				t.Fatalf("Invoke() error = %v", err)
			}
			if art.Capability != c {
				t.Errorf("artifact capability = %q, want %q", art.Capability, c)
			}
			if a.CallCount(c) != 1 {
				t.Errorf("CallCount(%s) = %d, want 1", c, a.CallCount(c))
			}
		})
	}

	calls := a.Calls()
	if calls[3].Prompt != "prompt-speech" {
		t.Errorf("speech prompt = %q", calls[3].Prompt)
	}
}

func TestInvoke_UnknownCapability(t *testing.T) {
	_, err := provider.Invoke(context.Background(), testutil.NewScriptedAdapter("x"), provider.Call{Capability: "smell"})
	if got := errors.ClassifyProvider(err); got != errors.KindTerminal {
		t.Errorf("ClassifyProvider() = %v, want terminal", got)
	}
}

func TestCapability_Valid(t *testing.T) {
	for _, c := range provider.Capabilities() {
		if !c.Valid() {
			t.Errorf("%q.Valid() = false", c)
		}
	}
	if provider.Capability("hologram").Valid() {
		t.Error("unknown capability reported valid")
	}
}
