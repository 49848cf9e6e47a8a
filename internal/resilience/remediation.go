package resilience

import (
	"context"
	"fmt"
	"strings"

	"github.com/Iron-Ham/montage/internal/errors"
	"github.com/Iron-Ham/montage/internal/provider"
)

// Remediator rewrites a payload that a provider rejected on content-policy
// grounds.
type Remediator interface {
	Rewrite(ctx context.Context, prompt, reason string) (string, error)
}

// RemediatorFunc adapts a function to Remediator.
type RemediatorFunc func(ctx context.Context, prompt, reason string) (string, error)

// Rewrite calls f.
func (f RemediatorFunc) Rewrite(ctx context.Context, prompt, reason string) (string, error) {
	return f(ctx, prompt, reason)
}

// TextRemediator rewrites payloads through a text provider.
type TextRemediator struct {
	adapter provider.Adapter
}

// NewTextRemediator creates a remediator backed by a text adapter.
func NewTextRemediator(adapter provider.Adapter) *TextRemediator {
	return &TextRemediator{adapter: adapter}
}

const rewriteSystem = "You rewrite generation prompts so that they comply with content policies " +
	"while keeping their creative intent. Reply with the rewritten prompt only."

// Rewrite implements Remediator.
func (r *TextRemediator) Rewrite(ctx context.Context, prompt, reason string) (string, error) {
	art, err := r.adapter.GenerateText(ctx, provider.TextRequest{
		Prompt: fmt.Sprintf("This prompt was rejected (%s). Rewrite it.\n\n%s", reason, prompt),
		System: rewriteSystem,
		Params: map[string]string{
			provider.ParamTask:     provider.TaskRewrite,
			provider.ParamOriginal: prompt,
			provider.ParamReason:   reason,
		},
	})
	if err != nil {
		return "", errors.Join(errors.ErrRemediationFailed, err)
	}
	rewritten := strings.TrimSpace(art.Content)
	if rewritten == "" {
		return "", errors.Wrap(errors.ErrRemediationFailed, "empty rewrite")
	}
	return rewritten, nil
}

var safePayloads = map[provider.Capability]string{
	provider.Text:   "Write a short, neutral, family-friendly narration introducing the subject.",
	provider.Image:  "A clean, neutral abstract background with soft gradients.",
	provider.Video:  "A slow, calm camera pan across a neutral abstract background.",
	provider.Speech: "Thanks for watching.",
}

// SafePayload returns the generic payload used once remediation is
// exhausted. It carries no intent-specific content.
func SafePayload(c provider.Capability) string {
	if p, ok := safePayloads[c]; ok {
		return p
	}
	return "A neutral placeholder."
}
