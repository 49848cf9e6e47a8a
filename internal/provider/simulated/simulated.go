// Package simulated provides an offline provider adapter with deterministic
// output and configurable fault injection. It lets a full run execute, and
// every recovery path be exercised, without network access.
package simulated

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/montage/internal/config"
	"github.com/Iron-Ham/montage/internal/errors"
	"github.com/Iron-Ham/montage/internal/logging"
	"github.com/Iron-Ham/montage/internal/provider"
)

// ID is the adapter name used in fallback chains.
const ID = config.AdapterSimulated

var mimeTypes = map[provider.Capability]string{
	provider.Text:   "text/plain",
	provider.Image:  "image/png",
	provider.Video:  "video/mp4",
	provider.Speech: "audio/wav",
}

// Adapter is the simulated provider.
type Adapter struct {
	id          string
	cfg         config.SimulatedConfig
	unavailable map[provider.Capability]bool
	policy      []*regexp.Regexp
	logger      *logging.Logger

	mu    sync.Mutex
	calls map[provider.Capability]int
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithID registers the adapter under a different name, so that several
// simulated adapters with different faults can form one chain.
func WithID(id string) Option {
	return func(a *Adapter) {
		if id != "" {
			a.id = id
		}
	}
}

// WithLogger sets the adapter's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates a simulated adapter with the given fault injection.
func New(cfg config.SimulatedConfig, opts ...Option) *Adapter {
	a := &Adapter{
		id:          ID,
		cfg:         cfg,
		unavailable: make(map[provider.Capability]bool),
		logger:      logging.NopLogger(),
		calls:       make(map[provider.Capability]int),
	}
	for _, c := range cfg.Unavailable {
		a.unavailable[provider.Capability(strings.ToLower(c))] = true
	}
	for _, term := range cfg.PolicyTerms {
		if term = strings.TrimSpace(term); term != "" {
			a.policy = append(a.policy, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(term)+`\b`))
		}
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) ID() string { return a.id }

func (a *Adapter) GenerateText(ctx context.Context, req provider.TextRequest) (*provider.Artifact, error) {
	task := req.Params[provider.ParamTask]
	// A rewrite request quotes the rejected prompt, so it is never itself
	// subject to the policy check.
	if err := a.admit(ctx, provider.Text, req.Prompt, task != provider.TaskRewrite); err != nil {
		return nil, err
	}

	var content string
	switch task {
	case provider.TaskNegotiate:
		content = negotiate(req.Params)
	case provider.TaskRewrite:
		content = a.rewrite(req.Params[provider.ParamOriginal])
	default:
		content = compose(req.Prompt, req.System)
	}
	art := a.artifact(provider.Text, req.Prompt)
	art.Content = content
	return art, nil
}

func (a *Adapter) GenerateImage(ctx context.Context, req provider.ImageRequest) (*provider.Artifact, error) {
	if err := a.admit(ctx, provider.Image, req.Prompt, true); err != nil {
		return nil, err
	}
	art := a.artifact(provider.Image, req.Prompt)
	if req.AspectRatio != "" {
		art.Metadata["aspect_ratio"] = req.AspectRatio
	}
	return art, nil
}

func (a *Adapter) GenerateVideo(ctx context.Context, req provider.VideoRequest) (*provider.Artifact, error) {
	if err := a.admit(ctx, provider.Video, req.Prompt, true); err != nil {
		return nil, err
	}
	art := a.artifact(provider.Video, req.Prompt)
	if req.ReferenceImage != "" {
		art.Metadata["reference"] = req.ReferenceImage
	}
	if req.DurationSeconds > 0 {
		art.Metadata["duration"] = fmt.Sprint(req.DurationSeconds)
	}
	return art, nil
}

func (a *Adapter) SynthesizeSpeech(ctx context.Context, req provider.SpeechRequest) (*provider.Artifact, error) {
	if err := a.admit(ctx, provider.Speech, req.Text, true); err != nil {
		return nil, err
	}
	art := a.artifact(provider.Speech, req.Text)
	if req.Voice != "" {
		art.Metadata["voice"] = req.Voice
	}
	return art, nil
}

// Calls returns how many calls a capability has received.
func (a *Adapter) Calls(c provider.Capability) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[c]
}

// admit applies latency and fault injection, in order: unavailability,
// periodic rate limiting, then content policy.
func (a *Adapter) admit(ctx context.Context, c provider.Capability, prompt string, checkPolicy bool) error {
	a.mu.Lock()
	a.calls[c]++
	n := a.calls[c]
	a.mu.Unlock()

	if a.cfg.LatencyMs > 0 {
		timer := time.NewTimer(time.Duration(a.cfg.LatencyMs) * time.Millisecond)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return errors.NewProviderError(errors.KindRetryable, "call interrupted", ctx.Err()).
				WithProvider(a.id).WithCapability(string(c))
		case <-timer.C:
		}
	}

	if a.unavailable[c] {
		return errors.NewProviderError(errors.KindUnavailable, "service unavailable", nil).
			WithProvider(a.id).WithCapability(string(c))
	}
	if every := a.cfg.RetryableEvery; every > 0 && n%every == 0 {
		a.logger.Debug("simulated rate limit", "capability", c, "call", n)
		return errors.NewProviderError(errors.KindRetryable, "rate limited", nil).
			WithProvider(a.id).WithCapability(string(c))
	}
	if checkPolicy {
		for _, re := range a.policy {
			if term := re.FindString(prompt); term != "" {
				return errors.NewProviderError(errors.KindPolicy, fmt.Sprintf("prompt rejected by content policy: %q", term), nil).
					WithProvider(a.id).WithCapability(string(c))
			}
		}
	}
	return nil
}

func (a *Adapter) rewrite(original string) string {
	out := original
	for _, re := range a.policy {
		out = re.ReplaceAllString(out, "")
	}
	return strings.Join(strings.Fields(out), " ")
}

func (a *Adapter) artifact(c provider.Capability, prompt string) *provider.Artifact {
	return &provider.Artifact{
		Capability: c,
		ProviderID: a.id,
		URI:        fmt.Sprintf("sim://%s/%s/%08x", a.id, c, hash(prompt)),
		MIMEType:   mimeTypes[c],
		Latency:    time.Duration(a.cfg.LatencyMs) * time.Millisecond,
		Metadata:   map[string]string{},
	}
}

func compose(prompt, system string) string {
	var b strings.Builder
	if system != "" {
		fmt.Fprintf(&b, "[%s]\n", system)
	}
	b.WriteString(strings.TrimSpace(prompt))
	return b.String()
}

// negotiate answers a persona turn. The persona backs the anchor unless its
// hash rejects it one time in four, in which case it proposes its own
// favourite option.
func negotiate(params map[string]string) string {
	personaID := params[provider.ParamPersona]
	topic := params[provider.ParamTopic]
	anchor := params[provider.ParamAnchor]

	var options []string
	for _, o := range strings.Split(params[provider.ParamOptions], provider.OptionSeparator) {
		if o = strings.TrimSpace(o); o != "" {
			options = append(options, o)
		}
	}

	confidence := 0.5 + float64(hash(personaID+"/"+topic)%50)/100

	if anchor != "" && hash(personaID+"/"+topic+"/"+anchor)%4 != 0 {
		return fmt.Sprintf("STANCE: agree\nCONFIDENCE: %.2f\nPAYLOAD: %s", confidence, anchor)
	}
	if len(options) == 0 {
		if anchor == "" {
			return "STANCE: abstain\nCONFIDENCE: 0\nPAYLOAD:"
		}
		return fmt.Sprintf("STANCE: disagree\nCONFIDENCE: %.2f\nPAYLOAD: %s", confidence, anchor)
	}
	favourite := options[hash(personaID+"/"+topic)%uint32(len(options))]
	if favourite == anchor {
		return fmt.Sprintf("STANCE: agree\nCONFIDENCE: %.2f\nPAYLOAD: %s", confidence, anchor)
	}
	return fmt.Sprintf("STANCE: propose\nCONFIDENCE: %.2f\nPAYLOAD: %s", confidence, favourite)
}

func hash(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

var _ provider.Adapter = (*Adapter)(nil)
