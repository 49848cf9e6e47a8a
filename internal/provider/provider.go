package provider

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Iron-Ham/montage/internal/errors"
)

// Capability is a kind of generation a provider can perform.
type Capability string

const (
	Text   Capability = "text"
	Image  Capability = "image"
	Video  Capability = "video"
	Speech Capability = "speech"
)

// Capabilities returns every capability in a stable order.
func Capabilities() []Capability {
	return []Capability{Text, Image, Video, Speech}
}

// Valid reports whether c is a known capability.
func (c Capability) Valid() bool {
	switch c {
	case Text, Image, Video, Speech:
		return true
	}
	return false
}

// Well-known request parameter keys.
const (
	ParamSystem      = "system"
	ParamTask        = "task"
	ParamAspectRatio = "aspect_ratio"
	ParamStyle       = "style"
	ParamDuration    = "duration"
	ParamVoice       = "voice"
	ParamReference   = "reference"
	// ParamRefPrefix prefixes the artifact URI of each dependency.
	ParamRefPrefix = "ref."

	// Structured text tasks carry their inputs alongside the prompt so that
	// offline adapters can answer without parsing prose.
	ParamPersona  = "persona"
	ParamTopic    = "topic"
	ParamOptions  = "options"
	ParamAnchor   = "anchor"
	ParamOriginal = "original"
	ParamReason   = "reason"
)

// Values of ParamTask.
const (
	TaskNegotiate = "negotiate"
	TaskRewrite   = "rewrite"
)

// OptionSeparator joins the candidate values in ParamOptions.
const OptionSeparator = "|"

// TextRequest asks for generated text.
type TextRequest struct {
	Prompt    string
	System    string
	MaxTokens int
	Params    map[string]string
}

// ImageRequest asks for a still image.
type ImageRequest struct {
	Prompt      string
	AspectRatio string
	Style       string
	Params      map[string]string
}

// VideoRequest asks for a video clip.
type VideoRequest struct {
	Prompt          string
	AspectRatio     string
	DurationSeconds int
	// ReferenceImage is the URI of a keyframe to animate, if any.
	ReferenceImage string
	Params         map[string]string
}

// SpeechRequest asks for synthesized narration.
type SpeechRequest struct {
	Text   string
	Voice  string
	Params map[string]string
}

// Artifact is a successful generation: a reference to the produced media,
// plus inline content for text.
type Artifact struct {
	Capability Capability    `json:"capability"`
	ProviderID string        `json:"provider_id"`
	URI        string        `json:"uri"`
	MIMEType   string        `json:"mime_type,omitempty"`
	Content    string        `json:"content,omitempty"`
	Latency    time.Duration `json:"latency"`

	// Placeholder marks synthetic stand-ins produced by the degradation floor.
	Placeholder bool              `json:"placeholder,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Adapter is the uniform contract over a generation backend. Every method
// returns either an artifact or an error; errors should be
// *errors.ProviderError so the execution layer can pick a recovery path.
type Adapter interface {
	ID() string
	GenerateText(ctx context.Context, req TextRequest) (*Artifact, error)
	GenerateImage(ctx context.Context, req ImageRequest) (*Artifact, error)
	GenerateVideo(ctx context.Context, req VideoRequest) (*Artifact, error)
	SynthesizeSpeech(ctx context.Context, req SpeechRequest) (*Artifact, error)
}

// Unsupported answers every capability with an UNAVAILABLE provider error.
// Embed it in adapters that implement only some capabilities.
type Unsupported struct {
	Name string
}

func (u Unsupported) unsupported(c Capability) error {
	return errors.NewProviderError(errors.KindUnavailable, "capability not supported", errors.ErrUnsupportedCapability).
		WithProvider(u.Name).WithCapability(string(c))
}

// GenerateText reports text generation as unsupported.
func (u Unsupported) GenerateText(context.Context, TextRequest) (*Artifact, error) {
	return nil, u.unsupported(Text)
}

// GenerateImage reports image generation as unsupported.
func (u Unsupported) GenerateImage(context.Context, ImageRequest) (*Artifact, error) {
	return nil, u.unsupported(Image)
}

// GenerateVideo reports video generation as unsupported.
func (u Unsupported) GenerateVideo(context.Context, VideoRequest) (*Artifact, error) {
	return nil, u.unsupported(Video)
}

// SynthesizeSpeech reports speech synthesis as unsupported.
func (u Unsupported) SynthesizeSpeech(context.Context, SpeechRequest) (*Artifact, error) {
	return nil, u.unsupported(Speech)
}

// Call is a capability-agnostic request. Invoke maps it onto the matching
// Adapter method.
type Call struct {
	Capability Capability
	Prompt     string
	Params     map[string]string
}

// Invoke performs c against a. Unknown capabilities are a programming error
// and reported as TERMINAL.
func Invoke(ctx context.Context, a Adapter, c Call) (*Artifact, error) {
	p := c.Params
	switch c.Capability {
	case Text:
		maxTokens, _ := strconv.Atoi(p["max_tokens"])
		return a.GenerateText(ctx, TextRequest{Prompt: c.Prompt, System: p[ParamSystem], MaxTokens: maxTokens, Params: p})
	case Image:
		return a.GenerateImage(ctx, ImageRequest{Prompt: c.Prompt, AspectRatio: p[ParamAspectRatio], Style: p[ParamStyle], Params: p})
	case Video:
		seconds, _ := strconv.Atoi(p[ParamDuration])
		return a.GenerateVideo(ctx, VideoRequest{
			Prompt:          c.Prompt,
			AspectRatio:     p[ParamAspectRatio],
			DurationSeconds: seconds,
			ReferenceImage:  p[ParamReference],
			Params:          p,
		})
	case Speech:
		return a.SynthesizeSpeech(ctx, SpeechRequest{Text: c.Prompt, Voice: p[ParamVoice], Params: p})
	}
	return nil, errors.NewProviderError(errors.KindTerminal, fmt.Sprintf("unknown capability %q", c.Capability), nil).
		WithProvider(a.ID())
}
