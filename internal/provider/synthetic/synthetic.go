// Package synthetic provides the placeholder generator at the end of every
// fallback chain. It never fails and marks its artifacts as placeholders so
// results built on them are reported as degraded.
package synthetic

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/Iron-Ham/montage/internal/config"
	"github.com/Iron-Ham/montage/internal/provider"
	"github.com/Iron-Ham/montage/internal/util"
)

// ID is the adapter name used in fallback chains.
const ID = config.AdapterSynthetic

var mimeTypes = map[provider.Capability]string{
	provider.Text:   "text/plain",
	provider.Image:  "image/png",
	provider.Video:  "video/mp4",
	provider.Speech: "audio/mpeg",
}

// Adapter produces placeholder artifacts for every capability.
type Adapter struct{}

// New returns the placeholder adapter.
func New() *Adapter { return &Adapter{} }

func (*Adapter) ID() string { return ID }

func (a *Adapter) GenerateText(_ context.Context, req provider.TextRequest) (*provider.Artifact, error) {
	art := a.placeholder(provider.Text, req.Prompt)
	art.Content = "[placeholder] " + util.Cell(req.Prompt, 120)
	return art, nil
}

func (a *Adapter) GenerateImage(_ context.Context, req provider.ImageRequest) (*provider.Artifact, error) {
	art := a.placeholder(provider.Image, req.Prompt)
	if req.AspectRatio != "" {
		art.Metadata["aspect_ratio"] = req.AspectRatio
	}
	return art, nil
}

func (a *Adapter) GenerateVideo(_ context.Context, req provider.VideoRequest) (*provider.Artifact, error) {
	art := a.placeholder(provider.Video, req.Prompt)
	if req.DurationSeconds > 0 {
		art.Metadata["duration"] = fmt.Sprint(req.DurationSeconds)
	}
	return art, nil
}

func (a *Adapter) SynthesizeSpeech(_ context.Context, req provider.SpeechRequest) (*provider.Artifact, error) {
	return a.placeholder(provider.Speech, req.Text), nil
}

func (*Adapter) placeholder(c provider.Capability, prompt string) *provider.Artifact {
	h := fnv.New32a()
	_, _ = h.Write([]byte(prompt))
	return &provider.Artifact{
		Capability:  c,
		ProviderID:  ID,
		URI:         fmt.Sprintf("placeholder://%s/%08x", c, h.Sum32()),
		MIMEType:    mimeTypes[c],
		Placeholder: true,
		Metadata:    map[string]string{"reason": "fallback chain exhausted"},
	}
}

var _ provider.Adapter = (*Adapter)(nil)
