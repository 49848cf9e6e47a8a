package dispatch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Iron-Ham/montage/internal/errors"
	"github.com/Iron-Ham/montage/internal/ledger"
	"github.com/Iron-Ham/montage/internal/mission"
	"github.com/Iron-Ham/montage/internal/provider"
)

// Request IDs produced by the Planner. Per-segment requests are numbered
// from 1: keyframe-1, segment-1, ...
const (
	RequestScript    = "script"
	RequestVoiceover = "voiceover"
	RequestThumbnail = "thumbnail"
	keyframePrefix   = "keyframe-"
	segmentPrefix    = "segment-"
)

// Planner turns ledger decisions into generation requests.
type Planner struct {
	runID          string
	segmentSeconds int
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithSegmentSeconds sets the segment length used when the ledger has no
// segment_count decision.
func WithSegmentSeconds(seconds int) PlannerOption {
	return func(p *Planner) {
		if seconds > 0 {
			p.segmentSeconds = seconds
		}
	}
}

// NewPlanner creates a Planner for one run. The run ID seeds idempotency keys.
func NewPlanner(runID string, opts ...PlannerOption) *Planner {
	p := &Planner{runID: runID, segmentSeconds: 10}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan builds the request graph for intent from the decisions in view:
// a script, a voiceover reading it, one keyframe and one video segment per
// segment, and a thumbnail. Missing decisions leave their slot generic.
func (p *Planner) Plan(view ledger.View, in *mission.Intent) ([]Request, error) {
	if in == nil || in.Mission() == "" {
		return nil, errors.NewValidationError("cannot plan without a mission").
			WithField("mission").WithCause(errors.ErrInvalidIntent)
	}
	d := decisions{view: view}

	duration := in.DurationSeconds()
	segments := p.segmentCount(d, duration)
	segmentLength := max(1, duration/segments)
	aspect := d.value(mission.TopicAspectRatio, "16:9")
	style := d.value(mission.TopicVisualStyle, "")
	palette := d.value(mission.TopicColorPalette, "")

	var reqs []Request
	reqs = append(reqs, Request{
		ID:         RequestScript,
		Capability: provider.Text,
		Prompt: sentences(
			fmt.Sprintf("Write the narration for a %d-second video: %s", duration, in.Mission()),
			labelled("Structure", d.value(mission.TopicNarrative, "")),
			labelled("Open with a hook of type", d.value(mission.TopicHook, "")),
			labelled("Tone", d.value(mission.TopicTone, "")),
			labelled("Audience", in.Audience()),
			fmt.Sprintf("Split it into %d part(s) of about %d seconds", segments, segmentLength),
		),
		Params: map[string]string{
			provider.ParamSystem: "You write tight, spoken-word scripts for short videos. Reply with the script only.",
		},
		Topics: []string{mission.TopicNarrative, mission.TopicHook, mission.TopicTone},
	})
	reqs = append(reqs, Request{
		ID:         RequestVoiceover,
		Capability: provider.Speech,
		Prompt:     "{{" + RequestScript + "}}",
		Params: map[string]string{
			provider.ParamVoice: d.value(mission.TopicTone, "neutral"),
			"music":             d.value(mission.TopicMusic, "none"),
		},
		DependsOn: []string{RequestScript},
		Topics:    []string{mission.TopicTone, mission.TopicMusic},
	})

	for i := 1; i <= segments; i++ {
		keyframe := keyframePrefix + strconv.Itoa(i)
		reqs = append(reqs, Request{
			ID:         keyframe,
			Capability: provider.Image,
			Prompt: sentences(
				fmt.Sprintf("Keyframe %d of %d for: %s", i, segments, in.Mission()),
				labelled("Style", style),
				labelled("Palette", palette),
			),
			Params: map[string]string{
				provider.ParamAspectRatio: aspect,
				provider.ParamStyle:       style,
			},
			Topics: []string{mission.TopicVisualStyle, mission.TopicColorPalette, mission.TopicAspectRatio},
		})
		reqs = append(reqs, Request{
			ID:         segmentPrefix + strconv.Itoa(i),
			Capability: provider.Video,
			Prompt: sentences(
				fmt.Sprintf("Animate keyframe %d of %d for: %s", i, segments, in.Mission()),
				labelled("Pacing", d.value(mission.TopicPacing, "")),
			),
			Params: map[string]string{
				provider.ParamAspectRatio: aspect,
				provider.ParamDuration:    strconv.Itoa(segmentLength),
			},
			DependsOn: []string{keyframe},
			Topics:    []string{mission.TopicPacing, mission.TopicSegmentCount, mission.TopicAspectRatio},
		})
	}

	reqs = append(reqs, Request{
		ID:         RequestThumbnail,
		Capability: provider.Image,
		Prompt: sentences(
			"Thumbnail for: "+in.Mission(),
			labelled("Hook", d.value(mission.TopicHook, "")),
			labelled("Style", style),
		),
		Params: map[string]string{
			provider.ParamAspectRatio: aspect,
			provider.ParamStyle:       style,
		},
		Topics: []string{mission.TopicHook, mission.TopicVisualStyle, mission.TopicAspectRatio},
	})

	for i := range reqs {
		reqs[i].IdempotencyKey = IdempotencyKey(p.runID, reqs[i].ID, reqs[i].Prompt)
	}
	return reqs, nil
}

func (p *Planner) segmentCount(d decisions, duration int) int {
	if n, err := strconv.Atoi(d.value(mission.TopicSegmentCount, "")); err == nil && n > 0 {
		return n
	}
	return mission.SegmentCount(duration, p.segmentSeconds)
}

type decisions struct {
	view ledger.View
}

func (d decisions) value(topicID, fallback string) string {
	if d.view == nil {
		return fallback
	}
	if dec, ok := d.view.Latest(topicID); ok && dec.Value != "" {
		return dec.Value
	}
	return fallback
}

func labelled(label, value string) string {
	if value == "" {
		return ""
	}
	return label + ": " + value
}

// sentences joins the non-empty parts into a period-separated prompt.
func sentences(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(strings.TrimSuffix(p, "."))
		b.WriteString(".")
	}
	return b.String()
}
