package mission

import (
	"slices"
	"strings"

	"github.com/gobwas/glob"

	"github.com/Iron-Ham/montage/internal/config"
	"github.com/Iron-Ham/montage/internal/errors"
)

// Topic IDs decided by built-in rules rather than negotiation.
const (
	TopicAspectRatio  = "aspect_ratio"
	TopicSegmentCount = "segment_count"
)

// Topic IDs of the built-in catalog. The dispatch planner reads these.
const (
	TopicNarrative    = "narrative_structure"
	TopicHook         = "hook"
	TopicTone         = "tone"
	TopicVisualStyle  = "visual_style"
	TopicColorPalette = "color_palette"
	TopicPacing       = "pacing"
	TopicMusic        = "music"
)

// IsRuleTopic reports whether id is decided by a built-in rule.
func IsRuleTopic(id string) bool {
	return id == TopicAspectRatio || id == TopicSegmentCount
}

// TopicSpec declares a decision point.
type TopicSpec struct {
	ID    string
	Title string
	// Expertise holds glob patterns matched against persona expertise tags.
	Expertise []string
	Options   []string
	// Default is used when negotiation yields nothing. Defaults to the first option.
	Default string
	// Threshold overrides the configured default convergence threshold when > 0.
	Threshold float64
	Requires  []string
}

// TopicCatalog is an ordered set of topic specs with compiled expertise globs.
type TopicCatalog struct {
	specs    []TopicSpec
	byID     map[string]int
	matchers [][]glob.Glob
}

// NewTopicCatalog validates specs and compiles their expertise patterns.
func NewTopicCatalog(specs []TopicSpec) (*TopicCatalog, error) {
	c := &TopicCatalog{byID: make(map[string]int, len(specs))}
	for _, s := range specs {
		field := "topics." + s.ID
		switch {
		case s.ID == "":
			return nil, errors.NewValidationError("topic id is required").WithField("topics")
		case IsRuleTopic(s.ID):
			return nil, errors.NewValidationError("topic id is reserved for a built-in rule").WithField(field)
		case len(s.Options) == 0:
			return nil, errors.NewValidationError("topic needs at least one option").WithField(field)
		}
		if _, dup := c.byID[s.ID]; dup {
			return nil, errors.NewValidationError("duplicate topic").WithField(field)
		}

		if s.Default == "" {
			s.Default = s.Options[0]
		} else if !slices.Contains(s.Options, s.Default) {
			return nil, errors.NewValidationError("default is not one of the options").
				WithField(field + ".default").WithValue(s.Default)
		}
		if s.Title == "" {
			s.Title = s.ID
		}

		matchers := make([]glob.Glob, 0, len(s.Expertise))
		for _, pattern := range s.Expertise {
			g, err := glob.Compile(strings.ToLower(pattern))
			if err != nil {
				return nil, errors.NewValidationError("invalid expertise pattern").
					WithField(field + ".expertise").WithValue(pattern).WithCause(err)
			}
			matchers = append(matchers, g)
		}

		s.Expertise = slices.Clone(s.Expertise)
		s.Options = slices.Clone(s.Options)
		s.Requires = slices.Clone(s.Requires)
		c.byID[s.ID] = len(c.specs)
		c.specs = append(c.specs, s)
		c.matchers = append(c.matchers, matchers)
	}

	for _, s := range c.specs {
		for _, dep := range s.Requires {
			if _, ok := c.byID[dep]; !ok && !IsRuleTopic(dep) {
				return nil, errors.NewValidationError("topic requires an unknown topic").
					WithField("topics." + s.ID + ".requires").WithValue(dep)
			}
		}
	}
	return c, nil
}

// TopicsFromConfig returns the configured catalog, or the built-in one when
// the configuration declares no topics.
func TopicsFromConfig(entries []config.TopicConfig) (*TopicCatalog, error) {
	if len(entries) == 0 {
		return DefaultTopics(), nil
	}
	specs := make([]TopicSpec, 0, len(entries))
	for _, e := range entries {
		specs = append(specs, TopicSpec{
			ID:        e.ID,
			Title:     e.Title,
			Expertise: e.Expertise,
			Options:   e.Options,
			Default:   e.Default,
			Threshold: e.Threshold,
			Requires:  e.Requires,
		})
	}
	return NewTopicCatalog(specs)
}

// Get looks a spec up by ID.
func (c *TopicCatalog) Get(id string) (TopicSpec, bool) {
	i, ok := c.byID[id]
	if !ok {
		return TopicSpec{}, false
	}
	return c.specs[i], true
}

// Has reports whether id is a catalog topic or a rule topic.
func (c *TopicCatalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok || IsRuleTopic(id)
}

// All returns the specs in catalog order.
func (c *TopicCatalog) All() []TopicSpec {
	out := make([]TopicSpec, len(c.specs))
	copy(out, c.specs)
	return out
}

// Matches reports how many of tags match the topic's expertise patterns.
func (c *TopicCatalog) Matches(id string, tags []string) int {
	i, ok := c.byID[id]
	if !ok {
		return 0
	}
	n := 0
	for _, tag := range tags {
		tag = strings.ToLower(tag)
		for _, g := range c.matchers[i] {
			if g.Match(tag) {
				n++
				break
			}
		}
	}
	return n
}

// DefaultTopics returns the built-in topic catalog.
func DefaultTopics() *TopicCatalog {
	c, err := NewTopicCatalog(builtinTopics)
	if err != nil {
		panic(err) // builtinTopics is static
	}
	return c
}

var builtinTopics = []TopicSpec{
	{
		ID:        TopicNarrative,
		Title:     "Narrative structure",
		Expertise: []string{"narrative", "story*", "script", "structure"},
		Options:   []string{"hook-problem-solution", "three-act", "listicle", "step-by-step"},
	},
	{
		ID:        TopicHook,
		Title:     "Opening hook",
		Expertise: []string{"hook", "engagement", "script"},
		Options:   []string{"question", "bold-claim", "surprising-stat", "visual-tease"},
		Requires:  []string{TopicNarrative},
	},
	{
		ID:        TopicTone,
		Title:     "Tone of voice",
		Expertise: []string{"tone", "brand", "audience"},
		Options:   []string{"informative", "playful", "inspirational", "urgent"},
	},
	{
		ID:        TopicVisualStyle,
		Title:     "Visual style",
		Expertise: []string{"visual", "camera", "composition", "illustration", "motion"},
		Options:   []string{"minimalist", "cinematic", "illustrated", "documentary"},
		Requires:  []string{TopicTone},
	},
	{
		ID:        TopicColorPalette,
		Title:     "Color palette",
		Expertise: []string{"colo*r", "brand", "visual"},
		Options:   []string{"cool", "warm", "monochrome", "vibrant"},
		Requires:  []string{TopicVisualStyle},
	},
	{
		ID:        TopicPacing,
		Title:     "Pacing",
		Expertise: []string{"pacing", "rhythm", "edit*", "motion"},
		Options:   []string{"moderate", "slow", "fast"},
		Requires:  []string{TopicNarrative},
	},
	{
		ID:        TopicMusic,
		Title:     "Music bed",
		Expertise: []string{"audio", "music", "sound*", "rhythm"},
		Options:   []string{"ambient", "upbeat", "orchestral", "none"},
		Requires:  []string{TopicTone},
	},
}
