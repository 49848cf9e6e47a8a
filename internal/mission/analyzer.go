package mission

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/Iron-Ham/montage/internal/config"
	"github.com/Iron-Ham/montage/internal/errors"
	"github.com/Iron-Ham/montage/internal/ledger"
	"github.com/Iron-Ham/montage/internal/logging"
	"github.com/Iron-Ham/montage/internal/persona"
	"github.com/Iron-Ham/montage/internal/util"
)

// Topic is a decision point prepared for negotiation: its TopicSpec plus the
// personas that will discuss it and the threshold they must reach.
type Topic struct {
	ID        string
	Title     string
	Options   []string
	Default   string
	Threshold float64
	Personas  []persona.Persona
	Requires  []string
}

// Analysis is the result of analyzing an intent.
type Analysis struct {
	// Topics in dependency order.
	Topics []Topic
	// Levels groups Topics so that every topic only requires topics of
	// earlier levels (or fast-path topics). Topics within a level are
	// independent.
	Levels [][]Topic
	// FastPath holds the RULE decisions that need no negotiation.
	FastPath []ledger.Decision
}

// Analyzer turns an Intent into topics and fast-path decisions. It is
// deterministic: identical intents yield identical analyses.
type Analyzer struct {
	topics         *TopicCatalog
	personas       *persona.Catalog
	negotiation    config.NegotiationConfig
	segmentSeconds int
	logger         *logging.Logger
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithNegotiationConfig sets persona bounds and thresholds.
func WithNegotiationConfig(cfg config.NegotiationConfig) AnalyzerOption {
	return func(a *Analyzer) {
		a.negotiation = cfg
	}
}

// WithSegmentSeconds sets the target video segment length.
func WithSegmentSeconds(seconds int) AnalyzerOption {
	return func(a *Analyzer) {
		if seconds > 0 {
			a.segmentSeconds = seconds
		}
	}
}

// WithLogger sets the analyzer's logger.
func WithLogger(logger *logging.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAnalyzer creates an Analyzer over the given catalogs.
func NewAnalyzer(topics *TopicCatalog, personas *persona.Catalog, opts ...AnalyzerOption) *Analyzer {
	defaults := config.Default()
	a := &Analyzer{
		topics:         topics,
		personas:       personas,
		negotiation:    defaults.Negotiation,
		segmentSeconds: defaults.Dispatch.SegmentSeconds,
		logger:         logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze validates the intent, resolves rule topics and overrides, and
// prepares every remaining topic for negotiation. A malformed intent yields
// a *errors.ValidationError; no other error is returned for a valid catalog.
func (a *Analyzer) Analyze(in *Intent) (*Analysis, error) {
	if err := a.validate(in); err != nil {
		return nil, err
	}

	analysis := &Analysis{FastPath: a.ruleDecisions(in)}

	selected := in.Topics()
	var candidates []TopicSpec
	for _, spec := range a.topics.All() {
		if len(selected) > 0 && !slices.Contains(selected, spec.ID) {
			continue
		}
		if value, ok := in.Override(spec.ID); ok {
			analysis.FastPath = append(analysis.FastPath, ledger.Rule(spec.ID, value,
				fmt.Sprintf("explicit override %q supplied with the mission", value)))
			continue
		}
		candidates = append(candidates, spec)
	}

	byID := make(map[string]Topic, len(candidates))
	ids := make([]string, 0, len(candidates))
	for _, spec := range candidates {
		byID[spec.ID] = a.prepare(spec, in)
		ids = append(ids, spec.ID)
	}

	levels, err := util.Levels(ids, func(id string) []string { return byID[id].Requires })
	if err != nil {
		return nil, errors.NewValidationError("topic requirements form a cycle").
			WithField("topics").WithValue(err.Error()).WithCause(errors.ErrDependencyCycle)
	}
	for _, level := range levels {
		topics := make([]Topic, 0, len(level))
		for _, id := range level {
			topics = append(topics, byID[id])
		}
		analysis.Levels = append(analysis.Levels, topics)
		analysis.Topics = append(analysis.Topics, topics...)
	}

	a.logger.Info("mission analyzed",
		"topics", len(analysis.Topics),
		"fast_path", len(analysis.FastPath),
		"levels", len(analysis.Levels))
	return analysis, nil
}

func (a *Analyzer) validate(in *Intent) error {
	invalid := func(field, msg string, value any) error {
		return errors.NewValidationError(msg).WithField(field).WithValue(value).WithCause(errors.ErrInvalidIntent)
	}

	if in == nil || in.Mission() == "" {
		return invalid("mission", "mission text is required", "")
	}
	if in.DurationSeconds() <= 0 {
		return invalid("duration", "duration must be positive", in.DurationSeconds())
	}
	if s := in.Surface(); s != "" {
		if _, ok := aspectRatios[s]; !ok {
			return invalid("surface", "unknown surface, expected one of: "+strings.Join(KnownSurfaces(), ", "), string(s))
		}
	}

	overrides := in.Overrides()
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !a.topics.Has(k) {
			return invalid("overrides", "override names an unknown topic", k)
		}
		if strings.TrimSpace(overrides[k]) == "" {
			return invalid("overrides."+k, "override value is empty", "")
		}
	}

	for _, id := range in.Topics() {
		if !a.topics.Has(id) || IsRuleTopic(id) {
			return invalid("topics", "unknown topic", id)
		}
	}

	if a.personas.Len() == 0 {
		return invalid("personas", "persona catalog is empty", 0)
	}
	return nil
}

// ruleDecisions resolves the built-in rule topics.
func (a *Analyzer) ruleDecisions(in *Intent) []ledger.Decision {
	var out []ledger.Decision

	if v, ok := in.Override(TopicAspectRatio); ok {
		out = append(out, ledger.Rule(TopicAspectRatio, v, fmt.Sprintf("explicit override %q supplied with the mission", v)))
	} else if ratio, ok := aspectRatios[in.Surface()]; ok {
		out = append(out, ledger.Rule(TopicAspectRatio, ratio, fmt.Sprintf("%s renders natively at %s", in.Surface(), ratio)))
	} else {
		out = append(out, ledger.Rule(TopicAspectRatio, "16:9", "no target surface given; widescreen is the default frame"))
	}

	if v, ok := in.Override(TopicSegmentCount); ok {
		out = append(out, ledger.Rule(TopicSegmentCount, v, fmt.Sprintf("explicit override %q supplied with the mission", v)))
	} else {
		n := SegmentCount(in.DurationSeconds(), a.segmentSeconds)
		out = append(out, ledger.Rule(TopicSegmentCount, fmt.Sprint(n),
			fmt.Sprintf("%ds at %ds per segment", in.DurationSeconds(), a.segmentSeconds)))
	}
	return out
}

// SegmentCount splits a duration into segments of at most segmentSeconds,
// never fewer than one.
func SegmentCount(durationSeconds, segmentSeconds int) int {
	if segmentSeconds <= 0 {
		return 1
	}
	n := (durationSeconds + segmentSeconds - 1) / segmentSeconds
	if n < 1 {
		n = 1
	}
	return n
}

func (a *Analyzer) prepare(spec TopicSpec, in *Intent) Topic {
	var requires []string
	for _, dep := range spec.Requires {
		if IsRuleTopic(dep) {
			continue // always resolved on the fast path
		}
		requires = append(requires, dep)
	}

	return Topic{
		ID:        spec.ID,
		Title:     spec.Title,
		Options:   spec.Options,
		Default:   spec.Default,
		Threshold: a.negotiation.Threshold(spec.ID, spec.Threshold),
		Personas:  a.selectPersonas(spec.ID, in),
		Requires:  requires,
	}
}

type scored struct {
	p     persona.Persona
	score int
}

// selectPersonas ranks the catalog by expertise overlap with the topic and
// the intent's constraint tags, takes every matching persona up to the
// configured maximum, and pads with the heaviest remaining personas up to
// the minimum.
func (a *Analyzer) selectPersonas(topicID string, in *Intent) []persona.Persona {
	constraintTags := in.Tags()

	all := a.personas.All()
	ranked := make([]scored, 0, len(all))
	for _, p := range all {
		score := a.topics.Matches(topicID, p.Expertise)
		for _, tag := range constraintTags {
			if p.HasTag(tag) {
				score++
			}
		}
		ranked = append(ranked, scored{p: p, score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return heavier(ranked[i].p, ranked[j].p)
	})

	maxN := a.negotiation.MaxPersonas
	minN := a.negotiation.MinPersonas

	var chosen []persona.Persona
	var rest []persona.Persona
	for _, r := range ranked {
		if r.score > 0 && len(chosen) < maxN {
			chosen = append(chosen, r.p)
		} else {
			rest = append(rest, r.p)
		}
	}

	sort.SliceStable(rest, func(i, j int) bool { return heavier(rest[i], rest[j]) })
	for _, p := range rest {
		if len(chosen) >= minN {
			break
		}
		chosen = append(chosen, p)
	}
	return chosen
}

// heavier orders personas by weight desc, then id asc.
func heavier(a, b persona.Persona) bool {
	if a.Weight != b.Weight {
		return a.Weight > b.Weight
	}
	return a.ID < b.ID
}
