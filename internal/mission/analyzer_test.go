package mission

import (
	"reflect"
	"testing"

	"github.com/Iron-Ham/montage/internal/config"
	"github.com/Iron-Ham/montage/internal/errors"
	"github.com/Iron-Ham/montage/internal/ledger"
	"github.com/Iron-Ham/montage/internal/persona"
)

func newTestAnalyzer(t *testing.T, opts ...AnalyzerOption) *Analyzer {
	t.Helper()
	return NewAnalyzer(DefaultTopics(), persona.Default(), opts...)
}

func fastPath(a *Analysis, topic string) (ledger.Decision, bool) {
	for _, d := range a.FastPath {
		if d.TopicID == topic {
			return d, true
		}
	}
	return ledger.Decision{}, false
}

func TestAnalyze_Validation(t *testing.T) {
	tests := []struct {
		name  string
		req   Request
		field string
	}{
		{"empty mission", Request{Mission: "   ", DurationSeconds: 30}, "mission"},
		{"zero duration", Request{Mission: "explainer", DurationSeconds: 0}, "duration"},
		{"negative duration", Request{Mission: "explainer", DurationSeconds: -5}, "duration"},
		{"unknown surface", Request{Mission: "explainer", DurationSeconds: 30, Surface: "myspace"}, "surface"},
		{"unknown override", Request{Mission: "explainer", DurationSeconds: 30, Overrides: map[string]string{"font": "serif"}}, "overrides"},
		{"empty override", Request{Mission: "explainer", DurationSeconds: 30, Overrides: map[string]string{"tone": " "}}, "overrides.tone"},
		{"unknown topic selection", Request{Mission: "explainer", DurationSeconds: 30, Topics: []string{"lighting"}}, "topics"},
		{"rule topic selection", Request{Mission: "explainer", DurationSeconds: 30, Topics: []string{TopicAspectRatio}}, "topics"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestAnalyzer(t).Analyze(NewIntent(tt.req))
			var verr *errors.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Analyze() error = %v, want ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Field = %q, want %q", verr.Field, tt.field)
			}
			if !errors.Is(err, errors.ErrInvalidIntent) {
				t.Error("error should wrap ErrInvalidIntent")
			}
		})
	}
}

func TestAnalyze_RuleDecisions(t *testing.T) {
	tests := []struct {
		name     string
		req      Request
		ratio    string
		segments string
	}{
		{"tiktok is vertical", Request{Mission: "m", DurationSeconds: 30, Surface: "TikTok"}, "9:16", "3"},
		{"youtube is widescreen", Request{Mission: "m", DurationSeconds: 95, Surface: "youtube"}, "16:9", "10"},
		{"instagram is square", Request{Mission: "m", DurationSeconds: 5, Surface: "instagram"}, "1:1", "1"},
		{"no surface", Request{Mission: "m", DurationSeconds: 20}, "16:9", "2"},
		{"override wins", Request{Mission: "m", DurationSeconds: 20, Surface: "tiktok",
			Overrides: map[string]string{TopicAspectRatio: "4:5", TopicSegmentCount: "7"}}, "4:5", "7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := newTestAnalyzer(t).Analyze(NewIntent(tt.req))
			if err != nil {
				t.Fatalf("Analyze() error = %v", err)
			}
			ratio, ok := fastPath(a, TopicAspectRatio)
			if !ok || ratio.Value != tt.ratio {
				t.Errorf("aspect_ratio = %v, want %q", ratio, tt.ratio)
			}
			segments, ok := fastPath(a, TopicSegmentCount)
			if !ok || segments.Value != tt.segments {
				t.Errorf("segment_count = %v, want %q", segments, tt.segments)
			}
			for _, d := range a.FastPath {
				if err := d.Validate(); err != nil {
					t.Errorf("fast-path decision invalid: %v", err)
				}
				if d.Source != ledger.SourceRule || d.Confidence != 1 {
					t.Errorf("fast-path decision = %+v, want RULE with confidence 1", d)
				}
			}
		})
	}
}

func TestAnalyze_OverrideSkipsNegotiation(t *testing.T) {
	a, err := newTestAnalyzer(t).Analyze(NewIntent(Request{
		Mission:         "launch teaser",
		DurationSeconds: 15,
		Overrides:       map[string]string{TopicTone: "urgent"},
	}))
	if err != nil {
		t.Fatal(err)
	}

	d, ok := fastPath(a, TopicTone)
	if !ok || d.Value != "urgent" {
		t.Fatalf("tone fast path = %v", d)
	}
	for _, topic := range a.Topics {
		if topic.ID == TopicTone {
			t.Error("overridden topic should not be negotiated")
		}
	}
}

func TestAnalyze_TopicOrderAndLevels(t *testing.T) {
	a, err := newTestAnalyzer(t).Analyze(NewIntent(Request{Mission: "m", DurationSeconds: 30}))
	if err != nil {
		t.Fatal(err)
	}

	var order []string
	for _, topic := range a.Topics {
		order = append(order, topic.ID)
	}
	want := []string{
		TopicNarrative, TopicTone,
		TopicHook, TopicVisualStyle, TopicPacing, TopicMusic,
		TopicColorPalette,
	}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("topic order = %v, want %v", order, want)
	}
	if len(a.Levels) != 3 {
		t.Errorf("len(Levels) = %d, want 3", len(a.Levels))
	}

	pos := make(map[string]int)
	for i, id := range order {
		pos[id] = i
	}
	for _, topic := range a.Topics {
		for _, dep := range topic.Requires {
			if pos[dep] >= pos[topic.ID] {
				t.Errorf("%s ordered before its requirement %s", topic.ID, dep)
			}
		}
	}
}

func TestAnalyze_TopicSelection(t *testing.T) {
	a, err := newTestAnalyzer(t).Analyze(NewIntent(Request{
		Mission:         "30s explainer",
		DurationSeconds: 30,
		Topics:          []string{TopicHook},
	}))
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Topics) != 1 || a.Topics[0].ID != TopicHook {
		t.Fatalf("Topics = %+v, want only hook", a.Topics)
	}
	// Unselected requirements do not block the selected topic.
	if len(a.Levels) != 1 {
		t.Errorf("len(Levels) = %d, want 1", len(a.Levels))
	}
}

func TestAnalyze_PersonaSelection(t *testing.T) {
	cfg := config.Default().Negotiation
	an := newTestAnalyzer(t, WithNegotiationConfig(cfg))

	a, err := an.Analyze(NewIntent(Request{Mission: "m", DurationSeconds: 30, Surface: "tiktok"}))
	if err != nil {
		t.Fatal(err)
	}

	for _, topic := range a.Topics {
		n := len(topic.Personas)
		if n < cfg.MinPersonas || n > cfg.MaxPersonas {
			t.Errorf("%s has %d personas, want %d..%d", topic.ID, n, cfg.MinPersonas, cfg.MaxPersonas)
		}
		seen := make(map[string]bool)
		for _, p := range topic.Personas {
			if seen[p.ID] {
				t.Errorf("%s lists %s twice", topic.ID, p.ID)
			}
			seen[p.ID] = true
		}
	}

	music := topicByID(t, a, TopicMusic)
	if music.Personas[0].ID != "sound" {
		t.Errorf("music panel should be led by the sound designer, got %v", music.Personas)
	}
}

func TestAnalyze_PaddingAndDeterminism(t *testing.T) {
	personas, err := persona.NewCatalog([]persona.Persona{
		{ID: "a", Expertise: []string{"music"}, Weight: 1},
		{ID: "c", Expertise: []string{"unrelated"}, Weight: 1},
		{ID: "b", Expertise: []string{"unrelated"}, Weight: 1},
		{ID: "d", Expertise: []string{"unrelated"}, Weight: 3},
	})
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Default().Negotiation
	cfg.MinPersonas = 3
	an := NewAnalyzer(DefaultTopics(), personas, WithNegotiationConfig(cfg))
	intent := NewIntent(Request{Mission: "m", DurationSeconds: 10, Topics: []string{TopicMusic}})

	first, err := an.Analyze(intent)
	if err != nil {
		t.Fatal(err)
	}
	got := ids(first.Topics[0].Personas)
	// a matches; d is heaviest; b precedes c by id.
	if want := []string{"a", "d", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("personas = %v, want %v", got, want)
	}

	for i := 0; i < 5; i++ {
		again, _ := an.Analyze(intent)
		if !reflect.DeepEqual(again.Topics, first.Topics) {
			t.Fatal("Analyze() is not deterministic")
		}
	}
}

func TestAnalyze_MaxPersonas(t *testing.T) {
	cfg := config.Default().Negotiation
	cfg.MinPersonas = 1
	cfg.MaxPersonas = 2
	an := newTestAnalyzer(t, WithNegotiationConfig(cfg))

	a, err := an.Analyze(NewIntent(Request{Mission: "m", DurationSeconds: 10, Topics: []string{TopicVisualStyle}}))
	if err != nil {
		t.Fatal(err)
	}
	if n := len(a.Topics[0].Personas); n != 2 {
		t.Errorf("len(Personas) = %d, want 2", n)
	}
}

func TestAnalyze_Thresholds(t *testing.T) {
	cfg := config.Default().Negotiation
	cfg.DefaultThreshold = 0.6
	cfg.Thresholds = map[string]float64{TopicTone: 0.9}

	topics, err := NewTopicCatalog([]TopicSpec{
		{ID: TopicTone, Options: []string{"calm"}},
		{ID: "pace", Options: []string{"slow"}, Threshold: 0.5},
		{ID: "mood", Options: []string{"dark"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	an := NewAnalyzer(topics, persona.Default(), WithNegotiationConfig(cfg))
	a, err := an.Analyze(NewIntent(Request{Mission: "m", DurationSeconds: 10}))
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]float64{TopicTone: 0.9, "pace": 0.5, "mood": 0.6}
	for id, threshold := range want {
		if got := topicByID(t, a, id).Threshold; got != threshold {
			t.Errorf("%s threshold = %v, want %v", id, got, threshold)
		}
	}
}

func TestAnalyze_Cycle(t *testing.T) {
	topics, err := NewTopicCatalog([]TopicSpec{
		{ID: "a", Options: []string{"x"}, Requires: []string{"b"}},
		{ID: "b", Options: []string{"y"}, Requires: []string{"a"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = NewAnalyzer(topics, persona.Default()).Analyze(NewIntent(Request{Mission: "m", DurationSeconds: 10}))
	if !errors.Is(err, errors.ErrDependencyCycle) {
		t.Errorf("error = %v, want ErrDependencyCycle", err)
	}
}

func TestSegmentCount(t *testing.T) {
	tests := []struct{ duration, segment, want int }{
		{30, 10, 3},
		{31, 10, 4},
		{1, 10, 1},
		{0, 10, 1},
		{30, 0, 1},
	}
	for _, tt := range tests {
		if got := SegmentCount(tt.duration, tt.segment); got != tt.want {
			t.Errorf("SegmentCount(%d, %d) = %d, want %d", tt.duration, tt.segment, got, tt.want)
		}
	}
}

func topicByID(t *testing.T, a *Analysis, id string) Topic {
	t.Helper()
	for _, topic := range a.Topics {
		if topic.ID == id {
			return topic
		}
	}
	t.Fatalf("topic %s not in analysis", id)
	return Topic{}
}

func ids(personas []persona.Persona) []string {
	out := make([]string, 0, len(personas))
	for _, p := range personas {
		out = append(out, p.ID)
	}
	return out
}
