package negotiation

import (
	"context"
	"strings"
	"testing"

	"github.com/Iron-Ham/montage/internal/config"
	"github.com/Iron-Ham/montage/internal/errors"
	"github.com/Iron-Ham/montage/internal/ledger"
	"github.com/Iron-Ham/montage/internal/mission"
	"github.com/Iron-Ham/montage/internal/persona"
	"github.com/Iron-Ham/montage/internal/provider"
	"github.com/Iron-Ham/montage/internal/provider/simulated"
	"github.com/Iron-Ham/montage/internal/testutil"
)

func TestParseReply(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    Message
		wantErr bool
	}{
		{
			name: "canonical",
			text: "STANCE: agree\nCONFIDENCE: 0.8\nPAYLOAD: three-act",
			want: Message{Stance: StanceAgree, Confidence: 0.8, Payload: "three-act"},
		},
		{
			name: "markdown and percent",
			text: "**Stance**: Propose\n**Confidence**: 65%\n**Payload**: listicle",
			want: Message{Stance: StancePropose, Confidence: 0.65, Payload: "listicle"},
		},
		{
			name: "any order with chatter",
			text: "Sure! Here you go.\npayload: step-by-step\nstance: support\nconfidence: 0.9 (fairly sure)",
			want: Message{Stance: StanceAgree, Confidence: 0.9, Payload: "step-by-step"},
		},
		{
			name: "bad confidence",
			text: "STANCE: disagree\nCONFIDENCE: high",
			want: Message{Stance: StanceDisagree},
		},
		{
			name:    "no stance",
			text:    "I think three-act works best.",
			wantErr: true,
		},
		{
			name:    "unknown stance",
			text:    "STANCE: maybe\nPAYLOAD: x",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReply(tt.text)
			if tt.wantErr {
				if !errors.IsValidation(err) {
					t.Errorf("ParseReply() error = %v, want validation error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseReply() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseReply() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseConfidence(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"0.4", 0.4},
		{"1", 1},
		{"1.5", 1},
		{"80", 0.8},
		{"40%", 0.4},
		{"150", 1},
		{"150%", 1},
		{"-3", 0},
		{"high", 0},
	}
	for _, tt := range tests {
		if got := parseConfidence(tt.in); got != tt.want {
			t.Errorf("parseConfidence(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestProviderGenerator_WithSimulatedProvider(t *testing.T) {
	gen := NewProviderGenerator(simulated.New(config.SimulatedConfig{}))
	coord := testCoordinator(gen)
	topic := testTopic(0.75, persona.Default().All()[:4])

	res, err := coord.Resolve(context.Background(), topic, testIntent(), nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range res.History {
		for _, m := range r.Messages {
			if !m.Responded() {
				t.Errorf("round %d: persona %s abstained: %s", r.Number, m.PersonaID, m.Err)
			}
		}
	}
	d := res.Decision(topic)
	if d.Source != ledger.SourceNegotiation {
		t.Errorf("Source = %s", d.Source)
	}
	found := false
	for _, o := range topic.Options {
		found = found || o == d.Value
	}
	if !found {
		t.Errorf("Value %q is not a topic option", d.Value)
	}
}

func TestProviderGenerator_PromptAndErrors(t *testing.T) {
	adapter := testutil.NewScriptedAdapter("llm").
		Respond(func(provider.Call) string { return "STANCE: agree\nCONFIDENCE: 0.7\nPAYLOAD: listicle" })
	gen := NewProviderGenerator(adapter)

	turn := Turn{
		Topic:   testTopic(0.75, nil),
		Persona: persona.Persona{ID: "editor", Name: "Editor", Expertise: []string{"pacing"}},
		Intent:  testIntent(),
		Round:   2,
		Anchor:  "listicle",
		Prior:   []ledger.Decision{ledger.Rule("aspect_ratio", "9:16", "surface")},
	}
	msg, err := gen.Generate(context.Background(), turn)
	if err != nil {
		t.Fatal(err)
	}
	if msg.PersonaID != "editor" || msg.Stance != StanceAgree || msg.Payload != "listicle" {
		t.Errorf("Generate() = %+v", msg)
	}

	call := adapter.Calls()[0]
	for _, want := range []string{"30s explainer", "aspect_ratio: 9:16", `converging on "listicle"`, "Editor"} {
		if !strings.Contains(call.Prompt, want) {
			t.Errorf("prompt lacks %q:\n%s", want, call.Prompt)
		}
	}
	if call.Params[provider.ParamTask] != provider.TaskNegotiate || call.Params[provider.ParamAnchor] != "listicle" {
		t.Errorf("params = %v", call.Params)
	}

	adapter.On(provider.Text, testutil.Fail(errors.KindRetryable))
	if _, err := gen.Generate(context.Background(), turn); err == nil {
		t.Error("provider failure not surfaced")
	}
}

func TestDeliberativeGenerator(t *testing.T) {
	gen := NewDeliberativeGenerator(1)
	p := persona.Persona{ID: "director", Expertise: []string{"story"}, Weight: 1.5}
	turn := Turn{Topic: testTopic(0.75, nil), Persona: p, Intent: testIntent(), Round: 1}

	prefs := gen.Preferences(turn)
	if len(prefs) != 3 {
		t.Fatalf("Preferences() = %v", prefs)
	}

	msg, err := gen.Generate(context.Background(), turn)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Stance != StancePropose || msg.Payload != prefs[0] || msg.Confidence <= 0 {
		t.Errorf("first round = %+v, want proposal of %q", msg, prefs[0])
	}

	turn.Anchor = prefs[0]
	if msg, _ := gen.Generate(context.Background(), turn); msg.Stance != StanceAgree || msg.Payload != prefs[0] {
		t.Errorf("anchor on favourite = %+v, want agree", msg)
	}

	turn.Anchor = prefs[2]
	if msg, _ := gen.Generate(context.Background(), turn); msg.Stance != StancePropose || msg.Payload != prefs[0] {
		t.Errorf("anchor outside top-1 = %+v, want proposal of favourite", msg)
	}
}

func TestDeliberativeGenerator_MissionMentionWins(t *testing.T) {
	gen := NewDeliberativeGenerator(2)
	turn := Turn{
		Topic:   testTopic(0.75, nil),
		Persona: persona.Persona{ID: "editor"},
		Intent:  testIntentWith("a step-by-step tutorial"),
	}
	if prefs := gen.Preferences(turn); prefs[0] != "step-by-step" {
		t.Errorf("Preferences() = %v, want the option named in the mission first", prefs)
	}
}

func TestDeliberativeGenerator_NoOptions(t *testing.T) {
	turn := Turn{Topic: testTopic(0.75, nil), Persona: persona.Persona{ID: "x"}}
	turn.Topic.Options = nil
	msg, err := NewDeliberativeGenerator(2).Generate(context.Background(), turn)
	if err != nil || msg.Stance != StanceAbstain {
		t.Errorf("Generate() = %+v, %v; want abstain", msg, err)
	}
}

func testIntentWith(text string) *mission.Intent {
	return mission.NewIntent(mission.Request{Mission: text, DurationSeconds: 30})
}
