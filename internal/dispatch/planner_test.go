package dispatch

import (
	"reflect"
	"strings"
	"testing"

	"github.com/Iron-Ham/montage/internal/errors"
	"github.com/Iron-Ham/montage/internal/ledger"
	"github.com/Iron-Ham/montage/internal/mission"
	"github.com/Iron-Ham/montage/internal/provider"
)

func explainerIntent() *mission.Intent {
	return mission.NewIntent(mission.Request{
		Mission:         "Explain how vaccines train the immune system",
		DurationSeconds: 30,
		Surface:         "tiktok",
		Audience:        "teens",
	})
}

func explainerView() ledger.View {
	return ledger.FromDecisions([]ledger.Decision{
		ledger.Rule(mission.TopicAspectRatio, "9:16", "surface tiktok"),
		ledger.Rule(mission.TopicSegmentCount, "3", "30s in 10s segments"),
		ledger.Rule(mission.TopicNarrative, "hook-problem-solution", "test"),
		ledger.Rule(mission.TopicTone, "playful", "test"),
		ledger.Rule(mission.TopicVisualStyle, "illustrated", "test"),
		ledger.Rule(mission.TopicPacing, "fast", "test"),
	})
}

func TestPlanner_Plan(t *testing.T) {
	reqs, err := NewPlanner("run-1").Plan(explainerView(), explainerIntent())
	if err != nil {
		t.Fatal(err)
	}

	var ids []string
	for _, r := range reqs {
		ids = append(ids, r.ID)
	}
	wantIDs := []string{"script", "voiceover", "keyframe-1", "segment-1", "keyframe-2", "segment-2", "keyframe-3", "segment-3", "thumbnail"}
	if !reflect.DeepEqual(ids, wantIDs) {
		t.Fatalf("ids = %v, want %v", ids, wantIDs)
	}

	byID := map[string]Request{}
	for _, r := range reqs {
		byID[r.ID] = r
	}
	script := byID["script"]
	for _, want := range []string{"30-second", "vaccines", "hook-problem-solution", "playful", "teens"} {
		if !strings.Contains(script.Prompt, want) {
			t.Errorf("script prompt lacks %q: %s", want, script.Prompt)
		}
	}
	if script.Capability != provider.Text {
		t.Errorf("script capability = %s", script.Capability)
	}

	vo := byID["voiceover"]
	if vo.Capability != provider.Speech || vo.Prompt != "{{script}}" || !reflect.DeepEqual(vo.DependsOn, []string{"script"}) {
		t.Errorf("voiceover = %+v", vo)
	}

	seg := byID["segment-2"]
	if seg.Params[provider.ParamAspectRatio] != "9:16" || seg.Params[provider.ParamDuration] != "10" {
		t.Errorf("segment params = %v", seg.Params)
	}
	if !reflect.DeepEqual(seg.DependsOn, []string{"keyframe-2"}) {
		t.Errorf("segment deps = %v", seg.DependsOn)
	}
	if !strings.Contains(byID["keyframe-1"].Prompt, "illustrated") {
		t.Errorf("keyframe prompt = %q", byID["keyframe-1"].Prompt)
	}

	if _, err := Validate(reqs); err != nil {
		t.Errorf("planned graph invalid: %v", err)
	}
}

func TestPlanner_IdempotencyKeys(t *testing.T) {
	first, _ := NewPlanner("run-1").Plan(explainerView(), explainerIntent())
	again, _ := NewPlanner("run-1").Plan(explainerView(), explainerIntent())
	other, _ := NewPlanner("run-2").Plan(explainerView(), explainerIntent())

	seen := map[string]bool{}
	for i, r := range first {
		if len(r.IdempotencyKey) != 64 {
			t.Errorf("%s key = %q", r.ID, r.IdempotencyKey)
		}
		if seen[r.IdempotencyKey] {
			t.Errorf("%s key repeats", r.ID)
		}
		seen[r.IdempotencyKey] = true
		if again[i].IdempotencyKey != r.IdempotencyKey {
			t.Errorf("%s key not stable", r.ID)
		}
		if other[i].IdempotencyKey == r.IdempotencyKey {
			t.Errorf("%s key ignores run id", r.ID)
		}
	}
}

func TestPlanner_SegmentFallback(t *testing.T) {
	tests := []struct {
		name     string
		view     ledger.View
		seconds  int
		segments int
	}{
		{"no decisions", nil, 10, 3},
		{"shorter segments", nil, 6, 5},
		{"decision wins", ledger.FromDecisions([]ledger.Decision{ledger.Rule(mission.TopicSegmentCount, "2", "x")}), 6, 2},
		{"bad decision ignored", ledger.FromDecisions([]ledger.Decision{ledger.Rule(mission.TopicSegmentCount, "many", "x")}), 10, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqs, err := NewPlanner("r", WithSegmentSeconds(tt.seconds)).Plan(tt.view, explainerIntent())
			if err != nil {
				t.Fatal(err)
			}
			n := 0
			for _, r := range reqs {
				if r.Capability == provider.Video {
					n++
				}
			}
			if n != tt.segments {
				t.Errorf("segments = %d, want %d", n, tt.segments)
			}
		})
	}
}

func TestPlanner_RequiresMission(t *testing.T) {
	_, err := NewPlanner("r").Plan(nil, mission.NewIntent(mission.Request{Mission: "  "}))
	if !errors.IsValidation(err) || !errors.Is(err, errors.ErrInvalidIntent) {
		t.Errorf("Plan() error = %v, want invalid intent", err)
	}
	if _, err := NewPlanner("r").Plan(nil, nil); !errors.IsValidation(err) {
		t.Errorf("Plan(nil) error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		reqs    []Request
		levels  [][]string
		wantErr error
	}{
		{
			name: "levels",
			reqs: []Request{
				{ID: "a", Capability: provider.Text},
				{ID: "b", Capability: provider.Speech, DependsOn: []string{"a"}},
				{ID: "c", Capability: provider.Image},
			},
			levels: [][]string{{"a", "c"}, {"b"}},
		},
		{
			name:    "cycle",
			reqs:    []Request{{ID: "a", Capability: provider.Text, DependsOn: []string{"b"}}, {ID: "b", Capability: provider.Text, DependsOn: []string{"a"}}},
			wantErr: errors.ErrDependencyCycle,
		},
		{
			name:    "unknown dependency",
			reqs:    []Request{{ID: "a", Capability: provider.Text, DependsOn: []string{"ghost"}}},
			wantErr: errors.ErrInvalidInput,
		},
		{
			name:    "duplicate id",
			reqs:    []Request{{ID: "a", Capability: provider.Text}, {ID: "a", Capability: provider.Image}},
			wantErr: errors.ErrInvalidInput,
		},
		{
			name:    "bad capability",
			reqs:    []Request{{ID: "a", Capability: "hologram"}},
			wantErr: errors.ErrInvalidInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			levels, err := Validate(tt.reqs)
			if tt.wantErr != nil {
				if !errors.IsValidation(err) || !errors.Is(err, tt.wantErr) {
					t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(levels, tt.levels) {
				t.Errorf("levels = %v, want %v", levels, tt.levels)
			}
		})
	}
}
