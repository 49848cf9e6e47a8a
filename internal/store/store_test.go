package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Iron-Ham/montage/internal/config"
	"github.com/Iron-Ham/montage/internal/errors"
	"github.com/Iron-Ham/montage/internal/mission"
	"github.com/Iron-Ham/montage/internal/pipeline"
	"github.com/Iron-Ham/montage/internal/resilience"
	"github.com/Iron-Ham/montage/internal/testutil"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "runs.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func runReport(t *testing.T, id string, start time.Time, cfg *config.Config) *pipeline.Report {
	t.Helper()
	p, err := pipeline.New(cfg,
		pipeline.WithClock(testutil.Clock(start)),
		pipeline.WithSleeper(&testutil.Sleeper{}),
		pipeline.WithIDGenerator(func() string { return id }),
	)
	if err != nil {
		t.Fatalf("pipeline.New() error = %v", err)
	}
	rep, _ := p.Run(context.Background(), mission.Request{
		Mission:         "Explain how tides work",
		DurationSeconds: 30,
		Surface:         "shorts",
	})
	return rep
}

func TestSaveAndLoadRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	rep := runReport(t, "run-a", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), config.Default())

	if err := s.SaveRun(ctx, rep); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	got, err := s.LoadRun(ctx, "run-a")
	if err != nil {
		t.Fatalf("LoadRun() error = %v", err)
	}

	if got.Phase != rep.Phase || !got.StartedAt.Equal(rep.StartedAt) || !got.FinishedAt.Equal(rep.FinishedAt) {
		t.Errorf("run metadata = %s %v %v, want %s %v %v",
			got.Phase, got.StartedAt, got.FinishedAt, rep.Phase, rep.StartedAt, rep.FinishedAt)
	}
	if got.Request.Mission != rep.Request.Mission || got.Request.Surface != "shorts" {
		t.Errorf("request = %+v", got.Request)
	}
	if len(got.Decisions) != len(rep.Decisions) {
		t.Fatalf("decisions = %d, want %d", len(got.Decisions), len(rep.Decisions))
	}
	for i, d := range got.Decisions {
		want := rep.Decisions[i]
		if d.TopicID != want.TopicID || d.Value != want.Value || d.Source != want.Source ||
			d.Confidence != want.Confidence || !d.Timestamp.Equal(want.Timestamp) || d.Converged != want.Converged {
			t.Errorf("decision %d = %+v, want %+v", i, d, want)
		}
	}
	if len(got.Results) != len(rep.Results) {
		t.Fatalf("results = %d, want %d", len(got.Results), len(rep.Results))
	}
	for i, r := range got.Results {
		want := rep.Results[i]
		if r.RequestID != want.RequestID || r.Status != want.Status || r.Provider != want.Provider ||
			r.Attempts != want.Attempts || r.Capability != want.Capability {
			t.Errorf("result %d = %+v, want %+v", i, r, want)
		}
		if (r.Artifact == nil) != (want.Artifact == nil) || (r.Artifact != nil && r.Artifact.URI != want.Artifact.URI) {
			t.Errorf("result %d artifact = %+v, want %+v", i, r.Artifact, want.Artifact)
		}
	}
	if len(got.Requests) != len(rep.Requests) || len(got.Negotiations) != len(rep.Negotiations) {
		t.Errorf("requests/negotiations = %d/%d, want %d/%d",
			len(got.Requests), len(got.Negotiations), len(rep.Requests), len(rep.Negotiations))
	}
	if len(got.RetryStates) != len(rep.RetryStates) {
		t.Errorf("retry states = %d, want %d", len(got.RetryStates), len(rep.RetryStates))
	}
}

func TestLoadRun_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.LoadRun(context.Background(), "missing")

	if !errors.IsNotFound(err) {
		t.Errorf("LoadRun() error = %v, want not found", err)
	}
}

func TestSaveRun_ReplacesExisting(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	rep := runReport(t, "run-a", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), config.Default())
	if err := s.SaveRun(ctx, rep); err != nil {
		t.Fatal(err)
	}

	rep.Results = rep.Results[:2]
	rep.Error = "trimmed"
	if err := s.SaveRun(ctx, rep); err != nil {
		t.Fatalf("second SaveRun() error = %v", err)
	}

	got, err := s.LoadRun(ctx, "run-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Results) != 2 || got.Error != "trimmed" {
		t.Errorf("results = %d, error = %q after resave", len(got.Results), got.Error)
	}
}

func TestListRuns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	failing := config.Default()
	delete(failing.Providers.Chains, config.CapabilityVideo)
	for i, tc := range []struct {
		id  string
		cfg *config.Config
	}{
		{"run-old", config.Default()},
		{"run-failed", failing},
		{"run-new", config.Default()},
	} {
		rep := runReport(t, tc.id, base.Add(time.Duration(i)*time.Hour), tc.cfg)
		if err := s.SaveRun(ctx, rep); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	if len(ids) != 3 || ids[0] != "run-new" || ids[2] != "run-old" {
		t.Fatalf("ListRuns() order = %v", ids)
	}

	newest := runs[0]
	if newest.Phase != pipeline.PhaseDone || newest.Success != newest.Requests || newest.Decisions == 0 {
		t.Errorf("run-new summary = %+v", newest)
	}
	failed := runs[1]
	if failed.Phase != pipeline.PhaseFailed || failed.Failed != 1 || failed.Error == "" {
		t.Errorf("run-failed summary = %+v", failed)
	}

	limited, err := s.ListRuns(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 || limited[0].ID != "run-new" {
		t.Errorf("ListRuns(1) = %+v", limited)
	}
}

func TestResultByKey(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	rep := runReport(t, "run-a", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), config.Default())
	if err := s.SaveRun(ctx, rep); err != nil {
		t.Fatal(err)
	}
	want := rep.Results[0]

	got, err := s.ResultByKey(ctx, want.IdempotencyKey)
	if err != nil {
		t.Fatalf("ResultByKey() error = %v", err)
	}
	if got.RequestID != want.RequestID || got.Status != resilience.StatusSuccess {
		t.Errorf("ResultByKey() = %+v, want %s", got, want.RequestID)
	}

	if _, err := s.ResultByKey(ctx, "nope"); !errors.IsNotFound(err) {
		t.Errorf("ResultByKey(nope) error = %v, want not found", err)
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	rep := runReport(t, "run-a", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), config.Default())
	if err := s.SaveRun(context.Background(), rep); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer func() { _ = s.Close() }()
	if _, err := s.LoadRun(context.Background(), "run-a"); err != nil {
		t.Errorf("LoadRun() after reopen error = %v", err)
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	if _, err := Open(""); !errors.IsConfiguration(err) {
		t.Errorf("Open(\"\") error = %v, want configuration error", err)
	}
}
