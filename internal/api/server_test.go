package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Iron-Ham/montage/internal/config"
	"github.com/Iron-Ham/montage/internal/ledger"
	"github.com/Iron-Ham/montage/internal/mission"
	"github.com/Iron-Ham/montage/internal/pipeline"
	"github.com/Iron-Ham/montage/internal/store"
	"github.com/Iron-Ham/montage/internal/testutil"
)

func newTestPipeline(t *testing.T, id string) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(config.Default(),
		pipeline.WithClock(testutil.Clock(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))),
		pipeline.WithSleeper(&testutil.Sleeper{}),
		pipeline.WithIDGenerator(func() string { return id }),
	)
	if err != nil {
		t.Fatalf("pipeline.New() error = %v", err)
	}
	return p
}

func newTestServer(t *testing.T, opts ...Option) (*httptest.Server, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	s, err := New(st, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, st
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

var tiktok = mission.Request{
	Mission:         "Explain how vaccines train the immune system",
	DurationSeconds: 30,
	Surface:         "tiktok",
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]string
	if code := doJSON(t, http.MethodGet, srv.URL+"/health", nil, &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestOpenAPI_QualifiesSchemaNames(t *testing.T) {
	srv, _ := newTestServer(t)

	var doc struct {
		Components struct {
			Schemas map[string]json.RawMessage `json:"schemas"`
		} `json:"components"`
	}
	if code := doJSON(t, http.MethodGet, srv.URL+"/openapi.json", nil, &doc); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	for _, name := range []string{"MissionRequest", "DispatchRequest", "PipelineReport"} {
		if _, ok := doc.Components.Schemas[name]; !ok {
			t.Errorf("schema %q missing; have %d schemas", name, len(doc.Components.Schemas))
		}
	}
}

func TestSchemaName(t *testing.T) {
	tests := []struct {
		name string
		typ  reflect.Type
		want string
	}{
		{"domain type", reflect.TypeOf(mission.Request{}), "MissionRequest"},
		{"pointer", reflect.TypeOf(&pipeline.Report{}), "PipelineReport"},
		{"api type", reflect.TypeOf(reportOutput{}), "ReportOutput"},
		{"foreign type", reflect.TypeOf(time.Time{}), "Time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := schemaName(tt.typ, ""); got != tt.want {
				t.Errorf("schemaName(%v) = %q, want %q", tt.typ, got, tt.want)
			}
		})
	}
}

func TestCreateAndReadRun(t *testing.T) {
	srv, _ := newTestServer(t, WithRunner(newTestPipeline(t, "run-1")))

	var created pipeline.Report
	if code := doJSON(t, http.MethodPost, srv.URL+"/runs", tiktok, &created); code != http.StatusCreated {
		t.Fatalf("POST /runs status = %d", code)
	}
	if created.RunID != "run-1" || created.Phase != pipeline.PhaseDone {
		t.Fatalf("created = %s in %s", created.RunID, created.Phase)
	}

	var got pipeline.Report
	if code := doJSON(t, http.MethodGet, srv.URL+"/runs/run-1", nil, &got); code != http.StatusOK {
		t.Fatalf("GET /runs/run-1 status = %d", code)
	}
	if len(got.Results) != len(created.Results) || len(got.Decisions) != len(created.Decisions) {
		t.Errorf("report = %d results, %d decisions; want %d, %d",
			len(got.Results), len(got.Decisions), len(created.Results), len(created.Decisions))
	}

	var decisions []ledger.Decision
	if code := doJSON(t, http.MethodGet, srv.URL+"/runs/run-1/decisions", nil, &decisions); code != http.StatusOK {
		t.Fatalf("GET decisions status = %d", code)
	}
	found := false
	for _, d := range decisions {
		if d.TopicID == mission.TopicAspectRatio && d.Value == "9:16" {
			found = true
		}
	}
	if !found {
		t.Errorf("decisions lack aspect_ratio 9:16: %+v", decisions)
	}

	var runs []store.RunSummary
	if code := doJSON(t, http.MethodGet, srv.URL+"/runs", nil, &runs); code != http.StatusOK {
		t.Fatalf("GET /runs status = %d", code)
	}
	if len(runs) != 1 || runs[0].ID != "run-1" || runs[0].Success != runs[0].Requests {
		t.Errorf("runs = %+v", runs)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/runs/nope", "/runs/nope/decisions"} {
		if code := doJSON(t, http.MethodGet, srv.URL+path, nil, nil); code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, code)
		}
	}
}

func TestCreateRun_InvalidMission(t *testing.T) {
	srv, st := newTestServer(t, WithRunner(newTestPipeline(t, "run-bad")))

	bad := mission.Request{Mission: "   ", DurationSeconds: 30}
	if code := doJSON(t, http.MethodPost, srv.URL+"/runs", bad, nil); code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", code)
	}
	runs, err := st.ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Errorf("invalid mission was stored: %+v", runs)
	}
}

func TestCreateRun_WithoutRunner(t *testing.T) {
	srv, _ := newTestServer(t)

	if code := doJSON(t, http.MethodPost, srv.URL+"/runs", tiktok, nil); code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
}

type countingRunner struct {
	id    string
	calls atomic.Int32
}

func (r *countingRunner) Run(_ context.Context, req mission.Request) (*pipeline.Report, error) {
	r.calls.Add(1)
	return &pipeline.Report{RunID: r.id, Request: req, Phase: pipeline.PhaseDone}, nil
}

func TestSetRunner(t *testing.T) {
	first := &countingRunner{id: "first"}
	second := &countingRunner{id: "second"}
	s, err := New(nil, WithRunner(first))
	if err != nil {
		t.Fatal(err)
	}

	s.SetRunner(second)

	if s.currentRunner() != Runner(second) {
		t.Error("SetRunner did not replace the runner")
	}
}

type countingStore struct {
	Store
	loads atomic.Int32
}

func (s *countingStore) LoadRun(ctx context.Context, id string) (*pipeline.Report, error) {
	s.loads.Add(1)
	return s.Store.LoadRun(ctx, id)
}

func TestReportCache(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = st.Close() }()
	rep, _ := newTestPipeline(t, "run-c").Run(context.Background(), tiktok)
	if err := st.SaveRun(context.Background(), rep); err != nil {
		t.Fatal(err)
	}

	counting := &countingStore{Store: st}
	s, err := New(counting, WithCacheSize(2))
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	for n := 0; n < 3; n++ {
		if code := doJSON(t, http.MethodGet, srv.URL+"/runs/run-c", nil, nil); code != http.StatusOK {
			t.Fatalf("status = %d", code)
		}
	}
	if n := counting.loads.Load(); n != 1 {
		t.Errorf("store loads = %d, want 1", n)
	}
}
