// Package api serves finished runs over HTTP.
//
// The API is read-mostly: runs are listed and inspected from the store, and
// POST /runs executes a mission synchronously and stores its report. Recently
// read reports are kept in an LRU cache; stored reports never change once a
// run is finished, so the cache is only invalidated when a run is resaved.
package api

import (
	"context"
	"net/http"
	"path"
	"reflect"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Iron-Ham/montage/internal/errors"
	"github.com/Iron-Ham/montage/internal/ledger"
	"github.com/Iron-Ham/montage/internal/logging"
	"github.com/Iron-Ham/montage/internal/mission"
	"github.com/Iron-Ham/montage/internal/pipeline"
	"github.com/Iron-Ham/montage/internal/store"
)

// DefaultCacheSize is the number of reports kept in memory.
const DefaultCacheSize = 64

// Runner executes a mission. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, req mission.Request) (*pipeline.Report, error)
}

// Store is the run archive the API reads from. *store.Store satisfies it.
type Store interface {
	SaveRun(ctx context.Context, rep *pipeline.Report) error
	ListRuns(ctx context.Context, limit int) ([]store.RunSummary, error)
	LoadRun(ctx context.Context, id string) (*pipeline.Report, error)
}

var (
	_ Runner = (*pipeline.Pipeline)(nil)
	_ Store  = (*store.Store)(nil)
)

// Server holds the API's dependencies.
type Server struct {
	store     Store
	cache     *lru.Cache[string, *pipeline.Report]
	cacheSize int
	logger    *logging.Logger

	mu     sync.RWMutex
	runner Runner
}

// Option configures a Server.
type Option func(*Server)

// WithRunner enables POST /runs.
func WithRunner(r Runner) Option {
	return func(s *Server) {
		s.runner = r
	}
}

// WithCacheSize sets the report cache capacity.
func WithCacheSize(n int) Option {
	return func(s *Server) {
		s.cacheSize = n
	}
}

// WithLogger sets the server's logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// New creates a Server over st.
func New(st Store, opts ...Option) (*Server, error) {
	s := &Server{
		store:     st,
		cacheSize: DefaultCacheSize,
		logger:    logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	cache, err := lru.New[string, *pipeline.Report](max(1, s.cacheSize))
	if err != nil {
		return nil, errors.Wrap(err, "create report cache")
	}
	s.cache = cache
	return s, nil
}

// SetRunner swaps the runner used by POST /runs. Runs already executing
// finish on the runner they started with.
func (s *Server) SetRunner(r Runner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runner = r
}

func (s *Server) currentRunner() Runner {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runner
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(s.logRequests)

	hcfg := huma.DefaultConfig("Montage API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	hcfg.Components.Schemas = huma.NewMapRegistry("#/components/schemas/", schemaName)
	api := humachi.New(router, hcfg)

	registerHealth(api)
	s.registerRuns(api)
	return router
}

// schemaName qualifies domain types with their package, so mission.Request
// and dispatch.Request become MissionRequest and DispatchRequest.
func schemaName(t reflect.Type, hint string) string {
	name := huma.DefaultSchemaNamer(t, hint)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || t.Name() == "" || !strings.HasPrefix(t.PkgPath(), modulePrefix) {
		return name
	}
	pkg := path.Base(t.PkgPath())
	if pkg == "api" {
		return name
	}
	return strings.ToUpper(pkg[:1]) + pkg[1:] + name
}

const modulePrefix = "github.com/Iron-Ham/montage/internal/"

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("api request", "method", r.Method, "path", r.URL.Path, "status", ww.Status())
	})
}

// report returns a run from the cache or the store.
func (s *Server) report(ctx context.Context, id string) (*pipeline.Report, error) {
	if rep, ok := s.cache.Get(id); ok {
		return rep, nil
	}
	rep, err := s.store.LoadRun(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Add(id, rep)
	return rep, nil
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

type runPath struct {
	ID string `path:"id"`
}

type reportOutput struct {
	Body *pipeline.Report `json:"body"`
}

func (s *Server) registerRuns(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-runs",
		Method:      http.MethodGet,
		Path:        "/runs",
		Summary:     "List runs, newest first",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" minimum:"0" default:"50"`
	}) (*struct {
		Body []store.RunSummary `json:"body"`
	}, error) {
		runs, err := s.store.ListRuns(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		if runs == nil {
			runs = []store.RunSummary{}
		}
		return &struct {
			Body []store.RunSummary `json:"body"`
		}{Body: runs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-run",
		Method:      http.MethodGet,
		Path:        "/runs/{id}",
		Summary:     "Get a run report",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *runPath) (*reportOutput, error) {
		rep, err := s.report(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &reportOutput{Body: rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-run-decisions",
		Method:      http.MethodGet,
		Path:        "/runs/{id}/decisions",
		Summary:     "Get the decision ledger of a run",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *runPath) (*struct {
		Body []ledger.Decision `json:"body"`
	}, error) {
		rep, err := s.report(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		decisions := rep.Ledger().All()
		if decisions == nil {
			decisions = []ledger.Decision{}
		}
		return &struct {
			Body []ledger.Decision `json:"body"`
		}{Body: decisions}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-run",
		Method:        http.MethodPost,
		Path:          "/runs",
		Summary:       "Run a mission",
		Description:   "Runs the mission to completion and stores the report. Runs that stop early are stored and returned with phase \"failed\".",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body mission.Request `json:"body"`
	}) (*reportOutput, error) {
		runner := s.currentRunner()
		if runner == nil {
			return nil, huma.Error503ServiceUnavailable("this server does not run missions")
		}
		rep, err := runner.Run(ctx, input.Body)
		if errors.IsValidation(err) {
			return nil, huma.Error400BadRequest(err.Error())
		}
		if rep == nil {
			return nil, handleError(err)
		}
		if err != nil {
			s.logger.WithRun(rep.RunID).Warn("run stopped early", "error", err.Error())
		}
		if err := s.store.SaveRun(ctx, rep); err != nil {
			return nil, handleError(err)
		}
		s.cache.Add(rep.RunID, rep)
		return &reportOutput{Body: rep}, nil
	})
}

func handleError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.IsNotFound(err):
		return huma.Error404NotFound(err.Error())
	case errors.IsValidation(err):
		return huma.Error400BadRequest(err.Error())
	default:
		return huma.Error500InternalServerError("internal error", err)
	}
}
