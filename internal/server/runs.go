package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/teester/teester/internal/assert"
	"github.com/teester/teester/internal/logging"
	"github.com/teester/teester/internal/models"
	"github.com/teester/teester/internal/runner"
	"github.com/teester/teester/internal/token"
	"github.com/teester/teester/internal/types"
)

// ErrBusy is returned when every run worker is occupied.
var ErrBusy = errors.New("run workers busy")

// DefaultMaxRuns is the number of collection runs executed concurrently.
const DefaultMaxRuns = 4

// DefaultRecentRuns is the number of finished reports kept in memory.
const DefaultRecentRuns = 100

// RunManager executes collection runs on a bounded worker pool and keeps
// the most recent reports in memory. A collection runs at most once at a
// time.
type RunManager struct {
	pool    *ants.Pool
	recent  *lru.Cache[string, *runner.Report]
	newHTTP func() (runner.HTTPTransport, error)
	query   runner.QueryTransport
	hooks   []runner.Hook
	logger  *zap.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

// RunManagerConfig configures a RunManager.
type RunManagerConfig struct {
	MaxRuns    int
	RecentRuns int
	// NewHTTP builds the HTTP transport for one run, so cookies never leak
	// between runs.
	NewHTTP func() (runner.HTTPTransport, error)
	Query   runner.QueryTransport
	Hooks   []runner.Hook
	Logger  *zap.Logger
}

// NewRunManager creates a RunManager. Release must be called to stop its
// workers.
func NewRunManager(cfg RunManagerConfig) (*RunManager, error) {
	if cfg.MaxRuns <= 0 {
		cfg.MaxRuns = DefaultMaxRuns
	}
	if cfg.RecentRuns <= 0 {
		cfg.RecentRuns = DefaultRecentRuns
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.NewHTTP == nil {
		return nil, errors.New("run manager: NewHTTP is required")
	}

	pool, err := ants.NewPool(cfg.MaxRuns, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("create run pool: %w", err)
	}
	recent, err := lru.New[string, *runner.Report](cfg.RecentRuns)
	if err != nil {
		pool.Release()
		return nil, fmt.Errorf("create run cache: %w", err)
	}

	return &RunManager{
		pool:    pool,
		recent:  recent,
		newHTTP: cfg.NewHTTP,
		query:   cfg.Query,
		hooks:   cfg.Hooks,
		logger:  cfg.Logger.With(logging.Component("runs")),
		active:  make(map[string]struct{}),
	}, nil
}

type outcome struct {
	report *runner.Report
	err    error
}

// Run executes in on a pool worker and waits for its report. If ctx ends
// first Run returns the context error; the run itself still completes and
// its report is kept.
func (m *RunManager) Run(ctx context.Context, in runner.Input, opts runner.Options) (*runner.Report, error) {
	key := fmt.Sprintf("%d/%d", in.ProjectID, in.CollectionID)
	if !m.acquire(key) {
		return nil, runner.ErrRunInProgress
	}

	done := make(chan outcome, 1)
	runCtx := context.WithoutCancel(ctx)
	err := m.pool.Submit(func() {
		var o outcome
		func() {
			defer m.release(key)
			o.report, o.err = m.execute(runCtx, in, opts)
		}()
		if o.err == nil {
			m.recent.Add(o.report.RunID, o.report)
		}
		done <- o
	})
	if err != nil {
		m.release(key)
		if errors.Is(err, ants.ErrPoolOverload) {
			return nil, ErrBusy
		}
		return nil, fmt.Errorf("submit run: %w", err)
	}

	select {
	case o := <-done:
		return o.report, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *RunManager) execute(ctx context.Context, in runner.Input, opts runner.Options) (*runner.Report, error) {
	httpT, err := m.newHTTP()
	if err != nil {
		return nil, fmt.Errorf("create http transport: %w", err)
	}
	r := runner.New(httpT, m.query, m.logger, opts)
	for _, h := range m.hooks {
		r.Register(h)
	}
	return r.Run(ctx, in)
}

func (m *RunManager) acquire(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.active[key]; busy {
		return false
	}
	m.active[key] = struct{}{}
	return true
}

func (m *RunManager) release(key string) {
	m.mu.Lock()
	delete(m.active, key)
	m.mu.Unlock()
}

// Get returns a recent report by run ID.
func (m *RunManager) Get(id string) (*runner.Report, bool) {
	return m.recent.Get(id)
}

// Running returns the number of runs currently executing.
func (m *RunManager) Running() int {
	return m.pool.Running()
}

// Active returns the "project/collection" keys of runs in progress, sorted.
func (m *RunManager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.active))
	for k := range m.active {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (s *APIServer) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	if s.Runs == nil {
		writeError(w, r, http.StatusServiceUnavailable, "runs disabled")
		return
	}
	writeJSON(w, r, http.StatusOK, types.RunStatusResponse{
		Running: s.Runs.Running(),
		Active:  s.Runs.Active(),
	})
}

// Release stops the worker pool. Runs already executing finish.
func (m *RunManager) Release() {
	m.pool.Release()
}

func (s *APIServer) handleRunCollection(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, false)
}

func (s *APIServer) handleRunTest(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, true)
}

func (s *APIServer) run(w http.ResponseWriter, r *http.Request, single bool) {
	p, ok := pathInt(w, r, "project")
	if !ok {
		return
	}
	c, ok := pathInt(w, r, "collection")
	if !ok {
		return
	}
	var testID *int
	if single {
		t, ok := pathInt(w, r, "test")
		if !ok {
			return
		}
		testID = &t
	}

	var req types.RunRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	if s.Runs == nil {
		writeError(w, r, http.StatusServiceUnavailable, "runs disabled")
		return
	}

	projects, err := s.loadProjects()
	if err != nil {
		s.logger().Error("load projects", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "load projects")
		return
	}
	in, err := runner.InputFor(projects, p, c, testID)
	if err != nil {
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	}

	// A run lasts as long as its tests take, so the server write timeout
	// does not apply to its response.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.logger().Debug("clear write deadline", zap.Error(err))
	}

	report, err := s.Runs.Run(r.Context(), in, s.runOptions(req))
	switch {
	case err == nil:
		writeJSON(w, r, http.StatusOK, report)
	case errors.Is(err, runner.ErrRunInProgress):
		writeError(w, r, http.StatusConflict, "collection run already in progress")
	case errors.Is(err, ErrBusy):
		writeError(w, r, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, models.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.logger().Info("run abandoned by client", logging.Project(p), logging.Collection(c))
	default:
		s.logger().Error("run collection", logging.Project(p), logging.Collection(c), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "run failed")
	}
}

// runOptions applies per-request overrides to the server defaults.
func (s *APIServer) runOptions(req types.RunRequest) runner.Options {
	opts := s.RunDefaults
	if req.StrictVariables {
		opts.Missing = token.MissingError
	}
	if req.StrictJSON {
		opts.Policy = runner.FailOnError
	}
	if req.Mode != "" {
		opts.Mode = assert.ParseMode(req.Mode)
	}
	return opts
}

func (s *APIServer) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.Runs == nil {
		writeError(w, r, http.StatusNotFound, "run not found")
		return
	}
	report, ok := s.Runs.Get(chi.URLParam(r, "run"))
	if !ok {
		writeError(w, r, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

func pathInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || v < 0 {
		writeError(w, r, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return v, true
}
