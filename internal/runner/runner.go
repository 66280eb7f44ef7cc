// Package runner executes a collection's tests in order, threading the
// variables extracted from each passing response into the tests after it.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teester/teester/internal/assert"
	"github.com/teester/teester/internal/logging"
	"github.com/teester/teester/internal/models"
	"github.com/teester/teester/internal/token"
	"github.com/teester/teester/internal/transport"
)

// ErrRunInProgress is returned when Run is called on a Runner that is
// already running.
var ErrRunInProgress = errors.New("run already in progress")

// HTTPTransport performs API test requests.
type HTTPTransport interface {
	PerformRequest(ctx context.Context, req transport.Request) transport.Response
}

// QueryTransport executes database test queries.
type QueryTransport interface {
	RunQuery(ctx context.Context, cfg transport.QueryConfig, query string) error
}

// Options tune how templates and assertions are interpreted.
type Options struct {
	Policy  ParsePolicy
	Missing token.MissingPolicy
	Mode    assert.Mode
	// Limiter, when set, spaces out tests.
	Limiter *rate.Limiter
}

// Input is the immutable scope of one run.
type Input struct {
	ProjectID    int
	CollectionID int
	Config       models.Config
	Tests        []models.Test
	// TestID restricts the run to a single test.
	TestID *int
}

// InputFor builds the Input for projects[p].Collections[c].
func InputFor(projects []models.Project, p, c int, testID *int) (Input, error) {
	proj, coll, err := models.LookupCollection(projects, p, c)
	if err != nil {
		return Input{}, err
	}
	if testID != nil && (*testID < 0 || *testID >= len(coll.Tests)) {
		return Input{}, fmt.Errorf("test %d: %w", *testID, models.ErrNotFound)
	}
	tests := make([]models.Test, len(coll.Tests))
	copy(tests, coll.Tests)
	return Input{
		ProjectID:    p,
		CollectionID: c,
		Config:       proj.Config,
		Tests:        tests,
		TestID:       testID,
	}, nil
}

// Result is the recorded outcome of one test.
type Result struct {
	CollectionID int             `json:"collectionId" yaml:"collectionId"`
	TestID       int             `json:"testId" yaml:"testId"`
	Name         string          `json:"name" yaml:"name"`
	Kind         models.TestKind `json:"kind" yaml:"kind"`
	Assert       bool            `json:"assert" yaml:"assert"`
	Status       *int            `json:"status,omitempty" yaml:"status,omitempty"`
	Body         any             `json:"body,omitempty" yaml:"body,omitempty"`
	Duration     time.Duration   `json:"duration" yaml:"duration"`
	Error        string          `json:"error,omitempty" yaml:"error,omitempty"`
	Diff         []string        `json:"diff,omitempty" yaml:"diff,omitempty"`
	Extracted    token.Variables `json:"extracted,omitempty" yaml:"extracted,omitempty"`
}

// Report is the outcome of a whole run.
type Report struct {
	RunID        string          `json:"runId" yaml:"runId"`
	ProjectID    int             `json:"projectId" yaml:"projectId"`
	CollectionID int             `json:"collectionId" yaml:"collectionId"`
	Started      time.Time       `json:"started" yaml:"started"`
	Finished     time.Time       `json:"finished" yaml:"finished"`
	Results      []Result        `json:"results" yaml:"results"`
	Variables    token.Variables `json:"variables" yaml:"variables"`
	Passed       int             `json:"passed" yaml:"passed"`
	Failed       int             `json:"failed" yaml:"failed"`
}

// OK reports whether every test in the run passed.
func (r *Report) OK() bool { return r.Failed == 0 }

// Runner executes collections. A Runner runs one collection at a time.
type Runner struct {
	http     HTTPTransport
	query    QueryTransport
	opts     Options
	pipeline *Pipeline
	logger   *zap.Logger
	mu       sync.Mutex
}

// New creates a Runner. query may be nil, in which case database tests fail.
func New(httpT HTTPTransport, queryT QueryTransport, logger *zap.Logger, opts Options) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(logging.Component("runner"))
	return &Runner{
		http:     httpT,
		query:    queryT,
		opts:     opts,
		pipeline: NewPipeline(logger),
		logger:   logger,
	}
}

// Register adds a hook to the runner's pipeline. It must not be called
// while a run is in progress.
func (r *Runner) Register(hook Hook) {
	r.pipeline.Register(hook)
}

// Hooks returns the IDs of registered hooks.
func (r *Runner) Hooks() []string {
	return r.pipeline.List()
}

// Run executes every test in scope, in order, exactly once. A failing test
// never stops the run. Cancelling ctx fails the remaining tests with the
// context error.
func (r *Runner) Run(ctx context.Context, in Input) (*Report, error) {
	if !r.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.mu.Unlock()

	type scoped struct {
		id   int
		test models.Test
	}
	var scope []scoped
	if in.TestID != nil {
		if *in.TestID < 0 || *in.TestID >= len(in.Tests) {
			return nil, fmt.Errorf("test %d: %w", *in.TestID, models.ErrNotFound)
		}
		scope = []scoped{{*in.TestID, in.Tests[*in.TestID]}}
	} else {
		for i, t := range in.Tests {
			scope = append(scope, scoped{i, t})
		}
	}

	report := &Report{
		RunID:        uuid.NewString(),
		ProjectID:    in.ProjectID,
		CollectionID: in.CollectionID,
		Started:      time.Now().UTC(),
		Results:      make([]Result, 0, len(scope)),
		Variables:    token.Variables{},
	}
	r.pipeline.runStart(ctx, report)

	for _, s := range scope {
		var res Result
		if err := r.wait(ctx); err != nil {
			res = Result{
				Kind:  s.test.Kind,
				Name:  s.test.Name(),
				Error: err.Error(),
			}
		} else {
			res = r.runTest(ctx, in.Config, s.test, report.Variables)
		}
		res.CollectionID = in.CollectionID
		res.TestID = s.id

		report.Results = append(report.Results, res)
		if res.Assert {
			report.Passed++
		} else {
			report.Failed++
		}
		r.pipeline.testResult(ctx, report, res)
	}

	report.Finished = time.Now().UTC()
	r.pipeline.runFinish(ctx, report)
	return report, nil
}

func (r *Runner) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.opts.Limiter != nil {
		return r.opts.Limiter.Wait(ctx)
	}
	return nil
}

func (r *Runner) runTest(ctx context.Context, cfg models.Config, t models.Test, vars token.Variables) Result {
	start := time.Now()
	var res Result

	if err := t.Validate(); err != nil {
		res = Result{Error: err.Error()}
	} else {
		switch t.Kind {
		case models.KindAPI:
			res = r.runAPI(ctx, cfg, t.API, vars)
		case models.KindDB:
			res = r.runDB(ctx, cfg, t.DB)
		}
	}

	res.Kind = t.Kind
	res.Name = t.Name()
	res.Duration = time.Since(start)
	return res
}

func (r *Runner) runAPI(ctx context.Context, cfg models.Config, t *models.APITest, vars token.Variables) Result {
	var res Result

	defaultHeader, err := r.resolve("config.header", ParseObject(cfg.Header))
	if err != nil {
		res.Error = fmt.Sprintf("parse default header: %v", err)
		return res
	}

	endpoint, err := token.SubstituteWith(t.Endpoint, vars, r.opts.Missing)
	if err != nil {
		res.Error = fmt.Sprintf("endpoint: %v", err)
		return res
	}
	header, err := r.template("header", t.Header, vars, ParseObject)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	body, err := r.template("body", t.Body, vars, ParseTemplate)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	headers := make(map[string]any)
	for k, v := range defaultHeader.(map[string]any) {
		headers[k] = v
	}
	for k, v := range header.(map[string]any) {
		headers[k] = v
	}

	resp := r.http.PerformRequest(ctx, transport.Request{
		Method:          t.MethodType,
		URL:             cfg.Host + endpoint,
		Headers:         headers,
		Body:            body,
		WithCredentials: cfg.WithCredentials,
	})

	status := resp.Status
	res.Status = &status
	res.Body = resp.Body
	if resp.Err != nil {
		res.Error = resp.Err.Error()
	}

	if status != int(t.Assertion.Status) {
		return res
	}
	if t.Assertion.Body == "" {
		res.Assert = true
		return res
	}

	expected := ParseTemplate(t.Assertion.Body)
	if expected.Err != nil {
		res.Error = fmt.Sprintf("parse assertion body: %v", expected.Err)
		r.logger.Warn("assertion body is not valid JSON", logging.TestName(t.Name), zap.Error(expected.Err))
		return res
	}
	if !assert.EqualMode(resp.Body, expected.Value, r.opts.Mode) {
		res.Diff = assert.Diff(resp.Body, expected.Value, r.opts.Mode)
		return res
	}

	res.Assert = true
	res.Extracted = assert.Extract(resp.Body, expected.Value)
	token.Merge(vars, res.Extracted)
	return res
}

// template substitutes variables into text, then parses and resolves it.
func (r *Runner) template(field, text string, vars token.Variables, parse func(string) Parsed) (any, error) {
	sub, err := token.SubstituteWith(text, vars, r.opts.Missing)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	v, err := r.resolve(field, parse(sub))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", field, err)
	}
	return v, nil
}

func (r *Runner) resolve(field string, p Parsed) (any, error) {
	v, fallback, err := r.opts.Policy.Resolve(p)
	if fallback {
		r.logger.Warn("template is not valid JSON, using empty object",
			logging.Field(field),
			zap.Error(p.Err),
		)
	}
	return v, err
}

func (r *Runner) runDB(ctx context.Context, cfg models.Config, t *models.DBTest) Result {
	if r.query == nil {
		return Result{Error: "no query transport configured"}
	}
	err := r.query.RunQuery(ctx, transport.QueryConfig{DBType: cfg.DBType, DBURL: cfg.DBURL}, t.Query)
	if err != nil {
		return Result{Error: err.Error()}
	}
	return Result{Assert: true}
}
