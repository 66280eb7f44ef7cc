package runner

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	asrt "github.com/teester/teester/internal/assert"
	"github.com/teester/teester/internal/models"
	"github.com/teester/teester/internal/token"
	"github.com/teester/teester/internal/transport"
)

type fakeHTTP struct {
	mu        sync.Mutex
	requests  []transport.Request
	responses map[string]transport.Response
	started   chan struct{}
	block     chan struct{}
}

func (f *fakeHTTP) PerformRequest(ctx context.Context, req transport.Request) transport.Response {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if resp, ok := f.responses[req.Method+" "+req.URL]; ok {
		return resp
	}
	return transport.Response{Status: transport.StatusTransportFailure, Body: "", Err: errors.New("connection refused")}
}

type fakeQuery struct {
	queries []string
	fail    map[string]bool
}

func (f *fakeQuery) RunQuery(ctx context.Context, cfg transport.QueryConfig, query string) error {
	f.queries = append(f.queries, query)
	if f.fail[query] {
		return errors.New("syntax error")
	}
	return nil
}

func apiTest(name, method, endpoint string, status int, body string) models.Test {
	return models.NewAPITest(models.APITest{
		Name:       name,
		MethodType: method,
		Endpoint:   endpoint,
		Assertion:  models.Assertion{Status: models.StatusCode(status), Body: body},
	})
}

func newRunner(t *testing.T, h HTTPTransport, q QueryTransport, opts Options) *Runner {
	t.Helper()
	return New(h, q, zaptest.NewLogger(t), opts)
}

func TestRunThreadsExtractedVariables(t *testing.T) {
	h := &fakeHTTP{responses: map[string]transport.Response{
		"POST http://api/users":  {Status: 200, Body: map[string]any{"id": float64(7)}},
		"GET http://api/users/7": {Status: 200, Body: map[string]any{"id": float64(7), "name": "bob"}},
	}}

	in := Input{
		Config: models.Config{Host: "http://api", Header: "{}"},
		Tests: []models.Test{
			apiTest("create", "POST", "/users", 200, `{"id":"@{uid}"}`),
			apiTest("fetch", "GET", "/users/${uid}", 200, `{"name":"bob"}`),
		},
	}

	report, err := newRunner(t, h, nil, Options{}).Run(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, h.requests, 2)
	assert.Equal(t, "http://api/users/7", h.requests[1].URL)
	assert.Equal(t, token.Variables{"uid": float64(7)}, report.Variables)
	assert.Equal(t, 2, report.Passed)
	assert.True(t, report.OK())
	assert.Equal(t, token.Variables{"uid": float64(7)}, report.Results[0].Extracted)
	assert.NotEmpty(t, report.RunID)
}

func TestRunNeverShortCircuits(t *testing.T) {
	h := &fakeHTTP{responses: map[string]transport.Response{
		"GET http://api/a": {Status: 500, Body: "boom"},
		"GET http://api/b": {Status: 200, Body: ""},
		"GET http://api/c": {Status: 200, Body: ""},
	}}

	in := Input{
		CollectionID: 3,
		Config:       models.Config{Host: "http://api"},
		Tests: []models.Test{
			apiTest("a", "GET", "/a", 200, ""),
			apiTest("b", "GET", "/b", 200, ""),
			apiTest("c", "GET", "/c", 200, ""),
		},
	}

	report, err := newRunner(t, h, nil, Options{}).Run(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, report.Results, 3)
	assert.Len(t, h.requests, 3)
	for i, res := range report.Results {
		assert.Equal(t, 3, res.CollectionID)
		assert.Equal(t, i, res.TestID)
	}
	assert.False(t, report.Results[0].Assert)
	assert.Equal(t, 500, *report.Results[0].Status)
	assert.True(t, report.Results[1].Assert)
	assert.True(t, report.Results[2].Assert)
	assert.Equal(t, 1, report.Failed)
}

func TestRunExtractsOnlyOnPass(t *testing.T) {
	h := &fakeHTTP{responses: map[string]transport.Response{
		"GET http://api/a": {Status: 404, Body: map[string]any{"id": float64(1)}},
		"GET http://api/b": {Status: 200, Body: map[string]any{"id": float64(2), "ok": false}},
	}}

	in := Input{
		Config: models.Config{Host: "http://api"},
		Tests: []models.Test{
			apiTest("status mismatch", "GET", "/a", 200, `{"id":"@{a}"}`),
			apiTest("body mismatch", "GET", "/b", 200, `{"id":"@{b}","ok":true}`),
		},
	}

	report, err := newRunner(t, h, nil, Options{}).Run(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, report.Variables)
	assert.Equal(t, []string{"/ok: expected true, got false"}, report.Results[1].Diff)
}

func TestRunTransportFailure(t *testing.T) {
	h := &fakeHTTP{}
	in := Input{
		Config: models.Config{Host: "http://down"},
		Tests:  []models.Test{apiTest("x", "GET", "/", 200, "")},
	}

	report, err := newRunner(t, h, nil, Options{}).Run(context.Background(), in)
	require.NoError(t, err)

	res := report.Results[0]
	assert.False(t, res.Assert)
	assert.Equal(t, transport.StatusTransportFailure, *res.Status)
	assert.Equal(t, "", res.Body)
	assert.Contains(t, res.Error, "connection refused")
}

func TestRunHeadersAndBody(t *testing.T) {
	h := &fakeHTTP{responses: map[string]transport.Response{
		"POST http://api/login": {Status: 200, Body: map[string]any{"token": "abc"}},
		"PUT http://api/me":     {Status: 204, Body: ""},
	}}

	login := models.NewAPITest(models.APITest{
		Name: "login", MethodType: "POST", Endpoint: "/login",
		Body:      `{"user":"bob"}`,
		Assertion: models.Assertion{Status: 200, Body: `{"token":"@{token}"}`},
	})
	update := models.NewAPITest(models.APITest{
		Name: "update", MethodType: "PUT", Endpoint: "/me",
		Header:    `{"Authorization":"Bearer ${token}","X-Client":"test"}`,
		Body:      `{"token":"${token}"}`,
		Assertion: models.Assertion{Status: 204},
	})

	in := Input{
		Config: models.Config{
			Host:            "http://api",
			Header:          `{"X-Client":"default","Accept":"application/json"}`,
			WithCredentials: true,
		},
		Tests: []models.Test{login, update},
	}

	report, err := newRunner(t, h, nil, Options{}).Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Passed)

	req := h.requests[1]
	assert.Equal(t, map[string]any{
		"Authorization": "Bearer abc",
		"X-Client":      "test",
		"Accept":        "application/json",
	}, req.Headers)
	assert.Equal(t, map[string]any{"token": "abc"}, req.Body)
	assert.True(t, req.WithCredentials)
}

func TestRunParseFallback(t *testing.T) {
	h := &fakeHTTP{responses: map[string]transport.Response{
		"POST http://api/x": {Status: 200, Body: ""},
	}}
	bad := models.NewAPITest(models.APITest{
		Name: "bad", MethodType: "POST", Endpoint: "/x",
		Header:    `not json`,
		Body:      `{"broken":`,
		Assertion: models.Assertion{Status: 200},
	})
	in := Input{
		Config: models.Config{Host: "http://api", Header: "[1,2]"},
		Tests:  []models.Test{bad},
	}

	report, err := newRunner(t, h, nil, Options{}).Run(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, report.Results[0].Assert)
	assert.Equal(t, map[string]any{}, h.requests[0].Headers)
	assert.Equal(t, map[string]any{}, h.requests[0].Body)

	h.requests = nil
	strict, err := newRunner(t, h, nil, Options{Policy: FailOnError}).Run(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, strict.Results[0].Assert)
	assert.Contains(t, strict.Results[0].Error, "parse default header")
	assert.Empty(t, h.requests)
}

func TestRunEmptyTemplatesAreEmptyObjects(t *testing.T) {
	h := &fakeHTTP{responses: map[string]transport.Response{
		"GET http://api/x": {Status: 200, Body: ""},
	}}
	in := Input{
		Config: models.Config{Host: "http://api"},
		Tests:  []models.Test{apiTest("x", "GET", "/x", 200, "")},
	}

	report, err := newRunner(t, h, nil, Options{Policy: FailOnError}).Run(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, report.Results[0].Assert)
	assert.Equal(t, map[string]any{}, h.requests[0].Body)
}

func TestRunInvalidAssertionBodyFails(t *testing.T) {
	h := &fakeHTTP{responses: map[string]transport.Response{
		"GET http://api/x": {Status: 200, Body: map[string]any{}},
		"GET http://api/y": {Status: 200, Body: map[string]any{}},
	}}
	in := Input{
		Config: models.Config{Host: "http://api"},
		Tests: []models.Test{
			apiTest("x", "GET", "/x", 200, `{oops`),
			apiTest("y", "GET", "/y", 200, ""),
		},
	}

	report, err := newRunner(t, h, nil, Options{}).Run(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, report.Results[0].Assert)
	assert.Contains(t, report.Results[0].Error, "parse assertion body")
	assert.True(t, report.Results[1].Assert)
}

func TestRunMissingVariable(t *testing.T) {
	h := &fakeHTTP{responses: map[string]transport.Response{
		"GET http://api/users/undefined": {Status: 404, Body: ""},
	}}
	in := Input{
		Config: models.Config{Host: "http://api"},
		Tests:  []models.Test{apiTest("x", "GET", "/users/${uid}", 404, "")},
	}

	report, err := newRunner(t, h, nil, Options{}).Run(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, report.Results[0].Assert)

	strict, err := newRunner(t, h, nil, Options{Missing: token.MissingError}).Run(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, strict.Results[0].Assert)
	assert.Contains(t, strict.Results[0].Error, `missing variable: "uid"`)
}

func TestRunSymmetricMode(t *testing.T) {
	h := &fakeHTTP{responses: map[string]transport.Response{
		"GET http://api/x": {Status: 200, Body: map[string]any{"id": float64(1), "extra": true}},
	}}
	in := Input{
		Config: models.Config{Host: "http://api"},
		Tests:  []models.Test{apiTest("x", "GET", "/x", 200, `{"id":1}`)},
	}

	subset, err := newRunner(t, h, nil, Options{}).Run(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, subset.Results[0].Assert)

	sym, err := newRunner(t, h, nil, Options{Mode: asrt.Symmetric}).Run(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, sym.Results[0].Assert)
}

func TestRunDatabaseTests(t *testing.T) {
	q := &fakeQuery{fail: map[string]bool{"DROP nothing": true}}
	in := Input{
		Config: models.Config{DBType: "SQLITE", DBURL: "x.db"},
		Tests: []models.Test{
			models.NewDBTest(models.DBTest{Name: "ok", Query: "SELECT 1"}),
			models.NewDBTest(models.DBTest{Name: "bad", Query: "DROP nothing"}),
		},
	}

	report, err := newRunner(t, &fakeHTTP{}, q, Options{}).Run(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, report.Results[0].Assert)
	assert.Nil(t, report.Results[0].Status)
	assert.False(t, report.Results[1].Assert)
	assert.Equal(t, "syntax error", report.Results[1].Error)
	assert.Equal(t, []string{"SELECT 1", "DROP nothing"}, q.queries)
}

func TestRunDatabaseWithoutTransport(t *testing.T) {
	in := Input{Tests: []models.Test{models.NewDBTest(models.DBTest{Name: "q", Query: "SELECT 1"})}}
	report, err := newRunner(t, &fakeHTTP{}, nil, Options{}).Run(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, report.Results[0].Assert)
}

func TestRunSingleTest(t *testing.T) {
	h := &fakeHTTP{responses: map[string]transport.Response{
		"GET http://api/b": {Status: 200, Body: ""},
	}}
	in := Input{
		Config: models.Config{Host: "http://api"},
		Tests: []models.Test{
			apiTest("a", "GET", "/a", 200, ""),
			apiTest("b", "GET", "/b", 200, ""),
		},
	}
	id := 1
	in.TestID = &id

	report, err := newRunner(t, h, nil, Options{}).Run(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, 1, report.Results[0].TestID)
	assert.Equal(t, "b", report.Results[0].Name)

	bad := 5
	in.TestID = &bad
	_, err = newRunner(t, h, nil, Options{}).Run(context.Background(), in)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRunCancelledContext(t *testing.T) {
	h := &fakeHTTP{}
	in := Input{
		Tests: []models.Test{
			apiTest("a", "GET", "/a", 200, ""),
			models.NewDBTest(models.DBTest{Name: "b", Query: "SELECT 1"}),
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newRunner(t, h, &fakeQuery{}, Options{}).Run(ctx, in)
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	for _, res := range report.Results {
		assert.False(t, res.Assert)
		assert.Equal(t, context.Canceled.Error(), res.Error)
	}
	assert.Empty(t, h.requests)
}

func TestRunRejectsReentrantRun(t *testing.T) {
	h := &fakeHTTP{
		started:   make(chan struct{}, 1),
		block:     make(chan struct{}),
		responses: map[string]transport.Response{"GET http://api/a": {Status: 200}},
	}
	r := newRunner(t, h, nil, Options{})
	in := Input{
		Config: models.Config{Host: "http://api"},
		Tests:  []models.Test{apiTest("a", "GET", "/a", 200, "")},
	}

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), in)
		done <- err
	}()

	<-h.started

	_, err := r.Run(context.Background(), in)
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(h.block)
	require.NoError(t, <-done)

	_, err = r.Run(context.Background(), in)
	assert.NoError(t, err)
}

func TestInputFor(t *testing.T) {
	projects := []models.Project{{
		Name:   "p",
		Config: models.Config{Host: "http://h"},
		Collections: []models.Collection{{
			Name:  "c",
			Tests: []models.Test{apiTest("a", "GET", "/", 200, "")},
		}},
	}}

	in, err := InputFor(projects, 0, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://h", in.Config.Host)
	assert.Len(t, in.Tests, 1)

	bad := 3
	_, err = InputFor(projects, 0, 0, &bad)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = InputFor(projects, 1, 0, nil)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
