// Package client is a typed client for the Teester API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/teester/teester/internal/runner"
	"github.com/teester/teester/internal/transport"
	"github.com/teester/teester/internal/types"
)

// Client talks to a Teester server.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a client. apiKey may be empty when the server does not
// require authentication.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: http.DefaultClient,
	}
}

// Health returns the server's greeting.
func (c *Client) Health(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, "GET", "/health", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", parseError(resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// GetProjects returns the newest snapshot as raw JSON.
func (c *Client) GetProjects(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, "/v1/projects")
}

// GetSnapshot returns a stored snapshot as raw JSON.
func (c *Client) GetSnapshot(ctx context.Context, id int64) (json.RawMessage, error) {
	return c.getRaw(ctx, fmt.Sprintf("/v1/projects/history/%d", id))
}

// SaveProjects stores data, a JSON array of projects, as the newest
// snapshot.
func (c *Client) SaveProjects(ctx context.Context, data []byte) (*types.SaveResponse, error) {
	var result types.SaveResponse
	if err := c.call(ctx, "PUT", "/v1/projects", json.RawMessage(data), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// History lists stored snapshots, newest first.
func (c *Client) History(ctx context.Context) (*types.HistoryResponse, error) {
	var result types.HistoryResponse
	if err := c.call(ctx, "GET", "/v1/projects/history", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RunQuery executes query on the server. It satisfies
// runner.QueryTransport, so remote runs send database tests to the server
// the same way the browser UI does.
func (c *Client) RunQuery(ctx context.Context, cfg transport.QueryConfig, query string) error {
	req := types.QueryRequest{DBType: cfg.DBType, DBURL: cfg.DBURL, Query: query}
	return c.call(ctx, "POST", "/v1/db-query", req, nil)
}

// RunCollection runs every test of a collection on the server.
func (c *Client) RunCollection(ctx context.Context, project, collection int, opts types.RunRequest) (*runner.Report, error) {
	return c.run(ctx, fmt.Sprintf("/v1/projects/%d/collections/%d/run", project, collection), opts)
}

// RunTest runs a single test on the server.
func (c *Client) RunTest(ctx context.Context, project, collection, test int, opts types.RunRequest) (*runner.Report, error) {
	return c.run(ctx, fmt.Sprintf("/v1/projects/%d/collections/%d/tests/%d/run", project, collection, test), opts)
}

func (c *Client) run(ctx context.Context, path string, opts types.RunRequest) (*runner.Report, error) {
	var report runner.Report
	if err := c.call(ctx, "POST", path, opts, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// GetRun fetches a recent run report.
func (c *Client) GetRun(ctx context.Context, id string) (*runner.Report, error) {
	var report runner.Report
	if err := c.call(ctx, "GET", "/v1/runs/"+id, nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// RunStatus lists the runs executing on the server.
func (c *Client) RunStatus(ctx context.Context) (*types.RunStatusResponse, error) {
	var resp types.RunStatusResponse
	if err := c.call(ctx, "GET", "/v1/runs", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunFaker inserts generated rows into a project's database.
func (c *Client) RunFaker(ctx context.Context, project, faker int, req types.FakerRunRequest) (*types.FakerRunResponse, error) {
	var result types.FakerRunResponse
	path := fmt.Sprintf("/v1/projects/%d/fakers/%d/run", project, faker)
	if err := c.call(ctx, "POST", path, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) getRaw(ctx context.Context, path string) (json.RawMessage, error) {
	resp, err := c.do(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseError(resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// call sends reqBody as JSON and decodes a 200 response into result, which
// may be nil.
func (c *Client) call(ctx context.Context, method, path string, reqBody, result any) error {
	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseError(resp)
	}
	if result == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return hc.Do(req)
}

func parseError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	var errResp types.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}
	if len(errResp.Problems) > 0 {
		return fmt.Errorf("%s: %s", errResp.Error, strings.Join(errResp.Problems, "; "))
	}
	return fmt.Errorf("%s", errResp.Error)
}
