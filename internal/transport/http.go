// Package transport performs the network side of a test: HTTP calls for API
// tests and queries for database tests.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/teester/teester/internal/logging"
	"github.com/teester/teester/internal/token"
)

// StatusTransportFailure is the status recorded when no HTTP response was
// received at all.
const StatusTransportFailure = -1

// DefaultTimeout bounds a single request when no timeout is configured.
const DefaultTimeout = 30 * time.Second

const maxResponseBytes = 16 << 20

// ErrUnsupportedMethod is returned for methods other than GET, POST, PUT
// and DELETE.
var ErrUnsupportedMethod = errors.New("unsupported method")

// Request is a single resolved API call.
type Request struct {
	Method          string
	URL             string
	Headers         map[string]any
	Body            any
	WithCredentials bool
}

// Response carries both real HTTP responses and transport failures. Any
// status returned by the server is data; Err is set only when Status is
// StatusTransportFailure.
type Response struct {
	Status   int
	Body     any
	Raw      []byte
	Duration time.Duration
	Err      error
}

// HTTPClient performs API test requests.
type HTTPClient struct {
	plain  *http.Client
	cookie *http.Client
	logger *zap.Logger
}

// NewHTTPClient creates an HTTPClient. Requests marked WithCredentials share
// a cookie jar for the lifetime of the client.
func NewHTTPClient(timeout time.Duration, logger *zap.Logger) (*HTTPClient, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	return &HTTPClient{
		plain:  &http.Client{Timeout: timeout},
		cookie: &http.Client{Timeout: timeout, Jar: jar},
		logger: logger.With(logging.Component("http-transport")),
	}, nil
}

// PerformRequest issues req and never returns an error; failures are folded
// into the Response.
func (c *HTTPClient) PerformRequest(ctx context.Context, req Request) Response {
	start := time.Now()
	resp := c.do(ctx, req)
	resp.Duration = time.Since(start)

	if resp.Err != nil {
		c.logger.Debug("request failed",
			logging.Method(req.Method),
			logging.URL(req.URL),
			zap.Error(resp.Err),
		)
	} else {
		c.logger.Debug("request completed",
			logging.Method(req.Method),
			logging.URL(req.URL),
			logging.Status(resp.Status),
			logging.Elapsed(resp.Duration),
		)
	}
	return resp
}

func (c *HTTPClient) do(ctx context.Context, req Request) Response {
	method := strings.ToUpper(req.Method)
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return failure(fmt.Errorf("%w: %q", ErrUnsupportedMethod, req.Method))
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return failure(fmt.Errorf("encode body: %w", err))
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return failure(fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Accept", "application/json, text/plain, */*")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, token.Stringify(v))
	}

	client := c.plain
	if req.WithCredentials {
		client = c.cookie
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return failure(err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return failure(fmt.Errorf("read response: %w", err))
	}

	return Response{
		Status: httpResp.StatusCode,
		Body:   DecodeBody(raw),
		Raw:    raw,
	}
}

func failure(err error) Response {
	return Response{Status: StatusTransportFailure, Body: "", Err: err}
}

// DecodeBody parses raw as JSON, falling back to the raw text.
func DecodeBody(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return string(raw)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
