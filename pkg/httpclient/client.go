// Package httpclient is a small JSON-over-HTTP client for model
// provider REST APIs. It authenticates with an API key header and
// reports every exchange to a logging.Logger.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"digital.vasic.mobileqa/pkg/logging"
)

// ClientOption configures an APIClient via functional options.
type ClientOption func(*APIClient)

// APIClient wraps net/http.Client with API key authentication for
// calling REST APIs. Defaults match common conventions so callers
// can use NewAPIClient(url) with zero options.
type APIClient struct {
	baseURL    string
	apiKey     string
	keyHeader  string
	headers    map[string]string
	httpClient *http.Client
	logger     logging.Logger
}

// NewAPIClient creates an API client targeting the given base URL.
// Pass ClientOption values to override defaults.
func NewAPIClient(baseURL string, opts ...ClientOption) *APIClient {
	c := &APIClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyHeader: "Authorization",
		headers:   make(map[string]string),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logging.NullLogger{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// WithAPIKey sets the key sent with every request.
func WithAPIKey(key string) ClientOption {
	return func(c *APIClient) { c.apiKey = key }
}

// WithKeyHeader overrides the header carrying the API key. The
// default Authorization header sends "Bearer <key>"; any other
// header sends the bare key.
func WithKeyHeader(name string) ClientOption {
	return func(c *APIClient) { c.keyHeader = name }
}

// WithHeader adds a static header to every request.
func WithHeader(name, value string) ClientOption {
	return func(c *APIClient) { c.headers[name] = value }
}

// WithTimeout overrides the default HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *APIClient) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *APIClient) { c.httpClient = hc }
}

// WithLogger sets the logger receiving request/response logs.
func WithLogger(l logging.Logger) ClientOption {
	return func(c *APIClient) { c.logger = l }
}

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, logging.Preview(e.Body, 300))
}

// Temporary reports whether a retry may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// Get performs a GET request and returns the status code and
// parsed JSON object response.
func (c *APIClient) Get(
	ctx context.Context, path string,
) (int, map[string]any, error) {
	code, data, err := c.GetRaw(ctx, path)
	if err != nil {
		return code, nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return code, nil, fmt.Errorf("parse response: %w", err)
	}
	return code, result, nil
}

// GetRaw performs a GET and returns status code and raw body bytes.
func (c *APIClient) GetRaw(
	ctx context.Context, path string,
) (int, []byte, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, c.baseURL+path, nil,
	)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	return c.do(req, 0)
}

// PostJSON marshals body, POSTs it and returns the status code and
// raw response bytes. A non-2xx status is not an error here; use
// Do for that.
func (c *APIClient) PostJSON(
	ctx context.Context, path string, body any,
) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, len(payload))
}

// Do POSTs body and decodes a 2xx JSON response into out. Other
// statuses are returned as *StatusError.
func (c *APIClient) Do(
	ctx context.Context, path string, body, out any,
) error {
	code, data, err := c.PostJSON(ctx, path, body)
	if err != nil {
		return err
	}
	if code < 200 || code >= 300 {
		return &StatusError{StatusCode: code, Body: string(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func (c *APIClient) do(req *http.Request, bodyLen int) (int, []byte, error) {
	c.authorize(req)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	id := uuid.NewString()
	c.logger.LogAPIRequest(logging.APIRequestLog{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		RequestID:  id,
		Method:     req.Method,
		URL:        req.URL.String(),
		Headers:    flatten(req.Header),
		BodyLength: bodyLen,
	})

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.LogAPIResponse(logging.APIResponseLog{
		Timestamp:      time.Now().UTC().Format(time.RFC3339Nano),
		RequestID:      id,
		StatusCode:     resp.StatusCode,
		Headers:        flatten(resp.Header),
		BodyPreview:    logging.Preview(string(data), 500),
		BodyLength:     len(data),
		ResponseTimeMs: time.Since(start).Milliseconds(),
	})
	return resp.StatusCode, data, nil
}

func (c *APIClient) authorize(req *http.Request) {
	if c.apiKey == "" {
		return
	}
	if strings.EqualFold(c.keyHeader, "Authorization") {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		return
	}
	req.Header.Set(c.keyHeader, c.apiKey)
}

func flatten(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

// APIKey returns the configured key.
func (c *APIClient) APIKey() string {
	return c.apiKey
}

// SetAPIKey sets the key directly (e.g. when loaded after construction).
func (c *APIClient) SetAPIKey(key string) {
	c.apiKey = key
}

// BaseURL returns the configured base URL.
func (c *APIClient) BaseURL() string {
	return c.baseURL
}
