package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digital.vasic.mobileqa/pkg/logging"
)

type recordingLogger struct {
	logging.NullLogger
	mu        sync.Mutex
	requests  []logging.APIRequestLog
	responses []logging.APIResponseLog
}

func (r *recordingLogger) LogAPIRequest(req logging.APIRequestLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
}

func (r *recordingLogger) LogAPIResponse(resp logging.APIResponseLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, resp)
}

func TestNewAPIClient_Defaults(t *testing.T) {
	c := NewAPIClient("http://localhost:8080")
	assert.Equal(t, "http://localhost:8080", c.BaseURL())
	assert.Equal(t, "", c.APIKey())
	assert.Equal(t, "Authorization", c.keyHeader)
	assert.Equal(t, 60*time.Second, c.httpClient.Timeout)
}

func TestNewAPIClient_TrailingSlash(t *testing.T) {
	c := NewAPIClient("http://localhost:8080/")
	assert.Equal(t, "http://localhost:8080", c.BaseURL())
}

func TestNewAPIClient_Options(t *testing.T) {
	c := NewAPIClient("http://example.com",
		WithAPIKey("k"),
		WithKeyHeader("x-goog-api-key"),
		WithHeader("X-Client", "mobileqa"),
		WithTimeout(5*time.Second),
	)
	assert.Equal(t, "k", c.APIKey())
	assert.Equal(t, "x-goog-api-key", c.keyHeader)
	assert.Equal(t, "mobileqa", c.headers["X-Client"])
	assert.Equal(t, 5*time.Second, c.httpClient.Timeout)
}

func TestAPIClient_SetAPIKey(t *testing.T) {
	c := NewAPIClient("http://localhost")
	c.SetAPIKey("my-key")
	assert.Equal(t, "my-key", c.APIKey())
}

func TestAPIClient_Get_BearerKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer my-key", r.Header.Get("Authorization"))
		assert.Equal(t, "/v1/models", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, WithAPIKey("my-key"))
	code, result, err := c.Get(context.Background(), "/v1/models")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", result["status"])
}

func TestAPIClient_Get_NoKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	code, _, err := NewAPIClient(srv.URL).Get(context.Background(), "/test")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
}

func TestAPIClient_Get_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, _, err := NewAPIClient(srv.URL).Get(context.Background(), "/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse response")
}

func TestAPIClient_GetRaw(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("raw bytes"))
	}))
	defer srv.Close()

	code, data, err := NewAPIClient(srv.URL).GetRaw(context.Background(), "/raw")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "raw bytes", string(data))
}

func TestAPIClient_PostJSON_CustomKeyHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))
		assert.Empty(t, r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["prompt"])

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":1}`))
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL,
		WithAPIKey("secret"), WithKeyHeader("x-goog-api-key"))
	code, data, err := c.PostJSON(context.Background(), "/gen",
		map[string]string{"prompt": "hello"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, code)
	assert.JSONEq(t, `{"id":1}`, string(data))
}

func TestAPIClient_Do(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"answer":42}`))
	}))
	defer srv.Close()

	var out struct {
		Answer int `json:"answer"`
	}
	err := NewAPIClient(srv.URL).Do(context.Background(), "/q", struct{}{}, &out)
	require.NoError(t, err)
	assert.Equal(t, 42, out.Answer)
}

func TestAPIClient_Do_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"quota"}`))
	}))
	defer srv.Close()

	err := NewAPIClient(srv.URL).Do(context.Background(), "/q", nil, nil)
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.True(t, se.Temporary())
	assert.Contains(t, err.Error(), "HTTP 429")
}

func TestStatusError_Temporary(t *testing.T) {
	assert.True(t, (&StatusError{StatusCode: 503}).Temporary())
	assert.False(t, (&StatusError{StatusCode: 400}).Temporary())
	assert.False(t, (&StatusError{StatusCode: 401}).Temporary())
}

func TestAPIClient_LogsExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	rec := &recordingLogger{}
	c := NewAPIClient(srv.URL, WithLogger(rec), WithAPIKey("k"))
	_, _, err := c.PostJSON(context.Background(), "/p", map[string]int{"a": 1})
	require.NoError(t, err)

	require.Len(t, rec.requests, 1)
	require.Len(t, rec.responses, 1)
	assert.Equal(t, http.MethodPost, rec.requests[0].Method)
	assert.Equal(t, 7, rec.requests[0].BodyLength)
	assert.NotEmpty(t, rec.requests[0].RequestID)
	assert.Equal(t, rec.requests[0].RequestID, rec.responses[0].RequestID)
	assert.Equal(t, http.StatusOK, rec.responses[0].StatusCode)
	assert.Equal(t, `{"ok":true}`, rec.responses[0].BodyPreview)
}

func TestAPIClient_ConnectionError(t *testing.T) {
	c := NewAPIClient("http://127.0.0.1:1", WithTimeout(time.Second))
	_, _, err := c.GetRaw(context.Background(), "/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}
