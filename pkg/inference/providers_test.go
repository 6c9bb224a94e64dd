package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "screen.png")
	require.NoError(t, os.WriteFile(path, []byte("png-bytes"), 0644))
	return path
}

func TestLoadImage(t *testing.T) {
	img, err := LoadImage(writeImage(t))
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIMEType)
	assert.Equal(t, "cG5nLWJ5dGVz", img.Base64)
	assert.Equal(t, "data:image/png;base64,cG5nLWJ5dGVz", img.DataURI())

	jpg := filepath.Join(t.TempDir(), "a.JPG")
	require.NoError(t, os.WriteFile(jpg, []byte("x"), 0644))
	img, err = LoadImage(jpg)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MIMEType)

	_, err = LoadImage("/nonexistent.png")
	assert.Error(t, err)
}

func TestGemini_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var body geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Contents, 1)
		parts := body.Contents[0].Parts
		require.Len(t, parts, 2)
		require.NotNil(t, parts[0].InlineData)
		assert.Equal(t, "image/png", parts[0].InlineData.MIMEType)
		assert.Equal(t, "describe", parts[1].Text)
		assert.Equal(t, 0.3, body.GenerationConfig.Temperature)
		assert.Equal(t, DefaultMaxTokens, body.GenerationConfig.MaxOutputTokens)

		w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "{\"a\":"}, {"text": "1}"}]}}],
			"modelVersion": "gemini-2.0-flash-001"
		}`))
	}))
	defer srv.Close()

	g := NewGemini("test-key", "", srv.URL)
	resp, err := g.Generate(context.Background(), Request{
		Prompt: "describe", ImagePath: writeImage(t), Temperature: 0.3,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, resp.Text)
	assert.Equal(t, "gemini-2.0-flash-001", resp.Model)
}

func TestGemini_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		kind      ErrorKind
		retryable bool
	}{
		{"rate limited", 429, `{"error":{"message":"quota"}}`, KindStatus, true},
		{"server", 500, `{}`, KindStatus, true},
		{"bad request", 400, `{}`, KindStatus, false},
		{"auth", 403, `{}`, KindAuth, false},
		{"no candidates", 200, `{"candidates": []}`, KindEmpty, false},
		{"blocked", 200, `{"promptFeedback": {"blockReason": "SAFETY"}}`, KindEmpty, false},
		{"garbage", 200, `not json`, KindParse, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewGemini("k", "", srv.URL).Generate(context.Background(), Request{Prompt: "x"})
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.Equal(t, tt.retryable, IsRetryable(err))
		})
	}
}

func TestGemini_MissingKey(t *testing.T) {
	_, err := NewGemini("", "", "http://127.0.0.1:1").Generate(context.Background(), Request{})
	assert.Equal(t, KindAuth, KindOf(err))
}

func TestOpenAI_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body["model"])
		msgs := body["messages"].([]any)
		content := msgs[0].(map[string]any)["content"].([]any)
		require.Len(t, content, 2)
		image := content[1].(map[string]any)["image_url"].(map[string]any)
		assert.Equal(t, "data:image/png;base64,cG5nLWJ5dGVz", image["url"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1", "object": "chat.completion", "model": "gpt-4o-mini-2024",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"ok\":true}"}, "finish_reason": "stop"}]
		}`))
	}))
	defer srv.Close()

	o := NewOpenAI("sk-test", "", srv.URL+"/v1", 5*time.Second)
	resp, err := o.Generate(context.Background(), Request{Prompt: "p", ImagePath: writeImage(t)})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, resp.Text)
	assert.Equal(t, "gpt-4o-mini-2024", resp.Model)
}

func TestOpenAI_StatusErrors(t *testing.T) {
	for status, kind := range map[int]ErrorKind{429: KindStatus, 401: KindAuth, 503: KindStatus} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			w.Write([]byte(`{"error": {"message": "nope", "type": "x"}}`))
		}))

		_, err := NewOpenAI("sk", "", srv.URL+"/v1", time.Second).
			Generate(context.Background(), Request{Prompt: "p"})
		srv.Close()

		require.Error(t, err, status)
		assert.Equal(t, kind, KindOf(err), status)
		assert.Equal(t, status != 401, IsRetryable(err), status)
	}
}

func TestOpenAI_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "x", "choices": []}`))
	}))
	defer srv.Close()

	_, err := NewOpenAI("sk", "m", srv.URL+"/v1", time.Second).
		Generate(context.Background(), Request{Prompt: "p"})
	assert.Equal(t, KindEmpty, KindOf(err))
}
