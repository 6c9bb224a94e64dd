// Package inference abstracts the multimodal model used to plan
// actions, verify goals and decompose tests into subgoals.
//
// A Provider turns a prompt (optionally with a screenshot) into
// text. GenerateStructured layers JSON extraction and validation
// on top and reports every failure as a *ProviderError so callers
// can fall back to a degraded default.
package inference

import (
	"context"
	"time"
)

// Request is one prompt sent to a provider.
type Request struct {
	Prompt      string
	ImagePath   string
	Temperature float64
	MaxTokens   int

	// Purpose labels the call in logs and metrics,
	// e.g. "plan" or "verify_done".
	Purpose string
}

// DefaultMaxTokens is used when Request.MaxTokens is zero.
const DefaultMaxTokens = 2048

// Response is the provider's answer.
type Response struct {
	Text    string
	Model   string
	Latency time.Duration
}

// Provider generates text from a prompt and optional image.
type Provider interface {
	Generate(ctx context.Context, req Request) (Response, error)
	Name() string
}

func maxTokens(req Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return DefaultMaxTokens
}
