package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"digital.vasic.mobileqa/pkg/httpclient"
)

// DefaultGeminiBaseURL is the Generative Language API root.
const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// Gemini calls the generateContent REST method.
type Gemini struct {
	client *httpclient.APIClient
	model  string
}

// NewGemini creates a Gemini provider. The key is sent in the
// x-goog-api-key header. Extra client options (timeout, logger)
// are applied after the defaults.
func NewGemini(
	apiKey, model, baseURL string,
	opts ...httpclient.ClientOption,
) *Gemini {
	if model == "" {
		model = DefaultGeminiModel
	}
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	base := []httpclient.ClientOption{
		httpclient.WithAPIKey(apiKey),
		httpclient.WithKeyHeader("x-goog-api-key"),
	}
	return &Gemini{
		client: httpclient.NewAPIClient(baseURL, append(base, opts...)...),
		model:  model,
	}
}

// Name returns "gemini".
func (g *Gemini) Name() string { return "gemini" }

// Model returns the configured model name.
func (g *Gemini) Model() string { return g.model }

type geminiInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	ModelVersion string `json:"modelVersion"`
}

// Generate sends the prompt, with the image inlined before it.
func (g *Gemini) Generate(ctx context.Context, req Request) (Response, error) {
	if g.client.APIKey() == "" {
		return Response{}, NewError(g.Name(), KindAuth, 0,
			errors.New("GEMINI_API_KEY is not set"))
	}

	var parts []geminiPart
	if req.ImagePath != "" {
		img, err := LoadImage(req.ImagePath)
		if err != nil {
			return Response{}, NewError(g.Name(), KindTransport, 0, err)
		}
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MIMEType: img.MIMEType, Data: img.Base64,
		}})
	}
	parts = append(parts, geminiPart{Text: req.Prompt})

	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: maxTokens(req),
		},
	}

	start := time.Now()
	var out geminiResponse
	path := "/v1beta/models/" + url.PathEscape(g.model) + ":generateContent"
	if err := g.client.Do(ctx, path, body, &out); err != nil {
		return Response{}, g.classify(ctx, err)
	}

	if out.PromptFeedback.BlockReason != "" {
		return Response{}, NewError(g.Name(), KindEmpty, 0,
			fmt.Errorf("prompt blocked: %s", out.PromptFeedback.BlockReason))
	}
	if len(out.Candidates) == 0 {
		return Response{},
			NewError(g.Name(), KindEmpty, 0, errors.New("no candidates"))
	}
	var text strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}

	model := out.ModelVersion
	if model == "" {
		model = g.model
	}
	return Response{
		Text:    text.String(),
		Model:   model,
		Latency: time.Since(start),
	}, nil
}

func (g *Gemini) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return NewError(g.Name(), KindCancelled, 0, ctx.Err())
	}
	var se *httpclient.StatusError
	if errors.As(err, &se) {
		if se.StatusCode == http.StatusUnauthorized ||
			se.StatusCode == http.StatusForbidden {
			return NewError(g.Name(), KindAuth, se.StatusCode, err)
		}
		return NewError(g.Name(), KindStatus, se.StatusCode, err)
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return NewError(g.Name(), KindParse, 0, err)
	}
	return NewError(g.Name(), KindTransport, 0, err)
}
