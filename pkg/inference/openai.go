package inference

import (
	"context"
	"errors"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates an OpenAI-compatible provider. An empty baseURL
// uses the public API.
func NewOpenAI(apiKey, model, baseURL string, timeout time.Duration) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model}
}

// Name returns "openai".
func (o *OpenAI) Name() string { return "openai" }

// Model returns the configured model name.
func (o *OpenAI) Model() string { return o.model }

// Generate sends a single user message. A screenshot is attached
// as a data URI image part.
func (o *OpenAI) Generate(ctx context.Context, req Request) (Response, error) {
	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if req.ImagePath != "" {
		img, err := LoadImage(req.ImagePath)
		if err != nil {
			return Response{}, NewError(o.Name(), KindTransport, 0, err)
		}
		msg.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    img.DataURI(),
					Detail: openai.ImageURLDetailAuto,
				},
			},
		}
	} else {
		msg.Content = req.Prompt
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    []openai.ChatCompletionMessage{msg},
		Temperature: float32(req.Temperature),
		MaxTokens:   maxTokens(req),
	})
	if err != nil {
		return Response{}, o.classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, NewError(o.Name(), KindEmpty, 0, errors.New("no choices"))
	}

	model := resp.Model
	if model == "" {
		model = o.model
	}
	return Response{
		Text:    resp.Choices[0].Message.Content,
		Model:   model,
		Latency: time.Since(start),
	}, nil
}

func (o *OpenAI) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return NewError(o.Name(), KindCancelled, 0, ctx.Err())
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return NewError(o.Name(), KindTransport, 0, err)
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return NewError(o.Name(), KindAuth, status, err)
	}
	return NewError(o.Name(), KindStatus, status, err)
}
