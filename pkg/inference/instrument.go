package inference

import (
	"context"
	"time"

	"github.com/google/uuid"

	"digital.vasic.mobileqa/pkg/logging"
	"digital.vasic.mobileqa/pkg/metrics"
)

const previewChars = 500

type modeler interface {
	Model() string
}

type instrumented struct {
	Provider
	logger  logging.Logger
	metrics metrics.RunMetrics
}

// Instrument wraps p so every exchange is written to the inference
// log and recorded in metrics. Nil logger or metrics are no-ops.
func Instrument(
	p Provider,
	logger logging.Logger,
	m metrics.RunMetrics,
) Provider {
	if logger == nil {
		logger = logging.NullLogger{}
	}
	if m == nil {
		m = metrics.NoopMetrics{}
	}
	return &instrumented{Provider: p, logger: logger, metrics: m}
}

func (i *instrumented) Generate(
	ctx context.Context,
	req Request,
) (Response, error) {
	start := time.Now()
	resp, err := i.Provider.Generate(ctx, req)
	latency := time.Since(start)

	entry := logging.InferenceLog{
		Timestamp:       start.UTC().Format(time.RFC3339Nano),
		RequestID:       uuid.NewString(),
		Provider:        i.Name(),
		Model:           resp.Model,
		Temperature:     req.Temperature,
		PromptChars:     len(req.Prompt),
		PromptPreview:   logging.Preview(req.Prompt, previewChars),
		ImagePath:       req.ImagePath,
		ResponseChars:   len(resp.Text),
		ResponsePreview: logging.Preview(resp.Text, previewChars),
		LatencyMs:       latency.Milliseconds(),
	}
	if entry.Model == "" {
		if m, ok := i.Provider.(modeler); ok {
			entry.Model = m.Model()
		}
	}
	if err != nil {
		entry.Error = err.Error()
	}
	i.logger.LogInference(entry)

	purpose := req.Purpose
	if purpose == "" {
		purpose = "generate"
	}
	i.metrics.RecordInference(i.Name(), purpose, err != nil, latency)
	return resp, err
}
