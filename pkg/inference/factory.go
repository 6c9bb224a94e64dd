package inference

import (
	"fmt"
	"strings"
	"time"

	"digital.vasic.mobileqa/pkg/httpclient"
	"digital.vasic.mobileqa/pkg/logging"
	"digital.vasic.mobileqa/pkg/metrics"
)

// Config selects and configures a provider.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
	Retry    RetryConfig
}

// Providers lists the accepted Config.Provider values.
var Providers = []string{"gemini", "openai"}

// New builds the configured provider, wrapped with retry and
// instrumentation.
func New(
	cfg Config,
	logger logging.Logger,
	m metrics.RunMetrics,
) (Provider, error) {
	if logger == nil {
		logger = logging.NullLogger{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	var p Provider
	switch strings.ToLower(cfg.Provider) {
	case "", "gemini":
		p = NewGemini(cfg.APIKey, cfg.Model, cfg.BaseURL,
			httpclient.WithTimeout(cfg.Timeout),
			httpclient.WithLogger(logger),
		)
	case "openai":
		p = NewOpenAI(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Timeout)
	default:
		return nil, fmt.Errorf("unknown inference provider %q (want one of %s)",
			cfg.Provider, strings.Join(Providers, ", "))
	}

	return Instrument(WithRetry(p, cfg.Retry), logger, m), nil
}
