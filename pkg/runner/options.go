package runner

import (
	"errors"
	"io"
	"time"

	"digital.vasic.mobileqa/pkg/assertion"
	"digital.vasic.mobileqa/pkg/executor"
	"digital.vasic.mobileqa/pkg/logging"
	"digital.vasic.mobileqa/pkg/metrics"
	"digital.vasic.mobileqa/pkg/monitor"
	"digital.vasic.mobileqa/pkg/reward"
)

// Config holds the loop budgets and setup switches.
type Config struct {
	// MaxSteps bounds plan/execute/evaluate cycles per test.
	MaxSteps int `yaml:"max_steps" json:"max_steps"`

	// Timeout is the wall-clock budget of one test.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// StaleThreshold cancels a test when no step completes in
	// time. Zero disables the watchdog.
	StaleThreshold time.Duration `yaml:"stale_threshold" json:"stale_threshold"`

	// StuckWindow is how many equal consecutive screens count as
	// one unchanged observation.
	StuckWindow int `yaml:"stuck_window" json:"stuck_window"`

	// StuckObservations is how many unchanged observations in a
	// row trigger a recovery stage.
	StuckObservations int `yaml:"stuck_observations" json:"stuck_observations"`

	// RecoveryWait is the pause of the first recovery stage.
	RecoveryWait time.Duration `yaml:"recovery_wait" json:"recovery_wait"`

	// HistoryWindow is how many past steps the planner sees.
	HistoryWindow int `yaml:"history_window" json:"history_window"`

	// APKPath is installed before every test unless the test
	// names its own.
	APKPath string `yaml:"apk_path" json:"apk_path"`

	// ResetApp clears app data before every test.
	ResetApp bool `yaml:"reset_app" json:"reset_app"`
}

// DefaultConfig returns the runner defaults.
func DefaultConfig() Config {
	return Config{
		MaxSteps:          30,
		Timeout:           10 * time.Minute,
		StaleThreshold:    3 * time.Minute,
		StuckWindow:       3,
		StuckObservations: 3,
		RecoveryWait:      2 * time.Second,
		HistoryWindow:     8,
	}
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.MaxSteps <= 0 {
		errs = append(errs, errors.New("max_steps must be positive"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}
	if c.StaleThreshold < 0 {
		errs = append(errs, errors.New("stale_threshold must not be negative"))
	}
	if c.StuckWindow < 2 {
		errs = append(errs, errors.New("stuck_window must be at least 2"))
	}
	if c.StuckObservations <= 0 {
		errs = append(errs, errors.New("stuck_observations must be positive"))
	}
	if c.RecoveryWait < 0 {
		errs = append(errs, errors.New("recovery_wait must not be negative"))
	}
	return errors.Join(errs...)
}

// Option configures a Runner.
type Option func(*Runner)

// WithConfig sets the loop budgets.
func WithConfig(cfg Config) Option {
	return func(r *Runner) {
		r.cfg = cfg
	}
}

// WithExecutorConfig sets the executor tuning.
func WithExecutorConfig(cfg executor.Config) Option {
	return func(r *Runner) {
		r.execCfg = cfg
	}
}

// WithRewardConfig sets the reward constants.
func WithRewardConfig(cfg reward.Config) Option {
	return func(r *Runner) {
		r.rewardCfg = cfg
	}
}

// WithThreshold sets the subgoal detection confidence threshold.
func WithThreshold(t float64) Option {
	return func(r *Runner) {
		r.threshold = t
	}
}

// WithArtifactsDir sets the directory test artifacts are written
// under.
func WithArtifactsDir(dir string) Option {
	return func(r *Runner) {
		r.artifactsDir = dir
	}
}

// WithLogger sets the logger used by the runner and the
// components it builds.
func WithLogger(logger logging.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m metrics.RunMetrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithEmitter sets where run events are sent.
func WithEmitter(e monitor.Emitter) Option {
	return func(r *Runner) {
		r.events = e
	}
}

// WithAssertionEngine sets the engine for structured assertions.
func WithAssertionEngine(engine assertion.Engine) Option {
	return func(r *Runner) {
		r.assertions = engine
	}
}

// WithOutput sets where verdict banners are printed.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) {
		r.out = w
	}
}
