// Package config provides layered configuration for mobileqa runs.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"digital.vasic.mobileqa/pkg/executor"
	"digital.vasic.mobileqa/pkg/inference"
	"digital.vasic.mobileqa/pkg/logging"
	"digital.vasic.mobileqa/pkg/reward"
	"digital.vasic.mobileqa/pkg/runner"
	"digital.vasic.mobileqa/pkg/supervisor"
)

// Config represents the complete mobileqa configuration.
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	Model      ModelConfig      `yaml:"model"`
	Run        runner.Config    `yaml:"run"`
	Executor   executor.Config  `yaml:"executor"`
	Reward     reward.Config    `yaml:"reward"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Artifacts  ArtifactsConfig  `yaml:"artifacts"`
	Monitor    ServerConfig     `yaml:"monitor"`
	Metrics    ServerConfig     `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DeviceConfig selects the device and the adb binary.
type DeviceConfig struct {
	// Serial is the adb serial (e.g. "emulator-5554").
	Serial string `yaml:"serial"`
	// ADBPath is the adb binary.
	ADBPath string `yaml:"adb_path"`
	// CommandTimeout bounds every adb invocation.
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// ModelConfig configures the inference provider.
type ModelConfig struct {
	// Provider is "gemini" or "openai".
	Provider string `yaml:"provider"`
	// Name is the model identifier.
	Name string `yaml:"name"`
	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"base_url"`
	// Timeout bounds one provider request.
	Timeout time.Duration `yaml:"timeout"`
	// MaxAttempts bounds tries of a transient provider failure.
	MaxAttempts int `yaml:"max_attempts"`
}

// SupervisorConfig tunes verdict decisions.
type SupervisorConfig struct {
	// Threshold is the minimum confidence for a subgoal to count.
	Threshold float64 `yaml:"threshold"`
}

// ArtifactsConfig places run output.
type ArtifactsConfig struct {
	Dir string `yaml:"dir"`
}

// ServerConfig is an optional HTTP listener; an empty Addr
// disables it.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig configures the console and file loggers.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Verbose bool   `yaml:"verbose"`
	// File enables JSON logs under <artifacts>/logs.
	File bool `yaml:"file"`
}

// DefaultConfig returns a Config with the standard defaults.
func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Serial:         "emulator-5554",
			ADBPath:        "adb",
			CommandTimeout: 30 * time.Second,
		},
		Model: ModelConfig{
			Provider:    "gemini",
			Name:        "gemini-2.0-flash",
			Timeout:     60 * time.Second,
			MaxAttempts: inference.DefaultRetryConfig().MaxAttempts,
		},
		Run:        runner.DefaultConfig(),
		Executor:   executor.DefaultConfig(),
		Reward:     reward.DefaultConfig(),
		Supervisor: SupervisorConfig{Threshold: supervisor.DefaultThreshold},
		Artifacts:  ArtifactsConfig{Dir: "artifacts"},
		Logging:    LoggingConfig{Level: "info", File: true},
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Device.Serial == "" {
		errs = append(errs, errors.New("device.serial is required"))
	}
	if !slices.Contains(inference.Providers, strings.ToLower(c.Model.Provider)) {
		errs = append(errs, fmt.Errorf(
			"model.provider must be one of %s",
			strings.Join(inference.Providers, ", "),
		))
	}
	if c.Model.Name == "" {
		errs = append(errs, errors.New("model.name is required"))
	}
	if c.Supervisor.Threshold <= 0 || c.Supervisor.Threshold > 1 {
		errs = append(errs, errors.New("supervisor.threshold must be in (0, 1]"))
	}
	if c.Artifacts.Dir == "" {
		errs = append(errs, errors.New("artifacts.dir is required"))
	}
	if c.Executor.MaxAttempts < 0 || c.Executor.MaxDismissals < 0 {
		errs = append(errs, errors.New("executor limits must not be negative"))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if err := c.Run.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("run: %w", err))
	}
	if err := c.Reward.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("reward: %w", err))
	}
	return errors.Join(errs...)
}

// LoadFromFile reads a YAML file. Only the keys present in the
// file are set; merge the result over a base Config.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Merge merges another config into this one. Non-zero values of
// other take precedence, so a boolean can be switched on but
// not off.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Device
	set(&c.Device.Serial, other.Device.Serial)
	set(&c.Device.ADBPath, other.Device.ADBPath)
	set(&c.Device.CommandTimeout, other.Device.CommandTimeout)

	// Model
	set(&c.Model.Provider, other.Model.Provider)
	set(&c.Model.Name, other.Model.Name)
	set(&c.Model.BaseURL, other.Model.BaseURL)
	set(&c.Model.Timeout, other.Model.Timeout)
	set(&c.Model.MaxAttempts, other.Model.MaxAttempts)

	// Run
	r, o := &c.Run, other.Run
	set(&r.MaxSteps, o.MaxSteps)
	set(&r.Timeout, o.Timeout)
	set(&r.StaleThreshold, o.StaleThreshold)
	set(&r.StuckWindow, o.StuckWindow)
	set(&r.StuckObservations, o.StuckObservations)
	set(&r.RecoveryWait, o.RecoveryWait)
	set(&r.HistoryWindow, o.HistoryWindow)
	set(&r.APKPath, o.APKPath)
	set(&r.ResetApp, o.ResetApp)

	// Executor
	e, oe := &c.Executor, other.Executor
	set(&e.MaxAttempts, oe.MaxAttempts)
	set(&e.BackoffBase, oe.BackoffBase)
	set(&e.BackoffMax, oe.BackoffMax)
	set(&e.MaxDismissals, oe.MaxDismissals)
	set(&e.MaxWait, oe.MaxWait)
	set(&e.CaptureTimeout, oe.CaptureTimeout)
	if oe.DialogTexts != nil {
		e.DialogTexts = oe.DialogTexts
	}

	// Reward
	w, ow := &c.Reward, other.Reward
	set(&w.StepPenalty, ow.StepPenalty)
	set(&w.SubgoalReward, ow.SubgoalReward)
	set(&w.CompletionBonus, ow.CompletionBonus)
	set(&w.MinSubgoals, ow.MinSubgoals)
	set(&w.MaxSubgoals, ow.MaxSubgoals)

	set(&c.Supervisor.Threshold, other.Supervisor.Threshold)
	set(&c.Artifacts.Dir, other.Artifacts.Dir)
	set(&c.Monitor.Addr, other.Monitor.Addr)
	set(&c.Metrics.Addr, other.Metrics.Addr)

	// Logging
	set(&c.Logging.Level, other.Logging.Level)
	set(&c.Logging.Verbose, other.Logging.Verbose)
	set(&c.Logging.File, other.Logging.File)
}

func set[T comparable](dst *T, v T) {
	var zero T
	if v != zero {
		*dst = v
	}
}

// InferenceConfig builds the provider configuration. apiKey is
// resolved by the caller.
func (c *Config) InferenceConfig(apiKey string) inference.Config {
	retry := inference.DefaultRetryConfig()
	if c.Model.MaxAttempts > 0 {
		retry.MaxAttempts = c.Model.MaxAttempts
	}
	return inference.Config{
		Provider: c.Model.Provider,
		Model:    c.Model.Name,
		APIKey:   apiKey,
		BaseURL:  c.Model.BaseURL,
		Timeout:  c.Model.Timeout,
		Retry:    retry,
	}
}
