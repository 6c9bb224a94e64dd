package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"digital.vasic.mobileqa/pkg/logging"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "mobileqa.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/mobileqa"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "MOBILEQA_"
)

// Loader handles configuration loading with layered precedence.
type Loader struct {
	logger logging.Logger
	home   func() (string, error)
	cwd    func() (string, error)
	lookup func(string) (string, bool)
}

// NewLoader creates a configuration loader reading the real home
// directory, working directory and environment.
func NewLoader(logger logging.Logger) *Loader {
	if logger == nil {
		logger = logging.NullLogger{}
	}
	return &Loader{
		logger: logger,
		home:   os.UserHomeDir,
		cwd:    os.Getwd,
		lookup: os.LookupEnv,
	}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/mobileqa/config.yaml)
// 3. Project config (mobileqa.yaml in current or parent directories)
// 4. explicit, when not empty; it must exist
// 5. MOBILEQA_* environment variables
// The result is not validated; callers apply flags first.
func (l *Loader) Load(explicit string) (*Config, error) {
	config := DefaultConfig()

	if path := l.userConfigPath(); path != "" {
		if userConfig, err := LoadFromFile(path); err == nil {
			l.logger.Debug("loaded user config", logging.StringField("path", path))
			config.Merge(userConfig)
		} else if !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("failed to load user config",
				logging.StringField("path", path), logging.ErrorField(err))
		}
	}

	if path := l.findProjectConfig(); path != "" {
		projectConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("loaded project config", logging.StringField("path", path))
		config.Merge(projectConfig)
	}

	if explicit != "" {
		fileConfig, err := LoadFromFile(explicit)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("loaded config file", logging.StringField("path", explicit))
		config.Merge(fileConfig)
	}

	if err := ApplyEnv(config, l.lookup); err != nil {
		return nil, err
	}
	return config, nil
}

// EnsureUserConfig creates the user config file with defaults if
// it doesn't exist.
func (l *Loader) EnsureUserConfig() (string, error) {
	path := l.userConfigPath()
	if path == "" {
		return "", errors.New("no home directory")
	}
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := DefaultConfig().SaveToFile(path); err != nil {
		return "", err
	}
	l.logger.Info("created default user config", logging.StringField("path", path))
	return path, nil
}

func (l *Loader) userConfigPath() string {
	home, err := l.home()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for mobileqa.yaml in the current and
// parent directories.
func (l *Loader) findProjectConfig() string {
	dir, err := l.cwd()
	if err != nil {
		return ""
	}
	for {
		path := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ApplyEnv overrides config from MOBILEQA_* variables found by
// lookup.
func ApplyEnv(c *Config, lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	var errs []error

	strs := map[string]*string{
		"DEVICE":       &c.Device.Serial,
		"ADB":          &c.Device.ADBPath,
		"PROVIDER":     &c.Model.Provider,
		"MODEL":        &c.Model.Name,
		"BASE_URL":     &c.Model.BaseURL,
		"APK":          &c.Run.APKPath,
		"ARTIFACTS":    &c.Artifacts.Dir,
		"MONITOR_ADDR": &c.Monitor.Addr,
		"METRICS_ADDR": &c.Metrics.Addr,
		"LOG_LEVEL":    &c.Logging.Level,
	}
	for name, dst := range strs {
		if v, ok := get(name); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"TIMEOUT":         &c.Run.Timeout,
		"STALE_THRESHOLD": &c.Run.StaleThreshold,
		"MODEL_TIMEOUT":   &c.Model.Timeout,
	}
	for name, dst := range durations {
		if v, ok := get(name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				continue
			}
			*dst = d
		}
	}

	if v, ok := get("MAX_STEPS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sMAX_STEPS: %w", EnvPrefix, err))
		} else {
			c.Run.MaxSteps = n
		}
	}

	bools := map[string]*bool{
		"RESET_APP": &c.Run.ResetApp,
		"VERBOSE":   &c.Logging.Verbose,
	}
	for name, dst := range bools {
		if v, ok := get(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				continue
			}
			*dst = b
		}
	}

	return errors.Join(errs...)
}
