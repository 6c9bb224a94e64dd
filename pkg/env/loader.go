// Package env loads .env files and resolves provider API keys.
package env

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
)

// Loader defines the interface for environment variable management.
type Loader interface {
	// Load reads environment variables from a .env file.
	Load(filepath string) error
	// Get retrieves an environment variable value.
	Get(key string) string
	// GetRequired retrieves a required environment variable or returns error.
	GetRequired(key string) (string, error)
	// GetWithDefault retrieves an environment variable with a default fallback.
	GetWithDefault(key, defaultValue string) string
	// GetAPIKey retrieves an API key for a named provider.
	GetAPIKey(provider string) string
	// Set sets an environment variable.
	Set(key, value string) error
	// All returns all loaded environment variables.
	All() map[string]string
}

// DefaultLoader implements Loader with .env file support and provider mappings.
type DefaultLoader struct {
	mu       sync.RWMutex
	vars     map[string]string
	loaded   bool
	mappings map[string][]string // provider name -> env var names, in lookup order
}

var _ Loader = (*DefaultLoader)(nil)

// NewLoader creates a new DefaultLoader with the inference provider
// API key mappings.
func NewLoader() *DefaultLoader {
	return &DefaultLoader{
		vars: make(map[string]string),
		mappings: map[string][]string{
			"gemini": {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
			"google": {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
			"openai": {"OPENAI_API_KEY"},
		},
	}
}

// NewLoaderWithMappings creates a loader with extra provider-to-env-var
// mappings.
func NewLoaderWithMappings(mappings map[string]string) *DefaultLoader {
	l := NewLoader()
	for k, v := range mappings {
		l.mappings[strings.ToLower(k)] = []string{v}
	}
	return l
}

// Load parses KEY=VALUE lines. Blank lines, comments and an
// optional "export " prefix are accepted; matching surrounding
// quotes are removed.
func (l *DefaultLoader) Load(filepath string) error {
	file, err := os.Open(filepath)
	if err != nil {
		return fmt.Errorf("open env file %s: %w", filepath, err)
	}
	defer file.Close()

	l.mu.Lock()
	defer l.mu.Unlock()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		l.vars[strings.TrimSpace(key)] = unquote(strings.TrimSpace(value))
	}

	l.loaded = true
	return scanner.Err()
}

// LoadOptional is Load that ignores a missing file.
func (l *DefaultLoader) LoadOptional(filepath string) error {
	err := l.Load(filepath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func unquote(v string) string {
	if len(v) >= 2 {
		first, last := v[0], v[len(v)-1]
		if (first == '"' || first == '\'') && first == last {
			return v[1 : len(v)-1]
		}
	}
	return v
}

func (l *DefaultLoader) Get(key string) string {
	// OS env takes precedence
	if v := os.Getenv(key); v != "" {
		return v
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.vars[key]
}

func (l *DefaultLoader) GetRequired(key string) (string, error) {
	v := l.Get(key)
	if v == "" {
		return "", fmt.Errorf("required environment variable %s is not set", key)
	}
	return v, nil
}

func (l *DefaultLoader) GetWithDefault(key, defaultValue string) string {
	if v := l.Get(key); v != "" {
		return v
	}
	return defaultValue
}

// APIKeyVars returns the variables consulted for a provider.
// Unknown providers map to <PROVIDER>_API_KEY.
func (l *DefaultLoader) APIKeyVars(provider string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if vars, ok := l.mappings[strings.ToLower(provider)]; ok {
		return append([]string(nil), vars...)
	}
	return []string{strings.ToUpper(provider) + "_API_KEY"}
}

func (l *DefaultLoader) GetAPIKey(provider string) string {
	for _, v := range l.APIKeyVars(provider) {
		if key := l.Get(v); key != "" {
			return key
		}
	}
	return ""
}

func (l *DefaultLoader) Set(key, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.vars[key] = value
	return os.Setenv(key, value)
}

func (l *DefaultLoader) All() map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make(map[string]string, len(l.vars))
	for k, v := range l.vars {
		result[k] = v
	}
	return result
}
