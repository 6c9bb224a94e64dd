// Package suite loads natural-language test cases from YAML or
// JSON suite files.
package suite

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"digital.vasic.mobileqa/pkg/qa"
)

var (
	// ErrNoFiles is returned when a glob matches no suite file.
	ErrNoFiles = errors.New("no suite files matched")

	// ErrTestNotFound is returned by Filter for an unknown name.
	ErrTestNotFound = errors.New("test not found")
)

// Suite is an ordered collection of test cases.
type Suite struct {
	Tests   []qa.TestCase
	Sources []string
}

// Load reads one suite file. Files ending in .json are decoded as
// JSON, everything else as YAML.
func Load(path string) (*Suite, error) {
	s := &Suite{}
	if err := s.LoadFile(path); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadGlob loads every file matching pattern, which may use **.
// Files are loaded in lexical order.
func LoadGlob(pattern string) (*Suite, error) {
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("expand %s: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFiles, pattern)
	}
	sort.Strings(matches)

	s := &Suite{}
	for _, m := range matches {
		if err := s.LoadFile(m); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// LoadFile appends the tests of one file to the suite.
func (s *Suite) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read suite file %s: %w", path, err)
	}

	var file File
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &file)
	} else {
		err = yaml.Unmarshal(data, &file)
	}
	if err != nil {
		return fmt.Errorf("parse suite file %s: %w", path, err)
	}

	for _, tc := range file.Tests {
		if v, err := qa.ParseVerdict(string(tc.ExpectedResult)); err == nil {
			tc.ExpectedResult = v
		}
		s.Tests = append(s.Tests, tc)
	}
	s.Sources = append(s.Sources, path)
	return nil
}

// Names returns the test names in order.
func (s *Suite) Names() []string {
	names := make([]string, len(s.Tests))
	for i, tc := range s.Tests {
		names[i] = tc.Name
	}
	return names
}

// Filter returns a suite holding only the named test.
func (s *Suite) Filter(name string) (*Suite, error) {
	for _, tc := range s.Tests {
		if tc.Name == name {
			return &Suite{Tests: []qa.TestCase{tc}, Sources: s.Sources}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTestNotFound, name)
}

// OverrideAPK sets the APK of every test.
func (s *Suite) OverrideAPK(path string) {
	for i := range s.Tests {
		s.Tests[i].APKPath = path
	}
}
