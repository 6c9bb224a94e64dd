package suite

import "digital.vasic.mobileqa/pkg/qa"

// File is the YAML (or JSON) structure of a test suite file.
type File struct {
	Name  string        `yaml:"name,omitempty" json:"name,omitempty"`
	Tests []qa.TestCase `yaml:"tests" json:"tests"`
}
