// Package qa defines the data model shared by the test execution
// loop: test cases, UI snapshots, actions, execution results,
// subgoals, verdicts, rewards and the final test result.
package qa

import (
	"fmt"
	"strings"
)

// Verdict is the step or test outcome tag.
type Verdict string

// Verdict values. ERROR is only produced at the suite level when
// a test could not run at all.
const (
	VerdictRunning       Verdict = "RUNNING"
	VerdictPass          Verdict = "PASS"
	VerdictFailAction    Verdict = "FAIL_ACTION"
	VerdictFailAssertion Verdict = "FAIL_ASSERTION"
	VerdictError         Verdict = "ERROR"
)

// IsTerminal reports whether the verdict ends a test run.
func (v Verdict) IsTerminal() bool {
	switch v {
	case VerdictPass, VerdictFailAction,
		VerdictFailAssertion, VerdictError:
		return true
	}
	return false
}

// IsFailure reports whether the verdict is a failing outcome.
func (v Verdict) IsFailure() bool {
	return v.IsTerminal() && v != VerdictPass
}

// ParseVerdict parses an expected_result value. Lookup is case
// insensitive.
func ParseVerdict(s string) (Verdict, error) {
	switch v := Verdict(strings.ToUpper(strings.TrimSpace(s))); v {
	case VerdictPass, VerdictFailAction, VerdictFailAssertion:
		return v, nil
	}
	return "", fmt.Errorf("unknown verdict %q", s)
}

// DefaultPackage is the application package used when a test
// case does not name one.
const DefaultPackage = "md.obsidian"

// TestCase is one natural-language test entry. It is treated as
// immutable once loaded.
type TestCase struct {
	// Name uniquely identifies the test inside a suite.
	Name string `yaml:"name" json:"name"`

	// Package is the Android application id under test.
	Package string `yaml:"package" json:"package"`

	// Goal is the natural-language objective.
	Goal string `yaml:"goal" json:"goal"`

	// Setup lists free-text preconditions. They are logged, not
	// executed.
	Setup []string `yaml:"setup,omitempty" json:"setup,omitempty"`

	// ExpectedResult is the verdict the author expects.
	ExpectedResult Verdict `yaml:"expected_result" json:"expected_result"`

	// Reason is an optional human-authored failure explanation.
	Reason string `yaml:"reason,omitempty" json:"reason,omitempty"`

	// APKPath overrides the suite-wide APK for this test.
	APKPath string `yaml:"apk_path,omitempty" json:"apk_path,omitempty"`
}

// AppPackage returns the package, falling back to
// DefaultPackage.
func (tc TestCase) AppPackage() string {
	if tc.Package == "" {
		return DefaultPackage
	}
	return tc.Package
}

// Expected returns the expected verdict, PASS when unset.
func (tc TestCase) Expected() Verdict {
	if tc.ExpectedResult == "" {
		return VerdictPass
	}
	return tc.ExpectedResult
}
