package suite

import (
	"fmt"
	"strings"

	"digital.vasic.mobileqa/pkg/qa"
)

// ValidationError is one problem found in a suite.
type ValidationError struct {
	Field   string
	Message string
	Index   int // -1 if not applicable
}

func (e ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("tests[%d].%s: %s", e.Index, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate returns every problem found in the suite.
func (s *Suite) Validate() []ValidationError {
	var errs []ValidationError

	if len(s.Tests) == 0 {
		return []ValidationError{
			{Field: "tests", Message: "no tests defined", Index: -1},
		}
	}

	names := make(map[string]bool)
	for i, tc := range s.Tests {
		switch {
		case strings.TrimSpace(tc.Name) == "":
			errs = append(errs, ValidationError{
				Field: "name", Message: "test name is required", Index: i,
			})
		case names[tc.Name]:
			errs = append(errs, ValidationError{
				Field:   "name",
				Message: fmt.Sprintf("duplicate name: %s", tc.Name),
				Index:   i,
			})
		default:
			names[tc.Name] = true
		}

		if strings.TrimSpace(tc.Goal) == "" {
			errs = append(errs, ValidationError{
				Field: "goal", Message: "test goal is required", Index: i,
			})
		}

		if tc.ExpectedResult != "" {
			if _, err := qa.ParseVerdict(string(tc.ExpectedResult)); err != nil {
				errs = append(errs, ValidationError{
					Field:   "expected_result",
					Message: fmt.Sprintf("%v, want PASS, FAIL_ACTION or FAIL_ASSERTION", err),
					Index:   i,
				})
			}
		}
	}

	return errs
}
