package report

import (
	"encoding/json"
	"io"
	"time"

	"digital.vasic.mobileqa/pkg/qa"
)

// JSONReporter generates JSON reports from test results.
type JSONReporter struct {
	pretty bool
}

// NewJSONReporter creates a new JSON reporter. When pretty is
// true, output is indented for readability.
func NewJSONReporter(pretty bool) *JSONReporter {
	return &JSONReporter{pretty: pretty}
}

func (r *JSONReporter) marshal(v any) ([]byte, error) {
	if r.pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

// GenerateReport creates a JSON report for a single test result.
func (r *JSONReporter) GenerateReport(result *qa.TestResult) ([]byte, error) {
	return r.marshal(result)
}

// jsonMasterSummary is the JSON structure for a master summary.
type jsonMasterSummary struct {
	GeneratedAt     time.Time        `json:"generated_at"`
	Total           int              `json:"total"`
	Passed          int              `json:"passed"`
	FailedAction    int              `json:"failed_action"`
	FailedAssertion int              `json:"failed_assertion"`
	Errors          int              `json:"errors"`
	TotalDuration   time.Duration    `json:"total_duration"`
	Results         []*qa.TestResult `json:"results"`
}

// GenerateMasterSummary creates a JSON summary of all test
// results.
func (r *JSONReporter) GenerateMasterSummary(
	results []*qa.TestResult,
) ([]byte, error) {
	c := countVerdicts(results)
	return r.marshal(jsonMasterSummary{
		GeneratedAt:     time.Now(),
		Total:           len(results),
		Passed:          c.passed,
		FailedAction:    c.failedAction,
		FailedAssertion: c.failedAssertion,
		Errors:          c.errors,
		TotalDuration:   c.duration,
		Results:         results,
	})
}

// WriteReport writes a JSON report to the specified writer.
func (r *JSONReporter) WriteReport(w io.Writer, result *qa.TestResult) error {
	data, err := r.GenerateReport(result)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

type verdictCounts struct {
	passed, failedAction, failedAssertion, errors, matched int
	duration                                               time.Duration
}

func countVerdicts(results []*qa.TestResult) verdictCounts {
	var c verdictCounts
	for _, r := range results {
		switch r.Verdict {
		case qa.VerdictPass:
			c.passed++
		case qa.VerdictFailAction:
			c.failedAction++
		case qa.VerdictFailAssertion:
			c.failedAssertion++
		default:
			c.errors++
		}
		if r.MatchedExpect {
			c.matched++
		}
		c.duration += r.Duration
	}
	return c
}
