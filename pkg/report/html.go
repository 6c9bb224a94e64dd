package report

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"path/filepath"
	"strings"
	"time"

	"digital.vasic.mobileqa/pkg/qa"
)

// HTMLReporter generates HTML reports from test results.
type HTMLReporter struct {
	outputDir string
}

// NewHTMLReporter creates a new HTML reporter. Artifact paths
// under outputDir are shown relative to it.
func NewHTMLReporter(outputDir string) *HTMLReporter {
	return &HTMLReporter{outputDir: outputDir}
}

// GenerateReport creates an HTML report for a single test result.
func (r *HTMLReporter) GenerateReport(result *qa.TestResult) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.WriteReport(&buf, result); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteReport writes an HTML report to the specified writer.
func (r *HTMLReporter) WriteReport(w io.Writer, result *qa.TestResult) error {
	r.writeHeader(w, "Test Report: "+result.TestName)

	fmt.Fprintf(
		w,
		"<h1>Test Report: %s</h1>\n",
		html.EscapeString(result.TestName),
	)
	if result.RunID != "" {
		fmt.Fprintf(
			w,
			"<p><strong>Run ID:</strong> %s</p>\n",
			html.EscapeString(result.RunID),
		)
	}
	fmt.Fprintf(
		w,
		"<p><strong>Generated:</strong> %s</p>\n",
		result.EndTime.Format(time.RFC3339),
	)

	r.writeSummaryTable(w, result)
	r.writeRewardSection(w, result.RewardSummary)
	r.writeArtifactsSection(w, result)

	r.writeFooter(w)
	return nil
}

func verdictClass(v qa.Verdict) string {
	if v == qa.VerdictPass {
		return "status-passed"
	}
	return "status-failed"
}

func (r *HTMLReporter) writeSummaryTable(w io.Writer, result *qa.TestResult) {
	fmt.Fprintln(w, "<h2>Summary</h2>")
	fmt.Fprintln(w, "<table>")
	fmt.Fprintln(w, "<tr><th>Metric</th><th>Value</th></tr>")
	fmt.Fprintf(
		w,
		"<tr><td>Verdict</td><td class=\"%s\">"+
			"<strong>%s</strong></td></tr>\n",
		verdictClass(result.Verdict), result.Verdict,
	)
	if result.ExpectedResult != "" {
		matched := "No"
		if result.MatchedExpect {
			matched = "Yes"
		}
		fmt.Fprintf(
			w,
			"<tr><td>Expected</td><td>%s (matched: %s)</td></tr>\n",
			result.ExpectedResult, matched,
		)
	}
	fmt.Fprintf(
		w,
		"<tr><td>Reason</td><td>%s</td></tr>\n",
		html.EscapeString(result.Reason),
	)
	if result.Details != "" {
		fmt.Fprintf(
			w,
			"<tr><td>Details</td><td>%s</td></tr>\n",
			html.EscapeString(result.Details),
		)
	}
	fmt.Fprintf(
		w,
		"<tr><td>Steps</td><td>%d</td></tr>\n",
		result.TotalSteps,
	)
	if result.Aborted {
		fmt.Fprintln(
			w,
			"<tr><td>Aborted</td><td class=\"status-failed\">Yes</td></tr>",
		)
	}
	fmt.Fprintf(
		w,
		"<tr><td>Start Time</td><td>%s</td></tr>\n",
		result.StartTime.Format(time.RFC3339),
	)
	fmt.Fprintf(
		w,
		"<tr><td>End Time</td><td>%s</td></tr>\n",
		result.EndTime.Format(time.RFC3339),
	)
	fmt.Fprintf(
		w,
		"<tr><td>Duration</td><td>%v</td></tr>\n",
		result.Duration,
	)
	fmt.Fprintln(w, "</table>")
}

func (r *HTMLReporter) writeRewardSection(w io.Writer, s *qa.RewardSummary) {
	if s == nil {
		return
	}

	fmt.Fprintln(w, "<h2>Reward</h2>")
	fmt.Fprintln(w, "<table>")
	fmt.Fprintln(w, "<tr><th>Metric</th><th>Value</th></tr>")
	fmt.Fprintf(w, "<tr><td>Step Penalty</td><td>%.2f</td></tr>\n",
		s.TotalStepPenalty)
	fmt.Fprintf(w, "<tr><td>Subgoal Reward</td><td>%.2f</td></tr>\n",
		s.TotalSubgoalReward)
	fmt.Fprintf(w, "<tr><td>Completion Bonus</td><td>%.2f</td></tr>\n",
		s.CompletionBonus)
	fmt.Fprintf(w,
		"<tr><td>Final Reward</td><td><strong>%.2f</strong></td></tr>\n",
		s.FinalReward)
	fmt.Fprintf(
		w,
		"<tr><td>Subgoals</td><td>%d/%d (%.0f%%)</td></tr>\n",
		s.SubgoalsAchieved, s.TotalSubgoals, s.CompletionRate*100,
	)
	fmt.Fprintln(w, "</table>")

	if len(s.StepRewards) == 0 {
		return
	}
	fmt.Fprintln(w, "<h3>Per Step</h3>")
	fmt.Fprintln(w, "<table>")
	fmt.Fprintln(
		w,
		"<tr><th>Step</th><th>Penalty</th><th>Subgoal Reward</th>"+
			"<th>Achieved</th><th>Cumulative</th></tr>",
	)
	for _, sr := range s.StepRewards {
		achieved := "-"
		if len(sr.AchievedThisStep) > 0 {
			achieved = strings.Join(sr.AchievedThisStep, ", ")
		}
		fmt.Fprintf(
			w,
			"<tr><td>%d</td><td>%.2f</td><td>%.2f</td>"+
				"<td>%s</td><td>%.2f</td></tr>\n",
			sr.Step, sr.StepPenalty, sr.SubgoalReward,
			html.EscapeString(achieved), sr.CumulativeReward,
		)
	}
	fmt.Fprintln(w, "</table>")
}

func (r *HTMLReporter) artifactPath(dir string) string {
	if r.outputDir == "" {
		return dir
	}
	rel, err := filepath.Rel(r.outputDir, dir)
	if err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return dir
}

func (r *HTMLReporter) writeArtifactsSection(
	w io.Writer,
	result *qa.TestResult,
) {
	if result.ArtifactsDir == "" {
		return
	}
	fmt.Fprintln(w, "<h2>Artifacts</h2>")
	fmt.Fprintf(
		w,
		"<p><code>%s</code></p>\n",
		html.EscapeString(r.artifactPath(result.ArtifactsDir)),
	)
}

// GenerateMasterSummary creates an HTML summary of all test
// results.
func (r *HTMLReporter) GenerateMasterSummary(
	results []*qa.TestResult,
) ([]byte, error) {
	var buf bytes.Buffer

	r.writeHeader(&buf, "Mobile QA - Suite Report")

	fmt.Fprintln(&buf, "<h1>Mobile QA - Suite Report</h1>")
	fmt.Fprintf(
		&buf,
		"<p><strong>Generated:</strong> %s</p>\n",
		time.Now().Format(time.RFC3339),
	)

	r.writeMasterOverview(&buf, results)
	r.writeMasterStats(&buf, results)
	r.writeMasterDetails(&buf, results)
	r.writeFooter(&buf)

	return buf.Bytes(), nil
}

func (r *HTMLReporter) writeMasterOverview(
	w io.Writer,
	results []*qa.TestResult,
) {
	fmt.Fprintln(w, "<h2>Overview</h2>")
	fmt.Fprintln(w, "<table>")
	fmt.Fprintln(
		w,
		"<tr><th>Test</th><th>Verdict</th><th>Expected</th>"+
			"<th>Steps</th><th>Reward</th><th>Duration</th></tr>",
	)

	for _, result := range results {
		reward := 0.0
		if result.RewardSummary != nil {
			reward = result.RewardSummary.FinalReward
		}
		fmt.Fprintf(
			w,
			"<tr><td>%s</td>"+
				"<td class=\"%s\">%s</td>"+
				"<td>%s</td><td>%d</td>"+
				"<td>%.2f</td><td>%v</td></tr>\n",
			html.EscapeString(result.TestName),
			verdictClass(result.Verdict), result.Verdict,
			result.ExpectedResult, result.TotalSteps,
			reward, result.Duration,
		)
	}

	fmt.Fprintln(w, "</table>")
}

func (r *HTMLReporter) writeMasterStats(w io.Writer, results []*qa.TestResult) {
	c := countVerdicts(results)

	fmt.Fprintln(w, "<h2>Statistics</h2>")
	fmt.Fprintln(w, "<table>")
	fmt.Fprintln(w, "<tr><th>Metric</th><th>Value</th></tr>")
	fmt.Fprintf(w, "<tr><td>Total Tests</td><td>%d</td></tr>\n", len(results))
	fmt.Fprintf(w, "<tr><td>Passed</td><td>%d</td></tr>\n", c.passed)
	fmt.Fprintf(w, "<tr><td>Failed (Action)</td><td>%d</td></tr>\n",
		c.failedAction)
	fmt.Fprintf(w, "<tr><td>Failed (Assertion)</td><td>%d</td></tr>\n",
		c.failedAssertion)
	fmt.Fprintf(w, "<tr><td>Errors</td><td>%d</td></tr>\n", c.errors)
	fmt.Fprintf(w, "<tr><td>Matched Expectation</td><td>%d</td></tr>\n", c.matched)

	if len(results) > 0 {
		pct := float64(c.passed) / float64(len(results)) * 100
		fmt.Fprintf(
			w,
			"<tr><td>Pass Rate</td>"+
				"<td>%.0f%%</td></tr>\n",
			pct,
		)
	}

	fmt.Fprintf(
		w,
		"<tr><td>Total Duration</td>"+
			"<td>%v</td></tr>\n",
		c.duration,
	)
	fmt.Fprintln(w, "</table>")
}

func (r *HTMLReporter) writeMasterDetails(
	w io.Writer,
	results []*qa.TestResult,
) {
	fmt.Fprintln(w, "<h2>Test Details</h2>")

	for _, result := range results {
		fmt.Fprintf(
			w,
			"<h3>%s</h3>\n",
			html.EscapeString(result.TestName),
		)
		fmt.Fprintf(
			w,
			"<p><strong>Verdict:</strong> %s</p>\n",
			result.Verdict,
		)
		fmt.Fprintf(
			w,
			"<p><strong>Reason:</strong> %s</p>\n",
			html.EscapeString(result.Reason),
		)
		if result.Details != "" {
			fmt.Fprintf(
				w,
				"<p><strong>Details:</strong> %s</p>\n",
				html.EscapeString(result.Details),
			)
		}
		if result.ArtifactsDir != "" {
			fmt.Fprintf(
				w,
				"<p><strong>Artifacts:</strong> <code>%s</code></p>\n",
				html.EscapeString(r.artifactPath(result.ArtifactsDir)),
			)
		}
	}
}

func (r *HTMLReporter) writeHeader(w io.Writer, title string) {
	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>%s</title>
<style>
body {
  font-family: -apple-system, BlinkMacSystemFont,
    "Segoe UI", Roboto, sans-serif;
  max-width: 960px;
  margin: 0 auto;
  padding: 20px;
  color: #333;
  background: #f9f9f9;
}
h1 { color: #2c3e50; border-bottom: 2px solid #3498db; padding-bottom: 10px; }
h2 { color: #2c3e50; margin-top: 30px; }
h3 { color: #34495e; }
table {
  border-collapse: collapse;
  width: 100%%;
  margin: 10px 0;
  background: #fff;
}
th, td {
  border: 1px solid #ddd;
  padding: 8px 12px;
  text-align: left;
}
th { background: #3498db; color: #fff; }
tr:nth-child(even) { background: #f2f2f2; }
.status-passed { color: #27ae60; font-weight: bold; }
.status-failed { color: #e74c3c; font-weight: bold; }
code {
  background: #ecf0f1;
  padding: 2px 6px;
  border-radius: 3px;
  font-size: 0.9em;
}
footer {
  margin-top: 40px;
  padding-top: 10px;
  border-top: 1px solid #ddd;
  color: #7f8c8d;
  font-size: 0.9em;
}
</style>
</head>
<body>
`, html.EscapeString(title))
}

func (r *HTMLReporter) writeFooter(w io.Writer) {
	fmt.Fprintln(w, "<footer>")
	fmt.Fprintln(
		w, "<p>Generated by mobileqa</p>",
	)
	fmt.Fprintln(w, "</footer>")
	fmt.Fprintln(w, "</body>")
	fmt.Fprintln(w, "</html>")
}
