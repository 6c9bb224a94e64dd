package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"digital.vasic.mobileqa/pkg/qa"
)

// Summary represents an aggregated summary of one suite run.
type Summary struct {
	ID              string        `json:"id"`
	RunID           string        `json:"run_id,omitempty"`
	GeneratedAt     time.Time     `json:"generated_at"`
	Tests           []TestSummary `json:"tests"`
	Total           int           `json:"total"`
	Passed          int           `json:"passed"`
	FailedAction    int           `json:"failed_action"`
	FailedAssertion int           `json:"failed_assertion"`
	Errors          int           `json:"errors"`
	Matched         int           `json:"matched_expectation"`
	TotalDuration   time.Duration `json:"total_duration"`
	PassRate        float64       `json:"pass_rate"`
	AverageReward   float64       `json:"average_reward"`
}

// TestSummary represents a summary of a single test.
type TestSummary struct {
	Name             string        `json:"name"`
	Verdict          qa.Verdict    `json:"verdict"`
	Expected         qa.Verdict    `json:"expected_result,omitempty"`
	Matched          bool          `json:"matched_expectation"`
	Reason           string        `json:"reason"`
	Steps            int           `json:"total_steps"`
	FinalReward      float64       `json:"final_reward"`
	SubgoalsAchieved int           `json:"subgoals_achieved"`
	TotalSubgoals    int           `json:"total_subgoals"`
	Duration         time.Duration `json:"duration"`
	ArtifactsDir     string        `json:"artifacts_dir,omitempty"`
}

// BuildSummary creates a summary from test results.
func BuildSummary(runID string, results []*qa.TestResult) *Summary {
	now := time.Now()
	summary := &Summary{
		ID:          fmt.Sprintf("summary_%s", now.Format("20060102_150405")),
		RunID:       runID,
		GeneratedAt: now,
		Tests:       make([]TestSummary, 0, len(results)),
		Total:       len(results),
	}

	var rewardTotal float64
	for _, r := range results {
		ts := TestSummary{
			Name:         r.TestName,
			Verdict:      r.Verdict,
			Expected:     r.ExpectedResult,
			Matched:      r.MatchedExpect,
			Reason:       r.Reason,
			Steps:        r.TotalSteps,
			Duration:     r.Duration,
			ArtifactsDir: r.ArtifactsDir,
		}
		if s := r.RewardSummary; s != nil {
			ts.FinalReward = s.FinalReward
			ts.SubgoalsAchieved = s.SubgoalsAchieved
			ts.TotalSubgoals = s.TotalSubgoals
		}
		rewardTotal += ts.FinalReward
		summary.Tests = append(summary.Tests, ts)
	}

	c := countVerdicts(results)
	summary.Passed = c.passed
	summary.FailedAction = c.failedAction
	summary.FailedAssertion = c.failedAssertion
	summary.Errors = c.errors
	summary.Matched = c.matched
	summary.TotalDuration = c.duration

	if summary.Total > 0 {
		summary.PassRate = float64(summary.Passed) / float64(summary.Total)
		summary.AverageReward = rewardTotal / float64(summary.Total)
	}
	return summary
}

// SaveSummary saves the summary to both JSON and Markdown files
// in the given output directory and points latest_summary.* at
// them.
func SaveSummary(summary *Summary, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf(
			"failed to create output directory: %w", err,
		)
	}

	ts := summary.GeneratedAt.Format("20060102_150405")

	jsonPath := filepath.Join(
		outputDir,
		fmt.Sprintf("summary_%s.json", ts),
	)
	jsonData, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf(
			"failed to marshal summary: %w", err,
		)
	}
	if err := os.WriteFile(jsonPath, jsonData, 0644); err != nil {
		return fmt.Errorf(
			"failed to write JSON summary: %w", err,
		)
	}

	mdPath := filepath.Join(
		outputDir,
		fmt.Sprintf("summary_%s.md", ts),
	)
	if err := os.WriteFile(
		mdPath, []byte(generateSummaryMarkdown(summary)), 0644,
	); err != nil {
		return fmt.Errorf(
			"failed to write Markdown summary: %w", err,
		)
	}

	latestJSON := filepath.Join(outputDir, "latest_summary.json")
	latestMD := filepath.Join(outputDir, "latest_summary.md")

	_ = os.Remove(latestJSON)
	_ = os.Remove(latestMD)
	_ = os.Symlink(filepath.Base(jsonPath), latestJSON)
	_ = os.Symlink(filepath.Base(mdPath), latestMD)

	return nil
}

// generateSummaryMarkdown creates markdown from a summary.
func generateSummaryMarkdown(summary *Summary) string {
	var sb strings.Builder

	sb.WriteString("# Mobile QA - Suite Summary\n\n")
	sb.WriteString(fmt.Sprintf("**Summary ID:** %s\n\n", summary.ID))
	if summary.RunID != "" {
		sb.WriteString(fmt.Sprintf("**Run ID:** %s\n\n", summary.RunID))
	}
	sb.WriteString(
		fmt.Sprintf(
			"**Generated:** %s\n\n",
			summary.GeneratedAt.Format(time.RFC3339),
		),
	)

	sb.WriteString("## Overview\n\n")
	sb.WriteString(
		"| Test | Verdict | Expected | Steps " +
			"| Subgoals | Reward | Duration |\n",
	)
	sb.WriteString(
		"|------|---------|----------|-------" +
			"|----------|--------|----------|\n",
	)
	for _, t := range summary.Tests {
		expected := string(t.Expected)
		if t.Expected != "" && !t.Matched {
			expected += " (mismatch)"
		}
		sb.WriteString(
			fmt.Sprintf(
				"| %s | %s | %s | %d | %d/%d | %.2f | %v |\n",
				t.Name, t.Verdict, expected, t.Steps,
				t.SubgoalsAchieved, t.TotalSubgoals,
				t.FinalReward, t.Duration,
			),
		)
	}

	var failures []TestSummary
	for _, t := range summary.Tests {
		if t.Verdict != qa.VerdictPass {
			failures = append(failures, t)
		}
	}
	if len(failures) > 0 {
		sb.WriteString("\n## Failures\n\n")
		for _, t := range failures {
			sb.WriteString(
				fmt.Sprintf("- **%s** (%s): %s\n", t.Name, t.Verdict, t.Reason),
			)
		}
	}

	sb.WriteString("\n## Statistics\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Tests | %d |\n", summary.Total))
	sb.WriteString(fmt.Sprintf("| Passed | %d |\n", summary.Passed))
	sb.WriteString(fmt.Sprintf("| Failed (Action) | %d |\n", summary.FailedAction))
	sb.WriteString(fmt.Sprintf("| Failed (Assertion) | %d |\n",
		summary.FailedAssertion))
	sb.WriteString(fmt.Sprintf("| Errors | %d |\n", summary.Errors))
	sb.WriteString(fmt.Sprintf("| Matched Expectation | %d |\n", summary.Matched))
	sb.WriteString(
		fmt.Sprintf("| Pass Rate | %.0f%% |\n", summary.PassRate*100),
	)
	sb.WriteString(
		fmt.Sprintf("| Average Reward | %.2f |\n", summary.AverageReward),
	)
	sb.WriteString(
		fmt.Sprintf("| Total Duration | %v |\n", summary.TotalDuration),
	)

	sb.WriteString("\n---\n\n")
	sb.WriteString("*Generated by mobileqa*\n")

	return sb.String()
}
