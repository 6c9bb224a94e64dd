package report

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"digital.vasic.mobileqa/pkg/qa"
)

// HistoricalEntry represents a single test run in the historical
// log.
type HistoricalEntry struct {
	Timestamp    time.Time  `json:"timestamp"`
	RunID        string     `json:"run_id"`
	TestName     string     `json:"test_name"`
	Verdict      qa.Verdict `json:"verdict"`
	Expected     qa.Verdict `json:"expected_result,omitempty"`
	Matched      bool       `json:"matched_expectation"`
	Reason       string     `json:"reason"`
	Steps        int        `json:"total_steps"`
	FinalReward  float64    `json:"final_reward"`
	Duration     string     `json:"duration"`
	ArtifactsDir string     `json:"artifacts_dir,omitempty"`
}

func newHistoricalEntry(r *qa.TestResult) HistoricalEntry {
	e := HistoricalEntry{
		Timestamp:    r.EndTime,
		RunID:        r.RunID,
		TestName:     r.TestName,
		Verdict:      r.Verdict,
		Expected:     r.ExpectedResult,
		Matched:      r.MatchedExpect,
		Reason:       r.Reason,
		Steps:        r.TotalSteps,
		Duration:     r.Duration.String(),
		ArtifactsDir: r.ArtifactsDir,
	}
	if r.RewardSummary != nil {
		e.FinalReward = r.RewardSummary.FinalReward
	}
	return e
}

// AppendToHistory adds an entry to the historical log stored
// at historyPath. Each entry is a single JSON line.
func AppendToHistory(historyPath string, result *qa.TestResult) error {
	data, err := json.Marshal(newHistoricalEntry(result))
	if err != nil {
		return fmt.Errorf(
			"failed to marshal history entry: %w", err,
		)
	}

	file, err := os.OpenFile(
		historyPath,
		os.O_CREATE|os.O_APPEND|os.O_WRONLY,
		0644,
	)
	if err != nil {
		return fmt.Errorf(
			"failed to open history file: %w", err,
		)
	}
	defer func() { _ = file.Close() }()

	_, err = fmt.Fprintln(file, string(data))
	return err
}
