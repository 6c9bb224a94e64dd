package report

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digital.vasic.mobileqa/pkg/qa"
)

func makeResults(root string) []*qa.TestResult {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return []*qa.TestResult{
		{
			TestName:       "create_vault",
			RunID:          "run-1",
			Verdict:        qa.VerdictPass,
			Reason:         "Test goal achieved",
			TotalSteps:     3,
			ExpectedResult: qa.VerdictPass,
			MatchedExpect:  true,
			RewardSummary: &qa.RewardSummary{
				TotalSteps:         3,
				TotalStepPenalty:   -0.15,
				TotalSubgoalReward: 0.6,
				CompletionBonus:    1.0,
				FinalReward:        1.45,
				SubgoalsAchieved:   3,
				TotalSubgoals:      3,
				CompletionRate:     1,
				StepRewards: []qa.StepReward{
					{Step: 1, StepPenalty: -0.05, SubgoalReward: 0.2, AchievedThisStep: []string{"subgoal_1"}, CumulativeReward: 0.15},
				},
			},
			ArtifactsDir: filepath.Join(root, "create_vault"),
			StartTime:    start,
			EndTime:      start.Add(5 * time.Second),
			Duration:     5 * time.Second,
		},
		{
			TestName:       "print_pdf",
			RunID:          "run-2",
			Verdict:        qa.VerdictFailAction,
			Reason:         "Failed to execute action: tap Print to PDF",
			Details:        `could not find "Print to PDF" <menu>`,
			TotalSteps:     1,
			ExpectedResult: qa.VerdictFailAction,
			MatchedExpect:  true,
			RewardSummary:  &qa.RewardSummary{FinalReward: -0.05, TotalSubgoals: 3},
			StartTime:      start,
			EndTime:        start.Add(2 * time.Second),
			Duration:       2 * time.Second,
		},
		{
			TestName:       "offline",
			Verdict:        qa.VerdictError,
			Reason:         "test could not run",
			ExpectedResult: qa.VerdictPass,
			Duration:       time.Second,
		},
	}
}

func TestBuildSummary(t *testing.T) {
	s := BuildSummary("suite-1", makeResults("/tmp/artifacts"))

	assert.Equal(t, "suite-1", s.RunID)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Passed)
	assert.Equal(t, 1, s.FailedAction)
	assert.Zero(t, s.FailedAssertion)
	assert.Equal(t, 1, s.Errors)
	assert.Equal(t, 2, s.Matched)
	assert.Equal(t, 8*time.Second, s.TotalDuration)
	assert.InDelta(t, 1.0/3, s.PassRate, 1e-9)
	assert.InDelta(t, 1.4/3, s.AverageReward, 1e-9)

	require.Len(t, s.Tests, 3)
	assert.Equal(t, 3, s.Tests[0].SubgoalsAchieved)
	assert.Zero(t, s.Tests[2].FinalReward)
}

func TestBuildSummary_Empty(t *testing.T) {
	s := BuildSummary("", nil)
	assert.Zero(t, s.Total)
	assert.Zero(t, s.PassRate)
	assert.NotNil(t, s.Tests)
}

func TestSummaryMarkdown(t *testing.T) {
	md := generateSummaryMarkdown(BuildSummary("suite-1", makeResults("/tmp")))

	assert.Contains(t, md, "# Mobile QA - Suite Summary")
	assert.Contains(t, md, "**Run ID:** suite-1")
	assert.Contains(t, md, "| create_vault | PASS | PASS | 3 | 3/3 | 1.45 | 5s |")
	assert.Contains(t, md, "| offline | ERROR | PASS (mismatch) |")
	assert.Contains(t, md, "- **print_pdf** (FAIL_ACTION): Failed to execute action: tap Print to PDF")
	assert.NotContains(t, md, "- **create_vault**")
	assert.Contains(t, md, "| Pass Rate | 33% |")
}

func TestPublish(t *testing.T) {
	dir := t.TempDir()
	results := makeResults(dir)

	s, err := Publish(dir, "suite-1", results)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Total)

	ts := s.GeneratedAt.Format("20060102_150405")
	assert.FileExists(t, filepath.Join(dir, "summary_"+ts+".json"))
	assert.FileExists(t, filepath.Join(dir, "summary_"+ts+".md"))
	assert.FileExists(t, filepath.Join(dir, FileHTML))

	target, err := os.Readlink(filepath.Join(dir, "latest_summary.json"))
	require.NoError(t, err)
	assert.Equal(t, "summary_"+ts+".json", target)

	var stored Summary
	data, err := os.ReadFile(filepath.Join(dir, "latest_summary.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Equal(t, 2, stored.Matched)

	page, err := os.ReadFile(filepath.Join(dir, FileHTML))
	require.NoError(t, err)
	assert.Contains(t, string(page), "<code>create_vault</code>", "artifact paths are relative")
}

func TestAppendToHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileHistory)
	results := makeResults("/tmp")

	require.NoError(t, AppendToHistory(path, results[0]))
	require.NoError(t, AppendToHistory(path, results[2]))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var entries []HistoricalEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e HistoricalEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		entries = append(entries, e)
	}
	require.Len(t, entries, 2)
	assert.Equal(t, "create_vault", entries[0].TestName)
	assert.Equal(t, 1.45, entries[0].FinalReward)
	assert.Equal(t, "5s", entries[0].Duration)
	assert.Equal(t, qa.VerdictError, entries[1].Verdict)
	assert.False(t, entries[1].Matched)
}

func TestAppendToHistory_BadPath(t *testing.T) {
	err := AppendToHistory(filepath.Join(t.TempDir(), "missing", FileHistory), makeResults("")[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open history file")
}
