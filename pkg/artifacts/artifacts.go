// Package artifacts writes the per-test files of a run: the
// subgoal plan, every step's screenshots, UI summaries, action,
// execution result and verdict, and the final reward and result.
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"digital.vasic.mobileqa/pkg/qa"
)

// Per-test file names.
const (
	FileInitialScreenshot = "initial_screenshot.png"
	FileSubgoals          = "subgoals.json"
	FileSubgoalsFinal     = "subgoals_final.json"
	FileRewardSummary     = "reward_summary.json"
	FileTestResult        = "test_result.json"
)

// Per-step file names.
const (
	FileScreenshot      = "screenshot.png"
	FileScreenshotPost  = "screenshot_post.png"
	FileUISummary       = "ui_summary.txt"
	FileUIPostSummary   = "ui_post_summary.txt"
	FileAction          = "action.json"
	FileExecution       = "execution_result.json"
	FileVerdict         = "verdict.json"
	FileAutoPopup       = "auto_handled_popup.txt"
	FilePlannerFeedback = "planner_feedback.txt"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Sanitize turns a test name into a directory name.
func Sanitize(name string) string {
	s := unsafeChars.ReplaceAllString(strings.TrimSpace(name), "_")
	s = strings.Trim(s, "._")
	if s == "" {
		return "test"
	}
	return s
}

// Store is the artifacts root of a suite run.
type Store struct {
	root string
}

// New creates a Store rooted at root.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the root directory.
func (s *Store) Root() string {
	return s.root
}

// ForTest creates the namespaced directory of one test. A
// directory left by an earlier run of the same test is cleared.
func (s *Store) ForTest(name string) (*TestDir, error) {
	dir := filepath.Join(s.root, Sanitize(name))
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("clear test artifacts: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create test artifacts: %w", err)
	}
	return &TestDir{dir: dir}, nil
}

// TestDir is the artifact directory of one test.
type TestDir struct {
	dir string
}

// Dir returns the directory path.
func (d *TestDir) Dir() string {
	return d.dir
}

// Path returns the path of a per-test file.
func (d *TestDir) Path(name string) string {
	return filepath.Join(d.dir, name)
}

// StepDir returns the directory of a step, creating it.
func (d *TestDir) StepDir(step int) (string, error) {
	dir := filepath.Join(d.dir, fmt.Sprintf("step_%02d", step))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create step directory: %w", err)
	}
	return dir, nil
}

// StepPath returns the path of a per-step file. The step
// directory must exist.
func (d *TestDir) StepPath(step int, name string) string {
	return filepath.Join(d.dir, fmt.Sprintf("step_%02d", step), name)
}

// WriteJSON writes v as indented JSON to a per-test file.
func (d *TestDir) WriteJSON(name string, v any) error {
	return writeJSON(d.Path(name), v)
}

// WriteSubgoals persists the decomposition as planned.
func (d *TestDir) WriteSubgoals(sd *qa.SubgoalDecomposition) error {
	return d.WriteJSON(FileSubgoals, sd)
}

// WriteFinal persists the final subgoal states, the reward
// summary and the test result.
func (d *TestDir) WriteFinal(
	sd *qa.SubgoalDecomposition,
	summary qa.RewardSummary,
	result *qa.TestResult,
) error {
	if sd != nil {
		if err := d.WriteJSON(FileSubgoalsFinal, sd); err != nil {
			return err
		}
	}
	if err := d.WriteJSON(FileRewardSummary, summary); err != nil {
		return err
	}
	return d.WriteJSON(FileTestResult, result)
}

// StepRecord is everything persisted for one step.
type StepRecord struct {
	Step            int
	Pre             qa.UIState
	Post            qa.UIState
	Action          qa.Action
	Result          qa.ExecutionResult
	Verdict         qa.StepVerdict
	Dismissed       []string
	PlannerFeedback string
}

type actionFile struct {
	Step   int       `json:"step"`
	Action qa.Action `json:"action"`
}

// WriteStep persists the text and JSON files of a step. The
// screenshots are written by the capture itself.
func (d *TestDir) WriteStep(rec StepRecord) error {
	if _, err := d.StepDir(rec.Step); err != nil {
		return err
	}
	path := func(name string) string { return d.StepPath(rec.Step, name) }

	if err := writeText(path(FileUISummary), rec.Pre.PromptSummary()); err != nil {
		return err
	}
	err := writeText(path(FileUIPostSummary), rec.Post.PromptSummary())
	if err != nil {
		return err
	}
	act := actionFile{Step: rec.Step, Action: rec.Action}
	if err := writeJSON(path(FileAction), act); err != nil {
		return err
	}
	if err := writeJSON(path(FileExecution), rec.Result); err != nil {
		return err
	}
	if err := writeJSON(path(FileVerdict), rec.Verdict); err != nil {
		return err
	}
	if len(rec.Dismissed) > 0 {
		popups := strings.Join(rec.Dismissed, "\n")
		if err := writeText(path(FileAutoPopup), popups); err != nil {
			return err
		}
	}
	if rec.PlannerFeedback != "" {
		feedback := rec.PlannerFeedback
		if err := writeText(path(FilePlannerFeedback), feedback); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeText(path, s string) error {
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	if err := os.WriteFile(path, []byte(s), 0644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
