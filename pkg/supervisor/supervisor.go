// Package supervisor judges every step of a test run. Interaction
// failures become FAIL_ACTION, assertion failures FAIL_ASSERTION,
// and a claimed completion only passes after an independent
// re-check of the screen. The verdict log is append-only and
// holds at most one terminal verdict, always last.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"digital.vasic.mobileqa/pkg/inference"
	"digital.vasic.mobileqa/pkg/logging"
	"digital.vasic.mobileqa/pkg/qa"
	"digital.vasic.mobileqa/pkg/reward"
)

// Purposes label supervisor calls in logs and metrics.
const (
	PurposeVerifyGoal      = "verify_goal"
	PurposeVerifyAssertion = "verify_assertion"
	PurposeDetectSubgoals  = "detect_subgoals"
)

// DefaultThreshold is the confidence a subgoal detection needs.
const DefaultThreshold = 0.7

const verifyTemperature = 0.2

// Verdict reasons for terminal conditions outside a step.
const (
	ReasonStepBudget          = "exceeded step budget"
	ReasonWallClock           = "exceeded wall-clock budget"
	ReasonCancelled           = "run cancelled"
	ReasonStuck               = "UI stuck - unchanged after recovery attempts"
	ReasonAssertionUnverified = "assertion could not be verified"
)

// ErrTerminal is returned when a verdict is appended after the
// terminal one.
var ErrTerminal = errors.New("verdict log already holds a terminal verdict")

// StepInput is everything known about one executed step.
type StepInput struct {
	Step   int
	Action qa.Action
	Result qa.ExecutionResult
	Pre    qa.UIState
	Post   qa.UIState
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// WithThreshold sets the subgoal confidence threshold.
func WithThreshold(t float64) Option {
	return func(s *Supervisor) {
		if t > 0 && t <= 1 {
			s.threshold = t
		}
	}
}

// Supervisor holds the verdict log of one test run.
type Supervisor struct {
	provider  inference.Provider
	goal      string
	rewards   *reward.Engine
	threshold float64
	logger    logging.Logger

	mu       sync.Mutex
	verdicts []qa.StepVerdict
}

// New creates a Supervisor for goal. rewards supplies the subgoal
// decomposition and scores every evaluated step.
func New(
	provider inference.Provider,
	goal string,
	rewards *reward.Engine,
	opts ...Option,
) *Supervisor {
	s := &Supervisor{
		provider:  provider,
		goal:      goal,
		rewards:   rewards,
		threshold: DefaultThreshold,
		logger:    logging.NullLogger{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// EvaluateStep classifies the step, detects newly achieved
// subgoals, scores it and appends the verdict. Once a terminal
// verdict exists it is returned unchanged.
func (s *Supervisor) EvaluateStep(
	ctx context.Context,
	in StepInput,
) qa.StepVerdict {
	if final, ok := s.FinalVerdict(); ok {
		s.logger.Error("step evaluated after terminal verdict",
			logging.StepField(in.Step),
			logging.VerdictField(final.Verdict),
		)
		return final
	}

	v := s.classify(ctx, in)
	v.SubgoalsAchieved = s.detect(ctx, in, v.Verdict)
	r := s.rewards.ScoreStep(in.Step, v.SubgoalsAchieved)
	v.Reward = &r

	if err := s.append(v); err != nil {
		final, _ := s.FinalVerdict()
		return final
	}

	s.logger.Info("step verdict",
		logging.StepField(in.Step),
		logging.VerdictField(v.Verdict),
		logging.StringField("reason", v.Reason),
		logging.IntField("subgoals_achieved", len(v.SubgoalsAchieved)),
		logging.Float64Field("cumulative_reward", r.CumulativeReward),
	)
	return v
}

func (s *Supervisor) classify(
	ctx context.Context,
	in StepInput,
) qa.StepVerdict {
	a, res := in.Action, in.Result
	v := qa.StepVerdict{Step: in.Step}

	switch {
	case !res.Success && res.AssertionContext:
		v.Verdict = qa.VerdictFailAssertion
		v.Reason = "Assertion failed: " + conditionOf(a)
		v.Details = res.Detail()
	case !res.Success:
		v.Verdict = qa.VerdictFailAction
		v.Reason = "Failed to execute action: " + a.Description
		v.Details = actionFailureDetail(a, res)
	case a.Kind == qa.KindDone:
		return s.verifyGoal(ctx, in)
	case a.Kind == qa.KindAssert && res.Deferred():
		return s.verifyAssertion(ctx, in)
	case a.Kind == qa.KindAssert:
		v.Verdict = qa.VerdictRunning
		v.Reason = "Assertion passed: " + conditionOf(a)
		v.Details = res.Message
	default:
		v.Verdict = qa.VerdictRunning
		v.Reason = fmt.Sprintf("Step %d completed: %s", in.Step, a.Description)
	}
	return v
}

func actionFailureDetail(a qa.Action, res qa.ExecutionResult) string {
	switch a.Kind {
	case qa.KindTapByText:
		return fmt.Sprintf("could not find %q: %s", a.Text, res.Detail())
	case qa.KindFail:
		return res.Detail()
	}
	return fmt.Sprintf("could not perform %s: %s", a.Summary(), res.Detail())
}

func conditionOf(a qa.Action) string {
	if a.Assert.Condition != "" {
		return a.Assert.Condition
	}
	return a.Description
}

type goalCheck struct {
	GoalAchieved *bool  `json:"goal_achieved"`
	Explanation  string `json:"explanation"`
}

// verifyGoal re-checks a claimed completion against the post
// state. Only a confirmed check passes.
func (s *Supervisor) verifyGoal(
	ctx context.Context,
	in StepInput,
) qa.StepVerdict {
	v := qa.StepVerdict{Step: in.Step, Verdict: qa.VerdictRunning}

	check, err := inference.GenerateStructured(ctx, s.provider, inference.Request{
		Prompt:      goalPrompt(s.goal, in.Post),
		ImagePath:   in.Post.ScreenshotPath,
		Temperature: verifyTemperature,
		Purpose:     PurposeVerifyGoal,
	}, func(c *goalCheck) error {
		if c.GoalAchieved == nil {
			return errors.New("missing goal_achieved")
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("goal verification failed",
			logging.StepField(in.Step),
			logging.ErrorField(err),
		)
		v.Reason = "done rejected: goal could not be verified"
		v.Details = err.Error()
		return v
	}

	if *check.GoalAchieved {
		v.Verdict = qa.VerdictPass
		v.Reason = "Test goal achieved"
	} else {
		v.Reason = "done rejected: test goal not achieved yet"
	}
	v.Details = check.Explanation
	return v
}

type assertionCheck struct {
	AssertionHolds *bool  `json:"assertion_holds"`
	Explanation    string `json:"explanation"`
}

// verifyAssertion checks a free-form assertion against the post
// state.
func (s *Supervisor) verifyAssertion(
	ctx context.Context,
	in StepInput,
) qa.StepVerdict {
	cond := conditionOf(in.Action)
	v := qa.StepVerdict{Step: in.Step, Verdict: qa.VerdictRunning}

	check, err := inference.GenerateStructured(ctx, s.provider, inference.Request{
		Prompt:      assertionPrompt(s.goal, cond, in.Post),
		ImagePath:   in.Post.ScreenshotPath,
		Temperature: verifyTemperature,
		Purpose:     PurposeVerifyAssertion,
	}, func(c *assertionCheck) error {
		if c.AssertionHolds == nil {
			return errors.New("missing assertion_holds")
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("assertion verification failed",
			logging.StepField(in.Step),
			logging.ErrorField(err),
		)
		v.Reason = ReasonAssertionUnverified
		v.Details = err.Error()
		return v
	}

	v.Details = check.Explanation
	if *check.AssertionHolds {
		v.Reason = "Assertion passed: " + cond
		return v
	}
	v.Verdict = qa.VerdictFailAssertion
	v.Reason = "Assertion failed: " + cond
	return v
}

// detect marks the subgoals achieved by the step. A generic
// fallback subgoal is achieved exactly when the test passes.
func (s *Supervisor) detect(
	ctx context.Context,
	in StepInput,
	verdict qa.Verdict,
) []string {
	d := s.rewards.Decomposition()
	if d == nil {
		return []string{}
	}
	if d.Fallback {
		if verdict == qa.VerdictPass &&
			d.MarkAchieved(reward.GenericSubgoalID, in.Step, 1.0) {
			return []string{reward.GenericSubgoalID}
		}
		return []string{}
	}
	return s.DetectSubgoalsAchieved(
		ctx, in.Step, in.Action, in.Result, in.Post,
	)
}

type detection struct {
	Subgoals []struct {
		ID         string  `json:"id"`
		Achieved   bool    `json:"achieved"`
		Confidence float64 `json:"confidence"`
		Evidence   string  `json:"evidence"`
	} `json:"subgoals"`
}

// DetectSubgoalsAchieved asks the provider which pending subgoals
// the step achieved and marks them. Each subgoal is judged on
// its own; one is achieved only when reported achieved with
// confidence at or above the threshold. Unknown ids and
// conflicting reports are ignored, and provider failure yields
// no subgoals.
func (s *Supervisor) DetectSubgoalsAchieved(
	ctx context.Context,
	step int,
	a qa.Action,
	res qa.ExecutionResult,
	post qa.UIState,
) []string {
	out := []string{}
	d := s.rewards.Decomposition()
	pending := d.Pending()
	if len(pending) == 0 {
		return out
	}

	req := inference.Request{
		Prompt:      detectionPrompt(s.goal, step, a, res, post, pending),
		ImagePath:   post.ScreenshotPath,
		Temperature: verifyTemperature,
		Purpose:     PurposeDetectSubgoals,
	}
	resp, err := inference.GenerateStructured[detection](
		ctx, s.provider, req, nil,
	)
	if err != nil {
		s.logger.Warn("subgoal detection failed",
			logging.StepField(step),
			logging.ErrorField(err),
		)
		return out
	}

	type vote struct {
		ok         bool
		conflict   bool
		confidence float64
	}
	votes := make(map[string]*vote)
	for _, r := range resp.Subgoals {
		id := strings.TrimSpace(r.ID)
		ok := r.Achieved && r.Confidence >= s.threshold && r.Confidence <= 1
		if prev, seen := votes[id]; seen {
			if prev.ok != ok {
				prev.conflict = true
			}
			if r.Confidence < prev.confidence {
				prev.confidence = r.Confidence
			}
			continue
		}
		votes[id] = &vote{ok: ok, confidence: r.Confidence}
	}

	for _, sg := range pending {
		v, found := votes[sg.ID]
		if !found || !v.ok || v.conflict {
			continue
		}
		if d.MarkAchieved(sg.ID, step, v.confidence) {
			out = append(out, sg.ID)
			s.logger.Info("subgoal achieved",
				logging.StepField(step),
				logging.StringField("subgoal", sg.ID),
				logging.Float64Field("confidence", v.confidence),
			)
		}
	}
	return out
}

// BudgetExceeded records the step-budget failure.
func (s *Supervisor) BudgetExceeded(step, limit int) qa.StepVerdict {
	return s.terminate(qa.StepVerdict{
		Verdict: qa.VerdictFailAction,
		Reason:  ReasonStepBudget,
		Step:    step,
		Details: fmt.Sprintf("no terminal verdict within %d steps", limit),
	})
}

// StuckVerdict records that the UI stayed unchanged through
// every recovery stage.
func (s *Supervisor) StuckVerdict(step int) qa.StepVerdict {
	return s.terminate(qa.StepVerdict{
		Verdict: qa.VerdictFailAction,
		Reason:  ReasonStuck,
		Step:    step,
		Details: "the screen did not change after wait, BACK and relaunch",
	})
}

// Aborted records a run stopped by its wall-clock budget or by
// cancellation.
func (s *Supervisor) Aborted(step int, reason, details string) qa.StepVerdict {
	return s.terminate(qa.StepVerdict{
		Verdict: qa.VerdictFailAction,
		Reason:  reason,
		Step:    step,
		Details: details,
	})
}

func (s *Supervisor) terminate(v qa.StepVerdict) qa.StepVerdict {
	v.SubgoalsAchieved = []string{}
	r := s.rewards.Current(v.Step)
	v.Reward = &r
	if err := s.append(v); err != nil {
		final, _ := s.FinalVerdict()
		return final
	}
	s.logger.Warn("run terminated",
		logging.StepField(v.Step),
		logging.VerdictField(v.Verdict),
		logging.StringField("reason", v.Reason),
	)
	return v
}

func (s *Supervisor) append(v qa.StepVerdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.verdicts); n > 0 && s.verdicts[n-1].Terminal() {
		return ErrTerminal
	}
	s.verdicts = append(s.verdicts, v)
	return nil
}

// FinalVerdict returns the terminal verdict, if any.
func (s *Supervisor) FinalVerdict() (qa.StepVerdict, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.verdicts); n > 0 && s.verdicts[n-1].Terminal() {
		return s.verdicts[n-1], true
	}
	return qa.StepVerdict{}, false
}

// Verdicts returns a copy of the verdict log.
func (s *Supervisor) Verdicts() []qa.StepVerdict {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]qa.StepVerdict(nil), s.verdicts...)
}

var rule = strings.Repeat("=", 60)

// FormatVerdict renders the verdict banner.
func FormatVerdict(v qa.StepVerdict) string {
	lines := []string{
		rule,
		"TEST VERDICT: " + string(v.Verdict),
		rule,
		fmt.Sprintf("Step: %d", v.Step),
		"Reason: " + v.Reason,
	}
	if v.Details != "" {
		lines = append(lines, "Details: "+v.Details)
	}
	lines = append(lines, rule)
	return strings.Join(lines, "\n")
}
