// Package runner drives natural-language tests on one device. Each
// test runs a strictly ordered plan, execute, evaluate loop under
// a step budget, a wall-clock budget and a step watchdog, with
// staged recovery when the screen stops changing. Suites run
// their tests one after another.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"digital.vasic.mobileqa/pkg/artifacts"
	"digital.vasic.mobileqa/pkg/assertion"
	"digital.vasic.mobileqa/pkg/device"
	"digital.vasic.mobileqa/pkg/executor"
	"digital.vasic.mobileqa/pkg/inference"
	"digital.vasic.mobileqa/pkg/logging"
	"digital.vasic.mobileqa/pkg/metrics"
	"digital.vasic.mobileqa/pkg/monitor"
	"digital.vasic.mobileqa/pkg/planner"
	"digital.vasic.mobileqa/pkg/qa"
	"digital.vasic.mobileqa/pkg/reward"
	"digital.vasic.mobileqa/pkg/supervisor"
)

// ReasonStalled is the abort reason when the step watchdog fires.
const ReasonStalled = "no step completed within the stale threshold"

// Runner executes test cases against one device.
type Runner struct {
	dev          device.Device
	provider     inference.Provider
	cfg          Config
	execCfg      executor.Config
	rewardCfg    reward.Config
	threshold    float64
	artifactsDir string
	logger       logging.Logger
	metrics      metrics.RunMetrics
	events       monitor.Emitter
	assertions   assertion.Engine
	out          io.Writer
}

// New creates a Runner. provider backs the planner, the
// supervisor and the reward engine and must not be nil.
func New(
	dev device.Device,
	provider inference.Provider,
	opts ...Option,
) *Runner {
	r := &Runner{
		dev:          dev,
		provider:     provider,
		cfg:          DefaultConfig(),
		execCfg:      executor.DefaultConfig(),
		rewardCfg:    reward.DefaultConfig(),
		threshold:    supervisor.DefaultThreshold,
		artifactsDir: "artifacts",
		logger:       logging.NullLogger{},
		metrics:      metrics.NoopMetrics{},
		out:          os.Stdout,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cfg = r.cfg.withDefaults()
	return r
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxSteps <= 0 {
		c.MaxSteps = d.MaxSteps
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.StuckWindow < 2 {
		c.StuckWindow = d.StuckWindow
	}
	if c.StuckObservations <= 0 {
		c.StuckObservations = d.StuckObservations
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = d.HistoryWindow
	}
	return c
}

// Config returns the effective loop configuration.
func (r *Runner) Config() Config {
	return r.cfg
}

// testRun is the state of one test execution.
type testRun struct {
	r       *Runner
	tc      qa.TestCase
	runID   string
	logger  logging.Logger
	dir     *artifacts.TestDir
	exec    *executor.Executor
	planner *planner.Planner
	rewards *reward.Engine
	sup     *supervisor.Supervisor
	beats   heartbeat
	stalled <-chan struct{}

	step    int
	history []qa.HistoryEntry
}

// RunTest executes one test case. Test failures are reported in
// the result; an error means the test could not run at all
// (artifacts directory, app install or launch).
func (r *Runner) RunTest(
	ctx context.Context,
	tc qa.TestCase,
) (*qa.TestResult, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := r.logger.WithFields(
		logging.TestField(tc.Name),
		logging.StringField("run_id", runID),
	)

	dir, err := artifacts.New(r.artifactsDir).ForTest(tc.Name)
	if err != nil {
		return nil, fmt.Errorf("prepare artifacts for %s: %w", tc.Name, err)
	}

	r.metrics.SetActiveTests(1)
	defer r.metrics.SetActiveTests(0)

	logger.Info("test started",
		logging.StringField("goal", tc.Goal),
		logging.StringField("package", tc.AppPackage()),
		logging.StringField("expected", string(tc.Expected())),
	)
	if r.events != nil {
		r.events.Emit(monitor.StartedEvent(runID, tc.Name, tc.Goal))
	}

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	if err := r.setup(runCtx, tc, logger); err != nil {
		return nil, fmt.Errorf("setup %s: %w", tc.Name, err)
	}

	execOpts := []executor.Option{
		executor.WithConfig(r.execCfg),
		executor.WithLogger(logger),
		executor.WithMetrics(r.metrics),
	}
	if r.assertions != nil {
		execOpts = append(execOpts,
			executor.WithAssertionEngine(r.assertions))
	}
	rewards := reward.New(r.provider,
		reward.WithConfig(r.rewardCfg),
		reward.WithLogger(logger),
	)

	t := &testRun{
		r:       r,
		tc:      tc,
		runID:   runID,
		logger:  logger,
		dir:     dir,
		exec:    executor.New(r.dev, execOpts...),
		planner: planner.New(r.provider,
			planner.WithLogger(logger),
			planner.WithHistoryWindow(r.cfg.HistoryWindow),
		),
		rewards: rewards,
		sup: supervisor.New(r.provider, tc.Goal, rewards,
			supervisor.WithLogger(logger),
			supervisor.WithThreshold(r.threshold),
		),
		beats: newHeartbeat(),
	}

	initial := t.exec.Capture(runCtx,
		dir.Path(artifacts.FileInitialScreenshot))
	decomposition := rewards.Decompose(runCtx, tc.Goal, initial)
	if err := dir.WriteSubgoals(decomposition); err != nil {
		logger.Warn("persist subgoals failed", logging.ErrorField(err))
	}

	stop, stalled := startWatchdog(
		t.beats, r.cfg.StaleThreshold, cancel, logger, tc.Name,
	)
	t.stalled = stalled
	final, aborted := t.loop(runCtx, ctx)
	stop()

	return t.finish(start, final, aborted), nil
}

// setup installs, resets and launches the app. Free-text setup
// steps are only logged.
func (r *Runner) setup(
	ctx context.Context,
	tc qa.TestCase,
	logger logging.Logger,
) error {
	for _, s := range tc.Setup {
		logger.Info("precondition", logging.StringField("setup", s))
	}
	pkg := tc.AppPackage()

	apk := tc.APKPath
	if apk == "" {
		apk = r.cfg.APKPath
	}
	if apk != "" {
		if err := r.dev.InstallApp(ctx, apk); err != nil {
			return fmt.Errorf("install %s: %w", apk, err)
		}
	}
	if r.cfg.ResetApp {
		if err := r.dev.ResetAppData(ctx, pkg); err != nil {
			return fmt.Errorf("reset %s: %w", pkg, err)
		}
	}
	if err := r.dev.LaunchApp(ctx, pkg); err != nil {
		return fmt.Errorf("launch %s: %w", pkg, err)
	}
	return nil
}

// loop runs steps until a terminal verdict. The bool is true
// when the run was aborted by its context.
func (t *testRun) loop(ctx, parent context.Context) (qa.StepVerdict, bool) {
	cfg := t.r.cfg
	stuck := newStuckDetector(cfg.StuckWindow, cfg.StuckObservations)

	for t.step = 1; t.step <= cfg.MaxSteps; t.step++ {
		if ctx.Err() != nil {
			return t.abort(parent), true
		}

		pre, err := t.capturePre(ctx)
		if err != nil {
			t.logger.Warn("create step directory failed", logging.ErrorField(err))
		}
		if pre.Captured() {
			if stage := stuck.observe(pre.Fingerprint); stage > 0 {
				if t.recover(ctx, stage, pre) {
					return t.sup.StuckVerdict(t.step), false
				}
				stuck.recovered()
				if ctx.Err() != nil {
					return t.abort(parent), true
				}
				pre, _ = t.capturePre(ctx)
				if pre.Captured() {
					stuck.observe(pre.Fingerprint)
				}
			}
		}

		v, ok := t.runStep(ctx, pre)
		if !ok {
			return t.abort(parent), true
		}
		t.beats.beat()
		if v.Terminal() {
			return v, false
		}
	}

	t.step = cfg.MaxSteps
	return t.sup.BudgetExceeded(cfg.MaxSteps, cfg.MaxSteps), false
}

func (t *testRun) capturePre(ctx context.Context) (qa.UIState, error) {
	if _, err := t.dir.StepDir(t.step); err != nil {
		return t.exec.Capture(ctx, ""), err
	}
	path := t.dir.StepPath(t.step, artifacts.FileScreenshot)
	return t.exec.Capture(ctx, path), nil
}

// runStep plans, executes and evaluates one step. It returns
// false when the context ended before the step could be judged.
func (t *testRun) runStep(
	ctx context.Context,
	pre qa.UIState,
) (qa.StepVerdict, bool) {
	t.logger.Debug("step started",
		logging.StepField(t.step),
		logging.StringField("fingerprint", pre.FingerprintHex()),
	)

	dec := t.planner.Plan(ctx, planner.Request{
		Goal:    t.tc.Goal,
		Step:    t.step,
		UI:      pre,
		History: t.history,
	})
	if ctx.Err() != nil {
		return qa.StepVerdict{}, false
	}

	out := t.exec.Execute(ctx, executor.Input{
		Action:         dec.Action,
		Pre:            pre,
		PostScreenshot: t.dir.StepPath(t.step, artifacts.FileScreenshotPost),
	})
	if ctx.Err() != nil {
		return qa.StepVerdict{}, false
	}

	v := t.sup.EvaluateStep(ctx, supervisor.StepInput{
		Step:   t.step,
		Action: dec.Action,
		Result: out.Result,
		Pre:    pre,
		Post:   out.Post,
	})
	t.history = append(t.history, qa.HistoryEntry{
		Step:   t.step,
		Action: dec.Action,
		Result: out.Result,
	})

	var dismissed []string
	for _, d := range out.Dismissed {
		dismissed = append(dismissed,
			fmt.Sprintf("%s at (%d, %d)", d.Label, d.X, d.Y))
	}
	if err := t.dir.WriteStep(artifacts.StepRecord{
		Step:            t.step,
		Pre:             pre,
		Post:            out.Post,
		Action:          dec.Action,
		Result:          out.Result,
		Verdict:         v,
		Dismissed:       dismissed,
		PlannerFeedback: dec.Feedback,
	}); err != nil {
		t.logger.Warn("persist step failed",
			logging.StepField(t.step),
			logging.ErrorField(err),
		)
	}

	ev := monitor.RunEvent{
		Type:    monitor.EventStep,
		Step:    t.step,
		Action:  dec.Action.Description,
		Verdict: v.Verdict,
		Reason:  v.Reason,
	}
	if v.Reward != nil {
		ev.Reward = v.Reward.CumulativeReward
		ev.Achieved = v.Reward.AchievedCount
		ev.Subgoals = v.Reward.TotalSubgoals
	}
	t.emit(ev)
	return v, true
}

// abort records the terminal verdict of a run stopped by its
// context: the watchdog, the wall-clock budget or the caller.
func (t *testRun) abort(parent context.Context) qa.StepVerdict {
	switch {
	case fired(t.stalled):
		return t.sup.Aborted(t.step, ReasonStalled,
			fmt.Sprintf("no step completed within %v", t.r.cfg.StaleThreshold))
	case parent.Err() != nil:
		return t.sup.Aborted(t.step, supervisor.ReasonCancelled, parent.Err().Error())
	}
	return t.sup.Aborted(t.step, supervisor.ReasonWallClock,
		fmt.Sprintf("test did not finish within %v", t.r.cfg.Timeout))
}

func (t *testRun) finish(
	start time.Time,
	final qa.StepVerdict,
	aborted bool,
) *qa.TestResult {
	steps := len(t.rewards.StepRewards())
	var summary qa.RewardSummary
	if aborted {
		summary = t.rewards.Snapshot(steps)
	} else {
		summary = t.rewards.Finalize(steps, final.Verdict)
	}

	end := time.Now()
	res := &qa.TestResult{
		TestName:       t.tc.Name,
		RunID:          t.runID,
		Verdict:        final.Verdict,
		Reason:         final.Reason,
		Details:        final.Details,
		TotalSteps:     steps,
		ExpectedResult: t.tc.Expected(),
		MatchedExpect:  final.Verdict == t.tc.Expected(),
		Aborted:        aborted,
		RewardSummary:  &summary,
		ArtifactsDir:   t.dir.Dir(),
		StartTime:      start,
		EndTime:        end,
		Duration:       end.Sub(start),
	}

	err := t.dir.WriteFinal(t.rewards.Decomposition(), summary, res)
	if err != nil {
		t.logger.Error("persist final artifacts failed",
			logging.ErrorField(err))
	}

	t.r.metrics.RecordTest(t.tc.Name, string(res.Verdict), res.Duration)
	t.r.metrics.ObserveReward(t.tc.Name, summary.FinalReward)
	if t.r.events != nil {
		t.r.events.Emit(monitor.FinishedEvent(res))
	}

	t.logger.Info("test finished",
		logging.VerdictField(res.Verdict),
		logging.StringField("reason", res.Reason),
		logging.IntField("steps", steps),
		logging.Float64Field("final_reward", summary.FinalReward),
		logging.BoolField("matched_expectation", res.MatchedExpect),
		logging.BoolField("aborted", aborted),
		logging.DurationField("duration", res.Duration),
	)
	fmt.Fprintln(t.r.out, supervisor.FormatVerdict(final))
	return res
}

func (t *testRun) emit(ev monitor.RunEvent) {
	if t.r.events == nil {
		return
	}
	ev.RunID = t.runID
	ev.Test = t.tc.Name
	t.r.events.Emit(ev)
}
