package reward

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"digital.vasic.mobileqa/pkg/inference"
	"digital.vasic.mobileqa/pkg/logging"
	"digital.vasic.mobileqa/pkg/qa"
)

// Purpose labels decomposition calls in logs and metrics.
const Purpose = "decompose"

// The single subgoal used when decomposition fails.
const (
	GenericSubgoalID          = "subgoal_generic"
	GenericSubgoalDescription = "Complete test goal"
	GenericSubgoalCriterion   = "Test marked as done"
)

const decomposeTemperature = 0.3

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the reward constants.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine tracks the subgoals and rewards of one test run. It is
// safe for concurrent readers.
type Engine struct {
	provider inference.Provider
	cfg      Config
	logger   logging.Logger

	mu            sync.Mutex
	decomposition *qa.SubgoalDecomposition
	steps         []qa.StepReward
	cumulative    float64
	achieved      int
}

// New creates an Engine. provider may be nil, in which case
// Decompose always falls back to the generic subgoal.
func New(provider inference.Provider, opts ...Option) *Engine {
	e := &Engine{
		provider: provider,
		cfg:      DefaultConfig(),
		logger:   logging.NullLogger{},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Config returns the reward constants.
func (e *Engine) Config() Config {
	return e.cfg
}

type decomposeResponse struct {
	Subgoals []struct {
		ID                string `json:"id"`
		Description       string `json:"description"`
		DetectionCriteria string `json:"detection_criteria"`
	} `json:"subgoals"`
}

// Decompose asks the provider for MinSubgoals..MaxSubgoals
// subgoals. Provider failure or an out-of-range count yields the
// single generic subgoal. The decomposition is kept by the
// engine and returned; its subgoal statuses are updated in place
// as they are achieved.
func (e *Engine) Decompose(
	ctx context.Context,
	goal string,
	ui qa.UIState,
) *qa.SubgoalDecomposition {
	d, err := e.decompose(ctx, goal, ui)
	if err != nil {
		e.logger.Warn("subgoal decomposition failed, using generic subgoal",
			logging.ErrorField(err),
		)
		d = Fallback(goal)
	} else {
		e.logger.Info("decomposed goal",
			logging.IntField("subgoals", len(d.Subgoals)),
		)
	}

	e.mu.Lock()
	e.decomposition = d
	e.mu.Unlock()
	return d
}

func (e *Engine) decompose(
	ctx context.Context,
	goal string,
	ui qa.UIState,
) (*qa.SubgoalDecomposition, error) {
	if e.provider == nil {
		return nil, fmt.Errorf("no inference provider configured")
	}
	validate := func(r *decomposeResponse) error {
		n := len(r.Subgoals)
		if n < e.cfg.MinSubgoals || n > e.cfg.MaxSubgoals {
			return fmt.Errorf("got %d subgoals, want %d to %d",
				n, e.cfg.MinSubgoals, e.cfg.MaxSubgoals)
		}
		for i, sg := range r.Subgoals {
			if strings.TrimSpace(sg.Description) == "" {
				return fmt.Errorf("subgoal %d has no description", i+1)
			}
		}
		return nil
	}

	resp, err := inference.GenerateStructured(ctx, e.provider, inference.Request{
		Prompt: buildDecomposePrompt(
			goal, ui, e.cfg.MinSubgoals, e.cfg.MaxSubgoals,
		),
		ImagePath:   ui.ScreenshotPath,
		Temperature: decomposeTemperature,
		Purpose:     Purpose,
	}, validate)
	if err != nil {
		return nil, err
	}

	d := &qa.SubgoalDecomposition{Goal: goal, CreatedAt: time.Now()}
	used := make(map[string]bool)
	for i, sg := range resp.Subgoals {
		id := uniqueID(strings.TrimSpace(sg.ID), i+1, used)
		d.Subgoals = append(d.Subgoals, qa.Subgoal{
			ID:          id,
			Description: strings.TrimSpace(sg.Description),
			Criterion:   strings.TrimSpace(sg.DetectionCriteria),
			Status:      qa.SubgoalPending,
		})
	}
	return d, nil
}

// uniqueID fills a missing id with subgoal_N and suffixes
// duplicates.
func uniqueID(id string, n int, used map[string]bool) string {
	if id == "" {
		id = fmt.Sprintf("subgoal_%d", n)
	}
	base := id
	for i := 2; used[id]; i++ {
		id = fmt.Sprintf("%s_%d", base, i)
	}
	used[id] = true
	return id
}

// Fallback returns the single generic subgoal decomposition.
func Fallback(goal string) *qa.SubgoalDecomposition {
	return &qa.SubgoalDecomposition{
		Goal: goal,
		Subgoals: []qa.Subgoal{{
			ID:          GenericSubgoalID,
			Description: GenericSubgoalDescription,
			Criterion:   GenericSubgoalCriterion,
			Status:      qa.SubgoalPending,
		}},
		CreatedAt: time.Now(),
		Fallback:  true,
	}
}

// Decomposition returns the current decomposition, nil before
// Decompose.
func (e *Engine) Decomposition() *qa.SubgoalDecomposition {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.decomposition
}

// ScoreStep records one step: the penalty once, plus the reward
// for each subgoal newly achieved in it.
func (e *Engine) ScoreStep(step int, achievedIDs []string) qa.StepReward {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(achievedIDs)
	r := qa.StepReward{
		Step:             step,
		StepPenalty:      e.cfg.StepPenalty,
		SubgoalReward:    float64(n) * e.cfg.SubgoalReward,
		AchievedThisStep: append([]string(nil), achievedIDs...),
		TotalSubgoals:    e.decomposition.Total(),
	}
	e.achieved += n
	e.cumulative += r.StepPenalty + r.SubgoalReward
	r.CumulativeReward = e.cumulative
	r.AchievedCount = e.achieved

	e.steps = append(e.steps, r)
	return r
}

// Current returns the running totals at step without scoring it:
// no penalty and no subgoal reward of its own. It is attached to
// verdicts that end a run between steps.
func (e *Engine) Current(step int) qa.StepReward {
	e.mu.Lock()
	defer e.mu.Unlock()
	return qa.StepReward{
		Step:             step,
		CumulativeReward: e.cumulative,
		AchievedCount:    e.achieved,
		TotalSubgoals:    e.decomposition.Total(),
	}
}

// StepRewards returns a copy of the per-step rewards.
func (e *Engine) StepRewards() []qa.StepReward {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]qa.StepReward(nil), e.steps...)
}

// Finalize computes the run summary for the terminal verdict.
func (e *Engine) Finalize(
	totalSteps int,
	terminal qa.Verdict,
) qa.RewardSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := e.decomposition.Total()
	return e.cfg.Summarize(totalSteps, terminal, e.achieved, total, e.steps)
}

// Snapshot is the summary so far without a completion bonus,
// used when a run is aborted.
func (e *Engine) Snapshot(totalSteps int) qa.RewardSummary {
	return e.Finalize(totalSteps, qa.VerdictRunning)
}
