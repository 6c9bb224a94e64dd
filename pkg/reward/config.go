// Package reward decomposes a test goal into subgoals and scores
// a run: a constant penalty per step, a reward per achieved
// subgoal and a completion bonus for a passing test.
package reward

import (
	"errors"
	"fmt"

	"digital.vasic.mobileqa/pkg/qa"
)

// Config holds the reward constants.
type Config struct {
	StepPenalty     float64 `yaml:"step_penalty" json:"step_penalty"`
	SubgoalReward   float64 `yaml:"subgoal_reward" json:"subgoal_reward"`
	CompletionBonus float64 `yaml:"completion_bonus" json:"completion_bonus"`
	MinSubgoals     int     `yaml:"min_subgoals" json:"min_subgoals"`
	MaxSubgoals     int     `yaml:"max_subgoals" json:"max_subgoals"`
}

// DefaultConfig returns the standard reward constants.
func DefaultConfig() Config {
	return Config{
		StepPenalty:     -0.05,
		SubgoalReward:   0.2,
		CompletionBonus: 1.0,
		MinSubgoals:     3,
		MaxSubgoals:     7,
	}
}

// Validate checks the constants are usable.
func (c Config) Validate() error {
	var errs []error
	if c.StepPenalty > 0 {
		errs = append(errs, fmt.Errorf(
			"step_penalty must not be positive, got %g", c.StepPenalty))
	}
	if c.SubgoalReward < 0 {
		errs = append(errs, fmt.Errorf(
			"subgoal_reward must not be negative, got %g", c.SubgoalReward))
	}
	if c.CompletionBonus < 0 {
		errs = append(errs, fmt.Errorf(
			"completion_bonus must not be negative, got %g",
			c.CompletionBonus))
	}
	if c.MinSubgoals < 1 {
		errs = append(errs, fmt.Errorf(
			"min_subgoals must be at least 1, got %d", c.MinSubgoals))
	}
	if c.MaxSubgoals < c.MinSubgoals {
		errs = append(errs, fmt.Errorf(
			"max_subgoals (%d) is below min_subgoals (%d)",
			c.MaxSubgoals, c.MinSubgoals))
	}
	return errors.Join(errs...)
}

// Summarize computes the run summary from its parts. The bonus
// is paid only for a PASS; the completion rate is 0 without
// subgoals and never leaves [0, 1].
func (c Config) Summarize(
	totalSteps int,
	terminal qa.Verdict,
	achieved, total int,
	steps []qa.StepReward,
) qa.RewardSummary {
	s := qa.RewardSummary{
		TotalSteps:         totalSteps,
		TotalStepPenalty:   float64(totalSteps) * c.StepPenalty,
		TotalSubgoalReward: float64(achieved) * c.SubgoalReward,
		SubgoalsAchieved:   achieved,
		TotalSubgoals:      total,
		StepRewards:        append([]qa.StepReward{}, steps...),
	}
	if terminal == qa.VerdictPass {
		s.CompletionBonus = c.CompletionBonus
	}
	s.FinalReward = s.TotalStepPenalty + s.TotalSubgoalReward + s.CompletionBonus

	if total > 0 {
		s.CompletionRate = float64(achieved) / float64(total)
	}
	switch {
	case s.CompletionRate < 0:
		s.CompletionRate = 0
	case s.CompletionRate > 1:
		s.CompletionRate = 1
	}
	return s
}
