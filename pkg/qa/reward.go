package qa

// StepReward is the reward accounting of one step.
type StepReward struct {
	Step             int      `json:"step"`
	StepPenalty      float64  `json:"step_penalty"`
	SubgoalReward    float64  `json:"subgoal_reward"`
	AchievedThisStep []string `json:"subgoals_achieved_this_step,omitempty"`
	CumulativeReward float64  `json:"cumulative_reward"`
	AchievedCount    int      `json:"subgoals_achieved_count"`
	TotalSubgoals    int      `json:"total_subgoals"`
}

// RewardSummary is the reward accounting of a whole run.
type RewardSummary struct {
	TotalSteps         int          `json:"total_steps"`
	TotalStepPenalty   float64      `json:"total_step_penalty"`
	TotalSubgoalReward float64      `json:"total_subgoal_reward"`
	CompletionBonus    float64      `json:"completion_bonus"`
	FinalReward        float64      `json:"final_reward"`
	SubgoalsAchieved   int          `json:"subgoals_achieved"`
	TotalSubgoals      int          `json:"total_subgoals"`
	CompletionRate     float64      `json:"subgoal_completion_rate"`
	StepRewards        []StepReward `json:"step_rewards"`
}
