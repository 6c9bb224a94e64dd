package qa

// StepVerdict is the supervisor's judgment of one step.
type StepVerdict struct {
	Verdict          Verdict     `json:"verdict"`
	Reason           string      `json:"reason"`
	Step             int         `json:"step_number"`
	Details          string      `json:"details,omitempty"`
	SubgoalsAchieved []string    `json:"subgoals_achieved"`
	Reward           *StepReward `json:"step_reward,omitempty"`
}

// Terminal reports whether the verdict ends the run.
func (v StepVerdict) Terminal() bool {
	return v.Verdict.IsTerminal()
}

// HistoryEntry pairs a past action with its outcome.
type HistoryEntry struct {
	Step   int             `json:"step"`
	Action Action          `json:"action"`
	Result ExecutionResult `json:"result"`
}
