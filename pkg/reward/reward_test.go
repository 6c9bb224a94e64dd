package reward_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digital.vasic.mobileqa/pkg/device/devicetest"
	"digital.vasic.mobileqa/pkg/inference"
	"digital.vasic.mobileqa/pkg/inference/inferencetest"
	"digital.vasic.mobileqa/pkg/qa"
	"digital.vasic.mobileqa/pkg/reward"
)

func subgoals(n int) map[string]any {
	var list []map[string]string
	for i := 1; i <= n; i++ {
		list = append(list, map[string]string{
			"id":                 fmt.Sprintf("subgoal_%d", i),
			"description":        fmt.Sprintf("milestone %d", i),
			"detection_criteria": fmt.Sprintf("screen %d visible", i),
		})
	}
	return map[string]any{"subgoals": list}
}

func ui() qa.UIState {
	return qa.NewUIState(devicetest.Screen("Create new vault"), "")
}

func decomposed(t *testing.T, n int) *reward.Engine {
	t.Helper()
	p := inferencetest.New(inferencetest.JSON(subgoals(n)))
	e := reward.New(p)
	d := e.Decompose(context.Background(), "goal", ui())
	require.False(t, d.Fallback)
	require.Equal(t, n, d.Total())
	return e
}

func TestDefaultConfig(t *testing.T) {
	cfg := reward.DefaultConfig()
	assert.Equal(t, -0.05, cfg.StepPenalty)
	assert.Equal(t, 0.2, cfg.SubgoalReward)
	assert.Equal(t, 1.0, cfg.CompletionBonus)
	assert.Equal(t, 3, cfg.MinSubgoals)
	assert.Equal(t, 7, cfg.MaxSubgoals)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	cfg := reward.Config{StepPenalty: 0.1, SubgoalReward: -1, CompletionBonus: -1, MinSubgoals: 0, MaxSubgoals: -1}
	err := cfg.Validate()
	require.Error(t, err)
	for _, part := range []string{"step_penalty", "subgoal_reward", "completion_bonus", "min_subgoals", "max_subgoals"} {
		assert.Contains(t, err.Error(), part)
	}
}

func TestScenarios(t *testing.T) {
	tests := []struct {
		name     string
		steps    int
		total    int
		achieved int
		verdict  qa.Verdict
		final    float64
	}{
		{"A pass all subgoals", 6, 6, 6, qa.VerdictPass, 1.90},
		{"B assertion failure", 8, 5, 4, qa.VerdictFailAssertion, 0.40},
		{"C action failure", 4, 4, 2, qa.VerdictFailAction, 0.20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := decomposed(t, tt.total)
			for step := 1; step <= tt.steps; step++ {
				var ids []string
				if step <= tt.achieved {
					ids = []string{fmt.Sprintf("subgoal_%d", step)}
				}
				e.ScoreStep(step, ids)
			}

			s := e.Finalize(tt.steps, tt.verdict)
			assert.InDelta(t, tt.final, s.FinalReward, 1e-9)
			assert.InDelta(t, s.TotalStepPenalty+s.TotalSubgoalReward+s.CompletionBonus, s.FinalReward, 1e-9)
			assert.Equal(t, tt.achieved, s.SubgoalsAchieved)
			assert.Equal(t, tt.total, s.TotalSubgoals)
			assert.InDelta(t, float64(tt.achieved)/float64(tt.total), s.CompletionRate, 1e-9)
			require.Len(t, s.StepRewards, tt.steps)
			assert.InDelta(t, s.TotalStepPenalty+s.TotalSubgoalReward,
				s.StepRewards[tt.steps-1].CumulativeReward, 1e-9)
		})
	}
}

func TestScoreStep(t *testing.T) {
	e := decomposed(t, 3)

	r := e.ScoreStep(1, nil)
	assert.Equal(t, 1, r.Step)
	assert.Equal(t, -0.05, r.StepPenalty)
	assert.Zero(t, r.SubgoalReward)
	assert.InDelta(t, -0.05, r.CumulativeReward, 1e-9)

	r = e.ScoreStep(2, []string{"subgoal_1", "subgoal_2"})
	assert.InDelta(t, 0.4, r.SubgoalReward, 1e-9)
	assert.InDelta(t, 0.30, r.CumulativeReward, 1e-9)
	assert.Equal(t, 2, r.AchievedCount)
	assert.Equal(t, 3, r.TotalSubgoals)
	assert.Equal(t, []string{"subgoal_1", "subgoal_2"}, r.AchievedThisStep)

	assert.Len(t, e.StepRewards(), 2)
}

func TestCurrent_DoesNotScore(t *testing.T) {
	e := decomposed(t, 3)
	assert.Equal(t, qa.StepReward{Step: 1, TotalSubgoals: 3}, e.Current(1))

	e.ScoreStep(1, []string{"subgoal_1"})
	r := e.Current(2)
	assert.Equal(t, 2, r.Step)
	assert.Zero(t, r.StepPenalty)
	assert.Zero(t, r.SubgoalReward)
	assert.InDelta(t, 0.15, r.CumulativeReward, 1e-9)
	assert.Equal(t, 1, r.AchievedCount)
	assert.Len(t, e.StepRewards(), 1)
}

func TestSnapshotHasNoBonus(t *testing.T) {
	e := decomposed(t, 3)
	e.ScoreStep(1, []string{"subgoal_1"})

	s := e.Snapshot(1)
	assert.Zero(t, s.CompletionBonus)
	assert.InDelta(t, 0.15, s.FinalReward, 1e-9)
}

func TestSummarize_CompletionRateBounds(t *testing.T) {
	cfg := reward.DefaultConfig()

	s := cfg.Summarize(3, qa.VerdictFailAction, 0, 0, nil)
	assert.Zero(t, s.CompletionRate)
	assert.NotNil(t, s.StepRewards)

	s = cfg.Summarize(1, qa.VerdictPass, 5, 3, nil)
	assert.Equal(t, 1.0, s.CompletionRate)
}

func TestSummarize_CustomConfig(t *testing.T) {
	cfg := reward.Config{StepPenalty: -0.1, SubgoalReward: 0.5, CompletionBonus: 2, MinSubgoals: 1, MaxSubgoals: 3}
	s := cfg.Summarize(2, qa.VerdictPass, 1, 2, nil)
	assert.InDelta(t, -0.2+0.5+2, s.FinalReward, 1e-9)
	assert.InDelta(t, 0.5, s.CompletionRate, 1e-9)
}

func TestDecompose_Fallback(t *testing.T) {
	tests := map[string]inferencetest.Reply{
		"provider failure": inferencetest.Fail(inference.NewError("scripted", inference.KindStatus, 503, errors.New("unavailable"))),
		"too few":          inferencetest.JSON(subgoals(2)),
		"too many":         inferencetest.JSON(subgoals(8)),
		"not json":         inferencetest.Text("I think there are three steps."),
	}
	for name, reply := range tests {
		t.Run(name, func(t *testing.T) {
			e := reward.New(inferencetest.New(reply))
			d := e.Decompose(context.Background(), "open settings", ui())

			require.True(t, d.Fallback)
			require.Len(t, d.Subgoals, 1)
			sg := d.Subgoals[0]
			assert.Equal(t, reward.GenericSubgoalID, sg.ID)
			assert.Equal(t, "Complete test goal", sg.Description)
			assert.Equal(t, "Test marked as done", sg.Criterion)
			assert.Equal(t, qa.SubgoalPending, sg.Status)
			assert.Equal(t, "open settings", d.Goal)
			assert.Same(t, d, e.Decomposition())
		})
	}
}

func TestDecompose_NilProvider(t *testing.T) {
	d := reward.New(nil).Decompose(context.Background(), "goal", ui())
	assert.True(t, d.Fallback)
}

func TestDecompose_FillsAndDedupesIDs(t *testing.T) {
	p := inferencetest.New(inferencetest.Text("```json\n" + `{"subgoals": [
		{"id": "open", "description": "App open", "detection_criteria": "vault list"},
		{"description": "Vault named", "detection_criteria": "InternVault typed"},
		{"id": "open", "description": "Inside vault", "detection_criteria": "Create new note visible"},
	]}` + "\n```"))
	e := reward.New(p)
	d := e.Decompose(context.Background(), "create vault", ui())

	require.False(t, d.Fallback)
	require.Len(t, d.Subgoals, 3)
	assert.Equal(t, "open", d.Subgoals[0].ID)
	assert.Equal(t, "subgoal_2", d.Subgoals[1].ID)
	assert.Equal(t, "open_2", d.Subgoals[2].ID)
	assert.Equal(t, "InternVault typed", d.Subgoals[1].Criterion)

	req := p.RequestsFor(reward.Purpose)
	require.Len(t, req, 1)
	assert.Contains(t, req[0].Prompt, "create vault")
	assert.Contains(t, req[0].Prompt, "3 to 7 subgoals")
	assert.Contains(t, req[0].Prompt, "Create new vault")
}
