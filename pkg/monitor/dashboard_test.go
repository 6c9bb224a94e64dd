package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"digital.vasic.mobileqa/pkg/qa"
)

func TestDashboardData_UpdateFromEvent(t *testing.T) {
	d := NewDashboardData("run-1")

	d.UpdateFromEvent(RunEvent{Type: EventTestStarted, Test: "create_vault"})

	snap := d.Snapshot()
	assert.Equal(t, 1, snap.Summary.Total)
	assert.Equal(t, 1, snap.Summary.Running)
	assert.Equal(t, qa.VerdictRunning, snap.Tests["create_vault"].Verdict)
	assert.NotNil(t, snap.Tests["create_vault"].StartTime)

	d.UpdateFromEvent(RunEvent{
		Type: EventStep, Test: "create_vault", Step: 2,
		Action: "tap Create new vault", Reward: 0.15, Achieved: 1, Subgoals: 4,
	})
	snap = d.Snapshot()
	state := snap.Tests["create_vault"]
	assert.Equal(t, 2, state.Step)
	assert.Equal(t, "tap Create new vault", state.LastAction)
	assert.Equal(t, 0.15, state.Reward)
	assert.Equal(t, 1, state.Achieved)

	d.UpdateFromEvent(RunEvent{
		Type: EventTestFinished, Test: "create_vault", Step: 6,
		Verdict: qa.VerdictPass, Duration: 2 * time.Second, Reward: 1.9,
	})

	snap = d.Snapshot()
	assert.Equal(t, qa.VerdictPass, snap.Tests["create_vault"].Verdict)
	assert.Equal(t, 1, snap.Summary.Passed)
	assert.Zero(t, snap.Summary.Running)
	assert.Equal(t, float64(100), snap.Summary.PassRate)
}

func TestDashboardData_FailureCounts(t *testing.T) {
	d := NewDashboardData("run-2")
	d.UpdateFromEvent(RunEvent{Type: EventTestFinished, Test: "a", Verdict: qa.VerdictFailAction, Reason: "Failed to execute action"})
	d.UpdateFromEvent(RunEvent{Type: EventTestFinished, Test: "b", Verdict: qa.VerdictFailAssertion})
	d.UpdateFromEvent(RunEvent{Type: EventTestFinished, Test: "c", Verdict: qa.VerdictError})
	d.UpdateFromEvent(RunEvent{Type: EventTestFinished, Test: "d", Verdict: qa.VerdictPass})

	snap := d.Snapshot()
	assert.Equal(t, 4, snap.Summary.Total)
	assert.Equal(t, 1, snap.Summary.FailedAction)
	assert.Equal(t, 1, snap.Summary.FailedAssertion)
	assert.Equal(t, 1, snap.Summary.Errors)
	assert.Equal(t, float64(25), snap.Summary.PassRate)
	assert.Equal(t, []string{"a", "b", "c", "d"}, snap.Order)
	assert.Equal(t, "Failed to execute action", snap.Tests["a"].Reason)
}

func TestDashboardData_Recovery(t *testing.T) {
	d := NewDashboardData("run-3")
	d.UpdateFromEvent(RunEvent{Type: EventTestStarted, Test: "a"})
	d.UpdateFromEvent(RunEvent{Type: EventRecovery, Test: "a", Stage: 1})
	d.UpdateFromEvent(RunEvent{Type: EventRecovery, Test: "a", Stage: 2})
	assert.Equal(t, 2, d.Snapshot().Tests["a"].Recoveries)
}

func TestDashboardData_SuiteFinished(t *testing.T) {
	d := NewDashboardData("run-4")
	d.UpdateFromEvent(RunEvent{Type: EventSuiteFinished, Verdict: qa.VerdictPass})
	assert.Equal(t, StatusCompleted, d.Snapshot().Status)

	d = NewDashboardData("run-5")
	d.UpdateFromEvent(RunEvent{Type: EventSuiteFinished, Verdict: qa.VerdictFailAction})
	assert.Equal(t, StatusFailed, d.Snapshot().Status)
	assert.Equal(t, "run-5", d.Snapshot().RunID)

	d = NewDashboardData("")
	d.UpdateFromEvent(RunEvent{Type: EventSuiteFinished, RunID: "suite-1", Verdict: qa.VerdictPass})
	assert.Equal(t, "suite-1", d.Snapshot().RunID, "adopts the suite run id")
}

func TestDashboardData_SetStatus(t *testing.T) {
	d := NewDashboardData("run-6")
	d.SetStatus(StatusCompleted)
	assert.Equal(t, StatusCompleted, d.Snapshot().Status)
}

func TestDashboardData_Snapshot_IsCopy(t *testing.T) {
	d := NewDashboardData("run-7")
	d.UpdateFromEvent(RunEvent{Type: EventTestStarted, Test: "a"})

	snap := d.Snapshot()
	snap.Tests["b"] = TestState{Name: "b"}

	d.mu.RLock()
	_, exists := d.tests["b"]
	d.mu.RUnlock()
	assert.False(t, exists)
}

func TestBuildDashboardData(t *testing.T) {
	c := NewEventCollector()
	c.EmitTestStarted("r", "a", "goal")
	c.Emit(RunEvent{Type: EventTestFinished, Test: "a", Verdict: qa.VerdictPass})

	snap := BuildDashboardData("r", c).Snapshot()
	assert.Equal(t, "r", snap.RunID)
	assert.Equal(t, 1, snap.Summary.Passed)
}
