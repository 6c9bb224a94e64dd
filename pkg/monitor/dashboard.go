package monitor

import (
	"sync"
	"time"

	"digital.vasic.mobileqa/pkg/qa"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// TestState is the current state of one test in the dashboard.
type TestState struct {
	Name       string        `json:"name"`
	Verdict    qa.Verdict    `json:"verdict"`
	Step       int           `json:"step"`
	LastAction string        `json:"last_action,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Reward     float64       `json:"cumulative_reward"`
	Achieved   int           `json:"subgoals_achieved"`
	Subgoals   int           `json:"total_subgoals"`
	Recoveries int           `json:"recoveries,omitempty"`
	StartTime  *time.Time    `json:"start_time,omitempty"`
	EndTime    *time.Time    `json:"end_time,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// DashboardSummary holds aggregate stats for the dashboard.
type DashboardSummary struct {
	Total           int     `json:"total"`
	Passed          int     `json:"passed"`
	FailedAction    int     `json:"failed_action"`
	FailedAssertion int     `json:"failed_assertion"`
	Errors          int     `json:"errors"`
	Running         int     `json:"running"`
	PassRate        float64 `json:"pass_rate"`
	Elapsed         string  `json:"elapsed"`
}

// Snapshot is a point-in-time copy of the dashboard.
type Snapshot struct {
	RunID     string               `json:"run_id"`
	StartTime time.Time            `json:"start_time"`
	Status    string               `json:"status"`
	Tests     map[string]TestState `json:"tests"`
	Order     []string             `json:"order"`
	Summary   DashboardSummary     `json:"summary"`
}

// DashboardData provides a real-time view of suite execution.
type DashboardData struct {
	mu        sync.RWMutex
	runID     string
	startTime time.Time
	status    string
	tests     map[string]TestState
	order     []string
	summary   DashboardSummary
}

// NewDashboardData creates a new dashboard data instance.
func NewDashboardData(runID string) *DashboardData {
	return &DashboardData{
		runID:     runID,
		startTime: time.Now(),
		status:    StatusRunning,
		tests:     make(map[string]TestState),
	}
}

// UpdateFromEvent updates dashboard state from a run event.
func (d *DashboardData) UpdateFromEvent(event RunEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch event.Type {
	case EventSuiteFinished:
		if d.runID == "" {
			d.runID = event.RunID
		}
		d.status = StatusCompleted
		if event.Verdict.IsFailure() {
			d.status = StatusFailed
		}
		d.recalcSummary()
		return
	case EventTestStarted, EventStep, EventRecovery, EventTestFinished:
	default:
		return
	}
	if event.Test == "" {
		return
	}

	now := event.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	state, exists := d.tests[event.Test]
	if !exists {
		state = TestState{Name: event.Test, Verdict: qa.VerdictRunning}
		d.order = append(d.order, event.Test)
	}

	switch event.Type {
	case EventTestStarted:
		state.Verdict = qa.VerdictRunning
		state.StartTime = &now
	case EventStep:
		state.Step = event.Step
		state.LastAction = event.Action
		state.Reason = event.Reason
		state.Reward = event.Reward
		state.Achieved = event.Achieved
		state.Subgoals = event.Subgoals
	case EventRecovery:
		state.Recoveries++
	case EventTestFinished:
		state.Verdict = event.Verdict
		state.Step = event.Step
		state.Reason = event.Reason
		state.Reward = event.Reward
		state.Achieved = event.Achieved
		state.Subgoals = event.Subgoals
		state.EndTime = &now
		state.Duration = event.Duration
	}

	d.tests[event.Test] = state
	d.recalcSummary()
}

func (d *DashboardData) recalcSummary() {
	s := DashboardSummary{}
	for _, t := range d.tests {
		s.Total++
		switch t.Verdict {
		case qa.VerdictPass:
			s.Passed++
		case qa.VerdictFailAction:
			s.FailedAction++
		case qa.VerdictFailAssertion:
			s.FailedAssertion++
		case qa.VerdictError:
			s.Errors++
		default:
			s.Running++
		}
	}
	if completed := s.Total - s.Running; completed > 0 {
		s.PassRate = float64(s.Passed) / float64(completed) * 100
	}
	s.Elapsed = time.Since(d.startTime).Round(time.Millisecond).String()
	d.summary = s
}

// Snapshot returns a copy of the current dashboard state.
func (d *DashboardData) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	snap := Snapshot{
		RunID:     d.runID,
		StartTime: d.startTime,
		Status:    d.status,
		Tests:     make(map[string]TestState, len(d.tests)),
		Order:     append([]string(nil), d.order...),
		Summary:   d.summary,
	}
	for k, v := range d.tests {
		snap.Tests[k] = v
	}
	return snap
}

// SetStatus sets the overall run status.
func (d *DashboardData) SetStatus(status string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = status
}

// BuildDashboardData creates a DashboardData from an
// EventCollector by replaying all collected events.
func BuildDashboardData(
	runID string,
	collector *EventCollector,
) *DashboardData {
	data := NewDashboardData(runID)
	for _, event := range collector.Events() {
		data.UpdateFromEvent(event)
	}
	return data
}
