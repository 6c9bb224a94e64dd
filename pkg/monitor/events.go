package monitor

import (
	"time"

	"digital.vasic.mobileqa/pkg/qa"
)

// EventType represents the type of run event.
type EventType string

const (
	EventTestStarted   EventType = "test_started"
	EventStep          EventType = "step"
	EventRecovery      EventType = "recovery"
	EventTestFinished  EventType = "test_finished"
	EventSuiteFinished EventType = "suite_finished"
)

// RunEvent represents a progress event of a test run.
type RunEvent struct {
	Type      EventType     `json:"type"`
	RunID     string        `json:"run_id,omitempty"`
	Test      string        `json:"test,omitempty"`
	Step      int           `json:"step,omitempty"`
	Action    string        `json:"action,omitempty"`
	Verdict   qa.Verdict    `json:"verdict,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Message   string        `json:"message,omitempty"`
	Reward    float64       `json:"cumulative_reward"`
	Achieved  int           `json:"subgoals_achieved"`
	Subgoals  int           `json:"total_subgoals"`
	Stage     int           `json:"recovery_stage,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Emitter receives run events. *EventCollector implements it.
type Emitter interface {
	Emit(event RunEvent)
}
