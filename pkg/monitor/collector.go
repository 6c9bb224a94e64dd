package monitor

import (
	"sync"
	"time"

	"digital.vasic.mobileqa/pkg/qa"
)

// EventCollector captures run events and aggregate counts.
type EventCollector struct {
	mu       sync.RWMutex
	events   []RunEvent
	handlers []func(RunEvent)
	stats    CollectorStats
}

var _ Emitter = (*EventCollector)(nil)

// CollectorStats holds aggregate statistics.
type CollectorStats struct {
	Tests           int           `json:"tests"`
	Steps           int           `json:"steps"`
	Recoveries      int           `json:"recoveries"`
	Passed          int           `json:"passed"`
	FailedAction    int           `json:"failed_action"`
	FailedAssertion int           `json:"failed_assertion"`
	Errors          int           `json:"errors"`
	StartTime       time.Time     `json:"start_time"`
	Duration        time.Duration `json:"duration"`
}

// NewEventCollector creates a new event collector.
func NewEventCollector() *EventCollector {
	return &EventCollector{
		events: make([]RunEvent, 0, 64),
		stats:  CollectorStats{StartTime: time.Now()},
	}
}

// OnEvent registers a handler to be called for each event.
func (c *EventCollector) OnEvent(handler func(RunEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, handler)
}

// Emit records an event and notifies all handlers.
func (c *EventCollector) Emit(event RunEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	c.mu.Lock()
	c.events = append(c.events, event)
	switch event.Type {
	case EventTestStarted:
		c.stats.Tests++
	case EventStep:
		c.stats.Steps++
	case EventRecovery:
		c.stats.Recoveries++
	case EventTestFinished:
		switch event.Verdict {
		case qa.VerdictPass:
			c.stats.Passed++
		case qa.VerdictFailAction:
			c.stats.FailedAction++
		case qa.VerdictFailAssertion:
			c.stats.FailedAssertion++
		default:
			c.stats.Errors++
		}
	}
	c.stats.Duration = time.Since(c.stats.StartTime)
	handlers := make([]func(RunEvent), len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}

// EmitTestStarted emits a test started event.
func (c *EventCollector) EmitTestStarted(runID, test, goal string) {
	c.Emit(StartedEvent(runID, test, goal))
}

// EmitTestFinished emits the final event of a test.
func (c *EventCollector) EmitTestFinished(r *qa.TestResult) {
	c.Emit(FinishedEvent(r))
}

// StartedEvent builds the first event of a test.
func StartedEvent(runID, test, goal string) RunEvent {
	return RunEvent{
		Type:    EventTestStarted,
		RunID:   runID,
		Test:    test,
		Verdict: qa.VerdictRunning,
		Message: goal,
	}
}

// FinishedEvent builds the final event of a test from its
// result.
func FinishedEvent(r *qa.TestResult) RunEvent {
	ev := RunEvent{
		Type:     EventTestFinished,
		RunID:    r.RunID,
		Test:     r.TestName,
		Step:     r.TotalSteps,
		Verdict:  r.Verdict,
		Reason:   r.Reason,
		Message:  r.Details,
		Duration: r.Duration,
	}
	if s := r.RewardSummary; s != nil {
		ev.Reward = s.FinalReward
		ev.Achieved = s.SubgoalsAchieved
		ev.Subgoals = s.TotalSubgoals
	}
	return ev
}

// Events returns a copy of all collected events.
func (c *EventCollector) Events() []RunEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]RunEvent, len(c.events))
	copy(result, c.events)
	return result
}

// Stats returns the current aggregate statistics.
func (c *EventCollector) Stats() CollectorStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.Duration = time.Since(s.StartTime)
	return s
}

// Reset clears all collected events and statistics.
func (c *EventCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
	c.stats = CollectorStats{StartTime: time.Now()}
}
