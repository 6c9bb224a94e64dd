// Package metrics records test-run metrics: test verdicts, step
// outcomes, assertion checks, model inference calls and stuck-UI
// recoveries.
package metrics

import "time"

// RunMetrics defines the interface for recording run metrics.
type RunMetrics interface {
	// RecordTest records a finished test and its verdict.
	RecordTest(testName, verdict string, duration time.Duration)
	// RecordStep records one executed action.
	RecordStep(actionKind string, success bool, duration time.Duration)
	// RecordAssertion records a local assertion check.
	RecordAssertion(check string, passed bool)
	// RecordInference records a provider call.
	RecordInference(provider, purpose string, failed bool, latency time.Duration)
	// RecordRecovery records a stuck-UI recovery stage.
	RecordRecovery(stage int)
	// ObserveReward records a test's final reward.
	ObserveReward(testName string, reward float64)
	// IncrementRunTotal increments the total run counter.
	IncrementRunTotal()
	// SetActiveTests sets the gauge of tests in progress.
	SetActiveTests(count int)
}

// NoopMetrics is a no-op implementation of RunMetrics
// useful for testing or when metrics collection is disabled.
type NoopMetrics struct{}

func (NoopMetrics) RecordTest(_, _ string, _ time.Duration)              {}
func (NoopMetrics) RecordStep(_ string, _ bool, _ time.Duration)         {}
func (NoopMetrics) RecordAssertion(_ string, _ bool)                     {}
func (NoopMetrics) RecordInference(_, _ string, _ bool, _ time.Duration) {}
func (NoopMetrics) RecordRecovery(_ int)                                 {}
func (NoopMetrics) ObserveReward(_ string, _ float64)                    {}
func (NoopMetrics) IncrementRunTotal()                                   {}
func (NoopMetrics) SetActiveTests(_ int)                                 {}
