package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mobileqa"

// PrometheusMetrics implements RunMetrics with client_golang
// collectors. Expose them with promhttp.HandlerFor on the
// registry passed to NewPrometheusMetrics.
type PrometheusMetrics struct {
	tests      *prometheus.CounterVec
	testTime   *prometheus.HistogramVec
	steps      *prometheus.CounterVec
	stepTime   *prometheus.HistogramVec
	assertions *prometheus.CounterVec
	inferences *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	recoveries *prometheus.CounterVec
	reward     *prometheus.GaugeVec
	runTotal   prometheus.Counter
	active     prometheus.Gauge
}

// NewPrometheusMetrics creates the collectors and registers them
// with reg. A nil reg uses a fresh private registry.
func NewPrometheusMetrics(
	reg prometheus.Registerer,
) (*PrometheusMetrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &PrometheusMetrics{
		tests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tests_total",
			Help:      "Finished tests by verdict.",
		}, []string{"test", "verdict"}),
		testTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "test_duration_seconds",
			Help:      "Wall-clock time per test.",
			Buckets:   []float64{10, 30, 60, 120, 300, 600},
		}, []string{"verdict"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Executed actions by kind and outcome.",
		}, []string{"action", "success"}),
		stepTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Time to execute one action including dialog recovery.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		assertions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assertions_total",
			Help:      "Local UI assertion checks by outcome.",
		}, []string{"check", "passed"}),
		inferences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_requests_total",
			Help:      "Model provider calls by purpose and outcome.",
		}, []string{"provider", "purpose", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_latency_seconds",
			Help:      "Model provider call latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider"}),
		recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stuck_recoveries_total",
			Help:      "Stuck-UI recovery stages run.",
		}, []string{"stage"}),
		reward: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "final_reward",
			Help:      "Final reward of the last run of each test.",
		}, []string{"test"}),
		runTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Test runs started.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_tests",
			Help:      "Tests currently executing.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.tests, m.testTime, m.steps, m.stepTime, m.assertions,
		m.inferences, m.latency, m.recoveries, m.reward,
		m.runTotal, m.active,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *PrometheusMetrics) RecordTest(
	testName, verdict string,
	duration time.Duration,
) {
	m.tests.WithLabelValues(testName, verdict).Inc()
	m.testTime.WithLabelValues(verdict).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordStep(
	actionKind string,
	success bool,
	duration time.Duration,
) {
	m.steps.WithLabelValues(actionKind, strconv.FormatBool(success)).Inc()
	m.stepTime.WithLabelValues(actionKind).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordAssertion(check string, passed bool) {
	m.assertions.WithLabelValues(check, strconv.FormatBool(passed)).Inc()
}

func (m *PrometheusMetrics) RecordInference(
	provider, purpose string,
	failed bool,
	latency time.Duration,
) {
	status := "ok"
	if failed {
		status = "error"
	}
	m.inferences.WithLabelValues(provider, purpose, status).Inc()
	m.latency.WithLabelValues(provider).Observe(latency.Seconds())
}

func (m *PrometheusMetrics) RecordRecovery(stage int) {
	m.recoveries.WithLabelValues(strconv.Itoa(stage)).Inc()
}

func (m *PrometheusMetrics) ObserveReward(testName string, reward float64) {
	m.reward.WithLabelValues(testName).Set(reward)
}

func (m *PrometheusMetrics) IncrementRunTotal() {
	m.runTotal.Inc()
}

func (m *PrometheusMetrics) SetActiveTests(count int) {
	m.active.Set(float64(count))
}
