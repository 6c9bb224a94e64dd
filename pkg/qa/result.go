package qa

import "time"

// ExecutionResult is the outcome of executing one action.
type ExecutionResult struct {
	// Success is false when the action could not be performed or
	// an assertion did not hold.
	Success bool `json:"success"`

	// Message is a one-line human-readable outcome.
	Message string `json:"message"`

	// Error carries failure detail.
	Error string `json:"error,omitempty"`

	// Data holds structured extras such as matched bounds, the
	// typed field, dismissed dialogs or the attempt count.
	Data map[string]any `json:"data,omitempty"`

	// AssertionContext marks a verification failure as opposed
	// to an interaction failure.
	AssertionContext bool `json:"is_assertion_context"`
}

// Succeeded returns a successful result.
func Succeeded(message string) ExecutionResult {
	return ExecutionResult{Success: true, Message: message}
}

// ActionFailed returns an interaction failure.
func ActionFailed(message, detail string) ExecutionResult {
	return ExecutionResult{Message: message, Error: detail}
}

// AssertionFailed returns a verification failure.
func AssertionFailed(message, detail string) ExecutionResult {
	return ExecutionResult{
		Message:          message,
		Error:            detail,
		AssertionContext: true,
	}
}

// With sets a Data entry and returns the result.
func (r ExecutionResult) With(key string, value any) ExecutionResult {
	data := make(map[string]any, len(r.Data)+1)
	for k, v := range r.Data {
		data[k] = v
	}
	data[key] = value
	r.Data = data
	return r
}

// Detail returns the error detail, falling back to the message.
func (r ExecutionResult) Detail() string {
	if r.Error != "" {
		return r.Error
	}
	return r.Message
}

// Deferred reports whether verification was handed to the
// supervisor.
func (r ExecutionResult) Deferred() bool {
	d, _ := r.Data[DataDeferred].(bool)
	return d
}

// Well-known Data keys.
const (
	DataBounds    = "bounds"
	DataField     = "field"
	DataDismissed = "dismissed_dialogs"
	DataAttempts  = "attempts"
	DataDeferred  = "deferred"
	DataKeycode   = "keycode"
)

// TestResult is the single authoritative output of one test run.
type TestResult struct {
	TestName       string         `json:"test_name"`
	RunID          string         `json:"run_id"`
	Verdict        Verdict        `json:"verdict"`
	Reason         string         `json:"reason"`
	Details        string         `json:"details,omitempty"`
	TotalSteps     int            `json:"total_steps"`
	ExpectedResult Verdict        `json:"expected_result,omitempty"`
	MatchedExpect  bool           `json:"matched_expectation"`
	Aborted        bool           `json:"aborted,omitempty"`
	RewardSummary  *RewardSummary `json:"reward_summary,omitempty"`
	ArtifactsDir   string         `json:"artifacts_dir,omitempty"`
	StartTime      time.Time      `json:"start_time"`
	EndTime        time.Time      `json:"end_time"`
	Duration       time.Duration  `json:"duration"`
}

// Passed reports whether the test passed.
func (r *TestResult) Passed() bool {
	return r.Verdict == VerdictPass
}
