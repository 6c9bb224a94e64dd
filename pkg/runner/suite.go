package runner

import (
	"context"
	"time"

	"github.com/google/uuid"

	"digital.vasic.mobileqa/pkg/logging"
	"digital.vasic.mobileqa/pkg/monitor"
	"digital.vasic.mobileqa/pkg/qa"
)

// ReasonNotRun is the reason of a suite entry whose test could
// not be executed.
const ReasonNotRun = "test could not run"

// SuiteResult aggregates the results of a suite run.
type SuiteResult struct {
	RunID           string           `json:"run_id"`
	Results         []*qa.TestResult `json:"results"`
	Passed          int              `json:"passed"`
	FailedAction    int              `json:"failed_action"`
	FailedAssertion int              `json:"failed_assertion"`
	Errors          int              `json:"errors"`
	Matched         int              `json:"matched_expectation"`
	StartTime       time.Time        `json:"start_time"`
	EndTime         time.Time        `json:"end_time"`
	Duration        time.Duration    `json:"duration"`
}

// Total returns the number of tests.
func (s *SuiteResult) Total() int {
	return len(s.Results)
}

// Failed returns the number of tests that did not pass.
func (s *SuiteResult) Failed() int {
	return s.FailedAction + s.FailedAssertion + s.Errors
}

// ExitCode is 0 when every test passed and 1 otherwise.
func (s *SuiteResult) ExitCode() int {
	if s.Failed() > 0 {
		return 1
	}
	return 0
}

func (s *SuiteResult) add(r *qa.TestResult) {
	s.Results = append(s.Results, r)
	switch r.Verdict {
	case qa.VerdictPass:
		s.Passed++
	case qa.VerdictFailAction:
		s.FailedAction++
	case qa.VerdictFailAssertion:
		s.FailedAssertion++
	default:
		s.Errors++
	}
	if r.MatchedExpect {
		s.Matched++
	}
}

// RunSuite runs tests one after another. A test that cannot run
// becomes an ERROR entry and the suite continues; once ctx is
// done the remaining tests are recorded as ERROR without
// running.
func (r *Runner) RunSuite(
	ctx context.Context,
	tests []qa.TestCase,
) *SuiteResult {
	s := &SuiteResult{RunID: uuid.NewString(), StartTime: time.Now()}
	r.metrics.IncrementRunTotal()
	r.logger.Info("suite started",
		logging.StringField("run_id", s.RunID),
		logging.IntField("tests", len(tests)),
	)

	for _, tc := range tests {
		if err := ctx.Err(); err != nil {
			s.add(r.notRun(tc, err, time.Now()))
			continue
		}
		start := time.Now()
		res, err := r.RunTest(ctx, tc)
		if err != nil {
			r.logger.Error("test could not run",
				logging.TestField(tc.Name),
				logging.ErrorField(err),
			)
			res = r.notRun(tc, err, start)
		}
		s.add(res)
	}

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)

	if r.events != nil {
		suiteVerdict := qa.VerdictPass
		if s.ExitCode() != 0 {
			suiteVerdict = qa.VerdictFailAction
		}
		r.events.Emit(monitor.RunEvent{
			Type:     monitor.EventSuiteFinished,
			RunID:    s.RunID,
			Verdict:  suiteVerdict,
			Duration: s.Duration,
		})
	}
	r.logger.Info("suite finished",
		logging.StringField("run_id", s.RunID),
		logging.IntField("passed", s.Passed),
		logging.IntField("failed_action", s.FailedAction),
		logging.IntField("failed_assertion", s.FailedAssertion),
		logging.IntField("errors", s.Errors),
		logging.IntField("matched_expectation", s.Matched),
		logging.DurationField("duration", s.Duration),
	)
	return s
}

func (r *Runner) notRun(
	tc qa.TestCase,
	err error,
	start time.Time,
) *qa.TestResult {
	end := time.Now()
	res := &qa.TestResult{
		TestName:       tc.Name,
		Verdict:        qa.VerdictError,
		Reason:         ReasonNotRun,
		Details:        err.Error(),
		ExpectedResult: tc.Expected(),
		StartTime:      start,
		EndTime:        end,
		Duration:       end.Sub(start),
	}
	r.metrics.RecordTest(tc.Name, string(res.Verdict), res.Duration)
	if r.events != nil {
		r.events.Emit(monitor.FinishedEvent(res))
	}
	return res
}
