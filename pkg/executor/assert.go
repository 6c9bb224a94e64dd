package executor

import (
	"context"
	"fmt"

	"digital.vasic.mobileqa/pkg/assertion"
	"digital.vasic.mobileqa/pkg/logging"
	"digital.vasic.mobileqa/pkg/qa"
)

// DataAssertion holds the structured assertion result.
const DataAssertion = "assertion"

// assert evaluates a structured predicate against the captured
// tree. Free-form conditions, unknown checks and missing trees
// are recorded as deferred for the supervisor.
func (e *Executor) assert(
	ctx context.Context,
	a qa.Action,
	pre qa.UIState,
) qa.ExecutionResult {
	spec := a.Assert
	deferred := qa.Succeeded("Assertion recorded: " + spec.Condition).
		With(qa.DataDeferred, true)

	if !spec.Structured() {
		return deferred
	}

	defs := assertion.ParseCheckString(spec.Target, spec.Check, spec.Expected)
	for _, d := range defs {
		check := d.Check
		if check == "" {
			check = assertion.DefaultCheck
		}
		if !e.engine.HasEvaluator(check) {
			e.logger.Warn("unknown assertion check, deferring",
				logging.StringField("check", check),
				logging.StringField("target", spec.Target),
			)
			return deferred
		}
	}

	tree := pre.Tree
	if !pre.Captured() {
		fresh, err := e.dev.DumpUITree(ctx)
		if err != nil {
			e.logger.Warn("no ui tree for assertion, deferring", logging.ErrorField(err))
			return deferred
		}
		tree = fresh
	}

	res := assertion.AllPass(e.engine, defs, tree)
	e.metrics.RecordAssertion(res.Check, res.Passed)

	if res.Passed {
		return qa.Succeeded("Assertion passed: " + spec.Condition).
			With(DataAssertion, res)
	}
	return qa.AssertionFailed(
		fmt.Sprintf("Assertion failed: %s", spec.Condition),
		res.Message,
	).With(DataAssertion, res)
}
