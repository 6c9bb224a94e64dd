package assertion

import (
	"fmt"

	"digital.vasic.mobileqa/pkg/uitree"
)

// AllPass evaluates every predicate and reports the first
// failure. Found is false only when a failing predicate could
// not locate its target.
func AllPass(
	engine Engine,
	defs []Definition,
	tree *uitree.Tree,
) Result {
	results := engine.EvaluateAll(defs, tree)

	found := true
	for _, r := range results {
		if !r.Passed {
			return r
		}
		found = found && r.Found
	}

	res := Result{
		Check:  "all_pass",
		Passed: true,
		Found:  found,
		Message: fmt.Sprintf(
			"all %d checks passed", len(results),
		),
	}
	if len(results) > 0 {
		res.Target = results[0].Target
		res.Actual = results[0].Actual
	}
	return res
}
