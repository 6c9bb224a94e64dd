package assertion

// Evaluator checks one predicate against the resolved match. It
// returns whether the predicate held and an explanation.
type Evaluator func(def Definition, m Match) (bool, string)
