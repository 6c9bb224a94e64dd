// Package assertion evaluates structured UI predicates against a
// captured view hierarchy. It ships with built-in checks for the
// common widget states and supports custom check registration.
// Evaluation never touches the device.
package assertion

import "digital.vasic.mobileqa/pkg/uitree"

// Definition describes one predicate on one UI element.
type Definition struct {
	// Check is the evaluator name (e.g., "visible", "checked",
	// "text_equals"). Empty means "visible".
	Check string `json:"check"`

	// Target is the visible text or content description used to
	// locate the element.
	Target string `json:"target"`

	// Expected is the comparison value for text checks.
	Expected string `json:"expected,omitempty"`
}

// Match is the element resolved for a Definition's target.
type Match struct {
	Element uitree.Element
	Found   bool
}

// Result captures the outcome of evaluating a single predicate.
type Result struct {
	// Check is the evaluator that ran.
	Check string `json:"check"`

	// Target is the element locator.
	Target string `json:"target"`

	// Expected is the comparison value, if any.
	Expected string `json:"expected,omitempty"`

	// Actual describes the observed element state.
	Actual string `json:"actual,omitempty"`

	// Found reports whether the target element was present.
	Found bool `json:"found"`

	// Passed indicates whether the predicate held.
	Passed bool `json:"passed"`

	// Message is a human-readable description of the outcome.
	Message string `json:"message"`
}
