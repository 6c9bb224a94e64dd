package assertion

import (
	"fmt"
	"strings"
	"sync"

	"digital.vasic.mobileqa/pkg/uitree"
)

// DefaultCheck is used when a Definition names no check.
const DefaultCheck = "visible"

// Engine defines the interface for predicate evaluation engines.
type Engine interface {
	// Evaluate checks a single predicate against the tree.
	Evaluate(def Definition, tree *uitree.Tree) Result

	// EvaluateAll checks several predicates against the same
	// tree.
	EvaluateAll(defs []Definition, tree *uitree.Tree) []Result

	// Register adds a custom evaluator for the given check name.
	// Returns an error if the name is already registered.
	Register(check string, evaluator Evaluator) error

	// HasEvaluator reports whether a check name is registered.
	HasEvaluator(check string) bool
}

// DefaultEngine is the standard Engine implementation. It is
// safe for concurrent use.
type DefaultEngine struct {
	mu         sync.RWMutex
	evaluators map[string]Evaluator
}

// NewEngine creates a DefaultEngine with the built-in checks
// registered.
func NewEngine() *DefaultEngine {
	e := &DefaultEngine{
		evaluators: make(map[string]Evaluator),
	}
	e.registerDefaults()
	return e
}

func (e *DefaultEngine) registerDefaults() {
	e.evaluators["visible"] = evaluateVisible
	e.evaluators["not_visible"] = evaluateNotVisible
	e.evaluators["checked"] = requireFound(evaluateChecked)
	e.evaluators["not_checked"] = requireFound(evaluateNotChecked)
	e.evaluators["enabled"] = requireFound(evaluateEnabled)
	e.evaluators["disabled"] = requireFound(evaluateDisabled)
	e.evaluators["selected"] = requireFound(evaluateSelected)
	e.evaluators["focused"] = requireFound(evaluateFocused)
	e.evaluators["clickable"] = requireFound(evaluateClickable)
	e.evaluators["text_equals"] = requireFound(evaluateTextEquals)
	e.evaluators["text_contains"] = requireFound(evaluateTextContains)
}

// Register adds a custom evaluator for the given check name.
func (e *DefaultEngine) Register(
	check string,
	evaluator Evaluator,
) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	check = normalize(check)
	if _, exists := e.evaluators[check]; exists {
		return fmt.Errorf(
			"assertion check already registered: %s", check,
		)
	}

	e.evaluators[check] = evaluator
	return nil
}

// HasEvaluator returns true if the check has a registered
// evaluator.
func (e *DefaultEngine) HasEvaluator(check string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, exists := e.evaluators[normalize(check)]
	return exists
}

// Checks returns the registered check names.
func (e *DefaultEngine) Checks() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.evaluators))
	for name := range e.evaluators {
		out = append(out, name)
	}
	return out
}

// Evaluate resolves the target to its best match in the tree and
// runs the check on it.
func (e *DefaultEngine) Evaluate(
	def Definition,
	tree *uitree.Tree,
) Result {
	check := normalize(def.Check)
	if check == "" {
		check = DefaultCheck
	}

	el, found := tree.BestMatch(def.Target)
	res := Result{
		Check:    check,
		Target:   def.Target,
		Expected: def.Expected,
		Found:    found,
	}
	if found {
		res.Actual = describe(el)
	}

	e.mu.RLock()
	evaluator, exists := e.evaluators[check]
	e.mu.RUnlock()

	if !exists {
		res.Message = fmt.Sprintf("unknown assertion check: %s", check)
		return res
	}

	res.Passed, res.Message = evaluator(def, Match{
		Element: el, Found: found,
	})
	return res
}

// EvaluateAll runs every predicate against the same tree.
func (e *DefaultEngine) EvaluateAll(
	defs []Definition,
	tree *uitree.Tree,
) []Result {
	results := make([]Result, 0, len(defs))
	for _, d := range defs {
		results = append(results, e.Evaluate(d, tree))
	}
	return results
}

func normalize(check string) string {
	return strings.ToLower(strings.TrimSpace(check))
}

func describe(el uitree.Element) string {
	var states []string
	if el.Checked {
		states = append(states, "checked")
	}
	if el.Selected {
		states = append(states, "selected")
	}
	if el.Focused {
		states = append(states, "focused")
	}
	if !el.Enabled {
		states = append(states, "disabled")
	}
	s := fmt.Sprintf("%q", el.Label())
	if len(states) > 0 {
		s += " [" + strings.Join(states, ",") + "]"
	}
	return s
}
