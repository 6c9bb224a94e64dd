package assertion

import (
	"fmt"
	"strings"
)

// NotFoundMessage is the explanation given when the target of a
// state check is absent.
const NotFoundMessage = "element not found during assertion"

func requireFound(next Evaluator) Evaluator {
	return func(def Definition, m Match) (bool, string) {
		if !m.Found {
			return false, fmt.Sprintf("%s: %q", NotFoundMessage, def.Target)
		}
		return next(def, m)
	}
}

func evaluateVisible(def Definition, m Match) (bool, string) {
	if !m.Found {
		return false, fmt.Sprintf("%s: %q", NotFoundMessage, def.Target)
	}
	if m.Element.Bounds.Area() == 0 {
		return false, fmt.Sprintf(
			"found %q but it has no on-screen area", def.Target,
		)
	}
	return true, fmt.Sprintf("%q is visible", def.Target)
}

func evaluateNotVisible(def Definition, m Match) (bool, string) {
	if m.Found && m.Element.Bounds.Area() > 0 {
		return false, fmt.Sprintf(
			"found %q at %s but expected it absent",
			def.Target, m.Element.Bounds,
		)
	}
	return true, fmt.Sprintf("%q is not visible", def.Target)
}

// stateCheck builds an evaluator for a boolean element state.
func stateCheck(
	name string,
	want bool,
	state func(Match) bool,
) Evaluator {
	return func(def Definition, m Match) (bool, string) {
		if state(m) == want {
			return true, fmt.Sprintf("%q is %s", def.Target, name)
		}
		return false, fmt.Sprintf(
			"found %q but it is not %s", def.Target, name,
		)
	}
}

var (
	evaluateChecked = stateCheck("checked", true,
		func(m Match) bool { return m.Element.Checked })
	evaluateNotChecked = stateCheck("unchecked", false,
		func(m Match) bool { return m.Element.Checked })
	evaluateEnabled = stateCheck("enabled", true,
		func(m Match) bool { return m.Element.Enabled })
	evaluateDisabled = stateCheck("disabled", false,
		func(m Match) bool { return m.Element.Enabled })
	evaluateSelected = stateCheck("selected", true,
		func(m Match) bool { return m.Element.Selected })
	evaluateFocused = stateCheck("focused", true,
		func(m Match) bool { return m.Element.Focused })
	evaluateClickable = stateCheck("clickable", true,
		func(m Match) bool { return m.Element.Clickable })
)

// evaluateTextEquals compares the element label to Expected,
// case-insensitively.
func evaluateTextEquals(def Definition, m Match) (bool, string) {
	label := m.Element.Label()
	got, want := strings.TrimSpace(label), strings.TrimSpace(def.Expected)
	if strings.EqualFold(got, want) {
		return true, fmt.Sprintf("%q reads %q", def.Target, label)
	}
	return false, fmt.Sprintf(
		"found %q but its text %q does not equal %q",
		def.Target, label, def.Expected,
	)
}

// evaluateTextContains checks the element label contains
// Expected, case-insensitively.
func evaluateTextContains(def Definition, m Match) (bool, string) {
	label := m.Element.Label()
	if strings.Contains(strings.ToLower(label), strings.ToLower(def.Expected)) {
		return true, fmt.Sprintf("%q contains %q", def.Target, def.Expected)
	}
	return false, fmt.Sprintf(
		"found %q but its text %q does not contain %q",
		def.Target, label, def.Expected,
	)
}
