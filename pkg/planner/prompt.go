package planner

import (
	"fmt"
	"strings"

	"digital.vasic.mobileqa/pkg/qa"
)

const actionSchema = `STRICT ACTION SCHEMA
Output exactly one JSON object matching ONE of these:

1. tap_by_text - tap a visible text element
   {"action_type": "tap_by_text", "description": "...",
    "params": {"text": "exact visible text"}}
   - params.text MUST be non-empty and appear in the CURRENT UI STATE
   - prefer this whenever the target has visible text or a content
     description

2. tap_xy - tap pixel coordinates
   {"action_type": "tap_xy", "description": "...",
    "params": {"x": 540, "y": 1000}}
   - integers only; use only when tap_by_text is not possible

3. input_text - type into an input field (focus, clear and type)
   {"action_type": "input_text", "description": "...",
    "params": {"text": "text to type", "field_type": "title"}}
   - input fields are elements marked [editable]
   - field_type "title" targets the note title (often labelled
     "Untitled"); ENTER is pressed afterwards
   - field_type "body" targets the main content area below the title
   - omit field_type for single-field inputs such as a vault name
   - do NOT tap an input field first; use input_text directly

4. swipe
   {"action_type": "swipe", "description": "...",
    "params": {"direction": "up"}}
   - direction is one of up, down, left, right

5. keyevent
   {"action_type": "keyevent", "description": "...",
    "params": {"key": "BACK"}}
   - key is one of BACK, HOME, ENTER, DEL, DELETE, TAB, SPACE or a
     numeric keycode

6. wait
   {"action_type": "wait", "description": "...",
    "params": {"seconds": 1.0}}
   - seconds in (0, 10]

7. assert - verify a condition the test goal asks about
   {"action_type": "assert", "description": "...",
    "params": {"condition": "text 'Welcome' is visible",
               "target": "Welcome", "check": "visible"}}
   - condition is always required
   - add target + check when the condition is about one element;
     check is one of visible, not_visible, enabled, disabled,
     checked, not_checked, selected, focused, clickable,
     text_equals, text_contains (the last two take "expected")
   - a failed assertion ends the test with FAIL_ASSERTION

8. fail - give up because a required element is definitely missing
   {"action_type": "fail", "description": "...",
    "params": {"reason": "Menu option missing"}}
   - only after a thorough search; ends the test with FAIL_ACTION

9. done
   {"action_type": "done", "description": "Test goal achieved",
    "params": {}}`

const rules = `RULES:
- "tap" is NOT a valid action_type; use tap_by_text, tap_xy or
  input_text
- check the CURRENT UI STATE carefully, it may have changed since
  the last action
- do not repeat an action that just succeeded without effect; try
  something else
- common permission popups (Allow, OK, USE THIS FOLDER, ...) are
  dismissed automatically
- to fill a note: first input_text with field_type "title", then
  input_text with field_type "body"
- to reach a setting: open Settings (often a gear icon), then the
  section, then the option
- when searching a menu, open it and inspect every visible item
  before returning fail
- return done ONLY when the goal is visibly satisfied on the
  current screen; it will be re-verified
- return ONE action only`

// buildPrompt renders the planning prompt. feedback, when set,
// carries the error from the previous attempt.
func buildPrompt(
	req Request,
	history []qa.HistoryEntry,
	feedback string,
) string {
	var b strings.Builder
	b.WriteString("You are a QA automation planner for mobile apps. ")
	b.WriteString("Decide the NEXT single action that moves the test ")
	b.WriteString("toward its goal.\n\n")

	fmt.Fprintf(&b, "TEST GOAL:\n%s\n\n", req.Goal)
	fmt.Fprintf(&b, "CURRENT STEP: %d\n\n", req.Step)

	b.WriteString("PREVIOUS ACTIONS:\n")
	b.WriteString(renderHistory(history))
	b.WriteString("\n\n")

	b.WriteString("CURRENT UI STATE ")
	b.WriteString("(interactive elements from the view hierarchy):\n")
	b.WriteString(req.UI.PromptSummary())
	b.WriteString("\n\n")

	if req.UI.ScreenshotPath != "" {
		b.WriteString("A screenshot of the current screen is attached.\n\n")
	}

	b.WriteString(actionSchema)
	b.WriteString("\n\n")
	b.WriteString(rules)

	if feedback != "" {
		b.WriteString("\n\nYOUR PREVIOUS RESPONSE WAS REJECTED:\n")
		b.WriteString(feedback)
		b.WriteString("\nFix the problem and answer again ")
		b.WriteString("with a single valid action.")
	}
	return b.String()
}

func renderHistory(history []qa.HistoryEntry) string {
	if len(history) == 0 {
		return "None - this is the first step"
	}
	lines := make([]string, len(history))
	for i, h := range history {
		outcome := "ok"
		if !h.Result.Success {
			outcome = "failed: " + h.Result.Detail()
		} else if h.Result.Message != "" {
			outcome = "ok: " + h.Result.Message
		}
		lines[i] = fmt.Sprintf("%d. [step %d] %s: %s (%s)",
			i+1, h.Step, h.Action.Kind, h.Action.Description, outcome)
	}
	return strings.Join(lines, "\n")
}
