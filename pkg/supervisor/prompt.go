package supervisor

import (
	"fmt"
	"strings"

	"digital.vasic.mobileqa/pkg/qa"
)

const goalRules = `VERIFICATION RULES:
1. Notes with a title and a body: the title field must hold the requested
   title (not "Untitled") and the body the requested text. Either missing
   means the goal is not achieved.
2. Vault creation: the app must be inside the vault (e.g. "Create new
   note" visible), not merely past the Create button.
3. Settings checks: the named settings screen must be open and the named
   property must be visible and match.`

const goalAnswer = `{"goal_achieved": true or false,
 "explanation": "what was found versus what was expected"}`

const assertionAnswer = `{"assertion_holds": true or false,
 "explanation": "short reason"}`

const detectionAnswer = `{"subgoals": [
  {"id": "subgoal_1", "achieved": true or false,
   "confidence": 0.0 to 1.0, "evidence": "what shows it"}
]}`

func goalPrompt(goal string, post qa.UIState) string {
	var b strings.Builder
	b.WriteString("You are verifying the final state of a mobile app test.\n\n")
	fmt.Fprintf(&b, "TEST GOAL: %s\n\n", goal)
	b.WriteString("The agent claims the goal is complete. ")
	b.WriteString("Decide independently whether the current screen ")
	b.WriteString("shows every requirement of the goal satisfied.\n\n")
	fmt.Fprintf(&b, "CURRENT UI STATE:\n%s\n\n", post.PromptSummary())
	b.WriteString(goalRules)
	b.WriteString("\n\nAnswer with:\n")
	b.WriteString(goalAnswer)
	return b.String()
}

func assertionPrompt(goal, condition string, post qa.UIState) string {
	var b strings.Builder
	b.WriteString("You are verifying a test assertion for a mobile app.\n\n")
	fmt.Fprintf(&b, "TEST GOAL: %s\n\n", goal)
	fmt.Fprintf(&b, "ASSERTION: %s\n\n", condition)
	fmt.Fprintf(&b, "CURRENT UI STATE:\n%s\n\n", post.PromptSummary())
	b.WriteString("Decide from the screen alone ")
	b.WriteString("whether the assertion is true.\n\n")
	b.WriteString("Answer with:\n")
	b.WriteString(assertionAnswer)
	return b.String()
}

func detectionPrompt(
	goal string, step int, a qa.Action, res qa.ExecutionResult,
	post qa.UIState, pending []qa.Subgoal,
) string {
	var b strings.Builder
	b.WriteString("You are tracking progress of a mobile app test ")
	b.WriteString("against its subgoals.\n\n")
	fmt.Fprintf(&b, "TEST GOAL: %s\n\n", goal)
	fmt.Fprintf(&b, "STEP %d ACTION: %s (%s)\n", step, a.Description, a.Kind)
	outcome := "succeeded"
	if !res.Success {
		outcome = "failed"
	}
	fmt.Fprintf(&b, "RESULT: %s - %s\n\n", outcome, res.Message)
	fmt.Fprintf(&b, "UI STATE AFTER THE ACTION:\n%s\n\n", post.PromptSummary())

	b.WriteString("PENDING SUBGOALS:\n")
	for _, sg := range pending {
		fmt.Fprintf(&b, "- %s: %s (detected when: %s)\n",
			sg.ID, sg.Description, sg.Criterion)
	}
	b.WriteString("\nJudge each pending subgoal on its own against ")
	b.WriteString("this evidence. Several may be achieved at once, or ")
	b.WriteString("none. Mark one achieved only when the screen or the ")
	b.WriteString("action clearly shows it.\n\n")
	b.WriteString("Answer with:\n")
	b.WriteString(detectionAnswer)
	return b.String()
}
