package reward

import (
	"fmt"
	"strings"

	"digital.vasic.mobileqa/pkg/qa"
)

const decomposeGuide = `SUBGOAL RULES:
1. Every subgoal must be observable: a UI change or a specific action.
2. Order them as they would normally be reached.
3. One observable achievement per subgoal.
4. Mix action subgoals ("Settings opened") and state subgoals
   ("Settings screen is visible").

EXAMPLE
Goal: "Create a new note titled 'Meeting Notes' and type 'Daily Standup'
into the body"
Subgoals:
- "Note creation started" - the 'Create new note' button was tapped
- "Editor open" - title and body fields are visible
- "Title entered" - 'Meeting Notes' is in the title field
- "Body entered" - 'Daily Standup' is in the body field
- "Note shows both" - title and body read correctly

EXAMPLE
Goal: "Find and tap 'Print to PDF' in the file menu"
Subgoals:
- "Note open" - a note is visible
- "Menu open" - the more-options menu is showing
- "Menu inspected" - the menu items were read
- "Missing option reported" - a fail action reported the option absent`

const decomposeSchema = `{
  "subgoals": [
    {
      "id": "subgoal_1",
      "description": "what is achieved",
      "detection_criteria": "how to recognise it (UI shows X,
        action Y executed, text Z visible)"
    }
  ]
}`

func buildDecomposePrompt(
	goal string,
	ui qa.UIState,
	minN, maxN int,
) string {
	var b strings.Builder
	b.WriteString("You are breaking a mobile app test goal into ")
	b.WriteString("measurable intermediate subgoals.\n\n")
	fmt.Fprintf(&b, "TEST GOAL:\n%s\n\n", goal)
	fmt.Fprintf(&b, "INITIAL UI STATE:\n%s\n\n", ui.PromptSummary())
	fmt.Fprintf(&b, "Decompose the goal into %d to %d subgoals "+
		"that mark progress toward it.\n\n", minN, maxN)
	b.WriteString(decomposeGuide)
	b.WriteString("\n\nAnswer with this JSON structure:\n")
	b.WriteString(decomposeSchema)
	return b.String()
}
