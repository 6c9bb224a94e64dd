package executor

import (
	"context"
	"strings"

	"digital.vasic.mobileqa/pkg/logging"
	"digital.vasic.mobileqa/pkg/qa"
	"digital.vasic.mobileqa/pkg/uitree"
)

// DefaultDialogTexts are the buttons of permission prompts,
// onboarding sheets and similar interruptions, in the order they
// are tried.
var DefaultDialogTexts = []string{
	"Allow",
	"ALLOW",
	"While using the app",
	"Continue",
	"Continue without sync",
	"Not now",
	"OK",
	"Got it",
	"USE THIS FOLDER",
	"Grant",
	"Permit",
}

// Dismissal is one dialog button tapped before an action.
type Dismissal struct {
	Label string `json:"label"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
}

func dismissedLabels(ds []Dismissal) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Label
	}
	return out
}

// dismissDialogs taps known dialog buttons until none is left,
// the cap is reached or a location would be tapped twice. A
// button whose label is the tap target of a itself is left alone.
func (e *Executor) dismissDialogs(
	ctx context.Context,
	a qa.Action,
) []Dismissal {
	var out []Dismissal
	seen := make(map[Dismissal]bool)

	for len(out) < e.cfg.MaxDismissals {
		if ctx.Err() != nil {
			break
		}
		tree, err := e.dev.DumpUITree(ctx)
		if err != nil {
			e.logger.Debug("dialog check skipped", logging.ErrorField(err))
			break
		}
		d, ok := findDialogButton(tree, e.cfg.DialogTexts, a, seen)
		if !ok {
			break
		}
		if _, err := e.dev.TapXY(ctx, d.X, d.Y); err != nil {
			e.logger.Warn("dialog dismissal failed",
				logging.StringField("label", d.Label),
				logging.ErrorField(err),
			)
			break
		}
		seen[d] = true
		out = append(out, d)
		e.logger.Info("dismissed dialog",
			logging.StringField("label", d.Label),
			logging.IntField("x", d.X),
			logging.IntField("y", d.Y),
		)
	}
	return out
}

func findDialogButton(
	tree *uitree.Tree, texts []string, a qa.Action, seen map[Dismissal]bool,
) (Dismissal, bool) {
	if tree == nil {
		return Dismissal{}, false
	}
	for _, want := range texts {
		if a.Kind == qa.KindTapByText && strings.EqualFold(a.Text, want) {
			continue
		}
		for _, el := range tree.Elements {
			if el.Bounds.Area() == 0 || !el.Enabled {
				continue
			}
			if el.Text != want && el.ContentDesc != want {
				continue
			}
			x, y := el.Bounds.Center()
			d := Dismissal{Label: want, X: x, Y: y}
			if seen[d] {
				continue
			}
			return d, true
		}
	}
	return Dismissal{}, false
}
