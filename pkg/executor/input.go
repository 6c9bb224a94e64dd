package executor

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"digital.vasic.mobileqa/pkg/qa"
	"digital.vasic.mobileqa/pkg/uitree"
)

// Android keycodes used while clearing a field.
const (
	keycodeCtrlLeft = 113
	keycodeA        = 29
	keycodeMoveEnd  = 123
)

// inputText focuses the chosen field, clears it and types. An
// error is a device failure and is retried; a missing field is
// an unsuccessful result.
func (e *Executor) inputText(
	ctx context.Context,
	a qa.Action,
) (qa.ExecutionResult, error) {
	tree, err := e.dev.DumpUITree(ctx)
	if err != nil {
		return qa.ExecutionResult{}, err
	}
	fields := tree.EditTexts()
	if len(fields) == 0 {
		return qa.ActionFailed(
			"No EditText field found on screen",
			"cannot type text without an input field",
		), nil
	}

	target := chooseField(fields, a.FieldType)
	x, y := target.Bounds.Center()
	if _, err := e.dev.TapXY(ctx, x, y); err != nil {
		return qa.ExecutionResult{}, err
	}
	if err := e.clearField(ctx, target); err != nil {
		return qa.ExecutionResult{}, err
	}

	if a.Text != "" {
		out, err := e.dev.InputText(ctx, a.Text)
		if err != nil {
			return qa.ExecutionResult{}, err
		}
		if !out.Success {
			return qa.ActionFailed("Text input failed", out.Message), nil
		}
	}

	if a.FieldType == qa.FieldTitle {
		if _, err := e.dev.KeyEvent(ctx, "ENTER"); err != nil {
			return qa.ExecutionResult{}, err
		}
	}

	label := a.FieldType
	if label == "" {
		label = "EditText"
	}
	return qa.Succeeded(fmt.Sprintf("Typed text into %s: %s", label, a.Text)).
		With(qa.DataField, label).
		With(qa.DataBounds, target.Bounds.String()), nil
}

// clearField selects all and deletes. Devices without key chord
// support get MOVE_END and one DEL per existing character.
func (e *Executor) clearField(ctx context.Context, field uitree.Element) error {
	if _, err := e.dev.KeyCombination(ctx, keycodeCtrlLeft, keycodeA); err == nil {
		_, err := e.dev.KeyEvent(ctx, "DEL")
		return err
	}
	if _, err := e.dev.KeyEvent(ctx, strconv.Itoa(keycodeMoveEnd)); err != nil {
		return err
	}
	for range len([]rune(field.Text)) {
		if _, err := e.dev.KeyEvent(ctx, "DEL"); err != nil {
			return err
		}
	}
	return nil
}

// chooseField picks the EditText for a field type: title is the
// "Untitled" field or the topmost, body the largest field other
// than the title, and the default the focused or topmost field.
func chooseField(fields []uitree.Element, fieldType string) uitree.Element {
	byTop := append([]uitree.Element(nil), fields...)
	sort.SliceStable(byTop, func(i, j int) bool {
		return byTop[i].Bounds.Top < byTop[j].Bounds.Top
	})

	switch fieldType {
	case qa.FieldTitle:
		return titleField(byTop)
	case qa.FieldBody:
		if len(byTop) == 1 {
			return byTop[0]
		}
		title := titleField(byTop)
		var best uitree.Element
		found := false
		for _, f := range byTop {
			if f.Bounds == title.Bounds {
				continue
			}
			if !found || f.Bounds.Area() > best.Bounds.Area() {
				best, found = f, true
			}
		}
		if found {
			return best
		}
		return byTop[len(byTop)-1]
	}

	for _, f := range byTop {
		if f.Focused {
			return f
		}
	}
	return byTop[0]
}

func titleField(byTop []uitree.Element) uitree.Element {
	for _, f := range byTop {
		if strings.Contains(strings.ToLower(f.Text), "untitled") {
			return f
		}
	}
	return byTop[0]
}
