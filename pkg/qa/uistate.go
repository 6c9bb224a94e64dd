package qa

import (
	"strconv"
	"time"

	"digital.vasic.mobileqa/pkg/uitree"
)

// UIState is a read-only snapshot of the screen captured before
// or after an action.
type UIState struct {
	// ScreenshotPath references the captured PNG, empty when no
	// screenshot was taken.
	ScreenshotPath string `json:"screenshot_path,omitempty"`

	// Tree is the parsed view hierarchy. Nil on capture failure.
	Tree *uitree.Tree `json:"-"`

	// Summary is the compact element listing given to models.
	Summary string `json:"summary"`

	// Fingerprint identifies the summary content.
	Fingerprint uint64 `json:"fingerprint"`

	// CapturedAt is the capture time.
	CapturedAt time.Time `json:"captured_at"`

	// Error notes a failed capture. The state is then empty.
	Error string `json:"error,omitempty"`
}

// NewUIState builds a snapshot from a parsed tree.
func NewUIState(tree *uitree.Tree, screenshot string) UIState {
	return UIState{
		ScreenshotPath: screenshot,
		Tree:           tree,
		Summary:        tree.Summary(),
		Fingerprint:    tree.Fingerprint(),
		CapturedAt:     time.Now(),
	}
}

// FailedUIState returns an empty snapshot carrying the capture
// error.
func FailedUIState(err error) UIState {
	s := UIState{CapturedAt: time.Now()}
	if err != nil {
		s.Error = err.Error()
	}
	return s
}

// Captured reports whether the snapshot holds a tree.
func (s UIState) Captured() bool {
	return s.Tree != nil && s.Error == ""
}

// PromptSummary returns the summary for inclusion in prompts,
// with a marker for blank or failed captures.
func (s UIState) PromptSummary() string {
	switch {
	case s.Error != "":
		return "(UI capture failed: " + s.Error + ")"
	case s.Summary == "":
		return "(no interactive elements - screen may be blank or loading)"
	}
	return s.Summary
}

// FingerprintHex renders the fingerprint for logs.
func (s UIState) FingerprintHex() string {
	return strconv.FormatUint(s.Fingerprint, 16)
}
