// Package uitree models the Android view hierarchy captured by
// uiautomator. It parses window dumps, searches elements by visible
// text and renders the compact summaries fed to the planner.
package uitree

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Bounds is an on-screen rectangle in device pixels.
type Bounds struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

var boundsPattern = regexp.MustCompile(
	`^\[(-?\d+),(-?\d+)\]\[(-?\d+),(-?\d+)\]$`,
)

// ParseBounds parses the uiautomator "[left,top][right,bottom]"
// notation.
func ParseBounds(s string) (Bounds, error) {
	m := boundsPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Bounds{}, fmt.Errorf("malformed bounds %q", s)
	}
	vals := make([]int, 4)
	for i := range vals {
		v, err := strconv.Atoi(m[i+1])
		if err != nil {
			return Bounds{}, fmt.Errorf(
				"malformed bounds %q: %w", s, err,
			)
		}
		vals[i] = v
	}
	return Bounds{
		Left: vals[0], Top: vals[1],
		Right: vals[2], Bottom: vals[3],
	}, nil
}

// Width returns the horizontal extent, never negative.
func (b Bounds) Width() int {
	if b.Right < b.Left {
		return 0
	}
	return b.Right - b.Left
}

// Height returns the vertical extent, never negative.
func (b Bounds) Height() int {
	if b.Bottom < b.Top {
		return 0
	}
	return b.Bottom - b.Top
}

// Area returns Width*Height.
func (b Bounds) Area() int {
	return b.Width() * b.Height()
}

// Center returns the tap point of the rectangle.
func (b Bounds) Center() (int, int) {
	return (b.Left + b.Right) / 2, (b.Top + b.Bottom) / 2
}

// String renders the bounds in uiautomator notation.
func (b Bounds) String() string {
	return fmt.Sprintf(
		"[%d,%d][%d,%d]", b.Left, b.Top, b.Right, b.Bottom,
	)
}

// Element is a single node of the view hierarchy.
type Element struct {
	Index         int    `json:"index"`
	Depth         int    `json:"depth"`
	Text          string `json:"text,omitempty"`
	ContentDesc   string `json:"content_desc,omitempty"`
	ResourceID    string `json:"resource_id,omitempty"`
	Class         string `json:"class,omitempty"`
	Package       string `json:"package,omitempty"`
	Bounds        Bounds `json:"bounds"`
	Clickable     bool   `json:"clickable,omitempty"`
	LongClickable bool   `json:"long_clickable,omitempty"`
	Enabled       bool   `json:"enabled"`
	Focusable     bool   `json:"focusable,omitempty"`
	Focused       bool   `json:"focused,omitempty"`
	Scrollable    bool   `json:"scrollable,omitempty"`
	Checkable     bool   `json:"checkable,omitempty"`
	Checked       bool   `json:"checked,omitempty"`
	Selected      bool   `json:"selected,omitempty"`
	Password      bool   `json:"password,omitempty"`
}

// Label returns the visible text of the element, falling back to
// its content description.
func (e Element) Label() string {
	if e.Text != "" {
		return e.Text
	}
	return e.ContentDesc
}

// Editable reports whether the element is a text input field.
func (e Element) Editable() bool {
	return strings.Contains(e.Class, "EditText")
}

// ShortID strips the package prefix from the resource id.
func (e Element) ShortID() string {
	if i := strings.LastIndex(e.ResourceID, "/"); i >= 0 {
		return e.ResourceID[i+1:]
	}
	return e.ResourceID
}
