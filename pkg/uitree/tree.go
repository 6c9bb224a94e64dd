package uitree

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ErrEmptyDump is returned when a window dump holds no hierarchy.
var ErrEmptyDump = errors.New("ui dump contains no hierarchy")

// Tree is a flattened view hierarchy in document order.
type Tree struct {
	Elements []Element `json:"elements"`
}

// Parse decodes a uiautomator window dump.
func Parse(data []byte) (*Tree, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyDump
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	tree := &Tree{}
	depth := 0
	sawHierarchy := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse ui dump: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "hierarchy":
				sawHierarchy = true
			case "node":
				tree.Elements = append(tree.Elements, elementFromAttrs(t.Attr, depth))
				depth++
			}
		case xml.EndElement:
			if t.Name.Local == "node" && depth > 0 {
				depth--
			}
		}
	}

	if !sawHierarchy && len(tree.Elements) == 0 {
		return nil, ErrEmptyDump
	}
	return tree, nil
}

func elementFromAttrs(attrs []xml.Attr, depth int) Element {
	el := Element{Depth: depth, Enabled: true}
	for _, a := range attrs {
		v := a.Value
		switch a.Name.Local {
		case "index":
			el.Index, _ = strconv.Atoi(v)
		case "text":
			el.Text = v
		case "resource-id":
			el.ResourceID = v
		case "class":
			el.Class = v
		case "package":
			el.Package = v
		case "content-desc":
			el.ContentDesc = v
		case "checkable":
			el.Checkable = v == "true"
		case "checked":
			el.Checked = v == "true"
		case "clickable":
			el.Clickable = v == "true"
		case "enabled":
			el.Enabled = v != "false"
		case "focusable":
			el.Focusable = v == "true"
		case "focused":
			el.Focused = v == "true"
		case "scrollable":
			el.Scrollable = v == "true"
		case "long-clickable":
			el.LongClickable = v == "true"
		case "password":
			el.Password = v == "true"
		case "selected":
			el.Selected = v == "true"
		case "bounds":
			// A node with unreadable bounds keeps zero bounds.
			if b, err := ParseBounds(v); err == nil {
				el.Bounds = b
			}
		}
	}
	return el
}

// Len returns the number of elements.
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Elements)
}

// FindByText returns every element whose text or content
// description contains text, case-insensitively, in document order.
func (t *Tree) FindByText(text string) []Element {
	if t == nil || text == "" {
		return nil
	}
	needle := strings.ToLower(text)
	var out []Element
	for _, el := range t.Elements {
		if strings.Contains(strings.ToLower(el.Text), needle) ||
			strings.Contains(strings.ToLower(el.ContentDesc), needle) {
			out = append(out, el)
		}
	}
	return out
}

// BestMatch resolves text to the most specific matching element.
// Matches are ranked exact > case-insensitive exact > substring;
// inside the winning tier the smallest element by area wins, then
// document order. Zero-area matches are only used when nothing
// visible matches.
func (t *Tree) BestMatch(text string) (Element, bool) {
	matches := t.FindByText(text)
	if len(matches) == 0 {
		return Element{}, false
	}

	visible := matches[:0:0]
	for _, m := range matches {
		if m.Bounds.Area() > 0 {
			visible = append(visible, m)
		}
	}
	if len(visible) > 0 {
		matches = visible
	}

	sort.SliceStable(matches, func(i, j int) bool {
		ti, tj := matchTier(matches[i], text), matchTier(matches[j], text)
		if ti != tj {
			return ti < tj
		}
		return matches[i].Bounds.Area() < matches[j].Bounds.Area()
	})
	return matches[0], true
}

// matchTier ranks how closely an element's label matches text:
// 0 exact, 1 case-insensitive exact, 2 substring.
func matchTier(el Element, text string) int {
	switch {
	case el.Text == text || el.ContentDesc == text:
		return 0
	case strings.EqualFold(el.Text, text),
		strings.EqualFold(el.ContentDesc, text):
		return 1
	}
	return 2
}

// EditTexts returns the enabled text input fields.
func (t *Tree) EditTexts() []Element {
	if t == nil {
		return nil
	}
	var out []Element
	for _, el := range t.Elements {
		if el.Editable() && el.Enabled {
			out = append(out, el)
		}
	}
	return out
}

// ContainsText reports whether any element label contains s,
// case-insensitively.
func (t *Tree) ContainsText(s string) bool {
	return len(t.FindByText(s)) > 0
}

// Summary renders the interesting elements (labelled, clickable or
// editable), one per line, in the format the planner prompt uses.
func (t *Tree) Summary() string {
	if t == nil {
		return ""
	}
	var lines []string
	for _, el := range t.Elements {
		if el.Text == "" && el.ContentDesc == "" &&
			!el.Clickable && !el.Editable() {
			continue
		}
		lines = append(lines, summaryLine(el))
	}
	return strings.Join(lines, "\n")
}

func summaryLine(el Element) string {
	var parts []string
	if el.Text != "" {
		parts = append(parts, fmt.Sprintf("text=%q", el.Text))
	}
	if el.ContentDesc != "" {
		parts = append(parts, fmt.Sprintf("desc=%q", el.ContentDesc))
	}
	if id := el.ShortID(); id != "" {
		parts = append(parts, "id="+id)
	}

	var flags []string
	if el.Editable() {
		flags = append(flags, "editable")
	}
	if el.Clickable {
		flags = append(flags, "clickable")
	}
	if el.Scrollable {
		flags = append(flags, "scrollable")
	}
	if el.Focused {
		flags = append(flags, "focused")
	}
	if el.Checked {
		flags = append(flags, "checked")
	}
	if el.Selected {
		flags = append(flags, "selected")
	}
	if !el.Enabled {
		flags = append(flags, "disabled")
	}
	if len(flags) > 0 {
		parts = append(parts, "["+strings.Join(flags, ",")+"]")
	}

	parts = append(parts, "bounds="+el.Bounds.String())
	return strings.Join(parts, " ")
}

// Fingerprint hashes the summary. Two trees with the same
// fingerprint look identical to the planner.
func (t *Tree) Fingerprint() uint64 {
	return xxhash.Sum64String(t.Summary())
}
