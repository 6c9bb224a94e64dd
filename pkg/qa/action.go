package qa

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidAction is wrapped by every action validation error.
var ErrInvalidAction = errors.New("invalid action")

// ActionKind tags the Action variant.
type ActionKind string

// Action kinds.
const (
	KindTapByText ActionKind = "tap_by_text"
	KindTapXY     ActionKind = "tap_xy"
	KindInputText ActionKind = "input_text"
	KindSwipe     ActionKind = "swipe"
	KindKeyEvent  ActionKind = "keyevent"
	KindAssert    ActionKind = "assert"
	KindWait      ActionKind = "wait"
	KindDone      ActionKind = "done"
	KindFail      ActionKind = "fail"
)

// Kinds lists every valid kind in prompt order.
var Kinds = []ActionKind{
	KindTapByText, KindTapXY, KindInputText, KindSwipe,
	KindKeyEvent, KindWait, KindAssert, KindFail, KindDone,
}

// IsInteraction reports whether the kind drives the device and
// is therefore retried on transient failure.
func (k ActionKind) IsInteraction() bool {
	switch k {
	case KindTapByText, KindTapXY, KindInputText,
		KindSwipe, KindKeyEvent:
		return true
	}
	return false
}

func (k ActionKind) valid() bool {
	for _, v := range Kinds {
		if v == k {
			return true
		}
	}
	return false
}

// Input field selectors for input_text.
const (
	FieldAny   = ""
	FieldTitle = "title"
	FieldBody  = "body"
)

// Swipe directions.
const (
	SwipeUp    = "up"
	SwipeDown  = "down"
	SwipeLeft  = "left"
	SwipeRight = "right"
)

// Wait bounds in seconds.
const (
	DefaultWaitSeconds = 1.0
	MaxWaitSeconds     = 10.0
)

// KeyCodes maps the accepted key names to Android keycodes.
var KeyCodes = map[string]int{
	"BACK":   4,
	"HOME":   3,
	"ENTER":  66,
	"DEL":    67,
	"DELETE": 67,
	"TAB":    61,
	"SPACE":  62,
}

// Keycode resolves a key name or numeric keycode.
func Keycode(key string) (int, bool) {
	key = strings.ToUpper(strings.TrimSpace(key))
	if code, ok := KeyCodes[key]; ok {
		return code, true
	}
	code, err := strconv.Atoi(key)
	if err != nil || code < 0 {
		return 0, false
	}
	return code, true
}

// AssertSpec is the predicate of an assert action. Condition is
// always the natural-language form; Target and Check optionally
// give a structured predicate evaluated locally.
type AssertSpec struct {
	Condition string `json:"condition"`
	Target    string `json:"target,omitempty"`
	Check     string `json:"check,omitempty"`
	Expected  string `json:"expected,omitempty"`
}

// Structured reports whether the predicate can be evaluated
// without a model.
func (a AssertSpec) Structured() bool {
	return a.Target != ""
}

// Action is one planned step. Only the fields of its Kind are
// meaningful. Build actions through the New* constructors or
// ParseAction so the kind-specific fields are validated.
type Action struct {
	Kind        ActionKind
	Description string

	Text      string
	X, Y      int
	FieldType string
	Direction string
	Key       string
	Assert    AssertSpec
	Seconds   float64
	Reason    string
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidAction, fmt.Sprintf(format, args...))
}

// Validate checks the kind-specific fields.
func (a Action) Validate() error {
	switch a.Kind {
	case KindTapByText:
		if strings.TrimSpace(a.Text) == "" {
			return invalid("tap_by_text requires a non-empty params.text")
		}
	case KindTapXY:
		if a.X < 0 || a.Y < 0 {
			return invalid(
				"tap_xy coordinates must be non-negative, got (%d, %d)",
				a.X, a.Y)
		}
	case KindInputText:
		switch a.FieldType {
		case FieldAny, FieldTitle, FieldBody:
		default:
			return invalid(
				"input_text params.field_type must be title or body, got %q",
				a.FieldType)
		}
	case KindSwipe:
		switch a.Direction {
		case SwipeUp, SwipeDown, SwipeLeft, SwipeRight:
		default:
			return invalid(
				"swipe params.direction must be one of up, down, left, "+
					"right, got %q",
				a.Direction)
		}
	case KindKeyEvent:
		if _, ok := Keycode(a.Key); !ok {
			return invalid("keyevent params.key %q is not a known key or keycode", a.Key)
		}
	case KindAssert:
		if a.Assert.Condition == "" && a.Assert.Target == "" {
			return invalid("assert requires params.condition or params.target")
		}
	case KindWait:
		if a.Seconds <= 0 || a.Seconds > MaxWaitSeconds {
			return invalid("wait params.seconds must be in (0, %g], got %g",
				MaxWaitSeconds, a.Seconds)
		}
	case KindFail:
		if a.Reason == "" {
			return invalid("fail requires params.reason")
		}
	case KindDone:
	default:
		return invalid("unknown action_type %q", a.Kind)
	}
	return nil
}

func build(a Action) (Action, error) {
	if a.Description == "" {
		a.Description = a.Summary()
	}
	if err := a.Validate(); err != nil {
		return Action{}, err
	}
	return a, nil
}

// NewTapByText builds a tap_by_text action.
func NewTapByText(text, description string) (Action, error) {
	return build(Action{Kind: KindTapByText, Text: text, Description: description})
}

// NewTapXY builds a tap_xy action.
func NewTapXY(x, y int, description string) (Action, error) {
	return build(Action{Kind: KindTapXY, X: x, Y: y, Description: description})
}

// NewInputText builds an input_text action.
func NewInputText(text, fieldType, description string) (Action, error) {
	return build(Action{
		Kind: KindInputText, Text: text,
		FieldType: strings.ToLower(fieldType), Description: description,
	})
}

// NewSwipe builds a swipe action.
func NewSwipe(direction, description string) (Action, error) {
	return build(Action{
		Kind:        KindSwipe,
		Direction:   strings.ToLower(direction),
		Description: description,
	})
}

// NewKeyEvent builds a keyevent action.
func NewKeyEvent(key, description string) (Action, error) {
	return build(Action{
		Kind:        KindKeyEvent,
		Key:         strings.ToUpper(strings.TrimSpace(key)),
		Description: description,
	})
}

// NewAssert builds an assert action.
func NewAssert(spec AssertSpec, description string) (Action, error) {
	if spec.Condition == "" {
		spec.Condition = description
	}
	return build(Action{Kind: KindAssert, Assert: spec, Description: description})
}

// NewWait builds a wait action. Zero seconds means the default.
func NewWait(seconds float64, description string) (Action, error) {
	if seconds == 0 {
		seconds = DefaultWaitSeconds
	}
	return build(Action{
		Kind:        KindWait,
		Seconds:     seconds,
		Description: description,
	})
}

// NewDone builds a done action.
func NewDone(description string) Action {
	a, _ := build(Action{Kind: KindDone, Description: description})
	return a
}

// NewFail builds a fail action.
func NewFail(reason, description string) (Action, error) {
	return build(Action{Kind: KindFail, Reason: reason, Description: description})
}

// Summary renders a short description of the action used when
// the planner did not provide one.
func (a Action) Summary() string {
	switch a.Kind {
	case KindTapByText:
		return fmt.Sprintf("tap %q", a.Text)
	case KindTapXY:
		return fmt.Sprintf("tap at (%d, %d)", a.X, a.Y)
	case KindInputText:
		if a.FieldType != "" {
			return fmt.Sprintf("type %q into %s", a.Text, a.FieldType)
		}
		return fmt.Sprintf("type %q", a.Text)
	case KindSwipe:
		return "swipe " + a.Direction
	case KindKeyEvent:
		return "press " + a.Key
	case KindAssert:
		return "assert " + a.Assert.Condition
	case KindWait:
		return fmt.Sprintf("wait %gs", a.Seconds)
	case KindFail:
		return "fail: " + a.Reason
	case KindDone:
		return "test goal achieved"
	}
	return string(a.Kind)
}

// Params returns the kind-specific wire parameters.
func (a Action) Params() map[string]any {
	p := map[string]any{}
	switch a.Kind {
	case KindTapByText:
		p["text"] = a.Text
	case KindTapXY:
		p["x"] = a.X
		p["y"] = a.Y
	case KindInputText:
		p["text"] = a.Text
		if a.FieldType != "" {
			p["field_type"] = a.FieldType
		}
	case KindSwipe:
		p["direction"] = a.Direction
	case KindKeyEvent:
		p["key"] = a.Key
	case KindAssert:
		p["condition"] = a.Assert.Condition
		if a.Assert.Target != "" {
			p["target"] = a.Assert.Target
		}
		if a.Assert.Check != "" {
			p["check"] = a.Assert.Check
		}
		if a.Assert.Expected != "" {
			p["expected"] = a.Assert.Expected
		}
	case KindWait:
		p["seconds"] = a.Seconds
	case KindFail:
		p["reason"] = a.Reason
	}
	return p
}

type wireAction struct {
	ActionType  string         `json:"action_type"`
	Description string         `json:"description"`
	Params      map[string]any `json:"params"`
}

// MarshalJSON encodes the action in its wire form.
func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireAction{
		ActionType:  string(a.Kind),
		Description: a.Description,
		Params:      a.Params(),
	})
}

// UnmarshalJSON decodes and validates the wire form.
func (a *Action) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	parsed, err := ParseAction(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAction validates a decoded provider object and builds the
// matching Action. Any shape mismatch returns an error wrapping
// ErrInvalidAction.
func ParseAction(raw map[string]any) (Action, error) {
	if raw == nil {
		return Action{}, invalid("empty action object")
	}
	kindStr, ok := raw["action_type"].(string)
	if !ok || kindStr == "" {
		return Action{}, invalid("missing action_type")
	}
	kind := ActionKind(strings.ToLower(strings.TrimSpace(kindStr)))
	if !kind.valid() {
		names := make([]string, len(Kinds))
		for i, k := range Kinds {
			names[i] = string(k)
		}
		return Action{}, invalid(
			"unknown action_type %q, use one of: %s",
			kindStr, strings.Join(names, ", "),
		)
	}

	desc, _ := raw["description"].(string)
	params := map[string]any{}
	if p, present := raw["params"]; present && p != nil {
		m, ok := p.(map[string]any)
		if !ok {
			return Action{}, invalid("params must be an object")
		}
		params = m
	}

	switch kind {
	case KindTapByText:
		text, err := stringParam(params, "text", true)
		if err != nil {
			return Action{}, err
		}
		return NewTapByText(text, desc)
	case KindTapXY:
		x, err := intParam(params, "x")
		if err != nil {
			return Action{}, err
		}
		y, err := intParam(params, "y")
		if err != nil {
			return Action{}, err
		}
		return NewTapXY(x, y, desc)
	case KindInputText:
		text, err := stringParam(params, "text", true)
		if err != nil {
			return Action{}, err
		}
		field, err := stringParam(params, "field_type", false)
		if err != nil {
			return Action{}, err
		}
		return NewInputText(text, field, desc)
	case KindSwipe:
		dir, err := stringParam(params, "direction", true)
		if err != nil {
			return Action{}, err
		}
		return NewSwipe(dir, desc)
	case KindKeyEvent:
		key, err := keyParam(params)
		if err != nil {
			return Action{}, err
		}
		return NewKeyEvent(key, desc)
	case KindAssert:
		var spec AssertSpec
		for name, dst := range map[string]*string{
			"condition": &spec.Condition,
			"target":    &spec.Target,
			"check":     &spec.Check,
			"expected":  &spec.Expected,
		} {
			v, err := stringParam(params, name, false)
			if err != nil {
				return Action{}, err
			}
			*dst = v
		}
		return NewAssert(spec, desc)
	case KindWait:
		secs := 0.0
		if _, present := params["seconds"]; present {
			v, err := floatParam(params, "seconds")
			if err != nil {
				return Action{}, err
			}
			secs = v
		}
		return NewWait(secs, desc)
	case KindFail:
		reason, err := stringParam(params, "reason", false)
		if err != nil {
			return Action{}, err
		}
		if reason == "" {
			reason = desc
		}
		return NewFail(reason, desc)
	default:
		return NewDone(desc), nil
	}
}

func stringParam(
	params map[string]any,
	name string,
	required bool,
) (string, error) {
	v, present := params[name]
	if !present || v == nil {
		if required {
			return "", invalid("missing params.%s", name)
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", invalid("params.%s must be a string, got %T", name, v)
	}
	return s, nil
}

func floatParam(params map[string]any, name string) (float64, error) {
	v, present := params[name]
	if !present || v == nil {
		return 0, invalid("missing params.%s", name)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, invalid("params.%s is not numeric: %v", name, err)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, invalid("params.%s is not numeric: %q", name, n)
		}
		return f, nil
	}
	return 0, invalid("params.%s must be numeric, got %T", name, v)
}

func intParam(params map[string]any, name string) (int, error) {
	f, err := floatParam(params, name)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, invalid("params.%s must be finite", name)
	}
	return int(f), nil
}

func keyParam(params map[string]any) (string, error) {
	v, present := params["key"]
	if !present || v == nil {
		return "", invalid("missing params.key")
	}
	switch k := v.(type) {
	case string:
		return k, nil
	case float64:
		return strconv.Itoa(int(k)), nil
	case int:
		return strconv.Itoa(k), nil
	}
	return "", invalid("params.key must be a name or keycode, got %T", v)
}
