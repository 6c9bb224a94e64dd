// Package devicetest provides a scripted in-memory device.Device
// for tests.
package devicetest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"digital.vasic.mobileqa/pkg/device"
	"digital.vasic.mobileqa/pkg/qa"
	"digital.vasic.mobileqa/pkg/uitree"
)

// Operation names recorded in Call.Op.
const (
	OpTapByText      = "tap_by_text"
	OpTapXY          = "tap_xy"
	OpInputText      = "input_text"
	OpSwipe          = "swipe"
	OpSwipeXY        = "swipe_xy"
	OpKeyEvent       = "key_event"
	OpKeyCombination = "key_combination"
	OpScreenshot     = "screenshot"
	OpDump           = "dump"
	OpScreenSize     = "screen_size"
	OpInstall        = "install"
	OpReset          = "reset"
	OpLaunch         = "launch"
)

// Call is one recorded device operation.
type Call struct {
	Op   string
	Args []string
}

func (c Call) String() string {
	if len(c.Args) == 0 {
		return c.Op
	}
	return c.Op + " " + strings.Join(c.Args, " ")
}

// Fake is a scripted device. DumpUITree returns the current screen.
// When Advance is set every successful interaction moves to the
// next screen; the last screen repeats.
type Fake struct {
	mu      sync.Mutex
	screens []*uitree.Tree
	current int
	calls   []Call
	failing map[string][]error

	Advance bool
	Width   int
	Height  int

	// OnAction runs after every successful interaction.
	OnAction func(f *Fake, c Call)
}

var _ device.Device = (*Fake)(nil)

// New returns a Fake showing the given screens in order.
func New(screens ...*uitree.Tree) *Fake {
	return &Fake{
		screens: screens,
		failing: make(map[string][]error),
		Width:   1080,
		Height:  2400,
	}
}

// MustParse parses a uiautomator dump and panics on error.
func MustParse(dump string) *uitree.Tree {
	t, err := uitree.Parse([]byte(dump))
	if err != nil {
		panic(err)
	}
	return t
}

// Screen builds a tree of clickable buttons stacked vertically.
func Screen(labels ...string) *uitree.Tree {
	t := &uitree.Tree{}
	for i, l := range labels {
		top := 200 + i*150
		t.Elements = append(t.Elements, uitree.Element{
			Index:     i,
			Text:      l,
			Class:     "android.widget.Button",
			Clickable: true,
			Enabled:   true,
			Bounds:    uitree.Bounds{Left: 100, Top: top, Right: 980, Bottom: top + 120},
		})
	}
	return t
}

// FailNext makes the next len(errs) calls of op return errs in order.
func (f *Fake) FailNext(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[op] = append(f.failing[op], errs...)
}

// SetScreens replaces the screen sequence and rewinds to the first.
func (f *Fake) SetScreens(screens ...*uitree.Tree) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.screens = screens
	f.current = 0
}

// Current returns the screen DumpUITree would return now.
func (f *Fake) Current() *uitree.Tree {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.screenLocked()
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo returns the recorded calls of one operation.
func (f *Fake) CallsTo(op string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Interactions renders every recorded call except captures.
func (f *Fake) Interactions() []string {
	var out []string
	for _, c := range f.Calls() {
		switch c.Op {
		case OpScreenshot, OpDump, OpScreenSize:
			continue
		}
		out = append(out, c.String())
	}
	return out
}

func (f *Fake) screenLocked() *uitree.Tree {
	if len(f.screens) == 0 {
		return &uitree.Tree{}
	}
	return f.screens[f.current]
}

// record logs the call and pops a scripted failure, if any.
func (f *Fake) record(op string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: op, Args: args})
	if errs := f.failing[op]; len(errs) > 0 {
		f.failing[op] = errs[1:]
		return errs[0]
	}
	return nil
}

func (f *Fake) interacted(op string, args ...string) {
	f.mu.Lock()
	if f.Advance && f.current < len(f.screens)-1 {
		f.current++
	}
	hook := f.OnAction
	f.mu.Unlock()
	if hook != nil {
		hook(f, Call{Op: op, Args: args})
	}
}

// TapByText taps the best match on the current screen.
func (f *Fake) TapByText(
	_ context.Context,
	text string,
) (device.Outcome, error) {
	if err := f.record(OpTapByText, text); err != nil {
		return device.Outcome{}, err
	}
	el, ok := f.Current().BestMatch(text)
	if !ok {
		return device.Outcome{Message: "Element not found: " + text}, nil
	}
	f.interacted(OpTapByText, text)
	return device.Outcome{
		Success: true,
		Message: fmt.Sprintf("Tapped %q", el.Label()),
		Output:  el.Bounds.String(),
	}, nil
}

// TapXY records a coordinate tap.
func (f *Fake) TapXY(_ context.Context, x, y int) (device.Outcome, error) {
	args := []string{strconv.Itoa(x), strconv.Itoa(y)}
	if err := f.record(OpTapXY, args...); err != nil {
		return device.Outcome{}, err
	}
	f.interacted(OpTapXY, args...)
	return device.Outcome{
		Success: true,
		Message: fmt.Sprintf("Tapped at (%d, %d)", x, y),
	}, nil
}

// InputText records typed text.
func (f *Fake) InputText(
	_ context.Context,
	text string,
) (device.Outcome, error) {
	if err := f.record(OpInputText, text); err != nil {
		return device.Outcome{}, err
	}
	f.interacted(OpInputText, text)
	msg := fmt.Sprintf("Typed %q", text)
	return device.Outcome{Success: true, Message: msg}, nil
}

// Swipe records a directional swipe.
func (f *Fake) Swipe(
	_ context.Context,
	dir device.Direction,
) (device.Outcome, error) {
	if err := f.record(OpSwipe, string(dir)); err != nil {
		return device.Outcome{}, err
	}
	if _, _, _, _, err := device.SwipeVector(dir, f.Width, f.Height); err != nil {
		return device.Outcome{Message: err.Error()}, nil
	}
	f.interacted(OpSwipe, string(dir))
	return device.Outcome{Success: true, Message: "Swiped " + string(dir)}, nil
}

// SwipeXY records a coordinate swipe.
func (f *Fake) SwipeXY(
	_ context.Context,
	x1, y1, x2, y2 int,
	d time.Duration,
) (device.Outcome, error) {
	args := []string{
		strconv.Itoa(x1), strconv.Itoa(y1),
		strconv.Itoa(x2), strconv.Itoa(y2),
		strconv.FormatInt(d.Milliseconds(), 10),
	}
	if err := f.record(OpSwipeXY, args...); err != nil {
		return device.Outcome{}, err
	}
	f.interacted(OpSwipeXY, args...)
	return device.Outcome{Success: true, Message: "Swiped"}, nil
}

// KeyEvent records a key press. Unknown keys fail without an error.
func (f *Fake) KeyEvent(_ context.Context, key string) (device.Outcome, error) {
	if err := f.record(OpKeyEvent, strings.ToUpper(key)); err != nil {
		return device.Outcome{}, err
	}
	if _, ok := qa.Keycode(key); !ok {
		return device.Outcome{Message: "Unknown key: " + key}, nil
	}
	f.interacted(OpKeyEvent, strings.ToUpper(key))
	msg := "Pressed key: " + strings.ToUpper(key)
	return device.Outcome{Success: true, Message: msg}, nil
}

// KeyCombination records a chord.
func (f *Fake) KeyCombination(
	_ context.Context,
	keycodes ...int,
) (device.Outcome, error) {
	var args []string
	for _, c := range keycodes {
		args = append(args, strconv.Itoa(c))
	}
	if err := f.record(OpKeyCombination, args...); err != nil {
		return device.Outcome{}, err
	}
	f.interacted(OpKeyCombination, args...)
	return device.Outcome{Success: true, Message: "Pressed key combination"}, nil
}

// CaptureScreenshot writes a placeholder PNG to path.
func (f *Fake) CaptureScreenshot(
	_ context.Context,
	path string,
) (string, error) {
	if err := f.record(OpScreenshot, filepath.Base(path)); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte("\x89PNG\r\n\x1a\n"), 0644); err != nil {
		return "", err
	}
	return path, nil
}

// DumpUITree returns the current screen.
func (f *Fake) DumpUITree(_ context.Context) (*uitree.Tree, error) {
	if err := f.record(OpDump); err != nil {
		return nil, err
	}
	return f.Current(), nil
}

// ScreenSize returns Width and Height.
func (f *Fake) ScreenSize(_ context.Context) (int, int, error) {
	if err := f.record(OpScreenSize); err != nil {
		return 0, 0, err
	}
	return f.Width, f.Height, nil
}

// InstallApp records an install.
func (f *Fake) InstallApp(_ context.Context, apkPath string) error {
	return f.record(OpInstall, apkPath)
}

// ResetAppData records a data reset.
func (f *Fake) ResetAppData(_ context.Context, pkg string) error {
	return f.record(OpReset, pkg)
}

// LaunchApp records a launch and rewinds to the first screen.
func (f *Fake) LaunchApp(_ context.Context, pkg string) error {
	if err := f.record(OpLaunch, pkg); err != nil {
		return err
	}
	f.mu.Lock()
	f.current = 0
	f.mu.Unlock()
	return nil
}
