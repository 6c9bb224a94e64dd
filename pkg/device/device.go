// Package device drives an Android device: taps, text entry,
// gestures, key events, screenshots, view hierarchy dumps and
// app lifecycle. The ADB type shells out to the adb binary.
package device

import (
	"context"
	"fmt"
	"strings"
	"time"

	"digital.vasic.mobileqa/pkg/uitree"
)

// Direction is a swipe direction.
type Direction string

// Swipe directions.
const (
	Up    Direction = "up"
	Down  Direction = "down"
	Left  Direction = "left"
	Right Direction = "right"
)

// SwipeDuration is the gesture length used by Swipe.
const SwipeDuration = 300 * time.Millisecond

// Outcome reports a device operation that ran. Success is false
// when the operation completed but did not do what was asked,
// e.g. no element matched a tap.
type Outcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Output  string `json:"output,omitempty"`
}

// Device is the set of operations the executor needs. Device
// level failures (offline, timeout, non-zero exit) are returned
// as *CommandError.
type Device interface {
	TapByText(ctx context.Context, text string) (Outcome, error)
	TapXY(ctx context.Context, x, y int) (Outcome, error)
	InputText(ctx context.Context, text string) (Outcome, error)
	Swipe(ctx context.Context, dir Direction) (Outcome, error)
	SwipeXY(
		ctx context.Context,
		x1, y1, x2, y2 int,
		d time.Duration,
	) (Outcome, error)
	KeyEvent(ctx context.Context, key string) (Outcome, error)
	KeyCombination(ctx context.Context, keycodes ...int) (Outcome, error)
	CaptureScreenshot(ctx context.Context, path string) (string, error)
	DumpUITree(ctx context.Context) (*uitree.Tree, error)
	ScreenSize(ctx context.Context) (width, height int, err error)
	InstallApp(ctx context.Context, apkPath string) error
	ResetAppData(ctx context.Context, pkg string) error
	LaunchApp(ctx context.Context, pkg string) error
}

// CommandError is a failed device command.
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("adb %s", strings.Join(e.Args, " "))
	switch {
	case e.Err != nil && e.Stderr != "":
		return fmt.Sprintf("%s: %v: %s", msg, e.Err, e.Stderr)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", msg, e.Err)
	case e.Stderr != "":
		return fmt.Sprintf("%s: exit %d: %s", msg, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s: exit %d", msg, e.ExitCode)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// SwipeVector returns the start and end points of a swipe in
// the given direction on a w x h screen.
func SwipeVector(dir Direction, w, h int) (x1, y1, x2, y2 int, err error) {
	switch dir {
	case Up:
		return w / 2, h * 3 / 4, w / 2, h / 4, nil
	case Down:
		return w / 2, h / 4, w / 2, h * 3 / 4, nil
	case Left:
		return w * 3 / 4, h / 2, w / 4, h / 2, nil
	case Right:
		return w / 4, h / 2, w * 3 / 4, h / 2, nil
	}
	return 0, 0, 0, 0, fmt.Errorf("unknown swipe direction %q", dir)
}

// EscapeInputText prepares text for `adb shell input text`:
// spaces become %s and shell metacharacters are escaped.
func EscapeInputText(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch r {
		case ' ':
			b.WriteString("%s")
		case '\\', '\'', '"', '`', '$', '&', '|', ';', '<', '>',
			'(', ')', '*', '?', '~', '#', '!', '[', ']', '{', '}':
			b.WriteRune('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
