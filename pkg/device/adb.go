package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"digital.vasic.mobileqa/pkg/logging"
	"digital.vasic.mobileqa/pkg/qa"
	"digital.vasic.mobileqa/pkg/uitree"
)

// commandFunc is the function used to create exec.Cmd instances.
// It can be overridden in tests for dependency injection.
var commandFunc = exec.CommandContext

// dumpPath is where uiautomator writes the hierarchy on device.
const dumpPath = "/sdcard/window_dump.xml"

// ADB drives one device through the adb binary.
type ADB struct {
	serial  string
	binary  string
	timeout time.Duration
	logger  logging.Logger
}

// ADBOption configures an ADB via functional options.
type ADBOption func(*ADB)

// WithBinary overrides the adb executable path.
func WithBinary(path string) ADBOption {
	return func(a *ADB) { a.binary = path }
}

// WithCommandTimeout bounds every adb invocation.
func WithCommandTimeout(d time.Duration) ADBOption {
	return func(a *ADB) { a.timeout = d }
}

// WithLogger sets the logger used for command tracing.
func WithLogger(l logging.Logger) ADBOption {
	return func(a *ADB) { a.logger = l }
}

// NewADB creates a driver for the device with the given serial.
// An empty serial targets the only connected device.
func NewADB(serial string, opts ...ADBOption) *ADB {
	a := &ADB{
		serial:  serial,
		binary:  "adb",
		timeout: 30 * time.Second,
		logger:  logging.NullLogger{},
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Serial returns the device serial.
func (a *ADB) Serial() string {
	return a.serial
}

// run executes adb with the given arguments and returns stdout.
func (a *ADB) run(ctx context.Context, args ...string) ([]byte, error) {
	full := args
	if a.serial != "" {
		full = append([]string{"-s", a.serial}, args...)
	}

	execCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	cmd := commandFunc(execCtx, a.binary, full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	a.logger.Debug("adb",
		logging.StringField("args", strings.Join(args, " ")),
		logging.DurationField("elapsed", time.Since(start)),
	)

	if err != nil {
		cerr := &CommandError{
			Args:   args,
			Stderr: strings.TrimSpace(stderr.String()),
		}
		var exitErr *exec.ExitError
		switch {
		case execCtx.Err() != nil:
			cerr.Err = execCtx.Err()
		case errors.As(err, &exitErr):
			cerr.ExitCode = exitErr.ExitCode()
		default:
			cerr.Err = err
		}
		return stdout.Bytes(), cerr
	}
	return stdout.Bytes(), nil
}

func (a *ADB) shell(ctx context.Context, args ...string) ([]byte, error) {
	return a.run(ctx, append([]string{"shell"}, args...)...)
}

// TapByText dumps the hierarchy and taps the most specific
// element whose text or content description contains text.
func (a *ADB) TapByText(ctx context.Context, text string) (Outcome, error) {
	tree, err := a.DumpUITree(ctx)
	if err != nil {
		return Outcome{}, err
	}
	el, ok := tree.BestMatch(text)
	if !ok {
		return Outcome{
			Message: fmt.Sprintf("Element not found: %s", text),
		}, nil
	}
	x, y := el.Bounds.Center()
	if _, err := a.TapXY(ctx, x, y); err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Success: true,
		Message: fmt.Sprintf("Tapped %q at (%d, %d)", el.Label(), x, y),
		Output:  el.Bounds.String(),
	}, nil
}

// TapXY taps the given screen coordinates.
func (a *ADB) TapXY(ctx context.Context, x, y int) (Outcome, error) {
	out, err := a.shell(ctx, "input", "tap",
		strconv.Itoa(x), strconv.Itoa(y))
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Success: true,
		Message: fmt.Sprintf("Tapped at (%d, %d)", x, y),
		Output:  string(out),
	}, nil
}

// InputText types into the focused field.
func (a *ADB) InputText(ctx context.Context, text string) (Outcome, error) {
	if text == "" {
		return Outcome{Success: true, Message: "Nothing to type"}, nil
	}
	out, err := a.shell(ctx, "input", "text", EscapeInputText(text))
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Success: true,
		Message: fmt.Sprintf("Typed %q", text),
		Output:  string(out),
	}, nil
}

// Swipe performs a screen-relative swipe.
func (a *ADB) Swipe(ctx context.Context, dir Direction) (Outcome, error) {
	w, h, err := a.ScreenSize(ctx)
	if err != nil {
		return Outcome{}, err
	}
	x1, y1, x2, y2, err := SwipeVector(dir, w, h)
	if err != nil {
		return Outcome{Message: err.Error()}, nil
	}
	out, err := a.SwipeXY(ctx, x1, y1, x2, y2, SwipeDuration)
	if err != nil {
		return Outcome{}, err
	}
	out.Message = fmt.Sprintf("Swiped %s", dir)
	return out, nil
}

// SwipeXY swipes between two points over d.
func (a *ADB) SwipeXY(
	ctx context.Context, x1, y1, x2, y2 int, d time.Duration,
) (Outcome, error) {
	out, err := a.shell(ctx, "input", "swipe",
		strconv.Itoa(x1), strconv.Itoa(y1),
		strconv.Itoa(x2), strconv.Itoa(y2),
		strconv.FormatInt(d.Milliseconds(), 10),
	)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Success: true,
		Message: fmt.Sprintf("Swiped (%d, %d) -> (%d, %d)", x1, y1, x2, y2),
		Output:  string(out),
	}, nil
}

// KeyEvent presses a named key or numeric keycode.
func (a *ADB) KeyEvent(ctx context.Context, key string) (Outcome, error) {
	code, ok := qa.Keycode(key)
	if !ok {
		return Outcome{Message: fmt.Sprintf("Unknown key: %s", key)}, nil
	}
	out, err := a.shell(ctx, "input", "keyevent", strconv.Itoa(code))
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Success: true,
		Message: fmt.Sprintf("Pressed key: %s", strings.ToUpper(key)),
		Output:  string(out),
	}, nil
}

// KeyCombination presses several keys together, e.g. CTRL+A.
func (a *ADB) KeyCombination(
	ctx context.Context,
	keycodes ...int,
) (Outcome, error) {
	args := []string{"input", "keycombination"}
	for _, c := range keycodes {
		args = append(args, strconv.Itoa(c))
	}
	out, err := a.shell(ctx, args...)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Success: true,
		Message: "Pressed key combination",
		Output:  string(out),
	}, nil
}

// CaptureScreenshot writes a PNG screenshot to path.
func (a *ADB) CaptureScreenshot(
	ctx context.Context,
	path string,
) (string, error) {
	png, err := a.run(ctx, "exec-out", "screencap", "-p")
	if err != nil {
		return "", err
	}
	if len(png) == 0 {
		return "", &CommandError{
			Args: []string{"exec-out", "screencap", "-p"},
			Err:  errors.New("empty screenshot"),
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("create screenshot dir: %w", err)
	}
	if err := os.WriteFile(path, png, 0644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return path, nil
}

// DumpUITree captures and parses the current view hierarchy.
func (a *ADB) DumpUITree(ctx context.Context) (*uitree.Tree, error) {
	if _, err := a.shell(ctx, "uiautomator", "dump", dumpPath); err != nil {
		return nil, err
	}
	data, err := a.run(ctx, "exec-out", "cat", dumpPath)
	if err != nil {
		return nil, err
	}
	tree, err := uitree.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("dump ui tree: %w", err)
	}
	return tree, nil
}

var wmSizePattern = regexp.MustCompile(`(\d+)x(\d+)`)

// ScreenSize returns the display size. An override size, when
// set, wins over the physical size.
func (a *ADB) ScreenSize(ctx context.Context) (int, int, error) {
	out, err := a.shell(ctx, "wm", "size")
	if err != nil {
		return 0, 0, err
	}
	return parseWMSize(string(out))
}

func parseWMSize(out string) (int, int, error) {
	var w, h int
	for _, line := range strings.Split(out, "\n") {
		m := wmSizePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		w, _ = strconv.Atoi(m[1])
		h, _ = strconv.Atoi(m[2])
		if strings.Contains(line, "Override") {
			break
		}
	}
	if w == 0 || h == 0 {
		return 0, 0, fmt.Errorf("unrecognised wm size output %q",
			strings.TrimSpace(out))
	}
	return w, h, nil
}

// InstallApp installs or replaces an APK.
func (a *ADB) InstallApp(ctx context.Context, apkPath string) error {
	if _, err := os.Stat(apkPath); err != nil {
		return fmt.Errorf("apk not found: %w", err)
	}
	out, err := a.run(ctx, "install", "-r", apkPath)
	if err != nil {
		return err
	}
	if !strings.Contains(string(out), "Success") {
		return &CommandError{
			Args:   []string{"install", "-r", apkPath},
			Stderr: strings.TrimSpace(string(out)),
		}
	}
	return nil
}

// ResetAppData clears the app's data and cache.
func (a *ADB) ResetAppData(ctx context.Context, pkg string) error {
	_, err := a.shell(ctx, "pm", "clear", pkg)
	return err
}

// LaunchApp starts the app's launcher activity.
func (a *ADB) LaunchApp(ctx context.Context, pkg string) error {
	_, err := a.shell(ctx, "monkey", "-p", pkg,
		"-c", "android.intent.category.LAUNCHER", "1")
	return err
}
