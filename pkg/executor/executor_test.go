package executor_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digital.vasic.mobileqa/pkg/assertion"
	"digital.vasic.mobileqa/pkg/device"
	"digital.vasic.mobileqa/pkg/device/devicetest"
	"digital.vasic.mobileqa/pkg/executor"
	"digital.vasic.mobileqa/pkg/metrics"
	"digital.vasic.mobileqa/pkg/qa"
	"digital.vasic.mobileqa/pkg/uitree"
)

type stepMetrics struct {
	metrics.NoopMetrics
	mu         sync.Mutex
	steps      []string
	assertions []bool
}

func (m *stepMetrics) RecordStep(kind string, success bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if success {
		m.steps = append(m.steps, kind+":ok")
	} else {
		m.steps = append(m.steps, kind+":fail")
	}
}

func (m *stepMetrics) RecordAssertion(_ string, passed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assertions = append(m.assertions, passed)
}

func fastConfig() executor.Config {
	return executor.Config{
		BackoffBase: time.Millisecond,
		BackoffMax:  2 * time.Millisecond,
	}
}

func newExecutor(
	dev device.Device,
	opts ...executor.Option,
) *executor.Executor {
	return executor.New(dev, append([]executor.Option{
		executor.WithConfig(fastConfig()),
	}, opts...)...)
}

func mustAction(t *testing.T) func(qa.Action, error) qa.Action {
	return func(a qa.Action, err error) qa.Action {
		t.Helper()
		require.NoError(t, err)
		return a
	}
}

func editorScreen() *uitree.Tree {
	return &uitree.Tree{Elements: []uitree.Element{
		{
			Text: "Untitled", Class: "android.widget.EditText", Enabled: true,
			Bounds: uitree.Bounds{Left: 0, Top: 200, Right: 1080, Bottom: 300},
		},
		{
			Class: "android.widget.EditText", Enabled: true,
			Bounds: uitree.Bounds{Left: 0, Top: 300, Right: 1080, Bottom: 2000},
		},
	}}
}

func TestDefaultConfig(t *testing.T) {
	cfg := executor.DefaultConfig()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 300*time.Millisecond, cfg.BackoffBase)
	assert.Equal(t, 2*time.Second, cfg.BackoffMax)
	assert.Equal(t, 5, cfg.MaxDismissals)
	assert.Equal(t, 10*time.Second, cfg.MaxWait)
	assert.Contains(t, cfg.DialogTexts, "While using the app")
	assert.Contains(t, cfg.DialogTexts, "USE THIS FOLDER")
}

func TestWithConfig_FillsDefaults(t *testing.T) {
	e := executor.New(devicetest.New(), executor.WithConfig(executor.Config{MaxAttempts: 5}))
	cfg := e.Config()
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 300*time.Millisecond, cfg.BackoffBase)
	assert.Equal(t, executor.DefaultDialogTexts, cfg.DialogTexts)
}

func TestExecute_TapByText(t *testing.T) {
	dev := devicetest.New(devicetest.Screen("Create new vault"))
	m := &stepMetrics{}
	e := newExecutor(dev, executor.WithMetrics(m))

	a := mustAction(t)(qa.NewTapByText("Create new vault", "open vault creation"))
	shot := filepath.Join(t.TempDir(), "post.png")
	out := e.Execute(context.Background(), executor.Input{Action: a, PostScreenshot: shot})

	require.True(t, out.Result.Success, out.Result.Message)
	assert.Equal(t, "[100,200][980,320]", out.Result.Data[qa.DataBounds])
	assert.Equal(t, 1, out.Result.Data[qa.DataAttempts])
	assert.Equal(t, shot, out.Post.ScreenshotPath)
	assert.True(t, out.Post.Captured())
	assert.Equal(t, []string{"tap_by_text Create new vault"}, dev.Interactions())
	assert.Equal(t, []string{"tap_by_text:ok"}, m.steps)
}

func TestExecute_TapByTextMissingIsActionFailure(t *testing.T) {
	dev := devicetest.New(devicetest.Screen("Share", "Export"))
	e := newExecutor(dev)

	a := mustAction(t)(qa.NewTapByText("Print to PDF", ""))
	out := e.Execute(context.Background(), executor.Input{Action: a})

	res := out.Result
	assert.False(t, res.Success)
	assert.False(t, res.AssertionContext)
	assert.Equal(t, "Element not found: Print to PDF", res.Message)
	assert.Contains(t, res.Error, "Print to PDF")
	assert.Equal(t, 3, res.Data[qa.DataAttempts])
	assert.Len(t, dev.CallsTo(devicetest.OpTapByText), 3)
	assert.True(t, out.Post.Captured(), "post state captured on failure")
}

func TestExecute_RetriesTransientDeviceError(t *testing.T) {
	dev := devicetest.New(devicetest.Screen("A"))
	dev.FailNext(devicetest.OpTapXY, &device.CommandError{
		Args: []string{"shell", "input", "tap", "10", "20"}, ExitCode: 1, Stderr: "error: device offline",
	})
	e := newExecutor(dev)

	a := mustAction(t)(qa.NewTapXY(10, 20, ""))
	out := e.Execute(context.Background(), executor.Input{Action: a})

	require.True(t, out.Result.Success)
	assert.Equal(t, 2, out.Result.Data[qa.DataAttempts])
	assert.Equal(t, "Tapped at (10, 20)", out.Result.Message)
}

func TestExecute_PersistentDeviceErrorEscalates(t *testing.T) {
	dev := devicetest.New(devicetest.Screen("A"))
	offline := &device.CommandError{
		Args: []string{"shell", "input", "keyevent", "4"}, ExitCode: 1, Stderr: "error: device offline",
	}
	dev.FailNext(devicetest.OpKeyEvent, offline, offline, offline)
	e := newExecutor(dev)

	a := mustAction(t)(qa.NewKeyEvent("back", "go back"))
	out := e.Execute(context.Background(), executor.Input{Action: a})

	res := out.Result
	assert.False(t, res.Success)
	assert.False(t, res.AssertionContext)
	assert.Equal(t, "Failed after 3 attempts: go back", res.Message)
	assert.Contains(t, res.Error, "device offline")
	assert.Equal(t, 3, res.Data[qa.DataAttempts])
}

func TestExecute_KeyEventRecordsKeycode(t *testing.T) {
	dev := devicetest.New(devicetest.Screen("A"))
	e := newExecutor(dev)

	a := mustAction(t)(qa.NewKeyEvent("BACK", ""))
	out := e.Execute(context.Background(), executor.Input{Action: a})

	require.True(t, out.Result.Success)
	assert.Equal(t, 4, out.Result.Data[qa.DataKeycode])
	assert.Equal(t, []string{"key_event BACK"}, dev.Interactions())
}

func TestExecute_Swipe(t *testing.T) {
	dev := devicetest.New(devicetest.Screen("A"))
	e := newExecutor(dev)

	a := mustAction(t)(qa.NewSwipe("up", ""))
	out := e.Execute(context.Background(), executor.Input{Action: a})

	require.True(t, out.Result.Success)
	assert.Equal(t, "Swiped up", out.Result.Message)
	assert.Equal(t, []string{"swipe up"}, dev.Interactions())
}

func TestExecute_DismissesDialogBeforeAction(t *testing.T) {
	dev := devicetest.New(
		devicetest.Screen("Allow", "Don't allow"),
		devicetest.Screen("Create new vault"),
	)
	dev.Advance = true
	e := newExecutor(dev)

	a := mustAction(t)(qa.NewTapByText("Create new vault", ""))
	out := e.Execute(context.Background(), executor.Input{Action: a})

	require.True(t, out.Result.Success, out.Result.Message)
	require.Len(t, out.Dismissed, 1)
	assert.Equal(t, executor.Dismissal{Label: "Allow", X: 540, Y: 260}, out.Dismissed[0])
	assert.Equal(t, []string{"Allow"}, out.Result.Data[qa.DataDismissed])
	assert.Equal(t, []string{
		"tap_xy 540 260",
		"tap_by_text Create new vault",
	}, dev.Interactions())
}

func TestExecute_DialogMatchingTargetIsNotDismissed(t *testing.T) {
	dev := devicetest.New(devicetest.Screen("OK"))
	e := newExecutor(dev)

	a := mustAction(t)(qa.NewTapByText("OK", "confirm"))
	out := e.Execute(context.Background(), executor.Input{Action: a})

	require.True(t, out.Result.Success)
	assert.Empty(t, out.Dismissed)
	assert.Equal(t, []string{"tap_by_text OK"}, dev.Interactions())
}

func TestExecute_DialogLocationTappedOnce(t *testing.T) {
	dev := devicetest.New(devicetest.Screen("Got it"))
	e := newExecutor(dev)

	a := mustAction(t)(qa.NewSwipe("down", ""))
	out := e.Execute(context.Background(), executor.Input{Action: a})

	require.True(t, out.Result.Success)
	require.Len(t, out.Dismissed, 1)
	assert.Equal(t, []string{"tap_xy 540 260", "swipe down"}, dev.Interactions())
}

func TestExecute_DismissalCap(t *testing.T) {
	dev := devicetest.New(
		devicetest.Screen("Allow"),
		devicetest.Screen("OK"),
		devicetest.Screen("Got it"),
		devicetest.Screen("Notes"),
	)
	dev.Advance = true
	cfg := fastConfig()
	cfg.MaxDismissals = 2
	e := executor.New(dev, executor.WithConfig(cfg))

	a := mustAction(t)(qa.NewTapXY(5, 5, ""))
	out := e.Execute(context.Background(), executor.Input{Action: a})

	require.Len(t, out.Dismissed, 2)
	assert.Equal(t, "Allow", out.Dismissed[0].Label)
	assert.Equal(t, "OK", out.Dismissed[1].Label)
	assert.Len(t, dev.CallsTo(devicetest.OpTapXY), 3)
}

func TestExecute_NoDialogRecoveryForAssert(t *testing.T) {
	dev := devicetest.New(devicetest.Screen("Allow"))
	e := newExecutor(dev)

	a := mustAction(t)(qa.NewAssert(qa.AssertSpec{Condition: "permission prompt shown"}, ""))
	out := e.Execute(context.Background(), executor.Input{Action: a})

	assert.True(t, out.Result.Success)
	assert.Empty(t, out.Dismissed)
	assert.Empty(t, dev.Interactions())
}

func settingsState() qa.UIState {
	tree := &uitree.Tree{Elements: []uitree.Element{
		{
			Text: "Dark mode", Class: "android.widget.Switch", Enabled: true,
			Checkable: true, Checked: false,
			Bounds: uitree.Bounds{Left: 0, Top: 400, Right: 1080, Bottom: 500},
		},
	}}
	return qa.NewUIState(tree, "")
}

func TestExecute_StructuredAssert(t *testing.T) {
	tests := []struct {
		name       string
		spec       qa.AssertSpec
		success    bool
		assertion  bool
		detailPart string
	}{
		{
			name:    "holds",
			spec:    qa.AssertSpec{Condition: "dark mode off", Target: "Dark mode", Check: "not_checked"},
			success: true,
		},
		{
			name:       "state mismatch",
			spec:       qa.AssertSpec{Condition: "dark mode on", Target: "Dark mode", Check: "checked"},
			assertion:  true,
			detailPart: "Dark mode",
		},
		{
			name:       "target absent",
			spec:       qa.AssertSpec{Condition: "Print to PDF visible", Target: "Print to PDF", Check: "visible"},
			assertion:  true,
			detailPart: assertion.NotFoundMessage,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := devicetest.New(devicetest.Screen("Unrelated"))
			m := &stepMetrics{}
			e := newExecutor(dev, executor.WithMetrics(m))

			a := mustAction(t)(qa.NewAssert(tt.spec, ""))
			out := e.Execute(context.Background(), executor.Input{Action: a, Pre: settingsState()})

			res := out.Result
			assert.Equal(t, tt.success, res.Success)
			assert.Equal(t, tt.assertion, res.AssertionContext)
			assert.False(t, res.Deferred())
			if tt.detailPart != "" {
				assert.Contains(t, res.Error, tt.detailPart)
			}
			assert.Equal(t, []bool{tt.success}, m.assertions)
			assert.Empty(t, dev.Interactions(), "assert never touches the device")
		})
	}
}

func TestExecute_AssertIsIdempotent(t *testing.T) {
	dev := devicetest.New()
	e := newExecutor(dev)
	a := mustAction(t)(qa.NewAssert(qa.AssertSpec{Target: "Dark mode", Check: "checked"}, "dark on"))
	pre := settingsState()

	first := e.Execute(context.Background(), executor.Input{Action: a, Pre: pre})
	second := e.Execute(context.Background(), executor.Input{Action: a, Pre: pre})
	assert.Equal(t, first.Result, second.Result)
}

func TestExecute_AssertDeferred(t *testing.T) {
	e := newExecutor(devicetest.New(devicetest.Screen("A")))

	freeForm := mustAction(t)(qa.NewAssert(qa.AssertSpec{Condition: "the note is saved"}, ""))
	out := e.Execute(context.Background(), executor.Input{Action: freeForm, Pre: settingsState()})
	assert.True(t, out.Result.Success)
	assert.True(t, out.Result.Deferred())
	assert.Equal(t, "Assertion recorded: the note is saved", out.Result.Message)

	unknown := mustAction(t)(qa.NewAssert(qa.AssertSpec{
		Condition: "is bold", Target: "Dark mode", Check: "bold",
	}, ""))
	out = e.Execute(context.Background(), executor.Input{Action: unknown, Pre: settingsState()})
	assert.True(t, out.Result.Success)
	assert.True(t, out.Result.Deferred())
}

func TestExecute_AssertDumpsWhenPreMissing(t *testing.T) {
	dev := devicetest.New(devicetest.Screen("Dark mode"))
	e := newExecutor(dev)

	a := mustAction(t)(qa.NewAssert(qa.AssertSpec{Target: "Dark mode", Check: "visible"}, "visible"))
	out := e.Execute(context.Background(), executor.Input{Action: a})

	assert.True(t, out.Result.Success)
	assert.False(t, out.Result.Deferred())
}

func TestExecute_InputTextTitle(t *testing.T) {
	dev := devicetest.New(editorScreen())
	e := newExecutor(dev)

	a := mustAction(t)(qa.NewInputText("Meeting Notes", "title", ""))
	out := e.Execute(context.Background(), executor.Input{Action: a})

	require.True(t, out.Result.Success, out.Result.Message)
	assert.Equal(t, "Typed text into title: Meeting Notes", out.Result.Message)
	assert.Equal(t, []string{
		"tap_xy 540 250",
		"key_combination 113 29",
		"key_event DEL",
		"input_text Meeting Notes",
		"key_event ENTER",
	}, dev.Interactions())
}

func TestExecute_InputTextBody(t *testing.T) {
	dev := devicetest.New(editorScreen())
	e := newExecutor(dev)

	a := mustAction(t)(qa.NewInputText("Daily Standup", "body", ""))
	out := e.Execute(context.Background(), executor.Input{Action: a})

	require.True(t, out.Result.Success)
	assert.Equal(t, "[0,300][1080,2000]", out.Result.Data[qa.DataBounds])
	assert.Equal(t, "tap_xy 540 1150", dev.Interactions()[0])
	assert.NotContains(t, dev.Interactions(), "key_event ENTER")
}

func TestExecute_InputTextClearFallback(t *testing.T) {
	dev := devicetest.New(editorScreen())
	dev.FailNext(devicetest.OpKeyCombination, errors.New("keycombination not supported"))
	e := newExecutor(dev)

	a := mustAction(t)(qa.NewInputText("X", "title", ""))
	out := e.Execute(context.Background(), executor.Input{Action: a})

	require.True(t, out.Result.Success)
	dels := 0
	for _, c := range dev.CallsTo(devicetest.OpKeyEvent) {
		if c.Args[0] == "DEL" {
			dels++
		}
	}
	assert.Equal(t, len("Untitled"), dels)
	assert.Contains(t, dev.Interactions(), "key_event 123")
}

func TestExecute_InputTextNoField(t *testing.T) {
	dev := devicetest.New(devicetest.Screen("Settings"))
	e := newExecutor(dev)

	a := mustAction(t)(qa.NewInputText("hello", "", ""))
	out := e.Execute(context.Background(), executor.Input{Action: a})

	assert.False(t, out.Result.Success)
	assert.False(t, out.Result.AssertionContext)
	assert.Equal(t, "No EditText field found on screen", out.Result.Message)
	assert.Equal(t, 3, out.Result.Data[qa.DataAttempts])
}

func TestExecute_Wait(t *testing.T) {
	e := newExecutor(devicetest.New(devicetest.Screen("A")))

	a := mustAction(t)(qa.NewWait(0.01, ""))
	out := e.Execute(context.Background(), executor.Input{Action: a})
	assert.True(t, out.Result.Success)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	long := mustAction(t)(qa.NewWait(10, ""))
	start := time.Now()
	out = e.Execute(ctx, executor.Input{Action: long})
	assert.False(t, out.Result.Success)
	assert.Equal(t, "Wait interrupted", out.Result.Message)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, out.Post.Captured(), "post capture survives cancellation")
}

func TestExecute_DoneAndFail(t *testing.T) {
	e := newExecutor(devicetest.New(devicetest.Screen("A")))

	out := e.Execute(context.Background(), executor.Input{Action: qa.NewDone("")})
	assert.True(t, out.Result.Success)
	assert.Equal(t, "Test marked as done", out.Result.Message)

	fail := mustAction(t)(qa.NewFail("Print to PDF option not present", ""))
	out = e.Execute(context.Background(), executor.Input{Action: fail})
	assert.False(t, out.Result.Success)
	assert.False(t, out.Result.AssertionContext)
	assert.Equal(t, "Action failed explicitly: Print to PDF option not present", out.Result.Message)
}

func TestExecute_PostCaptureFailureIsNoted(t *testing.T) {
	dev := devicetest.New(devicetest.Screen("A"))
	dev.FailNext(devicetest.OpDump, errors.New("uiautomator: null root node"))
	e := newExecutor(dev)

	out := e.Execute(context.Background(), executor.Input{Action: qa.NewDone("")})
	assert.True(t, out.Result.Success)
	assert.False(t, out.Post.Captured())
	assert.Contains(t, out.Post.Error, "null root node")
}

func TestCapture(t *testing.T) {
	dev := devicetest.New(devicetest.Screen("Vault"))
	dev.FailNext(devicetest.OpScreenshot, errors.New("screencap failed"))
	e := newExecutor(dev)

	s := e.Capture(context.Background(), filepath.Join(t.TempDir(), "s.png"))
	assert.True(t, s.Captured())
	assert.Empty(t, s.ScreenshotPath)
	assert.Contains(t, s.Summary, "Vault")

	shot := filepath.Join(t.TempDir(), "ok.png")
	s = e.Capture(context.Background(), shot)
	assert.Equal(t, shot, s.ScreenshotPath)
}
