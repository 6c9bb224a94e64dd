// Package executor performs planned actions on a device. Before
// any interaction it dismisses known incidental dialogs, retries
// interactions with exponential backoff, evaluates structured
// assertions locally and always captures the post-action state.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"digital.vasic.mobileqa/pkg/assertion"
	"digital.vasic.mobileqa/pkg/device"
	"digital.vasic.mobileqa/pkg/logging"
	"digital.vasic.mobileqa/pkg/metrics"
	"digital.vasic.mobileqa/pkg/qa"
)

// Config holds executor tuning.
type Config struct {
	// MaxAttempts bounds tries of an interaction, including the
	// first.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`

	// BackoffBase is the delay before the first retry.
	BackoffBase time.Duration `yaml:"backoff_base" json:"backoff_base"`

	// BackoffMax caps the delay between retries.
	BackoffMax time.Duration `yaml:"backoff_max" json:"backoff_max"`

	// MaxDismissals caps incidental dialog taps per step. An
	// empty, non-nil DialogTexts disables dismissal instead.
	MaxDismissals int `yaml:"max_dismissals" json:"max_dismissals"`

	// DialogTexts are the button labels treated as incidental
	// dialogs, in priority order.
	DialogTexts []string `yaml:"dialog_texts" json:"dialog_texts"`

	// MaxWait caps a wait action.
	MaxWait time.Duration `yaml:"max_wait" json:"max_wait"`

	// CaptureTimeout bounds the post-action capture, which runs
	// even when the step context is already cancelled.
	CaptureTimeout time.Duration `yaml:"capture_timeout" json:"capture_timeout"`
}

// DefaultConfig returns the executor defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		BackoffBase:    300 * time.Millisecond,
		BackoffMax:     2 * time.Second,
		MaxDismissals:  5,
		DialogTexts:    append([]string(nil), DefaultDialogTexts...),
		MaxWait:        time.Duration(qa.MaxWaitSeconds * float64(time.Second)),
		CaptureTimeout: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = d.BackoffMax
	}
	if c.MaxDismissals <= 0 {
		c.MaxDismissals = d.MaxDismissals
	}
	if c.DialogTexts == nil {
		c.DialogTexts = d.DialogTexts
	}
	if c.MaxWait <= 0 {
		c.MaxWait = d.MaxWait
	}
	if c.CaptureTimeout <= 0 {
		c.CaptureTimeout = d.CaptureTimeout
	}
	return c
}

// Input is one action to execute.
type Input struct {
	Action qa.Action

	// Pre is the state the action was planned against.
	Pre qa.UIState

	// PostScreenshot is where the post-action screenshot goes.
	// Empty skips the screenshot.
	PostScreenshot string
}

// Outcome is the result of one executed action.
type Outcome struct {
	Result    qa.ExecutionResult
	Pre       qa.UIState
	Post      qa.UIState
	Dismissed []Dismissal
	Duration  time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithConfig replaces the configuration. Zero fields take their
// defaults.
func WithConfig(cfg Config) Option {
	return func(e *Executor) { e.cfg = cfg.withDefaults() }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m metrics.RunMetrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithAssertionEngine sets the engine used for structured
// assertions.
func WithAssertionEngine(engine assertion.Engine) Option {
	return func(e *Executor) { e.engine = engine }
}

// Executor runs actions against a device.
type Executor struct {
	dev     device.Device
	engine  assertion.Engine
	cfg     Config
	logger  logging.Logger
	metrics metrics.RunMetrics
}

// New creates an Executor for dev.
func New(dev device.Device, opts ...Option) *Executor {
	e := &Executor{
		dev:     dev,
		engine:  assertion.NewEngine(),
		cfg:     DefaultConfig(),
		logger:  logging.NullLogger{},
		metrics: metrics.NoopMetrics{},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Config returns the effective configuration.
func (e *Executor) Config() Config {
	return e.cfg
}

// Capture snapshots the screen. A failed dump yields an empty
// state carrying the error; a failed screenshot only drops the
// screenshot reference.
func (e *Executor) Capture(
	ctx context.Context,
	screenshotPath string,
) qa.UIState {
	shot := ""
	if screenshotPath != "" {
		p, err := e.dev.CaptureScreenshot(ctx, screenshotPath)
		if err != nil {
			e.logger.Warn("screenshot failed",
				logging.StringField("path", screenshotPath),
				logging.ErrorField(err),
			)
		} else {
			shot = p
		}
	}

	tree, err := e.dev.DumpUITree(ctx)
	if err != nil {
		e.logger.Warn("ui dump failed", logging.ErrorField(err))
		s := qa.FailedUIState(err)
		s.ScreenshotPath = shot
		return s
	}
	return qa.NewUIState(tree, shot)
}

// Execute performs in.Action. Device and provider trouble never
// escapes as an error: it is folded into the result. The post
// state is captured whether or not the action succeeded.
func (e *Executor) Execute(ctx context.Context, in Input) Outcome {
	start := time.Now()
	a := in.Action
	out := Outcome{Pre: in.Pre}

	if a.Kind.IsInteraction() {
		out.Dismissed = e.dismissDialogs(ctx, a)
	}

	res := e.dispatch(ctx, a, in.Pre)
	if len(out.Dismissed) > 0 {
		res = res.With(qa.DataDismissed, dismissedLabels(out.Dismissed))
	}
	out.Result = res

	postCtx, cancel := context.WithTimeout(
		context.WithoutCancel(ctx), e.cfg.CaptureTimeout,
	)
	out.Post = e.Capture(postCtx, in.PostScreenshot)
	cancel()

	out.Duration = time.Since(start)
	e.metrics.RecordStep(string(a.Kind), res.Success, out.Duration)

	fields := []logging.Field{
		logging.StringField("action", string(a.Kind)),
		logging.StringField("description", a.Description),
		logging.BoolField("success", res.Success),
		logging.StringField("message", res.Message),
		logging.DurationField("duration", out.Duration),
	}
	if res.Success {
		e.logger.Info("action executed", fields...)
	} else {
		e.logger.Warn("action failed", append(fields,
			logging.StringField("detail", res.Error),
			logging.BoolField("assertion", res.AssertionContext),
		)...)
	}
	return out
}

func (e *Executor) dispatch(
	ctx context.Context,
	a qa.Action,
	pre qa.UIState,
) qa.ExecutionResult {
	switch a.Kind {
	case qa.KindTapByText:
		return e.withRetry(ctx, a,
			func(ctx context.Context) (qa.ExecutionResult, error) {
				out, err := e.dev.TapByText(ctx, a.Text)
				if err != nil {
					return qa.ExecutionResult{}, err
				}
				if !out.Success {
					return qa.ActionFailed(out.Message,
						fmt.Sprintf("No UI element found with text %q", a.Text)), nil
				}
				res := qa.Succeeded(out.Message)
				if out.Output != "" {
					res = res.With(qa.DataBounds, out.Output)
				}
				return res, nil
			})
	case qa.KindTapXY:
		return e.withRetry(ctx, a,
			func(ctx context.Context) (qa.ExecutionResult, error) {
				return fromOutcome(e.dev.TapXY(ctx, a.X, a.Y))
			})
	case qa.KindSwipe:
		return e.withRetry(ctx, a,
			func(ctx context.Context) (qa.ExecutionResult, error) {
				return fromOutcome(e.dev.Swipe(ctx, device.Direction(a.Direction)))
			})
	case qa.KindKeyEvent:
		return e.withRetry(ctx, a,
			func(ctx context.Context) (qa.ExecutionResult, error) {
				res, err := fromOutcome(e.dev.KeyEvent(ctx, a.Key))
				if code, ok := qa.Keycode(a.Key); ok && err == nil {
					res = res.With(qa.DataKeycode, code)
				}
				return res, err
			})
	case qa.KindInputText:
		return e.withRetry(ctx, a,
			func(ctx context.Context) (qa.ExecutionResult, error) {
				return e.inputText(ctx, a)
			})
	case qa.KindAssert:
		return e.assert(ctx, a, pre)
	case qa.KindWait:
		return e.wait(ctx, a)
	case qa.KindDone:
		return qa.Succeeded("Test marked as done")
	case qa.KindFail:
		return qa.ActionFailed("Action failed explicitly: "+a.Reason, a.Reason)
	}
	return qa.ActionFailed(
		fmt.Sprintf("Unknown action type: %s", a.Kind),
		fmt.Sprintf("no handler for action type %q", a.Kind),
	)
}

func fromOutcome(out device.Outcome, err error) (qa.ExecutionResult, error) {
	if err != nil {
		return qa.ExecutionResult{}, err
	}
	if !out.Success {
		return qa.ActionFailed(out.Message, out.Message), nil
	}
	return qa.Succeeded(out.Message), nil
}

func (e *Executor) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.BackoffBase
	b.MaxInterval = e.cfg.BackoffMax
	b.MaxElapsedTime = 0
	return backoff.WithContext(
		backoff.WithMaxRetries(b, uint64(e.cfg.MaxAttempts-1)), ctx,
	)
}

// withRetry runs fn until it succeeds or attempts run out. Both
// device errors and unsuccessful outcomes are retried.
func (e *Executor) withRetry(
	ctx context.Context,
	a qa.Action,
	fn func(context.Context) (qa.ExecutionResult, error),
) qa.ExecutionResult {
	attempts := 0
	var last qa.ExecutionResult
	var lastErr error

	op := func() error {
		attempts++
		res, err := fn(ctx)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		lastErr = nil
		last = res
		if res.Success {
			return nil
		}
		return errors.New(res.Detail())
	}
	notify := func(err error, wait time.Duration) {
		e.logger.Debug("retrying action",
			logging.StringField("action", string(a.Kind)),
			logging.IntField("attempt", attempts),
			logging.DurationField("backoff", wait),
			logging.ErrorField(err),
		)
	}

	if err := backoff.RetryNotify(op, e.policy(ctx), notify); err == nil {
		return last.With(qa.DataAttempts, attempts)
	}

	if lastErr != nil {
		return qa.ActionFailed(
			fmt.Sprintf("Failed after %d attempts: %s", attempts, a.Description),
			lastErr.Error(),
		).With(qa.DataAttempts, attempts)
	}
	return last.With(qa.DataAttempts, attempts)
}

func (e *Executor) wait(ctx context.Context, a qa.Action) qa.ExecutionResult {
	d := time.Duration(a.Seconds * float64(time.Second))
	if d > e.cfg.MaxWait {
		d = e.cfg.MaxWait
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return qa.Succeeded(fmt.Sprintf("Waited %gs", d.Seconds()))
	case <-ctx.Done():
		return qa.ActionFailed("Wait interrupted", ctx.Err().Error())
	}
}
