// Package planner asks the inference provider for the next action
// toward a test goal. Provider output is validated against the
// action schema and the current screen; one rejected answer is
// re-prompted with the error as feedback, and a second failure
// degrades to a short wait so the run never aborts here.
package planner

import (
	"context"
	"fmt"

	"digital.vasic.mobileqa/pkg/inference"
	"digital.vasic.mobileqa/pkg/logging"
	"digital.vasic.mobileqa/pkg/qa"
)

// Defaults.
const (
	DefaultHistoryWindow = 8
	DefaultTemperature   = 0.3
	maxAttempts          = 2
)

// Purpose labels planner calls in logs and metrics.
const Purpose = "plan"

// Request is the planner input for one step.
type Request struct {
	Goal    string
	Step    int
	UI      qa.UIState
	History []qa.HistoryEntry
}

// Decision is the planner output.
type Decision struct {
	Action qa.Action

	// Degraded is set when no valid action could be obtained and
	// Action is the fallback wait.
	Degraded bool

	// Attempts is the number of provider calls made.
	Attempts int

	// Feedback holds the rejection fed back on the retry, if any.
	Feedback string
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(p *Planner) { p.logger = l }
}

// WithHistoryWindow sets how many recent history entries are
// included in the prompt.
func WithHistoryWindow(n int) Option {
	return func(p *Planner) {
		if n > 0 {
			p.window = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(p *Planner) { p.temperature = t }
}

// Planner decides actions.
type Planner struct {
	provider    inference.Provider
	logger      logging.Logger
	window      int
	temperature float64
}

// New creates a Planner backed by provider.
func New(provider inference.Provider, opts ...Option) *Planner {
	p := &Planner{
		provider:    provider,
		logger:      logging.NullLogger{},
		window:      DefaultHistoryWindow,
		temperature: DefaultTemperature,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Plan returns exactly one action. It never fails: provider or
// validation errors on both attempts, and context cancellation,
// yield a degraded wait.
func (p *Planner) Plan(ctx context.Context, req Request) Decision {
	history := recent(req.History, p.window)
	var d Decision
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		d.Attempts = attempt

		action, err := p.ask(ctx, req, history, d.Feedback)
		if err == nil {
			d.Action = action
			p.logger.Debug("planned action",
				logging.StepField(req.Step),
				logging.StringField("action", string(action.Kind)),
				logging.StringField("description", action.Description),
				logging.IntField("attempts", attempt),
			)
			return d
		}

		lastErr = err
		if inference.KindOf(err) == inference.KindCancelled {
			break
		}
		p.logger.Warn("planner response rejected",
			logging.StepField(req.Step),
			logging.IntField("attempt", attempt),
			logging.ErrorField(err),
		)
		d.Feedback = err.Error()
	}

	d.Degraded = true
	d.Action = degradedWait(lastErr)
	p.logger.Warn("planner degraded to wait",
		logging.StepField(req.Step),
		logging.ErrorField(lastErr),
	)
	return d
}

func (p *Planner) ask(
	ctx context.Context, req Request, history []qa.HistoryEntry, feedback string,
) (qa.Action, error) {
	var action qa.Action
	validate := func(raw *map[string]any) error {
		a, err := qa.ParseAction(*raw)
		if err != nil {
			return err
		}
		if err := checkAgainstScreen(a, req.UI); err != nil {
			return err
		}
		action = a
		return nil
	}

	_, err := inference.GenerateStructured(ctx, p.provider, inference.Request{
		Prompt:      buildPrompt(req, history, feedback),
		ImagePath:   req.UI.ScreenshotPath,
		Temperature: p.temperature,
		Purpose:     Purpose,
	}, validate)
	if err != nil {
		return qa.Action{}, err
	}
	return action, nil
}

// checkAgainstScreen rejects a tap_by_text whose text is not on
// the current screen.
func checkAgainstScreen(a qa.Action, ui qa.UIState) error {
	if a.Kind != qa.KindTapByText {
		return nil
	}
	if !ui.Tree.ContainsText(a.Text) {
		return fmt.Errorf(
			"%w: tap_by_text text %q does not appear in the current UI state",
			qa.ErrInvalidAction, a.Text,
		)
	}
	return nil
}

func degradedWait(cause error) qa.Action {
	desc := "planner unavailable, waiting for the UI to settle"
	if cause != nil {
		desc += ": " + logging.Preview(cause.Error(), 160)
	}
	a, _ := qa.NewWait(qa.DefaultWaitSeconds, desc)
	return a
}

func recent(h []qa.HistoryEntry, n int) []qa.HistoryEntry {
	if len(h) <= n {
		return h
	}
	return h[len(h)-n:]
}
