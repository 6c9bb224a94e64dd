package runner

import (
	"context"
	"time"

	"digital.vasic.mobileqa/pkg/logging"
	"digital.vasic.mobileqa/pkg/monitor"
	"digital.vasic.mobileqa/pkg/qa"
)

// Recovery stages, applied in order while the screen stays the
// same.
const (
	stageWait     = 1
	stageBack     = 2
	stageRelaunch = 3
)

// stuckDetector tracks pre-action screen fingerprints. When the
// last window prints are equal the screen counts as unchanged;
// enough unchanged observations in a row call for recovery.
type stuckDetector struct {
	window    int
	threshold int

	prints    []uint64
	unchanged int
	stage     int
}

func newStuckDetector(window, threshold int) *stuckDetector {
	return &stuckDetector{window: window, threshold: threshold}
}

// observe records a fingerprint and returns the recovery stage
// to run, or 0.
func (d *stuckDetector) observe(fp uint64) int {
	d.prints = append(d.prints, fp)
	if len(d.prints) > d.window {
		d.prints = d.prints[len(d.prints)-d.window:]
	}
	if len(d.prints) < d.window {
		return 0
	}
	for _, p := range d.prints[1:] {
		if p != d.prints[0] {
			d.unchanged = 0
			d.stage = 0
			return 0
		}
	}

	d.unchanged++
	if d.unchanged < d.threshold {
		return 0
	}
	d.stage++
	if d.stage > stageRelaunch {
		d.stage = stageRelaunch
	}
	return d.stage
}

// recovered forgets the screens seen so far. The stage count is
// kept until the screen changes.
func (d *stuckDetector) recovered() {
	d.prints = d.prints[:0]
	d.unchanged = 0
}

// recover runs one recovery stage. It reports true when the
// final stage left the screen unchanged.
func (t *testRun) recover(ctx context.Context, stage int, pre qa.UIState) bool {
	t.logger.Warn("UI unchanged, recovering",
		logging.StepField(t.step),
		logging.IntField("stage", stage),
		logging.StringField("fingerprint", pre.FingerprintHex()),
	)
	t.r.metrics.RecordRecovery(stage)
	t.emit(monitor.RunEvent{
		Type:    monitor.EventRecovery,
		Step:    t.step,
		Stage:   stage,
		Message: recoveryLabel(stage),
	})

	switch stage {
	case stageWait:
		timer := time.NewTimer(t.r.cfg.RecoveryWait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		return false
	case stageBack:
		if _, err := t.r.dev.KeyEvent(ctx, "BACK"); err != nil {
			t.logger.Warn("recovery BACK failed", logging.ErrorField(err))
		}
		return false
	}

	if _, err := t.r.dev.KeyEvent(ctx, "HOME"); err != nil {
		t.logger.Warn("recovery HOME failed", logging.ErrorField(err))
	}
	if err := t.r.dev.LaunchApp(ctx, t.tc.AppPackage()); err != nil {
		t.logger.Warn("recovery relaunch failed", logging.ErrorField(err))
	}
	after := t.exec.Capture(ctx, "")
	return after.Captured() && after.Fingerprint == pre.Fingerprint
}

func recoveryLabel(stage int) string {
	switch stage {
	case stageWait:
		return "wait"
	case stageBack:
		return "back"
	}
	return "home and relaunch"
}
