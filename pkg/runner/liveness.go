package runner

import (
	"context"
	"sync"
	"time"

	"digital.vasic.mobileqa/pkg/logging"
)

// heartbeat is signalled by the loop after every completed step.
type heartbeat chan struct{}

func newHeartbeat() heartbeat {
	return make(heartbeat, 1)
}

// beat records progress without blocking.
func (h heartbeat) beat() {
	select {
	case h <- struct{}{}:
	default:
	}
}

// stepWatchdog cancels a run when no step completes within the
// stale threshold. A slow but moving run is left alone.
type stepWatchdog struct {
	beats          heartbeat
	staleThreshold time.Duration
	cancel         context.CancelFunc
	logger         logging.Logger
	test           string
}

// startWatchdog starts the watchdog goroutine. The returned stop
// function must be called when the loop ends. stalled is closed
// when the watchdog fired. A nil heartbeat or zero threshold
// disables it.
func startWatchdog(
	beats heartbeat,
	staleThreshold time.Duration,
	cancel context.CancelFunc,
	logger logging.Logger,
	test string,
) (stop func(), stalled <-chan struct{}) {
	if beats == nil || staleThreshold <= 0 {
		return func() {}, nil
	}

	w := &stepWatchdog{
		beats:          beats,
		staleThreshold: staleThreshold,
		cancel:         cancel,
		logger:         logger,
		test:           test,
	}

	stopCh := make(chan struct{})
	stalledCh := make(chan struct{})

	go w.run(stopCh, stalledCh)

	var once sync.Once
	return func() {
		once.Do(func() { close(stopCh) })
	}, stalledCh
}

func (w *stepWatchdog) run(stopCh <-chan struct{}, stalledCh chan<- struct{}) {
	timer := time.NewTimer(w.staleThreshold)
	defer timer.Stop()

	for {
		select {
		case <-stopCh:
			return

		case <-w.beats:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.staleThreshold)

		case <-timer.C:
			if w.logger != nil {
				w.logger.Error("step watchdog expired",
					logging.TestField(w.test),
					logging.DurationField("stale_threshold", w.staleThreshold),
				)
			}
			close(stalledCh)
			w.cancel()
			return
		}
	}
}

// fired reports whether the stalled channel is closed.
func fired(stalled <-chan struct{}) bool {
	if stalled == nil {
		return false
	}
	select {
	case <-stalled:
		return true
	default:
		return false
	}
}
