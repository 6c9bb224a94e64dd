package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchdog_NilHeartbeat_NoOp(t *testing.T) {
	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop, stalled := startWatchdog(nil, 100*time.Millisecond, cancel, nil, "nil")
	defer stop()

	assert.Nil(t, stalled)
	assert.False(t, fired(stalled))
}

func TestWatchdog_ZeroThreshold_NoOp(t *testing.T) {
	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop, stalled := startWatchdog(newHeartbeat(), 0, cancel, nil, "zero")
	defer stop()

	assert.Nil(t, stalled)
}

func TestWatchdog_DetectsStall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop, stalled := startWatchdog(newHeartbeat(), 100*time.Millisecond, cancel, nil, "stall")
	defer stop()
	require.NotNil(t, stalled)

	select {
	case <-stalled:
	case <-time.After(2 * time.Second):
		t.Fatal("expected stall detection within 2s")
	}
	assert.Error(t, ctx.Err())
	assert.True(t, fired(stalled))
}

func TestWatchdog_BeatsPreventStall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	beats := newHeartbeat()
	stop, stalled := startWatchdog(beats, 200*time.Millisecond, cancel, nil, "beats")
	defer stop()

	for i := 0; i < 8; i++ {
		time.Sleep(50 * time.Millisecond)
		beats.beat()
	}

	assert.False(t, fired(stalled))
	assert.NoError(t, ctx.Err())
}

func TestWatchdog_StopPreventsStall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop, stalled := startWatchdog(newHeartbeat(), 100*time.Millisecond, cancel, nil, "stop")
	stop()
	stop()

	time.Sleep(250 * time.Millisecond)
	assert.False(t, fired(stalled))
	assert.NoError(t, ctx.Err())
}

func TestHeartbeat_BeatNeverBlocks(t *testing.T) {
	h := newHeartbeat()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			h.beat()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("beat blocked")
	}
}
