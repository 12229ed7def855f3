package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedExecutor settles after a fixed number of attempts.
type scriptedExecutor struct {
	rushable    atomic.Bool
	settleAfter int64

	attempts atomic.Int64
	expired  atomic.Int64

	mu      sync.Mutex
	settled []int64
}

func newScriptedExecutor(settleAfter int64) *scriptedExecutor {
	e := &scriptedExecutor{settleAfter: settleAfter}
	e.rushable.Store(true)
	return e
}

func (e *scriptedExecutor) ShouldRush(ctx context.Context, courseID int64) bool {
	return e.rushable.Load()
}

func (e *scriptedExecutor) Attempt(ctx context.Context, courseID int64) bool {
	n := e.attempts.Add(1)
	if e.settleAfter > 0 && n >= e.settleAfter {
		e.mu.Lock()
		e.settled = append(e.settled, courseID)
		e.mu.Unlock()
		return true
	}
	return false
}

func (e *scriptedExecutor) Expire(ctx context.Context, courseID int64) {
	e.expired.Add(1)
}

func testRushConfig() RushConfig {
	return RushConfig{
		Lead:    20 * time.Millisecond,
		Cadence: 10 * time.Millisecond,
		Window:  150 * time.Millisecond,
	}
}

// waitFor polls a condition with a deadline, to keep the tests free of
// fixed sleeps where possible.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

func TestRushScheduler_SettlesAndStops(t *testing.T) {
	exec := newScriptedExecutor(3)
	s := NewRushScheduler(testRushConfig(), exec)
	defer s.Stop()

	s.Arm(1, time.Now().Add(30*time.Millisecond))

	require.True(t, waitFor(t, 2*time.Second, func() bool {
		return !s.Armed(1)
	}), "burst should settle and unregister")

	assert.GreaterOrEqual(t, exec.attempts.Load(), int64(3))
	assert.Zero(t, exec.expired.Load())

	// No attempts fire after settlement.
	after := exec.attempts.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, exec.attempts.Load())
}

func TestRushScheduler_ExpiresWhenWindowCloses(t *testing.T) {
	exec := newScriptedExecutor(0) // never settles
	s := NewRushScheduler(testRushConfig(), exec)
	defer s.Stop()

	s.Arm(1, time.Now().Add(25*time.Millisecond))

	require.True(t, waitFor(t, 2*time.Second, func() bool {
		return exec.expired.Load() == 1
	}), "an unsettled burst must expire at the deadline")
	assert.Positive(t, exec.attempts.Load())
}

func TestRushScheduler_SkipsWithdrawnIntent(t *testing.T) {
	exec := newScriptedExecutor(1)
	exec.rushable.Store(false)
	s := NewRushScheduler(testRushConfig(), exec)
	defer s.Stop()

	s.Arm(1, time.Now().Add(25*time.Millisecond))

	require.True(t, waitFor(t, 2*time.Second, func() bool {
		return !s.Armed(1)
	}))
	assert.Zero(t, exec.attempts.Load())
}

func TestRushScheduler_CancelStopsPendingJob(t *testing.T) {
	exec := newScriptedExecutor(1)
	s := NewRushScheduler(testRushConfig(), exec)
	defer s.Stop()

	s.Arm(1, time.Now().Add(time.Hour))
	assert.True(t, s.Armed(1))

	s.Cancel(1)
	assert.False(t, s.Armed(1))

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, exec.attempts.Load())
}

func TestRushScheduler_RearmKeepsOneJob(t *testing.T) {
	exec := newScriptedExecutor(1)
	s := NewRushScheduler(testRushConfig(), exec)
	defer s.Stop()

	// Re-arm far in the future twice, then bring it near.
	s.Arm(1, time.Now().Add(time.Hour))
	s.Arm(1, time.Now().Add(2*time.Hour))
	s.Arm(1, time.Now().Add(30*time.Millisecond))
	assert.True(t, s.Armed(1))

	require.True(t, waitFor(t, 2*time.Second, func() bool {
		return !s.Armed(1)
	}))
	// Only the last arming fired; the replaced jobs never attempted.
	assert.GreaterOrEqual(t, exec.attempts.Load(), int64(1))
	assert.LessOrEqual(t, exec.attempts.Load(), int64(3))
	assert.Zero(t, exec.expired.Load())
}

func TestRushScheduler_StopWaitsForBursts(t *testing.T) {
	exec := newScriptedExecutor(0)
	s := NewRushScheduler(testRushConfig(), exec)

	s.Arm(1, time.Now().Add(25*time.Millisecond))
	require.True(t, waitFor(t, 2*time.Second, func() bool {
		return exec.attempts.Load() > 0
	}))

	s.Stop()
	after := exec.attempts.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, exec.attempts.Load(), "no attempts after Stop returns")
}
