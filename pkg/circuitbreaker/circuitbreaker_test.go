package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failing(context.Context) error { return errBoom }
func succeeding(context.Context) error { return nil }

func testConfig() Config {
	cfg := DefaultConfig("test")
	cfg.FailureThreshold = 3
	cfg.Cooldown = 20 * time.Millisecond
	return cfg
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := New(testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Execute(ctx, failing), errBoom)
	}
	assert.Equal(t, StateOpen, b.State())

	// While open, the function is never invoked.
	called := false
	err := b.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreaker_SuccessResetsFailureRun(t *testing.T) {
	b := New(testConfig())
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, failing))
	require.Error(t, b.Execute(ctx, failing))
	require.NoError(t, b.Execute(ctx, succeeding))
	require.Error(t, b.Execute(ctx, failing))
	require.Error(t, b.Execute(ctx, failing))

	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_ProbeClosesAfterCooldown(t *testing.T) {
	b := New(testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.Error(t, b.Execute(ctx, failing))
	}
	require.Equal(t, StateOpen, b.State())

	time.Sleep(25 * time.Millisecond)

	require.NoError(t, b.Execute(ctx, succeeding))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b := New(testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.Error(t, b.Execute(ctx, failing))
	}
	time.Sleep(25 * time.Millisecond)

	assert.ErrorIs(t, b.Execute(ctx, failing), errBoom)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_NotifiesStateChanges(t *testing.T) {
	var transitions []string
	cfg := testConfig()
	cfg.OnStateChange = func(name string, from, to State) {
		transitions = append(transitions, from.String()+">"+to.String())
	}
	b := New(cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.Error(t, b.Execute(ctx, failing))
	}
	time.Sleep(25 * time.Millisecond)
	require.NoError(t, b.Execute(ctx, succeeding))

	assert.Equal(t, []string{"closed>open", "open>half-open", "half-open>closed"}, transitions)
}

func TestBreaker_ResetForcesClosed(t *testing.T) {
	b := New(testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.Error(t, b.Execute(ctx, failing))
	}
	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Execute(ctx, succeeding))
}
