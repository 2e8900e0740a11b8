package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(name string) *Config {
	return &Config{
		Name:             name,
		MaxFailures:      3,
		FailureThreshold: 0.5,
		Timeout:          20 * time.Millisecond,
		HalfOpenMaxCalls: 1,
	}
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker(testConfig("rpc"))
	ctx := context.Background()
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		err := cb.Execute(ctx, func() error { return boom })
		require.ErrorIs(t, err, boom)
	}
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(ctx, func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_RecoversThroughHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(testConfig("rpc"))
	ctx := context.Background()
	cb.ForceOpen()

	time.Sleep(30 * time.Millisecond)

	err := cb.Execute(ctx, func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(testConfig("rpc"))
	ctx := context.Background()
	cb.ForceOpen()

	time.Sleep(30 * time.Millisecond)

	_ = cb.Execute(ctx, func() error { return errors.New("still down") })
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreaker_CancelledContextNotCounted(t *testing.T) {
	cb := NewCircuitBreaker(testConfig("rpc"))
	ctx, cancel := context.WithCancel(context.Background())

	err := cb.Execute(ctx, func() error {
		cancel()
		return context.Canceled
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, cb.GetStats().Failures)
}

func TestManager_Get(t *testing.T) {
	m := NewManager(testConfig)

	a := m.Get("primary")
	b := m.Get("primary")
	c := m.Get("secondary")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)

	stats := m.Stats()
	assert.Len(t, stats, 2)
	assert.Equal(t, StateClosed, stats["primary"].State)
}
