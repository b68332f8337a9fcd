package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker(Settings{
		Name:        "test",
		MaxRequests: 3,
		Timeout:     time.Minute,
	})
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		require.Error(t, cb.Execute(func() error { return boom }))
	}

	err := cb.Execute(func() error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker test is open")
}

func TestCircuitBreakerRecoversAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker(Settings{
		Name:        "test",
		MaxRequests: 1,
		Timeout:     10 * time.Millisecond,
	})

	require.Error(t, cb.Execute(func() error { return errors.New("boom") }))
	require.Error(t, cb.Execute(func() error { return nil }), "still open")

	time.Sleep(20 * time.Millisecond)

	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.NoError(t, cb.Execute(func() error { return nil }), "closed again")
}

func TestCircuitBreakerResetsFailureCountOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker(Settings{
		Name:        "test",
		MaxRequests: 2,
		Timeout:     time.Minute,
	})

	require.Error(t, cb.Execute(func() error { return errors.New("boom") }))
	require.NoError(t, cb.Execute(func() error { return nil }))
	require.Error(t, cb.Execute(func() error { return errors.New("boom") }))

	// One more failure is still below the threshold after the reset.
	assert.NoError(t, cb.Execute(func() error { return nil }))
}
