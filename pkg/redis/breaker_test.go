package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := newBreaker(3, 2, time.Minute)

	for i := 0; i < 2; i++ {
		b.failure()
		assert.True(t, b.allow())
	}
	b.failure()
	assert.Equal(t, circuitOpen, b.state())
	assert.False(t, b.allow())
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newBreaker(1, 2, 10*time.Second)
	b.now = func() time.Time { return clock }

	b.failure()
	assert.False(t, b.allow())

	clock = clock.Add(11 * time.Second)
	assert.True(t, b.allow())
	assert.Equal(t, circuitHalfOpen, b.state())

	b.success()
	assert.Equal(t, circuitHalfOpen, b.state())
	b.success()
	assert.Equal(t, circuitClosed, b.state())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newBreaker(2, 1, time.Second)
	b.now = func() time.Time { return clock }

	b.failure()
	b.failure()
	clock = clock.Add(2 * time.Second)
	assert.True(t, b.allow())

	b.failure()
	assert.Equal(t, circuitOpen, b.state())

	b.reset()
	assert.Equal(t, circuitClosed, b.state())
	assert.True(t, b.allow())
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := newBreaker(2, 1, time.Minute)
	b.failure()
	b.success()
	b.failure()
	assert.Equal(t, circuitClosed, b.state())
}

func TestConnectionStateString(t *testing.T) {
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "reconnecting", StateReconnecting.String())
	assert.Equal(t, "unknown", ConnectionState(42).String())
}
