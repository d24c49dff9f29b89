package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterEnforcesWindow(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		require.True(t, rl.Allow("ua"), "attempt %d within limit", i+1)
	}
	require.False(t, rl.Allow("ua"))
	require.False(t, rl.Allow("ua"), "still blocked inside the window")
}

func TestRateLimiterIsPerUser(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	require.True(t, rl.Allow("ua"))
	require.False(t, rl.Allow("ua"))
	require.True(t, rl.Allow("ub"), "one user's burst never throttles another")
}

func TestRateLimiterRecoversAfterInterval(t *testing.T) {
	rl := NewRateLimiter(1, 20*time.Millisecond)

	require.True(t, rl.Allow("ua"))
	require.False(t, rl.Allow("ua"))

	time.Sleep(30 * time.Millisecond)
	require.True(t, rl.Allow("ua"), "window slid past the first attempt")
}
