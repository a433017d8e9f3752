package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseBackoff: time.Second, MaxBackoff: 5 * time.Second}

	require.Equal(t, time.Second, p.Backoff(1))
	require.Equal(t, 2*time.Second, p.Backoff(2))
	require.Equal(t, 4*time.Second, p.Backoff(3))
	require.Equal(t, 5*time.Second, p.Backoff(4))
	require.Equal(t, 5*time.Second, p.Backoff(10))
}

func TestBackoffGuards(t *testing.T) {
	p := RetryPolicy{BaseBackoff: time.Second, MaxBackoff: time.Minute}

	require.Equal(t, time.Second, p.Backoff(0))
	require.Equal(t, time.Minute, p.Backoff(64))
}
