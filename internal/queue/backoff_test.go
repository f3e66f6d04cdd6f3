package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffFixed(t *testing.T) {
	t.Parallel()

	b := Backoff{Type: BackoffFixed, Delay: 5 * time.Second}
	require.Equal(t, 5*time.Second, b.Next(1))
	require.Equal(t, 5*time.Second, b.Next(4))
}

func TestBackoffExponentialDoubles(t *testing.T) {
	t.Parallel()

	b := Backoff{Type: BackoffExponential, Delay: 5 * time.Second}
	require.Equal(t, 5*time.Second, b.Next(1))
	require.Equal(t, 10*time.Second, b.Next(2))
	require.Equal(t, 20*time.Second, b.Next(3))
}

func TestBackoffExponentialCapped(t *testing.T) {
	t.Parallel()

	b := Backoff{Type: BackoffExponential, Delay: time.Minute}
	require.Equal(t, 5*time.Minute, b.Next(10))
}

func TestBackoffZeroDelayDefaults(t *testing.T) {
	t.Parallel()

	b := Backoff{Type: BackoffFixed}
	require.Equal(t, time.Second, b.Next(1))
}
