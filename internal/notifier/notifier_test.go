package notifier

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/navbug/competitive-monitoring-platform-backend/internal/monitor"
)

func TestShouldNotifyHighThreshold(t *testing.T) {
	t.Parallel()

	g := New(monitor.ImpactHigh)
	require.False(t, g.ShouldNotify(monitor.ImpactLow))
	require.False(t, g.ShouldNotify(monitor.ImpactMedium))
	require.True(t, g.ShouldNotify(monitor.ImpactHigh))
	require.True(t, g.ShouldNotify(monitor.ImpactCritical))
}

func TestShouldNotifyLowThresholdAcceptsAll(t *testing.T) {
	t.Parallel()

	g := New(monitor.ImpactLow)
	for _, level := range []monitor.ImpactLevel{
		monitor.ImpactLow, monitor.ImpactMedium, monitor.ImpactHigh, monitor.ImpactCritical,
	} {
		require.True(t, g.ShouldNotify(level))
	}
}

func TestShouldNotifyUnknownLevel(t *testing.T) {
	t.Parallel()

	g := New(monitor.ImpactHigh)
	require.False(t, g.ShouldNotify(monitor.ImpactLevel("bogus")))
}

func TestNewInvalidThresholdDefaultsToHigh(t *testing.T) {
	t.Parallel()

	g := New(monitor.ImpactLevel("bogus"))
	require.Equal(t, monitor.ImpactHigh, g.Threshold)
}
