// Package notifier decides which classified updates warrant a notification.
package notifier

import "github.com/navbug/competitive-monitoring-platform-backend/internal/monitor"

// Gate holds the minimum impact level that triggers a notification.
type Gate struct {
	Threshold monitor.ImpactLevel
}

// New builds a Gate. An invalid threshold falls back to high.
func New(threshold monitor.ImpactLevel) Gate {
	if !threshold.Valid() {
		threshold = monitor.ImpactHigh
	}
	return Gate{Threshold: threshold}
}

// ShouldNotify reports whether an update at the given impact level clears
// the threshold. Unknown levels never notify.
func (g Gate) ShouldNotify(level monitor.ImpactLevel) bool {
	return level.AtLeast(g.Threshold)
}
