// Package metrics exposes Prometheus collectors for the monitoring pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_fetches_total",
			Help: "Total fetch attempts, labeled by channel type and outcome.",
		},
		[]string{"channel", "outcome"},
	)

	updatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_updates_total",
			Help: "Total updates created by the pipeline, labeled by channel type.",
		},
		[]string{"channel"},
	)

	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_queue_jobs_total",
			Help: "Total jobs processed, labeled by queue and outcome.",
		},
		[]string{"queue", "outcome"},
	)

	jobsFailedPermanently = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_queue_jobs_failed_permanently_total",
			Help: "Jobs that exhausted their retry budget, labeled by queue.",
		},
		[]string{"queue"},
	)

	classificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_classifications_total",
			Help: "Total classifications produced, labeled by backend (ai or rules).",
		},
		[]string{"backend"},
	)

	notificationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_notifications_total",
			Help: "Total notification events published.",
		},
	)

	trendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_trends_total",
			Help: "Trend record mutations, labeled by action (created, merged, archived).",
		},
		[]string{"action"},
	)

	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "monitor_queue_depth",
			Help: "Jobs currently waiting in each queue.",
		},
		[]string{"queue"},
	)

	rateLimitWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "monitor_queue_rate_limit_wait_seconds",
			Help:    "Histogram of time spent waiting on queue rate limits.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"queue"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch increments the fetch counter for a channel and outcome.
func ObserveFetch(channel, outcome string) {
	fetchesTotal.WithLabelValues(channel, outcome).Inc()
}

// ObserveUpdateCreated increments the update counter for a channel.
func ObserveUpdateCreated(channel string) {
	updatesTotal.WithLabelValues(channel).Inc()
}

// ObserveJob increments the job counter for the given queue and outcome.
func ObserveJob(queue, outcome string) {
	jobsTotal.WithLabelValues(queue, outcome).Inc()
}

// ObservePermanentFailure increments the permanently-failed counter for a queue.
func ObservePermanentFailure(queue string) {
	jobsFailedPermanently.WithLabelValues(queue).Inc()
}

// ObserveClassification increments the classification counter for a backend.
func ObserveClassification(backend string) {
	classificationsTotal.WithLabelValues(backend).Inc()
}

// ObserveNotification increments the published-notification counter.
func ObserveNotification() {
	notificationsTotal.Inc()
}

// ObserveTrend increments the trend mutation counter for an action.
func ObserveTrend(action string) {
	trendsTotal.WithLabelValues(action).Inc()
}

// SetQueueDepth records the current waiting-job count for a queue.
func SetQueueDepth(queue string, depth int) {
	queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// ObserveRateLimitWait records the duration of a rate limit wait.
func ObserveRateLimitWait(queue string, duration time.Duration) {
	rateLimitWaitSeconds.WithLabelValues(queue).Observe(duration.Seconds())
}
