// Package worker implements the job handlers behind the pipeline queues:
// fetching sources, classifying detected updates, and publishing
// notifications.
package worker

import (
	"context"
	"time"

	"github.com/navbug/competitive-monitoring-platform-backend/internal/fetcher"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/queue"
)

// Queue names shared by the scheduler, workers, and API.
const (
	QueueFetch          = "fetch"
	QueueClassification = "classification"
	QueueNotification   = "notification"
)

// Classification retry policy: transient AI or storage hiccups get a few
// tries with growing spacing.
const (
	classificationAttempts = 3
	classificationBackoff  = 5 * time.Second
)

// WebFetcher retrieves and extracts one web page.
type WebFetcher interface {
	Fetch(ctx context.Context, url string) (fetcher.Page, error)
}

// FeedFetcher retrieves the newest entries of one feed.
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) ([]fetcher.FeedItem, error)
}

// Enqueuer submits follow-up jobs; satisfied by queue.Manager.
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName string, payload any, opts queue.Options) (string, error)
}
