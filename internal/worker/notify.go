package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/navbug/competitive-monitoring-platform-backend/internal/metrics"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/monitor"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/queue"
)

// NotifyWorker publishes notification events and marks updates as notified.
type NotifyWorker struct {
	store     monitor.UpdateStore
	publisher monitor.Publisher
	topic     string
	clock     monitor.Clock
	logger    *zap.Logger
}

// NewNotifyWorker builds a NotifyWorker.
func NewNotifyWorker(store monitor.UpdateStore, publisher monitor.Publisher, topic string, clock monitor.Clock, logger *zap.Logger) *NotifyWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotifyWorker{
		store:     store,
		publisher: publisher,
		topic:     topic,
		clock:     clock,
		logger:    logger.Named("notify-worker"),
	}
}

// notificationEvent is the wire shape published to the topic.
type notificationEvent struct {
	UpdateID     string              `json:"updateId"`
	CompetitorID string              `json:"competitorId"`
	ImpactLevel  monitor.ImpactLevel `json:"impactLevel"`
	Category     monitor.Category    `json:"category"`
	PublishedAt  string              `json:"publishedAt"`
}

// Handle publishes one notification. Publish failures are retryable.
func (w *NotifyWorker) Handle(ctx context.Context, job queue.Job) error {
	var payload monitor.NotificationJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return queue.Permanent(fmt.Errorf("decode notification job: %w", err))
	}

	event := notificationEvent{
		UpdateID:     payload.UpdateID,
		CompetitorID: payload.CompetitorID,
		ImpactLevel:  payload.ImpactLevel,
		Category:     payload.Category,
		PublishedAt:  w.clock.Now().UTC().Format(time.RFC3339),
	}
	msgID, err := w.publisher.Publish(ctx, w.topic, event)
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}

	if err := w.store.MarkNotified(ctx, payload.UpdateID); err != nil {
		w.logger.Warn("mark notified", zap.String("update_id", payload.UpdateID), zap.Error(err))
	}
	metrics.ObserveNotification()

	w.logger.Info("notification published",
		zap.String("update_id", payload.UpdateID),
		zap.String("message_id", msgID),
		zap.String("impact", string(payload.ImpactLevel)),
	)
	return nil
}
