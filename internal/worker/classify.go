package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/navbug/competitive-monitoring-platform-backend/internal/classifier"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/monitor"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/notifier"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/queue"
)

// ClassifyWorker handles classification queue jobs: it enriches an update
// and conditionally enqueues a notification.
type ClassifyWorker struct {
	store      monitor.Store
	classifier *classifier.Service
	gate       notifier.Gate
	clock      monitor.Clock
	enq        Enqueuer
	logger     *zap.Logger
}

// NewClassifyWorker builds a ClassifyWorker.
func NewClassifyWorker(store monitor.Store, svc *classifier.Service, gate notifier.Gate, clock monitor.Clock, enq Enqueuer, logger *zap.Logger) *ClassifyWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassifyWorker{
		store:      store,
		classifier: svc,
		gate:       gate,
		clock:      clock,
		enq:        enq,
		logger:     logger.Named("classify-worker"),
	}
}

// Handle processes one classification job. The classifier itself never
// fails; only persistence errors are retryable here.
func (w *ClassifyWorker) Handle(ctx context.Context, job queue.Job) error {
	var payload monitor.ClassificationJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return queue.Permanent(fmt.Errorf("decode classification job: %w", err))
	}

	competitor, err := w.store.GetCompetitor(ctx, payload.CompetitorID)
	if errors.Is(err, monitor.ErrNotFound) {
		return queue.Permanent(fmt.Errorf("competitor %s: %w", payload.CompetitorID, err))
	}
	if err != nil {
		return fmt.Errorf("load competitor: %w", err)
	}

	result := w.classifier.Classify(ctx, payload.Title, payload.Content, competitor.Name)

	err = w.store.ApplyClassification(ctx, payload.UpdateID,
		result.Classification, result.Summary, result.Sentiment, result.HasPricing)
	if errors.Is(err, monitor.ErrNotFound) {
		return queue.Permanent(fmt.Errorf("update %s: %w", payload.UpdateID, err))
	}
	if err != nil {
		return fmt.Errorf("apply classification: %w", err)
	}

	if err := w.store.RecordUpdateDetected(ctx, competitor.ID, w.clock.Now()); err != nil {
		w.logger.Warn("record update detected", zap.Error(err))
	}

	w.logger.Info("update classified",
		zap.String("update_id", payload.UpdateID),
		zap.String("category", string(result.Classification.Category)),
		zap.String("impact", string(result.Classification.ImpactLevel)),
		zap.String("classified_by", string(result.Classification.ClassifiedBy)),
	)

	if !w.gate.ShouldNotify(result.Classification.ImpactLevel) {
		return nil
	}

	notification := monitor.NotificationJob{
		UpdateID:     payload.UpdateID,
		CompetitorID: competitor.ID,
		ImpactLevel:  result.Classification.ImpactLevel,
		Category:     result.Classification.Category,
	}
	if _, err := w.enq.Enqueue(ctx, QueueNotification, notification, queue.Options{}); err != nil {
		w.logger.Error("enqueue notification failed",
			zap.String("update_id", payload.UpdateID), zap.Error(err))
	}
	return nil
}
