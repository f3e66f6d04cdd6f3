// Package scheduler turns per-competitor monitoring cadences into fetch
// queue jobs. One goroutine per cadence ticks at that cadence's interval
// and enqueues every due source; cadences fail independently.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/navbug/competitive-monitoring-platform-backend/internal/monitor"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/queue"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/worker"
)

const (
	fetchAttempts = 3
	fetchBackoff  = 10 * time.Second
	// Feed items are cheap to fetch and high-signal, so RSS sources always
	// ride at the top priority.
	rssPriority = 1
	// Manual triggers jump the queue regardless of competitor priority.
	triggerPriority = 1
)

// Enqueuer submits fetch jobs; satisfied by queue.Manager.
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName string, payload any, opts queue.Options) (string, error)
}

// Scheduler enqueues due fetch work.
type Scheduler struct {
	store  monitor.CompetitorStore
	enq    Enqueuer
	logger *zap.Logger
}

// New builds a Scheduler.
func New(store monitor.CompetitorStore, enq Enqueuer, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		store:  store,
		enq:    enq,
		logger: logger.Named("scheduler"),
	}
}

// Run drives every cadence until the context finishes.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, cadence := range monitor.AllCadences() {
		wg.Add(1)
		go func(c monitor.Cadence) {
			defer wg.Done()
			s.RunCadence(ctx, c)
		}(cadence)
	}
	wg.Wait()
}

// RunCadence ticks at the cadence's interval and enqueues its due sources.
// A failing tick is logged and the loop keeps going.
func (s *Scheduler) RunCadence(ctx context.Context, cadence monitor.Cadence) {
	interval := cadence.Interval()
	if interval <= 0 {
		s.logger.Error("unknown cadence, not scheduling", zap.String("cadence", string(cadence)))
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			enqueued, err := s.EnqueueDue(ctx, cadence)
			if err != nil {
				s.logger.Error("cadence tick failed",
					zap.String("cadence", string(cadence)), zap.Error(err))
				continue
			}
			if enqueued > 0 {
				s.logger.Info("cadence tick enqueued sources",
					zap.String("cadence", string(cadence)),
					zap.Int("enqueued", enqueued),
				)
			}
		}
	}
}

// EnqueueDue enqueues a fetch job for every source due at the cadence and
// returns how many were accepted. One bad source does not block the rest.
func (s *Scheduler) EnqueueDue(ctx context.Context, cadence monitor.Cadence) (int, error) {
	sources, err := s.store.ListDueSources(ctx, cadence)
	if err != nil {
		return 0, fmt.Errorf("list due sources: %w", err)
	}

	priorities := make(map[string]int)
	enqueued := 0
	for _, src := range sources {
		priority, ok := priorities[src.CompetitorID]
		if !ok {
			competitor, err := s.store.GetCompetitor(ctx, src.CompetitorID)
			if err != nil {
				s.logger.Warn("skip source, competitor lookup failed",
					zap.String("competitor_id", src.CompetitorID), zap.Error(err))
				continue
			}
			priority = competitor.Monitoring.Priority.QueueValue()
			priorities[src.CompetitorID] = priority
		}
		if src.Type == monitor.ChannelRSS {
			priority = rssPriority
		}

		if err := s.enqueueFetch(ctx, src, priority); err != nil {
			s.logger.Warn("enqueue fetch failed",
				zap.String("url", src.URL), zap.Error(err))
			continue
		}
		enqueued++
	}
	return enqueued, nil
}

// TriggerCompetitor enqueues all of one competitor's sources at top
// priority, for on-demand scrapes via the API.
func (s *Scheduler) TriggerCompetitor(ctx context.Context, competitorID string) (int, error) {
	if _, err := s.store.GetCompetitor(ctx, competitorID); err != nil {
		return 0, err
	}
	sources, err := s.store.ListSources(ctx, competitorID)
	if err != nil {
		return 0, fmt.Errorf("list sources: %w", err)
	}

	enqueued := 0
	for _, src := range sources {
		if err := s.enqueueFetch(ctx, src, triggerPriority); err != nil {
			s.logger.Warn("enqueue triggered fetch failed",
				zap.String("url", src.URL), zap.Error(err))
			continue
		}
		enqueued++
	}
	return enqueued, nil
}

func (s *Scheduler) enqueueFetch(ctx context.Context, src monitor.Source, priority int) error {
	payload := monitor.FetchJob{
		CompetitorID: src.CompetitorID,
		URL:          src.URL,
		Type:         src.Type,
	}
	_, err := s.enq.Enqueue(ctx, worker.QueueFetch, payload, queue.Options{
		Priority:    priority,
		MaxAttempts: fetchAttempts,
		Backoff:     queue.Backoff{Type: queue.BackoffExponential, Delay: fetchBackoff},
	})
	return err
}
