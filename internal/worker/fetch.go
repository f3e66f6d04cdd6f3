package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/navbug/competitive-monitoring-platform-backend/internal/detector"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/fetcher"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/metrics"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/monitor"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/queue"
)

// FetchWorker handles fetch queue jobs: it retrieves a source, detects
// changes, persists updates, and enqueues classification work.
type FetchWorker struct {
	store          monitor.Store
	web            WebFetcher
	feeds          FeedFetcher
	detector       *detector.Detector
	snapshots      monitor.BlobStore
	hasher         monitor.Hasher
	ids            monitor.IDGenerator
	clock          monitor.Clock
	enq            Enqueuer
	logger         *zap.Logger
	courtesyDelay  time.Duration
	snapshotPrefix string
}

// FetchWorkerConfig wires a FetchWorker's collaborators.
type FetchWorkerConfig struct {
	Store          monitor.Store
	Web            WebFetcher
	Feeds          FeedFetcher
	Detector       *detector.Detector
	Snapshots      monitor.BlobStore
	Hasher         monitor.Hasher
	IDs            monitor.IDGenerator
	Clock          monitor.Clock
	Enqueuer       Enqueuer
	Logger         *zap.Logger
	CourtesyDelay  time.Duration
	SnapshotPrefix string
}

// NewFetchWorker builds a FetchWorker.
func NewFetchWorker(cfg FetchWorkerConfig) *FetchWorker {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := cfg.SnapshotPrefix
	if prefix == "" {
		prefix = "pages"
	}
	return &FetchWorker{
		store:          cfg.Store,
		web:            cfg.Web,
		feeds:          cfg.Feeds,
		detector:       cfg.Detector,
		snapshots:      cfg.Snapshots,
		hasher:         cfg.Hasher,
		ids:            cfg.IDs,
		clock:          cfg.Clock,
		enq:            cfg.Enqueuer,
		logger:         logger.Named("fetch-worker"),
		courtesyDelay:  cfg.CourtesyDelay,
		snapshotPrefix: prefix,
	}
}

// Handle processes one fetch job. Transport and storage errors are
// retryable; a missing competitor or malformed payload is permanent.
func (w *FetchWorker) Handle(ctx context.Context, job queue.Job) error {
	var payload monitor.FetchJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return queue.Permanent(fmt.Errorf("decode fetch job: %w", err))
	}
	if !payload.Type.Valid() {
		return queue.Permanent(fmt.Errorf("unknown channel type %q", payload.Type))
	}

	competitor, err := w.store.GetCompetitor(ctx, payload.CompetitorID)
	if errors.Is(err, monitor.ErrNotFound) {
		return queue.Permanent(fmt.Errorf("competitor %s: %w", payload.CompetitorID, err))
	}
	if err != nil {
		return fmt.Errorf("load competitor: %w", err)
	}

	// Be polite to the target regardless of how the fetch went.
	defer w.courtesy(ctx)

	var created int
	switch payload.Type {
	case monitor.ChannelWebsite:
		created, err = w.fetchWebsite(ctx, competitor, payload.URL)
	case monitor.ChannelRSS:
		created, err = w.fetchFeed(ctx, competitor, payload.URL)
	}
	if err != nil {
		metrics.ObserveFetch(string(payload.Type), "failed")
		if failErr := w.store.RecordScrapeFailure(ctx, competitor.ID); failErr != nil {
			w.logger.Warn("record scrape failure", zap.Error(failErr))
		}
		return fmt.Errorf("fetch %s: %w", payload.URL, err)
	}

	now := w.clock.Now()
	if err := w.store.MarkSourceChecked(ctx, competitor.ID, payload.URL, now); err != nil {
		w.logger.Warn("mark source checked", zap.String("url", payload.URL), zap.Error(err))
	}
	if err := w.store.RecordScrapeSuccess(ctx, competitor.ID, now, created); err != nil {
		w.logger.Warn("record scrape success", zap.Error(err))
	}
	metrics.ObserveFetch(string(payload.Type), "succeeded")

	w.logger.Info("source fetched",
		zap.String("competitor_id", competitor.ID),
		zap.String("url", payload.URL),
		zap.String("type", string(payload.Type)),
		zap.Int("updates_created", created),
	)
	return nil
}

func (w *FetchWorker) fetchWebsite(ctx context.Context, competitor monitor.Competitor, url string) (int, error) {
	page, err := w.web.Fetch(ctx, url)
	if err != nil {
		return 0, err
	}

	latest, err := w.store.LatestUpdateForSource(ctx, competitor.ID, url)
	if err != nil {
		return 0, fmt.Errorf("load latest update: %w", err)
	}
	var oldContent string
	if latest != nil {
		oldContent = latest.Content
	}
	if !w.detector.Changed(oldContent, page.Content) {
		return 0, nil
	}

	title := page.Title
	if title == "" {
		title = competitor.Name + " website update"
	}

	update := monitor.Update{
		CompetitorID: competitor.ID,
		Title:        title,
		Content:      page.Content,
		Source:       monitor.SourceRef{Type: monitor.ChannelWebsite, URL: url},
		DetectedAt:   w.clock.Now(),
		Status:       monitor.UpdateStatusNew,
		Metadata: monitor.UpdateMetadata{
			WordCount:   page.WordCount,
			HasPricing:  page.HasPricing,
			Links:       page.Links,
			SnapshotURI: w.archiveSnapshot(ctx, page),
		},
	}
	created, err := w.createUpdate(ctx, update, monitor.ChannelWebsite)
	if err != nil {
		return 0, err
	}
	return created, nil
}

func (w *FetchWorker) fetchFeed(ctx context.Context, competitor monitor.Competitor, url string) (int, error) {
	items, err := w.feeds.Fetch(ctx, url)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, item := range items {
		exists, err := w.store.UpdateExists(ctx, competitor.ID, item.Link, item.Title)
		if err != nil {
			w.logger.Warn("feed dedup check failed",
				zap.String("link", item.Link), zap.Error(err))
			continue
		}
		if exists {
			continue
		}

		update := monitor.Update{
			CompetitorID: competitor.ID,
			Title:        item.Title,
			Content:      item.Content,
			Source:       monitor.SourceRef{Type: monitor.ChannelRSS, URL: item.Link},
			DetectedAt:   item.Published,
			Status:       monitor.UpdateStatusNew,
			Metadata: monitor.UpdateMetadata{
				WordCount: wordCount(item.Content),
			},
		}
		// One bad entry must not sink the rest of the feed.
		n, err := w.createUpdate(ctx, update, monitor.ChannelRSS)
		if err != nil {
			w.logger.Warn("persist feed item failed",
				zap.String("link", item.Link), zap.Error(err))
			continue
		}
		created += n
	}
	return created, nil
}

// createUpdate assigns an ID and content digest, persists the update, and
// enqueues its classification. A duplicate row is the normal no-op outcome.
func (w *FetchWorker) createUpdate(ctx context.Context, update monitor.Update, channel monitor.ChannelType) (int, error) {
	id, err := w.ids.NewID()
	if err != nil {
		return 0, fmt.Errorf("new update id: %w", err)
	}
	update.ID = id

	// The digest is part of the duplicate key: concurrent refetches of the
	// same content collide, a later change to the same titled page does not.
	if w.hasher != nil {
		digest, err := w.hasher.Hash([]byte(update.Content))
		if err != nil {
			return 0, fmt.Errorf("hash update content: %w", err)
		}
		update.ContentHash = digest
	}

	err = w.store.CreateUpdate(ctx, update)
	if errors.Is(err, monitor.ErrDuplicateUpdate) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("create update: %w", err)
	}
	metrics.ObserveUpdateCreated(string(channel))

	jobPayload := monitor.ClassificationJob{
		UpdateID:     update.ID,
		Title:        update.Title,
		Content:      update.Content,
		CompetitorID: update.CompetitorID,
	}
	_, err = w.enq.Enqueue(ctx, QueueClassification, jobPayload, queue.Options{
		MaxAttempts: classificationAttempts,
		Backoff:     queue.Backoff{Type: queue.BackoffExponential, Delay: classificationBackoff},
	})
	if err != nil {
		w.logger.Error("enqueue classification failed",
			zap.String("update_id", update.ID), zap.Error(err))
	}
	return 1, nil
}

func (w *FetchWorker) archiveSnapshot(ctx context.Context, page fetcher.Page) string {
	if w.snapshots == nil || w.hasher == nil || len(page.RawHTML) == 0 {
		return ""
	}
	digest, err := w.hasher.Hash(page.RawHTML)
	if err != nil {
		w.logger.Warn("hash snapshot failed", zap.Error(err))
		return ""
	}
	uri, err := w.snapshots.PutObject(ctx, fmt.Sprintf("%s/%s.html", w.snapshotPrefix, digest), "text/html", page.RawHTML)
	if err != nil {
		w.logger.Warn("archive snapshot failed",
			zap.String("url", page.URL), zap.Error(err))
		return ""
	}
	return uri
}

func (w *FetchWorker) courtesy(ctx context.Context) {
	if w.courtesyDelay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(w.courtesyDelay):
	}
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
