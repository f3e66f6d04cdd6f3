// Package memory implements monitor.Store with in-process maps. It backs
// development mode and the worker and trend tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/navbug/competitive-monitoring-platform-backend/internal/monitor"
)

// Store holds all state behind a single mutex. Operations are cheap; the
// coarse lock keeps the uniqueness checks race-free.
type Store struct {
	mu          sync.RWMutex
	competitors map[string]monitor.Competitor
	sources     map[string][]monitor.Source
	updates     map[string]monitor.Update
	updateOrder []string
	trends      map[string]monitor.Trend
	trendOrder  []string
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		competitors: make(map[string]monitor.Competitor),
		sources:     make(map[string][]monitor.Source),
		updates:     make(map[string]monitor.Update),
		trends:      make(map[string]monitor.Trend),
	}
}

// PutCompetitor inserts or replaces a competitor.
func (s *Store) PutCompetitor(c monitor.Competitor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.competitors[c.ID] = c
}

// PutSource registers a monitored source, replacing any existing source with
// the same competitor, type, and URL.
func (s *Store) PutSource(src monitor.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.sources[src.CompetitorID]
	for i, existing := range list {
		if existing.Type == src.Type && existing.URL == src.URL {
			list[i] = src
			return
		}
	}
	s.sources[src.CompetitorID] = append(list, src)
}

// GetCompetitor returns a competitor by ID.
func (s *Store) GetCompetitor(_ context.Context, id string) (monitor.Competitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.competitors[id]
	if !ok {
		return monitor.Competitor{}, monitor.ErrNotFound
	}
	return c, nil
}

// ListDueSources returns every source belonging to an active competitor with
// monitoring enabled at the given cadence.
func (s *Store) ListDueSources(_ context.Context, cadence monitor.Cadence) ([]monitor.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []monitor.Source
	for id, c := range s.competitors {
		if c.Status != monitor.CompetitorActive || !c.Monitoring.Enabled || c.Monitoring.Cadence != cadence {
			continue
		}
		due = append(due, s.sources[id]...)
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].CompetitorID != due[j].CompetitorID {
			return due[i].CompetitorID < due[j].CompetitorID
		}
		return due[i].URL < due[j].URL
	})
	return due, nil
}

// ListSources returns the sources of one competitor.
func (s *Store) ListSources(_ context.Context, competitorID string) ([]monitor.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.competitors[competitorID]; !ok {
		return nil, monitor.ErrNotFound
	}
	out := make([]monitor.Source, len(s.sources[competitorID]))
	copy(out, s.sources[competitorID])
	return out, nil
}

// MarkSourceChecked records when a source was last fetched.
func (s *Store) MarkSourceChecked(_ context.Context, competitorID, url string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.sources[competitorID]
	for i := range list {
		if list[i].URL == url {
			checked := at
			list[i].LastChecked = &checked
			return nil
		}
	}
	return monitor.ErrNotFound
}

// RecordScrapeSuccess updates competitor metrics after a successful fetch.
func (s *Store) RecordScrapeSuccess(_ context.Context, competitorID string, at time.Time, newUpdates int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.competitors[competitorID]
	if !ok {
		return monitor.ErrNotFound
	}
	scraped := at
	c.Metrics.LastSuccessfulScrape = &scraped
	c.Metrics.TotalUpdates += int64(newUpdates)
	s.competitors[competitorID] = c
	return nil
}

// RecordScrapeFailure increments the competitor's failed scrape counter.
func (s *Store) RecordScrapeFailure(_ context.Context, competitorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.competitors[competitorID]
	if !ok {
		return monitor.ErrNotFound
	}
	c.Metrics.FailedScrapeCount++
	s.competitors[competitorID] = c
	return nil
}

// RecordUpdateDetected stamps the competitor's last-update-detected time.
func (s *Store) RecordUpdateDetected(_ context.Context, competitorID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.competitors[competitorID]
	if !ok {
		return monitor.ErrNotFound
	}
	detected := at
	c.Metrics.LastUpdateDetected = &detected
	s.competitors[competitorID] = c
	return nil
}

// CreateUpdate persists a new update, enforcing the uniqueness constraint on
// (competitor, source URL, title, content hash).
func (s *Store) CreateUpdate(_ context.Context, update monitor.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.updateOrder {
		existing := s.updates[id]
		if existing.CompetitorID == update.CompetitorID &&
			existing.Source.URL == update.Source.URL &&
			existing.Title == update.Title &&
			existing.ContentHash == update.ContentHash {
			return monitor.ErrDuplicateUpdate
		}
	}
	s.updates[update.ID] = update
	s.updateOrder = append(s.updateOrder, update.ID)
	return nil
}

// UpdateExists reports whether the competitor already has an update with the
// same source URL or the same title. Feed items republished under a new link
// still dedupe on the title.
func (s *Store) UpdateExists(_ context.Context, competitorID, sourceURL, title string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.updateOrder {
		u := s.updates[id]
		if u.CompetitorID != competitorID {
			continue
		}
		if u.Source.URL == sourceURL || u.Title == title {
			return true, nil
		}
	}
	return false, nil
}

// LatestUpdateForSource returns the newest update for one competitor source,
// or nil when none exists.
func (s *Store) LatestUpdateForSource(_ context.Context, competitorID, sourceURL string) (*monitor.Update, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *monitor.Update
	for _, id := range s.updateOrder {
		u := s.updates[id]
		if u.CompetitorID != competitorID || u.Source.URL != sourceURL {
			continue
		}
		if latest == nil || u.DetectedAt.After(latest.DetectedAt) {
			copied := u
			latest = &copied
		}
	}
	return latest, nil
}

// ApplyClassification writes the classifier's enrichment onto an update.
func (s *Store) ApplyClassification(_ context.Context, updateID string, c monitor.Classification, summary string, sentiment monitor.Sentiment, hasPricing bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.updates[updateID]
	if !ok {
		return monitor.ErrNotFound
	}
	u.Classification = &c
	u.Summary = summary
	u.Sentiment = sentiment
	u.Metadata.HasPricing = u.Metadata.HasPricing || hasPricing
	s.updates[updateID] = u
	return nil
}

// MarkNotified flags an update as having had its notification published.
func (s *Store) MarkNotified(_ context.Context, updateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.updates[updateID]
	if !ok {
		return monitor.ErrNotFound
	}
	u.NotificationSent = true
	s.updates[updateID] = u
	return nil
}

// ListRecentUpdates returns updates detected at or after since, optionally
// filtered by status, newest first.
func (s *Store) ListRecentUpdates(_ context.Context, since time.Time, status monitor.UpdateStatus, limit int) ([]monitor.Update, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []monitor.Update
	for _, id := range s.updateOrder {
		u := s.updates[id]
		if u.DetectedAt.Before(since) {
			continue
		}
		if status != "" && u.Status != status {
			continue
		}
		out = append(out, u)
	}
	sortUpdatesNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListUpdatesSince returns every update detected at or after since.
func (s *Store) ListUpdatesSince(ctx context.Context, since time.Time) ([]monitor.Update, error) {
	return s.ListRecentUpdates(ctx, since, "", 0)
}

// ListUpdatesByImpact returns classified updates at the given impact levels,
// newest first.
func (s *Store) ListUpdatesByImpact(_ context.Context, levels []monitor.ImpactLevel, limit int) ([]monitor.Update, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[monitor.ImpactLevel]struct{}, len(levels))
	for _, l := range levels {
		wanted[l] = struct{}{}
	}
	var out []monitor.Update
	for _, id := range s.updateOrder {
		u := s.updates[id]
		if u.Classification == nil {
			continue
		}
		if _, ok := wanted[u.Classification.ImpactLevel]; !ok {
			continue
		}
		out = append(out, u)
	}
	sortUpdatesNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CreateTrend persists a new trend cluster.
func (s *Store) CreateTrend(_ context.Context, trend monitor.Trend) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trends[trend.ID] = trend
	s.trendOrder = append(s.trendOrder, trend.ID)
	return nil
}

// FindOpenTrendMatching returns a non-archived trend whose pattern contains,
// or is contained by, the given pattern (case-insensitive), or nil.
func (s *Store) FindOpenTrendMatching(_ context.Context, pattern string) (*monitor.Trend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(pattern)
	for _, id := range s.trendOrder {
		t := s.trends[id]
		if t.Status == monitor.TrendStatusArchived {
			continue
		}
		existing := strings.ToLower(t.Pattern)
		if strings.Contains(existing, needle) || strings.Contains(needle, existing) {
			copied := t
			return &copied, nil
		}
	}
	return nil, nil
}

// OpenTrendExistsForCategory reports whether a non-archived trend already
// exists for the category.
func (s *Store) OpenTrendExistsForCategory(_ context.Context, category monitor.Category) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.trends {
		if t.Status != monitor.TrendStatusArchived && t.Category == category {
			return true, nil
		}
	}
	return false, nil
}

// MergeTrend folds a new observation into an existing trend: the last-seen
// time advances, the frequency count increments, update and competitor sets
// grow by union, insights are replaced, and the trend becomes active.
func (s *Store) MergeTrend(_ context.Context, trendID string, seenAt time.Time, updateIDs, competitorIDs []string, insights string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trends[trendID]
	if !ok {
		return monitor.ErrNotFound
	}
	if seenAt.After(t.Timeframe.LastSeen) {
		t.Timeframe.LastSeen = seenAt
	}
	t.Frequency.Count++
	t.RelatedUpdates = unionStrings(t.RelatedUpdates, updateIDs)
	t.AffectedCompetitors = unionStrings(t.AffectedCompetitors, competitorIDs)
	if insights != "" {
		t.Insights = insights
	}
	t.Status = monitor.TrendStatusActive
	s.trends[trendID] = t
	return nil
}

// ArchiveStaleTrends archives every non-archived trend last seen before the
// cutoff and returns how many were archived.
func (s *Store) ArchiveStaleTrends(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	archived := 0
	for id, t := range s.trends {
		if t.Status == monitor.TrendStatusArchived {
			continue
		}
		if t.Timeframe.LastSeen.Before(olderThan) {
			t.Status = monitor.TrendStatusArchived
			s.trends[id] = t
			archived++
		}
	}
	return archived, nil
}

// ListTrends returns trends ordered by most recent activity.
func (s *Store) ListTrends(_ context.Context, limit int) ([]monitor.Trend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]monitor.Trend, 0, len(s.trendOrder))
	for _, id := range s.trendOrder {
		out = append(out, s.trends[id])
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timeframe.LastSeen.After(out[j].Timeframe.LastSeen)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetUpdate returns an update by ID; a test and inspection helper.
func (s *Store) GetUpdate(id string) (monitor.Update, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.updates[id]
	return u, ok
}

// GetTrend returns a trend by ID; a test and inspection helper.
func (s *Store) GetTrend(id string) (monitor.Trend, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trends[id]
	return t, ok
}

func sortUpdatesNewestFirst(updates []monitor.Update) {
	sort.Slice(updates, func(i, j int) bool {
		return updates[i].DetectedAt.After(updates[j].DetectedAt)
	})
}

func unionStrings(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base))
	for _, s := range base {
		seen[s] = struct{}{}
	}
	for _, s := range extra {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		base = append(base, s)
	}
	return base
}
