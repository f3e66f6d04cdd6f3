// Package trends clusters recent updates into cross-competitor trends. It
// runs independently of the ingestion pipeline: an AI-assisted analysis
// pass, a deterministic hourly pattern check, and staleness archiving.
package trends

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/navbug/competitive-monitoring-platform-backend/internal/inference"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/metrics"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/monitor"
)

// Inference is the AI backend used for trend analysis.
type Inference interface {
	AnalyzeTrends(ctx context.Context, updates []inference.UpdateSummary) ([]inference.TrendInsight, error)
}

// Config holds the aggregator's windows and thresholds.
type Config struct {
	// AnalyzeLookback bounds the AI analysis window.
	AnalyzeLookback time.Duration
	// PatternLookback bounds the deterministic pattern window.
	PatternLookback time.Duration
	// Staleness is how long a trend may go unseen before archiving.
	Staleness time.Duration
	// MinClusterSize is the minimum updates per category to form a trend.
	MinClusterSize int
	// MaxUpdates caps how many recent updates one analysis pass considers.
	MaxUpdates int
	// AnalyzeInterval and PatternInterval drive Run's tickers.
	AnalyzeInterval time.Duration
	PatternInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.AnalyzeLookback == 0 {
		c.AnalyzeLookback = 7 * 24 * time.Hour
	}
	if c.PatternLookback == 0 {
		c.PatternLookback = 24 * time.Hour
	}
	if c.Staleness == 0 {
		c.Staleness = 30 * 24 * time.Hour
	}
	if c.MinClusterSize == 0 {
		c.MinClusterSize = 3
	}
	if c.MaxUpdates == 0 {
		c.MaxUpdates = 50
	}
	if c.AnalyzeInterval == 0 {
		c.AnalyzeInterval = 6 * time.Hour
	}
	if c.PatternInterval == 0 {
		c.PatternInterval = time.Hour
	}
}

const maxRelatedUpdates = 10

// Aggregator owns the trend lifecycle.
type Aggregator struct {
	store  monitor.Store
	ai     Inference
	ids    monitor.IDGenerator
	clock  monitor.Clock
	cfg    Config
	logger *zap.Logger
}

// New builds an Aggregator. A nil AI backend disables the analysis pass but
// keeps pattern detection and archiving.
func New(store monitor.Store, ai Inference, ids monitor.IDGenerator, clock monitor.Clock, cfg Config, logger *zap.Logger) *Aggregator {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		store:  store,
		ai:     ai,
		ids:    ids,
		clock:  clock,
		cfg:    cfg,
		logger: logger.Named("trends"),
	}
}

// Run drives the periodic passes until the context finishes.
func (a *Aggregator) Run(ctx context.Context) {
	analyze := time.NewTicker(a.cfg.AnalyzeInterval)
	defer analyze.Stop()
	pattern := time.NewTicker(a.cfg.PatternInterval)
	defer pattern.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-analyze.C:
			if err := a.Analyze(ctx); err != nil {
				a.logger.Error("trend analysis pass failed", zap.Error(err))
			}
		case <-pattern.C:
			if err := a.DetectPatterns(ctx); err != nil {
				a.logger.Error("pattern detection pass failed", zap.Error(err))
			}
			if err := a.ArchiveStale(ctx); err != nil {
				a.logger.Error("trend archiving failed", zap.Error(err))
			}
		}
	}
}

// Analyze feeds recent update clusters to the AI backend and merges the
// returned patterns into existing trends, or creates emerging ones.
func (a *Aggregator) Analyze(ctx context.Context) error {
	if a.ai == nil {
		return nil
	}
	now := a.clock.Now()
	since := now.Add(-a.cfg.AnalyzeLookback)

	updates, err := a.store.ListRecentUpdates(ctx, since, monitor.UpdateStatusNew, a.cfg.MaxUpdates)
	if err != nil {
		return fmt.Errorf("list recent updates: %w", err)
	}
	if len(updates) < a.cfg.MinClusterSize {
		return nil
	}

	names := a.competitorNames(ctx, updates)
	for category, group := range groupByCategory(updates) {
		if len(group) < a.cfg.MinClusterSize {
			continue
		}
		a.analyzeGroup(ctx, now, category, group, names)
	}
	return nil
}

func (a *Aggregator) analyzeGroup(ctx context.Context, now time.Time, category monitor.Category, group []monitor.Update, names map[string]string) {
	summaries := make([]inference.UpdateSummary, 0, len(group))
	for _, u := range group {
		summaries = append(summaries, inference.UpdateSummary{
			Competitor: names[u.CompetitorID],
			Title:      u.Title,
			Category:   string(category),
		})
	}

	insights, err := a.ai.AnalyzeTrends(ctx, summaries)
	if err != nil {
		// The deterministic pattern pass still covers this window.
		a.logger.Warn("ai trend analysis failed",
			zap.String("category", string(category)), zap.Error(err))
		return
	}

	updateIDs := make([]string, 0, len(group))
	for _, u := range group {
		updateIDs = append(updateIDs, u.ID)
	}

	for _, insight := range insights {
		if insight.Pattern == "" {
			continue
		}
		competitorIDs := a.resolveCompetitorIDs(insight.Competitors, names, group)
		if err := a.upsertTrend(ctx, now, category, insight, updateIDs, competitorIDs); err != nil {
			a.logger.Error("store trend failed",
				zap.String("pattern", insight.Pattern), zap.Error(err))
		}
	}
}

func (a *Aggregator) upsertTrend(ctx context.Context, now time.Time, category monitor.Category, insight inference.TrendInsight, updateIDs, competitorIDs []string) error {
	existing, err := a.store.FindOpenTrendMatching(ctx, insight.Pattern)
	if err != nil {
		return fmt.Errorf("find matching trend: %w", err)
	}
	if existing != nil {
		if err := a.store.MergeTrend(ctx, existing.ID, now, updateIDs, competitorIDs, insight.Insights); err != nil {
			return fmt.Errorf("merge trend: %w", err)
		}
		metrics.ObserveTrend("merged")
		a.logger.Info("trend merged",
			zap.String("trend_id", existing.ID),
			zap.String("pattern", insight.Pattern),
		)
		return nil
	}

	id, err := a.ids.NewID()
	if err != nil {
		return fmt.Errorf("new trend id: %w", err)
	}

	trendCategory := monitor.Category(insight.Category)
	if !trendCategory.Valid() {
		trendCategory = category
	}
	significance := monitor.Significance(insight.Significance)
	if !significance.Valid() {
		significance = monitor.SignificanceMedium
	}

	trend := monitor.Trend{
		ID:                  id,
		Pattern:             insight.Pattern,
		Category:            trendCategory,
		AffectedCompetitors: competitorIDs,
		RelatedUpdates:      updateIDs,
		Timeframe:           monitor.Timeframe{FirstSeen: now, LastSeen: now},
		Frequency:           monitor.Frequency{Count: 1},
		Significance:        significance,
		Insights:            insight.Insights,
		Status:              monitor.TrendStatusEmerging,
	}
	if err := a.store.CreateTrend(ctx, trend); err != nil {
		return fmt.Errorf("create trend: %w", err)
	}
	metrics.ObserveTrend("created")
	a.logger.Info("trend created",
		zap.String("trend_id", id),
		zap.String("pattern", insight.Pattern),
	)
	return nil
}

// DetectPatterns is the deterministic safety net: when several competitors
// move in the same category inside the lookback window, record an emerging
// trend even without AI.
func (a *Aggregator) DetectPatterns(ctx context.Context) error {
	now := a.clock.Now()
	since := now.Add(-a.cfg.PatternLookback)

	updates, err := a.store.ListUpdatesSince(ctx, since)
	if err != nil {
		return fmt.Errorf("list updates since: %w", err)
	}

	for category, group := range groupByCategory(updates) {
		if len(group) < a.cfg.MinClusterSize {
			continue
		}
		competitorIDs := distinctCompetitors(group)
		if len(competitorIDs) < 2 {
			continue
		}

		exists, err := a.store.OpenTrendExistsForCategory(ctx, category)
		if err != nil {
			return fmt.Errorf("check open trend: %w", err)
		}
		if exists {
			continue
		}

		id, err := a.ids.NewID()
		if err != nil {
			return fmt.Errorf("new trend id: %w", err)
		}

		significance := monitor.SignificanceMedium
		if len(competitorIDs) >= 3 {
			significance = monitor.SignificanceHigh
		}
		updateIDs := make([]string, 0, maxRelatedUpdates)
		for _, u := range group {
			updateIDs = append(updateIDs, u.ID)
			if len(updateIDs) == maxRelatedUpdates {
				break
			}
		}

		trend := monitor.Trend{
			ID:                  id,
			Pattern:             fmt.Sprintf("Multiple competitors active in %s", category),
			Category:            category,
			AffectedCompetitors: competitorIDs,
			RelatedUpdates:      updateIDs,
			Timeframe:           monitor.Timeframe{FirstSeen: now, LastSeen: now},
			Frequency:           monitor.Frequency{Count: len(group)},
			Significance:        significance,
			Status:              monitor.TrendStatusEmerging,
		}
		if err := a.store.CreateTrend(ctx, trend); err != nil {
			return fmt.Errorf("create trend: %w", err)
		}
		metrics.ObserveTrend("created")
		a.logger.Info("pattern trend created",
			zap.String("trend_id", id),
			zap.String("category", string(category)),
			zap.Int("competitors", len(competitorIDs)),
		)
	}
	return nil
}

// ArchiveStale archives trends that have not been observed within the
// staleness window.
func (a *Aggregator) ArchiveStale(ctx context.Context) error {
	cutoff := a.clock.Now().Add(-a.cfg.Staleness)
	archived, err := a.store.ArchiveStaleTrends(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive stale trends: %w", err)
	}
	if archived > 0 {
		for i := 0; i < archived; i++ {
			metrics.ObserveTrend("archived")
		}
		a.logger.Info("stale trends archived", zap.Int("count", archived))
	}
	return nil
}

func (a *Aggregator) competitorNames(ctx context.Context, updates []monitor.Update) map[string]string {
	names := make(map[string]string)
	for _, u := range updates {
		if _, ok := names[u.CompetitorID]; ok {
			continue
		}
		c, err := a.store.GetCompetitor(ctx, u.CompetitorID)
		if err != nil {
			names[u.CompetitorID] = u.CompetitorID
			continue
		}
		names[u.CompetitorID] = c.Name
	}
	return names
}

// resolveCompetitorIDs maps the AI's competitor names back to IDs; names it
// invented are dropped. An empty result falls back to the group's own
// competitors.
func (a *Aggregator) resolveCompetitorIDs(competitors []string, names map[string]string, group []monitor.Update) []string {
	byName := make(map[string]string, len(names))
	for id, name := range names {
		byName[strings.ToLower(name)] = id
	}
	var ids []string
	seen := make(map[string]struct{})
	for _, name := range competitors {
		id, ok := byName[strings.ToLower(name)]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		ids = distinctCompetitors(group)
	}
	return ids
}

func groupByCategory(updates []monitor.Update) map[monitor.Category][]monitor.Update {
	groups := make(map[monitor.Category][]monitor.Update)
	for _, u := range updates {
		if u.Classification == nil {
			continue
		}
		category := u.Classification.Category
		groups[category] = append(groups[category], u)
	}
	return groups
}

func distinctCompetitors(updates []monitor.Update) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, u := range updates {
		if _, ok := seen[u.CompetitorID]; ok {
			continue
		}
		seen[u.CompetitorID] = struct{}{}
		ids = append(ids, u.CompetitorID)
	}
	return ids
}
