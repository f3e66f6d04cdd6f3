package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/navbug/competitive-monitoring-platform-backend/internal/monitor"
)

func seedCompetitor(s *Store, id string, cadence monitor.Cadence) {
	s.PutCompetitor(monitor.Competitor{
		ID:     id,
		Name:   "Competitor " + id,
		Status: monitor.CompetitorActive,
		Monitoring: monitor.MonitoringConfig{
			Enabled:  true,
			Cadence:  cadence,
			Priority: monitor.PriorityMedium,
		},
	})
}

func TestGetCompetitorNotFound(t *testing.T) {
	t.Parallel()

	s := New()
	_, err := s.GetCompetitor(context.Background(), "missing")
	require.ErrorIs(t, err, monitor.ErrNotFound)
}

func TestListDueSourcesFiltersByCadenceAndState(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	seedCompetitor(s, "c1", monitor.CadenceHourly)
	seedCompetitor(s, "c2", monitor.CadenceDaily)
	s.PutCompetitor(monitor.Competitor{
		ID:     "c3",
		Status: monitor.CompetitorPaused,
		Monitoring: monitor.MonitoringConfig{
			Enabled: true,
			Cadence: monitor.CadenceHourly,
		},
	})
	s.PutCompetitor(monitor.Competitor{
		ID:     "c4",
		Status: monitor.CompetitorActive,
		Monitoring: monitor.MonitoringConfig{
			Enabled: false,
			Cadence: monitor.CadenceHourly,
		},
	})

	for _, id := range []string{"c1", "c2", "c3", "c4"} {
		s.PutSource(monitor.Source{CompetitorID: id, Type: monitor.ChannelWebsite, URL: "https://" + id + ".example"})
	}

	due, err := s.ListDueSources(ctx, monitor.CadenceHourly)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, "c1", due[0].CompetitorID)
}

func TestMarkSourceChecked(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	seedCompetitor(s, "c1", monitor.CadenceHourly)
	s.PutSource(monitor.Source{CompetitorID: "c1", Type: monitor.ChannelWebsite, URL: "https://c1.example"})

	at := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.MarkSourceChecked(ctx, "c1", "https://c1.example", at))

	sources, err := s.ListSources(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, sources[0].LastChecked)
	require.Equal(t, at, *sources[0].LastChecked)

	require.ErrorIs(t, s.MarkSourceChecked(ctx, "c1", "https://other.example", at), monitor.ErrNotFound)
}

func TestCompetitorMetricsAccumulate(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	seedCompetitor(s, "c1", monitor.CadenceHourly)

	at := time.Now().UTC()
	require.NoError(t, s.RecordScrapeSuccess(ctx, "c1", at, 2))
	require.NoError(t, s.RecordScrapeSuccess(ctx, "c1", at.Add(time.Hour), 1))
	require.NoError(t, s.RecordScrapeFailure(ctx, "c1"))
	require.NoError(t, s.RecordUpdateDetected(ctx, "c1", at))

	c, err := s.GetCompetitor(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, int64(3), c.Metrics.TotalUpdates)
	require.Equal(t, int64(1), c.Metrics.FailedScrapeCount)
	require.Equal(t, at.Add(time.Hour), *c.Metrics.LastSuccessfulScrape)
	require.Equal(t, at, *c.Metrics.LastUpdateDetected)
}

func TestCreateUpdateRejectsDuplicates(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	u := monitor.Update{
		ID:           "u1",
		CompetitorID: "c1",
		Title:        "New pricing",
		ContentHash:  "hash-a",
		Source:       monitor.SourceRef{Type: monitor.ChannelWebsite, URL: "https://c1.example/pricing"},
		DetectedAt:   time.Now(),
		Status:       monitor.UpdateStatusNew,
	}
	require.NoError(t, s.CreateUpdate(ctx, u))

	dup := u
	dup.ID = "u2"
	require.ErrorIs(t, s.CreateUpdate(ctx, dup), monitor.ErrDuplicateUpdate)

	// Same title from a different source URL is a distinct update.
	other := u
	other.ID = "u3"
	other.Source.URL = "https://c1.example/blog"
	require.NoError(t, s.CreateUpdate(ctx, other))

	// Same page and title but changed content is a distinct update: pages
	// keep their title across edits and every edit must be recorded.
	changed := u
	changed.ID = "u4"
	changed.ContentHash = "hash-b"
	require.NoError(t, s.CreateUpdate(ctx, changed))
}

func TestUpdateExistsMatchesLinkOrTitle(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateUpdate(ctx, monitor.Update{
		ID:           "u1",
		CompetitorID: "c1",
		Title:        "Launch week recap",
		Source:       monitor.SourceRef{Type: monitor.ChannelRSS, URL: "https://c1.example/blog/launch"},
	}))

	byLink, err := s.UpdateExists(ctx, "c1", "https://c1.example/blog/launch", "different title")
	require.NoError(t, err)
	require.True(t, byLink)

	byTitle, err := s.UpdateExists(ctx, "c1", "https://c1.example/blog/other", "Launch week recap")
	require.NoError(t, err)
	require.True(t, byTitle)

	neither, err := s.UpdateExists(ctx, "c1", "https://c1.example/blog/other", "different title")
	require.NoError(t, err)
	require.False(t, neither)

	otherCompetitor, err := s.UpdateExists(ctx, "c2", "https://c1.example/blog/launch", "Launch week recap")
	require.NoError(t, err)
	require.False(t, otherCompetitor)
}

func TestLatestUpdateForSource(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, title := range []string{"first", "second", "third"} {
		require.NoError(t, s.CreateUpdate(ctx, monitor.Update{
			ID:           title,
			CompetitorID: "c1",
			Title:        title,
			Source:       monitor.SourceRef{Type: monitor.ChannelWebsite, URL: "https://c1.example"},
			DetectedAt:   base.Add(time.Duration(i) * time.Hour),
		}))
	}

	latest, err := s.LatestUpdateForSource(ctx, "c1", "https://c1.example")
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, "third", latest.Title)

	none, err := s.LatestUpdateForSource(ctx, "c1", "https://c1.example/other")
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestApplyClassificationAndMarkNotified(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateUpdate(ctx, monitor.Update{
		ID:           "u1",
		CompetitorID: "c1",
		Title:        "New pricing",
		Status:       monitor.UpdateStatusNew,
	}))

	c := monitor.Classification{
		Category:     monitor.CategoryPricing,
		ImpactLevel:  monitor.ImpactCritical,
		ClassifiedBy: monitor.ClassifiedByAI,
		AIConfidence: 0.9,
	}
	require.NoError(t, s.ApplyClassification(ctx, "u1", c, "summary", monitor.SentimentNegative, true))
	require.NoError(t, s.MarkNotified(ctx, "u1"))

	u, ok := s.GetUpdate("u1")
	require.True(t, ok)
	require.NotNil(t, u.Classification)
	require.Equal(t, monitor.CategoryPricing, u.Classification.Category)
	require.Equal(t, "summary", u.Summary)
	require.True(t, u.Metadata.HasPricing)
	require.True(t, u.NotificationSent)

	require.ErrorIs(t, s.ApplyClassification(ctx, "missing", c, "", monitor.SentimentNeutral, false), monitor.ErrNotFound)
}

func TestListRecentUpdatesFiltersAndSorts(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		status := monitor.UpdateStatusNew
		if i%2 == 1 {
			status = monitor.UpdateStatusReviewed
		}
		require.NoError(t, s.CreateUpdate(ctx, monitor.Update{
			ID:           string(rune('a' + i)),
			CompetitorID: "c1",
			Title:        string(rune('a' + i)),
			Source:       monitor.SourceRef{URL: "https://c1.example/" + string(rune('a'+i))},
			DetectedAt:   base.Add(time.Duration(i) * time.Hour),
			Status:       status,
		}))
	}

	recent, err := s.ListRecentUpdates(ctx, base.Add(time.Hour), monitor.UpdateStatusNew, 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "e", recent[0].ID)
	require.Equal(t, "c", recent[1].ID)

	limited, err := s.ListRecentUpdates(ctx, base, "", 3)
	require.NoError(t, err)
	require.Len(t, limited, 3)
	require.Equal(t, "e", limited[0].ID)
}

func TestListUpdatesByImpact(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	levels := []monitor.ImpactLevel{monitor.ImpactLow, monitor.ImpactHigh, monitor.ImpactCritical}
	for i, level := range levels {
		u := monitor.Update{
			ID:           string(rune('a' + i)),
			CompetitorID: "c1",
			Title:        string(rune('a' + i)),
			Source:       monitor.SourceRef{URL: "https://c1.example/" + string(rune('a'+i))},
			DetectedAt:   base.Add(time.Duration(i) * time.Hour),
			Classification: &monitor.Classification{
				ImpactLevel: level,
			},
		}
		require.NoError(t, s.CreateUpdate(ctx, u))
	}
	require.NoError(t, s.CreateUpdate(ctx, monitor.Update{
		ID: "unclassified", CompetitorID: "c1", Title: "unclassified",
		Source: monitor.SourceRef{URL: "https://c1.example/unclassified"},
	}))

	out, err := s.ListUpdatesByImpact(ctx, []monitor.ImpactLevel{monitor.ImpactHigh, monitor.ImpactCritical}, 0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "c", out[0].ID)
	require.Equal(t, "b", out[1].ID)
}

func TestFindOpenTrendMatchingEitherDirection(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateTrend(ctx, monitor.Trend{
		ID:      "t1",
		Pattern: "AI feature adoption",
		Status:  monitor.TrendStatusEmerging,
	}))

	longer, err := s.FindOpenTrendMatching(ctx, "ai feature adoption across competitors")
	require.NoError(t, err)
	require.NotNil(t, longer)
	require.Equal(t, "t1", longer.ID)

	shorter, err := s.FindOpenTrendMatching(ctx, "AI Feature")
	require.NoError(t, err)
	require.NotNil(t, shorter)

	none, err := s.FindOpenTrendMatching(ctx, "pricing pressure")
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestFindOpenTrendMatchingSkipsArchived(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateTrend(ctx, monitor.Trend{
		ID:      "t1",
		Pattern: "AI feature adoption",
		Status:  monitor.TrendStatusArchived,
	}))

	found, err := s.FindOpenTrendMatching(ctx, "AI feature adoption")
	require.NoError(t, err)
	require.Nil(t, found)
}

func TestMergeTrend(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	first := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateTrend(ctx, monitor.Trend{
		ID:                  "t1",
		Pattern:             "AI feature adoption",
		Status:              monitor.TrendStatusEmerging,
		AffectedCompetitors: []string{"c1"},
		RelatedUpdates:      []string{"u1"},
		Timeframe:           monitor.Timeframe{FirstSeen: first, LastSeen: first},
		Frequency:           monitor.Frequency{Count: 1},
	}))

	later := first.Add(48 * time.Hour)
	require.NoError(t, s.MergeTrend(ctx, "t1", later, []string{"u1", "u2"}, []string{"c2"}, "fresh insights"))

	trend, ok := s.GetTrend("t1")
	require.True(t, ok)
	require.Equal(t, monitor.TrendStatusActive, trend.Status)
	require.Equal(t, later, trend.Timeframe.LastSeen)
	require.Equal(t, first, trend.Timeframe.FirstSeen)
	require.Equal(t, 2, trend.Frequency.Count)
	require.Equal(t, []string{"u1", "u2"}, trend.RelatedUpdates)
	require.Equal(t, []string{"c1", "c2"}, trend.AffectedCompetitors)
	require.Equal(t, "fresh insights", trend.Insights)
}

func TestArchiveStaleTrends(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.CreateTrend(ctx, monitor.Trend{
		ID:        "stale",
		Status:    monitor.TrendStatusActive,
		Timeframe: monitor.Timeframe{LastSeen: now.Add(-31 * 24 * time.Hour)},
	}))
	require.NoError(t, s.CreateTrend(ctx, monitor.Trend{
		ID:        "fresh",
		Status:    monitor.TrendStatusActive,
		Timeframe: monitor.Timeframe{LastSeen: now.Add(-29 * 24 * time.Hour)},
	}))

	archived, err := s.ArchiveStaleTrends(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, archived)

	stale, _ := s.GetTrend("stale")
	require.Equal(t, monitor.TrendStatusArchived, stale.Status)
	fresh, _ := s.GetTrend("fresh")
	require.Equal(t, monitor.TrendStatusActive, fresh.Status)
}
