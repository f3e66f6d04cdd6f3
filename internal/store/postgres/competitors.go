package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/navbug/competitive-monitoring-platform-backend/internal/monitor"
)

const competitorColumns = `id, name, website, industry, description,
	monitoring_enabled, cadence, priority, status, tags,
	total_updates, last_update_detected, last_successful_scrape,
	failed_scrape_count, created_at`

// GetCompetitor returns a competitor by ID.
func (s *Store) GetCompetitor(ctx context.Context, id string) (monitor.Competitor, error) {
	row := s.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM competitors WHERE id = $1`, competitorColumns), id)

	var c monitor.Competitor
	err := row.Scan(
		&c.ID, &c.Name, &c.Website, &c.Industry, &c.Description,
		&c.Monitoring.Enabled, &c.Monitoring.Cadence, &c.Monitoring.Priority,
		&c.Status, &c.Tags,
		&c.Metrics.TotalUpdates, &c.Metrics.LastUpdateDetected,
		&c.Metrics.LastSuccessfulScrape, &c.Metrics.FailedScrapeCount,
		&c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return monitor.Competitor{}, monitor.ErrNotFound
	}
	if err != nil {
		return monitor.Competitor{}, fmt.Errorf("get competitor: %w", err)
	}
	return c, nil
}

// ListDueSources returns sources of active, monitoring-enabled competitors
// at the given cadence.
func (s *Store) ListDueSources(ctx context.Context, cadence monitor.Cadence) ([]monitor.Source, error) {
	query, args, err := s.sb.
		Select("s.competitor_id", "s.type", "s.url", "s.last_checked").
		From("sources s").
		Join("competitors c ON c.id = s.competitor_id").
		Where(sq.Eq{"c.status": monitor.CompetitorActive}).
		Where(sq.Eq{"c.monitoring_enabled": true}).
		Where(sq.Eq{"c.cadence": cadence}).
		OrderBy("s.competitor_id", "s.url").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build due sources query: %w", err)
	}
	return s.querySources(ctx, query, args...)
}

// ListSources returns the sources of one competitor.
func (s *Store) ListSources(ctx context.Context, competitorID string) ([]monitor.Source, error) {
	query, args, err := s.sb.
		Select("competitor_id", "type", "url", "last_checked").
		From("sources").
		Where(sq.Eq{"competitor_id": competitorID}).
		OrderBy("url").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sources query: %w", err)
	}
	return s.querySources(ctx, query, args...)
}

func (s *Store) querySources(ctx context.Context, query string, args ...any) ([]monitor.Source, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var sources []monitor.Source
	for rows.Next() {
		var src monitor.Source
		if err := rows.Scan(&src.CompetitorID, &src.Type, &src.URL, &src.LastChecked); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return sources, nil
}

// MarkSourceChecked records when a source was last fetched.
func (s *Store) MarkSourceChecked(ctx context.Context, competitorID, url string, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE sources SET last_checked = $3 WHERE competitor_id = $1 AND url = $2`,
		competitorID, url, at)
	if err != nil {
		return fmt.Errorf("mark source checked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return monitor.ErrNotFound
	}
	return nil
}

// RecordScrapeSuccess stamps the last successful scrape and accumulates the
// new-update count atomically in SQL.
func (s *Store) RecordScrapeSuccess(ctx context.Context, competitorID string, at time.Time, newUpdates int) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE competitors
		 SET last_successful_scrape = $2, total_updates = total_updates + $3
		 WHERE id = $1`,
		competitorID, at, newUpdates)
	if err != nil {
		return fmt.Errorf("record scrape success: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return monitor.ErrNotFound
	}
	return nil
}

// RecordScrapeFailure increments the failed-scrape counter atomically.
func (s *Store) RecordScrapeFailure(ctx context.Context, competitorID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE competitors SET failed_scrape_count = failed_scrape_count + 1 WHERE id = $1`,
		competitorID)
	if err != nil {
		return fmt.Errorf("record scrape failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return monitor.ErrNotFound
	}
	return nil
}

// RecordUpdateDetected stamps the last-update-detected time.
func (s *Store) RecordUpdateDetected(ctx context.Context, competitorID string, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE competitors SET last_update_detected = $2 WHERE id = $1`,
		competitorID, at)
	if err != nil {
		return fmt.Errorf("record update detected: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return monitor.ErrNotFound
	}
	return nil
}
