package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/navbug/competitive-monitoring-platform-backend/internal/monitor"
)

const trendColumns = `id, pattern, category, affected_competitors, related_updates,
	first_seen, last_seen, frequency_count, frequency_interval,
	significance, insights, status`

// CreateTrend inserts a new trend cluster.
func (s *Store) CreateTrend(ctx context.Context, t monitor.Trend) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf(`
INSERT INTO trends (%s) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`, trendColumns),
		t.ID, t.Pattern, t.Category, t.AffectedCompetitors, t.RelatedUpdates,
		t.Timeframe.FirstSeen, t.Timeframe.LastSeen,
		t.Frequency.Count, nullableString(t.Frequency.Interval),
		t.Significance, nullableString(t.Insights), t.Status,
	)
	if err != nil {
		return fmt.Errorf("insert trend: %w", err)
	}
	return nil
}

// FindOpenTrendMatching returns a non-archived trend whose pattern contains,
// or is contained by, the given pattern (case-insensitive), or nil.
func (s *Store) FindOpenTrendMatching(ctx context.Context, pattern string) (*monitor.Trend, error) {
	query := fmt.Sprintf(`
SELECT %s FROM trends
WHERE status <> 'archived'
  AND (lower(pattern) LIKE '%%' || lower($1) || '%%'
       OR lower($1) LIKE '%%' || lower(pattern) || '%%')
ORDER BY last_seen DESC
LIMIT 1`, trendColumns)

	t, err := scanTrend(s.db.QueryRow(ctx, query, pattern))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find matching trend: %w", err)
	}
	return &t, nil
}

// OpenTrendExistsForCategory reports whether a non-archived trend already
// exists for the category.
func (s *Store) OpenTrendExistsForCategory(ctx context.Context, category monitor.Category) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM trends WHERE status <> 'archived' AND category = $1)`,
		category).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check open trend: %w", err)
	}
	return exists, nil
}

// MergeTrend folds a new observation into an existing trend. The set unions
// are computed in SQL so concurrent merges stay consistent.
func (s *Store) MergeTrend(ctx context.Context, trendID string, seenAt time.Time, updateIDs, competitorIDs []string, insights string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE trends SET
			last_seen = GREATEST(last_seen, $2),
			frequency_count = frequency_count + 1,
			related_updates = (
				SELECT ARRAY(SELECT DISTINCT e FROM unnest(related_updates || $3::text[]) AS e)
			),
			affected_competitors = (
				SELECT ARRAY(SELECT DISTINCT e FROM unnest(affected_competitors || $4::text[]) AS e)
			),
			insights = COALESCE(NULLIF($5, ''), insights),
			status = 'active'
		 WHERE id = $1`,
		trendID, seenAt, updateIDs, competitorIDs, insights)
	if err != nil {
		return fmt.Errorf("merge trend: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return monitor.ErrNotFound
	}
	return nil
}

// ArchiveStaleTrends archives non-archived trends last seen before the
// cutoff and returns how many rows changed.
func (s *Store) ArchiveStaleTrends(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE trends SET status = 'archived'
		 WHERE status <> 'archived' AND last_seen < $1`,
		olderThan)
	if err != nil {
		return 0, fmt.Errorf("archive stale trends: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ListTrends returns trends ordered by most recent activity.
func (s *Store) ListTrends(ctx context.Context, limit int) ([]monitor.Trend, error) {
	builder := s.sb.
		Select(trendColumns).
		From("trends").
		OrderBy("last_seen DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build trends query: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trends: %w", err)
	}
	defer rows.Close()

	var trends []monitor.Trend
	for rows.Next() {
		t, err := scanTrend(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trend: %w", err)
		}
		trends = append(trends, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trends: %w", err)
	}
	return trends, nil
}

func scanTrend(row pgx.Row) (monitor.Trend, error) {
	var (
		t        monitor.Trend
		interval *string
		insights *string
	)
	err := row.Scan(
		&t.ID, &t.Pattern, &t.Category, &t.AffectedCompetitors, &t.RelatedUpdates,
		&t.Timeframe.FirstSeen, &t.Timeframe.LastSeen,
		&t.Frequency.Count, &interval,
		&t.Significance, &insights, &t.Status,
	)
	if err != nil {
		return monitor.Trend{}, err
	}
	if interval != nil {
		t.Frequency.Interval = *interval
	}
	if insights != nil {
		t.Insights = *insights
	}
	return t, nil
}
