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

const updateColumns = `id, competitor_id, title, content, content_hash, source_type, source_url,
	detected_at, category, impact_level, tags, affected_features,
	ai_confidence, classified_by, summary, sentiment,
	word_count, has_pricing, links, snapshot_uri, status, notification_sent`

// CreateUpdate inserts a new update. A unique-constraint violation on
// (competitor, source URL, title, content hash) maps to
// monitor.ErrDuplicateUpdate.
func (s *Store) CreateUpdate(ctx context.Context, u monitor.Update) error {
	var (
		category     *monitor.Category
		impact       *monitor.ImpactLevel
		tags         []string
		features     []string
		confidence   *float64
		classifiedBy *monitor.ClassifiedBy
	)
	if u.Classification != nil {
		category = &u.Classification.Category
		impact = &u.Classification.ImpactLevel
		tags = u.Classification.Tags
		features = u.Classification.AffectedFeatures
		confidence = &u.Classification.AIConfidence
		classifiedBy = &u.Classification.ClassifiedBy
	}

	_, err := s.db.Exec(ctx, fmt.Sprintf(`
INSERT INTO updates (%s) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22
)`, updateColumns),
		u.ID, u.CompetitorID, u.Title, u.Content, u.ContentHash, u.Source.Type, u.Source.URL,
		u.DetectedAt, category, impact, tags, features,
		confidence, classifiedBy, nullableString(u.Summary), nullableString(string(u.Sentiment)),
		u.Metadata.WordCount, u.Metadata.HasPricing, u.Metadata.Links,
		nullableString(u.Metadata.SnapshotURI), u.Status, u.NotificationSent,
	)
	if isUniqueViolation(err) {
		return monitor.ErrDuplicateUpdate
	}
	if err != nil {
		return fmt.Errorf("insert update: %w", err)
	}
	return nil
}

// UpdateExists reports whether the competitor already has an update with the
// same source URL or the same title.
func (s *Store) UpdateExists(ctx context.Context, competitorID, sourceURL, title string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM updates
			WHERE competitor_id = $1 AND (source_url = $2 OR title = $3)
		)`,
		competitorID, sourceURL, title).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check update exists: %w", err)
	}
	return exists, nil
}

// LatestUpdateForSource returns the newest update for one competitor source,
// or nil when none exists.
func (s *Store) LatestUpdateForSource(ctx context.Context, competitorID, sourceURL string) (*monitor.Update, error) {
	query, args, err := s.sb.
		Select(updateColumns).
		From("updates").
		Where(sq.Eq{"competitor_id": competitorID, "source_url": sourceURL}).
		OrderBy("detected_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build latest update query: %w", err)
	}

	u, err := scanUpdate(s.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest update: %w", err)
	}
	return &u, nil
}

// ApplyClassification writes the classifier's enrichment onto an update.
func (s *Store) ApplyClassification(ctx context.Context, updateID string, c monitor.Classification, summary string, sentiment monitor.Sentiment, hasPricing bool) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE updates SET
			category = $2, impact_level = $3, tags = $4, affected_features = $5,
			ai_confidence = $6, classified_by = $7, summary = $8, sentiment = $9,
			has_pricing = has_pricing OR $10
		 WHERE id = $1`,
		updateID, c.Category, c.ImpactLevel, c.Tags, c.AffectedFeatures,
		c.AIConfidence, c.ClassifiedBy, summary, sentiment, hasPricing)
	if err != nil {
		return fmt.Errorf("apply classification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return monitor.ErrNotFound
	}
	return nil
}

// MarkNotified flags an update's notification as published.
func (s *Store) MarkNotified(ctx context.Context, updateID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE updates SET notification_sent = TRUE WHERE id = $1`, updateID)
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return monitor.ErrNotFound
	}
	return nil
}

// ListRecentUpdates returns updates detected at or after since, optionally
// filtered by status, newest first.
func (s *Store) ListRecentUpdates(ctx context.Context, since time.Time, status monitor.UpdateStatus, limit int) ([]monitor.Update, error) {
	builder := s.sb.
		Select(updateColumns).
		From("updates").
		Where(sq.GtOrEq{"detected_at": since}).
		OrderBy("detected_at DESC")
	if status != "" {
		builder = builder.Where(sq.Eq{"status": status})
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent updates query: %w", err)
	}
	return s.queryUpdates(ctx, query, args...)
}

// ListUpdatesSince returns every update detected at or after since.
func (s *Store) ListUpdatesSince(ctx context.Context, since time.Time) ([]monitor.Update, error) {
	return s.ListRecentUpdates(ctx, since, "", 0)
}

// ListUpdatesByImpact returns classified updates at the given impact levels,
// newest first.
func (s *Store) ListUpdatesByImpact(ctx context.Context, levels []monitor.ImpactLevel, limit int) ([]monitor.Update, error) {
	builder := s.sb.
		Select(updateColumns).
		From("updates").
		Where(sq.Eq{"impact_level": levels}).
		OrderBy("detected_at DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build updates by impact query: %w", err)
	}
	return s.queryUpdates(ctx, query, args...)
}

func (s *Store) queryUpdates(ctx context.Context, query string, args ...any) ([]monitor.Update, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query updates: %w", err)
	}
	defer rows.Close()

	var updates []monitor.Update
	for rows.Next() {
		u, err := scanUpdate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan update: %w", err)
		}
		updates = append(updates, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate updates: %w", err)
	}
	return updates, nil
}

func scanUpdate(row pgx.Row) (monitor.Update, error) {
	var (
		u            monitor.Update
		category     *monitor.Category
		impact       *monitor.ImpactLevel
		tags         []string
		features     []string
		confidence   *float64
		classifiedBy *monitor.ClassifiedBy
		summary      *string
		sentiment    *string
		snapshotURI  *string
	)
	err := row.Scan(
		&u.ID, &u.CompetitorID, &u.Title, &u.Content, &u.ContentHash, &u.Source.Type, &u.Source.URL,
		&u.DetectedAt, &category, &impact, &tags, &features,
		&confidence, &classifiedBy, &summary, &sentiment,
		&u.Metadata.WordCount, &u.Metadata.HasPricing, &u.Metadata.Links,
		&snapshotURI, &u.Status, &u.NotificationSent,
	)
	if err != nil {
		return monitor.Update{}, err
	}
	if category != nil && impact != nil && classifiedBy != nil {
		u.Classification = &monitor.Classification{
			Category:         *category,
			ImpactLevel:      *impact,
			Tags:             tags,
			AffectedFeatures: features,
			ClassifiedBy:     *classifiedBy,
		}
		if confidence != nil {
			u.Classification.AIConfidence = *confidence
		}
	}
	if summary != nil {
		u.Summary = *summary
	}
	if sentiment != nil {
		u.Sentiment = monitor.Sentiment(*sentiment)
	}
	if snapshotURI != nil {
		u.Metadata.SnapshotURI = *snapshotURI
	}
	return u, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
