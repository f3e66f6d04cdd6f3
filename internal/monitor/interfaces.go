package monitor

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared by store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateUpdate is returned by CreateUpdate when the storage-layer
	// uniqueness constraint on (competitor, source URL, title, content hash)
	// rejects the row. Callers treat it as the normal duplicate no-op outcome.
	ErrDuplicateUpdate = errors.New("duplicate update")
)

// CompetitorStore persists competitors and their monitored sources.
type CompetitorStore interface {
	GetCompetitor(ctx context.Context, id string) (Competitor, error)
	ListDueSources(ctx context.Context, cadence Cadence) ([]Source, error)
	ListSources(ctx context.Context, competitorID string) ([]Source, error)
	MarkSourceChecked(ctx context.Context, competitorID, url string, at time.Time) error
	RecordScrapeSuccess(ctx context.Context, competitorID string, at time.Time, newUpdates int) error
	RecordScrapeFailure(ctx context.Context, competitorID string) error
	RecordUpdateDetected(ctx context.Context, competitorID string, at time.Time) error
}

// UpdateStore persists detected updates and their enrichment.
type UpdateStore interface {
	CreateUpdate(ctx context.Context, update Update) error
	UpdateExists(ctx context.Context, competitorID, sourceURL, title string) (bool, error)
	LatestUpdateForSource(ctx context.Context, competitorID, sourceURL string) (*Update, error)
	ApplyClassification(ctx context.Context, updateID string, c Classification, summary string, sentiment Sentiment, hasPricing bool) error
	MarkNotified(ctx context.Context, updateID string) error
	ListRecentUpdates(ctx context.Context, since time.Time, status UpdateStatus, limit int) ([]Update, error)
	ListUpdatesSince(ctx context.Context, since time.Time) ([]Update, error)
	ListUpdatesByImpact(ctx context.Context, levels []ImpactLevel, limit int) ([]Update, error)
}

// TrendStore persists trend clusters.
type TrendStore interface {
	CreateTrend(ctx context.Context, trend Trend) error
	// FindOpenTrendMatching returns a non-archived trend whose pattern
	// contains, or is contained by, the given pattern (case-insensitive).
	FindOpenTrendMatching(ctx context.Context, pattern string) (*Trend, error)
	OpenTrendExistsForCategory(ctx context.Context, category Category) (bool, error)
	MergeTrend(ctx context.Context, trendID string, seenAt time.Time, updateIDs, competitorIDs []string, insights string) error
	ArchiveStaleTrends(ctx context.Context, olderThan time.Time) (int, error)
	ListTrends(ctx context.Context, limit int) ([]Trend, error)
}

// Store is the persistence surface shared by the pipeline components.
type Store interface {
	CompetitorStore
	UpdateStore
	TrendStore
}

// Publisher pushes notification events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore archives raw fetched artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces entity IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher computes digests for snapshot addressing.
type Hasher interface {
	Hash(data []byte) (string, error)
}
