// Package monitor defines core types shared across subsystems.
package monitor

import "time"

// ChannelType identifies how a source is monitored.
type ChannelType string

// Channel type values carried in fetch jobs and source records.
const (
	ChannelWebsite ChannelType = "website"
	ChannelRSS     ChannelType = "rss"
)

// Valid reports whether the channel type is a known value.
func (c ChannelType) Valid() bool {
	return c == ChannelWebsite || c == ChannelRSS
}

// Cadence is one of the fixed monitoring intervals assignable to a source.
type Cadence string

// Cadence values, from the most to the least frequent.
const (
	CadenceEvery5Minutes  Cadence = "5minutes"
	CadenceEvery10Minutes Cadence = "10minutes"
	CadenceEvery30Minutes Cadence = "30minutes"
	CadenceHourly         Cadence = "hourly"
	CadenceEvery6Hours    Cadence = "6hours"
	CadenceEvery12Hours   Cadence = "12hours"
	CadenceDaily          Cadence = "daily"
)

// AllCadences returns every cadence the scheduler drives, most frequent first.
func AllCadences() []Cadence {
	return []Cadence{
		CadenceEvery5Minutes,
		CadenceEvery10Minutes,
		CadenceEvery30Minutes,
		CadenceHourly,
		CadenceEvery6Hours,
		CadenceEvery12Hours,
		CadenceDaily,
	}
}

// Interval returns the tick period for the cadence.
func (c Cadence) Interval() time.Duration {
	switch c {
	case CadenceEvery5Minutes:
		return 5 * time.Minute
	case CadenceEvery10Minutes:
		return 10 * time.Minute
	case CadenceEvery30Minutes:
		return 30 * time.Minute
	case CadenceHourly:
		return time.Hour
	case CadenceEvery6Hours:
		return 6 * time.Hour
	case CadenceEvery12Hours:
		return 12 * time.Hour
	case CadenceDaily:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Valid reports whether the cadence is a known value.
func (c Cadence) Valid() bool {
	return c.Interval() > 0
}

// Priority controls queue ordering for a competitor's fetch jobs.
type Priority string

// Priority values configured per competitor.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// QueueValue maps the priority to its queue ordering value; lower runs first.
func (p Priority) QueueValue() int {
	switch p {
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}

// Category is the closed classification enum for updates and trends.
type Category string

// Category values assigned by the classifier and trend aggregator.
const (
	CategoryPricing        Category = "pricing"
	CategoryFeatureRelease Category = "feature_release"
	CategoryIntegration    Category = "integration"
	CategoryBlogPost       Category = "blog_post"
	CategoryCaseStudy      Category = "case_study"
	CategoryWebinar        Category = "webinar"
	CategoryProductUpdate  Category = "product_update"
	CategoryMarketTrend    Category = "market_trend"
	CategoryOther          Category = "other"
)

// Valid reports whether the category is a known value.
func (c Category) Valid() bool {
	switch c {
	case CategoryPricing, CategoryFeatureRelease, CategoryIntegration,
		CategoryBlogPost, CategoryCaseStudy, CategoryWebinar,
		CategoryProductUpdate, CategoryMarketTrend, CategoryOther:
		return true
	default:
		return false
	}
}

// ImpactLevel is the closed severity enum for classified updates.
type ImpactLevel string

// Impact levels, ordered from least to most severe.
const (
	ImpactLow      ImpactLevel = "low"
	ImpactMedium   ImpactLevel = "medium"
	ImpactHigh     ImpactLevel = "high"
	ImpactCritical ImpactLevel = "critical"
)

// Valid reports whether the impact level is a known value.
func (l ImpactLevel) Valid() bool {
	return l.Rank() > 0
}

// Rank returns the severity order of the level (low=1 .. critical=4), 0 if unknown.
func (l ImpactLevel) Rank() int {
	switch l {
	case ImpactLow:
		return 1
	case ImpactMedium:
		return 2
	case ImpactHigh:
		return 3
	case ImpactCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether l is at or above the given threshold.
func (l ImpactLevel) AtLeast(threshold ImpactLevel) bool {
	return l.Rank() >= threshold.Rank() && l.Rank() > 0
}

// Sentiment is the closed tone enum attached by the classifier.
type Sentiment string

// Sentiment values.
const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Valid reports whether the sentiment is a known value.
func (s Sentiment) Valid() bool {
	return s == SentimentPositive || s == SentimentNeutral || s == SentimentNegative
}

// ClassifiedBy records how an update's classification was produced.
type ClassifiedBy string

// Classification provenance values.
const (
	ClassifiedByAI     ClassifiedBy = "ai"
	ClassifiedByRules  ClassifiedBy = "rules"
	ClassifiedByManual ClassifiedBy = "manual"
)

// UpdateStatus is the review lifecycle of an update; transitions are forward-only.
type UpdateStatus string

// Update status values.
const (
	UpdateStatusNew      UpdateStatus = "new"
	UpdateStatusReviewed UpdateStatus = "reviewed"
	UpdateStatusArchived UpdateStatus = "archived"
)

// TrendStatus is the lifecycle of a trend cluster; archived is terminal.
type TrendStatus string

// Trend status values.
const (
	TrendStatusEmerging  TrendStatus = "emerging"
	TrendStatusActive    TrendStatus = "active"
	TrendStatusDeclining TrendStatus = "declining"
	TrendStatusArchived  TrendStatus = "archived"
)

// Significance grades how notable a trend is.
type Significance string

// Significance values.
const (
	SignificanceLow    Significance = "low"
	SignificanceMedium Significance = "medium"
	SignificanceHigh   Significance = "high"
)

// Valid reports whether the significance is a known value.
func (s Significance) Valid() bool {
	return s == SignificanceLow || s == SignificanceMedium || s == SignificanceHigh
}

// CompetitorStatus is the lifecycle of a tracked competitor.
type CompetitorStatus string

// Competitor status values.
const (
	CompetitorActive   CompetitorStatus = "active"
	CompetitorPaused   CompetitorStatus = "paused"
	CompetitorArchived CompetitorStatus = "archived"
)

// MonitoringConfig controls when and how urgently a competitor is scraped.
type MonitoringConfig struct {
	Enabled  bool     `json:"enabled"`
	Cadence  Cadence  `json:"cadence"`
	Priority Priority `json:"priority"`
}

// CompetitorMetrics aggregates pipeline activity per competitor. Counters are
// incremented with atomic accumulation, never read-modify-write.
type CompetitorMetrics struct {
	TotalUpdates         int64      `json:"total_updates"`
	LastUpdateDetected   *time.Time `json:"last_update_detected,omitempty"`
	LastSuccessfulScrape *time.Time `json:"last_successful_scrape,omitempty"`
	FailedScrapeCount    int64      `json:"failed_scrape_count"`
}

// Competitor is one tracked entity owning a set of monitored sources.
type Competitor struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Website     string            `json:"website"`
	Industry    string            `json:"industry"`
	Description string            `json:"description,omitempty"`
	Monitoring  MonitoringConfig  `json:"monitoring"`
	Status      CompetitorStatus  `json:"status"`
	Metrics     CompetitorMetrics `json:"metrics"`
	Tags        []string          `json:"tags,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Source is one monitored channel (a web page or a feed) of a competitor.
// Identity is (competitor, channel type, URL).
type Source struct {
	CompetitorID string      `json:"competitor_id"`
	Type         ChannelType `json:"type"`
	URL          string      `json:"url"`
	LastChecked  *time.Time  `json:"last_checked,omitempty"`
}

// SourceRef identifies where an update was detected.
type SourceRef struct {
	Type ChannelType `json:"type"`
	URL  string      `json:"url"`
}

// Classification is the enrichment the classifier writes onto an update.
type Classification struct {
	Category         Category     `json:"category"`
	ImpactLevel      ImpactLevel  `json:"impact_level"`
	Tags             []string     `json:"tags,omitempty"`
	AffectedFeatures []string     `json:"affected_features,omitempty"`
	AIConfidence     float64      `json:"ai_confidence"`
	ClassifiedBy     ClassifiedBy `json:"classified_by"`
}

// UpdateMetadata carries fetch-derived facts about an update.
type UpdateMetadata struct {
	WordCount   int      `json:"word_count,omitempty"`
	HasPricing  bool     `json:"has_pricing,omitempty"`
	Links       []string `json:"links,omitempty"`
	SnapshotURI string   `json:"snapshot_uri,omitempty"`
}

// Update represents one detected content change from a source. Updates are
// created exclusively by the pipeline; the classifier fills the enrichment
// fields and external reviewers advance Status.
type Update struct {
	ID           string `json:"id"`
	CompetitorID string `json:"competitor_id"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	// ContentHash is the digest of Content. It is part of the duplicate
	// key: refetching identical content dedupes, while a later genuine
	// change to a page that kept its title still records a new update.
	ContentHash      string          `json:"content_hash,omitempty"`
	Source           SourceRef       `json:"source"`
	DetectedAt       time.Time       `json:"detected_at"`
	Classification   *Classification `json:"classification,omitempty"`
	Summary          string          `json:"summary,omitempty"`
	Sentiment        Sentiment       `json:"sentiment,omitempty"`
	Metadata         UpdateMetadata  `json:"metadata"`
	Status           UpdateStatus    `json:"status"`
	NotificationSent bool            `json:"notification_sent"`
}

// Timeframe bounds a trend's observed activity. FirstSeen is immutable once
// set; LastSeen only advances.
type Timeframe struct {
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Frequency counts how often a trend pattern has been observed.
type Frequency struct {
	Count    int    `json:"count"`
	Interval string `json:"interval,omitempty"`
}

// Trend is a cluster of updates sharing a detected pattern across
// competitors and time.
type Trend struct {
	ID                  string       `json:"id"`
	Pattern             string       `json:"pattern"`
	Category            Category     `json:"category"`
	AffectedCompetitors []string     `json:"affected_competitors"`
	RelatedUpdates      []string     `json:"related_updates"`
	Timeframe           Timeframe    `json:"timeframe"`
	Frequency           Frequency    `json:"frequency"`
	Significance        Significance `json:"significance"`
	Insights            string       `json:"insights,omitempty"`
	Status              TrendStatus  `json:"status"`
}

// FetchJob is the payload of one fetch queue item.
type FetchJob struct {
	CompetitorID string      `json:"competitorId"`
	URL          string      `json:"url"`
	Type         ChannelType `json:"type"`
}

// ClassificationJob is the payload of one classification queue item.
type ClassificationJob struct {
	UpdateID     string `json:"updateId"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	CompetitorID string `json:"competitorId"`
}

// NotificationJob is the payload of one notification queue item.
type NotificationJob struct {
	UpdateID     string      `json:"updateId"`
	CompetitorID string      `json:"competitorId"`
	ImpactLevel  ImpactLevel `json:"impactLevel"`
	Category     Category    `json:"category"`
}
