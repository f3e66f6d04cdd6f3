// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Snapshots SnapshotConfig  `mapstructure:"snapshots"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	Detector  DetectorConfig  `mapstructure:"detector"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Queues    QueuesConfig    `mapstructure:"queues"`
	Trends    TrendsConfig    `mapstructure:"trends"`
	Notifier  NotifierConfig  `mapstructure:"notifier"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig selects and configures the persistence provider.
type DBConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for notification delivery.
type PubSubConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// SnapshotConfig controls raw page archiving.
type SnapshotConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// FetcherConfig governs outbound fetch behavior.
type FetcherConfig struct {
	UserAgent        string `mapstructure:"user_agent"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	ContentMaxChars  int    `mapstructure:"content_max_chars"`
	MaxLinks         int    `mapstructure:"max_links"`
	MaxFeedItems     int    `mapstructure:"max_feed_items"`
	CourtesyDelayMs  int    `mapstructure:"courtesy_delay_ms"`
	InferenceMaxChar int    `mapstructure:"inference_max_chars"`
}

// DetectorConfig holds change-detection tunables.
type DetectorConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
}

// GeminiConfig configures the inference capability client.
type GeminiConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	Endpoint       string `mapstructure:"endpoint"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// QueueConfig tunes one named queue.
type QueueConfig struct {
	Concurrency   int `mapstructure:"concurrency"`
	Depth         int `mapstructure:"depth"`
	RateMax       int `mapstructure:"rate_max"`
	RateWindowSec int `mapstructure:"rate_window_seconds"`
}

// QueuesConfig tunes the pipeline queues.
type QueuesConfig struct {
	Fetch          QueueConfig `mapstructure:"fetch"`
	Classification QueueConfig `mapstructure:"classification"`
	Notification   QueueConfig `mapstructure:"notification"`
}

// TrendsConfig holds trend aggregation windows and thresholds.
type TrendsConfig struct {
	AnalyzeLookbackDays int `mapstructure:"analyze_lookback_days"`
	PatternLookbackDays int `mapstructure:"pattern_lookback_days"`
	StalenessDays       int `mapstructure:"staleness_days"`
	MinClusterSize      int `mapstructure:"min_cluster_size"`
	MaxUpdates          int `mapstructure:"max_updates"`
}

// NotifierConfig sets the impact threshold for notification jobs.
type NotifierConfig struct {
	ImpactThreshold string `mapstructure:"impact_threshold"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SchedulerConfig toggles the cadence driver.
type SchedulerConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CMP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("db.provider", "memory")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("pubsub.provider", "memory")
	v.SetDefault("pubsub.topic_name", "competitor-notifications")
	v.SetDefault("snapshots.provider", "memory")
	v.SetDefault("snapshots.prefix", "pages")
	v.SetDefault("fetcher.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	v.SetDefault("fetcher.timeout_seconds", 10)
	v.SetDefault("fetcher.content_max_chars", 5000)
	v.SetDefault("fetcher.max_links", 50)
	v.SetDefault("fetcher.max_feed_items", 10)
	v.SetDefault("fetcher.courtesy_delay_ms", 2000)
	v.SetDefault("fetcher.inference_max_chars", 2000)
	v.SetDefault("detector.similarity_threshold", 0.9)
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.endpoint", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("gemini.timeout_seconds", 20)
	v.SetDefault("queues.fetch.concurrency", 4)
	v.SetDefault("queues.fetch.depth", 256)
	v.SetDefault("queues.fetch.rate_max", 5)
	v.SetDefault("queues.fetch.rate_window_seconds", 60)
	v.SetDefault("queues.classification.concurrency", 2)
	v.SetDefault("queues.classification.depth", 256)
	v.SetDefault("queues.classification.rate_max", 15)
	v.SetDefault("queues.classification.rate_window_seconds", 60)
	v.SetDefault("queues.notification.concurrency", 1)
	v.SetDefault("queues.notification.depth", 64)
	v.SetDefault("trends.analyze_lookback_days", 7)
	v.SetDefault("trends.pattern_lookback_days", 1)
	v.SetDefault("trends.staleness_days", 30)
	v.SetDefault("trends.min_cluster_size", 3)
	v.SetDefault("trends.max_updates", 50)
	v.SetDefault("notifier.impact_threshold", "high")
	v.SetDefault("logging.development", true)
	v.SetDefault("scheduler.enabled", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.DB.Provider == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when db.provider is postgres")
	}
	if c.PubSub.Provider == "pubsub" && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub.provider is pubsub")
	}
	if c.Snapshots.Provider == "gcs" && c.Snapshots.GCSBucket == "" {
		return fmt.Errorf("snapshots.gcs_bucket must be set when snapshots.provider is gcs")
	}
	if c.Fetcher.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetcher.timeout_seconds must be > 0")
	}
	if c.Detector.SimilarityThreshold <= 0 || c.Detector.SimilarityThreshold > 1 {
		return fmt.Errorf("detector.similarity_threshold must be in (0,1]")
	}
	if c.Queues.Fetch.Concurrency <= 0 || c.Queues.Classification.Concurrency <= 0 {
		return fmt.Errorf("queue concurrency must be > 0")
	}
	if c.Trends.MinClusterSize <= 0 {
		return fmt.Errorf("trends.min_cluster_size must be > 0")
	}
	return nil
}

// FetchTimeout converts the fetcher timeout to a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetcher.TimeoutSeconds) * time.Second
}

// CourtesyDelay converts the post-fetch delay to a duration.
func (c Config) CourtesyDelay() time.Duration {
	return time.Duration(c.Fetcher.CourtesyDelayMs) * time.Millisecond
}
