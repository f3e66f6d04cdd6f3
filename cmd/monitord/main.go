// Package main wires together the competitive monitoring service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/navbug/competitive-monitoring-platform-backend/internal/api"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/classifier"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/clock/system"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/config"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/detector"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/fetcher"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/hash/sha256"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/id/uuid"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/inference"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/logging"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/monitor"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/notifier"
	memorypublisher "github.com/navbug/competitive-monitoring-platform-backend/internal/publisher/memory"
	pubsubpublisher "github.com/navbug/competitive-monitoring-platform-backend/internal/publisher/pubsub"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/queue"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/scheduler"
	gcssnapshot "github.com/navbug/competitive-monitoring-platform-backend/internal/snapshot/gcs"
	memorysnapshot "github.com/navbug/competitive-monitoring-platform-backend/internal/snapshot/memory"
	memorystore "github.com/navbug/competitive-monitoring-platform-backend/internal/store/memory"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/store/postgres"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/trends"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	publisher, closePublisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePublisher()

	snapshots, closeSnapshots, err := buildSnapshots(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSnapshots()

	clock := system.New()
	idGen := uuid.New()
	hasher := sha256.New()

	fetchCfg := fetcher.Config{
		UserAgent:       cfg.Fetcher.UserAgent,
		Timeout:         cfg.FetchTimeout(),
		ContentMaxChars: cfg.Fetcher.ContentMaxChars,
		MaxLinks:        cfg.Fetcher.MaxLinks,
		MaxFeedItems:    cfg.Fetcher.MaxFeedItems,
	}
	web := fetcher.NewWeb(fetchCfg)
	feeds := fetcher.NewFeed(fetchCfg)
	detect := detector.New(cfg.Detector.SimilarityThreshold)

	var gemini *inference.GeminiClient
	if cfg.Gemini.APIKey != "" {
		gemini = inference.NewGeminiClient(inference.Config{
			APIKey:          cfg.Gemini.APIKey,
			Model:           cfg.Gemini.Model,
			Endpoint:        cfg.Gemini.Endpoint,
			Timeout:         time.Duration(cfg.Gemini.TimeoutSeconds) * time.Second,
			MaxContentChars: cfg.Fetcher.InferenceMaxChar,
		})
	} else {
		logger.Warn("gemini api key not set, using rule-based classification only")
	}

	var classifierAI classifier.Inference
	if gemini != nil {
		classifierAI = gemini
	}
	classify := classifier.New(classifierAI, logger)
	gate := notifier.New(monitor.ImpactLevel(cfg.Notifier.ImpactThreshold))

	manager := queue.NewManager(logger)

	fetchWorker := worker.NewFetchWorker(worker.FetchWorkerConfig{
		Store:          store,
		Web:            web,
		Feeds:          feeds,
		Detector:       detect,
		Snapshots:      snapshots,
		Hasher:         hasher,
		IDs:            idGen,
		Clock:          clock,
		Enqueuer:       manager,
		Logger:         logger,
		CourtesyDelay:  cfg.CourtesyDelay(),
		SnapshotPrefix: cfg.Snapshots.Prefix,
	})
	classifyWorker := worker.NewClassifyWorker(store, classify, gate, clock, manager, logger)
	notifyWorker := worker.NewNotifyWorker(store, publisher, cfg.PubSub.TopicName, clock, logger)

	queues := []struct {
		cfg     config.QueueConfig
		name    string
		handler queue.Handler
	}{
		{cfg.Queues.Fetch, worker.QueueFetch, fetchWorker.Handle},
		{cfg.Queues.Classification, worker.QueueClassification, classifyWorker.Handle},
		{cfg.Queues.Notification, worker.QueueNotification, notifyWorker.Handle},
	}
	for _, q := range queues {
		_, err := manager.Register(queue.Config{
			Name:        q.name,
			Concurrency: q.cfg.Concurrency,
			Depth:       q.cfg.Depth,
			RateMax:     q.cfg.RateMax,
			RateWindow:  time.Duration(q.cfg.RateWindowSec) * time.Second,
		}, q.handler, nil)
		if err != nil {
			return fmt.Errorf("register queue %s: %w", q.name, err)
		}
	}

	sched := scheduler.New(store, manager, logger)

	var trendAI trends.Inference
	if gemini != nil {
		trendAI = gemini
	}
	aggregator := trends.New(store, trendAI, idGen, clock, trends.Config{
		AnalyzeLookback: time.Duration(cfg.Trends.AnalyzeLookbackDays) * 24 * time.Hour,
		PatternLookback: time.Duration(cfg.Trends.PatternLookbackDays) * 24 * time.Hour,
		Staleness:       time.Duration(cfg.Trends.StalenessDays) * 24 * time.Hour,
		MinClusterSize:  cfg.Trends.MinClusterSize,
		MaxUpdates:      cfg.Trends.MaxUpdates,
	}, logger)

	apiServer := api.NewServer(store, sched, clock, logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("queues started")
		manager.Run(ctx)
	}()

	if cfg.Scheduler.Enabled {
		go func() {
			logger.Info("scheduler started")
			sched.Run(ctx)
		}()
	}

	go func() {
		logger.Info("trend aggregator started")
		aggregator.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}

func buildStore(ctx context.Context, cfg config.Config) (monitor.Store, func(), error) {
	switch cfg.DB.Provider {
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres store: %w", err)
		}
		return store, store.Close, nil
	case "memory":
		return memorystore.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown db provider %q", cfg.DB.Provider)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (monitor.Publisher, func(), error) {
	switch cfg.PubSub.Provider {
	case "pubsub":
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("init pubsub client: %w", err)
		}
		return pubsubpublisher.New(client), func() { _ = client.Close() }, nil
	case "memory":
		return memorypublisher.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown pubsub provider %q", cfg.PubSub.Provider)
	}
}

func buildSnapshots(ctx context.Context, cfg config.Config) (monitor.BlobStore, func(), error) {
	switch cfg.Snapshots.Provider {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("init gcs client: %w", err)
		}
		store, err := gcssnapshot.New(client, gcssnapshot.Config{Bucket: cfg.Snapshots.GCSBucket})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = client.Close() }, nil
	case "memory":
		return memorysnapshot.NewBlobStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown snapshots provider %q", cfg.Snapshots.Provider)
	}
}
