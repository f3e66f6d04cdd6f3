// Package classifier turns raw update text into a category, impact level,
// and summary, preferring AI inference with a rule-based fallback.
package classifier

import (
	"context"

	"go.uber.org/zap"

	"github.com/navbug/competitive-monitoring-platform-backend/internal/inference"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/metrics"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/monitor"
)

// Inference is the AI backend used for classification.
type Inference interface {
	Classify(ctx context.Context, title, content, competitorName string) (inference.ClassificationResult, error)
}

// Result is the full enrichment produced for one update.
type Result struct {
	Classification monitor.Classification
	Summary        string
	Sentiment      monitor.Sentiment
	HasPricing     bool
}

// Service classifies updates. A nil inference backend degrades to the
// rule-based path.
type Service struct {
	ai     Inference
	logger *zap.Logger
}

// New builds a Service.
func New(ai Inference, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{ai: ai, logger: logger.Named("classifier")}
}

// Classify enriches one update. It never fails: any AI error is absorbed and
// the deterministic fallback result is returned instead.
func (s *Service) Classify(ctx context.Context, title, content, competitorName string) Result {
	if s.ai != nil {
		aiResult, err := s.ai.Classify(ctx, title, content, competitorName)
		if err == nil {
			metrics.ObserveClassification("ai")
			return Result{
				Classification: monitor.Classification{
					Category:         monitor.Category(aiResult.Category),
					ImpactLevel:      monitor.ImpactLevel(aiResult.ImpactLevel),
					Tags:             aiResult.Tags,
					AffectedFeatures: aiResult.AffectedFeatures,
					AIConfidence:     aiResult.Confidence,
					ClassifiedBy:     monitor.ClassifiedByAI,
				},
				Summary:    aiResult.Summary,
				Sentiment:  monitor.Sentiment(aiResult.Sentiment),
				HasPricing: aiResult.HasPricing,
			}
		}
		s.logger.Warn("ai classification failed, using rules",
			zap.String("title", title),
			zap.Error(err),
		)
	}

	metrics.ObserveClassification("rules")
	return Fallback(title, content)
}
