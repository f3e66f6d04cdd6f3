package classifier

import (
	"strings"

	"github.com/navbug/competitive-monitoring-platform-backend/internal/monitor"
)

const (
	fallbackConfidence = 0.5
	summaryMaxChars    = 200
	maxFeatures        = 5
	blogPostMinChars   = 500
)

// featureVocabulary is the closed set of product capabilities the rule-based
// classifier scans content for.
var featureVocabulary = []string{
	"automation",
	"reporting",
	"dashboard",
	"mobile",
	"api",
	"integration",
	"collaboration",
	"notification",
	"template",
	"workflow",
	"timeline",
	"gantt",
	"kanban",
	"calendar",
}

// Fallback classifies an update with keyword rules. It is deterministic and
// never fails, which makes it the safety net behind the AI path. Rules are
// evaluated in a fixed precedence; the first match wins.
func Fallback(title, content string) Result {
	lowerTitle := strings.ToLower(title)
	lowerContent := strings.ToLower(content)

	category := monitor.CategoryOther
	impact := monitor.ImpactMedium
	var tags []string

	switch {
	case strings.Contains(lowerTitle, "price") ||
		strings.Contains(lowerTitle, "pricing") ||
		strings.Contains(lowerContent, "$") ||
		strings.Contains(lowerContent, "price") ||
		strings.Contains(lowerTitle, "plan") ||
		strings.Contains(lowerContent, "tier"):
		category = monitor.CategoryPricing
		impact = monitor.ImpactCritical
		tags = []string{"pricing", "plans"}

	case strings.Contains(lowerTitle, "new feature") ||
		strings.Contains(lowerTitle, "release") ||
		strings.Contains(lowerTitle, "announcing") ||
		strings.Contains(lowerTitle, "introducing") ||
		strings.Contains(lowerContent, "now available"):
		category = monitor.CategoryFeatureRelease
		impact = monitor.ImpactHigh
		tags = []string{"feature", "release"}

	case strings.Contains(lowerTitle, "integration") ||
		strings.Contains(lowerContent, "integrate") ||
		strings.Contains(lowerTitle, "connect") ||
		strings.Contains(lowerContent, "api"):
		category = monitor.CategoryIntegration
		impact = monitor.ImpactHigh
		tags = []string{"integration", "connectivity"}

	case strings.Contains(lowerTitle, "update") ||
		strings.Contains(lowerTitle, "improvement") ||
		strings.Contains(lowerContent, "enhanced"):
		category = monitor.CategoryProductUpdate
		impact = monitor.ImpactMedium
		tags = []string{"update", "improvement"}

	case strings.Contains(lowerTitle, "case study") ||
		strings.Contains(lowerTitle, "customer story") ||
		strings.Contains(lowerContent, "success story"):
		category = monitor.CategoryCaseStudy
		impact = monitor.ImpactLow
		tags = []string{"case-study", "customer"}

	case strings.Contains(lowerTitle, "webinar") ||
		strings.Contains(lowerTitle, "workshop") ||
		strings.Contains(lowerTitle, "training"):
		category = monitor.CategoryWebinar
		impact = monitor.ImpactLow
		tags = []string{"webinar", "education"}

	case len(lowerContent) > blogPostMinChars:
		category = monitor.CategoryBlogPost
		impact = monitor.ImpactLow
		tags = []string{"blog", "content"}
	}

	var features []string
	for _, feature := range featureVocabulary {
		if strings.Contains(lowerContent, feature) {
			features = append(features, feature)
			if len(features) == maxFeatures {
				break
			}
		}
	}

	summary := title
	if len(summary) > summaryMaxChars {
		summary = summary[:summaryMaxChars]
	}

	return Result{
		Classification: monitor.Classification{
			Category:         category,
			ImpactLevel:      impact,
			Tags:             tags,
			AffectedFeatures: features,
			AIConfidence:     fallbackConfidence,
			ClassifiedBy:     monitor.ClassifiedByRules,
		},
		Summary:   summary,
		Sentiment: monitor.SentimentNeutral,
		HasPricing: strings.Contains(lowerContent, "$") ||
			strings.Contains(lowerContent, "price"),
	}
}
