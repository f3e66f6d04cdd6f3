// Package inference wraps the Gemini generateContent API for update
// classification and trend analysis.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ClassificationResult is the structured judgment returned for one update.
type ClassificationResult struct {
	Category         string   `json:"category"`
	ImpactLevel      string   `json:"impactLevel"`
	Tags             []string `json:"tags"`
	Summary          string   `json:"summary"`
	Sentiment        string   `json:"sentiment"`
	HasPricing       bool     `json:"hasPricing"`
	Confidence       float64  `json:"confidence"`
	AffectedFeatures []string `json:"affectedFeatures"`
}

// TrendInsight is one market pattern identified across recent updates.
type TrendInsight struct {
	Pattern      string   `json:"pattern"`
	Competitors  []string `json:"competitors"`
	Significance string   `json:"significance"`
	Insights     string   `json:"insights"`
	Category     string   `json:"category"`
}

// UpdateSummary is the minimal view of an update fed into trend analysis.
type UpdateSummary struct {
	Competitor string
	Title      string
	Category   string
}

// Config configures the Gemini client.
type Config struct {
	APIKey   string
	Model    string
	Endpoint string
	Timeout  time.Duration
	// MaxContentChars caps the update content included in classification
	// prompts. Zero means the default of 2000.
	MaxContentChars int
}

// GeminiClient calls the generativelanguage REST API.
type GeminiClient struct {
	endpoint   string
	model      string
	apiKey     string
	maxContent int
	httpClient *http.Client
}

const defaultContentMax = 2000

// NewGeminiClient builds a client from configuration.
func NewGeminiClient(cfg Config) *GeminiClient {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxContentChars <= 0 {
		cfg.MaxContentChars = defaultContentMax
	}
	return &GeminiClient{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		maxContent: cfg.MaxContentChars,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Classify asks the model to categorize one competitor update. The returned
// error is non-nil whenever the response cannot be turned into a valid
// result; callers are expected to fall back to rule-based classification.
func (c *GeminiClient) Classify(ctx context.Context, title, content, competitorName string) (ClassificationResult, error) {
	if len(content) > c.maxContent {
		content = content[:c.maxContent]
	}
	prompt := fmt.Sprintf(`Analyze this Project Management SaaS competitor update and provide classification in JSON format.

Competitor: %s (Project Management Tool)
Title: %s
Content: %s

Classify this update and respond ONLY with a JSON object (no markdown, no backticks) with these fields:
{
  "category": "one of: pricing, feature_release, integration, blog_post, case_study, webinar, product_update, other",
  "impactLevel": "one of: low, medium, high, critical",
  "tags": ["keyword1", "keyword2", "keyword3"],
  "summary": "2-3 sentence summary",
  "sentiment": "one of: positive, neutral, negative",
  "hasPricing": true or false,
  "confidence": 0.0 to 1.0,
  "affectedFeatures": ["list of features mentioned like: automation, integrations, reporting, mobile, etc."]
}

Consider for Project Management context:
- Pricing changes, new pricing tiers = CRITICAL impact
- Major feature releases (automation, AI, integrations) = HIGH impact
- New integrations with popular tools = HIGH impact
- Blog posts, case studies = LOW impact
- Product updates, UI improvements = MEDIUM impact
- Webinars, educational content = LOW impact

Focus on: pricing models, feature sets, integrations, team collaboration, automation, reporting capabilities.`, competitorName, title, content)

	text, err := c.generate(ctx, prompt)
	if err != nil {
		return ClassificationResult{}, err
	}

	var result ClassificationResult
	if err := json.Unmarshal([]byte(stripFences(text)), &result); err != nil {
		return ClassificationResult{}, fmt.Errorf("decode classification: %w", err)
	}
	if err := validateClassification(result); err != nil {
		return ClassificationResult{}, err
	}
	return result, nil
}

// AnalyzeTrends asks the model for cross-competitor patterns in the given
// updates. Callers should treat an error as "no trends found".
func (c *GeminiClient) AnalyzeTrends(ctx context.Context, updates []UpdateSummary) ([]TrendInsight, error) {
	lines := make([]string, 0, len(updates))
	for _, u := range updates {
		lines = append(lines, fmt.Sprintf("%s: %s (Category: %s)", u.Competitor, u.Title, u.Category))
	}

	prompt := fmt.Sprintf(`Analyze these Project Management SaaS competitor updates for patterns and trends.

Updates:
%s

Context: These are all from Project Management tools (Trello, Asana, Monday.com, ClickUp).
Look for patterns in: pricing strategies, feature releases, integration announcements, market positioning.

Identify trends and respond ONLY with a JSON object (no markdown) with:
{
  "trends": [
    {
      "pattern": "brief description of pattern (e.g., 'Multiple competitors adding AI features')",
      "competitors": ["competitor names involved"],
      "significance": "low, medium, or high",
      "insights": "what this means for the market and your strategy",
      "category": "pricing, feature_release, integration, or market_trend"
    }
  ]
}`, strings.Join(lines, "\n"))

	text, err := c.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Trends []TrendInsight `json:"trends"`
	}
	if err := json.Unmarshal([]byte(stripFences(text)), &payload); err != nil {
		return nil, fmt.Errorf("decode trend analysis: %w", err)
	}
	return payload.Trends, nil
}

func (c *GeminiClient) generate(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("gemini client misconfigured: missing api key")
	}

	body, err := json.Marshal(map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": prompt}}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal gemini payload: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.endpoint, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("gemini error %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var decoded struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini response has no candidates")
	}
	return decoded.Candidates[0].Content.Parts[0].Text, nil
}

// stripFences removes markdown code fences the model sometimes emits
// despite the prompt asking for bare JSON.
func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

func validateClassification(r ClassificationResult) error {
	switch r.Category {
	case "pricing", "feature_release", "integration", "blog_post", "case_study", "webinar", "product_update", "other":
	default:
		return fmt.Errorf("invalid category %q", r.Category)
	}
	switch r.ImpactLevel {
	case "low", "medium", "high", "critical":
	default:
		return fmt.Errorf("invalid impact level %q", r.ImpactLevel)
	}
	switch r.Sentiment {
	case "positive", "neutral", "negative":
	default:
		return fmt.Errorf("invalid sentiment %q", r.Sentiment)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %f out of range", r.Confidence)
	}
	return nil
}
