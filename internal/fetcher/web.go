// Package fetcher retrieves competitor content from websites and RSS feeds
// and extracts the fields the pipeline cares about.
package fetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// Config controls collector and extraction behavior.
type Config struct {
	UserAgent       string
	Timeout         time.Duration
	ContentMaxChars int
	MaxLinks        int
	MaxFeedItems    int
}

const (
	defaultContentMaxChars = 5000
	defaultMaxLinks        = 50
	defaultMaxFeedItems    = 10
)

func (c *Config) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.ContentMaxChars == 0 {
		c.ContentMaxChars = defaultContentMaxChars
	}
	if c.MaxLinks == 0 {
		c.MaxLinks = defaultMaxLinks
	}
	if c.MaxFeedItems == 0 {
		c.MaxFeedItems = defaultMaxFeedItems
	}
}

// Page is the extracted representation of one fetched web page.
type Page struct {
	URL         string
	Title       string
	Description string
	Content     string
	HasPricing  bool
	Links       []string
	WordCount   int
	RawHTML     []byte
}

// Web fetches pages over HTTP using a Colly collector.
type Web struct {
	cfg           Config
	baseCollector *colly.Collector
}

// NewWeb builds a Web fetcher.
func NewWeb(cfg Config) *Web {
	cfg.applyDefaults()
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	c.IgnoreRobotsTxt = true
	return &Web{cfg: cfg, baseCollector: c}
}

// Fetch retrieves one page and extracts its title, description, main
// content, pricing signal, and outbound links.
func (w *Web) Fetch(ctx context.Context, pageURL string) (Page, error) {
	var (
		body     []byte
		fetchErr error
	)

	collector := w.baseCollector.Clone()
	// Clone shares the base collector's visited-URL store; cadence
	// monitoring refetches the same URL forever, so revisits must be allowed.
	collector.AllowURLRevisit = true
	if w.cfg.UserAgent != "" {
		collector.UserAgent = w.cfg.UserAgent
	}
	collector.SetRequestTimeout(w.cfg.Timeout)
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(pageURL)
	}()

	select {
	case <-ctx.Done():
		return Page{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return Page{}, fmt.Errorf("visit %s: %w", pageURL, err)
		}
		if fetchErr != nil {
			return Page{}, fmt.Errorf("fetch %s: %w", pageURL, fetchErr)
		}
	}

	page, err := w.extract(pageURL, body)
	if err != nil {
		return Page{}, fmt.Errorf("extract %s: %w", pageURL, err)
	}
	return page, nil
}

func (w *Web) extract(pageURL string, body []byte) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return Page{}, err
	}

	// Pricing is detected on the raw document before boilerplate removal,
	// so a price in the footer or nav still counts.
	lowered := strings.ToLower(string(body))
	hasPricing := strings.Contains(lowered, "$") ||
		strings.Contains(lowered, "price") ||
		strings.Contains(lowered, "pricing")

	links := w.collectLinks(doc, pageURL)

	doc.Find("script, style, nav, footer, header").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	description, _ := doc.Find(`meta[name="description"]`).First().Attr("content")
	if description == "" {
		description, _ = doc.Find(`meta[property="og:description"]`).First().Attr("content")
	}
	description = strings.TrimSpace(description)

	content := w.mainContent(doc)

	return Page{
		URL:         pageURL,
		Title:       title,
		Description: description,
		Content:     content,
		HasPricing:  hasPricing,
		Links:       links,
		WordCount:   len(strings.Fields(content)),
		RawHTML:     body,
	}, nil
}

func (w *Web) mainContent(doc *goquery.Document) string {
	for _, selector := range []string{"main", "article", ".content", "#content"} {
		sel := doc.Find(selector).First()
		if sel.Length() > 0 {
			if text := normalizeWhitespace(sel.Text()); text != "" {
				return truncate(text, w.cfg.ContentMaxChars)
			}
		}
	}
	return truncate(normalizeWhitespace(doc.Find("body").Text()), w.cfg.ContentMaxChars)
}

func (w *Web) collectLinks(doc *goquery.Document, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}

	var links []string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		switch {
		case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
			links = append(links, href)
		case strings.HasPrefix(href, "/") && base != nil:
			ref, err := url.Parse(href)
			if err == nil {
				links = append(links, base.ResolveReference(ref).String())
			}
		}
		return len(links) < w.cfg.MaxLinks
	})
	return links
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, max int) string {
	if max > 0 && len(s) > max {
		return s[:max]
	}
	return s
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
