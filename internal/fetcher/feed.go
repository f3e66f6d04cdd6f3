package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
)

// FeedItem is one entry extracted from an RSS or Atom feed.
type FeedItem struct {
	Title      string
	Link       string
	Content    string
	Published  time.Time
	Categories []string
}

// Feed fetches and parses RSS/Atom feeds.
type Feed struct {
	cfg    Config
	parser *gofeed.Parser
	now    func() time.Time
}

// NewFeed builds a Feed fetcher.
func NewFeed(cfg Config) *Feed {
	cfg.applyDefaults()
	p := gofeed.NewParser()
	if cfg.UserAgent != "" {
		p.UserAgent = cfg.UserAgent
	}
	p.Client = &http.Client{Timeout: cfg.Timeout}
	return &Feed{cfg: cfg, parser: p, now: time.Now}
}

// Fetch retrieves a feed and returns its newest items, capped at the
// configured maximum. Items missing a publish date get the current time.
func (f *Feed) Fetch(ctx context.Context, feedURL string) ([]FeedItem, error) {
	feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	limit := f.cfg.MaxFeedItems
	if len(feed.Items) < limit {
		limit = len(feed.Items)
	}

	items := make([]FeedItem, 0, limit)
	for _, entry := range feed.Items[:limit] {
		content := entry.Content
		if content == "" {
			content = entry.Description
		}
		published := f.now()
		if entry.PublishedParsed != nil {
			published = *entry.PublishedParsed
		}
		items = append(items, FeedItem{
			Title:      entry.Title,
			Link:       entry.Link,
			Content:    content,
			Published:  published,
			Categories: entry.Categories,
		})
	}
	return items, nil
}
