package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/navbug/competitive-monitoring-platform-backend/internal/detector"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/fetcher"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/monitor"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/queue"
	snapmemory "github.com/navbug/competitive-monitoring-platform-backend/internal/snapshot/memory"
	storememory "github.com/navbug/competitive-monitoring-platform-backend/internal/store/memory"
)

type fakeWeb struct {
	page fetcher.Page
	err  error
}

func (f *fakeWeb) Fetch(context.Context, string) (fetcher.Page, error) {
	return f.page, f.err
}

type fakeFeeds struct {
	items []fetcher.FeedItem
	err   error
}

func (f *fakeFeeds) Fetch(context.Context, string) ([]fetcher.FeedItem, error) {
	return f.items, f.err
}

type enqueueCall struct {
	Queue   string
	Payload any
	Opts    queue.Options
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	calls []enqueueCall
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, queueName string, payload any, opts queue.Options) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, enqueueCall{Queue: queueName, Payload: payload, Opts: opts})
	return fmt.Sprintf("%s-%d", queueName, len(f.calls)), nil
}

func (f *fakeEnqueuer) Calls() []enqueueCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]enqueueCall, len(f.calls))
	copy(out, f.calls)
	return out
}

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%d", g.n), nil
}

type fakeHasher struct{}

func (fakeHasher) Hash(data []byte) (string, error) {
	return fmt.Sprintf("h-%s", data), nil
}

func mustJob(t *testing.T, payload any) queue.Job {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return queue.Job{ID: "job-1", Payload: data, Attempt: 1, MaxAttempts: 1}
}

type fetchFixture struct {
	store *storememory.Store
	web   *fakeWeb
	feeds *fakeFeeds
	enq   *fakeEnqueuer
	snaps *snapmemory.BlobStore
	now   time.Time
	w     *FetchWorker
}

func newFetchFixture(t *testing.T) *fetchFixture {
	t.Helper()
	f := &fetchFixture{
		store: storememory.New(),
		web:   &fakeWeb{},
		feeds: &fakeFeeds{},
		enq:   &fakeEnqueuer{},
		snaps: snapmemory.NewBlobStore(),
		now:   time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.store.PutCompetitor(monitor.Competitor{
		ID:     "c1",
		Name:   "Acme",
		Status: monitor.CompetitorActive,
		Monitoring: monitor.MonitoringConfig{
			Enabled: true, Cadence: monitor.CadenceHourly, Priority: monitor.PriorityHigh,
		},
	})
	f.store.PutSource(monitor.Source{CompetitorID: "c1", Type: monitor.ChannelWebsite, URL: "https://acme.example"})
	f.store.PutSource(monitor.Source{CompetitorID: "c1", Type: monitor.ChannelRSS, URL: "https://acme.example/feed"})

	f.w = NewFetchWorker(FetchWorkerConfig{
		Store:     f.store,
		Web:       f.web,
		Feeds:     f.feeds,
		Detector:  detector.New(0.9),
		Snapshots: f.snaps,
		Hasher:    fakeHasher{},
		IDs:       &seqIDs{},
		Clock:     fixedClock{t: f.now},
		Enqueuer:  f.enq,
		Logger:    zap.NewNop(),
	})
	return f
}

func TestFetchWebsiteCreatesUpdateAndEnqueuesClassification(t *testing.T) {
	t.Parallel()

	f := newFetchFixture(t)
	f.web.page = fetcher.Page{
		URL:        "https://acme.example",
		Title:      "Acme Pricing",
		Content:    "brand new pricing page content",
		HasPricing: true,
		Links:      []string{"https://acme.example/signup"},
		WordCount:  5,
		RawHTML:    []byte("<html>raw</html>"),
	}

	err := f.w.Handle(context.Background(), mustJob(t, monitor.FetchJob{
		CompetitorID: "c1", URL: "https://acme.example", Type: monitor.ChannelWebsite,
	}))
	require.NoError(t, err)

	u, ok := f.store.GetUpdate("id-1")
	require.True(t, ok)
	require.Equal(t, "Acme Pricing", u.Title)
	require.Equal(t, monitor.ChannelWebsite, u.Source.Type)
	require.Equal(t, monitor.UpdateStatusNew, u.Status)
	require.True(t, u.Metadata.HasPricing)
	require.NotEmpty(t, u.Metadata.SnapshotURI)

	calls := f.enq.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, QueueClassification, calls[0].Queue)
	require.Equal(t, 3, calls[0].Opts.MaxAttempts)
	require.Equal(t, queue.BackoffExponential, calls[0].Opts.Backoff.Type)

	job, ok := calls[0].Payload.(monitor.ClassificationJob)
	require.True(t, ok)
	require.Equal(t, "id-1", job.UpdateID)
	require.Equal(t, "c1", job.CompetitorID)

	c, err := f.store.GetCompetitor(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, int64(1), c.Metrics.TotalUpdates)
	require.Equal(t, f.now, *c.Metrics.LastSuccessfulScrape)

	sources, err := f.store.ListSources(context.Background(), "c1")
	require.NoError(t, err)
	for _, src := range sources {
		if src.Type == monitor.ChannelWebsite {
			require.NotNil(t, src.LastChecked)
		}
	}
}

func TestFetchWebsiteSuccessiveChangesEachCreateUpdate(t *testing.T) {
	t.Parallel()

	f := newFetchFixture(t)
	job := mustJob(t, monitor.FetchJob{
		CompetitorID: "c1", URL: "https://acme.example", Type: monitor.ChannelWebsite,
	})

	// Pages keep their title across edits; every detected change must
	// still produce its own update.
	f.web.page = fetcher.Page{Title: "Acme Pricing", Content: "plans start at ten dollars"}
	require.NoError(t, f.w.Handle(context.Background(), job))

	f.web.page = fetcher.Page{Title: "Acme Pricing", Content: "completely reworked tiers from today"}
	require.NoError(t, f.w.Handle(context.Background(), job))

	first, ok := f.store.GetUpdate("id-1")
	require.True(t, ok)
	second, ok := f.store.GetUpdate("id-2")
	require.True(t, ok)
	require.Equal(t, first.Title, second.Title)
	require.NotEqual(t, first.ContentHash, second.ContentHash)

	require.Len(t, f.enq.Calls(), 2)

	c, err := f.store.GetCompetitor(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, int64(2), c.Metrics.TotalUpdates)
}

func TestFetchWebsiteUnchangedContentCreatesNothing(t *testing.T) {
	t.Parallel()

	f := newFetchFixture(t)
	content := "t1 t2 t3 t4 t5 t6 t7 t8 t9 t10"
	require.NoError(t, f.store.CreateUpdate(context.Background(), monitor.Update{
		ID:           "existing",
		CompetitorID: "c1",
		Title:        "previous",
		Content:      content,
		Source:       monitor.SourceRef{Type: monitor.ChannelWebsite, URL: "https://acme.example"},
		DetectedAt:   f.now.Add(-time.Hour),
	}))

	// Nine of ten tokens shared: similarity 0.9, within threshold.
	f.web.page = fetcher.Page{Content: "t1 t2 t3 t4 t5 t6 t7 t8 t9", Title: "Acme"}

	err := f.w.Handle(context.Background(), mustJob(t, monitor.FetchJob{
		CompetitorID: "c1", URL: "https://acme.example", Type: monitor.ChannelWebsite,
	}))
	require.NoError(t, err)
	require.Empty(t, f.enq.Calls())

	c, err := f.store.GetCompetitor(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, int64(0), c.Metrics.TotalUpdates)
	require.NotNil(t, c.Metrics.LastSuccessfulScrape)
}

func TestFetchWebsiteErrorRecordsFailure(t *testing.T) {
	t.Parallel()

	f := newFetchFixture(t)
	f.web.err = errors.New("connection refused")

	err := f.w.Handle(context.Background(), mustJob(t, monitor.FetchJob{
		CompetitorID: "c1", URL: "https://acme.example", Type: monitor.ChannelWebsite,
	}))
	require.Error(t, err)
	require.False(t, queue.IsPermanent(err))

	c, lookupErr := f.store.GetCompetitor(context.Background(), "c1")
	require.NoError(t, lookupErr)
	require.Equal(t, int64(1), c.Metrics.FailedScrapeCount)
	require.Nil(t, c.Metrics.LastSuccessfulScrape)
}

func TestFetchFeedDeduplicatesByLinkAndTitle(t *testing.T) {
	t.Parallel()

	f := newFetchFixture(t)
	require.NoError(t, f.store.CreateUpdate(context.Background(), monitor.Update{
		ID:           "existing",
		CompetitorID: "c1",
		Title:        "Already seen post",
		Source:       monitor.SourceRef{Type: monitor.ChannelRSS, URL: "https://acme.example/blog/seen"},
		DetectedAt:   f.now.Add(-time.Hour),
	}))

	f.feeds.items = []fetcher.FeedItem{
		{Title: "Already seen post", Link: "https://acme.example/blog/republished", Published: f.now},
		{Title: "Renamed post", Link: "https://acme.example/blog/seen", Published: f.now},
		{Title: "Fresh post", Link: "https://acme.example/blog/fresh", Content: "hello world", Published: f.now},
	}

	err := f.w.Handle(context.Background(), mustJob(t, monitor.FetchJob{
		CompetitorID: "c1", URL: "https://acme.example/feed", Type: monitor.ChannelRSS,
	}))
	require.NoError(t, err)

	calls := f.enq.Calls()
	require.Len(t, calls, 1)
	job := calls[0].Payload.(monitor.ClassificationJob)
	require.Equal(t, "Fresh post", job.Title)

	c, lookupErr := f.store.GetCompetitor(context.Background(), "c1")
	require.NoError(t, lookupErr)
	require.Equal(t, int64(1), c.Metrics.TotalUpdates)
}

func TestFetchUnknownCompetitorIsPermanent(t *testing.T) {
	t.Parallel()

	f := newFetchFixture(t)
	err := f.w.Handle(context.Background(), mustJob(t, monitor.FetchJob{
		CompetitorID: "ghost", URL: "https://ghost.example", Type: monitor.ChannelWebsite,
	}))
	require.Error(t, err)
	require.True(t, queue.IsPermanent(err))
}

func TestFetchInvalidChannelTypeIsPermanent(t *testing.T) {
	t.Parallel()

	f := newFetchFixture(t)
	err := f.w.Handle(context.Background(), mustJob(t, monitor.FetchJob{
		CompetitorID: "c1", URL: "https://acme.example", Type: "carrier-pigeon",
	}))
	require.Error(t, err)
	require.True(t, queue.IsPermanent(err))
}
