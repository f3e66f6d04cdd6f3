package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/navbug/competitive-monitoring-platform-backend/internal/classifier"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/monitor"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/notifier"
	"github.com/navbug/competitive-monitoring-platform-backend/internal/queue"
	storememory "github.com/navbug/competitive-monitoring-platform-backend/internal/store/memory"
)

type classifyFixture struct {
	store *storememory.Store
	enq   *fakeEnqueuer
	now   time.Time
	w     *ClassifyWorker
}

func newClassifyFixture(t *testing.T) *classifyFixture {
	t.Helper()
	f := &classifyFixture{
		store: storememory.New(),
		enq:   &fakeEnqueuer{},
		now:   time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.store.PutCompetitor(monitor.Competitor{
		ID: "c1", Name: "Acme", Status: monitor.CompetitorActive,
	})
	// No AI backend wired: the deterministic rule path classifies.
	svc := classifier.New(nil, zap.NewNop())
	f.w = NewClassifyWorker(f.store, svc, notifier.New(monitor.ImpactHigh), fixedClock{t: f.now}, f.enq, zap.NewNop())
	return f
}

func (f *classifyFixture) seedUpdate(t *testing.T, id, title, content string) {
	t.Helper()
	require.NoError(t, f.store.CreateUpdate(context.Background(), monitor.Update{
		ID:           id,
		CompetitorID: "c1",
		Title:        title,
		Content:      content,
		Source:       monitor.SourceRef{Type: monitor.ChannelWebsite, URL: "https://acme.example/" + id},
		DetectedAt:   f.now,
		Status:       monitor.UpdateStatusNew,
	}))
}

func TestClassifyAppliesResultAndNotifiesOnHighImpact(t *testing.T) {
	t.Parallel()

	f := newClassifyFixture(t)
	f.seedUpdate(t, "u1", "New Pricing Plans Announced", "Plans now start at $12 per seat.")

	err := f.w.Handle(context.Background(), mustJob(t, monitor.ClassificationJob{
		UpdateID: "u1", Title: "New Pricing Plans Announced",
		Content: "Plans now start at $12 per seat.", CompetitorID: "c1",
	}))
	require.NoError(t, err)

	u, ok := f.store.GetUpdate("u1")
	require.True(t, ok)
	require.NotNil(t, u.Classification)
	require.Equal(t, monitor.CategoryPricing, u.Classification.Category)
	require.Equal(t, monitor.ImpactCritical, u.Classification.ImpactLevel)
	require.Equal(t, monitor.ClassifiedByRules, u.Classification.ClassifiedBy)
	require.Equal(t, monitor.SentimentNeutral, u.Sentiment)
	require.True(t, u.Metadata.HasPricing)

	calls := f.enq.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, QueueNotification, calls[0].Queue)
	job := calls[0].Payload.(monitor.NotificationJob)
	require.Equal(t, "u1", job.UpdateID)
	require.Equal(t, monitor.ImpactCritical, job.ImpactLevel)
	require.Equal(t, monitor.CategoryPricing, job.Category)

	c, err := f.store.GetCompetitor(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, f.now, *c.Metrics.LastUpdateDetected)
}

func TestClassifyLowImpactSkipsNotification(t *testing.T) {
	t.Parallel()

	f := newClassifyFixture(t)
	f.seedUpdate(t, "u1", "Webinar: onboarding basics", "Join the session")

	err := f.w.Handle(context.Background(), mustJob(t, monitor.ClassificationJob{
		UpdateID: "u1", Title: "Webinar: onboarding basics",
		Content: "Join the session", CompetitorID: "c1",
	}))
	require.NoError(t, err)

	u, ok := f.store.GetUpdate("u1")
	require.True(t, ok)
	require.Equal(t, monitor.CategoryWebinar, u.Classification.Category)
	require.Empty(t, f.enq.Calls())
}

func TestClassifyMissingCompetitorIsPermanent(t *testing.T) {
	t.Parallel()

	f := newClassifyFixture(t)
	err := f.w.Handle(context.Background(), mustJob(t, monitor.ClassificationJob{
		UpdateID: "u1", Title: "t", Content: "c", CompetitorID: "ghost",
	}))
	require.Error(t, err)
	require.True(t, queue.IsPermanent(err))
}

func TestClassifyMissingUpdateIsPermanent(t *testing.T) {
	t.Parallel()

	f := newClassifyFixture(t)
	err := f.w.Handle(context.Background(), mustJob(t, monitor.ClassificationJob{
		UpdateID: "ghost", Title: "t", Content: "c", CompetitorID: "c1",
	}))
	require.Error(t, err)
	require.True(t, queue.IsPermanent(err))
}
