package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
<title>Acme Product Updates</title>
<meta name="description" content="Latest product news from Acme.">
<script>var tracker = "noise";</script>
<style>body { color: red; }</style>
</head>
<body>
<nav><a href="/home">Home</a> navigation junk</nav>
<header>Acme header banner</header>
<main>
<h1>New Analytics Dashboard</h1>
<p>We shipped a new analytics dashboard with custom reports.</p>
<a href="https://acme.example/blog/dashboard">Read more</a>
<a href="/docs/dashboard">Docs</a>
<a href="#section">Anchor</a>
<a href="mailto:team@acme.example">Mail us</a>
</main>
<footer>Pricing starts at $29/mo</footer>
</body>
</html>`

func TestWebFetchExtractsPage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	f := NewWeb(Config{UserAgent: "test-agent", Timeout: 2 * time.Second})
	page, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	require.Equal(t, "Acme Product Updates", page.Title)
	require.Equal(t, "Latest product news from Acme.", page.Description)
	require.Contains(t, page.Content, "new analytics dashboard")
	require.NotContains(t, page.Content, "navigation junk")
	require.NotContains(t, page.Content, "tracker")
	require.NotContains(t, page.Content, "header banner")
	require.True(t, page.HasPricing)
	require.Equal(t, page.WordCount, len(strings.Fields(page.Content)))
	require.NotEmpty(t, page.RawHTML)
}

func TestWebFetchRevisitsSameURL(t *testing.T) {
	t.Parallel()

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte("<html><head><title>Hit " + strings.Repeat("x", hits) + "</title></head><body></body></html>"))
	}))
	defer srv.Close()

	// Cadence monitoring fetches the same URL on every tick; the shared
	// collector state must not treat the second visit as already done.
	f := NewWeb(Config{Timeout: 2 * time.Second})
	first, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	second, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	require.Equal(t, 2, hits)
	require.NotEqual(t, first.Title, second.Title)
}

func TestWebFetchCollectsAbsoluteAndRootedLinks(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	f := NewWeb(Config{Timeout: 2 * time.Second})
	page, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	require.Contains(t, page.Links, "https://acme.example/blog/dashboard")
	require.Contains(t, page.Links, srv.URL+"/docs/dashboard")
	require.Contains(t, page.Links, srv.URL+"/home")
	for _, link := range page.Links {
		require.True(t, strings.HasPrefix(link, "http"), "unexpected link %q", link)
	}
}

func TestWebFetchCapsLinks(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 10; i++ {
		b.WriteString(`<a href="https://example.com/p">link</a>`)
	}
	b.WriteString("</body></html>")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(b.String()))
	}))
	defer srv.Close()

	f := NewWeb(Config{Timeout: 2 * time.Second, MaxLinks: 3})
	page, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, page.Links, 3)
}

func TestWebFetchTruncatesContent(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("lorem ipsum dolor ", 200)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body><main>" + long + "</main></body></html>"))
	}))
	defer srv.Close()

	f := NewWeb(Config{Timeout: 2 * time.Second, ContentMaxChars: 100})
	page, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, page.Content, 100)
}

func TestWebFetchFallsBackToFirstHeading(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body><h1>Heading Title</h1><p>no title tag</p></body></html>"))
	}))
	defer srv.Close()

	f := NewWeb(Config{Timeout: 2 * time.Second})
	page, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "Heading Title", page.Title)
	require.False(t, page.HasPricing)
}

func TestWebFetchServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewWeb(Config{Timeout: 2 * time.Second})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestWebFetchContextCanceled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	f := NewWeb(Config{Timeout: 10 * time.Second})
	_, err := f.Fetch(ctx, srv.URL)
	require.Error(t, err)
}
