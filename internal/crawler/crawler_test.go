package crawler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"newscrawler/internal/domain"
	"newscrawler/internal/fetch"
	"newscrawler/internal/monitoring"
	"newscrawler/internal/politeness"
	"newscrawler/internal/site"
)

// fakeFetcher serves canned bodies by URL, safely across workers.
type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	calls  map[string]int
}

func newFakeFetcher(bodies map[string]string) *fakeFetcher {
	return &fakeFetcher{bodies: bodies, calls: make(map[string]int)}
}

func (f *fakeFetcher) Get(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	body, ok := f.bodies[url]
	if !ok {
		return nil, &fetch.Error{URL: url, Status: 404}
	}
	return []byte(body), nil
}

// collectorSink gathers delivered records.
type collectorSink struct {
	mu      sync.Mutex
	records []domain.ArticleRecord
}

func (s *collectorSink) Deliver(_ context.Context, rec domain.ArticleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *collectorSink) all() []domain.ArticleRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ArticleRecord, len(s.records))
	copy(out, s.records)
	return out
}

func testSite(t *testing.T) *site.Config {
	t.Helper()
	cfg, err := site.New(site.Config{
		Name:             "ex",
		AllowedDomains:   []string{"ex.com"},
		SitemapType:      domain.Monthly,
		SitemapTemplates: []string{"https://ex.com/sitemap/{year}-{month}.xml"},
		DateFormatters: map[string]site.Formatter{
			"year":  func(d time.Time) string { return d.Format("2006") },
			"month": func(d time.Time) string { return d.Format("01") },
		},
		Fields: []site.FieldSpec{
			{Name: "title", Sources: []site.Source{{Kind: site.CSS, Query: "h1"}}},
			{Name: "article_text", Joiner: "\n", Sources: []site.Source{{Kind: site.CSS, Query: "article p"}}},
		},
		Paywall: &site.Source{Kind: site.CSS, Query: "div.premium"},
	}, []site.RuleSpec{
		{Pattern: `/markets/`, Routine: "article"},
	})
	require.NoError(t, err)
	return cfg
}

func page(title string) string {
	return fmt.Sprintf("<html><body><h1>%s</h1><article><p>Body text.</p></article></body></html>", title)
}

func urlset(locs ...string) string {
	s := `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`
	for _, loc := range locs {
		s += fmt.Sprintf("<url><loc>%s</loc></url>", loc)
	}
	return s + "</urlset>"
}

func urlsetWithLastMod(loc, lastmod string) string {
	return fmt.Sprintf(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"><url><loc>%s</loc><lastmod>%s</lastmod></url></urlset>`, loc, lastmod)
}

func index(locs ...string) string {
	s := `<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`
	for _, loc := range locs {
		s += fmt.Sprintf("<sitemap><loc>%s</loc></sitemap>", loc)
	}
	return s + "</sitemapindex>"
}

func fastPoliteness() politeness.Config {
	return politeness.Config{
		MaxGlobal:    8,
		MaxPerSite:   4,
		BaseDelay:    0,
		MinDelay:     time.Microsecond,
		MaxDelay:     time.Millisecond,
		JitterFactor: 0,
	}
}

func newTestCrawler(f fetch.Fetcher, sink Sink, cache RecencyCache) *Crawler {
	return New(Options{
		Fetcher:         f,
		Politeness:      fastPoliteness(),
		Sink:            sink,
		Cache:           cache,
		Metrics:         monitoring.NewMetrics(),
		Logger:          zap.NewNop(),
		SitemapMaxDepth: 3,
	})
}

// TestRunEndToEnd covers the whole pipeline: a two-month window over a
// monthly site whose index yields one child sitemap per month, each with
// three leaf URLs of which one matches a dispatch rule. Exactly two
// records must come out, regardless of completion order.
func TestRunEndToEnd(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"https://ex.com/sitemap/2024-01.xml": index("https://ex.com/sitemap/2024-01-news.xml"),
		"https://ex.com/sitemap/2024-02.xml": index("https://ex.com/sitemap/2024-02-news.xml"),
		"https://ex.com/sitemap/2024-01-news.xml": urlset(
			"https://ex.com/markets/jan-story.html",
			"https://ex.com/sports/jan-match.html",
			"https://ex.com/opinion/jan-take.html",
		),
		"https://ex.com/sitemap/2024-02-news.xml": urlset(
			"https://ex.com/markets/feb-story.html",
			"https://ex.com/sports/feb-match.html",
			"https://ex.com/opinion/feb-take.html",
		),
		"https://ex.com/markets/jan-story.html": page("January story"),
		"https://ex.com/markets/feb-story.html": page("February story"),
	})
	sink := &collectorSink{}
	c := newTestCrawler(f, sink, nil)

	summaries, err := c.Run(context.Background(),
		time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.February, 10, 0, 0, 0, 0, time.UTC),
		[]*site.Config{testSite(t)},
	)
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	records := sink.all()
	require.Len(t, records, 2)
	titles := map[string]bool{}
	for _, rec := range records {
		titles[rec.Title] = true
		assert.Equal(t, "ex", rec.Site)
		assert.Equal(t, "False", rec.Paywall)
		assert.Equal(t, "Body text.", rec.ArticleText)
	}
	assert.True(t, titles["January story"])
	assert.True(t, titles["February story"])

	sum := summaries[0]
	assert.Equal(t, 2, sum.SitemapsFetched)
	assert.Equal(t, 0, sum.SitemapsSkipped)
	assert.Equal(t, 6, sum.URLsSeen)
	assert.Equal(t, 2, sum.URLsDispatched)
	assert.Equal(t, 2, sum.RecordsEmitted)
}

// TestRunInvalidRange verifies a reversed window fails before any fetch.
func TestRunInvalidRange(t *testing.T) {
	f := newFakeFetcher(nil)
	c := newTestCrawler(f, &collectorSink{}, nil)

	_, err := c.Run(context.Background(),
		time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		[]*site.Config{testSite(t)},
	)
	require.Error(t, err)
	assert.Empty(t, f.calls, "no fetch should happen for an invalid range")
}

// TestRunSkipsBadSitemap verifies a missing month's sitemap skips only
// that unit and the run still emits the other month's record.
func TestRunSkipsBadSitemap(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		// 2024-01 sitemap is absent: fetch yields 404.
		"https://ex.com/sitemap/2024-02.xml":    urlset("https://ex.com/markets/feb-story.html"),
		"https://ex.com/markets/feb-story.html": page("February story"),
	})
	sink := &collectorSink{}
	c := newTestCrawler(f, sink, nil)

	summaries, err := c.Run(context.Background(),
		time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC),
		[]*site.Config{testSite(t)},
	)
	require.NoError(t, err)

	require.Len(t, sink.all(), 1)
	sum := summaries[0]
	assert.Equal(t, 1, sum.SitemapsFetched)
	assert.Equal(t, 1, sum.SitemapsSkipped)
	assert.Equal(t, 1, sum.Errors["sitemap_fetch"])
}

// TestRunDeduplicatesAcrossUnits verifies a URL listed in two months'
// sitemaps is fetched and emitted once.
func TestRunDeduplicatesAcrossUnits(t *testing.T) {
	repeated := "https://ex.com/markets/evergreen.html"
	f := newFakeFetcher(map[string]string{
		"https://ex.com/sitemap/2024-01.xml": urlset(repeated),
		"https://ex.com/sitemap/2024-02.xml": urlset(repeated),
		repeated:                             page("Evergreen story"),
	})
	sink := &collectorSink{}
	c := newTestCrawler(f, sink, nil)

	summaries, err := c.Run(context.Background(),
		time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC),
		[]*site.Config{testSite(t)},
	)
	require.NoError(t, err)

	assert.Len(t, sink.all(), 1)
	assert.Equal(t, 1, f.calls[repeated])
	assert.Equal(t, 2, summaries[0].URLsSeen)
	assert.Equal(t, 1, summaries[0].URLsDispatched)
}

// TestRunSitemapLastModFallback verifies the sitemap's lastmod fills
// date_modified when the page itself carries no modified stamp, and that
// an on-page stamp wins over it.
func TestRunSitemapLastModFallback(t *testing.T) {
	cfg, err := site.New(site.Config{
		Name:             "ex",
		SitemapType:      domain.Monthly,
		SitemapTemplates: []string{"https://ex.com/sitemap/{year}-{month}.xml"},
		DateFormatters: map[string]site.Formatter{
			"year":  func(d time.Time) string { return d.Format("2006") },
			"month": func(d time.Time) string { return d.Format("01") },
		},
		Fields: []site.FieldSpec{
			{Name: "title", Sources: []site.Source{{Kind: site.CSS, Query: "h1"}}},
			{Name: "date_modified", Sources: []site.Source{
				{Kind: site.CSS, Query: `meta[property="article:modified_time"]`, Attr: "content"},
			}},
		},
	}, []site.RuleSpec{{Pattern: `/markets/`, Routine: "article"}})
	require.NoError(t, err)

	stamped := `<html><head><meta property="article:modified_time" content="2024-01-09T08:00:00Z"></head><body><h1>Stamped story</h1></body></html>`
	f := newFakeFetcher(map[string]string{
		"https://ex.com/sitemap/2024-01.xml":  urlsetWithLastMod("https://ex.com/markets/plain.html", "2024-01-05"),
		"https://ex.com/sitemap/2024-02.xml":  urlsetWithLastMod("https://ex.com/markets/stamped.html", "2024-02-05"),
		"https://ex.com/markets/plain.html":   page("Plain story"),
		"https://ex.com/markets/stamped.html": stamped,
	})
	sink := &collectorSink{}
	c := newTestCrawler(f, sink, nil)

	_, err = c.Run(context.Background(),
		time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC),
		[]*site.Config{cfg},
	)
	require.NoError(t, err)

	byTitle := map[string]domain.ArticleRecord{}
	for _, rec := range sink.all() {
		byTitle[rec.Title] = rec
	}
	require.Len(t, byTitle, 2)
	assert.Equal(t, "2024-01-05", byTitle["Plain story"].DateModified)
	assert.Equal(t, "2024-01-09T08:00:00Z", byTitle["Stamped story"].DateModified)
}

// fakeCache is an in-memory RecencyCache.
type fakeCache struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (c *fakeCache) Seen(_ context.Context, url string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen[url], nil
}

func (c *fakeCache) Mark(_ context.Context, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[url] = true
	return nil
}

// TestRunHonoursRecencyCache verifies URLs marked by an earlier run are
// not re-dispatched.
func TestRunHonoursRecencyCache(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"https://ex.com/sitemap/2024-01.xml": urlset(
			"https://ex.com/markets/cached.html",
			"https://ex.com/markets/fresh.html",
		),
		"https://ex.com/markets/fresh.html": page("Fresh story"),
	})
	cache := &fakeCache{seen: map[string]bool{"https://ex.com/markets/cached.html": true}}
	sink := &collectorSink{}
	c := newTestCrawler(f, sink, cache)

	_, err := c.Run(context.Background(),
		time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC),
		[]*site.Config{testSite(t)},
	)
	require.NoError(t, err)

	records := sink.all()
	require.Len(t, records, 1)
	assert.Equal(t, "Fresh story", records[0].Title)
	assert.True(t, cache.seen["https://ex.com/markets/fresh.html"], "emitted URL should be marked")
	assert.Zero(t, f.calls["https://ex.com/markets/cached.html"])
}

// TestRunCancellation verifies cancelling the context stops the run
// without emitting records from abandoned work.
func TestRunCancellation(t *testing.T) {
	bodies := map[string]string{}
	var months []string
	for m := 1; m <= 12; m++ {
		u := fmt.Sprintf("https://ex.com/sitemap/2024-%02d.xml", m)
		leaf := fmt.Sprintf("https://ex.com/markets/story-%02d.html", m)
		bodies[u] = urlset(leaf)
		bodies[leaf] = page(fmt.Sprintf("Story %02d", m))
		months = append(months, u)
	}
	f := newFakeFetcher(bodies)
	sink := &collectorSink{}
	c := newTestCrawler(f, sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancelled before the run starts

	summaries, err := c.Run(ctx,
		time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC),
		[]*site.Config{testSite(t)},
	)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Empty(t, sink.all())
	for _, u := range months {
		assert.Zero(t, f.calls[u], "no sitemap should be fetched after cancellation")
	}
}

// TestRunMultipleSites verifies independent sites crawl concurrently with
// isolated summaries.
func TestRunMultipleSites(t *testing.T) {
	mkSite := func(name, host string) *site.Config {
		cfg, err := site.New(site.Config{
			Name:             name,
			SitemapType:      domain.Monthly,
			SitemapTemplates: []string{fmt.Sprintf("https://%s/sitemap/{year}-{month}.xml", host)},
			DateFormatters: map[string]site.Formatter{
				"year":  func(d time.Time) string { return d.Format("2006") },
				"month": func(d time.Time) string { return d.Format("01") },
			},
			Fields: []site.FieldSpec{
				{Name: "title", Sources: []site.Source{{Kind: site.CSS, Query: "h1"}}},
			},
		}, []site.RuleSpec{{Pattern: `/markets/`, Routine: "article"}})
		require.NoError(t, err)
		return cfg
	}

	f := newFakeFetcher(map[string]string{
		"https://a.com/sitemap/2024-01.xml": urlset("https://a.com/markets/a.html"),
		"https://b.com/sitemap/2024-01.xml": urlset("https://b.com/markets/b.html"),
		"https://a.com/markets/a.html":      page("A story"),
		"https://b.com/markets/b.html":      page("B story"),
	})
	sink := &collectorSink{}
	c := newTestCrawler(f, sink, nil)

	summaries, err := c.Run(context.Background(),
		time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC),
		[]*site.Config{mkSite("site-a", "a.com"), mkSite("site-b", "b.com")},
	)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Len(t, sink.all(), 2)
	for _, sum := range summaries {
		assert.Equal(t, 1, sum.RecordsEmitted, "site %s", sum.Site)
	}
}
