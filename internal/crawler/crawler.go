// Package crawler drives the sitemap crawl: it walks each site's date
// window, expands sitemaps, dispatches matching page URLs, and runs
// extraction, all under the politeness controller's caps.
package crawler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"newscrawler/internal/dispatch"
	"newscrawler/internal/domain"
	"newscrawler/internal/extract"
	"newscrawler/internal/fetch"
	"newscrawler/internal/monitoring"
	"newscrawler/internal/politeness"
	"newscrawler/internal/schedule"
	"newscrawler/internal/site"
	"newscrawler/internal/sitemap"
)

// Sink receives emitted article records. Delivery is at-least-once per
// successfully extracted page within a run.
type Sink interface {
	Deliver(ctx context.Context, rec domain.ArticleRecord) error
}

// RecencyCache is the optional cross-run layer in front of the run-scoped
// seen set.
type RecencyCache interface {
	Seen(ctx context.Context, url string) (bool, error)
	Mark(ctx context.Context, url string) error
}

// Options wires a Crawler.
type Options struct {
	Fetcher    fetch.Fetcher // page and sitemap fetches
	Browser    fetch.Fetcher // optional, for sites that opt into it
	Politeness politeness.Config
	Sink       Sink
	Cache      RecencyCache // may be nil
	Metrics    *monitoring.Metrics
	Logger     *zap.Logger
	// SitemapMaxDepth bounds nested sitemap index recursion.
	SitemapMaxDepth int
	// Workers is the extraction worker count per site. Defaults to the
	// per-site concurrency cap.
	Workers int
}

// Crawler manages crawl runs over many sites.
type Crawler struct {
	fetcher  fetch.Fetcher
	browser  fetch.Fetcher
	control  *politeness.Controller
	sink     Sink
	cache    RecencyCache
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	maxDepth int
	workers  int
}

func New(opts Options) *Crawler {
	workers := opts.Workers
	if workers <= 0 {
		workers = int(opts.Politeness.MaxPerSite)
	}
	if workers <= 0 {
		workers = 1
	}
	return &Crawler{
		fetcher:  opts.Fetcher,
		browser:  opts.Browser,
		control:  politeness.NewController(opts.Politeness),
		sink:     opts.Sink,
		cache:    opts.Cache,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		maxDepth: opts.SitemapMaxDepth,
		workers:  workers,
	}
}

// Run crawls every site over [start, end] concurrently and returns
// per-site summaries. Each site walks the range at its own granularity.
// An invalid range fails here, before any fetch. Cancel the context to
// stop a run; in-flight fetches are abandoned and their records discarded.
func (c *Crawler) Run(ctx context.Context, start, end time.Time, sites []*site.Config) ([]domain.RunSummary, error) {
	windows := make([]*schedule.Window, len(sites))
	for i, cfg := range sites {
		w, err := schedule.NewWindow(start, end, cfg.SitemapType)
		if err != nil {
			return nil, err
		}
		windows[i] = w
	}

	summaries := make([]domain.RunSummary, len(sites))
	var wg sync.WaitGroup
	for i, cfg := range sites {
		wg.Add(1)
		go func(i int, cfg *site.Config) {
			defer wg.Done()
			summaries[i] = c.runSite(ctx, windows[i], cfg)
		}(i, cfg)
	}
	wg.Wait()
	return summaries, nil
}

// siteRun is the mutable state of one site's crawl: the seen set plus
// counters shared between the unit walker and the extraction workers.
type siteRun struct {
	cfg  *site.Config
	seen *dispatch.SeenSet

	pages    fetch.Fetcher
	sitemaps fetch.Fetcher

	mu      sync.Mutex
	summary domain.RunSummary
}

func (r *siteRun) count(update func(*domain.RunSummary)) {
	r.mu.Lock()
	update(&r.summary)
	r.mu.Unlock()
}

func (r *siteRun) fail(reason string) {
	r.count(func(s *domain.RunSummary) {
		if s.Errors == nil {
			s.Errors = make(map[string]int)
		}
		s.Errors[reason]++
	})
}

func (c *Crawler) runSite(ctx context.Context, window *schedule.Window, cfg *site.Config) domain.RunSummary {
	logger := c.logger.With(zap.String("site", cfg.Name))

	pageFetcher := c.fetcher
	if cfg.UseBrowser && c.browser != nil {
		pageFetcher = c.browser
	}
	run := &siteRun{
		cfg:      cfg,
		seen:     dispatch.NewSeenSet(),
		pages:    c.polite(cfg.Name, pageFetcher),
		sitemaps: c.polite(cfg.Name, c.fetcher),
	}
	run.summary.Site = cfg.Name

	tasks := make(chan domain.URLTask, c.workers*2)
	var workers sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for task := range tasks {
				if ctx.Err() != nil {
					continue // drain without fetching
				}
				c.processTask(ctx, run, task, logger)
			}
		}()
	}

	walker := sitemap.NewWalker(run.sitemaps, c.maxDepth, logger)
	for it := window.Iter(); ctx.Err() == nil; {
		unit, ok := it.Next()
		if !ok {
			break
		}
		c.walkUnit(ctx, run, walker, unit, tasks, logger)
	}
	close(tasks)
	workers.Wait()

	logger.Info("site run finished",
		zap.Int("sitemaps_fetched", run.summary.SitemapsFetched),
		zap.Int("sitemaps_skipped", run.summary.SitemapsSkipped),
		zap.Int("urls_seen", run.summary.URLsSeen),
		zap.Int("urls_dispatched", run.summary.URLsDispatched),
		zap.Int("records_emitted", run.summary.RecordsEmitted),
	)
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.summary
}

// walkUnit expands every sitemap URL of one calendar unit and feeds the
// matching leaves to the extraction workers. A bad sitemap skips only
// itself.
func (c *Crawler) walkUnit(ctx context.Context, run *siteRun, walker *sitemap.Walker, unit domain.CalendarUnit, tasks chan<- domain.URLTask, logger *zap.Logger) {
	for _, sitemapURL := range run.cfg.SitemapURLs(unit) {
		if ctx.Err() != nil {
			return
		}
		leaves, err := walker.Leaves(ctx, sitemapURL)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			run.count(func(s *domain.RunSummary) { s.SitemapsSkipped++ })
			run.fail("sitemap_fetch")
			c.metrics.IncError(run.cfg.Name, "sitemap_fetch")
			logger.Warn("skipping sitemap", zap.String("url", sitemapURL), zap.Error(err))
			continue
		}
		run.count(func(s *domain.RunSummary) { s.SitemapsFetched++ })
		c.metrics.IncSitemapFetched(run.cfg.Name)

		for _, leaf := range leaves {
			if ctx.Err() != nil {
				return
			}
			run.count(func(s *domain.RunSummary) { s.URLsSeen++ })
			routine, ok := dispatch.Match(run.cfg.Rules, leaf.Loc)
			if !ok {
				logger.Debug("no dispatch rule matched", zap.String("url", leaf.Loc))
				continue
			}
			if !run.seen.ShouldDispatch(leaf.Loc) {
				continue
			}
			if c.recentlySeen(ctx, leaf.Loc, logger) {
				continue
			}
			run.count(func(s *domain.RunSummary) { s.URLsDispatched++ })
			select {
			case tasks <- domain.URLTask{Site: run.cfg.Name, URL: leaf.Loc, Routine: routine, LastMod: leaf.LastMod}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *Crawler) recentlySeen(ctx context.Context, rawURL string, logger *zap.Logger) bool {
	if c.cache == nil {
		return false
	}
	seen, err := c.cache.Seen(ctx, dispatch.Normalize(rawURL))
	if err != nil {
		logger.Warn("recency cache check failed", zap.String("url", rawURL), zap.Error(err))
		return false
	}
	return seen
}

func (c *Crawler) processTask(ctx context.Context, run *siteRun, task domain.URLTask, logger *zap.Logger) {
	body, err := run.pages.Get(ctx, task.URL)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		run.fail("page_fetch")
		c.metrics.IncError(run.cfg.Name, "page_fetch")
		logger.Warn("failed to fetch page", zap.String("url", task.URL), zap.Error(err))
		return
	}
	c.metrics.IncPageFetched(run.cfg.Name)

	rec, err := extract.Record(run.cfg, task.URL, body, time.Now())
	if err != nil {
		run.fail("page_parse")
		c.metrics.IncError(run.cfg.Name, "page_parse")
		logger.Warn("failed to parse page", zap.String("url", task.URL), zap.Error(err))
		return
	}
	// The sitemap's lastmod backs up pages that carry no modified stamp.
	if rec.DateModified == "" {
		rec.DateModified = task.LastMod
	}
	if ctx.Err() != nil {
		return // abandoned; discard the record
	}
	if err := c.sink.Deliver(ctx, rec); err != nil {
		run.fail("sink")
		c.metrics.IncError(run.cfg.Name, "sink")
		logger.Error("failed to deliver record", zap.String("url", task.URL), zap.Error(err))
		return
	}
	run.count(func(s *domain.RunSummary) { s.RecordsEmitted++ })
	c.metrics.IncRecordEmitted(run.cfg.Name)
	logger.Info("article extracted",
		zap.String("url", task.URL),
		zap.String("paywall", rec.Paywall),
	)

	if c.cache != nil {
		if err := c.cache.Mark(ctx, dispatch.Normalize(task.URL)); err != nil {
			logger.Warn("recency cache mark failed", zap.String("url", task.URL), zap.Error(err))
		}
	}
}

// polite wraps a fetcher so every request passes through the politeness
// controller and feeds its latency back into the adaptive throttle.
func (c *Crawler) polite(siteName string, inner fetch.Fetcher) fetch.Fetcher {
	return &politeFetcher{site: siteName, inner: inner, control: c.control, metrics: c.metrics}
}

type politeFetcher struct {
	site    string
	inner   fetch.Fetcher
	control *politeness.Controller
	metrics *monitoring.Metrics
}

func (p *politeFetcher) Get(ctx context.Context, url string) ([]byte, error) {
	release, err := p.control.Acquire(ctx, p.site)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	body, err := p.inner.Get(ctx, url)
	latency := time.Since(start)
	p.control.Observe(p.site, latency, err != nil && ctx.Err() == nil)
	p.metrics.ObserveFetch(p.site, latency.Seconds())
	return body, err
}
