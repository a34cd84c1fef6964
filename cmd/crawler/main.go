package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"newscrawler/internal/api"
	"newscrawler/internal/config"
	"newscrawler/internal/crawler"
	"newscrawler/internal/fetch"
	"newscrawler/internal/logging"
	"newscrawler/internal/monitoring"
	"newscrawler/internal/politeness"
	"newscrawler/internal/site"
	"newscrawler/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("could not load config", zap.Error(err))
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		zap.NewExample().Fatal("could not build logger", zap.Error(err))
	}
	defer logger.Sync()

	// Site configs fail fast, before anything is fetched.
	sites, err := selectSites(cfg.Sites)
	if err != nil {
		logger.Fatal("bad site selection", zap.Error(err))
	}

	sink, err := storage.NewPostgresSink(cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer sink.Close()

	var cache crawler.RecencyCache
	backends := map[string]api.Pinger{"postgres": sink}
	if cfg.RedisAddr != "" {
		redisCache := storage.NewRedisCache(cfg.RedisAddr, cfg.DeduplicationTTL())
		cache = redisCache
		backends["redis"] = redisCache
	}

	fetcher, err := fetch.NewHTTPFetcher(cfg.FetchTimeout(), nil)
	if err != nil {
		logger.Fatal("failed to build fetcher", zap.Error(err))
	}

	metrics := monitoring.NewMetrics()
	coreCrawler := crawler.New(crawler.Options{
		Fetcher: fetcher,
		Browser: fetch.NewBrowserFetcher(cfg.FetchTimeout()),
		Politeness: politeness.Config{
			MaxGlobal:         int64(cfg.MaxGlobalConcurrency),
			MaxPerSite:        int64(cfg.MaxPerSiteConcurrency),
			BaseDelay:         cfg.BaseDelay(),
			JitterFactor:      cfg.JitterFactor,
			MinDelay:          cfg.MinDelay(),
			MaxDelay:          cfg.MaxDelay(),
			TargetConcurrency: cfg.TargetConcurrency,
		},
		Sink:            sink,
		Cache:           cache,
		Metrics:         metrics,
		Logger:          logger,
		SitemapMaxDepth: cfg.SitemapMaxDepth,
	})

	rootCtx, stop := context.WithCancel(context.Background())

	// A window on the config surface starts a run at boot; otherwise runs
	// come in through the API.
	if cfg.StartDate != "" {
		start, end, err := parseWindow(cfg.StartDate, cfg.EndDate)
		if err != nil {
			logger.Fatal("bad crawl window", zap.Error(err))
		}
		go func() {
			summaries, err := coreCrawler.Run(rootCtx, start, end, sites)
			if err != nil {
				logger.Error("boot run failed", zap.Error(err))
				return
			}
			for _, s := range summaries {
				logger.Info("run summary",
					zap.String("site", s.Site),
					zap.Int("records_emitted", s.RecordsEmitted),
					zap.Int("sitemaps_skipped", s.SitemapsSkipped),
					zap.Any("errors", s.Errors),
				)
			}
		}()
	}

	server := api.NewServer(cfg, coreCrawler, backends, metrics, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("could not start server", zap.Error(err))
		}
	}()
	logger.Info("server started", zap.String("port", cfg.ServerPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server exiting")
}

func selectSites(names string) ([]*site.Config, error) {
	selected := site.Names()
	if names != "" {
		selected = strings.Split(names, ",")
	}
	var sites []*site.Config
	for _, name := range selected {
		cfg, err := site.Lookup(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		sites = append(sites, cfg)
	}
	return sites, nil
}

func parseWindow(startDate, endDate string) (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if endDate == "" {
		return start, time.Now().UTC(), nil
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}
