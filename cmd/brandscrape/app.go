package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/use-agent/brandscrape/config"
	"github.com/use-agent/brandscrape/engine"
	"github.com/use-agent/brandscrape/normalize"
	"github.com/use-agent/brandscrape/orchestrator"
	"github.com/use-agent/brandscrape/scrapelog"
	"github.com/use-agent/brandscrape/scraper"
)

// domainMemoryTTL is how long a domain keeps its preferred engine.
const domainMemoryTTL = 24 * time.Hour

// app is the process-wide wiring shared by serve and run.
type app struct {
	cfg     *config.Config
	browser *scraper.Browser
	sites   *scraper.Sites
	orch    *orchestrator.Orchestrator
	vocab   normalize.Vocabulary
	logs    *scrapelog.Logger
	status  scrapelog.StatusStore

	closers []func()
}

// newApp launches the browser and builds the scrape pipeline.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:   cfg,
		sites: scraper.NewSites(cfg.Sites),
		vocab: normalize.DefaultVocabulary().With(cfg.Noise.Words, cfg.Noise.Phrases),
		logs:  scrapelog.NewLogger(cfg.Ops.LogDir),
	}
	a.status = a.newStatusStore(ctx)

	b, err := scraper.NewBrowser(cfg.Browser)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.browser = b
	a.closers = append(a.closers, b.Close)

	var opts []scraper.FetcherOption
	if cfg.Scraper.HTTPFallback {
		httpOpener, err := engine.NewHTTPOpener(b.Identity())
		if err != nil {
			a.Close()
			return nil, err
		}
		opts = append(opts, scraper.WithFallback(httpOpener, engine.NewDomainMemory(domainMemoryTTL)))
		slog.Info("http fallback enabled", "memory_ttl", domainMemoryTTL)
	}
	fetcher := scraper.NewFetcher(cfg.Scraper, a.sites, opts...)
	a.orch = orchestrator.New(cfg.Scraper, a.launcher(), fetcher)

	words, phrases := a.vocab.Len()
	slog.Info("scrape pipeline ready",
		"concurrency", cfg.Scraper.Concurrency,
		"max_retries", cfg.Scraper.MaxRetries,
		"max_pages", cfg.Scraper.MaxPages,
		"noise_words", words,
		"noise_phrases", phrases,
	)
	return a, nil
}

// launcher opens one incognito browsing context per run.
func (a *app) launcher() orchestrator.Launcher {
	return func(ctx context.Context) (engine.Opener, func() error, error) {
		bc, err := a.browser.NewContext(a.browser.Identity(), a.cfg.Browser.ResourceTypes(), a.cfg.Browser.Stealth)
		if err != nil {
			return nil, nil, err
		}
		return bc, bc.Close, nil
	}
}

// newStatusStore uses Redis when REDIS_URL is set and reachable, the
// in-process store otherwise.
func (a *app) newStatusStore(ctx context.Context) scrapelog.StatusStore {
	if a.cfg.Redis.URL == "" {
		return scrapelog.NewMemoryStatusStore()
	}
	opts, err := redis.ParseURL(a.cfg.Redis.URL)
	if err != nil {
		slog.Warn("invalid REDIS_URL, using memory status store", "error", err)
		return scrapelog.NewMemoryStatusStore()
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis unreachable, using memory status store", "addr", opts.Addr, "error", err)
		_ = client.Close()
		return scrapelog.NewMemoryStatusStore()
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	slog.Info("retailer status store on redis", "addr", opts.Addr, "key", scrapelog.DefaultStatusKey)
	return scrapelog.NewRedisStatusStore(client, "")
}

// Close releases everything in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
