package scraper

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/use-agent/brandscrape/config"
	"github.com/use-agent/brandscrape/engine"
	"github.com/use-agent/brandscrape/models"
)

// Browser owns the process-wide Chromium instance.
// It is safe for concurrent use.
type Browser struct {
	browser        *rod.Browser
	cfg            config.BrowserConfig
	activeSessions atomic.Int32
	startTime      time.Time
}

// NewBrowser launches a headless browser with stealth-oriented flags.
func NewBrowser(cfg config.BrowserConfig) (*Browser, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	return &Browser{
		browser:   browser,
		cfg:       cfg,
		startTime: time.Now(),
	}, nil
}

// Identity returns the browsing identity derived from the config.
func (b *Browser) Identity() engine.Identity {
	return IdentityFrom(b.cfg)
}

// IdentityFrom builds the shared browsing identity for a config.
func IdentityFrom(cfg config.BrowserConfig) engine.Identity {
	id := engine.DefaultIdentity()
	if cfg.UserAgent != "" {
		id.UserAgent = cfg.UserAgent
	}
	id.Proxy = cfg.Proxy
	return id
}

// ActiveSessions returns the number of open page sessions.
func (b *Browser) ActiveSessions() int {
	return int(b.activeSessions.Load())
}

// Uptime returns how long the browser has been running.
func (b *Browser) Uptime() time.Duration {
	return time.Since(b.startTime)
}

// Close kills the browser process.
// Call this on graceful shutdown to prevent zombie Chrome processes.
func (b *Browser) Close() {
	slog.Info("browser shutting down")
	if err := b.browser.Close(); err != nil {
		slog.Warn("browser close failed", "error", err)
	}
	slog.Info("browser shutdown complete")
}
