package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/brandscrape/engine"
	"github.com/use-agent/brandscrape/models"
	"github.com/ysmood/gson"
)

// Context is one incognito browsing context shared by every page of a run.
// Cookies set by one page are visible to the others.
type Context struct {
	owner   *Browser
	browser *rod.Browser
	id      engine.Identity
	blocked []string
	stealth bool
}

// NewContext creates an isolated browsing context with the given identity.
// blocked lists resource types ("Image", "Font", ...) aborted on every page.
func (b *Browser) NewContext(id engine.Identity, blocked []string, useStealth bool) (*Context, error) {
	incognito, err := b.browser.Incognito()
	if err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to create browsing context",
			err,
		)
	}
	return &Context{
		owner:   b,
		browser: incognito,
		id:      id,
		blocked: blocked,
		stealth: useStealth,
	}, nil
}

// Name implements engine.Opener.
func (c *Context) Name() string { return "browser" }

// Open implements engine.Opener. It creates a page with the context's
// identity, resource blocking and extra headers installed.
//
// Steps that affect navigation (stealth, identity, hijack) run before the
// page is handed out: they only apply to later navigations.
func (c *Context) Open(ctx context.Context, opts engine.SessionOptions) (engine.Session, error) {
	page, err := c.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to open page",
			err,
		)
	}

	// ── 1. Stealth injection ──────────────────────────────────────────
	if c.stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth",
				"error", evalErr,
			)
		}
	}

	// ── 2. Identity: user agent, locale, viewport ─────────────────────
	if err := c.applyIdentity(page); err != nil {
		_ = page.Close()
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to apply browsing identity",
			err,
		)
	}

	// ── 3. Extra headers ──────────────────────────────────────────────
	headers := make(map[string]string, len(opts.Headers)+1)
	for k, v := range opts.Headers {
		headers[k] = v
	}
	if opts.Referer != "" {
		headers["Referer"] = opts.Referer
	}
	if len(headers) > 0 {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(headers),
		}.Call(page)
	}

	// ── 4. Resource blocking ──────────────────────────────────────────
	router := setupHijack(page, c.blocked)

	c.owner.activeSessions.Add(1)
	return &pageSession{
		owner:  c.owner,
		page:   page,
		router: router,
	}, nil
}

func (c *Context) applyIdentity(page *rod.Page) error {
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      c.id.UserAgent,
		AcceptLanguage: c.id.AcceptLanguage,
	}); err != nil {
		return fmt.Errorf("user agent: %w", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             c.id.ViewportWidth,
		Height:            c.id.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		return fmt.Errorf("viewport: %w", err)
	}
	if c.id.Locale != "" {
		// Best-effort: Accept-Language already carries the language.
		if err := (proto.EmulationSetLocaleOverride{Locale: c.id.Locale}).Call(page); err != nil {
			slog.Debug("locale override failed", "locale", c.id.Locale, "error", err)
		}
	}
	return nil
}

// Close disposes the browsing context and its cookies.
func (c *Context) Close() error {
	return c.browser.Close()
}

// toHeadersMap converts a plain string map to proto.NetworkHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
