package scraper

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"time"

	"github.com/use-agent/brandscrape/config"
	"github.com/use-agent/brandscrape/engine"
	"github.com/use-agent/brandscrape/extract"
	"github.com/use-agent/brandscrape/models"
	"github.com/use-agent/brandscrape/normalize"
)

// FetchRequest is one fetch of one retailer listing.
type FetchRequest struct {
	Task models.RetailerTask
	// Cap is the maximum number of records to return, 0 for no limit.
	Cap int
	// Vocabulary is the noise vocabulary for this request.
	Vocabulary normalize.Vocabulary
}

// Fetcher runs a single fetch attempt: one navigation to the listing URL
// followed by the pagination walk.
type Fetcher struct {
	cfg       config.ScraperConfig
	sites     *Sites
	extractor extract.Extractor

	// fallback, when set, takes over hosts that block the browser.
	fallback engine.Opener
	memory   *engine.DomainMemory

	now   func() time.Time
	pause func(ctx context.Context, d time.Duration) error
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithFallback sends attempts on hosts that blocked the browser through
// opener, tracking the routing in memory.
func WithFallback(opener engine.Opener, memory *engine.DomainMemory) FetcherOption {
	return func(f *Fetcher) {
		f.fallback = opener
		f.memory = memory
	}
}

// WithClock overrides the record timestamp source.
func WithClock(now func() time.Time) FetcherOption {
	return func(f *Fetcher) { f.now = now }
}

// WithPause replaces the wait used after the warm-up visit.
func WithPause(fn func(ctx context.Context, d time.Duration) error) FetcherOption {
	return func(f *Fetcher) { f.pause = fn }
}

// NewFetcher creates a Fetcher.
func NewFetcher(cfg config.ScraperConfig, sites *Sites, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		cfg:       cfg,
		sites:     sites,
		extractor: extract.Extractor{BatchSize: cfg.BatchSize},
		now:       time.Now,
		pause:     pause,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch scrapes req.Task through opener and returns the outcome.
// It navigates to the listing URL exactly once, never panics on page
// errors and never returns records beyond req.Cap.
//
// With a fallback configured, a blocked browser attempt routes the host to
// the fallback engine, so the caller's next retry goes over HTTP. A failed
// fallback attempt routes the host back to the browser.
func (f *Fetcher) Fetch(ctx context.Context, opener engine.Opener, req FetchRequest) models.FetchOutcome {
	target := req.Task.ListingURL
	if target == "" {
		return models.FailedOutcome(models.NewScrapeError(models.ErrCodeNoURL, "no listing URL", nil))
	}
	if f.fallback == nil {
		return f.attempt(ctx, opener, req)
	}

	if f.memory.Preferred(target) == f.fallback.Name() {
		out := f.attempt(ctx, f.fallback, req)
		if !out.OK() {
			f.memory.Forget(target)
		}
		return out
	}

	out := f.attempt(ctx, opener, req)
	if out.Blocked && ctx.Err() == nil {
		slog.Info("browser fetch blocked, next attempt goes over fallback engine",
			"source", req.Task.Name,
			"engine", f.fallback.Name(),
			"error", out.Error,
		)
		f.memory.Remember(target, f.fallback.Name())
	}
	return out
}

// attempt is one fetch through one engine.
func (f *Fetcher) attempt(ctx context.Context, opener engine.Opener, req FetchRequest) models.FetchOutcome {
	target := req.Task.ListingURL
	profile := f.sites.Match(target)

	// ── 1. Open page in the shared context ───────────────────────────
	session, err := opener.Open(ctx, engine.SessionOptions{Referer: siteRoot(target)})
	if err != nil {
		out := models.FailedOutcome(err)
		out.Engine = opener.Name()
		return out
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			slog.Debug("session close failed", "source", req.Task.Name, "error", closeErr)
		}
	}()

	// ── 2. Warm-up on strict sites ───────────────────────────────────
	if profile.WarmUp {
		f.warmUp(ctx, session, target)
	}

	// ── 3. Navigate to the listing ───────────────────────────────────
	resp, err := f.navigate(ctx, session, target, f.navTimeout(req.Cap))
	if err != nil {
		out := models.FailedOutcome(err)
		out.Engine = opener.Name()
		return out
	}

	// ── 4. Extract and paginate ──────────────────────────────────────
	raw, pages, err := f.walk(ctx, session, target, resp, req, profile)
	if err != nil && len(raw) == 0 {
		out := models.FailedOutcome(err)
		out.Pages = pages
		out.Engine = opener.Name()
		return out
	}
	if err != nil {
		slog.Warn("pagination ended early, keeping collected candidates",
			"source", req.Task.Name,
			"pages", pages,
			"error", err,
		)
	}

	// ── 5. Normalize, dedupe and cap ─────────────────────────────────
	names := normalize.Dedupe(raw, req.Vocabulary)
	stats := models.ScrapeStats{RawCount: len(raw), FilteredCount: len(names)}
	if req.Cap > 0 && len(names) > req.Cap {
		names = names[:req.Cap]
	}

	out := models.FetchOutcome{Stats: stats, Pages: pages, Engine: opener.Name()}
	if len(names) == 0 {
		out.Code = models.ErrCodeNoBrands
		out.Error = "no brand candidates found"
		return out
	}

	ts := models.Timestamp(f.now())
	out.Records = make([]models.BrandRecord, len(names))
	for i, name := range names {
		out.Records[i] = models.BrandRecord{
			Brand:           name,
			Source:          req.Task.Name,
			ScrapeTimestamp: ts,
		}
	}
	return out
}

// walk extracts the current page and follows "next" links until the cap
// is met, MaxPages is reached, a URL repeats, a page adds no candidate
// that earlier pages did not already yield, or navigation fails. Candidates are returned in page
// order; err is the first error that prevented reading a page.
func (f *Fetcher) walk(
	ctx context.Context,
	session engine.Session,
	start string,
	resp *engine.Response,
	req FetchRequest,
	profile SiteProfile,
) ([]string, int, error) {
	var (
		raw   []string
		pages int
	)
	visited := map[string]struct{}{extract.VisitKey(start): {}}
	current := start
	if resp.URL != "" {
		visited[extract.VisitKey(resp.URL)] = struct{}{}
		current = resp.URL
	}

	maxPages := max(f.cfg.MaxPages, 1)
	budget := extract.Budget(req.Cap)
	collected := extract.CandidateSet{}

	for {
		// ── a. Snapshot and extract ──────────────────────────────────
		f.waitForLinks(ctx, session, req.Cap)

		markup, err := session.HTML(ctx)
		if err != nil {
			return raw, pages, categorizeError(err, "failed to read page HTML")
		}
		doc, err := extract.ParseHTML(markup)
		if err != nil {
			return raw, pages, models.NewScrapeError(models.ErrCodeExtraction, "failed to parse page HTML", err)
		}
		found, err := f.extractor.Extract(ctx, doc, budget)
		found = profile.Apply(found)
		raw = append(raw, found...)
		pages++
		if err != nil {
			return raw, pages, categorizeError(err, "extraction interrupted")
		}
		slog.Debug("page extracted",
			"source", req.Task.Name,
			"url", current,
			"page", pages,
			"candidates", len(found),
		)

		// ── b. Stop conditions ───────────────────────────────────────
		if added := collected.Add(found); pages > 1 && added == 0 {
			slog.Debug("page adds no new candidates, stopping", "source", req.Task.Name, "url", current)
			return raw, pages, nil
		}

		if req.Cap > 0 && len(normalize.Dedupe(raw, req.Vocabulary)) >= req.Cap {
			return raw, pages, nil
		}
		if pages >= maxPages {
			return raw, pages, nil
		}

		next := extract.NextPage(doc, current)
		if next == "" {
			return raw, pages, nil
		}
		key := extract.VisitKey(next)
		if _, seen := visited[key]; seen {
			return raw, pages, nil
		}
		visited[key] = struct{}{}

		// ── c. Follow "next" ─────────────────────────────────────────
		nextResp, navErr := f.navigate(ctx, session, next, f.navTimeout(req.Cap))
		if navErr != nil {
			slog.Debug("pagination navigation failed, stopping",
				"source", req.Task.Name,
				"url", next,
				"error", navErr,
			)
			return raw, pages, nil
		}
		current = next
		if nextResp.URL != "" {
			if landed := extract.VisitKey(nextResp.URL); landed != key {
				if _, seen := visited[landed]; seen {
					return raw, pages, nil
				}
				visited[landed] = struct{}{}
			}
			current = nextResp.URL
		}
	}
}

// navigate loads target under its own timeout. A status >= 400 is an error.
func (f *Fetcher) navigate(ctx context.Context, session engine.Session, target string, timeout time.Duration) (*engine.Response, error) {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := session.Navigate(navCtx, target)
	if err != nil {
		return nil, categorizeError(err, "navigation failed")
	}
	if resp.Status >= 400 {
		return resp, models.NewHTTPError(resp.Status)
	}
	return resp, nil
}

// warmUp visits the site root so the listing request carries its cookies.
func (f *Fetcher) warmUp(ctx context.Context, session engine.Session, target string) {
	root := siteRoot(target)
	if root == "" {
		return
	}
	if _, err := f.navigate(ctx, session, root, f.cfg.WarmUpTimeout); err != nil {
		slog.Warn("warm-up visit failed, continuing", "url", root, "error", err)
		return
	}
	// Let cookies and challenge scripts settle before the listing request.
	if d := f.warmUpPause(); d > 0 {
		_ = f.pause(ctx, d)
	}
}

// warmUpPause is a random duration in [WarmUpPauseMin, WarmUpPauseMax].
func (f *Fetcher) warmUpPause() time.Duration {
	lo, hi := f.cfg.WarmUpPauseMin, f.cfg.WarmUpPauseMax
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}

func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// waitForLinks waits briefly for the first a[href]; extraction proceeds
// on whatever rendered if none appears.
func (f *Fetcher) waitForLinks(ctx context.Context, session engine.Session, recordCap int) {
	wait := f.cfg.LinkWaitUncapped
	if recordCap > 0 {
		wait = f.cfg.LinkWaitCapped
	}
	if wait <= 0 {
		return
	}
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if err := session.WaitForLinks(waitCtx); err != nil {
		slog.Debug("no links rendered before extraction", "error", err)
	}
}

// navTimeout is tighter when a small result is requested.
func (f *Fetcher) navTimeout(recordCap int) time.Duration {
	switch {
	case f.cfg.NavTimeout > 0:
		return f.cfg.NavTimeout
	case recordCap > 0 && f.cfg.NavTimeoutCapped > 0:
		return f.cfg.NavTimeoutCapped
	case f.cfg.NavTimeoutUncapped > 0:
		return f.cfg.NavTimeoutUncapped
	}
	return 60 * time.Second
}

// categorizeError wraps raw errors into typed ScrapeErrors.
func categorizeError(err error, msg string) *models.ScrapeError {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}

func siteRoot(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/"
}
