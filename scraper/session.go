package scraper

import (
	"context"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/brandscrape/engine"
)

// navigationStatusJS reads the main-document status without CDP network
// listeners, which conflict with request hijacking.
const navigationStatusJS = `() => {
	try {
		const entries = performance.getEntriesByType("navigation");
		if (entries.length > 0) return entries[0].responseStatus || 0;
	} catch (e) {}
	return 0;
}`

// pageSession is a rod page implementing engine.Session.
type pageSession struct {
	owner  *Browser
	page   *rod.Page
	router *rod.HijackRouter
}

// Navigate loads url and waits for DOMContentLoaded.
func (s *pageSession) Navigate(ctx context.Context, url string) (*engine.Response, error) {
	p := s.page.Context(ctx)

	// The waiter must be registered before Navigate or the event is missed.
	wait := p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := p.Navigate(url); err != nil {
		return nil, err
	}
	wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp := &engine.Response{URL: url}
	if res, err := p.Eval(navigationStatusJS); err == nil {
		resp.Status = res.Value.Int()
	}
	if info, err := p.Info(); err == nil && info.URL != "" {
		resp.URL = info.URL
	}
	return resp, nil
}

// WaitForLinks waits until the page has at least one a[href].
func (s *pageSession) WaitForLinks(ctx context.Context) error {
	return s.page.Context(ctx).WaitElementsMoreThan("a[href]", 0)
}

// HTML snapshots the rendered document.
func (s *pageSession) HTML(ctx context.Context) (string, error) {
	return s.page.Context(ctx).HTML()
}

// Close stops hijacking and closes the tab. It uses the page without a
// request context so cleanup succeeds after the caller's deadline.
func (s *pageSession) Close() error {
	defer s.owner.activeSessions.Add(-1)
	if s.router != nil {
		if err := s.router.Stop(); err != nil {
			slog.Debug("hijack router stop failed", "error", err)
		}
	}
	return s.page.Close()
}
