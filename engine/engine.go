// Package engine defines the page-session abstraction the fetcher drives,
// plus the HTTP implementation used when a browser is not wanted.
package engine

import (
	"context"
	"time"
)

// Session is one page: it navigates, waits for links and snapshots HTML.
// A Session is used by one goroutine at a time.
type Session interface {
	// Navigate loads url and returns the main-document response.
	Navigate(ctx context.Context, url string) (*Response, error)

	// WaitForLinks blocks until at least one a[href] exists or ctx ends.
	WaitForLinks(ctx context.Context) error

	// HTML returns the current document markup.
	HTML(ctx context.Context) (string, error)

	// Close releases the page.
	Close() error
}

// Response describes the result of a navigation.
type Response struct {
	// Status is the HTTP status of the main document, 0 when unknown.
	Status int
	// URL is the document URL after redirects.
	URL string
}

// SessionOptions configure a new Session.
type SessionOptions struct {
	// Referer is sent with every request of the session.
	Referer string
	// Headers are extra request headers.
	Headers map[string]string
}

// Opener opens sessions inside one shared browsing identity
// (cookies, user agent, locale).
type Opener interface {
	// Name identifies the engine, e.g. "browser" or "http".
	Name() string
	Open(ctx context.Context, opts SessionOptions) (Session, error)
}

// Identity is the browsing identity shared by every session of an Opener.
type Identity struct {
	UserAgent      string
	AcceptLanguage string
	Locale         string
	ViewportWidth  int
	ViewportHeight int
	Proxy          string
	// NavTimeout bounds a single HTTP round trip when ctx has no deadline.
	NavTimeout time.Duration
}

// DefaultUserAgent is a desktop Chrome user agent.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultIdentity returns the en-US desktop identity.
func DefaultIdentity() Identity {
	return Identity{
		UserAgent:      DefaultUserAgent,
		AcceptLanguage: "en-US,en;q=0.9",
		Locale:         "en-US",
		ViewportWidth:  1280,
		ViewportHeight: 720,
		NavTimeout:     60 * time.Second,
	}
}
