package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	tls "github.com/refraction-networking/utls"
	"golang.org/x/net/html"
)

// maxBody caps how much of a document is read.
const maxBody = 10 << 20

// ErrNoLinks is returned by WaitForLinks when a static document has no anchors.
var ErrNoLinks = errors.New("engine: document has no links")

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Go's http.Transport cannot speak h2 over a utls conn.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// HTTPOpener opens static sessions over a Chrome-fingerprinted TLS client.
// All sessions share one cookie jar, mirroring a browser context.
type HTTPOpener struct {
	client *http.Client
	id     Identity
}

// NewHTTPOpener creates an HTTPOpener for the given identity.
func NewHTTPOpener(id Identity) (*HTTPOpener, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("http_engine: cookie jar: %w", err)
	}

	transport := &http.Transport{
		DialTLSContext:    dialChromeTLS,
		ForceAttemptHTTP2: false,
	}
	if id.Proxy != "" {
		proxyURL, err := url.Parse(id.Proxy)
		if err != nil {
			return nil, fmt.Errorf("http_engine: proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &HTTPOpener{
		client: &http.Client{
			Transport: transport,
			Jar:       jar,
			Timeout:   id.NavTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		id: id,
	}, nil
}

func dialChromeTLS(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
	if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
		conn.Close()
		return nil, fmt.Errorf("http_engine: apply tls spec: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

func (o *HTTPOpener) Name() string { return "http" }

// Open returns a new static session. It never fails.
func (o *HTTPOpener) Open(_ context.Context, opts SessionOptions) (Session, error) {
	return &httpSession{opener: o, opts: opts}, nil
}

// httpSession is a Session backed by plain GET requests.
type httpSession struct {
	opener *HTTPOpener
	opts   SessionOptions
	body   string
}

func (s *httpSession) Navigate(ctx context.Context, target string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("http_engine: build request: %w", err)
	}
	id := s.opener.id
	req.Header.Set("User-Agent", id.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", id.AcceptLanguage)
	req.Header.Set("Accept-Encoding", "identity")
	if s.opts.Referer != "" {
		req.Header.Set("Referer", s.opts.Referer)
	}
	for k, v := range s.opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.opener.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http_engine: do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("http_engine: read body: %w", err)
	}
	s.body = string(body)

	return &Response{
		Status: resp.StatusCode,
		URL:    resp.Request.URL.String(),
	}, nil
}

func (s *httpSession) WaitForLinks(_ context.Context) error {
	if hasLink(s.body) {
		return nil
	}
	return ErrNoLinks
}

func (s *httpSession) HTML(_ context.Context) (string, error) {
	return s.body, nil
}

func (s *httpSession) Close() error {
	s.body = ""
	return nil
}

// hasLink reports whether the markup contains an anchor with an href.
func hasLink(markup string) bool {
	tokenizer := html.NewTokenizer(strings.NewReader(markup))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := tokenizer.TagName()
			if string(name) != "a" || !hasAttr {
				continue
			}
			for {
				key, _, more := tokenizer.TagAttr()
				if string(key) == "href" {
					return true
				}
				if !more {
					break
				}
			}
		}
	}
}
