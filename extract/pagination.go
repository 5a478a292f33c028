package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// nextScanLimit is how many anchors are checked for a "next" label.
const nextScanLimit = 100

// nextTokens are lowercase visible labels of "next page" links.
var nextTokens = map[string]struct{}{
	"next": {}, "next page": {}, "next »": {}, "next ›": {}, "next >": {},
	"›": {}, "»": {}, ">": {}, "→": {}, ">>": {},
	"suivant": {}, "page suivante": {},
	"weiter": {}, "nächste": {}, "nächste seite": {},
	"siguiente": {}, "successivo": {}, "avanti": {},
	"volgende": {}, "nästa": {}, "næste": {}, "neste": {},
	"sonraki": {}, "próximo": {}, "następna": {},
}

// NextPage returns the absolute URL of the page after currentURL, or "".
func NextPage(doc *goquery.Document, currentURL string) string {
	for _, sel := range nextSelectors {
		href, ok := doc.FindMatcher(sel).First().Attr("href")
		if !ok {
			continue
		}
		if next := Resolve(currentURL, href); next != "" {
			return next
		}
	}

	anchors := doc.FindMatcher(anchorSel)
	n := min(anchors.Length(), nextScanLimit)
	for i := 0; i < n; i++ {
		a := anchors.Eq(i)
		label := strings.ToLower(squash(a.Text()))
		if label == "" {
			label = strings.ToLower(squash(a.AttrOr("aria-label", "")))
		}
		if _, ok := nextTokens[label]; !ok {
			continue
		}
		if next := Resolve(currentURL, a.AttrOr("href", "")); next != "" {
			return next
		}
	}
	return ""
}

// Resolve makes href absolute against base. Only http(s) results are
// returned; the fragment is dropped.
func Resolve(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	u := b.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

// VisitKey canonicalizes a URL for the pagination cycle guard.
func VisitKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}
