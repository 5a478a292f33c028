// Package extract finds brand-name candidates in a rendered page.
//
// It never navigates: callers hand it a goquery document built from the
// page's HTML snapshot and decide what to load next.
package extract

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/use-agent/brandscrape/normalize"
)

const (
	minTextLen   = 2
	maxTextLen   = 120 // exclusive
	maxButtonLen = 80
	minSlugLen   = 2
	maxSlugLen   = 60
	maxKeyLen    = 50
)

var (
	// brandPath matches listing paths such as /brands/acme or /designers/acme.
	brandPath = regexp.MustCompile(`(?i)/(?:brands?|designers?|collections?|merk|marques?|varumarken|b)/[^/?#]+`)

	slugChars = regexp.MustCompile(`^[\p{L}\p{N}\s'\-]+$`)

	navVerb = regexp.MustCompile(`(?i)\b(shop|view|see|all|more|filter|sort|sale|brands?|designers?)\b`)
)

// homePhrases are "home page" labels across the locales retailers use.
var homePhrases = map[string]struct{}{
	"home":              {},
	"home page":         {},
	"homepage":          {},
	"ana sayfa":         {},
	"anasayfa":          {},
	"startseite":        {},
	"accueil":           {},
	"page d'accueil":    {},
	"inicio":            {},
	"página de inicio":  {},
	"pagina principale": {},
	"startpagina":       {},
	"startsida":         {},
	"forside":           {},
	"etusivu":           {},
	"strona główna":     {},
}

// Candidate is one raw brand string derived from an anchor.
type Candidate struct {
	// Value is the anchor text or the slug derived from its href.
	Value string
	// FromSlug is true when Value came from the href.
	FromSlug bool
	// Key deduplicates candidates within one page.
	Key string
}

// Classify decides whether an anchor with the given visible text and href
// yields a candidate.
func Classify(text, href string) (Candidate, bool) {
	text = squash(text)
	goodText := text != "" && !LooksLikeButton(text)

	// A brand-path anchor counts only when its href yields a valid slug;
	// good text still wins over the slug as the value.
	if brandPath.MatchString(href) {
		slug, ok := SlugFromHref(href)
		if !ok {
			return Candidate{}, false
		}
		if goodText {
			return textCandidate(text), true
		}
		return Candidate{Value: slug, FromSlug: true, Key: strings.ToLower(slug)}, true
	}

	if n := utf8.RuneCountInString(text); n >= minTextLen && n < maxTextLen && goodText {
		return textCandidate(text), true
	}
	return Candidate{}, false
}

func textCandidate(text string) Candidate {
	key := strings.ToLower(text)
	if r := []rune(key); len(r) > maxKeyLen {
		key = string(r[:maxKeyLen])
	}
	return Candidate{Value: text, Key: key}
}

// SlugFromHref derives a brand-like name from the last path segment of href.
// Hrefs carrying a query string are rejected: they are usually filters.
func SlugFromHref(href string) (string, bool) {
	beforeFragment, _, _ := strings.Cut(href, "#")
	if strings.Contains(beforeFragment, "?") {
		return "", false
	}
	u, err := url.Parse(beforeFragment)
	if err != nil {
		return "", false
	}

	var last string
	for _, seg := range strings.Split(u.EscapedPath(), "/") {
		if seg != "" {
			last = seg
		}
	}
	if last == "" {
		return "", false
	}
	if unescaped, err := url.PathUnescape(last); err == nil {
		last = unescaped
	}
	slug := strings.TrimSpace(strings.ReplaceAll(last, "-", " "))

	n := utf8.RuneCountInString(slug)
	if n < minSlugLen || n > maxSlugLen || !slugChars.MatchString(slug) {
		return "", false
	}
	return slug, true
}

// LooksLikeButton reports whether anchor text reads like navigation chrome
// rather than a brand name.
func LooksLikeButton(text string) bool {
	text = squash(text)
	n := utf8.RuneCountInString(text)
	if n < minTextLen || n > maxButtonLen {
		return true
	}
	if navVerb.MatchString(text) {
		return true
	}
	if _, ok := homePhrases[strings.ToLower(text)]; ok {
		return true
	}
	if normalize.IsLetterGroup(text) {
		return true
	}
	return isNumeric(text)
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

// squash trims s and collapses internal whitespace.
func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
