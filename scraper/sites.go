package scraper

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/use-agent/brandscrape/config"
	"github.com/use-agent/brandscrape/engine"
)

// PostProcessor rewrites raw candidates of one site before normalization.
type PostProcessor func(raw []string) []string

// trailingCounter matches digits glued onto a letter, like "Acne12".
var trailingCounter = regexp.MustCompile(`(\p{L})\d+$`)

// StripTrailingCounter removes a numeric UI counter concatenated onto a
// name. Digits are only stripped when a letter immediately precedes them,
// so "Acne Studios 12" is left alone.
func StripTrailingCounter(raw []string) []string {
	out := make([]string, len(raw))
	for i, s := range raw {
		out[i] = trailingCounter.ReplaceAllString(strings.TrimSpace(s), "$1")
	}
	return out
}

// postProcessors is the registry referenced by name from site profiles.
var postProcessors = map[string]PostProcessor{
	"strip_trailing_counter": StripTrailingCounter,
}

// SiteProfile is the per-domain behavior of a strict or quirky retailer.
type SiteProfile struct {
	// Domain matches the host and any of its subdomains.
	Domain string
	// WarmUp visits the site root before the listing URL.
	WarmUp bool
	// TryLast moves the retailer to the end of pilot runs.
	TryLast bool
	// PostProcess names registered post-processors, applied in order.
	PostProcess []string
}

// DefaultSiteProfiles are the built-in strict domains.
var DefaultSiteProfiles = []SiteProfile{
	{Domain: "24s.com", WarmUp: true, TryLast: true},
	{Domain: "aesthet.com", WarmUp: true, TryLast: true},
}

// Sites matches URLs against site profiles.
type Sites struct {
	profiles []SiteProfile
}

// NewSites returns the default profiles overlaid with configured ones.
// A configured domain replaces a default profile with the same domain.
func NewSites(configured []config.SiteConfig) *Sites {
	byDomain := make(map[string]int)
	var profiles []SiteProfile
	add := func(p SiteProfile) {
		p.Domain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(p.Domain)), "www.")
		if p.Domain == "" {
			return
		}
		for _, name := range p.PostProcess {
			if _, ok := postProcessors[name]; !ok {
				slog.Warn("unknown site post-processor ignored", "domain", p.Domain, "name", name)
			}
		}
		if i, ok := byDomain[p.Domain]; ok {
			profiles[i] = p
			return
		}
		byDomain[p.Domain] = len(profiles)
		profiles = append(profiles, p)
	}

	for _, p := range DefaultSiteProfiles {
		add(p)
	}
	for _, c := range configured {
		add(SiteProfile{
			Domain:      c.Domain,
			WarmUp:      c.WarmUp,
			TryLast:     c.TryLast,
			PostProcess: c.PostProcess,
		})
	}
	return &Sites{profiles: profiles}
}

// Match returns the profile for rawURL. The zero profile means no special
// handling.
func (s *Sites) Match(rawURL string) SiteProfile {
	if s == nil {
		return SiteProfile{}
	}
	host := engine.HostKey(rawURL)
	for _, p := range s.profiles {
		if host == p.Domain || strings.HasSuffix(host, "."+p.Domain) {
			return p
		}
	}
	return SiteProfile{}
}

// TryLast reports whether rawURL belongs to a site that should run last.
func (s *Sites) TryLast(rawURL string) bool {
	return s.Match(rawURL).TryLast
}

// Apply runs the profile's post-processors over raw candidates.
func (p SiteProfile) Apply(raw []string) []string {
	for _, name := range p.PostProcess {
		if fn, ok := postProcessors[name]; ok {
			raw = fn(raw)
		}
	}
	return raw
}
