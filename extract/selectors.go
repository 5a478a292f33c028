package extract

import "github.com/andybalholm/cascadia"

// Selectors are compiled once; cascadia.Selector satisfies goquery.Matcher.

var anchorSel = cascadia.MustCompile("a[href]")

// containerSelectors locate the main content region, most specific first.
var containerSelectors = compileAll(
	"main",
	"[role='main']",
	"#main",
	"#MainContent",
	"#content",
	".main-content",
	".page-content",
	".content",
	"[class*='brand']",
	"[class*='designer']",
)

// brandSelectors are applied within the content region in order.
var brandSelectors = compileAll(
	`a[href*="/brands/"]`,
	`a[href*="/designers/"]`,
	`a[href*="/brand/"]`,
	`a[href*="/designer/"]`,
	`a[href*="/collections/"]`,
	`a[href*="/merk/"]`,
	`a[href*="/marques/"]`,
	`a[href*="/varumarken/"]`,
	`a[href*="/b/"]`,
	`[data-brand] a, .brand-name, .designer-name`,
	`a[href*="brand"], a[href*="designer"]`,
)

// nextSelectors locate an explicit "next page" link.
var nextSelectors = compileAll(
	"a[rel~='next']",
	"link[rel~='next']",
	"a[aria-label='Next']",
	"a[aria-label='next']",
	".pagination a[rel~='next']",
	".pager a[rel~='next']",
)

func compileAll(sels ...string) []cascadia.Selector {
	out := make([]cascadia.Selector, len(sels))
	for i, s := range sels {
		out[i] = cascadia.MustCompile(s)
	}
	return out
}
