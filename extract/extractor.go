package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// DefaultBatchSize is the number of elements classified between cancellation checks.
const DefaultBatchSize = 200

// minPrimaryYield is the candidate count below which the whole-page scan runs.
const minPrimaryYield = 3

// BudgetMargin is added to a record cap to get the raw-candidate budget:
// normalization rejects some candidates, so collection overshoots the cap.
const BudgetMargin = 50

// Budget returns the raw-candidate budget for a record cap (0 = unbounded).
func Budget(recordCap int) int {
	if recordCap <= 0 {
		return 0
	}
	return recordCap + BudgetMargin
}

// Extractor collects raw brand candidates from one page.
type Extractor struct {
	// BatchSize bounds how many elements are classified per chunk.
	BatchSize int
}

// pageState is the per-page dedup and budget bookkeeping.
type pageState struct {
	seen   map[string]struct{}
	raw    []string
	budget int
}

func (p *pageState) full() bool {
	return p.budget > 0 && len(p.raw) >= p.budget
}

func (p *pageState) add(s *goquery.Selection) {
	href, _ := s.Attr("href")
	c, ok := Classify(s.Text(), href)
	if !ok {
		return
	}
	if _, dup := p.seen[c.Key]; dup {
		return
	}
	p.seen[c.Key] = struct{}{}
	p.raw = append(p.raw, c.Value)
}

// Extract returns the page's raw candidates in document order, stopping
// once budget candidates are collected (budget <= 0 means no limit).
//
// The content region is searched with the brand selectors first; when that
// yields fewer than three candidates, or fewer than the budget, every anchor
// on the page is scanned with the same classifier.
func (e Extractor) Extract(ctx context.Context, doc *goquery.Document, budget int) ([]string, error) {
	st := &pageState{seen: make(map[string]struct{}), budget: budget}

	scope := MainContainer(doc)
	for _, sel := range brandSelectors {
		if st.full() {
			break
		}
		if err := e.each(ctx, scope.FindMatcher(sel), st); err != nil {
			return st.raw, err
		}
	}

	if len(st.raw) < minPrimaryYield || (budget > 0 && len(st.raw) < budget) {
		if err := e.each(ctx, doc.FindMatcher(anchorSel), st); err != nil {
			return st.raw, err
		}
	}
	return st.raw, nil
}

// each classifies sel in chunks, checking ctx between chunks.
func (e Extractor) each(ctx context.Context, sel *goquery.Selection, st *pageState) error {
	size := e.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	n := sel.Length()
	for start := 0; start < n; start += size {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("extract: %w", err)
		}
		chunk := sel.Slice(start, min(start+size, n))
		for i := range chunk.Nodes {
			if st.full() {
				return nil
			}
			st.add(chunk.Eq(i))
		}
	}
	return nil
}

// MainContainer returns the first content-region match that holds at least
// one link, or the whole document.
func MainContainer(doc *goquery.Document) *goquery.Selection {
	for _, sel := range containerSelectors {
		if c := firstWithLinks(doc, sel); c != nil {
			return c
		}
	}
	return doc.Selection
}

func firstWithLinks(doc *goquery.Document, sel cascadia.Selector) *goquery.Selection {
	first := doc.FindMatcher(sel).First()
	if first.Length() == 0 || first.FindMatcher(anchorSel).Length() == 0 {
		return nil
	}
	return first
}

// ParseHTML builds a document from a rendered HTML snapshot.
func ParseHTML(src string) (*goquery.Document, error) {
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("extract: parse html: %w", err)
	}
	return goquery.NewDocumentFromNode(root), nil
}
