// Package retailers loads the retailer list CSV and selects pilot subsets.
package retailers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/use-agent/brandscrape/models"
)

// CSV column headers.
const (
	colName        = "Retailer Name"
	colDomain      = "Retailer Domain Name"
	colBrandURL    = "Retailer_brand_list_url"
	colGeo         = "Primary geo"
	colType        = "Retailer type"
	colSegment     = "Segment/positioning"
	colPriority    = "Priority"
	colStatus      = "Status"
	colCleanDomain = "clean_domain"
)

// Pilot limits.
const (
	DefaultPilotLimit = 10
	MaxPilotLimit     = 500
)

// Retailer is one row of the retailer list.
type Retailer struct {
	Name         string
	Domain       string
	BrandListURL string
	PrimaryGeo   string
	RetailerType string
	Segment      string
	Priority     string
	Status       string
	CleanDomain  string
}

// Task returns the scrape unit for r.
func (r Retailer) Task() models.RetailerTask {
	return models.RetailerTask{Name: r.Name, ListingURL: r.BrandListURL}
}

// ValidURL reports whether a brand list URL is usable: present, not a
// "n/a" placeholder and http(s).
func ValidURL(raw string) bool {
	u := strings.ToLower(strings.TrimSpace(raw))
	if u == "" || u == "n/a" || strings.HasPrefix(u, "https://n/a") || strings.HasPrefix(u, "http://n/a") {
		return false
	}
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

// LoadFile reads the retailer CSV at path. A missing file yields no
// retailers and no error.
func LoadFile(path string) ([]Retailer, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("retailers: open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a retailer CSV. Rows without a valid brand list URL, a name
// or a domain are dropped.
func Load(r io.Reader) ([]Retailer, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("retailers: read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	if _, ok := index[colBrandURL]; !ok {
		return nil, fmt.Errorf("retailers: missing column %q", colBrandURL)
	}

	var out []Retailer
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("retailers: read row: %w", err)
		}
		get := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		rt := Retailer{
			Name:         get(colName),
			Domain:       get(colDomain),
			BrandListURL: get(colBrandURL),
			PrimaryGeo:   get(colGeo),
			RetailerType: get(colType),
			Segment:      get(colSegment),
			Priority:     get(colPriority),
			Status:       get(colStatus),
			CleanDomain:  get(colCleanDomain),
		}
		if !ValidURL(rt.BrandListURL) || rt.Name == "" || rt.Domain == "" {
			continue
		}
		out = append(out, rt)
	}
	return out, nil
}

// PilotOptions select a pilot subset.
type PilotOptions struct {
	// Limit is clamped to [1, MaxPilotLimit]; 0 means DefaultPilotLimit.
	Limit int
	// Priority defaults to "High".
	Priority string
	// TryLast reports whether a retailer's brand list URL belongs to a
	// site that often blocks; those retailers are placed last.
	TryLast func(url string) bool
}

// Pilot returns active retailers of the requested priority, deduplicated
// by clean domain, sorted by name with try-last sites at the end.
func Pilot(all []Retailer, opts PilotOptions) []Retailer {
	limit := opts.Limit
	if limit == 0 {
		limit = DefaultPilotLimit
	}
	limit = min(max(limit, 1), MaxPilotLimit)
	priority := opts.Priority
	if priority == "" {
		priority = "High"
	}

	seen := make(map[string]struct{})
	var eligible []Retailer
	for _, r := range all {
		if r.Priority != priority || r.Status != "Active" || r.CleanDomain == "" {
			continue
		}
		key := strings.ToLower(r.CleanDomain)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		eligible = append(eligible, r)
	}

	last := func(r Retailer) bool {
		return opts.TryLast != nil && opts.TryLast(r.BrandListURL)
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		li, lj := last(eligible[i]), last(eligible[j])
		if li != lj {
			return !li
		}
		return eligible[i].Name < eligible[j].Name
	})

	if len(eligible) > limit {
		eligible = eligible[:limit]
	}
	return eligible
}

// Tasks converts retailers to scrape tasks.
func Tasks(rs []Retailer) []models.RetailerTask {
	out := make([]models.RetailerTask, len(rs))
	for i, r := range rs {
		out[i] = r.Task()
	}
	return out
}
