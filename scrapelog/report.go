package scrapelog

import (
	"bufio"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// maxErrorLen bounds last_error in reliability rows.
const maxErrorLen = 200

// Entry is one decoded log line.
type Entry map[string]any

// Event returns the line's event name, or "" for retry lines.
func (e Entry) Event() string {
	s, _ := e["event"].(string)
	return s
}

// SourceReliability aggregates the site results of one source.
type SourceReliability struct {
	Source         string  `json:"source"`
	Runs           int     `json:"runs"`
	Successes      int     `json:"successes"`
	SuccessRatePct float64 `json:"success_rate_pct"`
	TotalBrands    int     `json:"total_brands"`
	BlockedCount   int     `json:"blocked_count"`
	LastError      *string `json:"last_error"`
}

// Report is the reliability report over a set of log files.
type Report struct {
	LogFiles []string            `json:"log_files"`
	BySource []SourceReliability `json:"by_source"`
}

// Files returns the daily scrape log files under dir, oldest first.
// days > 0 keeps only files dated within the last days days.
func (l *Logger) Files(days int) []string {
	return logFiles(l.dir, days, l.now())
}

func logFiles(dir string, days int, now time.Time) []string {
	matches, _ := filepath.Glob(filepath.Join(dir, scrapePrefix+"*.jsonl"))
	cutoff := ""
	if days > 0 {
		cutoff = scrapePrefix + now.UTC().AddDate(0, 0, -days).Format(dateLayout) + ".jsonl"
	}

	var out []string
	for _, m := range matches {
		name := filepath.Base(m)
		if strings.HasPrefix(name, retryPrefix) {
			continue
		}
		if cutoff != "" && name < cutoff {
			continue
		}
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Entries returns up to limit of the most recent scrape log lines from the
// last days days, oldest first. Malformed lines are skipped.
func (l *Logger) Entries(days, limit int) ([]Entry, error) {
	var all []Entry
	for _, path := range l.Files(days) {
		entries, err := readEntries(path)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

// Report aggregates site_result lines by source, sorted by source.
func (l *Logger) Report(days int) (*Report, error) {
	files := l.Files(days)
	bySource := make(map[string][]Entry)
	for _, path := range files {
		entries, err := readEntries(path)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.Event() != EventSiteResult {
				continue
			}
			src, _ := e["source"].(string)
			if src == "" {
				src = "unknown"
			}
			bySource[src] = append(bySource[src], e)
		}
	}

	report := &Report{LogFiles: files, BySource: []SourceReliability{}}
	if report.LogFiles == nil {
		report.LogFiles = []string{}
	}
	sources := make([]string, 0, len(bySource))
	for s := range bySource {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	for _, src := range sources {
		entries := bySource[src]
		row := SourceReliability{Source: src, Runs: len(entries)}
		for _, e := range entries {
			if b, _ := e["success"].(bool); b {
				row.Successes++
			}
			if n, ok := e["brands_count"].(float64); ok {
				row.TotalBrands += int(n)
			}
			if b, _ := e["blocked_or_captcha"].(bool); b {
				row.BlockedCount++
			}
		}
		for i := len(entries) - 1; i >= 0; i-- {
			if msg, _ := entries[i]["error"].(string); msg != "" {
				if len(msg) > maxErrorLen {
					msg = msg[:maxErrorLen]
				}
				row.LastError = &msg
				break
			}
		}
		if row.Runs > 0 {
			row.SuccessRatePct = math.Round(float64(row.Successes)/float64(row.Runs)*1000) / 10
		}
		report.BySource = append(report.BySource, row)
	}
	return report, nil
}

func readEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, sc.Err()
}
