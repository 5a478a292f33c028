// Package scrapelog writes the daily JSONL scrape logs, reads them back for
// reliability reports and keeps the last status of every retailer.
package scrapelog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event names written to the scrape log.
const (
	EventRunStart   = "run_start"
	EventSiteResult = "site_result"
	EventRunEnd     = "run_end"
)

// File name prefixes; the date suffix is YYYY-MM-DD in UTC.
const (
	scrapePrefix = "scrape_"
	retryPrefix  = "scrape_retries_"
	dateLayout   = "2006-01-02"
)

// SiteResult is one retailer outcome.
type SiteResult struct {
	RunID         string
	Source        string
	Success       bool
	BrandsCount   int
	Blocked       bool
	Error         string
	RawCount      int
	FilteredCount int
}

// Logger appends JSON lines to logs/scrape_YYYY-MM-DD.jsonl and
// logs/scrape_retries_YYYY-MM-DD.jsonl. It is safe for concurrent use.
type Logger struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// NewLogger returns a Logger writing under dir. The directory is created
// on first write.
func NewLogger(dir string) *Logger {
	return &Logger{dir: dir, now: time.Now}
}

// Dir returns the log directory.
func (l *Logger) Dir() string { return l.dir }

// NewRunID returns an identifier tying together the lines of one run.
func NewRunID() string {
	return uuid.NewString()
}

// RunStart logs the beginning of a run. maxBrands 0 is written as null.
func (l *Logger) RunStart(runID string, retailerCount, maxBrands int) error {
	return l.event(EventRunStart,
		slog.String("run_id", runID),
		slog.Int("retailer_count", retailerCount),
		nullableInt("max_brands", maxBrands),
	)
}

// SiteResult logs one retailer outcome.
func (l *Logger) SiteResult(r SiteResult) error {
	return l.event(EventSiteResult,
		slog.String("run_id", r.RunID),
		slog.String("source", r.Source),
		slog.Bool("success", r.Success),
		slog.Int("brands_count", r.BrandsCount),
		slog.Bool("blocked_or_captcha", r.Blocked),
		nullableString("error", r.Error),
		slog.Int("raw_count", r.RawCount),
		slog.Int("filtered_count", r.FilteredCount),
	)
}

// RunEnd logs the end of a run.
func (l *Logger) RunEnd(runID string, totalBrands, retailersProcessed int, success bool) error {
	return l.event(EventRunEnd,
		slog.String("run_id", runID),
		slog.Int("total_brands", totalBrands),
		slog.Int("retailers_processed", retailersProcessed),
		slog.Bool("success", success),
	)
}

// Retry logs a retry attempt to the retries file.
func (l *Logger) Retry(source string, attempt int, reason string) error {
	return l.write(retryPrefix, "",
		slog.String("source", source),
		slog.Int("attempt", attempt),
		slog.String("reason", reason),
	)
}

func (l *Logger) event(name string, attrs ...slog.Attr) error {
	return l.write(scrapePrefix, name, attrs...)
}

// write appends one record. An empty msg drops the event key.
func (l *Logger) write(prefix, msg string, attrs ...slog.Attr) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("scrapelog: create dir: %w", err)
	}
	path := filepath.Join(l.dir, prefix+now.UTC().Format(dateLayout)+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("scrapelog: open %s: %w", path, err)
	}
	defer f.Close()

	r := slog.NewRecord(now, slog.LevelInfo, msg, 0)
	r.AddAttrs(attrs...)
	if err := newLineHandler(f, msg != "").Handle(context.Background(), r); err != nil {
		return fmt.Errorf("scrapelog: write %s: %w", path, err)
	}
	return nil
}

// newLineHandler is a JSON handler producing the operational line format:
// "timestamp" first, "event" instead of "msg", no level.
func newLineHandler(w io.Writer, withEvent bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				return slog.String("timestamp", a.Value.Time().UTC().Format(time.RFC3339Nano))
			case slog.LevelKey:
				return slog.Attr{}
			case slog.MessageKey:
				if !withEvent {
					return slog.Attr{}
				}
				a.Key = "event"
			}
			return a
		},
	})
}

func nullableString(key, v string) slog.Attr {
	if v == "" {
		return slog.Any(key, nil)
	}
	return slog.String(key, v)
}

func nullableInt(key string, v int) slog.Attr {
	if v <= 0 {
		return slog.Any(key, nil)
	}
	return slog.Int(key, v)
}
