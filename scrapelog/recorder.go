package scrapelog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/use-agent/brandscrape/models"
	"github.com/use-agent/brandscrape/orchestrator"
)

// StatusWriteTimeout bounds one retailer status write. Writes run inside
// the orchestrator's progress callback, which holds the run's record lock.
const StatusWriteTimeout = 2 * time.Second

// Recorder subscribes one run to the scrape log and the status store.
// Write failures are logged and never interrupt the run.
type Recorder struct {
	log    *Logger
	status StatusStore
	runID  string
	now    func() time.Time

	statusTimeout time.Duration

	mu        sync.Mutex
	processed int
}

// NewRecorder starts recording a new run. status may be nil.
func NewRecorder(log *Logger, status StatusStore) *Recorder {
	return &Recorder{
		log:           log,
		status:        status,
		runID:         NewRunID(),
		now:           time.Now,
		statusTimeout: StatusWriteTimeout,
	}
}

// RunID returns the run identifier written on every line.
func (r *Recorder) RunID() string { return r.runID }

// Start writes run_start.
func (r *Recorder) Start(retailerCount, maxBrands int) {
	if r.log == nil {
		return
	}
	if err := r.log.RunStart(r.runID, retailerCount, maxBrands); err != nil {
		slog.Warn("scrape log write failed", "event", EventRunStart, "error", err)
	}
}

// Progress writes site_result and the retailer status. Skipped tasks
// are not recorded.
func (r *Recorder) Progress(p orchestrator.Progress) {
	if p.Skipped {
		return
	}
	r.mu.Lock()
	r.processed++
	r.mu.Unlock()

	success := p.Err == ""
	if r.log != nil {
		err := r.log.SiteResult(SiteResult{
			RunID:         r.runID,
			Source:        p.Source,
			Success:       success,
			BrandsCount:   p.Added,
			Blocked:       p.Blocked,
			Error:         p.Err,
			RawCount:      p.Stats.RawCount,
			FilteredCount: p.Stats.FilteredCount,
		})
		if err != nil {
			slog.Warn("scrape log write failed", "event", EventSiteResult, "source", p.Source, "error", err)
		}
	}
	if r.status != nil {
		ctx, cancel := context.WithTimeout(context.Background(), r.statusTimeout)
		defer cancel()
		err := r.status.Record(ctx, RetailerStatus{
			Source:        p.Source,
			LastRun:       models.Timestamp(r.now()),
			Success:       success,
			BrandsCount:   p.Added,
			Blocked:       p.Blocked,
			Error:         p.Err,
			RawCount:      p.Stats.RawCount,
			FilteredCount: p.Stats.FilteredCount,
		})
		if err != nil {
			slog.Warn("retailer status write failed", "source", p.Source, "error", err)
		}
	}
}

// Retry writes one retry line.
func (r *Recorder) Retry(rt orchestrator.Retry) {
	if r.log == nil {
		return
	}
	if err := r.log.Retry(rt.Source, rt.Attempt, rt.Reason); err != nil {
		slog.Warn("retry log write failed", "source", rt.Source, "error", err)
	}
}

// End writes run_end with the number of retailers recorded so far.
func (r *Recorder) End(totalBrands int, success bool) {
	if r.log == nil {
		return
	}
	r.mu.Lock()
	processed := r.processed
	r.mu.Unlock()
	if err := r.log.RunEnd(r.runID, totalBrands, processed, success); err != nil {
		slog.Warn("scrape log write failed", "event", EventRunEnd, "error", err)
	}
}

// Hooks wires the recorder into run options.
func (r *Recorder) Hooks(opts orchestrator.RunOptions) orchestrator.RunOptions {
	next := opts.OnProgress
	opts.OnProgress = func(p orchestrator.Progress) {
		r.Progress(p)
		if next != nil {
			next(p)
		}
	}
	retry := opts.OnRetry
	opts.OnRetry = func(rt orchestrator.Retry) {
		r.Retry(rt)
		if retry != nil {
			retry(rt)
		}
	}
	return opts
}
