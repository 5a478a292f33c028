// Package orchestrator fans retailer fetches out over a bounded worker
// pool, retries failed attempts with backoff and aggregates brand records.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/brandscrape/config"
	"github.com/use-agent/brandscrape/engine"
	"github.com/use-agent/brandscrape/models"
	"github.com/use-agent/brandscrape/normalize"
	"github.com/use-agent/brandscrape/scraper"
	"golang.org/x/sync/errgroup"
)

// Fetcher performs one fetch attempt for one retailer.
type Fetcher interface {
	Fetch(ctx context.Context, opener engine.Opener, req scraper.FetchRequest) models.FetchOutcome
}

// Launcher opens the browsing context shared by one run. The returned
// close function releases it.
type Launcher func(ctx context.Context) (engine.Opener, func() error, error)

// Progress is reported after every task, whether it succeeded, failed or
// was skipped.
type Progress struct {
	Source  string
	URL     string
	Added   int
	Err     string
	Code    string
	Blocked bool
	Skipped bool
	// Records is a snapshot of every record accumulated so far.
	Records  []models.BrandRecord
	Stats    models.ScrapeStats
	Attempts int
	// Index is the 1-based position of the task in the input.
	Index int
	Total int
}

// Retry is reported before every retry attempt.
type Retry struct {
	Source  string
	Attempt int
	Reason  string
	Delay   time.Duration
}

// RunOptions configure one run.
type RunOptions struct {
	MaxRetries int
	// GlobalCap bounds the total number of records, 0 for no limit.
	// It is ignored when PerRetailerCap is set.
	GlobalCap int
	// PerRetailerCap bounds the records of each task, 0 for no limit.
	PerRetailerCap int
	Vocabulary     normalize.Vocabulary

	OnProgress func(Progress)
	OnRetry    func(Retry)
}

// Orchestrator runs batches of retailer tasks.
type Orchestrator struct {
	launch      Launcher
	fetcher     Fetcher
	concurrency int
	backoff     Backoff

	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSleep replaces the delay function.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// WithJitter replaces the random source of the backoff, returning values in [0, 1).
func WithJitter(fn func() float64) Option {
	return func(o *Orchestrator) { o.backoff.jitter = fn }
}

// New creates an Orchestrator from the scraper tunables.
func New(cfg config.ScraperConfig, launch Launcher, fetcher Fetcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		launch:      launch,
		fetcher:     fetcher,
		concurrency: max(cfg.Concurrency, 1),
		backoff: Backoff{
			Base:     cfg.RetryBase,
			Cap:      cfg.RetryCap,
			DelayMin: cfg.DelayMin,
			DelayMax: cfg.DelayMax,
		},
		sleep: sleep,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run scrapes tasks and returns every record collected, in completion order.
//
// A failing retailer never aborts the run. When ctx ends, Run stops
// starting tasks and returns what has been accumulated with a nil error;
// it only fails when the browsing context cannot be launched.
func (o *Orchestrator) Run(ctx context.Context, tasks []models.RetailerTask, opts RunOptions) ([]models.BrandRecord, error) {
	if len(tasks) == 0 {
		return nil, nil
	}

	opener, closeFn, err := o.launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: launch: %w", err)
	}
	defer func() {
		if closeErr := closeFn(); closeErr != nil {
			slog.Warn("closing browsing context failed", "error", closeErr)
		}
	}()

	agg := newAggregate(len(tasks), opts)
	if len(tasks) == 1 || o.concurrency == 1 {
		o.runSequential(ctx, opener, tasks, opts, agg)
	} else {
		o.runParallel(ctx, opener, tasks, opts, agg)
	}
	return agg.snapshot(), nil
}

func (o *Orchestrator) runSequential(ctx context.Context, opener engine.Opener, tasks []models.RetailerTask, opts RunOptions, agg *aggregate) {
	for i, task := range tasks {
		if ctx.Err() != nil {
			return
		}
		recordCap, ok := agg.request()
		if !ok {
			agg.skip(i, task)
			continue
		}
		out, attempts := o.fetchWithRetry(ctx, opener, task, recordCap, opts)
		agg.add(i, task, out, attempts)
	}
}

func (o *Orchestrator) runParallel(ctx context.Context, opener engine.Opener, tasks []models.RetailerTask, opts RunOptions, agg *aggregate) {
	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			recordCap, ok := agg.request()
			if !ok {
				agg.skip(i, task)
				return nil
			}
			out, attempts := o.fetchWithRetry(ctx, opener, task, recordCap, opts)
			agg.add(i, task, out, attempts)
			return nil
		})
	}
	_ = g.Wait()
}

// fetchWithRetry attempts task up to MaxRetries+1 times, stopping at the
// first attempt with records.
func (o *Orchestrator) fetchWithRetry(
	ctx context.Context,
	opener engine.Opener,
	task models.RetailerTask,
	recordCap int,
	opts RunOptions,
) (models.FetchOutcome, int) {
	req := scraper.FetchRequest{Task: task, Cap: recordCap, Vocabulary: opts.Vocabulary}
	if strings.TrimSpace(task.ListingURL) == "" {
		return models.FailedOutcome(models.NewScrapeError(models.ErrCodeNoURL, "no brand list URL", nil)), 0
	}

	var (
		out      models.FetchOutcome
		attempts int
	)
	for attempt := 0; attempt <= max(opts.MaxRetries, 0); attempt++ {
		delay := o.backoff.PreDelay()
		if attempt > 0 {
			delay = o.backoff.Retry(attempt)
			reason := out.Error
			if reason == "" {
				reason = "retry"
			}
			slog.Info("retrying retailer",
				"source", task.Name,
				"attempt", attempt,
				"reason", reason,
				"delay", delay,
			)
			if opts.OnRetry != nil {
				opts.OnRetry(Retry{Source: task.Name, Attempt: attempt, Reason: reason, Delay: delay})
			}
		}
		if err := o.sleep(ctx, delay); err != nil {
			if attempts == 0 {
				out = models.FailedOutcome(models.NewScrapeError(models.ErrCodeServerTime, "not run before deadline", err))
			}
			break
		}

		out = o.fetcher.Fetch(ctx, opener, req)
		attempts++
		if out.OK() || ctx.Err() != nil {
			break
		}
	}
	return out, attempts
}

// aggregate is the run's shared record list. Progress callbacks run under
// its lock, so a callback always observes the records it reports.
type aggregate struct {
	mu      sync.Mutex
	records []models.BrandRecord
	seen    map[string]struct{}
	total   int

	globalCap      int
	perRetailerCap int
	onProgress     func(Progress)
}

func newAggregate(total int, opts RunOptions) *aggregate {
	a := &aggregate{
		seen:           make(map[string]struct{}),
		total:          total,
		perRetailerCap: max(opts.PerRetailerCap, 0),
		onProgress:     opts.OnProgress,
	}
	if a.perRetailerCap == 0 {
		a.globalCap = max(opts.GlobalCap, 0)
	}
	return a
}

// request returns the cap for the next fetch, or false when the global
// cap is already met.
func (a *aggregate) request() (int, bool) {
	if a.perRetailerCap > 0 {
		return a.perRetailerCap, true
	}
	if a.globalCap == 0 {
		return 0, true
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	need := a.globalCap - len(a.records)
	return need, need > 0
}

func (a *aggregate) add(index int, task models.RetailerTask, out models.FetchOutcome, attempts int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	added := 0
	for _, r := range out.Records {
		if a.globalCap > 0 && len(a.records) >= a.globalCap {
			break
		}
		key := strings.ToLower(r.Brand) + "\x00" + r.Source
		if _, dup := a.seen[key]; dup {
			continue
		}
		a.seen[key] = struct{}{}
		a.records = append(a.records, r)
		added++
	}

	p := Progress{
		Source:   task.Name,
		URL:      task.ListingURL,
		Added:    added,
		Blocked:  out.Blocked,
		Stats:    out.Stats,
		Attempts: attempts,
		Index:    index + 1,
		Total:    a.total,
	}
	if !out.OK() {
		p.Err = out.Error
		p.Code = out.Code
	}
	slog.Info("retailer done",
		"source", task.Name,
		"brands", added,
		"attempts", attempts,
		"blocked", out.Blocked,
		"error", p.Err,
	)
	a.notify(p)
}

func (a *aggregate) skip(index int, task models.RetailerTask) {
	a.mu.Lock()
	defer a.mu.Unlock()
	slog.Debug("global cap met, skipping retailer", "source", task.Name)
	a.notify(Progress{
		Source:  task.Name,
		URL:     task.ListingURL,
		Skipped: true,
		Index:   index + 1,
		Total:   a.total,
	})
}

// notify must be called with a.mu held.
func (a *aggregate) notify(p Progress) {
	if a.onProgress == nil {
		return
	}
	p.Records = append([]models.BrandRecord(nil), a.records...)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("progress callback panicked", "source", p.Source, "panic", r)
		}
	}()
	a.onProgress(p)
}

func (a *aggregate) snapshot() []models.BrandRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.BrandRecord(nil), a.records...)
}
