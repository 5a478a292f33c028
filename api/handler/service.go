package handler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/use-agent/brandscrape/cache"
	"github.com/use-agent/brandscrape/config"
	"github.com/use-agent/brandscrape/models"
	"github.com/use-agent/brandscrape/normalize"
	"github.com/use-agent/brandscrape/orchestrator"
	"github.com/use-agent/brandscrape/scrapelog"
	"github.com/use-agent/brandscrape/webhook"
)

// Runner executes a scrape run. *orchestrator.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, tasks []models.RetailerTask, opts orchestrator.RunOptions) ([]models.BrandRecord, error)
}

// Service holds what the scrape handlers share.
type Service struct {
	Runner     Runner
	Config     *config.Config
	Vocabulary normalize.Vocabulary
	Cache      *cache.Cache
	Log        *scrapelog.Logger
	Status     scrapelog.StatusStore
}

// outcome is a run as seen by a handler: the final or partial records
// plus the last progress of every task, keyed by 1-based index.
type outcome struct {
	records  []models.BrandRecord
	progress map[int]orchestrator.Progress
	partial  bool
	err      error
}

// run executes tasks under the server deadline. When the deadline fires
// first, the outcome is built from the progress mirror while the run
// unwinds in the background.
func (s *Service) run(ctx context.Context, tasks []models.RetailerTask, opts orchestrator.RunOptions, maxBrands int) outcome {
	ctx, cancel := context.WithTimeout(ctx, s.Config.Scraper.ServerTimeout)

	var (
		mu     sync.Mutex
		mirror = outcome{progress: make(map[int]orchestrator.Progress)}
	)
	opts.MaxRetries = s.Config.Scraper.MaxRetries
	opts.OnProgress = func(p orchestrator.Progress) {
		mu.Lock()
		defer mu.Unlock()
		mirror.progress[p.Index] = p
		mirror.records = p.Records
	}

	rec := scrapelog.NewRecorder(s.Log, s.Status)
	rec.Start(len(tasks), maxBrands)
	opts = rec.Hooks(opts)

	done := make(chan outcome, 1)
	go func() {
		defer cancel()
		records, err := s.Runner.Run(ctx, tasks, opts)
		rec.End(len(records), err == nil && len(records) > 0)
		done <- outcome{records: records, err: err}
	}()

	var res outcome
	select {
	case res = <-done:
	case <-ctx.Done():
		// Give a run that is already returning a chance to win.
		select {
		case res = <-done:
		case <-time.After(50 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	res.progress = make(map[int]orchestrator.Progress, len(mirror.progress))
	for k, v := range mirror.progress {
		res.progress[k] = v
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.partial = true
		if res.records == nil {
			res.records = mirror.records
		}
		slog.Warn("server timeout, returning partial results",
			"retailers", len(tasks),
			"completed", len(mirror.progress),
			"brands", len(res.records),
		)
	}
	return res
}

// vocabulary applies per-request noise overrides to the base vocabulary.
func (s *Service) vocabulary(o models.NoiseOverrides) normalize.Vocabulary {
	return s.Vocabulary.With(o.NoiseWords, o.NoisePhrases)
}

// notify posts payload to a caller-supplied webhook.
func (s *Service) notify(url string, payload models.Payload) {
	if url == "" {
		return
	}
	webhook.New(url, s.Config.Webhook.Secret).DeliverAsync(payload)
}

func newMeta(records []models.BrandRecord, partial bool, env string) models.Meta {
	return models.Meta{
		Count:           len(records),
		ScrapeTimestamp: models.Timestamp(time.Now()),
		PartialTimeout:  partial,
		Environment:     env,
	}
}

func nonNil(records []models.BrandRecord) []models.BrandRecord {
	if records == nil {
		return []models.BrandRecord{}
	}
	return records
}
