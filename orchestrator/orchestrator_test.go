package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/brandscrape/config"
	"github.com/use-agent/brandscrape/engine"
	"github.com/use-agent/brandscrape/models"
	"github.com/use-agent/brandscrape/scraper"
)

type nopOpener struct{}

func (nopOpener) Name() string { return "fake" }

func (nopOpener) Open(context.Context, engine.SessionOptions) (engine.Session, error) {
	return nil, errors.New("not used")
}

func fakeLauncher(closed *atomic.Int32) Launcher {
	return func(ctx context.Context) (engine.Opener, func() error, error) {
		return nopOpener{}, func() error {
			if closed != nil {
				closed.Add(1)
			}
			return nil
		}, nil
	}
}

// scriptedFetcher answers per source and counts calls.
type scriptedFetcher struct {
	mu      sync.Mutex
	answer  func(req scraper.FetchRequest, call int) models.FetchOutcome
	calls   map[string]int
	caps    map[string]int
	running atomic.Int32
	peak    atomic.Int32
	hold    time.Duration
}

func newScriptedFetcher(answer func(req scraper.FetchRequest, call int) models.FetchOutcome) *scriptedFetcher {
	return &scriptedFetcher{answer: answer, calls: map[string]int{}, caps: map[string]int{}}
}

func (f *scriptedFetcher) Fetch(ctx context.Context, opener engine.Opener, req scraper.FetchRequest) models.FetchOutcome {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if f.hold > 0 {
		time.Sleep(f.hold)
	}

	f.mu.Lock()
	f.calls[req.Task.Name]++
	call := f.calls[req.Task.Name]
	f.caps[req.Task.Name] = req.Cap
	f.mu.Unlock()
	return f.answer(req, call)
}

func (f *scriptedFetcher) callCount(source string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[source]
}

func brands(source string, n, recordCap int) models.FetchOutcome {
	if recordCap > 0 && n > recordCap {
		n = recordCap
	}
	out := models.FetchOutcome{}
	for i := 0; i < n; i++ {
		out.Records = append(out.Records, models.BrandRecord{
			Brand:           fmt.Sprintf("%s Brand %c", source, 'A'+i),
			Source:          source,
			ScrapeTimestamp: "2026-01-01T00:00:00Z",
		})
	}
	return out
}

func blocked403() models.FetchOutcome {
	return models.FailedOutcome(models.NewHTTPError(403))
}

// sleepRecorder records requested delays without sleeping.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func testConfig(concurrency int) config.ScraperConfig {
	return config.ScraperConfig{
		DelayMin:    time.Second,
		DelayMax:    3 * time.Second,
		RetryBase:   100 * time.Millisecond,
		RetryCap:    10 * time.Second,
		Concurrency: concurrency,
	}
}

func tasks(names ...string) []models.RetailerTask {
	out := make([]models.RetailerTask, len(names))
	for i, n := range names {
		out[i] = models.RetailerTask{Name: n, ListingURL: "https://" + n + ".test/brands"}
	}
	return out
}

func TestRun_OneGoodOneBlocked(t *testing.T) {
	for _, concurrency := range []int{1, 3} {
		t.Run(fmt.Sprintf("concurrency=%d", concurrency), func(t *testing.T) {
			f := newScriptedFetcher(func(req scraper.FetchRequest, call int) models.FetchOutcome {
				if req.Task.Name == "good" {
					return brands("good", 5, req.Cap)
				}
				return blocked403()
			})
			rec := &sleepRecorder{}
			o := New(testConfig(concurrency), fakeLauncher(nil), f, WithSleep(rec.sleep))

			var mu sync.Mutex
			progress := map[string]Progress{}
			records, err := o.Run(context.Background(), tasks("good", "bad"), RunOptions{
				MaxRetries: 1,
				OnProgress: func(p Progress) {
					mu.Lock()
					progress[p.Source] = p
					mu.Unlock()
				},
			})

			require.NoError(t, err)
			assert.Len(t, records, 5)
			for _, r := range records {
				assert.Equal(t, "good", r.Source)
			}
			bad := progress["bad"]
			assert.True(t, bad.Blocked)
			assert.NotEmpty(t, bad.Err)
			assert.Equal(t, 2, bad.Attempts)
			assert.Equal(t, 2, f.callCount("bad"))
			assert.Equal(t, 1, f.callCount("good"))
			assert.Equal(t, 5, progress["good"].Added)
		})
	}
}

func TestRun_RetryBudgetAndBackoff(t *testing.T) {
	f := newScriptedFetcher(func(req scraper.FetchRequest, call int) models.FetchOutcome {
		return models.FailedOutcome(models.NewScrapeError(models.ErrCodeTimeout, "navigation failed", context.DeadlineExceeded))
	})
	rec := &sleepRecorder{}
	o := New(testConfig(1), fakeLauncher(nil), f, WithSleep(rec.sleep), WithJitter(func() float64 { return 0.5 }))

	var retries []Retry
	_, err := o.Run(context.Background(), tasks("flaky"), RunOptions{
		MaxRetries: 3,
		OnRetry:    func(r Retry) { retries = append(retries, r) },
	})
	require.NoError(t, err)

	assert.Equal(t, 4, f.callCount("flaky"))
	require.Len(t, rec.delays, 4)
	assert.Equal(t, 2*time.Second, rec.delays[0], "pre-navigation delay")
	backoffs := rec.delays[1:]
	for i := 1; i < len(backoffs); i++ {
		assert.Greater(t, backoffs[i], backoffs[i-1])
	}
	assert.Equal(t, 250*time.Millisecond, backoffs[0])

	require.Len(t, retries, 3)
	assert.Equal(t, 1, retries[0].Attempt)
	assert.Contains(t, retries[0].Reason, "navigation failed")
}

func TestRun_StopsRetryingOnSuccess(t *testing.T) {
	f := newScriptedFetcher(func(req scraper.FetchRequest, call int) models.FetchOutcome {
		if call < 2 {
			return blocked403()
		}
		return brands("shop", 3, 0)
	})
	o := New(testConfig(1), fakeLauncher(nil), f, WithSleep((&sleepRecorder{}).sleep))

	records, err := o.Run(context.Background(), tasks("shop"), RunOptions{MaxRetries: 5})
	require.NoError(t, err)
	assert.Len(t, records, 3)
	assert.Equal(t, 2, f.callCount("shop"))
}

func TestRun_GlobalCapSequential(t *testing.T) {
	f := newScriptedFetcher(func(req scraper.FetchRequest, call int) models.FetchOutcome {
		return brands(req.Task.Name, 5, req.Cap)
	})
	o := New(testConfig(1), fakeLauncher(nil), f, WithSleep((&sleepRecorder{}).sleep))

	var skipped []string
	records, err := o.Run(context.Background(), tasks("a", "b", "c"), RunOptions{
		GlobalCap: 7,
		OnProgress: func(p Progress) {
			if p.Skipped {
				skipped = append(skipped, p.Source)
			}
		},
	})
	require.NoError(t, err)
	assert.Len(t, records, 7)
	assert.Equal(t, 7, f.caps["a"])
	assert.Equal(t, 2, f.caps["b"])
	assert.Zero(t, f.callCount("c"))
	assert.Equal(t, []string{"c"}, skipped)
}

func TestRun_GlobalCapParallelTruncates(t *testing.T) {
	f := newScriptedFetcher(func(req scraper.FetchRequest, call int) models.FetchOutcome {
		return brands(req.Task.Name, 5, req.Cap)
	})
	f.hold = 20 * time.Millisecond
	o := New(testConfig(4), fakeLauncher(nil), f, WithSleep((&sleepRecorder{}).sleep))

	records, err := o.Run(context.Background(), tasks("a", "b", "c", "d"), RunOptions{GlobalCap: 8})
	require.NoError(t, err)
	assert.Len(t, records, 8)
}

func TestRun_PerRetailerCap(t *testing.T) {
	f := newScriptedFetcher(func(req scraper.FetchRequest, call int) models.FetchOutcome {
		return brands(req.Task.Name, 5, req.Cap)
	})
	o := New(testConfig(2), fakeLauncher(nil), f, WithSleep((&sleepRecorder{}).sleep))

	records, err := o.Run(context.Background(), tasks("a", "b", "c"), RunOptions{PerRetailerCap: 3, GlobalCap: 4})
	require.NoError(t, err)
	assert.Len(t, records, 9)
	for _, name := range []string{"a", "b", "c"} {
		assert.Equal(t, 3, f.caps[name])
	}
}

func TestRun_BoundedConcurrency(t *testing.T) {
	f := newScriptedFetcher(func(req scraper.FetchRequest, call int) models.FetchOutcome {
		return brands(req.Task.Name, 1, 0)
	})
	f.hold = 20 * time.Millisecond
	o := New(testConfig(3), fakeLauncher(nil), f, WithSleep((&sleepRecorder{}).sleep))

	records, err := o.Run(context.Background(), tasks("a", "b", "c", "d", "e", "f", "g", "h"), RunOptions{})
	require.NoError(t, err)
	assert.Len(t, records, 8)
	assert.LessOrEqual(t, f.peak.Load(), int32(3))
	assert.Greater(t, f.peak.Load(), int32(1))
}

func TestRun_ProgressPanicDoesNotAbort(t *testing.T) {
	f := newScriptedFetcher(func(req scraper.FetchRequest, call int) models.FetchOutcome {
		return brands(req.Task.Name, 2, 0)
	})
	o := New(testConfig(1), fakeLauncher(nil), f, WithSleep((&sleepRecorder{}).sleep))

	var calls int
	records, err := o.Run(context.Background(), tasks("a", "b"), RunOptions{
		OnProgress: func(p Progress) {
			calls++
			panic("sink failed")
		},
	})
	require.NoError(t, err)
	assert.Len(t, records, 4)
	assert.Equal(t, 2, calls)
}

func TestRun_ProgressSeesAccumulatedRecords(t *testing.T) {
	f := newScriptedFetcher(func(req scraper.FetchRequest, call int) models.FetchOutcome {
		return brands(req.Task.Name, 2, 0)
	})
	o := New(testConfig(1), fakeLauncher(nil), f, WithSleep((&sleepRecorder{}).sleep))

	var seen []int
	_, err := o.Run(context.Background(), tasks("a", "b", "c"), RunOptions{
		OnProgress: func(p Progress) {
			seen = append(seen, len(p.Records))
			assert.Equal(t, 3, p.Total)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 6}, seen)
}

func TestRun_NoURLNeverRetried(t *testing.T) {
	f := newScriptedFetcher(func(req scraper.FetchRequest, call int) models.FetchOutcome {
		return brands(req.Task.Name, 1, 0)
	})
	o := New(testConfig(1), fakeLauncher(nil), f, WithSleep((&sleepRecorder{}).sleep))

	var got Progress
	_, err := o.Run(context.Background(), []models.RetailerTask{{Name: "empty"}}, RunOptions{
		MaxRetries: 3,
		OnProgress: func(p Progress) { got = p },
	})
	require.NoError(t, err)
	assert.Zero(t, f.callCount("empty"))
	assert.Equal(t, models.ErrCodeNoURL, got.Code)
	assert.Zero(t, got.Attempts)
}

func TestRun_DedupesAggregate(t *testing.T) {
	f := newScriptedFetcher(func(req scraper.FetchRequest, call int) models.FetchOutcome {
		return models.FetchOutcome{Records: []models.BrandRecord{
			{Brand: "Nike", Source: req.Task.Name},
			{Brand: "NIKE", Source: req.Task.Name},
		}}
	})
	o := New(testConfig(1), fakeLauncher(nil), f, WithSleep((&sleepRecorder{}).sleep))

	records, err := o.Run(context.Background(), tasks("a", "b"), RunOptions{})
	require.NoError(t, err)
	assert.Len(t, records, 2, "same brand from two sources is kept once per source")
}

func TestRun_LaunchFailure(t *testing.T) {
	o := New(testConfig(1), func(ctx context.Context) (engine.Opener, func() error, error) {
		return nil, nil, errors.New("no chrome")
	}, newScriptedFetcher(nil))

	_, err := o.Run(context.Background(), tasks("a"), RunOptions{})
	assert.ErrorContains(t, err, "no chrome")
}

func TestRun_CanceledReturnsPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newScriptedFetcher(func(req scraper.FetchRequest, call int) models.FetchOutcome {
		if req.Task.Name == "a" {
			cancel()
		}
		return brands(req.Task.Name, 2, 0)
	})
	var closed atomic.Int32
	o := New(testConfig(1), fakeLauncher(&closed), f, WithSleep((&sleepRecorder{}).sleep))

	records, err := o.Run(ctx, tasks("a", "b", "c"), RunOptions{})
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Zero(t, f.callCount("b"))
	assert.Equal(t, int32(1), closed.Load())
}

func TestBackoff(t *testing.T) {
	b := Backoff{Base: time.Second, Cap: 5 * time.Second, DelayMin: time.Second, DelayMax: 3 * time.Second, jitter: func() float64 { return 0 }}
	assert.Equal(t, 2*time.Second, b.Retry(1))
	assert.Equal(t, 4*time.Second, b.Retry(2))
	assert.Equal(t, 5*time.Second, b.Retry(3))
	assert.Equal(t, 5*time.Second, b.Retry(40))
	assert.Equal(t, time.Second, b.PreDelay())

	b.jitter = func() float64 { return 0.5 }
	assert.Equal(t, 2*time.Second, b.PreDelay())
	assert.Equal(t, 2500*time.Millisecond, b.Retry(1))

	assert.Zero(t, Backoff{}.Retry(3))
	assert.Equal(t, time.Second, Backoff{DelayMin: time.Second}.PreDelay())
}
