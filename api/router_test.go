package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/brandscrape/api/handler"
	"github.com/use-agent/brandscrape/cache"
	"github.com/use-agent/brandscrape/config"
	"github.com/use-agent/brandscrape/models"
	"github.com/use-agent/brandscrape/normalize"
	"github.com/use-agent/brandscrape/orchestrator"
	"github.com/use-agent/brandscrape/scrapelog"
)

// fakeRunner replays scripted outcomes per retailer, reporting progress
// the way the orchestrator does.
type fakeRunner struct {
	mu       sync.Mutex
	calls    int
	lastOpts orchestrator.RunOptions
	brands   map[string][]string
	errs     map[string]string
	block    map[string]bool // block until ctx ends
	err      error
}

func (f *fakeRunner) Run(ctx context.Context, tasks []models.RetailerTask, opts orchestrator.RunOptions) ([]models.BrandRecord, error) {
	f.mu.Lock()
	f.calls++
	f.lastOpts = opts
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	var records []models.BrandRecord
	for i, task := range tasks {
		if f.block[task.Name] {
			<-ctx.Done()
			return records, nil
		}
		p := orchestrator.Progress{Source: task.Name, Index: i + 1, Total: len(tasks)}
		if msg, failed := f.errs[task.Name]; failed {
			p.Err = msg
			p.Blocked = models.LooksBlocked(msg)
		}
		for _, b := range f.brands[task.Name] {
			records = append(records, models.BrandRecord{Brand: b, Source: task.Name, ScrapeTimestamp: "2026-05-04T10:00:00Z"})
			p.Added++
		}
		p.Stats = models.ScrapeStats{RawCount: p.Added * 2, FilteredCount: p.Added}
		p.Records = append([]models.BrandRecord(nil), records...)
		if opts.OnProgress != nil {
			opts.OnProgress(p)
		}
	}
	return records, nil
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type testEnv struct {
	router *gin.Engine
	runner *fakeRunner
	cfg    *config.Config
	svc    *handler.Service
}

func newTestEnv(t *testing.T, runner *fakeRunner) *testEnv {
	t.Helper()
	cfg := &config.Config{
		Server:    config.ServerConfig{Mode: gin.TestMode},
		Scraper:   config.ScraperConfig{MaxRetries: 2, ServerTimeout: 2 * time.Second},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
		Ops:       config.OpsConfig{Environment: "production"},
	}
	cc := cache.New(10)
	t.Cleanup(cc.Close)
	svc := &handler.Service{
		Runner:     runner,
		Config:     cfg,
		Vocabulary: normalize.DefaultVocabulary(),
		Cache:      cc,
		Log:        scrapelog.NewLogger(filepath.Join(t.TempDir(), "logs")),
		Status:     scrapelog.NewMemoryStatusStore(),
	}
	return &testEnv{router: NewRouter(cfg, svc, time.Now()), runner: runner, cfg: cfg, svc: svc}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func TestHealthAndInfo(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{})

	w, body := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])

	w, body = env.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "brandscrape", body["service"])
}

func TestScrapeStatus_KillSwitch(t *testing.T) {
	runner := &fakeRunner{brands: map[string][]string{"Beymen": {"Acne Studios"}}}
	env := newTestEnv(t, runner)
	env.cfg.Ops.KillSwitch = true

	w, body := env.do(t, http.MethodGet, "/scrape/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["paused"])
	assert.Equal(t, "production", body["environment"])

	w, body = env.do(t, http.MethodPost, "/scrape", map[string]any{"name": "Beymen", "brand_list_url": "https://shop.test/brands"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, models.ErrCodePaused, body["detail"].(map[string]any)["code"])
	assert.Zero(t, runner.callCount())
}

func TestScrape_Success(t *testing.T) {
	runner := &fakeRunner{brands: map[string][]string{"Beymen": {"Acne Studios", "Ganni"}}}
	env := newTestEnv(t, runner)

	w, body := env.do(t, http.MethodPost, "/scrape", map[string]any{
		"name":           "Beymen",
		"brand_list_url": "https://shop.test/brands",
		"environment":    "sandbox",
		"noise_words":    []string{"Outlet"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, true, body["ok"])
	assert.Equal(t, float64(2), body["brands_extracted"])
	assert.Equal(t, false, body["partial_timeout"])
	meta := body["meta"].(map[string]any)
	assert.Equal(t, float64(2), meta["count"])
	assert.Equal(t, "sandbox", meta["environment"])
	assert.NotContains(t, body, "cache_status")

	opts := runner.lastOpts
	assert.Equal(t, models.DefaultMaxBrands, opts.PerRetailerCap)
	assert.Equal(t, 2, opts.MaxRetries)
	assert.True(t, opts.Vocabulary.IsNoiseWord("outlet"))
	assert.True(t, opts.Vocabulary.IsNoiseWord("sale"))

	statuses, err := env.svc.Status.All(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, 2, statuses[0].BrandsCount)
}

func TestScrape_NoCapWhenNegative(t *testing.T) {
	runner := &fakeRunner{brands: map[string][]string{"Beymen": {"Ganni"}}}
	env := newTestEnv(t, runner)

	w, _ := env.do(t, http.MethodPost, "/scrape", map[string]any{
		"name": "Beymen", "brand_list_url": "https://shop.test/brands", "max_brands": -1,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, runner.lastOpts.PerRetailerCap)
}

func TestScrape_Failure(t *testing.T) {
	runner := &fakeRunner{errs: map[string]string{"Beymen": "HTTP 403"}}
	env := newTestEnv(t, runner)

	w, body := env.do(t, http.MethodPost, "/scrape", map[string]any{"name": "Beymen", "brand_list_url": "https://shop.test/brands"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, "HTTP 403", body["error"])
	assert.Empty(t, body["records"])
	assert.NotNil(t, body["records"])
}

func TestScrape_InvalidInput(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{})

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing url", map[string]any{"name": "Beymen"}},
		{"bad url", map[string]any{"name": "Beymen", "brand_list_url": "not a url"}},
		{"bad environment", map[string]any{"name": "Beymen", "brand_list_url": "https://shop.test", "environment": "dev"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := env.do(t, http.MethodPost, "/scrape", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, models.ErrCodeInvalidInput, body["detail"].(map[string]any)["code"])
		})
	}
}

func TestScrape_LaunchFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.Join(errors.New("orchestrator: launch"),
		models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch browser", nil))}
	env := newTestEnv(t, runner)

	w, body := env.do(t, http.MethodPost, "/scrape", map[string]any{"name": "Beymen", "brand_list_url": "https://shop.test/brands"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, models.ErrCodeBrowserCrash, body["detail"].(map[string]any)["code"])
}

func TestScrape_Cache(t *testing.T) {
	runner := &fakeRunner{brands: map[string][]string{"Beymen": {"Ganni"}}}
	env := newTestEnv(t, runner)
	req := map[string]any{"name": "Beymen", "brand_list_url": "https://shop.test/brands", "max_age": 60000}

	_, first := env.do(t, http.MethodPost, "/scrape", req)
	assert.Equal(t, "miss", first["cache_status"])

	_, second := env.do(t, http.MethodPost, "/scrape", req)
	assert.Equal(t, "hit", second["cache_status"])
	assert.Equal(t, float64(1), second["brands_extracted"])
	assert.Equal(t, 1, runner.callCount())
}

func TestScrape_ServerTimeout(t *testing.T) {
	runner := &fakeRunner{block: map[string]bool{"Slow": true}}
	env := newTestEnv(t, runner)
	env.cfg.Scraper.ServerTimeout = 50 * time.Millisecond

	w, body := env.do(t, http.MethodPost, "/scrape", map[string]any{"name": "Slow", "brand_list_url": "https://slow.test/brands"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["partial_timeout"])
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, models.EmptyTimeoutMessage, body["error"])
}

func TestScrapeMultiple(t *testing.T) {
	runner := &fakeRunner{
		brands: map[string][]string{"A": {"Acne Studios", "Ganni"}, "C": {"Toteme"}},
		errs:   map[string]string{"B": "HTTP 403"},
	}
	env := newTestEnv(t, runner)

	w, body := env.do(t, http.MethodPost, "/scrape-multiple", map[string]any{
		"retailers": []map[string]string{
			{"name": "A", "brand_list_url": "https://a.test/brands"},
			{"name": "B", "brand_list_url": "https://b.test/brands"},
			{"name": "C", "brand_list_url": "https://c.test/brands"},
		},
		"max_brands": 10,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(3), body["brands_extracted"])
	assert.Equal(t, 10, runner.lastOpts.GlobalCap)

	results := body["results_by_retailer"].([]any)
	require.Len(t, results, 3)
	a := results[0].(map[string]any)
	assert.Equal(t, "A", a["source"])
	assert.Equal(t, float64(2), a["count"])
	assert.Equal(t, float64(4), a["raw_count"])
	b := results[1].(map[string]any)
	assert.Equal(t, "HTTP 403", b["error"])
	assert.Equal(t, true, b["blocked"])
	assert.Empty(t, b["brands"])
}

func TestScrapeMultiple_PartialTimeout(t *testing.T) {
	runner := &fakeRunner{
		brands: map[string][]string{"A": {"Ganni"}},
		block:  map[string]bool{"B": true},
	}
	env := newTestEnv(t, runner)
	env.cfg.Scraper.ServerTimeout = 50 * time.Millisecond

	_, body := env.do(t, http.MethodPost, "/scrape-multiple", map[string]any{
		"retailers": []map[string]string{
			{"name": "A", "brand_list_url": "https://a.test/brands"},
			{"name": "B", "brand_list_url": "https://b.test/brands"},
			{"name": "C", "brand_list_url": "https://c.test/brands"},
		},
	})
	assert.Equal(t, true, body["partial_timeout"])
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, float64(1), body["brands_extracted"])

	results := body["results_by_retailer"].([]any)
	assert.Equal(t, float64(1), results[0].(map[string]any)["count"])
	assert.Equal(t, models.NotRunMessage, results[1].(map[string]any)["error"])
	assert.Equal(t, models.NotRunMessage, results[2].(map[string]any)["error"])
}

func TestScrapeMultiple_NeedsTwoRetailers(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{})
	w, _ := env.do(t, http.MethodPost, "/scrape-multiple", map[string]any{
		"retailers": []map[string]string{{"name": "A", "brand_list_url": "https://a.test/brands"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReports(t *testing.T) {
	runner := &fakeRunner{brands: map[string][]string{"Beymen": {"Ganni"}}}
	env := newTestEnv(t, runner)
	env.do(t, http.MethodPost, "/scrape", map[string]any{"name": "Beymen", "brand_list_url": "https://shop.test/brands"})

	w, body := env.do(t, http.MethodGet, "/reliability?days=7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sources := body["by_source"].([]any)
	require.Len(t, sources, 1)
	assert.Equal(t, "Beymen", sources[0].(map[string]any)["source"])

	w, body = env.do(t, http.MethodGet, "/logs?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["count"])

	w, body = env.do(t, http.MethodGet, "/reports/retailer-status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["count"])

	w, _ = env.do(t, http.MethodGet, "/logs?days=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{})
	env.cfg.Auth.APIKeys = []string{"k1"}
	env.router = NewRouter(env.cfg, env.svc, time.Now())

	w, _ := env.do(t, http.MethodGet, "/reliability", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = env.do(t, http.MethodGet, "/reliability", nil, "X-API-Key", "k1")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
