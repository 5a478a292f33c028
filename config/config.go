package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Scraper   ScraperConfig
	Noise     NoiseConfig
	Sites     []SiteConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
	Ops       OpsConfig
	Webhook   WebhookConfig
	Redis     RedisConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8000
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance and the browsing identity.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is the proxy endpoint for all browser and HTTP traffic.
	Proxy string

	// UserAgent overrides the desktop Chrome user agent.
	UserAgent string

	// Stealth injects evasion scripts into every page.
	Stealth bool // default: true

	// BlockedResources lists resource types to block.
	// default: ["Image", "Font", "Media"]
	BlockedResources []string

	// BlockStylesheets additionally blocks stylesheets.
	BlockStylesheets bool // default: true
}

// ScraperConfig controls fetch, retry and fan-out behavior.
type ScraperConfig struct {
	// DelayMin and DelayMax bound the random pre-navigation delay.
	DelayMin time.Duration // default: 1s
	DelayMax time.Duration // default: 3s

	// RetryBase and RetryCap shape the exponential retry backoff.
	RetryBase time.Duration // default: 2s
	RetryCap  time.Duration // default: 30s

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int // default: 2

	// NavTimeout overrides the per-navigation timeout when non-zero.
	NavTimeout time.Duration

	// NavTimeoutCapped and NavTimeoutUncapped apply when a record cap
	// is or is not requested.
	NavTimeoutCapped   time.Duration // default: 25s
	NavTimeoutUncapped time.Duration // default: 60s

	// LinkWaitCapped and LinkWaitUncapped bound the wait for the first link.
	LinkWaitCapped   time.Duration // default: 5s
	LinkWaitUncapped time.Duration // default: 10s

	// WarmUpTimeout bounds the site-root visit on warm-up domains.
	WarmUpTimeout time.Duration // default: 60s

	// WarmUpPauseMin and WarmUpPauseMax bound the random wait between the
	// site-root visit and the listing navigation.
	WarmUpPauseMin time.Duration // default: 2s
	WarmUpPauseMax time.Duration // default: 4s

	// BatchSize is the number of anchors classified per extraction chunk.
	BatchSize int // default: 200

	// MaxPages is the pagination ceiling per fetch.
	MaxPages int // default: 10

	// Concurrency is the worker count for multi-retailer runs.
	Concurrency int // default: 3

	// HTTPFallback sends the retry after a blocked browser fetch over the HTTP engine.
	HTTPFallback bool // default: false

	// ServerTimeout is the wall-clock budget for one API scrape request.
	ServerTimeout time.Duration // default: 115s
}

// NoiseConfig extends the baseline noise vocabulary process-wide.
type NoiseConfig struct {
	Words   []string `yaml:"words"`
	Phrases []string `yaml:"phrases"`
}

// SiteConfig is a per-domain profile.
type SiteConfig struct {
	Domain      string   `yaml:"domain"`
	WarmUp      bool     `yaml:"warm_up"`
	TryLast     bool     `yaml:"try_last"`
	PostProcess []string `yaml:"post_process"`
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// APIKeys is the list of valid API keys. Empty means open access.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 2

	// Burst is the maximum burst size per API key.
	Burst int // default: 5
}

// CacheConfig controls the scrape response cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached responses.
	MaxEntries int // default: 200
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// OpsConfig holds operational switches and paths.
type OpsConfig struct {
	// KillSwitch pauses every scrape endpoint.
	KillSwitch bool

	// Environment is "production" or "sandbox".
	Environment string

	// LogDir holds the JSONL scrape logs.
	LogDir string // default: "logs"

	// RetailersCSV is the retailer list used by the CLI.
	RetailersCSV string // default: "data/retailers.csv"

	// OutputPath is where the CLI writes its JSON output.
	OutputPath string // default: "output/pilot_brands.json"
}

// WebhookConfig is the outbound n8n endpoint.
type WebhookConfig struct {
	URL    string
	Secret string
}

// RedisConfig selects the Redis-backed status store when URL is set.
type RedisConfig struct {
	URL string
}

// Load reads configuration from environment variables with sane defaults,
// applies the optional YAML overlay and clamps out-of-range values.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: envOr("HOST", "0.0.0.0"),
			Port: envIntOr("PORT", 8000),
			Mode: envOr("GIN_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:         envBoolOr("BROWSER_HEADLESS", true),
			NoSandbox:        envBoolOr("BROWSER_NO_SANDBOX", false),
			BrowserBin:       os.Getenv("BROWSER_BIN"),
			Proxy:            os.Getenv("PROXY_SERVER"),
			UserAgent:        os.Getenv("SCRAPER_USER_AGENT"),
			Stealth:          envBoolOr("BROWSER_STEALTH", true),
			BlockedResources: envSliceOr("SCRAPER_BLOCKED_RESOURCES", []string{"Image", "Font", "Media"}),
			BlockStylesheets: envBoolOr("SCRAPER_BLOCK_STYLESHEETS", true),
		},
		Scraper: ScraperConfig{
			DelayMin:           envSecondsOr("SCRAPE_DELAY_MIN", time.Second),
			DelayMax:           envSecondsOr("SCRAPE_DELAY_MAX", 3*time.Second),
			RetryBase:          envDurationOr("SCRAPER_RETRY_BASE", 2*time.Second),
			RetryCap:           envDurationOr("SCRAPER_RETRY_CAP", 30*time.Second),
			MaxRetries:         envIntOr("SCRAPER_MAX_RETRIES", 2),
			NavTimeout:         envDurationOr("SCRAPER_NAV_TIMEOUT", 0),
			NavTimeoutCapped:   25 * time.Second,
			NavTimeoutUncapped: 60 * time.Second,
			LinkWaitCapped:     5 * time.Second,
			LinkWaitUncapped:   10 * time.Second,
			WarmUpTimeout:      60 * time.Second,
			WarmUpPauseMin:     envSecondsOr("SCRAPER_WARMUP_PAUSE_MIN", 2*time.Second),
			WarmUpPauseMax:     envSecondsOr("SCRAPER_WARMUP_PAUSE_MAX", 4*time.Second),
			BatchSize:          envIntOr("SCRAPER_BATCH_SIZE", 200),
			MaxPages:           envIntOr("SCRAPER_MAX_PAGES", 10),
			Concurrency:        envIntOr("SCRAPER_CONCURRENCY", 3),
			HTTPFallback:       envBoolOr("SCRAPER_HTTP_FALLBACK", false),
			ServerTimeout:      envDurationOr("SCRAPER_SERVER_TIMEOUT", 115*time.Second),
		},
		Noise: NoiseConfig{
			Words:   envSliceOr("NOISE_WORDS", nil),
			Phrases: envSliceOr("NOISE_PHRASES", nil),
		},
		Auth: AuthConfig{
			APIKeys: envSliceOr("API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("RATE_RPS", 2.0),
			Burst:             envIntOr("RATE_BURST", 5),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("CACHE_MAX_ENTRIES", 200),
		},
		Log: LogConfig{
			Level:  envOr("LOG_LEVEL", "info"),
			Format: envOr("LOG_FORMAT", "json"),
		},
		Ops: OpsConfig{
			KillSwitch:   envBoolOr("SCRAPER_KILL_SWITCH", false) || envBoolOr("PAUSE_SCRAPER", false),
			Environment:  envOr("SCRAPER_ENVIRONMENT", "production"),
			LogDir:       envOr("SCRAPER_LOG_DIR", "logs"),
			RetailersCSV: envOr("RETAILERS_CSV", "data/retailers.csv"),
			OutputPath:   envOr("OUTPUT_PATH", "output/pilot_brands.json"),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("N8N_WEBHOOK_URL"),
			Secret: os.Getenv("N8N_WEBHOOK_SECRET"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
	}

	if path := os.Getenv("SCRAPER_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.clamp()
	return cfg, nil
}

// ResourceTypes returns the resource types the browser should block.
func (b BrowserConfig) ResourceTypes() []string {
	out := append([]string(nil), b.BlockedResources...)
	if b.BlockStylesheets {
		out = append(out, "Stylesheet")
	}
	return out
}

// clamp pulls tunables into their supported ranges.
func (c *Config) clamp() {
	s := &c.Scraper
	s.DelayMin = clampDuration(s.DelayMin, 0, time.Minute)
	s.DelayMax = clampDuration(s.DelayMax, s.DelayMin, time.Minute)
	s.RetryBase = clampDuration(s.RetryBase, 100*time.Millisecond, time.Minute)
	s.RetryCap = clampDuration(s.RetryCap, s.RetryBase, 5*time.Minute)
	s.MaxRetries = clampInt(s.MaxRetries, 0, 5)
	s.WarmUpPauseMin = clampDuration(s.WarmUpPauseMin, 0, 30*time.Second)
	s.WarmUpPauseMax = clampDuration(s.WarmUpPauseMax, s.WarmUpPauseMin, 30*time.Second)
	if s.NavTimeout != 0 {
		s.NavTimeout = clampDuration(s.NavTimeout, 5*time.Second, 3*time.Minute)
	}
	s.BatchSize = clampInt(s.BatchSize, 10, 2000)
	s.MaxPages = clampInt(s.MaxPages, 1, 50)
	s.Concurrency = clampInt(s.Concurrency, 1, 16)
	s.ServerTimeout = clampDuration(s.ServerTimeout, 10*time.Second, 15*time.Minute)

	if c.RateLimit.RequestsPerSecond <= 0 {
		c.RateLimit.RequestsPerSecond = 2
	}
	c.RateLimit.Burst = clampInt(c.RateLimit.Burst, 1, 1000)
	c.Cache.MaxEntries = clampInt(c.Cache.MaxEntries, 1, 100000)
	if c.Ops.Environment != "sandbox" {
		c.Ops.Environment = "production"
	}
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	return max(lo, min(v, hi))
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envSecondsOr reads a float number of seconds ("1.5"), also accepting
// duration syntax ("1500ms").
func envSecondsOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
