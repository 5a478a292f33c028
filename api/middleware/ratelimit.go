package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/brandscrape/config"
	"github.com/use-agent/brandscrape/models"
	"golang.org/x/time/rate"
)

// idleLimiterTTL is how long an unused limiter is kept.
const idleLimiterTTL = time.Hour

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitors holds one token bucket per caller identity.
type visitors struct {
	mu    sync.Mutex
	byID  map[string]*visitor
	limit rate.Limit
	burst int
}

func newVisitors(cfg config.RateLimitConfig) *visitors {
	return &visitors{
		byID:  make(map[string]*visitor),
		limit: rate.Limit(cfg.RequestsPerSecond),
		burst: max(cfg.Burst, 1),
	}
}

func (v *visitors) allow(identity string, now time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.byID[identity]
	if !ok {
		e = &visitor{limiter: rate.NewLimiter(v.limit, v.burst)}
		v.byID[identity] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (v *visitors) evictIdle(now time.Time) {
	cutoff := now.Add(-idleLimiterTTL)
	v.mu.Lock()
	defer v.mu.Unlock()
	for id, e := range v.byID {
		if e.lastSeen.Before(cutoff) {
			delete(v.byID, id)
		}
	}
}

// RateLimit returns per-identity token-bucket rate limiting. The identity
// is the API key set by Auth, or the client IP.
//
// Limiters unused for an hour are evicted every 5 minutes.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	v := newVisitors(cfg)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for now := range ticker.C {
			v.evictIdle(now)
		}
	}()

	return func(c *gin.Context) {
		identity := c.GetString(identityKey)
		if identity == "" {
			identity = c.ClientIP()
		}
		if !v.allow(identity, time.Now()) {
			abort(c, http.StatusTooManyRequests, models.ErrCodeRateLimited, "rate limit exceeded, please slow down")
			return
		}
		c.Next()
	}
}
