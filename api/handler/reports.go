package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/brandscrape/models"
	"github.com/use-agent/brandscrape/scrapelog"
)

// Limits on GET /logs.
const (
	defaultLogDays  = 1
	defaultLogLimit = 500
	maxLogLimit     = 5000
)

// Reliability returns a handler for GET /reliability?days=N.
func Reliability(log *scrapelog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		days, ok := intQuery(c, "days", 0)
		if !ok {
			return
		}
		report, err := log.Report(days)
		if err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeInternal, "read scrape logs", err))
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// Logs returns a handler for GET /logs?days=1&limit=500.
func Logs(log *scrapelog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		days, ok := intQuery(c, "days", defaultLogDays)
		if !ok {
			return
		}
		limit, ok := intQuery(c, "limit", defaultLogLimit)
		if !ok {
			return
		}
		limit = min(max(limit, 1), maxLogLimit)

		entries, err := log.Entries(days, limit)
		if err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeInternal, "read scrape logs", err))
			return
		}
		if entries == nil {
			entries = []scrapelog.Entry{}
		}
		c.JSON(http.StatusOK, gin.H{"count": len(entries), "entries": entries})
	}
}

// RetailerStatus returns a handler for GET /reports/retailer-status.
func RetailerStatus(store scrapelog.StatusStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		all, err := store.All(c.Request.Context())
		if err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeInternal, "read retailer status", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": len(all), "retailers": all})
	}
}

// intQuery reads a non-negative integer query parameter, answering 400
// when it is malformed.
func intQuery(c *gin.Context, name string, fallback int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, name+" must be a non-negative integer", nil))
		return 0, false
	}
	return n, true
}
