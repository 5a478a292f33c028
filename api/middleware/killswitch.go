package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/brandscrape/models"
)

// KillSwitch answers 503 while paused reports true.
func KillSwitch(paused func() bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if paused() {
			abort(c, http.StatusServiceUnavailable, models.ErrCodePaused,
				"scraper is paused (SCRAPER_KILL_SWITCH)")
			return
		}
		c.Next()
	}
}
