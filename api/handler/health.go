package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/brandscrape/models"
)

// Version is reported by / and /scrape/status.
const Version = "1.0.0"

// Health returns a handler for GET /health.
func Health() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.HealthResponse{Status: "ok"})
	}
}

// Info returns a handler for GET /.
func Info() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": "brandscrape",
			"version": Version,
			"endpoints": []string{
				"GET /health",
				"GET /scrape/status",
				"POST /scrape",
				"POST /scrape-multiple",
				"GET /reliability",
				"GET /reports/retailer-status",
				"GET /logs",
			},
		})
	}
}

// Status returns a handler for GET /scrape/status.
func Status(paused func() bool, environment string, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.StatusResponse{
			Paused:      paused(),
			Environment: environment,
			Uptime:      time.Since(startTime).Round(time.Second).String(),
			Version:     Version,
		})
	}
}
