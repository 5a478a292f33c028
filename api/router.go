// Package api wires the HTTP routes of the brand scraping service.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/brandscrape/api/handler"
	"github.com/use-agent/brandscrape/api/middleware"
	"github.com/use-agent/brandscrape/config"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	Reports: Auth
//	Scrape:  Auth → KillSwitch → RateLimit
//
// Health, info and status stay outside auth so health checks always work.
func NewRouter(cfg *config.Config, svc *handler.Service, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	paused := func() bool { return cfg.Ops.KillSwitch }

	r.GET("/", handler.Info())
	r.GET("/health", handler.Health())
	r.GET("/scrape/status", handler.Status(paused, cfg.Ops.Environment, startTime))

	auth := middleware.Auth(cfg.Auth.APIKeys)

	reports := r.Group("", auth)
	reports.GET("/reliability", handler.Reliability(svc.Log))
	reports.GET("/reports/retailer-status", handler.RetailerStatus(svc.Status))
	reports.GET("/logs", handler.Logs(svc.Log))

	scrape := r.Group("", auth, middleware.KillSwitch(paused), middleware.RateLimit(cfg.RateLimit))
	scrape.POST("/scrape", svc.Scrape())
	scrape.POST("/scrape-multiple", svc.ScrapeMultiple())

	return r
}
