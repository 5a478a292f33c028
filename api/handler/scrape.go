package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/brandscrape/cache"
	"github.com/use-agent/brandscrape/models"
	"github.com/use-agent/brandscrape/orchestrator"
)

// Cache status values reported on /scrape.
const (
	cacheHit  = "hit"
	cacheMiss = "miss"
)

// Scrape returns a handler for POST /scrape.
//
// Flow:
//  1. Parse and validate, apply defaults.
//  2. Cache lookup when max_age is set.
//  3. Run the single retailer under the server deadline.
//  4. Build the response, store it and fire the webhook.
func (s *Service) Scrape() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), nil))
			return
		}
		req.Defaults()

		var key string
		if s.Cache != nil && req.MaxAge > 0 {
			key = cache.Key(&req)
			if cached, hit := s.Cache.Get(key, req.MaxAge); hit {
				resp := *cached
				resp.CacheStatus = cacheHit
				c.JSON(http.StatusOK, resp)
				return
			}
		}

		task := models.RetailerTask{Name: req.Name, ListingURL: req.BrandListURL}
		res := s.run(c.Request.Context(), []models.RetailerTask{task}, orchestrator.RunOptions{
			PerRetailerCap: req.Cap(),
			Vocabulary:     s.vocabulary(req.NoiseOverrides),
		}, req.Cap())
		if res.err != nil {
			respondError(c, res.err)
			return
		}

		records := nonNil(res.records)
		resp := &models.ScrapeResponse{
			OK:              len(records) > 0,
			BrandsExtracted: len(records),
			PartialTimeout:  res.partial,
			Records:         records,
			Meta:            newMeta(records, res.partial, req.Environment),
		}
		if !resp.OK {
			resp.Error = singleError(res)
		}

		if key != "" && resp.OK && !res.partial {
			s.Cache.Set(key, resp)
			resp.CacheStatus = cacheMiss
		}
		if resp.OK {
			s.notify(req.WebhookURL, models.Payload{Records: records, Meta: resp.Meta})
		}
		c.JSON(http.StatusOK, resp)
	}
}

func singleError(res outcome) string {
	if res.partial {
		return models.EmptyTimeoutMessage
	}
	if p, ok := res.progress[1]; ok && p.Err != "" {
		return p.Err
	}
	return "No brands extracted"
}

// respondError maps an error to its HTTP status and writes a coded body.
func respondError(c *gin.Context, err error) {
	var scrapeErr *models.ScrapeError
	if !errors.As(err, &scrapeErr) {
		scrapeErr = models.NewScrapeError(models.ErrCodeInternal, err.Error(), err)
	}
	c.JSON(mapErrorToStatus(scrapeErr), models.ScrapeResponse{
		Records: []models.BrandRecord{},
		Error:   scrapeErr.Message,
		Detail:  scrapeErr.ToDetail(),
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ScrapeError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeBrowserCrash, models.ErrCodePaused:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeServerTime, models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation:
		return http.StatusBadGateway // 502
	default:
		return http.StatusInternalServerError // 500
	}
}
