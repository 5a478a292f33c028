package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/brandscrape/models"
	"github.com/use-agent/brandscrape/orchestrator"
)

// skippedMessage marks retailers left out because the global cap was met.
const skippedMessage = "Skipped (max_brands reached)"

// ScrapeMultiple returns a handler for POST /scrape-multiple.
func (s *Service) ScrapeMultiple() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.MultiScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), nil))
			return
		}
		req.Defaults()

		maxBrands := req.MaxBrands
		if req.MaxBrandsPerRetailer > 0 {
			maxBrands = req.MaxBrandsPerRetailer
		}
		res := s.run(c.Request.Context(), req.Retailers, orchestrator.RunOptions{
			GlobalCap:      req.MaxBrands,
			PerRetailerCap: req.MaxBrandsPerRetailer,
			Vocabulary:     s.vocabulary(req.NoiseOverrides),
		}, maxBrands)
		if res.err != nil {
			respondError(c, res.err)
			return
		}

		records := nonNil(res.records)
		resp := models.ScrapeResponse{
			OK:                len(records) > 0,
			BrandsExtracted:   len(records),
			PartialTimeout:    res.partial,
			Records:           records,
			Meta:              newMeta(records, res.partial, req.Environment),
			ResultsByRetailer: byRetailer(req.Retailers, records, res),
		}
		if !resp.OK {
			if res.partial {
				resp.Error = models.EmptyTimeoutMessage
			} else {
				resp.Error = "No brands extracted from any retailer"
			}
		}
		if resp.OK {
			s.notify(req.WebhookURL, models.Payload{Records: records, Meta: resp.Meta})
		}
		c.JSON(http.StatusOK, resp)
	}
}

// byRetailer builds one result per input retailer, in input order.
func byRetailer(tasks []models.RetailerTask, records []models.BrandRecord, res outcome) []models.RetailerResult {
	brands := make(map[string][]string)
	for _, r := range records {
		brands[r.Source] = append(brands[r.Source], r.Brand)
	}

	out := make([]models.RetailerResult, len(tasks))
	for i, task := range tasks {
		rr := models.RetailerResult{Source: task.Name, Brands: []string{}}
		p, ran := res.progress[i+1]
		switch {
		case !ran:
			if res.partial {
				rr.Error = models.NotRunMessage
			}
		case p.Skipped:
			rr.Error = skippedMessage
		default:
			if b := brands[task.Name]; b != nil {
				rr.Brands = b
			}
			rr.Error = p.Err
			rr.Blocked = p.Blocked
			rr.ScrapeStats = p.Stats
		}
		rr.Count = len(rr.Brands)
		out[i] = rr
	}
	return out
}
