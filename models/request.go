package models

import "strings"

// DefaultMaxBrands is the cap applied to POST /scrape when the caller sends none.
const DefaultMaxBrands = 500

// NoiseOverrides are caller-supplied additions to the baseline noise vocabulary.
type NoiseOverrides struct {
	NoiseWords   []string `json:"noise_words,omitempty"`
	NoisePhrases []string `json:"noise_phrases,omitempty"`
}

// ScrapeRequest is the payload for POST /scrape.
type ScrapeRequest struct {
	// Name is the retailer name used as the record source.
	Name string `json:"name" binding:"required"`

	// BrandListURL is the brand listing page to scrape. Required.
	BrandListURL string `json:"brand_list_url" binding:"required,url"`

	// MaxBrands caps the number of records returned.
	// Default: 500. Zero or negative means no cap.
	MaxBrands *int `json:"max_brands,omitempty"`

	// Environment tags the response meta ("sandbox" or "production").
	Environment string `json:"environment,omitempty" binding:"omitempty,oneof=sandbox production"`

	NoiseOverrides

	// MaxAge enables the result cache: a cached response younger than
	// MaxAge milliseconds is returned without scraping.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`

	// WebhookURL receives the payload asynchronously once the scrape completes.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`
}

// Defaults applies default values to unset fields.
func (r *ScrapeRequest) Defaults() {
	r.Name = strings.TrimSpace(r.Name)
	if r.MaxBrands == nil {
		n := DefaultMaxBrands
		r.MaxBrands = &n
	}
	if r.Environment == "" {
		r.Environment = "production"
	}
}

// Cap returns the effective record cap, 0 meaning unbounded.
func (r *ScrapeRequest) Cap() int {
	if r.MaxBrands == nil || *r.MaxBrands < 0 {
		return 0
	}
	return *r.MaxBrands
}

// MultiScrapeRequest is the payload for POST /scrape-multiple.
type MultiScrapeRequest struct {
	Retailers []RetailerTask `json:"retailers" binding:"required,min=2,dive"`

	// MaxBrands caps the total number of records across all retailers.
	MaxBrands int `json:"max_brands,omitempty" binding:"omitempty,min=0"`

	// MaxBrandsPerRetailer caps each retailer independently and wins over MaxBrands.
	MaxBrandsPerRetailer int `json:"max_brands_per_retailer,omitempty" binding:"omitempty,min=0"`

	Environment string `json:"environment,omitempty" binding:"omitempty,oneof=sandbox production"`

	NoiseOverrides

	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`
}

// Defaults applies default values to unset fields.
func (r *MultiScrapeRequest) Defaults() {
	if r.Environment == "" {
		r.Environment = "production"
	}
	for i := range r.Retailers {
		r.Retailers[i].Name = strings.TrimSpace(r.Retailers[i].Name)
		r.Retailers[i].ListingURL = strings.TrimSpace(r.Retailers[i].ListingURL)
	}
}
