package models

// NotRunMessage marks retailers the server deadline cut off before they started.
const NotRunMessage = "Not run (server timeout)"

// EmptyTimeoutMessage is the error when the deadline expired with nothing collected.
const EmptyTimeoutMessage = "Server timeout before any brands returned"

// ScrapeResponse is the response for POST /scrape and POST /scrape-multiple.
type ScrapeResponse struct {
	// OK is true when at least one brand was extracted.
	OK bool `json:"ok"`

	// BrandsExtracted is len(Records).
	BrandsExtracted int `json:"brands_extracted"`

	// PartialTimeout is set when the server deadline expired and
	// the records are whatever had completed by then.
	PartialTimeout bool `json:"partial_timeout"`

	Records []BrandRecord `json:"records"`
	Meta    Meta          `json:"meta"`

	// ResultsByRetailer is populated by /scrape-multiple only.
	ResultsByRetailer []RetailerResult `json:"results_by_retailer,omitempty"`

	// CacheStatus is "hit", "miss", or empty when caching was not requested.
	CacheStatus string `json:"cache_status,omitempty"`

	// Error describes the failure when no brands were returned.
	Error string `json:"error,omitempty"`

	// Detail carries the coded error for non-200 responses.
	Detail *ErrorDetail `json:"detail,omitempty"`
}

// RetailerResult is the per-retailer breakdown of a multi-retailer run.
type RetailerResult struct {
	Source  string   `json:"source"`
	Brands  []string `json:"brands"`
	Count   int      `json:"count"`
	Blocked bool     `json:"blocked,omitempty"`
	Error   string   `json:"error,omitempty"`
	ScrapeStats
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse is the response for GET /scrape/status.
type StatusResponse struct {
	Paused      bool   `json:"paused"`
	Environment string `json:"environment"`
	Uptime      string `json:"uptime"`
	Version     string `json:"version"`
}
