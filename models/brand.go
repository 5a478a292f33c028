package models

import "time"

// TimestampLayout is the ISO-8601 UTC layout used for scrape timestamps.
const TimestampLayout = "2006-01-02T15:04:05Z"

// Timestamp formats t in UTC with second precision.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// RetailerTask is one retailer to scrape.
type RetailerTask struct {
	Name       string `json:"name"`
	ListingURL string `json:"brand_list_url"`
}

// BrandRecord is a normalized brand name tagged with its source retailer.
type BrandRecord struct {
	Brand           string `json:"brand"`
	Source          string `json:"source"`
	ScrapeTimestamp string `json:"scrape_timestamp"`
}

// ScrapeStats is per-source telemetry for the last fetch.
type ScrapeStats struct {
	RawCount      int `json:"raw_count"`
	FilteredCount int `json:"filtered_count"`
}

// FetchOutcome is the result of one fetch attempt for one retailer.
type FetchOutcome struct {
	Records []BrandRecord
	Blocked bool
	Code    string
	Error   string
	Stats   ScrapeStats
	Pages   int
	Engine  string
}

// OK reports whether the attempt produced any records.
func (o FetchOutcome) OK() bool {
	return len(o.Records) > 0
}

// FailedOutcome converts an error into an outcome with no records.
func FailedOutcome(err error) FetchOutcome {
	se, ok := err.(*ScrapeError)
	if !ok {
		se = NewScrapeError(ErrCodeExtraction, "extraction failed", err)
	}
	msg := se.Message
	if se.Err != nil {
		msg += ": " + se.Err.Error()
	}
	return FetchOutcome{
		Blocked: se.Blocked(),
		Code:    se.Code,
		Error:   msg,
	}
}

// Meta is the envelope metadata of a brand payload.
type Meta struct {
	Count           int    `json:"count"`
	ScrapeTimestamp string `json:"scrape_timestamp"`
	PartialTimeout  bool   `json:"partial_timeout,omitempty"`
	Environment     string `json:"environment,omitempty"`
}

// Payload is the transport envelope for brand records.
type Payload struct {
	Records []BrandRecord `json:"records"`
	Meta    Meta          `json:"meta"`
}

// NewPayload wraps records for transport, stamping the current time.
func NewPayload(records []BrandRecord) Payload {
	if records == nil {
		records = []BrandRecord{}
	}
	return Payload{
		Records: records,
		Meta: Meta{
			Count:           len(records),
			ScrapeTimestamp: Timestamp(time.Now()),
		},
	}
}
