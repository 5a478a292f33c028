package models

import (
	"fmt"
	"net/http"
	"strings"
)

// Error codes used in fetch outcomes, API responses and internal error handling.
const (
	ErrCodeNoURL        = "NO_URL"
	ErrCodeTimeout      = "NAVIGATION_TIMEOUT"
	ErrCodeHTTP         = "HTTP_ERROR"
	ErrCodeBlocked      = "BLOCKED"
	ErrCodeNavigation   = "NAVIGATION_FAILED"
	ErrCodeExtraction   = "EXTRACTION_FAILED"
	ErrCodeNoBrands     = "NO_BRANDS"
	ErrCodeBrowserCrash = "BROWSER_CRASH"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodePaused       = "SCRAPER_PAUSED"
	ErrCodeServerTime   = "SERVER_TIMEOUT"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScrapeError is the internal error type carrying an error code.
// Status is the HTTP status of the navigation response when one was received.
type ScrapeError struct {
	Code    string
	Message string
	Status  int
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// Blocked reports whether the error looks like an anti-bot response.
func (e *ScrapeError) Blocked() bool {
	if e.Code == ErrCodeBlocked || IsBlockedStatus(e.Status) {
		return true
	}
	if e.Code == ErrCodeTimeout {
		return false
	}
	return LooksBlocked(e.Error())
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// NewHTTPError builds the error for a navigation that answered with status >= 400.
func NewHTTPError(status int) *ScrapeError {
	code := ErrCodeHTTP
	if IsBlockedStatus(status) {
		code = ErrCodeBlocked
	}
	return &ScrapeError{Code: code, Message: fmt.Sprintf("HTTP %d", status), Status: status}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// IsBlockedStatus reports whether an HTTP status is a typical bot-defense answer.
func IsBlockedStatus(status int) bool {
	switch status {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	}
	return false
}

// blockedMarkers are matched case-insensitively against error text.
var blockedMarkers = []string{"captcha", "blocked", "403"}

// LooksBlocked is the error-text heuristic for blocked or captcha pages.
func LooksBlocked(msg string) bool {
	msg = strings.ToLower(msg)
	for _, m := range blockedMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
