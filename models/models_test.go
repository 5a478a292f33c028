package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsBlockedStatus(t *testing.T) {
	for _, status := range []int{403, 429, 503} {
		assert.True(t, IsBlockedStatus(status), status)
	}
	for _, status := range []int{0, 200, 301, 404, 500, 502} {
		assert.False(t, IsBlockedStatus(status), status)
	}
}

func TestLooksBlocked(t *testing.T) {
	assert.True(t, LooksBlocked("Please solve the CAPTCHA"))
	assert.True(t, LooksBlocked("request blocked by WAF"))
	assert.True(t, LooksBlocked("HTTP 403"))
	assert.False(t, LooksBlocked("HTTP 404"))
	assert.False(t, LooksBlocked(""))
}

func TestNewHTTPError(t *testing.T) {
	tests := []struct {
		status  int
		code    string
		blocked bool
	}{
		{403, ErrCodeBlocked, true},
		{429, ErrCodeBlocked, true},
		{503, ErrCodeBlocked, true},
		{404, ErrCodeHTTP, false},
		{500, ErrCodeHTTP, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := NewHTTPError(tt.status)
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.blocked, err.Blocked())
			assert.Equal(t, fmt.Sprintf("HTTP %d", tt.status), err.Message)
		})
	}
}

func TestScrapeError_Blocked(t *testing.T) {
	timeout := NewScrapeError(ErrCodeTimeout, "navigation timed out", errors.New("blocked on read"))
	assert.False(t, timeout.Blocked(), "timeouts are never blocked")

	captcha := NewScrapeError(ErrCodeNavigation, "navigation failed", errors.New("captcha wall"))
	assert.True(t, captcha.Blocked())
	assert.ErrorContains(t, captcha, "captcha wall")
	assert.Equal(t, "captcha wall", errors.Unwrap(captcha).Error())
}

func TestFailedOutcome(t *testing.T) {
	out := FailedOutcome(NewHTTPError(429))
	assert.False(t, out.OK())
	assert.True(t, out.Blocked)
	assert.Equal(t, ErrCodeBlocked, out.Code)
	assert.Equal(t, "HTTP 429", out.Error)

	out = FailedOutcome(errors.New("boom"))
	assert.Equal(t, ErrCodeExtraction, out.Code)
	assert.Equal(t, "extraction failed: boom", out.Error)
}

func TestScrapeRequest_Cap(t *testing.T) {
	var r ScrapeRequest
	r.Defaults()
	assert.Equal(t, DefaultMaxBrands, r.Cap())
	assert.Equal(t, "production", r.Environment)

	zero, negative := 0, -3
	r.MaxBrands = &zero
	assert.Equal(t, 0, r.Cap())
	r.MaxBrands = &negative
	assert.Equal(t, 0, r.Cap())
}

func TestNewPayload(t *testing.T) {
	p := NewPayload(nil)
	assert.NotNil(t, p.Records)
	assert.Equal(t, 0, p.Meta.Count)

	ts, err := time.Parse(TimestampLayout, p.Meta.ScrapeTimestamp)
	assert.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ts, time.Minute)
}
