// Package webhook posts brand payloads to an n8n webhook.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/brandscrape/models"
)

// Headers set on every delivery.
const (
	SignatureHeader = "X-Brandscrape-Signature"
	DeliveryHeader  = "X-Brandscrape-Delivery"
	userAgent       = "Brandscrape-Webhook/1.0"
)

// DefaultTimeout bounds one delivery.
const DefaultTimeout = 30 * time.Second

// RetryDelays are the waits before each async attempt.
var RetryDelays = []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second}

// Sender delivers payloads to one endpoint.
type Sender struct {
	URL    string
	Secret string

	client *http.Client
	delays []time.Duration
}

// New creates a Sender for url. The body is signed with HMAC-SHA256 when
// secret is non-empty.
func New(url, secret string) *Sender {
	return &Sender{
		URL:    url,
		Secret: secret,
		client: &http.Client{Timeout: DefaultTimeout},
		delays: RetryDelays,
	}
}

// Enabled reports whether a URL is configured.
func (s *Sender) Enabled() bool {
	return s != nil && s.URL != ""
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Deliver posts payload synchronously.
// Header: X-Brandscrape-Signature: sha256=<hex>
func (s *Sender) Deliver(ctx context.Context, payload models.Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(DeliveryHeader, uuid.NewString())
	if s.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(s.Secret, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// DeliverWithRetry tries once per entry of the retry schedule and stops
// at the first success or when ctx ends.
func (s *Sender) DeliverWithRetry(ctx context.Context, payload models.Payload) error {
	var lastErr error
	for attempt, delay := range s.delays {
		if delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		lastErr = s.Deliver(ctx, payload)
		if lastErr == nil {
			slog.Info("webhook delivered",
				"url", s.URL,
				"records", payload.Meta.Count,
				"attempt", attempt+1,
			)
			return nil
		}
		slog.Warn("webhook delivery failed",
			"url", s.URL,
			"attempt", attempt+1,
			"error", lastErr,
		)
	}
	slog.Error("webhook delivery exhausted all retries", "url", s.URL, "records", payload.Meta.Count)
	return lastErr
}

// DeliverAsync runs DeliverWithRetry in the background.
func (s *Sender) DeliverAsync(payload models.Payload) {
	go func() {
		_ = s.DeliverWithRetry(context.Background(), payload)
	}()
}
