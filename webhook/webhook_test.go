package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/brandscrape/models"
)

func samplePayload() models.Payload {
	return models.NewPayload([]models.BrandRecord{
		{Brand: "Acne Studios", Source: "Beymen", ScrapeTimestamp: "2026-05-04T10:00:00Z"},
		{Brand: "Ganni", Source: "Beymen", ScrapeTimestamp: "2026-05-04T10:00:00Z"},
	})
}

func TestDeliver_SignsBody(t *testing.T) {
	var (
		gotBody []byte
		gotReq  *http.Request
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = r
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(srv.URL, "s3cret")
	require.NoError(t, s.Deliver(context.Background(), samplePayload()))

	assert.Equal(t, http.MethodPost, gotReq.Method)
	assert.Equal(t, "application/json", gotReq.Header.Get("Content-Type"))
	assert.Equal(t, userAgent, gotReq.Header.Get("User-Agent"))
	assert.NotEmpty(t, gotReq.Header.Get(DeliveryHeader))
	assert.Equal(t, Sign("s3cret", gotBody), gotReq.Header.Get(SignatureHeader))

	var p models.Payload
	require.NoError(t, json.Unmarshal(gotBody, &p))
	assert.Equal(t, 2, p.Meta.Count)
	assert.Equal(t, "Ganni", p.Records[1].Brand)
}

func TestDeliver_NoSecretNoSignature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(SignatureHeader))
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL, "").Deliver(context.Background(), samplePayload()))
}

func TestDeliver_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New(srv.URL, "").Deliver(context.Background(), samplePayload())
	assert.EqualError(t, err, "webhook: endpoint returned status 502")
}

func TestDeliverWithRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := New(srv.URL, "")
	s.delays = []time.Duration{0, time.Millisecond, time.Millisecond, time.Millisecond}
	require.NoError(t, s.DeliverWithRetry(context.Background(), samplePayload()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestDeliverWithRetry_Exhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := New(srv.URL, "")
	s.delays = []time.Duration{0, time.Millisecond}
	err := s.DeliverWithRetry(context.Background(), samplePayload())
	assert.ErrorContains(t, err, "status 500")
	assert.Equal(t, int32(2), calls.Load())
}

func TestEnabled(t *testing.T) {
	var nilSender *Sender
	assert.False(t, nilSender.Enabled())
	assert.False(t, New("", "").Enabled())
	assert.True(t, New("https://n8n.test/hook", "").Enabled())
}
