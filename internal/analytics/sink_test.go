package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/swap-quote-aggregator/internal/config"
	"github.com/yourorg/swap-quote-aggregator/internal/model"
)

type collector struct {
	mu      sync.Mutex
	batches []exportPayload
	auth    []string
}

func (c *collector) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p exportPayload
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&p)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		c.mu.Lock()
		c.batches = append(c.batches, p)
		c.auth = append(c.auth, r.Header.Get("Authorization"))
		c.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}
}

func (c *collector) events() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range c.batches {
		n += b.Count
	}
	return n
}

func sampleEvent(id string) QuoteEvent {
	return QuoteEvent{RequestID: id, FromChain: 1, ToChain: 1, FromAmount: "1000"}
}

func TestSink_FlushesFullBatch(t *testing.T) {
	c := &collector{}
	srv := httptest.NewServer(c.handler(t))
	defer srv.Close()

	s := New(config.AnalyticsConfig{
		Enabled:       true,
		URL:           srv.URL,
		APIKey:        "secret",
		BatchSize:     2,
		FlushInterval: time.Hour,
	})
	defer s.Stop(context.Background())

	s.Record(sampleEvent("a"))
	s.Record(sampleEvent("b"))

	assert.Eventually(t, func() bool { return c.events() == 2 }, 2*time.Second, 10*time.Millisecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.batches, 1)
	assert.Equal(t, "a", c.batches[0].Events[0].RequestID)
	assert.Equal(t, "Bearer secret", c.auth[0])
}

func TestSink_StopFlushesPending(t *testing.T) {
	c := &collector{}
	srv := httptest.NewServer(c.handler(t))
	defer srv.Close()

	s := New(config.AnalyticsConfig{Enabled: true, URL: srv.URL, BatchSize: 10, FlushInterval: time.Hour})
	s.Record(sampleEvent("a"))
	s.Stop(context.Background())
	s.Stop(context.Background())

	assert.Equal(t, 1, c.events())
	status := s.Status()
	assert.Equal(t, 1, status["delivered"])
	assert.Equal(t, 0, status["pending"])
}

func TestSink_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(config.AnalyticsConfig{Enabled: true, URL: srv.URL, BatchSize: 10, FlushInterval: time.Hour},
		WithRetry(5, time.Millisecond))
	s.Record(sampleEvent("a"))
	s.Stop(context.Background())

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 1, s.Status()["delivered"])
}

func TestSink_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := New(config.AnalyticsConfig{Enabled: true, URL: srv.URL, BatchSize: 10, FlushInterval: time.Hour},
		WithRetry(5, time.Millisecond))
	s.Record(sampleEvent("a"))
	s.Stop(context.Background())

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, s.Status()["dropped"])
}

func TestSink_Disabled(t *testing.T) {
	s := New(config.AnalyticsConfig{})
	assert.False(t, s.Enabled())
	s.Record(sampleEvent("a"))
	s.Stop(context.Background())
	assert.Equal(t, 0, s.Status()["pending"])

	var nilSink *Sink
	assert.False(t, nilSink.Enabled())
	nilSink.Record(sampleEvent("a"))
	assert.Equal(t, false, nilSink.Status()["enabled"])
}

func TestNewQuoteEvent(t *testing.T) {
	best := model.Quote{Provider: "0x", FromAmount: "1000", ToAmount: "990", MinimumReceived: "985", Route: []string{"0xA", "0xB"}}
	res := model.AggregationResult{
		Best:           &best,
		All:            []model.Quote{best},
		Failed:         []model.ProviderFailure{{Provider: "1inch", Reason: "timeout"}},
		TotalProviders: 2,
	}
	in := model.SwapIntent{FromChain: 1, ToChain: 1, FromToken: "0xA", ToToken: "0xB", FromAmount: "1000"}

	ev := NewQuoteEvent("req-1", in, res, 250*time.Millisecond)
	assert.Equal(t, "0x", ev.BestProvider)
	assert.Equal(t, "990", ev.BestAmount)
	assert.Equal(t, 1, ev.Quoted)
	assert.Equal(t, 2, ev.TotalProviders)
	assert.Equal(t, int64(250), ev.LatencyMs)
	assert.Equal(t, Fingerprint(best), ev.Fingerprint)

	empty := NewQuoteEvent("req-2", in, model.AggregationResult{TotalProviders: 1}, 0)
	assert.Empty(t, empty.BestProvider)
	assert.Empty(t, empty.Fingerprint)
}

func TestFingerprint(t *testing.T) {
	q := model.Quote{Provider: "0x", FromAmount: "1000", ToAmount: "990", MinimumReceived: "985", Route: []string{"0xA", "0xB"}}

	fp := Fingerprint(q)
	assert.Len(t, fp, 66)
	assert.Equal(t, "0x", fp[:2])

	q.LatencyMs = 42
	q.PriceImpactPercent = 0.3
	assert.Equal(t, fp, Fingerprint(q), "Latency and impact do not change the fingerprint")

	q.Route = []string{"0xa", "0xb"}
	assert.Equal(t, fp, Fingerprint(q), "Address case does not change the fingerprint")

	q.ToAmount = "991"
	assert.NotEqual(t, fp, Fingerprint(q))
}
