package analytics

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/swap-quote-aggregator/internal/config"
)

const (
	defaultBatchSize     = 50
	defaultFlushInterval = 30 * time.Second
	defaultMaxTries      = 4
	defaultRetryInterval = 500 * time.Millisecond

	// pending events are capped at this many batches; the oldest are dropped first
	maxPendingBatches = 10
)

// Option customizes a Sink.
type Option func(*Sink)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Sink) { s.httpClient = c }
}

// WithRetry sets the number of delivery attempts per batch and the first backoff interval.
func WithRetry(maxTries uint, initial time.Duration) Option {
	return func(s *Sink) {
		s.maxTries = maxTries
		s.retryInterval = initial
	}
}

// Sink batches quote events and posts them to the analytics collector.
type Sink struct {
	cfg           config.AnalyticsConfig
	httpClient    *http.Client
	maxTries      uint
	retryInterval time.Duration

	mutex     sync.RWMutex
	pending   []QuoteEvent
	lastFlush time.Time
	delivered int
	dropped   int

	flushCh chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
	stop    sync.Once
}

// New creates a sink. A disabled sink accepts and discards events.
func New(cfg config.AnalyticsConfig, opts ...Option) *Sink {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}

	s := &Sink{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
				IdleConnTimeout: 90 * time.Second,
			},
		},
		maxTries:      defaultMaxTries,
		retryInterval: defaultRetryInterval,
		flushCh:       make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if !cfg.Enabled {
		close(s.done)
		return s
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(ctx)

	logrus.WithFields(logrus.Fields{
		"url":            cfg.URL,
		"batch_size":     cfg.BatchSize,
		"flush_interval": cfg.FlushInterval,
	}).Info("Quote analytics sink started")
	return s
}

// Enabled reports whether events are shipped anywhere.
func (s *Sink) Enabled() bool {
	return s != nil && s.cfg.Enabled
}

// Record queues an event. It never blocks on the network.
func (s *Sink) Record(ev QuoteEvent) {
	if !s.Enabled() {
		return
	}

	s.mutex.Lock()
	s.pending = append(s.pending, ev)
	if limit := s.cfg.BatchSize * maxPendingBatches; len(s.pending) > limit {
		over := len(s.pending) - limit
		s.pending = append([]QuoteEvent(nil), s.pending[over:]...)
		s.dropped += over
	}
	full := len(s.pending) >= s.cfg.BatchSize
	s.mutex.Unlock()

	if full {
		select {
		case s.flushCh <- struct{}{}:
		default:
		}
	}
}

func (s *Sink) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.flush(ctx)
		case <-s.flushCh:
			s.flush(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// flush sends everything pending, one batch at a time.
func (s *Sink) flush(ctx context.Context) {
	for {
		s.mutex.Lock()
		if len(s.pending) == 0 {
			s.mutex.Unlock()
			return
		}
		n := min(len(s.pending), s.cfg.BatchSize)
		batch := make([]QuoteEvent, n)
		copy(batch, s.pending[:n])
		s.pending = s.pending[n:]
		s.lastFlush = time.Now()
		s.mutex.Unlock()

		err := s.deliver(ctx, batch)

		s.mutex.Lock()
		if err != nil {
			s.dropped += len(batch)
		} else {
			s.delivered += len(batch)
		}
		s.mutex.Unlock()

		if err != nil {
			logrus.WithError(err).WithField("events", len(batch)).Error("Failed to export quote events")
			return
		}
		logrus.WithField("events", len(batch)).Debug("Exported quote events")
	}
}

type exportPayload struct {
	Events     []QuoteEvent `json:"events"`
	ExportTime string       `json:"export_time"`
	Count      int          `json:"count"`
}

// deliver posts one batch, retrying server errors with exponential backoff. Client
// errors other than 429 are not retried.
func (s *Sink) deliver(ctx context.Context, batch []QuoteEvent) error {
	body, err := json.Marshal(exportPayload{
		Events:     batch,
		ExportTime: time.Now().UTC().Format(time.RFC3339),
		Count:      len(batch),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal quote events: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.retryInterval
	policy.MaxInterval = s.retryInterval * 10

	operation := func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("failed to create export request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if s.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return struct{}{}, fmt.Errorf("export request failed: %w", err)
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode < 300:
			return struct{}{}, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return struct{}{}, fmt.Errorf("collector returned status %d", resp.StatusCode)
		default:
			return struct{}{}, backoff.Permanent(fmt.Errorf("collector rejected batch with status %d", resp.StatusCode))
		}
	}

	notify := func(err error, wait time.Duration) {
		logrus.WithError(err).WithField("backoff", wait).Warn("Retrying quote event export")
	}

	_, err = backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(s.maxTries),
		backoff.WithNotify(notify))
	return err
}

// Stop ends the background loop and flushes what is still pending. It is safe to call
// more than once.
func (s *Sink) Stop(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	s.stop.Do(func() {
		s.cancel()
		<-s.done
		s.flush(ctx)
		logrus.Info("Quote analytics sink stopped")
	})
}

// Status returns a snapshot for the status endpoint.
func (s *Sink) Status() map[string]interface{} {
	if s == nil {
		return map[string]interface{}{"enabled": false}
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	status := map[string]interface{}{
		"enabled":        s.cfg.Enabled,
		"batch_size":     s.cfg.BatchSize,
		"flush_interval": s.cfg.FlushInterval.String(),
		"pending":        len(s.pending),
		"delivered":      s.delivered,
		"dropped":        s.dropped,
	}
	if !s.lastFlush.IsZero() {
		status["last_flush"] = s.lastFlush.UTC().Format(time.RFC3339)
	}
	return status
}
