// Package api exposes the quote aggregator over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourorg/swap-quote-aggregator/internal/aggregate"
	"github.com/yourorg/swap-quote-aggregator/internal/analytics"
	"github.com/yourorg/swap-quote-aggregator/internal/circuitbreaker"
	"github.com/yourorg/swap-quote-aggregator/internal/config"
	"github.com/yourorg/swap-quote-aggregator/internal/model"
)

// Version is reported by the health and status endpoints.
const Version = "1.0.0"

// Error codes carried in ErrorBody.Code.
const (
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeUnsupportedChainPair = "UNSUPPORTED_CHAIN_PAIR"
	CodeNoRoute              = "NO_ROUTE"
	CodeRateLimited          = "RATE_LIMITED"
	CodeCancelled            = "CANCELLED"
	CodeInternal             = "INTERNAL_ERROR"
)

// Dependencies are the long-lived components a Server routes requests to.
// Breakers, Analytics and Metrics are optional.
type Dependencies struct {
	Aggregator *aggregate.Aggregator
	Breakers   *circuitbreaker.Set
	Analytics  *analytics.Sink
	Metrics    *Metrics
}

// Server is the HTTP front end of the aggregator.
type Server struct {
	cfg       config.Config
	deps      Dependencies
	router    *mux.Router
	rateLimit *rate.Limiter
	server    *http.Server
	startTime time.Time
}

// NewServer wires routes and middleware. It does not start listening.
func NewServer(cfg config.Config, deps Dependencies) *Server {
	s := &Server{
		cfg:       cfg,
		deps:      deps,
		router:    mux.NewRouter(),
		startTime: time.Now(),
	}
	if cfg.Server.RateLimitRPS > 0 {
		burst := cfg.Server.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		s.rateLimit = rate.NewLimiter(rate.Limit(cfg.Server.RateLimitRPS), burst)
		logrus.Infof("Rate limiting initialized: %v req/s, burst: %d", cfg.Server.RateLimitRPS, burst)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(requestIDMiddleware, loggingMiddleware)

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.Use(s.rateLimitMiddleware)
	v1.HandleFunc("/quote", s.handleQuote).Methods(http.MethodGet, http.MethodPost)
	v1.HandleFunc("/providers", s.handleProviders).Methods(http.MethodGet)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/circuit", s.handleCircuit).Methods(http.MethodGet, http.MethodPost)
	s.router.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
}

// Handler returns the router wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
	})
	return c.Handler(s.router)
}

// ListenAndServe blocks until the server stops. It returns nil after Shutdown.
func (s *Server) ListenAndServe() error {
	s.server = &http.Server{
		Addr:         ":" + s.cfg.Server.Port,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logrus.Infof("Server starting on port %s", s.cfg.Server.Port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type ctxKey int

const requestIDKey ctxKey = iota

// RequestID returns the id assigned to the request carrying ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logrus.WithFields(logrus.Fields{
			"request_id": RequestID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"latency":    time.Since(start).String(),
		}).Debug("Handled request")
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.rateLimit != nil && !s.rateLimit.Allow() {
			s.errorResponse(w, http.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.WithError(err).Warn("Failed to write response")
	}
}

// errorResponse writes a failed quote response with no provider data.
func (s *Server) errorResponse(w http.ResponseWriter, status int, code, message string) {
	logrus.WithFields(logrus.Fields{"status": status, "code": code}).Warn(message)
	writeJSON(w, status, aggregate.Response{
		Success:         false,
		FailedProviders: []model.ProviderFailure{},
		Error:           &aggregate.ErrorBody{Code: code, Message: message},
	})
}
