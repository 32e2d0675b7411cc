package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/swap-quote-aggregator/internal/aggregate"
	"github.com/yourorg/swap-quote-aggregator/internal/analytics"
	"github.com/yourorg/swap-quote-aggregator/internal/model"
)

// handleQuote runs one aggregation. Provider failures never fail the request; the
// status reflects only caller errors, the absence of a route, cancellation and
// internal faults.
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	intent, err := parseQuoteRequest(r, s.cfg.Aggregator.DefaultSlippageBps)
	if err != nil {
		s.observeRequest(http.StatusBadRequest, start)
		s.errorResponse(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	ctx := r.Context()
	if s.cfg.Server.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Server.RequestTimeout)
		defer cancel()
	}

	result, err := s.deps.Aggregator.Aggregate(ctx, intent)
	status, resp := quoteResponse(result, err)

	if err == nil {
		s.deps.Analytics.Record(analytics.NewQuoteEvent(RequestID(r.Context()), intent, result, time.Since(start)))
	} else {
		logrus.WithFields(logrus.Fields{
			"request_id": RequestID(r.Context()),
			"status":     status,
		}).WithError(err).Warn("Quote request failed")
	}

	s.observeRequest(status, start)
	writeJSON(w, status, resp)
}

// quoteResponse maps an aggregation outcome to its HTTP status and body.
func quoteResponse(result model.AggregationResult, err error) (int, aggregate.Response) {
	resp := aggregate.NewResponse(result)
	if err == nil {
		if !result.HasRoute() {
			resp.Error = &aggregate.ErrorBody{Code: CodeNoRoute, Message: "No provider returned a usable quote"}
			return http.StatusNotFound, resp
		}
		return http.StatusOK, resp
	}

	resp.Success = false
	resp.Data = nil
	resp.Provider = ""
	resp.AllQuotes = nil

	var status int
	switch {
	case errors.Is(err, model.ErrInvalidIntent):
		status = http.StatusBadRequest
		resp.Error = &aggregate.ErrorBody{Code: CodeInvalidRequest, Message: err.Error()}
	case errors.Is(err, model.ErrUnsupportedChainPair):
		status = http.StatusBadRequest
		resp.Error = &aggregate.ErrorBody{Code: CodeUnsupportedChainPair, Message: err.Error()}
	case errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
		resp.Error = &aggregate.ErrorBody{Code: CodeCancelled, Message: "Request cancelled"}
	default:
		status = http.StatusInternalServerError
		resp.Error = &aggregate.ErrorBody{Code: CodeInternal, Message: err.Error()}
	}
	return status, resp
}

func (s *Server) observeRequest(status int, start time.Time) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.observeRequest(status, time.Since(start))
	}
}

type providerInfo struct {
	Name       string   `json:"name"`
	Chains     []uint64 `json:"chains"`
	CrossChain bool     `json:"crossChain"`
	Circuit    string   `json:"circuit,omitempty"`
}

type chainLister interface {
	Chains() []uint64
}

// handleProviders lists the registered providers in registration order.
func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	adapters := s.deps.Aggregator.Adapters()
	providers := make([]providerInfo, 0, len(adapters))
	for _, ad := range adapters {
		info := providerInfo{Name: ad.Name(), Chains: []uint64{}}
		if cl, ok := ad.(chainLister); ok {
			info.Chains = cl.Chains()
		}
		if len(info.Chains) >= 2 {
			info.CrossChain = ad.Supports(info.Chains[0], info.Chains[1])
		}
		if cb := s.deps.Breakers.Get(ad.Name()); cb != nil {
			info.Circuit = cb.GetState().String()
		}
		providers = append(providers, info)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"providers": providers,
		"count":     len(providers),
	})
}

// handleHealth is a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"version":   Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus provides detailed service status information
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":    "operational",
		"uptime":    time.Since(s.startTime).String(),
		"version":   Version,
		"providers": len(s.deps.Aggregator.Adapters()),
		"configuration": map[string]interface{}{
			"request_timeout":      s.cfg.Server.RequestTimeout.String(),
			"adapter_timeout":      s.cfg.Aggregator.AdapterTimeout.String(),
			"max_concurrency":      s.cfg.Aggregator.MaxConcurrency,
			"default_slippage_bps": s.cfg.Aggregator.DefaultSlippageBps,
			"circuit_breaker":      s.deps.Breakers != nil,
		},
		"analytics": s.deps.Analytics.Status(),
	}
	if s.deps.Breakers != nil {
		status["circuits"] = s.deps.Breakers.Snapshots()
	}

	writeJSON(w, http.StatusOK, status)
}

// handleCircuit reports breaker state. POST ?action=reset closes one provider's
// circuit, or all of them when no provider is named.
func (s *Server) handleCircuit(w http.ResponseWriter, r *http.Request) {
	if s.deps.Breakers == nil {
		http.Error(w, "Circuit breaker not enabled", http.StatusServiceUnavailable)
		return
	}

	response := map[string]interface{}{}

	if r.Method == http.MethodPost {
		if action := r.URL.Query().Get("action"); action != "reset" {
			http.Error(w, fmt.Sprintf("Unknown action %q", action), http.StatusBadRequest)
			return
		}
		if provider := r.URL.Query().Get("provider"); provider != "" {
			cb := s.deps.Breakers.Get(provider)
			if cb == nil {
				http.Error(w, fmt.Sprintf("Unknown provider %q", provider), http.StatusNotFound)
				return
			}
			cb.Reset()
			response["message"] = "Circuit breaker reset for " + provider
		} else {
			s.deps.Breakers.ResetAll()
			response["message"] = "All circuit breakers reset"
		}
		logrus.WithField("request_id", RequestID(r.Context())).Info(response["message"])
	}

	response["circuits"] = s.deps.Breakers.Snapshots()
	writeJSON(w, http.StatusOK, response)
}

// handleMetrics exposes Prometheus metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.deps.Metrics == nil {
		http.Error(w, "Metrics disabled", http.StatusServiceUnavailable)
		return
	}
	s.deps.Metrics.updateBreakers(s.deps.Breakers.Snapshots())
	s.deps.Metrics.Handler().ServeHTTP(w, r)
}
