// Package app assembles the aggregator from configuration for the binaries.
package app

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/swap-quote-aggregator/internal/aggregate"
	"github.com/yourorg/swap-quote-aggregator/internal/circuitbreaker"
	"github.com/yourorg/swap-quote-aggregator/internal/config"
	"github.com/yourorg/swap-quote-aggregator/internal/fetch"
)

// SetupLogging configures the global logrus logger.
func SetupLogging(cfg config.LogConfig) {
	switch strings.ToLower(cfg.Format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logrus.Warnf("Unknown log level %q, using info", cfg.Level)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// Aggregator is the assembled core: the orchestrator and the breakers guarding it.
type Aggregator struct {
	*aggregate.Aggregator
	Breakers *circuitbreaker.Set
}

// Build registers every enabled provider and wraps them in an orchestrator.
// observer may be nil.
func Build(cfg config.Config, observer aggregate.Observer, opts ...fetch.Option) (*Aggregator, error) {
	adapters, err := fetch.NewAdapters(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to register providers: %w", err)
	}

	var breakers *circuitbreaker.Set
	if cfg.Breaker.Enabled {
		names := make([]string, len(adapters))
		for i, a := range adapters {
			names[i] = a.Name()
		}
		breakers = circuitbreaker.NewSet(names, func(name string) *circuitbreaker.CircuitBreaker {
			return circuitbreaker.New(name, circuitbreaker.Thresholds{FailureThreshold: cfg.Breaker.FailureThreshold}).
				WithResetDelay(cfg.Breaker.ResetDelay).
				WithSuccessThreshold(cfg.Breaker.SuccessThreshold)
		})
	}

	agg := aggregate.New(adapters, aggregate.Options{
		AdapterTimeout: cfg.Aggregator.AdapterTimeout,
		MaxConcurrency: cfg.Aggregator.MaxConcurrency,
		Preference:     cfg.Aggregator.Preference,
		Breakers:       breakers,
		Observer:       observer,
	})

	logrus.WithFields(logrus.Fields{
		"providers":       len(adapters),
		"adapter_timeout": cfg.Aggregator.AdapterTimeout.String(),
		"circuit_breaker": cfg.Breaker.Enabled,
	}).Info("Quote aggregator initialized")

	return &Aggregator{Aggregator: agg, Breakers: breakers}, nil
}
