// Package main is the entry point for the swap quote aggregator HTTP service.
package main

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/yourorg/swap-quote-aggregator/internal/analytics"
	"github.com/yourorg/swap-quote-aggregator/internal/api"
	"github.com/yourorg/swap-quote-aggregator/internal/app"
	"github.com/yourorg/swap-quote-aggregator/internal/config"
	"github.com/yourorg/swap-quote-aggregator/internal/otel"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logrus.Warnf("Failed to load .env: %v", err)
	}

	configPath := pflag.StringP("config", "c", getEnvOrDefault("SWAPQ_CONFIG", ""), "path to a YAML or JSON config file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	app.SetupLogging(cfg.Log)

	shutdownTracer := otel.InitTracer(cfg)
	defer shutdownTracer()

	metrics := api.NewMetrics()
	agg, err := app.Build(cfg, metrics)
	if err != nil {
		logrus.Fatalf("Failed to build aggregator: %v", err)
	}

	sink := analytics.New(cfg.Analytics)

	server := api.NewServer(cfg, api.Dependencies{
		Aggregator: agg.Aggregator,
		Breakers:   agg.Breakers,
		Analytics:  sink,
		Metrics:    metrics,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logrus.Fatalf("Error starting server: %v", err)
		}
		return
	case sig := <-shutdownSignal():
		logrus.Infof("Received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server shutdown failed: %v", err)
	}
	sink.Stop(ctx)

	logrus.Info("Server stopped")
}
