package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"jobrelay/internal/config"
	"jobrelay/internal/logging"
	"jobrelay/internal/relay"
	serverHTTP "jobrelay/internal/server/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logging.SetLevel(logging.ParseLevel(cfg.LogLevel))

	logger := logging.NewComponentLogger("Main")
	logger.Info("Starting workflow progress relay...")
	logger.Info("=== Server Configuration ===")
	logger.Info("Port: %s", cfg.Port)
	logger.Info("Stream timeout: %s", cfg.StreamTimeout)
	logger.Info("Teardown grace: %s", cfg.TeardownGrace)
	logger.Info("Allowed origins: %v", cfg.AllowedOrigins)
	logger.Info("Static dir: %s", cfg.StaticDir)
	logger.Info("Configured users: %d", len(cfg.Users))
	logger.Info("===========================")

	metrics := relay.MustNewMetrics(prometheus.DefaultRegisterer)

	registry := relay.NewRegistry(
		relay.WithRegistryMetrics(metrics),
		relay.WithRegistryLogger(logging.NewComponentLogger("Registry")),
	)
	index := relay.NewExecutionIndex()
	relayRouter := relay.NewRouter(registry, index,
		relay.WithTeardownGrace(cfg.TeardownGrace),
		relay.WithRouterMetrics(metrics),
		relay.WithRouterLogger(logging.NewComponentLogger("Router")),
	)

	handler := serverHTTP.NewRouter(cfg, relayRouter, registry)
	srv := serverHTTP.NewServer(cfg, handler)

	go func() {
		logger.Info("Server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Notify live streams before closing the listener so clients see the
	// shutdown frame instead of a bare connection reset.
	registry.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server stopped")
}
