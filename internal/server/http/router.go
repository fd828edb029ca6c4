package http

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jobrelay/internal/config"
	"jobrelay/internal/logging"
	"jobrelay/internal/relay"
)

// NewRouter wires all relay endpoints into a single handler.
func NewRouter(cfg config.Config, relayRouter *relay.Router, registry *relay.Registry) http.Handler {
	logger := logging.NewComponentLogger("Router")

	streamHandler := NewStreamHandler(registry, cfg.StreamTimeout)
	apiHandler := NewAPIHandler(relayRouter, registry)
	authHandler := NewAuthHandler(cfg.Users)

	mux := http.NewServeMux()

	// Progress stream: /progress/{workflowId}
	mux.Handle("/progress/", http.HandlerFunc(streamHandler.HandleProgressStream))

	mux.Handle("/api/register-execution", http.HandlerFunc(apiHandler.HandleRegisterExecution))
	mux.Handle("/api/progress-update", http.HandlerFunc(apiHandler.HandleProgressUpdate))
	mux.Handle("/api/connections", http.HandlerFunc(apiHandler.HandleConnections))
	mux.Handle("/health", http.HandlerFunc(apiHandler.HandleHealthCheck))
	mux.Handle("/login", http.HandlerFunc(authHandler.HandleLogin))
	mux.Handle("/metrics", promhttp.Handler())

	// Serve the UI shell when a static directory is configured and present.
	if cfg.StaticDir != "" {
		if info, err := os.Stat(cfg.StaticDir); err == nil && info.IsDir() {
			mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
			logger.Info("Serving static assets from %s", cfg.StaticDir)
		} else {
			logger.Warn("Static dir %s not found, UI shell disabled", cfg.StaticDir)
		}
	}

	var handler http.Handler = mux
	handler = LoggingMiddleware(logger)(handler)
	handler = CORSMiddleware(cfg.AllowedOrigins)(handler)

	return handler
}

// NewServer builds the HTTP server around the wired router. WriteTimeout is
// zero because the progress stream is unbounded.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}
}
