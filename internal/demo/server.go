package demo

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Surf-Wax/automated-secrets-management-poc/internal/logging"
)

// MetricsServerConfig holds configuration for the metrics HTTP server.
type MetricsServerConfig struct {
	// Enabled indicates whether the metrics server should run.
	Enabled bool

	// Addr is the listen address, e.g. ":9090".
	Addr string

	// Path is the path to serve metrics on.
	Path string

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration
}

// DefaultMetricsServerConfig returns the default metrics server configuration.
func DefaultMetricsServerConfig() MetricsServerConfig {
	return MetricsServerConfig{
		Enabled:      false,
		Addr:         ":9090",
		Path:         "/metrics",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// MetricsServer provides an HTTP server for Prometheus metrics, so a
// long wait between verification passes can be watched from outside.
type MetricsServer struct {
	config MetricsServerConfig
	logger *logging.Logger
	server *http.Server
}

// NewMetricsServer creates a new metrics server.
func NewMetricsServer(config MetricsServerConfig, logger *logging.Logger) *MetricsServer {
	return &MetricsServer{
		config: config,
		logger: logger,
	}
}

// Start starts the metrics HTTP server.
func (s *MetricsServer) Start() error {
	if !s.config.Enabled {
		return nil
	}

	InitMetrics()

	mux := http.NewServeMux()
	mux.Handle(s.config.Path, promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	s.server = &http.Server{
		Addr:         s.config.Addr,
		Handler:      mux,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Metrics are non-critical; don't take the demonstration down.
			s.logger.Warn("Metrics server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the metrics server.
func (s *MetricsServer) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	return s.server.Shutdown(ctx)
}

// Addr returns the server address.
func (s *MetricsServer) Addr() string {
	if s.server == nil {
		return ""
	}
	return s.server.Addr
}
