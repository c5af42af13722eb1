package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewServer creates a server around an already constructed extractor.
func NewServer(cfg Config, extractor Extractor, logger *slog.Logger) (*Server, error) {
	if extractor == nil {
		return nil, errors.New("server: extractor is required")
	}
	if cfg.MaxUploadMB <= 0 {
		return nil, fmt.Errorf("server: max upload size must be positive, got %d MB", cfg.MaxUploadMB)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		extractor:   extractor,
		corsOrigin:  cfg.CORSOrigin,
		maxUploadMB: cfg.MaxUploadMB,
		timeout:     time.Duration(cfg.TimeoutSec) * time.Second,
		logger:      logger,
	}
	if cfg.RateLimit.Enabled {
		s.rateLimiter = NewRateLimiter(
			cfg.RateLimit.RequestsPerMinute,
			cfg.RateLimit.RequestsPerHour,
			cfg.RateLimit.MaxRequestsPerDay,
			cfg.RateLimit.MaxDataPerDay,
		)
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.recoverMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.metricsMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, kindNotFound, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, kindBadMethod, "method not allowed")
	})

	r.Get("/health", s.healthHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimitMiddleware)
		r.Post("/ocr/extract", s.extractHandler)
		r.Get("/ws/extract", s.extractWebSocketHandler)
	})
	return r
}

// maxUploadBytes is the largest accepted request body.
func (s *Server) maxUploadBytes() int64 {
	return s.maxUploadMB * 1024 * 1024
}

// ListenAndServe serves on host:port until ctx is canceled, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, host string, port int, shutdownTimeout time.Duration) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", port)
	}

	httpServer := &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if s.rateLimiter != nil {
		pruneCtx, stopPrune := context.WithCancel(ctx)
		defer stopPrune()
		go s.rateLimiter.pruneLoop(pruneCtx, pruneInterval, s.logger)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting OCR server", "host", host, "port", port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server", "timeout", shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("Server stopped")
	return nil
}
