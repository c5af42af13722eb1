package config

import (
	"fmt"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/ocrnlp/internal/raster"
	"github.com/MeKo-Tech/ocrnlp/internal/server"
	"github.com/MeKo-Tech/ocrnlp/internal/workers"
)

// PDF backends.
const (
	BackendPdftoppm = "pdftoppm"
	BackendEmbedded = "embedded"
)

// Recognition engines.
const (
	EngineTesseract = "tesseract"
	EngineHTTP      = "http"
)

var (
	validLogLevels = []string{"debug", "info", "warn", "error"}
	validBackends  = []string{BackendPdftoppm, BackendEmbedded}
	validEngines   = []string{EngineTesseract, EngineHTTP}
	validLevels    = []string{"word", "line", "paragraph", "block"}
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	srv := server.DefaultConfig()
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Server: ServerConfig{
			Host:              srv.Host,
			Port:              srv.Port,
			CORSOrigin:        srv.CORSOrigin,
			MaxUploadMB:       int(srv.MaxUploadMB),
			TimeoutSec:        srv.TimeoutSec,
			ShutdownTimeout:   10,
			RateLimitEnabled:  false,
			RequestsPerMinute: srv.RateLimit.RequestsPerMinute,
			RequestsPerHour:   srv.RateLimit.RequestsPerHour,
			MaxRequestsPerDay: srv.RateLimit.MaxRequestsPerDay,
			MaxDataPerDayMB:   int(srv.RateLimit.MaxDataPerDay >> 20),
		},
		PDF: PDFConfig{
			MaxPages:      raster.DefaultMaxPages,
			DPI:           raster.DefaultDPI,
			Backend:       BackendPdftoppm,
			PdftoppmPath:  "",
			MaxConcurrent: 2,
		},
		Recognition: RecognitionConfig{
			Engine:     EngineTesseract,
			Languages:  []string{"eng"},
			Level:      "line",
			TimeoutSec: 60,
		},
		Concurrency: ConcurrencyConfig{
			MaxWorkers: runtime.NumCPU(),
			MaxQueue:   64,
		},
	}
}

// Validate validates the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec < 0 {
		return fmt.Errorf("invalid timeout: %d (must not be negative)", c.Server.TimeoutSec)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdown timeout: %d (must not be negative)", c.Server.ShutdownTimeout)
	}
	if c.Server.RequestsPerMinute < 0 || c.Server.RequestsPerHour < 0 {
		return fmt.Errorf("invalid rate limit: %d/min, %d/hour (must not be negative)",
			c.Server.RequestsPerMinute, c.Server.RequestsPerHour)
	}
	if c.Server.MaxRequestsPerDay < 0 || c.Server.MaxDataPerDayMB < 0 {
		return fmt.Errorf("invalid daily quota: %d requests, %d MB (must not be negative)",
			c.Server.MaxRequestsPerDay, c.Server.MaxDataPerDayMB)
	}

	if c.PDF.MaxPages <= 0 {
		return fmt.Errorf("invalid pdf max pages: %d (must be positive)", c.PDF.MaxPages)
	}
	if c.PDF.DPI <= 0 {
		return fmt.Errorf("invalid pdf dpi: %d (must be positive)", c.PDF.DPI)
	}
	if !slices.Contains(validBackends, c.PDF.Backend) {
		return fmt.Errorf("invalid pdf backend: %s (must be one of: %s)", c.PDF.Backend, strings.Join(validBackends, ", "))
	}
	if c.PDF.MaxConcurrent <= 0 {
		return fmt.Errorf("invalid pdf max concurrent: %d (must be positive)", c.PDF.MaxConcurrent)
	}

	if !slices.Contains(validEngines, c.Recognition.Engine) {
		return fmt.Errorf("invalid recognition engine: %s (must be one of: %s)", c.Recognition.Engine, strings.Join(validEngines, ", "))
	}
	if !slices.Contains(validLevels, c.Recognition.Level) {
		return fmt.Errorf("invalid recognition level: %s (must be one of: %s)", c.Recognition.Level, strings.Join(validLevels, ", "))
	}
	if c.Recognition.Engine == EngineTesseract && len(c.Recognition.Languages) == 0 {
		return fmt.Errorf("recognition.languages must name at least one language")
	}
	if c.Recognition.Engine == EngineHTTP && c.Recognition.Endpoint == "" {
		return fmt.Errorf("recognition.endpoint is required for the %s engine", EngineHTTP)
	}
	if c.Recognition.TimeoutSec < 0 {
		return fmt.Errorf("invalid recognition timeout: %d (must not be negative)", c.Recognition.TimeoutSec)
	}

	if c.Concurrency.MaxWorkers <= 0 {
		return fmt.Errorf("invalid max workers: %d (must be positive)", c.Concurrency.MaxWorkers)
	}
	if c.Concurrency.MaxQueue < 0 {
		return fmt.Errorf("invalid max queue: %d (must not be negative)", c.Concurrency.MaxQueue)
	}

	return nil
}

// ToServerConfig converts to server.Config.
func (c *Config) ToServerConfig() server.Config {
	return server.Config{
		Host:        c.Server.Host,
		Port:        c.Server.Port,
		CORSOrigin:  c.Server.CORSOrigin,
		MaxUploadMB: int64(c.Server.MaxUploadMB),
		TimeoutSec:  c.Server.TimeoutSec,
		RateLimit: server.RateLimitConfig{
			Enabled:           c.Server.RateLimitEnabled,
			RequestsPerMinute: c.Server.RequestsPerMinute,
			RequestsPerHour:   c.Server.RequestsPerHour,
			MaxRequestsPerDay: c.Server.MaxRequestsPerDay,
			MaxDataPerDay:     int64(c.Server.MaxDataPerDayMB) << 20,
		},
	}
}

// ShutdownTimeout returns the graceful shutdown budget.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeout) * time.Second
}

// ToRasterConfig converts to raster.Config.
func (c *Config) ToRasterConfig() raster.Config {
	return raster.Config{DPI: c.PDF.DPI, MaxPages: c.PDF.MaxPages}
}

// RecognitionWorkers returns the limiter config for recognition calls.
func (c *Config) RecognitionWorkers() workers.Config {
	return workers.Config{
		Name:       "recognition",
		MaxWorkers: c.Concurrency.MaxWorkers,
		MaxQueue:   c.Concurrency.MaxQueue,
	}
}

// RasterWorkers returns the limiter config for PDF rasterization.
func (c *Config) RasterWorkers() workers.Config {
	return workers.Config{
		Name:       "rasterize",
		MaxWorkers: c.PDF.MaxConcurrent,
		MaxQueue:   c.Concurrency.MaxQueue,
	}
}

// RecognitionTimeout returns the per-call timeout of the http engine.
func (c *Config) RecognitionTimeout() time.Duration {
	return time.Duration(c.Recognition.TimeoutSec) * time.Second
}
