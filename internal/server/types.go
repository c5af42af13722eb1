package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/ocrnlp/internal/document"
	"github.com/MeKo-Tech/ocrnlp/internal/extract"
)

// ServiceName is reported by /health.
const ServiceName = "ocr-nlp"

// Extractor runs the extraction pipeline. *extract.Extractor implements it.
type Extractor interface {
	Extract(ctx context.Context, doc document.RawDocument) (*extract.Result, error)
	Stream(ctx context.Context, doc document.RawDocument, onPage func(extract.PageResult) error) (*extract.Result, error)
}

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigin  string
	MaxUploadMB int64
	// TimeoutSec bounds one extraction; 0 means no bound beyond the client
	// connection.
	TimeoutSec int
	RateLimit  RateLimitConfig
}

// RateLimitConfig configures per-client request limits.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		Host:        "0.0.0.0",
		Port:        8000,
		CORSOrigin:  "*",
		MaxUploadMB: 50,
		TimeoutSec:  120,
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			RequestsPerHour:   1000,
		},
	}
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	extractor   Extractor
	corsOrigin  string
	maxUploadMB int64
	timeout     time.Duration
	rateLimiter *RateLimiter
	logger      *slog.Logger
	router      http.Handler
}

// HealthResponse is the /health body.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	Service string `json:"service"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// Error kinds produced at the HTTP boundary, next to extract.Kind.
const (
	kindBadRequest  = "bad_request"
	kindTooLarge    = "too_large"
	kindRateLimited = "rate_limited"
	kindInternal    = "internal"
	kindNotFound    = "not_found"
	kindBadMethod   = "method_not_allowed"
)
