// Package raster turns PDF bytes into page images. A backend does the
// rendering; the Adapter applies the page budget and resolution and gives
// every failure a single recognizable type.
package raster

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sort"
	"time"

	"github.com/MeKo-Tech/ocrnlp/internal/workers"
)

const (
	DefaultDPI      = 220
	DefaultMaxPages = 5
)

// Page is one rendered page. Number is 1-based.
type Page struct {
	Number int
	Image  image.Image
}

// Rasterizer renders at most maxPages pages of a PDF at dpi. Pages come
// back in ascending page order; a backend may omit pages it cannot render
// (e.g. a page without an embedded image).
type Rasterizer interface {
	Rasterize(ctx context.Context, data []byte, dpi, maxPages int) ([]Page, error)
}

// RasterizerFunc adapts a function to the Rasterizer interface.
type RasterizerFunc func(ctx context.Context, data []byte, dpi, maxPages int) ([]Page, error)

// Rasterize calls f.
func (f RasterizerFunc) Rasterize(ctx context.Context, data []byte, dpi, maxPages int) ([]Page, error) {
	return f(ctx, data, dpi, maxPages)
}

// ErrRasterization matches every *RasterError.
var ErrRasterization = errors.New("rasterization failed")

// RasterError wraps a backend failure.
type RasterError struct {
	Err error
}

func (e *RasterError) Error() string {
	return fmt.Sprintf("rasterize pdf: %v", e.Err)
}

func (e *RasterError) Unwrap() error { return e.Err }

func (e *RasterError) Is(target error) bool {
	return target == ErrRasterization
}

// Config holds the rendering parameters.
type Config struct {
	DPI      int
	MaxPages int
}

// DefaultConfig returns 220 DPI and a five page budget.
func DefaultConfig() Config {
	return Config{DPI: DefaultDPI, MaxPages: DefaultMaxPages}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.DPI <= 0 {
		return fmt.Errorf("dpi must be positive, got %d", c.DPI)
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive, got %d", c.MaxPages)
	}
	return nil
}

// Adapter applies Config to a backend.
type Adapter struct {
	backend Rasterizer
	cfg     Config
	limiter *workers.Limiter
	logger  *slog.Logger
}

// NewAdapter validates cfg and wraps backend. limiter bounds concurrent
// rasterizations (nil = unbounded).
func NewAdapter(backend Rasterizer, cfg Config, limiter *workers.Limiter, logger *slog.Logger) (*Adapter, error) {
	if backend == nil {
		return nil, errors.New("raster: nil backend")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("raster: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{backend: backend, cfg: cfg, limiter: limiter, logger: logger}, nil
}

// Config returns the adapter's rendering parameters.
func (a *Adapter) Config() Config { return a.cfg }

// Rasterize renders the first Config.MaxPages pages of data. Pages past the
// budget are dropped without error. Backend failures are returned as
// *RasterError; overload and cancellation while waiting for a slot are
// returned as-is.
func (a *Adapter) Rasterize(ctx context.Context, data []byte) ([]Page, error) {
	if err := a.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer a.limiter.Release()

	start := time.Now()
	pages, err := a.backend.Rasterize(ctx, data, a.cfg.DPI, a.cfg.MaxPages)
	rasterizationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		rasterizationFailures.Inc()
		return nil, &RasterError{Err: err}
	}

	kept := pages[:0]
	for _, p := range pages {
		if p.Number < 1 || p.Number > a.cfg.MaxPages || p.Image == nil {
			continue
		}
		kept = append(kept, p)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Number < kept[j].Number })

	a.logger.Debug("PDF rasterized",
		"pages", len(kept),
		"dpi", a.cfg.DPI,
		"max_pages", a.cfg.MaxPages,
		"duration_ms", time.Since(start).Milliseconds())

	return kept, nil
}
