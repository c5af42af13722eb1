// Package fake provides scripted recognition engines and rasterizers for
// tests above the extraction pipeline.
package fake

import (
	"context"
	"image"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/ocrnlp/internal/extract"
	"github.com/MeKo-Tech/ocrnlp/internal/raster"
	"github.com/MeKo-Tech/ocrnlp/internal/recognition"
	"github.com/MeKo-Tech/ocrnlp/internal/workers"
)

// Quad returns a four-point box as an engine would emit it.
func Quad(x, y, w, h int) []any {
	return []any{
		[]any{x, y}, []any{x + w, y}, []any{x + w, y + h}, []any{x, y + h},
	}
}

// Engine returns the same raw items for every image.
func Engine(items ...any) recognition.Engine {
	return recognition.EngineFunc(func(context.Context, *image.NRGBA) ([]any, error) {
		return items, nil
	})
}

// WidthEngine returns one detection whose text is the image width. Pages
// from PDF below are 10*n pixels wide, so the text names the page.
func WidthEngine() recognition.Engine {
	return recognition.EngineFunc(func(_ context.Context, img *image.NRGBA) ([]any, error) {
		w := img.Bounds().Dx()
		return []any{[]any{Quad(0, 0, w, 5), "w" + strconv.Itoa(w), 0.9}}, nil
	})
}

// FailingEngine fails every call with err.
func FailingEngine(err error) recognition.Engine {
	return recognition.EngineFunc(func(context.Context, *image.NRGBA) ([]any, error) {
		return nil, err
	})
}

// BlockingEngine blocks until release is closed or ctx ends. started
// receives one value per call.
func BlockingEngine(started chan<- struct{}, release <-chan struct{}) recognition.Engine {
	return recognition.EngineFunc(func(ctx context.Context, _ *image.NRGBA) ([]any, error) {
		if started != nil {
			started <- struct{}{}
		}
		select {
		case <-release:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

// PDF renders totalPages white pages, page n being 10*n pixels wide, and
// honors the page budget.
func PDF(totalPages int) raster.Rasterizer {
	return raster.RasterizerFunc(func(_ context.Context, _ []byte, _ int, maxPages int) ([]raster.Page, error) {
		n := min(totalPages, maxPages)
		pages := make([]raster.Page, n)
		for i := range pages {
			img := image.NewNRGBA(image.Rect(0, 0, 10*(i+1), 10))
			for p := range img.Pix {
				img.Pix[p] = 0xff
			}
			pages[i] = raster.Page{Number: i + 1, Image: img}
		}
		return pages, nil
	})
}

// FailingPDF fails every rasterization with err.
func FailingPDF(err error) raster.Rasterizer {
	return raster.RasterizerFunc(func(context.Context, []byte, int, int) ([]raster.Page, error) {
		return nil, err
	})
}

// Options tune NewExtractor.
type Options struct {
	MaxPages int
	Limiter  *workers.Limiter
}

// NewExtractor wires engine and backend through the real adapters.
func NewExtractor(t testing.TB, engine recognition.Engine, backend raster.Rasterizer, opts Options) *extract.Extractor {
	t.Helper()
	x, err := Extractor(engine, backend, opts)
	require.NoError(t, err)
	return x
}

// Extractor is NewExtractor for callers without a testing.TB, such as
// godog step definitions.
func Extractor(engine recognition.Engine, backend raster.Rasterizer, opts Options) (*extract.Extractor, error) {
	if opts.MaxPages == 0 {
		opts.MaxPages = raster.DefaultMaxPages
	}
	pages, err := raster.NewAdapter(backend, raster.Config{DPI: raster.DefaultDPI, MaxPages: opts.MaxPages}, nil, nil)
	if err != nil {
		return nil, err
	}
	return extract.New(recognition.NewAdapter(engine, opts.Limiter, nil), pages, nil), nil
}
