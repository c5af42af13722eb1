// Package recognition wraps a text-recognition engine behind a typed
// contract. Engines hand back loosely shaped items; the Adapter converts
// them into Detections and is the only place that deals with the engine's
// output shape.
package recognition

import (
	"context"
	"image"
)

// Point is a polygon vertex in image pixel coordinates.
type Point [2]float64

// BBox is a bounding polygon. A nil BBox means the engine gave no usable
// geometry; a non-nil BBox always has at least one point. The vertex count
// is not fixed (quadrilaterals are typical).
type BBox []Point

// Detection is one text region found in one image.
type Detection struct {
	BBox BBox
	Text string
	// Confidence is a 0..1 likelihood. Nil means the engine did not report
	// one; a pointer to 0 is a real zero-confidence result.
	Confidence *float64
}

// Engine is a text-recognition backend. Implementations receive an opaque
// RGB raster and return raw items in whatever shape the backend produces;
// see NormalizeItem for the shapes understood.
//
// Engines are constructed once per process and shared; Recognize may be
// called from several goroutines, up to the Adapter's worker limit.
type Engine interface {
	Recognize(ctx context.Context, img *image.NRGBA) ([]any, error)
	Close() error
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, img *image.NRGBA) ([]any, error)

// Recognize calls f.
func (f EngineFunc) Recognize(ctx context.Context, img *image.NRGBA) ([]any, error) {
	return f(ctx, img)
}

// Close is a no-op.
func (f EngineFunc) Close() error { return nil }
