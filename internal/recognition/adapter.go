package recognition

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/ocrnlp/internal/workers"
)

// Adapter runs images through an Engine and normalizes the result.
type Adapter struct {
	engine  Engine
	limiter *workers.Limiter
	logger  *slog.Logger
}

// NewAdapter creates an adapter around engine. limiter bounds concurrent
// engine calls; a nil limiter means no bound. A nil logger uses
// slog.Default().
func NewAdapter(engine Engine, limiter *workers.Limiter, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{engine: engine, limiter: limiter, logger: logger}
}

// Recognize converts img to RGB, runs the engine and returns the well-formed
// detections in engine order. Malformed items are dropped and logged.
//
// Engine errors are returned as *EngineError. Errors from waiting for a
// worker slot (workers.ErrOverloaded, context errors) are returned as-is.
func (a *Adapter) Recognize(ctx context.Context, img image.Image) ([]Detection, error) {
	if a == nil || a.engine == nil {
		return nil, &EngineError{Err: errors.New("engine not initialized")}
	}
	if img == nil {
		return nil, &EngineError{Err: errors.New("nil image")}
	}

	var (
		items []any
		start time.Time
	)
	err := a.limiter.Do(ctx, func() error {
		rgb := ToRGB(img)

		start = time.Now()
		var callErr error
		items, callErr = a.callEngine(ctx, rgb)
		recognitionDuration.Observe(time.Since(start).Seconds())
		if callErr != nil {
			recognitionFailures.Inc()
			return &EngineError{Err: callErr}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	dets, bad := NormalizeItems(items)
	for _, m := range bad {
		malformedDetections.Inc()
		a.logger.Warn("Dropping malformed detection", "index", m.Index, "reason", m.Reason)
	}

	a.logger.Debug("Recognition completed",
		"items", len(items),
		"detections", len(dets),
		"dropped", len(bad),
		"duration_ms", time.Since(start).Milliseconds())

	return dets, nil
}

// callEngine invokes the engine and turns a panic into an error.
func (a *Adapter) callEngine(ctx context.Context, img *image.NRGBA) (items []any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()
	return a.engine.Recognize(ctx, img)
}

// Close releases the engine.
func (a *Adapter) Close() error {
	if a == nil || a.engine == nil {
		return nil
	}
	return a.engine.Close()
}
