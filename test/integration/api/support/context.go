// Package support holds the godog step definitions for the HTTP API suite.
package support

import (
	"context"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"

	"github.com/MeKo-Tech/ocrnlp/internal/raster"
	"github.com/MeKo-Tech/ocrnlp/internal/recognition"
	"github.com/MeKo-Tech/ocrnlp/internal/server"
	"github.com/MeKo-Tech/ocrnlp/internal/testutil/fake"
	"github.com/MeKo-Tech/ocrnlp/internal/workers"
)

// TestContext holds the state of one scenario.
type TestContext struct {
	// Pipeline setup
	engine   recognition.Engine
	backend  raster.Rasterizer
	maxPages int
	limiter  *workers.Limiter
	config   server.Config
	cleanups []func()

	// Running service
	HTTPServer *httptest.Server

	// Last HTTP exchange
	LastStatusCode int
	LastHeaders    http.Header
	LastBody       []byte

	// Last WebSocket exchange
	WSMessages []map[string]any
}

// NewTestContext returns a context with an engine that finds nothing and a
// one page PDF backend.
func NewTestContext() *TestContext {
	return &TestContext{
		engine:  fake.Engine(),
		backend: fake.PDF(1),
		config:  server.DefaultConfig(),
	}
}

// Cleanup stops the service if one was started.
func (testCtx *TestContext) Cleanup() error {
	if testCtx.HTTPServer != nil {
		testCtx.HTTPServer.Close()
		testCtx.HTTPServer = nil
	}
	for _, fn := range testCtx.cleanups {
		fn()
	}
	testCtx.cleanups = nil
	return nil
}

// start builds the pipeline from the configured fakes and serves it.
func (testCtx *TestContext) start() error {
	if testCtx.HTTPServer != nil {
		return errors.New("service already running")
	}
	x, err := fake.Extractor(testCtx.engine, testCtx.backend, fake.Options{MaxPages: testCtx.maxPages, Limiter: testCtx.limiter})
	if err != nil {
		return err
	}
	srv, err := server.NewServer(testCtx.config, x, nil)
	if err != nil {
		return err
	}
	testCtx.HTTPServer = httptest.NewServer(srv.Handler())
	return nil
}

// scriptedEngine returns one detection per call with fixed text and, when
// conf is non-nil, a confidence.
func scriptedEngine(text string, conf *float64) recognition.Engine {
	return recognition.EngineFunc(func(_ context.Context, img *image.NRGBA) ([]any, error) {
		w, h := img.Bounds().Dx(), img.Bounds().Dy()
		box := fake.Quad(0, 0, w, h)
		if conf == nil {
			return []any{map[string]any{"box": box, "text": text}}, nil
		}
		return []any{[]any{box, text, *conf}}, nil
	})
}
