package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/ocrnlp/internal/config"
	"github.com/MeKo-Tech/ocrnlp/internal/extract"
	"github.com/MeKo-Tech/ocrnlp/internal/raster"
	"github.com/MeKo-Tech/ocrnlp/internal/recognition"
	"github.com/MeKo-Tech/ocrnlp/internal/recognition/httpengine"
	"github.com/MeKo-Tech/ocrnlp/internal/recognition/tesseract"
	"github.com/MeKo-Tech/ocrnlp/internal/workers"
)

// pipeline is the process-wide extraction stack. The engine is built once
// and shared by every request.
type pipeline struct {
	extractor  *extract.Extractor
	recognizer *recognition.Adapter
}

// Close releases the recognition engine.
func (p *pipeline) Close() error {
	return p.recognizer.Close()
}

// buildPipeline constructs engine, rasterizer and limiters from cfg. It
// fails when the engine cannot start, so a broken install is reported
// before serving anything.
func buildPipeline(cfg *config.Config, logger *slog.Logger) (*pipeline, error) {
	engine, err := buildEngine(cfg)
	if err != nil {
		return nil, fmt.Errorf("recognition engine %s: %w", cfg.Recognition.Engine, err)
	}

	backend, err := buildRasterizer(cfg)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("pdf backend %s: %w", cfg.PDF.Backend, err), engine.Close())
	}

	pages, err := raster.NewAdapter(backend, cfg.ToRasterConfig(), workers.NewLimiter(cfg.RasterWorkers()), logger)
	if err != nil {
		return nil, errors.Join(err, engine.Close())
	}

	recognizer := recognition.NewAdapter(engine, workers.NewLimiter(cfg.RecognitionWorkers()), logger)

	logger.Info("Extraction pipeline ready",
		"engine", cfg.Recognition.Engine,
		"pdf_backend", cfg.PDF.Backend,
		"max_pages", cfg.PDF.MaxPages,
		"dpi", cfg.PDF.DPI,
		"max_workers", cfg.Concurrency.MaxWorkers)

	return &pipeline{
		extractor:  extract.New(recognizer, pages, logger),
		recognizer: recognizer,
	}, nil
}

func buildEngine(cfg *config.Config) (recognition.Engine, error) {
	switch cfg.Recognition.Engine {
	case config.EngineHTTP:
		e, err := httpengine.New(httpengine.Config{
			Endpoint: cfg.Recognition.Endpoint,
			Timeout:  cfg.RecognitionTimeout(),
		})
		if err != nil {
			return nil, err
		}
		return e, nil
	case config.EngineTesseract:
		e, err := tesseract.New(tesseract.Config{
			Languages:      cfg.Recognition.Languages,
			TessdataPrefix: cfg.Recognition.ModelDir,
			Level:          cfg.Recognition.Level,
			PoolSize:       cfg.Concurrency.MaxWorkers,
		})
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Recognition.Engine)
	}
}

func buildRasterizer(cfg *config.Config) (raster.Rasterizer, error) {
	switch cfg.PDF.Backend {
	case config.BackendEmbedded:
		return raster.NewEmbedded(), nil
	case config.BackendPdftoppm:
		p := raster.NewPdftoppm(cfg.PDF.PdftoppmPath)
		if err := p.Available(); err != nil {
			return nil, fmt.Errorf("%w (install poppler-utils or set pdf.backend=%s)", err, config.BackendEmbedded)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.PDF.Backend)
	}
}
