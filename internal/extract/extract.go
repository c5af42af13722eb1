// Package extract runs a document through classification, rasterization and
// recognition and assembles the flat list of text blocks. It is the one
// place where lower-level failures become caller-facing error kinds.
package extract

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/ocrnlp/internal/document"
	"github.com/MeKo-Tech/ocrnlp/internal/raster"
	"github.com/MeKo-Tech/ocrnlp/internal/recognition"
)

// Recognizer finds text in one image.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) ([]recognition.Detection, error)
}

// PageSource renders a PDF into page images, already limited to the page
// budget.
type PageSource interface {
	Rasterize(ctx context.Context, data []byte) ([]raster.Page, error)
}

// Extractor is safe for concurrent use; it holds no per-request state.
type Extractor struct {
	recognizer Recognizer
	pages      PageSource
	logger     *slog.Logger
}

// New creates an extractor. A nil logger uses slog.Default().
func New(recognizer Recognizer, pages PageSource, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{recognizer: recognizer, pages: pages, logger: logger}
}

// Extract processes doc and returns every block found, pages in ascending
// order and engine order within a page. Finding no text is a success.
// Pipeline failures are returned as *Error.
func (e *Extractor) Extract(ctx context.Context, doc document.RawDocument) (*Result, error) {
	return e.Stream(ctx, doc, nil)
}

// Stream is Extract with a callback after each page. A non-nil error from
// onPage stops extraction and is returned unchanged.
func (e *Extractor) Stream(ctx context.Context, doc document.RawDocument, onPage func(PageResult) error) (*Result, error) {
	start := time.Now()
	kind := document.Classify(doc.ContentType, doc.Filename)
	logger := e.logger.With("type", kind.String(), "filename", doc.Filename, "bytes", len(doc.Data))

	res, err := e.run(ctx, doc, kind, onPage)

	extractDuration.WithLabelValues(kind.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		outcome := "aborted"
		if xerr, ok := AsError(err); ok {
			outcome = string(xerr.Kind)
			logFailure(logger, xerr)
		}
		extractRequests.WithLabelValues(kind.String(), outcome).Inc()
		return nil, err
	}

	extractRequests.WithLabelValues(kind.String(), "success").Inc()
	blocksPerRequest.Observe(float64(res.Count))
	logger.Info("Extraction completed",
		"blocks", res.Count,
		"pages", len(res.Pages()),
		"duration_ms", time.Since(start).Milliseconds())
	return res, nil
}

func (e *Extractor) run(ctx context.Context, doc document.RawDocument, kind document.Kind, onPage func(PageResult) error) (*Result, error) {
	if doc.Empty() {
		return nil, &Error{Kind: KindEmptyInput, Stage: StageClassify, Err: errors.New("zero-byte upload")}
	}

	switch kind {
	case document.KindPDF:
		return e.runPDF(ctx, doc.Data, onPage)
	default:
		return e.runImage(ctx, doc.Data, onPage)
	}
}

func (e *Extractor) runImage(ctx context.Context, data []byte, onPage func(PageResult) error) (*Result, error) {
	img, format, err := document.Decode(data)
	if err != nil {
		return nil, wrap(ctx, StageDecode, 0, err)
	}
	e.logger.Debug("Image decoded", "format", format, "width", img.Bounds().Dx(), "height", img.Bounds().Dy())

	blocks, err := e.recognizePage(ctx, img, 1, onPage)
	if err != nil {
		return nil, err
	}
	return newResult(blocks), nil
}

func (e *Extractor) runPDF(ctx context.Context, data []byte, onPage func(PageResult) error) (*Result, error) {
	if e.pages == nil {
		return nil, &Error{Kind: KindRasterization, Stage: StageRasterize, Err: errors.New("no rasterizer configured")}
	}
	pages, err := e.pages.Rasterize(ctx, data)
	if err != nil {
		return nil, wrap(ctx, StageRasterize, 0, err)
	}

	var blocks []Block
	for _, p := range pages {
		pageBlocks, err := e.recognizePage(ctx, p.Image, p.Number, onPage)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, pageBlocks...)
	}
	return newResult(blocks), nil
}

func (e *Extractor) recognizePage(ctx context.Context, img image.Image, page int, onPage func(PageResult) error) ([]Block, error) {
	if e.recognizer == nil {
		return nil, &Error{Kind: KindEngineFailure, Stage: StageRecognize, Page: page, Err: recognition.ErrEngineFailure}
	}
	dets, err := e.recognizer.Recognize(ctx, img)
	if err != nil {
		return nil, wrap(ctx, StageRecognize, page, err)
	}
	pagesProcessed.Inc()

	blocks := toBlocks(dets, page)
	if onPage != nil {
		if err := onPage(PageResult{Page: page, Blocks: blocks}); err != nil {
			return nil, err
		}
	}
	return blocks, nil
}

func logFailure(logger *slog.Logger, err *Error) {
	attrs := []any{"kind", err.Kind, "stage", err.Stage, "error", err.Error()}
	if err.Page > 0 {
		attrs = append(attrs, "page", err.Page)
	}
	if err.Kind.ClientFault() {
		logger.Warn("Extraction rejected", attrs...)
		return
	}
	logger.Error("Extraction failed", attrs...)
}
