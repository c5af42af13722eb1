package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/ocrnlp/internal/server"
)

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP extraction service",
		Long: `Start an HTTP server exposing text extraction.

Endpoints:
  GET  /health       liveness probe
  POST /ocr/extract  multipart upload, field "file" (image or PDF)
  GET  /ws/extract   WebSocket, streams results page by page
  GET  /metrics      Prometheus metrics

Examples:
  ocrnlp serve
  ocrnlp serve --port 9000 --max-pages 10
  ocrnlp serve --pdf-backend embedded --rate-limit-enabled`,
		Annotations: map[string]string{logStdoutAnnotation: ""},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd)
		},
	}

	f := cmd.Flags()
	f.StringP("host", "H", "0.0.0.0", "server host")
	f.IntP("port", "p", 8000, "server port")
	f.String("cors-origin", "*", "CORS allowed origin")
	f.Int("max-upload-size", 50, "maximum upload size in MB")
	f.Int("timeout", 120, "per-request extraction timeout in seconds (0 = none)")
	f.Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	f.Bool("rate-limit-enabled", false, "enable per-client rate limiting")
	f.Int("requests-per-minute", 60, "maximum requests per minute per client")
	f.Int("requests-per-hour", 1000, "maximum requests per hour per client")
	f.Int("max-requests-per-day", 0, "daily request quota per client (0 = none)")
	f.Int("max-data-per-day", 0, "daily upload quota per client in MB (0 = none)")

	bindFlag(f, "host", "server.host")
	bindFlag(f, "port", "server.port")
	bindFlag(f, "cors-origin", "server.cors_origin")
	bindFlag(f, "max-upload-size", "server.max_upload_mb")
	bindFlag(f, "timeout", "server.timeout_sec")
	bindFlag(f, "shutdown-timeout", "server.shutdown_timeout")
	bindFlag(f, "rate-limit-enabled", "server.rate_limit_enabled")
	bindFlag(f, "requests-per-minute", "server.requests_per_minute")
	bindFlag(f, "requests-per-hour", "server.requests_per_hour")
	bindFlag(f, "max-requests-per-day", "server.max_requests_per_day")
	bindFlag(f, "max-data-per-day", "server.max_data_per_day_mb")

	addPipelineFlags(cmd)
	return cmd
}

func (a *app) runServe(cmd *cobra.Command) error {
	cfg := a.config

	p, err := buildPipeline(cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize extraction pipeline: %w", err)
	}
	defer func() {
		if err := p.Close(); err != nil {
			a.logger.Error("Engine cleanup failed", "error", err)
		}
	}()

	srv, err := server.NewServer(cfg.ToServerConfig(), p.extractor, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.ListenAndServe(ctx, cfg.Server.Host, cfg.Server.Port, cfg.ShutdownTimeout())
}

// addPipelineFlags adds the engine and PDF flags shared by every command
// that builds an extraction pipeline.
func addPipelineFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("max-pages", 5, "maximum PDF pages to process")
	f.Int("dpi", 220, "PDF rasterization resolution")
	f.String("pdf-backend", "pdftoppm", "PDF backend: pdftoppm or embedded")
	f.String("engine", "tesseract", "recognition engine: tesseract or http")
	f.StringSlice("languages", []string{"eng"}, "tesseract languages (comma separated)")
	f.String("model-dir", "", "directory with recognition model data (tessdata)")
	f.String("level", "line", "block granularity: word, line, paragraph or block")
	f.String("endpoint", "", "recognition sidecar URL for the http engine")
	f.Int("workers", 0, "concurrent recognition calls (default: number of CPUs)")

	bindFlag(f, "max-pages", "pdf.max_pages")
	bindFlag(f, "dpi", "pdf.dpi")
	bindFlag(f, "pdf-backend", "pdf.backend")
	bindFlag(f, "engine", "recognition.engine")
	bindFlag(f, "languages", "recognition.languages")
	bindFlag(f, "model-dir", "recognition.model_dir")
	bindFlag(f, "level", "recognition.level")
	bindFlag(f, "endpoint", "recognition.endpoint")
	bindFlag(f, "workers", "concurrency.max_workers")
}
