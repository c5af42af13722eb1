package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/ocrnlp/internal/mcptool"
	"github.com/MeKo-Tech/ocrnlp/internal/version"
)

func newMCPCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the extraction tool over MCP on stdin/stdout",
		Long: `Run an MCP server on stdin/stdout exposing the ocr_extract tool.

The tool takes either a file path or base64 data and returns the same
blocks/count document as the HTTP endpoint. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := buildPipeline(a.config, a.logger)
			if err != nil {
				return fmt.Errorf("failed to initialize extraction pipeline: %w", err)
			}
			defer func() {
				if err := p.Close(); err != nil {
					a.logger.Error("Engine cleanup failed", "error", err)
				}
			}()

			srv := mcptool.NewServer(p.extractor, version.Version, mcptool.Options{
				MaxBytes: int64(a.config.Server.MaxUploadMB) << 20,
				Logger:   a.logger,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a.logger.Info("MCP server ready", "tool", mcptool.ToolName)
			return mcptool.ServeStdio(ctx, srv)
		},
	}
	addPipelineFlags(cmd)
	return cmd
}
