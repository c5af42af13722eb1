package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/ocrnlp/internal/document"
	"github.com/MeKo-Tech/ocrnlp/internal/extract"
)

const (
	outputFormatJSON = "json"
	outputFormatYAML = "yaml"
	outputFormatText = "text"
)

// fileResult is one entry of a multi-file run.
type fileResult struct {
	File   string          `json:"file" yaml:"file"`
	Blocks []extract.Block `json:"blocks,omitempty" yaml:"blocks,omitempty"`
	Count  int             `json:"count" yaml:"count"`
	Error  string          `json:"error,omitempty" yaml:"error,omitempty"`
}

type extractOptions struct {
	format      string
	output      string
	filename    string
	contentType string
}

func newExtractCommand(a *app) *cobra.Command {
	opts := &extractOptions{}
	cmd := &cobra.Command{
		Use:   "extract FILE...",
		Short: "Extract text blocks from image or PDF files",
		Long: `Run text extraction on one or more files and print the blocks.

Use "-" to read a document from stdin; --filename and --content-type then
tell PDFs apart from images.

Examples:
  ocrnlp extract scan.png
  ocrnlp extract invoice.pdf --max-pages 2 --format yaml
  cat page.jpg | ocrnlp extract - --content-type image/jpeg --format text`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runExtract(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.format, "format", "f", outputFormatJSON, "output format: json, yaml or text")
	f.StringVarP(&opts.output, "output", "o", "", "write results to this file instead of stdout")
	f.StringVar(&opts.filename, "filename", "", "file name hint for stdin input")
	f.StringVar(&opts.contentType, "content-type", "", "MIME type hint for stdin input")

	addPipelineFlags(cmd)
	return cmd
}

func (a *app) runExtract(cmd *cobra.Command, args []string, opts *extractOptions) error {
	switch opts.format {
	case outputFormatJSON, outputFormatYAML, outputFormatText:
	default:
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", opts.format,
			strings.Join([]string{outputFormatJSON, outputFormatYAML, outputFormatText}, ", "))
	}

	p, err := buildPipeline(a.config, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize extraction pipeline: %w", err)
	}
	defer func() {
		if err := p.Close(); err != nil {
			a.logger.Error("Engine cleanup failed", "error", err)
		}
	}()

	results := make([]fileResult, 0, len(args))
	var failed int
	for _, path := range args {
		doc, err := readDocument(cmd.InOrStdin(), path, opts)
		if err == nil {
			var res *extract.Result
			res, err = p.extractor.Extract(cmd.Context(), doc)
			if err == nil {
				results = append(results, fileResult{File: path, Blocks: res.Blocks, Count: res.Count})
				continue
			}
		}
		failed++
		a.logger.Error("Extraction failed", "file", path, "error", err)
		results = append(results, fileResult{File: path, Error: errorDetail(err)})
	}

	out := cmd.OutOrStdout()
	if opts.output != "" {
		fh, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() { _ = fh.Close() }()
		out = fh
	}

	if err := writeResults(out, opts.format, results); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(args))
	}
	return nil
}

func readDocument(stdin io.Reader, path string, opts *extractOptions) (document.RawDocument, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return document.RawDocument{}, fmt.Errorf("reading stdin: %w", err)
		}
		return document.RawDocument{Data: data, Filename: opts.filename, ContentType: opts.contentType}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return document.RawDocument{}, err
	}
	return document.RawDocument{Data: data, Filename: filepath.Base(path), ContentType: opts.contentType}, nil
}

// errorDetail renders pipeline failures as "kind: detail".
func errorDetail(err error) string {
	if xerr, ok := extract.AsError(err); ok {
		return string(xerr.Kind) + ": " + xerr.Detail()
	}
	return err.Error()
}

// writeResults prints a lone successful result in the same shape as the
// HTTP response and a list of per-file entries otherwise.
func writeResults(w io.Writer, format string, results []fileResult) error {
	var payload any = results
	if len(results) == 1 && results[0].Error == "" {
		blocks := results[0].Blocks
		if blocks == nil {
			blocks = []extract.Block{}
		}
		payload = extract.Result{Blocks: blocks, Count: results[0].Count}
	}

	switch format {
	case outputFormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(payload); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case outputFormatText:
		return writeText(w, results)
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}
}

func writeText(w io.Writer, results []fileResult) error {
	var errs []error
	printf := func(format string, args ...any) {
		if _, err := fmt.Fprintf(w, format, args...); err != nil {
			errs = append(errs, err)
		}
	}
	for i, r := range results {
		if len(results) > 1 {
			if i > 0 {
				printf("\n")
			}
			printf("== %s\n", r.File)
		}
		if r.Error != "" {
			printf("error: %s\n", r.Error)
			continue
		}
		for _, b := range r.Blocks {
			conf := "-"
			if b.Confidence != nil {
				conf = fmt.Sprintf("%.3f", *b.Confidence)
			}
			printf("[page %d] %s (conf %s)\n", b.Page, b.Text, conf)
		}
		printf("%d blocks\n", r.Count)
	}
	return errors.Join(errs...)
}
