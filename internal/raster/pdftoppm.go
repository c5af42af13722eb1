package raster

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// Pdftoppm renders pages with poppler's pdftoppm binary.
type Pdftoppm struct {
	// Path is the pdftoppm executable; empty means "pdftoppm" on $PATH.
	Path string
}

// NewPdftoppm returns a backend that runs the given binary.
func NewPdftoppm(path string) *Pdftoppm {
	return &Pdftoppm{Path: path}
}

func (p *Pdftoppm) binary() string {
	if p.Path == "" {
		return "pdftoppm"
	}
	return p.Path
}

// Available reports whether the binary can be found.
func (p *Pdftoppm) Available() error {
	if _, err := exec.LookPath(p.binary()); err != nil {
		return fmt.Errorf("pdftoppm not found: %w", err)
	}
	return nil
}

// Rasterize validates the PDF, then renders pages 1..min(pages, maxPages)
// as PNG into a temp dir and decodes them.
func (p *Pdftoppm) Rasterize(ctx context.Context, data []byte, dpi, maxPages int) ([]Page, error) {
	total, err := PageCount(data)
	if err != nil {
		return nil, err
	}
	last := pageLimit(total, maxPages)
	if last == 0 {
		return nil, nil
	}

	dir, err := os.MkdirTemp("", "ocrnlp-pdftoppm-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	input := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(input, data, 0o600); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}

	//nolint:gosec // G204: binary path comes from configuration
	cmd := exec.CommandContext(ctx, p.binary(),
		"-f", "1",
		"-l", strconv.Itoa(last),
		"-r", strconv.Itoa(dpi),
		"-png",
		input,
		filepath.Join(dir, "page"))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	pages, err := collectRenderedPages(dir)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no pages")
	}
	return pages, nil
}

// collectRenderedPages loads page-N.png files (N possibly zero padded)
// from dir, in page order.
func collectRenderedPages(dir string) ([]Page, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list rendered pages: %w", err)
	}

	var pages []Page
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		num, ok := parseRenderedName(entry.Name())
		if !ok {
			continue
		}
		img, err := imaging.Open(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("decode page %d: %w", num, err)
		}
		pages = append(pages, Page{Number: num, Image: img})
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	return pages, nil
}

func parseRenderedName(name string) (int, bool) {
	if !strings.HasPrefix(name, "page-") || !strings.HasSuffix(name, ".png") {
		return 0, false
	}
	num, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "page-"), ".png"))
	if err != nil || num < 1 {
		return 0, false
	}
	return num, true
}

var _ Rasterizer = (*Pdftoppm)(nil)
