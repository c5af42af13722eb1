package raster

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Embedded pulls the image XObjects out of each page instead of rendering
// it. It needs no external binary and suits scanner output, where every
// page is one full-page image. The dpi argument is ignored: images keep
// their native resolution. Pages without an image are omitted.
type Embedded struct{}

// NewEmbedded returns the embedded-image backend.
func NewEmbedded() *Embedded { return &Embedded{} }

// Rasterize extracts the largest embedded image of pages 1..min(pages, maxPages).
func (Embedded) Rasterize(ctx context.Context, data []byte, _ int, maxPages int) ([]Page, error) {
	total, err := PageCount(data)
	if err != nil {
		return nil, err
	}
	last := pageLimit(total, maxPages)
	if last == 0 {
		return nil, nil
	}

	dir, err := os.MkdirTemp("", "ocrnlp-embedded-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	// pdfcpu names extracted files <input base>_<page>_<image>.<ext>, so
	// naming the input "page.pdf" yields page_<n>_... files.
	input := filepath.Join(dir, "page.pdf")
	if err := os.WriteFile(input, data, 0o600); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	outDir := filepath.Join(dir, "images")
	if err := os.Mkdir(outDir, 0o700); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	selection := []string{fmt.Sprintf("1-%d", last)}
	if err := api.ExtractImagesFile(input, outDir, selection, nil); err != nil {
		return nil, fmt.Errorf("extract images: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	byPage, err := collectExtractedImages(outDir)
	if err != nil {
		return nil, err
	}

	pages := make([]Page, 0, len(byPage))
	for num, imgs := range byPage {
		if num < 1 || num > last {
			continue
		}
		pages = append(pages, Page{Number: num, Image: largest(imgs)})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	return pages, nil
}

// collectExtractedImages groups the images in dir by page number.
// Unparseable names and undecodable files are skipped.
func collectExtractedImages(dir string) (map[int][]image.Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list extracted images: %w", err)
	}

	result := make(map[int][]image.Image)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		num, err := parsePageFromFilename(entry.Name())
		if err != nil {
			continue
		}
		img, err := imaging.Open(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		result[num] = append(result[num], img)
	}
	return result, nil
}

// parsePageFromFilename extracts the page number from page_<n>_<image>.<ext>.
func parsePageFromFilename(filename string) (int, error) {
	if !strings.HasPrefix(filename, "page_") {
		return 0, errors.New("not a page file")
	}
	parts := strings.Split(filename, "_")
	if len(parts) < 3 {
		return 0, errors.New("invalid filename format")
	}
	num, err := strconv.Atoi(parts[1])
	if err != nil || num < 1 {
		return 0, errors.New("invalid page number")
	}
	return num, nil
}

func largest(imgs []image.Image) image.Image {
	var best image.Image
	bestArea := -1
	for _, img := range imgs {
		b := img.Bounds()
		if area := b.Dx() * b.Dy(); area > bestArea {
			best, bestArea = img, area
		}
	}
	return best
}

var _ Rasterizer = Embedded{}
