package testutil

import (
	"bytes"
	"image"
	"io"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/stretchr/testify/require"
)

// ImagePDF builds a PDF with one page per image, each page showing only
// that image, the way a scanner writes documents.
func ImagePDF(t testing.TB, pages ...image.Image) []byte {
	t.Helper()
	require.NotEmpty(t, pages, "ImagePDF needs at least one page")

	readers := make([]io.Reader, len(pages))
	for i, p := range pages {
		readers[i] = bytes.NewReader(EncodePNG(t, p))
	}

	var out bytes.Buffer
	err := api.ImportImages(nil, &out, readers, pdfcpu.DefaultImportConfig(), nil)
	require.NoError(t, err, "Failed to build PDF from images")
	return out.Bytes()
}

// TextPDF builds an image-only PDF with one page per text, each rendered
// with TextImage.
func TextPDF(t testing.TB, texts ...string) []byte {
	t.Helper()
	pages := make([]image.Image, len(texts))
	for i, text := range texts {
		pages[i] = TextImage(text)
	}
	return ImagePDF(t, pages...)
}
