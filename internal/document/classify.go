package document

import "strings"

// Kind is the processing path chosen for a document.
type Kind int

const (
	// KindImage is a single raster image, processed as page 1.
	KindImage Kind = iota
	// KindPDF is a (possibly multi-page) PDF that is rasterized first.
	KindPDF
)

// String returns the lowercase name of the kind, used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindImage:
		return "image"
	}
	return "unknown"
}

// Classify decides between PDF and image from the declared media type and
// the filename. A document is a PDF when the media type contains "pdf" or
// the filename ends in ".pdf", both compared case-insensitively; everything
// else, including empty hints, is an image.
//
// This is a heuristic over client-supplied hints, not a sniff of the bytes.
// A mislabeled upload takes the wrong path and its decode or rasterization
// failure is what the caller sees.
func Classify(contentType, filename string) Kind {
	if strings.Contains(strings.ToLower(contentType), "pdf") {
		return KindPDF
	}
	if strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		return KindPDF
	}
	return KindImage
}
