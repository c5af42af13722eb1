package raster

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrEncrypted is returned for password protected PDFs.
var ErrEncrypted = errors.New("pdf is encrypted")

// InvalidPDFError reports data that pdfcpu cannot read as a PDF. Its
// message describes the input, never local paths.
type InvalidPDFError struct {
	Err error
}

func (e *InvalidPDFError) Error() string {
	return "invalid pdf: " + e.Err.Error()
}

func (e *InvalidPDFError) Unwrap() error { return e.Err }

// PageCount parses and validates data as a PDF and returns its page count.
func PageCount(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, &InvalidPDFError{Err: errors.New("empty document")}
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		if isEncryptionError(err) {
			return 0, fmt.Errorf("%w: %v", ErrEncrypted, err)
		}
		return 0, &InvalidPDFError{Err: err}
	}
	return ctx.PageCount, nil
}

func isEncryptionError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "encrypted") ||
		strings.Contains(msg, "password") ||
		strings.Contains(msg, "decrypt")
}

// pageLimit returns how many pages to render for a document of total pages.
func pageLimit(total, maxPages int) int {
	if maxPages > 0 && total > maxPages {
		return maxPages
	}
	return total
}
