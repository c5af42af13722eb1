package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MeKo-Tech/ocrnlp/internal/document"
	"github.com/MeKo-Tech/ocrnlp/internal/raster"
	"github.com/MeKo-Tech/ocrnlp/internal/recognition"
	"github.com/MeKo-Tech/ocrnlp/internal/workers"
)

// Kind is the caller-facing failure category.
type Kind string

const (
	KindEmptyInput        Kind = "empty_input"
	KindUnsupportedFormat Kind = "unsupported_format"
	KindRasterization     Kind = "rasterization_failed"
	KindEngineFailure     Kind = "engine_failure"
	KindOverloaded        Kind = "overloaded"
	KindCanceled          Kind = "canceled"
)

// ClientFault reports whether the failure was caused by the input.
func (k Kind) ClientFault() bool {
	switch k {
	case KindEmptyInput, KindUnsupportedFormat, KindRasterization:
		return true
	}
	return false
}

// Stage is the pipeline step a failure happened in.
type Stage string

const (
	StageClassify  Stage = "classify"
	StageDecode    Stage = "decode"
	StageRasterize Stage = "rasterize"
	StageRecognize Stage = "recognize"
)

// Error is the only error type Extract returns for pipeline failures.
// Error() carries the full chain for logs; Detail() is what a caller sees.
type Error struct {
	Kind  Kind
	Stage Stage
	Page  int // 0 when not page specific
	Err   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("extract: ")
	b.WriteString(string(e.Stage))
	if e.Page > 0 {
		fmt.Fprintf(&b, " page %d", e.Page)
	}
	fmt.Fprintf(&b, ": %s", e.Kind)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Detail returns a short description without engine internals.
func (e *Error) Detail() string {
	switch e.Kind {
	case KindEmptyInput:
		return "empty upload"
	case KindUnsupportedFormat:
		var decErr *document.DecodeError
		if errors.As(e.Err, &decErr) && decErr.Err != nil {
			return "unsupported or undecodable image: " + decErr.Err.Error()
		}
		return "unsupported or undecodable image"
	case KindRasterization:
		if errors.Is(e.Err, raster.ErrEncrypted) {
			return "could not rasterize PDF: document is encrypted"
		}
		var invalid *raster.InvalidPDFError
		if errors.As(e.Err, &invalid) {
			return "could not rasterize PDF: " + invalid.Error()
		}
		return "could not rasterize PDF"
	case KindEngineFailure:
		if e.Page > 0 {
			return fmt.Sprintf("text recognition failed on page %d", e.Page)
		}
		return "text recognition failed"
	case KindOverloaded:
		return "server is busy, retry later"
	case KindCanceled:
		if errors.Is(e.Err, context.DeadlineExceeded) && !errors.Is(e.Err, context.Canceled) {
			return "extraction timed out"
		}
		return "request canceled"
	}
	return "extraction failed"
}

// AsError returns the *Error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// wrap classifies err raised at stage and page. Only the caller's own
// context makes a failure KindCanceled; a deadline inside an engine or
// backend is a failure of that stage.
func wrap(ctx context.Context, stage Stage, page int, err error) *Error {
	kind := kindOf(ctx, stage, err)
	if kind == KindCanceled {
		if ctxErr := ctx.Err(); !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
	}
	return &Error{Kind: kind, Stage: stage, Page: page, Err: err}
}

func kindOf(ctx context.Context, stage Stage, err error) Kind {
	var decErr *document.DecodeError
	switch {
	case errors.Is(err, workers.ErrOverloaded):
		return KindOverloaded
	case ctx.Err() != nil:
		return KindCanceled
	case errors.Is(err, raster.ErrRasterization):
		return KindRasterization
	case errors.Is(err, recognition.ErrEngineFailure):
		return KindEngineFailure
	case errors.As(err, &decErr):
		return KindUnsupportedFormat
	}

	switch stage {
	case StageDecode:
		return KindUnsupportedFormat
	case StageRasterize:
		return KindRasterization
	default:
		return KindEngineFailure
	}
}
