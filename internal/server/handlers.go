package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MeKo-Tech/ocrnlp/internal/document"
	"github.com/MeKo-Tech/ocrnlp/internal/extract"
)

// uploadField is the multipart field carrying the document.
const uploadField = "file"

// healthHandler reports liveness. It never touches the engine.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{OK: true, Service: ServiceName})
}

// extractHandler accepts one multipart file and returns its text blocks.
func (s *Server) extractHandler(w http.ResponseWriter, r *http.Request) {
	limit := s.maxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		if isTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, kindTooLarge, "upload exceeds the size limit")
			return
		}
		writeError(w, http.StatusBadRequest, kindBadRequest, "expected a multipart/form-data body")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, `missing file field "`+uploadField+`"`)
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		if isTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, kindTooLarge, "upload exceeds the size limit")
			return
		}
		writeError(w, http.StatusBadRequest, kindBadRequest, "failed to read upload")
		return
	}
	uploadSizeBytes.Observe(float64(len(data)))

	doc := document.RawDocument{
		Data:        data,
		ContentType: header.Header.Get("Content-Type"),
		Filename:    header.Filename,
	}

	ctx, cancel := s.extractContext(r.Context())
	defer cancel()

	res, err := s.extractor.Extract(ctx, doc)
	if err != nil {
		s.writeExtractError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) extractContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(parent, s.timeout)
	}
	return context.WithCancel(parent)
}

// StatusFor maps an extraction failure kind to its HTTP status. Input
// faults are 4xx, engine faults 5xx.
func StatusFor(kind extract.Kind) int {
	switch kind {
	case extract.KindEmptyInput:
		return http.StatusBadRequest
	case extract.KindUnsupportedFormat, extract.KindRasterization:
		return http.StatusUnprocessableEntity
	case extract.KindOverloaded, extract.KindCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeExtractError logs the full error and replies with kind and detail only.
func (s *Server) writeExtractError(w http.ResponseWriter, r *http.Request, err error) {
	logger := s.logger.With("request_id", middleware.GetReqID(r.Context()), "path", r.URL.Path)

	xerr, ok := extract.AsError(err)
	if !ok {
		logger.Error("Unclassified extraction error", "error", err)
		writeError(w, http.StatusInternalServerError, kindInternal, "internal error")
		return
	}

	status := StatusFor(xerr.Kind)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.Log(r.Context(), level, "Extraction request failed",
		"status", status, "kind", xerr.Kind, "error", err)

	if xerr.Kind == extract.KindOverloaded {
		w.Header().Set("Retry-After", "1")
	}
	writeError(w, status, string(xerr.Kind), xerr.Detail())
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "request body too large") || strings.Contains(msg, "body too large")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, kind, detail string) {
	writeJSON(w, status, ErrorResponse{Kind: kind, Detail: detail})
}
