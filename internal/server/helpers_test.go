package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/ocrnlp/internal/document"
	"github.com/MeKo-Tech/ocrnlp/internal/extract"
)

// stubExtractor returns a fixed result or error.
type stubExtractor struct {
	res *extract.Result
	err error
	got document.RawDocument
}

func (s *stubExtractor) Extract(ctx context.Context, doc document.RawDocument) (*extract.Result, error) {
	return s.Stream(ctx, doc, nil)
}

func (s *stubExtractor) Stream(_ context.Context, doc document.RawDocument, _ func(extract.PageResult) error) (*extract.Result, error) {
	s.got = doc
	if s.err != nil {
		return nil, s.err
	}
	return s.res, nil
}

func newTestServer(t *testing.T, x Extractor, mutate ...func(*Config)) *Server {
	t.Helper()
	cfg := DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	s, err := NewServer(cfg, x, nil)
	require.NoError(t, err)
	return s
}

// uploadRequest builds a multipart POST /ocr/extract with one part.
func uploadRequest(t *testing.T, field, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/ocr/extract", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, body io.Reader) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.NewDecoder(body).Decode(&e))
	return e
}
