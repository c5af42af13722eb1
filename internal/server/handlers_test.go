package server

import (
	"encoding/json"
	"errors"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/ocrnlp/internal/extract"
	"github.com/MeKo-Tech/ocrnlp/internal/testutil"
	"github.com/MeKo-Tech/ocrnlp/internal/testutil/fake"
	"github.com/MeKo-Tech/ocrnlp/internal/workers"
)

func pngBytes(t *testing.T) []byte {
	return testutil.EncodePNG(t, testutil.SolidImage(40, 20, color.White))
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t, &stubExtractor{})

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"ok":true,"service":"ocr-nlp"}`, rec.Body.String())
}

func TestHealthHandler_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t, &stubExtractor{})

	rec := serve(s, httptest.NewRequest(http.MethodPost, "/health", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, kindBadMethod, decodeError(t, rec.Body).Kind)
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t, &stubExtractor{})

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, kindNotFound, decodeError(t, rec.Body).Kind)
}

func TestExtractHandler_Image(t *testing.T) {
	x := fake.NewExtractor(t, fake.Engine(
		[]any{fake.Quad(0, 0, 10, 5), "Hello", 0.0},
		[]any{fake.Quad(0, 10, 10, 5), "World"},
	), fake.PDF(1), fake.Options{})
	s := newTestServer(t, x)

	rec := serve(s, uploadRequest(t, "file", "scan.png", "image/png", pngBytes(t)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Blocks []map[string]any `json:"blocks"`
		Count  int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 2, body.Count)
	require.Len(t, body.Blocks, 2)

	assert.Equal(t, "Hello", body.Blocks[0]["text"])
	conf, present := body.Blocks[0]["confidence"]
	require.True(t, present)
	assert.Equal(t, 0.0, conf, "zero confidence must survive as a number")
	assert.Nil(t, body.Blocks[1]["confidence"])
	assert.EqualValues(t, 1, body.Blocks[1]["page"])
	assert.Len(t, body.Blocks[0]["bbox"], 4)
}

func TestExtractHandler_NoTextIsEmptyList(t *testing.T) {
	x := fake.NewExtractor(t, fake.Engine(), fake.PDF(1), fake.Options{})
	s := newTestServer(t, x)

	rec := serve(s, uploadRequest(t, "file", "blank.png", "image/png", pngBytes(t)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"blocks":[],"count":0}`, rec.Body.String())
}

func TestExtractHandler_PDFPageBudget(t *testing.T) {
	x := fake.NewExtractor(t, fake.WidthEngine(), fake.PDF(3), fake.Options{MaxPages: 2})
	s := newTestServer(t, x)

	rec := serve(s, uploadRequest(t, "file", "doc.pdf", "application/pdf", []byte("%PDF-1.7 stub")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res extract.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, 2, res.Count)
	assert.Equal(t, []int{1, 2}, res.Pages())
	assert.Equal(t, "w10", res.Blocks[0].Text)
	assert.Equal(t, "w20", res.Blocks[1].Text)
}

func TestExtractHandler_PassesHints(t *testing.T) {
	stub := &stubExtractor{res: &extract.Result{Blocks: []extract.Block{}}}
	s := newTestServer(t, stub)

	rec := serve(s, uploadRequest(t, "file", "report.PDF", "application/octet-stream", []byte("abc")))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "report.PDF", stub.got.Filename)
	assert.Equal(t, "application/octet-stream", stub.got.ContentType)
	assert.Equal(t, []byte("abc"), stub.got.Data)
}

func TestExtractHandler_Errors(t *testing.T) {
	engineErr := errors.New("cuda: device lost at 0xdeadbeef")

	tests := []struct {
		name        string
		extractor   Extractor
		filename    string
		contentType string
		data        []byte
		wantStatus  int
		wantKind    string
	}{
		{
			name:       "empty upload",
			extractor:  fake.NewExtractor(t, fake.Engine(), fake.PDF(1), fake.Options{}),
			filename:   "empty.png",
			data:       []byte{},
			wantStatus: http.StatusBadRequest,
			wantKind:   string(extract.KindEmptyInput),
		},
		{
			name:        "text file",
			extractor:   fake.NewExtractor(t, fake.Engine(), fake.PDF(1), fake.Options{}),
			filename:    "notes.txt",
			contentType: "text/plain",
			data:        []byte("just some text"),
			wantStatus:  http.StatusUnprocessableEntity,
			wantKind:    string(extract.KindUnsupportedFormat),
		},
		{
			name:        "broken pdf",
			extractor:   fake.NewExtractor(t, fake.Engine(), fake.FailingPDF(errors.New("syntax error")), fake.Options{}),
			filename:    "broken.pdf",
			contentType: "application/pdf",
			data:        []byte("%PDF-broken"),
			wantStatus:  http.StatusUnprocessableEntity,
			wantKind:    string(extract.KindRasterization),
		},
		{
			name:        "engine failure",
			extractor:   fake.NewExtractor(t, fake.FailingEngine(engineErr), fake.PDF(1), fake.Options{}),
			filename:    "scan.png",
			contentType: "image/png",
			data:        pngBytes(t),
			wantStatus:  http.StatusInternalServerError,
			wantKind:    string(extract.KindEngineFailure),
		},
		{
			name: "overloaded",
			extractor: &stubExtractor{err: &extract.Error{
				Kind: extract.KindOverloaded, Stage: extract.StageRecognize, Page: 1, Err: workers.ErrOverloaded,
			}},
			filename:   "scan.png",
			data:       []byte("x"),
			wantStatus: http.StatusServiceUnavailable,
			wantKind:   string(extract.KindOverloaded),
		},
		{
			name:       "unclassified error",
			extractor:  &stubExtractor{err: errors.New("boom")},
			filename:   "scan.png",
			data:       []byte("x"),
			wantStatus: http.StatusInternalServerError,
			wantKind:   kindInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.extractor)

			rec := serve(s, uploadRequest(t, "file", tt.filename, tt.contentType, tt.data))

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			e := decodeError(t, rec.Body)
			assert.Equal(t, tt.wantKind, e.Kind)
			assert.NotEmpty(t, e.Detail)
			assert.NotContains(t, e.Detail, "deadbeef")
		})
	}
}

func TestExtractHandler_OverloadedSetsRetryAfter(t *testing.T) {
	s := newTestServer(t, &stubExtractor{err: &extract.Error{Kind: extract.KindOverloaded, Stage: extract.StageRecognize, Err: workers.ErrOverloaded}})

	rec := serve(s, uploadRequest(t, "file", "a.png", "image/png", []byte("x")))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestExtractHandler_BadRequests(t *testing.T) {
	s := newTestServer(t, &stubExtractor{res: &extract.Result{Blocks: []extract.Block{}}})

	t.Run("wrong field name", func(t *testing.T) {
		rec := serve(s, uploadRequest(t, "upload", "a.png", "image/png", []byte("x")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, kindBadRequest, decodeError(t, rec.Body).Kind)
	})

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/ocr/extract", strings.NewReader(`{"file":"x"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := serve(s, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, kindBadRequest, decodeError(t, rec.Body).Kind)
	})

	t.Run("get not allowed", func(t *testing.T) {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/ocr/extract", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestExtractHandler_TooLarge(t *testing.T) {
	s := newTestServer(t, &stubExtractor{res: &extract.Result{Blocks: []extract.Block{}}}, func(c *Config) {
		c.MaxUploadMB = 1
	})

	big := make([]byte, 2*1024*1024)
	rec := serve(s, uploadRequest(t, "file", "big.png", "image/png", big))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, kindTooLarge, decodeError(t, rec.Body).Kind)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind extract.Kind
		want int
	}{
		{extract.KindEmptyInput, http.StatusBadRequest},
		{extract.KindUnsupportedFormat, http.StatusUnprocessableEntity},
		{extract.KindRasterization, http.StatusUnprocessableEntity},
		{extract.KindEngineFailure, http.StatusInternalServerError},
		{extract.KindOverloaded, http.StatusServiceUnavailable},
		{extract.KindCanceled, http.StatusServiceUnavailable},
		{extract.Kind("something_new"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.kind))
		})
	}
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(DefaultConfig(), nil, nil)
	require.Error(t, err)

	cfg := DefaultConfig()
	cfg.MaxUploadMB = 0
	_, err = NewServer(cfg, &stubExtractor{}, nil)
	require.Error(t, err)
}
