package httpengine

import (
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/ocrnlp/internal/recognition"
)

func testImage() *image.NRGBA {
	return image.NewNRGBA(image.Rect(0, 0, 12, 7))
}

func sidecar(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))

		img, err := png.Decode(r.Body)
		if assert.NoError(t, err) {
			assert.Equal(t, 12, img.Bounds().Dx())
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_ValidatesEndpoint(t *testing.T) {
	for _, endpoint := range []string{"", "localhost:9000", "ftp://host/ocr", "http://", "::bad"} {
		_, err := New(Config{Endpoint: endpoint})
		assert.Error(t, err, endpoint)
	}
	e, err := New(Config{Endpoint: "http://127.0.0.1:9000/ocr"})
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, e.client.Timeout)
}

func TestRecognize_Shapes(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		count int
	}{
		{name: "tuple array", body: `[[[[0,0],[4,0],[4,2],[0,2]],"TOTAL",0.0],[[[1,1],[2,1]],"12.50",0.91]]`, count: 2},
		{name: "wrapped object", body: `{"detections":[{"bbox":null,"text":"x","confidence":0.5}]}`, count: 1},
		{name: "empty array", body: `[]`, count: 0},
		{name: "null detections", body: `{"detections":null}`, count: 0},
		{name: "null", body: `null`, count: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := sidecar(t, http.StatusOK, tt.body)
			e, err := New(Config{Endpoint: srv.URL})
			require.NoError(t, err)
			defer func() { _ = e.Close() }()

			items, err := e.Recognize(context.Background(), testImage())
			require.NoError(t, err)
			assert.Len(t, items, tt.count)
		})
	}
}

func TestRecognize_ThroughAdapterKeepsZeroConfidence(t *testing.T) {
	srv := sidecar(t, http.StatusOK, `[[[[0,0],[4,0],[4,2],[0,2]],"TOTAL",0.0],[[[1,1]],"no conf"],["broken"]]`)
	e, err := New(Config{Endpoint: srv.URL})
	require.NoError(t, err)

	dets, err := recognition.NewAdapter(e, nil, nil).Recognize(context.Background(), testImage())
	require.NoError(t, err)
	require.Len(t, dets, 2)
	require.NotNil(t, dets[0].Confidence)
	assert.Equal(t, 0.0, *dets[0].Confidence)
	assert.Nil(t, dets[1].Confidence)
}

func TestRecognize_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "model not loaded", want: "returned 500: model not loaded"},
		{name: "bad json", status: http.StatusOK, body: `{not json`, want: "decode recognition response"},
		{name: "object without detections", status: http.StatusOK, body: `{"items":[]}`, want: "no detections array"},
		{name: "scalar", status: http.StatusOK, body: `42`, want: "unexpected recognition response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := sidecar(t, tt.status, tt.body)
			e, err := New(Config{Endpoint: srv.URL})
			require.NoError(t, err)

			_, err = e.Recognize(context.Background(), testImage())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRecognize_EngineErrorThroughAdapter(t *testing.T) {
	srv := sidecar(t, http.StatusServiceUnavailable, "busy")
	e, err := New(Config{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = recognition.NewAdapter(e, nil, nil).Recognize(context.Background(), testImage())
	assert.ErrorIs(t, err, recognition.ErrEngineFailure)
}

func TestRecognize_ContextCanceled(t *testing.T) {
	srv := sidecar(t, http.StatusOK, `[]`)
	e, err := New(Config{Endpoint: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Recognize(ctx, testImage())
	assert.ErrorIs(t, err, context.Canceled)
}
