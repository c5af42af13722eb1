// Package httpengine is a recognition engine that delegates to an HTTP
// sidecar (for example an EasyOCR or PaddleOCR server). The page is POSTed
// as PNG; the reply is a JSON array of detections, or an object with a
// "detections" array, in any shape the recognition package understands.
package httpengine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

const maxErrorBody = 512

// Config configures the sidecar client.
type Config struct {
	Endpoint string
	Timeout  time.Duration
	// Client overrides the HTTP client; Timeout is ignored when set.
	Client *http.Client
}

// Engine posts pages to Config.Endpoint.
type Engine struct {
	endpoint string
	client   *http.Client
}

// New validates the endpoint and builds the engine.
func New(cfg Config) (*Engine, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid recognition endpoint: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid recognition endpoint %q: want an http(s) URL", cfg.Endpoint)
	}

	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Engine{endpoint: u.String(), client: client}, nil
}

// Recognize sends img and returns the decoded items unchanged. Numbers are
// kept as json.Number.
func (e *Engine) Recognize(ctx context.Context, img *image.NRGBA) ([]any, error) {
	var body bytes.Buffer
	if err := imaging.Encode(&body, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode page: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("recognition request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("recognition service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode recognition response: %w", err)
	}
	return unwrapItems(payload)
}

func unwrapItems(payload any) ([]any, error) {
	switch p := payload.(type) {
	case []any:
		return p, nil
	case map[string]any:
		if items, ok := p["detections"].([]any); ok {
			return items, nil
		}
		if v, ok := p["detections"]; ok && v == nil {
			return []any{}, nil
		}
		return nil, errors.New("recognition response object has no detections array")
	case nil:
		return []any{}, nil
	default:
		return nil, fmt.Errorf("unexpected recognition response of type %T", payload)
	}
}

// Close drops idle connections.
func (e *Engine) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
