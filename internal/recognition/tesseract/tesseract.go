// Package tesseract is a recognition engine backed by libtesseract through
// gosseract. It needs cgo and the tesseract/leptonica shared libraries.
package tesseract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// Iterator levels accepted by Config.Level.
const (
	LevelWord      = "word"
	LevelLine      = "line"
	LevelParagraph = "paragraph"
	LevelBlock     = "block"
)

// Config configures the tesseract engine.
type Config struct {
	Languages      []string // tesseract language codes, e.g. "eng", "deu"
	TessdataPrefix string   // directory holding *.traineddata; empty uses the system default
	Level          string   // granularity of the returned regions
	PoolSize       int      // number of clients (0 = runtime.NumCPU())
}

// DefaultConfig returns English line-level recognition sized to the host.
func DefaultConfig() Config {
	return Config{
		Languages: []string{"eng"},
		Level:     LevelLine,
		PoolSize:  runtime.NumCPU(),
	}
}

// ParseLevel maps a level name to the tesseract iterator level.
func ParseLevel(name string) (gosseract.PageIteratorLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case LevelWord:
		return gosseract.RIL_WORD, nil
	case LevelLine, "":
		return gosseract.RIL_TEXTLINE, nil
	case LevelParagraph:
		return gosseract.RIL_PARA, nil
	case LevelBlock:
		return gosseract.RIL_BLOCK, nil
	default:
		return 0, fmt.Errorf("unknown recognition level %q (want word, line, paragraph or block)", name)
	}
}

// Engine runs recognition on a fixed pool of gosseract clients. A client is
// not safe for concurrent use, so each call borrows one exclusively.
type Engine struct {
	level gosseract.PageIteratorLevel
	pool  chan *gosseract.Client
	all   []*gosseract.Client

	closed atomic.Bool
	once   sync.Once
}

// New creates the client pool and runs a warmup recognition, so missing
// language data or a broken tesseract install fails here rather than on
// the first request.
func New(cfg Config) (*Engine, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"eng"}
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = runtime.NumCPU()
	}

	e := &Engine{
		level: level,
		pool:  make(chan *gosseract.Client, cfg.PoolSize),
	}
	for i := 0; i < cfg.PoolSize; i++ {
		c, err := newClient(cfg)
		if err != nil {
			_ = e.Close()
			return nil, err
		}
		e.all = append(e.all, c)
		e.pool <- c
	}

	if err := e.warmup(); err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("tesseract warmup (languages %v): %w", cfg.Languages, err)
	}
	return e, nil
}

func newClient(cfg Config) (*gosseract.Client, error) {
	c := gosseract.NewClient()
	if cfg.TessdataPrefix != "" {
		if err := c.SetTessdataPrefix(cfg.TessdataPrefix); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := c.SetLanguage(cfg.Languages...); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("set languages: %w", err)
	}
	return c, nil
}

func (e *Engine) warmup() error {
	blank, err := encode(imaging.New(32, 32, color.White))
	if err != nil {
		return err
	}
	for _, c := range e.all {
		if err := c.SetImageFromBytes(blank); err != nil {
			return err
		}
		if _, err := c.Text(); err != nil {
			return err
		}
	}
	return nil
}

// Recognize returns one item per region at the configured level, as
// {"bbox": [[x,y]...4], "text": string, "confidence": 0..1}.
func (e *Engine) Recognize(ctx context.Context, img *image.NRGBA) ([]any, error) {
	if e.closed.Load() {
		return nil, errors.New("tesseract engine closed")
	}
	var c *gosseract.Client
	select {
	case c = <-e.pool:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { e.pool <- c }()

	data, err := encode(img)
	if err != nil {
		return nil, err
	}
	if err := c.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	boxes, err := c.GetBoundingBoxes(e.level)
	if err != nil {
		return nil, fmt.Errorf("get bounding boxes: %w", err)
	}

	items := make([]any, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		items = append(items, map[string]any{
			"bbox":       rectPolygon(b.Box),
			"text":       text,
			"confidence": b.Confidence / 100.0,
		})
	}
	return items, nil
}

// Close releases every client. It is safe to call more than once.
func (e *Engine) Close() error {
	var errs []error
	e.once.Do(func() {
		e.closed.Store(true)
		for _, c := range e.all {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// rectPolygon returns the rectangle corners clockwise from top-left.
func rectPolygon(r image.Rectangle) [][]int {
	return [][]int{
		{r.Min.X, r.Min.Y},
		{r.Max.X, r.Min.Y},
		{r.Max.X, r.Max.Y},
		{r.Min.X, r.Max.Y},
	}
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode page: %w", err)
	}
	return buf.Bytes(), nil
}
