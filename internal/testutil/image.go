package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ImageSize represents image dimensions.
type ImageSize struct {
	Width  int
	Height int
}

var (
	SmallSize  = ImageSize{320, 240}
	MediumSize = ImageSize{640, 480}
)

// TextImageConfig holds configuration for generating text images.
type TextImageConfig struct {
	Lines      []string
	Size       ImageSize
	Background color.Color
	Foreground color.Color
	// Scale enlarges the rendered 7x13 glyphs; recognition engines need
	// glyphs well above 13px to read them.
	Scale int
}

// DefaultTextImageConfig returns a default configuration for text images.
func DefaultTextImageConfig() TextImageConfig {
	return TextImageConfig{
		Lines:      []string{"Sample Text"},
		Size:       SmallSize,
		Background: color.White,
		Foreground: color.Black,
		Scale:      1,
	}
}

// GenerateTextImage renders the configured lines, centered, one per row.
func GenerateTextImage(cfg TextImageConfig) *image.NRGBA {
	face := basicfont.Face7x13
	img := image.NewNRGBA(image.Rect(0, 0, cfg.Size.Width, cfg.Size.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{cfg.Background}, image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{cfg.Foreground},
		Face: face,
	}

	lineHeight := face.Metrics().Height.Ceil() + 4
	startY := (cfg.Size.Height - len(cfg.Lines)*lineHeight) / 2
	for i, line := range cfg.Lines {
		width := font.MeasureString(face, line).Ceil()
		drawer.Dot = fixed.P((cfg.Size.Width-width)/2, startY+(i+1)*lineHeight)
		drawer.DrawString(line)
	}

	if cfg.Scale > 1 {
		return imaging.Resize(img, cfg.Size.Width*cfg.Scale, cfg.Size.Height*cfg.Scale, imaging.NearestNeighbor)
	}
	return img
}

// TextImage renders text, one line per "\n", at 4x scale on white.
func TextImage(text string) *image.NRGBA {
	cfg := DefaultTextImageConfig()
	cfg.Lines = strings.Split(text, "\n")
	cfg.Size = ImageSize{Width: 200, Height: 24 + 17*len(cfg.Lines)}
	cfg.Scale = 4
	return GenerateTextImage(cfg)
}

// SolidImage returns a w x h image filled with c.
func SolidImage(w, h int, c color.Color) *image.NRGBA {
	return imaging.New(w, h, c)
}

// EncodePNG encodes img as PNG.
func EncodePNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img), "Failed to encode PNG image")
	return buf.Bytes()
}

// EncodeJPEG encodes img as JPEG.
func EncodeJPEG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}), "Failed to encode JPEG image")
	return buf.Bytes()
}

// EncodeGIF encodes img as GIF.
func EncodeGIF(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, img, nil), "Failed to encode GIF image")
	return buf.Bytes()
}
