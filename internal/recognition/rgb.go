package recognition

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// ToRGB returns an opaque copy of img in NRGBA layout with every alpha
// value at 255, so engines can treat it as a 3-channel RGB raster.
// Transparent and semi-transparent pixels are composited over white;
// grayscale, palette, CMYK and YCbCr sources are converted.
func ToRGB(img image.Image) *image.NRGBA {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return imaging.Clone(img)
	}
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

// IsOpaqueRGB reports whether every pixel of img has full alpha.
func IsOpaqueRGB(img *image.NRGBA) bool {
	if img == nil {
		return false
	}
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0xff {
			return false
		}
	}
	return true
}
