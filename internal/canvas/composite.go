package canvas

import (
	"image"
	"image/color"
	"image/png"
	"io"

	"golang.org/x/image/draw"
)

// Composite flattens layers bottom-up onto an opaque white background
func Composite(layers ...*Image) *image.RGBA {
	w, h := 0, 0
	for _, l := range layers {
		if l == nil {
			continue
		}
		w, h = max(w, l.w), max(h, l.h)
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	for _, l := range layers {
		if l == nil {
			continue
		}
		src := l.Image()
		draw.Draw(dst, src.Bounds(), src, src.Bounds().Min, draw.Over)
	}
	return dst
}

// WritePNG composites the layers and encodes the result
func WritePNG(w io.Writer, layers ...*Image) error {
	return png.Encode(w, Composite(layers...))
}
