// Package canvas is the drawing layer shared by the notation renderers and the
// highlight overlay. Coordinates are pixels with y growing downward.
package canvas

import (
	"image/color"
)

// Surface is the primitive set every renderer draws with
type Surface interface {
	// Size returns the drawable width and height
	Size() (w, h float64)
	// Clear erases everything to transparent
	Clear()
	SetColor(c color.Color)
	SetLineWidth(w float64)
	Line(x1, y1, x2, y2 float64)
	Rect(x, y, w, h float64, fill bool)
	// Ellipse draws around (cx, cy), rotated by rotation radians
	Ellipse(cx, cy, rx, ry, rotation float64, fill bool)
	// Arc strokes a circular arc from a1 to a2 radians
	Arc(cx, cy, r, a1, a2 float64)
	// Text draws s with its anchor at (x, y). y is the baseline; ax and ay in
	// [0, 1] shift the text left and up by that share of its extent.
	Text(s string, x, y, size, ax, ay float64)
	// MeasureText returns the advance width of s at the given size
	MeasureText(s string, size float64) float64
}

// Palette used across layers
var (
	Black   = color.RGBA{0, 0, 0, 255}
	Ink     = color.RGBA{34, 34, 34, 255}
	Correct = color.RGBA{46, 160, 67, 255}
	Wrong   = color.RGBA{230, 150, 20, 255}
	Cursor  = color.RGBA{37, 99, 235, 255}
)
