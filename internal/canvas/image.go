package canvas

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"sync"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/goregular"
)

var fontSource = sync.OnceValues(func() (*text.FontSource, error) {
	return text.NewFontSource(goregular.TTF)
})

// Image is a raster Surface backed by a gg context
type Image struct {
	ctx   *gg.Context
	w, h  int
	faces map[float64]text.Face
	src   *text.FontSource
}

// NewImage allocates a transparent raster surface
func NewImage(w, h int) (*Image, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid canvas size %dx%d", w, h)
	}
	src, err := fontSource()
	if err != nil {
		return nil, fmt.Errorf("failed to load label font: %w", err)
	}
	return &Image{
		ctx:   gg.NewContext(w, h),
		w:     w,
		h:     h,
		faces: make(map[float64]text.Face),
		src:   src,
	}, nil
}

func (i *Image) Size() (float64, float64) {
	return float64(i.w), float64(i.h)
}

func (i *Image) Clear() {
	i.ctx.Clear()
}

func (i *Image) SetColor(c color.Color) {
	i.ctx.SetColor(c)
}

func (i *Image) SetLineWidth(w float64) {
	i.ctx.SetLineWidth(w)
}

func (i *Image) Line(x1, y1, x2, y2 float64) {
	i.ctx.DrawLine(x1, y1, x2, y2)
	_ = i.ctx.Stroke()
}

func (i *Image) Rect(x, y, w, h float64, fill bool) {
	i.ctx.DrawRectangle(x, y, w, h)
	i.paint(fill)
}

func (i *Image) Ellipse(cx, cy, rx, ry, rotation float64, fill bool) {
	i.ctx.Push()
	defer i.ctx.Pop()
	if rotation != 0 {
		i.ctx.RotateAbout(rotation, cx, cy)
	}
	i.ctx.DrawEllipse(cx, cy, rx, ry)
	i.paint(fill)
}

func (i *Image) Arc(cx, cy, r, a1, a2 float64) {
	i.ctx.NewSubPath()
	i.ctx.DrawArc(cx, cy, r, a1, a2)
	_ = i.ctx.Stroke()
}

func (i *Image) Text(s string, x, y, size, ax, ay float64) {
	i.ctx.SetFont(i.face(size))
	i.ctx.DrawStringAnchored(s, x, y, ax, ay)
}

func (i *Image) MeasureText(s string, size float64) float64 {
	w, _ := text.Measure(s, i.face(size))
	return w
}

func (i *Image) paint(fill bool) {
	if fill {
		_ = i.ctx.Fill()
		return
	}
	_ = i.ctx.Stroke()
}

func (i *Image) face(size float64) text.Face {
	if f, ok := i.faces[size]; ok {
		return f
	}
	f := i.src.Face(size)
	i.faces[size] = f
	return f
}

// Image returns the current raster
func (i *Image) Image() image.Image {
	return i.ctx.Image()
}

// EncodePNG writes the raster as PNG
func (i *Image) EncodePNG(w io.Writer) error {
	return i.ctx.EncodePNG(w)
}

// Close releases the underlying context
func (i *Image) Close() error {
	return i.ctx.Close()
}
