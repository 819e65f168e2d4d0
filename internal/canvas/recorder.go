package canvas

import (
	"image/color"
	"strings"
)

// Op is one primitive captured by a Recorder
type Op struct {
	Kind  string
	Args  []float64
	Text  string
	Color color.Color
	Fill  bool
}

// Recorder is a Surface that keeps the primitives drawn since the last Clear.
// Renderers and the overlay are tested against it.
type Recorder struct {
	W, H   float64
	ops    []Op
	clears int
	color  color.Color
	width  float64
}

// NewRecorder creates a recording surface of the given size
func NewRecorder(w, h float64) *Recorder {
	return &Recorder{W: w, H: h, color: Black, width: 1}
}

func (r *Recorder) Size() (float64, float64) { return r.W, r.H }

func (r *Recorder) Clear() {
	r.ops = nil
	r.clears++
}

func (r *Recorder) SetColor(c color.Color) { r.color = c }

func (r *Recorder) SetLineWidth(w float64) { r.width = w }

func (r *Recorder) Line(x1, y1, x2, y2 float64) {
	r.add(Op{Kind: "line", Args: []float64{x1, y1, x2, y2}})
}

func (r *Recorder) Rect(x, y, w, h float64, fill bool) {
	r.add(Op{Kind: "rect", Args: []float64{x, y, w, h}, Fill: fill})
}

func (r *Recorder) Ellipse(cx, cy, rx, ry, rotation float64, fill bool) {
	r.add(Op{Kind: "ellipse", Args: []float64{cx, cy, rx, ry, rotation}, Fill: fill})
}

func (r *Recorder) Arc(cx, cy, radius, a1, a2 float64) {
	r.add(Op{Kind: "arc", Args: []float64{cx, cy, radius, a1, a2}})
}

func (r *Recorder) Text(s string, x, y, size, ax, ay float64) {
	r.add(Op{Kind: "text", Args: []float64{x, y, size, ax, ay}, Text: s})
}

// MeasureText approximates glyphs as half an em wide
func (r *Recorder) MeasureText(s string, size float64) float64 {
	return float64(len([]rune(s))) * size * 0.5
}

func (r *Recorder) add(op Op) {
	op.Color = r.color
	r.ops = append(r.ops, op)
}

// Ops returns the primitives drawn since the last Clear
func (r *Recorder) Ops() []Op {
	out := make([]Op, len(r.ops))
	copy(out, r.ops)
	return out
}

// Clears counts Clear calls
func (r *Recorder) Clears() int { return r.clears }

// Count returns how many ops of the kind were drawn since the last Clear
func (r *Recorder) Count(kind string) int {
	n := 0
	for _, op := range r.ops {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// Texts returns every text op since the last Clear
func (r *Recorder) Texts() []Op {
	var out []Op
	for _, op := range r.ops {
		if op.Kind == "text" {
			out = append(out, op)
		}
	}
	return out
}

// HasText reports whether any text op contains s
func (r *Recorder) HasText(s string) bool {
	for _, op := range r.Texts() {
		if strings.Contains(op.Text, s) {
			return true
		}
	}
	return false
}
