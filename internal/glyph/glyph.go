// Package glyph draws music symbols out of plain surface primitives. Sizes are
// expressed in staff spaces (the distance between two staff lines) so every
// symbol scales with the configured line spacing.
package glyph

import (
	"math"

	"github.com/Conceptual-Machines/solfa-api/internal/canvas"
	"github.com/Conceptual-Machines/solfa-api/internal/models"
)

const (
	headRX     = 0.65
	headRY     = 0.45
	headTilt   = -0.35
	stemLength = 3.5
	lineWeight = 1.0
	beamWeight = 0.5
)

// Staff is the geometry of one five-line stave. Y is the top line.
type Staff struct {
	X, Y, Width, LineSpacing float64
}

// LineY returns the y of line i, counted from the top (0..4)
func (s Staff) LineY(i int) float64 {
	return s.Y + float64(i)*s.LineSpacing
}

// MiddleY is the y of the middle line
func (s Staff) MiddleY() float64 {
	return s.LineY(2)
}

// Bottom is the y of the bottom line
func (s Staff) Bottom() float64 {
	return s.LineY(4)
}

// PositionY converts a staff position (half-spaces above the middle line) to y
func (s Staff) PositionY(pos int) float64 {
	return s.MiddleY() - float64(pos)*s.LineSpacing/2
}

// HeadRadius returns the notehead half-width and half-height
func HeadRadius(ls float64) (rx, ry float64) {
	return headRX * ls, headRY * ls
}

// StemDown reports the default stem direction: middle line and above point down
func StemDown(pos int) bool {
	return pos >= 0
}

// Lines strokes the five staff lines
func Lines(sf canvas.Surface, s Staff) {
	sf.SetLineWidth(lineWeight)
	for i := 0; i < 5; i++ {
		y := s.LineY(i)
		sf.Line(s.X, y, s.X+s.Width, y)
	}
}

// Notehead draws a tilted oval, filled for quarters and shorter
func Notehead(sf canvas.Surface, x, y, ls float64, filled bool) {
	rx, ry := HeadRadius(ls)
	sf.SetLineWidth(lineWeight)
	sf.Ellipse(x, y, rx, ry, headTilt, filled)
}

// StemTip returns where a stem from a notehead at (x, y) ends
func StemTip(x, y, ls float64, down bool) (tx, ty float64) {
	rx, _ := HeadRadius(ls)
	if down {
		return x - rx + 0.5, y + stemLength*ls
	}
	return x + rx - 0.5, y - stemLength*ls
}

// Stem draws a stem from the notehead to tipY
func Stem(sf canvas.Surface, x, y, tipY, ls float64, down bool) {
	tx, _ := StemTip(x, y, ls, down)
	sf.SetLineWidth(lineWeight)
	sf.Line(tx, y, tx, tipY)
}

// Flag draws a single eighth-note flag hanging off the stem tip
func Flag(sf canvas.Surface, tx, ty, ls float64, down bool) {
	dir := 1.0
	if down {
		dir = -1
	}
	sf.SetLineWidth(lineWeight * 1.5)
	sf.Line(tx, ty, tx+0.9*ls, ty+dir*1.4*ls)
	sf.Line(tx+0.9*ls, ty+dir*1.4*ls, tx+0.7*ls, ty+dir*2.2*ls)
}

// Beam joins two stem tips with a thick bar
func Beam(sf canvas.Surface, x1, y1, x2, y2, ls float64, down bool) {
	thickness := beamWeight * ls
	if down {
		y1 -= thickness
		y2 -= thickness
	}
	steps := int(math.Max(1, math.Ceil(thickness)))
	sf.SetLineWidth(lineWeight)
	for i := 0; i <= steps; i++ {
		off := thickness * float64(i) / float64(steps)
		sf.Line(x1, y1+off, x2, y2+off)
	}
}

// Ledgers draws the short ledger lines a notehead outside the staff needs
func Ledgers(sf canvas.Surface, s Staff, x float64, pos int) {
	rx, _ := HeadRadius(s.LineSpacing)
	sf.SetLineWidth(lineWeight)
	for p := 6; p <= pos; p += 2 {
		y := s.PositionY(p)
		sf.Line(x-rx*1.6, y, x+rx*1.6, y)
	}
	for p := -6; p >= pos; p -= 2 {
		y := s.PositionY(p)
		sf.Line(x-rx*1.6, y, x+rx*1.6, y)
	}
}

// Note draws a complete unbeamed note or rest centred at x
func Note(sf canvas.Surface, s Staff, x float64, pos int, d models.Duration, down bool) {
	ls := s.LineSpacing
	y := s.PositionY(pos)
	Ledgers(sf, s, x, pos)
	Notehead(sf, x, y, ls, d != models.Half && d != models.Whole)
	if d == models.Whole {
		return
	}
	tx, ty := StemTip(x, y, ls, down)
	Stem(sf, x, y, ty, ls, down)
	if d == models.Eighth {
		Flag(sf, tx, ty, ls, down)
	}
}

// Rest draws the rest glyph for the duration centred on the middle line
func Rest(sf canvas.Surface, s Staff, x float64, d models.Duration) {
	ls := s.LineSpacing
	mid := s.MiddleY()
	switch d {
	case models.Whole:
		sf.Rect(x-0.6*ls, s.LineY(1), 1.2*ls, 0.5*ls, true)
	case models.Half:
		sf.Rect(x-0.6*ls, mid-0.5*ls, 1.2*ls, 0.5*ls, true)
	case models.Quarter:
		sf.SetLineWidth(lineWeight * 1.8)
		sf.Line(x-0.3*ls, mid-1.5*ls, x+0.3*ls, mid-0.6*ls)
		sf.Line(x+0.3*ls, mid-0.6*ls, x-0.3*ls, mid+0.2*ls)
		sf.Line(x-0.3*ls, mid+0.2*ls, x+0.3*ls, mid+0.9*ls)
		sf.Arc(x, mid+1.2*ls, 0.35*ls, math.Pi*0.5, math.Pi*1.5)
	default:
		sf.Ellipse(x-0.3*ls, mid-0.5*ls, 0.22*ls, 0.22*ls, 0, true)
		sf.SetLineWidth(lineWeight * 1.2)
		sf.Line(x-0.3*ls, mid-0.3*ls, x+0.4*ls, mid-0.6*ls)
		sf.Line(x+0.4*ls, mid-0.6*ls, x, mid+1.0*ls)
	}
}

// BarLine draws a single bar or the closing double bar
func BarLine(sf canvas.Surface, s Staff, x float64, double bool) {
	top, bottom := s.LineY(0), s.Bottom()
	if !double {
		sf.SetLineWidth(lineWeight)
		sf.Line(x, top, x, bottom)
		return
	}
	ls := s.LineSpacing
	sf.SetLineWidth(lineWeight)
	sf.Line(x-0.6*ls, top, x-0.6*ls, bottom)
	sf.Rect(x-0.3*ls, top, 0.3*ls, bottom-top, true)
}
