package glyph

import (
	"math"
	"strings"

	"github.com/Conceptual-Machines/solfa-api/internal/canvas"
)

// Widths of the stave header in staff spaces
const (
	clefWidth       = 3.2
	accidentalWidth = 1.0
	timeSigWidth    = 2.4
	headerPadding   = 1.0
)

// KeyAccidentals returns the treble-staff positions of the key signature's
// accidentals and whether they are sharps
func KeyAccidentals(key string) (positions []int, sharp bool) {
	switch key {
	case "G":
		return []int{4}, true
	case "D":
		return []int{4, 1}, true
	case "F":
		return []int{0}, false
	case "Bb":
		return []int{0, 3}, false
	default:
		return nil, false
	}
}

// HeaderWidth is the space taken by clef, key and optional time signature
func HeaderWidth(ls float64, key string, withTime bool) float64 {
	positions, _ := KeyAccidentals(key)
	w := clefWidth + float64(len(positions))*accidentalWidth + headerPadding
	if withTime {
		w += timeSigWidth
	}
	return w * ls
}

// TrebleClef draws a simplified G clef and returns its width
func TrebleClef(sf canvas.Surface, s Staff, x float64) float64 {
	ls := s.LineSpacing
	cx := x + 1.4*ls
	gLine := s.LineY(3)
	sf.SetLineWidth(lineWeight * 1.4)
	sf.Line(cx, s.Y-1.5*ls, cx, s.Bottom()+1.2*ls)
	sf.Arc(cx, gLine, 0.9*ls, math.Pi*0.2, math.Pi*1.9)
	sf.Arc(cx-0.2*ls, s.LineY(1), 0.7*ls, math.Pi*1.1, math.Pi*2.3)
	sf.Ellipse(cx-0.4*ls, s.Bottom()+1.2*ls, 0.35*ls, 0.35*ls, 0, true)
	return clefWidth * ls
}

// KeySignature draws the sharps or flats and returns the width used
func KeySignature(sf canvas.Surface, s Staff, x float64, key string) float64 {
	positions, sharp := KeyAccidentals(key)
	ls := s.LineSpacing
	symbol := "b"
	if sharp {
		symbol = "#"
	}
	for i, pos := range positions {
		ax := x + (float64(i)+0.5)*accidentalWidth*ls
		sf.Text(symbol, ax, s.PositionY(pos), 1.8*ls, 0.5, -0.35)
	}
	return float64(len(positions)) * accidentalWidth * ls
}

// TimeSignature draws the stacked numerals and returns the width used
func TimeSignature(sf canvas.Surface, s Staff, x float64, sig string) float64 {
	num, den, ok := strings.Cut(sig, "/")
	if !ok {
		return 0
	}
	ls := s.LineSpacing
	cx := x + timeSigWidth*ls/2
	size := 2.2 * ls
	sf.Text(num, cx, s.MiddleY(), size, 0.5, 0)
	sf.Text(den, cx, s.Bottom(), size, 0.5, 0)
	return timeSigWidth * ls
}

// Header draws clef, key signature and optional time signature from the
// stave's left edge and returns the x where notes may start
func Header(sf canvas.Surface, s Staff, key, timeSig string) float64 {
	x := s.X + 0.3*s.LineSpacing
	x += TrebleClef(sf, s, x)
	x += KeySignature(sf, s, x, key)
	if timeSig != "" {
		x += TimeSignature(sf, s, x, timeSig)
	}
	return s.X + HeaderWidth(s.LineSpacing, key, timeSig != "")
}
