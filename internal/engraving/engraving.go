// Package engraving defines the injected engraving capability the primary
// notation renderer delegates glyph selection, spacing and beaming to.
package engraving

import (
	"context"
	"errors"

	"github.com/Conceptual-Machines/solfa-api/internal/canvas"
	"github.com/Conceptual-Machines/solfa-api/internal/glyph"
	"github.com/Conceptual-Machines/solfa-api/internal/models"
)

var (
	// ErrNotReady is returned while the engraver is still loading
	ErrNotReady = errors.New("engraver not ready")
	// ErrNotFormatted is returned when drawing notes that have no committed x
	ErrNotFormatted = errors.New("note has not been formatted")
)

// StemDirection is the explicit stem assignment of a note
type StemDirection int

const (
	StemAuto StemDirection = iota
	StemUp
	StemDown
)

// NoteSpec describes one note or rest to engrave. Position counts
// half-spaces above the middle staff line.
type NoteSpec struct {
	Rest     bool
	Position int
	Duration models.Duration
	Stem     StemDirection
}

// Down resolves the stem direction
func (s NoteSpec) Down() bool {
	switch s.Stem {
	case StemUp:
		return false
	case StemDown:
		return true
	default:
		return glyph.StemDown(s.Position)
	}
}

// Note is an engraver-owned note. Its x is committed by Format.
type Note struct {
	spec      NoteSpec
	x         float64
	committed bool
}

// NewNote wraps a spec; engravers use it from CreateNote
func NewNote(spec NoteSpec) *Note {
	return &Note{spec: spec}
}

func (n *Note) Spec() NoteSpec { return n.spec }

// X returns the committed notehead centre
func (n *Note) X() (float64, bool) {
	return n.x, n.committed
}

// Commit fixes the notehead centre
func (n *Note) Commit(x float64) {
	n.x = x
	n.committed = true
}

// Beam groups notes drawn with joined stems
type Beam struct {
	Notes []*Note
}

// Stave is a five-line staff with its header modifiers
type Stave struct {
	X, Y, Width, LineSpacing float64

	Clef          string
	TimeSignature string
	KeySignature  string
}

// NewStave creates an empty stave with its top line at y
func NewStave(x, y, width, lineSpacing float64) *Stave {
	return &Stave{X: x, Y: y, Width: width, LineSpacing: lineSpacing}
}

func (s *Stave) AddClef(clef string) *Stave {
	s.Clef = clef
	return s
}

func (s *Stave) AddTimeSignature(sig string) *Stave {
	s.TimeSignature = sig
	return s
}

func (s *Stave) AddKeySignature(key string) *Stave {
	s.KeySignature = key
	return s
}

// Staff returns the line geometry
func (s *Stave) Staff() glyph.Staff {
	return glyph.Staff{X: s.X, Y: s.Y, Width: s.Width, LineSpacing: s.LineSpacing}
}

// NoteStartX is the first x available to notes after the header
func (s *Stave) NoteStartX() float64 {
	return s.X + glyph.HeaderWidth(s.LineSpacing, s.KeySignature, s.TimeSignature != "")
}

// NoteEndX is the last x available to notes
func (s *Stave) NoteEndX() float64 {
	return s.X + s.Width - s.LineSpacing
}

// Engraver is the engraving capability. Ready is the only call that may
// block; the rest are synchronous once Ready has returned nil.
type Engraver interface {
	Ready(ctx context.Context) error
	CreateStave(x, y, width, lineSpacing float64) *Stave
	CreateNote(spec NoteSpec) (*Note, error)
	CreateBeam(notes []*Note) (*Beam, error)
	// Format assigns every note its x within the stave
	Format(stave *Stave, notes []*Note) error
	Draw(surface canvas.Surface, stave *Stave, notes []*Note, beams []*Beam) error
}
