// Package builtin is the in-process engraver. Its glyph metrics are built in
// the background at construction, so Ready blocks briefly on first use.
package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/Conceptual-Machines/solfa-api/internal/canvas"
	"github.com/Conceptual-Machines/solfa-api/internal/engraving"
	"github.com/Conceptual-Machines/solfa-api/internal/glyph"
	"github.com/Conceptual-Machines/solfa-api/internal/models"
)

const maxPosition = 16

// noteMetrics is the per-duration spacing and shape table
type noteMetrics struct {
	minWidth float64
	filled   bool
	stem     bool
	flagged  bool
}

// Engraver implements engraving.Engraver with the glyph package
type Engraver struct {
	ready   chan struct{}
	metrics map[models.Duration]noteMetrics
	warmup  time.Duration
}

// Option configures the engraver
type Option func(*Engraver)

// WithWarmup delays readiness, for exercising the not-ready path
func WithWarmup(d time.Duration) Option {
	return func(e *Engraver) {
		e.warmup = d
	}
}

// New starts loading the engraver
func New(opts ...Option) *Engraver {
	e := &Engraver{ready: make(chan struct{})}
	for _, opt := range opts {
		opt(e)
	}
	go e.load()
	return e
}

func (e *Engraver) load() {
	if e.warmup > 0 {
		time.Sleep(e.warmup)
	}
	e.metrics = map[models.Duration]noteMetrics{
		models.Eighth:  {minWidth: 14, filled: true, stem: true, flagged: true},
		models.Quarter: {minWidth: 18, filled: true, stem: true},
		models.Half:    {minWidth: 22, stem: true},
		models.Whole:   {minWidth: 26},
	}
	close(e.ready)
}

func (e *Engraver) isReady() bool {
	select {
	case <-e.ready:
		return true
	default:
		return false
	}
}

func (e *Engraver) Ready(ctx context.Context) error {
	select {
	case <-e.ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", engraving.ErrNotReady, ctx.Err())
	}
}

func (e *Engraver) CreateStave(x, y, width, lineSpacing float64) *engraving.Stave {
	return engraving.NewStave(x, y, width, lineSpacing)
}

func (e *Engraver) CreateNote(spec engraving.NoteSpec) (*engraving.Note, error) {
	if !e.isReady() {
		return nil, engraving.ErrNotReady
	}
	if _, ok := e.metrics[spec.Duration]; !ok {
		return nil, fmt.Errorf("unsupported duration %s", spec.Duration)
	}
	if !spec.Rest && (spec.Position > maxPosition || spec.Position < -maxPosition) {
		return nil, fmt.Errorf("staff position %d out of range", spec.Position)
	}
	return engraving.NewNote(spec), nil
}

func (e *Engraver) CreateBeam(notes []*engraving.Note) (*engraving.Beam, error) {
	if len(notes) < 2 {
		return nil, fmt.Errorf("beam needs at least 2 notes, got %d", len(notes))
	}
	for i, n := range notes {
		if n.Spec().Rest || n.Spec().Duration != models.Eighth {
			return nil, fmt.Errorf("beam note %d is not a sounding eighth", i)
		}
	}
	return &engraving.Beam{Notes: notes}, nil
}

// Format spaces notes across the stave: each gets its minimum width plus a
// share of the slack proportional to its duration
func (e *Engraver) Format(stave *engraving.Stave, notes []*engraving.Note) error {
	if !e.isReady() {
		return engraving.ErrNotReady
	}
	if len(notes) == 0 {
		return nil
	}
	start, end := stave.NoteStartX(), stave.NoteEndX()
	available := end - start

	minTotal := 0.0
	ticks := 0
	for _, n := range notes {
		m, ok := e.metrics[n.Spec().Duration]
		if !ok {
			return fmt.Errorf("unsupported duration %s", n.Spec().Duration)
		}
		minTotal += m.minWidth
		ticks += n.Spec().Duration.Ticks()
	}
	if minTotal > available {
		return fmt.Errorf("%d notes need %.0fpx, stave has %.0fpx", len(notes), minTotal, available)
	}

	slack := available - minTotal
	rx, _ := glyph.HeadRadius(stave.LineSpacing)
	x := start
	for _, n := range notes {
		d := n.Spec().Duration
		w := e.metrics[d].minWidth + slack*float64(d.Ticks())/float64(ticks)
		n.Commit(x + rx + 2)
		x += w
	}
	return nil
}

func (e *Engraver) Draw(surface canvas.Surface, stave *engraving.Stave, notes []*engraving.Note, beams []*engraving.Beam) error {
	if !e.isReady() {
		return engraving.ErrNotReady
	}
	for i, n := range notes {
		if _, ok := n.X(); !ok {
			return fmt.Errorf("note %d: %w", i, engraving.ErrNotFormatted)
		}
	}

	s := stave.Staff()
	surface.SetColor(canvas.Ink)
	glyph.Lines(surface, s)
	glyph.Header(surface, s, stave.KeySignature, stave.TimeSignature)

	beamed := make(map[*engraving.Note]bool)
	for _, b := range beams {
		for _, n := range b.Notes {
			beamed[n] = true
		}
	}

	for _, n := range notes {
		spec := n.Spec()
		x, _ := n.X()
		if spec.Rest {
			glyph.Rest(surface, s, x, spec.Duration)
			continue
		}
		if beamed[n] {
			glyph.Ledgers(surface, s, x, spec.Position)
			glyph.Notehead(surface, x, s.PositionY(spec.Position), s.LineSpacing, true)
			continue
		}
		m := e.metrics[spec.Duration]
		glyph.Ledgers(surface, s, x, spec.Position)
		y := s.PositionY(spec.Position)
		glyph.Notehead(surface, x, y, s.LineSpacing, m.filled)
		if !m.stem {
			continue
		}
		down := spec.Down()
		tx, ty := glyph.StemTip(x, y, s.LineSpacing, down)
		glyph.Stem(surface, x, y, ty, s.LineSpacing, down)
		if m.flagged {
			glyph.Flag(surface, tx, ty, s.LineSpacing, down)
		}
	}

	for _, b := range beams {
		drawBeam(surface, s, b)
	}
	return nil
}

// drawBeam levels the stem tips of a group along the first note's direction.
// Every stem keeps the direction its note was created with.
func drawBeam(surface canvas.Surface, s glyph.Staff, b *engraving.Beam) {
	down := b.Notes[0].Spec().Down()

	tipY := 0.0
	first := true
	for _, n := range b.Notes {
		if n.Spec().Down() != down {
			continue
		}
		x, _ := n.X()
		_, ty := glyph.StemTip(x, s.PositionY(n.Spec().Position), s.LineSpacing, down)
		if first || (down && ty > tipY) || (!down && ty < tipY) {
			tipY = ty
			first = false
		}
	}

	var xs []float64
	for _, n := range b.Notes {
		x, _ := n.X()
		y := s.PositionY(n.Spec().Position)
		nd := n.Spec().Down()
		tx, ty := glyph.StemTip(x, y, s.LineSpacing, nd)
		if nd == down {
			ty = tipY
		}
		glyph.Stem(surface, x, y, ty, s.LineSpacing, nd)
		xs = append(xs, tx)
	}
	glyph.Beam(surface, xs[0], tipY, xs[len(xs)-1], tipY, s.LineSpacing, down)
}
