package notation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Conceptual-Machines/solfa-api/internal/canvas"
	"github.com/Conceptual-Machines/solfa-api/internal/engraving"
	"github.com/Conceptual-Machines/solfa-api/internal/glyph"
	"github.com/Conceptual-Machines/solfa-api/internal/models"
)

// DefaultReadyTimeout bounds the wait for the engraver
const DefaultReadyTimeout = 2 * time.Second

// Primary renders through an injected engraver
type Primary struct {
	engraver     engraving.Engraver
	surface      canvas.Surface
	readyTimeout time.Duration

	draw  sync.Mutex
	state renderState
}

// PrimaryOption configures a Primary renderer
type PrimaryOption func(*Primary)

// WithReadyTimeout bounds how long Render waits for the engraver
func WithReadyTimeout(d time.Duration) PrimaryOption {
	return func(p *Primary) {
		if d > 0 {
			p.readyTimeout = d
		}
	}
}

// NewPrimary creates an engraver-backed renderer. A nil engraver is allowed
// and makes every Render fail with ErrNoEngraver.
func NewPrimary(engraver engraving.Engraver, surface canvas.Surface, opts ...PrimaryOption) *Primary {
	p := &Primary{engraver: engraver, surface: surface, readyTimeout: DefaultReadyTimeout}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (r *Primary) Kind() string { return KindPrimary }

func (r *Primary) Relayouts() int { return r.state.count() }

func (r *Primary) Reset() { r.state.reset() }

func (r *Primary) Render(ctx context.Context, p *models.Pattern, cfg models.RenderConfig) (*models.PositionMap, error) {
	if r.surface == nil {
		return nil, ErrSurfaceUnavailable
	}
	if r.engraver == nil {
		return nil, ErrNoEngraver
	}
	hash := p.Hash()
	if pm, ok := r.state.lookup(hash, cfg); ok {
		return pm, nil
	}
	layout, err := Partition(p, cfg)
	if err != nil {
		return nil, err
	}

	token := r.state.begin()
	readyCtx, cancel := context.WithTimeout(ctx, r.readyTimeout)
	defer cancel()
	if err := r.engraver.Ready(readyCtx); err != nil {
		return nil, fmt.Errorf("waiting for engraver: %w", err)
	}

	r.draw.Lock()
	defer r.draw.Unlock()
	if !r.state.current(token) {
		return nil, ErrSuperseded
	}

	r.surface.Clear()
	bySystem := make([][]positioned, len(layout.Systems))
	for sys, system := range layout.Systems {
		placed, err := r.renderSystem(p, cfg, layout, sys, system)
		if err != nil {
			return nil, fmt.Errorf("system %d: %w", sys+1, err)
		}
		bySystem[sys] = placed
	}

	pm := models.NewPositionMap(collect(cfg, bySystem), hash, KindPrimary)
	if err := r.state.accept(token, hash, cfg, pm); err != nil {
		return nil, err
	}
	return pm, nil
}

func (r *Primary) renderSystem(p *models.Pattern, cfg models.RenderConfig, layout Layout, sys int, system System) ([]positioned, error) {
	s := staffFor(cfg, sys)
	stave := r.engraver.CreateStave(s.X, s.Y, s.Width, s.LineSpacing).
		AddClef("treble").
		AddKeySignature(cfg.KeySignature)
	if ts := timeSignatureFor(cfg, sys); ts != "" {
		stave.AddTimeSignature(ts)
	}

	var (
		notes    []*engraving.Note
		beams    []*engraving.Beam
		sounding = make(map[*engraving.Note]int)
		lastOf   = make([]*engraving.Note, len(system.Measures))
	)
	for mi, m := range system.Measures {
		start := len(notes)
		pairs := beamPairs(m)
		groupStem := make(map[int]engraving.StemDirection)
		for _, pair := range pairs {
			stem := beamStem(m.Slots[pair[0]].Note, m.Slots[pair[1]].Note, cfg.KeySignature)
			groupStem[pair[0]], groupStem[pair[1]] = stem, stem
		}
		for si, slot := range m.Slots {
			spec := engraving.NoteSpec{Rest: slot.Note.IsRest(), Duration: slot.Note.Duration}
			if step, ok := slot.Note.Step(); ok {
				spec.Position = StaffPosition(step, cfg.KeySignature)
				spec.Stem = stemFor(spec.Position)
				if stem, ok := groupStem[si]; ok {
					spec.Stem = stem
				}
			}
			n, err := r.engraver.CreateNote(spec)
			if err != nil {
				return nil, fmt.Errorf("note %d: %w", slot.Index, err)
			}
			notes = append(notes, n)
			if !spec.Rest {
				sounding[n] = slot.Index
			}
		}
		for _, pair := range pairs {
			beam, err := r.engraver.CreateBeam([]*engraving.Note{notes[start+pair[0]], notes[start+pair[1]]})
			if err != nil {
				return nil, fmt.Errorf("beam at note %d: %w", m.Slots[pair[0]].Index, err)
			}
			beams = append(beams, beam)
		}
		for _, d := range m.Padding {
			n, err := r.engraver.CreateNote(engraving.NoteSpec{Rest: true, Duration: d})
			if err != nil {
				return nil, fmt.Errorf("padding rest: %w", err)
			}
			notes = append(notes, n)
		}
		if len(notes) > start {
			lastOf[mi] = notes[len(notes)-1]
		}
	}

	if err := r.engraver.Format(stave, notes); err != nil {
		return nil, fmt.Errorf("format: %w", err)
	}
	if err := r.engraver.Draw(r.surface, stave, notes, beams); err != nil {
		return nil, fmt.Errorf("draw: %w", err)
	}

	// Bars go just after the last note of each measure, read back from the
	// committed positions.
	staff := stave.Staff()
	for mi := range system.Measures {
		last := lastOf[mi]
		if last == nil {
			continue
		}
		x, ok := last.X()
		if !ok {
			return nil, engraving.ErrNotFormatted
		}
		closing := sys == len(layout.Systems)-1 && mi == len(system.Measures)-1
		switch {
		case closing:
			glyph.BarLine(r.surface, staff, staff.X+staff.Width, true)
		case mi == len(system.Measures)-1:
			glyph.BarLine(r.surface, staff, staff.X+staff.Width, false)
		default:
			glyph.BarLine(r.surface, staff, barAfter(x, lastOf, notes, mi, staff), false)
		}
	}
	drawDynamics(r.surface, staff, dynamicsOf(p, sys))

	placed := make([]positioned, 0, len(sounding))
	for _, n := range notes {
		idx, ok := sounding[n]
		if !ok {
			continue
		}
		x, _ := n.X()
		placed = append(placed, positioned{index: idx, x: x, y: staff.PositionY(n.Spec().Position)})
	}
	return placed, nil
}

func stemFor(pos int) engraving.StemDirection {
	if glyph.StemDown(pos) {
		return engraving.StemDown
	}
	return engraving.StemUp
}

// beamStem picks one direction for a beamed pair: the note farther from the
// middle line decides, ties go down
func beamStem(a, b models.Note, key string) engraving.StemDirection {
	sa, _ := a.Step()
	sb, _ := b.Step()
	pa, pb := StaffPosition(sa, key), StaffPosition(sb, key)
	if abs(pb) > abs(pa) {
		return stemFor(pb)
	}
	if abs(pa) > abs(pb) {
		return stemFor(pa)
	}
	return stemFor(max(pa, pb))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// barAfter places a bar just after the measure's last note: one notehead
// and a staff space past its committed x, but never past the midpoint to the
// next note
func barAfter(x float64, lastOf []*engraving.Note, notes []*engraving.Note, mi int, s glyph.Staff) float64 {
	rx, _ := glyph.HeadRadius(s.LineSpacing)
	bar := x + rx + s.LineSpacing
	next := -1
	for i, n := range notes {
		if n == lastOf[mi] {
			next = i + 1
			break
		}
	}
	if next < 0 || next >= len(notes) {
		return bar
	}
	nx, ok := notes[next].X()
	if !ok || nx <= x {
		return bar
	}
	return min(bar, x+(nx-x)/2)
}
