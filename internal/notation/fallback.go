package notation

import (
	"context"
	"sync"

	"github.com/Conceptual-Machines/solfa-api/internal/canvas"
	"github.com/Conceptual-Machines/solfa-api/internal/engraving"
	"github.com/Conceptual-Machines/solfa-api/internal/glyph"
	"github.com/Conceptual-Machines/solfa-api/internal/models"
)

// Nominal horizontal space per duration before scaling to the stave
var fallbackWidths = map[models.Duration]float64{
	models.Eighth:  28,
	models.Quarter: 40,
	models.Half:    60,
	models.Whole:   80,
}

// Fallback draws notation from surface primitives alone. It has no external
// dependency and cannot fail once the surface exists.
type Fallback struct {
	surface canvas.Surface

	draw  sync.Mutex
	state renderState
}

// NewFallback creates the geometric renderer
func NewFallback(surface canvas.Surface) *Fallback {
	return &Fallback{surface: surface}
}

func (r *Fallback) Kind() string { return KindFallback }

func (r *Fallback) Relayouts() int { return r.state.count() }

func (r *Fallback) Reset() { r.state.reset() }

func (r *Fallback) Render(_ context.Context, p *models.Pattern, cfg models.RenderConfig) (*models.PositionMap, error) {
	if r.surface == nil {
		return nil, ErrSurfaceUnavailable
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
	r.draw.Lock()
	defer r.draw.Unlock()

	r.surface.Clear()
	r.surface.SetColor(canvas.Ink)
	bySystem := make([][]positioned, len(layout.Systems))
	for sys, system := range layout.Systems {
		bySystem[sys] = r.renderSystem(p, cfg, sys, sys == len(layout.Systems)-1, system)
	}

	pm := models.NewPositionMap(collect(cfg, bySystem), hash, KindFallback)
	if err := r.state.accept(token, hash, cfg, pm); err != nil {
		return nil, err
	}
	return pm, nil
}

type fallbackItem struct {
	slot    *Slot
	rest    models.Duration
	width   float64
	measure int
}

func (r *Fallback) renderSystem(p *models.Pattern, cfg models.RenderConfig, sys int, closing bool, system System) []positioned {
	s := staffFor(cfg, sys)
	glyph.Lines(r.surface, s)
	start := glyph.Header(r.surface, s, cfg.KeySignature, timeSignatureFor(cfg, sys))
	end := s.X + s.Width - s.LineSpacing

	var items []fallbackItem
	total := 0.0
	for mi := range system.Measures {
		m := &system.Measures[mi]
		for i := range m.Slots {
			w := fallbackWidths[m.Slots[i].Note.Duration]
			items = append(items, fallbackItem{slot: &m.Slots[i], width: w, measure: mi})
			total += w
		}
		for _, d := range m.Padding {
			w := fallbackWidths[d]
			items = append(items, fallbackItem{rest: d, width: w, measure: mi})
			total += w
		}
	}
	scale := 1.0
	if total > 0 {
		scale = (end - start) / total
	}

	// beamed notes share the direction of their pair
	beamed := make(map[int]bool)
	for _, m := range system.Measures {
		for _, pair := range beamPairs(m) {
			a, b := m.Slots[pair[0]], m.Slots[pair[1]]
			down := beamStem(a.Note, b.Note, cfg.KeySignature) == engraving.StemDown
			beamed[a.Index], beamed[b.Index] = down, down
		}
	}

	var (
		placed []positioned
		tips   = make(map[int][2]float64)
		x      = start
	)
	rx, _ := glyph.HeadRadius(s.LineSpacing)
	for i, it := range items {
		w := it.width * scale
		cx := x + min(w/2, rx+4)
		switch {
		case it.slot == nil:
			glyph.Rest(r.surface, s, cx, it.rest)
		case it.slot.Note.IsRest():
			glyph.Rest(r.surface, s, cx, it.slot.Note.Duration)
		default:
			step, _ := it.slot.Note.Step()
			pos := StaffPosition(step, cfg.KeySignature)
			y := s.PositionY(pos)
			down := glyph.StemDown(pos)
			d := it.slot.Note.Duration
			if groupDown, ok := beamed[it.slot.Index]; ok {
				// the beam replaces the flag
				down = groupDown
				d = models.Quarter
			}
			glyph.Note(r.surface, s, cx, pos, d, down)
			tx, ty := glyph.StemTip(cx, y, s.LineSpacing, down)
			tips[it.slot.Index] = [2]float64{tx, ty}
			placed = append(placed, positioned{index: it.slot.Index, x: cx, y: y})
		}
		x += w
		lastInMeasure := i == len(items)-1 || items[i+1].measure != it.measure
		if !lastInMeasure {
			continue
		}
		switch {
		case i == len(items)-1 && closing:
			glyph.BarLine(r.surface, s, s.X+s.Width, true)
		case i == len(items)-1:
			glyph.BarLine(r.surface, s, s.X+s.Width, false)
		default:
			glyph.BarLine(r.surface, s, x, false)
		}
	}

	for _, m := range system.Measures {
		for _, pair := range beamPairs(m) {
			a, aok := tips[m.Slots[pair[0]].Index]
			b, bok := tips[m.Slots[pair[1]].Index]
			if aok && bok {
				glyph.Beam(r.surface, a[0], a[1], b[0], b[1], s.LineSpacing, beamed[m.Slots[pair[0]].Index])
			}
		}
	}
	drawDynamics(r.surface, s, dynamicsOf(p, sys))
	return placed
}
