package notation

import (
	"fmt"

	"github.com/Conceptual-Machines/solfa-api/internal/canvas"
	"github.com/Conceptual-Machines/solfa-api/internal/glyph"
	"github.com/Conceptual-Machines/solfa-api/internal/models"
)

const (
	// Systems is the number of staves per exercise
	Systems = 2
	// MeasuresPerSystem is the number of measures laid out on each stave
	MeasuresPerSystem = 4
	// Treble-staff diatonic index of the middle line (B4), counting C0 as 0
	middleLineDiatonic = 34
)

// tonicDiatonic is the diatonic index of Do for each supported key, chosen so
// the Do..Do' range sits on or near the treble staff
var tonicDiatonic = map[string]int{
	"C":  28, // C4
	"D":  29, // D4
	"F":  31, // F4
	"G":  32, // G4
	"Bb": 27, // Bb3
}

// StaffPosition maps a scale step to half-spaces above the middle line
func StaffPosition(step models.ScaleStep, key string) int {
	tonic, ok := tonicDiatonic[key]
	if !ok {
		tonic = tonicDiatonic["C"]
	}
	return tonic + int(step) - middleLineDiatonic
}

// Slot is one pattern element placed in a measure
type Slot struct {
	Index int
	Note  models.Note
	Tick  int
}

// Measure holds the pattern elements starting inside it and the rests that
// pad it out to a full bar
type Measure struct {
	Slots   []Slot
	Padding []models.Duration
}

// IsEmpty reports whether no pattern element starts in the measure
func (m Measure) IsEmpty() bool {
	return len(m.Slots) == 0
}

// System is one stave worth of measures
type System struct {
	Measures []Measure
}

// Layout is the pattern partitioned into systems
type Layout struct {
	Systems         []System
	BeatsPerMeasure int
}

// Partition splits a pattern into two systems of four measures by running beat
// total. Measures beyond the eighth fold into the last system; short systems
// and short measures are padded with rests.
func Partition(p *models.Pattern, cfg models.RenderConfig) (Layout, error) {
	bpm, err := cfg.BeatsPerMeasure()
	if err != nil {
		return Layout{}, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}
	mt := bpm * models.TicksPerBeat

	var notes []models.Note
	if p != nil {
		notes = p.Notes
	}
	var measures []Measure
	fill := make([]int, 0)
	tick := 0
	for i, n := range notes {
		if n.Duration.Ticks() == 0 {
			return Layout{}, fmt.Errorf("%w: note %d has unknown duration", ErrInvalidLayout, i)
		}
		m := tick / mt
		for len(measures) <= m {
			measures = append(measures, Measure{})
			fill = append(fill, 0)
		}
		measures[m].Slots = append(measures[m].Slots, Slot{Index: i, Note: n, Tick: tick})
		fill[m] += n.Duration.Ticks()
		tick += n.Duration.Ticks()
	}
	for len(measures) < Systems*MeasuresPerSystem {
		measures = append(measures, Measure{})
		fill = append(fill, 0)
	}
	for i := range measures {
		if fill[i] < mt {
			measures[i].Padding = padRests(mt - fill[i])
		}
	}

	layout := Layout{BeatsPerMeasure: bpm, Systems: make([]System, Systems)}
	for i, m := range measures {
		sys := min(i/MeasuresPerSystem, Systems-1)
		layout.Systems[sys].Measures = append(layout.Systems[sys].Measures, m)
	}
	return layout, nil
}

// padRests fills ticks with the fewest rests, longest first
func padRests(ticks int) []models.Duration {
	var out []models.Duration
	for _, d := range []models.Duration{models.Whole, models.Half, models.Quarter, models.Eighth} {
		for ticks >= d.Ticks() {
			out = append(out, d)
			ticks -= d.Ticks()
		}
	}
	return out
}

// beamPairs returns the slot pairs to beam: two consecutive sounding eighths
// whose first note starts on a beat
func beamPairs(m Measure) [][2]int {
	var pairs [][2]int
	for i := 0; i+1 < len(m.Slots); i++ {
		a, b := m.Slots[i], m.Slots[i+1]
		if a.Tick%models.TicksPerBeat != 0 || !soundingEighth(a.Note) || !soundingEighth(b.Note) {
			continue
		}
		if b.Index != a.Index+1 {
			continue
		}
		pairs = append(pairs, [2]int{i, i + 1})
		i++
	}
	return pairs
}

func soundingEighth(n models.Note) bool {
	return !n.IsRest() && n.Duration == models.Eighth
}

// staffFor returns the staff geometry of a system
func staffFor(cfg models.RenderConfig, system int) glyph.Staff {
	return glyph.Staff{
		X:           cfg.MarginLeft,
		Y:           cfg.MarginTop + float64(system)*cfg.SystemSpacing,
		Width:       cfg.StaveWidth,
		LineSpacing: cfg.LineSpacing,
	}
}

// timeSignatureFor shows the meter on the first system only
func timeSignatureFor(cfg models.RenderConfig, system int) string {
	if system == 0 {
		return cfg.TimeSignature
	}
	return ""
}

// labelBaseline sits 2.5 staff spaces under the lower of the staff bottom and
// the lowest notehead in the system
func labelBaseline(s glyph.Staff, lowestY float64) float64 {
	_, ry := glyph.HeadRadius(s.LineSpacing)
	return max(s.Bottom(), lowestY+ry) + 2.5*s.LineSpacing
}

// positioned is a sounding note with its computed anchor
type positioned struct {
	index int
	x, y  float64
}

// collect turns anchors into rendered notes, assigning per-system baselines
func collect(cfg models.RenderConfig, bySystem [][]positioned) []models.RenderedNote {
	var out []models.RenderedNote
	for sys, notes := range bySystem {
		s := staffFor(cfg, sys)
		lowest := s.Bottom()
		for _, n := range notes {
			lowest = max(lowest, n.y)
		}
		baseline := labelBaseline(s, lowest)
		for _, n := range notes {
			out = append(out, models.RenderedNote{
				Index:          n.index,
				AnchorX:        n.x,
				AnchorY:        n.y,
				LabelBaselineY: baseline,
				System:         sys,
			})
		}
	}
	return out
}

// drawDynamics writes the system's marking above the staff
func drawDynamics(sf canvas.Surface, s glyph.Staff, d models.Dynamic) {
	if sym := d.Symbol(); sym != "" {
		sf.Text(sym, s.X+s.LineSpacing, s.Y-1.2*s.LineSpacing, 1.6*s.LineSpacing, 0, 0)
	}
}

func dynamicsOf(p *models.Pattern, system int) models.Dynamic {
	if p == nil {
		return ""
	}
	return p.Dynamics.ForSystem(system)
}
