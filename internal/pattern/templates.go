package pattern

import (
	"github.com/Conceptual-Machines/solfa-api/internal/models"
)

const (
	e = models.Eighth
	q = models.Quarter
	h = models.Half
)

// RhythmTemplate is one way of filling a measure with sounding durations
type RhythmTemplate struct {
	Name      string
	Durations []models.Duration
}

// Predefined measure templates keyed by beats per measure. Order matters: the
// generator draws from these slices with a seeded source.
var rhythmTemplates = map[int][]RhythmTemplate{
	4: {
		{Name: "halves", Durations: []models.Duration{h, h}},
		{Name: "half-quarters", Durations: []models.Duration{h, q, q}},
		{Name: "quarters-half", Durations: []models.Duration{q, q, h}},
		{Name: "quarters", Durations: []models.Duration{q, q, q, q}},
		{Name: "half-pair-quarter", Durations: []models.Duration{h, e, e, q}},
		{Name: "half-quarter-pair", Durations: []models.Duration{h, q, e, e}},
		{Name: "pair-quarter-half", Durations: []models.Duration{e, e, q, h}},
		{Name: "quarter-pair-half", Durations: []models.Duration{q, e, e, h}},
		{Name: "pair-quarters", Durations: []models.Duration{e, e, q, q, q}},
		{Name: "quarter-pair-quarters", Durations: []models.Duration{q, e, e, q, q}},
		{Name: "quarters-pair-quarter", Durations: []models.Duration{q, q, e, e, q}},
		{Name: "two-pairs-half", Durations: []models.Duration{e, e, e, e, h}},
		{Name: "pair-quarter-pair-quarter", Durations: []models.Duration{e, e, q, e, e, q}},
		{Name: "quarter-two-pairs-quarter", Durations: []models.Duration{q, e, e, e, e, q}},
	},
	3: {
		{Name: "half-quarter", Durations: []models.Duration{h, q}},
		{Name: "quarter-half", Durations: []models.Duration{q, h}},
		{Name: "quarters", Durations: []models.Duration{q, q, q}},
		{Name: "pair-quarters", Durations: []models.Duration{e, e, q, q}},
		{Name: "quarter-pair-quarter", Durations: []models.Duration{q, e, e, q}},
		{Name: "quarters-pair", Durations: []models.Duration{q, q, e, e}},
		{Name: "half-pair", Durations: []models.Duration{h, e, e}},
		{Name: "pair-half", Durations: []models.Duration{e, e, h}},
	},
}

// RhythmTemplates returns the templates for a meter
func RhythmTemplates(beatsPerMeasure int) []RhythmTemplate {
	return rhythmTemplates[beatsPerMeasure]
}

// offsets returns the start tick of each duration inside the measure
func (t RhythmTemplate) offsets() []int {
	out := make([]int, len(t.Durations))
	tick := 0
	for i, d := range t.Durations {
		out[i] = tick
		tick += d.Ticks()
	}
	return out
}

// Halves counts half notes in the template
func (t RhythmTemplate) Halves() int {
	n := 0
	for _, d := range t.Durations {
		if d == h {
			n++
		}
	}
	return n
}

// Pairs counts beamable eighth pairs in the template
func (t RhythmTemplate) Pairs() int {
	pairs := 0
	offsets := t.offsets()
	for i := 0; i+1 < len(t.Durations); i++ {
		if t.Durations[i] == e && t.Durations[i+1] == e && offsets[i]%models.TicksPerBeat == 0 {
			pairs++
			i++
		}
	}
	return pairs
}

// fits reports whether the template's half notes start on allowed beats and,
// when restTick >= 0, whether a quarter starts there to be turned into a rest
func (t RhythmTemplate) fits(rs models.RuleSet, restTick int) bool {
	restOK := restTick < 0
	for i, off := range t.offsets() {
		d := t.Durations[i]
		if d == h && (off%models.TicksPerBeat != 0 || !rs.AllowsHalfAt(off/models.TicksPerBeat+1)) {
			return false
		}
		if off == restTick && d == q {
			restOK = true
		}
	}
	return restOK
}

// compatibleTemplates filters the meter's templates for a measure
func compatibleTemplates(rs models.RuleSet, restTick int) []RhythmTemplate {
	var out []RhythmTemplate
	for _, t := range rhythmTemplates[rs.BeatsPerMeasure] {
		if rs.HalfNotes.Max == 0 && t.Halves() > 0 {
			continue
		}
		if t.fits(rs, restTick) {
			out = append(out, t)
		}
	}
	return out
}

// capacity returns the most halves and most pairs any compatible template holds
func capacity(templates []RhythmTemplate) (halves, pairs int) {
	for _, t := range templates {
		halves = max(halves, t.Halves())
		pairs = max(pairs, t.Pairs())
	}
	return halves, pairs
}
