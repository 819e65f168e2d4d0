package pattern

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/Conceptual-Machines/solfa-api/internal/models"
)

// DefaultMaxAttempts bounds procedural retries before the static fallback
const DefaultMaxAttempts = 100

// MoveWeights biases the pitch walk between stepping up, stepping down and
// repeating the previous pitch
type MoveWeights struct {
	Up     float64
	Down   float64
	Repeat float64
}

// UniformMoves weights every move equally
func UniformMoves() MoveWeights {
	return MoveWeights{Up: 1, Down: 1, Repeat: 1}
}

// Diagnostics reports how a pattern was obtained
type Diagnostics struct {
	Attempts       int                  `json:"attempts"`
	FailureReasons []string             `json:"failure_reasons,omitempty"`
	Source         models.PatternSource `json:"source"`
	PoolIndex      int                  `json:"pool_index"`
}

// Generator builds rule-conforming patterns by randomized construction and
// validation. It never fails: exhaustion falls back to a static pattern.
type Generator struct {
	rng         *rand.Rand
	maxAttempts int
	weights     MoveWeights
	library     *Library
}

// Option configures a Generator
type Option func(*Generator)

// WithSeed makes generation reproducible
func WithSeed(seed uint64) Option {
	return func(g *Generator) {
		g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithRand injects a random source
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) {
		if r != nil {
			g.rng = r
		}
	}
}

// WithMaxAttempts overrides DefaultMaxAttempts
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithMoveWeights overrides the uniform walk weights
func WithMoveWeights(w MoveWeights) Option {
	return func(g *Generator) {
		g.weights = w
	}
}

// WithLibrary replaces the embedded pattern library
func WithLibrary(l *Library) Option {
	return func(g *Generator) {
		g.library = l
	}
}

// NewGenerator creates a generator. Without WithSeed or WithRand it draws
// from a randomly seeded source.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		maxAttempts: DefaultMaxAttempts,
		weights:     UniformMoves(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.rng == nil {
		g.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if g.library == nil {
		g.library = DefaultLibrary()
	}
	return g
}

// Generate returns a pattern for the rule set. When the rule set asks for the
// curated pool, excludePoolIndex names the entry to skip so a retry never
// repeats the previous pattern.
func (g *Generator) Generate(rs models.RuleSet, excludePoolIndex *int) (*models.Pattern, Diagnostics) {
	rs = rs.Normalized()
	diag := Diagnostics{PoolIndex: -1}

	if rs.UsePool {
		if p, ok := g.fromPool(rs, excludePoolIndex, &diag); ok {
			return p, diag
		}
	}

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		diag.Attempts++
		p, err := g.attempt(rs)
		if err != nil {
			diag.FailureReasons = append(diag.FailureReasons, fmt.Sprintf("attempt %d: %v", attempt, err))
			continue
		}
		res := Validate(p, rs)
		if !res.IsValid {
			diag.FailureReasons = append(diag.FailureReasons, fmt.Sprintf("attempt %d: %s", attempt, summarize(res)))
			continue
		}
		diag.Source = models.SourceProcedural
		return p, diag
	}

	p := g.library.StaticFor(rs)
	g.decorate(p, rs)
	diag.Source = models.SourceStatic
	return p, diag
}

func (g *Generator) fromPool(rs models.RuleSet, exclude *int, diag *Diagnostics) (*models.Pattern, bool) {
	entries := g.library.PoolFor(rs)
	n := len(entries)
	if n == 0 {
		diag.FailureReasons = append(diag.FailureReasons, "pool: no entries for this meter and length")
		return nil, false
	}
	start := g.rng.IntN(n)
	if exclude != nil {
		start = 0
		for pos, e := range entries {
			if e.Index == *exclude {
				start = (pos + 1) % n
				break
			}
		}
	}
	for k := 0; k < n; k++ {
		e := entries[(start+k)%n]
		diag.Attempts++
		p := e.Pattern(models.SourcePool)
		if res := Validate(p, rs); !res.IsValid {
			diag.FailureReasons = append(diag.FailureReasons, fmt.Sprintf("pool %d (%s): %s", e.Index, e.Name, summarize(res)))
			continue
		}
		if p.Dynamics == nil {
			g.decorate(p, rs)
		}
		diag.Source = models.SourcePool
		diag.PoolIndex = e.Index
		return p, true
	}
	return nil, false
}

// attempt runs one construction. A panic inside counts as a failed attempt.
func (g *Generator) attempt(rs models.RuleSet) (p *models.Pattern, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("construction panicked: %v", r)
		}
	}()
	notes, err := g.build(rs)
	if err != nil {
		return nil, err
	}
	p = models.NewPattern(notes)
	g.decorate(p, rs)
	return p, nil
}

func (g *Generator) decorate(p *models.Pattern, rs models.RuleSet) {
	if !rs.Dynamics {
		return
	}
	pick := func() models.Dynamic {
		if g.rng.IntN(2) == 0 {
			return models.Forte
		}
		return models.Piano
	}
	p.Dynamics = &models.Dynamics{TopStaff: pick(), BottomStaff: pick()}
}

func summarize(res Result) string {
	codes := res.Codes()
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = string(c)
	}
	return "invalid: " + strings.Join(parts, ", ")
}

// slot is one planned element before pitches are assigned
type slot struct {
	dur   models.Duration
	rest  bool
	fixed bool
	step  models.ScaleStep
}

var (
	errUnevenMeasures = errors.New("required beats do not fill whole measures")
	errNoEnding       = errors.New("no pitch in range satisfies the cadence")
)

// build plans the measures in order of constraint: cadence, required
// subsequences, rests, then free rhythm, and finally walks pitches through
// the plan.
func (g *Generator) build(rs models.RuleSet) ([]models.Note, error) {
	mt := rs.MeasureTicks()
	total := rs.RequiredTicks()
	if total%mt != 0 {
		return nil, errUnevenMeasures
	}
	count := total / mt
	measures := make([][]slot, count)

	if rs.Terminal != nil {
		end, err := g.ending(rs)
		if err != nil {
			return nil, err
		}
		measures[count-1] = end
	}

	for _, sub := range rs.RequiredSubsequences {
		if err := g.placeSubsequence(rs, measures, sub); err != nil {
			return nil, err
		}
	}

	restTicks := make([]int, count)
	for i := range restTicks {
		restTicks[i] = -1
	}
	if err := g.placeRests(rs, measures, restTicks); err != nil {
		return nil, err
	}

	if err := g.fillRhythm(rs, measures, restTicks); err != nil {
		return nil, err
	}

	var slots []slot
	for _, m := range measures {
		slots = append(slots, m...)
	}
	if err := g.walk(rs, slots); err != nil {
		return nil, err
	}

	notes := make([]models.Note, len(slots))
	for i, s := range slots {
		if s.rest {
			notes[i] = models.NewRest(s.dur)
		} else {
			notes[i] = models.NewNote(s.step, s.dur)
		}
	}
	return notes, nil
}

// stepsFor lists every in-range step carrying the syllable, lowest first
func stepsFor(rs models.RuleSet, syl models.Syllable) []models.ScaleStep {
	if !rs.AllowsSyllable(syl) {
		return nil
	}
	var out []models.ScaleStep
	for s := rs.Range.Low; s <= rs.Range.High; s++ {
		if s.Syllable() == syl {
			out = append(out, s)
		}
	}
	return out
}

// nearestStep returns the in-range step with the syllable closest to from
func nearestStep(rs models.RuleSet, syl models.Syllable, from models.ScaleStep) (models.ScaleStep, bool) {
	best, found := models.ScaleStep(0), false
	for _, s := range stepsFor(rs, syl) {
		if !found || s.Distance(from) < best.Distance(from) {
			best, found = s, true
		}
	}
	return best, found
}

// ending builds the final measure: antepenultimate, penultimate and last
// notes, closing on a half note when the meter and rules allow it
func (g *Generator) ending(rs models.RuleSet) ([]slot, error) {
	t := rs.Terminal
	lasts := stepsFor(rs, t.Last)
	if len(lasts) == 0 {
		return nil, errNoEnding
	}
	last := lasts[0]
	pen, ok := nearestStep(rs, t.Penultimate, last)
	if !ok {
		return nil, errNoEnding
	}
	var antes []models.ScaleStep
	for _, syl := range t.Antepenultimate {
		if s, ok := nearestStep(rs, syl, pen); ok {
			antes = append(antes, s)
		}
	}
	if len(antes) == 0 {
		return nil, errNoEnding
	}
	ante := antes[g.rng.IntN(len(antes))]

	mt := rs.MeasureTicks()
	lastDur := models.Quarter
	halfBeat := (mt-models.Half.Ticks())/models.TicksPerBeat + 1
	if mt >= 8 && rs.HalfNotes.Max > 0 && rs.AllowsHalfAt(halfBeat) {
		lastDur = models.Half
	}
	cadence := []slot{
		{dur: models.Quarter, fixed: true, step: ante},
		{dur: models.Quarter, fixed: true, step: pen},
		{dur: lastDur, fixed: true, step: last},
	}
	used := 0
	for _, s := range cadence {
		used += s.dur.Ticks()
	}
	if used > mt {
		return nil, errNoEnding
	}
	out := padQuarters(mt - used)
	return append(out, cadence...), nil
}

// padQuarters fills ticks with free quarters and, for an odd remainder, one eighth
func padQuarters(ticks int) []slot {
	var out []slot
	for ; ticks >= models.Quarter.Ticks(); ticks -= models.Quarter.Ticks() {
		out = append(out, slot{dur: models.Quarter})
	}
	if ticks > 0 {
		out = append(out, slot{dur: models.Eighth})
	}
	return out
}

// chainSteps resolves a subsequence to concrete steps: each note is the
// nearest step carrying its syllable to the one before
func chainSteps(rs models.RuleSet, syllables []models.Syllable, first models.ScaleStep) ([]models.ScaleStep, bool) {
	out := []models.ScaleStep{first}
	for _, syl := range syllables[1:] {
		prev := out[len(out)-1]
		s, ok := nearestStep(rs, syl, prev)
		if !ok || (s.Distance(prev) > 1 && !rs.AllowsSkip(prev, s)) {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func (g *Generator) placeSubsequence(rs models.RuleSet, measures [][]slot, sub models.Subsequence) error {
	if len(sub.Syllables) == 0 {
		return nil
	}
	var chains [][]models.ScaleStep
	for _, first := range stepsFor(rs, sub.Syllables[0]) {
		if chain, ok := chainSteps(rs, sub.Syllables, first); ok {
			chains = append(chains, chain)
		}
	}
	if len(chains) == 0 {
		return fmt.Errorf("subsequence %s has no in-range realisation", describeSubsequence(sub))
	}
	chain := chains[g.rng.IntN(len(chains))]

	mt := rs.MeasureTicks()
	length := len(sub.Syllables) * sub.Duration.Ticks()
	span := (length + mt - 1) / mt

	var starts []int
	for m := 0; m+span <= len(measures); m++ {
		free := true
		for k := m; k < m+span; k++ {
			if measures[k] != nil {
				free = false
				break
			}
		}
		if free {
			starts = append(starts, m)
		}
	}
	if len(starts) == 0 {
		return fmt.Errorf("no room for subsequence %s", describeSubsequence(sub))
	}
	m := starts[g.rng.IntN(len(starts))]

	flat := make([]slot, 0, len(chain)+4)
	for _, s := range chain {
		flat = append(flat, slot{dur: sub.Duration, fixed: true, step: s})
	}
	flat = append(flat, padQuarters(span*mt-length)...)

	tick := 0
	for _, s := range flat {
		k := m + tick/mt
		if tick%mt+s.dur.Ticks() > mt {
			return fmt.Errorf("subsequence %s crosses a bar line", describeSubsequence(sub))
		}
		measures[k] = append(measures[k], s)
		tick += s.dur.Ticks()
	}
	return nil
}

// placeRests puts one rest start in each window, cycling windows when more
// rests are required than there are windows. Free measures record the rest
// tick for template selection; planned measures turn a free quarter into the
// rest.
func (g *Generator) placeRests(rs models.RuleSet, measures [][]slot, restTicks []int) error {
	windows := rs.RestWindows
	if len(windows) == 0 {
		windows = []models.Window{{Start: 0, End: float64(rs.RequiredBeats)}}
	}
	mt := rs.MeasureTicks()
	for r := 0; r < rs.RequiredRests; r++ {
		w := windows[r%len(windows)]

		type candidate struct {
			measure, tick, slot int
		}
		var cands []candidate
		var weights []float64
		for m := range measures {
			if measures[m] == nil {
				if restTicks[m] >= 0 {
					continue
				}
				for pos := 0; pos < mt; pos += models.TicksPerBeat {
					if !w.ContainsTick(m*mt + pos) {
						continue
					}
					cands = append(cands, candidate{measure: m, tick: pos, slot: -1})
					// Rests off the downbeat leave beat 1 free for half notes.
					if (pos/models.TicksPerBeat)%2 == 1 {
						weights = append(weights, 2)
					} else {
						weights = append(weights, 1)
					}
				}
				continue
			}
			tick := 0
			for i, s := range measures[m] {
				if !s.fixed && !s.rest && s.dur == models.Quarter && w.ContainsTick(m*mt+tick) {
					cands = append(cands, candidate{measure: m, tick: tick, slot: i})
					weights = append(weights, 1)
				}
				tick += s.dur.Ticks()
			}
		}
		if len(cands) == 0 {
			return fmt.Errorf("no room for a rest in beats [%g, %g)", w.Start, w.End)
		}
		c := cands[g.weighted(weights)]
		if c.slot >= 0 {
			measures[c.measure][c.slot].rest = true
		} else {
			restTicks[c.measure] = c.tick
		}
	}
	return nil
}

// fillRhythm assigns a template to every unplanned measure, steering the
// half-note count into range and the eighth pairs up to the minimum
func (g *Generator) fillRhythm(rs models.RuleSet, measures [][]slot, restTicks []int) error {
	mt := rs.MeasureTicks()
	halves, pairs := 0, 0
	var free []int
	for m, planned := range measures {
		if planned == nil {
			free = append(free, m)
			continue
		}
		halves += countSlotHalves(planned)
		pairs += countSlotPairs(planned)
	}

	options := make(map[int][]RhythmTemplate, len(free))
	capH := make(map[int]int, len(free))
	capP := make(map[int]int, len(free))
	totalH := 0
	for _, m := range free {
		opts := compatibleTemplates(rs, restTicks[m])
		if len(opts) == 0 {
			return fmt.Errorf("no rhythm fits measure %d", m+1)
		}
		options[m] = opts
		capH[m], capP[m] = capacity(opts)
		totalH += capH[m]
	}

	lo, hi := rs.HalfNotes.Min, rs.HalfNotes.Max
	if hi < lo {
		hi = lo
	}
	targetH := lo + g.rng.IntN(hi-lo+1)
	targetH = min(targetH, halves+totalH)
	targetP := rs.MinEighthPairs + g.rng.IntN(2)

	restH, restP := totalH, 0
	for _, m := range free {
		restP += capP[m]
	}
	for _, m := range free {
		restH -= capH[m]
		restP -= capP[m]
		needH := targetH - halves
		needP := targetP - pairs
		loH := max(0, needH-restH)
		hiH := max(0, needH)
		loP := max(0, needP-restP)

		pick := filterTemplates(options[m], func(t RhythmTemplate) bool {
			return t.Halves() >= loH && t.Halves() <= hiH && t.Pairs() >= loP
		})
		if len(pick) == 0 {
			pick = filterTemplates(options[m], func(t RhythmTemplate) bool {
				return t.Halves() >= loH && t.Halves() <= hiH
			})
		}
		if len(pick) == 0 {
			pick = options[m]
		}
		t := pick[g.rng.IntN(len(pick))]
		halves += t.Halves()
		pairs += t.Pairs()

		tick := 0
		out := make([]slot, len(t.Durations))
		for i, d := range t.Durations {
			out[i] = slot{dur: d, rest: tick == restTicks[m] && d == models.Quarter}
			tick += d.Ticks()
		}
		if tick != mt {
			return fmt.Errorf("template %s does not fill a measure", t.Name)
		}
		measures[m] = out
	}
	return nil
}

func filterTemplates(in []RhythmTemplate, keep func(RhythmTemplate) bool) []RhythmTemplate {
	var out []RhythmTemplate
	for _, t := range in {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

func countSlotHalves(slots []slot) int {
	n := 0
	for _, s := range slots {
		if !s.rest && s.dur == models.Half {
			n++
		}
	}
	return n
}

func countSlotPairs(slots []slot) int {
	notes := make([]models.Note, len(slots))
	for i, s := range slots {
		if s.rest {
			notes[i] = models.NewRest(s.dur)
		} else {
			notes[i] = models.NewNote(0, s.dur)
		}
	}
	return countEighthPairs(notes)
}

// walk assigns pitches to free sounding slots by steps and repeats, keeping
// every fixed note reachable by stepwise motion from the notes before it
func (g *Generator) walk(rs models.RuleSet, slots []slot) error {
	var sounding []int
	for i, s := range slots {
		if !s.rest {
			sounding = append(sounding, i)
		}
	}
	n := len(sounding)
	nextFixed := make([]int, n)
	next := -1
	for k := n - 1; k >= 0; k-- {
		nextFixed[k] = next
		if slots[sounding[k]].fixed {
			next = k
		}
	}

	steps := make([]models.ScaleStep, n)
	run := 0
	for k := 0; k < n; k++ {
		sl := &slots[sounding[k]]
		if !sl.fixed {
			cands, weights := g.moves(rs, steps, k, run, nextFixed[k], slots, sounding)
			if len(cands) == 0 {
				return fmt.Errorf("pitch walk dead-ends at note %d", sounding[k])
			}
			sl.step = cands[g.weighted(weights)]
		}
		steps[k] = sl.step
		if k > 0 && steps[k].Syllable() == steps[k-1].Syllable() {
			run++
		} else {
			run = 1
		}
	}
	return nil
}

func (g *Generator) moves(rs models.RuleSet, steps []models.ScaleStep, k, run, target int, slots []slot, sounding []int) ([]models.ScaleStep, []float64) {
	type move struct {
		step   models.ScaleStep
		weight float64
	}
	var options []move
	if k == 0 {
		for s := rs.Range.Low; s <= rs.Range.High; s++ {
			options = append(options, move{step: s, weight: 1})
		}
	} else {
		prev := steps[k-1]
		options = []move{
			{step: prev + 1, weight: g.weights.Up},
			{step: prev - 1, weight: g.weights.Down},
		}
		if run < rs.MaxRepeatRun {
			options = append(options, move{step: prev, weight: g.weights.Repeat})
		}
	}

	var cands []models.ScaleStep
	var weights []float64
	for _, o := range options {
		if o.weight <= 0 || !rs.Range.Contains(o.step) || !rs.AllowsSyllable(o.step.Syllable()) {
			continue
		}
		if target >= 0 {
			t := slots[sounding[target]].step
			if o.step.Distance(t) > target-k {
				continue
			}
			if target == k+1 && o.step.Syllable() == t.Syllable() {
				after := 1
				if k > 0 && o.step.Syllable() == steps[k-1].Syllable() {
					after = run + 1
				}
				if after+1 > rs.MaxRepeatRun {
					continue
				}
			}
		}
		cands = append(cands, o.step)
		weights = append(weights, o.weight)
	}
	return cands, weights
}

// weighted draws an index with probability proportional to its weight
func (g *Generator) weighted(weights []float64) int {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return g.rng.IntN(len(weights))
	}
	r := g.rng.Float64() * total
	for i, w := range weights {
		if r < w {
			return i
		}
		r -= w
	}
	return len(weights) - 1
}
