package pattern

import (
	"fmt"

	"github.com/Conceptual-Machines/solfa-api/internal/models"
)

// ViolationCode identifies which rule a pattern broke
type ViolationCode string

const (
	CodeBeatTotal          ViolationCode = "beat_total"
	CodeNoteShape          ViolationCode = "note_shape"
	CodeSyllableNotAllowed ViolationCode = "syllable_not_allowed"
	CodePitchOutOfRange    ViolationCode = "pitch_out_of_range"
	CodeMissingSyllable    ViolationCode = "missing_syllable"
	CodeMissingSubsequence ViolationCode = "missing_subsequence"
	CodeSkip               ViolationCode = "skip"
	CodeRepeatRun          ViolationCode = "repeat_run"
	CodeRestCount          ViolationCode = "rest_count"
	CodeRestWindow         ViolationCode = "rest_window"
	CodeHalfCount          ViolationCode = "half_count"
	CodeHalfStart          ViolationCode = "half_start"
	CodeTerminal           ViolationCode = "terminal"
	CodeEighthPairs        ViolationCode = "eighth_pairs"
	CodeBarCrossing        ViolationCode = "bar_crossing"
)

// Violation is one broken rule. Index points at the offending note, or is -1
// for pattern-wide rules.
type Violation struct {
	Code    ViolationCode `json:"code"`
	Message string        `json:"message"`
	Index   int           `json:"index"`
}

// Result lists every violation found; nothing short-circuits
type Result struct {
	IsValid    bool        `json:"is_valid"`
	Violations []Violation `json:"violations"`
}

// Has reports whether any violation carries the code
func (r Result) Has(code ViolationCode) bool {
	for _, v := range r.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

// Codes returns the distinct violation codes in first-seen order
func (r Result) Codes() []ViolationCode {
	seen := make(map[ViolationCode]bool)
	var codes []ViolationCode
	for _, v := range r.Violations {
		if !seen[v.Code] {
			seen[v.Code] = true
			codes = append(codes, v.Code)
		}
	}
	return codes
}

type checker struct {
	notes    []models.Note
	offsets  []int
	sounding []int
	rs       models.RuleSet
	out      []Violation
}

func (c *checker) add(code ViolationCode, index int, format string, args ...any) {
	c.out = append(c.out, Violation{Code: code, Message: fmt.Sprintf(format, args...), Index: index})
}

// Validate checks a candidate pattern against the rule set. It is pure and
// reports every violation so callers get complete diagnostics.
func Validate(p *models.Pattern, rs models.RuleSet) Result {
	var notes []models.Note
	if p != nil {
		notes = p.Notes
	}
	c := &checker{rs: rs.Normalized(), notes: notes}
	tick := 0
	c.offsets = make([]int, len(notes))
	for i, n := range notes {
		c.offsets[i] = tick
		tick += n.Duration.Ticks()
		if !n.IsRest() {
			c.sounding = append(c.sounding, i)
		}
	}

	c.checkBeatTotal(tick)
	c.checkNoteShapes()
	c.checkBarCrossings()
	c.checkRequiredSyllables()
	c.checkSubsequences()
	c.checkMotion()
	c.checkRepeatRuns()
	c.checkRests()
	c.checkHalfNotes()
	c.checkTerminal()
	c.checkEighthPairs()

	violations := c.out
	if violations == nil {
		violations = []Violation{}
	}
	return Result{IsValid: len(violations) == 0, Violations: violations}
}

func (c *checker) checkBeatTotal(total int) {
	if total != c.rs.RequiredTicks() {
		c.add(CodeBeatTotal, -1, "pattern spans %.1f beats, want %d",
			float64(total)/models.TicksPerBeat, c.rs.RequiredBeats)
	}
}

func (c *checker) checkNoteShapes() {
	for i, n := range c.notes {
		if n.Duration.Ticks() == 0 {
			c.add(CodeNoteShape, i, "note %d has unknown duration %d", i, int(n.Duration))
		}
		if n.IsRest() {
			if n.Pitch != nil || n.Syllable != nil {
				c.add(CodeNoteShape, i, "rest %d carries a pitch or syllable", i)
			}
			continue
		}
		if n.Kind != models.KindNote || n.Pitch == nil || n.Syllable == nil {
			c.add(CodeNoteShape, i, "note %d is missing its pitch or syllable", i)
			continue
		}
		if n.Pitch.Syllable() != *n.Syllable {
			c.add(CodeNoteShape, i, "note %d is labelled %s but pitched as %s", i, *n.Syllable, n.Pitch.Syllable())
		}
		if !c.rs.AllowsSyllable(*n.Syllable) {
			c.add(CodeSyllableNotAllowed, i, "note %d uses %s, which is not allowed", i, *n.Syllable)
		}
		if !c.rs.Range.Contains(*n.Pitch) {
			c.add(CodePitchOutOfRange, i, "note %d pitch %d is outside [%d, %d]", i, *n.Pitch, c.rs.Range.Low, c.rs.Range.High)
		}
	}
}

func (c *checker) checkBarCrossings() {
	mt := c.rs.MeasureTicks()
	for i, n := range c.notes {
		if c.offsets[i]%mt+n.Duration.Ticks() > mt {
			c.add(CodeBarCrossing, i, "note %d (%s) crosses a bar line", i, n.Duration)
		}
	}
}

func (c *checker) checkRequiredSyllables() {
	present := make(map[models.Syllable]bool)
	for _, i := range c.sounding {
		if s := c.notes[i].Syllable; s != nil {
			present[*s] = true
		}
	}
	for _, s := range c.rs.RequiredSyllables {
		if !present[s] {
			c.add(CodeMissingSyllable, -1, "required syllable %s never appears", s)
		}
	}
}

func (c *checker) checkSubsequences() {
	for _, sub := range c.rs.RequiredSubsequences {
		if !containsSubsequence(c.notes, sub) {
			c.add(CodeMissingSubsequence, -1, "required subsequence %s never appears", describeSubsequence(sub))
		}
	}
}

// containsSubsequence reports whether the syllables occur as consecutive
// pattern elements, each a sounding note of the required duration
func containsSubsequence(notes []models.Note, sub models.Subsequence) bool {
	k := len(sub.Syllables)
	if k == 0 {
		return true
	}
	for start := 0; start+k <= len(notes); start++ {
		matched := true
		for j, want := range sub.Syllables {
			n := notes[start+j]
			if n.IsRest() || n.Syllable == nil || *n.Syllable != want || n.Duration != sub.Duration {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

func describeSubsequence(sub models.Subsequence) string {
	s := ""
	for i, syl := range sub.Syllables {
		if i > 0 {
			s += "-"
		}
		s += syl.String()
	}
	return fmt.Sprintf("%s (%s)", s, sub.Duration)
}

func (c *checker) checkMotion() {
	for k := 1; k < len(c.sounding); k++ {
		prev, cur := c.sounding[k-1], c.sounding[k]
		a, okA := c.notes[prev].Step()
		b, okB := c.notes[cur].Step()
		if !okA || !okB {
			continue
		}
		if a.Distance(b) > 1 && !c.rs.AllowsSkip(a, b) {
			c.add(CodeSkip, cur, "note %d leaps %d steps from %s to %s", cur, a.Distance(b), a.Syllable(), b.Syllable())
		}
	}
}

func (c *checker) checkRepeatRuns() {
	run := 0
	var last models.Syllable
	for k, i := range c.sounding {
		s := c.notes[i].Syllable
		if s == nil {
			run = 0
			continue
		}
		if k > 0 && run > 0 && *s == last {
			run++
		} else {
			run = 1
		}
		last = *s
		if run == c.rs.MaxRepeatRun+1 {
			c.add(CodeRepeatRun, i, "%s repeats more than %d times in a row at note %d", *s, c.rs.MaxRepeatRun, i)
		}
	}
}

func (c *checker) checkRests() {
	var rests []int
	for i, n := range c.notes {
		if n.IsRest() {
			rests = append(rests, i)
		}
	}
	if len(rests) != c.rs.RequiredRests {
		c.add(CodeRestCount, -1, "pattern has %d rests, want %d", len(rests), c.rs.RequiredRests)
	}
	for _, w := range c.rs.RestWindows {
		found := false
		for _, i := range rests {
			if w.ContainsTick(c.offsets[i]) {
				found = true
				break
			}
		}
		if !found {
			c.add(CodeRestWindow, -1, "no rest starts within beats [%g, %g)", w.Start, w.End)
		}
	}
}

func (c *checker) checkHalfNotes() {
	mt := c.rs.MeasureTicks()
	count := 0
	for i, n := range c.notes {
		if n.IsRest() || n.Duration != models.Half {
			continue
		}
		count++
		pos := c.offsets[i] % mt
		beat := pos/models.TicksPerBeat + 1
		if pos%models.TicksPerBeat != 0 || !c.rs.AllowsHalfAt(beat) {
			c.add(CodeHalfStart, i, "half note %d starts at beat %.1f of its measure",
				i, float64(pos)/models.TicksPerBeat+1)
		}
	}
	if !c.rs.HalfNotes.Contains(count) {
		c.add(CodeHalfCount, -1, "pattern has %d half notes, want %d to %d", count, c.rs.HalfNotes.Min, c.rs.HalfNotes.Max)
	}
}

func (c *checker) checkTerminal() {
	t := c.rs.Terminal
	if t == nil {
		return
	}
	if len(c.notes) > 0 && c.notes[len(c.notes)-1].IsRest() {
		c.add(CodeTerminal, len(c.notes)-1, "pattern ends on a rest")
	}
	n := len(c.sounding)
	if n < 3 {
		c.add(CodeTerminal, -1, "pattern has %d sounding notes, need at least 3 for the cadence", n)
		return
	}
	last, pen, ante := c.sounding[n-1], c.sounding[n-2], c.sounding[n-3]
	if s := c.notes[last].Syllable; s == nil || *s != t.Last {
		c.add(CodeTerminal, last, "last note must be %s", t.Last)
	}
	if s := c.notes[pen].Syllable; s == nil || *s != t.Penultimate {
		c.add(CodeTerminal, pen, "penultimate note must be %s", t.Penultimate)
	}
	if s := c.notes[ante].Syllable; s == nil || !containsSyllable(t.Antepenultimate, *s) {
		c.add(CodeTerminal, ante, "antepenultimate note must be one of %v", t.Antepenultimate)
	}
}

func containsSyllable(list []models.Syllable, s models.Syllable) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// countEighthPairs counts beamable pairs: two consecutive sounding eighths
// whose first note starts on a beat
func countEighthPairs(notes []models.Note) int {
	pairs := 0
	tick := 0
	for i := 0; i < len(notes); i++ {
		n := notes[i]
		if i+1 < len(notes) && tick%models.TicksPerBeat == 0 && isSoundingEighth(n) && isSoundingEighth(notes[i+1]) {
			pairs++
			tick += 2
			i++
			continue
		}
		tick += n.Duration.Ticks()
	}
	return pairs
}

func isSoundingEighth(n models.Note) bool {
	return !n.IsRest() && n.Duration == models.Eighth
}

func (c *checker) checkEighthPairs() {
	if pairs := countEighthPairs(c.notes); pairs < c.rs.MinEighthPairs {
		c.add(CodeEighthPairs, -1, "pattern has %d eighth-note pairs, want at least %d", pairs, c.rs.MinEighthPairs)
	}
}
