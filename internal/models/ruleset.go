package models

// Subsequence is an ordered run of syllables that must appear verbatim, each
// note at the given duration class
type Subsequence struct {
	Syllables []Syllable `json:"syllables" yaml:"syllables" validate:"min=2,dive,gte=0,lte=6"`
	Duration  Duration   `json:"duration" yaml:"duration" validate:"gte=0,lte=3"`
}

// Skip whitelists a non-stepwise interval between two syllables. The pair is
// unordered and only covers intervals within a fifth.
type Skip struct {
	From Syllable `json:"from" yaml:"from" validate:"gte=0,lte=6"`
	To   Syllable `json:"to" yaml:"to" validate:"gte=0,lte=6"`
}

// MaxSkipDistance bounds the interval a whitelisted skip may cover
const MaxSkipDistance = 4

// Matches reports whether motion between a and b is covered by the skip
func (s Skip) Matches(a, b ScaleStep) bool {
	if a.Distance(b) > MaxSkipDistance {
		return false
	}
	sa, sb := a.Syllable(), b.Syllable()
	return (sa == s.From && sb == s.To) || (sa == s.To && sb == s.From)
}

// Window is a half-open range of beat offsets [Start, End)
type Window struct {
	Start float64 `json:"start" yaml:"start" validate:"gte=0"`
	End   float64 `json:"end" yaml:"end" validate:"gtfield=Start"`
}

// ContainsTick reports whether a tick offset falls inside the window
func (w Window) ContainsTick(tick int) bool {
	beat := float64(tick) / TicksPerBeat
	return beat >= w.Start && beat < w.End
}

// IntRange is an inclusive integer range
type IntRange struct {
	Min int `json:"min" yaml:"min" validate:"gte=0"`
	Max int `json:"max" yaml:"max" validate:"gtefield=Min"`
}

// Contains reports whether v lies in [Min, Max]
func (r IntRange) Contains(v int) bool {
	return v >= r.Min && v <= r.Max
}

// StepRange bounds the pitches a pattern may use
type StepRange struct {
	Low  ScaleStep `json:"low" yaml:"low"`
	High ScaleStep `json:"high" yaml:"high" validate:"gtefield=Low"`
}

// Contains reports whether the step lies in [Low, High]
func (r StepRange) Contains(s ScaleStep) bool {
	return s >= r.Low && s <= r.High
}

// TerminalRule constrains the last three sounding notes
type TerminalRule struct {
	Last            Syllable   `json:"last" yaml:"last"`
	Penultimate     Syllable   `json:"penultimate" yaml:"penultimate"`
	Antepenultimate []Syllable `json:"antepenultimate" yaml:"antepenultimate" validate:"min=1"`
}

// DefaultTerminal ends on the tonic approached from the supertonic, with the
// antepenultimate note on the tonic or mediant
func DefaultTerminal() *TerminalRule {
	return &TerminalRule{Last: Do, Penultimate: Re, Antepenultimate: []Syllable{Do, Mi}}
}

// RuleSet holds the generation and validation parameters of one exercise tier
type RuleSet struct {
	Name                 string        `json:"name,omitempty" yaml:"name,omitempty"`
	Description          string        `json:"description,omitempty" yaml:"description,omitempty"`
	RequiredBeats        int           `json:"required_beats" yaml:"required_beats" validate:"gt=0"`
	BeatsPerMeasure      int           `json:"beats_per_measure" yaml:"beats_per_measure" validate:"omitempty,oneof=3 4"`
	AllowedSyllables     []Syllable    `json:"allowed_syllables,omitempty" yaml:"allowed_syllables,omitempty" validate:"dive,gte=0,lte=6"`
	RequiredSyllables    []Syllable    `json:"required_syllables,omitempty" yaml:"required_syllables,omitempty" validate:"dive,gte=0,lte=6"`
	RequiredSubsequences []Subsequence `json:"required_subsequences,omitempty" yaml:"required_subsequences,omitempty" validate:"dive"`
	AllowedSkips         []Skip        `json:"allowed_skips,omitempty" yaml:"allowed_skips,omitempty" validate:"dive"`
	RequiredRests        int           `json:"required_rests" yaml:"required_rests" validate:"gte=0"`
	RestWindows          []Window      `json:"rest_windows,omitempty" yaml:"rest_windows,omitempty" validate:"dive"`
	HalfNotes            IntRange      `json:"half_notes" yaml:"half_notes"`
	HalfNoteStartBeats   []int         `json:"half_note_start_beats,omitempty" yaml:"half_note_start_beats,omitempty" validate:"dive,gte=1,lte=4"`
	Terminal             *TerminalRule `json:"terminal,omitempty" yaml:"terminal,omitempty"`
	MinEighthPairs       int           `json:"min_eighth_pairs" yaml:"min_eighth_pairs" validate:"gte=0"`
	MaxRepeatRun         int           `json:"max_repeat_run" yaml:"max_repeat_run" validate:"gte=0"`
	Range                *StepRange    `json:"range,omitempty" yaml:"range,omitempty"`
	UsePool              bool          `json:"use_pool,omitempty" yaml:"use_pool,omitempty"`
	Dynamics             bool          `json:"dynamics,omitempty" yaml:"dynamics,omitempty"`
}

// Rule set defaults applied by Normalized
const (
	DefaultBeatsPerMeasure = 4
	DefaultMaxRepeatRun    = 2
)

// Normalized fills unset fields with defaults. The receiver is not modified.
func (r RuleSet) Normalized() RuleSet {
	if r.BeatsPerMeasure == 0 {
		r.BeatsPerMeasure = DefaultBeatsPerMeasure
	}
	if r.MaxRepeatRun == 0 {
		r.MaxRepeatRun = DefaultMaxRepeatRun
	}
	if len(r.HalfNoteStartBeats) == 0 {
		r.HalfNoteStartBeats = []int{1, 3}
	}
	if len(r.AllowedSyllables) == 0 {
		r.AllowedSyllables = AllSyllables()
	}
	if r.Range == nil {
		r.Range = &StepRange{Low: 0, High: SyllablesPerOctave}
	}
	if r.HalfNotes.Max == 0 && r.HalfNotes.Min == 0 {
		r.HalfNotes.Max = r.RequiredTicks() / Half.Ticks()
	}
	return r
}

// RequiredTicks is RequiredBeats expressed in eighth-note ticks
func (r RuleSet) RequiredTicks() int {
	return r.RequiredBeats * TicksPerBeat
}

// MeasureTicks is the length of one measure in ticks
func (r RuleSet) MeasureTicks() int {
	bpm := r.BeatsPerMeasure
	if bpm == 0 {
		bpm = DefaultBeatsPerMeasure
	}
	return bpm * TicksPerBeat
}

// Measures is the number of measures the pattern spans
func (r RuleSet) Measures() int {
	return (r.RequiredTicks() + r.MeasureTicks() - 1) / r.MeasureTicks()
}

// AllowsSyllable reports whether the syllable may appear in a pattern
func (r RuleSet) AllowsSyllable(s Syllable) bool {
	if len(r.AllowedSyllables) == 0 {
		return true
	}
	for _, a := range r.AllowedSyllables {
		if a == s {
			return true
		}
	}
	return false
}

// AllowsSkip reports whether a non-stepwise move between a and b is whitelisted
func (r RuleSet) AllowsSkip(a, b ScaleStep) bool {
	for _, s := range r.AllowedSkips {
		if s.Matches(a, b) {
			return true
		}
	}
	return false
}

// AllowsHalfAt reports whether a half note may start on the 1-based beat
func (r RuleSet) AllowsHalfAt(beat int) bool {
	starts := r.HalfNoteStartBeats
	if len(starts) == 0 {
		starts = []int{1, 3}
	}
	for _, b := range starts {
		if b == beat {
			return true
		}
	}
	return false
}
