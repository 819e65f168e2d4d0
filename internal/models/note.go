package models

import (
	"fmt"
	"strings"
)

// Duration is the rhythmic class of a note or rest
type Duration int

const (
	Eighth Duration = iota
	Quarter
	Half
	Whole
)

// Ticks per duration class. One tick is an eighth note, so every duration in
// a pattern sums exactly without floating point drift.
const (
	TicksPerBeat = 2
)

var durationNames = map[Duration]string{
	Eighth:  "eighth",
	Quarter: "quarter",
	Half:    "half",
	Whole:   "whole",
}

// Ticks returns the length of the duration in eighth-note ticks
func (d Duration) Ticks() int {
	switch d {
	case Eighth:
		return 1
	case Quarter:
		return 2
	case Half:
		return 4
	case Whole:
		return 8
	default:
		return 0
	}
}

// Beats returns the length in quarter-note beats (quarter=1, eighth=0.5, half=2, whole=4)
func (d Duration) Beats() float64 {
	return float64(d.Ticks()) / TicksPerBeat
}

func (d Duration) String() string {
	if name, ok := durationNames[d]; ok {
		return name
	}
	return fmt.Sprintf("Duration(%d)", int(d))
}

// Short returns the one-letter code used in compact notation (e, q, h, w)
func (d Duration) Short() string {
	return d.String()[:1]
}

// ParseDuration accepts full names ("quarter") and one-letter codes ("q")
func ParseDuration(s string) (Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d, name := range durationNames {
		if s == name || s == name[:1] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown duration %q", s)
}

func (d Duration) MarshalText() ([]byte, error) {
	if _, ok := durationNames[d]; !ok {
		return nil, fmt.Errorf("unknown duration %d", int(d))
	}
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Syllable is a moveable-do solfège label, independent of absolute pitch
type Syllable int

const (
	Do Syllable = iota
	Re
	Mi
	Fa
	Sol
	La
	Ti
)

// SyllablesPerOctave is the number of diatonic scale degrees
const SyllablesPerOctave = 7

var syllableNames = [SyllablesPerOctave]string{"Do", "Re", "Mi", "Fa", "Sol", "La", "Ti"}

// AllSyllables lists the scale degrees in order
func AllSyllables() []Syllable {
	return []Syllable{Do, Re, Mi, Fa, Sol, La, Ti}
}

func (s Syllable) String() string {
	if s < Do || s > Ti {
		return fmt.Sprintf("Syllable(%d)", int(s))
	}
	return syllableNames[s]
}

// ParseSyllable is case-insensitive and accepts "So" as an alias of Sol
func ParseSyllable(s string) (Syllable, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "so" {
		return Sol, nil
	}
	for i, n := range syllableNames {
		if strings.ToLower(n) == name {
			return Syllable(i), nil
		}
	}
	return 0, fmt.Errorf("unknown syllable %q", s)
}

func (s Syllable) MarshalText() ([]byte, error) {
	if s < Do || s > Ti {
		return nil, fmt.Errorf("unknown syllable %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Syllable) UnmarshalText(text []byte) error {
	parsed, err := ParseSyllable(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ScaleStep counts diatonic steps above the tonic: 0 is Do, 2 is Mi, 4 is Sol,
// 7 is the upper Do. Negative steps sit below the tonic.
type ScaleStep int

// Syllable returns the scale-degree label of the step
func (s ScaleStep) Syllable() Syllable {
	m := int(s) % SyllablesPerOctave
	if m < 0 {
		m += SyllablesPerOctave
	}
	return Syllable(m)
}

// Distance is the absolute number of diatonic steps between two pitches
func (s ScaleStep) Distance(other ScaleStep) int {
	d := int(s) - int(other)
	if d < 0 {
		return -d
	}
	return d
}

// NoteKind distinguishes sounding notes from rests
type NoteKind string

const (
	KindNote NoteKind = "note"
	KindRest NoteKind = "rest"
)

// Note is one element of a pattern. Rests carry no pitch or syllable.
type Note struct {
	Kind     NoteKind   `json:"type" yaml:"type"`
	Pitch    *ScaleStep `json:"pitch,omitempty" yaml:"pitch,omitempty"`
	Syllable *Syllable  `json:"syllable,omitempty" yaml:"syllable,omitempty"`
	Duration Duration   `json:"duration" yaml:"duration"`
}

// NewNote builds a sounding note whose syllable is derived from the step
func NewNote(step ScaleStep, d Duration) Note {
	pitch := step
	syl := step.Syllable()
	return Note{Kind: KindNote, Pitch: &pitch, Syllable: &syl, Duration: d}
}

// NewRest builds a rest of the given duration
func NewRest(d Duration) Note {
	return Note{Kind: KindRest, Duration: d}
}

// IsRest reports whether the note is a rest
func (n Note) IsRest() bool {
	return n.Kind == KindRest
}

// Step returns the pitch of a sounding note
func (n Note) Step() (ScaleStep, bool) {
	if n.IsRest() || n.Pitch == nil {
		return 0, false
	}
	return *n.Pitch, true
}

// Label returns the syllable text shown under the note, or "" for rests
func (n Note) Label() string {
	if n.IsRest() || n.Syllable == nil {
		return ""
	}
	return n.Syllable.String()
}

// String renders the note in compact notation, e.g. "Mi:q", "Do':h", "-:q"
func (n Note) String() string {
	if n.IsRest() {
		return "-:" + n.Duration.Short()
	}
	step, ok := n.Step()
	if !ok {
		return "?:" + n.Duration.Short()
	}
	var b strings.Builder
	b.WriteString(step.Syllable().String())
	octave := int(step) / SyllablesPerOctave
	if int(step) < 0 && int(step)%SyllablesPerOctave != 0 {
		octave--
	}
	for ; octave > 0; octave-- {
		b.WriteByte('\'')
	}
	for ; octave < 0; octave++ {
		b.WriteByte(',')
	}
	b.WriteByte(':')
	b.WriteString(n.Duration.Short())
	return b.String()
}

// ParseNotes reads compact notation: whitespace-separated tokens of the form
// "<syllable>[',]*:<duration>" or "-:<duration>" for rests. "|" tokens mark bar
// lines for readability and are ignored. Each "'" raises the pitch an octave,
// each "," lowers it.
func ParseNotes(s string) ([]Note, error) {
	fields := strings.Fields(s)
	notes := make([]Note, 0, len(fields))
	for _, tok := range fields {
		if tok == "|" {
			continue
		}
		head, dur, ok := strings.Cut(tok, ":")
		if !ok {
			return nil, fmt.Errorf("token %q: missing duration", tok)
		}
		d, err := ParseDuration(dur)
		if err != nil {
			return nil, fmt.Errorf("token %q: %w", tok, err)
		}
		if head == "-" || strings.EqualFold(head, "r") {
			notes = append(notes, NewRest(d))
			continue
		}
		octave := 0
		name := strings.TrimRight(head, "',")
		for _, r := range head[len(name):] {
			if r == '\'' {
				octave++
			} else {
				octave--
			}
		}
		syl, err := ParseSyllable(name)
		if err != nil {
			return nil, fmt.Errorf("token %q: %w", tok, err)
		}
		notes = append(notes, NewNote(ScaleStep(int(syl)+octave*SyllablesPerOctave), d))
	}
	return notes, nil
}

// FormatNotes is the inverse of ParseNotes (without bar markers)
func FormatNotes(notes []Note) string {
	parts := make([]string, len(notes))
	for i, n := range notes {
		parts[i] = n.String()
	}
	return strings.Join(parts, " ")
}
