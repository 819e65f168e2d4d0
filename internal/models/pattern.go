package models

import (
	"encoding/binary"
	"hash/fnv"
)

// PatternSource records how a pattern was produced
type PatternSource string

const (
	SourceProcedural PatternSource = "procedural" // randomized construction + validation
	SourceStatic     PatternSource = "static"     // pre-authored fallback after retry exhaustion
	SourcePool       PatternSource = "pool"       // curated hand-authored pool
)

// Dynamic is a dynamics marking drawn next to a system
type Dynamic string

const (
	Forte Dynamic = "forte"
	Piano Dynamic = "piano"
)

// Symbol returns the engraved text for the marking
func (d Dynamic) Symbol() string {
	switch d {
	case Forte:
		return "f"
	case Piano:
		return "p"
	default:
		return ""
	}
}

// Dynamics is the optional per-system annotation. It is decoration consumed by
// rendering only and never checked by validation.
type Dynamics struct {
	TopStaff    Dynamic `json:"top_staff,omitempty" yaml:"top_staff,omitempty"`
	BottomStaff Dynamic `json:"bottom_staff,omitempty" yaml:"bottom_staff,omitempty"`
}

// ForSystem returns the marking for system 0 (top) or 1 (bottom)
func (d *Dynamics) ForSystem(system int) Dynamic {
	if d == nil {
		return ""
	}
	if system == 0 {
		return d.TopStaff
	}
	return d.BottomStaff
}

// Pattern is one generated melody. A pattern is created once per attempt and
// replaced wholesale on retry; callers must not mutate Notes after creation.
type Pattern struct {
	Notes     []Note        `json:"notes"`
	Dynamics  *Dynamics     `json:"dynamics,omitempty"`
	Source    PatternSource `json:"source,omitempty"`
	PoolIndex int           `json:"pool_index"` // -1 unless Source is pool
}

// NewPattern wraps notes as a procedural pattern
func NewPattern(notes []Note) *Pattern {
	return &Pattern{Notes: notes, Source: SourceProcedural, PoolIndex: -1}
}

// TotalTicks sums note lengths in eighth-note ticks
func (p *Pattern) TotalTicks() int {
	total := 0
	for _, n := range p.Notes {
		total += n.Duration.Ticks()
	}
	return total
}

// TotalBeats sums note lengths in quarter-note beats
func (p *Pattern) TotalBeats() float64 {
	return float64(p.TotalTicks()) / TicksPerBeat
}

// Offsets returns the start tick of every note
func (p *Pattern) Offsets() []int {
	offsets := make([]int, len(p.Notes))
	tick := 0
	for i, n := range p.Notes {
		offsets[i] = tick
		tick += n.Duration.Ticks()
	}
	return offsets
}

// SoundingIndices returns the indices of all non-rest notes in order
func (p *Pattern) SoundingIndices() []int {
	indices := make([]int, 0, len(p.Notes))
	for i, n := range p.Notes {
		if !n.IsRest() {
			indices = append(indices, i)
		}
	}
	return indices
}

// Hash is the structural hash over the (duration, pitch, syllable) sequence.
// Dynamics and provenance do not participate.
func (p *Pattern) Hash() uint64 {
	if p == nil {
		return 0
	}
	h := fnv.New64a()
	var buf [8]byte
	write := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(v)))
		_, _ = h.Write(buf[:])
	}
	write(len(p.Notes))
	for _, n := range p.Notes {
		write(int(n.Duration))
		if step, ok := n.Step(); ok {
			write(1)
			write(int(step))
		} else {
			write(0)
			write(0)
		}
		if n.Syllable != nil {
			write(int(*n.Syllable))
		} else {
			write(-1)
		}
	}
	return h.Sum64()
}

// String renders the notes in compact notation
func (p *Pattern) String() string {
	return FormatNotes(p.Notes)
}
