package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// RenderConfig describes the staff layout of one exercise canvas
type RenderConfig struct {
	TimeSignature string  `json:"time_signature" yaml:"time_signature" validate:"oneof=4/4 3/4"`
	KeySignature  string  `json:"key_signature" yaml:"key_signature" validate:"oneof=C G F D Bb"`
	Width         float64 `json:"width" yaml:"width" validate:"gt=0"`
	Height        float64 `json:"height" yaml:"height" validate:"gt=0"`
	MarginLeft    float64 `json:"margin_left" yaml:"margin_left" validate:"gte=0"`
	MarginTop     float64 `json:"margin_top" yaml:"margin_top" validate:"gte=0"`
	StaveWidth    float64 `json:"stave_width" yaml:"stave_width" validate:"gt=0"`
	SystemSpacing float64 `json:"system_spacing" yaml:"system_spacing" validate:"gt=0"`
	LineSpacing   float64 `json:"line_spacing" yaml:"line_spacing" validate:"gt=0"`
}

// DefaultRenderConfig is a two-system 4/4 layout in C major
func DefaultRenderConfig() RenderConfig {
	return RenderConfig{
		TimeSignature: "4/4",
		KeySignature:  "C",
		Width:         960,
		Height:        380,
		MarginLeft:    20,
		MarginTop:     50,
		StaveWidth:    920,
		SystemSpacing: 160,
		LineSpacing:   10,
	}
}

// BeatsPerMeasure parses the numerator of the time signature
func (c RenderConfig) BeatsPerMeasure() (int, error) {
	num, den, ok := strings.Cut(c.TimeSignature, "/")
	if !ok {
		return 0, fmt.Errorf("invalid time signature %q", c.TimeSignature)
	}
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid time signature %q", c.TimeSignature)
	}
	if den != "4" {
		return 0, fmt.Errorf("unsupported time signature %q", c.TimeSignature)
	}
	return n, nil
}

// RenderConfigFor derives a render config whose meter matches the rule set
func RenderConfigFor(rs RuleSet) RenderConfig {
	cfg := DefaultRenderConfig()
	if rs.BeatsPerMeasure == 3 {
		cfg.TimeSignature = "3/4"
	}
	return cfg
}

// RenderedNote is the committed on-canvas position of one sounding note
type RenderedNote struct {
	Index          int     `json:"index"`
	AnchorX        float64 `json:"anchor_x"`
	AnchorY        float64 `json:"anchor_y"`
	LabelBaselineY float64 `json:"label_baseline_y"`
	System         int     `json:"system"`
}

// PositionMap is the sparse index → RenderedNote lookup produced by one render
// pass. Rests have no entry. A map is never modified after it is returned.
type PositionMap struct {
	entries map[int]RenderedNote
	hash    uint64
	engine  string
}

// NewPositionMap freezes the notes into a map tagged with the pattern hash and
// the engine that produced it
func NewPositionMap(notes []RenderedNote, hash uint64, engine string) *PositionMap {
	entries := make(map[int]RenderedNote, len(notes))
	for _, n := range notes {
		entries[n.Index] = n
	}
	return &PositionMap{entries: entries, hash: hash, engine: engine}
}

// Get returns the rendered note for a pattern index
func (m *PositionMap) Get(index int) (RenderedNote, bool) {
	if m == nil {
		return RenderedNote{}, false
	}
	n, ok := m.entries[index]
	return n, ok
}

// Len is the number of rendered (sounding) notes
func (m *PositionMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Indices returns the mapped pattern indices in ascending order
func (m *PositionMap) Indices() []int {
	if m == nil {
		return nil
	}
	out := make([]int, 0, len(m.entries))
	for i := range m.entries {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Notes returns the rendered notes in index order
func (m *PositionMap) Notes() []RenderedNote {
	indices := m.Indices()
	out := make([]RenderedNote, len(indices))
	for i, idx := range indices {
		out[i] = m.entries[idx]
	}
	return out
}

// PatternHash is the structural hash of the pattern the map was built for
func (m *PositionMap) PatternHash() uint64 {
	if m == nil {
		return 0
	}
	return m.hash
}

// Engine names the renderer that produced the map
func (m *PositionMap) Engine() string {
	if m == nil {
		return ""
	}
	return m.engine
}
