package pattern

import (
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Conceptual-Machines/solfa-api/internal/models"
	"github.com/Conceptual-Machines/solfa-api/pkg/embedded"
)

// LibraryEntry is one hand-authored pattern in compact notation
type LibraryEntry struct {
	Index           int              `yaml:"-"`
	Name            string           `yaml:"name"`
	BeatsPerMeasure int              `yaml:"beats_per_measure"`
	Beats           int              `yaml:"beats"`
	Dynamics        *models.Dynamics `yaml:"dynamics,omitempty"`
	Notes           string           `yaml:"notes"`

	parsed []models.Note
}

// Pattern returns a fresh pattern built from the entry
func (e LibraryEntry) Pattern(source models.PatternSource) *models.Pattern {
	notes := make([]models.Note, len(e.parsed))
	copy(notes, e.parsed)
	p := models.NewPattern(notes)
	p.Source = source
	if source == models.SourcePool {
		p.PoolIndex = e.Index
	}
	if e.Dynamics != nil {
		d := *e.Dynamics
		p.Dynamics = &d
	}
	return p
}

func (e LibraryEntry) matches(rs models.RuleSet) bool {
	return e.Beats == rs.RequiredBeats && e.BeatsPerMeasure == rs.BeatsPerMeasure
}

// Library holds the static fallbacks and the curated pool
type Library struct {
	Static []LibraryEntry `yaml:"static"`
	Pool   []LibraryEntry `yaml:"pool"`
}

// LoadLibrary parses a YAML pattern library
func LoadLibrary(data []byte) (*Library, error) {
	var lib Library
	if err := yaml.Unmarshal(data, &lib); err != nil {
		return nil, fmt.Errorf("failed to parse pattern library: %w", err)
	}
	for _, list := range [][]LibraryEntry{lib.Static, lib.Pool} {
		for i := range list {
			notes, err := models.ParseNotes(list[i].Notes)
			if err != nil {
				return nil, fmt.Errorf("pattern %q: %w", list[i].Name, err)
			}
			if list[i].BeatsPerMeasure == 0 {
				list[i].BeatsPerMeasure = models.DefaultBeatsPerMeasure
			}
			list[i].Index = i
			list[i].parsed = notes
		}
	}
	return &lib, nil
}

var (
	defaultLibrary     *Library
	defaultLibraryErr  error
	defaultLibraryOnce sync.Once
)

// DefaultLibrary returns the embedded pattern library. A broken embed yields
// an empty library so generation can still fall back to the generic builder.
func DefaultLibrary() *Library {
	defaultLibraryOnce.Do(func() {
		defaultLibrary, defaultLibraryErr = LoadLibrary(embedded.PatternsYAML)
		if defaultLibraryErr != nil {
			defaultLibrary = &Library{}
		}
	})
	return defaultLibrary
}

// DefaultLibraryError reports why the embedded library failed to load, if it did
func DefaultLibraryError() error {
	DefaultLibrary()
	return defaultLibraryErr
}

// PoolFor returns the pool entries whose shape matches the rule set
func (l *Library) PoolFor(rs models.RuleSet) []LibraryEntry {
	if l == nil {
		return nil
	}
	rs = rs.Normalized()
	var out []LibraryEntry
	for _, e := range l.Pool {
		if e.matches(rs) {
			out = append(out, e)
		}
	}
	return out
}

// StaticFor returns the static fallback for the rule set's shape. When no
// authored pattern matches, a generic stepwise quarter-note walk of exactly
// the required length is built instead.
func (l *Library) StaticFor(rs models.RuleSet) *models.Pattern {
	rs = rs.Normalized()
	if l != nil {
		for _, e := range l.Static {
			if e.matches(rs) {
				return e.Pattern(models.SourceStatic)
			}
		}
	}
	p := models.NewPattern(genericWalk(rs))
	p.Source = models.SourceStatic
	return p
}

// genericWalk guarantees the beat total and a Re-Do close, nothing more
func genericWalk(rs models.RuleSet) []models.Note {
	contour := []models.ScaleStep{0, 1, 2, 1}
	ticks := rs.RequiredTicks()
	quarters := ticks / models.Quarter.Ticks()
	notes := make([]models.Note, 0, quarters+1)
	for i := 0; i < quarters; i++ {
		step := contour[i%len(contour)]
		switch i {
		case quarters - 1:
			step = 0
		case quarters - 2:
			step = 1
		}
		notes = append(notes, models.NewNote(step, models.Quarter))
	}
	if ticks%models.Quarter.Ticks() != 0 {
		notes = append(notes, models.NewNote(0, models.Eighth))
	}
	return notes
}
