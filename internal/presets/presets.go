// Package presets loads the difficulty tiers shipped with the service
package presets

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Conceptual-Machines/solfa-api/internal/models"
	"github.com/Conceptual-Machines/solfa-api/pkg/embedded"
)

// ErrUnknownPreset is returned when no tier carries the requested name
var ErrUnknownPreset = errors.New("unknown preset")

// RenderHints override parts of the default render config for a tier
type RenderHints struct {
	TimeSignature string `yaml:"time_signature" json:"time_signature,omitempty" validate:"omitempty,oneof=4/4 3/4"`
	KeySignature  string `yaml:"key_signature" json:"key_signature,omitempty" validate:"omitempty,oneof=C G F D Bb"`
}

// Preset is one difficulty tier
type Preset struct {
	Name        string         `yaml:"name" json:"name" validate:"required"`
	Description string         `yaml:"description" json:"description"`
	Render      RenderHints    `yaml:"render" json:"render"`
	Rules       models.RuleSet `yaml:"rules" json:"rules"`
}

// RenderConfig returns the tier's render config on top of the defaults
func (p Preset) RenderConfig() models.RenderConfig {
	cfg := models.RenderConfigFor(p.Rules.Normalized())
	if p.Render.TimeSignature != "" {
		cfg.TimeSignature = p.Render.TimeSignature
	}
	if p.Render.KeySignature != "" {
		cfg.KeySignature = p.Render.KeySignature
	}
	return cfg
}

// Catalog is a validated set of presets
type Catalog struct {
	Default string   `yaml:"default"`
	Presets []Preset `yaml:"presets" validate:"min=1,dive"`

	byName map[string]Preset
}

var validate = validator.New()

// Parse decodes and validates a preset catalog
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse presets: %w", err)
	}
	if err := validate.Struct(c); err != nil {
		return nil, fmt.Errorf("invalid presets: %w", err)
	}
	c.byName = make(map[string]Preset, len(c.Presets))
	for _, p := range c.Presets {
		if _, dup := c.byName[p.Name]; dup {
			return nil, fmt.Errorf("invalid presets: duplicate name %q", p.Name)
		}
		if p.Rules.Name == "" {
			p.Rules.Name = p.Name
		}
		if p.Rules.Description == "" {
			p.Rules.Description = p.Description
		}
		c.byName[p.Name] = p
	}
	if c.Default == "" {
		c.Default = c.Presets[0].Name
	}
	if _, ok := c.byName[c.Default]; !ok {
		return nil, fmt.Errorf("invalid presets: default %q: %w", c.Default, ErrUnknownPreset)
	}
	return &c, nil
}

// Get returns the named preset
func (c *Catalog) Get(name string) (Preset, error) {
	p, ok := c.byName[name]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return p, nil
}

// DefaultPreset returns the catalog's default tier
func (c *Catalog) DefaultPreset() Preset {
	return c.byName[c.Default]
}

// Names lists preset names in alphabetical order
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.byName))
	for n := range c.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// All returns the presets in file order
func (c *Catalog) All() []Preset {
	out := make([]Preset, len(c.Presets))
	for i, p := range c.Presets {
		out[i] = c.byName[p.Name]
	}
	return out
}

var (
	loaded     *Catalog
	loadErr    error
	loadedOnce sync.Once
)

// Load returns the embedded catalog, parsed once
func Load() (*Catalog, error) {
	loadedOnce.Do(func() {
		loaded, loadErr = Parse(embedded.PresetsYAML)
	})
	return loaded, loadErr
}

// Get looks up a tier in the embedded catalog
func Get(name string) (Preset, error) {
	c, err := Load()
	if err != nil {
		return Preset{}, err
	}
	return c.Get(name)
}

// ValidateRuleSet checks struct-level constraints of an inline rule set
func ValidateRuleSet(rs models.RuleSet) error {
	if err := validate.Struct(rs); err != nil {
		return fmt.Errorf("invalid rule set: %w", err)
	}
	return nil
}
