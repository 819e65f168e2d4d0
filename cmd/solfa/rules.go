package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Conceptual-Machines/solfa-api/internal/models"
	"github.com/Conceptual-Machines/solfa-api/internal/pattern"
	"github.com/Conceptual-Machines/solfa-api/internal/presets"
)

// tier is the resolved rule set and render layout for a command
type tier struct {
	name   string
	rules  models.RuleSet
	render models.RenderConfig
}

func resolveTier() (tier, error) {
	if rulesFile != "" {
		data, err := os.ReadFile(rulesFile)
		if err != nil {
			return tier{}, fmt.Errorf("failed to read rules: %w", err)
		}
		var rs models.RuleSet
		if err := yaml.Unmarshal(data, &rs); err != nil {
			return tier{}, fmt.Errorf("failed to parse rules: %w", err)
		}
		if err := presets.ValidateRuleSet(rs); err != nil {
			return tier{}, err
		}
		name := rs.Name
		if name == "" {
			name = "custom"
		}
		return tier{name: name, rules: rs, render: models.RenderConfigFor(rs.Normalized())}, nil
	}

	name := presetName
	if name == "" {
		name = cfg.DefaultPreset
	}
	p, err := presets.Get(name)
	if err != nil {
		return tier{}, err
	}
	return tier{name: p.Name, rules: p.Rules, render: p.RenderConfig()}, nil
}

func newGenerator() *pattern.Generator {
	opts := []pattern.Option{pattern.WithMaxAttempts(cfg.GeneratorMaxAttempts)}
	if seeded {
		opts = append(opts, pattern.WithSeed(seed))
	}
	return pattern.NewGenerator(opts...)
}
