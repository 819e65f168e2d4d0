package embedded

import (
	_ "embed"
)

// Difficulty presets: one rule set per tier
//
//go:embed data/presets.yaml
var PresetsYAML []byte

// Static fallbacks per meter plus the curated pool for multi-subsequence tiers
//
//go:embed data/patterns.yaml
var PatternsYAML []byte
