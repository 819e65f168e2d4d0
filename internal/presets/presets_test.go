package presets

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conceptual-Machines/solfa-api/internal/models"
)

func TestLoad_EmbeddedCatalog(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"advanced", "beginner", "intermediate", "waltz"}, c.Names())
	assert.Equal(t, "intermediate", c.DefaultPreset().Name)
	for _, p := range c.All() {
		assert.Equal(t, p.Name, p.Rules.Name, "rule set inherits the preset name")
	}
}

func TestGet(t *testing.T) {
	tests := []struct {
		name    string
		preset  string
		wantErr bool
		check   func(t *testing.T, p Preset)
	}{
		{
			name:   "intermediate_is_scenario_a",
			preset: "intermediate",
			check: func(t *testing.T, p Preset) {
				rs := p.Rules
				assert.Equal(t, 32, rs.RequiredBeats)
				assert.Equal(t, 2, rs.RequiredRests)
				assert.Equal(t, models.IntRange{Min: 6, Max: 8}, rs.HalfNotes)
				require.Len(t, rs.RequiredSubsequences, 1)
				assert.Equal(t, []models.Syllable{models.Do, models.Mi, models.Sol}, rs.RequiredSubsequences[0].Syllables)
				assert.Equal(t, models.Quarter, rs.RequiredSubsequences[0].Duration)
				assert.Equal(t, "G", p.RenderConfig().KeySignature)
			},
		},
		{
			name:   "waltz_renders_in_three",
			preset: "waltz",
			check: func(t *testing.T, p Preset) {
				assert.Equal(t, 3, p.Rules.BeatsPerMeasure)
				assert.Equal(t, "3/4", p.RenderConfig().TimeSignature)
				assert.Equal(t, []int{1}, p.Rules.HalfNoteStartBeats)
			},
		},
		{
			name:   "advanced_uses_pool",
			preset: "advanced",
			check: func(t *testing.T, p Preset) {
				assert.True(t, p.Rules.UsePool)
				assert.True(t, p.Rules.Dynamics)
				require.NotNil(t, p.Rules.Terminal)
				assert.Equal(t, models.Do, p.Rules.Terminal.Last)
			},
		},
		{name: "unknown", preset: "virtuoso", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Get(tt.preset)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrUnknownPreset))
				return
			}
			require.NoError(t, err)
			tt.check(t, p)
		})
	}
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "empty", yaml: "presets: []"},
		{name: "missing_name", yaml: "presets:\n  - rules: {required_beats: 4}"},
		{name: "zero_beats", yaml: "presets:\n  - name: a\n    rules: {required_beats: 0}"},
		{name: "bad_meter", yaml: "presets:\n  - name: a\n    rules: {required_beats: 4, beats_per_measure: 5}"},
		{name: "bad_syllable", yaml: "presets:\n  - name: a\n    rules: {required_beats: 4, allowed_syllables: [Xa]}"},
		{name: "duplicate", yaml: "presets:\n  - name: a\n    rules: {required_beats: 4}\n  - name: a\n    rules: {required_beats: 4}"},
		{name: "unknown_default", yaml: "default: b\npresets:\n  - name: a\n    rules: {required_beats: 4}"},
		{name: "inverted_range", yaml: "presets:\n  - name: a\n    rules: {required_beats: 4, half_notes: {min: 3, max: 1}}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestValidateRuleSet(t *testing.T) {
	assert.NoError(t, ValidateRuleSet(models.RuleSet{RequiredBeats: 8}))
	assert.Error(t, ValidateRuleSet(models.RuleSet{RequiredBeats: 8, RequiredRests: -1}))
}
