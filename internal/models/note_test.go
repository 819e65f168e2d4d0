package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration_Beats(t *testing.T) {
	tests := []struct {
		d     Duration
		beats float64
		short string
	}{
		{Eighth, 0.5, "e"},
		{Quarter, 1, "q"},
		{Half, 2, "h"},
		{Whole, 4, "w"},
	}
	for _, tt := range tests {
		t.Run(tt.d.String(), func(t *testing.T) {
			assert.Equal(t, tt.beats, tt.d.Beats())
			assert.Equal(t, tt.short, tt.d.Short())
		})
	}
	assert.Zero(t, Duration(9).Ticks())
}

func TestScaleStep_Syllable(t *testing.T) {
	tests := []struct {
		step ScaleStep
		want Syllable
	}{
		{0, Do},
		{2, Mi},
		{4, Sol},
		{7, Do},
		{-1, Ti},
		{-7, Do},
		{-8, Ti},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.step.Syllable(), "step %d", tt.step)
	}
	assert.Equal(t, 3, ScaleStep(-1).Distance(2))
}

func TestParseSyllable(t *testing.T) {
	s, err := ParseSyllable("so")
	require.NoError(t, err)
	assert.Equal(t, Sol, s)

	s, err = ParseSyllable(" TI ")
	require.NoError(t, err)
	assert.Equal(t, Ti, s)

	_, err = ParseSyllable("Si")
	assert.Error(t, err)
}

func TestParseNotes_RoundTripsCompactNotation(t *testing.T) {
	in := "Do:h Re:q | Mi:e Fa:e -:q Do':w Ti,:q"

	notes, err := ParseNotes(in)
	require.NoError(t, err)
	require.Len(t, notes, 7)

	assert.True(t, notes[4].IsRest())
	step, ok := notes[5].Step()
	require.True(t, ok)
	assert.Equal(t, ScaleStep(7), step)
	step, _ = notes[6].Step()
	assert.Equal(t, ScaleStep(-1), step)
	assert.Equal(t, "Ti", notes[6].Label())
	assert.Equal(t, "Do:h Re:q Mi:e Fa:e -:q Do':w Ti,:q", FormatNotes(notes))
}

func TestParseNotes_Errors(t *testing.T) {
	for _, in := range []string{"Do", "Do:z", "Xo:q"} {
		_, err := ParseNotes(in)
		assert.Error(t, err, in)
	}
}

func TestNote_JSONShape(t *testing.T) {
	b, err := json.Marshal([]Note{NewNote(2, Quarter), NewRest(Half)})
	require.NoError(t, err)

	assert.JSONEq(t, `[
		{"type":"note","pitch":2,"syllable":"Mi","duration":"quarter"},
		{"type":"rest","duration":"half"}
	]`, string(b))

	var back []Note
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, "Mi:q -:h", FormatNotes(back))
}
