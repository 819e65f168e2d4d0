package exercise

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Conceptual-Machines/solfa-api/internal/canvas"
	"github.com/Conceptual-Machines/solfa-api/internal/engraving/builtin"
	"github.com/Conceptual-Machines/solfa-api/internal/metrics"
	"github.com/Conceptual-Machines/solfa-api/internal/models"
	"github.com/Conceptual-Machines/solfa-api/internal/notation"
	"github.com/Conceptual-Machines/solfa-api/internal/pattern"
	"github.com/Conceptual-Machines/solfa-api/internal/presets"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func recorderLayers() Layers {
	return Layers{
		Notation:  canvas.NewRecorder(960, 380),
		Highlight: canvas.NewRecorder(960, 380),
		Labels:    canvas.NewRecorder(960, 380),
	}
}

func preset(t *testing.T, name string) presets.Preset {
	t.Helper()
	p, err := presets.Get(name)
	require.NoError(t, err)
	return p
}

func TestSession_Lifecycle(t *testing.T) {
	tier := preset(t, "intermediate")
	counters := metrics.NewCounters()
	s := New(tier.Rules, recorderLayers(),
		WithGenerator(pattern.NewGenerator(pattern.WithSeed(3))),
		WithEngraver(builtin.New()),
		WithMetrics(counters),
		WithRenderConfig(tier.RenderConfig()),
		WithFrameInterval(time.Millisecond),
	)
	defer s.Close()

	assert.Equal(t, StateIdle, s.State())
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "intermediate", s.Preset)

	p := s.Generate(context.Background())
	require.NotNil(t, p)
	assert.Contains(t, []State{StateGenerated, StateGeneratedFallback}, s.State())
	assert.True(t, pattern.Validate(p, tier.Rules).IsValid)
	assert.Equal(t, p.SoundingIndices()[0], s.Progress().CurrentIndex)
	assert.Nil(t, s.Positions())

	pm, err := s.Render(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateRendered, s.State())
	assert.Equal(t, p.SoundingIndices(), pm.Indices())
	assert.Same(t, pm, s.Overlay().Positions())

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, StateInteractive, s.State())
	assert.Eventually(t, func() bool { return s.Overlay().Frames() > 0 }, time.Second, time.Millisecond)

	done := models.NewProgress(models.ReviewIndex, p.SoundingIndices(), nil)
	done.ExerciseComplete = true
	s.SetProgress(done)
	assert.Equal(t, StateComplete, s.State())

	s.Close()
	assert.False(t, s.Overlay().Running())

	snap := counters.Snapshot()
	assert.Equal(t, int64(1), snap.Generations)
	assert.Equal(t, int64(1), snap.RendersByRenderer[notation.KindPrimary])
	assert.Zero(t, snap.RendererFallbacks)
}

func TestSession_WithoutEngraverRendersFallback(t *testing.T) {
	s := New(preset(t, "beginner").Rules, recorderLayers(), WithGenerator(pattern.NewGenerator(pattern.WithSeed(1))))
	defer s.Close()

	s.Generate(context.Background())
	pm, err := s.Render(context.Background())
	require.NoError(t, err)

	assert.Equal(t, notation.KindFallback, pm.Engine())
	assert.Equal(t, StateRenderedFallback, s.State())
}

func TestSession_EngraverTimeoutSwitchesOnce(t *testing.T) {
	counters := metrics.NewCounters()
	slow := builtin.New(builtin.WithWarmup(200 * time.Millisecond))
	s := New(preset(t, "beginner").Rules, recorderLayers(),
		WithEngraver(slow),
		WithReadyTimeout(2*time.Millisecond),
		WithMetrics(counters),
	)
	defer s.Close()

	s.Generate(context.Background())
	_, err := s.Render(context.Background())
	require.NoError(t, err)
	assert.True(t, s.FallbackActive())

	_, err = s.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateRenderedFallback, s.State())
	assert.Equal(t, int64(1), counters.Snapshot().RendererFallbacks)

	require.NoError(t, slow.Ready(context.Background()))
}

func TestSession_OrderingErrors(t *testing.T) {
	s := New(preset(t, "beginner").Rules, recorderLayers())
	defer s.Close()

	_, err := s.Render(context.Background())
	assert.ErrorIs(t, err, ErrNoPattern)

	s.Generate(context.Background())
	assert.ErrorIs(t, s.Start(context.Background()), ErrNotRendered)
}

func TestSession_SurfaceUnavailableKeepsState(t *testing.T) {
	s := New(preset(t, "beginner").Rules, Layers{}, WithEngraver(builtin.New()))
	defer s.Close()

	s.Generate(context.Background())
	before := s.State()

	_, err := s.Render(context.Background())
	assert.ErrorIs(t, err, notation.ErrSurfaceUnavailable)
	assert.Equal(t, before, s.State())
	assert.False(t, s.FallbackActive())
}

func TestSession_RetryAdvancesPool(t *testing.T) {
	tier := preset(t, "advanced")
	pool := pattern.DefaultLibrary().PoolFor(tier.Rules)
	require.NotEmpty(t, pool)

	s := New(tier.Rules, recorderLayers(),
		WithGenerator(pattern.NewGenerator(pattern.WithSeed(11))),
		WithFrameInterval(time.Millisecond),
	)
	defer s.Close()

	s.Generate(context.Background())
	first := s.Pattern()
	require.Equal(t, models.SourcePool, first.Source)
	_, err := s.Render(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	pm, err := s.Retry(context.Background())
	require.NoError(t, err)

	second := s.Pattern()
	assert.Equal(t, (first.PoolIndex+1)%len(pool), second.PoolIndex)
	assert.Equal(t, second.Hash(), pm.PatternHash())
	assert.True(t, s.Overlay().Running(), "overlay restarts after retry")
	assert.Equal(t, StateInteractive, s.State())
}

func TestSession_StaticFallbackState(t *testing.T) {
	rs := models.RuleSet{RequiredBeats: 32, Range: &models.StepRange{Low: 0, High: 0}}
	s := New(rs, recorderLayers(), WithGenerator(pattern.NewGenerator(pattern.WithSeed(2), pattern.WithMaxAttempts(3))))
	defer s.Close()

	s.Generate(context.Background())

	assert.Equal(t, StateGeneratedFallback, s.State())
	assert.Equal(t, 3, s.Diagnostics().Attempts)
}

func TestSession_LoadSuppliedPattern(t *testing.T) {
	notes, err := models.ParseNotes("-:q Do:q Re:q Mi:q")
	require.NoError(t, err)
	s := New(models.RuleSet{RequiredBeats: 4}, recorderLayers())
	defer s.Close()

	assert.ErrorIs(t, s.Load(nil), ErrNoPattern)
	require.NoError(t, s.Load(models.NewPattern(notes)))

	assert.Equal(t, StateGenerated, s.State())
	assert.Equal(t, 1, s.Progress().CurrentIndex, "cursor starts on the first sounding note")
	pm, err := s.Render(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, pm.Indices())
}
