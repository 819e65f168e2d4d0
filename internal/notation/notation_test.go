package notation

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Conceptual-Machines/solfa-api/internal/canvas"
	"github.com/Conceptual-Machines/solfa-api/internal/engraving"
	"github.com/Conceptual-Machines/solfa-api/internal/engraving/builtin"
	"github.com/Conceptual-Machines/solfa-api/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeEngraver wraps the builtin engraver with injectable failures
type fakeEngraver struct {
	*builtin.Engraver
	readyErr    error
	panicFormat bool
	readyCalls  atomic.Int32
	entered     chan struct{}
	gate        chan struct{}
}

func newFake(t *testing.T) *fakeEngraver {
	t.Helper()
	e := builtin.New()
	require.NoError(t, e.Ready(context.Background()))
	return &fakeEngraver{Engraver: e}
}

func (f *fakeEngraver) Ready(ctx context.Context) error {
	f.readyCalls.Add(1)
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.readyErr != nil {
		return f.readyErr
	}
	return f.Engraver.Ready(ctx)
}

func (f *fakeEngraver) Format(stave *engraving.Stave, notes []*engraving.Note) error {
	if f.panicFormat {
		panic("formatter exploded")
	}
	return f.Engraver.Format(stave, notes)
}

func newSurface() *canvas.Recorder {
	return canvas.NewRecorder(960, 380)
}

// stemOf returns the vertical line drawn from the notehead of n
func stemOf(t *testing.T, rec *canvas.Recorder, n models.RenderedNote) canvas.Op {
	t.Helper()
	for _, op := range rec.Ops() {
		if op.Kind != "line" || op.Args[0] != op.Args[2] || op.Args[1] != n.AnchorY || op.Args[3] == op.Args[1] {
			continue
		}
		if math.Abs(op.Args[0]-n.AnchorX) < 7 {
			return op
		}
	}
	t.Fatalf("no stem drawn for note %d", n.Index)
	return canvas.Op{}
}

// topSystemBars returns the x of every full-height vertical line on the first staff
func topSystemBars(rec *canvas.Recorder) []float64 {
	var bars []float64
	for _, op := range rec.Ops() {
		if op.Kind == "line" && op.Args[0] == op.Args[2] && op.Args[1] == 50 && op.Args[3] == 90 {
			bars = append(bars, op.Args[0])
		}
	}
	return bars
}

func TestPrimary_MapsEverySoundingNote(t *testing.T) {
	p := mustPattern(t, commonTime)
	r := NewPrimary(newFake(t), newSurface())

	pm, err := r.Render(context.Background(), p, models.DefaultRenderConfig())
	require.NoError(t, err)

	assert.Equal(t, KindPrimary, pm.Engine())
	assert.Equal(t, p.Hash(), pm.PatternHash())
	assert.Equal(t, p.SoundingIndices(), pm.Indices())
	_, ok := pm.Get(9)
	assert.False(t, ok, "rests have no entry")

	var prev models.RenderedNote
	for i, n := range pm.Notes() {
		if i > 0 && n.System == prev.System {
			assert.Greater(t, n.AnchorX, prev.AnchorX, "note %d", n.Index)
			assert.Equal(t, prev.LabelBaselineY, n.LabelBaselineY)
		}
		prev = n
	}
	first, _ := pm.Get(0)
	last, _ := pm.Get(len(p.Notes) - 1)
	assert.Equal(t, 0, first.System)
	assert.Equal(t, 1, last.System)
	assert.GreaterOrEqual(t, first.LabelBaselineY, 50+40+25.0)
}

func TestPrimary_BarsFollowLastNoteOfMeasure(t *testing.T) {
	p := mustPattern(t, commonTime)
	rec := newSurface()
	cfg := models.DefaultRenderConfig()
	pm, err := NewPrimary(newFake(t), rec).Render(context.Background(), p, cfg)
	require.NoError(t, err)

	bars := topSystemBars(rec)
	require.Len(t, bars, 4)

	// last notes of measures 1..3 are indices 2, 5, 8; first notes of the next are 3, 6, 10
	for i, pair := range [][2]int{{2, 3}, {5, 6}, {8, 10}} {
		before, _ := pm.Get(pair[0])
		after, _ := pm.Get(pair[1])
		assert.Greater(t, bars[i], before.AnchorX)
		assert.Less(t, bars[i], after.AnchorX)
		// one notehead and a staff space past the note, not out in the gap
		assert.LessOrEqual(t, bars[i]-before.AnchorX, 6.5+10, "bar %d", i)
	}
}

func TestPrimary_Idempotent(t *testing.T) {
	p := mustPattern(t, commonTime)
	cfg := models.DefaultRenderConfig()
	rec := newSurface()
	r := NewPrimary(newFake(t), rec)

	first, err := r.Render(context.Background(), p, cfg)
	require.NoError(t, err)
	second, err := r.Render(context.Background(), mustPattern(t, commonTime), cfg)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, r.Relayouts())
	assert.Equal(t, 1, rec.Clears())

	cfg.KeySignature = "G"
	_, err = r.Render(context.Background(), p, cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Relayouts(), "config change relayouts")

	r.Reset()
	_, err = r.Render(context.Background(), p, cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Relayouts())
}

func TestPrimary_DrawsDynamics(t *testing.T) {
	p := mustPattern(t, commonTime)
	p.Dynamics = &models.Dynamics{TopStaff: models.Forte, BottomStaff: models.Piano}
	rec := newSurface()

	_, err := NewPrimary(newFake(t), rec).Render(context.Background(), p, models.DefaultRenderConfig())
	require.NoError(t, err)

	assert.True(t, rec.HasText("f"))
	assert.True(t, rec.HasText("p"))
}

func TestPrimary_Superseded(t *testing.T) {
	fake := newFake(t)
	fake.entered = make(chan struct{}, 2)
	fake.gate = make(chan struct{})
	r := NewPrimary(fake, newSurface())
	cfg := models.DefaultRenderConfig()
	stale, fresh := mustPattern(t, "Do:w"), mustPattern(t, commonTime)

	type result struct {
		pm  *models.PositionMap
		err error
	}
	older, newer := make(chan result, 1), make(chan result, 1)
	go func() {
		pm, err := r.Render(context.Background(), stale, cfg)
		older <- result{pm, err}
	}()
	<-fake.entered
	go func() {
		pm, err := r.Render(context.Background(), fresh, cfg)
		newer <- result{pm, err}
	}()
	<-fake.entered
	close(fake.gate)

	o, n := <-older, <-newer
	assert.ErrorIs(t, o.err, ErrSuperseded)
	require.NoError(t, n.err)
	assert.Equal(t, 1, r.Relayouts())
}

func TestRenderers_SurfaceUnavailable(t *testing.T) {
	p := mustPattern(t, commonTime)
	cfg := models.DefaultRenderConfig()

	_, err := NewPrimary(newFake(t), nil).Render(context.Background(), p, cfg)
	assert.ErrorIs(t, err, ErrSurfaceUnavailable)
	_, err = NewFallback(nil).Render(context.Background(), p, cfg)
	assert.ErrorIs(t, err, ErrSurfaceUnavailable)
}

func TestRenderers_SameIndexSets(t *testing.T) {
	tests := []struct {
		name     string
		notation string
		cfg      func(*models.RenderConfig)
	}{
		{"common time", commonTime, func(*models.RenderConfig) {}},
		{"short pattern", "Do:q Re:e Mi:e -:h", func(*models.RenderConfig) {}},
		{"waltz in D", "Do:h Re:q | Mi:q Fa:q Sol:q | -:q Fa:h | Mi:e Re:e Do:h", func(c *models.RenderConfig) {
			c.TimeSignature = "3/4"
			c.KeySignature = "D"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mustPattern(t, tt.notation)
			cfg := models.DefaultRenderConfig()
			tt.cfg(&cfg)

			primary, err := NewPrimary(newFake(t), newSurface()).Render(context.Background(), p, cfg)
			require.NoError(t, err)
			fallback, err := NewFallback(newSurface()).Render(context.Background(), p, cfg)
			require.NoError(t, err)

			if diff := cmp.Diff(primary.Indices(), fallback.Indices()); diff != "" {
				t.Errorf("index sets differ (-primary +fallback):\n%s", diff)
			}
			systems := func(pm *models.PositionMap) []int {
				var out []int
				for _, n := range pm.Notes() {
					out = append(out, n.System)
				}
				return out
			}
			if diff := cmp.Diff(systems(primary), systems(fallback)); diff != "" {
				t.Errorf("system assignment differs (-primary +fallback):\n%s", diff)
			}
		})
	}
}

func TestFallback_DrawsRestsAndBeams(t *testing.T) {
	rec := newSurface()
	p := mustPattern(t, "Do:e Re:e Mi:q -:h")

	pm, err := NewFallback(rec).Render(context.Background(), p, models.DefaultRenderConfig())
	require.NoError(t, err)

	assert.Equal(t, 3, pm.Len())
	assert.Equal(t, KindFallback, pm.Engine())
	// the padded measures and the half rest are all drawn as filled rects
	assert.GreaterOrEqual(t, rec.Count("rect"), 8)
}

func TestEngine_SwitchesPermanently(t *testing.T) {
	tests := []struct {
		name string
		fake func(*fakeEngraver)
	}{
		{"not ready", func(f *fakeEngraver) { f.readyErr = engraving.ErrNotReady }},
		{"panic in format", func(f *fakeEngraver) { f.panicFormat = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFake(t)
			tt.fake(fake)
			var switches []error
			engine := NewEngine(
				NewPrimary(fake, newSurface()),
				NewFallback(newSurface()),
				WithSwitchHook(func(reason error) { switches = append(switches, reason) }),
			)
			p := mustPattern(t, commonTime)

			pm, err := engine.Render(context.Background(), p, models.DefaultRenderConfig())
			require.NoError(t, err)
			assert.Equal(t, KindFallback, pm.Engine())
			assert.True(t, engine.FallbackActive())
			assert.Error(t, engine.SwitchReason())
			assert.Equal(t, KindFallback, engine.Kind())

			// a new pattern never goes back to the primary
			_, err = engine.Render(context.Background(), mustPattern(t, "Do:w"), models.DefaultRenderConfig())
			require.NoError(t, err)
			assert.Equal(t, int32(1), fake.readyCalls.Load())
			assert.Len(t, switches, 1)
		})
	}
}

func TestEngine_NilEngraver(t *testing.T) {
	engine := NewEngine(NewPrimary(nil, newSurface()), NewFallback(newSurface()))

	pm, err := engine.Render(context.Background(), mustPattern(t, commonTime), models.DefaultRenderConfig())
	require.NoError(t, err)
	assert.Equal(t, KindFallback, pm.Engine())
	assert.True(t, errors.Is(engine.SwitchReason(), ErrNoEngraver))
}

func TestEngine_ReadyTimeout(t *testing.T) {
	slow := builtin.New(builtin.WithWarmup(200 * time.Millisecond))
	engine := NewEngine(
		NewPrimary(slow, newSurface(), WithReadyTimeout(5*time.Millisecond)),
		NewFallback(newSurface()),
	)

	pm, err := engine.Render(context.Background(), mustPattern(t, commonTime), models.DefaultRenderConfig())
	require.NoError(t, err)
	assert.Equal(t, KindFallback, pm.Engine())
	assert.ErrorIs(t, engine.SwitchReason(), engraving.ErrNotReady)

	require.NoError(t, slow.Ready(context.Background()))
}

func TestEngine_SurfaceUnavailableDoesNotSwitch(t *testing.T) {
	engine := NewEngine(NewPrimary(newFake(t), nil), NewFallback(nil))

	_, err := engine.Render(context.Background(), mustPattern(t, commonTime), models.DefaultRenderConfig())
	assert.ErrorIs(t, err, ErrSurfaceUnavailable)
	assert.False(t, engine.FallbackActive())
}

func TestEngine_PrimaryStaysWhileHealthy(t *testing.T) {
	fake := newFake(t)
	engine := NewEngine(NewPrimary(fake, newSurface()), NewFallback(newSurface()))
	p := mustPattern(t, commonTime)

	for i := 0; i < 3; i++ {
		pm, err := engine.Render(context.Background(), p, models.DefaultRenderConfig())
		require.NoError(t, err)
		assert.Equal(t, KindPrimary, pm.Engine())
	}
	assert.Equal(t, 1, engine.Relayouts())
	assert.False(t, engine.FallbackActive())
}

func TestRenderers_StemDirections(t *testing.T) {
	renderers := map[string]func(*testing.T, canvas.Surface) Renderer{
		KindPrimary:  func(t *testing.T, sf canvas.Surface) Renderer { return NewPrimary(newFake(t), sf) },
		KindFallback: func(_ *testing.T, sf canvas.Surface) Renderer { return NewFallback(sf) },
	}
	tests := []struct {
		name     string
		key      string
		notation string
		wantDown []bool
	}{
		{"middle line and above point down", "C", "Sol:q Ti:q La:q Do':q", []bool{false, true, false, true}},
		{"positions follow the key", "G", "Do:q Fa:q Mi:q Re:q", []bool{false, true, true, false}},
		{"beamed pair follows the note farther from the middle", "C", "La:e Ti:e La:q Sol:h", []bool{false, false, false, false}},
		{"beamed pair above the middle", "C", "Ti:e Re':e Do':q Sol:h", []bool{true, true, true, false}},
	}

	for kind, newRenderer := range renderers {
		for _, tt := range tests {
			t.Run(kind+"/"+tt.name, func(t *testing.T) {
				rec := newSurface()
				cfg := models.DefaultRenderConfig()
				cfg.KeySignature = tt.key

				pm, err := newRenderer(t, rec).Render(context.Background(), mustPattern(t, tt.notation), cfg)
				require.NoError(t, err)

				for i, want := range tt.wantDown {
					n, ok := pm.Get(i)
					require.True(t, ok, "note %d", i)
					stem := stemOf(t, rec, n)
					assert.Equal(t, want, stem.Args[3] > stem.Args[1], "note %d stem down", i)
				}
			})
		}
	}
}

func TestPrimary_BeamedStemsShareOneTip(t *testing.T) {
	rec := newSurface()
	pm, err := NewPrimary(newFake(t), rec).Render(context.Background(), mustPattern(t, "La:e Ti:e La:q Sol:h"), models.DefaultRenderConfig())
	require.NoError(t, err)

	la, _ := pm.Get(0)
	ti, _ := pm.Get(1)
	a, b := stemOf(t, rec, la), stemOf(t, rec, ti)
	assert.Less(t, a.Args[3], a.Args[1], "La stem up")
	assert.Less(t, b.Args[3], b.Args[1], "Ti stem up")
	assert.Equal(t, a.Args[3], b.Args[3], "tips levelled")
	// the higher note keeps a full stem
	assert.InDelta(t, 35, b.Args[1]-b.Args[3], 1e-9)

	beam := 0
	for _, op := range rec.Ops() {
		if op.Kind == "line" && op.Args[0] == a.Args[0] && op.Args[2] == b.Args[0] {
			beam++
			assert.Equal(t, op.Args[1], op.Args[3], "level beam")
		}
	}
	assert.Positive(t, beam)
}

func TestFallback_BeamJoinsStemTips(t *testing.T) {
	rec := newSurface()
	pm, err := NewFallback(rec).Render(context.Background(), mustPattern(t, "La:e Ti:e La:q Sol:h"), models.DefaultRenderConfig())
	require.NoError(t, err)

	la, _ := pm.Get(0)
	ti, _ := pm.Get(1)
	a, b := stemOf(t, rec, la), stemOf(t, rec, ti)
	require.Less(t, a.Args[3], a.Args[1], "La stem up")
	require.Less(t, b.Args[3], b.Args[1], "Ti stem up")

	var beam []canvas.Op
	for _, op := range rec.Ops() {
		if op.Kind == "line" && op.Args[0] == a.Args[0] && op.Args[2] == b.Args[0] {
			beam = append(beam, op)
		}
	}
	require.NotEmpty(t, beam)
	// an up beam hangs from the tips downwards
	assert.Equal(t, a.Args[3], beam[0].Args[1])
	assert.Equal(t, b.Args[3], beam[0].Args[3])
	for _, op := range beam {
		assert.GreaterOrEqual(t, op.Args[1], a.Args[3])
		assert.Less(t, op.Args[1], la.AnchorY)
	}
}

func TestFallback_Idempotent(t *testing.T) {
	p := mustPattern(t, commonTime)
	cfg := models.DefaultRenderConfig()
	rec := newSurface()
	r := NewFallback(rec)

	first, err := r.Render(context.Background(), p, cfg)
	require.NoError(t, err)
	second, err := r.Render(context.Background(), mustPattern(t, commonTime), cfg)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, r.Relayouts())
	assert.Equal(t, 1, rec.Clears())

	_, err = r.Render(context.Background(), mustPattern(t, "Do:w"), cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Relayouts(), "new pattern relayouts")
}

func TestFallback_BarsBetweenMeasures(t *testing.T) {
	p := mustPattern(t, commonTime)
	rec := newSurface()
	cfg := models.DefaultRenderConfig()
	pm, err := NewFallback(rec).Render(context.Background(), p, cfg)
	require.NoError(t, err)

	bars := topSystemBars(rec)
	require.Len(t, bars, 4)
	for i, pair := range [][2]int{{2, 3}, {5, 6}, {8, 10}} {
		before, _ := pm.Get(pair[0])
		after, _ := pm.Get(pair[1])
		assert.Greater(t, bars[i], before.AnchorX, "bar %d", i)
		assert.Less(t, bars[i], after.AnchorX, "bar %d", i)
	}
	assert.Equal(t, cfg.MarginLeft+cfg.StaveWidth, bars[3], "top system ends on a single bar")

	// the closing double bar: a thin line and a filled rect at the right edge of the bottom staff
	top := cfg.MarginTop + cfg.SystemSpacing
	var closing []canvas.Op
	for _, op := range rec.Ops() {
		if op.Kind == "rect" && op.Fill && op.Args[1] == top && op.Args[3] == 4*cfg.LineSpacing {
			closing = append(closing, op)
		}
	}
	require.Len(t, closing, 1)
	assert.InDelta(t, cfg.MarginLeft+cfg.StaveWidth, closing[0].Args[0]+closing[0].Args[2], 1e-9)
	for _, op := range rec.Ops() {
		if op.Kind == "rect" && op.Args[1] == cfg.MarginTop && op.Args[3] == 4*cfg.LineSpacing {
			t.Errorf("double bar drawn on the top system at x=%v", op.Args[0])
		}
	}
}

func TestEngine_InvalidLayoutDoesNotSwitch(t *testing.T) {
	tests := []struct {
		name    string
		pattern *models.Pattern
		cfg     func(*models.RenderConfig)
	}{
		{
			"unknown duration",
			models.NewPattern([]models.Note{models.NewNote(0, models.Quarter), models.NewNote(1, models.Duration(9))}),
			func(*models.RenderConfig) {},
		},
		{
			"unsupported meter",
			mustPattern(t, commonTime),
			func(c *models.RenderConfig) { c.TimeSignature = "6/8" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var switches []error
			engine := NewEngine(
				NewPrimary(newFake(t), newSurface()),
				NewFallback(newSurface()),
				WithSwitchHook(func(reason error) { switches = append(switches, reason) }),
			)
			cfg := models.DefaultRenderConfig()
			tt.cfg(&cfg)

			_, err := engine.Render(context.Background(), tt.pattern, cfg)
			assert.ErrorIs(t, err, ErrInvalidLayout)
			assert.False(t, engine.FallbackActive())
			assert.Empty(t, switches)

			pm, err := engine.Render(context.Background(), mustPattern(t, commonTime), models.DefaultRenderConfig())
			require.NoError(t, err)
			assert.Equal(t, KindPrimary, pm.Engine())
		})
	}
}
