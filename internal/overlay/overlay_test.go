package overlay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Conceptual-Machines/solfa-api/internal/canvas"
	"github.com/Conceptual-Machines/solfa-api/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// Do:q Re:q -:q Mi:q with the rest unmapped
func fixture(t *testing.T) (*models.Pattern, *models.PositionMap) {
	t.Helper()
	notes, err := models.ParseNotes("Do:q Re:q -:q Mi:q")
	require.NoError(t, err)
	p := models.NewPattern(notes)
	pm := models.NewPositionMap([]models.RenderedNote{
		{Index: 0, AnchorX: 100, AnchorY: 100, LabelBaselineY: 125},
		{Index: 1, AnchorX: 140, AnchorY: 95, LabelBaselineY: 125},
		{Index: 3, AnchorX: 220, AnchorY: 90, LabelBaselineY: 125},
	}, p.Hash(), "test")
	return p, pm
}

type progressBox struct {
	mu sync.Mutex
	p  models.ExerciseProgress
}

func (b *progressBox) Progress() models.ExerciseProgress {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.p
}

func (b *progressBox) set(p models.ExerciseProgress) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.p = p
}

func newOverlay(t *testing.T, progress models.ExerciseProgress) (*Overlay, *canvas.Recorder, *canvas.Recorder) {
	t.Helper()
	hl, lb := canvas.NewRecorder(960, 380), canvas.NewRecorder(960, 380)
	o := New(hl, lb, ProgressFunc(func() models.ExerciseProgress { return progress }), Config{})
	p, pm := fixture(t)
	require.NoError(t, o.SetLayout(p, pm))
	return o, hl, lb
}

func TestTick_IndicatorUnderCurrentNote(t *testing.T) {
	o, hl, lb := newOverlay(t, models.NewProgress(1, []int{0}, nil))

	o.Tick()

	require.Equal(t, 1, hl.Count("rect"))
	rect := hl.Ops()[0]
	assert.InDelta(t, 140-8, rect.Args[0], 1e-9)
	assert.InDelta(t, 128, rect.Args[1], 1e-9)
	assert.Equal(t, canvas.Cursor, rect.Color)

	texts := lb.Texts()
	require.Len(t, texts, 1)
	assert.Equal(t, "Do", texts[0].Text)
	assert.Equal(t, canvas.Correct, texts[0].Color)
}

func TestTick_Cases(t *testing.T) {
	tests := []struct {
		name       string
		progress   models.ExerciseProgress
		indicators int
		labels     map[string]any
	}{
		{
			name:       "fresh exercise",
			progress:   models.NewProgress(0, nil, nil),
			indicators: 1,
			labels:     map[string]any{},
		},
		{
			name:       "current note already answered",
			progress:   models.NewProgress(1, []int{0}, []int{1}),
			indicators: 0,
			labels:     map[string]any{"Do": canvas.Correct, "Re": canvas.Wrong},
		},
		{
			name:       "current index is a rest",
			progress:   models.NewProgress(2, []int{0, 1}, nil),
			indicators: 0,
			labels:     map[string]any{"Do": canvas.Correct, "Re": canvas.Correct},
		},
		{
			name:       "review labels everything",
			progress:   models.NewProgress(models.ReviewIndex, []int{0}, []int{3}),
			indicators: 0,
			labels:     map[string]any{"Do": canvas.Correct, "Re": canvas.Ink, "Mi": canvas.Wrong},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, hl, lb := newOverlay(t, tt.progress)
			o.Tick()

			assert.Equal(t, tt.indicators, hl.Count("rect"))
			got := map[string]any{}
			for _, op := range lb.Texts() {
				got[op.Text] = op.Color
			}
			assert.Equal(t, tt.labels, got)
		})
	}
}

func TestTick_SummaryLiftsLabels(t *testing.T) {
	progress := models.NewProgress(models.ReviewIndex, []int{0, 1, 3}, nil)
	o, _, lb := newOverlay(t, progress)
	o.Tick()
	baseline := lb.Texts()[0].Args[1]

	progress.ExerciseComplete = true
	lifted, _, lb2 := newOverlay(t, progress)
	lifted.Tick()

	assert.InDelta(t, baseline-DefaultConfig().SummaryLift, lb2.Texts()[0].Args[1], 1e-9)
}

func TestTick_ClearsEveryFrame(t *testing.T) {
	o, hl, lb := newOverlay(t, models.NewProgress(0, nil, nil))

	o.Tick()
	o.Tick()

	assert.Equal(t, 2, hl.Clears())
	assert.Equal(t, 2, lb.Clears())
	assert.Equal(t, 1, hl.Count("rect"), "previous frame is erased")
	assert.Equal(t, 2, o.Frames())
}

func TestTick_WithoutLayoutOnlyClears(t *testing.T) {
	hl, lb := canvas.NewRecorder(960, 380), canvas.NewRecorder(960, 380)
	o := New(hl, lb, ProgressFunc(func() models.ExerciseProgress { return models.NewProgress(0, nil, nil) }), Config{})

	o.Tick()

	assert.Empty(t, hl.Ops())
	assert.Equal(t, 1, hl.Clears())
}

func TestSetLayout_RejectsMismatchedMap(t *testing.T) {
	o := New(nil, nil, nil, Config{})
	_, pm := fixture(t)
	other, err := models.ParseNotes("Sol:w")
	require.NoError(t, err)

	assert.Error(t, o.SetLayout(models.NewPattern(other), pm))
	assert.NoError(t, o.SetLayout(nil, nil))
}

func TestStartStop(t *testing.T) {
	box := &progressBox{p: models.NewProgress(0, nil, nil)}
	p, pm := fixture(t)
	o := New(canvas.NewRecorder(960, 380), canvas.NewRecorder(960, 380), box, Config{FrameInterval: time.Millisecond})
	require.NoError(t, o.SetLayout(p, pm))

	require.True(t, o.Start(context.Background()))
	assert.False(t, o.Start(context.Background()), "only one loop at a time")
	assert.True(t, o.Running())

	box.set(models.NewProgress(1, []int{0}, nil))
	assert.Eventually(t, func() bool { return o.Frames() >= 3 }, time.Second, time.Millisecond)

	o.Stop()
	assert.False(t, o.Running())
	frames := o.Frames()
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, frames, o.Frames(), "no ticks after Stop")

	o.Stop()

	require.True(t, o.Start(context.Background()), "restart after stop")
	assert.Eventually(t, func() bool { return o.Frames() > frames }, time.Second, time.Millisecond)
	o.Stop()
}

func TestStart_ParentCancel(t *testing.T) {
	o := New(nil, nil, nil, Config{FrameInterval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	require.True(t, o.Start(ctx))
	cancel()
	o.Stop()
	assert.False(t, o.Running())
}

func TestStart_AfterParentCancelWithoutStop(t *testing.T) {
	o := New(nil, nil, nil, Config{FrameInterval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	require.True(t, o.Start(ctx))
	cancel()
	require.Eventually(t, func() bool { return !o.Running() }, time.Second, time.Millisecond)

	require.True(t, o.Start(context.Background()), "a loop that ended with its context can be restarted")
	assert.True(t, o.Running())
	o.Stop()
	assert.False(t, o.Running())
}
