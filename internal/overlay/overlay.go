// Package overlay draws the per-frame highlight indicator and syllable labels
// on top of rendered notation.
package overlay

import (
	"context"
	"fmt"
	"image/color"
	"sync"
	"time"

	"github.com/Conceptual-Machines/solfa-api/internal/canvas"
	"github.com/Conceptual-Machines/solfa-api/internal/logger"
	"github.com/Conceptual-Machines/solfa-api/internal/models"
)

// ProgressSource is read once per frame
type ProgressSource interface {
	Progress() models.ExerciseProgress
}

// ProgressFunc adapts a function to ProgressSource
type ProgressFunc func() models.ExerciseProgress

func (f ProgressFunc) Progress() models.ExerciseProgress { return f() }

// Config tunes the overlay's look and frame rate
type Config struct {
	FrameInterval  time.Duration
	Correct        color.Color
	Incorrect      color.Color
	Unanswered     color.Color
	Indicator      color.Color
	LabelSize      float64
	SummaryLift    float64 // upward shift of labels while the summary panel is shown
	IndicatorWidth float64
}

// DefaultConfig ticks at roughly 60 frames per second
func DefaultConfig() Config {
	return Config{
		FrameInterval:  16 * time.Millisecond,
		Correct:        canvas.Correct,
		Incorrect:      canvas.Wrong,
		Unanswered:     canvas.Ink,
		Indicator:      canvas.Cursor,
		LabelSize:      13,
		SummaryLift:    18,
		IndicatorWidth: 16,
	}
}

// Overlay owns a highlight surface and a label surface
type Overlay struct {
	highlight canvas.Surface
	labels    canvas.Surface
	source    ProgressSource
	cfg       Config

	mu        sync.Mutex
	pattern   *models.Pattern
	positions *models.PositionMap
	frames    int

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an overlay. Zero-valued config fields take their defaults.
func New(highlight, labels canvas.Surface, source ProgressSource, cfg Config) *Overlay {
	def := DefaultConfig()
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = def.FrameInterval
	}
	if cfg.Correct == nil {
		cfg.Correct = def.Correct
	}
	if cfg.Incorrect == nil {
		cfg.Incorrect = def.Incorrect
	}
	if cfg.Unanswered == nil {
		cfg.Unanswered = def.Unanswered
	}
	if cfg.Indicator == nil {
		cfg.Indicator = def.Indicator
	}
	if cfg.LabelSize <= 0 {
		cfg.LabelSize = def.LabelSize
	}
	if cfg.IndicatorWidth <= 0 {
		cfg.IndicatorWidth = def.IndicatorWidth
	}
	return &Overlay{highlight: highlight, labels: labels, source: source, cfg: cfg}
}

// SetLayout swaps in the pattern and the map rendered for it. A nil map clears
// the overlay's layout.
func (o *Overlay) SetLayout(p *models.Pattern, pm *models.PositionMap) error {
	if pm != nil && pm.PatternHash() != p.Hash() {
		return fmt.Errorf("position map was rendered for a different pattern")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pattern = p
	o.positions = pm
	return nil
}

// Positions returns the current map
func (o *Overlay) Positions() *models.PositionMap {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.positions
}

// Frames counts completed ticks
func (o *Overlay) Frames() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.frames
}

// Tick clears both surfaces and redraws them from the current progress
func (o *Overlay) Tick() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.frames++

	if o.highlight != nil {
		o.highlight.Clear()
	}
	if o.labels != nil {
		o.labels.Clear()
	}
	if o.positions == nil || o.pattern == nil || o.source == nil {
		return
	}
	progress := o.source.Progress()
	o.drawIndicator(progress)
	o.drawLabels(progress)
}

func (o *Overlay) drawIndicator(progress models.ExerciseProgress) {
	if o.highlight == nil || progress.InReview() || progress.IsAnswered(progress.CurrentIndex) {
		return
	}
	n, ok := o.positions.Get(progress.CurrentIndex)
	if !ok {
		return
	}
	o.highlight.SetColor(o.cfg.Indicator)
	o.highlight.Rect(n.AnchorX-o.cfg.IndicatorWidth/2, n.LabelBaselineY+3, o.cfg.IndicatorWidth, 3, true)
}

func (o *Overlay) drawLabels(progress models.ExerciseProgress) {
	if o.labels == nil {
		return
	}
	lift := 0.0
	if progress.ExerciseComplete {
		lift = o.cfg.SummaryLift
	}
	for _, n := range o.positions.Notes() {
		var c color.Color
		switch {
		case progress.IsCompleted(n.Index):
			c = o.cfg.Correct
		case progress.IsIncorrect(n.Index):
			c = o.cfg.Incorrect
		case progress.InReview():
			c = o.cfg.Unanswered
		default:
			continue
		}
		if n.Index >= len(o.pattern.Notes) {
			continue
		}
		label := o.pattern.Notes[n.Index].Label()
		if label == "" {
			continue
		}
		o.labels.SetColor(c)
		o.labels.Text(label, n.AnchorX, n.LabelBaselineY-lift, o.cfg.LabelSize, 0.5, 0)
	}
}

// Start launches the ticking loop. It returns false if a loop is already
// running.
func (o *Overlay) Start(ctx context.Context) bool {
	o.loopMu.Lock()
	defer o.loopMu.Unlock()
	o.reapLocked()
	if o.done != nil {
		return false
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	o.cancel = cancel
	o.done = done

	go o.loop(ctx, done)
	logger.Debug("Overlay loop started", logger.Fields{"frame_interval": o.cfg.FrameInterval.String()})
	return true
}

func (o *Overlay) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(o.cfg.FrameInterval)
	defer ticker.Stop()

	o.Tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.Tick()
		}
	}
}

// Stop cancels the loop and waits for it to exit. Stopping a stopped overlay
// is a no-op.
func (o *Overlay) Stop() {
	o.loopMu.Lock()
	defer o.loopMu.Unlock()
	if o.done == nil {
		return
	}
	o.cancel()
	<-o.done
	o.cancel = nil
	o.done = nil
	logger.Debug("Overlay loop stopped", logger.Fields{"frames": o.Frames()})
}

// Running reports whether a loop is ticking. A loop that ended with its
// parent context counts as stopped.
func (o *Overlay) Running() bool {
	o.loopMu.Lock()
	defer o.loopMu.Unlock()
	o.reapLocked()
	return o.done != nil
}

// reapLocked forgets a loop that already exited on its own. loopMu must be held.
func (o *Overlay) reapLocked() {
	if o.done == nil {
		return
	}
	select {
	case <-o.done:
		o.cancel()
		o.cancel = nil
		o.done = nil
		logger.Debug("Overlay loop ended with its context", logger.Fields{"frames": o.Frames()})
	default:
	}
}
