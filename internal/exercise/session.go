// Package exercise ties one generated pattern, its rendering and its overlay
// into a session with an explicit lifecycle.
package exercise

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/Conceptual-Machines/solfa-api/internal/canvas"
	"github.com/Conceptual-Machines/solfa-api/internal/engraving"
	"github.com/Conceptual-Machines/solfa-api/internal/logger"
	"github.com/Conceptual-Machines/solfa-api/internal/metrics"
	"github.com/Conceptual-Machines/solfa-api/internal/models"
	"github.com/Conceptual-Machines/solfa-api/internal/notation"
	"github.com/Conceptual-Machines/solfa-api/internal/overlay"
	"github.com/Conceptual-Machines/solfa-api/internal/pattern"
)

// State is a lifecycle stage of a session
type State string

const (
	StateIdle              State = "idle"
	StateGenerating        State = "generating"
	StateGenerated         State = "generated"
	StateGeneratedFallback State = "generated_fallback"
	StateRendering         State = "rendering"
	StateRendered          State = "rendered"
	StateRenderedFallback  State = "rendered_fallback"
	StateInteractive       State = "interactive"
	StateComplete          State = "complete"
)

var (
	// ErrNoPattern is returned when rendering before generating
	ErrNoPattern = errors.New("no pattern generated")
	// ErrNotRendered is returned when starting the overlay before a render
	ErrNotRendered = errors.New("pattern has not been rendered")
)

// Layers are the three stacked surfaces of an exercise canvas
type Layers struct {
	Notation  canvas.Surface
	Highlight canvas.Surface
	Labels    canvas.Surface
}

// Session is one exercise instance. It owns its surfaces, render state and
// overlay loop; nothing is shared with other sessions.
type Session struct {
	ID     string
	Preset string

	rules     models.RuleSet
	renderCfg models.RenderConfig
	generator *pattern.Generator
	engine    *notation.Engine
	overlay   *overlay.Overlay
	metrics   metrics.Recorder

	mu        sync.Mutex
	state     State
	pattern   *models.Pattern
	diag      pattern.Diagnostics
	positions *models.PositionMap
	progress  models.ExerciseProgress
}

type options struct {
	generator     *pattern.Generator
	engraver      engraving.Engraver
	metrics       metrics.Recorder
	frameInterval time.Duration
	readyTimeout  time.Duration
	renderCfg     *models.RenderConfig
	preset        string
}

// Option configures a session
type Option func(*options)

func WithGenerator(g *pattern.Generator) Option {
	return func(o *options) { o.generator = g }
}

// WithEngraver enables the primary renderer. Without it every render uses the
// fallback.
func WithEngraver(e engraving.Engraver) Option {
	return func(o *options) { o.engraver = e }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(o *options) { o.metrics = m }
}

func WithFrameInterval(d time.Duration) Option {
	return func(o *options) { o.frameInterval = d }
}

func WithReadyTimeout(d time.Duration) Option {
	return func(o *options) { o.readyTimeout = d }
}

func WithRenderConfig(cfg models.RenderConfig) Option {
	return func(o *options) { o.renderCfg = &cfg }
}

// WithPresetName labels logs and metrics
func WithPresetName(name string) Option {
	return func(o *options) { o.preset = name }
}

// New creates an idle session for the rule set
func New(rs models.RuleSet, layers Layers, opts ...Option) *Session {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.generator == nil {
		o.generator = pattern.NewGenerator()
	}
	if o.metrics == nil {
		o.metrics = metrics.Fanout{}
	}
	renderCfg := models.RenderConfigFor(rs.Normalized())
	if o.renderCfg != nil {
		renderCfg = *o.renderCfg
	}
	preset := o.preset
	if preset == "" {
		preset = rs.Name
	}

	s := &Session{
		ID:        uuid.New().String(),
		Preset:    preset,
		rules:     rs,
		renderCfg: renderCfg,
		generator: o.generator,
		metrics:   o.metrics,
		state:     StateIdle,
	}

	var primary notation.Renderer
	if o.engraver != nil {
		primary = notation.NewPrimary(o.engraver, layers.Notation, notation.WithReadyTimeout(o.readyTimeout))
	}
	s.engine = notation.NewEngine(primary, notation.NewFallback(layers.Notation),
		notation.WithLogFields(s.fields()),
		notation.WithSwitchHook(func(reason error) {
			s.metrics.RecordRendererFallback(context.Background(), reason.Error())
		}),
	)
	s.overlay = overlay.New(layers.Highlight, layers.Labels, overlay.ProgressFunc(s.Progress),
		overlay.Config{FrameInterval: o.frameInterval})
	return s
}

func (s *Session) fields() logger.Fields {
	return logger.Fields{"session_id": s.ID, "preset": s.Preset}
}

// State returns the lifecycle stage
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pattern returns the current pattern, or nil before Generate
func (s *Session) Pattern() *models.Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pattern
}

// Diagnostics describes how the current pattern was produced
func (s *Session) Diagnostics() pattern.Diagnostics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.diag
}

// Positions returns the map of the last accepted render, or nil
func (s *Session) Positions() *models.PositionMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positions
}

// Overlay exposes Start/Stop of the highlight loop
func (s *Session) Overlay() *overlay.Overlay {
	return s.overlay
}

// FallbackActive reports whether rendering has permanently switched
func (s *Session) FallbackActive() bool {
	return s.engine.FallbackActive()
}

// Progress is the snapshot the overlay reads each frame
func (s *Session) Progress() models.ExerciseProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// SetProgress replaces the progress snapshot. A complete exercise moves the
// session to StateComplete.
func (s *Session) SetProgress(p models.ExerciseProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = p
	if p.ExerciseComplete && s.positions != nil {
		s.state = StateComplete
	}
}

// Generate produces a fresh pattern and invalidates the previous layout
func (s *Session) Generate(ctx context.Context) *models.Pattern {
	return s.generate(ctx, nil)
}

func (s *Session) generate(ctx context.Context, exclude *int) *models.Pattern {
	s.mu.Lock()
	s.state = StateGenerating
	s.positions = nil
	s.mu.Unlock()

	span := sentry.StartSpan(ctx, "exercise.generate")
	defer span.Finish()

	start := time.Now()
	p, diag := s.generator.Generate(s.rules, exclude)
	elapsed := time.Since(start)

	s.mu.Lock()
	s.pattern = p
	s.diag = diag
	s.progress = models.NewProgress(firstSounding(p), nil, nil)
	s.state = StateGenerated
	if diag.Source == models.SourceStatic {
		s.state = StateGeneratedFallback
	}
	s.mu.Unlock()

	logger.LogGeneration(span.Context(), s.Preset, string(diag.Source), diag.Attempts, elapsed, s.fields())
	s.metrics.RecordGeneration(span.Context(), s.Preset, string(diag.Source), diag.Attempts, elapsed)
	return p
}

// Load adopts a pattern supplied by the host instead of generating one
func (s *Session) Load(p *models.Pattern) error {
	if p == nil {
		return ErrNoPattern
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pattern = p
	s.diag = pattern.Diagnostics{Source: p.Source, PoolIndex: p.PoolIndex}
	s.positions = nil
	s.progress = models.NewProgress(firstSounding(p), nil, nil)
	s.state = StateGenerated
	return nil
}

func firstSounding(p *models.Pattern) int {
	if idx := p.SoundingIndices(); len(idx) > 0 {
		return idx[0]
	}
	return models.ReviewIndex
}

// Render lays out the current pattern. ErrSurfaceUnavailable leaves the
// session where it was so the next state change can retry.
func (s *Session) Render(ctx context.Context) (*models.PositionMap, error) {
	s.mu.Lock()
	p := s.pattern
	prev := s.state
	if p == nil {
		s.mu.Unlock()
		return nil, ErrNoPattern
	}
	s.state = StateRendering
	s.mu.Unlock()

	span := sentry.StartSpan(ctx, "exercise.render")
	defer span.Finish()

	start := time.Now()
	pm, err := s.engine.Render(span.Context(), p, s.renderCfg)
	s.metrics.RecordRender(span.Context(), s.engine.Kind(), time.Since(start), err == nil)
	if err != nil {
		s.mu.Lock()
		s.state = prev
		s.mu.Unlock()
		if errors.Is(err, notation.ErrSurfaceUnavailable) {
			logger.Debug("Render aborted, surface unavailable", s.fields())
		} else {
			logger.Error("Render failed", err, s.fields())
		}
		return nil, err
	}

	s.mu.Lock()
	if s.pattern != p {
		s.mu.Unlock()
		return nil, notation.ErrSuperseded
	}
	s.positions = pm
	s.state = StateRendered
	if pm.Engine() == notation.KindFallback {
		s.state = StateRenderedFallback
	}
	s.mu.Unlock()

	if err := s.overlay.SetLayout(p, pm); err != nil {
		return nil, fmt.Errorf("binding overlay: %w", err)
	}
	return pm, nil
}

// Start begins the overlay loop over the rendered pattern
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.positions == nil {
		s.mu.Unlock()
		return ErrNotRendered
	}
	s.state = StateInteractive
	if s.progress.ExerciseComplete {
		s.state = StateComplete
	}
	s.mu.Unlock()

	s.overlay.Start(ctx)
	return nil
}

// Retry discards the pattern and its layout, generates a new one (the next
// pool entry for pool-backed rule sets), renders it and restarts the overlay
// if it was running
func (s *Session) Retry(ctx context.Context) (*models.PositionMap, error) {
	wasRunning := s.overlay.Running()
	s.overlay.Stop()
	if err := s.overlay.SetLayout(nil, nil); err != nil {
		return nil, err
	}

	var exclude *int
	s.mu.Lock()
	if s.pattern != nil && s.pattern.Source == models.SourcePool {
		idx := s.pattern.PoolIndex
		exclude = &idx
	}
	s.mu.Unlock()

	logger.Info("Retrying exercise", s.fields())
	s.generate(ctx, exclude)
	pm, err := s.Render(ctx)
	if err != nil {
		return nil, err
	}
	if wasRunning {
		if err := s.Start(ctx); err != nil {
			return nil, err
		}
	}
	return pm, nil
}

// Close stops the overlay loop
func (s *Session) Close() {
	s.overlay.Stop()
}
