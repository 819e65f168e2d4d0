package notation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/getsentry/sentry-go"

	"github.com/Conceptual-Machines/solfa-api/internal/logger"
	"github.com/Conceptual-Machines/solfa-api/internal/models"
)

// Engine renders with the primary renderer until it fails once, then with the
// fallback for the rest of its life
type Engine struct {
	primary  Renderer
	fallback Renderer
	onSwitch func(reason error)
	fields   logger.Fields

	mu       sync.Mutex
	switched bool
	reason   error
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithSwitchHook is called once, when the engine switches to the fallback
func WithSwitchHook(fn func(reason error)) EngineOption {
	return func(e *Engine) {
		e.onSwitch = fn
	}
}

// WithLogFields tags the engine's log lines
func WithLogFields(fields logger.Fields) EngineOption {
	return func(e *Engine) {
		e.fields = fields
	}
}

// NewEngine pairs a primary renderer with its fallback. A nil primary starts
// the engine on the fallback.
func NewEngine(primary, fallback Renderer, opts ...EngineOption) *Engine {
	e := &Engine{primary: primary, fallback: fallback, fields: logger.Fields{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FallbackActive reports whether the permanent switch has happened
func (e *Engine) FallbackActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.switched
}

// SwitchReason is the error that caused the switch, if any
func (e *Engine) SwitchReason() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reason
}

// Kind names the renderer the next pass will use
func (e *Engine) Kind() string {
	return e.active().Kind()
}

func (e *Engine) Relayouts() int {
	n := e.fallback.Relayouts()
	if e.primary != nil {
		n += e.primary.Relayouts()
	}
	return n
}

func (e *Engine) Reset() {
	if e.primary != nil {
		e.primary.Reset()
	}
	e.fallback.Reset()
}

func (e *Engine) active() Renderer {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.switched || e.primary == nil {
		return e.fallback
	}
	return e.primary
}

// Render never retries the primary after it has failed. ErrSurfaceUnavailable,
// ErrSuperseded and ErrInvalidLayout come back without switching; anything
// else switches engines and re-renders with the fallback.
func (e *Engine) Render(ctx context.Context, p *models.Pattern, cfg models.RenderConfig) (*models.PositionMap, error) {
	if r := e.active(); r == e.primary {
		pm, err := e.renderPrimary(ctx, p, cfg)
		if err == nil {
			return pm, nil
		}
		if errors.Is(err, ErrSurfaceUnavailable) || errors.Is(err, ErrSuperseded) || errors.Is(err, ErrInvalidLayout) {
			return nil, err
		}
		e.switchToFallback(err)
	}
	return e.fallback.Render(ctx, p, cfg)
}

func (e *Engine) renderPrimary(ctx context.Context, p *models.Pattern, cfg models.RenderConfig) (pm *models.PositionMap, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("primary renderer panicked: %v", rec)
			sentry.CurrentHub().Recover(rec)
		}
	}()
	return e.primary.Render(ctx, p, cfg)
}

func (e *Engine) switchToFallback(reason error) {
	e.mu.Lock()
	if e.switched {
		e.mu.Unlock()
		return
	}
	e.switched = true
	e.reason = reason
	e.mu.Unlock()

	fields := logger.Fields{"renderer": KindFallback}
	for k, v := range e.fields {
		fields[k] = v
	}
	logger.Error("Primary renderer failed, switching to fallback", reason, fields)
	if e.onSwitch != nil {
		e.onSwitch(reason)
	}
}
