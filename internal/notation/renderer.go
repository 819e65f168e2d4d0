// Package notation lays patterns out as two-system staff notation and returns
// the PositionMap the highlight overlay draws against.
package notation

import (
	"context"
	"errors"

	"github.com/Conceptual-Machines/solfa-api/internal/models"
)

// Renderer kinds reported by Kind and stamped on position maps
const (
	KindPrimary  = "primary"
	KindFallback = "fallback"
)

var (
	// ErrSurfaceUnavailable aborts a render silently; the caller retries on
	// its next state change
	ErrSurfaceUnavailable = errors.New("drawing surface unavailable")
	// ErrNoEngraver is returned by a primary renderer built without an engraver
	ErrNoEngraver = errors.New("no engraver configured")
	// ErrSuperseded is returned by a pass that finished after a newer one began
	ErrSuperseded = errors.New("render superseded by a newer pass")
	// ErrInvalidLayout reports a pattern or config no renderer can lay out
	ErrInvalidLayout = errors.New("invalid layout input")
)

// Renderer draws a pattern and returns where each sounding note landed.
// Rendering the same pattern and config twice returns the same map without
// a relayout.
type Renderer interface {
	Kind() string
	Render(ctx context.Context, p *models.Pattern, cfg models.RenderConfig) (*models.PositionMap, error)
	// Relayouts counts completed layout passes
	Relayouts() int
	// Reset forgets the memoized layout
	Reset()
}
