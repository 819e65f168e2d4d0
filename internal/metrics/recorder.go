package metrics

import (
	"context"
	"sync"
	"time"
)

// Recorder is what the exercise session reports to
type Recorder interface {
	RecordGeneration(ctx context.Context, preset, source string, attempts int, duration time.Duration)
	RecordRender(ctx context.Context, renderer string, duration time.Duration, success bool)
	RecordRendererFallback(ctx context.Context, reason string)
}

// Fanout forwards every record to each recorder
type Fanout []Recorder

func (f Fanout) RecordGeneration(ctx context.Context, preset, source string, attempts int, duration time.Duration) {
	for _, r := range f {
		r.RecordGeneration(ctx, preset, source, attempts, duration)
	}
}

func (f Fanout) RecordRender(ctx context.Context, renderer string, duration time.Duration, success bool) {
	for _, r := range f {
		r.RecordRender(ctx, renderer, duration, success)
	}
}

func (f Fanout) RecordRendererFallback(ctx context.Context, reason string) {
	for _, r := range f {
		r.RecordRendererFallback(ctx, reason)
	}
}

// Snapshot is a point-in-time copy of the in-process counters
type Snapshot struct {
	Generations       int64            `json:"generations"`
	GenerationsBySrc  map[string]int64 `json:"generations_by_source"`
	Attempts          int64            `json:"attempts"`
	Renders           int64            `json:"renders"`
	RenderFailures    int64            `json:"render_failures"`
	RendersByRenderer map[string]int64 `json:"renders_by_renderer"`
	RendererFallbacks int64            `json:"renderer_fallbacks"`
}

// Counters keeps process-local totals served by the metrics endpoint
type Counters struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewCounters creates zeroed counters
func NewCounters() *Counters {
	return &Counters{snap: Snapshot{
		GenerationsBySrc:  make(map[string]int64),
		RendersByRenderer: make(map[string]int64),
	}}
}

func (c *Counters) RecordGeneration(_ context.Context, _ string, source string, attempts int, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.Generations++
	c.snap.GenerationsBySrc[source]++
	c.snap.Attempts += int64(attempts)
}

func (c *Counters) RecordRender(_ context.Context, renderer string, _ time.Duration, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.Renders++
	c.snap.RendersByRenderer[renderer]++
	if !success {
		c.snap.RenderFailures++
	}
}

func (c *Counters) RecordRendererFallback(context.Context, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.RendererFallbacks++
}

// Snapshot copies the current totals
func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.snap
	out.GenerationsBySrc = make(map[string]int64, len(c.snap.GenerationsBySrc))
	for k, v := range c.snap.GenerationsBySrc {
		out.GenerationsBySrc[k] = v
	}
	out.RendersByRenderer = make(map[string]int64, len(c.snap.RendersByRenderer))
	for k, v := range c.snap.RendersByRenderer {
		out.RendersByRenderer[k] = v
	}
	return out
}
