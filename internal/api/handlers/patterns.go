package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Conceptual-Machines/solfa-api/internal/canvas"
	"github.com/Conceptual-Machines/solfa-api/internal/config"
	"github.com/Conceptual-Machines/solfa-api/internal/engraving"
	"github.com/Conceptual-Machines/solfa-api/internal/exercise"
	"github.com/Conceptual-Machines/solfa-api/internal/logger"
	"github.com/Conceptual-Machines/solfa-api/internal/metrics"
	"github.com/Conceptual-Machines/solfa-api/internal/models"
	"github.com/Conceptual-Machines/solfa-api/internal/notation"
	"github.com/Conceptual-Machines/solfa-api/internal/pattern"
	"github.com/Conceptual-Machines/solfa-api/internal/presets"
)

const (
	formatJSON = "json"
	formatPNG  = "png"
)

type PatternHandler struct {
	cfg      *config.Config
	catalog  *presets.Catalog
	engraver engraving.Engraver
	recorder metrics.Recorder
}

func NewPatternHandler(cfg *config.Config, catalog *presets.Catalog, engraver engraving.Engraver, recorder metrics.Recorder) *PatternHandler {
	return &PatternHandler{cfg: cfg, catalog: catalog, engraver: engraver, recorder: recorder}
}

// RuleSource names a preset or carries an inline rule set. Inline rules win.
type RuleSource struct {
	Preset string          `json:"preset"`
	Rules  *models.RuleSet `json:"rules"`
}

// PatternInput carries a pattern either as JSON notes or compact notation
type PatternInput struct {
	Pattern  *models.Pattern `json:"pattern"`
	Notation string          `json:"notation"`
}

type GenerateRequest struct {
	RuleSource
	Seed             *uint64 `json:"seed"`
	ExcludePoolIndex *int    `json:"exclude_pool_index"`
}

type GenerateResponse struct {
	Pattern     *models.Pattern     `json:"pattern"`
	Notation    string              `json:"notation"`
	Hash        string              `json:"hash"`
	Diagnostics pattern.Diagnostics `json:"diagnostics"`
}

type ValidateRequest struct {
	RuleSource
	PatternInput
}

type RenderRequest struct {
	RuleSource
	PatternInput
	Seed     *uint64                  `json:"seed"`
	Progress *models.ExerciseProgress `json:"progress"`
	Engraver string                   `json:"engraver"` // "none" forces the fallback renderer
	Format   string                   `json:"format"`   // "png" (default) or "json"
}

type RenderResponse struct {
	SessionID string                `json:"session_id"`
	Renderer  string                `json:"renderer"`
	Pattern   *models.Pattern       `json:"pattern"`
	Positions []models.RenderedNote `json:"positions"`
}

type tier struct {
	name   string
	rules  models.RuleSet
	render models.RenderConfig
}

func (h *PatternHandler) resolve(src RuleSource) (tier, error) {
	if src.Rules != nil {
		if err := presets.ValidateRuleSet(*src.Rules); err != nil {
			return tier{}, err
		}
		name := src.Rules.Name
		if name == "" {
			name = "custom"
		}
		return tier{name: name, rules: *src.Rules, render: h.sized(models.RenderConfigFor(src.Rules.Normalized()))}, nil
	}
	name := src.Preset
	if name == "" {
		name = h.cfg.DefaultPreset
	}
	p, err := h.catalog.Get(name)
	if err != nil {
		return tier{}, err
	}
	return tier{name: p.Name, rules: p.Rules, render: h.sized(p.RenderConfig())}, nil
}

// sized applies the configured canvas size, widening the stave to match
func (h *PatternHandler) sized(cfg models.RenderConfig) models.RenderConfig {
	if h.cfg.CanvasWidth > 0 {
		cfg.StaveWidth += h.cfg.CanvasWidth - cfg.Width
		cfg.Width = h.cfg.CanvasWidth
	}
	if h.cfg.CanvasHeight > 0 {
		cfg.Height = h.cfg.CanvasHeight
	}
	return cfg
}

func (in PatternInput) parse() (*models.Pattern, error) {
	if in.Notation != "" {
		notes, err := models.ParseNotes(in.Notation)
		if err != nil {
			return nil, err
		}
		return models.NewPattern(notes), nil
	}
	return in.Pattern, nil
}

func (h *PatternHandler) generator(seed *uint64) *pattern.Generator {
	opts := []pattern.Option{pattern.WithMaxAttempts(h.cfg.GeneratorMaxAttempts)}
	if seed != nil {
		opts = append(opts, pattern.WithSeed(*seed))
	}
	return pattern.NewGenerator(opts...)
}

func ruleError(c *gin.Context, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, presets.ErrUnknownPreset) {
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// Generate builds a pattern for a preset or inline rule set
func (h *PatternHandler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, err := h.resolve(req.RuleSource)
	if err != nil {
		ruleError(c, err)
		return
	}

	start := time.Now()
	p, diag := h.generator(req.Seed).Generate(t.rules, req.ExcludePoolIndex)
	elapsed := time.Since(start)

	fields := logger.Fields{"request_id": c.GetString("request_id")}
	logger.LogGeneration(c.Request.Context(), t.name, string(diag.Source), diag.Attempts, elapsed, fields)
	h.recorder.RecordGeneration(c.Request.Context(), t.name, string(diag.Source), diag.Attempts, elapsed)

	c.JSON(http.StatusOK, GenerateResponse{
		Pattern:     p,
		Notation:    p.String(),
		Hash:        strconv.FormatUint(p.Hash(), 16),
		Diagnostics: diag,
	})
}

// Validate checks a supplied pattern. Violations are returned as data with 200.
func (h *PatternHandler) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, err := h.resolve(req.RuleSource)
	if err != nil {
		ruleError(c, err)
		return
	}
	p, err := req.parse()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if p == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pattern or notation is required"})
		return
	}

	c.JSON(http.StatusOK, pattern.Validate(p, t.rules))
}

// Render engraves a supplied or freshly generated pattern, draws the overlay
// for the given progress and returns the flattened PNG or the position map
func (h *PatternHandler) Render(c *gin.Context) {
	var req RenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Format == "" {
		req.Format = formatPNG
	}
	if req.Format != formatPNG && req.Format != formatJSON {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported format %q", req.Format)})
		return
	}
	t, err := h.resolve(req.RuleSource)
	if err != nil {
		ruleError(c, err)
		return
	}
	supplied, err := req.parse()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	layers, images, err := newLayers(t.render)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer func() {
		for _, img := range images {
			_ = img.Close()
		}
	}()

	opts := []exercise.Option{
		exercise.WithGenerator(h.generator(req.Seed)),
		exercise.WithRenderConfig(t.render),
		exercise.WithMetrics(h.recorder),
		exercise.WithReadyTimeout(h.cfg.RenderReadyTimeout),
		exercise.WithPresetName(t.name),
	}
	if h.engraver != nil && req.Engraver != config.EngraverNone {
		opts = append(opts, exercise.WithEngraver(h.engraver))
	}
	session := exercise.New(t.rules, layers, opts...)
	defer session.Close()
	c.Set("session_id", session.ID)

	if supplied != nil {
		if err := session.Load(supplied); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	} else {
		session.Generate(c.Request.Context())
	}

	pm, err := session.Render(c.Request.Context())
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, notation.ErrSurfaceUnavailable):
			status = http.StatusServiceUnavailable
		case errors.Is(err, notation.ErrInvalidLayout):
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	if req.Progress != nil {
		session.SetProgress(*req.Progress)
	}
	session.Overlay().Tick()

	c.Header("X-Renderer", pm.Engine())
	c.Header("X-Session-ID", session.ID)
	if req.Format == formatJSON {
		c.JSON(http.StatusOK, RenderResponse{
			SessionID: session.ID,
			Renderer:  pm.Engine(),
			Pattern:   session.Pattern(),
			Positions: pm.Notes(),
		})
		return
	}

	var buf bytes.Buffer
	if err := canvas.WritePNG(&buf, images...); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// newLayers allocates notation, highlight and label rasters, bottom first
func newLayers(cfg models.RenderConfig) (exercise.Layers, []*canvas.Image, error) {
	var images []*canvas.Image
	for i := 0; i < 3; i++ {
		img, err := canvas.NewImage(int(cfg.Width), int(cfg.Height))
		if err != nil {
			for _, done := range images {
				_ = done.Close()
			}
			return exercise.Layers{}, nil, err
		}
		images = append(images, img)
	}
	return exercise.Layers{Notation: images[0], Highlight: images[1], Labels: images[2]}, images, nil
}
