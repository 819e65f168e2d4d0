package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Engraver backends selectable through ENGRAVER
const (
	EngraverBuiltin = "builtin"
	EngraverNone    = "none"
)

// Config holds the application configuration
// Note: This is a stateless configuration - patterns are never persisted
type Config struct {
	// Environment
	Environment string `validate:"required"`
	Port        string `validate:"required,numeric"`

	// Observability
	SentryDSN string // Sentry DSN for error tracking

	// Generation
	GeneratorMaxAttempts int    `validate:"gte=1,lte=10000"`
	DefaultPreset        string `validate:"required"`

	// Rendering
	CanvasWidth          float64       `validate:"gt=0"`
	CanvasHeight         float64       `validate:"gt=0"`
	RenderReadyTimeout   time.Duration `validate:"gt=0"`
	OverlayFrameInterval time.Duration `validate:"gt=0"`

	// Engraver selects the primary engraving capability
	// - "builtin": in-process engraver
	// - "none": no engraver, every render goes straight to the fallback renderer
	Engraver string `validate:"oneof=builtin none"`
}

var validate = validator.New()

func Load() *Config {
	return &Config{
		Environment:          getEnv("ENVIRONMENT", "development"),
		Port:                 getEnv("PORT", "8080"),
		SentryDSN:            getEnv("SENTRY_DSN", ""),
		GeneratorMaxAttempts: getEnvInt("GENERATOR_MAX_ATTEMPTS", 100),
		DefaultPreset:        getEnv("DEFAULT_PRESET", "intermediate"),
		CanvasWidth:          getEnvFloat("CANVAS_WIDTH", 960),
		CanvasHeight:         getEnvFloat("CANVAS_HEIGHT", 380),
		RenderReadyTimeout:   getEnvDuration("RENDER_READY_TIMEOUT", 2*time.Second),
		OverlayFrameInterval: getEnvDuration("OVERLAY_FRAME_INTERVAL", 16*time.Millisecond),
		Engraver:             getEnv("ENGRAVER", EngraverBuiltin),
	}
}

// Validate checks the loaded values against their struct tags
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// IsProduction reports whether metrics and tracing should run at full rate
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// UsesEngraver returns true unless the primary renderer is disabled
func (c *Config) UsesEngraver() bool {
	return c.Engraver != EngraverNone
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}

// Malformed numbers fall back to the default; Validate catches out-of-range values.
func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}
