package main

import (
	"context"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/Conceptual-Machines/solfa-api/internal/api"
	"github.com/Conceptual-Machines/solfa-api/internal/config"
	"github.com/Conceptual-Machines/solfa-api/internal/engraving/builtin"
	"github.com/Conceptual-Machines/solfa-api/internal/metrics"
	"github.com/Conceptual-Machines/solfa-api/internal/pattern"
	"github.com/Conceptual-Machines/solfa-api/internal/presets"
)

const sentryFlushTimeout = 2 * time.Second

// releaseVersion is set via ldflags during build
var releaseVersion = "dev"

// GetVersion returns the current release version
func GetVersion() string {
	return releaseVersion
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration:", err)
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			Release:          "solfa-api@" + releaseVersion,
			EnableTracing:    true,
			TracesSampleRate: 1.0,
			EnableLogs:       true,
			Debug:            !cfg.IsProduction(),
			BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
				if event.Request != nil {
					event.Request.Headers = filterSensitiveHeaders(event.Request.Headers)
				}
				return event
			},
		}); err != nil {
			log.Printf("Failed to initialize Sentry: %v", err)
		} else {
			log.Printf("✅ Sentry initialized (environment: %s, release: %s)", cfg.Environment, releaseVersion)
			defer sentry.Flush(sentryFlushTimeout)
		}
	} else {
		log.Println("⚠️  Sentry not configured (SENTRY_DSN not set)")
	}

	catalog, err := presets.Load()
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal("Failed to load presets:", err)
	}
	if _, err := catalog.Get(cfg.DefaultPreset); err != nil {
		log.Fatal("Invalid DEFAULT_PRESET:", err)
	}
	if err := pattern.DefaultLibraryError(); err != nil {
		sentry.CaptureException(err)
		log.Printf("⚠️  Pattern library unavailable, using generic fallbacks: %v", err)
	}

	svc := api.Services{
		Catalog:  catalog,
		Counters: metrics.NewCounters(),
	}
	if cfg.UsesEngraver() {
		svc.Engraver = builtin.New()
	}
	if client, err := metrics.NewClient(context.Background(), cfg.Environment); err != nil {
		log.Printf("⚠️  CloudWatch metrics disabled: %v", err)
	} else {
		svc.Metrics = client
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := api.SetupRouter(cfg, svc, GetVersion())

	log.Printf("🚀 Starting server on port %s (engraver: %s)", cfg.Port, cfg.Engraver)
	if err := router.Run(":" + cfg.Port); err != nil {
		sentry.CaptureException(err)
		log.Fatal("Failed to start server:", err)
	}
}

func filterSensitiveHeaders(headers map[string]string) map[string]string {
	filtered := make(map[string]string)
	sensitiveKeys := map[string]bool{
		"authorization": true,
		"cookie":        true,
		"x-api-key":     true,
	}

	for k, v := range headers {
		if sensitiveKeys[k] {
			filtered[k] = "[REDACTED]"
		} else {
			filtered[k] = v
		}
	}
	return filtered
}
