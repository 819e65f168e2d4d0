package api

import (
	"github.com/gin-gonic/gin"

	"github.com/Conceptual-Machines/solfa-api/internal/api/handlers"
	apimiddleware "github.com/Conceptual-Machines/solfa-api/internal/api/middleware"
	"github.com/Conceptual-Machines/solfa-api/internal/config"
	"github.com/Conceptual-Machines/solfa-api/internal/engraving"
	"github.com/Conceptual-Machines/solfa-api/internal/metrics"
	"github.com/Conceptual-Machines/solfa-api/internal/presets"
)

// Services are the long-lived dependencies shared by all requests
type Services struct {
	Catalog  *presets.Catalog
	Engraver engraving.Engraver // nil disables the primary renderer
	Counters *metrics.Counters
	Metrics  *metrics.Client // CloudWatch, optional
}

func SetupRouter(cfg *config.Config, svc Services, version string) *gin.Engine {
	router := gin.New()

	// Recovery middleware (must be first)
	router.Use(apimiddleware.RecoverWithSentry())

	// Sentry middleware for error tracking
	router.Use(apimiddleware.SentryMiddleware())

	// Request tracking and structured logging
	var apiRecorder apimiddleware.APIRecorder
	if svc.Metrics != nil {
		apiRecorder = svc.Metrics
	}
	router.Use(apimiddleware.RequestTracking(apiRecorder))

	if svc.Counters == nil {
		svc.Counters = metrics.NewCounters()
	}
	recorder := metrics.Fanout{svc.Counters, metrics.NewSentryMetrics()}
	if svc.Metrics != nil {
		recorder = append(recorder, svc.Metrics)
	}

	// Health check
	healthHandler := handlers.NewHealthHandler(cfg, svc.Engraver)
	router.GET("/health", healthHandler.HealthCheck)

	// Metrics endpoint
	metricsHandler := handlers.NewMetricsHandler(version, svc.Counters)
	router.GET("/api/metrics", metricsHandler.GetMetrics)

	v1 := router.Group("/api/v1")
	{
		presetHandler := handlers.NewPresetHandler(svc.Catalog)
		v1.GET("/presets", presetHandler.ListPresets)
		v1.GET("/presets/:name", presetHandler.GetPreset)

		patternHandler := handlers.NewPatternHandler(cfg, svc.Catalog, svc.Engraver, recorder)
		v1.POST("/patterns", patternHandler.Generate)
		v1.POST("/patterns/validate", patternHandler.Validate)
		v1.POST("/patterns/render", patternHandler.Render)
	}

	return router
}
