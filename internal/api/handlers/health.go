package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Conceptual-Machines/solfa-api/internal/config"
	"github.com/Conceptual-Machines/solfa-api/internal/engraving"
	"github.com/Conceptual-Machines/solfa-api/internal/presets"
)

const engraverProbeTimeout = 50 * time.Millisecond

type HealthHandler struct {
	cfg      *config.Config
	engraver engraving.Engraver
}

func NewHealthHandler(cfg *config.Config, engraver engraving.Engraver) *HealthHandler {
	return &HealthHandler{cfg: cfg, engraver: engraver}
}

// HealthCheck returns the health status of the API
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	engraverStatus := "disabled"
	if h.engraver != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), engraverProbeTimeout)
		defer cancel()
		engraverStatus = "ready"
		if err := h.engraver.Ready(ctx); err != nil {
			engraverStatus = "loading"
		}
	}

	catalog, err := presets.Load()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"engraver": gin.H{
			"mode":   h.cfg.Engraver,
			"status": engraverStatus,
		},
		"presets": len(catalog.Presets),
	})
}
