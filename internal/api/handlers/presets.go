package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Conceptual-Machines/solfa-api/internal/presets"
)

type PresetHandler struct {
	catalog *presets.Catalog
}

func NewPresetHandler(catalog *presets.Catalog) *PresetHandler {
	return &PresetHandler{catalog: catalog}
}

// ListPresets returns every tier with its rules
func (h *PresetHandler) ListPresets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"default": h.catalog.Default,
		"presets": h.catalog.All(),
	})
}

// GetPreset returns one tier by name
func (h *PresetHandler) GetPreset(c *gin.Context) {
	p, err := h.catalog.Get(c.Param("name"))
	if errors.Is(err, presets.ErrUnknownPreset) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}
