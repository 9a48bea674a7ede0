package handler

import (
	"net/http"

	"github.com/aman-churiwal/tenantgate/internal/feature"
	"github.com/aman-churiwal/tenantgate/internal/middleware"
	"github.com/gin-gonic/gin"
)

// FeatureHandler evaluates flags for the caller
type FeatureHandler struct {
	manager *feature.Manager
}

func NewFeatureHandler(manager *feature.Manager) *FeatureHandler {
	return &FeatureHandler{manager: manager}
}

// Handles GET /api/features
func (h *FeatureHandler) List(c *gin.Context) {
	values := h.manager.All(c.Request.Context(), middleware.Subject(c))
	c.JSON(http.StatusOK, gin.H{"features": values})
}

// Handles GET /api/features/:key
func (h *FeatureHandler) Get(c *gin.Context) {
	key := c.Param("key")
	value := h.manager.Value(c.Request.Context(), key, middleware.Subject(c))

	c.JSON(http.StatusOK, gin.H{
		"feature": key,
		"active":  value.Enabled,
		"value":   value,
	})
}
