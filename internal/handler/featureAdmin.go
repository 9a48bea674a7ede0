package handler

import (
	"net/http"
	"time"

	"github.com/aman-churiwal/tenantgate/internal/models"
	"github.com/aman-churiwal/tenantgate/internal/scope"
	"github.com/aman-churiwal/tenantgate/internal/service"
	"github.com/gin-gonic/gin"
)

// FeatureAdminHandler manages flag definitions and overrides
type FeatureAdminHandler struct {
	service *service.FeatureFlagService
}

func NewFeatureAdminHandler(service *service.FeatureFlagService) *FeatureAdminHandler {
	return &FeatureAdminHandler{service: service}
}

type createFlagRequest struct {
	Key          string                `json:"key" binding:"required"`
	Name         string                `json:"name"`
	Description  string                `json:"description"`
	Type         string                `json:"type" binding:"required"`
	DefaultValue bool                  `json:"default_value"`
	IsActive     *bool                 `json:"is_active"`
	Parameters   models.FlagParameters `json:"parameters"`
	StartsAt     *time.Time            `json:"starts_at"`
	EndsAt       *time.Time            `json:"ends_at"`
}

// Handles POST /admin/features
func (h *FeatureAdminHandler) Create(c *gin.Context) {
	var req createFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// flags are active unless created otherwise
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	flag, err := h.service.Create(c.Request.Context(), service.CreateFlagInput{
		Key:          req.Key,
		Name:         req.Name,
		Description:  req.Description,
		Type:         models.FlagType(req.Type),
		DefaultValue: req.DefaultValue,
		IsActive:     active,
		Parameters:   req.Parameters,
		StartsAt:     req.StartsAt,
		EndsAt:       req.EndsAt,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, flag)
}

// Handles GET /admin/features
func (h *FeatureAdminHandler) List(c *gin.Context) {
	flags, err := h.service.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"features": flags,
		"count":    len(flags),
	})
}

// Handles GET /admin/features/:key
func (h *FeatureAdminHandler) Get(c *gin.Context) {
	flag, overrides, err := h.service.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"feature":   flag,
		"overrides": overrides,
	})
}

// Handles DELETE /admin/features/:key
func (h *FeatureAdminHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("key")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Feature deleted successfully"})
}

// Handles PUT /admin/features/:key/active
func (h *FeatureAdminHandler) SetActive(c *gin.Context) {
	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	flag, err := h.service.SetActive(c.Request.Context(), c.Param("key"), *req.Active)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, flag)
}

// Handles PUT /admin/features/:key/value
func (h *FeatureAdminHandler) SetGlobal(c *gin.Context) {
	var req struct {
		Value *bool `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key := c.Param("key")
	if err := h.service.SetGlobal(c.Request.Context(), key, *req.Value); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"feature": key, "value": *req.Value})
}

// Handles PUT /admin/features/:key/tenants/:id
func (h *FeatureAdminHandler) SetTenantOverride(c *gin.Context) {
	h.setOverride(c, scope.Tenant(c.Param("id")))
}

// Handles DELETE /admin/features/:key/tenants/:id
func (h *FeatureAdminHandler) RemoveTenantOverride(c *gin.Context) {
	h.removeOverride(c, scope.Tenant(c.Param("id")))
}

// Handles PUT /admin/features/:key/users/:id
func (h *FeatureAdminHandler) SetUserOverride(c *gin.Context) {
	h.setOverride(c, scope.User(c.Param("id")))
}

// Handles DELETE /admin/features/:key/users/:id
func (h *FeatureAdminHandler) RemoveUserOverride(c *gin.Context) {
	h.removeOverride(c, scope.User(c.Param("id")))
}

func (h *FeatureAdminHandler) setOverride(c *gin.Context, s scope.Scope) {
	var req struct {
		Value     *bool      `json:"value" binding:"required"`
		ExpiresAt *time.Time `json:"expires_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key := c.Param("key")
	if err := h.service.SetOverride(c.Request.Context(), key, s, *req.Value, req.ExpiresAt); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"feature":    key,
		"scope":      s.Identity(),
		"value":      *req.Value,
		"expires_at": req.ExpiresAt,
	})
}

func (h *FeatureAdminHandler) removeOverride(c *gin.Context, s scope.Scope) {
	key := c.Param("key")
	if err := h.service.RemoveOverride(c.Request.Context(), key, s); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Override removed successfully"})
}

// Handles PUT /admin/features/:key/percentage
func (h *FeatureAdminHandler) UpdatePercentage(c *gin.Context) {
	var req struct {
		Percentage *int `json:"percentage" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	flag, err := h.service.UpdatePercentage(c.Request.Context(), c.Param("key"), *req.Percentage)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, flag)
}

// Handles PUT /admin/features/:key/date-range
func (h *FeatureAdminHandler) UpdateDateRange(c *gin.Context) {
	var req struct {
		StartsAt *time.Time `json:"starts_at"`
		EndsAt   *time.Time `json:"ends_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	flag, err := h.service.UpdateDateRange(c.Request.Context(), c.Param("key"), req.StartsAt, req.EndsAt)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, flag)
}

// Handles PUT /admin/features/:key/environments
func (h *FeatureAdminHandler) UpdateEnvironments(c *gin.Context) {
	var req struct {
		Environments []string `json:"environments"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	flag, err := h.service.UpdateEnvironments(c.Request.Context(), c.Param("key"), req.Environments)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, flag)
}

// Handles PUT /admin/features/:key/variants
func (h *FeatureAdminHandler) UpdateVariants(c *gin.Context) {
	var req struct {
		Variants       models.Variants `json:"variants"`
		DefaultVariant string          `json:"default_variant"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	flag, err := h.service.UpdateVariants(c.Request.Context(), c.Param("key"), req.Variants, req.DefaultVariant)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, flag)
}

// Handles POST /admin/features/purge
func (h *FeatureAdminHandler) Purge(c *gin.Context) {
	if err := h.service.PurgeAll(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Feature overrides purged"})
}
