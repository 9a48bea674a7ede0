package handler

import (
	"net/http"

	"github.com/aman-churiwal/tenantgate/internal/models"
	"github.com/aman-churiwal/tenantgate/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type TenantHandler struct {
	service *service.TenantService
}

func NewTenantHandler(service *service.TenantService) *TenantHandler {
	return &TenantHandler{service: service}
}

// Handles POST /admin/tenants
func (h *TenantHandler) Create(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
		Plan string `json:"plan"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tenant, err := h.service.Create(c.Request.Context(), req.Name, models.Plan(req.Plan))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, tenant)
}

// Handles GET /admin/tenants
func (h *TenantHandler) List(c *gin.Context) {
	tenants, err := h.service.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tenants": tenants,
		"count":   len(tenants),
	})
}

// Handles GET /admin/tenants/:id
func (h *TenantHandler) Get(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}

	tenant, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if tenant == nil {
		respondError(c, service.ErrTenantNotFound)
		return
	}

	c.JSON(http.StatusOK, tenant)
}

// Handles PUT /admin/tenants/:id/plan
func (h *TenantHandler) UpdatePlan(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}

	var req struct {
		Plan string `json:"plan" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	plan, _ := models.ParsePlan(req.Plan)
	tenant, err := h.service.UpdatePlan(c.Request.Context(), id, plan)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, tenant)
}

// Handles PUT /admin/tenants/:id/settings
func (h *TenantHandler) UpdateSettings(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}

	var settings models.TenantSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tenant, err := h.service.UpdateSettings(c.Request.Context(), id, settings)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, tenant)
}

// Handles PUT /admin/tenants/:id/active
func (h *TenantHandler) SetActive(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}

	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tenant, err := h.service.SetActive(c.Request.Context(), id, *req.Active)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, tenant)
}

// Handles DELETE /admin/tenants/:id
func (h *TenantHandler) Delete(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Tenant deleted successfully"})
}

func tenantID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tenant ID"})
		return uuid.Nil, false
	}
	return id, true
}
