package handler

import (
	"net/http"

	"github.com/aman-churiwal/tenantgate/internal/middleware"
	"github.com/aman-churiwal/tenantgate/internal/ratelimit"
	"github.com/aman-churiwal/tenantgate/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AuthHandler struct {
	service *service.AuthService
	policy  *ratelimit.Policy
}

func NewAuthHandler(service *service.AuthService, policy *ratelimit.Policy) *AuthHandler {
	return &AuthHandler{service: service, policy: policy}
}

// Handles POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Handles POST /admin/users
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email    string     `json:"email" binding:"required,email"`
		Password string     `json:"password" binding:"required,min=8"`
		Name     string     `json:"name"`
		Role     string     `json:"role"`
		TenantID *uuid.UUID `json:"tenant_id"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.service.Register(c.Request.Context(), req.Email, req.Password, req.Name, req.Role, req.TenantID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

// Handles GET /api/me
func (h *AuthHandler) Me(c *gin.Context) {
	id := middleware.GetIdentity(c)
	if id == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
		return
	}

	quota := gin.H{
		"requests_per_minute": h.policy.BaseRate(id.Tenant),
		"max_concurrent":      h.policy.ConcurrencyLimit(id.Tenant),
		"unlimited":           id.Tenant != nil && id.Tenant.Plan.IsUnlimited(),
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id": id.UserID,
		"email":   id.Email,
		"role":    id.Role,
		"tenant":  id.Tenant,
		"quota":   quota,
	})
}
