package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/aman-churiwal/tenantgate/internal/models"
	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type TokenValidator interface {
	ValidateToken(token string) (jwt.MapClaims, error)
}

type TenantLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
}

// Authenticate resolves the bearer token into an Identity. Requests without
// an Authorization header continue as anonymous.
func Authenticate(tokens TokenValidator, tenants TenantLookup, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authorization header format. Use: Bearer <token>",
			})
			return
		}

		claims, err := tokens.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		userID, err := uuid.Parse(claimString(claims, "user_id"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid token subject",
			})
			return
		}

		identity := &Identity{
			UserID: userID,
			Email:  claimString(claims, "email"),
			Role:   claimString(claims, "role"),
		}

		if raw := claimString(claims, "tenant_id"); raw != "" {
			tenantID, err := uuid.Parse(raw)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Invalid token tenant",
				})
				return
			}

			tenant, err := tenants.Get(c.Request.Context(), tenantID)
			if err != nil {
				log.Error("tenant lookup failed", zap.String("tenant_id", raw), zap.Error(err))
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
					"error": "Tenant lookup failed",
				})
				return
			}
			if tenant == nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Unknown tenant",
				})
				return
			}
			if !tenant.IsActive {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error": "Tenant is suspended",
				})
				return
			}
			identity.Tenant = tenant
		}

		SetIdentity(c, identity)
		c.Next()
	}
}

// RequireAuth rejects anonymous requests
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetIdentity(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
			})
			return
		}
		c.Next()
	}
}

// Authorize asks casbin whether the caller's role may use the route
func Authorize(enforcer *casbin.Enforcer, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := ""
		if id := GetIdentity(c); id != nil {
			role = id.Role
		}

		allowed, err := enforcer.Enforce(role, c.Request.URL.Path, c.Request.Method)
		if err != nil {
			log.Error("authorization check failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Authorization check failed",
			})
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Forbidden",
			})
			return
		}
		c.Next()
	}
}

func claimString(claims jwt.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}
