package middleware

import (
	"github.com/aman-churiwal/tenantgate/internal/feature"
	"github.com/aman-churiwal/tenantgate/internal/models"
	"github.com/aman-churiwal/tenantgate/internal/scope"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const identityKey = "identity"

// Identity is the authenticated caller of a request. Anonymous requests carry none.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   string
	// Nil for platform users outside every tenant
	Tenant *models.Tenant
}

// User is the caller as a model, enough for quota resolution
func (i *Identity) User() *models.User {
	user := &models.User{ID: i.UserID, Email: i.Email, Role: i.Role}
	if i.Tenant != nil {
		user.TenantID = &i.Tenant.ID
	}
	return user
}

func (i *Identity) UserScope() scope.Scope {
	return scope.User(i.UserID.String())
}

// TenantScope is zero when the caller has no tenant
func (i *Identity) TenantScope() scope.Scope {
	if i.Tenant == nil {
		return scope.Scope{}
	}
	return scope.Tenant(i.Tenant.ID.String())
}

func SetIdentity(c *gin.Context, id *Identity) {
	c.Set(identityKey, id)
}

// GetIdentity returns nil for anonymous requests
func GetIdentity(c *gin.Context) *Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*Identity)
	return id
}

// Subject is what feature flags are evaluated against for this request
func Subject(c *gin.Context) feature.Subject {
	subject := feature.Subject{IP: scope.IP(c.ClientIP())}
	if id := GetIdentity(c); id != nil {
		subject.User = id.UserScope()
		subject.Tenant = id.TenantScope()
	}
	return subject
}
