package authz

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestEnforcer_DefaultPolicies(t *testing.T) {
	e, err := NewEnforcer(nil)
	require.NoError(t, err)

	tests := []struct {
		role, path, method string
		want               bool
	}{
		{"admin", "/admin/features", "GET", true},
		{"admin", "/admin/features/beta/percentage", "PUT", true},
		{"admin", "/admin/tenants/123", "DELETE", true},
		{"member", "/admin/features", "GET", false},
		{"", "/admin/features", "GET", false},
		{"admin", "/api/me", "GET", false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s %s %s", tt.role, tt.method, tt.path), func(t *testing.T) {
			ok, err := e.Enforce(tt.role, tt.path, tt.method)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestEnforcer_PersistsPolicies(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	e, err := NewEnforcer(db)
	require.NoError(t, err)
	_, err = e.AddPolicy("support", "/admin/tenants*", "GET")
	require.NoError(t, err)

	// a second enforcer on the same store sees both policies and does not duplicate the seed
	again, err := NewEnforcer(db)
	require.NoError(t, err)

	ok, err := again.Enforce("support", "/admin/tenants/1", "GET")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = again.Enforce("support", "/admin/tenants/1", "DELETE")
	require.NoError(t, err)
	assert.False(t, ok)

	policies, err := again.GetPolicy()
	require.NoError(t, err)
	assert.Len(t, policies, 2)
}
