package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aman-churiwal/tenantgate/internal/feature"
	"github.com/aman-churiwal/tenantgate/internal/models"
	"github.com/aman-churiwal/tenantgate/internal/scope"
	"github.com/aman-churiwal/tenantgate/internal/storage"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ feature.Store = (*FeatureFlagRepository)(nil)

func newTestDB(t *testing.T) *storage.Database {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := storage.Open(sqlite.Open(dsn))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func intPtr(v int) *int { return &v }

func TestTenantRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewTenantRepository(newTestDB(t))

	tenant := &models.Tenant{Name: "Acme", Plan: models.PlanBasic, IsActive: true}
	require.NoError(t, repo.Create(ctx, tenant))
	require.NotEqual(t, uuid.Nil, tenant.ID)

	got, err := repo.FindByID(ctx, tenant.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.PlanBasic, got.Plan)
	assert.Nil(t, got.Settings.CustomRateLimit)

	got.Settings.CustomRateLimit = intPtr(5)
	require.NoError(t, repo.Save(ctx, got))

	got, err = repo.FindByID(ctx, tenant.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Settings.CustomRateLimit)
	assert.Equal(t, 5, *got.Settings.CustomRateLimit)
	assert.Equal(t, 5, got.BaseRateLimit())

	got.Settings.CustomRateLimit = nil
	require.NoError(t, repo.Save(ctx, got))
	got, err = repo.FindByID(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Settings.CustomRateLimit)

	missing, err := repo.FindByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.Delete(ctx, tenant.ID))
	tenants, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, tenants)
}

func TestTenantRepository_DefaultsPlan(t *testing.T) {
	ctx := context.Background()
	repo := NewTenantRepository(newTestDB(t))

	tenant := &models.Tenant{Name: "Initech", IsActive: true}
	require.NoError(t, repo.Create(ctx, tenant))
	assert.Equal(t, models.PlanFree, tenant.Plan)
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	tenants := NewTenantRepository(db)
	users := NewUserRepository(db)

	tenant := &models.Tenant{Name: "Acme", IsActive: true}
	require.NoError(t, tenants.Create(ctx, tenant))

	user := &models.User{Email: "ada@acme.test", Name: "Ada", TenantID: &tenant.ID, PasswordHash: "x"}
	require.NoError(t, users.Create(ctx, user))

	byEmail, err := users.FindByEmail(ctx, "ada@acme.test")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, user.ID, byEmail.ID)
	assert.Equal(t, models.RoleMember, byEmail.Role)

	byID, err := users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)

	count, err := users.CountByTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	none, err := users.FindByEmail(ctx, "nobody@acme.test")
	require.NoError(t, err)
	assert.Nil(t, none)

	assert.Error(t, users.Create(ctx, &models.User{Email: "ada@acme.test", PasswordHash: "y"}), "email is unique")
}

func newPercentageFlag(key string, pct int) *models.FeatureFlag {
	flag := &models.FeatureFlag{Key: key, Name: key, Type: models.FlagPercentage, IsActive: true}
	flag.SetParams(models.FlagParameters{Percentage: intPtr(pct)})
	return flag
}

func TestFeatureFlagRepository_Flags(t *testing.T) {
	ctx := context.Background()
	repo := NewFeatureFlagRepository(newTestDB(t))

	ab := &models.FeatureFlag{Key: "checkout", Type: models.FlagABTest, IsActive: false}
	ab.SetParams(models.FlagParameters{
		Variants:       models.Variants{{Name: "zeta", Weight: 0.7}, {Name: "alpha", Weight: 0.3}},
		DefaultVariant: "zeta",
	})
	require.NoError(t, repo.Create(ctx, ab))
	require.NoError(t, repo.Create(ctx, newPercentageFlag("beta", 25)))

	flags, err := repo.ListFlags(ctx)
	require.NoError(t, err)
	require.Len(t, flags, 2)
	assert.Equal(t, "beta", flags[0].Key)

	got, err := repo.FindFlag(ctx, "checkout")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.IsActive, "inactive flags stay inactive")
	assert.Equal(t, []string{"zeta", "alpha"}, []string{got.Params().Variants[0].Name, got.Params().Variants[1].Name})

	got.IsActive = true
	got.DefaultValue = true
	require.NoError(t, repo.SaveFlag(ctx, got))

	got, err = repo.FindFlag(ctx, "checkout")
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	assert.True(t, got.DefaultValue)

	missing, err := repo.FindFlag(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFeatureFlagRepository_Overrides(t *testing.T) {
	ctx := context.Background()
	repo := NewFeatureFlagRepository(newTestDB(t))

	flag := &models.FeatureFlag{Key: "sso", Type: models.FlagPerTenant, IsActive: true}
	require.NoError(t, repo.Create(ctx, flag))

	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, repo.SaveOverride(ctx, &models.FeatureOverride{
		FeatureFlagID: flag.ID, ScopeKind: "tenant", ScopeID: "acme", Value: true,
	}))
	require.NoError(t, repo.SaveOverride(ctx, &models.FeatureOverride{
		FeatureFlagID: flag.ID, ScopeKind: "tenant", ScopeID: "acme", Value: false, ExpiresAt: &expires,
	}))

	overrides, err := repo.ListOverrides(ctx, flag.ID)
	require.NoError(t, err)
	require.Len(t, overrides, 1, "upsert keeps one row per scope")

	got, err := repo.FindOverride(ctx, flag.ID, "tenant", "acme")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Value)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, expires.Equal(*got.ExpiresAt))

	none, err := repo.FindOverride(ctx, flag.ID, "user", "acme")
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, repo.DeleteOverride(ctx, flag.ID, "tenant", "acme"))
	got, err = repo.FindOverride(ctx, flag.ID, "tenant", "acme")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFeatureFlagRepository_DeleteRemovesOverrides(t *testing.T) {
	ctx := context.Background()
	repo := NewFeatureFlagRepository(newTestDB(t))

	flag := &models.FeatureFlag{Key: "beta", Type: models.FlagPerUser, IsActive: true}
	require.NoError(t, repo.Create(ctx, flag))
	require.NoError(t, repo.SaveOverride(ctx, &models.FeatureOverride{
		FeatureFlagID: flag.ID, ScopeKind: "user", ScopeID: "1", Value: true,
	}))

	require.NoError(t, repo.DeleteFlag(ctx, "beta"))

	gone, err := repo.FindFlag(ctx, "beta")
	require.NoError(t, err)
	assert.Nil(t, gone)

	overrides, err := repo.ListOverrides(ctx, flag.ID)
	require.NoError(t, err)
	assert.Empty(t, overrides)

	assert.Error(t, repo.DeleteFlag(ctx, "beta"))
}

func TestFeatureFlagRepository_DeleteAllOverrides(t *testing.T) {
	ctx := context.Background()
	repo := NewFeatureFlagRepository(newTestDB(t))

	flag := &models.FeatureFlag{Key: "beta", Type: models.FlagPerUser, IsActive: true}
	require.NoError(t, repo.Create(ctx, flag))
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, repo.SaveOverride(ctx, &models.FeatureOverride{
			FeatureFlagID: flag.ID, ScopeKind: "user", ScopeID: id, Value: true,
		}))
	}

	require.NoError(t, repo.DeleteAllOverrides(ctx))
	overrides, err := repo.ListOverrides(ctx, flag.ID)
	require.NoError(t, err)
	assert.Empty(t, overrides)
}

// The repository drives the feature manager end to end
func TestFeatureFlagRepository_WithManager(t *testing.T) {
	ctx := context.Background()
	repo := NewFeatureFlagRepository(newTestDB(t))

	require.NoError(t, repo.Create(ctx, &models.FeatureFlag{Key: "sso", Type: models.FlagPerTenant, IsActive: true}))

	m := feature.New(feature.Options{Store: repo, Environment: "test"})
	require.NoError(t, m.Load(ctx))

	acme := feature.Subject{Tenant: scope.Tenant("acme")}
	assert.False(t, m.IsActive(ctx, "sso", acme))

	require.NoError(t, m.Activate(ctx, "sso", scope.Tenant("acme"), true))
	assert.True(t, m.IsActive(ctx, "sso", acme))

	require.NoError(t, m.PurgeAll(ctx))
	require.NoError(t, m.Load(ctx))
	assert.False(t, m.IsActive(ctx, "sso", acme))
}
