package feature

import (
	"context"
	"testing"
	"time"

	"github.com/aman-churiwal/tenantgate/internal/models"
	"github.com/aman-churiwal/tenantgate/internal/scope"
	"github.com/stretchr/testify/assert"
)

func newTestRegistry(env string, now time.Time) *Registry {
	r := NewRegistry(env, map[models.FlagType]Evaluator{
		models.FlagGlobal:      GlobalEvaluator{},
		models.FlagPercentage:  PercentageEvaluator{},
		models.FlagDateRange:   NewDateRangeEvaluator(fixedClock(now)),
		models.FlagEnvironment: NewEnvironmentEvaluator(env),
		models.FlagABTest:      ABTestEvaluator{},
	}, nil, nil)
	r.now = fixedClock(now)
	return r
}

func TestRegistry_UnregisteredFlagIsOff(t *testing.T) {
	r := newTestRegistry("production", time.Now())

	v, ok := r.Evaluate(context.Background(), "missing", Subject{})
	assert.False(t, ok)
	assert.False(t, v.Enabled)
}

func TestRegistry_StateMachine(t *testing.T) {
	now := time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)
	user := Subject{User: scope.User("7")}

	tests := []struct {
		name  string
		flag  func() *models.FeatureFlag
		want  Value
		scope Subject
	}{
		{
			name: "inactive returns default",
			flag: func() *models.FeatureFlag {
				f := newFlag("f", models.FlagPercentage, models.FlagParameters{Percentage: intPtr(100)})
				f.IsActive = false
				return f
			},
			want:  Bool(false),
			scope: user,
		},
		{
			name: "global returns default",
			flag: func() *models.FeatureFlag {
				f := newFlag("f", models.FlagGlobal, models.FlagParameters{})
				f.DefaultValue = true
				return f
			},
			want: Bool(true),
		},
		{
			name: "out of window returns default",
			flag: func() *models.FeatureFlag {
				f := newFlag("f", models.FlagPercentage, models.FlagParameters{Percentage: intPtr(100)})
				f.StartsAt = &future
				return f
			},
			want:  Bool(false),
			scope: user,
		},
		{
			name: "in window dispatches",
			flag: func() *models.FeatureFlag {
				f := newFlag("f", models.FlagPercentage, models.FlagParameters{Percentage: intPtr(100)})
				f.StartsAt = &past
				f.EndsAt = &future
				return f
			},
			want:  Bool(true),
			scope: user,
		},
		{
			name: "date range outside window is the window check",
			flag: func() *models.FeatureFlag {
				f := newFlag("f", models.FlagDateRange, models.FlagParameters{})
				f.DefaultValue = true
				f.EndsAt = &past
				return f
			},
			want: Bool(false),
		},
		{
			name: "date range inside window",
			flag: func() *models.FeatureFlag {
				f := newFlag("f", models.FlagDateRange, models.FlagParameters{})
				f.StartsAt = &past
				return f
			},
			want: Bool(true),
		},
		{
			name: "environment type matches",
			flag: func() *models.FeatureFlag {
				return newFlag("f", models.FlagEnvironment, models.FlagParameters{Environments: []string{"staging"}})
			},
			want: Bool(true),
		},
		{
			name: "environment type mismatch",
			flag: func() *models.FeatureFlag {
				f := newFlag("f", models.FlagEnvironment, models.FlagParameters{Environments: []string{"production"}})
				f.DefaultValue = true
				return f
			},
			want: Bool(false),
		},
		{
			name: "environment gate on other types",
			flag: func() *models.FeatureFlag {
				return newFlag("f", models.FlagPercentage, models.FlagParameters{
					Percentage:   intPtr(100),
					Environments: []string{"production"},
				})
			},
			want:  Bool(false),
			scope: user,
		},
		{
			name: "unknown type returns default",
			flag: func() *models.FeatureFlag {
				f := newFlag("f", models.FlagType("geo"), models.FlagParameters{})
				f.DefaultValue = true
				return f
			},
			want: Bool(true),
		},
		{
			name: "type without evaluator returns default",
			flag: func() *models.FeatureFlag {
				return newFlag("f", models.FlagPerTenant, models.FlagParameters{})
			},
			want:  Bool(false),
			scope: Subject{Tenant: scope.Tenant("t")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry("staging", now)
			r.Register(tt.flag())

			got, ok := r.Evaluate(context.Background(), "f", tt.scope)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := newTestRegistry("production", time.Now())
	ctx := context.Background()

	f := newFlag("maintenance", models.FlagGlobal, models.FlagParameters{})
	r.Register(f)
	assert.False(t, isOn(ctx, r, "maintenance"))

	f.DefaultValue = true
	assert.False(t, isOn(ctx, r, "maintenance"), "registry keeps its own copy")

	r.Register(f)
	assert.True(t, isOn(ctx, r, "maintenance"))

	r.Unregister("maintenance")
	_, ok := r.Flag("maintenance")
	assert.False(t, ok)
}

func TestRegistry_Eligible(t *testing.T) {
	now := time.Now()
	r := newTestRegistry("production", now)

	f := newFlag("f", models.FlagGlobal, models.FlagParameters{Environments: []string{"production"}})
	assert.True(t, r.Eligible(f))

	f.IsActive = false
	assert.False(t, r.Eligible(f))

	f.IsActive = true
	ended := now.Add(-time.Hour)
	f.EndsAt = &ended
	assert.False(t, r.Eligible(f))
}

func TestRegistry_KeysSorted(t *testing.T) {
	r := newTestRegistry("production", time.Now())
	r.Register(newFlag("b", models.FlagGlobal, models.FlagParameters{}))
	r.Register(newFlag("a", models.FlagGlobal, models.FlagParameters{}))

	assert.Equal(t, []string{"a", "b"}, r.Keys())

	r.Purge()
	assert.Empty(t, r.Keys())
}

func isOn(ctx context.Context, r *Registry, key string) bool {
	v, _ := r.Evaluate(ctx, key, Subject{})
	return v.Enabled
}
