package feature

import (
	"context"
	"fmt"
	"time"

	"github.com/aman-churiwal/tenantgate/internal/metrics"
	"github.com/aman-churiwal/tenantgate/internal/models"
	"github.com/aman-churiwal/tenantgate/internal/scope"
	"go.uber.org/zap"
)

type Options struct {
	Store       Store
	Cache       Cache
	Log         *zap.Logger
	Metrics     *metrics.Metrics
	Environment string
	CacheTTL    time.Duration
	// Now defaults to time.Now
	Now func() time.Time
}

// Manager is what the rest of the application calls to read and toggle flags
type Manager struct {
	store    Store
	cache    Cache
	log      *zap.Logger
	registry *Registry
}

func New(opts Options) *Manager {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	perTenant := NewOverrideEvaluator(scope.KindTenant, opts.Store, opts.Cache, opts.CacheTTL, opts.Log, opts.Metrics)
	perUser := NewOverrideEvaluator(scope.KindUser, opts.Store, opts.Cache, opts.CacheTTL, opts.Log, opts.Metrics)
	perTenant.now = opts.Now
	perUser.now = opts.Now

	evaluators := map[models.FlagType]Evaluator{
		models.FlagGlobal:      GlobalEvaluator{},
		models.FlagPerTenant:   perTenant,
		models.FlagPerUser:     perUser,
		models.FlagPercentage:  PercentageEvaluator{},
		models.FlagDateRange:   NewDateRangeEvaluator(opts.Now),
		models.FlagEnvironment: NewEnvironmentEvaluator(opts.Environment),
		models.FlagABTest:      ABTestEvaluator{},
	}

	registry := NewRegistry(opts.Environment, evaluators, opts.Log, opts.Metrics)
	registry.now = opts.Now

	return &Manager{
		store:    opts.Store,
		cache:    opts.Cache,
		log:      opts.Log,
		registry: registry,
	}
}

func (m *Manager) Registry() *Registry {
	return m.registry
}

// Load replaces the registry contents with every stored flag
func (m *Manager) Load(ctx context.Context) error {
	flags, err := m.store.ListFlags(ctx)
	if err != nil {
		return fmt.Errorf("failed to load feature flags: %w", err)
	}

	m.registry.Purge()
	for i := range flags {
		m.registry.Register(&flags[i])
	}

	m.log.Info("feature flags loaded", zap.Int("count", len(flags)))
	return nil
}

// Refresh drops every memoized value of key and re-registers its current
// definition. A flag that no longer exists is unregistered.
func (m *Manager) Refresh(ctx context.Context, key string) error {
	if m.cache != nil {
		if err := m.cache.ForgetFeature(ctx, key); err != nil {
			m.log.Warn("failed to invalidate feature cache", zap.String("feature", key), zap.Error(err))
		}
	}

	flag, err := m.store.FindFlag(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to reload feature %s: %w", key, err)
	}
	if flag == nil {
		m.registry.Unregister(key)
		return nil
	}

	m.registry.Register(flag)
	return nil
}

// Value evaluates key for subject. Unknown flags are off.
func (m *Manager) Value(ctx context.Context, key string, subject Subject) Value {
	value, _ := m.registry.Evaluate(ctx, key, subject)
	return value
}

func (m *Manager) IsActive(ctx context.Context, key string, subject Subject) bool {
	return m.Value(ctx, key, subject).Enabled
}

// All evaluates every registered flag for subject
func (m *Manager) All(ctx context.Context, subject Subject) map[string]Value {
	keys := m.registry.Keys()
	out := make(map[string]Value, len(keys))
	for _, key := range keys {
		if value, ok := m.registry.Evaluate(ctx, key, subject); ok {
			out[key] = value
		}
	}
	return out
}

// Activate sets the value of key. Without a scope the flag default changes,
// with one a tenant or user override is written.
func (m *Manager) Activate(ctx context.Context, key string, s scope.Scope, value bool) error {
	return m.ActivateUntil(ctx, key, s, value, nil)
}

func (m *Manager) Deactivate(ctx context.Context, key string, s scope.Scope) error {
	return m.ActivateUntil(ctx, key, s, false, nil)
}

// ActivateUntil is Activate with an override that lapses at expiresAt.
// expiresAt is ignored for unscoped calls.
func (m *Manager) ActivateUntil(ctx context.Context, key string, s scope.Scope, value bool, expiresAt *time.Time) error {
	flag, err := m.store.FindFlag(ctx, key)
	if err != nil {
		return err
	}
	if flag == nil {
		return ErrFlagNotFound
	}

	if s.IsZero() {
		flag.DefaultValue = value
		if err := m.store.SaveFlag(ctx, flag); err != nil {
			return err
		}
		return m.Refresh(ctx, key)
	}

	if want, ok := overrideKind(flag.Type); !ok || want != s.Kind {
		return fmt.Errorf("%w: %s flag %s cannot be set for a %s", ErrScopeMismatch, flag.Type, key, s.Kind)
	}

	override := &models.FeatureOverride{
		FeatureFlagID: flag.ID,
		ScopeKind:     string(s.Kind),
		ScopeID:       s.ID,
		Value:         value,
		ExpiresAt:     expiresAt,
	}
	if err := m.store.SaveOverride(ctx, override); err != nil {
		return err
	}
	return m.Refresh(ctx, key)
}

// Forget removes the override of key for s
func (m *Manager) Forget(ctx context.Context, key string, s scope.Scope) error {
	flag, err := m.store.FindFlag(ctx, key)
	if err != nil {
		return err
	}
	if flag == nil {
		return ErrFlagNotFound
	}

	if err := m.store.DeleteOverride(ctx, flag.ID, string(s.Kind), s.ID); err != nil {
		return err
	}
	return m.Refresh(ctx, key)
}

// PurgeAll deletes every override and empties the cache and the registry
func (m *Manager) PurgeAll(ctx context.Context) error {
	if err := m.store.DeleteAllOverrides(ctx); err != nil {
		return err
	}
	if m.cache != nil {
		if err := m.cache.FlushAll(ctx); err != nil {
			return err
		}
	}
	m.registry.Purge()
	return nil
}

func overrideKind(t models.FlagType) (scope.Kind, bool) {
	switch t {
	case models.FlagPerTenant:
		return scope.KindTenant, true
	case models.FlagPerUser:
		return scope.KindUser, true
	default:
		return "", false
	}
}
