package feature

import (
	"context"
	"errors"
	"time"

	"github.com/aman-churiwal/tenantgate/internal/metrics"
	"github.com/aman-churiwal/tenantgate/internal/models"
	"github.com/aman-churiwal/tenantgate/internal/scope"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Evaluator resolves one flag type. Evaluators never fail; errors fall back
// to the flag default.
type Evaluator interface {
	Evaluate(ctx context.Context, flag *models.FeatureFlag, s scope.Scope) Value
}

type EvaluatorFunc func(ctx context.Context, flag *models.FeatureFlag, s scope.Scope) Value

func (f EvaluatorFunc) Evaluate(ctx context.Context, flag *models.FeatureFlag, s scope.Scope) Value {
	return f(ctx, flag, s)
}

// GlobalEvaluator ignores the scope
type GlobalEvaluator struct{}

func (GlobalEvaluator) Evaluate(_ context.Context, flag *models.FeatureFlag, _ scope.Scope) Value {
	return defaultOf(flag)
}

// OverrideEvaluator serves PER_TENANT and PER_USER flags from stored
// overrides, read through the cache.
type OverrideEvaluator struct {
	kind    scope.Kind
	store   Store
	cache   Cache
	ttl     time.Duration
	log     *zap.Logger
	metrics *metrics.Metrics
	group   singleflight.Group
	now     func() time.Time

	loadTimeout time.Duration
}

const defaultLoadTimeout = 2 * time.Second

func NewOverrideEvaluator(kind scope.Kind, store Store, cache Cache, ttl time.Duration, log *zap.Logger, m *metrics.Metrics) *OverrideEvaluator {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &OverrideEvaluator{
		kind:    kind,
		store:   store,
		cache:   cache,
		ttl:     ttl,
		log:     log,
		metrics: m,
		now:     time.Now,

		loadTimeout: defaultLoadTimeout,
	}
}

func (e *OverrideEvaluator) Evaluate(ctx context.Context, flag *models.FeatureFlag, s scope.Scope) Value {
	if s.IsZero() || s.Kind != e.kind {
		return defaultOf(flag)
	}

	var key string
	if e.cache != nil {
		cached, cacheKey, found := e.fromCache(ctx, flag.Key, s)
		if found {
			return cached
		}
		key = cacheKey
	}

	flight := key
	if flight == "" {
		flight = flag.Key + "|" + s.Identity()
	}

	// The shared load outlives the request that started it
	v, err, _ := e.group.Do(flight, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.loadTimeout)
		defer cancel()
		return e.load(loadCtx, flag, s, key)
	})
	if err != nil {
		e.metrics.RecordFlagError("store")
		e.log.Error("feature override lookup failed",
			zap.String("feature", flag.Key),
			zap.String("scope", s.Identity()),
			zap.Error(err),
		)
		return defaultOf(flag)
	}
	return v.(Value)
}

// fromCache returns the memoized value of feature for s, or the key a loaded
// value belongs under. The key is empty when the cache is unreachable.
func (e *OverrideEvaluator) fromCache(ctx context.Context, feature string, s scope.Scope) (Value, string, bool) {
	generation, err := e.cache.Generation(ctx, feature)
	if err != nil {
		e.metrics.RecordCacheLookup("error")
		e.log.Warn("feature cache read failed", zap.String("feature", feature), zap.Error(err))
		return Value{}, "", false
	}

	key := CacheKey(feature, generation, s)
	cached, found, err := e.cache.Get(ctx, key)
	switch {
	case err != nil:
		e.metrics.RecordCacheLookup("error")
		e.log.Warn("feature cache read failed", zap.String("feature", feature), zap.Error(err))
		return Value{}, "", false
	case found:
		e.metrics.RecordCacheLookup("hit")
		return Bool(cached == "1"), key, true
	default:
		e.metrics.RecordCacheLookup("miss")
		return Value{}, key, false
	}
}

func (e *OverrideEvaluator) load(ctx context.Context, flag *models.FeatureFlag, s scope.Scope, key string) (Value, error) {
	override, err := e.store.FindOverride(ctx, flag.ID, string(s.Kind), s.ID)
	if err != nil {
		return Value{}, err
	}

	now := e.now()
	value := defaultOf(flag)
	ttl := e.ttl
	if override != nil && !override.Expired(now) {
		value = Bool(override.Value)
		if override.ExpiresAt != nil {
			if untilExpiry := override.ExpiresAt.Sub(now); untilExpiry < ttl {
				ttl = untilExpiry
			}
		}
	}

	if key != "" && ttl > 0 {
		encoded := "0"
		if value.Enabled {
			encoded = "1"
		}
		if err := e.cache.Put(ctx, key, encoded, ttl); err != nil {
			e.log.Warn("feature cache write failed", zap.String("feature", flag.Key), zap.Error(err))
		}
	}
	return value, nil
}

// PercentageEvaluator enables a stable share of scopes
type PercentageEvaluator struct{}

func (PercentageEvaluator) Evaluate(_ context.Context, flag *models.FeatureFlag, s scope.Scope) Value {
	params := flag.Params()
	if params.Percentage == nil || s.IsZero() {
		return defaultOf(flag)
	}

	p := ClampPercentage(*params.Percentage)
	switch p {
	case 0:
		return Bool(false)
	case 100:
		return Bool(true)
	}
	return Bool(Bucket(flag.Key, s) <= float64(p)/100)
}

// DateRangeEvaluator reports whether now is inside the flag window
type DateRangeEvaluator struct {
	now func() time.Time
}

func NewDateRangeEvaluator(now func() time.Time) DateRangeEvaluator {
	if now == nil {
		now = time.Now
	}
	return DateRangeEvaluator{now: now}
}

func (e DateRangeEvaluator) Evaluate(_ context.Context, flag *models.FeatureFlag, _ scope.Scope) Value {
	return Bool(flag.InWindow(e.now()))
}

// EnvironmentEvaluator reports whether the runtime environment is listed
type EnvironmentEvaluator struct {
	environment string
}

func NewEnvironmentEvaluator(environment string) EnvironmentEvaluator {
	return EnvironmentEvaluator{environment: environment}
}

func (e EnvironmentEvaluator) Evaluate(_ context.Context, flag *models.FeatureFlag, _ scope.Scope) Value {
	return Bool(containsEnvironment(flag.Params().Environments, e.environment))
}

// ABTestEvaluator buckets a scope into one of the flag's variants. Weights are
// accumulated raw in declaration order and do not have to sum to 1.
type ABTestEvaluator struct{}

func (ABTestEvaluator) Evaluate(_ context.Context, flag *models.FeatureFlag, s scope.Scope) Value {
	params := flag.Params()
	if s.IsZero() || len(params.Variants) == 0 {
		return VariantValue(params.DefaultVariant)
	}

	n := Bucket(flag.Key, s)
	var cumulative float64
	for _, variant := range params.Variants {
		cumulative += variant.Weight
		if cumulative >= n {
			return VariantValue(variant.Name)
		}
	}
	return VariantValue(params.DefaultVariant)
}

func containsEnvironment(environments []string, env string) bool {
	for _, e := range environments {
		if e == env {
			return true
		}
	}
	return false
}

var errUnknownType = errors.New("no evaluator registered for flag type")
