package feature

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aman-churiwal/tenantgate/internal/metrics"
	"github.com/aman-churiwal/tenantgate/internal/models"
	"go.uber.org/zap"
)

// Registry holds the loaded flag definitions and dispatches evaluation to the
// evaluator of each flag type. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	flags map[string]*models.FeatureFlag

	evaluators  map[models.FlagType]Evaluator
	environment string
	now         func() time.Time
	log         *zap.Logger
	metrics     *metrics.Metrics
}

func NewRegistry(environment string, evaluators map[models.FlagType]Evaluator, log *zap.Logger, m *metrics.Metrics) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		flags:       make(map[string]*models.FeatureFlag),
		evaluators:  evaluators,
		environment: environment,
		now:         time.Now,
		log:         log,
		metrics:     m,
	}
}

// Register stores a copy of flag, replacing any earlier definition of the same key
func (r *Registry) Register(flag *models.FeatureFlag) {
	cp := *flag
	cp.Overrides = nil

	r.mu.Lock()
	r.flags[flag.Key] = &cp
	r.mu.Unlock()
}

func (r *Registry) Unregister(key string) {
	r.mu.Lock()
	delete(r.flags, key)
	r.mu.Unlock()
}

func (r *Registry) Purge() {
	r.mu.Lock()
	r.flags = make(map[string]*models.FeatureFlag)
	r.mu.Unlock()
}

func (r *Registry) Flag(key string) (*models.FeatureFlag, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	flag, ok := r.flags[key]
	return flag, ok
}

func (r *Registry) Keys() []string {
	r.mu.RLock()
	keys := make([]string, 0, len(r.flags))
	for key := range r.flags {
		keys = append(keys, key)
	}
	r.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// Eligible reports whether flag is switched on, inside its window and allowed
// in the current environment.
func (r *Registry) Eligible(flag *models.FeatureFlag) bool {
	return flag.IsActive && flag.InWindow(r.now()) && r.environmentAllowed(flag)
}

func (r *Registry) environmentAllowed(flag *models.FeatureFlag) bool {
	envs := flag.Params().Environments
	return len(envs) == 0 || containsEnvironment(envs, r.environment)
}

// Evaluate resolves key for subject. The boolean is false when key is not registered.
func (r *Registry) Evaluate(ctx context.Context, key string, subject Subject) (Value, bool) {
	flag, ok := r.Flag(key)
	if !ok {
		return Value{}, false
	}

	value := r.evaluate(ctx, flag, subject)
	r.metrics.RecordFlagEvaluation(string(flag.Type), resultLabel(value))
	return value, true
}

func (r *Registry) evaluate(ctx context.Context, flag *models.FeatureFlag, subject Subject) Value {
	if !flag.IsActive {
		return defaultOf(flag)
	}

	now := r.now()
	switch flag.Type {
	case models.FlagDateRange:
		// the window is the value itself
		if !r.environmentAllowed(flag) {
			return defaultOf(flag)
		}
	case models.FlagEnvironment:
		if !flag.InWindow(now) {
			return defaultOf(flag)
		}
	default:
		if !flag.InWindow(now) || !r.environmentAllowed(flag) {
			return defaultOf(flag)
		}
	}

	evaluator, ok := r.evaluators[flag.Type]
	if !ok {
		r.metrics.RecordFlagError("unknown_type")
		r.log.Warn("feature flag falls back to default",
			zap.String("feature", flag.Key),
			zap.String("type", string(flag.Type)),
			zap.Error(errUnknownType),
		)
		return defaultOf(flag)
	}

	return evaluator.Evaluate(ctx, flag, subject.ScopeFor(flag.Type))
}

func resultLabel(v Value) string {
	if v.IsVariant() {
		return "variant"
	}
	if v.Enabled {
		return "true"
	}
	return "false"
}
