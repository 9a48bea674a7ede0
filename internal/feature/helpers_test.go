package feature

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aman-churiwal/tenantgate/internal/models"
	"github.com/aman-churiwal/tenantgate/internal/storage"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var errStoreDown = errors.New("store down")

// memStore is an in-memory Store that counts override lookups
type memStore struct {
	mu        sync.Mutex
	flags     map[string]*models.FeatureFlag
	overrides map[string]models.FeatureOverride
	lookups   int
	err       error
}

func newMemStore(flags ...*models.FeatureFlag) *memStore {
	s := &memStore{
		flags:     make(map[string]*models.FeatureFlag),
		overrides: make(map[string]models.FeatureOverride),
	}
	for _, f := range flags {
		s.flags[f.Key] = f
	}
	return s
}

func overrideKey(flagID uuid.UUID, kind, id string) string {
	return flagID.String() + "/" + kind + "/" + id
}

func (s *memStore) ListFlags(ctx context.Context) ([]models.FeatureFlag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.FeatureFlag, 0, len(s.flags))
	for _, f := range s.flags {
		out = append(out, *f)
	}
	return out, nil
}

func (s *memStore) FindFlag(ctx context.Context, key string) (*models.FeatureFlag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	f, ok := s.flags[key]
	if !ok {
		return nil, nil
	}
	cp := *f
	return &cp, nil
}

func (s *memStore) SaveFlag(ctx context.Context, flag *models.FeatureFlag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	cp := *flag
	s.flags[flag.Key] = &cp
	return nil
}

func (s *memStore) FindOverride(ctx context.Context, flagID uuid.UUID, kind, scopeID string) (*models.FeatureOverride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	if s.err != nil {
		return nil, s.err
	}
	o, ok := s.overrides[overrideKey(flagID, kind, scopeID)]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (s *memStore) SaveOverride(ctx context.Context, o *models.FeatureOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.overrides[overrideKey(o.FeatureFlagID, o.ScopeKind, o.ScopeID)] = *o
	return nil
}

func (s *memStore) DeleteOverride(ctx context.Context, flagID uuid.UUID, kind, scopeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	delete(s.overrides, overrideKey(flagID, kind, scopeID))
	return nil
}

func (s *memStore) DeleteAllOverrides(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.overrides = make(map[string]models.FeatureOverride)
	return nil
}

func (s *memStore) lookupCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

func (s *memStore) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func newFlag(key string, t models.FlagType, params models.FlagParameters) *models.FeatureFlag {
	f := &models.FeatureFlag{ID: uuid.New(), Key: key, Name: key, Type: t, IsActive: true}
	f.SetParams(params)
	return f
}

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(storage.NewRedisFromClient(client)), mr
}

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
