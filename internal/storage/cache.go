package storage

import (
	"context"
	"strconv"
	"sync"

	"ssogate/internal/domain"
)

// Cache namespaces, one per read query shape.
const (
	nsActiveList = "active_list"
	nsDetails    = "active_details"
	nsByID       = "by_id"
	nsBySlug     = "by_slug"
	nsDefault    = "default"
	nsByDomain   = "by_domain"
)

// CachedIdPStore wraps an IdPStore with a process-local read cache keyed by
// query shape. Every write evicts whole namespaces rather than single keys:
// configuration changes are rare administrative events, so the coarse
// invalidation buys simplicity at no practical cost. The cache is not
// coherent across instances.
type CachedIdPStore struct {
	inner IdPStore

	mu    sync.RWMutex
	cache map[string]map[string]any // namespace -> key -> value
}

// NewCachedIdPStore wraps inner with a read cache.
func NewCachedIdPStore(inner IdPStore) *CachedIdPStore {
	return &CachedIdPStore{
		inner: inner,
		cache: make(map[string]map[string]any),
	}
}

var _ IdPStore = (*CachedIdPStore)(nil)

func (s *CachedIdPStore) get(ns, key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, ok := s.cache[ns]
	if !ok {
		return nil, false
	}
	v, ok := entries[key]
	return v, ok
}

func (s *CachedIdPStore) put(ns, key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache[ns] == nil {
		s.cache[ns] = make(map[string]any)
	}
	s.cache[ns][key] = v
}

// evict drops entire namespaces.
func (s *CachedIdPStore) evict(namespaces ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ns := range namespaces {
		delete(s.cache, ns)
	}
}

func (s *CachedIdPStore) GetByID(ctx context.Context, id int64) (*domain.IdPConfig, error) {
	key := strconv.FormatInt(id, 10)
	if v, ok := s.get(nsByID, key); ok {
		return copyIdPConfig(v.(*domain.IdPConfig)), nil
	}
	cfg, err := s.inner.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.put(nsByID, key, copyIdPConfig(cfg))
	return cfg, nil
}

func (s *CachedIdPStore) GetByIdPID(ctx context.Context, idpID string) (*domain.IdPConfig, error) {
	if v, ok := s.get(nsBySlug, idpID); ok {
		return copyIdPConfig(v.(*domain.IdPConfig)), nil
	}
	cfg, err := s.inner.GetByIdPID(ctx, idpID)
	if err != nil {
		return nil, err
	}
	s.put(nsBySlug, idpID, copyIdPConfig(cfg))
	return cfg, nil
}

func (s *CachedIdPStore) GetDefault(ctx context.Context) (*domain.IdPConfig, error) {
	if v, ok := s.get(nsDefault, ""); ok {
		return copyIdPConfig(v.(*domain.IdPConfig)), nil
	}
	cfg, err := s.inner.GetDefault(ctx)
	if err != nil {
		return nil, err
	}
	s.put(nsDefault, "", copyIdPConfig(cfg))
	return cfg, nil
}

func (s *CachedIdPStore) ListActive(ctx context.Context) ([]*domain.IdPConfig, error) {
	if v, ok := s.get(nsActiveList, ""); ok {
		return copyIdPConfigs(v.([]*domain.IdPConfig)), nil
	}
	list, err := s.inner.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	s.put(nsActiveList, "", copyIdPConfigs(list))
	return list, nil
}

func (s *CachedIdPStore) ListActiveWithDetails(ctx context.Context) ([]*domain.IdPConfig, error) {
	if v, ok := s.get(nsDetails, ""); ok {
		return copyIdPConfigs(v.([]*domain.IdPConfig)), nil
	}
	list, err := s.inner.ListActiveWithDetails(ctx)
	if err != nil {
		return nil, err
	}
	s.put(nsDetails, "", copyIdPConfigs(list))
	return list, nil
}

func (s *CachedIdPStore) FindByEmailDomain(ctx context.Context, emailDomain string) (*domain.IdPConfig, error) {
	if v, ok := s.get(nsByDomain, emailDomain); ok {
		return copyIdPConfig(v.(*domain.IdPConfig)), nil
	}
	cfg, err := s.inner.FindByEmailDomain(ctx, emailDomain)
	if err != nil {
		return nil, err
	}
	s.put(nsByDomain, emailDomain, copyIdPConfig(cfg))
	return cfg, nil
}

func (s *CachedIdPStore) Create(ctx context.Context, cfg *domain.IdPConfig) error {
	if err := s.inner.Create(ctx, cfg); err != nil {
		return err
	}
	// A create can demote the previous default and may carry domains; the
	// demoted config's by-id/by-slug entries go stale too.
	s.evict(nsActiveList, nsDetails, nsByID, nsBySlug, nsDefault, nsByDomain)
	return nil
}

func (s *CachedIdPStore) Update(ctx context.Context, id int64, patch domain.UpdateIdPConfig) (*domain.IdPConfig, error) {
	cfg, err := s.inner.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	// Deactivation changes domain resolution, so by_domain goes too.
	s.evict(nsActiveList, nsDetails, nsByID, nsBySlug, nsDefault, nsByDomain)
	return cfg, nil
}

func (s *CachedIdPStore) Delete(ctx context.Context, id int64) error {
	if err := s.inner.Delete(ctx, id); err != nil {
		return err
	}
	s.evict(nsActiveList, nsDetails, nsByID, nsBySlug, nsDefault, nsByDomain)
	return nil
}

func (s *CachedIdPStore) AddProperty(ctx context.Context, idpID, name, value string) error {
	if err := s.inner.AddProperty(ctx, idpID, name, value); err != nil {
		return err
	}
	s.evict(nsActiveList, nsDetails, nsByID, nsBySlug)
	return nil
}

func (s *CachedIdPStore) AddEmailDomain(ctx context.Context, idpID, emailDomain string) error {
	if err := s.inner.AddEmailDomain(ctx, idpID, emailDomain); err != nil {
		return err
	}
	s.evict(nsActiveList, nsDetails, nsByID, nsBySlug, nsByDomain)
	return nil
}

func (s *CachedIdPStore) Close() error { return s.inner.Close() }

func copyIdPConfigs(list []*domain.IdPConfig) []*domain.IdPConfig {
	out := make([]*domain.IdPConfig, len(list))
	for i, cfg := range list {
		out[i] = copyIdPConfig(cfg)
	}
	return out
}
