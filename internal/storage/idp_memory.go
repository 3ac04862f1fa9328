package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"ssogate/internal/domain"
)

// MemoryIdPStore is an in-memory implementation of IdPStore. It is
// thread-safe and suitable for development and tests.
type MemoryIdPStore struct {
	mu      sync.RWMutex
	nextID  int64
	configs map[int64]*domain.IdPConfig // keyed by numeric ID
	slugs   map[string]int64            // slug -> ID
}

// NewMemoryIdPStore creates a new in-memory IdP configuration store.
func NewMemoryIdPStore() *MemoryIdPStore {
	return &MemoryIdPStore{
		nextID:  1,
		configs: make(map[int64]*domain.IdPConfig),
		slugs:   make(map[string]int64),
	}
}

func (s *MemoryIdPStore) Create(_ context.Context, cfg *domain.IdPConfig) error {
	if cfg == nil || strings.TrimSpace(cfg.IdPID) == "" || strings.TrimSpace(cfg.Name) == "" {
		return ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.slugs[cfg.IdPID]; exists {
		return ErrConflict
	}

	for i := range cfg.EmailDomains {
		d := strings.ToLower(strings.TrimSpace(cfg.EmailDomains[i].Domain))
		if owner := s.activeDomainOwnerLocked(d); owner != nil {
			return ErrDuplicateDomain
		}
		cfg.EmailDomains[i].Domain = d
	}

	if cfg.IsDefault {
		s.demoteDefaultLocked()
	}

	now := time.Now().UTC()
	cfg.ID = s.nextID
	s.nextID++
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	s.configs[cfg.ID] = copyIdPConfig(cfg)
	s.slugs[cfg.IdPID] = cfg.ID
	return nil
}

func (s *MemoryIdPStore) GetByID(_ context.Context, id int64) (*domain.IdPConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, exists := s.configs[id]
	if !exists {
		return nil, ErrNotFound
	}
	return copyIdPConfig(cfg), nil
}

func (s *MemoryIdPStore) GetByIdPID(_ context.Context, idpID string) (*domain.IdPConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.slugs[idpID]
	if !exists {
		return nil, ErrNotFound
	}
	return copyIdPConfig(s.configs[id]), nil
}

func (s *MemoryIdPStore) GetDefault(_ context.Context) (*domain.IdPConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, cfg := range s.configs {
		if cfg.IsDefault {
			return copyIdPConfig(cfg), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryIdPStore) ListActive(_ context.Context) ([]*domain.IdPConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.IdPConfig, 0, len(s.configs))
	for _, cfg := range s.configs {
		if !cfg.IsActive {
			continue
		}
		c := copyIdPConfig(cfg)
		c.Properties = nil
		c.EmailDomains = nil
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemoryIdPStore) ListActiveWithDetails(_ context.Context) ([]*domain.IdPConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.IdPConfig, 0, len(s.configs))
	for _, cfg := range s.configs {
		if cfg.IsActive {
			result = append(result, copyIdPConfig(cfg))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemoryIdPStore) FindByEmailDomain(_ context.Context, emailDomain string) (*domain.IdPConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg := s.activeDomainOwnerLocked(strings.ToLower(strings.TrimSpace(emailDomain)))
	if cfg == nil {
		return nil, ErrNotFound
	}
	return copyIdPConfig(cfg), nil
}

func (s *MemoryIdPStore) Update(_ context.Context, id int64, patch domain.UpdateIdPConfig) (*domain.IdPConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, exists := s.configs[id]
	if !exists {
		return nil, ErrNotFound
	}

	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return nil, ErrValidation
		}
		cfg.Name = *patch.Name
	}
	if patch.DisplayName != nil {
		cfg.DisplayName = *patch.DisplayName
	}
	if patch.LogoURL != nil {
		cfg.LogoURL = *patch.LogoURL
	}
	if patch.IsActive != nil {
		cfg.IsActive = *patch.IsActive
	}
	if patch.IsDefault != nil {
		if *patch.IsDefault {
			s.demoteDefaultLocked()
		}
		cfg.IsDefault = *patch.IsDefault
	}
	cfg.UpdatedAt = time.Now().UTC()

	return copyIdPConfig(cfg), nil
}

func (s *MemoryIdPStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, exists := s.configs[id]
	if !exists {
		return ErrNotFound
	}

	// Properties and email domains live on the config itself, so removing
	// the row is the cascade.
	delete(s.slugs, cfg.IdPID)
	delete(s.configs, id)
	return nil
}

func (s *MemoryIdPStore) AddProperty(_ context.Context, idpID, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, exists := s.slugs[idpID]
	if !exists {
		return ErrNotFound
	}
	cfg := s.configs[id]
	cfg.Properties = append(cfg.Properties, domain.IdPProperty{Name: name, Value: value})
	cfg.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryIdPStore) AddEmailDomain(_ context.Context, idpID, emailDomain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, exists := s.slugs[idpID]
	if !exists {
		return ErrNotFound
	}

	d := strings.ToLower(strings.TrimSpace(emailDomain))
	if d == "" {
		return ErrValidation
	}
	if owner := s.activeDomainOwnerLocked(d); owner != nil {
		return ErrDuplicateDomain
	}

	cfg := s.configs[id]
	cfg.EmailDomains = append(cfg.EmailDomains, domain.EmailDomain{Domain: d, IsActive: true})
	cfg.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryIdPStore) Close() error { return nil }

// activeDomainOwnerLocked returns the active config owning an active mapping
// for domain, or nil. Callers must hold at least a read lock.
func (s *MemoryIdPStore) activeDomainOwnerLocked(emailDomain string) *domain.IdPConfig {
	for _, cfg := range s.configs {
		if !cfg.IsActive {
			continue
		}
		for _, d := range cfg.EmailDomains {
			if d.IsActive && d.Domain == emailDomain {
				return cfg
			}
		}
	}
	return nil
}

// demoteDefaultLocked clears IsDefault on every config. Callers must hold the
// write lock.
func (s *MemoryIdPStore) demoteDefaultLocked() {
	for _, cfg := range s.configs {
		if cfg.IsDefault {
			cfg.IsDefault = false
			cfg.UpdatedAt = time.Now().UTC()
		}
	}
}

// copyIdPConfig creates a deep copy of an IdPConfig.
func copyIdPConfig(cfg *domain.IdPConfig) *domain.IdPConfig {
	if cfg == nil {
		return nil
	}
	cpy := *cfg
	if cfg.Properties != nil {
		cpy.Properties = make([]domain.IdPProperty, len(cfg.Properties))
		copy(cpy.Properties, cfg.Properties)
	}
	if cfg.EmailDomains != nil {
		cpy.EmailDomains = make([]domain.EmailDomain, len(cfg.EmailDomains))
		copy(cpy.EmailDomains, cfg.EmailDomains)
	}
	return &cpy
}
