package federation

import (
	"context"

	"ssogate/internal/domain"
	"ssogate/internal/storage"
)

// Registry resolves relying-party registrations from the configuration
// store. Registrations are assembled per call so administrative changes take
// effect immediately; read caching happens below this layer in the store.
type Registry struct {
	store storage.IdPStore
	opts  Options
}

// NewRegistry creates a Registry over the given store.
func NewRegistry(store storage.IdPStore, opts Options) *Registry {
	return &Registry{store: store, opts: opts}
}

// Lookup builds the registration for the IdP with the given slug. Returns
// storage.ErrNotFound for unknown or inactive slugs and an error wrapping
// ErrBuildRegistration for malformed configurations.
func (g *Registry) Lookup(ctx context.Context, slug string) (*Registration, error) {
	cfg, err := g.store.GetByIdPID(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !cfg.IsActive {
		return nil, storage.ErrNotFound
	}
	return Build(cfg, g.opts)
}

// ForConfig builds the registration for an already-loaded configuration.
func (g *Registry) ForConfig(cfg *domain.IdPConfig) (*Registration, error) {
	return Build(cfg, g.opts)
}

// List builds registrations for every active IdP. Configurations that fail
// to build are skipped; the caller decides whether a partially built list is
// acceptable (the login page is, the metadata endpoint uses Lookup).
func (g *Registry) List(ctx context.Context) ([]*Registration, error) {
	configs, err := g.store.ListActiveWithDetails(ctx)
	if err != nil {
		return nil, err
	}
	regs := make([]*Registration, 0, len(configs))
	for _, cfg := range configs {
		reg, err := Build(cfg, g.opts)
		if err != nil {
			continue
		}
		regs = append(regs, reg)
	}
	return regs, nil
}
