// Package storage provides storage interfaces and implementations for ssogate.
package storage

import (
	"context"

	"ssogate/internal/domain"
)

// IdPStore defines the interface for IdP configuration persistence.
//
// Implementations must enforce two invariants in the write path rather than
// relying on read-side filtering: at most one configuration has
// IsDefault=true, and an email domain maps to at most one active
// configuration.
type IdPStore interface {
	// Create stores a new IdP configuration, applying defaults
	// (IsActive=true) when the caller did not set flags explicitly, and
	// persisting any attached properties and email domains. Returns
	// ErrValidation for a blank slug or name and ErrConflict for a duplicate
	// slug. Creating a config with IsDefault=true demotes any previous
	// default.
	Create(ctx context.Context, cfg *domain.IdPConfig) error

	// GetByID retrieves a configuration (with details) by its numeric ID.
	GetByID(ctx context.Context, id int64) (*domain.IdPConfig, error)

	// GetByIdPID retrieves a configuration (with details) by its slug.
	GetByIdPID(ctx context.Context, idpID string) (*domain.IdPConfig, error)

	// GetDefault retrieves the single configuration with IsDefault=true,
	// or ErrNotFound when none is marked default.
	GetDefault(ctx context.Context) (*domain.IdPConfig, error)

	// ListActive returns active configurations in creation order,
	// without child collections.
	ListActive(ctx context.Context) ([]*domain.IdPConfig, error)

	// ListActiveWithDetails returns active configurations in creation order
	// with properties and email domains populated.
	ListActiveWithDetails(ctx context.Context) ([]*domain.IdPConfig, error)

	// FindByEmailDomain returns the active configuration owning an active
	// mapping for the given lowercase domain.
	FindByEmailDomain(ctx context.Context, emailDomain string) (*domain.IdPConfig, error)

	// Update overwrites display-level fields of an existing configuration
	// and returns the updated row. Setting IsDefault=true demotes any other
	// default. Returns ErrNotFound for an unknown ID.
	Update(ctx context.Context, id int64, patch domain.UpdateIdPConfig) (*domain.IdPConfig, error)

	// Delete removes a configuration and cascades to its properties and
	// email domains. Returns ErrNotFound for an unknown ID.
	Delete(ctx context.Context, id int64) error

	// AddProperty attaches a key/value property to the configuration with
	// the given slug. Returns ErrNotFound for an unknown slug.
	AddProperty(ctx context.Context, idpID, name, value string) error

	// AddEmailDomain attaches an active email domain (normalized to
	// lowercase) to the configuration with the given slug. Returns
	// ErrNotFound for an unknown slug and ErrDuplicateDomain when the domain
	// already maps to an active configuration.
	AddEmailDomain(ctx context.Context, idpID, emailDomain string) error

	// Close releases any underlying resources.
	Close() error
}
