// Package resolver maps email addresses to identity provider configurations
// by their domain part.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ssogate/internal/domain"
	"ssogate/internal/storage"
)

var (
	// ErrInvalidEmail indicates the input could not be parsed as an email
	// address at all. Invalid input never falls back to the default IdP.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrNoMatch indicates a well-formed email whose domain maps to no
	// active identity provider.
	ErrNoMatch = errors.New("no identity provider for email domain")
)

// Store is the subset of storage.IdPStore the resolver needs.
type Store interface {
	FindByEmailDomain(ctx context.Context, emailDomain string) (*domain.IdPConfig, error)
	GetDefault(ctx context.Context) (*domain.IdPConfig, error)
}

// Resolver resolves email addresses to IdP configurations by exact,
// case-normalized domain match. No subdomain or fuzzy matching.
type Resolver struct {
	store Store
	// FallbackToDefault controls whether a well-formed email with no
	// domain match resolves to the default IdP instead of failing.
	fallbackToDefault bool
}

// New creates a Resolver over the given store.
func New(store Store, fallbackToDefault bool) *Resolver {
	return &Resolver{store: store, fallbackToDefault: fallbackToDefault}
}

// Resolve maps a raw email address to the owning IdP configuration.
// Returns ErrInvalidEmail for malformed input and ErrNoMatch when the
// domain is unclaimed and no fallback applies.
func (r *Resolver) Resolve(ctx context.Context, rawEmail string) (*domain.IdPConfig, error) {
	emailDomain, err := ExtractDomain(rawEmail)
	if err != nil {
		return nil, err
	}

	cfg, err := r.store.FindByEmailDomain(ctx, emailDomain)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("find by email domain: %w", err)
	}

	if r.fallbackToDefault {
		def, derr := r.store.GetDefault(ctx)
		if derr == nil {
			return def, nil
		}
		if !errors.Is(derr, storage.ErrNotFound) {
			return nil, fmt.Errorf("get default idp: %w", derr)
		}
	}
	return nil, ErrNoMatch
}

// ExtractDomain trims, lowercases, and validates a raw email address and
// returns the domain part after the last '@'. Returns ErrInvalidEmail when
// the input has no usable domain.
func ExtractDomain(rawEmail string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(rawEmail))
	if email == "" {
		return "", ErrInvalidEmail
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		// missing '@', or nothing before/after it
		return "", ErrInvalidEmail
	}
	emailDomain := email[at+1:]
	if strings.HasPrefix(emailDomain, ".") || strings.HasSuffix(emailDomain, ".") {
		return "", ErrInvalidEmail
	}
	return emailDomain, nil
}
