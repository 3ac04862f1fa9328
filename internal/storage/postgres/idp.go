package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"ssogate/internal/domain"
	"ssogate/internal/storage"
)

const idpColumns = `id, idp_id, name, entity_id, sso_url, slo_url, certificate, display_name, logo_url, is_active, is_default, created_at, updated_at`

// Create stores a new IdP configuration together with any attached
// properties and email domains.
func (s *Store) Create(ctx context.Context, cfg *domain.IdPConfig) error {
	if cfg == nil || strings.TrimSpace(cfg.IdPID) == "" || strings.TrimSpace(cfg.Name) == "" {
		return storage.ErrValidation
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i := range cfg.EmailDomains {
		d := strings.ToLower(strings.TrimSpace(cfg.EmailDomains[i].Domain))
		taken, err := domainTaken(ctx, tx, d)
		if err != nil {
			return err
		}
		if taken {
			return storage.ErrDuplicateDomain
		}
		cfg.EmailDomains[i].Domain = d
	}

	if cfg.IsDefault {
		if _, err := tx.Exec(ctx,
			`UPDATE idp_configurations SET is_default = FALSE, updated_at = NOW() WHERE is_default`); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	err = tx.QueryRow(ctx,
		`INSERT INTO idp_configurations (idp_id, name, entity_id, sso_url, slo_url, certificate, display_name, logo_url, is_active, is_default, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		 RETURNING id`,
		cfg.IdPID, cfg.Name, cfg.EntityID, cfg.SSOURL, cfg.SLOURL, cfg.Certificate,
		cfg.DisplayName, cfg.LogoURL, cfg.IsActive, cfg.IsDefault, now,
	).Scan(&cfg.ID)
	if err != nil {
		return storage.WrapIfConflict(err)
	}

	for i := range cfg.Properties {
		p := &cfg.Properties[i]
		if err := tx.QueryRow(ctx,
			`INSERT INTO idp_properties (idp_config_id, property_name, property_value) VALUES ($1, $2, $3) RETURNING id`,
			cfg.ID, p.Name, p.Value).Scan(&p.ID); err != nil {
			return err
		}
	}
	for i := range cfg.EmailDomains {
		d := &cfg.EmailDomains[i]
		if err := tx.QueryRow(ctx,
			`INSERT INTO idp_email_domains (idp_config_id, email_domain, is_active) VALUES ($1, $2, $3) RETURNING id`,
			cfg.ID, d.Domain, d.IsActive).Scan(&d.ID); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	return nil
}

// GetByID retrieves a configuration with details by its numeric ID.
func (s *Store) GetByID(ctx context.Context, id int64) (*domain.IdPConfig, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+idpColumns+` FROM idp_configurations WHERE id = $1`, id)
	cfg, err := scanConfig(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadDetails(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetByIdPID retrieves a configuration with details by its slug.
func (s *Store) GetByIdPID(ctx context.Context, idpID string) (*domain.IdPConfig, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+idpColumns+` FROM idp_configurations WHERE idp_id = $1`, idpID)
	cfg, err := scanConfig(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadDetails(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetDefault retrieves the configuration with is_default set.
func (s *Store) GetDefault(ctx context.Context) (*domain.IdPConfig, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+idpColumns+` FROM idp_configurations WHERE is_default`)
	cfg, err := scanConfig(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadDetails(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ListActive returns active configurations in creation order.
func (s *Store) ListActive(ctx context.Context) ([]*domain.IdPConfig, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+idpColumns+` FROM idp_configurations WHERE is_active ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*domain.IdPConfig{}
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

// ListActiveWithDetails returns active configurations with their properties
// and email domains populated.
func (s *Store) ListActiveWithDetails(ctx context.Context) ([]*domain.IdPConfig, error) {
	list, err := s.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	for _, cfg := range list {
		if err := s.loadDetails(ctx, cfg); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// FindByEmailDomain returns the active configuration owning an active mapping
// for the given domain.
func (s *Store) FindByEmailDomain(ctx context.Context, emailDomain string) (*domain.IdPConfig, error) {
	d := strings.ToLower(strings.TrimSpace(emailDomain))
	row := s.pool.QueryRow(ctx,
		`SELECT c.id, c.idp_id, c.name, c.entity_id, c.sso_url, c.slo_url, c.certificate, c.display_name, c.logo_url, c.is_active, c.is_default, c.created_at, c.updated_at
		 FROM idp_configurations c
		 JOIN idp_email_domains d ON d.idp_config_id = c.id
		 WHERE d.email_domain = $1 AND d.is_active AND c.is_active
		 LIMIT 1`, d)
	cfg, err := scanConfig(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadDetails(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Update overwrites display-level fields via read-modify-write inside a
// transaction so the single-default invariant holds under concurrent writes.
func (s *Store) Update(ctx context.Context, id int64, patch domain.UpdateIdPConfig) (*domain.IdPConfig, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx,
		`SELECT `+idpColumns+` FROM idp_configurations WHERE id = $1 FOR UPDATE`, id)
	cfg, err := scanConfig(row)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return nil, storage.ErrValidation
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
		if *patch.IsDefault && !cfg.IsDefault {
			if _, err := tx.Exec(ctx,
				`UPDATE idp_configurations SET is_default = FALSE, updated_at = NOW() WHERE is_default`); err != nil {
				return nil, err
			}
		}
		cfg.IsDefault = *patch.IsDefault
	}
	cfg.UpdatedAt = time.Now().UTC()

	if _, err := tx.Exec(ctx,
		`UPDATE idp_configurations SET name = $1, display_name = $2, logo_url = $3, is_active = $4, is_default = $5, updated_at = $6 WHERE id = $7`,
		cfg.Name, cfg.DisplayName, cfg.LogoURL, cfg.IsActive, cfg.IsDefault, cfg.UpdatedAt, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	if err := s.loadDetails(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Delete removes a configuration; foreign keys cascade to properties and
// email domains.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM idp_configurations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AddProperty attaches a property to the configuration with the given slug.
func (s *Store) AddProperty(ctx context.Context, idpID, name, value string) error {
	var id int64
	err := s.pool.QueryRow(ctx, `SELECT id FROM idp_configurations WHERE idp_id = $1`, idpID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO idp_properties (idp_config_id, property_name, property_value) VALUES ($1, $2, $3)`,
		id, name, value); err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `UPDATE idp_configurations SET updated_at = NOW() WHERE id = $1`, id)
	return err
}

// AddEmailDomain attaches an active email domain to the configuration with
// the given slug, enforcing the one-active-IdP-per-domain invariant.
func (s *Store) AddEmailDomain(ctx context.Context, idpID, emailDomain string) error {
	d := strings.ToLower(strings.TrimSpace(emailDomain))
	if d == "" {
		return storage.ErrValidation
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id int64
	err = tx.QueryRow(ctx, `SELECT id FROM idp_configurations WHERE idp_id = $1 FOR UPDATE`, idpID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return err
	}

	taken, err := domainTaken(ctx, tx, d)
	if err != nil {
		return err
	}
	if taken {
		return storage.ErrDuplicateDomain
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO idp_email_domains (idp_config_id, email_domain, is_active) VALUES ($1, $2, TRUE)`,
		id, d); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE idp_configurations SET updated_at = NOW() WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// loadDetails populates the owned child collections of cfg.
func (s *Store) loadDetails(ctx context.Context, cfg *domain.IdPConfig) error {
	rows, err := s.pool.Query(ctx,
		`SELECT id, property_name, property_value FROM idp_properties WHERE idp_config_id = $1 ORDER BY id ASC`, cfg.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var p domain.IdPProperty
		if err := rows.Scan(&p.ID, &p.Name, &p.Value); err != nil {
			return err
		}
		cfg.Properties = append(cfg.Properties, p)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	drows, err := s.pool.Query(ctx,
		`SELECT id, email_domain, is_active FROM idp_email_domains WHERE idp_config_id = $1 ORDER BY id ASC`, cfg.ID)
	if err != nil {
		return err
	}
	defer drows.Close()
	for drows.Next() {
		var d domain.EmailDomain
		if err := drows.Scan(&d.ID, &d.Domain, &d.IsActive); err != nil {
			return err
		}
		cfg.EmailDomains = append(cfg.EmailDomains, d)
	}
	return drows.Err()
}

func domainTaken(ctx context.Context, tx pgx.Tx, d string) (bool, error) {
	var n int
	err := tx.QueryRow(ctx,
		`SELECT COUNT(1) FROM idp_email_domains ed
		 JOIN idp_configurations c ON c.id = ed.idp_config_id
		 WHERE ed.email_domain = $1 AND ed.is_active AND c.is_active`, d).Scan(&n)
	return n > 0, err
}

func scanConfig(row pgx.Row) (*domain.IdPConfig, error) {
	var cfg domain.IdPConfig
	if err := row.Scan(&cfg.ID, &cfg.IdPID, &cfg.Name, &cfg.EntityID, &cfg.SSOURL, &cfg.SLOURL,
		&cfg.Certificate, &cfg.DisplayName, &cfg.LogoURL, &cfg.IsActive, &cfg.IsDefault,
		&cfg.CreatedAt, &cfg.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &cfg, nil
}
