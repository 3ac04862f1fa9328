package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"ssogate/internal/domain"
	"ssogate/internal/storage"
)

const idpColumns = `id, idp_id, name, entity_id, sso_url, slo_url, certificate, display_name, logo_url, is_active, is_default, created_at, updated_at`

// Create stores a new IdP configuration together with any attached
// properties and email domains. The default-demotion and domain-uniqueness
// checks run inside the same transaction as the insert.
func (s *Store) Create(ctx context.Context, cfg *domain.IdPConfig) error {
	if cfg == nil || strings.TrimSpace(cfg.IdPID) == "" || strings.TrimSpace(cfg.Name) == "" {
		return storage.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

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

	now := time.Now().UTC()
	if cfg.IsDefault {
		if _, err := tx.ExecContext(ctx,
			`UPDATE idp_configurations SET is_default = 0, updated_at = ? WHERE is_default = 1`,
			now.Format(time.RFC3339)); err != nil {
			return err
		}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO idp_configurations (idp_id, name, entity_id, sso_url, slo_url, certificate, display_name, logo_url, is_active, is_default, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.IdPID, cfg.Name, cfg.EntityID, cfg.SSOURL, cfg.SLOURL, cfg.Certificate,
		cfg.DisplayName, cfg.LogoURL, boolToInt(cfg.IsActive), boolToInt(cfg.IsDefault),
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return storage.WrapIfConflict(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for i := range cfg.Properties {
		p := &cfg.Properties[i]
		res, err := tx.ExecContext(ctx,
			`INSERT INTO idp_properties (idp_config_id, property_name, property_value) VALUES (?, ?, ?)`,
			id, p.Name, p.Value)
		if err != nil {
			return err
		}
		p.ID, _ = res.LastInsertId()
	}
	for i := range cfg.EmailDomains {
		d := &cfg.EmailDomains[i]
		res, err := tx.ExecContext(ctx,
			`INSERT INTO idp_email_domains (idp_config_id, email_domain, is_active) VALUES (?, ?, ?)`,
			id, d.Domain, boolToInt(d.IsActive))
		if err != nil {
			return err
		}
		d.ID, _ = res.LastInsertId()
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	cfg.ID = id
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	return nil
}

// GetByID retrieves a configuration with details by its numeric ID.
func (s *Store) GetByID(ctx context.Context, id int64) (*domain.IdPConfig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+idpColumns+` FROM idp_configurations WHERE id = ?`, id)
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
	row := s.db.QueryRowContext(ctx,
		`SELECT `+idpColumns+` FROM idp_configurations WHERE idp_id = ?`, idpID)
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
	row := s.db.QueryRowContext(ctx,
		`SELECT `+idpColumns+` FROM idp_configurations WHERE is_default = 1`)
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
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+idpColumns+` FROM idp_configurations WHERE is_active = 1 ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConfigRows(rows)
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
	row := s.db.QueryRowContext(ctx,
		`SELECT c.id, c.idp_id, c.name, c.entity_id, c.sso_url, c.slo_url, c.certificate, c.display_name, c.logo_url, c.is_active, c.is_default, c.created_at, c.updated_at
		 FROM idp_configurations c
		 JOIN idp_email_domains d ON d.idp_config_id = c.id
		 WHERE d.email_domain = ? AND d.is_active = 1 AND c.is_active = 1
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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+idpColumns+` FROM idp_configurations WHERE id = ?`, id)
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
	now := time.Now().UTC()
	if patch.IsDefault != nil {
		if *patch.IsDefault && !cfg.IsDefault {
			if _, err := tx.ExecContext(ctx,
				`UPDATE idp_configurations SET is_default = 0, updated_at = ? WHERE is_default = 1`,
				now.Format(time.RFC3339)); err != nil {
				return nil, err
			}
		}
		cfg.IsDefault = *patch.IsDefault
	}
	cfg.UpdatedAt = now

	if _, err := tx.ExecContext(ctx,
		`UPDATE idp_configurations SET name = ?, display_name = ?, logo_url = ?, is_active = ?, is_default = ?, updated_at = ? WHERE id = ?`,
		cfg.Name, cfg.DisplayName, cfg.LogoURL, boolToInt(cfg.IsActive), boolToInt(cfg.IsDefault),
		now.Format(time.RFC3339), id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
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
	res, err := s.db.ExecContext(ctx, `DELETE FROM idp_configurations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AddProperty attaches a property to the configuration with the given slug.
func (s *Store) AddProperty(ctx context.Context, idpID, name, value string) error {
	id, err := s.configIDForSlug(ctx, idpID)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO idp_properties (idp_config_id, property_name, property_value) VALUES (?, ?, ?)`,
		id, name, value); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE idp_configurations SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), id)
	return err
}

// AddEmailDomain attaches an active email domain to the configuration with
// the given slug, enforcing the one-active-IdP-per-domain invariant.
func (s *Store) AddEmailDomain(ctx context.Context, idpID, emailDomain string) error {
	d := strings.ToLower(strings.TrimSpace(emailDomain))
	if d == "" {
		return storage.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM idp_configurations WHERE idp_id = ?`, idpID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
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

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO idp_email_domains (idp_config_id, email_domain, is_active) VALUES (?, ?, 1)`,
		id, d); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE idp_configurations SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) configIDForSlug(ctx context.Context, idpID string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM idp_configurations WHERE idp_id = ?`, idpID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrNotFound
	}
	return id, err
}

// loadDetails populates the owned child collections of cfg.
func (s *Store) loadDetails(ctx context.Context, cfg *domain.IdPConfig) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, property_name, property_value FROM idp_properties WHERE idp_config_id = ? ORDER BY id ASC`, cfg.ID)
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

	drows, err := s.db.QueryContext(ctx,
		`SELECT id, email_domain, is_active FROM idp_email_domains WHERE idp_config_id = ? ORDER BY id ASC`, cfg.ID)
	if err != nil {
		return err
	}
	defer drows.Close()
	for drows.Next() {
		var d domain.EmailDomain
		var active int
		if err := drows.Scan(&d.ID, &d.Domain, &active); err != nil {
			return err
		}
		d.IsActive = active == 1
		cfg.EmailDomains = append(cfg.EmailDomains, d)
	}
	return drows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// domainTaken reports whether an active mapping for d already exists on an
// active configuration.
func domainTaken(ctx context.Context, tx *sql.Tx, d string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM idp_email_domains ed
		 JOIN idp_configurations c ON c.id = ed.idp_config_id
		 WHERE ed.email_domain = ? AND ed.is_active = 1 AND c.is_active = 1`, d).Scan(&n)
	return n > 0, err
}

func scanConfig(row rowScanner) (*domain.IdPConfig, error) {
	var cfg domain.IdPConfig
	var active, def int
	var createdAt, updatedAt string

	if err := row.Scan(&cfg.ID, &cfg.IdPID, &cfg.Name, &cfg.EntityID, &cfg.SSOURL, &cfg.SLOURL,
		&cfg.Certificate, &cfg.DisplayName, &cfg.LogoURL, &active, &def, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	cfg.IsActive = active == 1
	cfg.IsDefault = def == 1
	cfg.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	cfg.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &cfg, nil
}

func scanConfigRows(rows *sql.Rows) ([]*domain.IdPConfig, error) {
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

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
