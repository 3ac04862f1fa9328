package domain

import (
	"strings"
	"time"
)

// IdPConfig represents a configured SAML identity provider.
//
// EntityID, SSOURL, SLOURL and Certificate describe the remote asserting
// party; DisplayName and LogoURL are presentation-only. Properties and
// EmailDomains are owned child collections and are deleted with the config.
type IdPConfig struct {
	ID          int64  `json:"id"`
	IdPID       string `json:"idp_id"` // stable slug, unique
	Name        string `json:"name"`
	EntityID    string `json:"entity_id"`
	SSOURL      string `json:"sso_url"`
	SLOURL      string `json:"slo_url,omitempty"`
	Certificate string `json:"certificate,omitempty"` // PEM
	DisplayName string `json:"display_name,omitempty"`
	LogoURL     string `json:"logo_url,omitempty"`
	IsActive    bool   `json:"is_active"`
	IsDefault   bool   `json:"is_default"`

	Properties   []IdPProperty `json:"properties,omitempty"`
	EmailDomains []EmailDomain `json:"email_domains,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IdPProperty is an arbitrary key/value pair scoped to one IdPConfig. It holds
// SAML attributes that vary between IdP schema revisions.
type IdPProperty struct {
	ID    int64  `json:"id,omitempty"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// EmailDomain maps one lowercase email domain to its owning IdPConfig.
type EmailDomain struct {
	ID       int64  `json:"id,omitempty"`
	Domain   string `json:"domain"`
	IsActive bool   `json:"is_active"`
}

// Label returns the name to show on login tiles: the display name when set,
// otherwise the configuration name.
func (c *IdPConfig) Label() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.Name
}

// PropertyValue returns the value of the named property, or "" if unset.
// The first occurrence wins when a name is duplicated.
func (c *IdPConfig) PropertyValue(name string) string {
	for _, p := range c.Properties {
		if p.Name == name {
			return p.Value
		}
	}
	return ""
}

// SingleLogoutURL returns the IdP's SLO endpoint: the dedicated column when
// set, falling back to the idp_slo_url property for configurations imported
// from older schema revisions.
func (c *IdPConfig) SingleLogoutURL() string {
	if c.SLOURL != "" {
		return c.SLOURL
	}
	return c.PropertyValue("idp_slo_url")
}

// HasEmailDomain reports whether the config owns an active mapping for the
// given domain (compared case-insensitively).
func (c *IdPConfig) HasEmailDomain(domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	for _, d := range c.EmailDomains {
		if d.IsActive && d.Domain == domain {
			return true
		}
	}
	return false
}

// UpdateIdPConfig carries the display-level fields an update may overwrite.
// Nil pointers leave the stored value unchanged.
type UpdateIdPConfig struct {
	Name        *string `json:"name,omitempty"`
	DisplayName *string `json:"display_name,omitempty"`
	LogoURL     *string `json:"logo_url,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
	IsDefault   *bool   `json:"is_default,omitempty"`
}
