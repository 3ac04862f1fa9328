// Package validation provides input validation for admin API requests.
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Validation error types for specific error handling.
var (
	ErrEmptyValue    = errors.New("value cannot be empty")
	ErrTooLong       = errors.New("value exceeds maximum length")
	ErrInvalidFormat = errors.New("invalid format")
	ErrInvalidScheme = errors.New("unsupported url scheme")
)

// Constraints for validation.
const (
	MaxSlugLength   = 64
	MaxNameLength   = 255
	MaxURLLength    = 2048
	MaxDomainLength = 253
)

// slugPattern matches configuration slugs: lowercase letters, digits and
// hyphens, starting with a letter or digit. Slugs appear in URL paths.
var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// domainLabelPattern matches one DNS label of an email domain.
var domainLabelPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// SlugError provides detailed slug validation error information.
type SlugError struct {
	Slug   string
	Reason string
	Err    error
}

func (e *SlugError) Error() string {
	return fmt.Sprintf("invalid slug %q: %s", truncate(e.Slug, 50), e.Reason)
}

func (e *SlugError) Unwrap() error {
	return e.Err
}

// NameError provides detailed name validation error information.
type NameError struct {
	Name   string
	Reason string
	Err    error
}

func (e *NameError) Error() string {
	return fmt.Sprintf("invalid name %q: %s", truncate(e.Name, 50), e.Reason)
}

func (e *NameError) Unwrap() error {
	return e.Err
}

// URLError provides detailed URL validation error information.
type URLError struct {
	URL    string
	Field  string
	Reason string
	Err    error
}

func (e *URLError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, truncate(e.URL, 80), e.Reason)
}

func (e *URLError) Unwrap() error {
	return e.Err
}

// DomainError provides detailed email domain validation error information.
type DomainError struct {
	Domain string
	Reason string
	Err    error
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("invalid email domain %q: %s", truncate(e.Domain, 50), e.Reason)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// ValidateSlug validates a configuration slug. Slugs identify registrations
// in URL paths, so the accepted alphabet is deliberately narrow.
func ValidateSlug(slug string) error {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return &SlugError{Slug: slug, Reason: "cannot be empty", Err: ErrEmptyValue}
	}
	if len(slug) > MaxSlugLength {
		return &SlugError{
			Slug:   slug,
			Reason: fmt.Sprintf("exceeds maximum length of %d characters", MaxSlugLength),
			Err:    ErrTooLong,
		}
	}
	if !slugPattern.MatchString(slug) {
		return &SlugError{
			Slug:   slug,
			Reason: "must contain only lowercase letters, digits and hyphens",
			Err:    ErrInvalidFormat,
		}
	}
	return nil
}

// ValidateName validates a display-level name field.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &NameError{Name: name, Reason: "cannot be empty", Err: ErrEmptyValue}
	}
	if len(name) > MaxNameLength {
		return &NameError{
			Name:   name,
			Reason: fmt.Sprintf("exceeds maximum length of %d characters", MaxNameLength),
			Err:    ErrTooLong,
		}
	}
	return nil
}

// ValidateHTTPURL validates an absolute http(s) URL field such as an SSO or
// SLO endpoint. field names the offending field in error messages.
func ValidateHTTPURL(field, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return &URLError{URL: raw, Field: field, Reason: "cannot be empty", Err: ErrEmptyValue}
	}
	if len(raw) > MaxURLLength {
		return &URLError{
			URL:    raw,
			Field:  field,
			Reason: fmt.Sprintf("exceeds maximum length of %d characters", MaxURLLength),
			Err:    ErrTooLong,
		}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &URLError{URL: raw, Field: field, Reason: "not a valid url", Err: ErrInvalidFormat}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &URLError{
			URL:    raw,
			Field:  field,
			Reason: "scheme must be http or https",
			Err:    ErrInvalidScheme,
		}
	}
	if u.Host == "" {
		return &URLError{URL: raw, Field: field, Reason: "missing host", Err: ErrInvalidFormat}
	}
	return nil
}

// ValidateEmailDomain validates a lowercase email domain such as
// "contoso.com". Callers are expected to lowercase before validating.
func ValidateEmailDomain(domain string) error {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return &DomainError{Domain: domain, Reason: "cannot be empty", Err: ErrEmptyValue}
	}
	if len(domain) > MaxDomainLength {
		return &DomainError{
			Domain: domain,
			Reason: fmt.Sprintf("exceeds maximum length of %d characters", MaxDomainLength),
			Err:    ErrTooLong,
		}
	}
	if domain != strings.ToLower(domain) {
		return &DomainError{Domain: domain, Reason: "must be lowercase", Err: ErrInvalidFormat}
	}
	if !strings.Contains(domain, ".") {
		return &DomainError{Domain: domain, Reason: "must contain at least one dot", Err: ErrInvalidFormat}
	}
	for _, label := range strings.Split(domain, ".") {
		if label == "" || !domainLabelPattern.MatchString(label) {
			return &DomainError{
				Domain: domain,
				Reason: "labels must contain only letters, digits and inner hyphens",
				Err:    ErrInvalidFormat,
			}
		}
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
