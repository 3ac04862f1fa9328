package web

import (
	"encoding/xml"
	"errors"
	"net/http"
	"strings"

	"github.com/crewjam/saml"

	"ssogate/internal/observability"
	"ssogate/internal/storage"
)

// emailAttributeNames are checked in order when extracting the subject email
// from an assertion; the NameID is the fallback.
var emailAttributeNames = []string{"email", "mail", "user.email", "userprincipalname"}

// nameAttributeNames are checked in order for a display name.
var nameAttributeNames = []string{"displayname", "name", "cn", "givenname"}

// slugFromPath extracts the registration slug from a path like
// /saml2/authenticate/{slug}. Returns "" when there are extra segments.
func slugFromPath(path, prefix string) string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" || strings.Contains(rest, "/") {
		return ""
	}
	return rest
}

// handleAuthenticate builds the registration for a slug, creates an
// AuthnRequest and redirects the browser to the IdP.
func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	slug := slugFromPath(r.URL.Path, "/saml2/authenticate/")
	if slug == "" {
		http.NotFound(w, r)
		return
	}

	reg, err := s.registry.Lookup(ctx, slug)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		s.logger.ErrorContext(ctx, "build registration", "idp", slug, "error", err)
		s.render(w, http.StatusInternalServerError, "error.html", &errorPageData{
			Message: "This identity provider is misconfigured. Contact your administrator.",
		})
		return
	}

	redirect, requestID, err := reg.AuthnRedirectURL("")
	if err != nil {
		s.logger.ErrorContext(ctx, "create authn request", "idp", slug, "error", err)
		s.render(w, http.StatusInternalServerError, "error.html", &errorPageData{
			Message: "Could not start sign-in with this identity provider.",
		})
		return
	}

	email := strings.TrimSpace(r.URL.Query().Get("login_hint"))
	entry, err := s.pending.Put(requestID, email, slug)
	if err != nil {
		s.logger.ErrorContext(ctx, "record pending login", "idp", slug, "error", err)
		s.render(w, http.StatusInternalServerError, "error.html", &errorPageData{
			Message: "Could not start sign-in. Please try again.",
		})
		return
	}
	s.setPendingCookie(w, entry.Token, entry.ExpiresAt)

	s.logger.InfoContext(ctx, "authn request issued", "idp", slug, "request_id", requestID)
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

// handleACS is the assertion consumer service: the IdP posts the SAML
// response here after authenticating the user.
func (s *Server) handleACS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	slug := slugFromPath(r.URL.Path, "/login/saml2/sso/")
	if slug == "" {
		http.NotFound(w, r)
		return
	}

	reg, err := s.registry.Lookup(ctx, slug)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		s.logger.ErrorContext(ctx, "build registration", "idp", slug, "error", err)
		http.Redirect(w, r, "/login?error=true", http.StatusFound)
		return
	}

	var possibleRequestIDs []string
	if cookie, err := r.Cookie(pendingCookieName); err == nil && cookie.Value != "" {
		if entry := s.pending.Consume(cookie.Value); entry != nil && entry.IdPSlug == slug {
			possibleRequestIDs = append(possibleRequestIDs, entry.RequestID)
		}
	}
	s.clearCookie(w, pendingCookieName)

	assertion, err := reg.SP.ParseResponse(r, possibleRequestIDs)
	if err != nil {
		var ire *saml.InvalidResponseError
		if errors.As(err, &ire) {
			s.logger.WarnContext(ctx, "assertion rejected", "idp", slug, "reason", ire.PrivateErr.Error())
		} else {
			s.logger.WarnContext(ctx, "assertion rejected", "idp", slug, "reason", err.Error())
		}
		s.metrics.RecordLogin(slug, observability.LoginOutcomeRejected)
		http.Redirect(w, r, "/login?error=true", http.StatusFound)
		return
	}

	email, name, attrs := extractSubject(assertion)
	if email == "" {
		s.logger.WarnContext(ctx, "assertion has no usable subject", "idp", slug)
		s.metrics.RecordLogin(slug, observability.LoginOutcomeRejected)
		http.Redirect(w, r, "/login?error=true", http.StatusFound)
		return
	}

	nameID := ""
	if assertion.Subject != nil && assertion.Subject.NameID != nil {
		nameID = assertion.Subject.NameID.Value
	}

	if err := s.mintSession(w, r, email, name, slug, nameID, attrs); err != nil {
		s.logger.ErrorContext(ctx, "create session", "idp", slug, "error", err)
		http.Redirect(w, r, "/login?error=true", http.StatusFound)
		return
	}

	s.metrics.RecordLogin(slug, observability.LoginOutcomeSuccess)
	s.logger.InfoContext(ctx, "login completed", "idp", slug)
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

// handleMetadata serves the SP metadata XML for a registration.
func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	slug := slugFromPath(r.URL.Path, "/saml2/service-provider-metadata/")
	if slug == "" {
		http.NotFound(w, r)
		return
	}

	reg, err := s.registry.Lookup(ctx, slug)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		s.logger.ErrorContext(ctx, "build registration", "idp", slug, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out, err := xml.MarshalIndent(reg.SP.Metadata(), "", "  ")
	if err != nil {
		s.logger.ErrorContext(ctx, "marshal metadata", "idp", slug, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/samlmetadata+xml")
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(out)
}

// extractSubject pulls the email, display name and a flattened attribute map
// out of an assertion. Attribute names are matched case-insensitively by Name
// then FriendlyName; the NameID serves as the email fallback.
func extractSubject(assertion *saml.Assertion) (email, name string, attrs map[string]string) {
	attrs = make(map[string]string)
	for _, stmt := range assertion.AttributeStatements {
		for _, attr := range stmt.Attributes {
			if len(attr.Values) == 0 {
				continue
			}
			value := attr.Values[0].Value
			if attr.Name != "" {
				attrs[strings.ToLower(attr.Name)] = value
			}
			if attr.FriendlyName != "" {
				attrs[strings.ToLower(attr.FriendlyName)] = value
			}
		}
	}

	for _, key := range emailAttributeNames {
		if v := attrs[key]; v != "" {
			email = v
			break
		}
	}
	if email == "" && assertion.Subject != nil && assertion.Subject.NameID != nil {
		if v := assertion.Subject.NameID.Value; strings.Contains(v, "@") {
			email = v
		}
	}

	for _, key := range nameAttributeNames {
		if v := attrs[key]; v != "" {
			name = v
			break
		}
	}
	if len(attrs) == 0 {
		attrs = nil
	}
	return email, name, attrs
}
