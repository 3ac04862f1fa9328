// Package federation builds SAML relying-party registrations from stored
// identity provider configurations. All protocol work (signing, XML, the
// redirect binding) is delegated to github.com/crewjam/saml.
package federation

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/crewjam/saml"

	"ssogate/internal/domain"
)

// ErrBuildRegistration indicates a stored configuration could not be turned
// into a usable relying-party registration.
var ErrBuildRegistration = errors.New("cannot build relying-party registration")

// Options holds the relying-party-side settings shared by all registrations.
type Options struct {
	// BaseURL is the externally visible origin of this gateway, without a
	// trailing slash (e.g. https://sso.example.com).
	BaseURL string
	// Key and Certificate are the optional SP signing credentials. When nil
	// the SP publishes no KeyDescriptor and sends unsigned AuthnRequests,
	// which matches the deployments this gateway targets.
	Key         *rsa.PrivateKey
	Certificate *x509.Certificate
}

// Registration pairs a stored configuration with the ServiceProvider built
// from it. Registrations are built on demand and never cached; the
// configuration store is the single source of truth.
type Registration struct {
	Config *domain.IdPConfig
	SP     *saml.ServiceProvider
}

// AcsURL returns the assertion-consumer-service URL for a given slug.
func AcsURL(baseURL, slug string) string {
	return strings.TrimRight(baseURL, "/") + "/login/saml2/sso/" + slug
}

// MetadataURL returns the SP entity ID / metadata URL for a given slug.
func MetadataURL(baseURL, slug string) string {
	return strings.TrimRight(baseURL, "/") + "/saml2/service-provider-metadata/" + slug
}

// Build converts a stored configuration into a Registration. Any missing or
// malformed required field yields an error wrapping ErrBuildRegistration.
func Build(cfg *domain.IdPConfig, opts Options) (*Registration, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil configuration", ErrBuildRegistration)
	}
	if strings.TrimSpace(cfg.EntityID) == "" {
		return nil, fmt.Errorf("%w: %s: missing IdP entity ID", ErrBuildRegistration, cfg.IdPID)
	}
	if strings.TrimSpace(cfg.SSOURL) == "" {
		return nil, fmt.Errorf("%w: %s: missing IdP SSO URL", ErrBuildRegistration, cfg.IdPID)
	}

	ssoURL, err := url.Parse(cfg.SSOURL)
	if err != nil || !ssoURL.IsAbs() {
		return nil, fmt.Errorf("%w: %s: bad SSO URL %q", ErrBuildRegistration, cfg.IdPID, cfg.SSOURL)
	}

	idpDescriptor := saml.IDPSSODescriptor{
		SingleSignOnServices: []saml.Endpoint{
			{Binding: saml.HTTPRedirectBinding, Location: ssoURL.String()},
			{Binding: saml.HTTPPostBinding, Location: ssoURL.String()},
		},
	}
	if strings.TrimSpace(cfg.Certificate) != "" {
		idpCert, err := ParseCertificate(cfg.Certificate)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: parse IdP certificate: %v", ErrBuildRegistration, cfg.IdPID, err)
		}
		idpDescriptor.SSODescriptor = saml.SSODescriptor{
			RoleDescriptor: saml.RoleDescriptor{
				KeyDescriptors: []saml.KeyDescriptor{
					{
						Use: "signing",
						KeyInfo: saml.KeyInfo{
							X509Data: saml.X509Data{
								X509Certificates: []saml.X509Certificate{
									{Data: base64.StdEncoding.EncodeToString(idpCert.Raw)},
								},
							},
						},
					},
				},
			},
		}
	}

	idpMetadata := &saml.EntityDescriptor{
		EntityID:          cfg.EntityID,
		IDPSSODescriptors: []saml.IDPSSODescriptor{idpDescriptor},
	}

	metadataURL, err := url.Parse(MetadataURL(opts.BaseURL, cfg.IdPID))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: bad base URL %q", ErrBuildRegistration, cfg.IdPID, opts.BaseURL)
	}
	acsURL, err := url.Parse(AcsURL(opts.BaseURL, cfg.IdPID))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: bad base URL %q", ErrBuildRegistration, cfg.IdPID, opts.BaseURL)
	}

	sp := &saml.ServiceProvider{
		EntityID:          metadataURL.String(),
		MetadataURL:       *metadataURL,
		AcsURL:            *acsURL,
		IDPMetadata:       idpMetadata,
		AuthnNameIDFormat: saml.EmailAddressNameIDFormat,
	}
	if opts.Key != nil {
		sp.Key = opts.Key
		sp.Certificate = opts.Certificate
		sp.SignatureMethod = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	}

	return &Registration{Config: cfg, SP: sp}, nil
}

// SSOLocation returns the IdP redirect-binding endpoint for this
// registration.
func (r *Registration) SSOLocation() string {
	return r.SP.GetSSOBindingLocation(saml.HTTPRedirectBinding)
}

// AuthnRedirectURL creates an AuthnRequest and returns the redirect-binding
// URL to send the browser to, along with the request ID the ACS endpoint
// should accept in InResponseTo.
func (r *Registration) AuthnRedirectURL(relayState string) (*url.URL, string, error) {
	req, err := r.SP.MakeAuthenticationRequest(r.SSOLocation(), saml.HTTPRedirectBinding, saml.HTTPPostBinding)
	if err != nil {
		return nil, "", fmt.Errorf("make authn request for %s: %w", r.Config.IdPID, err)
	}
	redirect, err := req.Redirect(relayState, r.SP)
	if err != nil {
		return nil, "", fmt.Errorf("encode redirect for %s: %w", r.Config.IdPID, err)
	}
	return redirect, req.ID, nil
}
