// Package web serves the browser-facing surface of the gateway: the login
// form, the SAML authentication endpoints and the post-login dashboard.
package web

import (
	"net/http"
	"strings"
	"time"

	"ssogate/internal/auth"
	"ssogate/internal/federation"
	"ssogate/internal/observability"
	"ssogate/internal/resolver"
	"ssogate/internal/storage"
)

const (
	sessionCookieName = "ssogate_session"
	pendingCookieName = "ssogate_pending"
)

// Server wires the browser-facing handlers onto a mux.
type Server struct {
	mux      *http.ServeMux
	store    storage.IdPStore
	registry *federation.Registry
	resolver *resolver.Resolver
	sessions auth.SessionStore
	pending  *auth.PendingStore
	metrics  *observability.Metrics
	logger   observability.Logger

	sessionDuration time.Duration
	secureCookies   bool
}

// Options configures a web Server.
type Options struct {
	Store    storage.IdPStore
	Registry *federation.Registry
	Resolver *resolver.Resolver
	Sessions auth.SessionStore
	Pending  *auth.PendingStore
	Metrics  *observability.Metrics
	Logger   observability.Logger

	// SessionDuration is the lifetime of sessions minted at the ACS
	// endpoint; zero means auth.DefaultSessionDuration.
	SessionDuration time.Duration
	// BaseURL decides whether cookies are marked Secure.
	BaseURL string
}

// NewServer creates the browser-facing server.
func NewServer(mux *http.ServeMux, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.DefaultConfig())
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NoopMetrics()
	}
	duration := opts.SessionDuration
	if duration <= 0 {
		duration = auth.DefaultSessionDuration
	}
	return &Server{
		mux:             mux,
		store:           opts.Store,
		registry:        opts.Registry,
		resolver:        opts.Resolver,
		sessions:        opts.Sessions,
		pending:         opts.Pending,
		metrics:         metrics,
		logger:          logger.WithComponent("web"),
		sessionDuration: duration,
		secureCookies:   strings.HasPrefix(opts.BaseURL, "https://"),
	}
}

// RegisterRoutes installs the browser-facing routes. loginLimiter wraps the
// POST /login handler; pass nil to disable rate limiting.
func (s *Server) RegisterRoutes(loginLimiter func(http.Handler) http.Handler) {
	login := http.Handler(http.HandlerFunc(s.handleLogin))
	if loginLimiter != nil {
		login = loginLimiter(login)
	}
	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.Handle("/login", login)
	s.mux.Handle("/logout", s.RequireSession(http.HandlerFunc(s.handleLogout)))
	s.mux.Handle("/dashboard", s.RequireSession(http.HandlerFunc(s.handleDashboard)))
	s.mux.HandleFunc("/saml2/authenticate/", s.handleAuthenticate)
	s.mux.HandleFunc("/login/saml2/sso/", s.handleACS)
	s.mux.HandleFunc("/saml2/service-provider-metadata/", s.handleMetadata)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) setSessionCookie(w http.ResponseWriter, id string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) setPendingCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     pendingCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.secureCookies,
		// The ACS callback is a cross-site POST from the IdP; Lax would
		// withhold the cookie there.
		SameSite: http.SameSiteNoneMode,
	})
}

// activeIdPs lists active configurations for login tiles and logout options.
// Listing failures degrade to an empty list rather than failing the page.
func (s *Server) activeIdPs(r *http.Request) []*simpleIdP {
	configs, err := s.store.ListActive(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "list active idps", "error", err)
		return nil
	}
	out := make([]*simpleIdP, 0, len(configs))
	for _, c := range configs {
		out = append(out, &simpleIdP{IdPID: c.IdPID, Label: c.Label(), LogoURL: c.LogoURL})
	}
	return out
}

// simpleIdP is the template-facing projection of an IdP configuration.
type simpleIdP struct {
	IdPID   string
	Label   string
	LogoURL string
}
