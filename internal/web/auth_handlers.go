package web

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"ssogate/internal/auth"
	"ssogate/internal/observability"
	"ssogate/internal/resolver"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.loginPage(w, r)
	case http.MethodPost:
		s.loginSubmit(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) loginPage(w http.ResponseWriter, r *http.Request) {
	if s.currentSession(r) != nil {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}

	data := &loginPageData{IdPs: s.activeIdPs(r)}
	q := r.URL.Query()
	switch {
	case q.Get("error") != "":
		data.Error = "Sign-in failed. Please try again."
	case q.Get("expired") != "":
		data.Info = "Your session has expired. Please sign in again."
	case q.Get("logout") != "":
		data.Info = "You have been signed out."
	}
	s.render(w, http.StatusOK, "login.html", data)
}

func (s *Server) loginSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		s.render(w, http.StatusBadRequest, "login.html", &loginPageData{
			Error: "Invalid form submission.",
			IdPs:  s.activeIdPs(r),
		})
		return
	}
	email := strings.TrimSpace(r.PostFormValue("email"))

	cfg, err := s.resolver.Resolve(ctx, email)
	if err != nil {
		data := &loginPageData{Email: email, IdPs: s.activeIdPs(r)}
		switch {
		case errors.Is(err, resolver.ErrInvalidEmail):
			data.Error = "Please enter a valid email address."
		case errors.Is(err, resolver.ErrNoMatch):
			s.metrics.RecordLogin("", observability.LoginOutcomeUnresolved)
			data.Error = "No identity provider is configured for that email domain."
		default:
			s.logger.ErrorContext(ctx, "resolve email domain", "error", err)
			data.Error = "Sign-in is temporarily unavailable. Please try again."
		}
		s.render(w, http.StatusOK, "login.html", data)
		return
	}

	s.logger.InfoContext(ctx, "email domain resolved", "idp", cfg.IdPID)
	target := "/saml2/authenticate/" + url.PathEscape(cfg.IdPID) +
		"?login_hint=" + url.QueryEscape(email)
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r.Context())
	if session == nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	s.render(w, http.StatusOK, "dashboard.html", &dashboardPageData{
		Session: session,
		IdPs:    s.activeIdPs(r),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		if err := s.sessions.Delete(ctx, cookie.Value); err != nil {
			s.logger.WarnContext(ctx, "delete session", "error", err)
		}
	}
	s.clearCookie(w, sessionCookieName)

	q := r.URL.Query()
	if q.Get("simple") == "true" {
		http.Redirect(w, r, "/login?logout=true", http.StatusFound)
		return
	}

	if slug := q.Get("idp"); slug != "" {
		cfg, err := s.store.GetByIdPID(ctx, slug)
		if err == nil {
			if slo := cfg.SingleLogoutURL(); slo != "" {
				http.Redirect(w, r, slo, http.StatusFound)
				return
			}
		}
	}

	http.Redirect(w, r, "/login?logout=true", http.StatusFound)
}

// mintSession creates and stores a session for an authenticated subject and
// sets the session cookie.
func (s *Server) mintSession(w http.ResponseWriter, r *http.Request, email, name, idpSlug, nameID string, attrs map[string]string) error {
	session, err := auth.NewSession(email, name, idpSlug, nameID, s.sessionDuration, attrs)
	if err != nil {
		return err
	}
	if err := s.sessions.Create(r.Context(), session); err != nil {
		return err
	}
	s.setSessionCookie(w, session.ID, session.ExpiresAt)
	return nil
}
