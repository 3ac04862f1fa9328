package web

import (
	"errors"
	"net/http"

	"ssogate/internal/auth"
)

// RequireSession gates a handler behind a valid session cookie. Expired
// sessions bounce to the login page with the expired flag; missing or unknown
// cookies bounce without it.
func (s *Server) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := s.sessionFromRequest(w, r)
		if session == nil {
			return
		}
		ctx := auth.ContextWithSession(r.Context(), session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionFromRequest resolves the session cookie. On failure it writes the
// redirect response and returns nil.
func (s *Server) sessionFromRequest(w http.ResponseWriter, r *http.Request) *auth.Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		http.Redirect(w, r, "/login", http.StatusFound)
		return nil
	}

	session, err := s.sessions.Get(r.Context(), cookie.Value)
	if err != nil {
		s.clearCookie(w, sessionCookieName)
		if errors.Is(err, auth.ErrSessionExpired) {
			http.Redirect(w, r, "/login?expired=true", http.StatusFound)
		} else {
			http.Redirect(w, r, "/login", http.StatusFound)
		}
		return nil
	}
	if session == nil {
		s.clearCookie(w, sessionCookieName)
		http.Redirect(w, r, "/login", http.StatusFound)
		return nil
	}
	return session
}

// currentSession returns the valid session for the request, or nil. Unlike
// sessionFromRequest it never writes a response.
func (s *Server) currentSession(r *http.Request) *auth.Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	session, err := s.sessions.Get(r.Context(), cookie.Value)
	if err != nil || session == nil {
		return nil
	}
	return session
}
