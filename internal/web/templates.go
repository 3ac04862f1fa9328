package web

import (
	"embed"
	"html/template"
	"net/http"

	"ssogate/internal/auth"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// loginPageData feeds templates/login.html.
type loginPageData struct {
	Error string
	Info  string
	Email string
	IdPs  []*simpleIdP
}

// dashboardPageData feeds templates/dashboard.html.
type dashboardPageData struct {
	Session *auth.Session
	IdPs    []*simpleIdP
}

// errorPageData feeds templates/error.html.
type errorPageData struct {
	Message string
}

func (s *Server) render(w http.ResponseWriter, code int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if err := pageTemplates.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("render template", "template", name, "error", err)
	}
}
