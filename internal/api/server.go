// Package api exposes the administrative JSON API for managing identity
// provider configurations.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"

	apidocs "ssogate/docs"
	"ssogate/internal/audit"
	"ssogate/internal/observability"
	"ssogate/internal/storage"
)

type apiError struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string, detail string) {
	if code >= 500 {
		sentry.CaptureMessage(fmt.Sprintf("HTTP %d: %s (detail: %s)", code, msg, detail))
	}
	writeJSON(w, code, apiError{Error: msg, Detail: detail})
}

// writeStoreErr maps storage sentinel errors onto HTTP status codes.
func writeStoreErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeErr(w, http.StatusNotFound, "not found", err.Error())
	case errors.Is(err, storage.ErrDuplicateDomain):
		writeErr(w, http.StatusConflict, "email domain already mapped", err.Error())
	case errors.Is(err, storage.ErrConflict):
		writeErr(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, storage.ErrValidation):
		writeErr(w, http.StatusBadRequest, "validation failed", err.Error())
	default:
		writeErr(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}

// Server wires the admin API handlers onto a mux.
type Server struct {
	mux    *http.ServeMux
	store  storage.IdPStore
	audit  audit.AuditLogger
	logger observability.Logger
}

// NewServer creates an admin API server. The audit logger may be nil, in
// which case writes are not audited.
func NewServer(mux *http.ServeMux, store storage.IdPStore, auditLogger audit.AuditLogger, logger observability.Logger) *Server {
	if logger == nil {
		logger = observability.NewLogger(observability.DefaultConfig())
	}
	return &Server{mux: mux, store: store, audit: auditLogger, logger: logger.WithComponent("api")}
}

// RegisterRoutes installs the admin API routes, wrapping write routes in the
// audit middleware. Authentication is applied by the caller.
func (s *Server) RegisterRoutes() {
	auditMW := AuditMiddleware(s.audit, s.logger.Slog())
	s.mux.Handle("/api/v1/idp", auditMW(http.HandlerFunc(s.handleIdPCollection)))
	s.mux.Handle("/api/v1/idp/", auditMW(http.HandlerFunc(s.handleIdPSubroutes)))
}

// OpenAPIHandler serves the embedded OpenAPI document. The document is
// public; only the API itself sits behind the admin token.
func OpenAPIHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, "method not allowed", "")
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(apidocs.OpenAPISpec)
	})
}
