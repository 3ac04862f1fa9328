package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"ssogate/internal/domain"
	"ssogate/internal/validation"
)

type createIdPRequest struct {
	IdPID       string `json:"idp_id"`
	Name        string `json:"name"`
	EntityID    string `json:"entity_id"`
	SSOURL      string `json:"sso_url"`
	SLOURL      string `json:"slo_url,omitempty"`
	Certificate string `json:"certificate,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	LogoURL     string `json:"logo_url,omitempty"`
	IsActive    *bool  `json:"is_active,omitempty"`
	IsDefault   bool   `json:"is_default,omitempty"`

	Properties   []domain.IdPProperty `json:"properties,omitempty"`
	EmailDomains []string             `json:"email_domains,omitempty"`
}

type addPropertyRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type addDomainRequest struct {
	Domain string `json:"domain"`
}

// handleIdPCollection serves GET (list) and POST (create) on /api/v1/idp.
func (s *Server) handleIdPCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listIdPs(w, r)
	case http.MethodPost:
		s.createIdP(w, r)
	default:
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed", "")
	}
}

// handleIdPSubroutes dispatches /api/v1/idp/{id}, /api/v1/idp/{idpId}/properties
// and /api/v1/idp/{idpId}/domains.
func (s *Server) handleIdPSubroutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/idp/"), "/")
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		s.handleIdPByID(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "properties":
		s.addProperty(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "domains":
		s.addEmailDomain(w, r, parts[0])
	default:
		writeErr(w, http.StatusNotFound, "not found", "")
	}
}

func (s *Server) listIdPs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.store.ListActiveWithDetails(r.Context())
	if err != nil {
		writeStoreErr(w, err)
		return
	}
	if configs == nil {
		configs = []*domain.IdPConfig{}
	}
	writeJSON(w, http.StatusOK, configs)
}

func (s *Server) createIdP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in createIdPRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return
	}

	cfg := &domain.IdPConfig{
		IdPID:       strings.TrimSpace(in.IdPID),
		Name:        strings.TrimSpace(in.Name),
		EntityID:    strings.TrimSpace(in.EntityID),
		SSOURL:      strings.TrimSpace(in.SSOURL),
		SLOURL:      strings.TrimSpace(in.SLOURL),
		Certificate: in.Certificate,
		DisplayName: strings.TrimSpace(in.DisplayName),
		LogoURL:     strings.TrimSpace(in.LogoURL),
		IsActive:    true,
		IsDefault:   in.IsDefault,
		Properties:  in.Properties,
	}
	if in.IsActive != nil {
		cfg.IsActive = *in.IsActive
	}
	for _, d := range in.EmailDomains {
		cfg.EmailDomains = append(cfg.EmailDomains, domain.EmailDomain{
			Domain:   strings.ToLower(strings.TrimSpace(d)),
			IsActive: true,
		})
	}

	if err := validateCreateRequest(cfg); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid idp configuration", err.Error())
		return
	}

	if err := s.store.Create(ctx, cfg); err != nil {
		fields := appendRequestID(ctx, []any{"idp_id", cfg.IdPID, "reason", err.Error()})
		s.logger.WarnContext(ctx, "idp create rejected", fields...)
		writeStoreErr(w, err)
		return
	}

	fields := appendRequestID(ctx, []any{"idp_id", cfg.IdPID, "id", cfg.ID, "is_default", cfg.IsDefault})
	s.logger.InfoContext(ctx, "idp configuration created", fields...)
	writeJSON(w, http.StatusCreated, cfg)
}

// validateCreateRequest checks the shape of user-supplied fields before the
// configuration reaches storage. Storage enforces uniqueness; this enforces
// format.
func validateCreateRequest(cfg *domain.IdPConfig) error {
	if err := validation.ValidateSlug(cfg.IdPID); err != nil {
		return err
	}
	if err := validation.ValidateName(cfg.Name); err != nil {
		return err
	}
	if err := validation.ValidateHTTPURL("sso_url", cfg.SSOURL); err != nil {
		return err
	}
	if cfg.SLOURL != "" {
		if err := validation.ValidateHTTPURL("slo_url", cfg.SLOURL); err != nil {
			return err
		}
	}
	if cfg.LogoURL != "" {
		if err := validation.ValidateHTTPURL("logo_url", cfg.LogoURL); err != nil {
			return err
		}
	}
	for _, d := range cfg.EmailDomains {
		if err := validation.ValidateEmailDomain(d.Domain); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) handleIdPByID(w http.ResponseWriter, r *http.Request, rawID string) {
	ctx := r.Context()

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id", rawID)
		return
	}

	switch r.Method {
	case http.MethodGet:
		cfg, err := s.store.GetByID(ctx, id)
		if err != nil {
			writeStoreErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)

	case http.MethodPatch:
		var patch domain.UpdateIdPConfig
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid JSON body", err.Error())
			return
		}
		cfg, err := s.store.Update(ctx, id, patch)
		if err != nil {
			writeStoreErr(w, err)
			return
		}
		fields := appendRequestID(ctx, []any{"id", id, "idp_id", cfg.IdPID})
		s.logger.InfoContext(ctx, "idp configuration updated", fields...)
		writeJSON(w, http.StatusOK, cfg)

	case http.MethodDelete:
		if err := s.store.Delete(ctx, id); err != nil {
			writeStoreErr(w, err)
			return
		}
		fields := appendRequestID(ctx, []any{"id", id})
		s.logger.InfoContext(ctx, "idp configuration deleted", fields...)
		w.WriteHeader(http.StatusNoContent)

	default:
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed", "")
	}
}

func (s *Server) addProperty(w http.ResponseWriter, r *http.Request, idpID string) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	ctx := r.Context()

	var in addPropertyRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		writeErr(w, http.StatusBadRequest, "property name is required", "")
		return
	}

	if err := s.store.AddProperty(ctx, idpID, name, in.Value); err != nil {
		writeStoreErr(w, err)
		return
	}

	fields := appendRequestID(ctx, []any{"idp_id", idpID, "property", name})
	s.logger.InfoContext(ctx, "idp property added", fields...)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addEmailDomain(w http.ResponseWriter, r *http.Request, idpID string) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	ctx := r.Context()

	var in addDomainRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return
	}
	emailDomain := strings.ToLower(strings.TrimSpace(in.Domain))
	if emailDomain == "" {
		writeErr(w, http.StatusBadRequest, "domain is required", "")
		return
	}
	if err := validation.ValidateEmailDomain(emailDomain); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid email domain", err.Error())
		return
	}

	if err := s.store.AddEmailDomain(ctx, idpID, emailDomain); err != nil {
		writeStoreErr(w, err)
		return
	}

	fields := appendRequestID(ctx, []any{"idp_id", idpID, "domain", emailDomain})
	s.logger.InfoContext(ctx, "idp email domain added", fields...)
	w.WriteHeader(http.StatusNoContent)
}
