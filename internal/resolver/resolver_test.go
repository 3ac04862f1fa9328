package resolver

import (
	"context"
	"errors"
	"testing"

	"ssogate/internal/domain"
	"ssogate/internal/storage"
)

func seedStore(t *testing.T) *storage.MemoryIdPStore {
	t.Helper()
	ctx := context.Background()
	s := storage.NewMemoryIdPStore()

	contoso := &domain.IdPConfig{
		IdPID:        "contoso",
		Name:         "Contoso",
		EntityID:     "https://contoso/sts",
		SSOURL:       "https://contoso/sso",
		IsActive:     true,
		EmailDomains: []domain.EmailDomain{{Domain: "contoso.com", IsActive: true}},
	}
	if err := s.Create(ctx, contoso); err != nil {
		t.Fatalf("seed contoso: %v", err)
	}

	fabrikam := &domain.IdPConfig{
		IdPID:        "fabrikam",
		Name:         "Fabrikam",
		EntityID:     "https://fabrikam/sts",
		SSOURL:       "https://fabrikam/sso",
		IsActive:     true,
		IsDefault:    true,
		EmailDomains: []domain.EmailDomain{{Domain: "fabrikam.com", IsActive: true}},
	}
	if err := s.Create(ctx, fabrikam); err != nil {
		t.Fatalf("seed fabrikam: %v", err)
	}
	return s
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	r := New(seedStore(t), false)

	t.Run("exact domain match", func(t *testing.T) {
		cfg, err := r.Resolve(ctx, "a@contoso.com")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if cfg.IdPID != "contoso" {
			t.Errorf("expected 'contoso', got %q", cfg.IdPID)
		}
	})

	t.Run("case and whitespace normalization", func(t *testing.T) {
		cfg, err := r.Resolve(ctx, "  User@CONTOSO.Com ")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if cfg.IdPID != "contoso" {
			t.Errorf("expected 'contoso', got %q", cfg.IdPID)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		first, err := r.Resolve(ctx, "a@fabrikam.com")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		second, err := r.Resolve(ctx, "a@fabrikam.com")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if first.IdPID != second.IdPID {
			t.Errorf("resolution not stable: %q vs %q", first.IdPID, second.IdPID)
		}
	})

	t.Run("no subdomain matching", func(t *testing.T) {
		if _, err := r.Resolve(ctx, "a@mail.contoso.com"); !errors.Is(err, ErrNoMatch) {
			t.Errorf("expected ErrNoMatch for subdomain, got %v", err)
		}
	})

	t.Run("unmatched domain without fallback", func(t *testing.T) {
		if _, err := r.Resolve(ctx, "a@unknown.org"); !errors.Is(err, ErrNoMatch) {
			t.Errorf("expected ErrNoMatch, got %v", err)
		}
	})

	t.Run("malformed input", func(t *testing.T) {
		for _, raw := range []string{"", "   ", "@x.com", "x@", "x@.com", "x@com.", "plainstring", "@"} {
			if _, err := r.Resolve(ctx, raw); !errors.Is(err, ErrInvalidEmail) {
				t.Errorf("Resolve(%q): expected ErrInvalidEmail, got %v", raw, err)
			}
		}
	})

	t.Run("multiple ats uses last", func(t *testing.T) {
		cfg, err := r.Resolve(ctx, `"a@b"@contoso.com`)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if cfg.IdPID != "contoso" {
			t.Errorf("expected 'contoso', got %q", cfg.IdPID)
		}
	})
}

func TestResolveFallbackToDefault(t *testing.T) {
	ctx := context.Background()
	r := New(seedStore(t), true)

	t.Run("match still wins over default", func(t *testing.T) {
		cfg, err := r.Resolve(ctx, "a@contoso.com")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if cfg.IdPID != "contoso" {
			t.Errorf("expected 'contoso', got %q", cfg.IdPID)
		}
	})

	t.Run("unmatched domain falls back to default", func(t *testing.T) {
		cfg, err := r.Resolve(ctx, "a@unknown.org")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if cfg.IdPID != "fabrikam" {
			t.Errorf("expected default 'fabrikam', got %q", cfg.IdPID)
		}
	})

	t.Run("malformed input never falls back", func(t *testing.T) {
		if _, err := r.Resolve(ctx, "@x.com"); !errors.Is(err, ErrInvalidEmail) {
			t.Errorf("expected ErrInvalidEmail, got %v", err)
		}
	})

	t.Run("no default configured", func(t *testing.T) {
		s := storage.NewMemoryIdPStore()
		rr := New(s, true)
		if _, err := rr.Resolve(ctx, "a@unknown.org"); !errors.Is(err, ErrNoMatch) {
			t.Errorf("expected ErrNoMatch, got %v", err)
		}
	})
}

func TestResolveSkipsInactive(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t)
	r := New(s, false)

	off := false
	cfg, err := s.GetByIdPID(ctx, "contoso")
	if err != nil {
		t.Fatalf("GetByIdPID failed: %v", err)
	}
	if _, err := s.Update(ctx, cfg.ID, domain.UpdateIdPConfig{IsActive: &off}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if _, err := r.Resolve(ctx, "a@contoso.com"); !errors.Is(err, ErrNoMatch) {
		t.Errorf("expected ErrNoMatch for inactive IdP, got %v", err)
	}
}

func TestResolveAfterAddEmailDomain(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t)
	r := New(s, false)

	if err := s.AddEmailDomain(ctx, "contoso", "acme.com"); err != nil {
		t.Fatalf("AddEmailDomain failed: %v", err)
	}
	cfg, err := r.Resolve(ctx, "bob@acme.com")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cfg.IdPID != "contoso" {
		t.Errorf("expected 'contoso', got %q", cfg.IdPID)
	}
}

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"user@example.com", "example.com", false},
		{"User@Example.COM", "example.com", false},
		{"  padded@example.com  ", "example.com", false},
		{`"a@b"@example.com`, "example.com", false},
		{"", "", true},
		{"@x.com", "", true},
		{"x@", "", true},
		{"x@.com", "", true},
		{"x@com.", "", true},
		{"no-at-sign", "", true},
	}
	for _, tt := range tests {
		got, err := ExtractDomain(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidEmail) {
				t.Errorf("ExtractDomain(%q): expected ErrInvalidEmail, got %v", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ExtractDomain(%q): unexpected error %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ExtractDomain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
