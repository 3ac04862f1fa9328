package storage_test

import (
	"context"
	"errors"
	"testing"

	"ssogate/internal/domain"
	"ssogate/internal/storage"
)

// The inner store is mutated directly in places to distinguish "served from
// cache" from "read through".

func TestCachedStoreServesFromCache(t *testing.T) {
	ctx := context.Background()
	inner := storage.NewMemoryIdPStore()
	cached := storage.NewCachedIdPStore(inner)

	if err := cached.Create(ctx, newConfig("okta")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	first, err := cached.GetByIdPID(ctx, "okta")
	if err != nil {
		t.Fatalf("GetByIdPID: %v", err)
	}

	// bypass the decorator; the cached read must not see this
	display := "Mutated"
	if _, err := inner.Update(ctx, first.ID, domain.UpdateIdPConfig{DisplayName: &display}); err != nil {
		t.Fatalf("inner Update: %v", err)
	}

	second, err := cached.GetByIdPID(ctx, "okta")
	if err != nil {
		t.Fatalf("GetByIdPID: %v", err)
	}
	if second.DisplayName != first.DisplayName {
		t.Errorf("read went through to the inner store: DisplayName = %q", second.DisplayName)
	}
}

func TestCachedStoreInvalidatesOnWrite(t *testing.T) {
	ctx := context.Background()
	cached := storage.NewCachedIdPStore(storage.NewMemoryIdPStore())

	cfg := newConfig("okta")
	if err := cached.Create(ctx, cfg); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := cached.GetByIdPID(ctx, "okta"); err != nil {
		t.Fatalf("warm read: %v", err)
	}
	if _, err := cached.ListActive(ctx); err != nil {
		t.Fatalf("warm list: %v", err)
	}

	display := "Okta Prod"
	if _, err := cached.Update(ctx, cfg.ID, domain.UpdateIdPConfig{DisplayName: &display}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := cached.GetByIdPID(ctx, "okta")
	if err != nil {
		t.Fatalf("GetByIdPID: %v", err)
	}
	if got.DisplayName != "Okta Prod" {
		t.Errorf("stale read after write: DisplayName = %q", got.DisplayName)
	}

	if err := cached.AddEmailDomain(ctx, "okta", "contoso.com"); err != nil {
		t.Fatalf("AddEmailDomain: %v", err)
	}
	owner, err := cached.FindByEmailDomain(ctx, "contoso.com")
	if err != nil {
		t.Fatalf("FindByEmailDomain after add: %v", err)
	}
	if owner.IdPID != "okta" {
		t.Errorf("owner = %q", owner.IdPID)
	}

	if err := cached.Delete(ctx, cfg.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := cached.GetByIdPID(ctx, "okta"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("read after delete: %v, want ErrNotFound", err)
	}
}

func TestCachedStoreCreateEvictsDemotedDefault(t *testing.T) {
	ctx := context.Background()
	cached := storage.NewCachedIdPStore(storage.NewMemoryIdPStore())

	first := newConfig("first")
	first.IsDefault = true
	if err := cached.Create(ctx, first); err != nil {
		t.Fatalf("Create first: %v", err)
	}
	// warm the by-slug and by-id entries for the current default
	if _, err := cached.GetByIdPID(ctx, "first"); err != nil {
		t.Fatalf("warm by slug: %v", err)
	}
	if _, err := cached.GetByID(ctx, first.ID); err != nil {
		t.Fatalf("warm by id: %v", err)
	}

	second := newConfig("second")
	second.IsDefault = true
	if err := cached.Create(ctx, second); err != nil {
		t.Fatalf("Create second: %v", err)
	}

	bySlug, err := cached.GetByIdPID(ctx, "first")
	if err != nil {
		t.Fatalf("GetByIdPID after demotion: %v", err)
	}
	if bySlug.IsDefault {
		t.Error("by-slug entry still marks the demoted config as default")
	}
	byID, err := cached.GetByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetByID after demotion: %v", err)
	}
	if byID.IsDefault {
		t.Error("by-id entry still marks the demoted config as default")
	}
}

func TestCachedStoreDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	cached := storage.NewCachedIdPStore(storage.NewMemoryIdPStore())

	if _, err := cached.GetByIdPID(ctx, "okta"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("miss: %v, want ErrNotFound", err)
	}
	if err := cached.Create(ctx, newConfig("okta")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := cached.GetByIdPID(ctx, "okta"); err != nil {
		t.Errorf("read after create: %v, want config", err)
	}
}
