package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/dejobratic/storefront/internal/catalog/domain"
	"github.com/dejobratic/storefront/internal/catalog/ports"
	"github.com/shopspring/decimal"
)

func TestSaveTemplatePreservesDownloadCount(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.SaveTemplate(ctx, domain.Template{ID: "tpl-1", Title: "v1", Price: decimal.NewFromInt(5)}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.IncrementDownloadCount(ctx, "tpl-1"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := store.SaveTemplate(ctx, domain.Template{ID: "tpl-1", Title: "v2", Price: decimal.NewFromInt(5)}); err != nil {
		t.Fatalf("resave: %v", err)
	}

	got, err := store.GetTemplate(ctx, "tpl-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "v2" {
		t.Errorf("title = %q, want v2", got.Title)
	}
	if got.DownloadCount != 1 {
		t.Errorf("download count = %d, want 1", got.DownloadCount)
	}
}

func TestGetTemplatesKeepsRequestedOrderAndSkipsMissing(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := store.SaveTemplate(ctx, domain.Template{ID: id, Price: decimal.NewFromInt(1)}); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	got, err := store.GetTemplates(ctx, []string{"c", "missing", "a"})
	if err != nil {
		t.Fatalf("get templates: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "a" {
		t.Errorf("unexpected templates: %+v", got)
	}
}

func TestMissingEntries(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if _, err := store.GetTemplate(ctx, "nope"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("GetTemplate error = %v, want ErrNotFound", err)
	}
	if _, err := store.GetBundle(ctx, "nope"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("GetBundle error = %v, want ErrNotFound", err)
	}
	if err := store.IncrementDownloadCount(ctx, "nope"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("IncrementDownloadCount error = %v, want ErrNotFound", err)
	}
}

func TestBundleMembersAreCopied(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	members := []string{"a", "b"}

	if err := store.SaveBundle(ctx, domain.Bundle{ID: "b-1", TemplateIDs: members, Price: decimal.NewFromInt(9)}); err != nil {
		t.Fatalf("save bundle: %v", err)
	}
	members[0] = "mutated"

	got, err := store.GetBundle(ctx, "b-1")
	if err != nil {
		t.Fatalf("get bundle: %v", err)
	}
	if got.TemplateIDs[0] != "a" {
		t.Errorf("bundle members aliased caller slice: %v", got.TemplateIDs)
	}
}
