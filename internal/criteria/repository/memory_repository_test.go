package repository

import (
	"context"
	"errors"
	"testing"
)

func TestAppendKeepsCreationOrder(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	texts := []string{"first rule", "second rule", "third rule"}
	for _, text := range texts {
		if _, err := repo.Append(ctx, text); err != nil {
			t.Fatal(err)
		}
	}

	items, err := repo.ListEnabled(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != len(texts) {
		t.Fatalf("got %d items, want %d", len(items), len(texts))
	}
	for i, item := range items {
		if item.Text != texts[i] {
			t.Errorf("item %d = %q, want %q", i, item.Text, texts[i])
		}
		if !item.Enabled {
			t.Errorf("item %d should be enabled", i)
		}
	}
}

func TestAppendRejectsEmptyText(t *testing.T) {
	repo := NewMemoryRepository()
	if _, err := repo.Append(context.Background(), "   "); err == nil {
		t.Fatal("blank criterion should be rejected")
	}
}

func TestUpdateTogglesWithoutLosingOrder(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	first, err := repo.Append(ctx, "first rule")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Append(ctx, "second rule"); err != nil {
		t.Fatal(err)
	}

	off := false
	if _, err := repo.Update(ctx, first.ID, nil, &off); err != nil {
		t.Fatal(err)
	}
	enabled, _ := repo.ListEnabled(ctx)
	if len(enabled) != 1 || enabled[0].Text != "second rule" {
		t.Fatalf("enabled = %+v", enabled)
	}

	// Re-enabling restores the original position, not the end.
	on := true
	newText := "first rule, clarified"
	if _, err := repo.Update(ctx, first.ID, &newText, &on); err != nil {
		t.Fatal(err)
	}
	enabled, _ = repo.ListEnabled(ctx)
	if len(enabled) != 2 || enabled[0].Text != "first rule, clarified" {
		t.Fatalf("enabled after re-enable = %+v", enabled)
	}
}

func TestUpdateAndDeleteUnknownID(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	if _, err := repo.Update(ctx, "missing", nil, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("update unknown = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete unknown = %v, want ErrNotFound", err)
	}
}

func TestDeleteRemovesFromPromptSet(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	item, err := repo.Append(ctx, "temporary rule")
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Delete(ctx, item.ID); err != nil {
		t.Fatal(err)
	}
	enabled, _ := repo.ListEnabled(ctx)
	if len(enabled) != 0 {
		t.Errorf("enabled = %d, want 0", len(enabled))
	}
	if _, err := repo.Get(ctx, item.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("get deleted = %v, want ErrNotFound", err)
	}
}
