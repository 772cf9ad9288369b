package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"kasku/internal/core"
)

func testRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "kasku.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSaveAndFindSpec(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	spec := core.ChartSpec{
		ID:        "spending-by-day",
		Title:     "Spending by day",
		Kind:      core.KindLine,
		Dimension: "day",
		OwnerID:   7,
	}

	if err := repo.SaveSpec(ctx, spec); err != nil {
		t.Fatalf("SaveSpec: %v", err)
	}

	got, err := repo.FindSpec(ctx, "spending-by-day")
	if err != nil {
		t.Fatalf("FindSpec: %v", err)
	}
	if got.Title != "Spending by day" || got.OwnerID != 7 || got.Kind != core.KindLine {
		t.Errorf("loaded spec = %+v", got)
	}
	if got.Mode != core.ModeBuilder {
		t.Errorf("mode = %q, want normalized builder", got.Mode)
	}
}

func TestSaveSpecUpserts(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	spec := core.ChartSpec{ID: "c1", Title: "First", OwnerID: 1}
	if err := repo.SaveSpec(ctx, spec); err != nil {
		t.Fatalf("SaveSpec: %v", err)
	}

	spec.Title = "Second"
	spec.IsPublic = true
	if err := repo.SaveSpec(ctx, spec); err != nil {
		t.Fatalf("SaveSpec update: %v", err)
	}

	got, err := repo.FindSpec(ctx, "c1")
	if err != nil {
		t.Fatalf("FindSpec: %v", err)
	}
	if got.Title != "Second" || !got.IsPublic {
		t.Errorf("spec after upsert = %+v", got)
	}
}

func TestSaveSpecRejectsInvalid(t *testing.T) {
	repo := testRepo(t)

	if err := repo.SaveSpec(context.Background(), core.ChartSpec{}); err == nil {
		t.Error("expected validation error for empty id")
	}
}

func TestFindSpecNotFound(t *testing.T) {
	repo := testRepo(t)

	_, err := repo.FindSpec(context.Background(), "ghost")
	if !errors.Is(err, ErrSpecNotFound) {
		t.Errorf("error = %v, want ErrSpecNotFound", err)
	}
}

func TestListSpecsVisibility(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	seed := []core.ChartSpec{
		{ID: "mine", Title: "Mine", OwnerID: 1},
		{ID: "theirs", Title: "Theirs", OwnerID: 2},
		{ID: "shared", Title: "Shared", OwnerID: 2, IsPublic: true},
	}
	for _, s := range seed {
		if err := repo.SaveSpec(ctx, s); err != nil {
			t.Fatalf("SaveSpec %s: %v", s.ID, err)
		}
	}

	t.Run("normal caller sees own plus public", func(t *testing.T) {
		got, err := repo.ListSpecs(ctx, core.Caller{UserID: 1})
		if err != nil {
			t.Fatalf("ListSpecs: %v", err)
		}
		ids := map[string]bool{}
		for _, s := range got {
			ids[s.ID] = true
		}
		if len(got) != 2 || !ids["mine"] || !ids["shared"] {
			t.Errorf("visible ids = %v", ids)
		}
	})

	t.Run("privileged caller sees everything", func(t *testing.T) {
		got, err := repo.ListSpecs(ctx, core.Caller{UserID: 1, Privileged: true})
		if err != nil {
			t.Fatalf("ListSpecs: %v", err)
		}
		if len(got) != 3 {
			t.Errorf("got %d specs, want 3", len(got))
		}
	})
}

func TestRepositoryPing(t *testing.T) {
	repo := testRepo(t)
	if err := repo.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
