package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samber/lo"

	"github.com/okian/comparo/internal/domain/model"
)

func compSet(id, client string, def bool, created time.Time) model.CompSet {
	return model.CompSet{
		ID:              id,
		Name:            "set " + id,
		CompIDs:         []string{"c-1"},
		Client:          lo.ToPtr(client),
		IsDefaultForAvm: def,
		Version:         1,
		CreatedAt:       created,
		UpdatedAt:       created,
	}
}

func TestMemoryCompSetRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryCompSetRepository()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	created, err := repo.Create(ctx, compSet("s1", "acme", false, t0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := repo.Create(ctx, created); !errors.Is(err, model.ErrConflict) {
		t.Errorf("expected conflict on duplicate id, got %v", err)
	}

	// callers must not be able to mutate stored state through returned slices
	created.CompIDs[0] = "mutated"
	got, err := repo.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.CompIDs[0] != "c-1" {
		t.Errorf("stored comp set was mutated: %v", got.CompIDs)
	}

	got.Name = "renamed"
	updated, err := repo.Update(ctx, got, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Version != 2 || updated.Name != "renamed" || !updated.CreatedAt.Equal(t0) {
		t.Errorf("unexpected update result %+v", updated)
	}

	if _, err := repo.Update(ctx, got, 1); !errors.Is(err, model.ErrConflict) {
		t.Errorf("expected conflict on stale version, got %v", err)
	}
	if err := repo.Delete(ctx, "s1", 1); !errors.Is(err, model.ErrConflict) {
		t.Errorf("expected conflict on stale delete, got %v", err)
	}
	if err := repo.Delete(ctx, "s1", 2); err != nil {
		t.Errorf("unexpected delete error: %v", err)
	}
	if _, err := repo.Get(ctx, "s1"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected not found after delete, got %v", err)
	}
	if err := repo.Delete(ctx, "s1", 2); !errors.Is(err, ErrCompSetNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestMemoryCompSetRepository_SingleDefaultPerClient(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryCompSetRepository()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, cs := range []model.CompSet{
		compSet("a", "acme", true, t0),
		compSet("other", "globex", true, t0),
		compSet("b", "acme", true, t0.Add(time.Hour)),
	} {
		if _, err := repo.Create(ctx, cs); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	a, _ := repo.Get(ctx, "a")
	if a.IsDefaultForAvm || a.Version != 2 {
		t.Errorf("previous default should be cleared and bumped, got %+v", a)
	}
	other, _ := repo.Get(ctx, "other")
	if !other.IsDefaultForAvm {
		t.Error("another client's default must be untouched")
	}

	list, err := repo.ListByClient(ctx, "acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Errorf("expected [a b] by creation time, got %v", lo.Map(list, func(cs model.CompSet, _ int) string { return cs.ID }))
	}
	defaults := lo.Filter(list, func(cs model.CompSet, _ int) bool { return cs.IsDefaultForAvm })
	if len(defaults) != 1 || defaults[0].ID != "b" {
		t.Errorf("expected exactly b as default, got %v", defaults)
	}

	empty, err := repo.ListByClient(ctx, "nobody")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil list, got %v %v", empty, err)
	}
}

func TestMemoryCompSetRepository_GlobalDefault(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryCompSetRepository()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	g1 := compSet("g1", "", true, t0)
	g1.Client = nil
	g2 := compSet("g2", "", true, t0.Add(time.Hour))
	g2.Client = nil
	for _, cs := range []model.CompSet{g1, compSet("acme", "acme", true, t0), g2} {
		if _, err := repo.Create(ctx, cs); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, _ := repo.Get(ctx, "g1")
	if got.IsDefaultForAvm || got.Version != 2 {
		t.Errorf("previous global default should be cleared, got %+v", got)
	}
	got, _ = repo.Get(ctx, "g2")
	if !got.IsDefaultForAvm {
		t.Error("latest global default should stay flagged")
	}
	got, _ = repo.Get(ctx, "acme")
	if !got.IsDefaultForAvm {
		t.Error("client defaults are not in the global scope")
	}
}
