package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samber/lo"

	"github.com/okian/comparo/internal/domain/model"
)

var madrid = model.GeoPoint{Lat: 40.4168, Lng: -3.7038}

func sequentialIDs() Option {
	var n atomic.Int64
	return WithIDGenerator(func() string {
		return fmt.Sprintf("c-%03d", n.Add(1))
	})
}

func fixedClock() Option {
	return WithClock(func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) })
}

func newTestStore(t testing.TB) *TreapStore {
	t.Helper()
	s := NewTreapStore(context.Background(), sequentialIDs(), fixedClock())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(daysAgo int, dLat float64, price float64) model.ComparableRecord {
	return model.ComparableRecord{
		Date:  time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -daysAgo),
		Lat:   madrid.Lat + dLat,
		Lng:   madrid.Lng,
		Price: price,
		Sqm:   80,
	}
}

func mustImport(t testing.TB, s Store, rec model.ComparableRecord) model.Comparable {
	t.Helper()
	c, err := s.ImportComparable(context.Background(), rec)
	if err != nil {
		t.Fatalf("unexpected import error: %v", err)
	}
	return c
}

func TestTreapStore_ImportAndGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if count := store.Count(ctx); count != 0 {
		t.Errorf("expected count 0, got %d", count)
	}

	c := mustImport(t, store, record(0, 0, 250000))
	if c.ID != "c-001" || c.Version != 1 {
		t.Errorf("expected c-001 v1, got %s v%d", c.ID, c.Version)
	}
	if c.Source != model.SourceInterno {
		t.Errorf("expected default source INTERNO, got %s", c.Source)
	}
	if !c.ImportedAt.Equal(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected importedAt %v", c.ImportedAt)
	}

	got, err := store.GetComparable(ctx, c.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Price != 250000 {
		t.Errorf("expected price 250000, got %f", got.Price)
	}
	if count := store.Count(ctx); count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}

	_, err = store.GetComparable(ctx, "missing")
	if !errors.Is(err, ErrComparableNotFound) || !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestTreapStore_ImportRejectsInvalid(t *testing.T) {
	store := newTestStore(t)
	rec := record(0, 0, 0)
	rec.Sqm = -1

	_, err := store.ImportComparable(context.Background(), rec)
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var ve model.ValidationErrors
	if !errors.As(err, &ve) || len(ve) != 2 {
		t.Errorf("expected 2 violations, got %v", err)
	}
	if store.Count(context.Background()) != 0 {
		t.Error("invalid record must not be stored")
	}
}

func TestTreapStore_Versioning(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first := record(10, 0, 200000)
	first.Ref = lo.ToPtr("REF-9")
	v1 := mustImport(t, store, first)

	second := record(5, 0, 210000)
	second.Ref = lo.ToPtr("REF-9")
	v2 := mustImport(t, store, second)

	if v2.Version != 2 || v2.ID == v1.ID {
		t.Fatalf("expected a new id at version 2, got %s v%d", v2.ID, v2.Version)
	}
	if store.Count(ctx) != 1 {
		t.Errorf("expected only the latest version counted, got %d", store.Count(ctx))
	}

	old, err := store.GetComparable(ctx, v1.ID)
	if err != nil || old.Price != 200000 {
		t.Errorf("old version should stay readable, got %v %v", old, err)
	}

	page, err := store.QueryComparables(ctx, model.SearchFilters{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 1 || page.Items[0].ID != v2.ID {
		t.Errorf("query should only see the latest version, got %+v", page.Items)
	}
}

func TestTreapStore_DateOrdering(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, days := range []int{30, 1, 90, 1, 15} {
		mustImport(t, store, record(days, 0, 100000))
	}

	page, err := store.QueryComparables(ctx, model.SearchFilters{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 5 {
		t.Fatalf("expected 5, got %d", page.Total)
	}
	for i := 1; i < len(page.Items); i++ {
		prev, cur := page.Items[i-1], page.Items[i]
		if cur.Date.After(prev.Date) {
			t.Errorf("items not newest first at %d", i)
		}
		if cur.Date.Equal(prev.Date) && cur.ID < prev.ID {
			t.Errorf("same-date items not ordered by id at %d", i)
		}
	}
}

func TestTreapStore_DateWindow(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	for days := 0; days < 100; days += 10 {
		mustImport(t, store, record(days, 0, 100000))
	}

	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	f := model.SearchFilters{
		DateFrom: lo.ToPtr(base.AddDate(0, 0, -45)),
		DateTo:   lo.ToPtr(base.AddDate(0, 0, -15)),
	}
	page, err := store.QueryComparables(ctx, f, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 20, 30 and 40 days ago
	if page.Total != 3 {
		t.Errorf("expected 3 in window, got %d", page.Total)
	}
}

func TestTreapStore_RadiusAndDistanceSort(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	// 0.001 deg of latitude is about 111 m
	near := mustImport(t, store, record(1, 0.001, 100000))
	mid := mustImport(t, store, record(1, 0.01, 100000))
	far := mustImport(t, store, record(1, 0.1, 100000))

	subject := &model.SubjectRef{Lat: lo.ToPtr(madrid.Lat), Lng: lo.ToPtr(madrid.Lng), Sqm: 80}
	page, err := store.QueryComparables(ctx, model.SearchFilters{RadiusKm: 2}, subject)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected 2 within 2 km, got %d", page.Total)
	}
	if page.Items[0].ID != near.ID || page.Items[1].ID != mid.ID {
		t.Errorf("expected nearest first, got %s, %s", page.Items[0].ID, page.Items[1].ID)
	}

	page, err = store.QueryComparables(ctx, model.SearchFilters{Center: &madrid, RadiusKm: 5}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, c := range page.Items {
		if c.ID == far.ID {
			t.Error("comparable 11 km away must be excluded")
		}
	}
}

func TestTreapStore_InvalidFilters(t *testing.T) {
	store := newTestStore(t)
	cases := map[string]model.SearchFilters{
		"radius too large":     {Center: &madrid, RadiusKm: 6},
		"radius without point": {RadiusKm: 1},
		"page size":            {PageSize: 501},
		"dates reversed": {
			DateFrom: lo.ToPtr(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)),
			DateTo:   lo.ToPtr(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
		},
	}
	for name, f := range cases {
		_, err := store.QueryComparables(context.Background(), f, nil)
		if !errors.Is(err, model.ErrInvalidFilter) {
			t.Errorf("%s: expected invalid filter, got %v", name, err)
		}
	}
}

func TestTreapStore_Pagination(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	for i := 0; i < 7; i++ {
		mustImport(t, store, record(i, 0, 100000))
	}

	seen := make(map[string]bool)
	for page := 1; ; page++ {
		p, err := store.QueryComparables(ctx, model.SearchFilters{Page: page, PageSize: 3}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, c := range p.Items {
			if seen[c.ID] {
				t.Errorf("duplicate %s across pages", c.ID)
			}
			seen[c.ID] = true
		}
		if !p.HasMore {
			if page != 3 || p.TotalPages != 3 {
				t.Errorf("expected 3 pages, stopped at %d of %d", page, p.TotalPages)
			}
			break
		}
	}
	if len(seen) != 7 {
		t.Errorf("expected 7 distinct items, got %d", len(seen))
	}
}

func TestTreapStore_SelectComparables(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	for i := 0; i < 7; i++ {
		mustImport(t, store, record(i, 0.001*float64(i), 100000))
	}
	far := mustImport(t, store, record(0, 0.1, 100000))

	subject := &model.SubjectRef{Lat: lo.ToPtr(madrid.Lat), Lng: lo.ToPtr(madrid.Lng), Sqm: 80}
	f := model.SearchFilters{RadiusKm: 2, Page: 2, PageSize: 501}
	all, err := store.SelectComparables(ctx, f, subject)
	if err != nil {
		t.Fatalf("paging fields must be ignored, got %v", err)
	}
	if len(all) != 7 {
		t.Fatalf("expected all 7 matches in one read, got %d", len(all))
	}
	if lo.ContainsBy(all, func(c model.Comparable) bool { return c.ID == far.ID }) {
		t.Error("comparable outside the radius must be excluded")
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Lat > all[i].Lat {
			t.Errorf("expected distance order, %s before %s", all[i-1].ID, all[i].ID)
		}
	}

	if _, err := store.SelectComparables(ctx, model.SearchFilters{RadiusKm: 9}, subject); !errors.Is(err, model.ErrInvalidFilter) {
		t.Errorf("expected invalid filter, got %v", err)
	}
}

func TestTreapStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(int64(w)))
			for i := 0; i < 50; i++ {
				rec := record(r.Intn(300), r.Float64()*0.02, 100000+float64(i))
				if i%5 == 0 {
					rec.Ref = lo.ToPtr(fmt.Sprintf("REF-%d", i))
				}
				if _, err := store.ImportComparable(ctx, rec); err != nil {
					t.Errorf("import: %v", err)
				}
				if _, err := store.QueryComparables(ctx, model.SearchFilters{Center: &madrid, RadiusKm: 3}, nil); err != nil {
					t.Errorf("query: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	// 8 workers x 40 ref-less records, plus 10 shared refs
	if count := store.Count(ctx); count != 330 {
		t.Errorf("expected 330 latest comparables, got %d", count)
	}
}

func TestTreapStore_ContextCancellation(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.ImportComparable(ctx, record(0, 0, 1)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled on import, got %v", err)
	}
	if _, err := store.QueryComparables(ctx, model.SearchFilters{}, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled on query, got %v", err)
	}
}

func TestTreapStore_CloseBehavior(t *testing.T) {
	store := NewTreapStore(context.Background(), WithMetricsUpdateInterval(time.Millisecond))
	mustImport(t, store, record(0, 0, 1))

	time.Sleep(5 * time.Millisecond)
	if err := store.Close(); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
	if store.Count(context.Background()) != 1 {
		t.Error("data should remain readable after close")
	}
}

func BenchmarkTreapStore_Import(b *testing.B) {
	store := NewTreapStore(context.Background())
	defer store.Close()
	r := rand.New(rand.NewSource(1))
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := record(r.Intn(700), r.Float64()*0.05, 100000+r.Float64()*400000)
		if _, err := store.ImportComparable(ctx, rec); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkTreapStore_RadiusQuery(b *testing.B) {
	store := NewTreapStore(context.Background())
	defer store.Close()
	r := rand.New(rand.NewSource(1))
	ctx := context.Background()
	for i := 0; i < 20000; i++ {
		rec := record(r.Intn(700), (r.Float64()-0.5)*0.4, 100000+r.Float64()*400000)
		rec.Lng += (r.Float64() - 0.5) * 0.4
		if _, err := store.ImportComparable(ctx, rec); err != nil {
			b.Fatal(err)
		}
	}
	f := model.SearchFilters{Center: &madrid, RadiusKm: 1, PageSize: 100}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := store.QueryComparables(ctx, f, nil); err != nil {
			b.Fatal(err)
		}
	}
}
