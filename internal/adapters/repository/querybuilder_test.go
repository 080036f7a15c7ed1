package repository

import (
	"strings"
	"testing"
	"time"

	"github.com/samber/lo"

	"github.com/okian/comparo/internal/domain/candidate"
	"github.com/okian/comparo/internal/domain/model"
)

func TestPushdown_NoFilters(t *testing.T) {
	plan, err := candidate.NewPlan(model.SearchFilters{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	qb := pushdown(plan)
	if qb.where() != "WHERE is_latest" {
		t.Errorf("unexpected where clause %q", qb.where())
	}
	if len(qb.args) != 0 {
		t.Errorf("expected no args, got %v", qb.args)
	}
}

func TestPushdown_Placeholders(t *testing.T) {
	f := model.SearchFilters{
		Center:   &model.GeoPoint{Lat: 40.4, Lng: -3.7},
		RadiusKm: 1,
		DateFrom: lo.ToPtr(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		Type:     lo.ToPtr(model.TypeApartment),
		SqmMin:   lo.ToPtr(50.0),
		SqmMax:   lo.ToPtr(120.0),
		RoomsMin: lo.ToPtr(2),
		Parking:  lo.ToPtr(true),
		Source:   lo.ToPtr(model.SourceNotaria),
		Q:        "castellana",
	}
	plan, err := candidate.NewPlan(f, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	qb := pushdown(plan)
	where := qb.where()

	for _, want := range []string{
		"geohash = ANY($1)",
		"lat BETWEEN $2 AND $3",
		"lng BETWEEN $4 AND $5",
		"sold_on >= $6",
		"property_type = $7",
		"sqm >= $8",
		"sqm <= $9",
		"rooms >= $10",
		"parking = $11",
		"source = $12",
	} {
		if !strings.Contains(where, want) {
			t.Errorf("where clause %q missing %q", where, want)
		}
	}
	if len(qb.args) != 12 {
		t.Fatalf("expected 12 args, got %d", len(qb.args))
	}
	if qb.args[6] != "APARTMENT" || qb.args[11] != "NOTARIA" {
		t.Errorf("enum args must be plain strings, got %v %v", qb.args[6], qb.args[11])
	}
	if strings.Contains(where, "castellana") {
		t.Error("free text is matched in Go, not pushed down")
	}
}
