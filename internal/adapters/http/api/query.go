package api

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/comparo/internal/domain/model"
)

// queryParser reads typed query parameters and collects every malformed one.
type queryParser struct {
	q    url.Values
	errs model.ValidationErrors
}

func (p *queryParser) fail(key, constraint string) {
	p.errs = append(p.errs, model.NewFilterError(key, constraint))
}

func (p *queryParser) str(key string) string {
	return strings.TrimSpace(p.q.Get(key))
}

func (p *queryParser) float(key string) *float64 {
	raw := p.str(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, "must be a number")
		return nil
	}
	return &v
}

func (p *queryParser) int(key string) *int {
	raw := p.str(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, "must be an integer")
		return nil
	}
	return &v
}

func (p *queryParser) bool(key string) *bool {
	raw := p.str(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, "must be true or false")
		return nil
	}
	return &v
}

// time accepts RFC 3339 timestamps and plain dates.
func (p *queryParser) time(key string) *time.Time {
	raw := p.str(key)
	if raw == "" {
		return nil
	}
	t, err := parseDate(raw)
	if err != nil {
		p.fail(key, "must be an ISO-8601 date")
		return nil
	}
	return &t
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, raw)
}

func upper[T ~string](raw string) *T {
	if raw == "" {
		return nil
	}
	v := T(strings.ToUpper(raw))
	return &v
}

func orZero[T int | float64](v *T) T {
	if v == nil {
		return 0
	}
	return *v
}

// parseFilters builds SearchFilters from the query string of GET /v1/comparables.
// Value checks are left to SearchFilters.Validate.
func parseFilters(q url.Values) (model.SearchFilters, error) {
	p := &queryParser{q: q}
	f := model.SearchFilters{
		RadiusKm:  orZero(p.float("radiusKm")),
		DateFrom:  p.time("dateFrom"),
		DateTo:    p.time("dateTo"),
		Type:      upper[model.PropertyType](p.str("type")),
		SqmMin:    p.float("sqmMin"),
		SqmMax:    p.float("sqmMax"),
		RoomsMin:  p.int("roomsMin"),
		RoomsMax:  p.int("roomsMax"),
		BathsMin:  p.int("bathsMin"),
		BathsMax:  p.int("bathsMax"),
		FloorMin:  p.int("floorMin"),
		FloorMax:  p.int("floorMax"),
		Elevator:  p.bool("elevator"),
		Parking:   p.bool("parking"),
		Condition: upper[model.Condition](p.str("condition")),
		PriceMin:  p.float("priceMin"),
		PriceMax:  p.float("priceMax"),
		Source:    upper[model.Source](p.str("source")),
		Q:         p.str("q"),
		Page:      orZero(p.int("page")),
		PageSize:  orZero(p.int("pageSize")),
		Sort:      model.SortField(strings.ToLower(p.str("sort"))),
		Order:     model.SortOrder(strings.ToLower(p.str("order"))),
	}

	lat, lng := p.float("lat"), p.float("lng")
	switch {
	case lat != nil && lng != nil:
		f.Center = &model.GeoPoint{Lat: *lat, Lng: *lng}
	case lat != nil || lng != nil:
		p.fail("lat", "lat and lng must be given together")
	}

	if len(p.errs) > 0 {
		return model.SearchFilters{}, p.errs
	}
	return f, nil
}
