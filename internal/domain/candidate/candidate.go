// Package candidate narrows a pool of comparables to the ones matching a
// search. It is the single definition of the filter predicates; every store
// adapter delegates to it so results agree across backends.
package candidate

import (
	"sort"
	"strings"

	"github.com/okian/comparo/internal/domain/geo"
	"github.com/okian/comparo/internal/domain/model"
	"github.com/okian/comparo/internal/domain/types"
)

// Plan is a validated, ready-to-run search.
type Plan struct {
	filters model.SearchFilters

	// origin of the radius predicate, if active
	origin  *model.GeoPoint
	radiusM float64

	// reference point for distances and distance sorting
	ref *model.GeoPoint

	sort  model.SortField
	order model.SortOrder
	q     string
}

// NewPlan validates filters and resolves defaults against the subject,
// which may be nil. It returns an ErrInvalidFilter error before any I/O.
func NewPlan(filters model.SearchFilters, subject *model.SubjectRef) (*Plan, error) {
	f := filters.WithDefaults()
	if err := f.Validate(); err != nil {
		return nil, err
	}

	p := &Plan{filters: f, q: Fold(f.Q)}

	var subjectPoint *model.GeoPoint
	if subject != nil {
		if sp, ok := subject.Point(); ok {
			subjectPoint = &sp
		}
	}

	if f.RadiusKm > 0 {
		switch {
		case f.Center != nil:
			c := *f.Center
			p.origin = &c
		case subjectPoint != nil:
			p.origin = subjectPoint
		default:
			return nil, model.NewFilterError("radiusKm", "requires center or subject coordinates")
		}
		p.radiusM = f.RadiusKm * 1000
	}

	p.ref = subjectPoint
	if p.ref == nil {
		p.ref = f.Center
	}

	p.sort, p.order = f.Sort, f.Order
	if p.sort == "" {
		if subjectPoint != nil {
			p.sort = model.SortDistance
		} else {
			p.sort = model.SortDate
		}
	}
	if p.sort == model.SortDistance && p.ref == nil {
		return nil, model.NewFilterError("sort", "distance requires center or subject coordinates")
	}
	if p.order == "" {
		if p.sort == model.SortDate {
			p.order = model.OrderDesc
		} else {
			p.order = model.OrderAsc
		}
	}
	return p, nil
}

// Filters returns the effective filters, defaults applied.
func (p *Plan) Filters() model.SearchFilters { return p.filters }

// Radius returns the radius predicate, if any.
func (p *Plan) Radius() (model.GeoPoint, float64, bool) {
	if p.origin == nil {
		return model.GeoPoint{}, 0, false
	}
	return *p.origin, p.radiusM, true
}

// Cells returns the geohash cells a store must scan, or nil when the search
// is not geographically bounded.
func (p *Plan) Cells() []string {
	if p.origin == nil {
		return nil
	}
	return geo.Covering(*p.origin, p.radiusM)
}

// Box returns the bounding box of the radius predicate.
func (p *Plan) Box() (geo.Box, bool) {
	if p.origin == nil {
		return geo.Box{}, false
	}
	return geo.BoundingBox(*p.origin, p.radiusM), true
}

// DistanceM returns the distance from the reference point to c.
func (p *Plan) DistanceM(c model.Comparable) (float64, bool) {
	if p.ref == nil {
		return 0, false
	}
	return geo.HaversineM(*p.ref, c.Point()), true
}

// Match reports whether c satisfies every active predicate.
func (p *Plan) Match(c model.Comparable) bool {
	f := &p.filters
	if p.origin != nil && geo.HaversineM(*p.origin, c.Point()) > p.radiusM {
		return false
	}
	if f.DateFrom != nil && c.Date.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && c.Date.After(*f.DateTo) {
		return false
	}
	if f.Type != nil && c.Type != *f.Type {
		return false
	}
	if !inRange(c.Sqm, f.SqmMin, f.SqmMax) || !inRange(c.Price, f.PriceMin, f.PriceMax) {
		return false
	}
	if !optInRange(c.Rooms, f.RoomsMin, f.RoomsMax) ||
		!optInRange(c.Baths, f.BathsMin, f.BathsMax) ||
		!optInRange(c.Floor, f.FloorMin, f.FloorMax) {
		return false
	}
	if !optEqual(c.Elevator, f.Elevator) || !optEqual(c.Parking, f.Parking) || !optEqual(c.Condition, f.Condition) {
		return false
	}
	if f.Source != nil && c.Source != *f.Source {
		return false
	}
	if p.q != "" && !p.matchText(c) {
		return false
	}
	return true
}

func (p *Plan) matchText(c model.Comparable) bool {
	if c.Address != nil && strings.Contains(Fold(*c.Address), p.q) {
		return true
	}
	return c.Ref != nil && strings.Contains(Fold(*c.Ref), p.q)
}

func inRange[T int | float64](v T, lo, hi *T) bool {
	if lo != nil && v < *lo {
		return false
	}
	return hi == nil || v <= *hi
}

// optInRange rejects a comparable lacking the attribute when a bound is set.
func optInRange(v *int, lo, hi *int) bool {
	if lo == nil && hi == nil {
		return true
	}
	return v != nil && inRange(*v, lo, hi)
}

func optEqual[T comparable](v, want *T) bool {
	if want == nil {
		return true
	}
	return v != nil && *v == *want
}

// Sort orders comparables in place. Ties break by id ascending.
func (p *Plan) Sort(items []model.Comparable) {
	var key func(model.Comparable) float64
	switch p.sort {
	case model.SortDistance:
		key = func(c model.Comparable) float64 { d, _ := p.DistanceM(c); return d }
	case model.SortPrice:
		key = func(c model.Comparable) float64 { return c.Price }
	case model.SortSqm:
		key = func(c model.Comparable) float64 { return c.Sqm }
	default:
		key = func(c model.Comparable) float64 { return float64(c.Date.Unix()) }
	}
	desc := p.order == model.OrderDesc

	keys := make(map[string]float64, len(items))
	for _, c := range items {
		keys[c.ID] = key(c)
	}
	sort.SliceStable(items, func(i, j int) bool {
		ki, kj := keys[items[i].ID], keys[items[j].ID]
		if ki != kj {
			if desc {
				return ki > kj
			}
			return ki < kj
		}
		return items[i].ID < items[j].ID
	})
}

// Select returns every comparable of pool the plan matches, sorted.
func (p *Plan) Select(pool []model.Comparable) []model.Comparable {
	matched := make([]model.Comparable, 0, len(pool))
	for _, c := range pool {
		if p.Match(c) {
			matched = append(matched, c)
		}
	}
	p.Sort(matched)
	return matched
}

// Apply filters, sorts and paginates a candidate pool.
func (p *Plan) Apply(pool []model.Comparable) types.Page[model.Comparable] {
	return types.Paginate(p.Select(pool), p.filters.Page, p.filters.PageSize)
}
