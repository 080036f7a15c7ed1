package model

import (
	"time"
)

// Filter limits.
const (
	MaxRadiusKm     = 5.0
	MaxPageSize     = 500
	DefaultPageSize = 50
)

// SearchFilters is the query envelope of a candidate search. Nil pointers and
// zero values mean "predicate inactive".
type SearchFilters struct {
	Center    *GeoPoint     `json:"center,omitempty"`
	RadiusKm  float64       `json:"radiusKm,omitempty"`
	DateFrom  *time.Time    `json:"dateFrom,omitempty"`
	DateTo    *time.Time    `json:"dateTo,omitempty"`
	Type      *PropertyType `json:"type,omitempty"`
	SqmMin    *float64      `json:"sqmMin,omitempty"`
	SqmMax    *float64      `json:"sqmMax,omitempty"`
	RoomsMin  *int          `json:"roomsMin,omitempty"`
	RoomsMax  *int          `json:"roomsMax,omitempty"`
	BathsMin  *int          `json:"bathsMin,omitempty"`
	BathsMax  *int          `json:"bathsMax,omitempty"`
	FloorMin  *int          `json:"floorMin,omitempty"`
	FloorMax  *int          `json:"floorMax,omitempty"`
	Elevator  *bool         `json:"elevator,omitempty"`
	Parking   *bool         `json:"parking,omitempty"`
	Condition *Condition    `json:"condition,omitempty"`
	PriceMin  *float64      `json:"priceMin,omitempty"`
	PriceMax  *float64      `json:"priceMax,omitempty"`
	Source    *Source       `json:"source,omitempty"`
	Q         string        `json:"q,omitempty"`
	Page      int           `json:"page,omitempty"`
	PageSize  int           `json:"pageSize,omitempty"`
	Sort      SortField     `json:"sort,omitempty"`
	Order     SortOrder     `json:"order,omitempty"`
}

// WithDefaults fills unset pagination fields.
func (f SearchFilters) WithDefaults() SearchFilters {
	if f.Page == 0 {
		f.Page = 1
	}
	if f.PageSize == 0 {
		f.PageSize = DefaultPageSize
	}
	return f
}

// Validate checks the filter invariants. Violations are ErrInvalidFilter.
func (f SearchFilters) Validate() error {
	var errs ValidationErrors
	if f.RadiusKm < 0 || f.RadiusKm > MaxRadiusKm {
		errs = append(errs, NewFilterError("radiusKm", "must be within (0, 5]"))
	}
	if f.Center != nil {
		if f.RadiusKm == 0 {
			errs = append(errs, NewFilterError("radiusKm", "is required when center is set"))
		}
		if e := f.Center.Validate("center"); e != nil {
			errs = append(errs, NewFilterError(e.Field, e.Constraint))
		}
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateFrom.After(*f.DateTo) {
		errs = append(errs, NewFilterError("dateFrom", "must be <= dateTo"))
	}
	if f.Type != nil && !f.Type.Valid() {
		errs = append(errs, NewFilterError("type", "must be a known property type"))
	}
	if f.SqmMin != nil && *f.SqmMin < 0 {
		errs = append(errs, NewFilterError("sqmMin", "must be >= 0"))
	}
	if f.SqmMin != nil && f.SqmMax != nil && *f.SqmMin > *f.SqmMax {
		errs = append(errs, NewFilterError("sqmMin", "must be <= sqmMax"))
	}
	if f.RoomsMin != nil && f.RoomsMax != nil && *f.RoomsMin > *f.RoomsMax {
		errs = append(errs, NewFilterError("roomsMin", "must be <= roomsMax"))
	}
	if f.BathsMin != nil && f.BathsMax != nil && *f.BathsMin > *f.BathsMax {
		errs = append(errs, NewFilterError("bathsMin", "must be <= bathsMax"))
	}
	if f.FloorMin != nil && f.FloorMax != nil && *f.FloorMin > *f.FloorMax {
		errs = append(errs, NewFilterError("floorMin", "must be <= floorMax"))
	}
	if f.PriceMin != nil && f.PriceMax != nil && *f.PriceMin > *f.PriceMax {
		errs = append(errs, NewFilterError("priceMin", "must be <= priceMax"))
	}
	if f.Condition != nil && !f.Condition.Valid() {
		errs = append(errs, NewFilterError("condition", "must be a known condition"))
	}
	if f.Source != nil && !f.Source.Valid() {
		errs = append(errs, NewFilterError("source", "must be one of PORTAL, REGISTRO, NOTARIA, INTERNO"))
	}
	if f.Page < 1 {
		errs = append(errs, NewFilterError("page", "must be >= 1"))
	}
	if f.PageSize < 1 || f.PageSize > MaxPageSize {
		errs = append(errs, NewFilterError("pageSize", "must be within [1, 500]"))
	}
	switch f.Sort {
	case "", SortDistance, SortDate, SortPrice, SortSqm:
	default:
		errs = append(errs, NewFilterError("sort", "must be one of distance, date, price, sqm"))
	}
	switch f.Order {
	case "", OrderAsc, OrderDesc:
	default:
		errs = append(errs, NewFilterError("order", "must be asc or desc"))
	}
	return errs.errOrNil()
}
