package repository

import (
	"fmt"
	"strings"

	"github.com/okian/comparo/internal/domain/candidate"
)

// queryBuilder accumulates WHERE conditions with positional arguments.
type queryBuilder struct {
	conditions []string
	args       []any
}

func newQueryBuilder() *queryBuilder {
	return &queryBuilder{conditions: []string{"is_latest"}}
}

// add appends a condition; each %d in cond is replaced by the next placeholder.
func (qb *queryBuilder) add(cond string, args ...any) {
	idx := make([]any, len(args))
	for i := range args {
		idx[i] = len(qb.args) + i + 1
	}
	qb.conditions = append(qb.conditions, fmt.Sprintf(cond, idx...))
	qb.args = append(qb.args, args...)
}

func addRange[T int | float64](qb *queryBuilder, column string, lo, hi *T) {
	if lo != nil {
		qb.add(column+" >= $%d", *lo)
	}
	if hi != nil {
		qb.add(column+" <= $%d", *hi)
	}
}

func (qb *queryBuilder) where() string {
	return "WHERE " + strings.Join(qb.conditions, " AND ")
}

// pushdown translates the SQL-friendly part of a plan. The result is a
// superset of the exact match; the plan is applied again in Go.
func pushdown(plan *candidate.Plan) *queryBuilder {
	qb := newQueryBuilder()
	f := plan.Filters()

	if cells := plan.Cells(); cells != nil {
		qb.add("geohash = ANY($%d)", cells)
	}
	if box, ok := plan.Box(); ok {
		qb.add("lat BETWEEN $%d AND $%d", box.MinLat, box.MaxLat)
		qb.add("lng BETWEEN $%d AND $%d", box.MinLng, box.MaxLng)
	}
	if f.DateFrom != nil {
		qb.add("sold_on >= $%d", *f.DateFrom)
	}
	if f.DateTo != nil {
		qb.add("sold_on <= $%d", *f.DateTo)
	}
	if f.Type != nil {
		qb.add("property_type = $%d", string(*f.Type))
	}
	addRange(qb, "sqm", f.SqmMin, f.SqmMax)
	addRange(qb, "price", f.PriceMin, f.PriceMax)
	addRange(qb, "rooms", f.RoomsMin, f.RoomsMax)
	addRange(qb, "baths", f.BathsMin, f.BathsMax)
	addRange(qb, "floor", f.FloorMin, f.FloorMax)
	if f.Elevator != nil {
		qb.add("elevator = $%d", *f.Elevator)
	}
	if f.Parking != nil {
		qb.add("parking = $%d", *f.Parking)
	}
	if f.Condition != nil {
		qb.add("condition = $%d", string(*f.Condition))
	}
	if f.Source != nil {
		qb.add("source = $%d", string(*f.Source))
	}
	return qb
}
