// Package repository holds the comparable store and comp set persistence
// adapters: an in-memory treap and PostgreSQL via pgx.
package repository

import (
	"context"

	"github.com/okian/comparo/internal/domain/model"
	"github.com/okian/comparo/internal/domain/types"
)

// Store provides access to validated comparables.
type Store interface {
	// QueryComparables returns the page of latest-version comparables
	// matching filters. subject may be nil; when set it provides the origin
	// of distance sorting and of a radius given without a center.
	QueryComparables(ctx context.Context, filters model.SearchFilters, subject *model.SubjectRef) (types.Page[model.Comparable], error)

	// SelectComparables returns every latest-version comparable matching
	// filters in one read, sorted as QueryComparables would. Page and
	// PageSize are ignored.
	SelectComparables(ctx context.Context, filters model.SearchFilters, subject *model.SubjectRef) ([]model.Comparable, error)

	// GetComparable returns any version by id, or ErrComparableNotFound.
	GetComparable(ctx context.Context, id string) (model.Comparable, error)

	// ImportComparable validates rec and stores it. Re-importing a known ref
	// stores the next version under a new id.
	ImportComparable(ctx context.Context, rec model.ComparableRecord) (model.Comparable, error)

	// Count returns the number of latest-version comparables.
	Count(ctx context.Context) int
}
