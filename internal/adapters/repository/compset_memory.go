package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/comparo/internal/domain/model"
)

// MemoryCompSetRepository keeps comp sets in a map guarded by a mutex.
type MemoryCompSetRepository struct {
	mu   sync.Mutex
	sets map[string]model.CompSet
}

// NewMemoryCompSetRepository returns an empty repository.
func NewMemoryCompSetRepository() *MemoryCompSetRepository {
	return &MemoryCompSetRepository{sets: make(map[string]model.CompSet)}
}

func clone(cs model.CompSet) model.CompSet {
	cs.CompIDs = append([]string(nil), cs.CompIDs...)
	return cs
}

// sameClient reports whether both sets belong to the same client; sets
// without a client share the global scope.
func sameClient(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// clearDefault drops the default flag from the other sets in cs's client
// scope. Caller holds mu.
func (r *MemoryCompSetRepository) clearDefault(cs model.CompSet) {
	if !cs.IsDefaultForAvm {
		return
	}
	for id, other := range r.sets {
		if id == cs.ID || !other.IsDefaultForAvm || !sameClient(other.Client, cs.Client) {
			continue
		}
		other.IsDefaultForAvm = false
		other.Version++
		other.UpdatedAt = cs.UpdatedAt
		r.sets[id] = other
	}
}

// Create stores cs as given.
func (r *MemoryCompSetRepository) Create(ctx context.Context, cs model.CompSet) (model.CompSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sets[cs.ID]; exists {
		return model.CompSet{}, fmt.Errorf("comp set %s: %w", cs.ID, model.ErrConflict)
	}
	r.clearDefault(cs)
	r.sets[cs.ID] = clone(cs)
	return clone(cs), nil
}

// Get returns the set with id.
func (r *MemoryCompSetRepository) Get(ctx context.Context, id string) (model.CompSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs, ok := r.sets[id]
	if !ok {
		return model.CompSet{}, fmt.Errorf("%w: %s", ErrCompSetNotFound, id)
	}
	return clone(cs), nil
}

// Update replaces the editable fields when the version matches.
func (r *MemoryCompSetRepository) Update(ctx context.Context, cs model.CompSet, expectedVersion int) (model.CompSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.sets[cs.ID]
	if !ok {
		return model.CompSet{}, fmt.Errorf("%w: %s", ErrCompSetNotFound, cs.ID)
	}
	if cur.Version != expectedVersion {
		return model.CompSet{}, fmt.Errorf("comp set %s at version %d, expected %d: %w",
			cs.ID, cur.Version, expectedVersion, model.ErrConflict)
	}
	cs.Version = cur.Version + 1
	cs.CreatedAt = cur.CreatedAt
	r.clearDefault(cs)
	r.sets[cs.ID] = clone(cs)
	return clone(cs), nil
}

// Delete removes the set when the version matches.
func (r *MemoryCompSetRepository) Delete(ctx context.Context, id string, expectedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.sets[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCompSetNotFound, id)
	}
	if cur.Version != expectedVersion {
		return fmt.Errorf("comp set %s at version %d, expected %d: %w", id, cur.Version, expectedVersion, model.ErrConflict)
	}
	delete(r.sets, id)
	return nil
}

// ListByClient returns the client's sets ordered by creation time then id.
func (r *MemoryCompSetRepository) ListByClient(ctx context.Context, client string) ([]model.CompSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.CompSet, 0)
	for _, cs := range r.sets {
		if cs.Client != nil && *cs.Client == client {
			out = append(out, clone(cs))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
