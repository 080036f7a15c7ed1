// Package compset manages named, curated collections of comparable ids.
// Writes use optimistic concurrency: every update names the version it read.
package compset

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/okian/comparo/internal/domain/model"
)

// Repository persists comp sets. Implementations must compare and bump
// Version atomically, and when a saved set is IsDefaultForAvm they must clear
// the flag on the client's other sets within the same write.
type Repository interface {
	Create(ctx context.Context, cs model.CompSet) (model.CompSet, error)
	Get(ctx context.Context, id string) (model.CompSet, error)
	Update(ctx context.Context, cs model.CompSet, expectedVersion int) (model.CompSet, error)
	Delete(ctx context.Context, id string, expectedVersion int) error
	ListByClient(ctx context.Context, client string) ([]model.CompSet, error)
}

// ComparableLookup resolves comparable ids against the store.
type ComparableLookup interface {
	GetComparable(ctx context.Context, id string) (model.Comparable, error)
}

// Input carries the user editable fields of a comp set.
type Input struct {
	Name            string
	CompIDs         []string
	Client          *string
	Notes           *string
	IsDefaultForAvm bool
}

// Manager validates and persists comp sets.
type Manager struct {
	repo  Repository
	comps ComparableLookup
	now   func() time.Time
	newID func() string
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator injects the id source.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) {
		if gen != nil {
			m.newID = gen
		}
	}
}

// NewManager returns a Manager over repo that checks ids against comps.
func NewManager(repo Repository, comps ComparableLookup, opts ...Option) *Manager {
	m := &Manager{
		repo:  repo,
		comps: comps,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (in Input) build() model.CompSet {
	ids := lo.Uniq(lo.Map(in.CompIDs, func(id string, _ int) string { return strings.TrimSpace(id) }))
	cs := model.CompSet{
		Name:            strings.TrimSpace(in.Name),
		CompIDs:         ids,
		Client:          in.Client,
		Notes:           in.Notes,
		IsDefaultForAvm: in.IsDefaultForAvm,
	}
	if cs.Client != nil {
		cs.Client = lo.ToPtr(strings.TrimSpace(*cs.Client))
	}
	return cs
}

// checkExists fails with a ValidationError listing every unknown id.
func (m *Manager) checkExists(ctx context.Context, ids []string) error {
	var missing []string
	for _, id := range ids {
		_, err := m.comps.GetComparable(ctx, id)
		switch {
		case err == nil:
		case errors.Is(err, model.ErrNotFound):
			missing = append(missing, id)
		default:
			return err
		}
	}
	if len(missing) > 0 {
		return model.NewValidationError("compIds", "unknown comparable ids: "+strings.Join(missing, ", "))
	}
	return nil
}

func (m *Manager) prepare(ctx context.Context, in Input) (model.CompSet, error) {
	cs := in.build()
	if err := cs.Validate(); err != nil {
		return model.CompSet{}, err
	}
	if err := m.checkExists(ctx, cs.CompIDs); err != nil {
		return model.CompSet{}, err
	}
	return cs, nil
}

// Create persists a new set at version 1.
func (m *Manager) Create(ctx context.Context, in Input) (model.CompSet, error) {
	const op = "compset.Create"
	cs, err := m.prepare(ctx, in)
	if err != nil {
		return model.CompSet{}, fmt.Errorf("%s: %w", op, err)
	}
	now := m.now().UTC()
	cs.ID = m.newID()
	cs.Version = 1
	cs.CreatedAt, cs.UpdatedAt = now, now

	saved, err := m.repo.Create(ctx, cs)
	if err != nil {
		return model.CompSet{}, fmt.Errorf("%s: %w", op, err)
	}
	return saved, nil
}

// Get returns the set with id.
func (m *Manager) Get(ctx context.Context, id string) (model.CompSet, error) {
	cs, err := m.repo.Get(ctx, id)
	if err != nil {
		return model.CompSet{}, fmt.Errorf("compset.Get: %w", err)
	}
	return cs, nil
}

// Update replaces the editable fields if the stored version still equals
// expectedVersion, otherwise it fails with ErrConflict.
func (m *Manager) Update(ctx context.Context, id string, expectedVersion int, in Input) (model.CompSet, error) {
	const op = "compset.Update"
	cs, err := m.prepare(ctx, in)
	if err != nil {
		return model.CompSet{}, fmt.Errorf("%s: %w", op, err)
	}
	cs.ID = id
	cs.UpdatedAt = m.now().UTC()

	saved, err := m.repo.Update(ctx, cs, expectedVersion)
	if err != nil {
		return model.CompSet{}, fmt.Errorf("%s: %w", op, err)
	}
	return saved, nil
}

// Delete removes the set if its version still equals expectedVersion.
func (m *Manager) Delete(ctx context.Context, id string, expectedVersion int) error {
	if err := m.repo.Delete(ctx, id, expectedVersion); err != nil {
		return fmt.Errorf("compset.Delete: %w", err)
	}
	return nil
}

// ListByClient returns the client's sets, oldest first.
func (m *Manager) ListByClient(ctx context.Context, client string) ([]model.CompSet, error) {
	client = strings.TrimSpace(client)
	if client == "" {
		return nil, fmt.Errorf("compset.ListByClient: %w", model.NewValidationError("client", "is required"))
	}
	sets, err := m.repo.ListByClient(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("compset.ListByClient: %w", err)
	}
	return sets, nil
}
