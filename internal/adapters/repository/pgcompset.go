package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/comparo/internal/domain/model"
)

const compSetColumns = `id, name, comp_ids, client, notes, is_default_for_avm, version, created_at, updated_at`

// PostgresCompSetRepository persists comp sets with optimistic concurrency
// on the version column.
type PostgresCompSetRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresCompSetRepository wraps an open pool. Run Migrate first.
func NewPostgresCompSetRepository(pool *pgxpool.Pool) *PostgresCompSetRepository {
	return &PostgresCompSetRepository{pool: pool}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// clearDefaultTx drops the default flag from the other sets in cs's client
// scope. A NULL client is its own (global) scope.
func clearDefaultTx(ctx context.Context, tx pgx.Tx, cs model.CompSet) error {
	if !cs.IsDefaultForAvm {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE compsets SET is_default_for_avm = FALSE, version = version + 1, updated_at = $3
		WHERE client IS NOT DISTINCT FROM $1 AND id <> $2 AND is_default_for_avm`,
		cs.Client, cs.ID, cs.UpdatedAt)
	return err
}

// Create inserts cs.
func (r *PostgresCompSetRepository) Create(ctx context.Context, cs model.CompSet) (model.CompSet, error) {
	const op = "repository.PostgresCompSetRepository.Create"
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.CompSet{}, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := clearDefaultTx(ctx, tx, cs); err != nil {
		return model.CompSet{}, fmt.Errorf("%s: clear default: %w", op, err)
	}
	_, err = tx.Exec(ctx, `INSERT INTO compsets (`+compSetColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		cs.ID, cs.Name, cs.CompIDs, cs.Client, cs.Notes, cs.IsDefaultForAvm, cs.Version, cs.CreatedAt, cs.UpdatedAt)
	if isUniqueViolation(err) {
		return model.CompSet{}, fmt.Errorf("comp set %s: %w", cs.ID, model.ErrConflict)
	}
	if err != nil {
		return model.CompSet{}, fmt.Errorf("%s: insert: %w", op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.CompSet{}, fmt.Errorf("%s: commit: %w", op, err)
	}
	return cs, nil
}

// Get returns the set with id.
func (r *PostgresCompSetRepository) Get(ctx context.Context, id string) (model.CompSet, error) {
	const op = "repository.PostgresCompSetRepository.Get"
	cs, err := scanCompSet(r.pool.QueryRow(ctx, `SELECT `+compSetColumns+` FROM compsets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CompSet{}, fmt.Errorf("%w: %s", ErrCompSetNotFound, id)
	}
	if err != nil {
		return model.CompSet{}, fmt.Errorf("%s: %w", op, err)
	}
	return cs, nil
}

// lockVersion reads the current version under a row lock.
func lockVersion(ctx context.Context, tx pgx.Tx, id string, expected int) error {
	var current int
	err := tx.QueryRow(ctx, `SELECT version FROM compsets WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrCompSetNotFound, id)
	}
	if err != nil {
		return err
	}
	if current != expected {
		return fmt.Errorf("comp set %s at version %d, expected %d: %w", id, current, expected, model.ErrConflict)
	}
	return nil
}

// Update replaces the editable fields when the version matches.
func (r *PostgresCompSetRepository) Update(ctx context.Context, cs model.CompSet, expectedVersion int) (model.CompSet, error) {
	const op = "repository.PostgresCompSetRepository.Update"
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.CompSet{}, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockVersion(ctx, tx, cs.ID, expectedVersion); err != nil {
		return model.CompSet{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := clearDefaultTx(ctx, tx, cs); err != nil {
		return model.CompSet{}, fmt.Errorf("%s: clear default: %w", op, err)
	}
	row := tx.QueryRow(ctx, `
		UPDATE compsets
		SET name = $2, comp_ids = $3, client = $4, notes = $5, is_default_for_avm = $6,
			version = version + 1, updated_at = $7
		WHERE id = $1
		RETURNING `+compSetColumns,
		cs.ID, cs.Name, cs.CompIDs, cs.Client, cs.Notes, cs.IsDefaultForAvm, cs.UpdatedAt)
	updated, err := scanCompSet(row)
	if err != nil {
		return model.CompSet{}, fmt.Errorf("%s: update: %w", op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.CompSet{}, fmt.Errorf("%s: commit: %w", op, err)
	}
	return updated, nil
}

// Delete removes the set when the version matches.
func (r *PostgresCompSetRepository) Delete(ctx context.Context, id string, expectedVersion int) error {
	const op = "repository.PostgresCompSetRepository.Delete"
	tag, err := r.pool.Exec(ctx, `DELETE FROM compsets WHERE id = $1 AND version = $2`, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	// Nothing deleted: tell a missing set from a stale version.
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("comp set %s not at version %d: %w", id, expectedVersion, model.ErrConflict)
}

// ListByClient returns the client's sets ordered by creation time then id.
func (r *PostgresCompSetRepository) ListByClient(ctx context.Context, client string) ([]model.CompSet, error) {
	const op = "repository.PostgresCompSetRepository.ListByClient"
	rows, err := r.pool.Query(ctx,
		`SELECT `+compSetColumns+` FROM compsets WHERE client = $1 ORDER BY created_at, id`, client)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]model.CompSet, 0)
	for rows.Next() {
		cs, err := scanCompSet(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return out, nil
}

func scanCompSet(row pgx.Row) (model.CompSet, error) {
	var cs model.CompSet
	err := row.Scan(&cs.ID, &cs.Name, &cs.CompIDs, &cs.Client, &cs.Notes, &cs.IsDefaultForAvm,
		&cs.Version, &cs.CreatedAt, &cs.UpdatedAt)
	if err != nil {
		return model.CompSet{}, err
	}
	cs.CreatedAt = cs.CreatedAt.UTC()
	cs.UpdatedAt = cs.UpdatedAt.UTC()
	return cs, nil
}
