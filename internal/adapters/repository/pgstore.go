package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/comparo/internal/domain/candidate"
	"github.com/okian/comparo/internal/domain/geo"
	"github.com/okian/comparo/internal/domain/model"
	"github.com/okian/comparo/internal/domain/types"
	"github.com/okian/comparo/pkg/logger"
	"github.com/okian/comparo/pkg/metrics"
)

const comparableColumns = `id, ref, version, sold_on, lat, lng, property_type, price, sqm,
	rooms, baths, floor, elevator, terrace_sqm, parking, condition, building_age_years,
	source, address, photos, imported_at`

// PostgresStore is a Store backed by the comparables table.
type PostgresStore struct {
	pool *pgxpool.Pool
	settings
}

// NewPostgresStore wraps an open pool. Run Migrate first.
func NewPostgresStore(pool *pgxpool.Pool, opts ...Option) *PostgresStore {
	s := &PostgresStore{pool: pool, settings: defaultSettings()}
	for _, opt := range opts {
		opt(&s.settings)
	}
	return s
}

// ImportComparable stores rec. Versions of one ref are serialized with a
// transaction scoped advisory lock.
func (s *PostgresStore) ImportComparable(ctx context.Context, rec model.ComparableRecord) (model.Comparable, error) {
	const op = "repository.PostgresStore.ImportComparable"
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryImportLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if err := rec.Validate(); err != nil {
		return model.Comparable{}, fmt.Errorf("%s: %w", op, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Comparable{}, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	version := 1
	if rec.Ref != nil {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, *rec.Ref); err != nil {
			return model.Comparable{}, fmt.Errorf("%s: lock: %w", op, err)
		}
		var prev int
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(version), 0) FROM comparables WHERE ref = $1`, *rec.Ref).Scan(&prev); err != nil {
			return model.Comparable{}, fmt.Errorf("%s: current version: %w", op, err)
		}
		version = prev + 1
		if _, err := tx.Exec(ctx,
			`UPDATE comparables SET is_latest = FALSE WHERE ref = $1 AND is_latest`, *rec.Ref); err != nil {
			return model.Comparable{}, fmt.Errorf("%s: retire previous: %w", op, err)
		}
	}

	c := rec.ToComparable(s.newID(), version, s.now())
	var cond *string
	if c.Condition != nil {
		v := string(*c.Condition)
		cond = &v
	}
	photos := c.Photos
	if photos == nil {
		photos = []string{}
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO comparables (id, ref, version, is_latest, sold_on, lat, lng, geohash, property_type,
			price, sqm, rooms, baths, floor, elevator, terrace_sqm, parking, condition,
			building_age_years, source, address, photos, imported_at)
		VALUES ($1, $2, $3, TRUE, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22)`,
		c.ID, c.Ref, c.Version, c.Date, c.Lat, c.Lng, geo.Cell(c.Point()), string(c.Type),
		c.Price, c.Sqm, c.Rooms, c.Baths, c.Floor, c.Elevator, c.TerraceSqm, c.Parking, cond,
		c.BuildingAgeYears, string(c.Source), c.Address, photos, c.ImportedAt)
	if err != nil {
		return model.Comparable{}, fmt.Errorf("%s: insert: %w", op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Comparable{}, fmt.Errorf("%s: commit: %w", op, err)
	}
	return c, nil
}

// GetComparable returns any stored version by id.
func (s *PostgresStore) GetComparable(ctx context.Context, id string) (model.Comparable, error) {
	const op = "repository.PostgresStore.GetComparable"
	row := s.pool.QueryRow(ctx, `SELECT `+comparableColumns+` FROM comparables WHERE id = $1`, id)
	c, err := scanComparable(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Comparable{}, fmt.Errorf("%w: %s", ErrComparableNotFound, id)
	}
	if err != nil {
		return model.Comparable{}, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

// QueryComparables pushes the indexable predicates down to SQL and lets the
// plan finish filtering, sorting and paging.
func (s *PostgresStore) QueryComparables(ctx context.Context, filters model.SearchFilters, subject *model.SubjectRef) (types.Page[model.Comparable], error) {
	const op = "repository.PostgresStore.QueryComparables"
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	plan, err := candidate.NewPlan(filters, subject)
	if err != nil {
		return types.Page[model.Comparable]{}, fmt.Errorf("%s: %w", op, err)
	}
	pool, err := s.fetch(ctx, plan)
	if err != nil {
		return types.Page[model.Comparable]{}, fmt.Errorf("%s: %w", op, err)
	}
	return plan.Apply(pool), nil
}

// SelectComparables reads the pushed-down rows once and returns every match.
func (s *PostgresStore) SelectComparables(ctx context.Context, filters model.SearchFilters, subject *model.SubjectRef) ([]model.Comparable, error) {
	const op = "repository.PostgresStore.SelectComparables"
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	filters.Page, filters.PageSize = 0, 0
	plan, err := candidate.NewPlan(filters, subject)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	pool, err := s.fetch(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return plan.Select(pool), nil
}

// fetch runs the SQL half of plan.
func (s *PostgresStore) fetch(ctx context.Context, plan *candidate.Plan) ([]model.Comparable, error) {
	qb := pushdown(plan)
	rows, err := s.pool.Query(ctx, `SELECT `+comparableColumns+` FROM comparables `+qb.where(), qb.args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var pool []model.Comparable
	for rows.Next() {
		c, err := scanComparable(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		pool = append(pool, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return pool, nil
}

// Count returns the number of latest-version comparables, or 0 on error.
func (s *PostgresStore) Count(ctx context.Context) int {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM comparables WHERE is_latest`).Scan(&n); err != nil {
		logger.Named("repository").Error(ctx, "count comparables", logger.Error(err))
		return 0
	}
	return n
}

func scanComparable(row pgx.Row) (model.Comparable, error) {
	var (
		c      model.Comparable
		ptype  string
		cond   *string
		source string
	)
	err := row.Scan(&c.ID, &c.Ref, &c.Version, &c.Date, &c.Lat, &c.Lng, &ptype, &c.Price, &c.Sqm,
		&c.Rooms, &c.Baths, &c.Floor, &c.Elevator, &c.TerraceSqm, &c.Parking, &cond, &c.BuildingAgeYears,
		&source, &c.Address, &c.Photos, &c.ImportedAt)
	if err != nil {
		return model.Comparable{}, err
	}
	c.Type = model.PropertyType(ptype)
	c.Source = model.Source(source)
	if cond != nil {
		v := model.Condition(*cond)
		c.Condition = &v
	}
	if len(c.Photos) == 0 {
		c.Photos = nil
	}
	c.Date = c.Date.UTC()
	c.ImportedAt = c.ImportedAt.UTC()
	return c, nil
}
