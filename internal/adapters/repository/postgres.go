package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied idempotently by Migrate.
const schema = `
CREATE TABLE IF NOT EXISTS comparables (
	id                 TEXT PRIMARY KEY,
	ref                TEXT,
	version            INT NOT NULL,
	is_latest          BOOLEAN NOT NULL DEFAULT TRUE,
	sold_on            TIMESTAMPTZ NOT NULL,
	lat                DOUBLE PRECISION NOT NULL,
	lng                DOUBLE PRECISION NOT NULL,
	geohash            TEXT NOT NULL,
	property_type      TEXT NOT NULL DEFAULT '',
	price              DOUBLE PRECISION NOT NULL,
	sqm                DOUBLE PRECISION NOT NULL,
	rooms              INT,
	baths              INT,
	floor              INT,
	elevator           BOOLEAN,
	terrace_sqm        DOUBLE PRECISION,
	parking            BOOLEAN,
	condition          TEXT,
	building_age_years DOUBLE PRECISION,
	source             TEXT NOT NULL,
	address            TEXT,
	photos             TEXT[] NOT NULL DEFAULT '{}',
	imported_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS comparables_latest_geohash_idx ON comparables (geohash) WHERE is_latest;
CREATE INDEX IF NOT EXISTS comparables_latest_date_idx ON comparables (sold_on DESC, id) WHERE is_latest;
CREATE UNIQUE INDEX IF NOT EXISTS comparables_ref_version_idx ON comparables (ref, version) WHERE ref IS NOT NULL;

CREATE TABLE IF NOT EXISTS compsets (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	comp_ids           TEXT[] NOT NULL,
	client             TEXT,
	notes              TEXT,
	is_default_for_avm BOOLEAN NOT NULL DEFAULT FALSE,
	version            INT NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS compsets_client_idx ON compsets (client);
`

// NewPool parses databaseURL, connects and pings.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	const op = "repository.NewPool"
	if databaseURL == "" {
		return nil, fmt.Errorf("%s: %w", op, errors.New("database url is required"))
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s: parse config: %w", op, err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}
	return pool, nil
}

// Migrate creates the tables and indexes if missing.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("repository.Migrate: %w", err)
	}
	return nil
}
