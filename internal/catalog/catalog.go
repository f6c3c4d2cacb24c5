// Package catalog is the relational source of truth (C4): pools, arms,
// experiments and feature gates, backed by postgres via pgx. Every
// experiment write and gate-config upsert publishes a denormalized
// ExperimentSnapshot to the KV store so the selector and trainer never
// touch postgres on the hot path; pool and arm writes do not republish.
// Rewritten off the previous service's SQLAlchemy ORM mapping onto
// direct SQL over pgx/pgxpool (no ORM here by design -- hand-written
// queries only).
package catalog

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/optiq-io/qbrix/internal/domain"
	"github.com/optiq-io/qbrix/internal/policy"
	"github.com/optiq-io/qbrix/internal/qerrors"
)

const schema = `
CREATE TABLE IF NOT EXISTS pools (
	id         text PRIMARY KEY,
	name       text NOT NULL UNIQUE,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS arms (
	id         text PRIMARY KEY,
	pool_id    text NOT NULL REFERENCES pools(id) ON DELETE CASCADE,
	name       text NOT NULL,
	index      int  NOT NULL,
	is_active  boolean NOT NULL DEFAULT true,
	metadata   jsonb NOT NULL DEFAULT '{}',
	created_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS experiments (
	id              text PRIMARY KEY,
	name            text NOT NULL UNIQUE,
	pool_id         text NOT NULL REFERENCES pools(id),
	policy          text NOT NULL,
	policy_params   jsonb NOT NULL DEFAULT '{}',
	enabled         boolean NOT NULL DEFAULT true,
	created_at      timestamptz NOT NULL DEFAULT now(),
	updated_at      timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS feature_gates (
	id                 text PRIMARY KEY,
	experiment_id      text NOT NULL UNIQUE REFERENCES experiments(id) ON DELETE CASCADE,
	enabled            boolean NOT NULL DEFAULT true,
	rollout_percentage int NOT NULL DEFAULT 100,
	default_arm_id     text REFERENCES arms(id),
	schedule_start     timestamptz,
	schedule_end       timestamptz,
	active_hours_start bigint,
	active_hours_end   bigint,
	active_hours_tz    text,
	rules              jsonb NOT NULL DEFAULT '[]',
	version            int NOT NULL DEFAULT 1,
	created_at         timestamptz NOT NULL DEFAULT now(),
	updated_at         timestamptz NOT NULL DEFAULT now()
);
`

// SnapshotPublisher is the narrow slice of paramstore.SnapshotStore the
// catalog needs to publish a fresh snapshot after every write.
type SnapshotPublisher interface {
	SetSnapshot(ctx context.Context, snap domain.ExperimentSnapshot) error
	DeleteSnapshot(ctx context.Context, experimentID string) error
}

// Catalog is the postgres-backed relational store.
type Catalog struct {
	pool      *pgxpool.Pool
	snapshots SnapshotPublisher
	policies  *policy.Registry
}

func New(ctx context.Context, dsn string, snapshots SnapshotPublisher, policies *policy.Registry) (*Catalog, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, qerrors.Unavailable("catalog connect: " + err.Error())
	}
	return &Catalog{pool: pool, snapshots: snapshots, policies: policies}, nil
}

// Migrate creates the schema if it does not already exist.
func (c *Catalog) Migrate(ctx context.Context) error {
	if _, err := c.pool.Exec(ctx, schema); err != nil {
		return qerrors.Internal("catalog migrate: " + err.Error())
	}
	return nil
}

func (c *Catalog) Close() { c.pool.Close() }

// withTx runs fn inside a transaction, committing on success and rolling
// back on any error, mirroring session.py's get_session contextmanager.
func (c *Catalog) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return qerrors.Unavailable("catalog begin tx: " + err.Error())
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return qerrors.Unavailable("catalog commit: " + err.Error())
	}
	return nil
}

func wrapNotFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return qerrors.NotFound(what)
	}
	return qerrors.Unavailable(what + ": " + err.Error())
}

// foreignKeyViolation reports whether err is postgres error code 23503
// (foreign_key_violation), distinguishing a dangling reference from the
// 23505 (unique_violation) case that legitimately maps to Conflict.
func foreignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
