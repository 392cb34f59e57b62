// Package postgres provides a PostgreSQL-backed implementation of the palaver
// store interfaces (transcripts, profiles, cluster sets).
//
// All interfaces share a single [pgxpool.Pool] connection pool. [Migrate] runs
// automatically on construction and is idempotent, so no external migration
// tooling is required.
//
// Usage:
//
//	st, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer st.Close()
//
//	ts, _ := st.ListByDate(ctx, "owner-1", "2026-03-14")
//	set, _ := st.Get(ctx, "owner-1", "2026-03-14")
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────────
// DDL — transcripts
// ─────────────────────────────────────────────────────────────────────────────

// The day column is derived from occurred_at by the writer (Go side) so that
// calendar-day grouping is identical across store backends regardless of the
// database session timezone.
const ddlTranscripts = `
CREATE TABLE IF NOT EXISTS transcripts (
    id           TEXT         PRIMARY KEY,
    owner_ref    TEXT         NOT NULL,
    day          TEXT         NOT NULL,
    occurred_at  TIMESTAMPTZ  NOT NULL,
    text         TEXT         NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_transcripts_owner_day
    ON transcripts (owner_ref, day);

CREATE INDEX IF NOT EXISTS idx_transcripts_day
    ON transcripts (day);
`

// ─────────────────────────────────────────────────────────────────────────────
// DDL — profiles (about-me text + known entities)
// ─────────────────────────────────────────────────────────────────────────────

const ddlProfiles = `
CREATE TABLE IF NOT EXISTS profiles (
    owner_ref   TEXT         PRIMARY KEY,
    about_me    TEXT         NOT NULL DEFAULT '',
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS entities (
    id            BIGSERIAL    PRIMARY KEY,
    owner_ref     TEXT         NOT NULL,
    name          TEXT         NOT NULL,
    type          TEXT         NOT NULL DEFAULT '',
    relationship  TEXT         NOT NULL DEFAULT '',
    notes         TEXT         NOT NULL DEFAULT '',
    context       TEXT         NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_entities_owner
    ON entities (owner_ref);
`

// ─────────────────────────────────────────────────────────────────────────────
// DDL — cluster sets (one row per owner per day, clusters as JSONB)
// ─────────────────────────────────────────────────────────────────────────────

const ddlClusterSets = `
CREATE TABLE IF NOT EXISTS cluster_sets (
    owner_ref            TEXT         NOT NULL,
    day                  TEXT         NOT NULL,
    clusters             JSONB        NOT NULL DEFAULT '[]',
    transcription_count  INTEGER      NOT NULL DEFAULT 0,
    updated_at           TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (owner_ref, day)
);
`

// Migrate creates or ensures all required database tables and indexes exist.
// It is idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS)
// and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		ddlTranscripts,
		ddlProfiles,
		ddlClusterSets,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
