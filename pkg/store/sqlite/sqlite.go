// Package sqlite provides a SQLite-backed implementation of the palaver store
// interfaces, intended for single-user local deployments where running
// PostgreSQL is overkill.
//
// It uses the pure-Go modernc.org/sqlite driver through database/sql, so no
// cgo is required. The schema is created on first open and migrations are
// idempotent.
//
// Timestamps are stored as RFC 3339 text. The day column is derived from
// occurred_at by the writer so calendar-day grouping matches the other store
// backends.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/palaverhq/palaver/pkg/store"
	"github.com/palaverhq/palaver/pkg/types"
)

// Compile-time interface checks.
var (
	_ store.TranscriptStore = (*Store)(nil)
	_ store.ProfileStore    = (*Store)(nil)
	_ store.ClusterStore    = (*Store)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS transcripts (
    id           TEXT PRIMARY KEY,
    owner_ref    TEXT NOT NULL,
    day          TEXT NOT NULL,
    occurred_at  TEXT NOT NULL,
    text         TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_transcripts_owner_day
    ON transcripts (owner_ref, day);

CREATE TABLE IF NOT EXISTS profiles (
    owner_ref   TEXT PRIMARY KEY,
    about_me    TEXT NOT NULL DEFAULT '',
    updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_ref     TEXT NOT NULL,
    name          TEXT NOT NULL,
    type          TEXT NOT NULL DEFAULT '',
    relationship  TEXT NOT NULL DEFAULT '',
    notes         TEXT NOT NULL DEFAULT '',
    context       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_entities_owner
    ON entities (owner_ref);

CREATE TABLE IF NOT EXISTS cluster_sets (
    owner_ref            TEXT NOT NULL,
    day                  TEXT NOT NULL,
    clusters             TEXT NOT NULL DEFAULT '[]',
    transcription_count  INTEGER NOT NULL DEFAULT 0,
    updated_at           TEXT NOT NULL,
    PRIMARY KEY (owner_ref, day)
);
`

// Store is the SQLite-backed palaver store. All operations are safe for
// concurrent use; SQLite serialises writes internally.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the SQLite database at path and ensures the
// schema exists.
func NewStore(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: ping: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─────────────────────────────────────────────────────────────────────────────
// TranscriptStore
// ─────────────────────────────────────────────────────────────────────────────

// SaveTranscript inserts a transcript, or replaces it when a row with the
// same id already exists.
func (s *Store) SaveTranscript(ctx context.Context, t types.Transcript) error {
	const q = `
		INSERT INTO transcripts (id, owner_ref, day, occurred_at, text)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
		    owner_ref   = excluded.owner_ref,
		    day         = excluded.day,
		    occurred_at = excluded.occurred_at,
		    text        = excluded.text`

	_, err := s.db.ExecContext(ctx, q,
		t.ID,
		t.OwnerRef,
		t.OccurredAt.Format(types.DateFormat),
		t.OccurredAt.Format(time.RFC3339Nano),
		t.Text,
	)
	if err != nil {
		return fmt.Errorf("sqlite store: save transcript: %w", err)
	}
	return nil
}

// ListByDate implements store.TranscriptStore.
func (s *Store) ListByDate(ctx context.Context, ownerRef, date string) ([]types.Transcript, error) {
	const q = `
		SELECT id, owner_ref, occurred_at, text
		FROM   transcripts
		WHERE  owner_ref = ? AND day = ?
		ORDER  BY occurred_at`

	rows, err := s.db.QueryContext(ctx, q, ownerRef, date)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list by date: %w", err)
	}
	defer rows.Close()
	return scanTranscripts(rows)
}

// ListByIDs implements store.TranscriptStore. Unknown ids are skipped.
func (s *Store) ListByIDs(ctx context.Context, ownerRef string, ids []string) ([]types.Transcript, error) {
	if len(ids) == 0 {
		return []types.Transcript{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	q := `
		SELECT id, owner_ref, occurred_at, text
		FROM   transcripts
		WHERE  owner_ref = ? AND id IN (` + placeholders + `)
		ORDER  BY occurred_at`

	args := make([]any, 0, len(ids)+1)
	args = append(args, ownerRef)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list by ids: %w", err)
	}
	defer rows.Close()
	return scanTranscripts(rows)
}

// OwnersOnDate implements store.TranscriptStore.
func (s *Store) OwnersOnDate(ctx context.Context, date string) ([]string, error) {
	const q = `
		SELECT DISTINCT owner_ref
		FROM   transcripts
		WHERE  day = ?
		ORDER  BY owner_ref`

	rows, err := s.db.QueryContext(ctx, q, date)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: owners on date: %w", err)
	}
	defer rows.Close()

	owners := []string{}
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("sqlite store: scan owner: %w", err)
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}

// scanTranscripts reads all rows into a slice of Transcript values.
func scanTranscripts(rows *sql.Rows) ([]types.Transcript, error) {
	ts := []types.Transcript{}
	for rows.Next() {
		var (
			t          types.Transcript
			occurredAt string
		)
		if err := rows.Scan(&t.ID, &t.OwnerRef, &occurredAt, &t.Text); err != nil {
			return nil, fmt.Errorf("sqlite store: scan transcript: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, occurredAt)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: parse occurred_at: %w", err)
		}
		t.OccurredAt = parsed
		ts = append(ts, t)
	}
	return ts, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// ProfileStore
// ─────────────────────────────────────────────────────────────────────────────

// SaveAboutMe upserts the owner's free-text self-description.
func (s *Store) SaveAboutMe(ctx context.Context, ownerRef, text string) error {
	const q = `
		INSERT INTO profiles (owner_ref, about_me, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (owner_ref) DO UPDATE SET
		    about_me   = excluded.about_me,
		    updated_at = excluded.updated_at`

	now := time.Now().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx, q, ownerRef, text, now); err != nil {
		return fmt.Errorf("sqlite store: save about me: %w", err)
	}
	return nil
}

// SaveEntity appends an entity to the owner's profile.
func (s *Store) SaveEntity(ctx context.Context, ownerRef string, e types.Entity) error {
	const q = `
		INSERT INTO entities (owner_ref, name, type, relationship, notes, context)
		VALUES (?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, q, ownerRef, e.Name, e.Type, e.Relationship, e.Notes, e.Context); err != nil {
		return fmt.Errorf("sqlite store: save entity: %w", err)
	}
	return nil
}

// AboutMe implements store.ProfileStore. Returns "" when the owner has no
// profile row.
func (s *Store) AboutMe(ctx context.Context, ownerRef string) (string, error) {
	const q = `SELECT about_me FROM profiles WHERE owner_ref = ?`

	var text string
	err := s.db.QueryRowContext(ctx, q, ownerRef).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("sqlite store: about me: %w", err)
	}
	return text, nil
}

// Entities implements store.ProfileStore.
func (s *Store) Entities(ctx context.Context, ownerRef string) ([]types.Entity, error) {
	const q = `
		SELECT name, type, relationship, notes, context
		FROM   entities
		WHERE  owner_ref = ?
		ORDER  BY name`

	rows, err := s.db.QueryContext(ctx, q, ownerRef)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: entities: %w", err)
	}
	defer rows.Close()

	entities := []types.Entity{}
	for rows.Next() {
		var e types.Entity
		if err := rows.Scan(&e.Name, &e.Type, &e.Relationship, &e.Notes, &e.Context); err != nil {
			return nil, fmt.Errorf("sqlite store: scan entity: %w", err)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// ClusterStore
// ─────────────────────────────────────────────────────────────────────────────

// Put implements store.ClusterStore. The whole set is written in one upsert
// keyed (owner_ref, day); there is never a partially replaced record.
func (s *Store) Put(ctx context.Context, set *types.ClusterSet) error {
	clusters, err := json.Marshal(set.Clusters)
	if err != nil {
		return fmt.Errorf("sqlite store: marshal clusters: %w", err)
	}

	set.UpdatedAt = time.Now()

	const q = `
		INSERT INTO cluster_sets (owner_ref, day, clusters, transcription_count, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (owner_ref, day) DO UPDATE SET
		    clusters            = excluded.clusters,
		    transcription_count = excluded.transcription_count,
		    updated_at          = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, q,
		set.OwnerRef,
		set.Date,
		string(clusters),
		set.TranscriptionCount,
		set.UpdatedAt.Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("sqlite store: put cluster set: %w", err)
	}
	return nil
}

// Get implements store.ClusterStore. Returns (nil, nil) when no set has been
// written for (ownerRef, date).
func (s *Store) Get(ctx context.Context, ownerRef, date string) (*types.ClusterSet, error) {
	const q = `
		SELECT clusters, transcription_count, updated_at
		FROM   cluster_sets
		WHERE  owner_ref = ? AND day = ?`

	var (
		raw     string
		count   int
		updated string
	)
	err := s.db.QueryRowContext(ctx, q, ownerRef, date).Scan(&raw, &count, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite store: get cluster set: %w", err)
	}

	set := &types.ClusterSet{
		OwnerRef:           ownerRef,
		Date:               date,
		TranscriptionCount: count,
	}
	if err := json.Unmarshal([]byte(raw), &set.Clusters); err != nil {
		return nil, fmt.Errorf("sqlite store: unmarshal clusters: %w", err)
	}
	set.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: parse updated_at: %w", err)
	}
	return set, nil
}
