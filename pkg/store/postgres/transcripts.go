package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/palaverhq/palaver/pkg/types"
)

// SaveTranscript inserts a transcript, or replaces it when a row with the
// same id already exists. The day column is derived from OccurredAt in the
// transcript's own timezone so day grouping matches the in-memory store.
func (s *Store) SaveTranscript(ctx context.Context, t types.Transcript) error {
	const q = `
		INSERT INTO transcripts (id, owner_ref, day, occurred_at, text)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
		    owner_ref   = EXCLUDED.owner_ref,
		    day         = EXCLUDED.day,
		    occurred_at = EXCLUDED.occurred_at,
		    text        = EXCLUDED.text`

	_, err := s.pool.Exec(ctx, q,
		t.ID,
		t.OwnerRef,
		t.OccurredAt.Format(types.DateFormat),
		t.OccurredAt,
		t.Text,
	)
	if err != nil {
		return fmt.Errorf("postgres store: save transcript: %w", err)
	}
	return nil
}

// ListByDate implements store.TranscriptStore.
func (s *Store) ListByDate(ctx context.Context, ownerRef, date string) ([]types.Transcript, error) {
	const q = `
		SELECT id, owner_ref, occurred_at, text
		FROM   transcripts
		WHERE  owner_ref = $1
		  AND  day       = $2
		ORDER  BY occurred_at`

	rows, err := s.pool.Query(ctx, q, ownerRef, date)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list by date: %w", err)
	}
	return collectTranscripts(rows)
}

// ListByIDs implements store.TranscriptStore. Unknown ids are skipped.
func (s *Store) ListByIDs(ctx context.Context, ownerRef string, ids []string) ([]types.Transcript, error) {
	if len(ids) == 0 {
		return []types.Transcript{}, nil
	}

	const q = `
		SELECT id, owner_ref, occurred_at, text
		FROM   transcripts
		WHERE  owner_ref = $1
		  AND  id        = ANY($2)
		ORDER  BY occurred_at`

	rows, err := s.pool.Query(ctx, q, ownerRef, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list by ids: %w", err)
	}
	return collectTranscripts(rows)
}

// OwnersOnDate implements store.TranscriptStore.
func (s *Store) OwnersOnDate(ctx context.Context, date string) ([]string, error) {
	const q = `
		SELECT DISTINCT owner_ref
		FROM   transcripts
		WHERE  day = $1
		ORDER  BY owner_ref`

	rows, err := s.pool.Query(ctx, q, date)
	if err != nil {
		return nil, fmt.Errorf("postgres store: owners on date: %w", err)
	}
	owners, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan owners: %w", err)
	}
	if owners == nil {
		owners = []string{}
	}
	return owners, nil
}

// collectTranscripts scans pgx rows into a slice of Transcript values.
func collectTranscripts(rows pgx.Rows) ([]types.Transcript, error) {
	ts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Transcript, error) {
		var t types.Transcript
		if err := row.Scan(&t.ID, &t.OwnerRef, &t.OccurredAt, &t.Text); err != nil {
			return types.Transcript{}, err
		}
		return t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan transcripts: %w", err)
	}
	if ts == nil {
		ts = []types.Transcript{}
	}
	return ts, nil
}
