package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/palaverhq/palaver/pkg/types"
)

// Put implements store.ClusterStore. The whole set is written in one upsert
// keyed (owner_ref, day); there is never a partially replaced record.
func (s *Store) Put(ctx context.Context, set *types.ClusterSet) error {
	clusters, err := json.Marshal(set.Clusters)
	if err != nil {
		return fmt.Errorf("postgres store: marshal clusters: %w", err)
	}

	set.UpdatedAt = time.Now()

	const q = `
		INSERT INTO cluster_sets (owner_ref, day, clusters, transcription_count, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_ref, day) DO UPDATE SET
		    clusters            = EXCLUDED.clusters,
		    transcription_count = EXCLUDED.transcription_count,
		    updated_at          = EXCLUDED.updated_at`

	if _, err := s.pool.Exec(ctx, q,
		set.OwnerRef,
		set.Date,
		clusters,
		set.TranscriptionCount,
		set.UpdatedAt,
	); err != nil {
		return fmt.Errorf("postgres store: put cluster set: %w", err)
	}
	return nil
}

// Get implements store.ClusterStore. Returns (nil, nil) when no set has been
// written for (ownerRef, date).
func (s *Store) Get(ctx context.Context, ownerRef, date string) (*types.ClusterSet, error) {
	const q = `
		SELECT clusters, transcription_count, updated_at
		FROM   cluster_sets
		WHERE  owner_ref = $1
		  AND  day       = $2`

	var (
		raw     []byte
		count   int
		updated time.Time
	)
	err := s.pool.QueryRow(ctx, q, ownerRef, date).Scan(&raw, &count, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: get cluster set: %w", err)
	}

	set := &types.ClusterSet{
		OwnerRef:           ownerRef,
		Date:               date,
		TranscriptionCount: count,
		UpdatedAt:          updated,
	}
	if err := json.Unmarshal(raw, &set.Clusters); err != nil {
		return nil, fmt.Errorf("postgres store: unmarshal clusters: %w", err)
	}
	return set, nil
}
