package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/palaverhq/palaver/pkg/types"
)

// SaveAboutMe upserts the owner's free-text self-description.
func (s *Store) SaveAboutMe(ctx context.Context, ownerRef, text string) error {
	const q = `
		INSERT INTO profiles (owner_ref, about_me, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (owner_ref) DO UPDATE SET
		    about_me   = EXCLUDED.about_me,
		    updated_at = now()`

	if _, err := s.pool.Exec(ctx, q, ownerRef, text); err != nil {
		return fmt.Errorf("postgres store: save about me: %w", err)
	}
	return nil
}

// SaveEntity appends an entity to the owner's profile.
func (s *Store) SaveEntity(ctx context.Context, ownerRef string, e types.Entity) error {
	const q = `
		INSERT INTO entities (owner_ref, name, type, relationship, notes, context)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := s.pool.Exec(ctx, q, ownerRef, e.Name, e.Type, e.Relationship, e.Notes, e.Context); err != nil {
		return fmt.Errorf("postgres store: save entity: %w", err)
	}
	return nil
}

// AboutMe implements store.ProfileStore. Returns "" when the owner has no
// profile row.
func (s *Store) AboutMe(ctx context.Context, ownerRef string) (string, error) {
	const q = `SELECT about_me FROM profiles WHERE owner_ref = $1`

	var text string
	err := s.pool.QueryRow(ctx, q, ownerRef).Scan(&text)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("postgres store: about me: %w", err)
	}
	return text, nil
}

// Entities implements store.ProfileStore.
func (s *Store) Entities(ctx context.Context, ownerRef string) ([]types.Entity, error) {
	const q = `
		SELECT name, type, relationship, notes, context
		FROM   entities
		WHERE  owner_ref = $1
		ORDER  BY name`

	rows, err := s.pool.Query(ctx, q, ownerRef)
	if err != nil {
		return nil, fmt.Errorf("postgres store: entities: %w", err)
	}

	entities, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Entity, error) {
		var e types.Entity
		if err := row.Scan(&e.Name, &e.Type, &e.Relationship, &e.Notes, &e.Context); err != nil {
			return types.Entity{}, err
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan entities: %w", err)
	}
	if entities == nil {
		entities = []types.Entity{}
	}
	return entities, nil
}
