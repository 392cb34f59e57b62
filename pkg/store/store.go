// Package store defines the persistence interfaces used by the clustering
// engine and its surrounding services.
//
// Three narrow interfaces cover the data the engine touches:
//
//   - [TranscriptStore]: read access to recorded transcripts, keyed by owner
//     and calendar day.
//   - [ProfileStore]: read access to the owner's profile (free-text "about me"
//     and known entities) used to personalise clustering prompts.
//   - [ClusterStore]: read/write access to persisted cluster sets, one record
//     per (owner, day).
//
// All interfaces are public so that external packages can supply alternative
// storage backends (PostgreSQL, SQLite, in-memory, …) without depending on
// palaver internals.
//
// Every implementation must be safe for concurrent use.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/palaverhq/palaver/pkg/types"
)

// ErrNotFound is returned by store operations that target a specific record
// (by id or key) when no such record exists. List-style operations return
// empty slices instead.
var ErrNotFound = errors.New("store: not found")

// TranscriptStore provides read access to recorded transcripts.
//
// Dates are calendar-day strings in types.DateFormat ("2006-01-02"),
// interpreted in the timezone the transcripts were recorded with.
type TranscriptStore interface {
	// ListByDate returns all transcripts belonging to ownerRef that occurred
	// on the given day, in no guaranteed order. An empty result is not an
	// error.
	ListByDate(ctx context.Context, ownerRef, date string) ([]types.Transcript, error)

	// ListByIDs returns the transcripts of ownerRef whose IDs appear in ids.
	// Unknown ids are silently skipped; the result may be shorter than ids.
	ListByIDs(ctx context.Context, ownerRef string, ids []string) ([]types.Transcript, error)

	// OwnersOnDate returns the distinct owner refs that have at least one
	// transcript on the given day. Used by the scheduler to decide whose
	// clusters to refresh.
	OwnersOnDate(ctx context.Context, date string) ([]string, error)
}

// ProfileStore provides read access to owner profile data.
type ProfileStore interface {
	// AboutMe returns the owner's free-text self-description, or "" when the
	// owner has not written one. Absence is not an error.
	AboutMe(ctx context.Context, ownerRef string) (string, error)

	// Entities returns the people, places and projects the owner has
	// registered. An empty result is not an error.
	Entities(ctx context.Context, ownerRef string) ([]types.Entity, error)
}

// ClusterStore persists cluster sets, one record per (owner, day).
type ClusterStore interface {
	// Put writes the whole cluster set for (set.OwnerRef, set.Date),
	// replacing any previous record for that key. Implementations stamp
	// set.UpdatedAt with the write time.
	Put(ctx context.Context, set *types.ClusterSet) error

	// Get returns the persisted cluster set for (ownerRef, date), or
	// (nil, nil) when none has been written yet.
	Get(ctx context.Context, ownerRef, date string) (*types.ClusterSet, error)
}

// IsFresh reports whether a persisted cluster set can be served as-is instead
// of re-running the clustering pipeline: the set exists, it was updated within
// window, and it still covers the same number of transcripts the day has now.
// A new transcript arriving after the last run changes currentCount and makes
// the set stale regardless of age.
func IsFresh(set *types.ClusterSet, currentCount int, window time.Duration) bool {
	if set == nil {
		return false
	}
	return time.Since(set.UpdatedAt) < window && set.TranscriptionCount == currentCount
}
