// Package memstore provides an in-memory implementation of the store
// interfaces, backed by mutex-guarded maps.
//
// It is used by unit tests and by the "memory" store driver for local
// experiments. Data is lost on process exit. All methods are safe for
// concurrent use.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/palaverhq/palaver/pkg/store"
	"github.com/palaverhq/palaver/pkg/types"
)

// Compile-time interface checks.
var (
	_ store.TranscriptStore = (*Store)(nil)
	_ store.ProfileStore    = (*Store)(nil)
	_ store.ClusterStore    = (*Store)(nil)
)

// Store is an in-memory implementation of TranscriptStore, ProfileStore and
// ClusterStore. The zero value is not usable; construct via NewStore.
type Store struct {
	mu          sync.RWMutex
	transcripts map[string][]types.Transcript // ownerRef → transcripts
	aboutMe     map[string]string             // ownerRef → about-me text
	entities    map[string][]types.Entity     // ownerRef → entities
	clusterSets map[string]*types.ClusterSet  // ownerRef + "\x00" + date → set
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		transcripts: make(map[string][]types.Transcript),
		aboutMe:     make(map[string]string),
		entities:    make(map[string][]types.Entity),
		clusterSets: make(map[string]*types.ClusterSet),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Seeding helpers (tests, local experiments)
// ─────────────────────────────────────────────────────────────────────────────

// AddTranscript registers a transcript under its OwnerRef.
func (s *Store) AddTranscript(t types.Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts[t.OwnerRef] = append(s.transcripts[t.OwnerRef], t)
}

// SetAboutMe sets the owner's free-text self-description.
func (s *Store) SetAboutMe(ownerRef, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aboutMe[ownerRef] = text
}

// SetEntities replaces the owner's registered entities.
func (s *Store) SetEntities(ownerRef string, entities []types.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[ownerRef] = append([]types.Entity(nil), entities...)
}

// ─────────────────────────────────────────────────────────────────────────────
// TranscriptStore
// ─────────────────────────────────────────────────────────────────────────────

// ListByDate implements store.TranscriptStore.
func (s *Store) ListByDate(ctx context.Context, ownerRef, date string) ([]types.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Transcript
	for _, t := range s.transcripts[ownerRef] {
		if t.OccurredAt.Format(types.DateFormat) == date {
			out = append(out, t)
		}
	}
	return out, nil
}

// ListByIDs implements store.TranscriptStore. Unknown ids are skipped.
func (s *Store) ListByIDs(ctx context.Context, ownerRef string, ids []string) ([]types.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	var out []types.Transcript
	for _, t := range s.transcripts[ownerRef] {
		if wanted[t.ID] {
			out = append(out, t)
		}
	}
	return out, nil
}

// OwnersOnDate implements store.TranscriptStore. Owners are returned sorted
// for deterministic scheduling.
func (s *Store) OwnersOnDate(ctx context.Context, date string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var owners []string
	for owner, ts := range s.transcripts {
		for _, t := range ts {
			if t.OccurredAt.Format(types.DateFormat) == date {
				owners = append(owners, owner)
				break
			}
		}
	}
	sort.Strings(owners)
	return owners, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// ProfileStore
// ─────────────────────────────────────────────────────────────────────────────

// AboutMe implements store.ProfileStore. Returns "" when unset.
func (s *Store) AboutMe(ctx context.Context, ownerRef string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aboutMe[ownerRef], nil
}

// Entities implements store.ProfileStore.
func (s *Store) Entities(ctx context.Context, ownerRef string) ([]types.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.Entity(nil), s.entities[ownerRef]...), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// ClusterStore
// ─────────────────────────────────────────────────────────────────────────────

// Put implements store.ClusterStore. It stamps set.UpdatedAt and stores a
// deep copy so later caller mutations do not leak into the store.
func (s *Store) Put(ctx context.Context, set *types.ClusterSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set.UpdatedAt = time.Now()
	cp := cloneSet(set)
	s.clusterSets[setKey(set.OwnerRef, set.Date)] = cp
	return nil
}

// Get implements store.ClusterStore. Returns (nil, nil) when no set has been
// written for (ownerRef, date).
func (s *Store) Get(ctx context.Context, ownerRef, date string) (*types.ClusterSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.clusterSets[setKey(ownerRef, date)]
	if !ok {
		return nil, nil
	}
	return cloneSet(set), nil
}

func setKey(ownerRef, date string) string {
	return ownerRef + "\x00" + date
}

// cloneSet deep-copies a cluster set including nested slices.
func cloneSet(set *types.ClusterSet) *types.ClusterSet {
	cp := *set
	cp.Clusters = make([]types.TopicCluster, len(set.Clusters))
	for i, c := range set.Clusters {
		cc := c
		cc.MemberIDs = append([]string(nil), c.MemberIDs...)
		cc.Sections = make([]types.Section, len(c.Sections))
		for j, sec := range c.Sections {
			sc := sec
			sc.Points = append([]string(nil), sec.Points...)
			cc.Sections[j] = sc
		}
		cp.Clusters[i] = cc
	}
	return &cp
}
