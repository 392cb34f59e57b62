package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/palaverhq/palaver/pkg/store/sqlite"
	"github.com/palaverhq/palaver/pkg/types"
)

// newTestStore opens a store against a throwaway database file.
func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "palaver_test.sqlite")
	s, err := sqlite.NewStore(context.Background(), path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTranscripts_SaveAndListByDate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	day := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for _, tr := range []types.Transcript{
		{ID: "t1", OwnerRef: "alice", OccurredAt: day, Text: "morning standup"},
		{ID: "t2", OwnerRef: "alice", OccurredAt: day.Add(3 * time.Hour), Text: "lunch chat"},
		{ID: "t3", OwnerRef: "alice", OccurredAt: day.AddDate(0, 0, 1), Text: "next day"},
		{ID: "t4", OwnerRef: "bob", OccurredAt: day, Text: "other owner"},
	} {
		if err := s.SaveTranscript(ctx, tr); err != nil {
			t.Fatalf("SaveTranscript(%s): %v", tr.ID, err)
		}
	}

	got, err := s.ListByDate(ctx, "alice", "2026-03-14")
	if err != nil {
		t.Fatalf("ListByDate: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 transcripts, got %d", len(got))
	}
	if got[0].ID != "t1" || got[1].ID != "t2" {
		t.Errorf("expected chronological order t1,t2; got %s,%s", got[0].ID, got[1].ID)
	}
	if !got[0].OccurredAt.Equal(day) {
		t.Errorf("occurred_at round trip mismatch: %v", got[0].OccurredAt)
	}
}

func TestTranscripts_SaveReplacesExisting(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	day := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	if err := s.SaveTranscript(ctx, types.Transcript{ID: "t1", OwnerRef: "alice", OccurredAt: day, Text: "v1"}); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}
	if err := s.SaveTranscript(ctx, types.Transcript{ID: "t1", OwnerRef: "alice", OccurredAt: day, Text: "v2"}); err != nil {
		t.Fatalf("SaveTranscript replace: %v", err)
	}

	got, err := s.ListByIDs(ctx, "alice", []string{"t1"})
	if err != nil {
		t.Fatalf("ListByIDs: %v", err)
	}
	if len(got) != 1 || got[0].Text != "v2" {
		t.Errorf("expected replaced text v2, got %+v", got)
	}
}

func TestTranscripts_ListByIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	day := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"t1", "t2", "t3"} {
		err := s.SaveTranscript(ctx, types.Transcript{
			ID: id, OwnerRef: "alice", OccurredAt: day.Add(time.Duration(i) * time.Hour), Text: id,
		})
		if err != nil {
			t.Fatalf("SaveTranscript: %v", err)
		}
	}

	got, err := s.ListByIDs(ctx, "alice", []string{"t3", "t1", "missing"})
	if err != nil {
		t.Fatalf("ListByIDs: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 transcripts, got %d", len(got))
	}

	empty, err := s.ListByIDs(ctx, "alice", nil)
	if err != nil {
		t.Fatalf("ListByIDs(nil): %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty result for no ids, got %d", len(empty))
	}
}

func TestTranscripts_OwnersOnDate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	day := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for _, tr := range []types.Transcript{
		{ID: "t1", OwnerRef: "carol", OccurredAt: day},
		{ID: "t2", OwnerRef: "alice", OccurredAt: day},
		{ID: "t3", OwnerRef: "alice", OccurredAt: day.Add(time.Hour)},
		{ID: "t4", OwnerRef: "bob", OccurredAt: day.AddDate(0, 0, 1)},
	} {
		if err := s.SaveTranscript(ctx, tr); err != nil {
			t.Fatalf("SaveTranscript: %v", err)
		}
	}

	owners, err := s.OwnersOnDate(ctx, "2026-03-14")
	if err != nil {
		t.Fatalf("OwnersOnDate: %v", err)
	}
	want := []string{"alice", "carol"}
	if len(owners) != len(want) {
		t.Fatalf("expected %v, got %v", want, owners)
	}
	for i := range want {
		if owners[i] != want[i] {
			t.Errorf("owner[%d]: expected %q, got %q", i, want[i], owners[i])
		}
	}
}

func TestProfile_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	about, err := s.AboutMe(ctx, "alice")
	if err != nil {
		t.Fatalf("AboutMe (absent): %v", err)
	}
	if about != "" {
		t.Errorf("expected empty about-me for unknown owner, got %q", about)
	}

	if err := s.SaveAboutMe(ctx, "alice", "engineer, loves hiking"); err != nil {
		t.Fatalf("SaveAboutMe: %v", err)
	}
	if err := s.SaveAboutMe(ctx, "alice", "engineer, loves hiking and cooking"); err != nil {
		t.Fatalf("SaveAboutMe (update): %v", err)
	}

	about, err = s.AboutMe(ctx, "alice")
	if err != nil {
		t.Fatalf("AboutMe: %v", err)
	}
	if about != "engineer, loves hiking and cooking" {
		t.Errorf("unexpected about-me: %q", about)
	}

	if err := s.SaveEntity(ctx, "alice", types.Entity{Name: "Bob", Type: "person", Relationship: "manager"}); err != nil {
		t.Fatalf("SaveEntity: %v", err)
	}
	entities, err := s.Entities(ctx, "alice")
	if err != nil {
		t.Fatalf("Entities: %v", err)
	}
	if len(entities) != 1 || entities[0].Relationship != "manager" {
		t.Errorf("unexpected entities: %+v", entities)
	}
}

func TestClusterSets_PutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	absent, err := s.Get(ctx, "alice", "2026-03-14")
	if err != nil {
		t.Fatalf("Get (absent): %v", err)
	}
	if absent != nil {
		t.Fatalf("expected nil for absent set, got %+v", absent)
	}

	set := &types.ClusterSet{
		OwnerRef: "alice",
		Date:     "2026-03-14",
		Clusters: []types.TopicCluster{
			{
				ID:        "batch0_topic_0",
				Title:     "Trip planning",
				Category:  "Travel",
				Summary:   "Flights and hotels for the Lisbon trip.",
				MemberIDs: []string{"t1", "t2"},
				StartTime: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
				EndTime:   time.Date(2026, 3, 14, 9, 40, 0, 0, time.UTC),
			},
		},
		TranscriptionCount: 2,
	}
	if err := s.Put(ctx, set); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, "alice", "2026-03-14")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("expected stored set")
	}
	if got.TranscriptionCount != 2 || len(got.Clusters) != 1 {
		t.Fatalf("unexpected set: %+v", got)
	}
	c := got.Clusters[0]
	if c.Title != "Trip planning" || len(c.MemberIDs) != 2 {
		t.Errorf("cluster round trip mismatch: %+v", c)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be stamped")
	}

	// Upsert replaces the record.
	set.Clusters = append(set.Clusters, types.TopicCluster{ID: "batch0_topic_1", Title: "Errands"})
	set.TranscriptionCount = 3
	if err := s.Put(ctx, set); err != nil {
		t.Fatalf("Put (upsert): %v", err)
	}
	got, err = s.Get(ctx, "alice", "2026-03-14")
	if err != nil {
		t.Fatalf("Get after upsert: %v", err)
	}
	if len(got.Clusters) != 2 || got.TranscriptionCount != 3 {
		t.Errorf("upsert did not replace record: %+v", got)
	}
}
