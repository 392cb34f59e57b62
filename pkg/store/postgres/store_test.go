package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/palaverhq/palaver/pkg/store/postgres"
	"github.com/palaverhq/palaver/pkg/types"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if PALAVER_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("PALAVER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PALAVER_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] with a clean schema.
// It calls t.Cleanup to close the store when the test finishes.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)
	dropSchema(t, ctx, pool)

	st, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(st.Close)
	return st
}

// dropSchema removes all tables created by Migrate.
func dropSchema(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS cluster_sets",
		"DROP TABLE IF EXISTS entities",
		"DROP TABLE IF EXISTS profiles",
		"DROP TABLE IF EXISTS transcripts",
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("drop schema: %v", err)
		}
	}
}

func TestTranscripts_SaveAndList(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	day := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for _, tr := range []types.Transcript{
		{ID: "t1", OwnerRef: "alice", OccurredAt: day, Text: "standup"},
		{ID: "t2", OwnerRef: "alice", OccurredAt: day.Add(2 * time.Hour), Text: "design review"},
		{ID: "t3", OwnerRef: "bob", OccurredAt: day, Text: "other owner"},
		{ID: "t4", OwnerRef: "alice", OccurredAt: day.AddDate(0, 0, 1), Text: "next day"},
	} {
		if err := st.SaveTranscript(ctx, tr); err != nil {
			t.Fatalf("SaveTranscript(%s): %v", tr.ID, err)
		}
	}

	got, err := st.ListByDate(ctx, "alice", "2026-03-14")
	if err != nil {
		t.Fatalf("ListByDate: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 transcripts, got %d", len(got))
	}
	if got[0].ID != "t1" || got[1].ID != "t2" {
		t.Errorf("expected chronological t1,t2; got %s,%s", got[0].ID, got[1].ID)
	}

	byIDs, err := st.ListByIDs(ctx, "alice", []string{"t2", "missing"})
	if err != nil {
		t.Fatalf("ListByIDs: %v", err)
	}
	if len(byIDs) != 1 || byIDs[0].ID != "t2" {
		t.Errorf("expected only t2, got %+v", byIDs)
	}

	owners, err := st.OwnersOnDate(ctx, "2026-03-14")
	if err != nil {
		t.Fatalf("OwnersOnDate: %v", err)
	}
	if len(owners) != 2 || owners[0] != "alice" || owners[1] != "bob" {
		t.Errorf("expected [alice bob], got %v", owners)
	}
}

func TestProfiles_RoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	about, err := st.AboutMe(ctx, "alice")
	if err != nil {
		t.Fatalf("AboutMe (absent): %v", err)
	}
	if about != "" {
		t.Errorf("expected empty about-me, got %q", about)
	}

	if err := st.SaveAboutMe(ctx, "alice", "product manager"); err != nil {
		t.Fatalf("SaveAboutMe: %v", err)
	}
	if err := st.SaveAboutMe(ctx, "alice", "product manager at a startup"); err != nil {
		t.Fatalf("SaveAboutMe (update): %v", err)
	}
	about, err = st.AboutMe(ctx, "alice")
	if err != nil {
		t.Fatalf("AboutMe: %v", err)
	}
	if about != "product manager at a startup" {
		t.Errorf("unexpected about-me: %q", about)
	}

	if err := st.SaveEntity(ctx, "alice", types.Entity{Name: "Dana", Type: "person", Relationship: "sister"}); err != nil {
		t.Fatalf("SaveEntity: %v", err)
	}
	entities, err := st.Entities(ctx, "alice")
	if err != nil {
		t.Fatalf("Entities: %v", err)
	}
	if len(entities) != 1 || entities[0].Name != "Dana" {
		t.Errorf("unexpected entities: %+v", entities)
	}
}

func TestClusterSets_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	absent, err := st.Get(ctx, "alice", "2026-03-14")
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
				Title:     "Apartment hunt",
				Category:  "Personal",
				Summary:   "Called two landlords, viewing on Friday.",
				MemberIDs: []string{"t1"},
				Sections:  []types.Section{{Heading: "Next steps", Points: []string{"confirm viewing"}}},
			},
		},
		TranscriptionCount: 1,
	}
	if err := st.Put(ctx, set); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := st.Get(ctx, "alice", "2026-03-14")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("expected stored set")
	}
	if len(got.Clusters) != 1 || got.Clusters[0].Title != "Apartment hunt" {
		t.Errorf("cluster round trip mismatch: %+v", got.Clusters)
	}
	if len(got.Clusters[0].Sections) != 1 {
		t.Errorf("sections lost in round trip: %+v", got.Clusters[0])
	}

	set.Clusters[0].Title = "Apartment hunt (updated)"
	set.TranscriptionCount = 2
	if err := st.Put(ctx, set); err != nil {
		t.Fatalf("Put (upsert): %v", err)
	}
	got, err = st.Get(ctx, "alice", "2026-03-14")
	if err != nil {
		t.Fatalf("Get after upsert: %v", err)
	}
	if got.Clusters[0].Title != "Apartment hunt (updated)" || got.TranscriptionCount != 2 {
		t.Errorf("upsert did not replace record: %+v", got)
	}
}
