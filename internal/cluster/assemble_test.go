package cluster

import (
	"testing"
	"time"

	"github.com/palaverhq/palaver/pkg/types"
)

func TestAssignIDs(t *testing.T) {
	t.Parallel()

	clusters := []types.TopicCluster{{Title: "a"}, {Title: "b"}, {Title: "c"}}
	AssignIDs(clusters, 2)

	want := []string{"batch2_topic_0", "batch2_topic_1", "batch2_topic_2"}
	for i, c := range clusters {
		if c.ID != want[i] {
			t.Errorf("cluster %d id = %q, want %q", i, c.ID, want[i])
		}
	}
}

func TestRecomputeTimes(t *testing.T) {
	t.Parallel()

	ts := []types.Transcript{tr("t1", 0, "a"), tr("t2", 45, "b"), tr("t3", 90, "c")}
	byID := transcriptsByID(ts)

	clusters := []types.TopicCluster{
		{
			// Bogus model-supplied bounds must be overwritten.
			MemberIDs: []string{"t3", "t1"},
			StartTime: base.Add(-24 * time.Hour),
			EndTime:   base.Add(24 * time.Hour),
		},
		{MemberIDs: []string{"t2"}},
	}
	RecomputeTimes(clusters, byID)

	if !clusters[0].StartTime.Equal(base) || !clusters[0].EndTime.Equal(base.Add(90*time.Minute)) {
		t.Errorf("cluster 0 times = %v/%v, want member bounds", clusters[0].StartTime, clusters[0].EndTime)
	}
	if !clusters[1].StartTime.Equal(base.Add(45*time.Minute)) || !clusters[1].EndTime.Equal(base.Add(45*time.Minute)) {
		t.Errorf("single-member times = %v/%v", clusters[1].StartTime, clusters[1].EndTime)
	}
}

func TestRecomputeTimes_UnresolvableMembers(t *testing.T) {
	t.Parallel()

	byID := transcriptsByID([]types.Transcript{tr("t1", 0, "a")})
	clusters := []types.TopicCluster{
		{MemberIDs: []string{"gone-1", "t1", "gone-2"}},
		{MemberIDs: []string{"gone-only"}, StartTime: base, EndTime: base},
	}
	RecomputeTimes(clusters, byID)

	if !clusters[0].StartTime.Equal(base) || !clusters[0].EndTime.Equal(base) {
		t.Errorf("cluster 0 times = %v/%v, want t1's", clusters[0].StartTime, clusters[0].EndTime)
	}
	if !clusters[1].StartTime.IsZero() || !clusters[1].EndTime.IsZero() {
		t.Errorf("no-member cluster times = %v/%v, want zero", clusters[1].StartTime, clusters[1].EndTime)
	}
}

func TestEnrich(t *testing.T) {
	t.Parallel()

	ts := []types.Transcript{tr("t1", 0, "a"), tr("t2", 45, "b"), tr("t3", 90, "c")}
	byID := transcriptsByID(ts)

	clusters := []types.TopicCluster{
		{ID: "batch0_topic_0", MemberIDs: []string{"t3", "t1", "missing"}},
		{ID: "batch0_topic_1", MemberIDs: []string{"t2"}},
	}
	enriched := Enrich(clusters, byID)

	if len(enriched) != 2 {
		t.Fatalf("got %d enriched clusters, want 2", len(enriched))
	}
	got := enriched[0]
	if got.ID != "batch0_topic_0" {
		t.Errorf("cluster fields not carried: id = %q", got.ID)
	}
	if len(got.Transcripts) != 2 {
		t.Fatalf("resolved %d transcripts, want 2", len(got.Transcripts))
	}
	// Member order was t3 before t1; resolved transcripts come back in time order.
	if got.Transcripts[0].ID != "t1" || got.Transcripts[1].ID != "t3" {
		t.Errorf("transcripts = [%s %s], want time order [t1 t3]", got.Transcripts[0].ID, got.Transcripts[1].ID)
	}
	// The unresolvable member id stays listed.
	if len(got.MemberIDs) != 3 {
		t.Errorf("member ids = %v, want all three kept", got.MemberIDs)
	}
}

func TestEnrich_Empty(t *testing.T) {
	t.Parallel()

	enriched := Enrich(nil, nil)
	if len(enriched) != 0 {
		t.Errorf("got %d clusters, want 0", len(enriched))
	}
}
