package cluster

import (
	"testing"
	"time"

	"github.com/palaverhq/palaver/pkg/types"
)

// base is the reference timestamp for transcript fixtures: a Friday morning.
var base = time.Date(2026, 8, 21, 9, 0, 0, 0, time.UTC)

// tr builds a transcript fixture offset from base by the given minutes.
func tr(id string, minutes int, text string) types.Transcript {
	return types.Transcript{
		ID:         id,
		OwnerRef:   "owner-1",
		OccurredAt: base.Add(time.Duration(minutes) * time.Minute),
		Text:       text,
	}
}

// segmentIDs flattens segments into their transcript id lists.
func segmentIDs(segments []Segment) [][]string {
	out := make([][]string, len(segments))
	for i, seg := range segments {
		ids := make([]string, len(seg))
		for j, t := range seg {
			ids[j] = t.ID
		}
		out[i] = ids
	}
	return out
}

func TestBuildSegments_Empty(t *testing.T) {
	t.Parallel()

	if got := BuildSegments(nil, 30*time.Minute); got != nil {
		t.Errorf("BuildSegments(nil) = %v, want nil", got)
	}
	if got := BuildSegments([]types.Transcript{}, 30*time.Minute); got != nil {
		t.Errorf("BuildSegments(empty) = %v, want nil", got)
	}
}

func TestBuildSegments_SplitsOnLongGap(t *testing.T) {
	t.Parallel()

	// 09:00 and 09:10 belong together; 11:00 starts a new conversation.
	ts := []types.Transcript{
		tr("t1", 0, "morning standup"),
		tr("t2", 10, "standup continued"),
		tr("t3", 120, "lunch plans"),
	}

	segments := BuildSegments(ts, 30*time.Minute)
	if len(segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(segments))
	}
	got := segmentIDs(segments)
	if len(got[0]) != 2 || got[0][0] != "t1" || got[0][1] != "t2" {
		t.Errorf("first segment = %v, want [t1 t2]", got[0])
	}
	if len(got[1]) != 1 || got[1][0] != "t3" {
		t.Errorf("second segment = %v, want [t3]", got[1])
	}
}

func TestBuildSegments_GapExactlyAtThresholdStaysTogether(t *testing.T) {
	t.Parallel()

	// The split triggers strictly above the threshold.
	ts := []types.Transcript{
		tr("t1", 0, "a"),
		tr("t2", 30, "b"),
	}
	if got := BuildSegments(ts, 30*time.Minute); len(got) != 1 {
		t.Errorf("got %d segments, want 1", len(got))
	}

	ts[1] = tr("t2", 31, "b")
	if got := BuildSegments(ts, 30*time.Minute); len(got) != 2 {
		t.Errorf("got %d segments, want 2", len(got))
	}
}

func TestBuildSegments_SortsBeforeSplitting(t *testing.T) {
	t.Parallel()

	// Shuffled input must produce the same segmentation as sorted input.
	shuffled := []types.Transcript{
		tr("t3", 120, "c"),
		tr("t1", 0, "a"),
		tr("t2", 10, "b"),
	}

	got := segmentIDs(BuildSegments(shuffled, 30*time.Minute))
	want := [][]string{{"t1", "t2"}, {"t3"}}
	if len(got) != len(want) {
		t.Fatalf("got %d segments, want %d", len(got), len(want))
	}
	for i := range want {
		if len(got[i]) != len(want[i]) {
			t.Fatalf("segment %d = %v, want %v", i, got[i], want[i])
		}
		for j := range want[i] {
			if got[i][j] != want[i][j] {
				t.Errorf("segment %d = %v, want %v", i, got[i], want[i])
			}
		}
	}
}

func TestBuildSegments_EqualTimestampsOrderedByID(t *testing.T) {
	t.Parallel()

	ts := []types.Transcript{
		tr("t-b", 0, "second"),
		tr("t-a", 0, "first"),
	}

	segments := BuildSegments(ts, 30*time.Minute)
	if len(segments) != 1 {
		t.Fatalf("got %d segments, want 1", len(segments))
	}
	if segments[0][0].ID != "t-a" || segments[0][1].ID != "t-b" {
		t.Errorf("segment order = [%s %s], want [t-a t-b]", segments[0][0].ID, segments[0][1].ID)
	}
}

func TestBuildSegments_DoesNotModifyInput(t *testing.T) {
	t.Parallel()

	ts := []types.Transcript{
		tr("t2", 60, "b"),
		tr("t1", 0, "a"),
	}
	BuildSegments(ts, 30*time.Minute)

	if ts[0].ID != "t2" || ts[1].ID != "t1" {
		t.Errorf("input order changed to [%s %s]", ts[0].ID, ts[1].ID)
	}
}

func TestBuildSegments_SingleTranscript(t *testing.T) {
	t.Parallel()

	segments := BuildSegments([]types.Transcript{tr("only", 0, "x")}, 30*time.Minute)
	if len(segments) != 1 || len(segments[0]) != 1 {
		t.Fatalf("got %v, want one segment of one transcript", segmentIDs(segments))
	}
}
