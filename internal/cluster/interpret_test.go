package cluster

import (
	"strings"
	"testing"
)

// testBatch is a three-transcript batch reused across interpreter tests.
func testBatch() Batch {
	return Batch{
		tr("t1", 0, "standup notes"),
		tr("t2", 10, "sprint planning"),
		tr("t3", 120, "dentist call"),
	}
}

func TestInterpretBatch_ValidResponse(t *testing.T) {
	t.Parallel()

	content := `[
		{"title": "Sprint work", "category": "Work", "summary": "Standup and planning.", "memberIds": ["t1", "t2"]},
		{"title": "Dentist", "category": "Health", "summary": "Scheduled a visit.", "sections": [{"heading": "Appointments", "points": ["Tuesday 3pm"]}], "memberIds": ["t3"]}
	]`

	clusters, fallback := InterpretBatch(content, testBatch(), 0)
	if fallback {
		t.Fatal("valid response reported as fallback")
	}
	if len(clusters) != 2 {
		t.Fatalf("got %d clusters, want 2", len(clusters))
	}
	if clusters[0].Title != "Sprint work" || clusters[0].Category != "Work" {
		t.Errorf("first cluster = %q/%q", clusters[0].Title, clusters[0].Category)
	}
	if len(clusters[0].MemberIDs) != 2 {
		t.Errorf("first cluster members = %v", clusters[0].MemberIDs)
	}
	if len(clusters[1].Sections) != 1 || clusters[1].Sections[0].Heading != "Appointments" {
		t.Errorf("sections not carried through: %+v", clusters[1].Sections)
	}
}

func TestInterpretBatch_StripsMarkdownFences(t *testing.T) {
	t.Parallel()

	content := "```json\n[{\"title\": \"All\", \"category\": \"General\", \"summary\": \"s\", \"memberIds\": [\"t1\", \"t2\", \"t3\"]}]\n```"

	clusters, fallback := InterpretBatch(content, testBatch(), 0)
	if fallback {
		t.Fatal("fenced response reported as fallback")
	}
	if len(clusters) != 1 || len(clusters[0].MemberIDs) != 3 {
		t.Fatalf("got %+v", clusters)
	}
}

func TestInterpretBatch_ExtractsArrayFromProse(t *testing.T) {
	t.Parallel()

	content := `Here are the clusters you asked for:
[{"title": "All", "category": "General", "summary": "s", "memberIds": ["t1", "t2", "t3"]}]
Let me know if you need anything else.`

	clusters, fallback := InterpretBatch(content, testBatch(), 0)
	if fallback {
		t.Fatal("prose-wrapped response reported as fallback")
	}
	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1", len(clusters))
	}
}

func TestInterpretBatch_AcceptsTranscriptIDsField(t *testing.T) {
	t.Parallel()

	content := `[{"title": "All", "category": "General", "summary": "s", "transcriptIds": ["t1", "t2", "t3"]}]`

	clusters, fallback := InterpretBatch(content, testBatch(), 0)
	if fallback {
		t.Fatal("transcriptIds response reported as fallback")
	}
	if len(clusters[0].MemberIDs) != 3 {
		t.Errorf("members = %v, want all three", clusters[0].MemberIDs)
	}
}

func TestInterpretBatch_DropsUnknownIDs(t *testing.T) {
	t.Parallel()

	content := `[{"title": "All", "category": "General", "summary": "s", "memberIds": ["t1", "invented-id", "t2", "t3"]}]`

	clusters, fallback := InterpretBatch(content, testBatch(), 0)
	if fallback {
		t.Fatal("reported as fallback")
	}
	for _, id := range clusters[0].MemberIDs {
		if id == "invented-id" {
			t.Error("invented id survived sanitization")
		}
	}
	if len(clusters[0].MemberIDs) != 3 {
		t.Errorf("members = %v, want the three real ids", clusters[0].MemberIDs)
	}
}

func TestInterpretBatch_DuplicateClaimKeptByFirstCluster(t *testing.T) {
	t.Parallel()

	content := `[
		{"title": "First", "category": "Work", "summary": "s", "memberIds": ["t1", "t2"]},
		{"title": "Second", "category": "Work", "summary": "s", "memberIds": ["t2", "t3"]}
	]`

	clusters, fallback := InterpretBatch(content, testBatch(), 0)
	if fallback {
		t.Fatal("reported as fallback")
	}
	if len(clusters) != 2 {
		t.Fatalf("got %d clusters, want 2", len(clusters))
	}
	if got := clusters[0].MemberIDs; len(got) != 2 || got[0] != "t1" || got[1] != "t2" {
		t.Errorf("first cluster members = %v, want [t1 t2]", got)
	}
	if got := clusters[1].MemberIDs; len(got) != 1 || got[0] != "t3" {
		t.Errorf("second cluster members = %v, want [t3]", got)
	}
}

func TestInterpretBatch_SweepsUnclaimedIntoCatchAll(t *testing.T) {
	t.Parallel()

	// t3 is never claimed; it must end up in a trailing catch-all cluster.
	content := `[{"title": "Work", "category": "Work", "summary": "s", "memberIds": ["t1", "t2"]}]`

	clusters, fallback := InterpretBatch(content, testBatch(), 1)
	if fallback {
		t.Fatal("reported as fallback")
	}
	if len(clusters) != 2 {
		t.Fatalf("got %d clusters, want 2", len(clusters))
	}
	last := clusters[len(clusters)-1]
	if last.Title != "Conversations (Part 2)" {
		t.Errorf("catch-all title = %q, want %q", last.Title, "Conversations (Part 2)")
	}
	if last.Category != "General" {
		t.Errorf("catch-all category = %q, want General", last.Category)
	}
	if len(last.MemberIDs) != 1 || last.MemberIDs[0] != "t3" {
		t.Errorf("catch-all members = %v, want [t3]", last.MemberIDs)
	}
}

func TestInterpretBatch_FallbackOnUnparseable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"plain prose", "I'm sorry, I cannot cluster these transcripts."},
		{"empty string", ""},
		{"broken json", `[{"title": "oops"`},
		{"empty array", `[]`},
		{"object not array", `{"title": "x", "memberIds": ["t1"]}`},
		{"cluster without ids", `[{"title": "x", "category": "Work", "summary": "s"}]`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			batch := testBatch()
			clusters, fallback := InterpretBatch(tc.content, batch, 2)
			if !fallback {
				t.Fatal("fallback not reported")
			}
			if len(clusters) != 1 {
				t.Fatalf("got %d clusters, want exactly 1", len(clusters))
			}

			fb := clusters[0]
			if fb.Title != "Conversations (Part 3)" {
				t.Errorf("title = %q, want %q", fb.Title, "Conversations (Part 3)")
			}
			if fb.Category != "General" {
				t.Errorf("category = %q, want General", fb.Category)
			}
			if fb.Summary == "" {
				t.Error("fallback summary is empty")
			}
			if fb.Sections == nil || len(fb.Sections) != 0 {
				t.Errorf("sections = %v, want empty non-nil", fb.Sections)
			}
			if len(fb.MemberIDs) != len(batch) {
				t.Fatalf("fallback members = %v, want the whole batch", fb.MemberIDs)
			}
			for i, tx := range batch {
				if fb.MemberIDs[i] != tx.ID {
					t.Errorf("member %d = %s, want %s", i, fb.MemberIDs[i], tx.ID)
				}
			}
			if !fb.StartTime.Equal(batch[0].OccurredAt) || !fb.EndTime.Equal(batch[2].OccurredAt) {
				t.Errorf("fallback times = %v/%v, want batch bounds", fb.StartTime, fb.EndTime)
			}
		})
	}
}

func TestInterpretBatch_AllClaimsBogusFallsBack(t *testing.T) {
	t.Parallel()

	content := `[{"title": "Ghost", "category": "Work", "summary": "s", "memberIds": ["nope-1", "nope-2"]}]`

	clusters, fallback := InterpretBatch(content, testBatch(), 0)
	if !fallback {
		t.Fatal("fallback not reported")
	}
	if len(clusters) != 1 || len(clusters[0].MemberIDs) != 3 {
		t.Fatalf("got %+v, want whole-batch fallback", clusters)
	}
}

func TestInterpretBatch_DefaultsMissingTitleAndCategory(t *testing.T) {
	t.Parallel()

	content := `[{"summary": "s", "memberIds": ["t1", "t2", "t3"]}]`

	clusters, fallback := InterpretBatch(content, testBatch(), 0)
	if fallback {
		t.Fatal("reported as fallback")
	}
	if clusters[0].Title == "" {
		t.Error("empty title not defaulted")
	}
	if clusters[0].Category != "General" {
		t.Errorf("category = %q, want General", clusters[0].Category)
	}
	if clusters[0].Sections == nil {
		t.Error("nil sections not normalised")
	}
}

func TestStripMarkdown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fences", `[1]`, `[1]`},
		{"json fence", "```json\n[1]\n```", `[1]`},
		{"bare fence", "```\n[1]\n```", `[1]`},
		{"surrounding space", "  [1]  ", `[1]`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := stripMarkdown(tc.in); got != tc.want {
				t.Errorf("stripMarkdown(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestFallbackTitle(t *testing.T) {
	t.Parallel()

	if got := fallbackTitle(0); got != "Conversations (Part 1)" {
		t.Errorf("fallbackTitle(0) = %q", got)
	}
	if got := fallbackTitle(4); !strings.HasSuffix(got, "(Part 5)") {
		t.Errorf("fallbackTitle(4) = %q", got)
	}
}
