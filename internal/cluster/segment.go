package cluster

import (
	"slices"
	"strings"
	"time"

	"github.com/palaverhq/palaver/pkg/types"
)

// Segment is a chronological run of transcripts in which no two consecutive
// members are further apart than the gap threshold. Segments approximate
// conversations: a long silence means the speaker moved on to something else.
type Segment []types.Transcript

// BuildSegments sorts the transcripts by occurrence time and splits them into
// segments wherever the pause between consecutive transcripts exceeds gap.
// Equal timestamps are ordered by id so segmentation is deterministic
// regardless of input order. The input slice is not modified.
//
// An empty input yields no segments.
func BuildSegments(transcripts []types.Transcript, gap time.Duration) []Segment {
	if len(transcripts) == 0 {
		return nil
	}

	sorted := make([]types.Transcript, len(transcripts))
	copy(sorted, transcripts)
	slices.SortFunc(sorted, func(a, b types.Transcript) int {
		if c := a.OccurredAt.Compare(b.OccurredAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	var segments []Segment
	current := Segment{sorted[0]}
	for _, t := range sorted[1:] {
		last := current[len(current)-1]
		if t.OccurredAt.Sub(last.OccurredAt) > gap {
			segments = append(segments, current)
			current = Segment{t}
			continue
		}
		current = append(current, t)
	}
	return append(segments, current)
}
