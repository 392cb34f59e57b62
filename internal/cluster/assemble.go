package cluster

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/palaverhq/palaver/pkg/types"
)

// AssignIDs rewrites cluster ids to "batch{batchIndex}_topic_{n}" in slice
// order. Batch-scoped ids stay unique across the batches of a run without any
// coordination between them.
func AssignIDs(clusters []types.TopicCluster, batchIndex int) {
	for i := range clusters {
		clusters[i].ID = fmt.Sprintf("batch%d_topic_%d", batchIndex, i)
	}
}

// RecomputeTimes sets every cluster's StartTime and EndTime to the earliest
// and latest OccurredAt over its member transcripts. Model output and
// fallback bounds are both overwritten; member ids with no known transcript
// contribute nothing.
func RecomputeTimes(clusters []types.TopicCluster, byID map[string]types.Transcript) {
	for i := range clusters {
		var start, end time.Time
		for _, id := range clusters[i].MemberIDs {
			t, ok := byID[id]
			if !ok {
				continue
			}
			if start.IsZero() || t.OccurredAt.Before(start) {
				start = t.OccurredAt
			}
			if end.IsZero() || t.OccurredAt.After(end) {
				end = t.OccurredAt
			}
		}
		clusters[i].StartTime = start
		clusters[i].EndTime = end
	}
}

// Enrich joins lean clusters with their resolved member transcripts, producing
// the display view returned to callers. Transcripts are ordered by occurrence
// time with the id as tiebreak. Member ids with no known transcript stay in
// MemberIDs but contribute no transcript.
func Enrich(clusters []types.TopicCluster, byID map[string]types.Transcript) []types.EnrichedCluster {
	enriched := make([]types.EnrichedCluster, len(clusters))
	for i, c := range clusters {
		ts := make([]types.Transcript, 0, len(c.MemberIDs))
		for _, id := range c.MemberIDs {
			if t, ok := byID[id]; ok {
				ts = append(ts, t)
			}
		}
		slices.SortFunc(ts, func(a, b types.Transcript) int {
			if cmp := a.OccurredAt.Compare(b.OccurredAt); cmp != 0 {
				return cmp
			}
			return strings.Compare(a.ID, b.ID)
		})
		enriched[i] = types.EnrichedCluster{TopicCluster: c, Transcripts: ts}
	}
	return enriched
}

// transcriptsByID indexes transcripts by id for member resolution.
func transcriptsByID(ts []types.Transcript) map[string]types.Transcript {
	byID := make(map[string]types.Transcript, len(ts))
	for _, t := range ts {
		byID[t.ID] = t
	}
	return byID
}
