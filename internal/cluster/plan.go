package cluster

import "github.com/palaverhq/palaver/pkg/types"

// Batch is one unit of work for the completion gateway: a chronological slice
// of transcripts that fits within the batch size limit.
type Batch []types.Transcript

// PlanBatches packs segments into batches of at most maxSize transcripts.
//
// Segments are consumed in order. A segment larger than maxSize closes the
// batch under construction and is then sliced into consecutive maxSize chunks
// (the final chunk may be smaller). A smaller segment that would overflow the
// current batch closes it and starts a new one; otherwise the segment is
// appended whole. The batch under construction is flushed at the end.
//
// Every transcript lands in exactly one batch, batches preserve chronological
// order, and no batch exceeds maxSize.
func PlanBatches(segments []Segment, maxSize int) []Batch {
	var batches []Batch
	var current Batch

	flush := func() {
		if len(current) > 0 {
			batches = append(batches, current)
			current = nil
		}
	}

	for _, seg := range segments {
		if len(seg) > maxSize {
			flush()
			for start := 0; start < len(seg); start += maxSize {
				end := min(start+maxSize, len(seg))
				chunk := make(Batch, end-start)
				copy(chunk, seg[start:end])
				batches = append(batches, chunk)
			}
			continue
		}
		if len(current)+len(seg) > maxSize {
			flush()
		}
		current = append(current, seg...)
	}
	flush()
	return batches
}
