package cluster

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/palaverhq/palaver/pkg/types"
)

// fallbackCategory is the category of every synthesized cluster. Seeing it on
// a dashboard doubles as a signal that a batch degraded.
const fallbackCategory = "General"

// rawCluster is the expected JSON shape of one cluster in a completion
// response. Some models emit "transcriptIds" instead of "memberIds"; both are
// accepted, with memberIds winning when both are present.
type rawCluster struct {
	Title         string          `json:"title"`
	Category      string          `json:"category"`
	Summary       string          `json:"summary"`
	Sections      []types.Section `json:"sections"`
	MemberIDs     []string        `json:"memberIds"`
	TranscriptIDs []string        `json:"transcriptIds"`
}

// InterpretBatch turns one completion response into clusters for the given
// batch. It never fails: when the response cannot be parsed into a non-empty
// array of clusters that each name at least one transcript, the whole batch
// degrades into a single synthesized fallback cluster and fallback reports
// true.
//
// Parsed clusters are sanitized against the batch: ids that do not belong to
// the batch are dropped, an id claimed by several clusters stays with the
// first claimant, and clusters emptied by sanitization disappear. Batch
// members the response never claimed are swept into a trailing catch-all
// cluster so that every transcript of the batch is covered exactly once.
func InterpretBatch(content string, batch Batch, batchIndex int) (clusters []types.TopicCluster, fallback bool) {
	parsed, err := parseClusters(content)
	if err != nil {
		return []types.TopicCluster{fallbackCluster(batch, batchIndex)}, true
	}

	inBatch := make(map[string]bool, len(batch))
	for _, t := range batch {
		inBatch[t.ID] = true
	}

	claimed := make(map[string]bool, len(batch))
	for _, rc := range parsed {
		ids := rc.MemberIDs
		if len(ids) == 0 {
			ids = rc.TranscriptIDs
		}
		members := make([]string, 0, len(ids))
		for _, id := range ids {
			if inBatch[id] && !claimed[id] {
				claimed[id] = true
				members = append(members, id)
			}
		}
		if len(members) == 0 {
			continue
		}
		clusters = append(clusters, types.TopicCluster{
			Title:     orDefault(rc.Title, "Untitled topic"),
			Category:  orDefault(rc.Category, fallbackCategory),
			Summary:   rc.Summary,
			Sections:  orSections(rc.Sections),
			MemberIDs: members,
		})
	}

	// Every claimed id was bogus. Treat it like a parse failure.
	if len(clusters) == 0 {
		return []types.TopicCluster{fallbackCluster(batch, batchIndex)}, true
	}

	var leftovers []string
	for _, t := range batch {
		if !claimed[t.ID] {
			leftovers = append(leftovers, t.ID)
		}
	}
	if len(leftovers) > 0 {
		clusters = append(clusters, types.TopicCluster{
			Title:     fallbackTitle(batchIndex),
			Category:  fallbackCategory,
			Summary:   "Additional conversations from this part of the day.",
			Sections:  []types.Section{},
			MemberIDs: leftovers,
		})
	}
	return clusters, false
}

// parseClusters extracts and validates the JSON cluster array from raw model
// output. It tolerates markdown fences and prose around the array by taking
// the substring from the first "[" to the last "]". The array must be
// non-empty and every element must name at least one transcript id.
func parseClusters(content string) ([]rawCluster, error) {
	cleaned := stripMarkdown(content)

	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("interpret: no JSON array in response")
	}

	var parsed []rawCluster
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("interpret: parse response: %w", err)
	}
	if len(parsed) == 0 {
		return nil, fmt.Errorf("interpret: empty cluster array")
	}
	for i, rc := range parsed {
		if len(rc.MemberIDs) == 0 && len(rc.TranscriptIDs) == 0 {
			return nil, fmt.Errorf("interpret: cluster %d names no transcripts", i)
		}
	}
	return parsed, nil
}

// stripMarkdown removes optional markdown code fences (```json ... ```) that
// some models prepend and append to JSON output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}

// fallbackCluster synthesizes the single cluster that stands in for a batch
// whose response could not be interpreted: a generic title and summary over
// the whole batch, timed by the batch bounds.
func fallbackCluster(batch Batch, batchIndex int) types.TopicCluster {
	ids := make([]string, len(batch))
	for i, t := range batch {
		ids[i] = t.ID
	}
	c := types.TopicCluster{
		Title:     fallbackTitle(batchIndex),
		Category:  fallbackCategory,
		Summary:   "A group of conversations from this part of the day.",
		Sections:  []types.Section{},
		MemberIDs: ids,
	}
	if len(batch) > 0 {
		c.StartTime = batch[0].OccurredAt
		c.EndTime = batch[len(batch)-1].OccurredAt
	}
	return c
}

// fallbackTitle names synthesized clusters by their one-based batch position.
func fallbackTitle(batchIndex int) string {
	return fmt.Sprintf("Conversations (Part %d)", batchIndex+1)
}

// orDefault returns s, or def when s is empty.
func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// orSections normalises a nil sections slice to an empty one so the stored
// JSON always carries an array.
func orSections(s []types.Section) []types.Section {
	if s == nil {
		return []types.Section{}
	}
	return s
}
