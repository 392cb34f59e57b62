package cluster

import (
	"fmt"
	"strings"

	"github.com/palaverhq/palaver/pkg/types"
)

const (
	// transcriptCharBudget is the total character budget for transcript text
	// in one batch prompt. The per-transcript cut scales inversely with batch
	// size so the request stays within the gateway's context window.
	transcriptCharBudget = 24000

	// minItemChars and maxItemChars clamp the per-transcript cut. Even in a
	// full batch each transcript keeps enough text to be classifiable, and a
	// near-empty batch does not paste in whole essays.
	minItemChars = 200
	maxItemChars = 1200
)

// clusteringPrompt is the static instruction block sent as the system prompt
// of every batch request. It is identical across batches and runs.
const clusteringPrompt = `You are a conversation analyst for a personal voice journal. You receive a numbered list of transcript fragments recorded over one day and group them into topic clusters.

Respond with ONLY a JSON array (no markdown, no prose). Each element must be an object in this exact format:
{
  "title": "<short headline-like topic name>",
  "category": "<one of: Work, Personal, Health, Travel, Finance, Social, Errands, General>",
  "summary": "<1-3 sentences describing what was discussed>",
  "sections": [{"heading": "<detail heading>", "points": ["<notable point>"]}],
  "memberIds": ["<transcript id copied exactly from the input>"]
}

Rules:
- Fragments recorded close together in time usually belong to the same conversation.
- Distinct subjects get distinct clusters even when adjacent in time.
- Every transcript id from the input must appear in exactly one cluster's memberIds.
- Do NOT invent transcript ids. Copy them exactly as given.
- "sections" may be an empty array when a cluster has no notable detail.`

// BuildPrompt renders the system and user prompts for one batch. The user
// prompt carries the user-context block (identical for every batch of a run)
// followed by the enumerated transcripts, each truncated to the per-item
// budget for this batch size.
func BuildPrompt(batch Batch, userCtx *types.UserContext, batchIndex, batchCount int) (system, user string) {
	var sb strings.Builder

	if batchCount > 1 {
		fmt.Fprintf(&sb, "This is part %d of %d of today's transcripts.\n\n", batchIndex+1, batchCount)
	}

	writeUserContext(&sb, userCtx)

	cut := itemCharBudget(len(batch))
	sb.WriteString("Transcripts:\n")
	for i, t := range batch {
		fmt.Fprintf(&sb, "%d. [%s] %s (id: %s)\n",
			i+1, t.OccurredAt.Format("15:04"), truncate(t.Text, cut), t.ID)
	}

	return clusteringPrompt, sb.String()
}

// writeUserContext appends the optional user-context block: the self
// description first, then the known entities one per line. A nil or empty
// context writes nothing.
func writeUserContext(sb *strings.Builder, uc *types.UserContext) {
	if uc == nil {
		return
	}
	if uc.AboutMe != "" {
		fmt.Fprintf(sb, "About the user: %s\n\n", uc.AboutMe)
	}
	if len(uc.Entities) == 0 {
		return
	}
	sb.WriteString("People and things the user has mentioned before:\n")
	for _, e := range uc.Entities {
		sb.WriteString("- ")
		sb.WriteString(e.Name)
		if detail := entityDetail(e); detail != "" {
			sb.WriteString(" (")
			sb.WriteString(detail)
			sb.WriteByte(')')
		}
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')
}

// entityDetail joins the descriptive entity fields into one parenthetical.
func entityDetail(e types.Entity) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{e.Type, e.Relationship, e.Notes} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// itemCharBudget returns the per-transcript character cut for a batch of n
// transcripts, clamped to [minItemChars, maxItemChars].
func itemCharBudget(n int) int {
	if n <= 0 {
		return maxItemChars
	}
	cut := transcriptCharBudget / n
	if cut < minItemChars {
		return minItemChars
	}
	if cut > maxItemChars {
		return maxItemChars
	}
	return cut
}

// truncate shortens s to at most limit runes, marking cut text with an
// ellipsis. Truncation counts runes, not bytes, so multi-byte text is never
// split mid-character.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
