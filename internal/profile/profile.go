// Package profile assembles the per-owner user context injected into
// clustering prompts.
//
// The context consists of two components fetched concurrently:
//
//  1. The owner's free-text "about me" description.
//  2. The owner's registered entities (people, places, projects).
//
// Entities often accumulate near-duplicate names over time ("Jon Smith" next
// to "John Smith", "Stephen" next to "Steven"). The assembler collapses such
// duplicates before they reach the prompt so the model is not fed the same
// person twice under slightly different spellings.
package profile

import (
	"context"
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"
	"golang.org/x/sync/errgroup"

	"github.com/palaverhq/palaver/pkg/store"
	"github.com/palaverhq/palaver/pkg/types"
)

const (
	// defaultSimilarityThreshold is the Jaro-Winkler score above which two
	// entity names are considered the same regardless of pronunciation.
	defaultSimilarityThreshold = 0.92

	// phoneticSimilarityFloor is the lower Jaro-Winkler bound applied when two
	// names share a Double Metaphone code (they sound alike). "Stephen" and
	// "Steven" score ≈0.89 on spelling alone but encode identically.
	phoneticSimilarityFloor = 0.80
)

// Option is a functional option for [NewAssembler].
type Option func(*Assembler)

// WithSimilarityThreshold sets the minimum Jaro-Winkler score required for
// two entity names to be collapsed as duplicates on spelling alone.
// Default: 0.92.
func WithSimilarityThreshold(threshold float64) Option {
	return func(a *Assembler) { a.similarityThreshold = threshold }
}

// Assembler fetches and prepares the owner's user context.
// All methods are safe for concurrent use; the Assembler is read-only after
// construction.
type Assembler struct {
	profiles            store.ProfileStore
	similarityThreshold float64
}

// NewAssembler creates an [Assembler] with sensible defaults.
// Apply [Option] values to override the defaults.
func NewAssembler(profiles store.ProfileStore, opts ...Option) *Assembler {
	a := &Assembler{
		profiles:            profiles,
		similarityThreshold: defaultSimilarityThreshold,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Assemble concurrently fetches the owner's about-me text and entities and
// returns a [types.UserContext] with near-duplicate entities collapsed.
//
// The two fetches run in parallel via errgroup. If either fetch returns an
// error, assembly is aborted and that error is returned wrapped with a
// "user context: " prefix.
func (a *Assembler) Assemble(ctx context.Context, ownerRef string) (*types.UserContext, error) {
	var (
		aboutMe  string
		entities []types.Entity
	)

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		text, err := a.profiles.AboutMe(egCtx, ownerRef)
		if err != nil {
			return fmt.Errorf("user context: about me for %q: %w", ownerRef, err)
		}
		aboutMe = text
		return nil
	})

	eg.Go(func() error {
		es, err := a.profiles.Entities(egCtx, ownerRef)
		if err != nil {
			return fmt.Errorf("user context: entities for %q: %w", ownerRef, err)
		}
		entities = es
		return nil
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return &types.UserContext{
		AboutMe:  aboutMe,
		Entities: a.dedupe(entities),
	}, nil
}

// dedupe collapses entities whose names refer to the same thing, keeping the
// first occurrence. Two names are duplicates when any of:
//
//  1. They are equal ignoring case and surrounding whitespace.
//  2. Their Jaro-Winkler similarity is at least the configured threshold.
//  3. They share a Double Metaphone code and score at least
//     phoneticSimilarityFloor on Jaro-Winkler.
func (a *Assembler) dedupe(entities []types.Entity) []types.Entity {
	kept := make([]types.Entity, 0, len(entities))
	for _, e := range entities {
		if !a.isDuplicate(e.Name, kept) {
			kept = append(kept, e)
		}
	}
	return kept
}

// isDuplicate reports whether name duplicates any already-kept entity name.
func (a *Assembler) isDuplicate(name string, kept []types.Entity) bool {
	norm := strings.ToLower(strings.TrimSpace(name))
	if norm == "" {
		return false
	}

	for _, k := range kept {
		keptNorm := strings.ToLower(strings.TrimSpace(k.Name))
		if norm == keptNorm {
			return true
		}

		score := matchr.JaroWinkler(norm, keptNorm, false)
		if score >= a.similarityThreshold {
			return true
		}
		if score >= phoneticSimilarityFloor && soundsAlike(norm, keptNorm) {
			return true
		}
	}
	return false
}

// soundsAlike reports whether the two names share at least one Double
// Metaphone code across their tokens.
func soundsAlike(a, b string) bool {
	return codesOverlap(codesForName(a), codesForName(b))
}

// codesForName returns the union of Double Metaphone codes for each token of
// name. Empty codes are excluded.
func codesForName(name string) map[string]struct{} {
	tokens := strings.Fields(name)
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	// Iterate over the smaller set for efficiency.
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
