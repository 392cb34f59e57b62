package profile_test

import (
	"context"
	"errors"
	"testing"

	"github.com/palaverhq/palaver/internal/profile"
	"github.com/palaverhq/palaver/pkg/store/memstore"
	"github.com/palaverhq/palaver/pkg/types"
)

// failingProfiles returns the configured error from every method.
type failingProfiles struct {
	err error
}

func (f failingProfiles) AboutMe(ctx context.Context, ownerRef string) (string, error) {
	return "", f.err
}

func (f failingProfiles) Entities(ctx context.Context, ownerRef string) ([]types.Entity, error) {
	return nil, f.err
}

func assemble(t *testing.T, entities []types.Entity, opts ...profile.Option) *types.UserContext {
	t.Helper()
	s := memstore.NewStore()
	s.SetAboutMe("alice", "engineer who hikes on weekends")
	s.SetEntities("alice", entities)

	uc, err := profile.NewAssembler(s, opts...).Assemble(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	return uc
}

func names(entities []types.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.Name
	}
	return out
}

func TestAssemble_FetchesBothComponents(t *testing.T) {
	t.Parallel()
	uc := assemble(t, []types.Entity{
		{Name: "Bob", Type: "person", Relationship: "colleague"},
	})

	if uc.AboutMe != "engineer who hikes on weekends" {
		t.Errorf("unexpected about-me: %q", uc.AboutMe)
	}
	if len(uc.Entities) != 1 || uc.Entities[0].Name != "Bob" {
		t.Errorf("unexpected entities: %v", names(uc.Entities))
	}
}

func TestAssemble_EmptyProfile(t *testing.T) {
	t.Parallel()
	s := memstore.NewStore()

	uc, err := profile.NewAssembler(s).Assemble(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if uc.AboutMe != "" {
		t.Errorf("expected empty about-me, got %q", uc.AboutMe)
	}
	if len(uc.Entities) != 0 {
		t.Errorf("expected no entities, got %v", names(uc.Entities))
	}
}

func TestAssemble_PropagatesStoreError(t *testing.T) {
	t.Parallel()
	boom := errors.New("connection refused")

	_, err := profile.NewAssembler(failingProfiles{err: boom}).Assemble(context.Background(), "alice")
	if err == nil {
		t.Fatal("expected error from failing store")
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped store error, got %v", err)
	}
}

// ── Entity dedupe ────────────────────────────────────────────────────────────

func TestDedupe_CaseInsensitiveExact(t *testing.T) {
	t.Parallel()
	uc := assemble(t, []types.Entity{
		{Name: "Bob Martin", Relationship: "colleague"},
		{Name: "bob martin", Relationship: "duplicate entry"},
	})

	if len(uc.Entities) != 1 {
		t.Fatalf("expected 1 entity after dedupe, got %v", names(uc.Entities))
	}
	if uc.Entities[0].Relationship != "colleague" {
		t.Error("dedupe should keep the first occurrence")
	}
}

func TestDedupe_SpellingVariant(t *testing.T) {
	t.Parallel()
	uc := assemble(t, []types.Entity{
		{Name: "John Smith"},
		{Name: "Jon Smith"},
	})

	if len(uc.Entities) != 1 || uc.Entities[0].Name != "John Smith" {
		t.Errorf("expected spelling variants collapsed to first, got %v", names(uc.Entities))
	}
}

func TestDedupe_PhoneticVariant(t *testing.T) {
	t.Parallel()
	// "Stephen" vs "Steven" scores below the pure-similarity threshold but the
	// names encode identically, so the phonetic path must collapse them.
	uc := assemble(t, []types.Entity{
		{Name: "Stephen"},
		{Name: "Steven"},
	})

	if len(uc.Entities) != 1 || uc.Entities[0].Name != "Stephen" {
		t.Errorf("expected phonetic variants collapsed to first, got %v", names(uc.Entities))
	}
}

func TestDedupe_DistinctNamesSurvive(t *testing.T) {
	t.Parallel()
	uc := assemble(t, []types.Entity{
		{Name: "Marta"},
		{Name: "Marla"}, // similar spelling but below threshold, different sound
		{Name: "Project Atlas"},
	})

	if len(uc.Entities) != 3 {
		t.Errorf("expected all distinct entities kept, got %v", names(uc.Entities))
	}
}

func TestDedupe_CustomThreshold(t *testing.T) {
	t.Parallel()
	// Lowering the threshold makes "Marta"/"Marla" collapse on spelling alone.
	uc := assemble(t, []types.Entity{
		{Name: "Marta"},
		{Name: "Marla"},
	}, profile.WithSimilarityThreshold(0.85))

	if len(uc.Entities) != 1 || uc.Entities[0].Name != "Marta" {
		t.Errorf("expected collapse at lowered threshold, got %v", names(uc.Entities))
	}
}
