package sched

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/palaverhq/palaver/internal/cluster"
	"github.com/palaverhq/palaver/pkg/types"
)

type fakeEngine struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	fresh map[string]bool
}

func (f *fakeEngine) ClusterScheduled(ctx context.Context, ownerRef, date string) (*cluster.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ownerRef+"@"+date)
	if err := f.fail[ownerRef]; err != nil {
		return nil, err
	}
	return &cluster.Result{Clusters: []types.EnrichedCluster{}, Skipped: f.fresh[ownerRef]}, nil
}

type fakeOwners struct {
	owners []string
	err    error
	date   string
}

func (f *fakeOwners) OwnersOnDate(_ context.Context, date string) ([]string, error) {
	f.date = date
	return f.owners, f.err
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNew_InvalidSpec(t *testing.T) {
	t.Parallel()
	_, err := New("not a cron spec", &fakeEngine{}, &fakeOwners{})
	if err == nil {
		t.Fatal("expected error for invalid cron spec")
	}
}

func TestRunOnce_ClustersEveryOwner(t *testing.T) {
	t.Parallel()
	eng := &fakeEngine{}
	owners := &fakeOwners{owners: []string{"alice", "bob"}}
	day := time.Date(2026, 8, 25, 14, 0, 0, 0, time.UTC)

	r, err := New("*/30 * * * *", eng, owners, WithClock(fixedClock(day)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.runOnce(context.Background())

	if owners.date != "2026-08-25" {
		t.Errorf("owners listed for %q, want 2026-08-25", owners.date)
	}
	want := []string{"alice@2026-08-25", "bob@2026-08-25"}
	if len(eng.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", eng.calls, want)
	}
	for i, c := range want {
		if eng.calls[i] != c {
			t.Errorf("calls[%d] = %q, want %q", i, eng.calls[i], c)
		}
	}
}

func TestRunOnce_OwnerFailureDoesNotStopOthers(t *testing.T) {
	t.Parallel()
	eng := &fakeEngine{fail: map[string]error{"alice": errors.New("gateway down")}}
	owners := &fakeOwners{owners: []string{"alice", "bob"}}

	r, err := New("@hourly", eng, owners)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.runOnce(context.Background())

	if len(eng.calls) != 2 {
		t.Errorf("calls = %v, want both owners attempted", eng.calls)
	}
}

func TestRunOnce_NoOwners(t *testing.T) {
	t.Parallel()
	eng := &fakeEngine{}
	r, err := New("@hourly", eng, &fakeOwners{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.runOnce(context.Background())

	if len(eng.calls) != 0 {
		t.Errorf("calls = %v, want none", eng.calls)
	}
}

func TestRunOnce_ListFailure(t *testing.T) {
	t.Parallel()
	eng := &fakeEngine{}
	owners := &fakeOwners{err: errors.New("store down")}
	r, err := New("@hourly", eng, owners)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.runOnce(context.Background())

	if len(eng.calls) != 0 {
		t.Errorf("calls = %v, want none after list failure", eng.calls)
	}
}

func TestRunOnce_CancelledContextAborts(t *testing.T) {
	t.Parallel()
	eng := &fakeEngine{}
	owners := &fakeOwners{owners: []string{"alice", "bob"}}
	r, err := New("@hourly", eng, owners)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.runOnce(ctx)

	if len(eng.calls) != 0 {
		t.Errorf("calls = %v, want none under a cancelled context", eng.calls)
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	r, err := New("@hourly", &fakeEngine{}, &fakeOwners{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	r.Stop()
}
