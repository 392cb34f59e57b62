// Package cluster implements Palaver's transcript topic-clustering engine.
//
// A clustering run reads one owner's transcripts for one calendar day, splits
// them into conversation segments at long silences, packs the segments into
// size-bounded batches, and sends each batch to a completion provider that
// groups the transcripts into topic clusters. Responses that cannot be
// interpreted degrade batch-by-batch into synthesized fallback clusters; a
// run never fails because of model output. The resulting cluster set is
// persisted whole, one record per owner and day.
//
// [Engine] is the entry point. Besides the full, incremental, and subset runs
// it carries the record-editing operations (merge, rename, delete) and the
// freshness-gated run used by the scheduler. All methods are safe for
// concurrent use as long as the underlying stores are.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/palaverhq/palaver/internal/observe"
	"github.com/palaverhq/palaver/internal/profile"
	"github.com/palaverhq/palaver/pkg/provider/llm"
	"github.com/palaverhq/palaver/pkg/store"
	"github.com/palaverhq/palaver/pkg/types"
)

const (
	// defaultGapThreshold is the silence that separates two conversation
	// segments.
	defaultGapThreshold = 30 * time.Minute

	// defaultMaxBatchSize caps the transcripts sent to the gateway in one
	// request. The config layer accepts values in [25, 40].
	defaultMaxBatchSize = 30

	// defaultBatchDelay is the pause between consecutive gateway calls of one
	// run, spacing requests out for provider rate limits.
	defaultBatchDelay = 500 * time.Millisecond

	// defaultFreshnessWindow bounds how old a stored set may be before a
	// scheduled run reclusters the day.
	defaultFreshnessWindow = time.Hour

	// defaultMaxOutputTokens bounds the completion length per batch.
	defaultMaxOutputTokens = 4000

	// clusteringTemperature keeps grouping decisions close to deterministic.
	clusteringTemperature = 0.2
)

var (
	// ErrTimedOut reports that a run hit the caller's deadline. Partial
	// results are discarded; the stored set is whatever the last completed
	// run wrote.
	ErrTimedOut = errors.New("cluster: run timed out")

	// ErrNotClustered reports a record-editing operation on a day that has
	// no stored cluster set.
	ErrNotClustered = errors.New("cluster: day has not been clustered")

	// ErrClusterNotFound reports an operation on a cluster id that does not
	// exist in the stored set.
	ErrClusterNotFound = errors.New("cluster: no such cluster")

	// ErrInvalidInput reports arguments that fail validation before any work
	// happens.
	ErrInvalidInput = errors.New("cluster: invalid input")
)

// Option is a functional option for configuring an [Engine].
type Option func(*Engine)

// WithMaxBatchSize sets the maximum transcripts per gateway request.
func WithMaxBatchSize(n int) Option {
	return func(e *Engine) { e.maxBatchSize = n }
}

// WithGapThreshold sets the silence that splits conversation segments.
func WithGapThreshold(d time.Duration) Option {
	return func(e *Engine) { e.gapThreshold = d }
}

// WithBatchDelay sets the pause between consecutive gateway calls.
func WithBatchDelay(d time.Duration) Option {
	return func(e *Engine) { e.batchDelay = d }
}

// WithFreshnessWindow sets how recent a stored set must be for scheduled
// runs to skip reclustering.
func WithFreshnessWindow(d time.Duration) Option {
	return func(e *Engine) { e.freshnessWindow = d }
}

// WithMaxOutputTokens sets the completion length limit per batch.
func WithMaxOutputTokens(n int) Option {
	return func(e *Engine) { e.maxOutputTokens = n }
}

// WithTemperature sets the sampling temperature for clustering requests.
// The default stays low so grouping decisions are close to deterministic.
func WithTemperature(t float64) Option {
	return func(e *Engine) { e.temperature = t }
}

// WithMetrics overrides the metrics instance, mainly for tests that inspect
// recorded instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine runs the clustering pipeline and manages stored cluster sets.
type Engine struct {
	transcripts store.TranscriptStore
	clusters    store.ClusterStore
	profiles    *profile.Assembler
	provider    llm.Provider
	metrics     *observe.Metrics

	maxBatchSize    int
	gapThreshold    time.Duration
	batchDelay      time.Duration
	freshnessWindow time.Duration
	maxOutputTokens int
	temperature     float64
}

// New creates an [Engine] over the given collaborators. Options override the
// tuning defaults; validation of configured values happens in the config
// layer, not here.
func New(
	transcripts store.TranscriptStore,
	clusters store.ClusterStore,
	profiles *profile.Assembler,
	provider llm.Provider,
	opts ...Option,
) *Engine {
	e := &Engine{
		transcripts:     transcripts,
		clusters:        clusters,
		profiles:        profiles,
		provider:        provider,
		maxBatchSize:    defaultMaxBatchSize,
		gapThreshold:    defaultGapThreshold,
		batchDelay:      defaultBatchDelay,
		freshnessWindow: defaultFreshnessWindow,
		maxOutputTokens: defaultMaxOutputTokens,
		temperature:     clusteringTemperature,
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// Result is the outcome of one engine operation. Clusters is never nil on
// success; an unclustered or empty day yields an empty slice.
type Result struct {
	// Clusters is the full enriched cluster set for the day after the
	// operation.
	Clusters []types.EnrichedCluster `json:"clusters"`

	// BatchCount is the number of batches the run sent to the gateway. Zero
	// for record edits, reads, and runs with nothing to do.
	BatchCount int `json:"batchCount"`

	// FallbackCount is the number of batches that degraded to a synthesized
	// fallback cluster.
	FallbackCount int `json:"fallbackCount"`

	// Skipped reports that a scheduled run found the stored set fresh and
	// did not recluster.
	Skipped bool `json:"skipped,omitempty"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Operations
// ─────────────────────────────────────────────────────────────────────────────

// ClusterFull reclusters every transcript of the owner's day from scratch and
// replaces the stored cluster set. A day without transcripts yields an empty
// result and leaves the store untouched.
func (e *Engine) ClusterFull(ctx context.Context, ownerRef, date string) (*Result, error) {
	return e.instrumented(ctx, "full", func(ctx context.Context) (*Result, error) {
		return e.fullRun(ctx, ownerRef, date)
	})
}

// ReclusterAll rebuilds the day from scratch, discarding every stored
// cluster including merges and renames. It backs the dashboard's destructive
// "recluster everything" action; callers are expected to confirm with the
// user before invoking it.
func (e *Engine) ReclusterAll(ctx context.Context, ownerRef, date string) (*Result, error) {
	slog.Info("cluster: recluster all requested", "owner", ownerRef, "date", date)
	return e.instrumented(ctx, "recluster", func(ctx context.Context) (*Result, error) {
		return e.fullRun(ctx, ownerRef, date)
	})
}

// ClusterNew clusters only the transcripts the stored set does not cover yet
// and appends the resulting clusters to it. exclude names transcript ids to
// skip for this run only; the exclusion is not persisted and the ids remain
// candidates for later runs.
//
// When nothing is left to cluster the stored set is returned unchanged and
// the gateway is never called.
func (e *Engine) ClusterNew(ctx context.Context, ownerRef, date string, exclude []string) (*Result, error) {
	return e.instrumented(ctx, "incremental", func(ctx context.Context) (*Result, error) {
		return e.incrementalRun(ctx, ownerRef, date, exclude)
	})
}

// ClusterScheduled is the freshness-gated incremental run executed by the
// scheduler. When the stored set was written within the freshness window and
// still covers the current transcript count, the run is skipped and the
// stored clusters are returned as-is.
func (e *Engine) ClusterScheduled(ctx context.Context, ownerRef, date string) (*Result, error) {
	return e.instrumented(ctx, "scheduled", func(ctx context.Context) (*Result, error) {
		set, ts, err := e.fetchSet(ctx, ownerRef, date)
		if err != nil {
			return nil, err
		}
		if store.IsFresh(set, len(ts), e.freshnessWindow) {
			slog.Debug("cluster: stored set is fresh, skipping scheduled run",
				"owner", ownerRef, "date", date, "transcripts", len(ts))
			return &Result{Clusters: enrichSet(set, transcriptsByID(ts)), Skipped: true}, nil
		}
		return e.incrementalRun(ctx, ownerRef, date, nil)
	})
}

// ClusterSubset clusters an explicit transcript selection and folds the
// resulting clusters into the stored set. Selected ids are first removed from
// any cluster that already contains them, so a transcript never appears in
// two clusters; ids that resolve to no transcript are ignored.
func (e *Engine) ClusterSubset(ctx context.Context, ownerRef, date string, transcriptIDs []string) (*Result, error) {
	return e.instrumented(ctx, "subset", func(ctx context.Context) (*Result, error) {
		if len(transcriptIDs) == 0 {
			return nil, fmt.Errorf("%w: no transcript ids given", ErrInvalidInput)
		}

		in, err := e.fetchDay(ctx, ownerRef, date)
		if err != nil {
			return nil, err
		}
		subset, err := e.transcripts.ListByIDs(ctx, ownerRef, transcriptIDs)
		if err != nil {
			return nil, fmt.Errorf("cluster: list transcripts by id: %w", err)
		}

		byID := transcriptsByID(in.transcripts)
		// Ids from another day resolve to transcripts outside this set; drop
		// them so a stray id cannot smuggle foreign transcripts in.
		subset = slices.DeleteFunc(subset, func(t types.Transcript) bool {
			_, onDay := byID[t.ID]
			return !onDay
		})
		if len(subset) == 0 {
			return &Result{Clusters: enrichSet(in.existing, byID)}, nil
		}

		newClusters, batches, fallbacks, err := e.runPipeline(ctx, subset, in.userCtx, nextBatchIndex(in.existing))
		if err != nil {
			return nil, err
		}

		set := in.existing
		if set == nil {
			set = &types.ClusterSet{OwnerRef: ownerRef, Date: date}
		}
		removeMembers(set, transcriptIDs)
		set.Clusters = append(set.Clusters, newClusters...)
		set.TranscriptionCount = len(in.transcripts)
		RecomputeTimes(set.Clusters, byID)

		if err := e.clusters.Put(ctx, set); err != nil {
			return nil, fmt.Errorf("cluster: persist clusters: %w", err)
		}
		e.metrics.RecordBatchOutcomes(ctx, batches, fallbacks, len(subset))
		slog.Info("cluster: subset run complete", "owner", ownerRef, "date", date,
			"selected", len(subset), "batches", batches, "fallbacks", fallbacks)

		return &Result{Clusters: Enrich(set.Clusters, byID), BatchCount: batches, FallbackCount: fallbacks}, nil
	})
}

// Clusters returns the stored clusters for the day enriched with their member
// transcripts. A day that was never clustered yields an empty result, not an
// error.
func (e *Engine) Clusters(ctx context.Context, ownerRef, date string) (*Result, error) {
	return e.instrumented(ctx, "read", func(ctx context.Context) (*Result, error) {
		set, ts, err := e.fetchSet(ctx, ownerRef, date)
		if err != nil {
			return nil, err
		}
		return &Result{Clusters: enrichSet(set, transcriptsByID(ts))}, nil
	})
}

// MergeClusters combines two or more stored clusters into one. The merged
// cluster takes the id "merged_{timestamp}", unites the member ids in
// argument order, joins the titles with " + ", and concatenates summaries and
// sections. It replaces the first named cluster in place; the others
// disappear from the set.
func (e *Engine) MergeClusters(ctx context.Context, ownerRef, date string, clusterIDs []string) (*Result, error) {
	return e.instrumented(ctx, "merge", func(ctx context.Context) (*Result, error) {
		if len(clusterIDs) < 2 {
			return nil, fmt.Errorf("%w: merge needs at least two cluster ids", ErrInvalidInput)
		}

		set, ts, err := e.fetchSet(ctx, ownerRef, date)
		if err != nil {
			return nil, err
		}
		if set == nil {
			return nil, ErrNotClustered
		}

		merged, err := mergeClusters(set, clusterIDs)
		if err != nil {
			return nil, err
		}

		byID := transcriptsByID(ts)
		RecomputeTimes(set.Clusters, byID)
		if err := e.clusters.Put(ctx, set); err != nil {
			return nil, fmt.Errorf("cluster: persist clusters: %w", err)
		}
		slog.Info("cluster: merged clusters", "owner", ownerRef, "date", date,
			"sources", len(clusterIDs), "merged_id", merged.ID)

		return &Result{Clusters: Enrich(set.Clusters, byID)}, nil
	})
}

// RenameCluster replaces the title of one stored cluster. The rest of the
// cluster, including its id, is untouched.
func (e *Engine) RenameCluster(ctx context.Context, ownerRef, date, clusterID, title string) (*Result, error) {
	return e.instrumented(ctx, "rename", func(ctx context.Context) (*Result, error) {
		title = strings.TrimSpace(title)
		if title == "" {
			return nil, fmt.Errorf("%w: empty title", ErrInvalidInput)
		}

		set, ts, err := e.fetchSet(ctx, ownerRef, date)
		if err != nil {
			return nil, err
		}
		if set == nil {
			return nil, ErrNotClustered
		}

		renamed := false
		for i := range set.Clusters {
			if set.Clusters[i].ID == clusterID {
				set.Clusters[i].Title = title
				renamed = true
				break
			}
		}
		if !renamed {
			return nil, fmt.Errorf("%q: %w", clusterID, ErrClusterNotFound)
		}

		if err := e.clusters.Put(ctx, set); err != nil {
			return nil, fmt.Errorf("cluster: persist clusters: %w", err)
		}
		return &Result{Clusters: Enrich(set.Clusters, transcriptsByID(ts))}, nil
	})
}

// DeleteCluster removes one cluster from the stored set. Its member
// transcripts become unclustered and will be picked up by the next
// incremental run.
func (e *Engine) DeleteCluster(ctx context.Context, ownerRef, date, clusterID string) (*Result, error) {
	return e.instrumented(ctx, "delete", func(ctx context.Context) (*Result, error) {
		set, ts, err := e.fetchSet(ctx, ownerRef, date)
		if err != nil {
			return nil, err
		}
		if set == nil {
			return nil, ErrNotClustered
		}

		before := len(set.Clusters)
		set.Clusters = slices.DeleteFunc(set.Clusters, func(c types.TopicCluster) bool {
			return c.ID == clusterID
		})
		if len(set.Clusters) == before {
			return nil, fmt.Errorf("%q: %w", clusterID, ErrClusterNotFound)
		}

		if err := e.clusters.Put(ctx, set); err != nil {
			return nil, fmt.Errorf("cluster: persist clusters: %w", err)
		}
		return &Result{Clusters: Enrich(set.Clusters, transcriptsByID(ts))}, nil
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Run cores
// ─────────────────────────────────────────────────────────────────────────────

// fullRun is the shared core of ClusterFull and ReclusterAll.
func (e *Engine) fullRun(ctx context.Context, ownerRef, date string) (*Result, error) {
	in, err := e.fetchDay(ctx, ownerRef, date)
	if err != nil {
		return nil, err
	}
	if len(in.transcripts) == 0 {
		return emptyResult(), nil
	}

	clusters, batches, fallbacks, err := e.runPipeline(ctx, in.transcripts, in.userCtx, 0)
	if err != nil {
		return nil, err
	}

	set := &types.ClusterSet{
		OwnerRef:           ownerRef,
		Date:               date,
		Clusters:           clusters,
		TranscriptionCount: len(in.transcripts),
	}
	byID := transcriptsByID(in.transcripts)
	RecomputeTimes(set.Clusters, byID)

	if err := e.clusters.Put(ctx, set); err != nil {
		return nil, fmt.Errorf("cluster: persist clusters: %w", err)
	}
	e.metrics.RecordBatchOutcomes(ctx, batches, fallbacks, len(in.transcripts))
	slog.Info("cluster: full run complete", "owner", ownerRef, "date", date,
		"transcripts", len(in.transcripts), "clusters", len(set.Clusters),
		"batches", batches, "fallbacks", fallbacks)

	return &Result{Clusters: Enrich(set.Clusters, byID), BatchCount: batches, FallbackCount: fallbacks}, nil
}

// incrementalRun is the shared core of ClusterNew and ClusterScheduled.
func (e *Engine) incrementalRun(ctx context.Context, ownerRef, date string, exclude []string) (*Result, error) {
	in, err := e.fetchDay(ctx, ownerRef, date)
	if err != nil {
		return nil, err
	}

	remaining := unclustered(in.transcripts, in.existing, exclude)
	byID := transcriptsByID(in.transcripts)
	if len(remaining) == 0 {
		return &Result{Clusters: enrichSet(in.existing, byID)}, nil
	}

	newClusters, batches, fallbacks, err := e.runPipeline(ctx, remaining, in.userCtx, nextBatchIndex(in.existing))
	if err != nil {
		return nil, err
	}

	set := in.existing
	if set == nil {
		set = &types.ClusterSet{OwnerRef: ownerRef, Date: date}
	}
	set.Clusters = append(set.Clusters, newClusters...)
	set.TranscriptionCount = len(in.transcripts)
	RecomputeTimes(set.Clusters, byID)

	if err := e.clusters.Put(ctx, set); err != nil {
		return nil, fmt.Errorf("cluster: persist clusters: %w", err)
	}
	e.metrics.RecordBatchOutcomes(ctx, batches, fallbacks, len(remaining))
	slog.Info("cluster: incremental run complete", "owner", ownerRef, "date", date,
		"new_transcripts", len(remaining), "batches", batches, "fallbacks", fallbacks)

	return &Result{Clusters: Enrich(set.Clusters, byID), BatchCount: batches, FallbackCount: fallbacks}, nil
}

// runPipeline executes segment, plan, and the per-batch gateway round trips
// for the given transcripts. Batches run sequentially with a pause between
// them. A gateway failure degrades its batch to a fallback cluster unless the
// context has expired, which aborts the run. baseIndex offsets the id
// namespace so appended clusters never collide with stored ones.
func (e *Engine) runPipeline(ctx context.Context, ts []types.Transcript, uc *types.UserContext, baseIndex int) (clusters []types.TopicCluster, batches, fallbacks int, err error) {
	segments := BuildSegments(ts, e.gapThreshold)
	planned := PlanBatches(segments, e.maxBatchSize)

	for i, batch := range planned {
		if i > 0 {
			if err := sleep(ctx, e.batchDelay); err != nil {
				return nil, len(planned), fallbacks, fmt.Errorf("cluster: wait between batches: %w", err)
			}
		}

		content, err := e.completeBatch(ctx, batch, uc, i, len(planned))
		if err != nil {
			if ctx.Err() != nil {
				return nil, len(planned), fallbacks, fmt.Errorf("cluster: batch %d: %w", i, ctx.Err())
			}
			slog.Warn("cluster: batch degraded to fallback",
				"batch", i, "size", len(batch), "err", err)
			content = ""
		}

		batchClusters, usedFallback := InterpretBatch(content, batch, i)
		if usedFallback {
			fallbacks++
		}
		AssignIDs(batchClusters, baseIndex+i)
		clusters = append(clusters, batchClusters...)
	}
	return clusters, len(planned), fallbacks, nil
}

// completeBatch renders the prompts for one batch and performs the gateway
// round trip.
func (e *Engine) completeBatch(ctx context.Context, batch Batch, uc *types.UserContext, batchIndex, batchCount int) (string, error) {
	system, user := BuildPrompt(batch, uc, batchIndex, batchCount)

	start := time.Now()
	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: system,
		Messages:     []llm.Message{{Role: "user", Content: user}},
		Temperature:  e.temperature,
		MaxTokens:    e.maxOutputTokens,
	})
	if err == nil && resp == nil {
		err = errors.New("empty response")
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	e.metrics.RecordGatewayRequest(ctx, status, time.Since(start).Seconds())

	if err != nil {
		return "", fmt.Errorf("complete batch %d: %w", batchIndex, err)
	}
	return resp.Content, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Input fetching
// ─────────────────────────────────────────────────────────────────────────────

// dayInputs bundles everything a clustering run reads up front.
type dayInputs struct {
	transcripts []types.Transcript
	userCtx     *types.UserContext
	existing    *types.ClusterSet
}

// fetchDay loads the day's transcripts, the user context, and the stored
// cluster set in parallel. Transcript and cluster-set failures abort the run;
// a user-context failure degrades to an empty context because clustering
// works without it, just less personally.
func (e *Engine) fetchDay(ctx context.Context, ownerRef, date string) (*dayInputs, error) {
	in := &dayInputs{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ts, err := e.transcripts.ListByDate(gctx, ownerRef, date)
		if err != nil {
			return fmt.Errorf("cluster: list transcripts: %w", err)
		}
		in.transcripts = ts
		return nil
	})
	g.Go(func() error {
		uc, err := e.profiles.Assemble(gctx, ownerRef)
		if err != nil {
			slog.Warn("cluster: user context unavailable, continuing without it",
				"owner", ownerRef, "err", err)
			in.userCtx = &types.UserContext{}
			return nil
		}
		in.userCtx = uc
		return nil
	})
	g.Go(func() error {
		set, err := e.clusters.Get(gctx, ownerRef, date)
		if err != nil {
			return fmt.Errorf("cluster: load stored clusters: %w", err)
		}
		in.existing = set
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return in, nil
}

// fetchSet loads the stored cluster set and the day's transcripts in
// parallel for read and record-editing operations. The set is nil when the
// day was never clustered; callers decide whether that is an error.
func (e *Engine) fetchSet(ctx context.Context, ownerRef, date string) (*types.ClusterSet, []types.Transcript, error) {
	var (
		set *types.ClusterSet
		ts  []types.Transcript
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := e.clusters.Get(gctx, ownerRef, date)
		if err != nil {
			return fmt.Errorf("cluster: load stored clusters: %w", err)
		}
		set = s
		return nil
	})
	g.Go(func() error {
		list, err := e.transcripts.ListByDate(gctx, ownerRef, date)
		if err != nil {
			return fmt.Errorf("cluster: list transcripts: %w", err)
		}
		ts = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return set, ts, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// instrumented wraps one operation with run metrics and the timeout mapping.
// When the caller's deadline expired mid-operation, whatever error surfaced
// is reported as [ErrTimedOut]; plain cancellation passes through unchanged.
func (e *Engine) instrumented(ctx context.Context, op string, fn func(context.Context) (*Result, error)) (*Result, error) {
	start := time.Now()
	e.metrics.ActiveRuns.Add(ctx, 1)
	defer e.metrics.ActiveRuns.Add(ctx, -1)

	res, err := fn(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrTimedOut) {
		slog.Warn("cluster: deadline expired mid-run", "op", op, "err", err)
		err = fmt.Errorf("cluster: %s: %w", op, ErrTimedOut)
	}
	e.metrics.RecordRun(ctx, op, outcomeLabel(res, err), time.Since(start).Seconds())
	return res, err
}

// outcomeLabel maps an operation result onto the metric outcome attribute.
func outcomeLabel(res *Result, err error) string {
	switch {
	case errors.Is(err, ErrTimedOut):
		return "timeout"
	case err != nil:
		return "error"
	case res != nil && res.Skipped:
		return "skipped"
	default:
		return "success"
	}
}

// sleep blocks for d or until ctx is done, returning the context error in
// the latter case.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// emptyResult is the success result for a day with nothing to cluster.
func emptyResult() *Result {
	return &Result{Clusters: []types.EnrichedCluster{}}
}

// enrichSet enriches a stored set's clusters, tolerating a nil set.
func enrichSet(set *types.ClusterSet, byID map[string]types.Transcript) []types.EnrichedCluster {
	if set == nil {
		return []types.EnrichedCluster{}
	}
	return Enrich(set.Clusters, byID)
}

// unclustered returns the transcripts not covered by set and not excluded,
// preserving input order.
func unclustered(ts []types.Transcript, set *types.ClusterSet, exclude []string) []types.Transcript {
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	if set != nil {
		for _, c := range set.Clusters {
			for _, id := range c.MemberIDs {
				skip[id] = true
			}
		}
	}
	var remaining []types.Transcript
	for _, t := range ts {
		if !skip[t.ID] {
			remaining = append(remaining, t)
		}
	}
	return remaining
}

// nextBatchIndex returns the first free batch index for clusters appended to
// set. Pipeline ids embed their batch index ("batch3_topic_1"), so scanning
// for the highest stored index keeps appended ids collision-free. Merged
// cluster ids do not participate.
func nextBatchIndex(set *types.ClusterSet) int {
	if set == nil {
		return 0
	}
	next := 0
	for _, c := range set.Clusters {
		rest, ok := strings.CutPrefix(c.ID, "batch")
		if !ok {
			continue
		}
		numStr, _, ok := strings.Cut(rest, "_")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}
		if n+1 > next {
			next = n + 1
		}
	}
	return next
}

// removeMembers strips the given transcript ids from every cluster in set,
// dropping clusters left without members.
func removeMembers(set *types.ClusterSet, ids []string) {
	if set == nil || len(ids) == 0 {
		return
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := set.Clusters[:0]
	for _, c := range set.Clusters {
		members := c.MemberIDs[:0]
		for _, id := range c.MemberIDs {
			if !drop[id] {
				members = append(members, id)
			}
		}
		c.MemberIDs = members
		if len(members) > 0 {
			kept = append(kept, c)
		}
	}
	set.Clusters = kept
}

// mergeClusters merges the named clusters inside set, in argument order. The
// merged cluster replaces the first named one in place; later ones are
// removed. Returns the merged cluster for logging.
func mergeClusters(set *types.ClusterSet, clusterIDs []string) (types.TopicCluster, error) {
	idx := make(map[string]int, len(set.Clusters))
	for i, c := range set.Clusters {
		idx[c.ID] = i
	}

	targets := make([]int, 0, len(clusterIDs))
	seen := make(map[string]bool, len(clusterIDs))
	for _, id := range clusterIDs {
		i, ok := idx[id]
		if !ok {
			return types.TopicCluster{}, fmt.Errorf("%q: %w", id, ErrClusterNotFound)
		}
		if seen[id] {
			return types.TopicCluster{}, fmt.Errorf("%w: duplicate cluster id %q", ErrInvalidInput, id)
		}
		seen[id] = true
		targets = append(targets, i)
	}

	merged := types.TopicCluster{
		ID:       fmt.Sprintf("merged_%d", time.Now().UnixMilli()),
		Category: set.Clusters[targets[0]].Category,
		Sections: []types.Section{},
	}
	titles := make([]string, 0, len(targets))
	summaries := make([]string, 0, len(targets))
	memberSeen := make(map[string]bool)
	for _, i := range targets {
		c := set.Clusters[i]
		titles = append(titles, c.Title)
		if c.Summary != "" {
			summaries = append(summaries, c.Summary)
		}
		merged.Sections = append(merged.Sections, c.Sections...)
		for _, id := range c.MemberIDs {
			if !memberSeen[id] {
				memberSeen[id] = true
				merged.MemberIDs = append(merged.MemberIDs, id)
			}
		}
	}
	merged.Title = strings.Join(titles, " + ")
	merged.Summary = strings.Join(summaries, " ")

	dropIdx := make(map[int]bool, len(targets))
	for _, i := range targets {
		dropIdx[i] = true
	}
	kept := make([]types.TopicCluster, 0, len(set.Clusters)-len(targets)+1)
	for i, c := range set.Clusters {
		if i == targets[0] {
			kept = append(kept, merged)
			continue
		}
		if dropIdx[i] {
			continue
		}
		kept = append(kept, c)
	}
	set.Clusters = kept
	return merged, nil
}
