// Package sched runs clustering on a cron schedule.
//
// On every tick the runner lists the owners who recorded transcripts today
// and triggers the freshness-gated scheduled run for each of them. Owners
// whose stored cluster set is still fresh cost nothing beyond two store
// reads; the rest get an incremental run.
package sched

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/palaverhq/palaver/internal/cluster"
	"github.com/palaverhq/palaver/pkg/types"
)

// defaultOwnerTimeout bounds one owner's scheduled run. A slow owner must not
// eat the whole tick.
const defaultOwnerTimeout = 5 * time.Minute

// Clusterer is the engine surface the runner drives. *cluster.Engine
// satisfies it.
type Clusterer interface {
	ClusterScheduled(ctx context.Context, ownerRef, date string) (*cluster.Result, error)
}

// OwnerLister reports which owners have transcripts on a date.
// store.TranscriptStore satisfies it.
type OwnerLister interface {
	OwnersOnDate(ctx context.Context, date string) ([]string, error)
}

// Option is a functional option for the [Runner].
type Option func(*Runner)

// WithOwnerTimeout bounds each owner's scheduled run within a tick.
func WithOwnerTimeout(d time.Duration) Option {
	return func(r *Runner) { r.ownerTimeout = d }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// Runner triggers scheduled clustering runs.
type Runner struct {
	engine Clusterer
	owners OwnerLister
	cron   *cron.Cron
	spec   string

	ownerTimeout time.Duration
	now          func() time.Time

	// ctx is the lifetime handed to Start; ticks derive their deadlines
	// from it so Stop plus context cancellation ends in-flight runs.
	ctx context.Context
}

// New builds a runner for the given cron spec. The spec uses the standard
// five fields (minute, hour, day-of-month, month, day-of-week); it was
// already parse-checked by the config loader, so an invalid one is an error
// here too.
func New(spec string, engine Clusterer, owners OwnerLister, opts ...Option) (*Runner, error) {
	r := &Runner{
		engine:       engine,
		owners:       owners,
		spec:         spec,
		ownerTimeout: defaultOwnerTimeout,
		now:          time.Now,
	}
	for _, o := range opts {
		o(r)
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, r.tick); err != nil {
		return nil, errors.New("sched: invalid cron spec " + spec)
	}
	r.cron = c
	return r, nil
}

// Start begins ticking. Runs started by a tick are bound to ctx.
func (r *Runner) Start(ctx context.Context) {
	r.ctx = ctx
	r.cron.Start()
	slog.Info("sched: scheduler started", "spec", r.spec)
}

// Stop ends ticking and waits for the tick in flight, if any.
func (r *Runner) Stop() {
	stopCtx := r.cron.Stop()
	<-stopCtx.Done()
	slog.Info("sched: scheduler stopped")
}

// tick is the cron callback.
func (r *Runner) tick() {
	ctx := r.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	r.runOnce(ctx)
}

// runOnce clusters today's transcripts for every owner that has some.
func (r *Runner) runOnce(ctx context.Context) {
	date := r.now().Format(types.DateFormat)

	owners, err := r.owners.OwnersOnDate(ctx, date)
	if err != nil {
		slog.Error("sched: list owners failed", "date", date, "err", err)
		return
	}
	if len(owners) == 0 {
		slog.Debug("sched: no owners with transcripts", "date", date)
		return
	}

	var ran, skipped, failed int
	for _, owner := range owners {
		if ctx.Err() != nil {
			slog.Warn("sched: tick aborted", "date", date, "err", ctx.Err())
			return
		}

		res, err := r.clusterOwner(ctx, owner, date)
		switch {
		case err != nil:
			failed++
			slog.Error("sched: scheduled run failed", "owner", owner, "date", date, "err", err)
		case res.Skipped:
			skipped++
		default:
			ran++
		}
	}
	slog.Info("sched: tick complete", "date", date,
		"owners", len(owners), "ran", ran, "skipped", skipped, "failed", failed)
}

// clusterOwner runs one owner under the per-owner budget.
func (r *Runner) clusterOwner(ctx context.Context, owner, date string) (*cluster.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.ownerTimeout)
	defer cancel()
	return r.engine.ClusterScheduled(ctx, owner, date)
}
