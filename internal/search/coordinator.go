package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/omega/internal/affinity"
	"github.com/roach88/omega/internal/combo"
	"github.com/roach88/omega/internal/results"
	"github.com/roach88/omega/internal/store"
)

// ErrCheckpoint is returned (wrapped) when a run could not persist any
// checkpoint at all, or could not load the one it was asked to resume.
var ErrCheckpoint = errors.New("checkpoint failed")

// Index is the read-only frequency lookup shared by all workers.
// *freq.Index satisfies it.
type Index interface {
	affinity.Lookup
	Digest() string
}

// Checkpointer persists and restores run state. *store.Store satisfies it.
type Checkpointer interface {
	LoadCheckpoint(ctx context.Context, fingerprint string) (store.Run, []results.Record, error)
	SaveCheckpoint(ctx context.Context, run store.Run, records []results.Record) error
}

// Report is the outcome of a run.
type Report struct {
	RunID       string
	Fingerprint string
	Mode        Mode
	Workers     int
	Units       int
	Resumed     bool
	Progress    Progress
	Records     []results.Record // ranked
	Summary     results.Summary
	Counters    affinity.Counters // this session only
	Failures    []UnitFailure
	Interrupted bool
	// Complete is true only when every unit of the run has completed.
	Complete bool
	// FinishedAt is when the merge loop drained, on the coordinator's clock.
	FinishedAt time.Time
}

// Status maps the report onto the persisted run status.
func (r *Report) Status() store.Status {
	switch {
	case r.Complete:
		return store.StatusComplete
	case r.Interrupted:
		return store.StatusInterrupted
	default:
		return store.StatusPartial
	}
}

// Coordinator partitions the space, runs units on a bounded pool and merges
// their results.
//
// Thread-safety: Run may be called repeatedly but not concurrently.
type Coordinator struct {
	opts         Options
	index        Index
	checkpointer Checkpointer
	observer     Observer
	clock        Clock
	ids          IDGenerator
	logger       *slog.Logger
	onProgress   func(Progress)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithCheckpointer enables checkpoints and resumption.
func WithCheckpointer(cp Checkpointer) Option {
	return func(c *Coordinator) {
		c.checkpointer = cp
	}
}

// WithObserver receives unit, checkpoint and progress events.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		c.observer = o
	}
}

// WithClock replaces the system clock.
func WithClock(clock Clock) Option {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

// WithIDGenerator replaces the UUIDv7 run ID generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(c *Coordinator) {
		c.ids = g
	}
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithProgress sets a callback for progress snapshots, throttled to
// Options.ProgressInterval. The final snapshot is always delivered.
func WithProgress(fn func(Progress)) Option {
	return func(c *Coordinator) {
		c.onProgress = fn
	}
}

// New creates a Coordinator over index.
func New(index Index, opts Options, options ...Option) *Coordinator {
	c := &Coordinator{
		opts:     opts,
		index:    index,
		observer: NoopObserver{},
		clock:    systemClock{},
		ids:      UUIDv7Generator{},
		logger:   slog.Default(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Fingerprint identifies the inputs of a run for resumption.
func Fingerprint(space combo.Space, th affinity.Thresholds, units int, span uint64, indexDigest string) string {
	h := sha256.New()
	fmt.Fprintf(h, "space=%d..%d/%d;thresholds=%d/%d/%d;units=%d;span=%d;index=%s",
		space.Min, space.Max, space.K, th.Pairs, th.Triples, th.Quads, units, span, indexDigest)
	return hex.EncodeToString(h.Sum(nil))
}

// runState is owned by the merge loop.
type runState struct {
	runID       string
	fingerprint string
	span        uint64
	units       int

	agg       *results.Aggregator
	completed *roaring.Bitmap
	failures  []UnitFailure
	counters  affinity.Counters
	processed uint64
	cancelled int

	saved            int // records already persisted
	omegaSince       int
	processedSince   uint64
	checkpointed     bool
	checkpointErrors int
}

// Run executes the search. It returns an error only when the run cannot
// start (configuration, partition), when the merge detects a duplicate
// combination, or when no checkpoint could be written at all; in the last
// case the report is returned as well.
//
// Cancelling ctx stops dispatch and interrupts running units; the report
// then has Interrupted set and the final checkpoint records what completed.
func (c *Coordinator) Run(ctx context.Context) (*Report, error) {
	if err := c.opts.Validate(); err != nil {
		return nil, err
	}
	if c.index == nil {
		return nil, &ConfigError{Field: "index", Message: "no frequency index"}
	}

	span := c.opts.span()
	workers := c.opts.workerCount()
	ranges := combo.Partition(span, c.opts.Units)
	if err := combo.VerifyPartition(span, ranges); err != nil {
		return nil, fmt.Errorf("partition: %w", err)
	}

	st := &runState{
		fingerprint: Fingerprint(c.opts.Space, c.opts.Thresholds, len(ranges), span, c.index.Digest()),
		span:        span,
		units:       len(ranges),
		agg:         results.NewAggregator(),
		completed:   roaring.New(),
	}

	var baseElapsed time.Duration
	resumed, err := c.resume(ctx, st, &baseElapsed)
	if err != nil {
		return nil, err
	}
	if st.runID == "" {
		st.runID = c.ids.Generate()
	}

	var pending []combo.WorkRange
	for _, r := range ranges {
		if !st.completed.Contains(uint32(r.Unit)) {
			pending = append(pending, r)
		}
	}

	c.logger.Info("search starting",
		"run_id", st.runID,
		"mode", c.opts.Mode(),
		"space", c.opts.Space.String(),
		"combinations", span,
		"workers", workers,
		"units", len(ranges),
		"pending", len(pending),
		"resumed", resumed,
	)

	start := c.clock.Now()
	tr := newTracker(start, span, len(ranges), baseElapsed, st.processed)
	gate := newProgressGate(c.opts.ProgressInterval)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	out := make(chan unitResult)
	go c.dispatch(runCtx, pending, workers, out)

	var abort error
	for res := range out {
		if abort != nil {
			continue // drain so workers can exit
		}
		if err := c.merge(st, res); err != nil {
			abort = err
			cancel()
			continue
		}

		now := c.clock.Now()
		p := tr.snapshot(now, st.processed, st.agg.Len(), int(st.completed.GetCardinality()))
		c.observer.OnProgress(p)
		if c.onProgress != nil && gate.allow(now) {
			c.onProgress(p)
		}
		if c.checkpointDue(st) {
			c.checkpoint(ctx, st, store.StatusRunning, p.Elapsed) //nolint:errcheck // logged, retried next interval
		}
	}
	if abort != nil {
		c.logger.Error("search aborted", "run_id", st.runID, "error", abort)
		return nil, abort
	}

	finishedAt := c.clock.Now()
	final := tr.snapshot(finishedAt, st.processed, st.agg.Len(), int(st.completed.GetCardinality()))
	c.observer.OnProgress(final)
	if c.onProgress != nil {
		c.onProgress(final)
	}

	records := st.agg.Records()
	report := &Report{
		RunID:       st.runID,
		Fingerprint: st.fingerprint,
		Mode:        c.opts.Mode(),
		Workers:     workers,
		Units:       len(ranges),
		Resumed:     resumed,
		Progress:    final,
		Records:     records,
		Summary:     results.Summarize(records),
		Counters:    st.counters,
		Failures:    st.failures,
		Interrupted: ctx.Err() != nil || st.cancelled > 0,
		Complete:    st.completed.GetCardinality() == uint64(len(ranges)),
		FinishedAt:  finishedAt,
	}

	var runErr error
	if c.checkpointer != nil {
		// Persist the final state even when ctx is already cancelled.
		if err := c.checkpoint(context.WithoutCancel(ctx), st, report.Status(), final.Elapsed); err != nil && !st.checkpointed {
			runErr = fmt.Errorf("%w: %w", ErrCheckpoint, err)
		}
	}

	c.logger.Info("search finished",
		"run_id", st.runID,
		"status", report.Status(),
		"processed", final.Processed,
		"omega", len(records),
		"failed_units", len(st.failures),
		"elapsed", final.Elapsed,
	)
	return report, runErr
}

// resume loads the latest unfinished run with a matching fingerprint into st.
func (c *Coordinator) resume(ctx context.Context, st *runState, baseElapsed *time.Duration) (bool, error) {
	if c.checkpointer == nil || !c.opts.Resume {
		return false, nil
	}
	// A run started with an already cancelled context still records itself
	// as interrupted, so the lookup must not fail on cancellation.
	prev, records, err := c.checkpointer.LoadCheckpoint(context.WithoutCancel(ctx), st.fingerprint)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: load: %w", ErrCheckpoint, err)
	}
	if !prev.Status.Resumable() {
		c.logger.Warn("checkpoint not resumable", "run_id", prev.ID, "status", prev.Status)
		return false, nil
	}
	if err := st.agg.Add(records...); err != nil {
		return false, fmt.Errorf("resume %s: %w", prev.ID, err)
	}

	st.runID = prev.ID
	if prev.Completed != nil {
		st.completed = prev.Completed
	}
	st.processed = prev.Processed
	st.saved = len(records)
	st.checkpointed = true
	*baseElapsed = prev.Elapsed

	c.logger.Info("resuming run",
		"run_id", prev.ID,
		"completed_units", st.completed.GetCardinality(),
		"processed", prev.Processed,
		"omega", len(records),
	)
	return true, nil
}

// dispatch feeds pending units to a pool of at most workers goroutines and
// closes out once every dispatched unit has reported.
func (c *Coordinator) dispatch(ctx context.Context, pending []combo.WorkRange, workers int, out chan<- unitResult) {
	defer close(out)

	var g errgroup.Group
	g.SetLimit(workers)
	for _, rng := range pending {
		if ctx.Err() != nil {
			break
		}
		rng := rng // per-iteration copy; go.mod targets go1.21 loop semantics
		g.Go(func() error {
			out <- runUnit(ctx, c.opts.Space, c.index, c.opts.Thresholds, c.clock, rng)
			return nil
		})
	}
	_ = g.Wait() // workers report through out, never through the group
}

// merge folds one unit result into st. Only a duplicate record is an error.
func (c *Coordinator) merge(st *runState, res unitResult) error {
	switch {
	case res.cancelled:
		st.cancelled++
		c.logger.Debug("unit cancelled", "unit", res.rng.Unit, "start", res.rng.Start, "end", res.rng.End)
		return nil

	case res.err != nil:
		st.failures = append(st.failures, UnitFailure{Range: res.rng, Err: res.err})
		c.observer.OnUnitFailed(res.rng, res.err)
		c.logger.Error("unit failed",
			"unit", res.rng.Unit,
			"start", res.rng.Start,
			"end", res.rng.End,
			"error", res.err,
		)
		return nil
	}

	if err := st.agg.Add(res.records...); err != nil {
		return err
	}
	st.processed += res.processed
	st.completed.Add(uint32(res.rng.Unit))
	st.counters.Add(res.counters)
	st.omegaSince += len(res.records)
	st.processedSince += res.processed
	c.observer.OnUnitDone(res.rng, res.counters, res.duration)

	c.logger.Debug("unit done",
		"unit", res.rng.Unit,
		"processed", res.processed,
		"omega", len(res.records),
		"duration", res.duration,
	)
	return nil
}

func (c *Coordinator) checkpointDue(st *runState) bool {
	if c.checkpointer == nil {
		return false
	}
	if c.opts.CheckpointEvery > 0 && st.omegaSince >= c.opts.CheckpointEvery {
		return true
	}
	return c.opts.CheckpointProcessed > 0 && st.processedSince >= c.opts.CheckpointProcessed
}

// checkpoint persists the run row and every record not yet saved. Failures
// are logged and reported to the observer; the interval counters reset either
// way so a failing store is retried at the next interval, not on every unit.
func (c *Coordinator) checkpoint(ctx context.Context, st *runState, status store.Status, elapsed time.Duration) error {
	run := store.Run{
		ID:          st.runID,
		Fingerprint: st.fingerprint,
		Space:       c.opts.Space,
		Thresholds:  c.opts.Thresholds,
		IndexDigest: c.index.Digest(),
		Units:       st.units,
		Total:       st.span,
		Processed:   st.processed,
		Elapsed:     elapsed,
		OmegaCount:  st.agg.Len(),
		Completed:   st.completed,
		Failed:      failedUnits(st.failures),
		Status:      status,
	}

	start := c.clock.Now()
	err := c.checkpointer.SaveCheckpoint(ctx, run, st.agg.Since(st.saved))
	c.observer.OnCheckpoint(c.clock.Now().Sub(start), err)
	st.omegaSince, st.processedSince = 0, 0
	if err != nil {
		st.checkpointErrors++
		c.logger.Warn("checkpoint failed",
			"run_id", st.runID,
			"status", status,
			"attempt_failures", st.checkpointErrors,
			"error", err,
		)
		return err
	}

	st.saved = st.agg.Len()
	st.checkpointed = true
	c.logger.Debug("checkpoint saved",
		"run_id", st.runID,
		"status", status,
		"processed", st.processed,
		"omega", st.saved,
	)
	return nil
}

func failedUnits(failures []UnitFailure) []store.FailedUnit {
	out := make([]store.FailedUnit, len(failures))
	for i, f := range failures {
		out[i] = store.FailedUnit{
			Unit:   f.Range.Unit,
			Start:  f.Range.Start,
			End:    f.Range.End,
			Reason: f.Err.Error(),
		}
	}
	return out
}
