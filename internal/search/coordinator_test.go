package search

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/omega/internal/affinity"
	"github.com/roach88/omega/internal/combo"
	"github.com/roach88/omega/internal/freq"
	"github.com/roach88/omega/internal/results"
	"github.com/roach88/omega/internal/store"
	"github.com/roach88/omega/internal/testutil"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func smallOptions(workers int) Options {
	opts := DefaultOptions()
	opts.Space = testutil.SmallSpace()
	opts.Thresholds = testutil.SyntheticThresholds()
	opts.Workers = workers
	opts.Units = 8 // 115 combinations each, the last 119
	opts.ProgressInterval = 0
	return opts
}

func newTestCoordinator(t *testing.T, index Index, opts Options, extra ...Option) *Coordinator {
	t.Helper()
	base := []Option{
		WithClock(testutil.NewStepClock(time.Millisecond)),
		WithIDGenerator(testutil.NewFixedIDGenerator("")),
		WithLogger(quietLogger),
	}
	return New(index, opts, append(base, extra...)...)
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "omega.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// bruteForce evaluates every combination directly, without the coordinator.
func bruteForce(t *testing.T, space combo.Space, lookup affinity.Lookup, th affinity.Thresholds) []results.Record {
	t.Helper()
	eval := affinity.NewEvaluator(lookup, th)
	var out []results.Record
	for _, c := range combo.Enumerate(space) {
		r, err := eval.Evaluate(c)
		require.NoError(t, err)
		if r.Omega {
			out = append(out, results.NewRecord(c, r))
		}
	}
	results.Rank(out)
	return out
}

func TestRun_MatchesBruteForce(t *testing.T) {
	space := testutil.SmallSpace()
	idx := testutil.SyntheticIndex(t, space)
	want := bruteForce(t, space, idx, testutil.SyntheticThresholds())
	require.Len(t, want, 47)

	report, err := newTestCoordinator(t, idx, smallOptions(4)).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Complete)
	assert.False(t, report.Interrupted)
	assert.Empty(t, report.Failures)
	assert.Equal(t, "test-run-default", report.RunID)
	assert.Equal(t, ModeFull, report.Mode)
	assert.Equal(t, 4, report.Workers)
	assert.Equal(t, 8, report.Units)
	assert.Equal(t, uint64(924), report.Progress.Processed)
	assert.Equal(t, uint64(924), report.Progress.Total)
	assert.InDelta(t, 100.0, report.Progress.Percent, 1e-9)
	assert.Equal(t, 47, report.Progress.OmegaFound)
	assert.Equal(t, want, report.Records)
	assert.Equal(t, uint64(924), report.Counters.Evaluated)
	assert.Equal(t, uint64(47), report.Counters.Omega)
	assert.Equal(t, results.Summarize(want), report.Summary)
}

func TestRun_RankedResultsGolden(t *testing.T) {
	space := testutil.SmallSpace()
	report, err := newTestCoordinator(t, testutil.SyntheticIndex(t, space), smallOptions(3)).Run(context.Background())
	require.NoError(t, err)

	data, err := json.MarshalIndent(report.Records, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "synthetic_ranked", append(data, '\n'))
}

func TestRun_IndependentOfWorkerCount(t *testing.T) {
	space := testutil.SmallSpace()
	idx := testutil.SyntheticIndex(t, space)

	var first []results.Record
	for _, workers := range []int{1, 2, 5, 16} {
		report, err := newTestCoordinator(t, idx, smallOptions(workers)).Run(context.Background())
		require.NoError(t, err, "workers=%d", workers)
		require.True(t, report.Complete)
		if first == nil {
			first = report.Records
			continue
		}
		assert.Equal(t, first, report.Records, "workers=%d", workers)
	}
}

func TestRun_Idempotent(t *testing.T) {
	space := testutil.SmallSpace()
	idx := testutil.SyntheticIndex(t, space)
	opts := smallOptions(4)

	a, err := newTestCoordinator(t, idx, opts).Run(context.Background())
	require.NoError(t, err)
	b, err := newTestCoordinator(t, idx, opts).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, a.Records, b.Records)
	assert.Equal(t, a.Fingerprint, b.Fingerprint)
}

func TestRun_WorkersCappedByMaxWorkers(t *testing.T) {
	opts := smallOptions(64)
	opts.MaxWorkers = 16
	report, err := newTestCoordinator(t, testutil.SyntheticIndex(t, opts.Space), opts).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 16, report.Workers)
	assert.Equal(t, 8, report.Units, "units do not follow the worker count")
}

func TestRun_UnitsClampedToSpan(t *testing.T) {
	opts := smallOptions(2)
	opts.Units = 5000
	report, err := newTestCoordinator(t, testutil.SyntheticIndex(t, opts.Space), opts).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 924, report.Units)
	assert.True(t, report.Complete)
	assert.Len(t, report.Records, 47)
}

func TestRun_FinishedAtFromClock(t *testing.T) {
	opts := smallOptions(2)
	clock := testutil.NewManualClock(time.Time{})
	start := clock.Now()

	report, err := newTestCoordinator(t, testutil.SyntheticIndex(t, opts.Space), opts,
		WithClock(clock),
		WithProgress(func(Progress) { clock.Advance(time.Second) }),
	).Run(context.Background())
	require.NoError(t, err)

	// One advance per unit before the final snapshot.
	assert.Equal(t, start.Add(8*time.Second), report.FinishedAt)
	assert.Equal(t, 8*time.Second, report.Progress.Elapsed)
}

// panicIndex fails every lookup of the pair (1, 2), which only occurs in the
// combinations at lexicographic indexes [0, 210) of SmallSpace.
type panicIndex struct {
	*freq.Index
}

func (p panicIndex) Pair(a, b int) int64 {
	if min(a, b) == 1 && max(a, b) == 2 {
		panic("corrupt pair table")
	}
	return p.Index.Pair(a, b)
}

func TestRun_UnitFailureIsIsolated(t *testing.T) {
	space := testutil.SmallSpace()
	idx := testutil.SyntheticIndex(t, space)

	opts := smallOptions(2) // 8 units of 115, the last 119
	report, err := newTestCoordinator(t, panicIndex{idx}, opts).Run(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Complete)
	assert.False(t, report.Interrupted)
	require.Len(t, report.Failures, 2)

	failed := map[int]bool{}
	for _, f := range report.Failures {
		failed[f.Range.Unit] = true
		var pe *PanicError
		require.ErrorAs(t, f.Err, &pe)
		assert.Contains(t, f.Error(), "corrupt pair table")
		// Both units start inside [0, 210), so their first combination panics.
		assert.Equal(t, f.Range.Start, pe.Index)
	}
	assert.Equal(t, map[int]bool{0: true, 1: true}, failed)

	// Failed units count as unprocessed.
	assert.Equal(t, uint64(924-230), report.Progress.Processed)

	// Siblings' Omega records are all present.
	var want []results.Record
	for _, r := range bruteForce(t, space, idx, opts.Thresholds) {
		rank, err := combo.Rank(space, r.Numbers)
		require.NoError(t, err)
		if rank >= 230 {
			want = append(want, r)
		}
	}
	assert.Len(t, want, 43)
	assert.Equal(t, want, report.Records)
	assert.Equal(t, store.StatusPartial, report.Status())
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := smallOptions(2)
	report, err := newTestCoordinator(t, testutil.SyntheticIndex(t, opts.Space), opts).Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.Interrupted)
	assert.False(t, report.Complete)
	assert.Zero(t, report.Progress.Processed)
	assert.Empty(t, report.Records)
	assert.Equal(t, store.StatusInterrupted, report.Status())
}

func TestRun_InterruptedThenResumed(t *testing.T) {
	space := testutil.SmallSpace()
	idx := testutil.SyntheticIndex(t, space)
	s := openStore(t)

	opts := smallOptions(1)
	opts.CheckpointEvery = 1
	opts.Resume = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first, err := newTestCoordinator(t, idx, opts,
		WithCheckpointer(s),
		WithIDGenerator(testutil.NewFixedIDGenerator("run-a")),
		WithProgress(func(Progress) { cancel() }),
	).Run(ctx)
	require.NoError(t, err)
	require.True(t, first.Interrupted)
	require.False(t, first.Complete)
	require.Positive(t, first.Progress.UnitsDone)

	stored, err := s.GetRun(context.Background(), "run-a")
	require.NoError(t, err)
	assert.Equal(t, store.StatusInterrupted, stored.Status)
	assert.Equal(t, uint64(first.Progress.UnitsDone), stored.Completed.GetCardinality())
	assert.Equal(t, first.Progress.Processed, stored.Processed)

	second, err := newTestCoordinator(t, idx, opts,
		WithCheckpointer(s),
		WithIDGenerator(testutil.NewFixedIDGenerator("run-b")),
	).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, second.Resumed)
	assert.Equal(t, "run-a", second.RunID, "resume continues the interrupted run")
	assert.True(t, second.Complete)
	assert.Equal(t, uint64(924), second.Progress.Processed)
	assert.Greater(t, second.Progress.Elapsed, first.Progress.Elapsed)

	uninterrupted, err := newTestCoordinator(t, idx, smallOptions(4)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uninterrupted.Records, second.Records)

	persisted, err := s.Results(context.Background(), "run-a")
	require.NoError(t, err)
	assert.Equal(t, uninterrupted.Records, persisted)

	final, err := s.GetRun(context.Background(), "run-a")
	require.NoError(t, err)
	assert.Equal(t, store.StatusComplete, final.Status)
	assert.Equal(t, 47, final.OmegaCount)
}

func TestRun_ResumedWithDifferentWorkerCount(t *testing.T) {
	space := testutil.SmallSpace()
	idx := testutil.SyntheticIndex(t, space)
	s := openStore(t)

	opts := smallOptions(1)
	opts.Resume = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first, err := newTestCoordinator(t, idx, opts,
		WithCheckpointer(s),
		WithIDGenerator(testutil.NewFixedIDGenerator("run-a")),
		WithProgress(func(Progress) { cancel() }),
	).Run(ctx)
	require.NoError(t, err)
	require.True(t, first.Interrupted)
	require.Positive(t, first.Progress.UnitsDone)

	wider := opts
	wider.Workers = 2
	second, err := newTestCoordinator(t, idx, wider,
		WithCheckpointer(s),
		WithIDGenerator(testutil.NewFixedIDGenerator("run-b")),
	).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, second.Resumed)
	assert.Equal(t, "run-a", second.RunID)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, 2, second.Workers)
	assert.True(t, second.Complete)
	assert.Equal(t, uint64(924), second.Progress.Processed)

	uninterrupted, err := newTestCoordinator(t, idx, smallOptions(2)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uninterrupted.Records, second.Records)
}

func TestRun_CompletedRunIsNotResumed(t *testing.T) {
	opts := smallOptions(2)
	opts.Resume = true
	idx := testutil.SyntheticIndex(t, opts.Space)
	s := openStore(t)

	_, err := newTestCoordinator(t, idx, opts, WithCheckpointer(s),
		WithIDGenerator(testutil.NewFixedIDGenerator("run-a"))).Run(context.Background())
	require.NoError(t, err)

	again, err := newTestCoordinator(t, idx, opts, WithCheckpointer(s),
		WithIDGenerator(testutil.NewFixedIDGenerator("run-b"))).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, again.Resumed)
	assert.Equal(t, "run-b", again.RunID)
}

func TestRun_DifferentInputsDoNotResume(t *testing.T) {
	opts := smallOptions(1)
	opts.Resume = true
	idx := testutil.SyntheticIndex(t, opts.Space)
	s := openStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := newTestCoordinator(t, idx, opts, WithCheckpointer(s),
		WithIDGenerator(testutil.NewFixedIDGenerator("run-a")),
		WithProgress(func(Progress) { cancel() })).Run(ctx)
	require.NoError(t, err)

	changed := opts
	changed.Thresholds.Quads++
	report, err := newTestCoordinator(t, idx, changed, WithCheckpointer(s),
		WithIDGenerator(testutil.NewFixedIDGenerator("run-b"))).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Resumed)
	assert.Equal(t, "run-b", report.RunID)
}

type failingCheckpointer struct {
	mu    sync.Mutex
	saves int
}

func (f *failingCheckpointer) LoadCheckpoint(context.Context, string) (store.Run, []results.Record, error) {
	return store.Run{}, nil, store.ErrNotFound
}

func (f *failingCheckpointer) SaveCheckpoint(context.Context, store.Run, []results.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	return errors.New("disk full")
}

func TestRun_CheckpointFailuresDoNotAbortSearch(t *testing.T) {
	opts := smallOptions(2)
	opts.CheckpointEvery = 5
	cp := &failingCheckpointer{}

	report, err := newTestCoordinator(t, testutil.SyntheticIndex(t, opts.Space), opts,
		WithCheckpointer(cp)).Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCheckpoint)
	require.NotNil(t, report, "the report survives a checkpoint failure")
	assert.True(t, report.Complete)
	assert.Len(t, report.Records, 47)
	assert.Greater(t, cp.saves, 1, "interval checkpoints were attempted before the final one")
}

// countingCheckpointer accepts every save and has nothing to resume.
type countingCheckpointer struct {
	saves    int
	statuses []store.Status
}

func (c *countingCheckpointer) LoadCheckpoint(context.Context, string) (store.Run, []results.Record, error) {
	return store.Run{}, nil, store.ErrNotFound
}

func (c *countingCheckpointer) SaveCheckpoint(_ context.Context, run store.Run, _ []results.Record) error {
	c.saves++
	c.statuses = append(c.statuses, run.Status)
	return nil
}

func TestRun_CheckpointByProcessedCount(t *testing.T) {
	tests := []struct {
		name      string
		processed uint64
		saves     int
	}{
		// Every second unit crosses 200 processed combinations.
		{"every 200 processed", 200, 5},
		{"every 100 processed", 100, 9},
		{"disabled", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := smallOptions(2)
			opts.CheckpointEvery = 0
			opts.CheckpointProcessed = tt.processed
			cp := &countingCheckpointer{}

			report, err := newTestCoordinator(t, testutil.SyntheticIndex(t, opts.Space), opts,
				WithCheckpointer(cp)).Run(context.Background())
			require.NoError(t, err)
			require.True(t, report.Complete)

			assert.Equal(t, tt.saves, cp.saves)
			for _, status := range cp.statuses[:len(cp.statuses)-1] {
				assert.Equal(t, store.StatusRunning, status)
			}
			assert.Equal(t, store.StatusComplete, cp.statuses[len(cp.statuses)-1])
		})
	}
}

// stateCheckpointer resumes from a fixed run and records.
type stateCheckpointer struct {
	run     store.Run
	records []results.Record
}

func (s stateCheckpointer) LoadCheckpoint(context.Context, string) (store.Run, []results.Record, error) {
	return s.run, s.records, nil
}

func (s stateCheckpointer) SaveCheckpoint(context.Context, store.Run, []results.Record) error {
	return nil
}

func TestRun_DuplicateRecordAbortsRun(t *testing.T) {
	space := testutil.SmallSpace()
	idx := testutil.SyntheticIndex(t, space)
	top := bruteForce(t, space, idx, testutil.SyntheticThresholds())[0]

	// The checkpoint claims a record its unit was never marked complete for,
	// so the unit finds it again.
	cp := stateCheckpointer{
		run:     store.Run{ID: "run-dup", Completed: roaring.New()},
		records: []results.Record{top},
	}
	opts := smallOptions(2)
	opts.Resume = true

	report, err := newTestCoordinator(t, idx, opts, WithCheckpointer(cp)).Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, results.IsDuplicateError(err))
}

func TestRun_FinishedCheckpointIsNotResumed(t *testing.T) {
	space := testutil.SmallSpace()
	idx := testutil.SyntheticIndex(t, space)
	top := bruteForce(t, space, idx, testutil.SyntheticThresholds())[0]

	cp := stateCheckpointer{
		run:     store.Run{ID: "run-done", Status: store.StatusComplete, Completed: roaring.New()},
		records: []results.Record{top},
	}
	opts := smallOptions(2)
	opts.Resume = true

	report, err := newTestCoordinator(t, idx, opts,
		WithCheckpointer(cp),
		WithIDGenerator(testutil.NewFixedIDGenerator("run-new")),
	).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Resumed)
	assert.Equal(t, "run-new", report.RunID)
	assert.Len(t, report.Records, 47)
}

// recordingObserver counts events.
type recordingObserver struct {
	done, failed, checkpoints, progress int
}

func (o *recordingObserver) OnUnitDone(combo.WorkRange, affinity.Counters, time.Duration) { o.done++ }
func (o *recordingObserver) OnUnitFailed(combo.WorkRange, error)                           { o.failed++ }
func (o *recordingObserver) OnCheckpoint(time.Duration, error)                             { o.checkpoints++ }
func (o *recordingObserver) OnProgress(Progress)                                           { o.progress++ }

func TestRun_ObserverAndProgressThrottle(t *testing.T) {
	opts := smallOptions(2)
	opts.ProgressInterval = time.Hour
	idx := testutil.SyntheticIndex(t, opts.Space)
	obs := &recordingObserver{}
	var snapshots []Progress

	report, err := newTestCoordinator(t, panicIndex{idx}, opts,
		WithObserver(obs),
		WithCheckpointer(openStore(t)),
		WithProgress(func(p Progress) { snapshots = append(snapshots, p) }),
	).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, obs.done)
	assert.Equal(t, 2, obs.failed)
	assert.Equal(t, 9, obs.progress, "one per unit plus the final snapshot")
	assert.Equal(t, 1, obs.checkpoints, "only the final checkpoint at these intervals")

	require.Len(t, snapshots, 2, "first snapshot passes the gate, then only the final one")
	assert.Equal(t, report.Progress, snapshots[1])
}

func TestRun_SmokeLimit(t *testing.T) {
	space := testutil.SmallSpace()
	idx := testutil.SyntheticIndex(t, space)
	opts := smallOptions(3)
	opts.Limit = 300

	report, err := newTestCoordinator(t, idx, opts).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ModeSmoke, report.Mode)
	assert.True(t, report.Complete)
	assert.Equal(t, uint64(300), report.Progress.Processed)
	assert.Equal(t, uint64(300), report.Progress.Total)

	for _, r := range report.Records {
		rank, err := combo.Rank(space, r.Numbers)
		require.NoError(t, err)
		assert.Less(t, rank, uint64(300))
	}
	assert.Len(t, report.Records, 5) // indexes 45, 161, 167, 220, 254
}

func TestRun_ConfigErrors(t *testing.T) {
	idx := testutil.SyntheticIndex(t, testutil.SmallSpace())
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"empty space", func(o *Options) { o.Space = combo.Space{Min: 1, Max: 3, K: 6} }},
		{"k below four", func(o *Options) { o.Space.K = 3 }},
		{"zero threshold", func(o *Options) { o.Thresholds.Triples = 0 }},
		{"negative workers", func(o *Options) { o.Workers = -1 }},
		{"no units", func(o *Options) { o.Units = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := smallOptions(2)
			tt.mutate(&opts)
			_, err := newTestCoordinator(t, idx, opts).Run(context.Background())
			require.Error(t, err)
			assert.True(t, IsConfigError(err))
		})
	}

	_, err := newTestCoordinator(t, nil, smallOptions(1)).Run(context.Background())
	assert.True(t, IsConfigError(err))
}

func TestFingerprint(t *testing.T) {
	space := testutil.SmallSpace()
	th := testutil.SyntheticThresholds()
	a := Fingerprint(space, th, 8, 924, "abc")
	assert.Equal(t, a, Fingerprint(space, th, 8, 924, "abc"))
	assert.NotEqual(t, a, Fingerprint(space, th, 9, 924, "abc"))
	assert.NotEqual(t, a, Fingerprint(space, th, 8, 300, "abc"))
	assert.NotEqual(t, a, Fingerprint(space, th, 8, 924, "abd"))
}
