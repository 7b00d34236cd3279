package search

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/roach88/omega/internal/affinity"
	"github.com/roach88/omega/internal/combo"
	"github.com/roach88/omega/internal/results"
)

// UnitFailure records a unit that stopped with an error. Its combinations
// count as unprocessed and it is retried on resume.
type UnitFailure struct {
	Range combo.WorkRange
	Err   error
}

func (f UnitFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.Range, f.Err)
}

// PanicError wraps a value recovered from a panicking unit. Index is the
// lexicographic index of the combination being evaluated.
type PanicError struct {
	Value any
	Index uint64
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic at combination %d: %v", e.Index, e.Value)
}

// unitResult is what a worker hands to the merge loop. Exactly one of the
// outcomes applies: completed (err == nil), failed, or cancelled.
type unitResult struct {
	rng       combo.WorkRange
	processed uint64
	records   []results.Record
	counters  affinity.Counters
	duration  time.Duration
	err       error
	cancelled bool
}

// runUnit evaluates every combination of rng with a private evaluator.
// It touches no shared mutable state.
func runUnit(ctx context.Context, space combo.Space, lookup affinity.Lookup, th affinity.Thresholds, clock Clock, rng combo.WorkRange) (res unitResult) {
	res.rng = rng
	start := clock.Now()
	it := combo.NewIterator(space, rng.Start, rng.End)
	defer func() {
		if r := recover(); r != nil {
			res = unitResult{rng: rng, err: &PanicError{Value: r, Index: it.Index(), Stack: debug.Stack()}}
		}
		res.duration = clock.Now().Sub(start)
	}()

	eval := affinity.NewEvaluator(lookup, th)
	var (
		n       uint64
		records []results.Record
	)
	for it.Next() {
		if n%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return unitResult{rng: rng, err: err, cancelled: true}
			}
		}
		c := it.Combination()
		r, err := eval.Evaluate(c)
		if err != nil {
			return unitResult{rng: rng, err: fmt.Errorf("combination %d (%s): %w", it.Index(), c, err)}
		}
		if r.Omega {
			records = append(records, results.NewRecord(c, r))
		}
		n++
	}
	if n != rng.Len() {
		return unitResult{rng: rng, err: fmt.Errorf("iterated %d of %d combinations", n, rng.Len())}
	}

	res.processed = n
	res.records = records
	res.counters = eval.Counters()
	return res
}
