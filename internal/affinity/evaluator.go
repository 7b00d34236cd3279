// Package affinity classifies combinations into the Omega Class.
//
// A combination is Omega when its pairs, triples and quads affinities (sums
// of historical co-occurrence counts over all sub-tuples of that arity) all
// meet their thresholds. The checks run in that order and stop at the first
// failure: the 15 pair lookups reject the vast majority of combinations
// before any of the 35 triple and quad lookups are paid for.
package affinity

import (
	"errors"
	"fmt"

	"github.com/roach88/omega/internal/combo"
)

// Lookup answers co-occurrence counts. *freq.Index implements it.
// Implementations must be safe for concurrent reads.
type Lookup interface {
	Pair(a, b int) int64
	Triple(a, b, c int) int64
	Quad(a, b, c, d int) int64
}

// Thresholds are the minimum affinities for Omega classification.
type Thresholds struct {
	Pairs   int64 `json:"pairs" yaml:"pairs"`
	Triples int64 `json:"triples" yaml:"triples"`
	Quads   int64 `json:"quads" yaml:"quads"`
}

// DefaultThresholds returns the calibrated Omega thresholds (459, 74, 10).
func DefaultThresholds() Thresholds {
	return Thresholds{Pairs: 459, Triples: 74, Quads: 10}
}

// Validate requires all thresholds to be positive.
func (t Thresholds) Validate() error {
	if t.Pairs <= 0 || t.Triples <= 0 || t.Quads <= 0 {
		return fmt.Errorf("thresholds must be positive, got pairs=%d triples=%d quads=%d", t.Pairs, t.Triples, t.Quads)
	}
	return nil
}

// Stage records how far evaluation got before a decision was made.
type Stage uint8

const (
	// StagePairs: only the pairs score was computed (it fell short).
	StagePairs Stage = iota + 1
	// StageTriples: pairs passed, triples computed and fell short.
	StageTriples
	// StageFull: all three scores were computed.
	StageFull
)

func (s Stage) String() string {
	switch s {
	case StagePairs:
		return "pairs_only"
	case StageTriples:
		return "pairs_and_triples"
	case StageFull:
		return "full"
	default:
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
}

// Result holds the scores computed for one combination. Scores past the
// reached Stage were never computed and are reported as 0.
type Result struct {
	Pairs   int64
	Triples int64
	Quads   int64
	Stage   Stage
	Omega   bool
}

// Total is the sum of the three scores.
func (r Result) Total() int64 {
	return r.Pairs + r.Triples + r.Quads
}

// InvalidCombinationError is returned for combinations the evaluator cannot
// score: fewer than four numbers, or values that are not strictly increasing.
type InvalidCombinationError struct {
	Combination []int
	Reason      string
}

func (e *InvalidCombinationError) Error() string {
	return fmt.Sprintf("invalid combination %v: %s", e.Combination, e.Reason)
}

// IsInvalidCombination reports whether err wraps an InvalidCombinationError.
func IsInvalidCombination(err error) bool {
	var ice *InvalidCombinationError
	return errors.As(err, &ice)
}

// Counters track how many evaluations reached each stage.
type Counters struct {
	Evaluated      uint64 `json:"evaluated"`
	ReachedTriples uint64 `json:"reached_triples"`
	ReachedQuads   uint64 `json:"reached_quads"`
	Omega          uint64 `json:"omega"`
}

// Add accumulates other into c.
func (c *Counters) Add(other Counters) {
	c.Evaluated += other.Evaluated
	c.ReachedTriples += other.ReachedTriples
	c.ReachedQuads += other.ReachedQuads
	c.Omega += other.Omega
}

// Evaluator scores combinations against a shared Lookup.
//
// Thread-safety: an Evaluator keeps per-instance counters and must not be
// shared between goroutines. Build one per worker; the Lookup it wraps is
// shared read-only.
type Evaluator struct {
	lookup     Lookup
	thresholds Thresholds
	counters   Counters
}

// NewEvaluator creates an evaluator. Thresholds are taken as given; validate
// them upstream.
func NewEvaluator(lookup Lookup, thresholds Thresholds) *Evaluator {
	return &Evaluator{lookup: lookup, thresholds: thresholds}
}

// Counters returns the stage counters accumulated so far.
func (e *Evaluator) Counters() Counters {
	return e.counters
}

// Evaluate scores c and classifies it.
func (e *Evaluator) Evaluate(c combo.Combination) (Result, error) {
	if len(c) < 4 {
		return Result{}, &InvalidCombinationError{Combination: c, Reason: fmt.Sprintf("need at least 4 numbers, got %d", len(c))}
	}
	for i := 1; i < len(c); i++ {
		if c[i] <= c[i-1] {
			return Result{}, &InvalidCombinationError{Combination: c, Reason: "values must be strictly increasing"}
		}
	}

	e.counters.Evaluated++
	r := Result{Stage: StagePairs}

	r.Pairs = e.pairs(c)
	if r.Pairs < e.thresholds.Pairs {
		return r, nil
	}

	e.counters.ReachedTriples++
	r.Stage = StageTriples
	r.Triples = e.triples(c)
	if r.Triples < e.thresholds.Triples {
		return r, nil
	}

	e.counters.ReachedQuads++
	r.Stage = StageFull
	r.Quads = e.quads(c)
	r.Omega = r.Quads >= e.thresholds.Quads
	if r.Omega {
		e.counters.Omega++
	}
	return r, nil
}

func (e *Evaluator) pairs(c combo.Combination) int64 {
	var sum int64
	n := len(c)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum += e.lookup.Pair(c[i], c[j])
		}
	}
	return sum
}

func (e *Evaluator) triples(c combo.Combination) int64 {
	var sum int64
	n := len(c)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k < n; k++ {
				sum += e.lookup.Triple(c[i], c[j], c[k])
			}
		}
	}
	return sum
}

func (e *Evaluator) quads(c combo.Combination) int64 {
	var sum int64
	n := len(c)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k < n; k++ {
				for l := k + 1; l < n; l++ {
					sum += e.lookup.Quad(c[i], c[j], c[k], c[l])
				}
			}
		}
	}
	return sum
}
