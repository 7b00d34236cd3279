// Package results accumulates Omega combinations and ranks them.
//
// Records are plain values with no serialization concerns attached; report
// writers (spreadsheets, CSV, JSON) consume the ranked slice.
//
// Ranking: total affinity descending, ties broken by the lexicographic order
// of the combination. The order is therefore fully determined by the record
// set, independent of which worker found what first.
package results

import (
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/omega/internal/affinity"
	"github.com/roach88/omega/internal/combo"
)

// Record is one Omega combination with its affinity scores.
type Record struct {
	Numbers combo.Combination `json:"numbers" yaml:"numbers"`
	Pairs   int64             `json:"pairs" yaml:"pairs"`
	Triples int64             `json:"triples" yaml:"triples"`
	Quads   int64             `json:"quads" yaml:"quads"`
	Total   int64             `json:"total" yaml:"total"`
}

// NewRecord builds a record from a combination and its evaluation result.
func NewRecord(c combo.Combination, r affinity.Result) Record {
	return Record{
		Numbers: c.Clone(),
		Pairs:   r.Pairs,
		Triples: r.Triples,
		Quads:   r.Quads,
		Total:   r.Total(),
	}
}

// Key is the dedup identity of the record.
func (r Record) Key() string {
	return r.Numbers.String()
}

// DuplicateError means the same combination was reported twice. Under a
// correct partition every combination is visited by exactly one unit, so
// this signals a broken invariant.
type DuplicateError struct {
	Key string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate omega combination %s", e.Key)
}

// IsDuplicateError reports whether err wraps a DuplicateError.
func IsDuplicateError(err error) bool {
	var de *DuplicateError
	return errors.As(err, &de)
}

// Aggregator holds the deduplicated Omega set.
//
// Thread-safety: not safe for concurrent use. The search coordinator is its
// only writer.
type Aggregator struct {
	byKey   map[string]struct{}
	records []Record
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{byKey: make(map[string]struct{})}
}

// Add appends records, rejecting any combination already present. Records
// before the first duplicate are kept.
func (a *Aggregator) Add(records ...Record) error {
	for _, r := range records {
		key := r.Key()
		if _, dup := a.byKey[key]; dup {
			return &DuplicateError{Key: key}
		}
		a.byKey[key] = struct{}{}
		a.records = append(a.records, r)
	}
	return nil
}

// Len returns the number of distinct records held.
func (a *Aggregator) Len() int {
	return len(a.records)
}

// Records returns the ranked records. The slice is a copy.
func (a *Aggregator) Records() []Record {
	out := make([]Record, len(a.records))
	copy(out, a.records)
	Rank(out)
	return out
}

// Since returns the records added after the first n, in insertion order.
// The coordinator uses it to persist only what a checkpoint has not seen.
func (a *Aggregator) Since(n int) []Record {
	if n >= len(a.records) {
		return nil
	}
	out := make([]Record, len(a.records)-n)
	copy(out, a.records[n:])
	return out
}

// Rank sorts records in place: total descending, then combination ascending.
func Rank(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].Total != records[j].Total {
			return records[i].Total > records[j].Total
		}
		return records[i].Numbers.Less(records[j].Numbers)
	})
}

// Top returns at most n leading records of an already ranked slice.
func Top(ranked []Record, n int) []Record {
	if n < 0 || n >= len(ranked) {
		return ranked
	}
	return ranked[:n]
}
