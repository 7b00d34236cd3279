// Package freq holds the historical co-occurrence frequency index.
//
// An Index is built once from three already-deserialized tables (pairs,
// triples, quadruples) and is read-only afterwards, so any number of search
// workers may share a single *Index without locking.
//
// Tuples are stored densely: each arity has one []int64 addressed by the
// colexicographic rank of the sorted tuple, offset by the space minimum.
// For 1..39 that is 741 pairs, 9,139 triples and 82,251 quadruples.
package freq

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/omega/internal/combo"
)

// Tables are the raw frequency inputs keyed by number tuples. Keys need not
// be sorted; Build normalizes them.
type Tables struct {
	Pairs   map[[2]int]int64
	Triples map[[3]int]int64
	Quads   map[[4]int]int64
}

// ArityStats summarizes one table of the index.
type ArityStats struct {
	Entries int   `json:"entries"` // keys with a non-zero count
	Sum     int64 `json:"sum"`
}

// Stats is size and sanity metadata for logging.
type Stats struct {
	Pairs   ArityStats `json:"pairs"`
	Triples ArityStats `json:"triples"`
	Quads   ArityStats `json:"quads"`
}

// Index maps normalized number tuples to co-occurrence counts.
// Absent tuples count as 0.
type Index struct {
	min     int
	n       int
	pairs   []int64
	triples []int64
	quads   []int64
	stats   Stats
	digest  string
}

// TableError reports an unusable entry in the input tables.
type TableError struct {
	Arity  int
	Key    []int
	Reason string
}

func (e *TableError) Error() string {
	return fmt.Sprintf("frequency table (arity %d) key %v: %s", e.Arity, e.Key, e.Reason)
}

// IsTableError reports whether err wraps a TableError.
func IsTableError(err error) bool {
	var te *TableError
	return errors.As(err, &te)
}

// Build constructs an Index for the numbers of space. Keys are normalized to
// ascending order; keys that collapse onto the same tuple are summed.
// Negative counts, repeated numbers within a key, and numbers outside
// [space.Min, space.Max] are rejected.
func Build(space combo.Space, t Tables) (*Index, error) {
	n := space.N()
	if n < 4 || n > combo.MaxN {
		return nil, fmt.Errorf("build index: need between 4 and %d numbers, got %d", combo.MaxN, n)
	}
	idx := &Index{
		min:     space.Min,
		n:       n,
		pairs:   make([]int64, combo.Count(n, 2)),
		triples: make([]int64, combo.Count(n, 3)),
		quads:   make([]int64, combo.Count(n, 4)),
	}

	for k, v := range t.Pairs {
		if err := idx.add(idx.pairs, k[:], v); err != nil {
			return nil, fmt.Errorf("build index: %w", err)
		}
	}
	for k, v := range t.Triples {
		if err := idx.add(idx.triples, k[:], v); err != nil {
			return nil, fmt.Errorf("build index: %w", err)
		}
	}
	for k, v := range t.Quads {
		if err := idx.add(idx.quads, k[:], v); err != nil {
			return nil, fmt.Errorf("build index: %w", err)
		}
	}

	idx.stats = Stats{
		Pairs:   summarize(idx.pairs),
		Triples: summarize(idx.triples),
		Quads:   summarize(idx.quads),
	}
	idx.digest = idx.computeDigest()
	return idx, nil
}

func (x *Index) add(table []int64, key []int, count int64) error {
	arity := len(key)
	sorted := make([]int, arity)
	copy(sorted, key)
	sort.Ints(sorted)

	if count < 0 {
		return &TableError{Arity: arity, Key: sorted, Reason: fmt.Sprintf("negative count %d", count)}
	}
	for i, v := range sorted {
		if v < x.min || v >= x.min+x.n {
			return &TableError{Arity: arity, Key: sorted, Reason: fmt.Sprintf("number %d outside [%d, %d]", v, x.min, x.min+x.n-1)}
		}
		if i > 0 && v == sorted[i-1] {
			return &TableError{Arity: arity, Key: sorted, Reason: fmt.Sprintf("number %d repeated", v)}
		}
	}

	var r uint64
	for i, v := range sorted {
		r += combo.Count(v-x.min, i+1)
	}
	table[r] += count
	return nil
}

func summarize(table []int64) ArityStats {
	var s ArityStats
	for _, v := range table {
		if v != 0 {
			s.Entries++
			s.Sum += v
		}
	}
	return s
}

// computeDigest hashes the range and the dense tables. Two indexes with the
// same digest answer every lookup identically.
func (x *Index) computeDigest() string {
	h := sha256.New()
	var buf [8]byte
	write := func(v int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	write(int64(x.min))
	write(int64(x.n))
	for _, table := range [][]int64{x.pairs, x.triples, x.quads} {
		write(int64(len(table)))
		for _, v := range table {
			write(v)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// offset maps a number to its zero-based position, or -1 when outside the range.
func (x *Index) offset(v int) int {
	o := v - x.min
	if o < 0 || o >= x.n {
		return -1
	}
	return o
}

// Pair returns the co-occurrence count of {a, b}.
func (x *Index) Pair(a, b int) int64 {
	oa, ob := x.offset(a), x.offset(b)
	if oa < 0 || ob < 0 || oa == ob {
		return 0
	}
	if oa > ob {
		oa, ob = ob, oa
	}
	return x.pairs[uint64(oa)+combo.Count(ob, 2)]
}

// Triple returns the co-occurrence count of {a, b, c}.
func (x *Index) Triple(a, b, c int) int64 {
	o := [3]int{x.offset(a), x.offset(b), x.offset(c)}
	if !sortOffsets(o[:]) {
		return 0
	}
	return x.triples[uint64(o[0])+combo.Count(o[1], 2)+combo.Count(o[2], 3)]
}

// Quad returns the co-occurrence count of {a, b, c, d}.
func (x *Index) Quad(a, b, c, d int) int64 {
	o := [4]int{x.offset(a), x.offset(b), x.offset(c), x.offset(d)}
	if !sortOffsets(o[:]) {
		return 0
	}
	return x.quads[uint64(o[0])+combo.Count(o[1], 2)+combo.Count(o[2], 3)+combo.Count(o[3], 4)]
}

// sortOffsets insertion-sorts a short slice in place and reports whether all
// offsets are valid and distinct.
func sortOffsets(o []int) bool {
	for i := 1; i < len(o); i++ {
		for j := i; j > 0 && o[j] < o[j-1]; j-- {
			o[j], o[j-1] = o[j-1], o[j]
		}
	}
	for i, v := range o {
		if v < 0 || (i > 0 && v == o[i-1]) {
			return false
		}
	}
	return true
}

// Stats returns per-arity entry counts and sums.
func (x *Index) Stats() Stats {
	return x.stats
}

// Digest returns a hex SHA-256 of the index contents.
func (x *Index) Digest() string {
	return x.digest
}

// Min returns the smallest number the index covers.
func (x *Index) Min() int {
	return x.min
}

// Max returns the largest number the index covers.
func (x *Index) Max() int {
	return x.min + x.n - 1
}
