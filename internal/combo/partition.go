package combo

import (
	"errors"
	"fmt"
	"sort"
)

// WorkRange is a half-open slice [Start, End) of the canonical enumeration
// assigned to one unit of work.
type WorkRange struct {
	Unit  int    `json:"unit"`
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

// Len returns the number of combinations in the range.
func (r WorkRange) Len() uint64 {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

func (r WorkRange) String() string {
	return fmt.Sprintf("unit %d [%d, %d)", r.Unit, r.Start, r.End)
}

// Partition splits [0, total) into p contiguous ranges of total/p
// combinations each; the last range absorbs the remainder. p is clamped to
// total so that no range is empty. Returns nil when there is nothing to split.
func Partition(total uint64, p int) []WorkRange {
	if total == 0 || p <= 0 {
		return nil
	}
	if uint64(p) > total {
		p = int(total)
	}
	size := total / uint64(p)
	ranges := make([]WorkRange, p)
	for i := 0; i < p; i++ {
		start := uint64(i) * size
		end := start + size
		if i == p-1 {
			end = total
		}
		ranges[i] = WorkRange{Unit: i, Start: start, End: end}
	}
	return ranges
}

// PartitionErrorKind classifies a broken partition.
type PartitionErrorKind string

const (
	PartitionGap     PartitionErrorKind = "GAP"
	PartitionOverlap PartitionErrorKind = "OVERLAP"
	PartitionEmpty   PartitionErrorKind = "EMPTY_RANGE"
	PartitionShort   PartitionErrorKind = "SHORT"
	PartitionOverrun PartitionErrorKind = "OVERRUN"
)

// PartitionError reports ranges that do not cover [0, total) exactly once.
type PartitionError struct {
	Kind  PartitionErrorKind
	At    uint64
	Range WorkRange
}

func (e *PartitionError) Error() string {
	return fmt.Sprintf("partition %s at index %d (%s)", e.Kind, e.At, e.Range)
}

// IsPartitionError reports whether err wraps a PartitionError.
func IsPartitionError(err error) bool {
	var pe *PartitionError
	return errors.As(err, &pe)
}

// VerifyPartition checks that ranges cover [0, total) with no gap and no
// overlap. Order of the input does not matter.
func VerifyPartition(total uint64, ranges []WorkRange) error {
	sorted := make([]WorkRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var cursor uint64
	for _, r := range sorted {
		switch {
		case r.End <= r.Start:
			return &PartitionError{Kind: PartitionEmpty, At: r.Start, Range: r}
		case r.Start > cursor:
			return &PartitionError{Kind: PartitionGap, At: cursor, Range: r}
		case r.Start < cursor:
			return &PartitionError{Kind: PartitionOverlap, At: r.Start, Range: r}
		case r.End > total:
			return &PartitionError{Kind: PartitionOverrun, At: total, Range: r}
		}
		cursor = r.End
	}
	if cursor != total {
		last := WorkRange{}
		if len(sorted) > 0 {
			last = sorted[len(sorted)-1]
		}
		return &PartitionError{Kind: PartitionShort, At: cursor, Range: last}
	}
	return nil
}
