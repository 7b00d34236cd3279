// Package combo enumerates k-subsets of an integer range in lexicographic order.
//
// Every combination has a stable zero-based index in the canonical ordering:
//
//	(1,2,3,4,5,6) -> 0
//	(1,2,3,4,5,7) -> 1
//	...
//	(34,35,36,37,38,39) -> 3262622
//
// Nth decodes an index directly through the combinatorial number system, so a
// worker handed the range [start, end) begins at start without walking any of
// the combinations before it. Iterator then advances in place with the
// lexicographic successor rule.
//
// # Partitioning
//
// Partition splits [0, total) into contiguous WorkRanges. The last range
// absorbs the remainder of the integer division. VerifyPartition re-checks
// the coverage before dispatch; a gap or overlap is an internal invariant
// violation and is reported as a PartitionError.
package combo
