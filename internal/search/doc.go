// Package search runs the Omega Class search over a combination space.
//
// A Coordinator splits the lexicographic index range [0, Total) into work
// units, evaluates each unit on a bounded worker pool, and merges unit
// results in a single goroutine. Workers share only the read-only frequency
// index; every other piece of mutable state (the aggregator, the completed
// unit set, progress counters) belongs to the merge loop.
//
// # Units
//
// A unit is the granule of completion, failure and resumption:
//   - A unit that finishes contributes its processed count and Omega records.
//   - A unit that panics is recorded as a UnitFailure; siblings continue and
//     the report is marked incomplete.
//   - A unit interrupted by cancellation contributes nothing. Its partial
//     results are discarded and it runs again on resume.
//
// # Checkpoints
//
// With a Checkpointer configured, the merge loop persists the completed unit
// set and new Omega records every CheckpointEvery finds and every
// CheckpointProcessed combinations, and once more when the run ends. A
// failed checkpoint write is logged and retried at the next interval.
//
// Resumption matches runs by fingerprint: space, thresholds, unit count,
// prefix limit and frequency index digest. A checkpoint taken with other
// inputs is never applied.
//
// # Modes
//
//   - Full: the whole space.
//   - Smoke: Options.Limit bounds the run to a prefix of the space.
//   - Estimate: a single-threaded sample projects duration and Omega count.
package search
