// Package store provides SQLite-backed durable checkpoints for Omega searches.
//
// The store keeps:
//   - Runs: one row per search run with its fingerprint, progress counters,
//     the set of completed work units and the failed unit list
//   - Omega: every Omega combination found by a run
//
// # Critical Patterns
//
// Idempotent result writes:
//   - UNIQUE(run_id, numbers) with ON CONFLICT DO NOTHING
//   - Re-saving records already persisted by an earlier checkpoint is a no-op
//
// Atomic checkpoints:
//   - The run row and the new Omega rows are written in one transaction, so
//     a crash leaves either the previous checkpoint or the new one
//
// Resume by fingerprint:
//   - A run is identified for resumption by a fingerprint of its space,
//     thresholds, unit count and frequency index digest; a checkpoint is never
//     applied to a search with different inputs
//
// # Completed unit set
//
// Completed unit indexes are held in a roaring bitmap, serialized and
// zstd-compressed into runs.completed.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
