package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/roach88/omega/internal/affinity"
	"github.com/roach88/omega/internal/combo"
	"github.com/roach88/omega/internal/results"
)

// Status is the lifecycle state of a run.
type Status string

const (
	// StatusRunning marks a run with checkpoints but no final state yet.
	// A process that crashes leaves its run here.
	StatusRunning Status = "running"
	// StatusComplete marks a run whose every unit completed.
	StatusComplete Status = "complete"
	// StatusPartial marks a finished run with at least one failed unit.
	StatusPartial Status = "partial"
	// StatusInterrupted marks a run stopped by cancellation.
	StatusInterrupted Status = "interrupted"
)

// Resumable reports whether a run in this state can be continued.
func (s Status) Resumable() bool {
	return s != StatusComplete
}

// FailedUnit records a work unit that did not complete.
type FailedUnit struct {
	Unit   int    `json:"unit"`
	Start  uint64 `json:"start"`
	End    uint64 `json:"end"`
	Reason string `json:"reason"`
}

// Run is the persisted state of one search run.
type Run struct {
	ID          string
	Fingerprint string
	Space       combo.Space
	Thresholds  affinity.Thresholds
	IndexDigest string
	Units       int
	Total       uint64
	Processed   uint64
	Elapsed     time.Duration
	OmegaCount  int
	Completed   *roaring.Bitmap
	Failed      []FailedUnit
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SaveCheckpoint upserts the run row and inserts records in one transaction.
//
// Records already stored for the run are skipped via ON CONFLICT DO NOTHING,
// so passing the full record set on every checkpoint is correct, only slower.
// created_at is set on first insert and never changed.
func (s *Store) SaveCheckpoint(ctx context.Context, run Run, records []results.Record) error {
	if run.ID == "" {
		return fmt.Errorf("save checkpoint: empty run id")
	}
	if run.Total > math.MaxInt64 || run.Processed > math.MaxInt64 {
		return fmt.Errorf("save checkpoint: counters overflow int64")
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}

	space, err := marshalSpace(run.Space)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	thresholds, err := marshalThresholds(run.Thresholds)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	completed, err := marshalCompleted(run.Completed)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	failed, err := marshalFailed(run.Failed)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save checkpoint: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := s.timestamp()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, fingerprint, space, thresholds, index_digest, units, total, processed,
		 elapsed_ns, omega_count, completed, failed, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			processed   = excluded.processed,
			elapsed_ns  = excluded.elapsed_ns,
			omega_count = excluded.omega_count,
			completed   = excluded.completed,
			failed      = excluded.failed,
			status      = excluded.status,
			updated_at  = excluded.updated_at
	`,
		run.ID,
		run.Fingerprint,
		space,
		thresholds,
		run.IndexDigest,
		run.Units,
		int64(run.Total),
		int64(run.Processed),
		int64(run.Elapsed),
		run.OmegaCount,
		completed,
		failed,
		string(run.Status),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("save checkpoint: upsert run: %w", err)
	}

	if err := insertRecords(ctx, tx, run.ID, records); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save checkpoint: commit: %w", err)
	}
	return nil
}

func insertRecords(ctx context.Context, tx *sql.Tx, runID string, records []results.Record) error {
	if len(records) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO omega (run_id, numbers, pairs, triples, quads, total)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, numbers) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("prepare omega insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, runID, r.Key(), r.Pairs, r.Triples, r.Quads, r.Total); err != nil {
			return fmt.Errorf("insert omega %s: %w", r.Key(), err)
		}
	}
	return nil
}

// DeleteRun removes a run and its Omega rows. Deleting a missing run
// returns ErrNotFound.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
