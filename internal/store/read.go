package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/omega/internal/combo"
	"github.com/roach88/omega/internal/results"
)

const runColumns = `
	id, fingerprint, space, thresholds, index_digest, units, total, processed,
	elapsed_ns, omega_count, completed, failed, status, created_at, updated_at
`

// GetRun retrieves a run by ID. Returns ErrNotFound if it does not exist.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	return scanRunRow(row)
}

// FindResumable returns the most recently updated run with the given
// fingerprint that has not completed. Returns ErrNotFound if none exists.
func (s *Store) FindResumable(ctx context.Context, fingerprint string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE fingerprint = ? AND status != ?
		ORDER BY updated_at DESC, id COLLATE BINARY DESC
		LIMIT 1
	`, fingerprint, string(StatusComplete))
	return scanRunRow(row)
}

// LoadCheckpoint returns the resumable run for fingerprint together with its
// stored Omega records. Returns ErrNotFound if there is nothing to resume.
func (s *Store) LoadCheckpoint(ctx context.Context, fingerprint string) (Run, []results.Record, error) {
	run, err := s.FindResumable(ctx, fingerprint)
	if err != nil {
		return Run{}, nil, err
	}
	records, err := s.Results(ctx, run.ID)
	if err != nil {
		return Run{}, nil, fmt.Errorf("load checkpoint %s: %w", run.ID, err)
	}
	return run, records, nil
}

// LatestRun returns the most recently created run.
// Returns ErrNotFound on an empty store.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY created_at DESC, id COLLATE BINARY DESC
		LIMIT 1
	`)
	return scanRunRow(row)
}

// ListRuns returns every run, newest first.
// Returns an empty slice (not nil) for an empty store.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY created_at DESC, id COLLATE BINARY DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Results returns the Omega records of a run, ranked by total descending
// then combination ascending. Returns ErrNotFound for an unknown run.
func (s *Store) Results(ctx context.Context, runID string) ([]results.Record, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, runID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT numbers, pairs, triples, quads, total
		FROM omega
		WHERE run_id = ?
		ORDER BY total DESC, numbers COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query omega: %w", err)
	}
	defer rows.Close()

	records := []results.Record{}
	for rows.Next() {
		var (
			r       results.Record
			numbers string
		)
		if err := rows.Scan(&numbers, &r.Pairs, &r.Triples, &r.Quads, &r.Total); err != nil {
			return nil, fmt.Errorf("scan omega: %w", err)
		}
		r.Numbers, err = combo.ParseCombination(numbers)
		if err != nil {
			return nil, fmt.Errorf("scan omega: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate omega: %w", err)
	}

	// Same order as the in-memory aggregator.
	results.Rank(records)
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRunRow(row *sql.Row) (Run, error) {
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return run, err
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run                          Run
		space, thresholds, failed    string
		status, createdAt, updatedAt string
		total, processed, elapsed    int64
		completed                    []byte
	)
	err := row.Scan(
		&run.ID,
		&run.Fingerprint,
		&space,
		&thresholds,
		&run.IndexDigest,
		&run.Units,
		&total,
		&processed,
		&elapsed,
		&run.OmegaCount,
		&completed,
		&failed,
		&status,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, err
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	run.Total = uint64(total)
	run.Processed = uint64(processed)
	run.Elapsed = time.Duration(elapsed)
	run.Status = Status(status)

	if run.Space, err = unmarshalSpace(space); err != nil {
		return Run{}, fmt.Errorf("scan run %s: %w", run.ID, err)
	}
	if run.Thresholds, err = unmarshalThresholds(thresholds); err != nil {
		return Run{}, fmt.Errorf("scan run %s: %w", run.ID, err)
	}
	if run.Completed, err = unmarshalCompleted(completed); err != nil {
		return Run{}, fmt.Errorf("scan run %s: %w", run.ID, err)
	}
	if run.Failed, err = unmarshalFailed(failed); err != nil {
		return Run{}, fmt.Errorf("scan run %s: %w", run.ID, err)
	}
	if run.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return Run{}, fmt.Errorf("scan run %s: created_at: %w", run.ID, err)
	}
	if run.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return Run{}, fmt.Errorf("scan run %s: updated_at: %w", run.ID, err)
	}
	return run, nil
}
