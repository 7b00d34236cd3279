package search

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/omega/internal/combo"
	"github.com/roach88/omega/internal/results"
)

// Estimate is the projection of a full run from a sample prefix.
type Estimate struct {
	Sample     uint64        `json:"sample"`
	Total      uint64        `json:"total"`
	Elapsed    time.Duration `json:"elapsed_ns"`
	Rate       float64       `json:"rate"` // combinations per second, one worker
	OmegaFound int           `json:"omega_found"`

	// EstimatedDuration is Total / Rate on one worker; EstimatedParallel
	// divides it by the resolved worker count.
	EstimatedDuration time.Duration `json:"estimated_duration_ns"`
	EstimatedParallel time.Duration `json:"estimated_parallel_ns"`
	Workers           int           `json:"workers"`

	// EstimatedOmega is OmegaFound / Sample * Total.
	EstimatedOmega float64 `json:"estimated_omega"`

	// PassPairs and PassTriples are the fractions of the sample that cleared
	// the pairs and triples stages.
	PassPairs   float64 `json:"pass_pairs"`
	PassTriples float64 `json:"pass_triples"`

	Records []results.Record `json:"records"`
}

// Estimate evaluates the first sample combinations on the calling goroutine
// and projects duration and Omega count for the whole space. Options.Limit
// is ignored. A sample larger than the space is clamped.
func (c *Coordinator) Estimate(ctx context.Context, sample uint64) (*Estimate, error) {
	if err := c.opts.Validate(); err != nil {
		return nil, err
	}
	if c.index == nil {
		return nil, &ConfigError{Field: "index", Message: "no frequency index"}
	}
	if sample == 0 {
		return nil, &ConfigError{Field: "sample", Message: "must be positive"}
	}

	total := c.opts.Space.Total()
	sample = min(sample, total)
	rng := combo.WorkRange{Unit: 0, Start: 0, End: sample}

	c.logger.Info("estimate starting", "space", c.opts.Space.String(), "sample", sample)

	res := runUnit(ctx, c.opts.Space, c.index, c.opts.Thresholds, c.clock, rng)
	if res.cancelled {
		return nil, res.err
	}
	if res.err != nil {
		return nil, fmt.Errorf("estimate: %w", res.err)
	}

	records := append([]results.Record(nil), res.records...)
	results.Rank(records)

	workers := c.opts.workerCount()
	est := &Estimate{
		Sample:     sample,
		Total:      total,
		Elapsed:    res.duration,
		OmegaFound: len(records),
		Workers:    workers,
		Records:    records,
	}
	est.EstimatedOmega = float64(len(records)) / float64(sample) * float64(total)
	if n := res.counters.Evaluated; n > 0 {
		est.PassPairs = float64(res.counters.ReachedTriples) / float64(n)
		est.PassTriples = float64(res.counters.ReachedQuads) / float64(n)
	}
	if res.duration > 0 {
		est.Rate = float64(sample) / res.duration.Seconds()
		est.EstimatedDuration = time.Duration(float64(total) / est.Rate * float64(time.Second))
		est.EstimatedParallel = est.EstimatedDuration / time.Duration(workers)
	}

	c.logger.Info("estimate finished",
		"sample", sample,
		"omega", len(records),
		"rate", est.Rate,
		"estimated_duration", est.EstimatedDuration,
		"estimated_omega", est.EstimatedOmega,
	)
	return est, nil
}
