package search

import (
	"time"

	"golang.org/x/time/rate"
)

// Progress is a point-in-time view of a run.
type Progress struct {
	Processed  uint64        `json:"processed"`
	Total      uint64        `json:"total"`
	Percent    float64       `json:"percent"`
	OmegaFound int           `json:"omega_found"`
	UnitsDone  int           `json:"units_done"`
	Units      int           `json:"units"`
	Elapsed    time.Duration `json:"elapsed_ns"`
	Throughput float64       `json:"throughput"` // combinations per second in this session
	ETA        time.Duration `json:"eta_ns"`
}

// tracker derives throughput and ETA. Elapsed time and processed counts
// carried over from a resumed run are part of Elapsed and Processed but not
// of Throughput, which measures only this session.
type tracker struct {
	start         time.Time
	baseElapsed   time.Duration
	baseProcessed uint64
	total         uint64
	units         int
}

func newTracker(start time.Time, total uint64, units int, baseElapsed time.Duration, baseProcessed uint64) *tracker {
	return &tracker{
		start:         start,
		baseElapsed:   baseElapsed,
		baseProcessed: baseProcessed,
		total:         total,
		units:         units,
	}
}

func (t *tracker) snapshot(now time.Time, processed uint64, omega, unitsDone int) Progress {
	session := now.Sub(t.start)
	p := Progress{
		Processed:  processed,
		Total:      t.total,
		OmegaFound: omega,
		UnitsDone:  unitsDone,
		Units:      t.units,
		Elapsed:    t.baseElapsed + session,
	}
	if t.total > 0 {
		p.Percent = float64(processed) / float64(t.total) * 100
	}
	if done := processed - t.baseProcessed; session > 0 && done > 0 {
		p.Throughput = float64(done) / session.Seconds()
		if processed < t.total {
			p.ETA = time.Duration(float64(t.total-processed) / p.Throughput * float64(time.Second))
		}
	}
	return p
}

// progressGate throttles progress callbacks against the run's clock.
type progressGate struct {
	limiter *rate.Limiter
}

func newProgressGate(interval time.Duration) *progressGate {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &progressGate{limiter: rate.NewLimiter(limit, 1)}
}

func (g *progressGate) allow(now time.Time) bool {
	return g.limiter.AllowN(now, 1)
}
