// Package metrics exports search run telemetry as Prometheus metrics.
//
// Each Observer owns a private registry, so concurrent runs and tests never
// collide on the default registry. A batch run has no scrape endpoint; the
// registry is written once to a node_exporter textfile when the run ends.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/omega/internal/affinity"
	"github.com/roach88/omega/internal/combo"
	"github.com/roach88/omega/internal/search"
)

const namespace = "omega"

// Stage labels for the stage counter.
const (
	stageEvaluated = "evaluated"
	stageTriples   = "triples"
	stageQuads     = "quads"
	stageOmega     = "omega"
)

// Observer implements search.Observer on Prometheus collectors.
//
// Thread-safety: collectors are safe for concurrent use; the coordinator
// calls the Observer from a single goroutine anyway.
type Observer struct {
	registry *prometheus.Registry

	processed       prometheus.Counter
	stages          *prometheus.CounterVec
	unitDuration    prometheus.Histogram
	unitFailures    prometheus.Counter
	checkpointTime  prometheus.Histogram
	checkpointFails prometheus.Counter

	percent    prometheus.Gauge
	omegaFound prometheus.Gauge
	unitsDone  prometheus.Gauge
	throughput prometheus.Gauge
	eta        prometheus.Gauge
	elapsed    prometheus.Gauge
}

var _ search.Observer = (*Observer)(nil)

// New registers the search collectors on a fresh registry. runLabels are
// attached to every series as constant labels (e.g. run_id, mode).
func New(runLabels prometheus.Labels) *Observer {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Observer{
		registry: reg,
		processed: f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "combinations_processed_total",
			Help:        "Combinations evaluated by completed units.",
			ConstLabels: runLabels,
		}),
		stages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "stage_total",
			Help:        "Combinations reaching each evaluation stage.",
			ConstLabels: runLabels,
		}, []string{"stage"}),
		unitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "unit",
			Name:        "duration_seconds",
			Help:        "Wall time of completed work units.",
			Buckets:     prometheus.ExponentialBuckets(0.01, 4, 10),
			ConstLabels: runLabels,
		}),
		unitFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "unit",
			Name:        "failures_total",
			Help:        "Work units that stopped with an error.",
			ConstLabels: runLabels,
		}),
		checkpointTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "checkpoint",
			Name:        "duration_seconds",
			Help:        "Wall time of checkpoint attempts.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: runLabels,
		}),
		checkpointFails: f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "checkpoint",
			Name:        "failures_total",
			Help:        "Checkpoint attempts that failed.",
			ConstLabels: runLabels,
		}),
		percent: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "progress_percent",
			Help:        "Share of the run's combinations processed, including resumed work.",
			ConstLabels: runLabels,
		}),
		omegaFound: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "omega_found",
			Help:        "Distinct Omega combinations found so far.",
			ConstLabels: runLabels,
		}),
		unitsDone: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "units_done",
			Help:        "Completed work units, including resumed ones.",
			ConstLabels: runLabels,
		}),
		throughput: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "throughput_per_second",
			Help:        "Combinations per second in the current session.",
			ConstLabels: runLabels,
		}),
		eta: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "eta_seconds",
			Help:        "Estimated time to completion.",
			ConstLabels: runLabels,
		}),
		elapsed: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "elapsed_seconds",
			Help:        "Run wall time, including resumed sessions.",
			ConstLabels: runLabels,
		}),
	}
}

// Registry returns the registry holding the run's collectors.
func (o *Observer) Registry() *prometheus.Registry {
	return o.registry
}

// OnUnitDone counts the unit's combinations and stage counters and records
// its duration.
func (o *Observer) OnUnitDone(r combo.WorkRange, c affinity.Counters, d time.Duration) {
	o.processed.Add(float64(r.Len()))
	o.stages.WithLabelValues(stageEvaluated).Add(float64(c.Evaluated))
	o.stages.WithLabelValues(stageTriples).Add(float64(c.ReachedTriples))
	o.stages.WithLabelValues(stageQuads).Add(float64(c.ReachedQuads))
	o.stages.WithLabelValues(stageOmega).Add(float64(c.Omega))
	o.unitDuration.Observe(d.Seconds())
}

// OnUnitFailed increments the unit failure counter.
func (o *Observer) OnUnitFailed(combo.WorkRange, error) {
	o.unitFailures.Inc()
}

// OnCheckpoint records the save latency and counts failed saves.
func (o *Observer) OnCheckpoint(d time.Duration, err error) {
	o.checkpointTime.Observe(d.Seconds())
	if err != nil {
		o.checkpointFails.Inc()
	}
}

// OnProgress sets the run gauges from the latest snapshot.
func (o *Observer) OnProgress(p search.Progress) {
	o.percent.Set(p.Percent)
	o.omegaFound.Set(float64(p.OmegaFound))
	o.unitsDone.Set(float64(p.UnitsDone))
	o.throughput.Set(p.Throughput)
	o.eta.Set(p.ETA.Seconds())
	o.elapsed.Set(p.Elapsed.Seconds())
}

// WriteTextfile writes the registry atomically in the text exposition
// format, for the node_exporter textfile collector.
func (o *Observer) WriteTextfile(path string) error {
	if path == "" {
		return errors.New("metrics: empty textfile path")
	}
	return prometheus.WriteToTextfile(path, o.registry)
}
