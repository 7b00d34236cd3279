package search

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/roach88/omega/internal/affinity"
	"github.com/roach88/omega/internal/combo"
)

// Mode names how much of the space a run covers.
type Mode string

const (
	ModeFull     Mode = "full"
	ModeSmoke    Mode = "smoke"
	ModeEstimate Mode = "estimate"
)

const (
	DefaultMaxWorkers          = 16
	DefaultUnits               = 64
	DefaultCheckpointEvery     = 100
	DefaultCheckpointProcessed = 250_000
	DefaultSmokeLimit          = 100_000
	DefaultEstimateSample      = 10_000
	DefaultProgressInterval    = 2 * time.Second

	// cancelCheckInterval is how many combinations a worker evaluates
	// between context checks.
	cancelCheckInterval = 4096
)

// Options configures a Coordinator.
type Options struct {
	Space      combo.Space
	Thresholds affinity.Thresholds

	// Workers is the pool size; 0 means one per CPU. Capped at MaxWorkers.
	Workers    int
	MaxWorkers int

	// Units is the number of work ranges the space is split into, clamped
	// to the number of combinations. It does not depend on Workers, so a run
	// can be resumed with a different pool size.
	Units int

	// CheckpointEvery triggers a checkpoint after this many new Omega finds;
	// CheckpointProcessed after this many newly processed combinations.
	// Zero disables the trigger.
	CheckpointEvery     int
	CheckpointProcessed uint64

	// Limit bounds the run to the first Limit combinations; 0 is the whole space.
	Limit uint64

	// ProgressInterval is the minimum spacing of progress callbacks; 0
	// reports after every unit.
	ProgressInterval time.Duration

	// Resume continues the latest unfinished run with the same fingerprint.
	Resume bool
}

// DefaultOptions returns options for the default space and thresholds.
func DefaultOptions() Options {
	return Options{
		Space:               combo.DefaultSpace(),
		Thresholds:          affinity.DefaultThresholds(),
		MaxWorkers:          DefaultMaxWorkers,
		Units:               DefaultUnits,
		CheckpointEvery:     DefaultCheckpointEvery,
		CheckpointProcessed: DefaultCheckpointProcessed,
		ProgressInterval:    DefaultProgressInterval,
	}
}

// ConfigError reports options or inputs that prevent a run from starting.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Field == "" {
		return "search config: " + msg
	}
	return fmt.Sprintf("search config: %s: %s", e.Field, msg)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Validate checks the options before any work is dispatched.
func (o Options) Validate() error {
	if !o.Space.Valid() {
		return &ConfigError{Field: "space", Message: fmt.Sprintf("%s has no combinations", o.Space)}
	}
	if o.Space.K < 4 {
		return &ConfigError{Field: "space", Message: fmt.Sprintf("k=%d, need at least 4 numbers per combination", o.Space.K)}
	}
	if err := o.Thresholds.Validate(); err != nil {
		return &ConfigError{Field: "thresholds", Message: "invalid", Err: err}
	}
	if o.Workers < 0 {
		return &ConfigError{Field: "workers", Message: fmt.Sprintf("%d is negative", o.Workers)}
	}
	if o.MaxWorkers < 1 {
		return &ConfigError{Field: "max_workers", Message: fmt.Sprintf("%d, need at least 1", o.MaxWorkers)}
	}
	if o.Units < 1 {
		return &ConfigError{Field: "units", Message: fmt.Sprintf("%d, need at least 1", o.Units)}
	}
	if o.CheckpointEvery < 0 {
		return &ConfigError{Field: "checkpoint_every", Message: "must not be negative"}
	}
	if o.ProgressInterval < 0 {
		return &ConfigError{Field: "progress_interval", Message: "must not be negative"}
	}
	return nil
}

// Mode reports ModeSmoke when a prefix limit is set, ModeFull otherwise.
func (o Options) Mode() Mode {
	if o.Limit > 0 {
		return ModeSmoke
	}
	return ModeFull
}

// workerCount resolves Workers against the CPU count and MaxWorkers.
func (o Options) workerCount() int {
	w := o.Workers
	if w == 0 {
		w = runtime.NumCPU()
	}
	return max(1, min(w, o.MaxWorkers))
}

// span is the number of combinations the run covers.
func (o Options) span() uint64 {
	total := o.Space.Total()
	if o.Limit > 0 && o.Limit < total {
		return o.Limit
	}
	return total
}
