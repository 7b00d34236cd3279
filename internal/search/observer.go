package search

import (
	"time"

	"github.com/roach88/omega/internal/affinity"
	"github.com/roach88/omega/internal/combo"
)

// Observer receives run events from the merge loop. All calls happen on the
// coordinator goroutine, one at a time.
type Observer interface {
	// OnUnitDone is called for each completed unit with its evaluator counters.
	OnUnitDone(r combo.WorkRange, counters affinity.Counters, d time.Duration)
	// OnUnitFailed is called for each unit that failed (not for cancelled ones).
	OnUnitFailed(r combo.WorkRange, err error)
	// OnCheckpoint is called after every checkpoint attempt.
	OnCheckpoint(d time.Duration, err error)
	// OnProgress is called with every progress snapshot, unthrottled.
	OnProgress(p Progress)
}

// NoopObserver ignores every event.
type NoopObserver struct{}

func (NoopObserver) OnUnitDone(combo.WorkRange, affinity.Counters, time.Duration) {}
func (NoopObserver) OnUnitFailed(combo.WorkRange, error)                           {}
func (NoopObserver) OnCheckpoint(time.Duration, error)                             {}
func (NoopObserver) OnProgress(Progress)                                           {}
