// Package types defines the core types shared by the montegrid scheduler,
// workers and result collection.
package types

import (
	"context"
	"math/rand"
	"time"
)

// UnitState describes the lifecycle state of a work unit.
type UnitState int32

const (
	// UnitPending means the unit is queued and waiting for dispatch
	UnitPending UnitState = iota
	// UnitDispatched means the unit has been assigned to a worker
	UnitDispatched
	// UnitDone means the unit completed successfully
	UnitDone
	// UnitFailed means the unit terminated with an error
	UnitFailed
)

// String returns the string representation of UnitState
func (s UnitState) String() string {
	switch s {
	case UnitPending:
		return "pending"
	case UnitDispatched:
		return "dispatched"
	case UnitDone:
		return "done"
	case UnitFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final.
func (s UnitState) Terminal() bool {
	return s == UnitDone || s == UnitFailed
}

// PriceQuote is the 4-tuple of option prices produced by one work unit.
type PriceQuote struct {
	EuroCall  float64
	EuroPut   float64
	AsianCall float64
	AsianPut  float64
}

// UnitFunc is the pure computation carried by a work unit. The rand source
// is owned by the executing worker and must not be shared across workers.
type UnitFunc func(ctx context.Context, rng *rand.Rand) (PriceQuote, error)

// Result is the terminal outcome of a work unit.
type Result struct {
	// Quote is the computed prices, valid only when Err is nil
	Quote PriceQuote

	// Err is the execution error, nil on success
	Err error

	// Duration is the wall-clock execution time on the worker
	Duration time.Duration

	// WorkerID identifies the worker that produced the outcome
	WorkerID int

	// Attempts is the number of executions, >1 only with a retry policy
	Attempts int
}

// PoolStats describes a snapshot of worker pool occupancy.
type PoolStats struct {
	// Size is the current number of workers
	Size int

	// Idle is the number of workers waiting for an assignment
	Idle int

	// Busy is the number of workers executing a unit
	Busy int
}

// SchedulerStats describes cumulative scheduler counters.
type SchedulerStats struct {
	Submitted int64
	Completed int64
	Failed    int64
	Retried   int64
	Cancelled int64

	// Pending is the current queue length
	Pending int

	// InFlight is the number of dispatched, not yet terminal units
	InFlight int

	Pool PoolStats
}
