// Package sched provides the work unit scheduler: a single event loop that
// assigns pending units to idle workers and correlates their results.
package sched

import (
	"sync/atomic"

	"github.com/montegrid/montegrid/pkg/types"
)

// WorkUnit is one independent pricing task. The id and grid coordinates are
// immutable; only the status transitions Pending -> Dispatched -> Done/Failed.
type WorkUnit struct {
	id  int64
	row int
	col int
	fn  types.UnitFunc

	status int32 // atomic types.UnitState, written by the scheduler loop

	// attempts counts executions, owned by the scheduler loop
	attempts int
}

// NewWorkUnit creates a work unit. Row and col are the grid coordinates the
// result will be projected back to.
func NewWorkUnit(id int64, row, col int, fn types.UnitFunc) *WorkUnit {
	return &WorkUnit{
		id:     id,
		row:    row,
		col:    col,
		fn:     fn,
		status: int32(types.UnitPending),
	}
}

// ID returns the unit's unique sequence number.
func (u *WorkUnit) ID() int64 {
	return u.id
}

// Row returns the unit's first grid coordinate.
func (u *WorkUnit) Row() int {
	return u.row
}

// Col returns the unit's second grid coordinate.
func (u *WorkUnit) Col() int {
	return u.col
}

// Status returns the unit's current lifecycle state.
func (u *WorkUnit) Status() types.UnitState {
	return types.UnitState(atomic.LoadInt32(&u.status))
}

func (u *WorkUnit) setStatus(s types.UnitState) {
	atomic.StoreInt32(&u.status, int32(s))
}
