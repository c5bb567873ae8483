package sched

import (
	"context"
	"sync"

	"github.com/montegrid/montegrid/pkg/types"
)

// Handle is the caller-held reference to a work unit's eventual outcome.
// It is completed exactly once by the scheduler loop.
type Handle struct {
	unit *WorkUnit
	done chan struct{}

	mu     sync.RWMutex
	result types.Result
}

func newHandle(u *WorkUnit) *Handle {
	return &Handle{
		unit: u,
		done: make(chan struct{}),
	}
}

// UnitID returns the id of the underlying work unit.
func (h *Handle) UnitID() int64 {
	return h.unit.ID()
}

// Unit returns the underlying work unit.
func (h *Handle) Unit() *WorkUnit {
	return h.unit
}

// State returns the current state of the underlying unit.
func (h *Handle) State() types.UnitState {
	return h.unit.Status()
}

// Done returns a channel closed when the unit reaches a terminal state.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Result returns the terminal outcome. It returns types.ErrNoResult while
// the unit is still pending or dispatched. A unit failure is reported inside
// the Result, not as the second return value.
func (h *Handle) Result() (types.Result, error) {
	select {
	case <-h.done:
	default:
		return types.Result{}, types.ErrNoResult
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.result, nil
}

// Wait blocks until the unit is terminal or ctx is cancelled. The returned
// error is a context error only; inspect Result.Err for the unit outcome.
func (h *Handle) Wait(ctx context.Context) (types.Result, error) {
	select {
	case <-h.done:
		return h.Result()
	case <-ctx.Done():
		return types.Result{}, ctx.Err()
	}
}

// complete records the terminal outcome. Called by the scheduler loop only.
func (h *Handle) complete(res types.Result) {
	h.mu.Lock()
	h.result = res
	h.mu.Unlock()
	close(h.done)
}
