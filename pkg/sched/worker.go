package sched

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/montegrid/montegrid/pkg/types"
)

// WorkerState defines the state of a Worker
type WorkerState int32

const (
	// WorkerIdle represents a worker waiting for an assignment
	WorkerIdle WorkerState = iota
	// WorkerBusy represents a worker executing a unit
	WorkerBusy
	// WorkerStopped represents a stopped worker
	WorkerStopped
)

// String returns the string representation of WorkerState
func (ws WorkerState) String() string {
	switch ws {
	case WorkerIdle:
		return "idle"
	case WorkerBusy:
		return "busy"
	case WorkerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// unitResult is the outcome a worker reports back to the scheduler loop.
type unitResult struct {
	workerID int
	unit     *WorkUnit
	quote    types.PriceQuote
	err      error
	duration time.Duration
}

// Worker executes work units one at a time. Each worker owns a private rand
// source so that concurrent pricing runs draw independent paths.
type Worker struct {
	id       int
	rng      *rand.Rand
	assignCh chan *WorkUnit
	resultCh chan<- unitResult
	quit     chan struct{}
	done     chan struct{}
	clock    types.Clock

	state          int32 // atomic WorkerState
	totalProcessed int64
	totalFailed    int64
}

const workerStopTimeout = 5 * time.Second

func newWorker(id int, seed int64, resultCh chan<- unitResult, clock types.Clock) *Worker {
	return &Worker{
		id:       id,
		rng:      rand.New(rand.NewSource(seed)),
		assignCh: make(chan *WorkUnit, 1),
		resultCh: resultCh,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		clock:    clock,
		state:    int32(WorkerIdle),
	}
}

// ID returns the worker id.
func (w *Worker) ID() int {
	return w.id
}

// State returns the current worker state.
func (w *Worker) State() WorkerState {
	return WorkerState(atomic.LoadInt32(&w.state))
}

// assign hands a unit to the worker. The scheduler loop only calls this for
// idle workers, so the buffered send never blocks.
func (w *Worker) assign(u *WorkUnit) {
	atomic.StoreInt32(&w.state, int32(WorkerBusy))
	w.assignCh <- u
}

// run is the worker goroutine body.
func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			atomic.StoreInt32(&w.state, int32(WorkerStopped))
			return
		case <-w.quit:
			atomic.StoreInt32(&w.state, int32(WorkerStopped))
			return
		case u := <-w.assignCh:
			w.process(ctx, u)
		}
	}
}

// process executes one unit and reports the outcome.
func (w *Worker) process(ctx context.Context, u *WorkUnit) {
	start := w.clock.Now()
	quote, err := w.execute(ctx, u)
	duration := w.clock.Since(start)

	if err != nil {
		atomic.AddInt64(&w.totalFailed, 1)
	} else {
		atomic.AddInt64(&w.totalProcessed, 1)
	}
	atomic.StoreInt32(&w.state, int32(WorkerIdle))

	res := unitResult{
		workerID: w.id,
		unit:     u,
		quote:    quote,
		err:      err,
		duration: duration,
	}
	select {
	case w.resultCh <- res:
	case <-ctx.Done():
	}
}

// execute runs the unit function with panic recovery. A panic is converted
// into a WorkerExecutionError carrying the stack trace.
func (w *Worker) execute(ctx context.Context, u *WorkUnit) (quote types.PriceQuote, err error) {
	defer func() {
		if r := recover(); r != nil {
			var buf [4096]byte
			n := runtime.Stack(buf[:], false)

			var cause error
			switch v := r.(type) {
			case error:
				cause = v
			default:
				cause = fmt.Errorf("panic: %v", v)
			}

			err = types.NewWorkerExecutionError(w.id, u.ID(), cause).
				WithContext("stack_trace", string(buf[:n]))
		}
	}()

	quote, err = u.fn(ctx, w.rng)
	if err != nil {
		err = types.NewWorkerExecutionError(w.id, u.ID(), err)
	}
	return quote, err
}

// stop signals the worker and waits for it to drain its current unit.
func (w *Worker) stop() error {
	select {
	case <-w.quit:
		// already stopped
		return nil
	default:
		close(w.quit)
	}

	select {
	case <-w.done:
		return nil
	case <-w.clock.After(workerStopTimeout):
		return fmt.Errorf("worker %d stop timeout", w.id)
	}
}

// WorkerStats defines per-worker statistics
type WorkerStats struct {
	ID             int
	State          WorkerState
	TotalProcessed int64
	TotalFailed    int64
}

// Stats returns the worker statistics snapshot.
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		ID:             w.id,
		State:          w.State(),
		TotalProcessed: atomic.LoadInt64(&w.totalProcessed),
		TotalFailed:    atomic.LoadInt64(&w.totalFailed),
	}
}
