package sched

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/montegrid/montegrid/internal/metrics"
	"github.com/montegrid/montegrid/pkg/retry"
	"github.com/montegrid/montegrid/pkg/types"
)

// Config defines scheduler configuration.
type Config struct {
	// RetryPolicy governs re-enqueueing of failed units. The default is no
	// retry: a failed unit reaches its terminal Failed state immediately.
	RetryPolicy retry.Policy

	// Clock for time operations (optional, defaults to real clock)
	Clock types.Clock

	// Logger for structured logging (optional, defaults to the standard
	// logrus logger)
	Logger logrus.FieldLogger

	// Metrics is an optional instrumentation recorder
	Metrics *metrics.Recorder
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		RetryPolicy: retry.None(),
		Clock:       types.NewRealClock(),
		Logger:      logrus.StandardLogger(),
	}
}

// scheduler lifecycle states
const (
	stateCreated int32 = iota
	stateRunning
	stateClosed
)

type submitResp struct {
	handles []*Handle
	err     error
}

type submitReq struct {
	units []*WorkUnit
	reply chan submitResp
}

type cancelReq struct {
	unitID int64
	reply  chan bool
}

type scaleReq struct {
	target int
	reply  chan error
}

// Scheduler assigns pending work units to idle workers, greedily
// re-dispatching as workers finish, so faster workers pull more units over a
// run. All mutable state (pending queue, worker availability, results) is
// owned by a single event loop; submissions, worker results, cancellations
// and scale requests all funnel into that loop.
type Scheduler struct {
	cfg  *Config
	pool *Pool
	log  logrus.FieldLogger

	submitCh  chan submitReq
	cancelCh  chan cancelReq
	scaleCh   chan scaleReq
	statsCh   chan chan types.SchedulerStats
	requeueCh chan *WorkUnit
	resultCh  chan unitResult

	// loop-owned state
	queue   unitQueue
	handles map[int64]*Handle
	nextSeq int64

	submitted int64
	completed int64
	failed    int64
	retried   int64
	cancelled int64
	inflight  int

	state    int32 // atomic lifecycle state
	loopCtx  context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
}

// New creates a scheduler over the given worker pool. A nil pool gets the
// default pool; a nil config gets DefaultConfig.
func New(pool *Pool, cfg *Config) (*Scheduler, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.RetryPolicy == nil {
		cfg.RetryPolicy = retry.None()
	}
	if cfg.Clock == nil {
		cfg.Clock = types.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	if pool == nil {
		var err error
		if pool, err = NewPool(nil); err != nil {
			return nil, err
		}
	}

	return &Scheduler{
		cfg:       cfg,
		pool:      pool,
		log:       cfg.Logger.WithField("component", "scheduler"),
		submitCh:  make(chan submitReq),
		cancelCh:  make(chan cancelReq),
		scaleCh:   make(chan scaleReq),
		statsCh:   make(chan chan types.SchedulerStats),
		requeueCh: make(chan *WorkUnit),
		resultCh:  make(chan unitResult, pool.cfg.MaxWorkers),
		handles:   make(map[int64]*Handle),
		loopDone:  make(chan struct{}),
	}, nil
}

// Pool returns the scheduler's worker pool.
func (s *Scheduler) Pool() *Pool {
	return s.pool
}

// NextUnitID allocates the next unit sequence number.
func (s *Scheduler) NextUnitID() int64 {
	return atomic.AddInt64(&s.nextSeq, 1)
}

// Start spawns the workers and the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.state, stateCreated, stateRunning) {
		if atomic.LoadInt32(&s.state) == stateRunning {
			return fmt.Errorf("scheduler is already running")
		}
		return types.ErrSchedulerClosed
	}

	s.loopCtx, s.cancel = context.WithCancel(ctx)
	s.pool.start(s.loopCtx, s.resultCh)
	go s.loop()

	s.log.WithField("workers", s.pool.Size()).Info("scheduler started")
	return nil
}

// Stop shuts the scheduler down. Handles of units that are not yet terminal
// are failed with ErrSchedulerClosed, so a concurrent WaitAll still returns.
func (s *Scheduler) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.state, stateRunning, stateClosed) {
		if atomic.LoadInt32(&s.state) == stateCreated {
			return types.ErrSchedulerNotStarted
		}
		return types.ErrSchedulerClosed
	}

	s.cancel()
	<-s.loopDone
	err := s.pool.stop()
	s.log.Info("scheduler stopped")
	return err
}

func (s *Scheduler) checkRunning() error {
	switch atomic.LoadInt32(&s.state) {
	case stateCreated:
		return types.ErrSchedulerNotStarted
	case stateClosed:
		return types.ErrSchedulerClosed
	}
	return nil
}

// Submit enqueues the units and returns one handle per unit, in submission
// order, without blocking on execution. The whole batch is rejected with a
// SubmissionError if any id duplicates a previous submission or another unit
// in the batch, or if a unit has no function.
func (s *Scheduler) Submit(units []*WorkUnit) ([]*Handle, error) {
	if err := s.checkRunning(); err != nil {
		return nil, err
	}

	req := submitReq{units: units, reply: make(chan submitResp, 1)}
	select {
	case s.submitCh <- req:
	case <-s.loopCtx.Done():
		return nil, types.ErrSchedulerClosed
	}
	resp := <-req.reply
	return resp.handles, resp.err
}

// Cancel removes a not-yet-dispatched unit from the pending queue. The
// unit's handle terminates with ErrUnitCancelled. Returns false if the unit
// is unknown, already dispatched, or terminal.
func (s *Scheduler) Cancel(unitID int64) bool {
	if s.checkRunning() != nil {
		return false
	}

	req := cancelReq{unitID: unitID, reply: make(chan bool, 1)}
	select {
	case s.cancelCh <- req:
	case <-s.loopCtx.Done():
		return false
	}
	return <-req.reply
}

// Scale adjusts the worker count toward target within the pool bounds.
func (s *Scheduler) Scale(target int) error {
	if err := s.checkRunning(); err != nil {
		return err
	}

	req := scaleReq{target: target, reply: make(chan error, 1)}
	select {
	case s.scaleCh <- req:
	case <-s.loopCtx.Done():
		return types.ErrSchedulerClosed
	}
	return <-req.reply
}

// Stats returns a snapshot of scheduler counters and pool occupancy.
func (s *Scheduler) Stats() types.SchedulerStats {
	if s.checkRunning() != nil {
		return types.SchedulerStats{}
	}

	reply := make(chan types.SchedulerStats, 1)
	select {
	case s.statsCh <- reply:
	case <-s.loopCtx.Done():
		return types.SchedulerStats{}
	}
	return <-reply
}

// Table maps work unit ids to their terminal results.
type Table map[int64]types.Result

// WaitAll blocks until every handle is terminal or ctx is cancelled, and
// returns one result per handle keyed by unit id. Failed units are entries
// with a non-nil Result.Err; they never make WaitAll itself fail.
func (s *Scheduler) WaitAll(ctx context.Context, handles []*Handle) (Table, error) {
	table := make(Table, len(handles))
	for _, h := range handles {
		res, err := h.Wait(ctx)
		if err != nil {
			return nil, err
		}
		table[h.UnitID()] = res
	}
	return table, nil
}

// loop is the single serialization point for all scheduler state.
func (s *Scheduler) loop() {
	defer close(s.loopDone)

	for {
		select {
		case <-s.loopCtx.Done():
			s.failOutstanding()
			return
		case req := <-s.submitCh:
			req.reply <- s.handleSubmit(req.units)
			s.dispatch()
		case res := <-s.resultCh:
			s.handleResult(res)
			s.dispatch()
		case u := <-s.requeueCh:
			s.queue.push(u)
			s.dispatch()
		case req := <-s.cancelCh:
			req.reply <- s.handleCancel(req.unitID)
		case req := <-s.scaleCh:
			req.reply <- s.pool.scale(req.target)
			s.dispatch()
		case reply := <-s.statsCh:
			reply <- s.snapshot()
		}
	}
}

func (s *Scheduler) handleSubmit(units []*WorkUnit) submitResp {
	seen := make(map[int64]bool, len(units))
	for _, u := range units {
		if u == nil {
			return submitResp{err: types.NewSubmissionError(0, "nil work unit")}
		}
		if u.fn == nil {
			return submitResp{err: types.NewSubmissionError(u.ID(), "work unit has no function")}
		}
		if seen[u.ID()] {
			return submitResp{err: types.NewSubmissionError(u.ID(), "duplicate unit id in batch")}
		}
		if _, exists := s.handles[u.ID()]; exists {
			return submitResp{err: types.NewSubmissionError(u.ID(), "unit id already submitted")}
		}
		seen[u.ID()] = true
	}

	handles := make([]*Handle, len(units))
	for i, u := range units {
		h := newHandle(u)
		s.handles[u.ID()] = h
		handles[i] = h
		s.queue.push(u)
	}
	s.submitted += int64(len(units))

	s.log.WithField("units", len(units)).Debug("batch submitted")
	return submitResp{handles: handles}
}

// dispatch greedily pairs pending units with idle workers, lowest worker id
// first.
func (s *Scheduler) dispatch() {
	for s.queue.len() > 0 {
		w := s.pool.AcquireIdle()
		if w == nil {
			break
		}
		u := s.queue.pop()
		u.attempts++
		u.setStatus(types.UnitDispatched)
		s.inflight++
		w.assign(u)
		s.cfg.Metrics.UnitDispatched()
	}

	s.cfg.Metrics.SetQueueLength(s.queue.len())
	s.cfg.Metrics.SetBusyWorkers(s.pool.Stats().Busy)
}

func (s *Scheduler) handleResult(res unitResult) {
	s.pool.Release(res.workerID)
	s.inflight--
	u := res.unit

	if res.err != nil && s.cfg.RetryPolicy.ShouldRetry(res.err, u.attempts) {
		s.retried++
		s.cfg.Metrics.UnitRetried()
		u.setStatus(types.UnitPending)

		delay := s.cfg.RetryPolicy.NextDelay(u.attempts)
		s.log.WithFields(logrus.Fields{
			"unit":    u.ID(),
			"attempt": u.attempts,
			"delay":   delay,
		}).Info("retrying failed unit")

		if delay <= 0 {
			s.queue.push(u)
		} else {
			go s.requeueAfter(u, delay)
		}
		return
	}

	failed := res.err != nil
	if failed {
		u.setStatus(types.UnitFailed)
		s.failed++
		s.log.WithFields(logrus.Fields{
			"unit":   u.ID(),
			"worker": res.workerID,
		}).WithError(res.err).Warn("unit failed")
	} else {
		u.setStatus(types.UnitDone)
		s.completed++
	}
	s.cfg.Metrics.UnitFinished(res.duration, failed)

	s.handles[u.ID()].complete(types.Result{
		Quote:    res.quote,
		Err:      res.err,
		Duration: res.duration,
		WorkerID: res.workerID,
		Attempts: u.attempts,
	})
}

// requeueAfter re-enqueues a unit after the retry delay elapses.
func (s *Scheduler) requeueAfter(u *WorkUnit, delay time.Duration) {
	t := s.cfg.Clock.NewTimer(delay)
	defer t.Stop()

	select {
	case <-t.C():
		select {
		case s.requeueCh <- u:
		case <-s.loopCtx.Done():
		}
	case <-s.loopCtx.Done():
	}
}

func (s *Scheduler) handleCancel(unitID int64) bool {
	h, ok := s.handles[unitID]
	if !ok || h.State() != types.UnitPending {
		return false
	}
	if !s.queue.remove(unitID) {
		// pending but queued for a delayed retry; the requeue goroutine
		// may still deliver it, so refuse rather than race
		return false
	}

	u := h.Unit()
	u.setStatus(types.UnitFailed)
	s.cancelled++
	h.complete(types.Result{Err: types.ErrUnitCancelled, Attempts: u.attempts})

	s.log.WithField("unit", unitID).Debug("unit cancelled")
	return true
}

// failOutstanding terminates every non-terminal handle on shutdown so that
// waiters are released.
func (s *Scheduler) failOutstanding() {
	for _, h := range s.handles {
		if h.State().Terminal() {
			continue
		}
		h.Unit().setStatus(types.UnitFailed)
		s.failed++
		h.complete(types.Result{Err: types.ErrSchedulerClosed, Attempts: h.Unit().attempts})
	}
}

func (s *Scheduler) snapshot() types.SchedulerStats {
	return types.SchedulerStats{
		Submitted: s.submitted,
		Completed: s.completed,
		Failed:    s.failed,
		Retried:   s.retried,
		Cancelled: s.cancelled,
		Pending:   s.queue.len(),
		InFlight:  s.inflight,
		Pool:      s.pool.Stats(),
	}
}
