package sched

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/montegrid/montegrid/pkg/types"
)

// PoolConfig defines configuration for the worker pool.
type PoolConfig struct {
	// Workers is the initial number of workers
	Workers int

	// MinWorkers is the scale-down bound (defaults to 1)
	MinWorkers int

	// MaxWorkers is the scale-up bound (defaults to Workers)
	MaxWorkers int

	// Seed is the base seed for per-worker random sources. Worker i is
	// seeded with Seed perturbed by i, so workers never share a stream.
	Seed int64

	// Clock for time operations (optional, defaults to real clock)
	Clock types.Clock
}

// DefaultPoolConfig returns the default pool configuration.
func DefaultPoolConfig() *PoolConfig {
	n := runtime.NumCPU()
	return &PoolConfig{
		Workers:    n,
		MinWorkers: 1,
		MaxWorkers: n,
		Seed:       1,
	}
}

// seedFor derives the rand seed of worker id from the base seed.
func seedFor(base int64, id int) int64 {
	return base + int64(uint64(id)*0x9E3779B97F4A7C15)
}

// Pool owns the worker set and tracks idle/busy availability. All queueing
// lives in the Scheduler; the pool is pure state bookkeeping. Mutations are
// serialized through the scheduler loop; the internal mutex only makes
// Stats snapshots safe for outside readers.
type Pool struct {
	cfg *PoolConfig

	mu       sync.RWMutex
	workers  map[int]*Worker
	idle     []int // sorted worker ids
	nextID   int
	removals int // busy workers scheduled for removal on release

	// set by the scheduler at start
	ctx      context.Context
	resultCh chan<- unitResult
}

// NewPool creates a worker pool. Workers are spawned when the owning
// scheduler starts.
func NewPool(cfg *PoolConfig) (*Pool, error) {
	if cfg == nil {
		cfg = DefaultPoolConfig()
	}
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", cfg.Workers)
	}
	if cfg.MinWorkers <= 0 {
		cfg.MinWorkers = 1
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = cfg.Workers
	}
	if cfg.MinWorkers > cfg.Workers || cfg.Workers > cfg.MaxWorkers {
		return nil, fmt.Errorf("worker bounds must satisfy min <= workers <= max, got %d <= %d <= %d",
			cfg.MinWorkers, cfg.Workers, cfg.MaxWorkers)
	}
	if cfg.Clock == nil {
		cfg.Clock = types.NewRealClock()
	}

	return &Pool{
		cfg:     cfg,
		workers: make(map[int]*Worker),
	}, nil
}

// start spawns the initial workers. Called by the scheduler.
func (p *Pool) start(ctx context.Context, resultCh chan<- unitResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ctx = ctx
	p.resultCh = resultCh
	for i := 0; i < p.cfg.Workers; i++ {
		p.spawnLocked()
	}
}

func (p *Pool) spawnLocked() *Worker {
	id := p.nextID
	p.nextID++

	w := newWorker(id, seedFor(p.cfg.Seed, id), p.resultCh, p.cfg.Clock)
	p.workers[id] = w
	p.insertIdleLocked(id)
	go w.run(p.ctx)
	return w
}

func (p *Pool) insertIdleLocked(id int) {
	i := sort.SearchInts(p.idle, id)
	p.idle = append(p.idle, 0)
	copy(p.idle[i+1:], p.idle[i:])
	p.idle[i] = id
}

// AcquireIdle returns the idle worker with the lowest id, or nil if every
// worker is busy. The lowest-id rule makes dispatch order deterministic.
func (p *Pool) AcquireIdle() *Worker {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.idle) == 0 {
		return nil
	}
	id := p.idle[0]
	p.idle = p.idle[1:]
	return p.workers[id]
}

// Release returns a worker to the idle set. If a scale-down is pending the
// worker is stopped and dropped instead.
func (p *Pool) Release(workerID int) {
	p.mu.Lock()

	w, ok := p.workers[workerID]
	if !ok {
		p.mu.Unlock()
		return
	}
	if p.removals > 0 {
		p.removals--
		delete(p.workers, workerID)
		p.mu.Unlock()
		_ = w.stop()
		return
	}
	p.insertIdleLocked(workerID)
	p.mu.Unlock()
}

// scale adjusts the worker count toward target within the configured
// bounds. Scale-down drains idle workers first; busy workers are removed as
// they finish their current unit.
func (p *Pool) scale(target int) error {
	if target < p.cfg.MinWorkers || target > p.cfg.MaxWorkers {
		return fmt.Errorf("scale target %d outside bounds [%d, %d]",
			target, p.cfg.MinWorkers, p.cfg.MaxWorkers)
	}

	p.mu.Lock()

	current := len(p.workers) - p.removals
	switch {
	case target > current:
		for i := current; i < target; i++ {
			p.spawnLocked()
		}
		p.mu.Unlock()

	case target < current:
		excess := current - target
		var stopped []*Worker
		for excess > 0 && len(p.idle) > 0 {
			id := p.idle[len(p.idle)-1]
			p.idle = p.idle[:len(p.idle)-1]
			stopped = append(stopped, p.workers[id])
			delete(p.workers, id)
			excess--
		}
		p.removals += excess
		p.mu.Unlock()

		for _, w := range stopped {
			_ = w.stop()
		}

	default:
		p.mu.Unlock()
	}

	return nil
}

// Size returns the current number of workers, excluding those already
// scheduled for removal.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.workers) - p.removals
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool) Stats() types.PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	size := len(p.workers) - p.removals
	idle := len(p.idle)
	return types.PoolStats{
		Size: size,
		Idle: idle,
		Busy: size - idle,
	}
}

// WorkerStats returns per-worker statistics ordered by worker id.
func (p *Pool) WorkerStats() []WorkerStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]int, 0, len(p.workers))
	for id := range p.workers {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	stats := make([]WorkerStats, len(ids))
	for i, id := range ids {
		stats[i] = p.workers[id].Stats()
	}
	return stats
}

// stop stops all workers and waits for them to drain.
func (p *Pool) stop() error {
	p.mu.Lock()
	workers := make([]*Worker, 0, len(p.workers))
	for _, w := range p.workers {
		workers = append(workers, w)
	}
	p.workers = make(map[int]*Worker)
	p.idle = nil
	p.removals = 0
	p.mu.Unlock()

	var firstErr error
	var wg sync.WaitGroup
	var errMu sync.Mutex
	for _, w := range workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			if err := w.stop(); err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return firstErr
}
