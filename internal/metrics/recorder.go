// Package metrics provides scheduler instrumentation: Prometheus counters
// for unit throughput and an HDR histogram of unit execution latency.
package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/prometheus/client_golang/prometheus"
)

// Histogram bounds for unit latency, in microseconds.
const (
	minLatencyUs = 1
	maxLatencyUs = 10 * 60 * 1000 * 1000 // 10 minutes
	sigFigs      = 3
)

// Recorder collects scheduler metrics. All methods are safe for a nil
// receiver, so an uninstrumented scheduler can skip the wiring entirely.
type Recorder struct {
	unitsDispatched prometheus.Counter
	unitsCompleted  prometheus.Counter
	unitsFailed     prometheus.Counter
	unitsRetried    prometheus.Counter
	busyWorkers     prometheus.Gauge
	queueLength     prometheus.Gauge

	mu   sync.Mutex
	hist *hdrhistogram.Histogram
}

// NewRecorder creates a recorder and registers its collectors with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		unitsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "montegrid_units_dispatched_total",
			Help: "Total number of work units dispatched to workers.",
		}),
		unitsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "montegrid_units_completed_total",
			Help: "Total number of work units that completed successfully.",
		}),
		unitsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "montegrid_units_failed_total",
			Help: "Total number of work units that reached terminal failure.",
		}),
		unitsRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "montegrid_units_retried_total",
			Help: "Total number of work unit retry re-enqueues.",
		}),
		busyWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "montegrid_busy_workers",
			Help: "Number of workers currently executing a unit.",
		}),
		queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "montegrid_pending_units",
			Help: "Number of units waiting in the pending queue.",
		}),
		hist: hdrhistogram.New(minLatencyUs, maxLatencyUs, sigFigs),
	}

	collectors := []prometheus.Collector{
		r.unitsDispatched, r.unitsCompleted, r.unitsFailed,
		r.unitsRetried, r.busyWorkers, r.queueLength,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// UnitDispatched records a dispatch to a worker.
func (r *Recorder) UnitDispatched() {
	if r == nil {
		return
	}
	r.unitsDispatched.Inc()
}

// UnitFinished records a unit execution outcome and its latency.
func (r *Recorder) UnitFinished(d time.Duration, failed bool) {
	if r == nil {
		return
	}
	if failed {
		r.unitsFailed.Inc()
	} else {
		r.unitsCompleted.Inc()
	}

	us := d.Microseconds()
	if us < minLatencyUs {
		us = minLatencyUs
	}
	if us > maxLatencyUs {
		us = maxLatencyUs
	}
	r.mu.Lock()
	_ = r.hist.RecordValue(us)
	r.mu.Unlock()
}

// UnitRetried records a retry re-enqueue.
func (r *Recorder) UnitRetried() {
	if r == nil {
		return
	}
	r.unitsRetried.Inc()
}

// SetBusyWorkers updates the busy worker gauge.
func (r *Recorder) SetBusyWorkers(n int) {
	if r == nil {
		return
	}
	r.busyWorkers.Set(float64(n))
}

// SetQueueLength updates the pending queue gauge.
func (r *Recorder) SetQueueLength(n int) {
	if r == nil {
		return
	}
	r.queueLength.Set(float64(n))
}

// LatencyStats is a snapshot of the unit latency distribution.
type LatencyStats struct {
	Count int64
	P50   time.Duration
	P90   time.Duration
	P99   time.Duration
	Max   time.Duration
}

// Latency returns a snapshot of the latency histogram.
func (r *Recorder) Latency() LatencyStats {
	if r == nil {
		return LatencyStats{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hist.TotalCount() == 0 {
		return LatencyStats{}
	}
	return LatencyStats{
		Count: r.hist.TotalCount(),
		P50:   time.Duration(r.hist.ValueAtQuantile(50)) * time.Microsecond,
		P90:   time.Duration(r.hist.ValueAtQuantile(90)) * time.Microsecond,
		P99:   time.Duration(r.hist.ValueAtQuantile(99)) * time.Microsecond,
		Max:   time.Duration(r.hist.Max()) * time.Microsecond,
	}
}
