// Package metrics records operational metrics for import jobs behind a
// narrow, backend-agnostic interface. The default backend is a no-op, so the
// helpers are always safe to call; concrete systems live in subpackages
// (prompush, datadog) and are installed with SetBackend.
package metrics

import (
	"sync"
	"time"
)

// Metric names shared by every backend.
const (
	StepTotal       = "fuelimport_step_total"
	StepDuration    = "fuelimport_step_duration_seconds"
	RecordsTotal    = "fuelimport_records_total"
	BatchesTotal    = "fuelimport_batches_total"
	LookupsDegraded = "fuelimport_lookups_degraded_total"
)

// Record kinds used with RecordRows.
const (
	KindRows     = "rows"
	KindImported = "imported"
	KindSkipped  = "skipped"
	KindFailed   = "failed"
	KindPending  = "pending"
	KindFlagged  = "flagged"
	KindWarnings = "warnings"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep counts one execution of a pipeline step and its latency.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "step": step, "status": status}
	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRows adds delta rows of kind for job. Non-positive deltas are ignored.
func RecordRows(job, kind string, delta int) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(delta), Labels{"job": job, "kind": kind})
}

// RecordBatch counts one attempted loader batch.
func RecordBatch(job string, failed bool) {
	status := "success"
	if failed {
		status = "failure"
	}
	current().IncCounter(BatchesTotal, 1, Labels{"job": job, "status": status})
}

// RecordLookups counts collaborator calls that degraded to "unknown".
func RecordLookups(job string, timeouts, failures int64) {
	b := current()
	if timeouts > 0 {
		b.IncCounter(LookupsDegraded, float64(timeouts), Labels{"job": job, "reason": "timeout"})
	}
	if failures > 0 {
		b.IncCounter(LookupsDegraded, float64(failures), Labels{"job": job, "reason": "error"})
	}
}
