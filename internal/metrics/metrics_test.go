package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeBackend is a simple in-memory Backend implementation for tests.
type fakeBackend struct {
	mu sync.Mutex

	callsCounters   []counterCall
	callsHistograms []histCall
	flushCount      int
}

type counterCall struct {
	name   string
	delta  float64
	labels Labels
}

type histCall struct {
	name   string
	value  float64
	labels Labels
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsCounters = append(f.callsCounters, counterCall{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsHistograms = append(f.callsHistograms, histCall{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushCount++
	return nil
}

/* install swaps the global backend for the duration of the test. */
func install(t *testing.T) *fakeBackend {
	t.Helper()
	orig := current()
	fb := &fakeBackend{}
	SetBackend(fb)
	t.Cleanup(func() { SetBackend(orig) })
	return fb
}

func TestRecordStep_SuccessAndFailure(t *testing.T) {
	fb := install(t)

	RecordStep("jobA", "parse", nil, 2*time.Second)
	RecordStep("jobB", "load", errors.New("boom"), 1500*time.Millisecond)

	if len(fb.callsCounters) != 2 || len(fb.callsHistograms) != 2 {
		t.Fatalf("calls got counters=%d hists=%d", len(fb.callsCounters), len(fb.callsHistograms))
	}
	cc0 := fb.callsCounters[0]
	if cc0.name != StepTotal || cc0.delta != 1 || cc0.labels["job"] != "jobA" ||
		cc0.labels["step"] != "parse" || cc0.labels["status"] != "success" {
		t.Fatalf("counter[0] = %#v", cc0)
	}
	h0 := fb.callsHistograms[0]
	if h0.name != StepDuration || h0.value < 1.999 || h0.value > 2.001 {
		t.Fatalf("hist[0] = %#v", h0)
	}
	if fb.callsCounters[1].labels["status"] != "failure" {
		t.Fatalf("counter[1].labels = %v", fb.callsCounters[1].labels)
	}
}

func TestRecordRowsBatchesLookups(t *testing.T) {
	fb := install(t)

	RecordRows("j", KindImported, 3)
	RecordRows("j", KindSkipped, 0) // ignored
	RecordBatch("j", true)
	RecordLookups("j", 2, 0)

	if len(fb.callsCounters) != 3 {
		t.Fatalf("expected 3 counter calls, got %d", len(fb.callsCounters))
	}
	if c := fb.callsCounters[0]; c.name != RecordsTotal || c.delta != 3 || c.labels["kind"] != KindImported {
		t.Fatalf("rows counter = %#v", c)
	}
	if c := fb.callsCounters[1]; c.name != BatchesTotal || c.labels["status"] != "failure" {
		t.Fatalf("batch counter = %#v", c)
	}
	if c := fb.callsCounters[2]; c.name != LookupsDegraded || c.delta != 2 || c.labels["reason"] != "timeout" {
		t.Fatalf("lookup counter = %#v", c)
	}
}

func TestSetBackendAndFlush(t *testing.T) {
	fb := install(t)

	if err := Flush(); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if fb.flushCount != 1 {
		t.Fatalf("expected flushCount=1, got %d", fb.flushCount)
	}
	SetBackend(nil)
	if current() != Backend(fb) {
		t.Fatal("SetBackend(nil) should not change backend")
	}
}
