package receiver

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCountSubscriptionActivity(t *testing.T) {
	boom := errors.New("source unavailable")
	src := &fakeSource{script: []fetchResult{
		{msgs: msgs(1, 2, 3)},
		{err: boom},
	}}
	m := NewMetrics(prometheus.NewRegistry())
	r, err := New(src, Options{BatchSize: 16, Metrics: m})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	down := &capture{}
	sub, err := r.Receive(t.Context(), FromStart("s"), down)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	t.Cleanup(sub.Cancel)

	// One fetch of three against a demand of two: two emitted, one parked.
	sub.Request(2)
	waitFor(t, "first two", func() bool { n, _ := down.counts(); return n == 2 })
	time.Sleep(20 * time.Millisecond)

	assertCounter(t, m.fetches, "s", 1)
	assertCounter(t, m.emitted, "s", 2)
	assertCounter(t, m.buffered, "s", 1)
	assertCounter(t, m.drained, "s", 0)
	assertCounter(t, m.fetchErrors, "s", 0)

	// More demand drains the parked message, then the next fetch fails.
	sub.Request(2)
	waitFor(t, "terminal error", func() bool { _, e := down.counts(); return e == 1 })

	assertCounter(t, m.fetches, "s", 2)
	assertCounter(t, m.emitted, "s", 2)
	assertCounter(t, m.drained, "s", 1)
	assertCounter(t, m.fetchErrors, "s", 1)
}

func TestMetricsNilIsInert(t *testing.T) {
	var m *Metrics
	m.incFetches("s")
	m.incFetchErrors("s")
	m.incEmitted("s")
	m.incBuffered("s")
	m.incDrained("s")
}

func assertCounter(t *testing.T, vec *prometheus.CounterVec, stream string, want float64) {
	t.Helper()
	if got := testutil.ToFloat64(vec.WithLabelValues(stream)); got != want {
		t.Fatalf("counter for %q = %v, want %v", stream, got, want)
	}
}
