package infra

import (
	"context"
	"testing"
	"time"

	"rategate/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestGateMetrics_ObservesGateLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewGateMetrics(reg)

	g, err := NewRateGate(2, time.Minute, WithGateObserver(m))
	if err != nil {
		t.Fatalf("NewRateGate: %v", err)
	}
	g.Allow()
	g.Allow()
	g.Allow()

	if got := testutil.ToFloat64(m.admitted); got != 2 {
		t.Fatalf("expected 2 admissions, got %v", got)
	}
	if got := testutil.ToFloat64(m.timedOut); got != 1 {
		t.Fatalf("expected 1 timeout, got %v", got)
	}
	if got := testutil.ToFloat64(m.inWindow); got != 2 {
		t.Fatalf("expected 2 occurrences in window, got %v", got)
	}

	_ = g.Close()
	if got := testutil.ToFloat64(m.disposed); got != 1 {
		t.Fatalf("expected 1 disposed gate, got %v", got)
	}
	if got := testutil.ToFloat64(m.inWindow); got != 0 {
		t.Fatalf("expected in-window gauge back to 0 after dispose, got %v", got)
	}
}

func TestGateMetrics_CountsReleases(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewGateMetrics(reg)

	g, err := NewRateGate(1, 20*time.Millisecond, WithGateObserver(m))
	if err != nil {
		t.Fatalf("NewRateGate: %v", err)
	}
	defer g.Close()

	g.Allow()
	deadline := time.Now().Add(time.Second)
	for testutil.ToFloat64(m.released) < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := testutil.ToFloat64(m.released); got != 1 {
		t.Fatalf("expected 1 release, got %v", got)
	}
}

func TestGateMetrics_RecordDecisions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewGateMetrics(reg)
	ctx := context.Background()

	_ = m.Record(ctx, domain.StatsEvent{Allowed: true, Waited: 5 * time.Millisecond})
	_ = m.Record(ctx, domain.StatsEvent{Outcome: domain.OutcomeDenied})
	_ = m.Record(ctx, domain.StatsEvent{Outcome: domain.OutcomeDisposed})

	if got := testutil.ToFloat64(m.decisions.WithLabelValues("allowed")); got != 1 {
		t.Fatalf("expected 1 allowed decision, got %v", got)
	}
	if got := testutil.ToFloat64(m.decisions.WithLabelValues("denied")); got != 1 {
		t.Fatalf("expected 1 denied decision, got %v", got)
	}
	if got := testutil.ToFloat64(m.decisions.WithLabelValues("disposed")); got != 1 {
		t.Fatalf("expected 1 disposed decision, got %v", got)
	}
	if n := testutil.CollectAndCount(m.waited); n != 1 {
		t.Fatalf("expected wait histogram to be collected, got %d series", n)
	}
}
