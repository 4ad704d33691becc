package infra

import (
	"errors"
	"maps"
	"slices"
	"testing"
	"time"

	"rategate/middleware/ratelimit/domain"
)

func TestLimitSeq_PassesElementsThrough(t *testing.T) {
	seq, err := LimitSeq(slices.Values([]int{1, 2, 3}), 10, time.Second)
	if err != nil {
		t.Fatalf("LimitSeq: %v", err)
	}
	got := slices.Collect(seq)
	if !slices.Equal(got, []int{1, 2, 3}) {
		t.Fatalf("expected elements unchanged, got %v", got)
	}
}

func TestLimitSeq_ThrottlesPerWindow(t *testing.T) {
	seq, err := LimitSeq(slices.Values([]string{"a", "b", "c"}), 2, 60*time.Millisecond)
	if err != nil {
		t.Fatalf("LimitSeq: %v", err)
	}

	start := time.Now()
	var stamps []time.Duration
	for range seq {
		stamps = append(stamps, time.Since(start))
	}
	if len(stamps) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(stamps))
	}
	if stamps[1] > 30*time.Millisecond {
		t.Fatalf("first two elements should not wait, second came at %s", stamps[1])
	}
	if stamps[2] < 50*time.Millisecond {
		t.Fatalf("third element should wait for the window, came at %s", stamps[2])
	}
}

func TestLimitSeq_EarlyBreakStopsUpstream(t *testing.T) {
	produced := 0
	upstream := func(yield func(int) bool) {
		for i := 0; ; i++ {
			produced++
			if !yield(i) {
				return
			}
		}
	}

	seq, err := LimitSeq(upstream, 100, time.Second)
	if err != nil {
		t.Fatalf("LimitSeq: %v", err)
	}
	for v := range seq {
		if v == 2 {
			break
		}
	}
	if produced != 3 {
		t.Fatalf("expected upstream to stop after break, produced %d", produced)
	}
}

func TestLimitSeq_ValidatesEagerly(t *testing.T) {
	if _, err := LimitSeq(slices.Values([]int{1}), 0, time.Second); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := LimitSeq2(maps.All(map[string]int{"a": 1}), 1, -time.Second); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestLimitSeq2_PassesPairsThrough(t *testing.T) {
	in := map[string]int{"a": 1, "b": 2}
	seq, err := LimitSeq2(maps.All(in), 5, time.Second)
	if err != nil {
		t.Fatalf("LimitSeq2: %v", err)
	}
	got := maps.Collect(seq)
	if len(got) != 2 || got["a"] != 1 || got["b"] != 2 {
		t.Fatalf("expected pairs unchanged, got %v", got)
	}
}

func TestLimitSeq_ClosesGateWhenIterationEnds(t *testing.T) {
	obs := &countingObserver{}
	seq, err := LimitSeq(slices.Values([]int{1, 2, 3}), 10, time.Second, WithGateObserver(obs))
	if err != nil {
		t.Fatalf("LimitSeq: %v", err)
	}

	if got := slices.Collect(seq); len(got) != 3 {
		t.Fatalf("expected 3 elements, got %v", got)
	}
	if got := obs.disposes.Load(); got != 1 {
		t.Fatalf("expected gate closed once after full iteration, got %d", got)
	}
	if got := obs.lastPending.Load(); got != 3 {
		t.Fatalf("expected 3 admissions pending at close, got %d", got)
	}

	// nova iteração, novo gate
	for range seq {
	}
	if got := obs.disposes.Load(); got != 2 {
		t.Fatalf("expected one gate per iteration, got %d disposals", got)
	}
}

func TestLimitSeq_ClosesGateOnEarlyBreak(t *testing.T) {
	obs := &countingObserver{}
	upstream := func(yield func(int) bool) {
		for i := 0; ; i++ {
			if !yield(i) {
				return
			}
		}
	}

	seq, err := LimitSeq(upstream, 100, time.Second, WithGateObserver(obs))
	if err != nil {
		t.Fatalf("LimitSeq: %v", err)
	}
	for v := range seq {
		if obs.disposes.Load() != 0 {
			t.Fatalf("gate closed while iterating")
		}
		if v == 1 {
			break
		}
	}
	if got := obs.disposes.Load(); got != 1 {
		t.Fatalf("expected gate closed after break, got %d", got)
	}
	if got := obs.admits.Load(); got != 2 {
		t.Fatalf("expected 2 admissions, got %d", got)
	}
}

func TestLimitSeq2_ClosesGateOnEarlyBreak(t *testing.T) {
	obs := &countingObserver{}
	seq, err := LimitSeq2(slices.All([]string{"a", "b", "c"}), 5, time.Second, WithGateObserver(obs))
	if err != nil {
		t.Fatalf("LimitSeq2: %v", err)
	}
	for i := range seq {
		if i == 0 {
			break
		}
	}
	if got := obs.disposes.Load(); got != 1 {
		t.Fatalf("expected gate closed after break, got %d", got)
	}
}
