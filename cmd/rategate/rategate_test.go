package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"rategate/middleware/ratelimit/domain"
)

func TestMaxInWindow(t *testing.T) {
	base := time.Now()
	at := func(ms ...int) []time.Time {
		out := make([]time.Time, 0, len(ms))
		for _, m := range ms {
			out = append(out, base.Add(time.Duration(m)*time.Millisecond))
		}
		return out
	}

	cases := []struct {
		name  string
		times []time.Time
		want  int
	}{
		{"empty", nil, 0},
		{"single", at(0), 1},
		{"all inside", at(0, 10, 20), 3},
		{"window is half open", at(0, 100, 200), 1},
		{"unsorted input", at(150, 0, 90, 160, 40), 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := maxInWindow(tc.times, 100*time.Millisecond); got != tc.want {
				t.Fatalf("maxInWindow = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestRunProbe_RespectsGate(t *testing.T) {
	opts := probeOptions{
		occurrences: 3,
		window:      50 * time.Millisecond,
		callers:     8,
		duration:    220 * time.Millisecond,
		timeout:     5 * time.Millisecond,
	}
	rep, err := runProbe(context.Background(), opts)
	if err != nil {
		t.Fatalf("runProbe: %v", err)
	}
	if rep.admitted < int64(opts.occurrences) {
		t.Fatalf("expected at least %d admissions, got %d", opts.occurrences, rep.admitted)
	}
	// 220ms cabem no máximo em 5 janelas de 50ms (com folga de arredondamento)
	if rep.admitted > int64(opts.occurrences*6) {
		t.Fatalf("too many admissions for the window: %d", rep.admitted)
	}
	if rep.timedOut == 0 {
		t.Fatalf("expected contention to produce timeouts")
	}

	var buf bytes.Buffer
	rep.print(&buf, opts)
	if !strings.Contains(buf.String(), "admitted:") {
		t.Fatalf("expected report output, got %q", buf.String())
	}
}

func TestRunProbe_InvalidOptions(t *testing.T) {
	_, err := runProbe(context.Background(), probeOptions{occurrences: 0, window: time.Second, callers: 1, duration: time.Second})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for zero occurrences, got %v", err)
	}
	_, err = runProbe(context.Background(), probeOptions{occurrences: 1, window: time.Second, callers: 0, duration: time.Second})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for zero callers, got %v", err)
	}
}

func TestThrottleLines(t *testing.T) {
	in := strings.NewReader("a\nb\nc\n")
	var out bytes.Buffer

	start := time.Now()
	if err := throttleLines(in, &out, 2, 60*time.Millisecond); err != nil {
		t.Fatalf("throttleLines: %v", err)
	}
	if out.String() != "a\nb\nc\n" {
		t.Fatalf("expected lines unchanged, got %q", out.String())
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("third line should wait for the window, finished in %s", elapsed)
	}
}

func TestThrottleLines_InvalidWindow(t *testing.T) {
	err := throttleLines(strings.NewReader("x\n"), &bytes.Buffer{}, 1, 0)
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}
