package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"rategate/middleware/ratelimit/domain"
	"rategate/middleware/ratelimit/infra"

	"github.com/spf13/cobra"
)

var probeFlags struct {
	occurrences int
	window      time.Duration
	callers     int
	duration    time.Duration
	timeout     time.Duration
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Load a local rate gate and report what got through",
	Long: `Start one rate gate and hammer it with concurrent callers.

Each caller loops on WaitToProceed(--timeout) until --duration elapses.
The report shows admissions, timeouts, the time spent waiting and the
largest number of admissions observed inside any window.

Examples:
  rategate probe --occurrences 5 --window 100ms
  rategate probe --occurrences 100 --window 1s --callers 50 --duration 5s --timeout 0`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := probeOptions{
			occurrences: probeFlags.occurrences,
			window:      probeFlags.window,
			callers:     probeFlags.callers,
			duration:    probeFlags.duration,
			timeout:     probeFlags.timeout,
		}
		rep, err := runProbe(cmd.Context(), opts)
		if err != nil {
			return err
		}
		rep.print(cmd.OutOrStdout(), opts)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().IntVar(&probeFlags.occurrences, "occurrences", 5, "admissions allowed per window")
	probeCmd.Flags().DurationVar(&probeFlags.window, "window", 100*time.Millisecond, "rolling window length")
	probeCmd.Flags().IntVar(&probeFlags.callers, "callers", 10, "concurrent callers")
	probeCmd.Flags().DurationVar(&probeFlags.duration, "duration", time.Second, "how long to run")
	probeCmd.Flags().DurationVar(&probeFlags.timeout, "timeout", 10*time.Millisecond, "per-call wait timeout (0 = try once)")
}

type probeOptions struct {
	occurrences int
	window      time.Duration
	callers     int
	duration    time.Duration
	timeout     time.Duration
}

type probeReport struct {
	admitted    int64
	timedOut    int64
	waited      time.Duration
	maxInWindow int
}

func runProbe(ctx context.Context, opts probeOptions) (probeReport, error) {
	if opts.callers <= 0 {
		return probeReport{}, fmt.Errorf("%w: callers must be > 0", domain.ErrInvalidArgument)
	}
	if opts.duration <= 0 {
		return probeReport{}, fmt.Errorf("%w: duration must be > 0", domain.ErrInvalidArgument)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	gate, err := infra.NewRateGate(opts.occurrences, opts.window, infra.WithGateLogger(cliLogger()))
	if err != nil {
		return probeReport{}, err
	}
	defer gate.Close()

	stats := infra.NewMemoryStatsStore()
	ctx, cancel := context.WithTimeout(ctx, opts.duration)
	defer cancel()

	var (
		mu    sync.Mutex
		times []time.Time
		wg    sync.WaitGroup
		errMu sync.Mutex
		first error
	)
	for i := 0; i < opts.callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				start := time.Now()
				ok, err := gate.WaitToProceed(opts.timeout)
				if err != nil {
					errMu.Lock()
					if first == nil {
						first = err
					}
					errMu.Unlock()
					return
				}
				now := time.Now()
				_ = stats.Record(ctx, domain.StatsEvent{Allowed: ok, Waited: now.Sub(start), At: now})
				if ok {
					mu.Lock()
					times = append(times, now)
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	if first != nil && !errors.Is(first, domain.ErrDisposed) {
		return probeReport{}, first
	}

	total := stats.Total()
	return probeReport{
		admitted:    total.Allowed,
		timedOut:    total.Denied,
		waited:      total.Waited,
		maxInWindow: maxInWindow(times, opts.window),
	}, nil
}

// maxInWindow conta o maior número de instantes dentro de qualquer janela
// semiaberta [t, t+window).
func maxInWindow(times []time.Time, window time.Duration) int {
	sorted := append([]time.Time(nil), times...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	best, lo := 0, 0
	for hi := range sorted {
		for sorted[hi].Sub(sorted[lo]) >= window {
			lo++
		}
		if n := hi - lo + 1; n > best {
			best = n
		}
	}
	return best
}

func (r probeReport) print(w io.Writer, opts probeOptions) {
	fmt.Fprintf(w, "gate:          %d per %s\n", opts.occurrences, opts.window)
	fmt.Fprintf(w, "callers:       %d for %s (timeout %s)\n", opts.callers, opts.duration, opts.timeout)
	fmt.Fprintf(w, "admitted:      %d\n", r.admitted)
	fmt.Fprintf(w, "timed out:     %d\n", r.timedOut)
	fmt.Fprintf(w, "time waiting:  %s\n", r.waited.Round(time.Millisecond))
	fmt.Fprintf(w, "max in window: %d (caller-side clock)\n", r.maxInWindow)
}
