package main

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"time"

	"rategate/middleware/ratelimit/infra"

	"github.com/spf13/cobra"
)

var throttleFlags struct {
	occurrences int
	window      time.Duration
}

var throttleCmd = &cobra.Command{
	Use:   "throttle",
	Short: "Copy stdin to stdout, at most N lines per window",
	Long: `Read lines from stdin and write them to stdout unchanged, never more than
--occurrences lines inside any --window.

Example:
  tail -f app.log | rategate throttle --occurrences 10 --window 1s`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return throttleLines(cmd.InOrStdin(), cmd.OutOrStdout(), throttleFlags.occurrences, throttleFlags.window,
			infra.WithGateLogger(cliLogger()))
	},
}

func init() {
	rootCmd.AddCommand(throttleCmd)

	throttleCmd.Flags().IntVar(&throttleFlags.occurrences, "occurrences", 10, "lines allowed per window")
	throttleCmd.Flags().DurationVar(&throttleFlags.window, "window", time.Second, "rolling window length")
}

func throttleLines(in io.Reader, out io.Writer, occurrences int, window time.Duration, opts ...infra.GateOption) error {
	sc := bufio.NewScanner(in)
	limited, err := infra.LimitSeq(scanLines(sc), occurrences, window, opts...)
	if err != nil {
		return err
	}
	for line := range limited {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return sc.Err()
}

func scanLines(sc *bufio.Scanner) iter.Seq[string] {
	return func(yield func(string) bool) {
		for sc.Scan() {
			if !yield(sc.Text()) {
				return
			}
		}
	}
}
