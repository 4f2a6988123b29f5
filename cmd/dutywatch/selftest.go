package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/dutywatch/internal/config"
)

func createSelftestCommand(globalFlags *GlobalFlags) *cobra.Command {
	flags := &SelftestFlags{}
	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Append test lines to the worker log and report the alert queue",
		Long: `Append one critical, one warning and one ignored line to the worker log,
wait for the collector to pick them up, and print the private-message queue.

Examples:
  dutywatch selftest
  dutywatch selftest --wait 0   # only append the lines`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelftest(cmd.OutOrStdout(), globalFlags, flags, cmd.Flags().Changed("wait"))
		},
	}
	cmd.Flags().DurationVar(&flags.Wait, "wait", 0, "time to wait for the collector (default: one collector interval plus 5s)")
	return cmd
}

func runSelftest(out io.Writer, globalFlags *GlobalFlags, flags *SelftestFlags, waitSet bool) error {
	layout, err := loadLayout(globalFlags)
	if err != nil {
		return err
	}
	if err := appendSelftestLines(layout, time.Now()); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, "test lines appended to", layout.WorkerLog)

	wait := flags.Wait
	if !waitSet {
		wait = layout.Collector.Interval + 5*time.Second
	}
	if wait <= 0 {
		return nil
	}
	_, _ = fmt.Fprintf(out, "waiting %s for the collector...\n", wait)
	time.Sleep(wait)

	msgs, err := pendingMessages(layout)
	if err != nil {
		return fmt.Errorf("read queue: %w", err)
	}
	_, _ = fmt.Fprintf(out, "pending private messages: %d\n", len(msgs))
	for i, m := range msgs {
		_, _ = fmt.Fprintf(out, "--- %d ---\n%s\n", i+1, m)
	}
	return nil
}

func selftestLines(ts string) []string {
	return []string{
		ts + " | [SELFTEST] exception: simulated critical failure",
		ts + " | [SELFTEST] warning: simulated slow response",
		ts + " | [INFO] selftest line that must be ignored (error)",
	}
}

func appendSelftestLines(l config.Layout, now time.Time) error {
	if err := os.MkdirAll(filepath.Dir(l.WorkerLog), 0o750); err != nil {
		return err
	}
	// #nosec G304 -- path from the layout
	f, err := os.OpenFile(l.WorkerLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("open worker log: %w", err)
	}
	defer func() { _ = f.Close() }()
	ts := now.Format(l.Collector.TimestampLayout)
	for _, line := range selftestLines(ts) {
		if _, err := fmt.Fprintln(f, line); err != nil {
			return fmt.Errorf("append worker log: %w", err)
		}
	}
	return nil
}
