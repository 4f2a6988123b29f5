package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loykin/dutywatch/internal/collector"
	"github.com/loykin/dutywatch/internal/config"
	"github.com/loykin/dutywatch/internal/notify"
	"github.com/loykin/dutywatch/internal/process"
)

func createCollectCommand(globalFlags *GlobalFlags) *cobra.Command {
	flags := &CollectFlags{}
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run the log collector",
		Long: `Scan the worker log for new errors every collector interval and send
alerts. Normally launched by "dutywatch supervise".

Examples:
  dutywatch collect --root /srv/duty
  dutywatch collect --once`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(globalFlags, flags)
		},
	}
	cmd.Flags().BoolVar(&flags.Once, "once", false, "run a single cycle and exit")
	return cmd
}

func runCollect(globalFlags *GlobalFlags, flags *CollectFlags) error {
	layout, err := loadLayout(globalFlags)
	if err != nil {
		return err
	}
	logCfg := layout.Log
	logCfg.File = layout.Collector.Log
	logCfg.Stderr = flags.Once
	log, closer, err := newLogger(logCfg)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	lock, err := process.AcquireLock(
		filepath.Join(layout.RunDir, "collector.lock"),
		filepath.Join(layout.RunDir, "collector.pid"),
	)
	if err != nil {
		if errors.Is(err, process.ErrLocked) {
			return fmt.Errorf("another collector is already running for %s: %w", layout.Root, err)
		}
		return err
	}
	defer func() { _ = lock.Release() }()

	opts := loadOptions(layout, log)
	rec, closeHistory := openHistory(layout, log)
	defer closeHistory()

	c := collector.New(collectorConfig(layout, opts), newGateway(layout, opts, log),
		collector.WithLogger(log),
		collector.WithHistory(rec),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if flags.Once {
		c.Cycle(ctx)
		return nil
	}
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func collectorConfig(l config.Layout, opts config.Options) collector.Config {
	cc := l.Collector
	return collector.Config{
		LogPath:         l.WorkerLog,
		WatermarkPath:   l.WatermarkFile,
		ReasonPath:      l.ReasonFile,
		Interval:        cc.Interval,
		TailLines:       cc.TailLines,
		TimestampLayout: cc.TimestampLayout,
		Rules: collector.Rules{
			CriticalKeys:   cc.CriticalKeys,
			WarningKeys:    cc.WarningKeys,
			IgnoreKeys:     cc.IgnoreKeys,
			IgnorePrefixes: cc.IgnorePrefixes,
		},
		CrashReasons:    cc.CrashReasons,
		PrivateInterval: opts.PrivateInterval,
	}
}

// pendingMessages reports the private queue for the selftest and status output.
func pendingMessages(l config.Layout) ([]string, error) {
	return notify.NewQueue(l.QueueFile).Load()
}
