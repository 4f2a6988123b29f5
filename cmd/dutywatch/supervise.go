package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/loykin/dutywatch/internal/config"
	"github.com/loykin/dutywatch/internal/metrics"
	"github.com/loykin/dutywatch/internal/notify"
	"github.com/loykin/dutywatch/internal/process"
	"github.com/loykin/dutywatch/internal/server"
	"github.com/loykin/dutywatch/internal/supervisor"
)

func createSuperviseCommand(globalFlags *GlobalFlags) *cobra.Command {
	flags := &SuperviseFlags{}
	cmd := &cobra.Command{
		Use:   "supervise",
		Short: "Run the worker supervisor",
		Long: `Start the worker, keep it running, and supervise the log collector.

Examples:
  dutywatch supervise --root /srv/duty
  dutywatch supervise --config /srv/duty/dutywatch.toml --daemonize`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSupervise(globalFlags, flags)
		},
	}
	cmd.Flags().BoolVar(&flags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&flags.LogFile, "logfile", "", "redirect daemon stdout/stderr to file")
	return cmd
}

func runSupervise(globalFlags *GlobalFlags, flags *SuperviseFlags) error {
	layout, err := loadLayout(globalFlags)
	if err != nil {
		return err
	}
	if flags.Daemonize {
		return daemonize(flags.LogFile)
	}

	log, closer, err := newLogger(layout.Log)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	lock, err := process.AcquireLock(
		filepath.Join(layout.RunDir, "supervisor.lock"),
		filepath.Join(layout.RunDir, "supervisor.pid"),
	)
	if err != nil {
		if errors.Is(err, process.ErrLocked) {
			return fmt.Errorf("another supervisor is already running for %s: %w", layout.Root, err)
		}
		return err
	}
	defer func() { _ = lock.Release() }()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.Warn("metrics registration failed", "error", err)
	}
	rec, closeHistory := openHistory(layout, log)
	defer closeHistory()

	sup, err := supervisor.New(
		supervisor.Config{Layout: layout, LayoutPath: absConfigPath(globalFlags)},
		supervisor.WithLogger(log),
		supervisor.WithHistory(rec),
		supervisor.WithSampler(metrics.NewSampler(metrics.SamplerConfig{}, log)),
		supervisor.WithFlusher(func(o config.Options) supervisor.QueueFlusher {
			return newGateway(layout, o, log)
		}),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if layout.API.Listen != "" {
		srv := server.NewServer(layout.API.Listen, server.NewRouter(server.RouterConfig{
			Status:    sup,
			EventFile: layout.EventFile,
			Queue:     notify.NewQueue(layout.QueueFile),
			BasePath:  layout.API.BasePath,
		}), log)
		defer shutdownServer(srv, log)
	}

	log.Info("supervisor starting", "root", layout.Root, "poll_interval", layout.PollInterval)
	err = sup.Run(ctx)
	log.Info("supervisor stopped", "error", err)
	return err
}

func shutdownServer(srv *server.Server, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("api server shutdown", "error", err)
	}
}
