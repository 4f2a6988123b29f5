// Package dutywatch exposes the supervisor for programs that embed it
// instead of running the dutywatch binary.
package dutywatch

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/dutywatch/internal/config"
	"github.com/loykin/dutywatch/internal/event"
	"github.com/loykin/dutywatch/internal/metrics"
	"github.com/loykin/dutywatch/internal/reason"
	"github.com/loykin/dutywatch/internal/supervisor"
)

// Re-exported so embedders never import internal packages.

type Layout = config.Layout

type Options = config.Options

type Status = supervisor.Status

type Reason = reason.Reason

func DefaultLayout(root string) Layout { return config.DefaultLayout(root) }

func LoadLayout(path string) (Layout, error) { return config.LoadLayout(path) }

func LoadOptions(path string) (Options, error) { return config.LoadOptions(path) }

// Supervisor is a thin facade over internal/supervisor.
type Supervisor struct{ inner *supervisor.Supervisor }

// New builds a supervisor for layout. Queue flushing is left to the
// collector; a nil logger falls back to slog.Default.
func New(layout Layout, logger *slog.Logger) (*Supervisor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := supervisor.New(supervisor.Config{Layout: layout}, supervisor.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return &Supervisor{inner: s}, nil
}

func (s *Supervisor) Run(ctx context.Context) error { return s.inner.Run(ctx) }

func (s *Supervisor) Poll(ctx context.Context) (Reason, error) { return s.inner.Poll(ctx) }

func (s *Supervisor) Restart(ctx context.Context, r string) error {
	return s.inner.Restart(ctx, reason.Custom(r))
}

func (s *Supervisor) Shutdown(ctx context.Context) { s.inner.Shutdown(ctx) }

func (s *Supervisor) Status() Status { return s.inner.Status() }

// RequestRestart drops a restart event into the layout's mailbox; a
// running supervisor picks it up on its next poll.
func RequestRestart(layout Layout, r string) error {
	return event.Write(layout.EventFile, event.Payload{Action: event.ActionRestart, Reason: r})
}

// LastReason reports the reason recorded for the current worker run.
func LastReason(layout Layout) (Reason, error) { return reason.Read(layout.ReasonFile) }

// Metrics helpers

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics serves /metrics from the default registry in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
