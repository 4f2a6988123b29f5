// Package collector scans the worker's log for new problems and raises
// alerts through a notifier. It runs as its own process and keeps its
// progress in a watermark file so unchanged log tails never alert twice.
package collector

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/loykin/dutywatch/internal/history"
	"github.com/loykin/dutywatch/internal/metrics"
	"github.com/loykin/dutywatch/internal/reason"
)

const (
	DefaultTailLines       = 500
	DefaultTimestampLayout = "2006-01-02 15:04:05"
	DefaultInterval        = time.Minute
)

// Notifier is the delivery side used by the Collector.
type Notifier interface {
	SendPrivate(ctx context.Context, text string) error
	SendBroadcast(ctx context.Context, text string)
	FlushQueue(ctx context.Context) int
}

type Config struct {
	LogPath       string
	WatermarkPath string
	ReasonPath    string

	Interval        time.Duration
	TailLines       int
	TimestampLayout string
	Rules           Rules
	CrashReasons    []string

	// Used in report texts only.
	PrivateInterval time.Duration
}

type Collector struct {
	cfg      Config
	notifier Notifier
	marks    *WatermarkStore
	logger   *slog.Logger
	history  *history.Recorder
	now      func() time.Time
}

type Option func(*Collector)

func WithLogger(l *slog.Logger) Option { return func(c *Collector) { c.logger = l } }

func WithClock(now func() time.Time) Option { return func(c *Collector) { c.now = now } }

func WithHistory(r *history.Recorder) Option { return func(c *Collector) { c.history = r } }

func New(cfg Config, n Notifier, opts ...Option) *Collector {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.TailLines <= 0 {
		cfg.TailLines = DefaultTailLines
	}
	if cfg.TimestampLayout == "" {
		cfg.TimestampLayout = DefaultTimestampLayout
	}
	if len(cfg.CrashReasons) == 0 {
		cfg.CrashReasons = []string{string(reason.Crash), "core_crash"}
	}
	if cfg.PrivateInterval <= 0 {
		cfg.PrivateInterval = 5 * time.Minute
	}
	cfg.Rules = cfg.Rules.Merge(DefaultRules())
	c := &Collector{
		cfg:      cfg,
		notifier: n,
		marks:    NewWatermarkStore(cfg.WatermarkPath),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run executes a cycle immediately and then once per interval until ctx is
// done. Cycle failures are logged; Run only returns ctx.Err().
func (c *Collector) Run(ctx context.Context) error {
	c.logger.Info("collector started", "log", c.cfg.LogPath, "interval", c.cfg.Interval)
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		c.Cycle(ctx)
		select {
		case <-ctx.Done():
			c.logger.Info("collector stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cycle flushes the private queue, scans the log, dispatches a report when
// there is something new, and checks the restart-reason marker.
func (c *Collector) Cycle(ctx context.Context) {
	c.notifier.FlushQueue(ctx)

	now := c.now()
	sum, err := c.Scan(now)
	if err != nil {
		c.logger.Warn("log scan failed", "path", c.cfg.LogPath, "error", err)
	} else {
		c.maybeReport(ctx, sum, now)
	}
	c.checkRestartMarker(ctx)
}

// Scan classifies the lines newer than the stored last_checked watermark and
// advances last_checked to now.
func (c *Collector) Scan(now time.Time) (Summary, error) {
	wm := c.loadWatermark()

	lines, err := tail(c.cfg.LogPath, c.cfg.TailLines)
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	current := "" // timestamp inherited by continuation lines
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		ts, body, ok := splitTimestamp(line, c.cfg.TimestampLayout)
		if ok {
			current = ts
		} else {
			ts = current
		}
		if wm.LastChecked != "" && (ts == "" || ts <= wm.LastChecked) {
			continue
		}
		sum.Scanned++
		switch c.cfg.Rules.Classify(line, body) {
		case Ignored:
			continue
		case Critical:
			sum.Critical++
			sum.LastLine = strings.TrimSpace(line)
		case Warning:
			sum.Warning++
			sum.LastLine = strings.TrimSpace(line)
		}
		if ts != "" {
			sum.LastTime = ts
		}
	}

	wm.LastChecked = now.Format(c.cfg.TimestampLayout)
	if sum.LastTime > wm.LastChecked {
		wm.LastChecked = sum.LastTime
	}
	if err := c.marks.Save(wm); err != nil {
		c.logger.Warn("failed to persist watermark", "path", c.marks.Path(), "error", err)
	}
	metrics.IncScan()
	c.logger.Debug("scan complete", "scanned", sum.Scanned, "critical", sum.Critical, "warning", sum.Warning, "last_time", sum.LastTime)
	return sum, nil
}

func (c *Collector) maybeReport(ctx context.Context, sum Summary, now time.Time) {
	if sum.Total() == 0 || sum.LastTime == "" {
		return
	}
	wm := c.loadWatermark()
	if wm.LastReported != "" && sum.LastTime <= wm.LastReported {
		return
	}

	if err := c.notifier.SendPrivate(ctx, privateReport(sum, c.cfg.LogPath, c.cfg.PrivateInterval)); err != nil {
		c.logger.Error("failed to queue private report", "error", err)
	}
	c.notifier.SendBroadcast(ctx, broadcastReport(sum, c.cfg.LogPath, now))
	c.logger.Info("report dispatched", "critical", sum.Critical, "warning", sum.Warning, "last_time", sum.LastTime)

	wm.LastReported = sum.LastTime
	if err := c.marks.Save(wm); err != nil {
		c.logger.Warn("failed to persist watermark", "path", c.marks.Path(), "error", err)
	}
	c.history.Emit(ctx, history.Event{
		Type: history.EventAlert,
		Record: history.Record{
			Process: "collector",
			Reason:  "log_errors",
			Detail:  sum.LastLine,
		},
	})
}

func (c *Collector) checkRestartMarker(ctx context.Context) {
	if c.cfg.ReasonPath == "" {
		return
	}
	r, err := reason.Read(c.cfg.ReasonPath)
	if err != nil {
		c.logger.Warn("failed to read restart reason", "path", c.cfg.ReasonPath, "error", err)
		return
	}
	value := strings.ToLower(strings.TrimSpace(r.String()))
	for _, cr := range c.cfg.CrashReasons {
		if value != "" && value == strings.ToLower(cr) {
			if err := c.notifier.SendPrivate(ctx, crashNotice(value)); err != nil {
				c.logger.Error("failed to queue crash notice", "error", err)
			}
			return
		}
	}
}

func (c *Collector) loadWatermark() Watermark {
	wm, err := c.marks.Load()
	if err != nil {
		if errors.Is(err, ErrCorruptWatermark) {
			c.logger.Warn("watermark corrupt, starting fresh", "path", c.marks.Path(), "error", err)
		} else {
			c.logger.Warn("failed to read watermark", "path", c.marks.Path(), "error", err)
		}
	}
	return wm
}
