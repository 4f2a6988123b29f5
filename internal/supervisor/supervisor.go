// Package supervisor keeps the worker process alive and the log collector
// running beside it. A single poll loop detects why the worker must be
// restarted (crash, manual exit, file or config change, external event),
// acts on at most one trigger per cycle, and hands the reason to the next
// worker run through the restart-reason file.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/dutywatch/internal/config"
	"github.com/loykin/dutywatch/internal/env"
	"github.com/loykin/dutywatch/internal/event"
	"github.com/loykin/dutywatch/internal/history"
	"github.com/loykin/dutywatch/internal/logger"
	"github.com/loykin/dutywatch/internal/metrics"
	"github.com/loykin/dutywatch/internal/process"
	"github.com/loykin/dutywatch/internal/reason"
	"github.com/loykin/dutywatch/internal/watch"
)

const (
	WorkerName    = "worker"
	CollectorName = "collector"

	// EnvReasonFile tells the worker where its restart reason is waiting.
	EnvReasonFile = "DUTYWATCH_REASON_FILE"
)

// QueueFlusher drains the private-message queue. notify.Gateway implements it.
type QueueFlusher interface {
	FlushQueue(ctx context.Context) int
}

type Config struct {
	Layout config.Layout
	// LayoutPath is forwarded to the default collector command.
	LayoutPath string
}

type Option func(*Supervisor)

func WithLogger(l *slog.Logger) Option { return func(s *Supervisor) { s.logger = l } }

func WithHistory(r *history.Recorder) Option { return func(s *Supervisor) { s.history = r } }

// WithFlusher installs a factory that builds the queue flusher from the
// current options. It is called again after every options reload.
func WithFlusher(fn func(config.Options) QueueFlusher) Option {
	return func(s *Supervisor) { s.newFlusher = fn }
}

func WithSampler(sm *metrics.Sampler) Option { return func(s *Supervisor) { s.sampler = sm } }

type Supervisor struct {
	layout     config.Layout
	layoutPath string
	logger     *slog.Logger
	history    *history.Recorder
	sampler    *metrics.Sampler
	newFlusher func(config.Options) QueueFlusher

	tracker      *watch.Tracker
	events       *event.Channel
	workerOut    *logger.RotatingFile
	collectorOut *logger.RotatingFile

	worker    *child
	collector *child

	// touched by the poll loop only
	commandsBaselined bool
	collectorWatch    string
	collectorPending  bool

	mu         sync.RWMutex
	opts       config.Options
	flusher    QueueFlusher
	script     string
	restarts   int
	lastReason reason.Reason
	runID      string
	lastPoll   time.Time
}

// New prepares a Supervisor without starting anything. It opens the worker
// output file and reads the options file; a missing options file is not an
// error.
func New(cfg Config, opts ...Option) (*Supervisor, error) {
	if err := cfg.Layout.Validate(); err != nil {
		return nil, fmt.Errorf("invalid layout: %w", err)
	}
	s := &Supervisor{
		layout:     cfg.Layout,
		layoutPath: cfg.LayoutPath,
		logger:     slog.Default(),
		tracker:    watch.NewTracker(),
		worker:     newChild(WorkerName),
		collector:  newChild(CollectorName),
		opts:       config.DefaultOptions(),
	}
	for _, o := range opts {
		o(s)
	}
	s.events = event.NewChannel(cfg.Layout.EventFile, s.logger)

	out, err := logger.OpenRotating(cfg.Layout.WorkerLog)
	if err != nil {
		return nil, fmt.Errorf("open worker log: %w", err)
	}
	s.workerOut = out
	if cfg.Layout.Collector.Enabled {
		cout, err := logger.OpenRotating(cfg.Layout.Collector.Log + ".out")
		if err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("open collector output: %w", err)
		}
		s.collectorOut = cout
	}
	s.reloadOptions()
	return s, nil
}

// Start writes r to the handoff file and spawns the worker. A spawn failure
// is returned; every other problem is logged.
func (s *Supervisor) Start(ctx context.Context, r reason.Reason) error {
	// A config edit that lost the race against another trigger still has to
	// reach the new run.
	if d, err := s.tracker.Check(s.layout.OptionsFile); err == nil && d.Change == watch.Changed {
		s.reloadOptions()
		s.collectorPending = true
	}

	if err := reason.Write(s.layout.ReasonFile, r); err != nil {
		s.logger.Warn("failed to write restart reason", "path", s.layout.ReasonFile, "error", err)
	}

	opts := s.options()
	script := s.layout.WorkerScript(opts)
	args := append(append([]string{}, s.layout.Worker.Args...), script)
	spec := process.Spec{
		Exec:   s.layout.Worker.Exec,
		Args:   args,
		Dir:    s.layout.Root,
		Env:    s.environ(opts),
		Stdout: s.workerOut,
		Stderr: s.workerOut,
	}
	if err := s.worker.start(spec); err != nil {
		return fmt.Errorf("spawn worker: %w", err)
	}

	for _, p := range []string{script, s.layout.OptionsFile, s.layout.Worker.CoreScript} {
		if p == "" {
			continue
		}
		if err := s.tracker.Baseline(p); err != nil {
			s.logger.Warn("baseline failed", "path", p, "error", err)
		}
	}
	if !s.commandsBaselined && s.layout.Worker.CommandsGlob != "" {
		if err := s.tracker.BaselineGlob(s.layout.Worker.CommandsGlob); err != nil {
			s.logger.Warn("baseline failed", "glob", s.layout.Worker.CommandsGlob, "error", err)
		}
		s.commandsBaselined = true
	}

	runID := uuid.NewString()
	s.mu.Lock()
	first := s.runID == ""
	if !first {
		s.restarts++
	}
	s.script = script
	s.lastReason = r
	s.runID = runID
	s.mu.Unlock()

	pid := s.worker.pid()
	metrics.IncStart(WorkerName, r.MetricLabel())
	typ := history.EventStart
	if !first {
		typ = history.EventRestart
	}
	s.history.Emit(ctx, history.Event{
		Type:   typ,
		Record: history.Record{RunID: runID, Process: WorkerName, PID: pid, Reason: r.String()},
	})
	s.logger.Info("worker started", "pid", pid, "script", script, "reason", r, "run_id", runID)
	return nil
}

// Restart stops the worker when it is running (TERM, then KILL after the
// stop timeout) and starts it again with r.
func (s *Supervisor) Restart(ctx context.Context, r reason.Reason) error {
	if s.worker.getState() == Running {
		s.logger.Info("restarting worker", "reason", r)
		s.stopWorker(ctx)
	}
	return s.Start(ctx, r)
}

// Poll runs one supervision cycle and returns the reason of the restart it
// performed, or "" when the worker was left alone. The only error is a
// failed worker spawn.
func (s *Supervisor) Poll(ctx context.Context) (reason.Reason, error) {
	s.rotateLogs()

	// The collector owns the queue while it is alive.
	if !s.collector.alive() {
		if f := s.currentFlusher(); f != nil {
			f.FlushQueue(ctx)
		}
	}

	var trigger reason.Reason
	restartCollector := false

	if exited, code := s.worker.exited(); exited {
		trigger = s.exitReason(code)
		s.logger.Warn("worker exited", "code", code, "reason", trigger)
	} else if s.changed(s.currentScript()) {
		trigger = reason.FileUpdate
	}

	if pattern := s.layout.Worker.CommandsGlob; pattern != "" {
		deltas, err := s.tracker.CheckGlob(pattern)
		switch {
		case err != nil:
			s.logger.Warn("command module scan failed", "glob", pattern, "error", err)
		case len(deltas) == 0:
		case trigger == "":
			trigger = reason.CommandsUpdate
			s.tracker.Commit(deltas...)
			for _, d := range deltas {
				s.logger.Info("command module changed", "path", d.Path, "change", d.Change)
			}
		default:
			s.logger.Debug("command module change deferred", "count", len(deltas), "pending", trigger)
		}
	}

	if trigger == "" && s.changed(s.layout.OptionsFile) {
		s.logger.Info("options file changed, reloading")
		s.reloadOptions()
		trigger = reason.EnvUpdate
		restartCollector = true
	}

	if trigger == "" && s.changed(s.layout.Worker.CoreScript) {
		trigger = reason.CoreUpdate
	}

	if trigger == "" {
		p, err := s.events.Poll()
		if err != nil {
			s.logger.Warn("event poll failed", "path", s.events.Path(), "error", err)
		} else if p != nil {
			trigger = reason.Custom(p.Reason)
		}
	}

	if trigger != "" {
		if err := s.Restart(ctx, trigger); err != nil {
			return trigger, err
		}
	}

	if s.collectorPending {
		restartCollector = true
		s.collectorPending = false
	}
	s.superviseCollector(ctx, restartCollector)

	s.mu.Lock()
	s.lastPoll = time.Now()
	s.mu.Unlock()
	return trigger, nil
}

// Run starts the worker (when not already started) and the collector, then
// polls every PollInterval until ctx is done. Both children are stopped on
// return.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.worker.getState() == NoProcess {
		if err := s.Start(ctx, reason.Initial); err != nil {
			return err
		}
	}
	s.superviseCollector(ctx, false)
	if s.sampler != nil {
		s.sampler.Start(ctx, s.pids)
		defer s.sampler.Stop()
	}

	ticker := time.NewTicker(s.layout.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Shutdown(context.WithoutCancel(ctx))
			return nil
		case <-ticker.C:
			if _, err := s.Poll(ctx); err != nil {
				s.logger.Error("worker spawn failed, giving up", "error", err)
				s.Shutdown(context.WithoutCancel(ctx))
				return err
			}
		}
	}
}

// Shutdown stops the collector and the worker and closes output files.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.stopCollector(ctx)
	s.stopWorker(ctx)
	if s.collectorOut != nil {
		_ = s.collectorOut.Close()
	}
	_ = s.workerOut.Close()
}

func (s *Supervisor) stopWorker(ctx context.Context) {
	p := s.worker.current()
	if p == nil {
		return
	}
	if err := s.worker.stop(s.layout.StopTimeout); err != nil {
		s.logger.Warn("worker stop incomplete", "pid", p.PID(), "error", err)
	}
	s.recordExit(ctx, WorkerName, p, s.currentRunID())
}

func (s *Supervisor) recordExit(ctx context.Context, name string, p *process.Process, runID string) {
	exited, code := p.Exited()
	if !exited {
		return
	}
	metrics.IncExit(name, code)
	s.history.Emit(ctx, history.Event{
		Type:   history.EventStop,
		Record: history.Record{RunID: runID, Process: name, PID: p.PID(), ExitCode: code},
	})
}

func (s *Supervisor) exitReason(code int) reason.Reason {
	return reason.FromExitCode(code, s.layout.Worker.ManualExit)
}

// changed reports a modification of path since its baseline. Stat errors and
// disappearance count as no change; the baseline survives a disappearance so
// a file that comes back with a different mtime reports a change.
func (s *Supervisor) changed(path string) bool {
	if path == "" {
		return false
	}
	d, err := s.tracker.Check(path)
	if err != nil {
		s.logger.Warn("stat failed", "path", path, "error", err)
		return false
	}
	if !d.Exists {
		return false
	}
	s.tracker.Commit(d)
	return d.Change == watch.Changed
}

func (s *Supervisor) rotateLogs() {
	limit := s.layout.LogCeiling
	if rotated, err := s.workerOut.Rotate(limit); err != nil {
		s.logger.Warn("worker log rotation failed", "path", s.workerOut.Path(), "error", err)
	} else if rotated {
		s.logger.Info("worker log rotated", "path", s.workerOut.Path())
	}
	if s.collectorOut != nil {
		if _, err := s.collectorOut.Rotate(limit); err != nil {
			s.logger.Warn("collector output rotation failed", "path", s.collectorOut.Path(), "error", err)
		}
	}
	for _, p := range s.layout.ExtraLogs {
		if _, err := logger.RotatePath(p, limit); err != nil {
			s.logger.Warn("log rotation failed", "path", p, "error", err)
		}
	}
}

// reloadOptions re-reads the options file. A missing file resets to the
// defaults and invalid values keep their defaults while the rest applies.
// Only an unreadable file keeps the previous options.
func (s *Supervisor) reloadOptions() {
	o, err := config.LoadOptions(s.layout.OptionsFile)
	switch {
	case err == nil:
	case config.IsMissing(err):
		s.logger.Warn("options file missing, using defaults", "path", s.layout.OptionsFile)
	case config.IsPartial(err):
		s.logger.Warn("ignoring invalid option values", "path", s.layout.OptionsFile, "error", err)
	default:
		s.logger.Warn("failed to read options, keeping previous values", "path", s.layout.OptionsFile, "error", err)
		return
	}
	var f QueueFlusher
	if s.newFlusher != nil {
		f = s.newFlusher(o)
	}
	s.mu.Lock()
	s.opts = o
	s.flusher = f
	s.mu.Unlock()
	s.logger.Debug("options loaded", "options", o.Redacted())
}

// environ builds the child environment: the supervisor's own environment,
// the options file, and the token and reason-file location on top.
func (s *Supervisor) environ(opts config.Options) []string {
	e := env.New().With(opts.Vars)
	if opts.Token != "" {
		e.Set(config.KeyToken, opts.Token)
	}
	e.Set(EnvReasonFile, s.layout.ReasonFile)
	return e.Merge(nil)
}

func (s *Supervisor) pids() map[string]int32 {
	out := make(map[string]int32, 2)
	if s.worker.alive() {
		out[WorkerName] = int32(s.worker.pid())
	}
	if s.collector.alive() {
		out[CollectorName] = int32(s.collector.pid())
	}
	return out
}

func (s *Supervisor) options() config.Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

func (s *Supervisor) currentFlusher() QueueFlusher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flusher
}

func (s *Supervisor) currentScript() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.script
}

func (s *Supervisor) currentRunID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runID
}

// superviseCollector relaunches an exited collector and restarts it when
// forced or when its executable changed.
func (s *Supervisor) superviseCollector(ctx context.Context, force bool) {
	if !s.layout.Collector.Enabled {
		return
	}
	switch {
	case force:
		s.logger.Info("restarting collector", "cause", "options changed")
		s.stopCollector(ctx)
		s.startCollector(ctx)
	case s.collector.current() == nil || s.collector.getState() == NoProcess:
		s.startCollector(ctx)
	case s.collectorExited():
		s.logger.Warn("collector exited, relaunching")
		s.recordExit(ctx, CollectorName, s.collector.current(), "")
		s.startCollector(ctx)
	case s.changed(s.collectorWatch):
		s.logger.Info("restarting collector", "cause", "executable changed", "path", s.collectorWatch)
		s.stopCollector(ctx)
		s.startCollector(ctx)
	}
}

func (s *Supervisor) collectorExited() bool {
	exited, _ := s.collector.exited()
	return exited
}

func (s *Supervisor) startCollector(ctx context.Context) {
	spec, err := s.collectorSpec()
	if err != nil {
		s.logger.Error("cannot build collector command", "error", err)
		return
	}
	if err := s.collector.start(spec); err != nil {
		s.logger.Error("collector spawn failed", "error", err)
		return
	}
	s.collectorWatch = watchTarget(spec)
	if s.collectorWatch != "" {
		if err := s.tracker.Baseline(s.collectorWatch); err != nil {
			s.logger.Warn("baseline failed", "path", s.collectorWatch, "error", err)
		}
	}
	pid := s.collector.pid()
	metrics.IncStart(CollectorName, "")
	s.history.Emit(ctx, history.Event{
		Type:   history.EventStart,
		Record: history.Record{Process: CollectorName, PID: pid},
	})
	s.logger.Info("collector started", "pid", pid)
}

func (s *Supervisor) stopCollector(ctx context.Context) {
	p := s.collector.current()
	if p == nil {
		return
	}
	if err := s.collector.stop(s.layout.Collector.StopTimeout); err != nil {
		s.logger.Warn("collector stop incomplete", "pid", p.PID(), "error", err)
	}
	s.recordExit(ctx, CollectorName, p, "")
}

func (s *Supervisor) collectorSpec() (process.Spec, error) {
	c := s.layout.Collector
	spec := process.Spec{
		Exec:   c.Exec,
		Args:   append([]string{}, c.Args...),
		Dir:    s.layout.Root,
		Env:    s.environ(s.options()),
		Stdout: s.collectorOut,
		Stderr: s.collectorOut,
	}
	if spec.Exec == "" {
		self, err := os.Executable()
		if err != nil {
			return process.Spec{}, fmt.Errorf("locate own executable: %w", err)
		}
		spec.Exec = self
		spec.Args = []string{"collect", "--root", s.layout.Root}
		if s.layoutPath != "" {
			spec.Args = append(spec.Args, "--config", s.layoutPath)
		}
	}
	return spec, nil
}

// watchTarget picks the file whose modification restarts the collector: the
// first argument naming a regular file (a script), else the executable.
func watchTarget(spec process.Spec) string {
	for _, a := range spec.Args {
		if !filepath.IsAbs(a) && spec.Dir != "" {
			a = filepath.Join(spec.Dir, a)
		}
		if st, err := os.Stat(a); err == nil && st.Mode().IsRegular() {
			return a
		}
	}
	p, err := exec.LookPath(spec.Exec)
	if err != nil {
		if errors.Is(err, exec.ErrDot) {
			return spec.Exec
		}
		return ""
	}
	return p
}
