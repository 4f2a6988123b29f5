package process

import (
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/loykin/dutywatch/internal/metrics"
)

// ErrNotRunning is returned by Stop when the process was never started.
var ErrNotRunning = errors.New("process not running")

// ErrAlreadyStarted is returned by Start on a Process that was started before.
var ErrAlreadyStarted = errors.New("process already started")

// killGrace bounds the wait for the reaper after SIGKILL.
const killGrace = 2 * time.Second

// Process owns exactly one launch of a Spec. Its exit is reaped by an
// internal waiter goroutine, so Exited never blocks.
type Process struct {
	spec Spec

	mu       sync.Mutex
	cmd      *exec.Cmd
	status   Status
	waitDone chan struct{} // closed when cmd.Wait returns
}

func New(spec Spec) *Process { return &Process{spec: spec} }

func (p *Process) Name() string { return p.spec.Name }

// Start launches the child in its own process group.
func (p *Process) Start() error {
	if err := p.spec.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		return ErrAlreadyStarted
	}
	cmd := p.spec.BuildCommand()
	// Output pipes may be held open by grandchildren.
	cmd.WaitDelay = killGrace
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.spec.Name, err)
	}
	p.cmd = cmd
	p.waitDone = make(chan struct{})
	p.status = Status{
		Name:      p.spec.Name,
		Running:   true,
		PID:       cmd.Process.Pid,
		StartedAt: time.Now(),
	}
	go p.reap(cmd, p.waitDone)
	return nil
}

func (p *Process) reap(cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()
	code := 0
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			code = ee.ExitCode() // -1 when killed by a signal
		} else {
			code = -1
		}
	}
	p.mu.Lock()
	p.status.Running = false
	p.status.Exited = true
	p.status.ExitCode = code
	p.status.StoppedAt = time.Now()
	p.mu.Unlock()
	close(done)
}

// Exited reports whether the child has terminated and, if so, its exit code.
// A process that was never started reports false.
func (p *Process) Exited() (bool, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status.Exited, p.status.ExitCode
}

func (p *Process) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status.Running
}

func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status.PID
}

// Done is closed once the child has been reaped. It is nil before Start.
func (p *Process) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitDone
}

func (p *Process) Snapshot() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Stop asks the process group to terminate, waits up to wait, then kills the
// group. It returns once the child is reaped or the kill grace has passed.
func (p *Process) Stop(wait time.Duration) error {
	p.mu.Lock()
	cmd, done := p.cmd, p.waitDone
	p.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return ErrNotRunning
	}
	select {
	case <-done:
		return nil
	default:
	}
	pid := cmd.Process.Pid
	_ = terminateGroup(pid)
	select {
	case <-done:
		return nil
	case <-time.After(wait):
	}
	_ = killGroup(pid)
	select {
	case <-done:
		return nil
	case <-time.After(killGrace):
		return fmt.Errorf("stop %s: pid %d not reaped after kill", p.spec.Name, pid)
	}
}

// Sample reads the child's CPU and memory usage.
func (p *Process) Sample() (metrics.Sample, error) {
	pid := p.PID()
	if pid <= 0 || !p.Running() {
		return metrics.Sample{}, ErrNotRunning
	}
	return metrics.ReadProcess(int32(pid))
}
