package supervisor

import (
	"errors"
	"sync"
	"time"

	"github.com/loykin/dutywatch/internal/process"
)

// child owns at most one live process.Process at a time and tracks the
// state machine around it. Spawning replaces the previous run.
type child struct {
	name string

	mu       sync.RWMutex
	state    State
	proc     *process.Process
	starts   int
	lastSpec process.Spec
}

func newChild(name string) *child { return &child{name: name} }

func (c *child) start(spec process.Spec) error {
	spec.Name = c.name
	p := process.New(spec)
	if err := p.Start(); err != nil {
		c.mu.Lock()
		c.state = NoProcess
		c.mu.Unlock()
		return err
	}
	c.mu.Lock()
	c.proc = p
	c.state = Running
	c.starts++
	c.lastSpec = spec
	c.mu.Unlock()
	return nil
}

// stop terminates the current run, escalating to a kill after wait.
func (c *child) stop(wait time.Duration) error {
	c.mu.Lock()
	p := c.proc
	if p == nil {
		c.state = NoProcess
		c.mu.Unlock()
		return nil
	}
	c.state = Terminating
	c.mu.Unlock()

	err := p.Stop(wait)
	if errors.Is(err, process.ErrNotRunning) {
		err = nil
	}
	c.mu.Lock()
	c.state = NoProcess
	c.mu.Unlock()
	return err
}

// exited reports whether the current run has ended and with which code.
func (c *child) exited() (bool, int) {
	c.mu.RLock()
	p := c.proc
	c.mu.RUnlock()
	if p == nil {
		return false, 0
	}
	return p.Exited()
}

func (c *child) alive() bool {
	c.mu.RLock()
	p := c.proc
	st := c.state
	c.mu.RUnlock()
	return p != nil && st == Running && p.Running()
}

func (c *child) pid() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.proc == nil {
		return 0
	}
	return c.proc.PID()
}

func (c *child) current() *process.Process {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.proc
}

func (c *child) getState() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *child) snapshot() (State, process.Status, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.proc == nil {
		return c.state, process.Status{Name: c.name}, c.starts
	}
	return c.state, c.proc.Snapshot(), c.starts
}
