package process

import (
	"errors"
	"io"
	"os/exec"
)

// Spec describes one supervised child.
type Spec struct {
	Name string   `json:"name"`
	Exec string   `json:"exec"` // interpreter or binary
	Args []string `json:"args"`
	Dir  string   `json:"dir"`
	Env  []string `json:"env"` // full environment; nil inherits the parent's
	// Stdout and Stderr receive the child's output; nil discards it.
	Stdout io.Writer `json:"-"`
	Stderr io.Writer `json:"-"`
}

func (s Spec) Validate() error {
	if s.Name == "" {
		return errors.New("process name is required")
	}
	if s.Exec == "" {
		return errors.New("process exec is required")
	}
	return nil
}

// BuildCommand constructs the *exec.Cmd for s without starting it.
func (s Spec) BuildCommand() *exec.Cmd {
	// #nosec G204 -- exec and args come from the operator's configuration
	cmd := exec.Command(s.Exec, s.Args...)
	cmd.Dir = s.Dir
	if s.Env != nil {
		cmd.Env = s.Env
	}
	cmd.Stdout = s.Stdout
	cmd.Stderr = s.Stderr
	configureSysProcAttr(cmd)
	return cmd
}
