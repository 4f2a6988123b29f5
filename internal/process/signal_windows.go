//go:build windows

package process

import "os"

// Windows has no SIGTERM; both steps terminate the process.
func terminateGroup(pid int) error { return killGroup(pid) }

func killGroup(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
