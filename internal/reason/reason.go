// Package reason defines the restart reason handed from the supervisor to the
// worker through a single-line text file.
package reason

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/loykin/dutywatch/internal/fileutil"
)

// Reason tags why a process was (re)started. Any value outside the
// predefined set is a custom reason forwarded verbatim from an event.
type Reason string

const (
	Initial        Reason = "initial"
	Manual         Reason = "manual"
	Crash          Reason = "crash"
	FileUpdate     Reason = "file_update"
	EnvUpdate      Reason = "env_update"
	CommandsUpdate Reason = "commands_update"
	CoreUpdate     Reason = "core_update"
)

// ManualExitCode is the default worker exit code that requests a manual
// restart.
const ManualExitCode = 41

var known = map[Reason]bool{
	Initial:        true,
	Manual:         true,
	Crash:          true,
	FileUpdate:     true,
	EnvUpdate:      true,
	CommandsUpdate: true,
	CoreUpdate:     true,
}

// Custom wraps free-form text (e.g. from an event payload) as a Reason,
// verbatim.
func Custom(text string) Reason { return Reason(text) }

// IsCustom reports whether r is outside the predefined tag set.
func (r Reason) IsCustom() bool { return !known[r] }

func (r Reason) String() string { return string(r) }

// FromExitCode maps a worker exit code to the restart reason. manual is the
// configured manual-exit code; zero selects ManualExitCode.
func FromExitCode(code, manual int) Reason {
	if manual == 0 {
		manual = ManualExitCode
	}
	if code == manual {
		return Manual
	}
	return Crash
}

// Write stores r in the handoff file, replacing previous content atomically.
func Write(path string, r Reason) error {
	return fileutil.WriteAtomic(path, []byte(r.String()), 0o600)
}

// MetricLabel collapses custom reasons into "custom" so free-form event text
// never becomes a label value.
func (r Reason) MetricLabel() string {
	if r.IsCustom() {
		return "custom"
	}
	return string(r)
}

// Read returns the reason stored in path without removing it.
// A missing file yields "" and no error.
func Read(path string) (Reason, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return Reason(strings.TrimRight(string(b), "\r\n")), nil
}

// Consume reads and deletes the handoff file. It is meant to be called once
// by the worker when it becomes ready. Missing, unreadable or empty files
// yield Initial.
func Consume(path string) Reason {
	r, err := Read(path)
	if err != nil || strings.TrimSpace(string(r)) == "" {
		if err == nil {
			_ = os.Remove(path)
		}
		return Initial
	}
	_ = os.Remove(path)
	return r
}
