package process

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

// ErrLocked is returned by AcquireLock when another instance holds the lock.
var ErrLocked = errors.New("lock held by another instance")

// Lock is an exclusive advisory lock with a companion pid file.
type Lock struct {
	fl      *flock.Flock
	pidFile string
}

// AcquireLock takes the lock at path without blocking and records the
// caller's pid in pidFile when set.
func AcquireLock(path, pidFile string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrLocked)
	}
	l := &Lock{fl: fl, pidFile: pidFile}
	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
			_ = fl.Unlock()
			return nil, fmt.Errorf("writing pid file: %w", err)
		}
	}
	return l, nil
}

func (l *Lock) Release() error {
	if l.pidFile != "" {
		_ = os.Remove(l.pidFile)
	}
	return l.fl.Unlock()
}

// ReadPIDFile returns the pid recorded by AcquireLock.
func ReadPIDFile(path string) (int, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file %s: %w", path, err)
	}
	return pid, nil
}
