package logger

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// RotatingFile is an append-only writer that keeps exactly one previous
// generation: when the file grows past a ceiling it is renamed to
// "<path>.old", replacing any earlier one, and a fresh file is opened.
// The worker's output is piped through it so the log collector always reads
// the current generation at a stable path.
type RotatingFile struct {
	path string
	mu   sync.Mutex
	f    *os.File
}

// OpenRotating opens path for appending, creating parent directories.
func OpenRotating(path string) (*RotatingFile, error) {
	r := &RotatingFile{path: path}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RotatingFile) Path() string { return r.path }

func (r *RotatingFile) open() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o750); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	r.f = f
	return nil
}

func (r *RotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		if err := r.open(); err != nil {
			return 0, err
		}
	}
	return r.f.Write(p)
}

// Rotate moves the file to "<path>.old" when it exceeds limit bytes and
// reopens an empty file. It reports whether a rotation happened.
func (r *RotatingFile) Rotate(limit int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return rotate(r.path, limit, func() error {
		if r.f == nil {
			return nil
		}
		err := r.f.Close()
		r.f = nil
		return err
	}, r.open)
}

func (r *RotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}

// RotatePath applies the same single-generation rotation to a file owned by
// another writer.
func RotatePath(path string, limit int64) (bool, error) {
	return rotate(path, limit, nil, nil)
}

func rotate(path string, limit int64, closeFn, reopen func() error) (bool, error) {
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if st.Size() <= limit {
		return false, nil
	}
	if closeFn != nil {
		if err := closeFn(); err != nil {
			return false, err
		}
	}
	renameErr := os.Rename(path, path+".old")
	if reopen != nil {
		if err := reopen(); err != nil {
			return false, errors.Join(renameErr, err)
		}
	}
	if renameErr != nil {
		return false, fmt.Errorf("rotate %s: %w", path, renameErr)
	}
	return true, nil
}
