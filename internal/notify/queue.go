package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/loykin/dutywatch/internal/fileutil"
)

// ErrCorruptQueue is returned by Load when the queue file cannot be parsed.
var ErrCorruptQueue = errors.New("corrupt message queue")

// Queue is the durable, ordered list of pending private messages stored as a
// JSON array of strings.
type Queue struct {
	path string
}

func NewQueue(path string) *Queue { return &Queue{path: path} }

func (q *Queue) Path() string { return q.path }

// Load returns the queued messages in insertion order. A missing file is an
// empty queue.
func (q *Queue) Load() ([]string, error) {
	b, err := os.ReadFile(filepath.Clean(q.path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var msgs []string
	if err := json.Unmarshal(b, &msgs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptQueue, err)
	}
	return msgs, nil
}

// Append adds text to the end of the queue. A corrupt queue file is replaced.
func (q *Queue) Append(text string) error {
	msgs, err := q.Load()
	if err != nil && !errors.Is(err, ErrCorruptQueue) {
		return err
	}
	msgs = append(msgs, text)
	b, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(q.path, b, 0o600)
}

// Len returns the number of queued messages; corrupt or unreadable files
// count as empty.
func (q *Queue) Len() int {
	msgs, _ := q.Load()
	return len(msgs)
}

// Clear removes the queue file.
func (q *Queue) Clear() error {
	if err := os.Remove(q.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
