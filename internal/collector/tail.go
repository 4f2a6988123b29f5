package collector

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const maxLineBytes = 1 << 20

// tail returns at most n trailing lines of the file at path. A missing file
// yields no lines and no error.
func tail(path string, n int) ([]string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	if n <= 0 {
		n = DefaultTailLines
	}
	ring := make([]string, n)
	count := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		ring[count%n] = sc.Text()
		count++
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if count <= n {
		return ring[:count], nil
	}
	start := count % n
	return append(append([]string{}, ring[start:]...), ring[:start]...), nil
}

// splitTimestamp separates a leading fixed-width timestamp in layout from the
// message body. ok is false for lines without one (continuations).
func splitTimestamp(line, layout string) (ts, body string, ok bool) {
	w := len(layout)
	if len(line) < w {
		return "", strings.TrimSpace(line), false
	}
	if _, err := time.Parse(layout, line[:w]); err != nil {
		return "", strings.TrimSpace(line), false
	}
	return line[:w], strings.TrimLeft(line[w:], " \t|-,:"), true
}
