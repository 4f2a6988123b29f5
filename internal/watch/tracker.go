// Package watch tracks modification times of a set of paths and reports how
// they changed between polls.
//
// Change detection is strict mtime equality: two edits inside one filesystem
// clock tick are reported once, and a touch without content change is
// reported as Changed.
package watch

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/loykin/dutywatch/internal/fileutil"
)

// Change is the outcome of comparing a path against its stored mtime.
type Change int

const (
	Unchanged Change = iota
	Changed
	Appeared
	Disappeared
)

func (c Change) String() string {
	switch c {
	case Unchanged:
		return "unchanged"
	case Changed:
		return "changed"
	case Appeared:
		return "appeared"
	case Disappeared:
		return "disappeared"
	default:
		return "unknown"
	}
}

// Delta describes a single path observation. It is not applied to the
// Tracker until passed to Commit.
type Delta struct {
	Path    string
	Change  Change
	ModTime time.Time
	Exists  bool
}

// Tracker is the last-known mtime map. It is not safe for concurrent use; the
// supervisor loop owns it.
type Tracker struct {
	seen map[string]time.Time
}

func NewTracker() *Tracker { return &Tracker{seen: make(map[string]time.Time)} }

// Known reports whether path has a stored mtime.
func (t *Tracker) Known(path string) bool {
	_, ok := t.seen[path]
	return ok
}

// Check compares path with its stored mtime without committing. A path that
// has never been observed reports Unchanged; committing that delta stores the
// baseline.
func (t *Tracker) Check(path string) (Delta, error) {
	mt, exists, err := fileutil.ModTime(path)
	if err != nil {
		return Delta{Path: path}, fmt.Errorf("stat %s: %w", path, err)
	}
	d := Delta{Path: path, ModTime: mt, Exists: exists}
	prev, known := t.seen[path]
	switch {
	case !exists && known:
		d.Change = Disappeared
	case !exists:
		d.Change = Unchanged
	case !known:
		d.Change = Unchanged
	case !prev.Equal(mt):
		d.Change = Changed
	default:
		d.Change = Unchanged
	}
	return d, nil
}

// Observe is Check followed by Commit.
func (t *Tracker) Observe(path string) (Change, error) {
	d, err := t.Check(path)
	if err != nil {
		return Unchanged, err
	}
	t.Commit(d)
	return d.Change, nil
}

// Baseline stores the current mtime of path, or forgets it when missing.
func (t *Tracker) Baseline(path string) error {
	mt, exists, err := fileutil.ModTime(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if !exists {
		delete(t.seen, path)
		return nil
	}
	t.seen[path] = mt
	return nil
}

// BaselineGlob stores the current mtime of every path matching pattern.
func (t *Tracker) BaselineGlob(pattern string) error {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("glob %q: %w", pattern, err)
	}
	for _, p := range matches {
		if err := t.Baseline(p); err != nil {
			return err
		}
	}
	return nil
}

// CheckGlob returns the non-Unchanged deltas of the path set matched by
// pattern: modified matches are Changed, unknown matches Appeared, and known
// paths under the pattern that no longer exist Disappeared. Nothing is
// committed.
func (t *Tracker) CheckGlob(pattern string) ([]Delta, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	var out []Delta
	current := make(map[string]bool, len(matches))
	for _, p := range matches {
		current[p] = true
		d, err := t.Check(p)
		if err != nil {
			return nil, err
		}
		if !t.Known(p) && d.Exists {
			d.Change = Appeared
		}
		if d.Change != Unchanged {
			out = append(out, d)
		}
	}
	for p := range t.seen {
		if current[p] {
			continue
		}
		if ok, _ := filepath.Match(pattern, p); !ok {
			continue
		}
		d, err := t.Check(p)
		if err != nil {
			return nil, err
		}
		if d.Change != Unchanged {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Commit applies deltas: Disappeared paths are removed, all others store
// their observed mtime.
func (t *Tracker) Commit(deltas ...Delta) {
	for _, d := range deltas {
		if d.Change == Disappeared || !d.Exists {
			delete(t.seen, d.Path)
			continue
		}
		t.seen[d.Path] = d.ModTime
	}
}
