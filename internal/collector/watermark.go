package collector

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/loykin/dutywatch/internal/fileutil"
)

// ErrCorruptWatermark is returned by Load when the state file cannot be parsed.
var ErrCorruptWatermark = errors.New("corrupt collector watermark")

// Watermark is the Collector's persisted progress. Both fields are timestamp
// text in the log's fixed-width layout and compare lexically.
type Watermark struct {
	LastChecked  string `json:"last_checked,omitempty"`
	LastReported string `json:"last_reported,omitempty"`
}

// WatermarkStore persists a Watermark as JSON.
type WatermarkStore struct {
	path string
}

func NewWatermarkStore(path string) *WatermarkStore { return &WatermarkStore{path: path} }

func (s *WatermarkStore) Path() string { return s.path }

// Load returns the stored watermark. A missing file is an empty watermark;
// a corrupt one is an empty watermark together with ErrCorruptWatermark.
func (s *WatermarkStore) Load() (Watermark, error) {
	b, err := os.ReadFile(filepath.Clean(s.path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Watermark{}, nil
		}
		return Watermark{}, err
	}
	var w Watermark
	if err := json.Unmarshal(b, &w); err != nil {
		return Watermark{}, fmt.Errorf("%w: %v", ErrCorruptWatermark, err)
	}
	return w, nil
}

// Save writes w, keeping LastReported no later than LastChecked.
func (s *WatermarkStore) Save(w Watermark) error {
	if w.LastReported > w.LastChecked {
		w.LastChecked = w.LastReported
	}
	b, err := json.Marshal(w)
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(s.path, b, 0o640)
}
