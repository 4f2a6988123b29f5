package collector

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Summary is the outcome of one scan.
type Summary struct {
	Critical int    `json:"critical"`
	Warning  int    `json:"warning"`
	LastTime string `json:"last_time,omitempty"` // timestamp of the newest non-ignored line
	LastLine string `json:"last_line,omitempty"`
	Scanned  int    `json:"scanned"`
}

func (s Summary) Total() int { return s.Critical + s.Warning }

// privateReport is the terse message for the on-call recipient.
func privateReport(s Summary, logPath string, interval time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "❗ New errors in the last %d minutes\n", int(interval/time.Minute))
	fmt.Fprintf(&b, "File: %s\n", filepath.Base(logPath))
	fmt.Fprintf(&b, "Critical: %d | Warning: %d\n", s.Critical, s.Warning)
	if s.LastLine != "" {
		fmt.Fprintf(&b, "Last event: %s\n", s.LastLine)
	}
	fmt.Fprintf(&b, "Check: %s", logPath)
	return b.String()
}

// broadcastReport is the full summary for the shared channel.
func broadcastReport(s Summary, logPath string, now time.Time) string {
	var b strings.Builder
	b.WriteString("📢 System monitor report\n")
	fmt.Fprintf(&b, "File: %s\n", filepath.Base(logPath))
	fmt.Fprintf(&b, "New errors: %d (%d critical, %d warning)\n", s.Total(), s.Critical, s.Warning)
	if s.LastLine != "" {
		fmt.Fprintf(&b, "Last error: %s\n", s.LastLine)
	}
	fmt.Fprintf(&b, "(Report time: %s)", now.Format("2006-01-02 15:04"))
	return b.String()
}

func crashNotice(reason string) string {
	return "🔁 Worker restarted after a failure.\nReason: " + reason
}
