// Package history exports supervisor lifecycle and alert events to an
// external analytics store. It is write-only: nothing in dutywatch reads the
// history back.
package history

import (
	"context"
	"log/slog"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart   EventType = "start"
	EventStop    EventType = "stop"
	EventRestart EventType = "restart"
	EventAlert   EventType = "alert"
)

// Record describes one launch of a supervised process, or one alert.
type Record struct {
	RunID    string `json:"run_id"`
	Process  string `json:"process"`
	PID      int    `json:"pid"`
	Reason   string `json:"reason"`
	ExitCode int    `json:"exit_code"`
	Detail   string `json:"detail,omitempty"`
}

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Recorder delivers events to an optional Sink with a bounded timeout and
// logs failures instead of returning them. A nil *Recorder is valid and
// discards everything.
type Recorder struct {
	sink    Sink
	timeout time.Duration
	logger  *slog.Logger
}

func NewRecorder(sink Sink, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{sink: sink, timeout: 3 * time.Second, logger: logger}
}

// Emit stamps e with the current time when unset and sends it.
func (r *Recorder) Emit(ctx context.Context, e Event) {
	if r == nil || r.sink == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.sink.Send(ctx, e); err != nil {
		r.logger.Warn("history export failed", "event", e.Type, "process", e.Record.Process, "error", err)
	}
}
