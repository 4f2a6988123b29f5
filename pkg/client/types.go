package client

import "time"

// ProcessStatus represents the status of a single supervised process.
type ProcessStatus struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	ExitCode  int       `json:"exit_code,omitempty"`
	Exited    bool      `json:"exited,omitempty"`
}

// Sample is the latest resource reading of the worker.
type Sample struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	RSS        uint64    `json:"rss_bytes"`
	NumThreads int32     `json:"num_threads"`
	Timestamp  time.Time `json:"timestamp"`
}

// Status mirrors the supervisor snapshot served at {base}/status.
type Status struct {
	State      string        `json:"state"`
	Worker     ProcessStatus `json:"worker"`
	Script     string        `json:"script"`
	Restarts   int           `json:"restarts"`
	LastReason string        `json:"last_reason"`
	RunID      string        `json:"run_id"`
	Sample     *Sample       `json:"sample,omitempty"`

	CollectorEnabled bool           `json:"collector_enabled"`
	CollectorState   string         `json:"collector_state,omitempty"`
	Collector        *ProcessStatus `json:"collector,omitempty"`
	CollectorStarts  int            `json:"collector_starts,omitempty"`

	LastPoll time.Time `json:"last_poll,omitempty"`
}

// EventRequest asks the supervisor to restart the worker.
type EventRequest struct {
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
}

// Queue lists private messages waiting for delivery.
type Queue struct {
	Pending  int      `json:"pending"`
	Messages []string `json:"messages"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
