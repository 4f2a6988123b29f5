package supervisor

import (
	"time"

	"github.com/loykin/dutywatch/internal/metrics"
	"github.com/loykin/dutywatch/internal/process"
)

// Status is a point-in-time view of the supervisor for the HTTP API.
type Status struct {
	State      string          `json:"state"`
	Worker     process.Status  `json:"worker"`
	Script     string          `json:"script"`
	Restarts   int             `json:"restarts"`
	LastReason string          `json:"last_reason"`
	RunID      string          `json:"run_id"`
	Sample     *metrics.Sample `json:"sample,omitempty"`

	CollectorEnabled bool            `json:"collector_enabled"`
	CollectorState   string          `json:"collector_state,omitempty"`
	Collector        *process.Status `json:"collector,omitempty"`
	CollectorStarts  int             `json:"collector_starts,omitempty"`

	LastPoll time.Time `json:"last_poll,omitempty"`
}

// Status is safe to call from any goroutine.
func (s *Supervisor) Status() Status {
	state, ws, _ := s.worker.snapshot()
	s.mu.RLock()
	st := Status{
		State:      state.String(),
		Worker:     ws,
		Script:     s.script,
		Restarts:   s.restarts,
		LastReason: s.lastReason.String(),
		RunID:      s.runID,
		LastPoll:   s.lastPoll,
	}
	s.mu.RUnlock()

	if s.sampler != nil {
		if sm, ok := s.sampler.Latest(WorkerName); ok {
			st.Sample = &sm
		}
	}
	if s.layout.Collector.Enabled {
		cstate, cs, starts := s.collector.snapshot()
		st.CollectorEnabled = true
		st.CollectorState = cstate.String()
		st.Collector = &cs
		st.CollectorStarts = starts
	}
	return st
}
