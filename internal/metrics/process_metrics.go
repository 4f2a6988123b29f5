package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Sample is a point-in-time resource reading for one process.
type Sample struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	RSS        uint64    `json:"rss_bytes"`
	NumThreads int32     `json:"num_threads"`
	NumFDs     int32     `json:"num_fds,omitempty"` // Unix only
	Timestamp  time.Time `json:"timestamp"`
}

// ReadProcess samples pid through gopsutil.
func ReadProcess(pid int32) (Sample, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return Sample{}, fmt.Errorf("failed to create process handle: %w", err)
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return Sample{}, fmt.Errorf("failed to get memory info: %w", err)
	}
	s := Sample{PID: pid, RSS: mem.RSS, Timestamp: time.Now()}
	if cpu, err := proc.CPUPercent(); err == nil {
		s.CPUPercent = cpu
	}
	if n, err := proc.NumThreads(); err == nil {
		s.NumThreads = n
	}
	if runtime.GOOS != "windows" {
		if n, err := proc.NumFDs(); err == nil {
			s.NumFDs = n
		}
	}
	return s, nil
}

// Sampler periodically samples a set of named processes, publishes the
// gauges and keeps a bounded history per name.
type Sampler struct {
	interval   time.Duration
	maxHistory int
	logger     *slog.Logger

	mu      sync.RWMutex
	history map[string]*ring

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type SamplerConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	MaxHistory int           `mapstructure:"max_history"`
}

func NewSampler(cfg SamplerConfig, logger *slog.Logger) *Sampler {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 60
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{
		interval:   cfg.Interval,
		maxHistory: cfg.MaxHistory,
		logger:     logger,
		history:    make(map[string]*ring),
		stopCh:     make(chan struct{}),
	}
}

// Start samples the processes returned by source every interval until ctx is
// done or Stop is called. source maps a process name to its pid; names that
// disappear from the map are forgotten.
func (s *Sampler) Start(ctx context.Context, source func() map[string]int32) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.Collect(source())
			}
		}
	}()
}

func (s *Sampler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Collect takes one sample of every live process in procs.
func (s *Sampler) Collect(procs map[string]int32) {
	for name, pid := range procs {
		if pid <= 0 {
			continue
		}
		sample, err := ReadProcess(pid)
		if err != nil {
			s.logger.Debug("failed to sample process", "name", name, "pid", pid, "error", err)
			continue
		}
		SetProcessSample(name, sample)
		s.add(name, sample)
	}

	s.mu.Lock()
	for name := range s.history {
		if pid, ok := procs[name]; !ok || pid <= 0 {
			delete(s.history, name)
			ClearProcessSample(name)
		}
	}
	s.mu.Unlock()
}

func (s *Sampler) add(name string, sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.history[name]
	if !ok {
		r = newRing(s.maxHistory)
		s.history[name] = r
	}
	r.push(sample)
}

// Latest returns the most recent sample for name.
func (s *Sampler) Latest(name string) (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.history[name]
	if !ok {
		return Sample{}, false
	}
	return r.last()
}

// History returns the retained samples for name, oldest first.
func (s *Sampler) History(name string) []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.history[name]
	if !ok {
		return nil
	}
	return r.items()
}

// ring is a fixed-size circular buffer of samples.
type ring struct {
	buf      []Sample
	startIdx int
	count    int
}

func newRing(size int) *ring { return &ring{buf: make([]Sample, size)} }

func (r *ring) push(s Sample) {
	if r.count < len(r.buf) {
		r.buf[r.count] = s
		r.count++
		return
	}
	r.buf[r.startIdx] = s
	r.startIdx = (r.startIdx + 1) % len(r.buf)
}

func (r *ring) last() (Sample, bool) {
	if r.count == 0 {
		return Sample{}, false
	}
	if r.count < len(r.buf) {
		return r.buf[r.count-1], true
	}
	return r.buf[(r.startIdx-1+len(r.buf))%len(r.buf)], true
}

func (r *ring) items() []Sample {
	out := make([]Sample, r.count)
	if r.count < len(r.buf) {
		copy(out, r.buf[:r.count])
		return out
	}
	n := copy(out, r.buf[r.startIdx:])
	copy(out[n:], r.buf[:r.startIdx])
	return out
}
