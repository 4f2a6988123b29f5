package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dutywatch"

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	processStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "starts_total",
			Help:      "Number of process launches by restart reason.",
		}, []string{"name", "reason"},
	)
	processExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "exits_total",
			Help:      "Number of observed process exits by exit code.",
		}, []string{"name", "code"},
	)
	processCPU = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "cpu_percent",
			Help:      "CPU usage percentage of supervised processes.",
		}, []string{"name"},
	)
	processRSS = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "rss_bytes",
			Help:      "Resident memory of supervised processes.",
		}, []string{"name"},
	)
	collectorScans = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "scans_total",
			Help:      "Number of completed log scans.",
		},
	)
	alerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alert deliveries by channel and outcome (sent, queued, dropped, lost).",
		}, []string{"channel", "outcome"},
	)
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of private messages waiting in the retry queue.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{processStarts, processExits, processCPU, processRSS, collectorScans, alerts, queueDepth}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart(name, reason string) {
	if regOK.Load() {
		processStarts.WithLabelValues(name, reason).Inc()
	}
}

func IncExit(name string, code int) {
	if regOK.Load() {
		processExits.WithLabelValues(name, strconv.Itoa(code)).Inc()
	}
}

func IncScan() {
	if regOK.Load() {
		collectorScans.Inc()
	}
}

func IncAlert(channel, outcome string) {
	if regOK.Load() {
		alerts.WithLabelValues(channel, outcome).Inc()
	}
}

func SetQueueDepth(n int) {
	if regOK.Load() {
		queueDepth.Set(float64(n))
	}
}

// SetProcessSample publishes the latest resource sample for name.
func SetProcessSample(name string, s Sample) {
	if regOK.Load() {
		processCPU.WithLabelValues(name).Set(s.CPUPercent)
		processRSS.WithLabelValues(name).Set(float64(s.RSS))
	}
}

// ClearProcessSample drops the resource gauges for a process that is gone.
func ClearProcessSample(name string) {
	if regOK.Load() {
		processCPU.DeleteLabelValues(name)
		processRSS.DeleteLabelValues(name)
	}
}
