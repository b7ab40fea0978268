package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "runnerd"

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	jobsSpawned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "spawned_total",
			Help:      "Number of jobs successfully started.",
		}, []string{"kind"},
	)
	jobsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "completed_total",
			Help:      "Number of jobs that exited, by outcome.",
		}, []string{"kind", "result"},
	)
	spawnErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "spawn_errors_total",
			Help:      "Number of spawn attempts the OS refused.",
		}, []string{"kind"},
	)
	orphans = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "orphaned_total",
			Help:      "Number of persisted jobs found dead after a restart.",
		},
	)
	terminations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "signals_total",
			Help:      "Termination signals sent to job process groups.",
		}, []string{"signal"},
	)
	activeJobs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "active",
			Help:      "Currently tracked jobs.",
		}, []string{"kind"},
	)
	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "duration_seconds",
			Help:      "Wall-clock run time of completed jobs.",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600, 7200},
		}, []string{"kind"},
	)
	jobCPU = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "cpu_percent",
			Help:      "Last sampled CPU usage of a tracked job.",
		}, []string{"job", "kind"},
	)
	jobMemory = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "memory_mb",
			Help:      "Last sampled resident memory of a tracked job.",
		}, []string{"job", "kind"},
	)
	droppedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Events not delivered to a slow subscriber.",
		}, []string{"type"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{jobsSpawned, jobsCompleted, spawnErrors, orphans, terminations, activeJobs, jobDuration, jobCPU, jobMemory, droppedEvents}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// already registered with this registerer: keep the existing one
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

func IncSpawned(kind string) {
	if regOK.Load() {
		jobsSpawned.WithLabelValues(kind).Inc()
	}
}

func IncCompleted(kind string, success bool) {
	if regOK.Load() {
		result := "failure"
		if success {
			result = "success"
		}
		jobsCompleted.WithLabelValues(kind, result).Inc()
	}
}

func IncSpawnError(kind string) {
	if regOK.Load() {
		spawnErrors.WithLabelValues(kind).Inc()
	}
}

func AddOrphans(n int) {
	if regOK.Load() && n > 0 {
		orphans.Add(float64(n))
	}
}

func IncSignal(signal string) {
	if regOK.Load() {
		terminations.WithLabelValues(signal).Inc()
	}
}

func SetActive(kind string, n int) {
	if regOK.Load() {
		activeJobs.WithLabelValues(kind).Set(float64(n))
	}
}

func ObserveDuration(kind string, seconds float64) {
	if regOK.Load() {
		jobDuration.WithLabelValues(kind).Observe(seconds)
	}
}

func SetJobUsage(job, kind string, cpuPercent, memoryMB float64) {
	if regOK.Load() {
		jobCPU.WithLabelValues(job, kind).Set(cpuPercent)
		jobMemory.WithLabelValues(job, kind).Set(memoryMB)
	}
}

// ForgetJob drops per-job series once the job is gone.
func ForgetJob(job, kind string) {
	if regOK.Load() {
		jobCPU.DeleteLabelValues(job, kind)
		jobMemory.DeleteLabelValues(job, kind)
	}
}

func IncDroppedEvent(eventType string) {
	if regOK.Load() {
		droppedEvents.WithLabelValues(eventType).Inc()
	}
}
