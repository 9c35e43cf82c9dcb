package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

var (
	registerOnce sync.Once

	taskEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgetask",
			Subsystem: "task",
			Name:      "events_total",
			Help:      "Telemetry events emitted by the task.",
		},
		[]string{"event", "type"},
	)
	taskRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgetask",
			Subsystem: "task",
			Name:      "runs_total",
			Help:      "Runner executions by work kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	heartbeatSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgetask",
			Subsystem: "heartbeat",
			Name:      "sends_total",
			Help:      "Heartbeat messages by send result.",
		},
		[]string{"result"},
	)
	handshakeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edgetask",
			Subsystem: "handshake",
			Name:      "duration_seconds",
			Help:      "Time to hand one channel end to the parent.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"direction"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgetask",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Requests served by the metrics endpoint.",
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(taskEvents, taskRuns, heartbeatSends, handshakeDuration, httpRequests)
	})
}

func RecordTaskEvent(event, eventType string) {
	RegisterMetrics()
	taskEvents.WithLabelValues(event, eventType).Inc()
}

func RecordTaskRun(kind, outcome string) {
	RegisterMetrics()
	taskRuns.WithLabelValues(kind, outcome).Inc()
}

// RecordHeartbeat matches the heartbeat.WithObserver callback.
func RecordHeartbeat(result string) {
	RegisterMetrics()
	heartbeatSends.WithLabelValues(result).Inc()
}

// RecordHandshake matches the handshake.Options.Observe callback.
func RecordHandshake(direction string, d time.Duration) {
	RegisterMetrics()
	handshakeDuration.WithLabelValues(direction).Observe(d.Seconds())
}
