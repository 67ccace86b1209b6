// Package observability holds the Prometheus collectors and OpenTelemetry spans
// recorded around HyperCore API exchanges and task polls.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the collector registry used by hypercore. It is separate from the
// Prometheus default registry so embedding programs keep control of what they expose.
var Registry = prometheus.NewRegistry()

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hypercore",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Total number of HyperCore API requests by method and status code",
		},
		[]string{"method", "code"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hypercore",
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Duration of HyperCore API requests in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"method"},
	)

	taskPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hypercore",
			Subsystem: "task",
			Name:      "polls_total",
			Help:      "Total number of task status polls by observed state",
		},
		[]string{"state"},
	)

	taskWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hypercore",
			Subsystem: "task",
			Name:      "wait_duration_seconds",
			Help:      "Time spent waiting for tasks to reach a terminal state",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(requestsTotal, requestDuration, taskPollsTotal, taskWaitDuration)
}

// RecordRequest records one completed exchange. code is 0 for connectivity failures.
func RecordRequest(method string, code int, elapsed time.Duration) {
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	requestsTotal.WithLabelValues(method, label).Inc()
	requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// RecordTaskPoll records one task status observation.
func RecordTaskPoll(state string) {
	taskPollsTotal.WithLabelValues(state).Inc()
}

// RecordTaskWait records the outcome of a full wait: complete, failed or timeout.
func RecordTaskWait(result string, elapsed time.Duration) {
	taskWaitDuration.WithLabelValues(result).Observe(elapsed.Seconds())
}

// WriteTextfile writes the registry in the node_exporter textfile format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
