package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	connsAccepted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wirectl",
			Subsystem: "transport",
			Name:      "connections_accepted_total",
			Help:      "Total accepted client connections.",
		},
		[]string{"server"},
	)
	connsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "wirectl",
			Subsystem: "transport",
			Name:      "connections_active",
			Help:      "Currently registered client connections.",
		},
		[]string{"server"},
	)
	messagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wirectl",
			Subsystem: "transport",
			Name:      "messages_received_total",
			Help:      "Complete frames parsed from client streams.",
		},
		[]string{"server"},
	)
	messageBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wirectl",
			Subsystem: "transport",
			Name:      "message_bytes",
			Help:      "Parsed frame size in bytes.",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 6),
		},
		[]string{"server"},
	)
	broadcastFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wirectl",
			Subsystem: "transport",
			Name:      "broadcast_failures_total",
			Help:      "Per-connection send failures during broadcast.",
		},
		[]string{"server"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wirectl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"server", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wirectl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"server", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			connsAccepted,
			connsActive,
			messagesReceived,
			messageBytes,
			broadcastFailures,
			httpRequests,
			httpDuration,
		)
	})
}

func RecordConnAccepted(server string) {
	RegisterMetrics()
	connsAccepted.WithLabelValues(server).Inc()
	connsActive.WithLabelValues(server).Inc()
}

func RecordConnClosed(server string) {
	RegisterMetrics()
	connsActive.WithLabelValues(server).Dec()
}

func RecordMessage(server string, size int) {
	RegisterMetrics()
	messagesReceived.WithLabelValues(server).Inc()
	messageBytes.WithLabelValues(server).Observe(float64(size))
}

func RecordBroadcastFailure(server string) {
	RegisterMetrics()
	broadcastFailures.WithLabelValues(server).Inc()
}

func RecordHTTPRequest(server, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(server, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(server, method, path, statusLabel).Observe(duration.Seconds())
}
