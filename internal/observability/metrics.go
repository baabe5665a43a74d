package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridgectl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bridgectl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)
	packetsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridgectl",
			Subsystem: "bridge",
			Name:      "packets_sent_total",
			Help:      "Packets dispatched to the transport.",
		},
		[]string{"endpoint", "dst", "kind"},
	)
	packetsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridgectl",
			Subsystem: "bridge",
			Name:      "packets_received_total",
			Help:      "Packets accepted from the transport.",
		},
		[]string{"endpoint", "src", "kind", "result"},
	)
	callbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridgectl",
			Subsystem: "bridge",
			Name:      "callbacks_total",
			Help:      "Receiver hook invocations by outcome.",
		},
		[]string{"endpoint", "outcome"},
	)
	callbackGas = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bridgectl",
			Subsystem: "bridge",
			Name:      "callback_gas_used",
			Help:      "Gas consumed by receiver hooks.",
			Buckets:   prometheus.ExponentialBuckets(1_000, 4, 8),
		},
		[]string{"endpoint", "outcome"},
	)
	retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridgectl",
			Subsystem: "bridge",
			Name:      "retries_total",
			Help:      "Retry attempts for failed callbacks.",
		},
		[]string{"endpoint", "success"},
	)
	events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridgectl",
			Subsystem: "bridge",
			Name:      "events_total",
			Help:      "Bridge events emitted.",
		},
		[]string{"endpoint", "kind"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			packetsSent, packetsReceived,
			callbacks, callbackGas,
			retries, events,
		)
	})
}

func RecordHTTPRequest(service, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(service, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(service, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordPacketSent(endpoint, dst uint16, kind string) {
	RegisterMetrics()
	packetsSent.WithLabelValues(endpointLabel(endpoint), endpointLabel(dst), kind).Inc()
}

func RecordPacketReceived(endpoint, src uint16, kind, result string) {
	RegisterMetrics()
	packetsReceived.WithLabelValues(endpointLabel(endpoint), endpointLabel(src), kind, result).Inc()
}

func RecordCallback(endpoint uint16, outcome string, gasUsed uint64) {
	RegisterMetrics()
	label := endpointLabel(endpoint)
	callbacks.WithLabelValues(label, outcome).Inc()
	callbackGas.WithLabelValues(label, outcome).Observe(float64(gasUsed))
}

func RecordRetry(endpoint uint16, success bool) {
	RegisterMetrics()
	retries.WithLabelValues(endpointLabel(endpoint), strconv.FormatBool(success)).Inc()
}

func RecordEvent(endpoint uint16, kind string) {
	RegisterMetrics()
	events.WithLabelValues(endpointLabel(endpoint), kind).Inc()
}

func endpointLabel(id uint16) string {
	return strconv.FormatUint(uint64(id), 10)
}
