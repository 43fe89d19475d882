package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/smgpctl/internal/protocol"
	"github.com/danmuck/smgpctl/internal/protocol/session"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "smgpctl"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	sessionConnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "connects_total",
			Help:      "Gateway connect attempts by outcome.",
		},
		[]string{"client", "result"},
	)
	sessionFramesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "frames_received_total",
			Help:      "Decoded packets received from the gateway.",
		},
		[]string{"client", "type"},
	)
	sessionFramesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "frames_sent_total",
			Help:      "Packets written to the gateway.",
		},
		[]string{"client", "type"},
	)
	sessionSendDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "send_dropped_total",
			Help:      "Packets dropped after the send attempt cap.",
		},
		[]string{"client"},
	)
	sessionLinkDead = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "link_dead_total",
			Help:      "Links declared dead by the heartbeat watchdog.",
		},
		[]string{"client"},
	)
	sessionHandlerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "handler_failures_total",
			Help:      "Registered handlers that returned an error or panicked.",
		},
		[]string{"client", "category"},
	)
	sessionConnected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "connected",
			Help:      "1 while the gateway session is authenticated.",
		},
		[]string{"client"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			sessionConnects,
			sessionFramesReceived,
			sessionFramesSent,
			sessionSendDropped,
			sessionLinkDead,
			sessionHandlerFailures,
			sessionConnected,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// SessionMetrics records session counters into the process registry.
type SessionMetrics struct{}

var _ session.Metrics = SessionMetrics{}

func NewSessionMetrics() SessionMetrics {
	RegisterMetrics()
	return SessionMetrics{}
}

func (SessionMetrics) ConnectAttempt(client, result string) {
	sessionConnects.WithLabelValues(client, result).Inc()
}

func (SessionMetrics) FrameReceived(client string, id protocol.RequestID) {
	sessionFramesReceived.WithLabelValues(client, id.String()).Inc()
}

func (SessionMetrics) FrameSent(client string, id protocol.RequestID) {
	sessionFramesSent.WithLabelValues(client, id.String()).Inc()
}

func (SessionMetrics) SendDropped(client string) {
	sessionSendDropped.WithLabelValues(client).Inc()
}

func (SessionMetrics) LinkDead(client string) {
	sessionLinkDead.WithLabelValues(client).Inc()
}

func (SessionMetrics) HandlerFailed(client, category string) {
	sessionHandlerFailures.WithLabelValues(client, category).Inc()
}

func (SessionMetrics) SetConnected(client string, connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	sessionConnected.WithLabelValues(client).Set(v)
}
