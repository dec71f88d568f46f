// Package metrics instruments the streamable HTTP transport with Prometheus
// collectors. A nil *Recorder is a valid no-op: metrics are an ambient
// concern, never load-bearing for protocol correctness.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder records transport-level events. The zero value's methods must
// not be called directly; use NewRecorder or a nil *Recorder via the
// nil-safe wrapper methods below.
type Recorder struct {
	sends        *prometheus.CounterVec
	sendDuration *prometheus.HistogramVec
	reconnects   *prometheus.CounterVec
	authRetries  prometheus.Counter
}

// NewRecorder creates a Recorder and registers its collectors with reg. If
// reg is nil, prometheus.DefaultRegisterer is used.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_transport_sends_total",
			Help: "JSON-RPC sends by endpoint host, HTTP method, and outcome.",
		}, []string{"endpoint", "method", "outcome"}),
		sendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mcp_transport_send_duration_seconds",
			Help:    "Time from issuing an HTTP exchange to classifying its response.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint", "method"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_transport_reconnects_total",
			Help: "SSE stream reconnection attempts by endpoint and result.",
		}, []string{"endpoint", "result"}),
		authRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcp_transport_auth_retries_total",
			Help: "Requests retried once after a silent auth provider refresh.",
		}),
	}
	reg.MustRegister(r.sends, r.sendDuration, r.reconnects, r.authRetries)
	return r
}

// Outcome labels for RecordSend.
const (
	OutcomeAccepted = "accepted"
	OutcomeInline   = "inline"
	OutcomeStream   = "stream"
	OutcomeError    = "error"
)

func (r *Recorder) RecordSend(endpointHost, method, outcome string, seconds float64) {
	if r == nil {
		return
	}
	r.sends.WithLabelValues(endpointHost, method, outcome).Inc()
	r.sendDuration.WithLabelValues(endpointHost, method).Observe(seconds)
}

// Reconnect result labels for RecordReconnect.
const (
	ReconnectOK        = "ok"
	ReconnectFailed    = "failed"
	ReconnectExhausted = "exhausted"
)

func (r *Recorder) RecordReconnect(endpointHost, result string) {
	if r == nil {
		return
	}
	r.reconnects.WithLabelValues(endpointHost, result).Inc()
}

func (r *Recorder) RecordAuthRetry() {
	if r == nil {
		return
	}
	r.authRetries.Inc()
}
