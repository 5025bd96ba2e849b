// Package metrics exposes the transport's counters and gauges via
// Prometheus, grounded on the teacher's internal/gateway/metrics package
// (promauto-registered CounterVec/GaugeVec, one constructor, Record*
// methods) but trimmed to the quantities a single-session file transfer
// actually produces.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the transport's Prometheus instruments.
type Metrics struct {
	SegmentsSent           prometheus.Counter
	SegmentsRetransFast    prometheus.Counter
	SegmentsRetransTimeout prometheus.Counter
	BytesSent              prometheus.Counter
	BytesReceived          prometheus.Counter
	SegmentsReceived       *prometheus.CounterVec // label "outcome": in_order/out_of_order/duplicate
	CwndBytes              prometheus.Gauge
	RTOMillis              prometheus.Gauge
	SRTTMillis             prometheus.Gauge
	SessionsTotal          *prometheus.CounterVec // label "outcome": completed/failed
}

// New registers and returns a fresh Metrics under the given namespace
// (conventionally "qcp").
func New(namespace string) *Metrics {
	return &Metrics{
		SegmentsSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_sent_total",
			Help:      "Total number of data segments sent, including retransmits.",
		}),
		SegmentsRetransFast: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_retransmitted_fast_total",
			Help:      "Segments retransmitted by triple-duplicate-ACK fast retransmit.",
		}),
		SegmentsRetransTimeout: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_retransmitted_timeout_total",
			Help:      "Segments retransmitted by base-timer expiry.",
		}),
		BytesSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Total payload bytes sent, including retransmits.",
		}),
		BytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Total payload bytes delivered to the sink.",
		}),
		SegmentsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_received_total",
			Help:      "Data segments received by delivery outcome.",
		}, []string{"outcome"}),
		CwndBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cwnd_bytes",
			Help:      "Current congestion window in bytes.",
		}),
		RTOMillis: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rto_milliseconds",
			Help:      "Current retransmission timeout in milliseconds.",
		}),
		SRTTMillis: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "srtt_milliseconds",
			Help:      "Current smoothed RTT in milliseconds.",
		}),
		SessionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Sessions by final outcome.",
		}, []string{"outcome"}),
	}
}

// ListenAndServe serves /metrics over HTTP on addr and blocks until the
// server stops, returning its error; callers run it in its own goroutine.
// It is optional: a session runs fine with metrics==nil, callers simply
// skip calling this.
func ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
