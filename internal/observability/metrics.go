package observability

import "github.com/prometheus/client_golang/prometheus"

// LatencyBuckets covers model latencies from 100ms to two minutes.
var LatencyBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts client requests by route and status code.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "droidproxy_requests_total",
			Help: "Client requests",
		},
		[]string{"route", "status"},
	)

	// RequestDuration records client request duration in seconds by route.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "droidproxy_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LatencyBuckets,
		},
		[]string{"route"},
	)

	// UpstreamRequestsTotal counts backend calls by backend kind and status code.
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "droidproxy_upstream_requests_total",
			Help: "Upstream requests",
		},
		[]string{"kind", "status"},
	)

	// CredentialRefreshesTotal counts refresh exchanges by outcome (ok/error).
	CredentialRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "droidproxy_credential_refreshes_total",
			Help: "Credential refresh exchanges",
		},
		[]string{"outcome"},
	)

	// StreamRecordsTotal counts SSE records written to clients by backend kind.
	StreamRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "droidproxy_stream_records_total",
			Help: "Streamed records",
		},
		[]string{"kind"},
	)

	// ActiveStreams tracks in-flight streaming responses.
	ActiveStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "droidproxy_streams_active",
			Help: "Active streaming responses",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		UpstreamRequestsTotal,
		CredentialRefreshesTotal,
		StreamRecordsTotal,
		ActiveStreams,
	)
}
