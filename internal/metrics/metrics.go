package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Console relay collectors
var (
	// Sessions

	SessionsStartedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chassis_console_sessions_started_total",
			Help: "Total number of console relay sessions opened",
		},
		[]string{"kind"},
	)

	SessionsEndedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chassis_console_sessions_ended_total",
			Help: "Total number of console relay sessions ended, by reason",
		},
		[]string{"kind", "reason"},
	)

	SessionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chassis_console_session_duration_seconds",
			Help:    "Console relay session duration in seconds",
			Buckets: []float64{1, 10, 60, 300, 900, 3600, 14400},
		},
		[]string{"kind"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chassis_console_active_sessions",
			Help: "Number of console relay sessions currently active",
		},
	)

	// Relay traffic

	RelayBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chassis_console_bytes_total",
			Help: "Bytes relayed between the operator and the console",
		},
		[]string{"kind", "direction"},
	)

	ReceiveRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chassis_console_receive_retries_total",
			Help: "Receive calls answered with a retryable completion code",
		},
		[]string{"kind", "code"},
	)

	// Serial line

	SerialBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chassis_serial_line_bytes_total",
			Help: "Bytes read from and written to the physical serial line",
		},
		[]string{"direction"},
	)

	SerialCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chassis_serial_commands_total",
			Help: "Commands run from the serial line shell",
		},
		[]string{"status"},
	)

	// HTTP

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chassis_http_requests_total",
			Help: "Total number of HTTP requests to the metrics listener",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chassis_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)
