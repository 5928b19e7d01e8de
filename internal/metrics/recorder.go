package metrics

import (
	"time"

	"chassis-cli/pkg/sol"
)

// Recorder feeds console session events into the package collectors.
type Recorder struct{}

var _ sol.Recorder = Recorder{}

func (Recorder) SessionStarted(kind string) {
	SessionsStartedTotal.WithLabelValues(kind).Inc()
	ActiveSessions.Inc()
}

func (Recorder) SessionEnded(kind string, reason sol.Reason, duration time.Duration) {
	SessionsEndedTotal.WithLabelValues(kind, reason.String()).Inc()
	SessionDuration.WithLabelValues(kind).Observe(duration.Seconds())
	ActiveSessions.Dec()
}

func (Recorder) BytesSent(kind string, n int) {
	RelayBytesTotal.WithLabelValues(kind, "sent").Add(float64(n))
}

func (Recorder) BytesReceived(kind string, n int) {
	RelayBytesTotal.WithLabelValues(kind, "received").Add(float64(n))
}

func (Recorder) ReceiveRetried(kind string, code sol.CompletionCode) {
	ReceiveRetriesTotal.WithLabelValues(kind, code.String()).Inc()
}

// ObserveSerial counts serial line traffic. It matches serial.Observer.
func ObserveSerial(direction string, n int) {
	SerialBytesTotal.WithLabelValues(direction).Add(float64(n))
}

// CommandFinished counts a command run from the serial shell.
func CommandFinished(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	SerialCommandsTotal.WithLabelValues(status).Inc()
}
