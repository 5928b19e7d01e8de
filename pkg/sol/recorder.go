package sol

import "time"

// Recorder receives session events for metrics. Kind is Channel.Kind.
type Recorder interface {
	SessionStarted(kind string)
	SessionEnded(kind string, reason Reason, duration time.Duration)
	BytesSent(kind string, n int)
	BytesReceived(kind string, n int)
	ReceiveRetried(kind string, code CompletionCode)
}

type nopRecorder struct{}

func (nopRecorder) SessionStarted(string)                     {}
func (nopRecorder) SessionEnded(string, Reason, time.Duration) {}
func (nopRecorder) BytesSent(string, int)                     {}
func (nopRecorder) BytesReceived(string, int)                 {}
func (nopRecorder) ReceiveRetried(string, CompletionCode)     {}
