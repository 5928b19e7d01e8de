package sol

import (
	"errors"
	"fmt"
	"strings"
)

// CompletionCode is the outcome the chassis manager reports for every
// console call.
type CompletionCode string

const (
	CodeSuccess               CompletionCode = "Success"
	CodeFailure               CompletionCode = "Failure"
	CodeTimeout               CompletionCode = "Timeout"
	CodeBufferOverflow        CompletionCode = "BufferOverflow"
	CodeSerialSessionActive   CompletionCode = "SerialSessionActive"
	CodeNoActiveSerialSession CompletionCode = "NoActiveSerialSession"
	CodeUnauthorized          CompletionCode = "Unauthorized"
	CodeUnknown               CompletionCode = "Unknown"
)

var knownCodes = []CompletionCode{
	CodeSuccess,
	CodeFailure,
	CodeTimeout,
	CodeBufferOverflow,
	CodeSerialSessionActive,
	CodeNoActiveSerialSession,
	CodeUnauthorized,
}

// ParseCompletionCode maps a wire value to a CompletionCode, ignoring case.
// Unrecognised values become CodeUnknown.
func ParseCompletionCode(s string) CompletionCode {
	s = strings.TrimSpace(s)
	for _, c := range knownCodes {
		if strings.EqualFold(s, string(c)) {
			return c
		}
	}
	return CodeUnknown
}

// OK reports whether the call succeeded.
func (c CompletionCode) OK() bool {
	return c == CodeSuccess
}

// Retryable reports whether a receive that returned c should simply be
// issued again.
func (c CompletionCode) Retryable() bool {
	return c == CodeTimeout || c == CodeBufferOverflow
}

func (c CompletionCode) String() string {
	if c == "" {
		return string(CodeUnknown)
	}
	return string(c)
}

var (
	// ErrSessionActive is returned when a relay is started while another one
	// is still running in this process.
	ErrSessionActive = errors.New("a console session is already active")

	// ErrOpenFailed matches every *OpenError.
	ErrOpenFailed = errors.New("failed to open console session")
)

// OpenError reports a session that the remote side refused to open.
type OpenError struct {
	Target string
	Code   CompletionCode
	Status string
}

func (e *OpenError) Error() string {
	msg := fmt.Sprintf("failed to open console session on %s: %s", e.Target, e.Code)
	if e.Status != "" {
		msg += ": " + e.Status
	}
	return msg
}

func (e *OpenError) Unwrap() error {
	return ErrOpenFailed
}

// InUse reports whether the target already has a console session owned by
// someone else.
func (e *OpenError) InUse() bool {
	return e.Code == CodeSerialSessionActive
}
