package sol

import "fmt"

// Reason classifies why a session ended.
type Reason int

const (
	// ReasonOperator: the operator pressed the exit key or closed input.
	ReasonOperator Reason = iota
	// ReasonRemoteFault: a send or receive returned a fatal completion code.
	ReasonRemoteFault
	// ReasonStoppedElsewhere: the remote side no longer knows the session,
	// usually because another operator stopped it.
	ReasonStoppedElsewhere
	// ReasonLocalFault: a transport, terminal or serial line error, or a
	// panic in one of the loops.
	ReasonLocalFault
	// ReasonCancelled: the caller's context was cancelled.
	ReasonCancelled
	// ReasonTakenOver: a new session in this process replaced this one.
	ReasonTakenOver
)

var reasonNames = map[Reason]string{
	ReasonOperator:         "operator",
	ReasonRemoteFault:      "remote_fault",
	ReasonStoppedElsewhere: "stopped_elsewhere",
	ReasonLocalFault:       "local_fault",
	ReasonCancelled:        "cancelled",
	ReasonTakenOver:        "taken_over",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// Termination records how a session ended.
type Termination struct {
	Reason Reason
	// Code is the completion code that ended the session, for remote faults.
	Code CompletionCode
	// Err is the underlying error, for local faults.
	Err error
}

// Message is the line shown to the operator when the session ends.
func (t Termination) Message() string {
	switch t.Reason {
	case ReasonOperator:
		return "Console session ended."
	case ReasonRemoteFault:
		return fmt.Sprintf("Console session terminated by the chassis manager: completion code %s.", t.Code)
	case ReasonStoppedElsewhere:
		return "Console session was stopped by another operator or timed out on the chassis manager."
	case ReasonLocalFault:
		if t.Err != nil {
			return fmt.Sprintf("Console session terminated: %v.", t.Err)
		}
		return "Console session terminated by a local error."
	case ReasonCancelled:
		return "Console session cancelled."
	case ReasonTakenOver:
		return "Console session was replaced by a new session."
	}
	return "Console session ended."
}

// Error returns nil for endings the operator asked for and an error
// describing the fault otherwise.
func (t Termination) Error() error {
	switch t.Reason {
	case ReasonOperator, ReasonCancelled, ReasonTakenOver:
		return nil
	case ReasonLocalFault:
		if t.Err != nil {
			return fmt.Errorf("console session failed: %w", t.Err)
		}
	}
	return fmt.Errorf("console session ended: %s", t.Message())
}

func remoteTermination(code CompletionCode) Termination {
	if code == CodeNoActiveSerialSession {
		return Termination{Reason: ReasonStoppedElsewhere, Code: code}
	}
	return Termination{Reason: ReasonRemoteFault, Code: code}
}
