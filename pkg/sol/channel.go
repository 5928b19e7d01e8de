package sol

import (
	"context"
	"fmt"
	"time"

	"chassis-cli/pkg/vt100"
)

// Response is what a console call to the chassis manager returns. Only the
// fields meaningful to the call are set.
type Response struct {
	Code   CompletionCode
	Status string
	Token  string
	Data   []byte
}

// BladeService is the chassis manager API for blade serial consoles.
type BladeService interface {
	StartBladeSerialSession(ctx context.Context, bladeID int, timeout time.Duration) (Response, error)
	StopBladeSerialSession(ctx context.Context, bladeID int, token string, force bool) (Response, error)
	SendBladeSerialData(ctx context.Context, bladeID int, token string, data []byte) (Response, error)
	ReceiveBladeSerialData(ctx context.Context, bladeID int, token string) (Response, error)
}

// PortService is the chassis manager API for serial port consoles.
type PortService interface {
	StartSerialPortConsole(ctx context.Context, portID int, timeout time.Duration, baudRate int) (Response, error)
	StopSerialPortConsole(ctx context.Context, portID int, token string, force bool) (Response, error)
	SendSerialPortData(ctx context.Context, portID int, token string, data []byte) (Response, error)
	ReceiveSerialPortData(ctx context.Context, portID int, token string) (Response, error)
}

// Channel is one console target. A Session drives it from two goroutines:
// Send is only called by the sender loop and Receive only by the receiver
// loop, so implementations need not serialise them against each other.
//
// Transport failures are returned as errors. Anything the remote side
// answered, successful or not, is returned as a CompletionCode.
type Channel interface {
	// Open establishes the console and returns its session token.
	// Returns an *OpenError when the remote side refuses.
	Open(ctx context.Context) (string, error)
	Send(ctx context.Context, token string, data []byte) (CompletionCode, error)
	Receive(ctx context.Context, token string) (CompletionCode, []byte, error)
	// Close releases the token on the remote side.
	Close(ctx context.Context, token string) error
	// Describe names the target for operator messages, e.g. "blade 3".
	Describe() string
	// Kind is a short label used for metrics.
	Kind() string
	LineEnding() vt100.LineEnding
}

// BladeConsole is the console of a blade server. Blades expect a bare CR at
// the end of a line.
type BladeConsole struct {
	Service        BladeService
	BladeID        int
	SessionTimeout time.Duration
}

var _ Channel = (*BladeConsole)(nil)

func (c *BladeConsole) Open(ctx context.Context) (string, error) {
	resp, err := c.Service.StartBladeSerialSession(ctx, c.BladeID, c.SessionTimeout)
	if err != nil {
		return "", fmt.Errorf("failed to start serial session on %s: %w", c.Describe(), err)
	}
	return openToken(c.Describe(), resp)
}

func (c *BladeConsole) Send(ctx context.Context, token string, data []byte) (CompletionCode, error) {
	resp, err := c.Service.SendBladeSerialData(ctx, c.BladeID, token, data)
	return resp.Code, err
}

func (c *BladeConsole) Receive(ctx context.Context, token string) (CompletionCode, []byte, error) {
	resp, err := c.Service.ReceiveBladeSerialData(ctx, c.BladeID, token)
	return resp.Code, resp.Data, err
}

func (c *BladeConsole) Close(ctx context.Context, token string) error {
	resp, err := c.Service.StopBladeSerialSession(ctx, c.BladeID, token, false)
	return closeResult(c.Describe(), resp, err)
}

func (c *BladeConsole) Describe() string {
	return fmt.Sprintf("blade %d", c.BladeID)
}

func (c *BladeConsole) Kind() string {
	return "blade"
}

func (c *BladeConsole) LineEnding() vt100.LineEnding {
	return vt100.EndCR
}

// PortConsole is the console of a device wired to one of the chassis
// manager's serial ports. Those devices expect CRLF.
type PortConsole struct {
	Service        PortService
	PortID         int
	SessionTimeout time.Duration
	BaudRate       int
}

var _ Channel = (*PortConsole)(nil)

func (c *PortConsole) Open(ctx context.Context) (string, error) {
	resp, err := c.Service.StartSerialPortConsole(ctx, c.PortID, c.SessionTimeout, c.BaudRate)
	if err != nil {
		return "", fmt.Errorf("failed to start serial console on %s: %w", c.Describe(), err)
	}
	return openToken(c.Describe(), resp)
}

func (c *PortConsole) Send(ctx context.Context, token string, data []byte) (CompletionCode, error) {
	resp, err := c.Service.SendSerialPortData(ctx, c.PortID, token, data)
	return resp.Code, err
}

func (c *PortConsole) Receive(ctx context.Context, token string) (CompletionCode, []byte, error) {
	resp, err := c.Service.ReceiveSerialPortData(ctx, c.PortID, token)
	return resp.Code, resp.Data, err
}

func (c *PortConsole) Close(ctx context.Context, token string) error {
	resp, err := c.Service.StopSerialPortConsole(ctx, c.PortID, token, false)
	return closeResult(c.Describe(), resp, err)
}

func (c *PortConsole) Describe() string {
	return fmt.Sprintf("port %d", c.PortID)
}

func (c *PortConsole) Kind() string {
	return "port"
}

func (c *PortConsole) LineEnding() vt100.LineEnding {
	return vt100.EndCRLF
}

func openToken(target string, resp Response) (string, error) {
	if !resp.Code.OK() {
		return "", &OpenError{Target: target, Code: resp.Code, Status: resp.Status}
	}
	if resp.Token == "" {
		return "", &OpenError{Target: target, Code: resp.Code, Status: "no session token returned"}
	}
	return resp.Token, nil
}

// closeResult treats a session the remote side already dropped as closed.
func closeResult(target string, resp Response, err error) error {
	if err != nil {
		return fmt.Errorf("failed to stop console on %s: %w", target, err)
	}
	if resp.Code.OK() || resp.Code == CodeNoActiveSerialSession {
		return nil
	}
	return fmt.Errorf("failed to stop console on %s: %s", target, resp.Code)
}
