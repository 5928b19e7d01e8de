package sol

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"chassis-cli/pkg/vt100"
)

// DefaultMockReceiveTimeout is how long a mock receive waits for shell
// output before reporting CodeTimeout, like the chassis manager does.
const DefaultMockReceiveTimeout = time.Second

// MockChannel is a console backed by a local /bin/sh. It lets the relay be
// exercised without a chassis manager.
//
// The shell reads LF-terminated lines, so CR from the operator is turned into
// LF on the way in and bare LF output is expanded to CRLF on the way out.
type MockChannel struct {
	Shell          string
	ReceiveTimeout time.Duration

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	token  string
	stopCh chan struct{}
	readCh chan []byte
}

var _ Channel = (*MockChannel)(nil)

// NewMockChannel returns a mock console running /bin/sh.
func NewMockChannel() *MockChannel {
	return &MockChannel{Shell: "/bin/sh", ReceiveTimeout: DefaultMockReceiveTimeout}
}

// Open spawns the shell. A second Open while the shell runs reports
// CodeSerialSessionActive.
func (c *MockChannel) Open(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd != nil {
		return "", &OpenError{Target: c.Describe(), Code: CodeSerialSessionActive}
	}

	cmd := exec.Command(c.Shell)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return "", fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return "", fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		stdin.Close()
		return "", fmt.Errorf("failed to start shell: %w", err)
	}

	c.cmd = cmd
	c.stdin = stdin
	c.token = uuid.NewString()
	c.stopCh = make(chan struct{})
	c.readCh = make(chan []byte, 64)

	c.readCh <- []byte("\r\n" +
		"=====================================\r\n" +
		"  Mock serial console (" + c.Shell + ")\r\n" +
		"  Session established\r\n" +
		"=====================================\r\n\r\n")

	go c.handleShellOutput(stdout, c.readCh, c.stopCh)

	log.Debug().Str("shell", c.Shell).Int("pid", cmd.Process.Pid).Msg("mock console started")
	return c.token, nil
}

func (c *MockChannel) session(token string) (io.Writer, chan []byte, chan struct{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd == nil || token != c.token {
		return nil, nil, nil, false
	}
	return c.stdin, c.readCh, c.stopCh, true
}

func (c *MockChannel) Send(ctx context.Context, token string, data []byte) (CompletionCode, error) {
	stdin, _, _, ok := c.session(token)
	if !ok {
		return CodeNoActiveSerialSession, nil
	}
	if _, err := stdin.Write(toShellInput(data)); err != nil {
		// The shell exited; the receiver reports it.
		return CodeNoActiveSerialSession, nil
	}
	return CodeSuccess, nil
}

func (c *MockChannel) Receive(ctx context.Context, token string) (CompletionCode, []byte, error) {
	_, readCh, stopCh, ok := c.session(token)
	if !ok {
		return CodeNoActiveSerialSession, nil, nil
	}

	timer := time.NewTimer(c.ReceiveTimeout)
	defer timer.Stop()

	select {
	case data, ok := <-readCh:
		if !ok {
			return CodeNoActiveSerialSession, nil, nil
		}
		return CodeSuccess, data, nil
	case <-stopCh:
		return CodeNoActiveSerialSession, nil, nil
	case <-timer.C:
		return CodeTimeout, nil, nil
	case <-ctx.Done():
		return CodeUnknown, nil, ctx.Err()
	}
}

// Close kills the shell.
func (c *MockChannel) Close(ctx context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd == nil || token != c.token {
		return nil
	}

	close(c.stopCh)
	c.stdin.Close()
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
		_ = c.cmd.Wait()
	}
	c.cmd = nil
	c.token = ""
	return nil
}

func (c *MockChannel) Describe() string {
	return "mock console"
}

func (c *MockChannel) Kind() string {
	return "mock"
}

func (c *MockChannel) LineEnding() vt100.LineEnding {
	return vt100.EndCR
}

// handleShellOutput forwards shell output to readCh until the shell exits
// or the channel is closed. Output is dropped while readCh is full.
func (c *MockChannel) handleShellOutput(stdout io.Reader, readCh chan<- []byte, stopCh <-chan struct{}) {
	defer close(readCh)

	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			select {
			case readCh <- toDisplayOutput(buf[:n]):
			case <-stopCh:
				return
			default:
				log.Debug().Int("bytes", n).Msg("mock console output dropped")
			}
		}
		if err != nil {
			return
		}
	}
}

func toShellInput(data []byte) []byte {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	return bytes.ReplaceAll(data, []byte("\r"), []byte("\n"))
}

func toDisplayOutput(data []byte) []byte {
	out := make([]byte, 0, len(data)+8)
	for i, b := range data {
		if b == '\n' && (i == 0 || data[i-1] != '\r') {
			out = append(out, '\r')
		}
		out = append(out, b)
	}
	return out
}
