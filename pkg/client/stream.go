package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"chassis-cli/pkg/sol"
	"chassis-cli/pkg/vt100"
)

// StreamConfig locates the console gateway.
type StreamConfig struct {
	URL            string
	Username       string
	Password       string
	ReceiveTimeout time.Duration
}

// StreamChannel is a console relayed by the gateway over one websocket
// instead of polling the chassis manager.
//
// Console bytes travel as binary messages in both directions. The gateway
// reports session state as JSON text messages shaped like the REST
// responses: the first one carries the session token, a later one with a
// non-success code ends the session.
type StreamChannel struct {
	cfg    StreamConfig
	kind   string
	id     int
	ending vt100.LineEnding

	mu      sync.Mutex
	conn    *websocket.Conn
	token   string
	readCh  chan frame
	stopCh  chan struct{}
	writeMu sync.Mutex
}

type frame struct {
	code sol.CompletionCode
	data []byte
	err  error
}

var _ sol.Channel = (*StreamChannel)(nil)

// NewBladeStream returns a streamed console for a blade.
func NewBladeStream(cfg StreamConfig, bladeID int) *StreamChannel {
	return newStream(cfg, "blade", bladeID, vt100.EndCR)
}

// NewPortStream returns a streamed console for a serial port.
func NewPortStream(cfg StreamConfig, portID int) *StreamChannel {
	return newStream(cfg, "port", portID, vt100.EndCRLF)
}

func newStream(cfg StreamConfig, kind string, id int, ending vt100.LineEnding) *StreamChannel {
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = time.Second
	}
	return &StreamChannel{cfg: cfg, kind: kind, id: id, ending: ending}
}

func (c *StreamChannel) Describe() string {
	return fmt.Sprintf("%s %d (stream)", c.kind, c.id)
}

func (c *StreamChannel) Kind() string {
	return c.kind + "_stream"
}

func (c *StreamChannel) LineEnding() vt100.LineEnding {
	return c.ending
}

// endpoint returns the websocket URL of the target, converting http
// schemes to their websocket equivalents.
func (c *StreamChannel) endpoint() (string, error) {
	raw := c.cfg.URL
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid gateway url %q: %w", c.cfg.URL, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	return u.JoinPath("console", c.kind, fmt.Sprint(c.id)).String(), nil
}

// Open dials the gateway and waits for the session token.
func (c *StreamChannel) Open(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return "", &sol.OpenError{Target: c.Describe(), Code: sol.CodeSerialSessionActive}
	}

	wsURL, err := c.endpoint()
	if err != nil {
		return "", err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 45 * time.Second,
	}
	headers := http.Header{}
	if c.cfg.Username != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(c.cfg.Username + ":" + c.cfg.Password))
		headers.Set("Authorization", "Basic "+auth)
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return "", &sol.OpenError{Target: c.Describe(), Code: sol.CodeUnauthorized, Status: resp.Status}
		}
		return "", fmt.Errorf("failed to connect to console gateway: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	var hello consoleResponse
	if err := conn.ReadJSON(&hello); err != nil {
		conn.Close()
		return "", fmt.Errorf("failed to read console session status: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	code := sol.ParseCompletionCode(hello.CompletionCode)
	if !code.OK() || hello.SessionToken == "" {
		conn.Close()
		return "", &sol.OpenError{Target: c.Describe(), Code: code, Status: hello.StatusDescription}
	}

	c.conn = conn
	c.token = hello.SessionToken
	c.readCh = make(chan frame, 256)
	c.stopCh = make(chan struct{})
	go c.readLoop(conn, c.readCh, c.stopCh)

	log.Debug().Str("url", wsURL).Msg("console stream connected")
	return c.token, nil
}

func (c *StreamChannel) current(token string) (*websocket.Conn, chan frame, chan struct{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || token != c.token {
		return nil, nil, nil, false
	}
	return c.conn, c.readCh, c.stopCh, true
}

// readLoop turns websocket messages into frames until the connection ends.
// When the buffer is full it stops reading, and the gateway sees
// backpressure instead of losing output.
func (c *StreamChannel) readLoop(conn *websocket.Conn, readCh chan<- frame, stopCh <-chan struct{}) {
	defer close(readCh)

	for {
		kind, message, err := conn.ReadMessage()
		if err != nil {
			f := frame{err: err}
			if isConnectionClosed(err) {
				f = frame{code: sol.CodeNoActiveSerialSession}
			}
			select {
			case readCh <- f:
			case <-stopCh:
			}
			return
		}

		f := frame{code: sol.CodeSuccess, data: message}
		if kind == websocket.TextMessage {
			var status consoleResponse
			if err := json.Unmarshal(message, &status); err != nil {
				log.Debug().Err(err).Msg("ignoring malformed console status")
				continue
			}
			f = frame{code: sol.ParseCompletionCode(status.CompletionCode), data: status.Data}
		}
		if f.code.OK() && len(f.data) == 0 {
			continue
		}

		select {
		case readCh <- f:
		case <-stopCh:
			return
		}
	}
}

func (c *StreamChannel) Send(ctx context.Context, token string, data []byte) (sol.CompletionCode, error) {
	conn, _, _, ok := c.current(token)
	if !ok {
		return sol.CodeNoActiveSerialSession, nil
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		if isConnectionClosed(err) || errors.Is(err, websocket.ErrCloseSent) {
			return sol.CodeNoActiveSerialSession, nil
		}
		return sol.CodeUnknown, fmt.Errorf("failed to write to console stream: %w", err)
	}
	return sol.CodeSuccess, nil
}

func (c *StreamChannel) Receive(ctx context.Context, token string) (sol.CompletionCode, []byte, error) {
	_, readCh, stopCh, ok := c.current(token)
	if !ok {
		return sol.CodeNoActiveSerialSession, nil, nil
	}

	timer := time.NewTimer(c.cfg.ReceiveTimeout)
	defer timer.Stop()

	select {
	case f, ok := <-readCh:
		if !ok {
			return sol.CodeNoActiveSerialSession, nil, nil
		}
		if f.err != nil {
			return sol.CodeUnknown, nil, fmt.Errorf("console stream: %w", f.err)
		}
		return f.code, f.data, nil
	case <-stopCh:
		return sol.CodeNoActiveSerialSession, nil, nil
	case <-timer.C:
		return sol.CodeTimeout, nil, nil
	case <-ctx.Done():
		return sol.CodeUnknown, nil, ctx.Err()
	}
}

// Close sends a normal closure and drops the connection.
func (c *StreamChannel) Close(ctx context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || token != c.token {
		return nil
	}
	close(c.stopCh)

	c.writeMu.Lock()
	deadline := time.Now().Add(time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "console closed")
	werr := c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	c.writeMu.Unlock()

	err := c.conn.Close()
	c.conn = nil
	c.token = ""
	if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
		return fmt.Errorf("failed to close console stream: %w", werr)
	}
	return err
}

// isConnectionClosed checks if the error indicates a closed connection
func isConnectionClosed(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
