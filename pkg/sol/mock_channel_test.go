package sol

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMockChannel(t *testing.T) *MockChannel {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	c := NewMockChannel()
	c.ReceiveTimeout = 100 * time.Millisecond
	return c
}

func TestMockChannel_RunsCommands(t *testing.T) {
	c := newTestMockChannel(t)
	ctx := context.Background()

	token, err := c.Open(ctx)
	require.NoError(t, err)
	defer c.Close(ctx, token)

	code, banner, err := c.Receive(ctx, token)
	require.NoError(t, err)
	require.Equal(t, CodeSuccess, code)
	assert.Contains(t, string(banner), "Mock serial console")

	code, err = c.Send(ctx, token, []byte("echo relay-ok\r"))
	require.NoError(t, err)
	require.Equal(t, CodeSuccess, code)

	var out []byte
	deadline := time.Now().Add(5 * time.Second)
	for !bytes.Contains(out, []byte("relay-ok\r\n")) && time.Now().Before(deadline) {
		code, data, err := c.Receive(ctx, token)
		require.NoError(t, err)
		if code == CodeSuccess {
			out = append(out, data...)
		} else {
			assert.True(t, code.Retryable())
		}
	}
	assert.Contains(t, string(out), "relay-ok\r\n")
}

func TestMockChannel_SingleSession(t *testing.T) {
	c := newTestMockChannel(t)
	ctx := context.Background()

	token, err := c.Open(ctx)
	require.NoError(t, err)

	_, err = c.Open(ctx)
	var openErr *OpenError
	require.True(t, errors.As(err, &openErr))
	assert.True(t, openErr.InUse())

	require.NoError(t, c.Close(ctx, token))
	code, _, err := c.Receive(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, CodeNoActiveSerialSession, code)

	code, err = c.Send(ctx, "stale", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, CodeNoActiveSerialSession, code)
}

func TestMockChannel_ShellExitEndsSession(t *testing.T) {
	c := newTestMockChannel(t)
	ctx := context.Background()

	token, err := c.Open(ctx)
	require.NoError(t, err)
	defer c.Close(ctx, token)

	_, err = c.Send(ctx, token, []byte("exit\r"))
	require.NoError(t, err)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		code, _, err := c.Receive(ctx, token)
		require.NoError(t, err)
		if code == CodeNoActiveSerialSession {
			return
		}
	}
	t.Fatal("shell exit was not reported")
}

func TestShellTranslation(t *testing.T) {
	assert.Equal(t, []byte("ls\nls\n"), toShellInput([]byte("ls\r\nls\r")))
	assert.Equal(t, []byte("a\r\nb\r\n"), toDisplayOutput([]byte("a\nb\r\n")))
}
