package sol

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chassis-cli/pkg/lineeditor"
	"chassis-cli/pkg/serial"
	"chassis-cli/pkg/vt100"
)

func TestLocalSurface_ReadPayload(t *testing.T) {
	editor := lineeditor.New(strings.NewReader("ls\x7fs\r\x1bOP\x18"), io.Discard, lineeditor.Options{})
	var out bytes.Buffer
	surface := NewLocalSurface(editor, &out)
	require.NoError(t, surface.Begin(nil))

	enc := vt100.NewEncoder()
	ctx := context.Background()
	var payloads [][]byte
	for {
		payload, terminate, err := surface.ReadPayload(ctx, enc, vt100.EndCR)
		require.NoError(t, err)
		if terminate {
			break
		}
		if len(payload) > 0 {
			payloads = append(payloads, payload)
		}
	}

	assert.Equal(t, [][]byte{[]byte("ls\r"), []byte("\x1bOP")}, payloads)
	assert.Equal(t, "ls\b \bs\b\b  \b\b", out.String(), "pending text is echoed then erased when sent")
}

func TestLocalSurface_ReadPayloadCancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	surface := NewLocalSurface(lineeditor.New(pr, io.Discard, lineeditor.Options{}), io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := surface.ReadPayload(ctx, vt100.NewEncoder(), vt100.EndCR)
	assert.ErrorIs(t, err, lineeditor.ErrCancelled)
}

func TestLocalSurface_DisplayHoldsPartialEscapes(t *testing.T) {
	var out bytes.Buffer
	surface := NewKeySurface(nil, &out)
	require.NoError(t, surface.Begin(nil))

	require.NoError(t, surface.Display([]byte("abc\x1b[")))
	assert.Equal(t, "abc", out.String())
	require.NoError(t, surface.Display([]byte("1mbold")))
	assert.Equal(t, "abc\x1b[1mbold", out.String())

	require.NoError(t, surface.Display([]byte("\x1b")))
	surface.Reset()
	assert.Equal(t, "abc\x1b[1mbold\x1b", out.String(), "Reset writes held bytes")
}

type fakeDriver struct {
	chunks  chan []byte
	written bytes.Buffer
	relay   serial.RelayState
	clears  int
}

func (d *fakeDriver) ReadRawBytes(ctx context.Context) ([]byte, error) {
	select {
	case b := <-d.chunks:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *fakeDriver) WriteRaw(p []byte) error {
	d.written.Write(p)
	return nil
}

func (d *fakeDriver) AttachRelay(r serial.RelayState) {
	d.relay = r
}

func (d *fakeDriver) ClearBuffers() {
	d.clears++
}

func TestSerialSurface(t *testing.T) {
	driver := &fakeDriver{chunks: make(chan []byte, 4)}
	surface := NewSerialSurface(driver)
	session := NewSession(newFakeChannel(), surface, testOptions)

	require.NoError(t, surface.Begin(session))
	assert.Same(t, session, driver.relay)

	driver.chunks <- []byte("dir\r")
	driver.chunks <- []byte("ab\x18cd")
	enc := vt100.NewEncoder()
	ctx := context.Background()

	payload, terminate, err := surface.ReadPayload(ctx, enc, vt100.EndCRLF)
	require.NoError(t, err)
	assert.False(t, terminate)
	assert.Equal(t, []byte("dir\r\n"), payload)

	payload, terminate, err = surface.ReadPayload(ctx, enc, vt100.EndCRLF)
	require.NoError(t, err)
	assert.True(t, terminate)
	assert.Equal(t, []byte("ab"), payload, "bytes before the exit key are still sent")

	require.NoError(t, surface.Display([]byte("\x1b[2J\n")))
	assert.Equal(t, "\x1b[2J\n", driver.written.String(), "output is written verbatim")

	surface.Reset()
	assert.Nil(t, driver.relay)
	assert.Equal(t, 2, driver.clears)
}
