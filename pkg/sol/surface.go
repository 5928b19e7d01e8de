package sol

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/mattn/go-runewidth"
	"github.com/rs/zerolog/log"

	"chassis-cli/pkg/lineeditor"
	"chassis-cli/pkg/serial"
	"chassis-cli/pkg/vt100"
)

// RelayState is the shared flag a surface consults to know whether a relay
// is still running. *Session implements it.
type RelayState interface {
	Active() bool
}

// Surface is where the operator sits: a local terminal or a physical serial
// line. The sender loop calls ReadPayload, the receiver loop calls Display.
type Surface interface {
	// Begin prepares the surface for relaying while state is active.
	Begin(state RelayState) error
	// ReadPayload blocks for the next unit of input and encodes it. An
	// empty payload means there is nothing to send yet. terminate is true
	// when the operator asked to leave the console.
	ReadPayload(ctx context.Context, enc *vt100.Encoder, le vt100.LineEnding) (payload []byte, terminate bool, err error)
	// Display shows console output.
	Display(data []byte) error
	// Reset clears partial input and output and gives the surface back to
	// the command loop.
	Reset()
}

// KeyReader yields decoded keystrokes. *lineeditor.Editor implements it.
type KeyReader interface {
	ReadKey(ctx context.Context) (vt100.Key, error)
}

// LocalSurface relays an interactive terminal. Keys come from the line
// editor in pass-through mode and output goes to out through a Splitter so
// escape sequences are never written in halves.
//
// Printable keys are buffered by the encoder until Enter; they are echoed
// locally meanwhile and erased again when the line is sent, leaving the
// remote echo as the only copy.
type LocalSurface struct {
	keys KeyReader
	term *lineeditor.Terminal
	out  io.Writer

	mu      sync.Mutex
	split   vt100.Splitter
	echoed  []rune
	restore func()
}

var _ Surface = (*LocalSurface)(nil)

// NewLocalSurface relays keys read by editor and writes output to out.
func NewLocalSurface(editor *lineeditor.Editor, out io.Writer) *LocalSurface {
	return &LocalSurface{keys: editor, term: editor.Terminal(), out: out}
}

// NewKeySurface relays keys from any KeyReader without terminal handling.
func NewKeySurface(keys KeyReader, out io.Writer) *LocalSurface {
	return &LocalSurface{keys: keys, out: out}
}

// Begin holds the terminal in raw mode until Reset.
func (s *LocalSurface) Begin(RelayState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.restore = func() {}
	if s.term == nil {
		return nil
	}
	restore, err := s.term.Raw()
	if err != nil {
		return fmt.Errorf("failed to set raw mode: %w", err)
	}
	s.restore = restore
	return nil
}

func (s *LocalSurface) ReadPayload(ctx context.Context, enc *vt100.Encoder, le vt100.LineEnding) ([]byte, bool, error) {
	k, err := s.keys.ReadKey(ctx)
	if err != nil {
		return nil, false, err
	}
	pending := enc.Pending() != ""
	payload, terminate := enc.Encode(k, le)
	if terminate {
		return nil, true, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var echo bytes.Buffer
	switch {
	case k.Printable():
		s.echoed = append(s.echoed, k.Rune)
		echo.WriteRune(k.Rune)
	case k.Code == vt100.KeyBackspace && pending && len(s.echoed) > 0:
		last := s.echoed[len(s.echoed)-1]
		s.echoed = s.echoed[:len(s.echoed)-1]
		erase(&echo, runewidth.RuneWidth(last))
	case k.Code == vt100.KeyEnter:
		erase(&echo, vt100.Columns(s.echoed))
		s.echoed = s.echoed[:0]
	}
	if echo.Len() > 0 {
		if _, err := s.out.Write(echo.Bytes()); err != nil {
			return nil, false, err
		}
	}
	return payload, false, nil
}

func erase(b *bytes.Buffer, cols int) {
	if cols <= 0 {
		return
	}
	b.Write(bytes.Repeat([]byte{'\b'}, cols))
	b.Write(bytes.Repeat([]byte{' '}, cols))
	b.Write(bytes.Repeat([]byte{'\b'}, cols))
}

func (s *LocalSurface) Display(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.split.Feed(data)
	if len(out) == 0 {
		return nil
	}
	_, err := s.out.Write(out)
	return err
}

// Reset writes any held output and restores the terminal.
func (s *LocalSurface) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if held := s.split.Flush(); len(held) > 0 {
		_, _ = s.out.Write(held)
	}
	s.echoed = nil
	if s.restore != nil {
		s.restore()
		s.restore = nil
	}
}

// LineDriver is the part of the serial driver a relay needs.
// *serial.Driver implements it.
type LineDriver interface {
	ReadRawBytes(ctx context.Context) ([]byte, error)
	WriteRaw(p []byte) error
	AttachRelay(r serial.RelayState)
	ClearBuffers()
}

// SerialSurface relays a physical serial line. Input bytes are forwarded
// as they arrive and output is written to the line verbatim; the terminal
// on the far end of the line does its own echo and rendering.
type SerialSurface struct {
	driver LineDriver
}

var _ Surface = (*SerialSurface)(nil)

// NewSerialSurface returns a surface over driver.
func NewSerialSurface(driver LineDriver) *SerialSurface {
	return &SerialSurface{driver: driver}
}

// Begin switches the driver into pass-through while state is active.
func (s *SerialSurface) Begin(state RelayState) error {
	s.driver.ClearBuffers()
	s.driver.AttachRelay(state)
	return nil
}

func (s *SerialSurface) ReadPayload(ctx context.Context, enc *vt100.Encoder, le vt100.LineEnding) ([]byte, bool, error) {
	b, err := s.driver.ReadRawBytes(ctx)
	if err != nil {
		return nil, false, err
	}
	payload, terminate := enc.EncodeRaw(b, le)
	if terminate {
		log.Debug().Int("bytes", len(payload)).Msg("exit key received on serial line")
	}
	return payload, terminate, nil
}

func (s *SerialSurface) Display(data []byte) error {
	return s.driver.WriteRaw(data)
}

// Reset detaches the relay and drops anything typed meanwhile.
func (s *SerialSurface) Reset() {
	s.driver.AttachRelay(nil)
	s.driver.ClearBuffers()
}
