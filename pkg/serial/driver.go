// Package serial runs the operator command line on a physical serial line.
//
// The Driver owns the port. A background reader goroutine receives bytes
// from the hardware and performs echo, line editing, history recall and tab
// completion, leaving finished lines in an accumulator. A consumer
// goroutine blocks in ReadLine or ReadRawBytes until the reader signals that
// data arrived.
//
// While a console relay is attached and active, the driver stops editing and
// passes every byte through, rewriting only the VT100+ F5 to F12 forms.
package serial

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"chassis-cli/pkg/history"
	"chassis-cli/pkg/lineeditor"
	"chassis-cli/pkg/vt100"
)

// ErrClosed is returned by operations on a closed Driver.
var ErrClosed = errors.New("serial driver closed")

const readBufSize = 256

// RelayState reports whether a console relay currently owns the line.
type RelayState interface {
	Active() bool
}

// Observer is told about bytes crossing the line. direction is "rx" or "tx".
type Observer func(direction string, n int)

// Option customises a Driver.
type Option func(*Driver)

// WithHistory shares ring with the driver instead of a private one.
func WithHistory(ring *history.Ring) Option {
	return func(d *Driver) {
		d.history = ring
	}
}

// WithObserver installs a byte counter.
func WithObserver(o Observer) Option {
	return func(d *Driver) {
		d.observe = o
	}
}

// Driver edits input lines arriving on a serial port.
//
// Thread safety: the reader goroutine and consumer calls share the
// accumulator under mu. Writes to the port are serialized by writeMu; when
// both are held, mu is taken first.
type Driver struct {
	port      Port
	cfg       Config
	history   *history.Ring
	completer lineeditor.Completer
	observe   Observer

	writeMu sync.Mutex

	mu sync.Mutex
	// acc holds submitted lines followed by the line being typed; the
	// last lineLen bytes are the unfinished line.
	acc      []byte
	lineLen  int
	prompt   string
	shownCol int
	busy     bool
	relay    RelayState
	decoder  vt100.Decoder
	rewriter vt100.Rewriter

	// wake is signalled at most once per reader callback that added data.
	wake chan struct{}

	closeOnce sync.Once
	closeCh   chan struct{}
	doneCh    chan struct{}
	err       error
}

// Open opens the configured device and starts a Driver on it.
func Open(cfg Config, completer lineeditor.Completer, opts ...Option) (*Driver, error) {
	p, err := OpenPort(cfg)
	if err != nil {
		log.Error().Err(err).Str("port", cfg.Port).Msg("Failed to open serial port")
		return nil, err
	}
	log.Info().Str("port", cfg.Port).Int("baud_rate", cfg.withDefaults().BaudRate).Msg("Serial port opened")
	return New(p, cfg, completer, opts...), nil
}

// New starts a Driver on an already open port.
func New(port Port, cfg Config, completer lineeditor.Completer, opts ...Option) *Driver {
	cfg = cfg.withDefaults()
	d := &Driver{
		port:      port,
		cfg:       cfg,
		completer: completer,
		wake:      make(chan struct{}, 1),
		closeCh:   make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.history == nil {
		d.history = history.New(cfg.HistorySize)
	}

	go d.readerLoop()
	return d
}

// History returns the recall ring.
func (d *Driver) History() *history.Ring {
	return d.history
}

// Width returns the terminal width used for redraws.
func (d *Driver) Width() int {
	return d.cfg.Width
}

// SetCompleter replaces the completion provider.
func (d *Driver) SetCompleter(c lineeditor.Completer) {
	d.mu.Lock()
	d.completer = c
	d.mu.Unlock()
}

// readerLoop reads the port until Close or a permanent error. Read timeouts
// arrive as zero-length reads and end the current burst of input.
func (d *Driver) readerLoop() {
	defer close(d.doneCh)

	buf := make([]byte, readBufSize)
	for {
		select {
		case <-d.closeCh:
			return
		default:
		}

		n, err := d.port.Read(buf)
		if err != nil {
			select {
			case <-d.closeCh:
				return
			default:
			}
			var to interface{ Timeout() bool }
			if errors.As(err, &to) && to.Timeout() {
				d.idle()
				continue
			}
			log.Error().Err(err).Str("port", d.cfg.Port).Msg("Serial read failed")
			d.mu.Lock()
			d.err = fmt.Errorf("serial read: %w", err)
			d.mu.Unlock()
			return
		}
		if n == 0 {
			d.idle()
			continue
		}
		if d.observe != nil {
			d.observe("rx", n)
		}
		d.handle(buf[:n])
	}
}

// handle processes one chunk from the hardware.
func (d *Driver) handle(chunk []byte) {
	added := false
	defer func() {
		if added {
			d.signal()
		}
	}()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.relay != nil && d.relay.Active() {
		if out := d.rewriter.Feed(chunk); len(out) > 0 {
			d.acc = append(d.acc, out...)
			d.lineLen = 0
			added = true
		}
		return
	}
	if d.busy {
		log.Debug().Int("bytes", len(chunk)).Msg("Dropping serial input while a command runs")
		return
	}

	var echo bytes.Buffer
	for _, k := range d.decoder.Feed(chunk) {
		if d.editLocked(k, &echo) {
			added = true
		}
	}
	if echo.Len() > 0 {
		_ = d.writeLocked(echo.Bytes())
	}
}

// idle runs when a read times out. Escape prefixes are only carried within
// one burst of input: a lone ESC followed by silence is the Escape key.
func (d *Driver) idle() {
	added := false
	defer func() {
		if added {
			d.signal()
		}
	}()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.relay != nil && d.relay.Active() {
		if held := d.rewriter.Flush(); len(held) > 0 {
			d.acc = append(d.acc, held...)
			d.lineLen = 0
			added = true
		}
		return
	}
	if !d.decoder.Pending() {
		return
	}
	keys := d.decoder.Flush()
	if d.busy {
		return
	}
	var echo bytes.Buffer
	for _, k := range keys {
		if d.editLocked(k, &echo) {
			added = true
		}
	}
	if echo.Len() > 0 {
		_ = d.writeLocked(echo.Bytes())
	}
}

func (d *Driver) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Driver) layoutLocked() vt100.Layout {
	return vt100.NewLayout(d.prompt, d.cfg.Width)
}

func (d *Driver) tailLocked() []byte {
	return d.acc[len(d.acc)-d.lineLen:]
}

func (d *Driver) setTailLocked(line []byte) {
	d.acc = append(d.acc[:len(d.acc)-d.lineLen], line...)
	d.lineLen = len(line)
}

// editLocked applies one key in editing mode and reports whether a complete
// line was added to the accumulator.
func (d *Driver) editLocked(k vt100.Key, echo *bytes.Buffer) bool {
	l := d.layoutLocked()
	switch {
	case k.Code == vt100.KeyEnter:
		line := string(d.tailLocked())
		d.acc = append(d.acc, '\r')
		d.lineLen = 0
		d.shownCol = 0
		echo.WriteString("\r\n")
		d.history.Accept(line)
		return true

	case k.Ctrl('c'):
		d.setTailLocked(nil)
		d.shownCol = 0
		d.history.Accept("")
		echo.WriteString("^C\r\n")
		echo.WriteString(d.prompt)
		return false

	case k.Code == vt100.KeyBackspace:
		tail := []rune(string(d.tailLocked()))
		if len(tail) == 0 {
			return false
		}
		last := tail[len(tail)-1]
		tail = tail[:len(tail)-1]
		d.setTailLocked([]byte(string(tail)))
		oldCol := d.shownCol
		d.shownCol = vt100.Columns(tail)
		if l.Col(oldCol) == 0 {
			// The cursor sits at the start of a wrapped row; "\b" cannot
			// reach the previous row.
			col, _ := l.Refresh(echo, d.prompt, tail, oldCol, len(tail))
			d.shownCol = col
			return false
		}
		w := vt100.Columns([]rune{last})
		echo.WriteString(strings.Repeat("\b", w) + strings.Repeat(" ", w) + strings.Repeat("\b", w))
		return false

	case k.Code == vt100.KeyTab:
		d.completeLocked(echo)
		return false

	case k.Code == vt100.KeyUp || k.Code == vt100.KeyDown:
		d.recallLocked(k.Code == vt100.KeyUp, echo)
		return false

	case k.Printable():
		b := utf8.AppendRune(nil, k.Rune)
		d.acc = append(d.acc, b...)
		d.lineLen += len(b)
		d.shownCol += vt100.Columns([]rune{k.Rune})
		echo.Write(b)
		if l.Col(d.shownCol) == 0 {
			echo.WriteString("\r\n")
		}
		return false
	}

	log.Debug().Str("key", k.String()).Msg("Ignoring key on serial line")
	return false
}

// recallLocked substitutes the previous or next history entry for the line
// being typed.
func (d *Driver) recallLocked(up bool, echo *bytes.Buffer) {
	tail := string(d.tailLocked())
	d.history.Update(tail)

	var line string
	var ok bool
	if up {
		line, ok = d.history.Previous()
	} else {
		line, ok = d.history.Next()
	}
	if !ok {
		echo.WriteByte(vt100.BEL)
		return
	}
	d.redrawLocked([]rune(line), echo)
}

func (d *Driver) completeLocked(echo *bytes.Buffer) {
	c := lineeditor.CompleteLine(d.completer, string(d.tailLocked()))
	if c.Insert == "" && len(c.Candidates) == 0 {
		echo.WriteByte(vt100.BEL)
		return
	}
	line := []rune(string(d.tailLocked()) + c.Insert)
	if len(c.Candidates) == 0 {
		d.redrawLocked(line, echo)
		return
	}

	d.setTailLocked([]byte(string(line)))
	echo.WriteString("\r\n")
	echo.WriteString(lineeditor.FormatCandidates(c.Candidates, d.cfg.Width))
	d.shownCol = 0
	d.redrawLocked(line, echo)
}

// redrawLocked replaces the unfinished line with line and rewrites the
// display.
func (d *Driver) redrawLocked(line []rune, echo *bytes.Buffer) {
	d.setTailLocked([]byte(string(line)))
	col, _ := d.layoutLocked().Refresh(echo, d.prompt, line, d.shownCol, len(line))
	d.shownCol = col
}

// ReadLine blocks until a line ending in one of delimiters has been
// submitted and returns it without the delimiter. Bytes after the delimiter
// stay buffered for the next call.
func (d *Driver) ReadLine(ctx context.Context, delimiters string) (string, error) {
	for {
		if line, ok := d.takeLine(delimiters); ok {
			return line, nil
		}
		if err := d.wait(ctx); err != nil {
			// A line may have landed just before the reader stopped.
			if line, ok := d.takeLine(delimiters); ok {
				return line, nil
			}
			return "", err
		}
	}
}

func (d *Driver) takeLine(delimiters string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	done := len(d.acc) - d.lineLen
	i := bytes.IndexAny(d.acc[:done], delimiters)
	if i < 0 {
		return "", false
	}
	line := string(d.acc[:i])
	d.acc = append(d.acc[:0], d.acc[i+1:]...)
	return line, true
}

// ReadRawBytes blocks until the accumulator is non-empty and drains it.
func (d *Driver) ReadRawBytes(ctx context.Context) ([]byte, error) {
	for {
		if out := d.drain(); len(out) > 0 {
			return out, nil
		}
		if err := d.wait(ctx); err != nil {
			if out := d.drain(); len(out) > 0 {
				return out, nil
			}
			return nil, err
		}
	}
}

func (d *Driver) drain() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.acc
	d.acc = nil
	d.lineLen = 0
	return out
}

func (d *Driver) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.wake:
		return nil
	case <-d.doneCh:
		if err := d.Err(); err != nil {
			return err
		}
		return ErrClosed
	}
}

// Prompt writes p and makes it the prompt used for redraws. Any unfinished
// line is echoed after it.
func (d *Driver) Prompt(p string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.prompt = p
	tail := d.tailLocked()
	d.shownCol = vt100.Columns([]rune(string(tail)))
	return d.writeLocked(append([]byte(p), tail...))
}

// Write sends command output to the line, translating bare LF to CRLF.
func (d *Driver) Write(p []byte) (int, error) {
	out := make([]byte, 0, len(p)+8)
	for i, c := range p {
		if c == '\n' && (i == 0 || p[i-1] != '\r') {
			out = append(out, '\r')
		}
		out = append(out, c)
	}
	if err := d.writeLocked(out); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteRaw sends p unchanged.
func (d *Driver) WriteRaw(p []byte) error {
	return d.writeLocked(p)
}

// writeLocked writes to the port under writeMu. Callers may hold mu.
func (d *Driver) writeLocked(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	select {
	case <-d.closeCh:
		return ErrClosed
	default:
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	written := 0
	for written < len(p) {
		n, err := d.port.Write(p[written:])
		if err != nil {
			log.Error().Err(err).Str("port", d.cfg.Port).Msg("Serial write failed")
			return fmt.Errorf("serial write: %w", err)
		}
		if n == 0 {
			return errors.New("serial write returned 0 bytes without error")
		}
		written += n
	}
	if d.observe != nil {
		d.observe("tx", written)
	}
	return nil
}

// BeginCommand marks a command as running; input is dropped until
// EndCommand unless a relay is active.
func (d *Driver) BeginCommand() {
	d.mu.Lock()
	d.busy = true
	d.mu.Unlock()
}

// EndCommand clears the command-in-progress guard.
func (d *Driver) EndCommand() {
	d.mu.Lock()
	d.busy = false
	d.mu.Unlock()
}

// AttachRelay routes input through r while r is active. Passing nil
// detaches.
func (d *Driver) AttachRelay(r RelayState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.relay = r
	d.decoder.Flush()
	d.rewriter.Flush()
}

// ClearBuffers discards buffered input and any partial escape sequence.
func (d *Driver) ClearBuffers() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acc = nil
	d.lineLen = 0
	d.shownCol = 0
	d.decoder.Flush()
	d.rewriter.Flush()
	select {
	case <-d.wake:
	default:
	}
}

// ResetHistory forgets all recalled lines.
func (d *Driver) ResetHistory() {
	d.history.Clear()
}

// Err returns the error that stopped the reader, if any.
func (d *Driver) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Close stops the reader and closes the port. It is safe to call multiple
// times.
func (d *Driver) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.closeCh)
		// Closing the port unblocks an in-flight Read.
		if cerr := d.port.Close(); cerr != nil {
			err = fmt.Errorf("serial close: %w", cerr)
		}
		<-d.doneCh
	})
	return err
}
