package lineeditor

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	"chassis-cli/pkg/history"
	"chassis-cli/pkg/vt100"
)

// ErrCancelled is returned by ReadLine and ReadKey when the operator presses
// Ctrl+C or the context is cancelled. It is a control-flow signal, not a
// failure: buffer and history are left consistent.
var ErrCancelled = errors.New("input cancelled")

// DefaultWidth is used when the terminal size cannot be determined.
const DefaultWidth = 80

// Options configures an Editor.
type Options struct {
	// Prompt is written at the start of every line.
	Prompt string
	// History is shared with other surfaces; nil gets a private ring.
	History *history.Ring
	// Completer is optional.
	Completer Completer
	// Width is the fallback terminal width.
	Width int
}

// Editor reads lines from a terminal with history and completion.
//
// A single goroutine decodes the input stream into keys for the lifetime of
// the Editor, so type-ahead between reads is preserved. ReadLine and ReadKey
// must not be called concurrently.
type Editor struct {
	prompt    string
	history   *history.Ring
	completer Completer
	width     int

	in   io.Reader
	out  io.Writer
	term *Terminal

	startOnce sync.Once
	keys      chan vt100.Key
	errc      chan error
	readErr   error

	buf      []rune
	cursor   int
	shownCol int
}

// New returns an Editor reading from in and writing to out. When in is an
// *os.File attached to a terminal the editor switches it to raw mode while
// reading.
func New(in io.Reader, out io.Writer, opts Options) *Editor {
	if opts.History == nil {
		opts.History = history.New(history.DefaultCapacity)
	}
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	e := &Editor{
		prompt:    opts.Prompt,
		history:   opts.History,
		completer: opts.Completer,
		width:     opts.Width,
		in:        in,
		out:       out,
		keys:      make(chan vt100.Key, 64),
		errc:      make(chan error, 1),
	}
	if f, ok := in.(*os.File); ok {
		if t := NewTerminal(f); t.IsTerminal() {
			e.term = t
		}
	}
	return e
}

// SetPrompt changes the prompt used by subsequent reads.
func (e *Editor) SetPrompt(prompt string) {
	e.prompt = prompt
}

// SetCompleter replaces the completion provider.
func (e *Editor) SetCompleter(c Completer) {
	e.completer = c
}

// History returns the ring the editor records accepted lines in.
func (e *Editor) History() *history.Ring {
	return e.history
}

// Terminal returns the underlying terminal, or nil when input is not a TTY.
func (e *Editor) Terminal() *Terminal {
	return e.term
}

func (e *Editor) start() {
	e.startOnce.Do(func() {
		go func() {
			e.errc <- vt100.ReadKeys(e.in, e.keys)
		}()
	})
}

// nextKey blocks for the next decoded key.
func (e *Editor) nextKey(ctx context.Context) (vt100.Key, error) {
	e.start()
	if e.readErr != nil {
		return vt100.Key{}, e.readErr
	}
	select {
	case <-ctx.Done():
		return vt100.Key{}, ErrCancelled
	case k, ok := <-e.keys:
		if ok {
			return k, nil
		}
		e.readErr = <-e.errc
		if e.readErr == nil {
			e.readErr = io.EOF
		}
		return vt100.Key{}, e.readErr
	}
}

func (e *Editor) layout() vt100.Layout {
	return vt100.NewLayout(e.prompt, e.term.Width(e.width))
}

func (e *Editor) enterRaw() func() {
	if e.term == nil {
		return func() {}
	}
	restore, err := e.term.Raw()
	if err != nil {
		log.Debug().Err(err).Msg("line editor running without raw mode")
	}
	return restore
}

// ReadKey returns the next key without any editing, for callers that relay
// keystrokes elsewhere. The terminal is raw for the duration of the call.
func (e *Editor) ReadKey(ctx context.Context) (vt100.Key, error) {
	restore := e.enterRaw()
	defer restore()
	return e.nextKey(ctx)
}

// ReadLine prints the prompt and edits one line until Enter, Escape or
// cancellation.
//
// Enter returns the buffer and records it in history. Escape clears the line
// and returns "". Ctrl+C and context cancellation return ErrCancelled. End of
// input, or Ctrl+D on an empty line, returns io.EOF.
func (e *Editor) ReadLine(ctx context.Context) (string, error) {
	restore := e.enterRaw()
	defer restore()

	e.buf = e.buf[:0]
	e.cursor = 0
	e.shownCol = 0
	if err := e.write(e.prompt); err != nil {
		return "", err
	}

	for {
		k, err := e.nextKey(ctx)
		if errors.Is(err, ErrCancelled) {
			e.abandon("\r\n")
			return "", ErrCancelled
		}
		if err != nil {
			e.abandon("\r\n")
			return "", err
		}

		line, done, err := e.dispatch(k)
		if done || err != nil {
			return line, err
		}
	}
}

// dispatch applies one key. done is true when the line is finished.
func (e *Editor) dispatch(k vt100.Key) (line string, done bool, err error) {
	switch {
	case k.Ctrl('c'):
		e.abandon("^C\r\n")
		return "", true, ErrCancelled
	case k.Ctrl('d'):
		if len(e.buf) == 0 {
			e.abandon("\r\n")
			return "", true, io.EOF
		}
		return "", false, e.deleteForward()
	case k.Ctrl('a'):
		return "", false, e.moveTo(0)
	case k.Ctrl('e'):
		return "", false, e.moveTo(len(e.buf))
	case k.Ctrl('b'):
		return "", false, e.moveTo(e.cursor - 1)
	case k.Ctrl('f'):
		return "", false, e.moveTo(e.cursor + 1)
	case k.Ctrl('u'):
		return "", false, e.killToStart()
	case k.Ctrl('k'):
		return "", false, e.killToEnd()
	case k.Ctrl('w'):
		return "", false, e.deleteWordBackward()
	case k.Ctrl('p'):
		return "", false, e.historyPrevious()
	case k.Ctrl('n'):
		return "", false, e.historyNext()
	}

	switch k.Code {
	case vt100.KeyEnter:
		line, err := e.submit()
		return line, true, err
	case vt100.KeyEscape:
		e.buf = e.buf[:0]
		e.cursor = 0
		if err := e.refresh(); err != nil {
			return "", true, err
		}
		e.abandon("\r\n")
		return "", true, nil
	case vt100.KeyBackspace:
		return "", false, e.backspace()
	case vt100.KeyDelete:
		return "", false, e.deleteForward()
	case vt100.KeyLeft:
		return "", false, e.moveTo(e.cursor - 1)
	case vt100.KeyRight:
		return "", false, e.moveTo(e.cursor + 1)
	case vt100.KeyHome:
		return "", false, e.moveTo(0)
	case vt100.KeyEnd:
		return "", false, e.moveTo(len(e.buf))
	case vt100.KeyUp:
		return "", false, e.historyPrevious()
	case vt100.KeyDown:
		return "", false, e.historyNext()
	case vt100.KeyTab:
		return "", false, e.complete()
	}

	if k.Printable() {
		return "", false, e.insert([]rune{k.Rune})
	}
	return "", false, nil
}

func (e *Editor) submit() (string, error) {
	if err := e.moveTo(len(e.buf)); err != nil {
		return "", err
	}
	if err := e.write("\r\n"); err != nil {
		return "", err
	}
	line := string(e.buf)
	e.history.Accept(line)
	return line, nil
}

// abandon ends the current line without recording it.
func (e *Editor) abandon(tail string) {
	_ = e.moveTo(len(e.buf))
	_ = e.write(tail)
	e.history.Accept("")
}

func (e *Editor) write(s string) error {
	_, err := io.WriteString(e.out, s)
	return err
}

func (e *Editor) refresh() error {
	col, err := e.layout().Refresh(e.out, e.prompt, e.buf, e.shownCol, e.cursor)
	if err != nil {
		return err
	}
	e.shownCol = col
	return nil
}

func (e *Editor) moveTo(pos int) error {
	pos = max(0, min(pos, len(e.buf)))
	if pos == e.cursor && e.shownCol == vt100.Columns(e.buf[:pos]) {
		return nil
	}
	e.cursor = pos
	to := vt100.Columns(e.buf[:pos])
	if err := e.layout().MoveTo(e.out, e.shownCol, to); err != nil {
		return err
	}
	e.shownCol = to
	return nil
}

func (e *Editor) insert(rs []rune) error {
	e.buf = insertRunes(e.buf, e.cursor, rs)
	e.cursor += len(rs)
	return e.refresh()
}

func (e *Editor) backspace() error {
	if e.cursor == 0 {
		return nil
	}
	e.buf = deleteRunes(e.buf, e.cursor-1, 1)
	e.cursor--
	return e.refresh()
}

func (e *Editor) deleteForward() error {
	if e.cursor >= len(e.buf) {
		return nil
	}
	e.buf = deleteRunes(e.buf, e.cursor, 1)
	return e.refresh()
}

func (e *Editor) killToStart() error {
	if e.cursor == 0 {
		return nil
	}
	e.buf = deleteRunes(e.buf, 0, e.cursor)
	e.cursor = 0
	return e.refresh()
}

func (e *Editor) killToEnd() error {
	if e.cursor >= len(e.buf) {
		return nil
	}
	e.buf = e.buf[:e.cursor]
	return e.refresh()
}

func (e *Editor) deleteWordBackward() error {
	start := e.cursor
	for start > 0 && e.buf[start-1] == ' ' {
		start--
	}
	for start > 0 && e.buf[start-1] != ' ' {
		start--
	}
	if start == e.cursor {
		return nil
	}
	e.buf = deleteRunes(e.buf, start, e.cursor-start)
	e.cursor = start
	return e.refresh()
}

func (e *Editor) historyPrevious() error {
	e.history.Update(string(e.buf))
	line, ok := e.history.Previous()
	if !ok {
		return nil
	}
	return e.replace(line)
}

func (e *Editor) historyNext() error {
	e.history.Update(string(e.buf))
	line, ok := e.history.Next()
	if !ok {
		return nil
	}
	return e.replace(line)
}

func (e *Editor) replace(line string) error {
	e.buf = append(e.buf[:0], []rune(line)...)
	e.cursor = len(e.buf)
	return e.refresh()
}

func (e *Editor) complete() error {
	c := CompleteLine(e.completer, string(e.buf[:e.cursor]))
	if c.Insert == "" && len(c.Candidates) == 0 {
		return nil
	}
	e.buf = insertRunes(e.buf, e.cursor, []rune(c.Insert))
	e.cursor += len([]rune(c.Insert))
	if len(c.Candidates) == 0 {
		return e.refresh()
	}

	if err := e.refresh(); err != nil {
		return err
	}
	if err := e.moveTo(len(e.buf)); err != nil {
		return err
	}
	listing := FormatCandidates(c.Candidates, e.layout().Width)
	if err := e.write("\r\n" + listing); err != nil {
		return err
	}
	e.shownCol = 0
	return e.refresh()
}

func insertRunes(buf []rune, at int, rs []rune) []rune {
	at = max(0, min(at, len(buf)))
	out := make([]rune, 0, len(buf)+len(rs))
	out = append(out, buf[:at]...)
	out = append(out, rs...)
	return append(out, buf[at:]...)
}

func deleteRunes(buf []rune, at, n int) []rune {
	if at < 0 {
		n += at
		at = 0
	}
	if n <= 0 || at >= len(buf) {
		return buf
	}
	end := min(at+n, len(buf))
	return append(buf[:at], buf[end:]...)
}

// String returns the current edit buffer.
func (e *Editor) String() string {
	return string(e.buf)
}
