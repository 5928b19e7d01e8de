package lineeditor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chassis-cli/pkg/history"
)

const (
	keyUp    = "\x1b[A"
	keyDown  = "\x1b[B"
	keyLeft  = "\x1b[D"
	keyRight = "\x1b[C"
	keyDel   = "\x1b[3~"
)

func newTestEditor(input string, width int) (*Editor, *bytes.Buffer) {
	var out bytes.Buffer
	ed := New(strings.NewReader(input), &out, Options{
		Prompt:  "WcsCli# ",
		History: history.New(history.DefaultCapacity),
		Width:   width,
	})
	return ed, &out
}

func TestReadLine_Basic(t *testing.T) {
	ed, out := newTestEditor("getbladeinfo -i 1\r", 80)

	line, err := ed.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "getbladeinfo -i 1", line)
	assert.Equal(t, []string{"getbladeinfo -i 1"}, ed.History().Entries())
	assert.True(t, strings.HasPrefix(out.String(), "WcsCli# "))
	assert.True(t, strings.HasSuffix(out.String(), "\r\n"))
}

func TestReadLine_TypeAheadSurvives(t *testing.T) {
	ed, _ := newTestEditor("one\rtwo\r", 80)
	ctx := context.Background()

	first, err := ed.ReadLine(ctx)
	require.NoError(t, err)
	second, err := ed.ReadLine(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, []string{first, second})

	_, err = ed.ReadLine(ctx)
	assert.ErrorIs(t, err, io.EOF)
	_, err = ed.ReadLine(ctx)
	assert.ErrorIs(t, err, io.EOF, "EOF is sticky")
}

func TestReadLine_Editing(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"backspace", "statuz\x7fs\r", "status"},
		{"left then insert", "helo" + keyLeft + "l\r", "hello"},
		{"delete under cursor", "abXc" + keyLeft + keyLeft + keyDel + "\r", "abc"},
		{"home and end", "bc\x1b[Ha\x1b[Fd\r", "abcd"},
		{"ctrl+a ctrl+e", "bc\x01a\x05d\r", "abcd"},
		{"ctrl+u kills to start", "junk\x15ok\r", "ok"},
		{"ctrl+k kills to end", "okjunk" + strings.Repeat(keyLeft, 4) + "\x0b\r", "ok"},
		{"ctrl+w deletes word", "set power off\x17on\r", "set power on"},
		{"right at end is a no-op", "a" + keyRight + keyRight + "b\r", "ab"},
		{"backspace at start is a no-op", "\x7f\x7fx\r", "x"},
		{"ctrl+d deletes forward", "ab" + keyLeft + "\x04\r", "a"},
		{"unicode", "café\r", "café"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ed, _ := newTestEditor(tt.input, 80)
			line, err := ed.ReadLine(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, line)
		})
	}
}

// TestReadLine_InsertDeleteIdentity inserts then deletes one character at
// every cursor position of a buffer that wraps across several rows.
func TestReadLine_InsertDeleteIdentity(t *testing.T) {
	text := "setbladeactivepowerlimit -i 12 -v 350"
	for _, width := range []int{10, 17, 80} {
		for pos := 0; pos <= len(text); pos++ {
			t.Run(fmt.Sprintf("w%d p%d", width, pos), func(t *testing.T) {
				input := text + strings.Repeat(keyLeft, len(text)-pos) + "Z\x7f\r"
				ed, _ := newTestEditor(input, width)
				line, err := ed.ReadLine(context.Background())
				require.NoError(t, err)
				assert.Equal(t, text, line)
			})
		}
	}
}

// chunkReader returns one chunk per Read, the way a terminal delivers
// separate keystrokes.
type chunkReader struct {
	chunks []string
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if r.chunks[0] == "" {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func TestReadLine_Escape(t *testing.T) {
	in := &chunkReader{chunks: []string{"half typed", "\x1b", "next\r"}}
	ed := New(in, io.Discard, Options{Prompt: "> "})

	line, err := ed.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", line)
	assert.Equal(t, 0, ed.History().Len())

	line, err = ed.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "next", line)
}

func TestReadLine_CtrlCIsCancellation(t *testing.T) {
	ed, out := newTestEditor("abc\x03def\r", 80)

	line, err := ed.ReadLine(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, "", line)
	assert.Contains(t, out.String(), "^C")
	assert.Equal(t, 0, ed.History().Len())

	line, err = ed.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "def", line)
}

func TestReadLine_ContextCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	ed := New(pr, io.Discard, Options{Prompt: "> "})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := ed.ReadLine(ctx)
		errCh <- err
	}()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("ReadLine did not return after cancel")
	}
}

func TestReadLine_CtrlDOnEmptyLine(t *testing.T) {
	ed, _ := newTestEditor("\x04", 80)
	_, err := ed.ReadLine(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadLine_HistoryNavigation(t *testing.T) {
	ring := history.New(history.DefaultCapacity)
	ring.Append("first")
	ring.Append("second")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"up once", keyUp + "\r", "second"},
		{"up twice", keyUp + keyUp + "\r", "first"},
		{"up past oldest", keyUp + keyUp + keyUp + "\r", "first"},
		{"up then down restores draft", "dra" + keyUp + keyDown + "ft\r", "draft"},
		{"ctrl+p", "\x10\r", "second"},
		{"edit recalled entry", keyUp + "!\r", "second!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := history.New(history.DefaultCapacity)
			for _, e := range ring.Entries() {
				h.Append(e)
			}
			var out bytes.Buffer
			ed := New(strings.NewReader(tt.input), &out, Options{Prompt: "> ", History: h})
			line, err := ed.ReadLine(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, line)
		})
	}
}

func TestReadLine_TabCompletion(t *testing.T) {
	var out bytes.Buffer
	ed := New(strings.NewReader("getc\t\r"), &out, Options{
		Prompt:    "WcsCli# ",
		Completer: NewWordCompleter([]string{"getchassisinfo", "getchassishealth"}),
	})

	line, err := ed.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "getchassis", line)
	assert.Contains(t, out.String(), "health  info\r\n")
	assert.Contains(t, out.String(), "WcsCli# getchassis", "prompt and extended buffer are restored")
}

func TestReadLine_TabSingleMatch(t *testing.T) {
	ed := New(strings.NewReader("help con\t\r"), io.Discard, Options{
		Completer: NewWordCompleter([]string{"console", "shell"}),
	})
	line, err := ed.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "help console", line)
}

func TestReadKey_PassThrough(t *testing.T) {
	ed, out := newTestEditor("a\x1bOP\x18", 80)
	ctx := context.Background()

	var got []string
	for i := 0; i < 3; i++ {
		k, err := ed.ReadKey(ctx)
		require.NoError(t, err)
		got = append(got, k.String())
	}
	assert.Equal(t, []string{"a", "F1", "Ctrl+x"}, got)
	assert.Empty(t, out.String(), "pass-through mode does not echo")
}

func TestInsertDeleteRunesClamp(t *testing.T) {
	buf := []rune("abc")
	assert.Equal(t, "abcX", string(insertRunes(buf, 99, []rune("X"))))
	assert.Equal(t, "Xabc", string(insertRunes(buf, -2, []rune("X"))))
	assert.Equal(t, "bc", string(deleteRunes([]rune("abc"), -1, 2)))
	assert.Equal(t, "abc", string(deleteRunes([]rune("abc"), 5, 1)))
}
