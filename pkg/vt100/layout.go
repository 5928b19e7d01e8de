package vt100

import (
	"bytes"
	"fmt"
	"io"

	"github.com/mattn/go-runewidth"
)

// Layout holds the geometry needed to place a prompt and an edit buffer that
// may wrap across several physical rows.
type Layout struct {
	// PromptWidth is the display width of the prompt in columns.
	PromptWidth int
	// Width is the terminal width in columns.
	Width int
}

// NewLayout measures prompt and returns its layout for a terminal width
// columns wide.
func NewLayout(prompt string, width int) Layout {
	return Layout{PromptWidth: runewidth.StringWidth(prompt), Width: width}
}

func (l Layout) width() int {
	if l.Width < 1 {
		return 1
	}
	return l.Width
}

func (l Layout) abs(n int) int {
	if n < 0 {
		n = 0
	}
	p := l.PromptWidth
	if p < 0 {
		p = 0
	}
	return p + n
}

// LineOffset returns how many physical rows below the prompt row column
// offset n of the buffer falls, (P+n)/W. It never decreases as n grows.
func (l Layout) LineOffset(n int) int {
	return l.abs(n) / l.width()
}

// Row is an alias for LineOffset.
func (l Layout) Row(n int) int {
	return l.LineOffset(n)
}

// Col returns the physical column of buffer column offset n.
func (l Layout) Col(n int) int {
	return l.abs(n) % l.width()
}

// Rows returns the number of physical rows occupied by a buffer n columns
// wide, counting the row the cursor lands on after a forced wrap.
func (l Layout) Rows(n int) int {
	return l.LineOffset(n) + 1
}

// Columns returns the display width of text.
func Columns(text []rune) int {
	w := 0
	for _, r := range text {
		w += runewidth.RuneWidth(r)
	}
	return w
}

// Refresh redraws prompt and text and leaves the cursor before text[cursor].
// prevCol is the column offset at which the cursor was last placed, relative
// to the end of the prompt; the returned value is the new offset for the next
// call. The redraw moves up to the prompt row, erases everything below,
// rewrites prompt and text, forces the terminal's deferred wrap when the text
// ends exactly on a column boundary, and then repositions the cursor.
func (l Layout) Refresh(w io.Writer, prompt string, text []rune, prevCol, cursor int) (int, error) {
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(text) {
		cursor = len(text)
	}
	end := Columns(text)
	cur := Columns(text[:cursor])

	var b bytes.Buffer
	if up := l.Row(prevCol); up > 0 {
		fmt.Fprintf(&b, "\x1b[%dA", up)
	}
	b.WriteString("\r\x1b[J")
	b.WriteString(prompt)
	b.WriteString(string(text))
	if l.abs(end) > 0 && l.Col(end) == 0 {
		b.WriteString("\r\n")
	}

	if up := l.Row(end) - l.Row(cur); up > 0 {
		fmt.Fprintf(&b, "\x1b[%dA", up)
	}
	b.WriteByte('\r')
	if col := l.Col(cur); col > 0 {
		fmt.Fprintf(&b, "\x1b[%dC", col)
	}

	if _, err := w.Write(b.Bytes()); err != nil {
		return prevCol, err
	}
	return cur, nil
}

// MoveTo moves the cursor from buffer column offset from to offset to without
// redrawing.
func (l Layout) MoveTo(w io.Writer, from, to int) error {
	var b bytes.Buffer
	switch dr := l.Row(to) - l.Row(from); {
	case dr > 0:
		fmt.Fprintf(&b, "\x1b[%dB", dr)
	case dr < 0:
		fmt.Fprintf(&b, "\x1b[%dA", -dr)
	}
	b.WriteByte('\r')
	if col := l.Col(to); col > 0 {
		fmt.Fprintf(&b, "\x1b[%dC", col)
	}
	_, err := w.Write(b.Bytes())
	return err
}
