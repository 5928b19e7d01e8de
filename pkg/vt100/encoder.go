package vt100

import "unicode/utf8"

var (
	seqF1to4  = [4]byte{0x50, 0x51, 0x52, 0x53}
	seqF5to12 = [8]byte{'5', '6', '7', '8', '9', '0', '*', '('}
)

var cursorFinal = map[KeyCode]byte{
	KeyUp:    'A',
	KeyDown:  'B',
	KeyRight: 'C',
	KeyLeft:  'D',
}

// Encoder turns key events into console bytes. Printable characters are held
// in a pending line until Enter flushes them together with the line
// terminator.
//
// An Encoder is owned by a single sender and is not safe for concurrent use.
type Encoder struct {
	pending []rune
	// rawCR is set when the previous EncodeRaw chunk ended in an expanded CR.
	rawCR bool
}

// NewEncoder returns an Encoder with an empty pending line.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode returns the bytes to transmit for k. terminate is true when k is the
// local force-terminate combination (Ctrl+X), which is never transmitted.
// Keys with no console mapping return an empty slice.
func (e *Encoder) Encode(k Key, le LineEnding) (out []byte, terminate bool) {
	if k.Code == KeyRune && k.Mod&ModCtrl != 0 {
		return e.encodeCtrl(k.Rune)
	}

	switch k.Code {
	case KeyRune:
		if !k.Printable() {
			return nil, false
		}
		e.pending = append(e.pending, k.Rune)
		return nil, false
	case KeyEnter:
		out = e.flush()
		return append(out, le.Bytes()...), false
	case KeyBackspace:
		if n := len(e.pending); n > 0 {
			e.pending = e.pending[:n-1]
			return nil, false
		}
		return []byte{DEL}, false
	case KeyTab:
		return []byte{TAB}, false
	case KeyEscape:
		return []byte{ESC}, false
	case KeyDelete:
		return []byte{ESC, '[', '3', '~'}, false
	case KeyUp, KeyDown, KeyRight, KeyLeft:
		return []byte{ESC, '[', cursorFinal[k.Code]}, false
	}

	if k.Code >= KeyF1 && k.Code <= KeyF4 {
		return []byte{ESC, 'O', seqF1to4[k.Code-KeyF1]}, false
	}
	if k.Code >= KeyF5 && k.Code <= KeyF12 {
		return []byte{ESC, seqF5to12[k.Code-KeyF5]}, false
	}
	return nil, false
}

func (e *Encoder) encodeCtrl(r rune) ([]byte, bool) {
	r = toLower(r)
	switch {
	case r == 'x':
		return nil, true
	case r >= 'a' && r <= 'z':
		return []byte{byte(r) & 0x1f}, false
	case r == '[' || r == '\\' || r == ']' || r == '^' || r == '_':
		return []byte{byte(r) & 0x1f}, false
	}
	return nil, false
}

func (e *Encoder) flush() []byte {
	if len(e.pending) == 0 {
		return make([]byte, 0, 2)
	}
	out := make([]byte, 0, len(e.pending)+2)
	for _, r := range e.pending {
		out = utf8.AppendRune(out, r)
	}
	e.pending = e.pending[:0]
	return out
}

// Pending returns the characters accumulated since the last Enter.
func (e *Encoder) Pending() string {
	return string(e.pending)
}

// Reset discards the pending line.
func (e *Encoder) Reset() {
	e.pending = e.pending[:0]
	e.rawCR = false
}

// EncodeRaw prepares bytes read from a byte-oriented surface for
// transmission. Ctrl+X terminates; bytes before it are still returned and
// bytes after it are dropped. In CRLF mode a bare CR is expanded to CR LF.
func (e *Encoder) EncodeRaw(b []byte, le LineEnding) (out []byte, terminate bool) {
	out = make([]byte, 0, len(b))
	for i, c := range b {
		if e.rawCR {
			e.rawCR = false
			if c == LF {
				continue
			}
		}
		switch c {
		case CAN:
			return out, true
		case CR:
			out = append(out, CR)
			if le != EndCRLF {
				continue
			}
			if i+1 < len(b) && b[i+1] == LF {
				continue
			}
			out = append(out, LF)
			e.rawCR = i+1 == len(b)
		default:
			out = append(out, c)
		}
	}
	return out, false
}
