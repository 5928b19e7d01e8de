package vt100

import (
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

// maxEscapeLen bounds how long an unterminated escape sequence is held
// before it is discarded as garbage.
const maxEscapeLen = 32

var ss3Keys = map[byte]KeyCode{
	'P': KeyF1,
	'Q': KeyF2,
	'R': KeyF3,
	'S': KeyF4,
	// VT100+ forms some serial terminals send for F5 through F12.
	'T': KeyF5,
	'U': KeyF6,
	'V': KeyF7,
	'W': KeyF8,
	'X': KeyF9,
	'Y': KeyF10,
	'Z': KeyF11,
	'[': KeyF12,
	'A': KeyUp,
	'B': KeyDown,
	'C': KeyRight,
	'D': KeyLeft,
	'H': KeyHome,
	'F': KeyEnd,
}

var shortFunctionKeys = map[byte]KeyCode{
	'5': KeyF5,
	'6': KeyF6,
	'7': KeyF7,
	'8': KeyF8,
	'9': KeyF9,
	'0': KeyF10,
	'*': KeyF11,
	'(': KeyF12,
}

var csiFinalKeys = map[byte]KeyCode{
	'A': KeyUp,
	'B': KeyDown,
	'C': KeyRight,
	'D': KeyLeft,
	'H': KeyHome,
	'F': KeyEnd,
	'P': KeyF1,
	'Q': KeyF2,
	'R': KeyF3,
	'S': KeyF4,
}

var csiTildeKeys = map[int]KeyCode{
	1:  KeyHome,
	3:  KeyDelete,
	4:  KeyEnd,
	7:  KeyHome,
	8:  KeyEnd,
	11: KeyF1,
	12: KeyF2,
	13: KeyF3,
	14: KeyF4,
	15: KeyF5,
	17: KeyF6,
	18: KeyF7,
	19: KeyF8,
	20: KeyF9,
	21: KeyF10,
	23: KeyF11,
	24: KeyF12,
}

// Decoder converts raw terminal input into key events. Input may be fed in
// arbitrary chunks; escape sequences and UTF-8 runes split across chunks are
// held until they complete.
type Decoder struct {
	buf       []byte
	lastWasCR bool
}

// Feed decodes chunk and returns the complete key events it produced.
func (d *Decoder) Feed(chunk []byte) []Key {
	d.buf = append(d.buf, chunk...)
	var keys []Key
	i := 0
	for i < len(d.buf) {
		k, n, ok := d.decodeOne(d.buf[i:])
		if n == 0 {
			break
		}
		i += n
		if ok {
			keys = append(keys, k)
		}
	}
	d.buf = append(d.buf[:0], d.buf[i:]...)
	if len(d.buf) > maxEscapeLen {
		d.buf = d.buf[:0]
	}
	return keys
}

// Pending reports whether a partial sequence is being held.
func (d *Decoder) Pending() bool {
	return len(d.buf) > 0
}

// Flush returns whatever is held as best-effort keys. A lone ESC becomes the
// Escape key; other partial sequences are dropped.
func (d *Decoder) Flush() []Key {
	if len(d.buf) == 0 {
		return nil
	}
	var keys []Key
	if d.buf[0] == ESC && len(d.buf) == 1 {
		keys = append(keys, Key{Code: KeyEscape})
	}
	d.buf = d.buf[:0]
	return keys
}

// decodeOne decodes the key at the start of b. n is the number of bytes
// consumed; n == 0 means b holds an incomplete sequence. ok is false when the
// consumed bytes do not map to a key.
func (d *Decoder) decodeOne(b []byte) (k Key, n int, ok bool) {
	c := b[0]
	if d.lastWasCR {
		d.lastWasCR = false
		if c == LF {
			return Key{}, 1, false
		}
	}

	switch {
	case c == ESC:
		return decodeEscape(b)
	case c == CR:
		d.lastWasCR = true
		return Key{Code: KeyEnter}, 1, true
	case c == LF:
		return Key{Code: KeyEnter}, 1, true
	case c == DEL || c == BS:
		return Key{Code: KeyBackspace}, 1, true
	case c == TAB:
		return Key{Code: KeyTab}, 1, true
	case c == NUL:
		return Key{}, 1, false
	case c < 0x20:
		return Key{Code: KeyRune, Mod: ModCtrl, Rune: toLower(rune(c) + 0x40)}, 1, true
	case c < utf8.RuneSelf:
		return RuneKey(rune(c)), 1, true
	}

	if !utf8.FullRune(b) {
		return Key{}, 0, false
	}
	r, size := utf8.DecodeRune(b)
	if r == utf8.RuneError {
		return Key{}, size, false
	}
	return RuneKey(r), size, true
}

func decodeEscape(b []byte) (Key, int, bool) {
	if len(b) < 2 {
		return Key{}, 0, false
	}
	switch c := b[1]; {
	case c == '[':
		return decodeCSI(b)
	case c == 'O':
		if len(b) < 3 {
			return Key{}, 0, false
		}
		code, ok := ss3Keys[b[2]]
		return Key{Code: code}, 3, ok
	case c == ESC:
		return Key{Code: KeyEscape}, 1, true
	default:
		if code, ok := shortFunctionKeys[c]; ok {
			return Key{Code: code}, 2, true
		}
		if c >= 0x20 && c < DEL {
			return Key{Code: KeyRune, Mod: ModAlt, Rune: rune(c)}, 2, true
		}
		return Key{Code: KeyEscape}, 1, true
	}
}

// decodeCSI handles ESC [ params final. Modifier parameters ("1;5A") are
// reported through Mod.
func decodeCSI(b []byte) (Key, int, bool) {
	end := -1
	for i := 2; i < len(b); i++ {
		if b[i] >= 0x40 && b[i] <= 0x7e {
			end = i
			break
		}
		if i >= maxEscapeLen {
			return Key{}, i, false
		}
	}
	if end < 0 {
		return Key{}, 0, false
	}

	params := strings.Split(string(b[2:end]), ";")
	final := b[end]
	var key Key
	ok := false
	if final == '~' {
		if num, err := strconv.Atoi(params[0]); err == nil {
			key.Code, ok = csiTildeKeys[num]
		}
	} else {
		key.Code, ok = csiFinalKeys[final]
	}
	if ok && len(params) > 1 {
		key.Mod = xtermModifier(params[1])
	}
	return key, end + 1, ok
}

// xtermModifier decodes the xterm modifier parameter (1 + bitmask).
func xtermModifier(p string) Modifier {
	v, err := strconv.Atoi(p)
	if err != nil || v < 2 {
		return 0
	}
	v--
	var m Modifier
	if v&1 != 0 {
		m |= ModShift
	}
	if v&2 != 0 {
		m |= ModAlt
	}
	if v&4 != 0 {
		m |= ModCtrl
	}
	return m
}

// ReadKeys decodes r into out until r returns an error, then closes out.
// A lone ESC at the end of a read is reported as the Escape key, since
// terminals send multi-byte sequences in a single write.
func ReadKeys(r io.Reader, out chan<- Key) error {
	defer close(out)
	var dec Decoder
	buf := make([]byte, 256)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, k := range dec.Feed(buf[:n]) {
				out <- k
			}
			if len(dec.buf) == 1 && dec.buf[0] == ESC {
				for _, k := range dec.Flush() {
					out <- k
				}
			}
		}
		if err != nil {
			for _, k := range dec.Flush() {
				out <- k
			}
			return err
		}
	}
}
