// Package vt100 translates between operator key events and the byte
// sequences understood by a VT100-class remote console.
//
// The package has four parts:
//   - Encoder: key events to console bytes, with a pending-line accumulator
//     that is flushed on Enter.
//   - Decoder: raw terminal bytes to key events.
//   - Splitter: holds back escape sequences that straddle read boundaries so
//     inbound console output is displayed in whole sequences.
//   - Layout: cursor arithmetic and redraw for prompts that wrap across
//     several physical lines.
package vt100

import "fmt"

// Control bytes used by the codec.
const (
	NUL = 0x00
	ETX = 0x03 // Ctrl+C
	BEL = 0x07
	BS  = 0x08
	TAB = 0x09
	LF  = 0x0A
	CR  = 0x0D
	CAN = 0x18 // Ctrl+X
	ESC = 0x1B
	DEL = 0x7F
)

// KeyCode identifies a logical key.
type KeyCode int

const (
	KeyRune KeyCode = iota
	KeyEnter
	KeyTab
	KeyBackspace
	KeyDelete
	KeyEscape
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyHome
	KeyEnd
	KeyF1
	KeyF2
	KeyF3
	KeyF4
	KeyF5
	KeyF6
	KeyF7
	KeyF8
	KeyF9
	KeyF10
	KeyF11
	KeyF12
)

var keyNames = map[KeyCode]string{
	KeyRune:      "Rune",
	KeyEnter:     "Enter",
	KeyTab:       "Tab",
	KeyBackspace: "Backspace",
	KeyDelete:    "Delete",
	KeyEscape:    "Escape",
	KeyUp:        "Up",
	KeyDown:      "Down",
	KeyLeft:      "Left",
	KeyRight:     "Right",
	KeyHome:      "Home",
	KeyEnd:       "End",
}

func (c KeyCode) String() string {
	if c >= KeyF1 && c <= KeyF12 {
		return fmt.Sprintf("F%d", int(c-KeyF1)+1)
	}
	if name, ok := keyNames[c]; ok {
		return name
	}
	return fmt.Sprintf("KeyCode(%d)", int(c))
}

// Modifier is a bit set of held modifier keys.
type Modifier uint8

const (
	ModCtrl Modifier = 1 << iota
	ModAlt
	ModShift
)

// Key is a single operator keystroke. Keys are immutable values produced by
// an input surface and consumed by the encoder or an editor.
type Key struct {
	Code KeyCode
	Mod  Modifier
	Rune rune
}

// Ctrl reports whether the key is Ctrl combined with the given letter.
func (k Key) Ctrl(letter rune) bool {
	return k.Code == KeyRune && k.Mod&ModCtrl != 0 && toLower(k.Rune) == toLower(letter)
}

// Printable reports whether the key carries a printable character with no
// Ctrl or Alt modifier.
func (k Key) Printable() bool {
	return k.Code == KeyRune && k.Mod&(ModCtrl|ModAlt) == 0 && k.Rune >= 0x20 && k.Rune != DEL
}

func (k Key) String() string {
	if k.Code != KeyRune {
		return k.Code.String()
	}
	prefix := ""
	if k.Mod&ModCtrl != 0 {
		prefix += "Ctrl+"
	}
	if k.Mod&ModAlt != 0 {
		prefix += "Alt+"
	}
	return prefix + string(k.Rune)
}

// RuneKey returns the key event for a printable character.
func RuneKey(r rune) Key {
	return Key{Code: KeyRune, Rune: r}
}

// CtrlKey returns the key event for Ctrl combined with a letter.
func CtrlKey(letter rune) Key {
	return Key{Code: KeyRune, Mod: ModCtrl, Rune: toLower(letter)}
}

// FunctionKey returns the key event for F1 through F12.
func FunctionKey(n int) Key {
	if n < 1 || n > 12 {
		return Key{Code: KeyRune}
	}
	return Key{Code: KeyF1 + KeyCode(n-1)}
}

func toLower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}

// LineEnding selects the terminator sent for Enter. The remote device class
// decides which one a console expects.
type LineEnding int

const (
	EndCR LineEnding = iota
	EndCRLF
)

// Bytes returns the terminator bytes.
func (le LineEnding) Bytes() []byte {
	if le == EndCRLF {
		return []byte{CR, LF}
	}
	return []byte{CR}
}

func (le LineEnding) String() string {
	if le == EndCRLF {
		return "crlf"
	}
	return "cr"
}
