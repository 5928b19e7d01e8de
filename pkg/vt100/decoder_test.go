package vt100

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoder_Feed(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected []Key
	}{
		{"ascii", []byte("hi"), []Key{RuneKey('h'), RuneKey('i')}},
		{"utf8", []byte("é"), []Key{RuneKey('é')}},
		{"enter cr", []byte{0x0D}, []Key{{Code: KeyEnter}}},
		{"crlf is one enter", []byte{0x0D, 0x0A}, []Key{{Code: KeyEnter}}},
		{"bare lf", []byte{0x0A}, []Key{{Code: KeyEnter}}},
		{"del", []byte{0x7F}, []Key{{Code: KeyBackspace}}},
		{"bs", []byte{0x08}, []Key{{Code: KeyBackspace}}},
		{"tab", []byte{0x09}, []Key{{Code: KeyTab}}},
		{"ctrl+c", []byte{0x03}, []Key{CtrlKey('c')}},
		{"ctrl+x", []byte{0x18}, []Key{CtrlKey('x')}},
		{"arrows", []byte("\x1b[A\x1b[B\x1b[C\x1b[D"), []Key{{Code: KeyUp}, {Code: KeyDown}, {Code: KeyRight}, {Code: KeyLeft}}},
		{"delete", []byte("\x1b[3~"), []Key{{Code: KeyDelete}}},
		{"home end csi", []byte("\x1b[H\x1b[F"), []Key{{Code: KeyHome}, {Code: KeyEnd}}},
		{"home end tilde", []byte("\x1b[1~\x1b[4~"), []Key{{Code: KeyHome}, {Code: KeyEnd}}},
		{"ss3 f1", []byte("\x1bOP"), []Key{FunctionKey(1)}},
		{"ss3 vt100+ f5", []byte("\x1bOT"), []Key{FunctionKey(5)}},
		{"xterm f5", []byte("\x1b[15~"), []Key{FunctionKey(5)}},
		{"xterm f12", []byte("\x1b[24~"), []Key{FunctionKey(12)}},
		{"short f10", []byte{0x1B, '0'}, []Key{FunctionKey(10)}},
		{"short f12", []byte{0x1B, '('}, []Key{FunctionKey(12)}},
		{"ctrl+up", []byte("\x1b[1;5A"), []Key{{Code: KeyUp, Mod: ModCtrl}}},
		{"alt+b", []byte{0x1B, 'b'}, []Key{{Code: KeyRune, Mod: ModAlt, Rune: 'b'}}},
		{"double escape", []byte{0x1B, 0x1B, '[', 'A'}, []Key{{Code: KeyEscape}, {Code: KeyUp}}},
		{"unknown csi is dropped", []byte("\x1b[99zq"), []Key{RuneKey('q')}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Decoder
			assert.Equal(t, tt.expected, d.Feed(tt.input))
			assert.False(t, d.Pending())
		})
	}
}

func TestDecoder_SplitSequences(t *testing.T) {
	var d Decoder
	assert.Empty(t, d.Feed([]byte{0x1B}))
	assert.True(t, d.Pending())
	assert.Empty(t, d.Feed([]byte{'['}))
	assert.Equal(t, []Key{{Code: KeyUp}}, d.Feed([]byte{'A'}))

	// A multi-byte rune split across reads.
	e := []byte("é")
	assert.Empty(t, d.Feed(e[:1]))
	assert.Equal(t, []Key{RuneKey('é')}, d.Feed(e[1:]))

	// CR then LF in separate reads.
	assert.Equal(t, []Key{{Code: KeyEnter}}, d.Feed([]byte{0x0D}))
	assert.Empty(t, d.Feed([]byte{0x0A}))
}

func TestDecoder_FlushLoneEscape(t *testing.T) {
	var d Decoder
	assert.Empty(t, d.Feed([]byte{0x1B}))
	assert.Equal(t, []Key{{Code: KeyEscape}}, d.Flush())
	assert.False(t, d.Pending())

	assert.Empty(t, d.Feed([]byte{0x1B, '['}))
	assert.Empty(t, d.Flush(), "partial CSI is dropped")
}

func TestReadKeys(t *testing.T) {
	out := make(chan Key, 16)
	err := ReadKeys(bytes.NewReader([]byte("a\x1b[Bb\r")), out)
	require.Error(t, err)

	var keys []Key
	for k := range out {
		keys = append(keys, k)
	}
	assert.Equal(t, []Key{RuneKey('a'), {Code: KeyDown}, RuneKey('b'), {Code: KeyEnter}}, keys)
}

func TestReadKeys_TrailingEscape(t *testing.T) {
	out := make(chan Key, 4)
	_ = ReadKeys(bytes.NewReader([]byte{0x1B}), out)
	k, ok := <-out
	require.True(t, ok)
	assert.Equal(t, Key{Code: KeyEscape}, k)
}

// TestDecoder_EncoderRoundTrip decodes what the encoder emits for the keys
// that have an unambiguous wire form.
func TestDecoder_EncoderRoundTrip(t *testing.T) {
	keys := []Key{{Code: KeyUp}, {Code: KeyDown}, {Code: KeyLeft}, {Code: KeyRight}, {Code: KeyDelete}, {Code: KeyTab}, CtrlKey('c')}
	for n := 1; n <= 12; n++ {
		keys = append(keys, FunctionKey(n))
	}
	for _, k := range keys {
		wire, _ := NewEncoder().Encode(k, EndCR)
		var d Decoder
		assert.Equal(t, []Key{k}, d.Feed(wire), "key %v", k)
	}
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "F5", FunctionKey(5).String())
	assert.Equal(t, "Ctrl+x", CtrlKey('X').String())
	assert.Equal(t, "Up", Key{Code: KeyUp}.String())
	assert.True(t, CtrlKey('c').Ctrl('C'))
	assert.False(t, RuneKey('c').Ctrl('c'))
}
