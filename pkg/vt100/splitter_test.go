package vt100

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitter_Feed(t *testing.T) {
	tests := []struct {
		name     string
		chunks   [][]byte
		expected [][]byte
	}{
		{
			name:     "plain text passes through",
			chunks:   [][]byte{[]byte("login: ")},
			expected: [][]byte{[]byte("login: ")},
		},
		{
			name:     "csi split after ESC",
			chunks:   [][]byte{[]byte("abc\x1b"), []byte("[2Jdef")},
			expected: [][]byte{[]byte("abc"), []byte("\x1b[2Jdef")},
		},
		{
			name:     "csi split inside params",
			chunks:   [][]byte{[]byte("\x1b[1;3"), []byte("1mred")},
			expected: [][]byte{{}, []byte("\x1b[1;31mred")},
		},
		{
			name:     "utf8 rune split",
			chunks:   [][]byte{[]byte("caf\xc3"), []byte("\xa9!")},
			expected: [][]byte{[]byte("caf"), []byte("é!")},
		},
		{
			name:     "complete sequence at end is not held",
			chunks:   [][]byte{[]byte("x\x1b[0m")},
			expected: [][]byte{[]byte("x\x1b[0m")},
		},
		{
			name:     "osc title waits for BEL",
			chunks:   [][]byte{[]byte("\x1b]0;bmc"), []byte("\x07$ ")},
			expected: [][]byte{{}, []byte("\x1b]0;bmc\x07$ ")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Splitter
			for i, chunk := range tt.chunks {
				got := s.Feed(chunk)
				assert.Equal(t, string(tt.expected[i]), string(got), "chunk %d", i)
			}
			assert.Empty(t, s.Flush())
		})
	}
}

func TestSplitter_ReleasesOversizedTail(t *testing.T) {
	var s Splitter
	junk := append([]byte{0x1B, '['}, bytes.Repeat([]byte{'1'}, 40)...)
	assert.Equal(t, junk, s.Feed(junk))
	assert.Empty(t, s.Flush())
}

// TestSplitter_PreservesStream checks that any chunking of a byte stream
// reassembles to the original bytes.
func TestSplitter_PreservesStream(t *testing.T) {
	stream := []byte("\x1b[2J\x1b[Hready\r\n\x1bOP caf\xc3\xa9 \x1b[1;32mok\x1b[0m\r\n")
	for size := 1; size <= len(stream); size++ {
		var s Splitter
		var got []byte
		for i := 0; i < len(stream); i += size {
			end := min(i+size, len(stream))
			got = append(got, s.Feed(stream[i:end])...)
		}
		got = append(got, s.Flush()...)
		assert.Equal(t, stream, got, "chunk size %d", size)
	}
}

func TestRewriteFunctionKeys(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected []byte
	}{
		{"f5", []byte{0x1B, 'O', 'T'}, []byte{0x1B, '5'}},
		{"f8", []byte{0x1B, 'O', 'W'}, []byte{0x1B, '8'}},
		{"f10", []byte{0x1B, 'O', 'Y'}, []byte{0x1B, '0'}},
		{"f11", []byte{0x1B, 'O', 'Z'}, []byte{0x1B, '*'}},
		{"f12", []byte{0x1B, 'O', '['}, []byte{0x1B, '('}},
		{"f1 untouched", []byte{0x1B, 'O', 'P'}, []byte{0x1B, 'O', 'P'}},
		{"mixed", []byte("a\x1bOVb"), []byte("a\x1b7b")},
		{"truncated", []byte{0x1B, 'O'}, []byte{0x1B, 'O'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RewriteFunctionKeys(tt.input))
		})
	}
}

func TestRewriter_CarriesPrefix(t *testing.T) {
	var r Rewriter
	assert.Equal(t, []byte("x"), r.Feed([]byte("x\x1b")))
	assert.Empty(t, r.Feed([]byte("O")))
	assert.Equal(t, []byte{0x1B, '9', 'y'}, r.Feed([]byte("Xy")))
	assert.Empty(t, r.Flush())

	assert.Empty(t, r.Feed([]byte{0x1B}))
	assert.Equal(t, []byte{0x1B}, r.Flush())
}
