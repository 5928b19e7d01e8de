package vt100

import (
	"bytes"
	"unicode/utf8"
)

// Splitter cuts inbound console output at safe boundaries. Remote output may
// end a read in the middle of an escape sequence or a multi-byte rune; the
// incomplete tail is held back and prepended to the next chunk.
type Splitter struct {
	held []byte
}

// Feed returns the longest prefix of held+chunk that does not end inside an
// escape sequence or rune. Tails longer than 32 bytes are released as-is.
func (s *Splitter) Feed(chunk []byte) []byte {
	data := append(s.held, chunk...)
	s.held = nil

	cut := incompleteTail(data)
	if cut < 0 || len(data)-cut > maxEscapeLen {
		return data
	}
	s.held = append([]byte(nil), data[cut:]...)
	return data[:cut]
}

// Flush returns any held bytes.
func (s *Splitter) Flush() []byte {
	out := s.held
	s.held = nil
	return out
}

// incompleteTail returns the offset where an unfinished escape sequence or
// rune begins, or -1 when data ends cleanly.
func incompleteTail(data []byte) int {
	if i := bytes.LastIndexByte(data, ESC); i >= 0 && !escapeComplete(data[i:]) {
		return i
	}
	for i := len(data) - 1; i >= 0 && i >= len(data)-utf8.UTFMax; i-- {
		if data[i]&0xC0 == 0x80 {
			continue
		}
		if data[i] >= utf8.RuneSelf && !utf8.FullRune(data[i:]) {
			return i
		}
		break
	}
	return -1
}

// escapeComplete reports whether seq, which starts with ESC, is a finished
// sequence.
func escapeComplete(seq []byte) bool {
	if len(seq) < 2 {
		return false
	}
	switch seq[1] {
	case '[':
		for _, c := range seq[2:] {
			if c >= 0x40 && c <= 0x7e {
				return true
			}
		}
		return false
	case ']':
		// OSC ends with BEL or ST; ST is ESC \ whose ESC is the last one seen.
		return bytes.IndexByte(seq[2:], BEL) >= 0
	case 'O', '(', ')', '#':
		return len(seq) >= 3
	}
	return true
}

var rewriteF5to12 = map[byte]byte{
	'T': '5',
	'U': '6',
	'V': '7',
	'W': '8',
	'X': '9',
	'Y': '0',
	'Z': '*',
	'[': '(',
}

// RewriteFunctionKeys replaces the 3-byte VT100+ F5 to F12 sequences
// (ESC O T through ESC O [) with the 2-byte form the console expects. Other
// bytes are copied unchanged.
func RewriteFunctionKeys(seq []byte) []byte {
	out := make([]byte, 0, len(seq))
	for i := 0; i < len(seq); i++ {
		if seq[i] == ESC && i+2 < len(seq) && seq[i+1] == 'O' {
			if short, ok := rewriteF5to12[seq[i+2]]; ok {
				out = append(out, ESC, short)
				i += 2
				continue
			}
		}
		out = append(out, seq[i])
	}
	return out
}

// Rewriter applies RewriteFunctionKeys to a byte stream delivered in chunks,
// carrying an ESC or ESC O prefix that ends one chunk over to the next.
type Rewriter struct {
	carry []byte
}

// Feed rewrites chunk, holding back a trailing partial prefix.
func (r *Rewriter) Feed(chunk []byte) []byte {
	data := append(r.carry, chunk...)
	r.carry = nil

	n := len(data)
	switch {
	case n >= 1 && data[n-1] == ESC:
		r.carry = []byte{ESC}
		data = data[:n-1]
	case n >= 2 && data[n-2] == ESC && data[n-1] == 'O':
		r.carry = []byte{ESC, 'O'}
		data = data[:n-2]
	}
	return RewriteFunctionKeys(data)
}

// Flush returns the carried prefix unchanged.
func (r *Rewriter) Flush() []byte {
	out := r.carry
	r.carry = nil
	return out
}
