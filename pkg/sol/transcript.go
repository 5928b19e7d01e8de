package sol

import (
	"io"
	"sync"
)

// DefaultTranscriptSize is the number of most recent output bytes a
// session keeps.
const DefaultTranscriptSize = 64 * 1024

// Transcript keeps the tail of a console's output. Once full, the oldest
// bytes are overwritten.
type Transcript struct {
	mu       sync.RWMutex
	data     []byte
	writePos int
	count    int
}

// NewTranscript returns a transcript holding up to size bytes.
func NewTranscript(size int) *Transcript {
	if size <= 0 {
		size = DefaultTranscriptSize
	}
	return &Transcript{data: make([]byte, size)}
}

// Write records p. It never fails.
func (t *Transcript) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	size := len(t.data)
	src := p
	if len(src) > size {
		src = src[len(src)-size:]
	}
	for len(src) > 0 {
		n := copy(t.data[t.writePos:], src)
		src = src[n:]
		t.writePos = (t.writePos + n) % size
		t.count = min(t.count+n, size)
	}
	return len(p), nil
}

// Bytes returns a copy of the recorded output, oldest first.
func (t *Transcript) Bytes() []byte {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.count == 0 {
		return nil
	}
	out := make([]byte, t.count)
	if t.count < len(t.data) {
		copy(out, t.data[:t.count])
		return out
	}
	n := copy(out, t.data[t.writePos:])
	copy(out[n:], t.data[:t.writePos])
	return out
}

// WriteTo writes the recorded output to w.
func (t *Transcript) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(t.Bytes())
	return int64(n), err
}

// Len returns the number of bytes recorded.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// Cap returns the transcript capacity.
func (t *Transcript) Cap() int {
	return len(t.data)
}

// Reset empties the transcript.
func (t *Transcript) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writePos = 0
	t.count = 0
}
