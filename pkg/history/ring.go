// Package history provides the bounded command history shared by the local
// line editor and the serial line driver.
//
// A Ring keeps submitted lines in chronological order together with a
// navigation cursor. The cursor ranges over [0, Len()]; the position Len() is
// the "in-progress" sentinel that stands for the line currently being typed.
// While the cursor sits on the sentinel, Update stores the typed text in a
// transient draft slot so that browsing up and back down restores it.
package history

import (
	"strings"
	"sync"
)

// DefaultCapacity is the number of entries kept when no capacity is given.
const DefaultCapacity = 20

// Ring is a bounded, cursor-addressable history of input lines.
//
// Ring is safe for concurrent use; each input surface owns its own Ring.
type Ring struct {
	mu sync.Mutex
	// buf grows up to capacity and then wraps; the oldest entry is at head.
	buf      []string
	head     int
	count    int
	cursor   int
	capacity int
	draft    string
}

// New creates an empty Ring holding at most capacity entries.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{capacity: capacity}
}

// Append pushes line as the newest entry, evicting the oldest entry when the
// ring is full, and moves the cursor to the in-progress position.
func (r *Ring) Append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendLocked(line)
}

func (r *Ring) appendLocked(line string) {
	switch {
	case r.count == r.capacity:
		r.buf[r.head] = line
		r.head = (r.head + 1) % r.capacity
	case r.count == len(r.buf):
		r.buf = append(r.buf, line)
		r.count++
	default:
		r.buf[r.index(r.count)] = line
		r.count++
	}
	r.cursor = r.count
	r.draft = ""
}

// index maps the i-th oldest entry to its slot in buf.
func (r *Ring) index(i int) int {
	return (r.head + i) % len(r.buf)
}

func (r *Ring) at(i int) string {
	return r.buf[r.index(i)]
}

// Accept appends line unless it is empty or whitespace only. It reports
// whether the line was recorded.
func (r *Ring) Accept(line string) bool {
	if strings.TrimSpace(line) == "" {
		r.mu.Lock()
		r.draft = ""
		r.cursor = r.count
		r.mu.Unlock()
		return false
	}
	r.Append(line)
	return true
}

// RemoveLast discards the most recent entry. Callers use it to drop the empty
// placeholder left behind when the operator submits nothing.
func (r *Ring) RemoveLast() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return
	}
	r.count--
	r.buf[r.index(r.count)] = ""
	if r.cursor > r.count {
		r.cursor = r.count
	}
}

// Previous moves the cursor one entry back and returns that entry. It returns
// false when the cursor is already at the oldest entry.
func (r *Ring) Previous() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cursor >= r.count {
		r.pruneBlankTailLocked()
	}
	if r.cursor == 0 {
		return "", false
	}
	r.cursor--
	return r.at(r.cursor), true
}

// Next moves the cursor one entry forward. Landing on the in-progress
// position returns the draft, which is empty unless Update stored one.
// It returns false when the cursor is already at the in-progress position.
func (r *Ring) Next() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cursor >= r.count {
		return "", false
	}
	r.cursor++
	if r.cursor == r.count {
		return r.draft, true
	}
	return r.at(r.cursor), true
}

// Update overwrites the entry under the cursor with text, so partially edited
// lines survive browsing. On the in-progress position it stores the draft.
func (r *Ring) Update(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursor < r.count {
		r.buf[r.index(r.cursor)] = text
		return
	}
	r.draft = text
}

// Clear removes every entry and resets the cursor. It is safe to call while
// a caller is in the middle of navigating.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = nil
	r.head = 0
	r.count = 0
	r.cursor = 0
	r.draft = ""
}

// PreviousAvailable reports whether Previous would move the cursor.
func (r *Ring) PreviousAvailable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	limit := r.count
	if r.cursor >= limit {
		for limit > 0 && strings.TrimSpace(r.at(limit-1)) == "" {
			limit--
		}
		return limit > 0
	}
	return r.cursor > 0
}

// NextAvailable reports whether Next would move the cursor.
func (r *Ring) NextAvailable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor < r.count
}

// Len returns the number of stored entries.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Cap returns the maximum number of entries.
func (r *Ring) Cap() int {
	return r.capacity
}

// Cursor returns the current navigation position in [0, Len()].
func (r *Ring) Cursor() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

// Entries returns a copy of the stored entries, oldest first.
func (r *Ring) Entries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, r.count)
	for i := range out {
		out[i] = r.at(i)
	}
	return out
}

// pruneBlankTailLocked drops trailing whitespace-only placeholders so they
// never become navigable history.
func (r *Ring) pruneBlankTailLocked() {
	for r.count > 0 && strings.TrimSpace(r.at(r.count-1)) == "" {
		r.count--
	}
	r.cursor = r.count
}
