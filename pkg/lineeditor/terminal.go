package lineeditor

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/term"
)

// Terminal wraps the file descriptor of a local terminal and tracks the state
// needed to leave raw mode again.
//
// Thread safety: MakeRaw and Restore may be called from different goroutines.
type Terminal struct {
	file *os.File

	mu       sync.Mutex
	oldState *term.State
}

// NewTerminal returns a Terminal for f, typically os.Stdin.
func NewTerminal(f *os.File) *Terminal {
	return &Terminal{file: f}
}

// IsTerminal reports whether the file is an interactive terminal.
func (t *Terminal) IsTerminal() bool {
	return t != nil && t.file != nil && term.IsTerminal(int(t.file.Fd()))
}

// MakeRaw switches the terminal to raw mode for character-by-character
// input. Calling MakeRaw while already raw is a no-op.
//
// Returns an error if the file is not a terminal (e.g., input is piped).
func (t *Terminal) MakeRaw() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.oldState != nil {
		return nil
	}
	if !term.IsTerminal(int(t.file.Fd())) {
		return fmt.Errorf("%s is not a terminal", t.file.Name())
	}
	state, err := term.MakeRaw(int(t.file.Fd()))
	if err != nil {
		return fmt.Errorf("failed to set raw mode: %w", err)
	}
	t.oldState = state
	return nil
}

// Restore returns the terminal to the state saved by MakeRaw. It is safe to
// call multiple times.
func (t *Terminal) Restore() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.oldState != nil {
		_ = term.Restore(int(t.file.Fd()), t.oldState)
		t.oldState = nil
	}
}

// Raw switches to raw mode and returns the function that undoes it. When the
// terminal is already raw the returned function does nothing, so a caller
// holding raw mode for a whole console session is not interrupted by nested
// per-read calls.
func (t *Terminal) Raw() (func(), error) {
	t.mu.Lock()
	already := t.oldState != nil
	t.mu.Unlock()
	if already {
		return func() {}, nil
	}
	if err := t.MakeRaw(); err != nil {
		return func() {}, err
	}
	return t.Restore, nil
}

// Width returns the terminal width in columns, or fallback when the size
// cannot be read.
func (t *Terminal) Width(fallback int) int {
	if t == nil || t.file == nil {
		return fallback
	}
	w, _, err := term.GetSize(int(t.file.Fd()))
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}
