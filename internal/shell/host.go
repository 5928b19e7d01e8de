package shell

import (
	"context"
	"io"

	"chassis-cli/pkg/lineeditor"
	"chassis-cli/pkg/serial"
	"chassis-cli/pkg/sol"
)

// Host is the terminal a shell runs on.
type Host interface {
	// ReadLine prompts for and returns the next command line.
	ReadLine(ctx context.Context) (string, error)
	// Output receives command output.
	Output() io.Writer
	// ConsoleSurface returns a relay surface on the same terminal.
	ConsoleSurface() sol.Surface
	// SetCompleter installs tab completion for command lines.
	SetCompleter(c lineeditor.Completer)
	// BeginCommand and EndCommand bracket each command.
	BeginCommand()
	EndCommand()
}

type hostKey struct{}

// WithHost returns a context carrying h, so commands run from a shell can
// reach its terminal.
func WithHost(ctx context.Context, h Host) context.Context {
	return context.WithValue(ctx, hostKey{}, h)
}

// HostFrom returns the Host of the shell running the current command, or
// nil outside a shell.
func HostFrom(ctx context.Context) Host {
	if ctx == nil {
		return nil
	}
	h, _ := ctx.Value(hostKey{}).(Host)
	return h
}

// LocalHost runs the shell on the local terminal.
type LocalHost struct {
	editor *lineeditor.Editor
	out    io.Writer
}

var _ Host = (*LocalHost)(nil)

func NewLocalHost(editor *lineeditor.Editor, out io.Writer) *LocalHost {
	return &LocalHost{editor: editor, out: out}
}

func (h *LocalHost) ReadLine(ctx context.Context) (string, error) {
	return h.editor.ReadLine(ctx)
}

func (h *LocalHost) Output() io.Writer {
	return h.out
}

func (h *LocalHost) ConsoleSurface() sol.Surface {
	return sol.NewLocalSurface(h.editor, h.out)
}

func (h *LocalHost) SetCompleter(c lineeditor.Completer) {
	h.editor.SetCompleter(c)
}

func (h *LocalHost) BeginCommand() {}

func (h *LocalHost) EndCommand() {}

// SerialHost runs the shell on a serial line. Input typed while a command
// runs is dropped by the driver.
type SerialHost struct {
	driver *serial.Driver
	prompt string
}

var _ Host = (*SerialHost)(nil)

func NewSerialHost(driver *serial.Driver, prompt string) *SerialHost {
	return &SerialHost{driver: driver, prompt: prompt}
}

func (h *SerialHost) ReadLine(ctx context.Context) (string, error) {
	if err := h.driver.Prompt(h.prompt); err != nil {
		return "", err
	}
	return h.driver.ReadLine(ctx, "\r")
}

func (h *SerialHost) Output() io.Writer {
	return h.driver
}

func (h *SerialHost) ConsoleSurface() sol.Surface {
	return sol.NewSerialSurface(h.driver)
}

func (h *SerialHost) SetCompleter(c lineeditor.Completer) {
	h.driver.SetCompleter(c)
}

func (h *SerialHost) BeginCommand() {
	h.driver.BeginCommand()
}

func (h *SerialHost) EndCommand() {
	h.driver.EndCommand()
}
