// Package shell runs the interactive command loop on a local terminal or a
// serial line. Each line is split like a POSIX shell would and executed as
// arguments to a freshly built cobra command tree.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/shlex"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"chassis-cli/pkg/lineeditor"
	"chassis-cli/pkg/serial"
)

// Builtins handled by the loop itself.
var exitWords = []string{"exit", "quit"}

// Shell reads command lines from a Host and runs them.
type Shell struct {
	host    Host
	newRoot func() *cobra.Command

	// OnCommand is told how every executed command ended.
	OnCommand func(err error)
}

// New returns a shell on host. newRoot must return a new command tree on
// every call; cobra keeps parsed flag values in the tree.
func New(host Host, newRoot func() *cobra.Command) *Shell {
	s := &Shell{host: host, newRoot: newRoot}
	host.SetCompleter(lineeditor.NewWordCompleter(CommandWords(newRoot())))
	return s
}

// CommandWords lists the names and aliases of root's visible subcommands
// plus help and the shell builtins, sorted.
func CommandWords(root *cobra.Command) []string {
	words := append([]string{"help"}, exitWords...)
	for _, c := range root.Commands() {
		if c.Hidden || c.Name() == "help" {
			continue
		}
		words = append(words, c.Name())
		words = append(words, c.Aliases...)
	}
	sort.Strings(words)
	return words
}

// Run reads and executes lines until exit, end of input or ctx is done.
// Ctrl+C abandons the current line only.
func (s *Shell) Run(ctx context.Context) error {
	out := s.host.Output()
	for {
		line, err := s.host.ReadLine(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, lineeditor.ErrCancelled):
			continue
		case errors.Is(err, io.EOF), errors.Is(err, serial.ErrClosed):
			return nil
		default:
			return fmt.Errorf("failed to read command: %w", err)
		}

		args, err := shlex.Split(line)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		if isExit(args[0]) {
			return nil
		}

		err = s.Execute(ctx, args)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
		if s.OnCommand != nil {
			s.OnCommand(err)
		}
	}
}

func isExit(word string) bool {
	for _, w := range exitWords {
		if strings.EqualFold(word, w) {
			return true
		}
	}
	return false
}

// Execute runs one command with its output on the host.
func (s *Shell) Execute(ctx context.Context, args []string) error {
	root := s.newRoot()
	out := s.host.Output()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)
	root.SetIn(strings.NewReader(""))
	root.SilenceErrors = true
	root.SilenceUsage = true

	log.Debug().Strs("args", args).Msg("running shell command")
	s.host.BeginCommand()
	defer s.host.EndCommand()
	return root.ExecuteContext(WithHost(ctx, s.host))
}
