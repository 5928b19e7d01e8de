package cmd

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chassis-cli/internal/shell"
	"chassis-cli/pkg/history"
	"chassis-cli/pkg/lineeditor"
)

var errNestedShell = errors.New("already running in a shell")

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive command shell",
		Long: `Run commands interactively with line editing, history recall (Up/Down)
and tab completion of command names. Type exit or quit to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if shell.HostFrom(cmd.Context()) != nil {
				return errNestedShell
			}

			out := cmd.OutOrStdout()
			editor := lineeditor.New(os.Stdin, out, lineeditor.Options{
				Prompt:  cfg.Terminal.Prompt,
				History: history.New(cfg.Terminal.HistorySize),
				Width:   cfg.Terminal.Width,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return shell.New(shell.NewLocalHost(editor, out), NewRootCmd).Run(ctx)
		},
	}
}
