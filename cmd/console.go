package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"chassis-cli/internal/shell"
	"chassis-cli/pkg/client"
	"chassis-cli/pkg/lineeditor"
	"chassis-cli/pkg/output"
	"chassis-cli/pkg/sol"
)

func newConsoleCmd() *cobra.Command {
	consoleCmd := &cobra.Command{
		Use:   "console",
		Short: "Serial console of blades and serial ports",
		Long: `Relay the serial console of a blade or a chassis serial port to this
terminal, or stop a console session held by another operator.`,
	}
	consoleCmd.AddCommand(
		newConsoleTargetCmd("blade"),
		newConsoleTargetCmd("port"),
		newConsoleStopCmd(),
	)
	return consoleCmd
}

func newConsoleTargetCmd(kind string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   kind + " <" + kind + "-id>",
		Short: "Open the serial console of a " + kind,
		Long: `Open a console session and relay it until Ctrl+X is pressed.

Keystrokes are sent a line at a time; function and cursor keys are sent as
VT100 escape sequences. Only one console session runs at a time; use
--take-over to replace a running one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(kind, args[0])
			if err != nil {
				return err
			}
			ch, err := newChannel(cmd, kind, id)
			if err != nil {
				return err
			}
			transcript, _ := cmd.Flags().GetString("save-transcript")
			return runConsole(cmd, ch, cfg.Console.TakeOver, transcript)
		},
	}

	flags := cmd.Flags()
	flags.Bool("take-over", false, "replace a console session already running in this process")
	flags.Bool("mock", false, "relay a local shell instead of the chassis manager")
	flags.Bool("stream", false, "relay through the console gateway websocket")
	flags.String("save-transcript", "", "write the console output received to this file on exit")
	bindKey(flags, "take-over", "console.take_over")
	if kind == "port" {
		flags.Int("baud-rate", 0, "serial port baud rate (default from config)")
		bindKey(flags, "baud-rate", "console.baud_rate")
	}
	return cmd
}

func parseID(kind, arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid %s id %q: must be a positive number", kind, arg)
	}
	return id, nil
}

// newChannel picks the console transport from the command flags.
func newChannel(cmd *cobra.Command, kind string, id int) (sol.Channel, error) {
	mock, _ := cmd.Flags().GetBool("mock")
	stream, _ := cmd.Flags().GetBool("stream")

	switch {
	case mock:
		ch := sol.NewMockChannel()
		ch.ReceiveTimeout = cfg.Console.ReceiveTimeout
		return ch, nil
	case stream:
		sc := client.StreamConfig{
			URL:            cfg.Gateway.URL,
			Username:       cfg.Manager.Username,
			Password:       cfg.Manager.Password,
			ReceiveTimeout: cfg.Console.ReceiveTimeout,
		}
		if kind == "blade" {
			return client.NewBladeStream(sc, id), nil
		}
		return client.NewPortStream(sc, id), nil
	}

	c, err := client.New(cfg.Manager)
	if err != nil {
		return nil, err
	}
	if kind == "blade" {
		return &sol.BladeConsole{Service: c, BladeID: id, SessionTimeout: cfg.Console.SessionTimeout}, nil
	}
	return &sol.PortConsole{
		Service:        c,
		PortID:         id,
		SessionTimeout: cfg.Console.SessionTimeout,
		BaudRate:       cfg.Console.BaudRate,
	}, nil
}

// runConsole relays ch on the terminal the command runs on until the
// session ends.
func runConsole(cmd *cobra.Command, ch sol.Channel, takeOver bool, transcriptPath string) error {
	ctx := cmd.Context()

	var surface sol.Surface
	out := cmd.OutOrStdout()
	if host := shell.HostFrom(ctx); host != nil {
		out = host.Output()
		surface = host.ConsoleSurface()
	} else {
		editor := lineeditor.New(os.Stdin, out, lineeditor.Options{Width: cfg.Terminal.Width})
		surface = sol.NewLocalSurface(editor, out)
	}

	fmt.Fprintf(out, "Opening console on %s. Press Ctrl+X to exit.\n", ch.Describe())
	session, err := consoleManager().Start(ctx, ch, surface, takeOver)
	if err != nil {
		var openErr *sol.OpenError
		if errors.As(err, &openErr) && openErr.InUse() {
			return fmt.Errorf("%w (stop it with: console stop %s)", err, stopHint(ch))
		}
		return err
	}

	t := session.Wait()
	fmt.Fprintln(out)

	if transcriptPath != "" {
		if err := saveTranscript(transcriptPath, session.Transcript()); err != nil {
			log.Warn().Err(err).Str("path", transcriptPath).Msg("failed to save console transcript")
		} else {
			fmt.Fprintf(out, "Transcript saved to %s\n", transcriptPath)
		}
	}

	// Give the release call a chance to reach the chassis manager before a
	// one-shot process exits.
	select {
	case <-session.Released():
	case <-time.After(cfg.Console.StopTimeout):
		log.Debug().Str("session_id", session.ID()).Msg("console release still pending")
	}

	if err := t.Error(); err != nil {
		return err
	}
	fmt.Fprintln(out, t.Message())
	return nil
}

func stopHint(ch sol.Channel) string {
	switch c := ch.(type) {
	case *sol.BladeConsole:
		return fmt.Sprintf("blade %d", c.BladeID)
	case *sol.PortConsole:
		return fmt.Sprintf("port %d", c.PortID)
	}
	return ch.Describe()
}

func saveTranscript(path string, t *sol.Transcript) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create transcript file: %w", err)
	}
	if _, err := t.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	return f.Close()
}

// stopResult is the outcome of a console stop request.
type stopResult struct {
	Target         string `json:"target" yaml:"target"`
	CompletionCode string `json:"completion_code" yaml:"completion_code"`
	Status         string `json:"status,omitempty" yaml:"status,omitempty"`
}

func (r stopResult) Text() string {
	s := fmt.Sprintf("%s: Completion Code: %s\n", r.Target, r.CompletionCode)
	if r.Status != "" {
		s += "Status: " + r.Status + "\n"
	}
	return s
}

func newConsoleStopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop <blade|port> <id>",
		Short: "Force-stop the console session of a blade or serial port",
		Long: `Ask the chassis manager to end the console session on a target regardless
of which operator holds it. A relay running elsewhere ends with a message
that the session was stopped by another operator.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := args[0]
			if kind != "blade" && kind != "port" {
				return fmt.Errorf("invalid target %q: must be blade or port", kind)
			}
			id, err := parseID(kind, args[1])
			if err != nil {
				return err
			}
			formatter, err := output.FromCmd(cmd)
			if err != nil {
				return err
			}

			c, err := client.New(cfg.Manager)
			if err != nil {
				return err
			}
			resp, err := stopConsole(cmd.Context(), c, kind, id)
			if err != nil {
				return fmt.Errorf("failed to stop console on %s %d: %w", kind, id, err)
			}

			result := stopResult{
				Target:         fmt.Sprintf("%s %d", kind, id),
				CompletionCode: resp.Code.String(),
				Status:         resp.Status,
			}
			if err := formatter.Output(result); err != nil {
				return err
			}
			if !resp.Code.OK() && resp.Code != sol.CodeNoActiveSerialSession {
				return fmt.Errorf("chassis manager refused to stop console on %s", result.Target)
			}
			return nil
		},
	}
	output.AddFormatFlag(cmd)
	return cmd
}

func stopConsole(ctx context.Context, c *client.Client, kind string, id int) (sol.Response, error) {
	if kind == "blade" {
		return c.StopBladeSerialSession(ctx, id, "", true)
	}
	return c.StopSerialPortConsole(ctx, id, "", true)
}
