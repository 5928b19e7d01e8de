package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"chassis-cli/internal/metrics"
	"chassis-cli/internal/shell"
	"chassis-cli/pkg/output"
	"chassis-cli/pkg/serial"
)

func newSerialCmd() *cobra.Command {
	serialCmd := &cobra.Command{
		Use:   "serial",
		Short: "Host the command shell on a serial line",
		Long: `Run the command shell on a physical serial line so an operator terminal
attached to it can run commands and open consoles. The line is driven at 8N1
without flow control; terminal.width sets the width used for redraws.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if shell.HostFrom(cmd.Context()) != nil {
				return errNestedShell
			}
			if cfg.Serial.Port == "" {
				return fmt.Errorf("no serial port configured: use --port or serial.port")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			driver, err := serial.Open(serial.Config{
				Port:        cfg.Serial.Port,
				BaudRate:    cfg.Serial.BaudRate,
				ReadTimeout: cfg.Serial.ReadTimeout,
				Width:       cfg.Terminal.Width,
				HistorySize: cfg.Terminal.HistorySize,
			}, nil, serial.WithObserver(metrics.ObserveSerial))
			if err != nil {
				return err
			}
			defer driver.Close()

			if cfg.Metrics.Listen != "" {
				router := metrics.NewRouter("chassis-cli", serialStatus(cfg.Serial.Port, cfg.Serial.BaudRate))
				go func() {
					if err := metrics.Serve(ctx, cfg.Metrics.Listen, router); err != nil {
						log.Error().Err(err).Msg("metrics listener stopped")
					}
				}()
			}

			sh := shell.New(shell.NewSerialHost(driver, cfg.Terminal.Prompt), NewRootCmd)
			sh.OnCommand = metrics.CommandFinished

			fmt.Fprintf(driver, "\nchassis-cli on %s. Type help for commands.\n", cfg.Serial.Port)
			log.Info().Str("port", cfg.Serial.Port).Msg("serial shell started")
			err = sh.Run(ctx)
			log.Info().Str("port", cfg.Serial.Port).Msg("serial shell stopped")
			return err
		},
	}

	flags := serialCmd.Flags()
	flags.String("port", "", "serial device, e.g. /dev/ttyS0 or COM1")
	flags.Int("baud-rate", 0, "line speed (default from config)")
	flags.String("metrics-listen", "", "address to serve /metrics and /health on, e.g. :9100")
	bindKey(flags, "port", "serial.port")
	bindKey(flags, "baud-rate", "serial.baud_rate")
	bindKey(flags, "metrics-listen", "metrics.listen")

	serialCmd.AddCommand(newSerialListCmd())
	return serialCmd
}

// serialStatus reports the serial host state for /status.
func serialStatus(port string, baudRate int) metrics.StatusFunc {
	consoles := consoleManager()
	return func() map[string]any {
		status := map[string]any{
			"port":           port,
			"baud_rate":      baudRate,
			"console_active": false,
		}
		if s := consoles.Current(); s != nil {
			status["console_active"] = true
			status["console_target"] = s.Channel().Describe()
			status["console_session_id"] = s.ID()
			status["console_state"] = s.State().String()
		}
		return status
	}
}

func newSerialListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List serial ports on this host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := output.FromCmd(cmd)
			if err != nil {
				return err
			}
			ports, err := serial.ListPorts()
			if err != nil {
				return err
			}
			if formatter.IsText() {
				out := cmd.OutOrStdout()
				if len(ports) == 0 {
					fmt.Fprintln(out, "No serial ports found.")
				}
				for _, p := range ports {
					fmt.Fprintln(out, p)
				}
				return nil
			}
			return formatter.Output(map[string][]string{"ports": ports})
		},
	}
	output.AddFormatFlag(cmd)
	return cmd
}
