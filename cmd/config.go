package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"chassis-cli/pkg/config"
	"chassis-cli/pkg/output"
)

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show or save the effective configuration",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := output.FromCmd(cmd)
			if err != nil {
				return err
			}
			return formatter.Output(configView(cfg))
		},
	}
	output.AddFormatFlag(showCmd)

	saveCmd := &cobra.Command{
		Use:   "save",
		Short: "Write the effective configuration to $HOME/.chassis-cli/config.yaml",
		Long: `Write the effective configuration, including values given as flags or
environment variables, to the user config file. The password is not saved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Save(); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration saved.")
			return nil
		},
	}

	configCmd.AddCommand(showCmd, saveCmd)
	return configCmd
}

// configSummary is the printable configuration with secrets masked.
type configSummary struct {
	Manager  config.ManagerConfig  `json:"manager" yaml:"manager"`
	Gateway  config.GatewayConfig  `json:"gateway" yaml:"gateway"`
	Console  config.ConsoleConfig  `json:"console" yaml:"console"`
	Terminal config.TerminalConfig `json:"terminal" yaml:"terminal"`
	Serial   config.SerialConfig   `json:"serial" yaml:"serial"`
	Metrics  config.MetricsConfig  `json:"metrics" yaml:"metrics"`
	Log      config.LogConfig      `json:"log" yaml:"log"`
}

func configView(c *config.Config) configSummary {
	v := configSummary{
		Manager:  c.Manager,
		Gateway:  c.Gateway,
		Console:  c.Console,
		Terminal: c.Terminal,
		Serial:   c.Serial,
		Metrics:  c.Metrics,
		Log:      c.Log,
	}
	if v.Manager.Password != "" {
		v.Manager.Password = "********"
	}
	return v
}

func (v configSummary) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Manager endpoint:  %s\n", v.Manager.Endpoint)
	fmt.Fprintf(&b, "Manager username:  %s\n", v.Manager.Username)
	fmt.Fprintf(&b, "Manager password:  %s\n", v.Manager.Password)
	fmt.Fprintf(&b, "Gateway URL:       %s\n", v.Gateway.URL)
	fmt.Fprintf(&b, "Session timeout:   %s\n", v.Console.SessionTimeout)
	fmt.Fprintf(&b, "Stop timeout:      %s\n", v.Console.StopTimeout)
	fmt.Fprintf(&b, "Terminal width:    %d\n", v.Terminal.Width)
	fmt.Fprintf(&b, "History size:      %d\n", v.Terminal.HistorySize)
	fmt.Fprintf(&b, "Serial port:       %s\n", v.Serial.Port)
	fmt.Fprintf(&b, "Serial baud rate:  %d\n", v.Serial.BaudRate)
	fmt.Fprintf(&b, "Metrics listen:    %s\n", v.Metrics.Listen)
	fmt.Fprintf(&b, "Log level:         %s\n", v.Log.Level)
	return b.String()
}
