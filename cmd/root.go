package cmd

import (
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"chassis-cli/internal/metrics"
	"chassis-cli/pkg/config"
	"chassis-cli/pkg/sol"
)

// viperKey annotates a flag with the configuration key it overrides.
const viperKey = "viper_key"

var (
	cfg *config.Config

	consolesOnce sync.Once
	consoles     *sol.Manager
)

// NewRootCmd builds the command tree. The shell builds a new tree for every
// line so flag values never carry over between commands.
func NewRootCmd() *cobra.Command {
	var cfgFile string
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "chassis-cli",
		Short: "Chassis manager command line",
		Long: `A command-line interface for a chassis manager. Relays the serial console
of blades and serial ports to the local terminal, or hosts the command shell
on a physical serial line.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" {
				v.SetConfigFile(cfgFile)
			}
			bindFlags(v, cmd.Flags())

			var err error
			cfg, err = config.Load(v)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			cfg.Log.ConfigureZerolog(os.Stderr)
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.chassis-cli/config.yaml)")
	flags.String("manager-url", "", "chassis manager URL")
	flags.String("username", "", "chassis manager user name")
	flags.String("password", "", "chassis manager password")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	bindKey(flags, "manager-url", "manager.endpoint")
	bindKey(flags, "username", "manager.username")
	bindKey(flags, "password", "manager.password")
	bindKey(flags, "log-level", "log.level")

	rootCmd.AddCommand(
		newConsoleCmd(),
		newShellCmd(),
		newSerialCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bindKey marks flag name as an override for the configuration key.
func bindKey(flags *pflag.FlagSet, name, key string) {
	_ = flags.SetAnnotation(name, viperKey, []string{key})
}

// bindFlags points v at every flag the operator set explicitly. Flags
// left at their default never shadow the config file.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.Visit(func(f *pflag.Flag) {
		if keys := f.Annotations[viperKey]; len(keys) > 0 {
			v.BindPFlag(keys[0], f)
		}
	})
}

func GetConfig() *config.Config {
	return cfg
}

// consoleManager returns the process-wide relay session manager.
func consoleManager() *sol.Manager {
	consolesOnce.Do(func() {
		consoles = sol.NewManager(sol.Options{
			StopTimeout:    cfg.Console.StopTimeout,
			TranscriptSize: cfg.Console.TranscriptSize,
			Recorder:       metrics.Recorder{},
		})
	})
	return consoles
}
