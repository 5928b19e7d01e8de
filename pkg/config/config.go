package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Manager  ManagerConfig  `mapstructure:"manager"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Console  ConsoleConfig  `mapstructure:"console"`
	Terminal TerminalConfig `mapstructure:"terminal"`
	Serial   SerialConfig   `mapstructure:"serial"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

// ManagerConfig locates the chassis manager REST service.
type ManagerConfig struct {
	Endpoint           string        `mapstructure:"endpoint"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	Timeout            time.Duration `mapstructure:"timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

// GatewayConfig locates the websocket console gateway used by --stream.
type GatewayConfig struct {
	URL string `mapstructure:"url"`
}

type ConsoleConfig struct {
	SessionTimeout time.Duration `mapstructure:"session_timeout"`
	StopTimeout    time.Duration `mapstructure:"stop_timeout"`
	ReceiveTimeout time.Duration `mapstructure:"receive_timeout"`
	TakeOver       bool          `mapstructure:"take_over"`
	TranscriptSize int           `mapstructure:"transcript_size"`
	BaudRate       int           `mapstructure:"baud_rate"`
}

// TerminalConfig applies to both the local terminal and the serial line.
// Width is the fallback for the local terminal and the only source of
// truth on a serial line, where the size cannot be queried.
type TerminalConfig struct {
	Width       int    `mapstructure:"width"`
	HistorySize int    `mapstructure:"history_size"`
	Prompt      string `mapstructure:"prompt"`
}

type SerialConfig struct {
	Port        string        `mapstructure:"port"`
	BaudRate    int           `mapstructure:"baud_rate"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("manager.endpoint", "http://localhost:8000")
	v.SetDefault("manager.timeout", 30*time.Second)
	v.SetDefault("gateway.url", "ws://localhost:8081")

	v.SetDefault("console.session_timeout", 5*time.Minute)
	v.SetDefault("console.stop_timeout", 3*time.Second)
	v.SetDefault("console.receive_timeout", time.Second)
	v.SetDefault("console.transcript_size", 64*1024)
	v.SetDefault("console.baud_rate", 9600)

	v.SetDefault("terminal.width", 80)
	v.SetDefault("terminal.history_size", 50)
	v.SetDefault("terminal.prompt", "WcsCli# ")

	v.SetDefault("serial.baud_rate", 9600)
	v.SetDefault("serial.read_timeout", 500*time.Millisecond)

	v.SetDefault("log.level", "info")
}

// Load resolves the configuration through v. Flags bound to v before the
// call take precedence over the environment and the config file. Each
// command tree owns its instance so bindings never outlive the tree.
func Load(v *viper.Viper) (*Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.chassis-cli")
	v.AddConfigPath("/etc/chassis-cli/")

	// CHASSIS_MANAGER_ENDPOINT, CHASSIS_SERIAL_PORT, ...
	v.SetEnvPrefix("CHASSIS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.BindEnv("manager.endpoint")
	v.BindEnv("manager.username")
	v.BindEnv("manager.password")
	v.BindEnv("gateway.url")
	v.BindEnv("serial.port")
	v.BindEnv("log.level")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects values the relay cannot work with.
func (c *Config) Validate() error {
	if c.Terminal.Width < 0 {
		return fmt.Errorf("terminal.width must not be negative, got %d", c.Terminal.Width)
	}
	if c.Terminal.HistorySize < 0 {
		return fmt.Errorf("terminal.history_size must not be negative, got %d", c.Terminal.HistorySize)
	}
	if c.Console.StopTimeout < 0 || c.Console.ReceiveTimeout < 0 || c.Console.SessionTimeout < 0 {
		return fmt.Errorf("console timeouts must not be negative")
	}
	if c.Serial.BaudRate < 0 {
		return fmt.Errorf("serial.baud_rate must not be negative, got %d", c.Serial.BaudRate)
	}
	return nil
}

func (c *Config) Save() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".chassis-cli")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(configDir, "config.yaml")
	v := viper.New()
	v.SetConfigFile(configFile)

	v.Set("manager.endpoint", c.Manager.Endpoint)
	v.Set("manager.username", c.Manager.Username)
	v.Set("manager.timeout", c.Manager.Timeout)
	v.Set("manager.insecure_skip_verify", c.Manager.InsecureSkipVerify)
	v.Set("gateway.url", c.Gateway.URL)
	v.Set("terminal.width", c.Terminal.Width)
	v.Set("terminal.history_size", c.Terminal.HistorySize)
	v.Set("terminal.prompt", c.Terminal.Prompt)
	v.Set("serial.port", c.Serial.Port)
	v.Set("serial.baud_rate", c.Serial.BaudRate)
	v.Set("log.level", c.Log.Level)

	return v.WriteConfig()
}
