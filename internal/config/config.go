// File: internal/config/config.go

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/berrythewa/ifmctl/internal/errors"
	"github.com/berrythewa/ifmctl/internal/transport"
)

// Default addresses of the device service
const (
	DefaultTCPCommandAddress = "tcp://localhost:5555"
	DefaultTCPDataAddress    = "tcp://localhost:5556"
	DefaultIPCCommandAddress = "ipc:///tmp/ifm-cmd.ipc"
	DefaultIPCDataAddress    = "ipc:///tmp/ifm-stream.ipc"
)

// ConfigPaths holds all relevant paths for the application
type ConfigPaths struct {
	BaseDir    string // Directory holding config.yaml
	ConfigFile string // Path to the config file
	DataDir    string // Directory for application data
	LogDir     string // Directory for log files
}

// Config holds all application configuration
type Config struct {
	// Which address pair to use: "tcp" or "ipc"
	Transport string `json:"transport" yaml:"transport"`

	TCP EndpointConfig `json:"tcp" yaml:"tcp"`
	IPC EndpointConfig `json:"ipc" yaml:"ipc"`

	Command   CommandConfig   `json:"command" yaml:"command"`
	Stream    StreamConfig    `json:"stream" yaml:"stream"`
	Log       LogConfig       `json:"log" yaml:"log"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
	Simulator SimulatorConfig `json:"simulator" yaml:"simulator"`

	SystemPaths ConfigPaths `json:"-" yaml:"-"`
}

// EndpointConfig is the address pair of one transport. The command and data
// channels are independent and must not share an address.
type EndpointConfig struct {
	CommandAddress string `json:"command_address" yaml:"command_address"`
	DataAddress    string `json:"data_address" yaml:"data_address"`
}

// CommandConfig tunes the request/reply channel
type CommandConfig struct {
	ReplyTimeout time.Duration `json:"reply_timeout" yaml:"reply_timeout"` // 0 waits forever
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
}

// StreamConfig tunes the telemetry consumer
type StreamConfig struct {
	PollInterval       time.Duration `json:"poll_interval" yaml:"poll_interval"`
	DecodeErrorLogRate float64       `json:"decode_error_log_rate" yaml:"decode_error_log_rate"` // lines per second, 0 = unthrottled
}

// LogConfig holds logging-related configuration
type LogConfig struct {
	Level      string `json:"level" yaml:"level"`
	Format     string `json:"format" yaml:"format"` // "json" or "text"
	Console    bool   `json:"console" yaml:"console"`
	File       string `json:"file" yaml:"file"` // empty disables file logging
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Addr string `json:"addr" yaml:"addr"` // empty disables the endpoint
}

// SimulatorConfig drives the built-in device simulator. Empty addresses
// mirror the client's active pair, bound on all interfaces for tcp.
type SimulatorConfig struct {
	CommandAddress  string        `json:"command_address" yaml:"command_address"`
	DataAddress     string        `json:"data_address" yaml:"data_address"`
	PublishInterval time.Duration `json:"publish_interval" yaml:"publish_interval"`
	SamplesPerFrame int           `json:"samples_per_frame" yaml:"samples_per_frame"`
}

// GetConfigPaths returns the platform-specific configuration paths
func GetConfigPaths() (*ConfigPaths, error) {
	baseDir := os.Getenv("IFMCTL_CONFIG_DIR")
	if baseDir == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return nil, err
		}
		baseDir = filepath.Join(configDir, "ifmctl")
	}

	dataDir := os.Getenv("IFMCTL_DATA_DIR")
	if dataDir == "" {
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "ifmctl")
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			dataDir = filepath.Join(homeDir, ".local", "share", "ifmctl")
		}
	}

	return &ConfigPaths{
		BaseDir:    baseDir,
		ConfigFile: filepath.Join(baseDir, "config.yaml"),
		DataDir:    dataDir,
		LogDir:     filepath.Join(dataDir, "logs"),
	}, nil
}

// DefaultConfig returns a new Config with default values
func DefaultConfig() *Config {
	paths, err := GetConfigPaths()
	if err != nil {
		tmp := filepath.Join(os.TempDir(), "ifmctl")
		paths = &ConfigPaths{
			BaseDir:    tmp,
			ConfigFile: filepath.Join(tmp, "config.yaml"),
			DataDir:    tmp,
			LogDir:     filepath.Join(tmp, "logs"),
		}
	}

	return &Config{
		Transport: string(transport.KindTCP),
		TCP: EndpointConfig{
			CommandAddress: DefaultTCPCommandAddress,
			DataAddress:    DefaultTCPDataAddress,
		},
		IPC: EndpointConfig{
			CommandAddress: DefaultIPCCommandAddress,
			DataAddress:    DefaultIPCDataAddress,
		},
		Command: CommandConfig{
			ReplyTimeout: 0,
			DialTimeout:  5 * time.Second,
		},
		Stream: StreamConfig{
			PollInterval:       500 * time.Millisecond,
			DecodeErrorLogRate: 1,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			Console:    false,
			File:       filepath.Join(paths.LogDir, "ifmctl.log"),
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Simulator: SimulatorConfig{
			PublishInterval: 100 * time.Millisecond,
			SamplesPerFrame: 32,
		},
		SystemPaths: *paths,
	}
}

// Load reads the configuration file over the defaults. A missing file is not
// an error: the defaults are used as-is. Environment variables win over both.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()
	if configPath == "" {
		configPath = cfg.SystemPaths.ConfigFile
	}
	cfg.SystemPaths.ConfigFile = configPath

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := overrideFromEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves the configuration to the specified file
func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = c.SystemPaths.ConfigFile
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Active returns the address pair of the selected transport
func (c *Config) Active() EndpointConfig {
	if transport.Kind(c.Transport) == transport.KindIPC {
		return c.IPC
	}
	return c.TCP
}

// Endpoints parses the command and data addresses of the selected transport
func (c *Config) Endpoints() (cmd, data transport.Endpoint, err error) {
	active := c.Active()
	if cmd, err = transport.ParseEndpoint(active.CommandAddress); err != nil {
		return cmd, data, fmt.Errorf("command address: %w", err)
	}
	if data, err = transport.ParseEndpoint(active.DataAddress); err != nil {
		return cmd, data, fmt.Errorf("data address: %w", err)
	}
	return cmd, data, nil
}

// SimulatorEndpoints returns the addresses the simulator binds
func (c *Config) SimulatorEndpoints() (cmd, data transport.Endpoint, err error) {
	clientCmd, clientData, err := c.Endpoints()
	if err != nil {
		return cmd, data, err
	}
	if cmd, err = bindEndpoint(c.Simulator.CommandAddress, clientCmd); err != nil {
		return cmd, data, fmt.Errorf("simulator command address: %w", err)
	}
	if data, err = bindEndpoint(c.Simulator.DataAddress, clientData); err != nil {
		return cmd, data, fmt.Errorf("simulator data address: %w", err)
	}
	return cmd, data, nil
}

func bindEndpoint(addr string, client transport.Endpoint) (transport.Endpoint, error) {
	if addr != "" {
		return transport.ParseEndpoint(addr)
	}
	if client.Kind == transport.KindTCP {
		client.Host = "*"
	}
	return client, nil
}

// Validate checks the configuration for values the client cannot run with
func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return errors.WrapLocal(fmt.Errorf("%w: "+format, append([]interface{}{errors.ErrInvalidConfig}, args...)...), "config", "Validate")
	}

	switch transport.Kind(c.Transport) {
	case transport.KindTCP, transport.KindIPC:
	default:
		return invalid("transport must be %q or %q, got %q", transport.KindTCP, transport.KindIPC, c.Transport)
	}

	cmd, data, err := c.Endpoints()
	if err != nil {
		return invalid("%v", err)
	}
	if cmd == data {
		return invalid("command and data channels share address %s", cmd)
	}
	if _, _, err := c.SimulatorEndpoints(); err != nil {
		return invalid("%v", err)
	}
	if c.Stream.PollInterval <= 0 {
		return invalid("stream.poll_interval must be positive, got %s", c.Stream.PollInterval)
	}
	if c.Command.ReplyTimeout < 0 {
		return invalid("command.reply_timeout must not be negative")
	}
	return nil
}

// overrideFromEnv overrides configuration values from environment variables
func overrideFromEnv(config *Config) error {
	if val := os.Getenv("IFMCTL_TRANSPORT"); val != "" {
		config.Transport = strings.ToLower(val)
	}

	active := &config.TCP
	if transport.Kind(config.Transport) == transport.KindIPC {
		active = &config.IPC
	}
	if val := os.Getenv("IFMCTL_COMMAND_ADDRESS"); val != "" {
		active.CommandAddress = val
	}
	if val := os.Getenv("IFMCTL_DATA_ADDRESS"); val != "" {
		active.DataAddress = val
	}

	if val := os.Getenv("IFMCTL_LOG_LEVEL"); val != "" {
		config.Log.Level = val
	}
	if val := os.Getenv("IFMCTL_REPLY_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("IFMCTL_REPLY_TIMEOUT: %w", err)
		}
		config.Command.ReplyTimeout = d
	}
	if val := os.Getenv("IFMCTL_POLL_INTERVAL"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("IFMCTL_POLL_INTERVAL: %w", err)
		}
		config.Stream.PollInterval = d
	}
	if val := os.Getenv("IFMCTL_METRICS_ADDR"); val != "" {
		config.Metrics.Addr = val
	}
	if val := os.Getenv("IFMCTL_LOG_FILE"); val != "" {
		config.Log.File = val
	}
	if val := os.Getenv("IFMCTL_LOG_CONSOLE"); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("IFMCTL_LOG_CONSOLE: %w", err)
		}
		config.Log.Console = b
	}
	return nil
}
