package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/berrythewa/ifmctl/internal/config"
	"github.com/berrythewa/ifmctl/internal/metrics"
	"github.com/berrythewa/ifmctl/internal/transport"
	"github.com/berrythewa/ifmctl/pkg/format"
	"github.com/berrythewa/ifmctl/pkg/utils"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ifmctl",
	Short: "Interactive control client for the sensing device",
	Long: `ifmctl talks to the sensing device over two channels:
  • a request/reply channel for control commands (CONNECT, START_STREAM, ...)
  • a publish/subscribe channel carrying binary telemetry frames

Running ifmctl without a subcommand opens the interactive shell.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		return setupLogger()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if zapLogger != nil {
			_ = zapLogger.Sync()
		}
	},
	RunE: runShellCmd,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, format.Error(userMessage(err), outputOptions()))
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default is $XDG_CONFIG_HOME/ifmctl/config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging to stderr")
	flags.BoolVarP(&quiet, "quiet", "q", false, "log warnings and errors only")
	flags.BoolVar(&noColor, "no-color", false, "disable colors and icons")
	flags.StringVar(&transportFlag, "transport", "", "address pair to use: tcp or ipc")
	flags.StringVar(&commandAddress, "command-address", "", "override the command channel address")
	flags.StringVar(&dataAddress, "data-address", "", "override the telemetry channel address")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on host:port")

	rootCmd.AddCommand(
		newShellCmd(),
		newSendCmd(),
		newStreamCmd(),
		newCommandsCmd(),
		newConfigCmd(),
		newSimulateCmd(),
		newVersionCmd(),
	)
}

// loadConfig reads the config file and applies command-line overrides
func loadConfig() error {
	loaded, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if transportFlag != "" {
		loaded.Transport = strings.ToLower(transportFlag)
	}
	active := &loaded.TCP
	if transport.Kind(loaded.Transport) == transport.KindIPC {
		active = &loaded.IPC
	}
	if commandAddress != "" {
		active.CommandAddress = commandAddress
	}
	if dataAddress != "" {
		active.DataAddress = dataAddress
	}
	if metricsAddr != "" {
		loaded.Metrics.Addr = metricsAddr
	}

	if err := loaded.Validate(); err != nil {
		return err
	}
	SetConfig(loaded)
	return nil
}

func setupLogger() error {
	opts := utils.LoggerOptions{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}
	if cfg.Log.Console {
		opts.Output = os.Stderr
	}

	switch {
	case verbose:
		opts.Level = "debug"
		opts.Development = true
		opts.Output = os.Stderr
	case quiet:
		opts.Level = "warn"
	}

	logger, err := utils.NewLogger(opts)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	SetZapLogger(logger)

	registry = prometheus.NewRegistry()
	clientMet = metrics.New(registry)

	logger.Debug("Configuration loaded",
		zap.String("config_file", cfg.SystemPaths.ConfigFile),
		zap.String("transport", cfg.Transport),
		zap.String("log_file", cfg.Log.File))
	return nil
}
