package cmd

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/berrythewa/ifmctl/internal/config"
	"github.com/berrythewa/ifmctl/internal/metrics"
)

// Shared variables across all commands
var (
	cfg       *config.Config
	zapLogger *zap.Logger
	registry  *prometheus.Registry
	clientMet *metrics.Metrics

	// Global flags
	configFile     string
	verbose        bool
	quiet          bool
	noColor        bool
	transportFlag  string
	commandAddress string
	dataAddress    string
	metricsAddr    string
)

// SetConfig sets the configuration for commands
func SetConfig(config *config.Config) {
	cfg = config
}

func GetConfig() *config.Config {
	return cfg
}

// SetZapLogger sets the logger for commands
func SetZapLogger(log *zap.Logger) {
	zapLogger = log
}

func GetZapLogger() *zap.Logger {
	if zapLogger == nil {
		return zap.NewNop()
	}
	return zapLogger
}
