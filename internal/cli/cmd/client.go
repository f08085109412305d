package cmd

import (
	"context"

	"go.uber.org/zap"

	"github.com/berrythewa/ifmctl/internal/dispatch"
	"github.com/berrythewa/ifmctl/internal/ipc"
	"github.com/berrythewa/ifmctl/internal/metrics"
	"github.com/berrythewa/ifmctl/internal/telemetry"
	"github.com/berrythewa/ifmctl/internal/transport"
)

// client bundles the two channels and the dispatcher for one invocation
type client struct {
	channel  *ipc.Channel
	stream   *telemetry.Manager
	dispatch *dispatch.Dispatcher
	metrics  *metrics.Server
}

// connect dials the command channel and prepares the stream manager. ctx
// bounds the lifetime of both connections.
func connect(ctx context.Context, reporter telemetry.Reporter) (*client, error) {
	logger := GetZapLogger()

	cmdEP, dataEP, err := cfg.Endpoints()
	if err != nil {
		return nil, err
	}

	topts := transport.Options{DialTimeout: cfg.Command.DialTimeout}
	if verbose {
		topts.Logger = logger
	}

	ch, err := ipc.Dial(ctx, cmdEP, topts,
		ipc.WithReplyTimeout(cfg.Command.ReplyTimeout),
		ipc.WithLogger(logger.Named("ipc")),
		ipc.WithMetrics(clientMet))
	if err != nil {
		return nil, err
	}

	streamLogger := logger.Named("stream")
	reporters := telemetry.MultiReporter{
		reporter,
		telemetry.NewLogReporter(streamLogger, cfg.Stream.DecodeErrorLogRate),
	}
	mgr := telemetry.NewManager(telemetry.ManagerConfig{
		Dialer:       telemetry.ZMQDialer(topts),
		Reporter:     reporters,
		PollInterval: cfg.Stream.PollInterval,
		Logger:       streamLogger,
		Metrics:      clientMet,
	})

	d := dispatch.New(dispatch.Config{
		Sender:       ch,
		Stream:       mgr,
		DataEndpoint: dataEP,
		Logger:       logger.Named("dispatch"),
		Metrics:      clientMet,
	})
	c := &client{channel: ch, stream: mgr, dispatch: d}

	if cfg.Metrics.Addr != "" {
		srv := metrics.NewServer(cfg.Metrics.Addr, registry)
		if err := srv.Start(); err != nil {
			ch.Close()
			return nil, err
		}
		logger.Info("Metrics endpoint listening", zap.String("url", srv.Address()))
		c.metrics = srv
	}
	return c, nil
}

// Close stops any stream, then closes the command channel
func (c *client) Close() error {
	stopErr := c.dispatch.Close()
	closeErr := c.channel.Close()
	if c.metrics != nil {
		if err := c.metrics.Stop(); err != nil {
			GetZapLogger().Debug("Stopping metrics endpoint", zap.Error(err))
		}
	}
	if stopErr != nil {
		return stopErr
	}
	return closeErr
}
