package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/berrythewa/ifmctl/internal/telemetry"
	"github.com/berrythewa/ifmctl/internal/types"
	"github.com/berrythewa/ifmctl/pkg/format"
)

func newStreamCmd() *cobra.Command {
	var (
		duration   time.Duration
		listenOnly bool
	)

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Start streaming and print frame averages until interrupted",
		Long: `Send START_STREAM, print one average line per telemetry frame, and send
STOP_STREAM on Ctrl-C or when --duration elapses.

With --listen-only no commands are sent; ifmctl just subscribes to the
telemetry channel.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			opts := outputOptions()
			out := &lockedWriter{w: cmd.OutOrStdout()}

			c, err := connect(cmd.Context(), telemetry.NewWriterReporter(out, opts))
			if err != nil {
				return err
			}
			defer c.Close()

			var session *telemetry.Session
			if listenOnly {
				if session, err = c.stream.Start(ctx, c.dispatch.DataEndpoint()); err != nil {
					return err
				}
			} else {
				res, err := c.dispatch.Exchange(ctx, types.NewRequest(types.CmdStartStream, nil))
				if err != nil {
					return err
				}
				fmt.Fprintln(out, format.Reply(res.Reply, opts))
				if res.StreamErr != nil {
					return res.StreamErr
				}
				if session = res.StreamStarted; session == nil {
					return fmt.Errorf("stream not started: manager is %s", c.stream.State())
				}
			}
			fmt.Fprintln(out, format.Status("stream", fmt.Sprintf("Subscribed to stream %s...", session.Endpoint), opts))

			select {
			case <-ctx.Done():
			case <-session.Done():
			}
			consumerErr := session.Err()
			stats := session.Stats()

			if !listenOnly {
				// ctx may already be cancelled; the stop command gets its own deadline
				stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout())
				defer cancel()
				res, err := c.dispatch.Exchange(stopCtx, types.NewRequest(types.CmdStopStream, nil))
				if err != nil {
					return err
				}
				fmt.Fprintln(out, format.Reply(res.Reply, opts))
			}
			if err := c.stream.Stop(); err != nil {
				return err
			}

			fmt.Fprintln(out, format.Status("stop", fmt.Sprintf("Stream stopped after %s: %d frames, %d decode errors.",
				stats.Uptime.Round(time.Millisecond), stats.Frames, stats.DecodeErrors), opts))
			return consumerErr
		},
	}

	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().BoolVar(&listenOnly, "listen-only", false, "subscribe without sending START_STREAM/STOP_STREAM")
	return cmd
}

func stopTimeout() time.Duration {
	if cfg.Command.ReplyTimeout > 0 {
		return cfg.Command.ReplyTimeout
	}
	return 5 * time.Second
}
