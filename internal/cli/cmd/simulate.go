package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/berrythewa/ifmctl/internal/devicesim"
	"github.com/berrythewa/ifmctl/internal/transport"
	"github.com/berrythewa/ifmctl/pkg/format"
)

func newSimulateCmd() *cobra.Command {
	var (
		interval time.Duration
		samples  int
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a local device simulator",
		Long: `Serve the command catalog and publish synthetic telemetry frames on the
configured addresses, so the shell can be tried without hardware. The
simulator exits on Ctrl-C or when a client sends SHUTDOWN.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cmdEP, dataEP, err := cfg.SimulatorEndpoints()
			if err != nil {
				return err
			}
			if interval <= 0 {
				interval = cfg.Simulator.PublishInterval
			}
			if samples <= 0 {
				samples = cfg.Simulator.SamplesPerFrame
			}

			srv := devicesim.NewServer(devicesim.Config{
				CommandEndpoint: cmdEP,
				DataEndpoint:    dataEP,
				PublishInterval: interval,
				SamplesPerFrame: samples,
				Transport:       transport.Options{},
				Logger:          GetZapLogger().Named("simulator"),
			})
			if err := srv.Start(ctx); err != nil {
				return err
			}

			opts := outputOptions()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, format.Status("ready", fmt.Sprintf("Simulating device: commands on %s, telemetry on %s", cmdEP, dataEP), opts))

			select {
			case <-ctx.Done():
			case <-srv.Done():
			}
			if err := srv.Stop(); err != nil {
				return err
			}
			fmt.Fprintln(out, format.Status("bye", "Simulator stopped.", opts))
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "time between published frames (default from config)")
	cmd.Flags().IntVar(&samples, "samples", 0, "samples per frame (default from config)")
	return cmd
}
