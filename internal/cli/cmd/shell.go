package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/berrythewa/ifmctl/internal/dispatch"
	"github.com/berrythewa/ifmctl/internal/errors"
	"github.com/berrythewa/ifmctl/internal/telemetry"
	"github.com/berrythewa/ifmctl/internal/types"
	"github.com/berrythewa/ifmctl/pkg/format"
)

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive command prompt (default)",
		Long: `Open an interactive prompt. Each line is a command name, optionally
followed by a JSON object of parameters:

  > CONNECT
  > APPLY_CONFIG {"exposure": 100}
  > START_STREAM

START_STREAM also subscribes to the telemetry channel and prints one
average line per frame; STOP_STREAM ends the subscription.`,
		Args: cobra.NoArgs,
		RunE: runShellCmd,
	}
}

func runShellCmd(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := outputOptions()
	out := &lockedWriter{w: cmd.OutOrStdout()}

	c, err := connect(cmd.Context(), telemetry.NewWriterReporter(out, opts))
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			GetZapLogger().Warn("Shutdown was not clean", zap.Error(err))
		}
	}()

	cmdEP, _, _ := cfg.Endpoints()
	fmt.Fprintln(out, format.Status("ready", fmt.Sprintf("Connected to %s, telemetry on %s. Type 'help' for the command list, 'exit' to quit.", cmdEP, c.dispatch.DataEndpoint()), opts))
	return runShell(ctx, cmd.InOrStdin(), out, c.dispatch, opts)
}

// runShell reads lines from in until exit, EOF or ctx cancellation. A
// transport failure on the command channel ends the shell, since the
// channel cannot be used again.
func runShell(ctx context.Context, in io.Reader, out io.Writer, d *dispatch.Dispatcher, opts format.Options) error {
	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-readCtx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	bye := func() {
		fmt.Fprintln(out, format.Status("bye", "Bye!", opts))
	}

	for {
		fmt.Fprint(out, "> ")

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			bye()
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				bye()
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			line = l
		}

		res, err := d.Handle(ctx, line)
		if err != nil {
			if errors.IsRemote(err) {
				return err
			}
			fmt.Fprintln(out, format.Error(userMessage(err), opts))
			continue
		}

		switch res.Action {
		case dispatch.ActionHelp:
			fmt.Fprintln(out, format.CommandList(types.Commands, opts))
		case dispatch.ActionExit:
			bye()
			return nil
		case dispatch.ActionReply:
			fmt.Fprintln(out, format.Reply(res.Reply, opts))
			if s := res.StreamStarted; s != nil {
				fmt.Fprintln(out, format.Status("stream", fmt.Sprintf("Subscribed to stream %s...", s.Endpoint), opts))
			}
			if res.StreamStopped {
				fmt.Fprintln(out, format.Status("stop", "Stream stopped.", opts))
			}
			if res.StreamErr != nil {
				fmt.Fprintln(out, format.StreamError(res.StreamErr, opts))
			}
		}
	}
}
